package economy

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Service is the external virtual-currency ledger. Implementations are assumed
// synchronous and authoritative; the trading core checks the balance
// immediately before withdrawing and never overdraws past that check.
type Service interface {
	Balance(player string) decimal.Decimal
	Withdraw(player string, amount decimal.Decimal) error
	Deposit(player string, amount decimal.Decimal) error
}

// InMemory is a Service backed by a process-local balance map. The standalone
// server and the tests run against it; a real deployment plugs the host
// platform's economy in behind the same interface.
type InMemory struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	starting decimal.Decimal
	log      *logrus.Logger
}

func NewInMemory(starting decimal.Decimal, log *logrus.Logger) *InMemory {
	return &InMemory{
		balances: make(map[string]decimal.Decimal),
		starting: starting,
		log:      log,
	}
}

func (e *InMemory) Balance(player string) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance(player)
}

func (e *InMemory) Withdraw(player string, amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative withdrawal %s", amount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.balance(player)
	if b.LessThan(amount) {
		return fmt.Errorf("balance %s is less than %s", b, amount)
	}
	e.balances[player] = b.Sub(amount)
	e.log.Debugf("economy: %s -%s -> %s", player, amount, e.balances[player])
	return nil
}

func (e *InMemory) Deposit(player string, amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative deposit %s", amount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[player] = e.balance(player).Add(amount)
	e.log.Debugf("economy: %s +%s -> %s", player, amount, e.balances[player])
	return nil
}

// balance reads the player's balance, seeding new accounts with the starting
// amount. Callers hold e.mu.
func (e *InMemory) balance(player string) decimal.Decimal {
	b, ok := e.balances[player]
	if !ok {
		b = e.starting
		e.balances[player] = b
	}
	return b
}
