package trade

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"twstock/internal/economy"
	"twstock/internal/portfolio"
	"twstock/internal/quote"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrInvalidQuantity rejects non-positive share quantities.
var ErrInvalidQuantity = errors.New("share quantity must be a positive integer")

// FundsError reports a buy the player cannot afford.
type FundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *FundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %s, have %s", e.Required, e.Available)
}

// SharesError reports a sell of more shares than held.
type SharesError struct {
	Held      int64
	Requested int64
}

func (e *SharesError) Error() string {
	return fmt.Sprintf("insufficient shares: hold %d, asked to sell %d", e.Held, e.Requested)
}

// QuoteSource is the fresh-price dependency. Trades always re-fetch at
// execution time rather than trusting a previously displayed price.
type QuoteSource interface {
	Fetch(ctx context.Context, internalSym string) (*quote.Quote, error)
}

// Orchestrator composes quotes, the economy and the portfolio store into
// buy/sell operations. All operations for one player are serialized by a
// per-player lock, so the economy debit/credit and the holdings mutations of
// one trade never interleave with another trade for the same player.
type Orchestrator struct {
	quotes  QuoteSource
	economy economy.Service
	store   *portfolio.Store
	log     *logrus.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewOrchestrator(quotes QuoteSource, eco economy.Service, store *portfolio.Store, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		quotes:  quotes,
		economy: eco,
		store:   store,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Receipt describes an executed trade.
type Receipt struct {
	Symbol        string          `json:"symbol"`
	Shares        int64           `json:"shares"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	Total         decimal.Decimal `json:"total"`
}

// Buy purchases shares at the current market price: fetch a fresh quote,
// check the balance, withdraw, then add shares and record the purchase lot.
func (o *Orchestrator) Buy(ctx context.Context, player, sym string, shares int64) (*Receipt, error) {
	if shares <= 0 {
		return nil, ErrInvalidQuantity
	}
	lock := o.playerLock(player)
	lock.Lock()
	defer lock.Unlock()

	price, err := o.freshPrice(ctx, sym)
	if err != nil {
		return nil, err
	}
	cost := price.Mul(decimal.NewFromInt(shares))

	balance := o.economy.Balance(player)
	if balance.LessThan(cost) {
		return nil, &FundsError{Required: cost, Available: balance}
	}
	if err := o.economy.Withdraw(player, cost); err != nil {
		return nil, fmt.Errorf("economy withdraw: %w", err)
	}

	// both mutations, or the ledger diverges from the share count
	o.store.AddShares(player, sym, shares)
	o.store.RecordPurchase(player, sym, shares, price)

	o.log.Infof("%s bought %d x %s at %s (total %s)", player, shares, sym, price, cost)
	return &Receipt{Symbol: sym, Shares: shares, PricePerShare: price, Total: cost}, nil
}

// Sell disposes shares at the current market price. The holdings mutation
// comes first; only a successful removal is credited to the economy.
func (o *Orchestrator) Sell(ctx context.Context, player, sym string, shares int64) (*Receipt, error) {
	if shares <= 0 {
		return nil, ErrInvalidQuantity
	}
	lock := o.playerLock(player)
	lock.Lock()
	defer lock.Unlock()

	return o.sellLocked(ctx, player, sym, shares)
}

// SellAll disposes the player's entire position in sym.
func (o *Orchestrator) SellAll(ctx context.Context, player, sym string) (*Receipt, error) {
	lock := o.playerLock(player)
	lock.Lock()
	defer lock.Unlock()

	held := o.store.ShareCount(player, sym)
	if held <= 0 {
		return nil, &SharesError{Held: held, Requested: held}
	}
	return o.sellLocked(ctx, player, sym, held)
}

func (o *Orchestrator) sellLocked(ctx context.Context, player, sym string, shares int64) (*Receipt, error) {
	held := o.store.ShareCount(player, sym)
	if held < shares {
		return nil, &SharesError{Held: held, Requested: shares}
	}

	price, err := o.freshPrice(ctx, sym)
	if err != nil {
		return nil, err
	}
	proceeds := price.Mul(decimal.NewFromInt(shares))

	if !o.store.RemoveShares(player, sym, shares) {
		return nil, &SharesError{Held: o.store.ShareCount(player, sym), Requested: shares}
	}
	if err := o.economy.Deposit(player, proceeds); err != nil {
		return nil, fmt.Errorf("economy deposit: %w", err)
	}

	o.log.Infof("%s sold %d x %s at %s (total %s)", player, shares, sym, price, proceeds)
	return &Receipt{Symbol: sym, Shares: shares, PricePerShare: price, Total: proceeds}, nil
}

// freshPrice fetches a quote and converts its price for money arithmetic.
// A non-positive price would let a failed fetch masquerade as a free asset,
// so it is treated as unavailable market data.
func (o *Orchestrator) freshPrice(ctx context.Context, sym string) (decimal.Decimal, error) {
	q, err := o.quotes.Fetch(ctx, sym)
	if err != nil {
		return decimal.Zero, err
	}
	if q.Price <= 0 {
		o.log.Warnf("quote for %s has non-positive price %g, refusing to trade", sym, q.Price)
		return decimal.Zero, quote.ErrUnavailable
	}
	return decimal.NewFromFloat(q.Price), nil
}

func (o *Orchestrator) playerLock(player string) *sync.Mutex {
	o.lockMu.Lock()
	defer o.lockMu.Unlock()
	l, ok := o.locks[player]
	if !ok {
		l = &sync.Mutex{}
		o.locks[player] = l
	}
	return l
}
