package portfolio

import (
	"os"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// dotEscape replaces "." in symbol keys before they are used as section keys
// in the holdings file, preserving the persisted layout of earlier versions.
const dotEscape = "_DOT_"

// Store owns all player-keyed portfolio state: share counts per symbol and the
// purchase-lot ledger that backs cost-basis reads. State is held in memory and
// written through to the holdings file on every mutation. Persistence failures
// are logged and swallowed; memory stays authoritative for the process
// lifetime. Safe for concurrent use; compound mutations on the same player are
// serialized by a per-player lock.
type Store struct {
	file string
	log  *logrus.Logger

	mu      sync.RWMutex
	players map[string]*playerState

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	fileMu sync.Mutex
}

type playerState struct {
	holdings map[string]int64
	ledgers  map[string]*ledger
}

// ledger is two parallel sequences of purchase lots for one (player, symbol).
type ledger struct {
	prices []decimal.Decimal
	shares []int64
}

type holdingsFile struct {
	Players map[string]*playerRecord `yaml:"players"`
}

type playerRecord struct {
	Holdings     map[string]int64         `yaml:"holdings,omitempty"`
	Transactions map[string]*ledgerRecord `yaml:"transactions,omitempty"`
}

type ledgerRecord struct {
	Prices []string `yaml:"prices"`
	Shares []int64  `yaml:"shares"`
}

func NewStore(file string, log *logrus.Logger) (*Store, error) {
	s := &Store{
		file:    file,
		log:     log,
		players: make(map[string]*playerState),
		locks:   make(map[string]*sync.Mutex),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.file)
	if os.IsNotExist(err) {
		s.log.Infof("holdings file %s does not exist yet", s.file)
		return nil
	}
	if err != nil {
		return err
	}

	var doc holdingsFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}

	players := make(map[string]*playerState, len(doc.Players))
	for id, rec := range doc.Players {
		if rec == nil {
			continue
		}
		st := newPlayerState()
		for key, shares := range rec.Holdings {
			if shares > 0 {
				st.holdings[unescapeKey(key)] = shares
			}
		}
		for key, lr := range rec.Transactions {
			if lr == nil {
				continue
			}
			l := &ledger{shares: append([]int64(nil), lr.Shares...)}
			for _, p := range lr.Prices {
				d, err := decimal.NewFromString(p)
				if err != nil {
					s.log.Warnf("holdings file: bad price %q for %s/%s", p, id, key)
					d = decimal.Zero
				}
				l.prices = append(l.prices, d)
			}
			st.ledgers[unescapeKey(key)] = l
		}
		players[id] = st
	}

	s.mu.Lock()
	s.players = players
	s.mu.Unlock()
	s.log.Infof("loaded holdings for %d players from %s", len(players), s.file)
	return nil
}

// Reload discards all in-memory state and re-reads the holdings file. Used for
// operator-triggered recovery after out-of-band file edits.
func (s *Store) Reload() error {
	s.mu.Lock()
	s.players = make(map[string]*playerState)
	s.mu.Unlock()
	return s.load()
}

// Holdings returns a copy of the player's symbol to share-count mapping.
func (s *Store) Holdings(player string) map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64)
	if st, ok := s.players[player]; ok {
		for sym, n := range st.holdings {
			out[sym] = n
		}
	}
	return out
}

// ShareCount returns how many shares of sym the player holds.
func (s *Store) ShareCount(player, sym string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.players[player]; ok {
		return st.holdings[sym]
	}
	return 0
}

// Register adds a transient zero-share entry so the symbol shows up in the
// player's portfolio pending a purchase decision. Zero entries are never
// persisted; they live in memory only. No-op if the player already holds the
// symbol.
func (s *Store) Register(player, sym string) {
	lock := s.playerLock(player)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	st := s.state(player)
	if _, ok := st.holdings[sym]; !ok {
		st.holdings[sym] = 0
	}
	s.mu.Unlock()
}

// AddShares increments the player's position and persists immediately.
// Non-positive quantities are a no-op.
func (s *Store) AddShares(player, sym string, qty int64) {
	if qty <= 0 {
		return
	}
	lock := s.playerLock(player)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	st := s.state(player)
	st.holdings[sym] += qty
	s.mu.Unlock()

	s.save()
}

// RemoveShares decrements the player's position. It fails without mutating
// anything when qty is non-positive or exceeds the current holding. When the
// position reaches exactly zero the entry is removed and the symbol's ledger
// cleared: selling out resets cost basis.
func (s *Store) RemoveShares(player, sym string, qty int64) bool {
	if qty <= 0 {
		return false
	}
	lock := s.playerLock(player)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	st := s.state(player)
	current := st.holdings[sym]
	if current < qty {
		s.mu.Unlock()
		return false
	}
	if current == qty {
		delete(st.holdings, sym)
		delete(st.ledgers, sym)
	} else {
		st.holdings[sym] = current - qty
	}
	s.mu.Unlock()

	s.save()
	return true
}

// RecordPurchase appends a purchase lot to the (player, symbol) ledger and
// persists. Callers pairing it with AddShares must invoke both so cost basis
// stays consistent with the share count.
func (s *Store) RecordPurchase(player, sym string, qty int64, pricePerShare decimal.Decimal) {
	if qty <= 0 {
		return
	}
	lock := s.playerLock(player)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	st := s.state(player)
	l, ok := st.ledgers[sym]
	if !ok {
		l = &ledger{}
		st.ledgers[sym] = l
	}
	l.prices = append(l.prices, pricePerShare)
	l.shares = append(l.shares, qty)
	s.mu.Unlock()

	s.save()
}

// AverageCost derives the average purchase price over all recorded lots.
// Returns zero when no ledger exists or the sequences are malformed.
func (s *Store) AverageCost(player, sym string) decimal.Decimal {
	total, shares := s.costTotals(player, sym)
	if shares == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(shares))
}

// TotalCost derives the total purchase cost over all recorded lots.
func (s *Store) TotalCost(player, sym string) decimal.Decimal {
	total, _ := s.costTotals(player, sym)
	return total
}

func (s *Store) costTotals(player, sym string) (decimal.Decimal, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.players[player]
	if !ok {
		return decimal.Zero, 0
	}
	l, ok := st.ledgers[sym]
	if !ok || len(l.prices) == 0 || len(l.prices) != len(l.shares) {
		return decimal.Zero, 0
	}

	total := decimal.Zero
	var shares int64
	for i, p := range l.prices {
		total = total.Add(p.Mul(decimal.NewFromInt(l.shares[i])))
		shares += l.shares[i]
	}
	return total, shares
}

// state returns the player's entry, creating it lazily. Callers hold s.mu.
func (s *Store) state(player string) *playerState {
	st, ok := s.players[player]
	if !ok {
		st = newPlayerState()
		s.players[player] = st
	}
	return st
}

func newPlayerState() *playerState {
	return &playerState{
		holdings: make(map[string]int64),
		ledgers:  make(map[string]*ledger),
	}
}

func (s *Store) playerLock(player string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[player]
	if !ok {
		l = &sync.Mutex{}
		s.locks[player] = l
	}
	return l
}

// save writes the whole document through to disk. Zero-share entries and empty
// ledgers are dropped. A write failure is logged and swallowed: the in-memory
// state stays authoritative until the next successful save.
func (s *Store) save() {
	s.mu.RLock()
	doc := holdingsFile{Players: make(map[string]*playerRecord, len(s.players))}
	for id, st := range s.players {
		rec := &playerRecord{}
		for sym, n := range st.holdings {
			if n <= 0 {
				continue
			}
			if rec.Holdings == nil {
				rec.Holdings = make(map[string]int64)
			}
			rec.Holdings[escapeKey(sym)] = n
		}
		for sym, l := range st.ledgers {
			if len(l.prices) == 0 {
				continue
			}
			if rec.Transactions == nil {
				rec.Transactions = make(map[string]*ledgerRecord)
			}
			lr := &ledgerRecord{Shares: append([]int64(nil), l.shares...)}
			for _, p := range l.prices {
				lr.Prices = append(lr.Prices, p.String())
			}
			rec.Transactions[escapeKey(sym)] = lr
		}
		if rec.Holdings == nil && rec.Transactions == nil {
			continue
		}
		doc.Players[id] = rec
	}
	s.mu.RUnlock()

	raw, err := yaml.Marshal(&doc)
	if err != nil {
		s.log.Errorf("could not marshal holdings: %v", err)
		return
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if err := os.WriteFile(s.file, raw, 0o644); err != nil {
		s.log.Errorf("could not save holdings to %s: %v", s.file, err)
	}
}

func escapeKey(sym string) string {
	return strings.ReplaceAll(sym, ".", dotEscape)
}

func unescapeKey(key string) string {
	return strings.ReplaceAll(key, dotEscape, ".")
}
