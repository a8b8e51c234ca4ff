package portfolio

import "sync"

// PendingKind selects what kind of input a player's next chat message answers.
type PendingKind int

const (
	PendingNone PendingKind = iota
	// PendingBuy awaits a purchase quantity for Symbol.
	PendingBuy
	// PendingSell awaits a sale quantity for Symbol.
	PendingSell
	// PendingNewSymbol awaits a ticker to add to the portfolio.
	PendingNewSymbol
)

// PendingAction is the transient per-player input state. At most one action is
// pending per player at a time.
type PendingAction struct {
	Kind   PendingKind
	Symbol string
}

// PendingActions tracks armed actions by player. The next input always
// consumes the action, even when it fails to parse, so no action is ever
// left dangling.
type PendingActions struct {
	mu       sync.Mutex
	byPlayer map[string]PendingAction
}

func NewPendingActions() *PendingActions {
	return &PendingActions{byPlayer: make(map[string]PendingAction)}
}

// Arm replaces whatever action was pending for the player.
func (p *PendingActions) Arm(player string, action PendingAction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byPlayer[player] = action
}

// Consume removes and returns the player's pending action.
func (p *PendingActions) Consume(player string) (PendingAction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	action, ok := p.byPlayer[player]
	if ok {
		delete(p.byPlayer, player)
	}
	return action, ok
}
