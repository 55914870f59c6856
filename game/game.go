// Package game defines the game-model collaborator the protocol core
// talks to. The core never owns game state: it submits parsed commands
// through Model and turns the events Model emits into notifications.
// Everything crosses this boundary in plain strings (power names, phase
// notation, short order notation) so the model carries no wire types.
package game

import (
	"errors"
	"time"
)

var (
	ErrWrongPhase  = errors.New("request names a phase that is not the current one")
	ErrNoSuchPower = errors.New("no power by that name in this game")
	ErrGameOver    = errors.New("the game is finished or cancelled")
	ErrNotStarted  = errors.New("the game has not started")
)

// Status is the game lifecycle.
type Status int

const (
	Forming Status = iota
	Active
	Completed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Forming:
		return "forming"
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// EventKind discriminates model events. Consumers must ignore kinds they
// do not recognize so the model can grow new ones.
type EventKind int

const (
	PhaseProcessed EventKind = iota
	StatusChanged
	MessageReceived
)

// UnitPos is one unit on the board. Kind is "A" or "F"; Province is short
// notation including any coast. Retreats lists the unit's retreat options
// when it is dislodged.
type UnitPos struct {
	Power    string
	Kind     string
	Province string
	Retreats []string
}

// OrderResult is one adjudicated order. Result is a wire result symbol
// (SUC, BNC, ...).
type OrderResult struct {
	Power  string
	Order  string
	Result string
}

// PowerState is everything the protocol layer ever asks about a power.
type PowerState struct {
	Name          string
	Centres       []string
	Units         []UnitPos
	Ready         bool
	DrawVote      bool
	CivilDisorder bool
	Eliminated    bool
	EliminatedIn  int // year, zero unless eliminated
}

// Event is one model-side occurrence the protocol layer may translate
// into notifications. Fields beyond Kind are set per kind.
type Event struct {
	Kind EventKind

	// PhaseProcessed: the phase that just resolved and its results.
	Phase   string
	Results []OrderResult

	// PhaseProcessed and StatusChanged: lifecycle after the event, plus
	// the winner or draw participants when the game just ended.
	Status     Status
	Winner     string
	DrawPowers []string

	// MessageReceived: relayed press.
	From string
	To   []string
	Body []byte
}

// Model is the narrow contract with the game engine. Calls are safe from
// any connection goroutine; the protocol layer must not assume atomicity
// across more than one call.
type Model interface {
	Status() Status
	Phase() string
	MapName() string
	Deadline() time.Time // zero when untimed

	Powers() []PowerState
	Power(name string) (PowerState, bool)

	// SubmitOrders validates and stores a power's orders for the given
	// phase, returning one note symbol per order (MBV when acceptable).
	// The phase must name the current phase.
	SubmitOrders(power, phase string, orders []string) ([]string, error)
	ClearOrders(power string) error
	Missing(power string) ([]UnitPos, int, error)

	SetReady(power string, ready bool) error
	VoteDraw(power string, vote bool) error
	SetCivilDisorder(power string, down bool) error

	SendPress(from string, to []string, body []byte) error

	// History returns the adjudicated results of an earlier phase.
	History(phase string) ([]OrderResult, bool)

	// Events returns a fresh subscription. Every subscriber sees every
	// event; channels close when the model shuts down.
	Events() <-chan Event

	Close() error
}
