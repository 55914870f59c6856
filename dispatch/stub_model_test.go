package dispatch_test

import (
	"time"

	"github.com/trieste/parley/game"
)

type pressCall struct {
	from string
	to   []string
	body []byte
}

// stubModel records every mutating call so specs can assert on exactly
// what reached the game engine.
type stubModel struct {
	status   game.Status
	phase    string
	deadline time.Time
	powers   []game.PowerState

	notes     []string
	submitted map[string][]string
	cleared   []string
	ready     map[string]bool
	draws     map[string]bool
	disorder  map[string]bool
	press     []pressCall
	history   map[string][]game.OrderResult

	started bool
}

func newStubModel() *stubModel {
	return &stubModel{
		status:    game.Forming,
		phase:     "S1901M",
		submitted: make(map[string][]string),
		ready:     make(map[string]bool),
		draws:     make(map[string]bool),
		disorder:  make(map[string]bool),
		history:   make(map[string][]game.OrderResult),
	}
}

func (m *stubModel) Status() game.Status { return m.status }
func (m *stubModel) Phase() string       { return m.phase }
func (m *stubModel) MapName() string     { return "standard" }
func (m *stubModel) Deadline() time.Time { return m.deadline }

func (m *stubModel) Powers() []game.PowerState { return m.powers }

func (m *stubModel) Power(name string) (game.PowerState, bool) {
	for _, p := range m.powers {
		if p.Name == name {
			return p, true
		}
	}

	return game.PowerState{}, false
}

func (m *stubModel) SubmitOrders(power, phase string, orders []string) ([]string, error) {
	if phase != m.phase {
		return nil, game.ErrWrongPhase
	}

	m.submitted[power] = orders

	notes := m.notes
	if notes == nil {
		notes = make([]string, len(orders))
		for i := range notes {
			notes[i] = "MBV"
		}
	}

	return notes, nil
}

func (m *stubModel) ClearOrders(power string) error {
	m.cleared = append(m.cleared, power)
	delete(m.submitted, power)

	return nil
}

func (m *stubModel) Missing(power string) ([]game.UnitPos, int, error) {
	return nil, 0, nil
}

func (m *stubModel) SetReady(power string, ready bool) error {
	m.ready[power] = ready
	return nil
}

func (m *stubModel) VoteDraw(power string, vote bool) error {
	m.draws[power] = vote
	return nil
}

func (m *stubModel) SetCivilDisorder(power string, down bool) error {
	m.disorder[power] = down
	return nil
}

func (m *stubModel) SendPress(from string, to []string, body []byte) error {
	m.press = append(m.press, pressCall{from: from, to: to, body: body})
	return nil
}

func (m *stubModel) History(phase string) ([]game.OrderResult, bool) {
	res, ok := m.history[phase]
	return res, ok
}

func (m *stubModel) Events() <-chan game.Event {
	ch := make(chan game.Event)
	close(ch)

	return ch
}

func (m *stubModel) Close() error { return nil }

func (m *stubModel) Start() {
	m.started = true
	m.status = game.Active
}

var _ game.Model = (*stubModel)(nil)
