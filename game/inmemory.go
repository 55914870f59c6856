package game

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trieste/parley/variant"
)

// InmemoryGame is a reference Model good enough to host the protocol
// layer and its tests. It validates order shape (unit ownership, phase
// match) and applies moves naively: a move succeeds unless another unit
// moves to or holds the same province. It is not an adjudicator; support
// and convoy strength are not computed, so no unit is ever dislodged and
// retreat phases never occur.
type InmemoryGame struct {
	variantData *variant.Variant
	deadline    time.Duration

	mu      sync.Mutex
	status  Status
	phase   string
	due     time.Time
	powers  map[string]*PowerState
	order   []string // power names in variant order
	orders  map[string][]string
	history map[string][]OrderResult

	eventChans []chan Event
	timer      *time.Timer

	// stop will be closed when Close() is called
	stop chan struct{}

	log *zap.Logger
}

func NewInmemoryGame(v *variant.Variant, deadline time.Duration, log *zap.Logger) *InmemoryGame {
	g := &InmemoryGame{
		variantData: v,
		deadline:    deadline,
		status:      Forming,
		phase:       v.StartPhase,
		powers:      make(map[string]*PowerState),
		orders:      make(map[string][]string),
		history:     make(map[string][]OrderResult),
		stop:        make(chan struct{}),
		log:         log,
	}

	for _, setup := range v.Powers {
		state := &PowerState{
			Name:    setup.Name,
			Centres: append([]string{}, setup.Centres...),
		}

		for _, u := range setup.Units {
			kind, prov, _ := strings.Cut(u, " ")
			state.Units = append(state.Units, UnitPos{
				Power:    setup.Name,
				Kind:     kind,
				Province: prov,
			})
		}

		g.powers[setup.Name] = state
		g.order = append(g.order, setup.Name)
	}

	return g
}

func (g *InmemoryGame) Close() error {
	if g.isRunning() {
		close(g.stop)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
	}

	for _, ch := range g.eventChans {
		close(ch)
	}

	g.eventChans = nil

	return nil
}

func (g *InmemoryGame) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.status
}

func (g *InmemoryGame) Phase() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.phase
}

func (g *InmemoryGame) MapName() string {
	return g.variantData.Name
}

func (g *InmemoryGame) Deadline() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.due
}

func (g *InmemoryGame) Powers() []PowerState {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]PowerState, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, *g.powers[name])
	}

	return out
}

func (g *InmemoryGame) Power(name string) (PowerState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.powers[name]
	if !ok {
		return PowerState{}, false
	}

	return *p, true
}

// Start moves the game from Forming to Active and arms the deadline.
func (g *InmemoryGame) Start() {
	g.mu.Lock()

	if g.status != Forming {
		g.mu.Unlock()
		return
	}

	g.status = Active
	g.armDeadlineLocked()

	ev := Event{Kind: StatusChanged, Status: Active, Phase: g.phase}
	g.mu.Unlock()

	g.emit(ev)
}

// Cancel ends the game without a result.
func (g *InmemoryGame) Cancel() {
	g.mu.Lock()

	if g.status != Active && g.status != Forming {
		g.mu.Unlock()
		return
	}

	g.status = Cancelled
	ev := Event{Kind: StatusChanged, Status: Cancelled, Phase: g.phase}
	g.mu.Unlock()

	g.emit(ev)
}

func (g *InmemoryGame) SubmitOrders(power, phase string, orders []string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != Active {
		return nil, ErrGameOver
	}

	if phase != "" && phase != g.phase {
		return nil, fmt.Errorf("submitted for %s, current is %s: %w", phase, g.phase, ErrWrongPhase)
	}

	state, ok := g.powers[power]
	if !ok {
		return nil, ErrNoSuchPower
	}

	notes := make([]string, 0, len(orders))
	accepted := make([]string, 0, len(orders))

	for _, o := range orders {
		if o == "WAIVE" || g.ownsUnitLocked(state, o) {
			notes = append(notes, "MBV")
			accepted = append(accepted, o)
			continue
		}

		notes = append(notes, "NSU")
	}

	g.orders[power] = accepted

	return notes, nil
}

// ownsUnitLocked checks the ordered unit belongs to the power. Orders
// lead with "A PROV" or "F PROV".
func (g *InmemoryGame) ownsUnitLocked(state *PowerState, order string) bool {
	fields := strings.Fields(order)
	if len(fields) < 2 {
		return false
	}

	for _, u := range state.Units {
		if u.Kind == fields[0] && u.Province == fields[1] {
			return true
		}
	}

	return false
}

func (g *InmemoryGame) ClearOrders(power string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.powers[power]; !ok {
		return ErrNoSuchPower
	}

	delete(g.orders, power)

	return nil
}

func (g *InmemoryGame) Missing(power string) ([]UnitPos, int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.powers[power]
	if !ok {
		return nil, 0, ErrNoSuchPower
	}

	ordered := make(map[string]bool)

	for _, o := range g.orders[power] {
		fields := strings.Fields(o)
		if len(fields) >= 2 {
			ordered[fields[1]] = true
		}
	}

	var missing []UnitPos

	for _, u := range state.Units {
		if !ordered[u.Province] {
			missing = append(missing, u)
		}
	}

	return missing, 0, nil
}

func (g *InmemoryGame) SetReady(power string, ready bool) error {
	g.mu.Lock()

	state, ok := g.powers[power]
	if !ok {
		g.mu.Unlock()
		return ErrNoSuchPower
	}

	state.Ready = ready
	all := g.allReadyLocked()
	g.mu.Unlock()

	if all {
		g.Process()
	}

	return nil
}

func (g *InmemoryGame) allReadyLocked() bool {
	if g.status != Active {
		return false
	}

	for _, p := range g.powers {
		if !p.Eliminated && !p.CivilDisorder && !p.Ready {
			return false
		}
	}

	return true
}

func (g *InmemoryGame) VoteDraw(power string, vote bool) error {
	g.mu.Lock()

	state, ok := g.powers[power]
	if !ok {
		g.mu.Unlock()
		return ErrNoSuchPower
	}

	state.DrawVote = vote

	unanimous := g.status == Active

	for _, p := range g.powers {
		if !p.Eliminated && !p.DrawVote {
			unanimous = false
		}
	}

	g.mu.Unlock()

	if unanimous {
		g.finish("", g.survivors())
	}

	return nil
}

func (g *InmemoryGame) SetCivilDisorder(power string, down bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.powers[power]
	if !ok {
		return ErrNoSuchPower
	}

	state.CivilDisorder = down

	return nil
}

func (g *InmemoryGame) SendPress(from string, to []string, body []byte) error {
	g.mu.Lock()

	if g.status != Active {
		g.mu.Unlock()
		return ErrGameOver
	}

	for _, name := range append([]string{from}, to...) {
		if _, ok := g.powers[name]; !ok {
			g.mu.Unlock()
			return fmt.Errorf("%s: %w", name, ErrNoSuchPower)
		}
	}

	g.mu.Unlock()

	g.emit(Event{Kind: MessageReceived, From: from, To: to, Body: body})

	return nil
}

func (g *InmemoryGame) History(phase string) ([]OrderResult, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	results, ok := g.history[phase]

	return results, ok
}

func (g *InmemoryGame) Events() <-chan Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch := make(chan Event, 64)
	g.eventChans = append(g.eventChans, ch)

	return ch
}

// Process adjudicates the current phase: moves apply unless contested,
// fall phases capture centres, and the turn advances. Normally invoked
// by the deadline timer or by the last GOF.
func (g *InmemoryGame) Process() {
	g.mu.Lock()

	if g.status != Active {
		g.mu.Unlock()
		return
	}

	results := g.resolveLocked()
	g.history[g.phase] = results

	processed := g.phase

	if strings.HasSuffix(g.phase, "M") && g.phase[0] == 'F' {
		g.captureCentresLocked()
	}

	winner := g.soloWinnerLocked()
	if winner != "" {
		g.mu.Unlock()
		g.emitResults(processed, results)
		g.finish(winner, nil)
		return
	}

	g.advancePhaseLocked()
	g.armDeadlineLocked()

	for _, p := range g.powers {
		p.Ready = false
	}

	g.orders = make(map[string][]string)

	g.mu.Unlock()
	g.emitResults(processed, results)
}

func (g *InmemoryGame) emitResults(phase string, results []OrderResult) {
	g.emit(Event{
		Kind:    PhaseProcessed,
		Phase:   phase,
		Results: results,
		Status:  g.Status(),
	})
}

// resolveLocked applies every submitted order. Unordered units hold.
func (g *InmemoryGame) resolveLocked() []OrderResult {
	var results []OrderResult

	moves := make(map[string][]int) // destination -> result indexes

	for _, name := range g.order {
		for _, o := range g.orders[name] {
			r := OrderResult{Power: name, Order: o, Result: "SUC"}
			results = append(results, r)

			fields := strings.Fields(o)
			if len(fields) >= 4 && fields[2] == "-" {
				moves[fields[3]] = append(moves[fields[3]], len(results)-1)
			}
		}
	}

	occupied := g.occupiedLocked()

	for dest, idxs := range moves {
		contested := len(idxs) > 1 || occupied[strings.SplitN(dest, "/", 2)[0]]

		for _, i := range idxs {
			if contested {
				results[i].Result = "BNC"
				continue
			}

			g.moveUnitLocked(results[i].Power, results[i].Order, dest)
		}
	}

	return results
}

func (g *InmemoryGame) occupiedLocked() map[string]bool {
	occ := make(map[string]bool)

	for _, p := range g.powers {
		for _, u := range p.Units {
			occ[strings.SplitN(u.Province, "/", 2)[0]] = true
		}
	}

	return occ
}

func (g *InmemoryGame) moveUnitLocked(power, order, dest string) {
	fields := strings.Fields(order)
	if len(fields) < 2 {
		return
	}

	state := g.powers[power]
	for i, u := range state.Units {
		if u.Kind == fields[0] && u.Province == fields[1] {
			state.Units[i].Province = dest
			return
		}
	}
}

// captureCentresLocked hands each occupied centre to its occupier after a
// fall movement phase.
func (g *InmemoryGame) captureCentresLocked() {
	owner := make(map[string]string)

	for _, name := range g.order {
		for _, c := range g.powers[name].Centres {
			owner[c] = name
		}
	}

	for _, name := range g.order {
		for _, u := range g.powers[name].Units {
			prov := strings.SplitN(u.Province, "/", 2)[0]
			if g.isCentre(prov) {
				owner[prov] = name
			}
		}
	}

	for _, p := range g.powers {
		p.Centres = nil
	}

	for c, name := range owner {
		g.powers[name].Centres = append(g.powers[name].Centres, c)
	}

	year := g.yearLocked()
	for _, p := range g.powers {
		if len(p.Centres) == 0 && !p.Eliminated {
			p.Eliminated = true
			p.EliminatedIn = year
		}
	}
}

func (g *InmemoryGame) isCentre(prov string) bool {
	for _, c := range g.variantData.NeutralCentres {
		if c == prov {
			return true
		}
	}

	for _, p := range g.variantData.Powers {
		for _, c := range p.Centres {
			if c == prov {
				return true
			}
		}
	}

	return false
}

func (g *InmemoryGame) soloWinnerLocked() string {
	for _, name := range g.order {
		if len(g.powers[name].Centres) >= g.variantData.SoloCentres {
			return name
		}
	}

	return ""
}

func (g *InmemoryGame) yearLocked() int {
	var year int

	fmt.Sscanf(g.phase[1:len(g.phase)-1], "%d", &year)

	return year
}

// advancePhaseLocked steps S M -> F M -> W A -> next spring. Retreat
// phases never occur here since this model never dislodges a unit.
func (g *InmemoryGame) advancePhaseLocked() {
	year := g.yearLocked()

	switch g.phase[0] {
	case 'S':
		g.phase = fmt.Sprintf("F%dM", year)
	case 'F':
		g.phase = fmt.Sprintf("W%dA", year)
	default:
		g.phase = fmt.Sprintf("S%dM", year+1)
	}
}

func (g *InmemoryGame) armDeadlineLocked() {
	if g.deadline <= 0 {
		return
	}

	g.due = time.Now().Add(g.deadline)

	if g.timer != nil {
		g.timer.Stop()
	}

	g.timer = time.AfterFunc(g.deadline, func() {
		if g.isRunning() {
			g.Process()
		}
	})
}

func (g *InmemoryGame) survivors() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var names []string

	for _, name := range g.order {
		if !g.powers[name].Eliminated {
			names = append(names, name)
		}
	}

	return names
}

func (g *InmemoryGame) finish(winner string, draw []string) {
	g.mu.Lock()

	if g.status != Active {
		g.mu.Unlock()
		return
	}

	g.status = Completed
	g.due = time.Time{}

	if g.timer != nil {
		g.timer.Stop()
	}

	ev := Event{
		Kind:       StatusChanged,
		Status:     Completed,
		Phase:      g.phase,
		Winner:     winner,
		DrawPowers: draw,
	}
	g.mu.Unlock()

	g.emit(ev)
}

func (g *InmemoryGame) emit(ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, ch := range g.eventChans {
		select {
		case ch <- ev:
		default:
			g.log.Warn("Dropping game event, subscriber is not draining",
				zap.Int("kind", int(ev.Kind)))
		}
	}
}

// isRunning returns true if Close has not been called
func (g *InmemoryGame) isRunning() bool {
	select {
	case <-g.stop:
		return false

	default:
		return true
	}
}

var _ Model = (*InmemoryGame)(nil)
