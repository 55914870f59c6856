// Package dispatch turns parsed client requests into calls on the game
// model and renders the model's answers and events back into wire
// replies. It owns power assignment, passcodes and the per-connection
// identity, but no wire framing and no game rules.
package dispatch

import (
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/trieste/parley/game"
	"github.com/trieste/parley/protocol"
	"github.com/trieste/parley/session"
	"github.com/trieste/parley/variant"
)

// Config carries the game options the dispatcher advertises in HLO.
type Config struct {
	// PressLevel is the DAIDE press level (LVL clause). Zero means no
	// press.
	PressLevel int

	// DeadlineSeconds is the movement-phase deadline (MTL clause). Zero
	// means untimed.
	DeadlineSeconds int
}

// ConnContext is the dispatcher's view of one connection. The transport
// owns the struct and passes it with every request. Identity fields are
// written on the connection's read goroutine and read on the listener's
// event-broadcast goroutine, so they live behind a mutex.
type ConnContext struct {
	Name  string
	Token session.Token

	mu            sync.Mutex
	power         string
	observer      bool
	clientName    string
	clientVersion string
}

// Joined reports whether the connection has introduced itself.
func (c *ConnContext) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.power != "" || c.observer
}

// Power returns the assigned power's name, empty until NME or IAM
// succeeds.
func (c *ConnContext) Power() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.power
}

// Observer reports whether the connection joined with OBS.
func (c *ConnContext) Observer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.observer
}

// seat assigns a power, clearing observer status.
func (c *ConnContext) seat(power string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.power = power
	c.observer = false
}

func (c *ConnContext) observe() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observer = true
}

func (c *ConnContext) setClient(name, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clientName = name
	c.clientVersion = version
}

type clientInfo struct {
	name    string
	version string
}

// Dispatcher routes requests for a single game.
type Dispatcher struct {
	cfg   Config
	model game.Model
	reg   *session.Registry
	v     *variant.Variant
	log   *zap.Logger

	// broadcast pushes a reply to every open connection; the transport
	// installs it before serving.
	broadcast func(protocol.Reply)

	mu       sync.Mutex
	assigned map[string]string // power name -> connection name
	clients  map[string]clientInfo
}

func New(cfg Config, model game.Model, reg *session.Registry, v *variant.Variant, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		model:    model,
		reg:      reg,
		v:        v,
		log:      log,
		assigned: make(map[string]string),
		clients:  make(map[string]clientInfo),
	}
}

// SetBroadcast installs the transport's fan-out hook.
func (d *Dispatcher) SetBroadcast(fn func(protocol.Reply)) {
	d.broadcast = fn
}

func (d *Dispatcher) push(r protocol.Reply) {
	if d.broadcast != nil {
		d.broadcast(r)
	}
}

// HandleRequest dispatches one request and returns the replies to write
// back on the same connection. Pushed notifications go through the
// broadcast hook instead.
func (d *Dispatcher) HandleRequest(ctx *ConnContext, req protocol.Request) []protocol.Reply {
	switch r := req.(type) {
	case *protocol.NameRequest:
		return d.handleName(ctx, r)
	case *protocol.ObserverRequest:
		return d.handleObserver(ctx, r)
	case *protocol.IAmRequest:
		return d.handleIAm(ctx, r)
	case *protocol.HelloRequest:
		return d.handleHello(ctx, r)
	case *protocol.MapRequest:
		return []protocol.Reply{&protocol.MapResponse{Name: d.model.MapName()}}
	case *protocol.MdfRequest:
		return []protocol.Reply{d.buildMdf()}
	case *protocol.SupplyCentreRequest:
		return []protocol.Reply{d.buildSco()}
	case *protocol.NowRequest:
		return []protocol.Reply{d.buildNow()}
	case *protocol.MissingRequest:
		return d.handleMissing(ctx, r)
	case *protocol.GoFlagRequest:
		return d.handleGoFlag(ctx, r)
	case *protocol.HistoryRequest:
		return d.handleHistory(ctx, r)
	case *protocol.SubmitRequest:
		return d.handleSubmit(ctx, r)
	case *protocol.TimeRequest:
		return d.handleTime(ctx, r)
	case *protocol.DrawRequest:
		return d.handleDraw(ctx, r)
	case *protocol.SendRequest:
		return d.handleSend(ctx, r)
	case *protocol.NotRequest:
		return d.handleNot(ctx, r)
	case *protocol.AcceptRequest:
		return d.handleAccept(ctx, r)
	case *protocol.RefuseRequest:
		d.log.Debug("client refused a server message",
			zap.String("conn", ctx.Name))
		return nil
	case *protocol.AdminRequest:
		d.push(&protocol.AdmNotification{Name: r.Name, Text: r.Text})
		return nil
	default:
		return reject(req)
	}
}

func reject(req protocol.Request) []protocol.Reply {
	return []protocol.Reply{&protocol.RejResponse{Echo: req.Tokens()}}
}

func accept(req protocol.Request) []protocol.Reply {
	return []protocol.Reply{&protocol.YesResponse{Echo: req.Tokens()}}
}

// === NME / OBS / IAM

func (d *Dispatcher) handleName(ctx *ConnContext, req *protocol.NameRequest) []protocol.Reply {
	if ctx.Joined() || d.model.Status() != game.Forming {
		return reject(req)
	}

	d.mu.Lock()

	power := ""
	for _, name := range d.v.PowerNames() {
		if _, taken := d.assigned[name]; !taken {
			power = name
			break
		}
	}

	if power == "" {
		d.mu.Unlock()
		return reject(req)
	}

	d.assigned[power] = ctx.Name
	d.clients[power] = clientInfo{name: req.ClientName, version: req.ClientVersion}
	full := len(d.assigned) == len(d.v.Powers)

	d.mu.Unlock()

	passcode := rand.Intn(protocol.MaxInteger) + 1
	d.reg.RegisterClaim(power, passcode, ctx.Token)

	ctx.seat(power)
	ctx.setClient(req.ClientName, req.ClientVersion)

	d.log.Info("power assigned",
		zap.String("conn", ctx.Name),
		zap.String("power", power),
		zap.String("client", req.ClientName))

	if full {
		if starter, ok := d.model.(interface{ Start() }); ok {
			starter.Start()
		}
	}

	return append(accept(req), &protocol.MapResponse{Name: d.model.MapName()})
}

func (d *Dispatcher) handleObserver(ctx *ConnContext, req *protocol.ObserverRequest) []protocol.Reply {
	if ctx.Joined() {
		return reject(req)
	}

	ctx.observe()

	return append(accept(req), &protocol.MapResponse{Name: d.model.MapName()})
}

func (d *Dispatcher) handleIAm(ctx *ConnContext, req *protocol.IAmRequest) []protocol.Reply {
	if ctx.Power() != "" {
		return reject(req)
	}

	power := req.Power.Name()
	if err := d.reg.Reclaim(power, req.Passcode, ctx.Token); err != nil {
		d.log.Warn("power reclaim refused",
			zap.String("conn", ctx.Name),
			zap.String("power", power),
			zap.Error(err))
		return reject(req)
	}

	ctx.seat(power)

	// The seat is live again; lift civil disorder if the game is on.
	if d.model.Status() == game.Active {
		if err := d.model.SetCivilDisorder(power, false); err != nil {
			d.log.Warn("failed to lift civil disorder", zap.Error(err))
		}
	}

	return accept(req)
}

// === queries

func (d *Dispatcher) handleHello(ctx *ConnContext, req *protocol.HelloRequest) []protocol.Reply {
	if ctx.Power() == "" || d.model.Status() == game.Forming {
		return reject(req)
	}

	hlo := d.buildHello(ctx.Power())
	if hlo == nil {
		return reject(req)
	}

	return []protocol.Reply{hlo}
}

func (d *Dispatcher) handleMissing(ctx *ConnContext, req *protocol.MissingRequest) []protocol.Reply {
	if ctx.Power() == "" {
		return reject(req)
	}

	mis, err := d.buildMis(ctx.Power())
	if err != nil {
		return reject(req)
	}

	return []protocol.Reply{mis}
}

func (d *Dispatcher) handleHistory(ctx *ConnContext, req *protocol.HistoryRequest) []protocol.Reply {
	results, ok := d.model.History(req.Turn.String())
	if !ok {
		return reject(req)
	}

	replies := make([]protocol.Reply, 0, len(results))
	for _, res := range results {
		ord, err := d.buildOrd(req.Turn, res)
		if err != nil {
			d.log.Warn("unrenderable history entry",
				zap.String("order", res.Order), zap.Error(err))
			continue
		}

		replies = append(replies, ord)
	}

	return replies
}

// === orders and flags

func (d *Dispatcher) handleSubmit(ctx *ConnContext, req *protocol.SubmitRequest) []protocol.Reply {
	if ctx.Power() == "" || len(req.Orders) == 0 {
		return reject(req)
	}

	phase := d.model.Phase()
	if req.Turn != nil && req.Turn.String() != phase {
		return reject(req)
	}

	orders := make([]string, 0, len(req.Orders))
	for _, o := range req.Orders {
		orders = append(orders, o.String())
	}

	notes, err := d.model.SubmitOrders(ctx.Power(), phase, orders)
	if err != nil {
		d.log.Debug("order submission refused",
			zap.String("power", ctx.Power()), zap.Error(err))
		return reject(req)
	}

	replies := make([]protocol.Reply, 0, len(req.Orders)+1)
	for i, o := range req.Orders {
		note := protocol.MBV
		if i < len(notes) {
			if t, err := protocol.FromSymbol(notes[i]); err == nil {
				note = t
			}
		}

		replies = append(replies, &protocol.ThxResponse{Order: o, Note: note})
	}

	if mis, err := d.buildMis(ctx.Power()); err == nil {
		replies = append(replies, mis)
	}

	return replies
}

func (d *Dispatcher) handleGoFlag(ctx *ConnContext, req *protocol.GoFlagRequest) []protocol.Reply {
	if ctx.Power() == "" {
		return reject(req)
	}

	if err := d.model.SetReady(ctx.Power(), true); err != nil {
		return reject(req)
	}

	return accept(req)
}

func (d *Dispatcher) handleTime(ctx *ConnContext, req *protocol.TimeRequest) []protocol.Reply {
	// Requesting a reminder at an offset is not supported; only the
	// plain deadline query is.
	if req.Seconds != nil {
		return reject(req)
	}

	tme, ok := d.buildTme()
	if !ok {
		return reject(req)
	}

	return []protocol.Reply{tme}
}

func (d *Dispatcher) handleDraw(ctx *ConnContext, req *protocol.DrawRequest) []protocol.Reply {
	// Partial draw proposals need press level 10; only the full draw
	// vote is supported.
	if ctx.Power() == "" || len(req.Powers) > 0 {
		return reject(req)
	}

	if err := d.model.VoteDraw(ctx.Power(), true); err != nil {
		return reject(req)
	}

	return accept(req)
}

func (d *Dispatcher) handleSend(ctx *ConnContext, req *protocol.SendRequest) []protocol.Reply {
	if ctx.Power() == "" || d.cfg.PressLevel == 0 {
		return reject(req)
	}

	if req.Turn != nil && req.Turn.String() != d.model.Phase() {
		return reject(req)
	}

	to := make([]string, 0, len(req.To))
	for _, p := range req.To {
		to = append(to, p.Name())
	}

	body := protocol.BytesFromTokens(req.Press)
	if err := d.model.SendPress(ctx.Power(), to, body); err != nil {
		return reject(req)
	}

	return accept(req)
}

// === NOT

func (d *Dispatcher) handleNot(ctx *ConnContext, req *protocol.NotRequest) []protocol.Reply {
	if ctx.Power() == "" {
		return reject(req)
	}

	switch inner := req.Inner.(type) {
	case *protocol.GoFlagRequest:
		if err := d.model.SetReady(ctx.Power(), false); err != nil {
			return reject(req)
		}
	case *protocol.DrawRequest:
		if len(inner.Powers) > 0 {
			return reject(req)
		}

		if err := d.model.VoteDraw(ctx.Power(), false); err != nil {
			return reject(req)
		}
	case *protocol.SubmitRequest:
		if inner.Turn != nil && inner.Turn.String() != d.model.Phase() {
			return reject(req)
		}

		if err := d.model.ClearOrders(ctx.Power()); err != nil {
			return reject(req)
		}
	case *protocol.TimeRequest:
		// No reminders are ever scheduled, so there is nothing to
		// cancel and the request trivially succeeds.
	default:
		return reject(req)
	}

	return accept(req)
}

// === YES

// handleAccept reacts to client acknowledgements. The one that matters
// is YES (MAP): once the client has accepted the map and the game is
// running, it gets the full opening state.
func (d *Dispatcher) handleAccept(ctx *ConnContext, req *protocol.AcceptRequest) []protocol.Reply {
	if len(req.Echo) == 0 || req.Echo[0] != protocol.MAP {
		return nil
	}

	if d.model.Status() == game.Forming {
		return nil
	}

	replies := []protocol.Reply{}
	if hlo := d.buildHello(ctx.Power()); hlo != nil {
		replies = append(replies, hlo)
	}

	replies = append(replies, d.buildSco(), d.buildNow())
	if tme, ok := d.buildTme(); ok {
		replies = append(replies, tme)
	}

	return replies
}

// ConnectionClosed releases everything the connection held. Called by
// the transport after the socket is gone.
func (d *Dispatcher) ConnectionClosed(ctx *ConnContext) {
	d.reg.Drop(ctx.Token)
	d.reg.ReleaseName(ctx.Name)

	power := ctx.Power()
	if power == "" {
		return
	}

	switch d.model.Status() {
	case game.Forming:
		// The seat reopens for the next NME.
		d.mu.Lock()
		delete(d.assigned, power)
		delete(d.clients, power)
		d.mu.Unlock()
	case game.Active:
		if err := d.model.SetCivilDisorder(power, true); err != nil {
			d.log.Warn("failed to flag civil disorder", zap.Error(err))
		}

		if p, err := protocol.PowerFromName(power); err == nil {
			d.push(&protocol.CcdNotification{Power: p})
		}
	}

	d.log.Info("connection released",
		zap.String("conn", ctx.Name),
		zap.String("power", power))
}
