// Package transport carries framed protocol messages over TCP. It owns
// sockets, the per-connection handshake state machine and frame
// reassembly; everything above the frame goes to the dispatch layer.
package transport

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/trieste/parley/dispatch"
	"github.com/trieste/parley/game"
	"github.com/trieste/parley/internal/metrics"
	"github.com/trieste/parley/protocol"
	"github.com/trieste/parley/session"
)

// connState is where a connection sits in the handshake.
type connState int

const (
	// awaitingInitial means nothing has arrived yet; the only legal
	// first message is Initial.
	awaitingInitial connState = iota

	// active means the handshake is done and Diplomacy messages flow in
	// both directions.
	active

	// closing means a Final or Error frame has been seen or sent; no
	// further writes are queued.
	closing
)

type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr string

	numListeners int
	listeners    []*TCPListener

	dispatcher *dispatch.Dispatcher
	reg        *session.Registry
	model      game.Model

	log   *zap.Logger
	trace bool
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners
	if numListeners < 1 {
		numListeners = 1
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		numListeners: numListeners,
		listeners:    make([]*TCPListener, 0, numListeners),
		dispatcher:   options.Dispatcher,
		reg:          options.Registry,
		model:        options.Model,
		trace:        options.Trace,
		log:          options.Log,
	}
}

func (t *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	t.cancel = cancel

	t.dispatcher.SetBroadcast(t.Broadcast)

	t.log.Info("Starting tcp listeners",
		zap.String("addr", t.addr),
		zap.Int("count", t.numListeners))

	for i := 0; i < t.numListeners; i++ {
		t.startListener(ctx, t.addr)
	}

	return nil
}

func (t *TCP) startListener(ctx context.Context, addr string) {
	t.stopWaiter.Add(1)
	listener := NewTCPListener(
		ctx,
		addr,
		t.dispatcher,
		t.reg,
		t.model,
		t.trace,
		t.log.Named("listener").With(zap.Int("listener", len(t.listeners))),
	)

	t.listeners = append(t.listeners, listener)

	go func() {
		defer t.stopWaiter.Done()

		if err := listener.Listen(); err != nil {
			t.log.Error("Failed to listen", zap.Error(err))
		}
	}()
}

// Broadcast queues a reply on every connection that has completed the
// handshake.
func (t *TCP) Broadcast(r protocol.Reply) {
	m := protocol.ReplyMessage(r)

	for _, listener := range t.listeners {
		listener.BroadcastMessage(m)
	}
}

// Close immediately closes all active listeners and connections.
func (t *TCP) Close() error {
	t.log.Info("Stopping TCP server")
	t.cancel()

	for _, listener := range t.listeners {
		listener.Close()
	}

	t.stopWaiter.Wait()
	t.log.Info("TCP server stopped")

	return nil
}

type TCPListener struct {
	ctx context.Context

	addr string
	log  *zap.Logger

	mu          sync.Mutex
	activeConns map[*TCPConn]struct{}

	dispatcher *dispatch.Dispatcher
	reg        *session.Registry
	model      game.Model
	trace      bool
}

func NewTCPListener(
	ctx context.Context,
	addr string,
	dispatcher *dispatch.Dispatcher,
	reg *session.Registry,
	model game.Model,
	trace bool,
	log *zap.Logger,
) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		activeConns: make(map[*TCPConn]struct{}),
		addr:        addr,
		dispatcher:  dispatcher,
		reg:         reg,
		model:       model,
		trace:       trace,
		log:         log,
	}
}

func (t *TCPListener) Close() error {
	var err error
	for _, conn := range t.snapshotConns() {
		err = multierr.Append(err, conn.Close())
	}

	return err
}

func (t *TCPListener) Listen() error {
	listener, err := reuseport.Listen("tcp", t.addr)
	if err != nil {
		return err
	}

	defer listener.Close()

	var loopWaiter sync.WaitGroup

	go func() {
		<-t.ctx.Done()

		t.log.Info("Closing listener")
		if err := listener.Close(); err != nil {
			t.log.Warn("TCP Listener did not close cleanly", zap.Error(err))
		}
	}()

	// Fan game events out to every connection.
	go func() {
		for ev := range t.model.Events() {
			if err := t.BroadcastEvent(ev); err != nil {
				t.log.Warn("Failed to broadcast game event", zap.Error(err))
			}
		}
	}()

	for {
		select {
		case <-t.ctx.Done():
			t.log.Info("Stopped accepting new connections")
			loopWaiter.Wait()

			t.log.Info("Listener stopped")
			return nil

		default:
			conn, err := listener.Accept()
			if err != nil {
				netOpError := new(net.OpError)

				if errors.As(err, &netOpError) && netOpError.Unwrap().Error() == "use of closed network connection" {
					// The listener was closed while we were waiting for
					// new connections. That's fine.
					return nil
				}

				return err
			}

			loopWaiter.Add(1)

			tcpConn := NewTCPConn(
				t.ctx,
				conn.(*net.TCPConn),
				t.dispatcher,
				t.reg,
				t.trace,
				t.log.Named("conn").With(zap.String("remote", conn.RemoteAddr().String())),
			)

			t.addConn(tcpConn)

			go func() {
				defer loopWaiter.Done()
				defer t.removeConn(tcpConn)

				tcpConn.Serve()
			}()
		}
	}
}

// BroadcastEvent translates a game event per connection and queues the
// resulting notifications. Sends happen outside the listener lock: a
// connection with a full write queue must not stall Accept or other
// broadcasts.
func (t *TCPListener) BroadcastEvent(ev game.Event) (err error) {
	for _, conn := range t.snapshotConns() {
		for _, reply := range conn.Translate(ev) {
			err = multierr.Append(err, conn.Send(reply))
		}
	}

	return err
}

// BroadcastMessage queues one already-rendered message on every active
// connection.
func (t *TCPListener) BroadcastMessage(m protocol.Message) {
	for _, conn := range t.snapshotConns() {
		if err := conn.WriteMessage(m); err != nil {
			t.log.Warn("Failed to queue broadcast", zap.Error(err))
		}
	}
}

func (t *TCPListener) snapshotConns() []*TCPConn {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns := make([]*TCPConn, 0, len(t.activeConns))
	for conn := range t.activeConns {
		conns = append(conns, conn)
	}

	return conns
}

func (t *TCPListener) addConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.activeConns[conn] = struct{}{}
}

func (t *TCPListener) removeConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.activeConns, conn)
}

type TCPConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup

	conn       *net.TCPConn
	dispatcher *dispatch.Dispatcher
	reg        *session.Registry

	writeQueue chan []byte

	// stateMu guards state and connCtx; the read loop mutates them, the
	// broadcast path reads them.
	stateMu sync.Mutex
	state   connState
	connCtx *dispatch.ConnContext

	released sync.Once

	log   *zap.Logger
	trace bool
}

func NewTCPConn(
	parentCtx context.Context,
	conn *net.TCPConn,
	dispatcher *dispatch.Dispatcher,
	reg *session.Registry,
	trace bool,
	log *zap.Logger,
) *TCPConn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &TCPConn{
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		dispatcher: dispatcher,
		reg:        reg,
		writeQueue: make(chan []byte, 127),
		log:        log,
		trace:      trace,
	}
}

func (t *TCPConn) Close() error {
	if !t.isRunning() {
		// already stopped
		return nil
	}

	t.cancel()

	// Wait for the read/write loops to exit
	t.loopWaiter.Wait()

	err := t.conn.Close()
	t.release()

	return err
}

// Serve runs the connection until either side closes it, then releases
// everything the connection held.
func (t *TCPConn) Serve() {
	t.loopWaiter.Add(2)

	go func() {
		defer t.loopWaiter.Done()
		t.ReadLoop()
	}()

	go func() {
		defer t.loopWaiter.Done()
		t.WriteLoop()
	}()

	t.loopWaiter.Wait()
	t.conn.Close()
	t.release()
}

// release hands the connection's identity back to the dispatcher. Safe
// to call more than once.
func (t *TCPConn) release() {
	t.released.Do(func() {
		t.stateMu.Lock()
		ctx := t.connCtx
		t.connCtx = nil
		t.state = closing
		t.stateMu.Unlock()

		if ctx != nil {
			metrics.ConnClosed()
			t.dispatcher.ConnectionClosed(ctx)
		}
	})
}

func (t *TCPConn) ReadLoop() {
	log := t.log.Named("readLoop")

	defer func() {
		t.cancel()

		// Stop reading, but allow writes to drain
		err := t.conn.CloseRead()
		if err != nil && !strings.Contains(err.Error(), "transport endpoint is not connected") {
			log.Warn("Failed to close reads on connection cleanly",
				zap.Error(err))
		}

		log.Debug("Read loop exited")
	}()

	var framer protocol.FrameReader

	buf := make([]byte, 4096)

	for t.isRunning() {
		n, err := t.conn.Read(buf)
		if err != nil {
			if t.isRunning() && !errors.Is(err, net.ErrClosed) {
				log.Debug("Connection read failed", zap.Error(err))
			}

			return
		}

		if t.trace {
			log.Debug("READ", zap.String("data", hex.EncodeToString(buf[:n])))
		}

		framer.Feed(buf[:n])

		for {
			m, ok, err := framer.Next()
			if err != nil {
				// The frame itself is broken; report and hang up.
				t.writeError(protocol.CodeFor(err))
				log.Warn("Invalid frame", zap.Error(err))

				return
			}

			if !ok {
				break
			}

			if done := t.handleMessage(m); done {
				return
			}
		}
	}
}

// handleMessage advances the connection state machine by one inbound
// message. It returns true when the connection must close.
func (t *TCPConn) handleMessage(m protocol.Message) bool {
	metrics.RecordFrameRead(m.Type.String())

	t.stateMu.Lock()
	state := t.state
	t.stateMu.Unlock()

	switch state {
	case awaitingInitial:
		return t.handleHandshake(m)
	case active:
		return t.handleActive(m)
	default:
		return true
	}
}

func (t *TCPConn) handleHandshake(m protocol.Message) bool {
	if m.Type != protocol.InitialMessage {
		t.writeError(protocol.CodeFor(protocol.ErrNotFirstMessage))
		return true
	}

	if err := m.CheckInitial(); err != nil {
		t.writeError(protocol.CodeFor(err))
		t.log.Warn("Handshake rejected", zap.Error(err))

		return true
	}

	if err := t.WriteMessage(protocol.NewRepresentationMessage()); err != nil {
		return true
	}

	name := t.reg.AcquireName()

	t.stateMu.Lock()
	t.state = active
	t.connCtx = &dispatch.ConnContext{
		Name:  name,
		Token: t.reg.Issue(name),
	}
	t.stateMu.Unlock()

	metrics.ConnOpened()
	t.log.Info("Handshake complete", zap.String("conn", name))

	return false
}

func (t *TCPConn) handleActive(m protocol.Message) bool {
	switch m.Type {
	case protocol.InitialMessage:
		t.writeError(protocol.CodeFor(protocol.ErrMoreThanOneInitialMessage))
		return true

	case protocol.RepresentationMessage:
		t.writeError(protocol.CodeFor(protocol.ErrUnexpectedRepresentation))
		return true

	case protocol.DiplomacyMessage:
		t.handleRequest(m.Payload)
		return false

	case protocol.FinalMessage:
		t.log.Info("Client signed off")
		return true

	case protocol.ErrorMessage:
		if code, ok := m.Code(); ok {
			t.log.Warn("Client reported an error", zap.Uint8("code", uint8(code)))
		}

		return true

	default:
		return true
	}
}

// handleRequest parses one Diplomacy payload and dispatches it. Syntax
// errors answer with HUH and unbalanced parentheses with PRN; the
// connection stays open in both cases.
func (t *TCPConn) handleRequest(payload []byte) {
	tokens, err := protocol.TokensFromBytes(payload)
	if err != nil {
		// A payload that does not decode still only poisons this one
		// request. Salvage the decodable prefix so the HUH can mark
		// where it went bad; the connection stays open.
		metrics.RecordProtocolError(byte(protocol.CodeFor(err)))
		t.log.Debug("Undecodable request payload", zap.Error(err))

		prefix := make([]protocol.Token, 0, len(payload)/2)

		for i := 0; i+1 < len(payload); i += 2 {
			tok, derr := protocol.Decode(payload[i], payload[i+1])
			if derr != nil {
				break
			}

			prefix = append(prefix, tok)
		}

		if werr := t.Send(protocol.NewHuh(prefix, len(prefix))); werr != nil {
			t.log.Warn("Failed to send HUH", zap.Error(werr))
		}

		return
	}

	if !protocol.Balanced(tokens) {
		t.log.Debug("Unbalanced parentheses in request")

		if werr := t.Send(&protocol.PrnResponse{Echo: tokens}); werr != nil {
			t.log.Warn("Failed to send PRN", zap.Error(werr))
		}

		return
	}

	req, err := protocol.ParseRequestTokens(tokens)
	if err != nil {
		at := len(tokens)
		if errors.Is(err, protocol.ErrUnknownCommand) {
			at = 0
		}

		t.log.Debug("Unparseable request", zap.Error(err))

		if werr := t.Send(protocol.NewHuh(tokens, at)); werr != nil {
			t.log.Warn("Failed to send HUH", zap.Error(werr))
		}

		return
	}

	t.stateMu.Lock()
	ctx := t.connCtx
	t.stateMu.Unlock()

	if ctx == nil {
		return
	}

	metrics.RecordRequest(req.Verb().String())

	for _, reply := range t.dispatcher.HandleRequest(ctx, req) {
		if err := t.Send(reply); err != nil {
			t.log.Warn("Failed to send reply", zap.Error(err))
		}
	}
}

// Translate renders a game event for this connection. Connections still
// in the handshake see nothing.
func (t *TCPConn) Translate(ev game.Event) []protocol.Reply {
	t.stateMu.Lock()
	ctx := t.connCtx
	state := t.state
	t.stateMu.Unlock()

	if state != active || ctx == nil {
		return nil
	}

	return t.dispatcher.TranslateEvent(ctx, ev)
}

// Send queues one reply for the write loop.
func (t *TCPConn) Send(r protocol.Reply) error {
	return t.WriteMessage(protocol.ReplyMessage(r))
}

// WriteMessage frames a message into the write queue.
func (t *TCPConn) WriteMessage(m protocol.Message) error {
	var buf bytes.Buffer

	if err := protocol.WriteMessage(&buf, m); err != nil {
		return err
	}

	metrics.RecordFrameWritten(m.Type.String())

	if t.trace {
		t.log.Debug("WRITE", zap.String("data", hex.EncodeToString(buf.Bytes())))
	}

	if t.isRunning() {
		select {
		case t.writeQueue <- buf.Bytes():
		case <-t.ctx.Done():
		}
	}

	return nil
}

// writeError queues a closing Error frame. The write loop drains before
// the socket goes away, so the peer usually sees it.
func (t *TCPConn) writeError(code protocol.ErrorCode) {
	metrics.RecordProtocolError(byte(code))

	if err := t.WriteMessage(protocol.NewErrorMessage(code)); err != nil {
		t.log.Warn("Failed to queue error frame", zap.Error(err))
	}
}

func (t *TCPConn) WriteLoop() {
	log := t.log.Named("writeLoop")

	defer func() {
		err := t.conn.CloseWrite()
		if err != nil && !strings.Contains(err.Error(), "transport endpoint is not connected") {
			log.Warn("Failed to close writes on connection cleanly",
				zap.Error(err))
		}

		log.Debug("Write loop exited")
	}()

	for {
		select {
		case <-t.ctx.Done():
			// Drain anything the read loop queued before cancelling so
			// closing Error frames reach the peer.
			for {
				select {
				case data := <-t.writeQueue:
					if _, err := t.conn.Write(data); err != nil {
						return
					}
				default:
					return
				}
			}

		case data := <-t.writeQueue:
			if data == nil {
				log.Debug("Write loop terminating as write queue has closed")
				return
			}

			if _, err := t.conn.Write(data); err != nil {
				log.Warn("Failed to write from write queue", zap.Error(err))
				return
			}
		}
	}
}

// isRunning returns true if Close has not been called
func (t *TCPConn) isRunning() bool {
	select {
	case <-t.ctx.Done():
		// if we can read on this channel then it's been closed
		return false

	default:
		return true
	}
}
