// Package client is a minimal protocol client: it runs the handshake,
// frames outbound requests and splits inbound traffic into answers and
// pushed notifications. Bots and tests build on it.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/trieste/parley/protocol"
)

var (
	ErrRejected     = errors.New("server rejected the request")
	ErrDisconnected = errors.New("connection is closed")
)

// answerVerbs are the verbs the server only ever sends as a direct
// answer to something the client asked. Everything else is routed to the
// notification channel.
var answerVerbs = map[protocol.Token]bool{
	protocol.YES: true,
	protocol.REJ: true,
	protocol.HUH: true,
	protocol.PRN: true,
	protocol.THX: true,
	protocol.MIS: true,
}

type Conn struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn *net.TCPConn

	answers       chan []protocol.Token
	notifications chan []protocol.Token

	writeMu sync.Mutex

	log *zap.Logger
}

func New(log *zap.Logger) *Conn {
	return &Conn{
		answers:       make(chan []protocol.Token, 63),
		notifications: make(chan []protocol.Token, 255),
		log:           log,
	}
}

// Connect dials the server and runs the Initial/Representation
// handshake before returning.
func (c *Conn) Connect(ctx context.Context, addr string) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}

	c.conn = conn.(*net.TCPConn)

	if err := protocol.WriteMessage(c.conn, protocol.NewInitialMessage()); err != nil {
		c.conn.Close()
		return err
	}

	m, err := protocol.ReadMessage(c.conn)
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("handshake read failed: %w", err)
	}

	if m.Type != protocol.RepresentationMessage {
		c.conn.Close()
		return fmt.Errorf("handshake answered with %s: %w", m.Type, protocol.ErrUnknownMessageType)
	}

	go c.readLoop()

	return nil
}

// Disconnect sends a Final frame and closes the socket.
func (c *Conn) Disconnect() error {
	c.cancel()

	werr := c.writeMessage(protocol.NewFinalMessage())

	if err := c.conn.Close(); err != nil {
		return err
	}

	return werr
}

// Notifications carries everything the server pushes unprompted: HLO,
// MAP, SCO, NOW, ORD, FRM and the rest.
func (c *Conn) Notifications() <-chan []protocol.Token {
	return c.notifications
}

// Send frames one request.
func (c *Conn) Send(req protocol.Request) error {
	return c.writeMessage(protocol.NewDiplomacyMessage(req.Tokens()))
}

// Answer waits for the next direct answer (YES, REJ, HUH, PRN, THX or
// MIS).
func (c *Conn) Answer(ctx context.Context) ([]protocol.Token, error) {
	select {
	case ts, ok := <-c.answers:
		if !ok {
			return nil, ErrDisconnected
		}

		return ts, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// === typed helpers

// Name introduces the client with NME and waits for the verdict.
func (c *Conn) Name(ctx context.Context, name, version string) error {
	return c.ask(ctx, &protocol.NameRequest{ClientName: name, ClientVersion: version})
}

// Observe joins as a non-playing observer.
func (c *Conn) Observe(ctx context.Context) error {
	return c.ask(ctx, &protocol.ObserverRequest{})
}

// Rejoin reclaims a power with IAM after a reconnect.
func (c *Conn) Rejoin(ctx context.Context, power protocol.Power, passcode int) error {
	return c.ask(ctx, &protocol.IAmRequest{Power: power, Passcode: passcode})
}

// Submit sends orders and collects one THX note per order.
func (c *Conn) Submit(ctx context.Context, req *protocol.SubmitRequest) ([][]protocol.Token, error) {
	if err := c.Send(req); err != nil {
		return nil, err
	}

	notes := make([][]protocol.Token, 0, len(req.Orders))

	for len(notes) < len(req.Orders) {
		ts, err := c.Answer(ctx)
		if err != nil {
			return notes, err
		}

		switch ts[0] {
		case protocol.THX:
			notes = append(notes, ts)
		case protocol.REJ, protocol.HUH, protocol.PRN:
			return notes, fmt.Errorf("%s: %w", ts[0], ErrRejected)
		}
	}

	return notes, nil
}

// Ready raises the GOF flag.
func (c *Conn) Ready(ctx context.Context) error {
	return c.ask(ctx, &protocol.GoFlagRequest{})
}

// VoteDraw votes DRW.
func (c *Conn) VoteDraw(ctx context.Context) error {
	return c.ask(ctx, &protocol.DrawRequest{})
}

// ask sends a request and interprets the next answer as its verdict.
func (c *Conn) ask(ctx context.Context, req protocol.Request) error {
	if err := c.Send(req); err != nil {
		return err
	}

	ts, err := c.Answer(ctx)
	if err != nil {
		return err
	}

	if ts[0] != protocol.YES {
		return fmt.Errorf("%s answered with %s: %w", req.Verb(), ts[0], ErrRejected)
	}

	return nil
}

func (c *Conn) readLoop() {
	log := c.log.Named("readLoop")

	defer func() {
		close(c.answers)
		close(c.notifications)
	}()

	for {
		m, err := protocol.ReadMessage(c.conn)
		if err != nil {
			if c.isRunning() {
				log.Warn("Failed to read server message", zap.Error(err))
			}

			return
		}

		switch m.Type {
		case protocol.DiplomacyMessage:
			c.route(m.Payload, log)

		case protocol.FinalMessage:
			log.Info("Server signed off")
			return

		case protocol.ErrorMessage:
			if code, ok := m.Code(); ok {
				log.Warn("Server reported an error", zap.Uint8("code", uint8(code)))
			}

			return

		default:
			log.Warn("Unexpected message type", zap.String("type", m.Type.String()))
			return
		}
	}
}

func (c *Conn) route(payload []byte, log *zap.Logger) {
	tokens, err := protocol.TokensFromBytes(payload)
	if err != nil || len(tokens) == 0 {
		log.Warn("Undecodable payload", zap.Error(err))
		return
	}

	if answerVerbs[tokens[0]] {
		select {
		case c.answers <- tokens:
		case <-c.ctx.Done():
		}

		return
	}

	select {
	case c.notifications <- tokens:
	default:
		// A slow consumer drops notifications rather than wedging the
		// read loop.
		log.Warn("Notification dropped", zap.String("verb", tokens[0].String()))
	}
}

func (c *Conn) isRunning() bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
		return true
	}
}

func (c *Conn) writeMessage(m protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return protocol.WriteMessage(c.conn, m)
}
