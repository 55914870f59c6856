package client_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/trieste/parley/client"
	"github.com/trieste/parley/dispatch"
	"github.com/trieste/parley/game"
	"github.com/trieste/parley/protocol"
	"github.com/trieste/parley/session"
	"github.com/trieste/parley/transport"
	"github.com/trieste/parley/variant"
)

const testAddr = "0.0.0.0:16683"

var _ = Describe("client / Conn", func() {
	var tcp *transport.TCP

	BeforeEach(func() {
		log := zap.NewNop()
		v := variant.Standard()
		model := game.NewInmemoryGame(v, 0, log)
		reg := session.NewRegistry()
		disp := dispatch.New(dispatch.Config{PressLevel: 8000}, model, reg, v, log)

		tcp = transport.NewTCP(transport.Options{
			Log:        log,
			Host:       "0.0.0.0",
			Port:       16683,
			Dispatcher: disp,
			Registry:   reg,
			Model:      model,
		})

		Expect(tcp.Start(context.Background())).To(Succeed())

		// Wait for the TCP server to be listening.
		time.Sleep(100 * time.Millisecond)
	})

	AfterEach(func() {
		Expect(tcp.Close()).To(Succeed())
	})

	connect := func() *client.Conn {
		c := client.New(zap.NewNop())
		Expect(c.Connect(context.Background(), testAddr)).To(Succeed())

		return c
	}

	It("completes the handshake on Connect", func() {
		c := connect()
		defer c.Disconnect()
	})

	It("fails to connect when nothing is listening", func() {
		c := client.New(zap.NewNop())
		Expect(c.Connect(context.Background(), "127.0.0.1:1")).NotTo(Succeed())
	})

	Describe("Name()", func() {
		It("joins the game and receives the map as a notification", func() {
			c := connect()
			defer c.Disconnect()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			Expect(c.Name(ctx, "TestBot", "1.0")).To(Succeed())

			select {
			case ts := <-c.Notifications():
				Expect(ts[0]).To(Equal(protocol.MAP))
			case <-ctx.Done():
				Fail("the map never arrived")
			}
		})

		It("surfaces a rejection", func() {
			c := connect()
			defer c.Disconnect()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			Expect(c.Name(ctx, "TestBot", "1.0")).To(Succeed())

			err := c.Name(ctx, "TestBot", "1.0")
			Expect(errors.Is(err, client.ErrRejected)).To(BeTrue())
		})
	})

	Describe("Observe()", func() {
		It("joins as an observer", func() {
			c := connect()
			defer c.Disconnect()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			Expect(c.Observe(ctx)).To(Succeed())
		})
	})

	Describe("Disconnect()", func() {
		It("drains pending answers with ErrDisconnected", func() {
			c := connect()
			Expect(c.Disconnect()).To(Succeed())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, err := c.Answer(ctx)
			Expect(errors.Is(err, client.ErrDisconnected)).To(BeTrue())
		})
	})
})
