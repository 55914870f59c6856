package dispatch_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/trieste/parley/dispatch"
	"github.com/trieste/parley/game"
	"github.com/trieste/parley/protocol"
	"github.com/trieste/parley/session"
	"github.com/trieste/parley/variant"
)

func mustOrder(power, notation string, phase byte) protocol.Order {
	o, err := protocol.OrderFromString(power, notation, phase)
	Expect(err).To(Succeed())

	return o
}

var _ = Describe("Dispatcher", func() {
	var (
		model *stubModel
		reg   *session.Registry
		d     *dispatch.Dispatcher
		ctx   *dispatch.ConnContext
	)

	newConn := func(name string) *dispatch.ConnContext {
		return &dispatch.ConnContext{Name: name, Token: reg.Issue(name)}
	}

	join := func(c *dispatch.ConnContext) []protocol.Reply {
		return d.HandleRequest(c, &protocol.NameRequest{
			ClientName:    "TestBot",
			ClientVersion: "1.0",
		})
	}

	BeforeEach(func() {
		model = newStubModel()
		reg = session.NewRegistry()
		d = dispatch.New(
			dispatch.Config{PressLevel: 8000},
			model, reg, variant.Standard(), zap.NewNop(),
		)
		ctx = newConn("conn-1")
	})

	Describe("NME", func() {
		It("assigns powers in variant order and accepts", func() {
			replies := join(ctx)
			Expect(replies).To(HaveLen(2))

			_, ok := replies[0].(*protocol.YesResponse)
			Expect(ok).To(BeTrue())

			mapR, ok := replies[1].(*protocol.MapResponse)
			Expect(ok).To(BeTrue())
			Expect(mapR.Name).To(Equal("standard"))

			Expect(ctx.Power()).To(Equal("AUSTRIA"))

			other := newConn("conn-2")
			join(other)
			Expect(other.Power()).To(Equal("ENGLAND"))
		})

		It("records a claim the power can be reclaimed with", func() {
			join(ctx)

			code, ok := reg.Passcode("AUSTRIA")
			Expect(ok).To(BeTrue())
			Expect(code).To(BeNumerically(">", 0))
		})

		It("rejects a second introduction on the same connection", func() {
			join(ctx)

			replies := join(ctx)
			Expect(replies).To(HaveLen(1))

			_, ok := replies[0].(*protocol.RejResponse)
			Expect(ok).To(BeTrue())
		})

		It("rejects joining once the game has started", func() {
			model.status = game.Active

			replies := join(ctx)
			_, ok := replies[0].(*protocol.RejResponse)
			Expect(ok).To(BeTrue())
			Expect(ctx.Power()).To(BeEmpty())
		})

		It("starts the game when the last seat fills", func() {
			for i := 0; i < 7; i++ {
				join(newConn("conn"))
			}

			Expect(model.started).To(BeTrue())
		})
	})

	Describe("OBS", func() {
		It("accepts and marks the connection as an observer", func() {
			replies := d.HandleRequest(ctx, &protocol.ObserverRequest{})
			Expect(replies).To(HaveLen(2))
			Expect(ctx.Observer()).To(BeTrue())
			Expect(ctx.Power()).To(BeEmpty())
		})
	})

	Describe("IAM", func() {
		It("reseats a reconnecting power and lifts civil disorder", func() {
			join(ctx)
			code, _ := reg.Passcode("AUSTRIA")
			model.status = game.Active

			again := newConn("conn-2")
			aus, _ := protocol.PowerFromName("AUSTRIA")

			replies := d.HandleRequest(again, &protocol.IAmRequest{Power: aus, Passcode: code})
			_, ok := replies[0].(*protocol.YesResponse)
			Expect(ok).To(BeTrue())
			Expect(again.Power()).To(Equal("AUSTRIA"))
			Expect(model.disorder["AUSTRIA"]).To(BeFalse())
		})

		It("rejects a wrong passcode", func() {
			join(ctx)
			code, _ := reg.Passcode("AUSTRIA")

			again := newConn("conn-2")
			aus, _ := protocol.PowerFromName("AUSTRIA")

			replies := d.HandleRequest(again, &protocol.IAmRequest{Power: aus, Passcode: code + 1})
			_, ok := replies[0].(*protocol.RejResponse)
			Expect(ok).To(BeTrue())
			Expect(again.Power()).To(BeEmpty())
		})
	})

	Describe("SUB", func() {
		BeforeEach(func() {
			join(ctx)
			model.status = game.Active
		})

		It("forwards orders and thanks each one", func() {
			hold := mustOrder("AUSTRIA", "A VIE H", 'M')

			replies := d.HandleRequest(ctx, &protocol.SubmitRequest{Orders: []protocol.Order{hold}})
			Expect(replies).To(HaveLen(2))

			thx, ok := replies[0].(*protocol.ThxResponse)
			Expect(ok).To(BeTrue())
			Expect(thx.Note).To(Equal(protocol.MBV))

			_, ok = replies[1].(*protocol.MisResponse)
			Expect(ok).To(BeTrue())

			Expect(model.submitted["AUSTRIA"]).To(Equal([]string{"A VIE H"}))
		})

		It("relays the model's note for a refused order", func() {
			model.notes = []string{"NSU"}
			move := mustOrder("AUSTRIA", "A MUN - BER", 'M')

			replies := d.HandleRequest(ctx, &protocol.SubmitRequest{Orders: []protocol.Order{move}})

			nsu, _ := protocol.FromSymbol("NSU")
			thx := replies[0].(*protocol.ThxResponse)
			Expect(thx.Note).To(Equal(nsu))
		})

		It("rejects a submission naming a stale phase", func() {
			turn, err := protocol.TurnFromString("F1901M")
			Expect(err).To(Succeed())

			hold := mustOrder("AUSTRIA", "A VIE H", 'M')
			replies := d.HandleRequest(ctx, &protocol.SubmitRequest{
				Turn:   &turn,
				Orders: []protocol.Order{hold},
			})

			_, ok := replies[0].(*protocol.RejResponse)
			Expect(ok).To(BeTrue())
			Expect(model.submitted).To(BeEmpty())
		})

		It("rejects an empty submission", func() {
			replies := d.HandleRequest(ctx, &protocol.SubmitRequest{})

			_, ok := replies[0].(*protocol.RejResponse)
			Expect(ok).To(BeTrue())
		})
	})

	Describe("GOF and NOT", func() {
		BeforeEach(func() {
			join(ctx)
			model.status = game.Active
		})

		It("marks the power ready on GOF", func() {
			replies := d.HandleRequest(ctx, &protocol.GoFlagRequest{})

			_, ok := replies[0].(*protocol.YesResponse)
			Expect(ok).To(BeTrue())
			Expect(model.ready["AUSTRIA"]).To(BeTrue())
		})

		It("unmarks it on NOT (GOF)", func() {
			d.HandleRequest(ctx, &protocol.GoFlagRequest{})
			d.HandleRequest(ctx, &protocol.NotRequest{Inner: &protocol.GoFlagRequest{}})

			Expect(model.ready["AUSTRIA"]).To(BeFalse())
		})

		It("clears stored orders on NOT (SUB)", func() {
			hold := mustOrder("AUSTRIA", "A VIE H", 'M')
			d.HandleRequest(ctx, &protocol.SubmitRequest{Orders: []protocol.Order{hold}})

			replies := d.HandleRequest(ctx, &protocol.NotRequest{Inner: &protocol.SubmitRequest{}})

			_, ok := replies[0].(*protocol.YesResponse)
			Expect(ok).To(BeTrue())
			Expect(model.cleared).To(ContainElement("AUSTRIA"))
			Expect(model.submitted).To(BeEmpty())
		})
	})

	Describe("DRW", func() {
		BeforeEach(func() {
			join(ctx)
			model.status = game.Active
		})

		It("registers a draw vote", func() {
			replies := d.HandleRequest(ctx, &protocol.DrawRequest{})

			_, ok := replies[0].(*protocol.YesResponse)
			Expect(ok).To(BeTrue())
			Expect(model.draws["AUSTRIA"]).To(BeTrue())
		})

		It("rejects a partial draw proposal", func() {
			eng, _ := protocol.PowerFromName("ENGLAND")

			replies := d.HandleRequest(ctx, &protocol.DrawRequest{Powers: []protocol.Power{eng}})
			_, ok := replies[0].(*protocol.RejResponse)
			Expect(ok).To(BeTrue())
			Expect(model.draws).To(BeEmpty())
		})

		It("withdraws the vote on NOT (DRW)", func() {
			d.HandleRequest(ctx, &protocol.DrawRequest{})
			d.HandleRequest(ctx, &protocol.NotRequest{Inner: &protocol.DrawRequest{}})

			Expect(model.draws["AUSTRIA"]).To(BeFalse())
		})
	})

	Describe("SND", func() {
		BeforeEach(func() {
			join(ctx)
			model.status = game.Active
		})

		It("relays press to the model", func() {
			eng, _ := protocol.PowerFromName("ENGLAND")
			pce, err := protocol.FromSymbol("PCE")
			Expect(err).To(Succeed())

			replies := d.HandleRequest(ctx, &protocol.SendRequest{
				To:    []protocol.Power{eng},
				Press: []protocol.Token{pce},
			})

			_, ok := replies[0].(*protocol.YesResponse)
			Expect(ok).To(BeTrue())
			Expect(model.press).To(HaveLen(1))
			Expect(model.press[0].from).To(Equal("AUSTRIA"))
			Expect(model.press[0].to).To(Equal([]string{"ENGLAND"}))
		})

		It("rejects press when the server runs at level zero", func() {
			noPress := dispatch.New(dispatch.Config{}, model, reg, variant.Standard(), zap.NewNop())
			eng, _ := protocol.PowerFromName("ENGLAND")

			replies := noPress.HandleRequest(ctx, &protocol.SendRequest{To: []protocol.Power{eng}})
			_, ok := replies[0].(*protocol.RejResponse)
			Expect(ok).To(BeTrue())
			Expect(model.press).To(BeEmpty())
		})
	})

	Describe("HST", func() {
		It("replays the stored results of an earlier turn", func() {
			model.history["S1901M"] = []game.OrderResult{
				{Power: "AUSTRIA", Order: "A VIE H", Result: "SUC"},
			}

			join(ctx)
			turn, _ := protocol.TurnFromString("S1901M")

			replies := d.HandleRequest(ctx, &protocol.HistoryRequest{Turn: turn})
			Expect(replies).To(HaveLen(1))

			ord, ok := replies[0].(*protocol.OrdNotification)
			Expect(ok).To(BeTrue())
			Expect(ord.Order.String()).To(Equal("A VIE H"))
		})

		It("rejects a turn the model never adjudicated", func() {
			join(ctx)
			turn, _ := protocol.TurnFromString("W1899A")

			replies := d.HandleRequest(ctx, &protocol.HistoryRequest{Turn: turn})
			_, ok := replies[0].(*protocol.RejResponse)
			Expect(ok).To(BeTrue())
		})
	})

	Describe("YES (MAP)", func() {
		It("sends the opening state once the game is on", func() {
			join(ctx)
			model.status = game.Active

			replies := d.HandleRequest(ctx, &protocol.AcceptRequest{
				Echo: []protocol.Token{protocol.MAP},
			})
			Expect(len(replies)).To(BeNumerically(">=", 3))

			_, ok := replies[0].(*protocol.HelloResponse)
			Expect(ok).To(BeTrue())
			_, ok = replies[1].(*protocol.ScoResponse)
			Expect(ok).To(BeTrue())
			_, ok = replies[2].(*protocol.NowResponse)
			Expect(ok).To(BeTrue())
		})

		It("stays quiet while the game is still forming", func() {
			join(ctx)

			replies := d.HandleRequest(ctx, &protocol.AcceptRequest{
				Echo: []protocol.Token{protocol.MAP},
			})
			Expect(replies).To(BeEmpty())
		})
	})

	Describe("ConnectionClosed", func() {
		It("reopens the seat while the game is forming", func() {
			join(ctx)
			d.ConnectionClosed(ctx)

			next := newConn("conn-2")
			join(next)
			Expect(next.Power()).To(Equal("AUSTRIA"))
		})

		It("flags civil disorder once the game is running", func() {
			join(ctx)
			model.status = game.Active

			d.ConnectionClosed(ctx)
			Expect(model.disorder["AUSTRIA"]).To(BeTrue())
		})
	})

	Describe("TranslateEvent", func() {
		var england *dispatch.ConnContext

		BeforeEach(func() {
			join(ctx)
			england = newConn("conn-2")
			join(england)
			model.status = game.Active
		})

		It("routes press to its recipients only", func() {
			pce, _ := protocol.FromSymbol("PCE")
			ev := game.Event{
				Kind: game.MessageReceived,
				From: "AUSTRIA",
				To:   []string{"ENGLAND"},
				Body: protocol.BytesFromTokens([]protocol.Token{pce}),
			}

			Expect(d.TranslateEvent(ctx, ev)).To(BeEmpty())

			replies := d.TranslateEvent(england, ev)
			Expect(replies).To(HaveLen(1))

			frm, ok := replies[0].(*protocol.FrmNotification)
			Expect(ok).To(BeTrue())
			Expect(frm.From.Name()).To(Equal("AUSTRIA"))
			Expect(frm.Press).To(Equal([]protocol.Token{pce}))
		})

		It("skips connections that never joined", func() {
			stranger := newConn("conn-3")
			ev := game.Event{Kind: game.StatusChanged, Status: game.Active}

			Expect(d.TranslateEvent(stranger, ev)).To(BeEmpty())
		})

		It("tolerates event delivery racing a late introduction", func() {
			stranger := newConn("conn-3")
			ev := game.Event{
				Kind:   game.PhaseProcessed,
				Phase:  "S1901M",
				Status: game.Active,
				Results: []game.OrderResult{
					{Power: "AUSTRIA", Order: "A VIE H", Result: "SUC"},
				},
			}

			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 500; i++ {
					d.TranslateEvent(stranger, ev)
				}
			}()

			d.HandleRequest(stranger, &protocol.ObserverRequest{})
			<-done

			Expect(stranger.Observer()).To(BeTrue())
		})

		It("renders phase results as ORD notifications", func() {
			ev := game.Event{
				Kind:   game.PhaseProcessed,
				Phase:  "S1901M",
				Status: game.Active,
				Results: []game.OrderResult{
					{Power: "AUSTRIA", Order: "A VIE H", Result: "SUC"},
				},
			}

			replies := d.TranslateEvent(england, ev)
			Expect(len(replies)).To(BeNumerically(">=", 3))

			ord, ok := replies[0].(*protocol.OrdNotification)
			Expect(ok).To(BeTrue())
			Expect(ord.Turn.String()).To(Equal("S1901M"))
		})

		It("announces a solo and signs everyone off", func() {
			ev := game.Event{
				Kind:   game.StatusChanged,
				Status: game.Completed,
				Winner: "AUSTRIA",
			}

			replies := d.TranslateEvent(england, ev)
			Expect(replies).To(HaveLen(3))

			slo, ok := replies[0].(*protocol.SloNotification)
			Expect(ok).To(BeTrue())
			Expect(slo.Power.Name()).To(Equal("AUSTRIA"))

			_, ok = replies[1].(*protocol.SmrNotification)
			Expect(ok).To(BeTrue())
			_, ok = replies[2].(*protocol.OffNotification)
			Expect(ok).To(BeTrue())
		})
	})
})
