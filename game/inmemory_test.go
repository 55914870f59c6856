package game_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/trieste/parley/game"
	"github.com/trieste/parley/variant"
)

var _ = Describe("game / InmemoryGame", func() {
	var g *game.InmemoryGame

	newGame := func() *game.InmemoryGame {
		return game.NewInmemoryGame(variant.Standard(), 0, zap.NewNop())
	}

	BeforeEach(func() {
		g = newGame()
	})

	AfterEach(func() {
		Expect(g.Close()).To(Succeed())
	})

	It("sets up the board from the variant", func() {
		Expect(g.Status()).To(Equal(game.Forming))
		Expect(g.Phase()).To(Equal("S1901M"))
		Expect(g.MapName()).To(Equal("standard"))
		Expect(g.Powers()).To(HaveLen(7))

		aus, ok := g.Power("AUSTRIA")
		Expect(ok).To(BeTrue())
		Expect(aus.Centres).To(ConsistOf("BUD", "TRI", "VIE"))
		Expect(aus.Units).To(HaveLen(3))
	})

	Describe("Start()", func() {
		It("activates the game and announces it", func() {
			events := g.Events()

			g.Start()
			Expect(g.Status()).To(Equal(game.Active))

			ev := <-events
			Expect(ev.Kind).To(Equal(game.StatusChanged))
			Expect(ev.Status).To(Equal(game.Active))
		})

		It("is idempotent", func() {
			g.Start()
			g.Start()

			Expect(g.Status()).To(Equal(game.Active))
		})
	})

	Describe("SubmitOrders()", func() {
		It("refuses orders before the game starts", func() {
			_, err := g.SubmitOrders("AUSTRIA", "S1901M", []string{"A VIE H"})
			Expect(errors.Is(err, game.ErrGameOver)).To(BeTrue())
		})

		It("refuses orders for a stale phase", func() {
			g.Start()

			_, err := g.SubmitOrders("AUSTRIA", "F1901M", []string{"A VIE H"})
			Expect(errors.Is(err, game.ErrWrongPhase)).To(BeTrue())
		})

		It("notes each order, refusing units the power does not own", func() {
			g.Start()

			notes, err := g.SubmitOrders("AUSTRIA", "S1901M", []string{
				"A VIE H",
				"A LVP H", // England's army
			})
			Expect(err).To(Succeed())
			Expect(notes).To(Equal([]string{"MBV", "NSU"}))
		})

		It("tracks which units still lack orders", func() {
			g.Start()

			missing, _, err := g.Missing("AUSTRIA")
			Expect(err).To(Succeed())
			Expect(missing).To(HaveLen(3))

			_, err = g.SubmitOrders("AUSTRIA", "", []string{"A VIE H"})
			Expect(err).To(Succeed())

			missing, _, err = g.Missing("AUSTRIA")
			Expect(err).To(Succeed())
			Expect(missing).To(HaveLen(2))
		})
	})

	Describe("Process()", func() {
		It("applies uncontested moves and advances the turn", func() {
			g.Start()

			_, err := g.SubmitOrders("AUSTRIA", "", []string{"A VIE - GAL"})
			Expect(err).To(Succeed())

			events := g.Events()
			g.Process()

			Expect(g.Phase()).To(Equal("F1901M"))

			aus, _ := g.Power("AUSTRIA")
			provinces := []string{}
			for _, u := range aus.Units {
				provinces = append(provinces, u.Province)
			}

			Expect(provinces).To(ContainElement("GAL"))

			ev := <-events
			Expect(ev.Kind).To(Equal(game.PhaseProcessed))
			Expect(ev.Phase).To(Equal("S1901M"))
			Expect(ev.Results).To(HaveLen(1))
			Expect(ev.Results[0].Result).To(Equal("SUC"))
		})

		It("bounces contested moves", func() {
			g.Start()

			_, err := g.SubmitOrders("AUSTRIA", "", []string{"A VIE - GAL"})
			Expect(err).To(Succeed())
			_, err = g.SubmitOrders("RUSSIA", "", []string{"A WAR - GAL"})
			Expect(err).To(Succeed())

			g.Process()

			results, ok := g.History("S1901M")
			Expect(ok).To(BeTrue())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Result).To(Equal("BNC"))
			Expect(results[1].Result).To(Equal("BNC"))

			aus, _ := g.Power("AUSTRIA")
			for _, u := range aus.Units {
				Expect(u.Province).NotTo(Equal("GAL"))
			}
		})

		It("bounces a move into an occupied province", func() {
			g.Start()

			_, err := g.SubmitOrders("AUSTRIA", "", []string{"A BUD - VIE"})
			Expect(err).To(Succeed())

			g.Process()

			results, _ := g.History("S1901M")
			Expect(results[0].Result).To(Equal("BNC"))
		})

		It("steps spring, fall, winter and into the next year", func() {
			g.Start()

			g.Process()
			Expect(g.Phase()).To(Equal("F1901M"))

			g.Process()
			Expect(g.Phase()).To(Equal("W1901A"))

			g.Process()
			Expect(g.Phase()).To(Equal("S1902M"))
		})

		It("runs when the last power flags ready", func() {
			g.Start()

			for _, p := range g.Powers() {
				Expect(g.SetReady(p.Name, true)).To(Succeed())
			}

			Expect(g.Phase()).To(Equal("F1901M"))
		})
	})

	Describe("VoteDraw()", func() {
		It("ends the game when every survivor votes", func() {
			g.Start()
			events := g.Events()

			for _, p := range g.Powers() {
				Expect(g.VoteDraw(p.Name, true)).To(Succeed())
			}

			Expect(g.Status()).To(Equal(game.Completed))

			ev := <-events
			Expect(ev.Kind).To(Equal(game.StatusChanged))
			Expect(ev.Status).To(Equal(game.Completed))
			Expect(ev.Winner).To(BeEmpty())
			Expect(ev.DrawPowers).To(HaveLen(7))
		})

		It("keeps playing while any vote is withheld", func() {
			g.Start()

			Expect(g.VoteDraw("AUSTRIA", true)).To(Succeed())
			Expect(g.Status()).To(Equal(game.Active))
		})
	})

	Describe("SendPress()", func() {
		It("relays press as an event", func() {
			g.Start()
			events := g.Events()

			Expect(g.SendPress("AUSTRIA", []string{"ENGLAND"}, []byte{0x48, 0x0C})).To(Succeed())

			ev := <-events
			Expect(ev.Kind).To(Equal(game.MessageReceived))
			Expect(ev.From).To(Equal("AUSTRIA"))
			Expect(ev.To).To(Equal([]string{"ENGLAND"}))
			Expect(ev.Body).To(Equal([]byte{0x48, 0x0C}))
		})

		It("refuses press naming an unknown power", func() {
			g.Start()

			err := g.SendPress("AUSTRIA", []string{"ATLANTIS"}, nil)
			Expect(errors.Is(err, game.ErrNoSuchPower)).To(BeTrue())
		})
	})

	Describe("Cancel()", func() {
		It("announces the cancellation", func() {
			g.Start()
			events := g.Events()

			g.Cancel()
			Expect(g.Status()).To(Equal(game.Cancelled))

			ev := <-events
			Expect(ev.Status).To(Equal(game.Cancelled))
		})
	})

	Describe("Close()", func() {
		It("does not panic when closed twice", func() {
			fresh := newGame()

			Expect(func() { fresh.Close() }).NotTo(Panic())
			Expect(func() { fresh.Close() }).NotTo(Panic())
		})

		It("closes event subscriptions", func() {
			fresh := newGame()
			events := fresh.Events()

			Expect(fresh.Close()).To(Succeed())

			_, ok := <-events
			Expect(ok).To(BeFalse())
		})
	})
})
