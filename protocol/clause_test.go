package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/trieste/parley/protocol"
)

var _ = Describe("Clauses", func() {
	Describe("Power", func() {
		It("maps tokens to full names and back", func() {
			p, err := protocol.PowerFromName("ENGLAND")
			Expect(err).To(Succeed())
			Expect(p.Token).To(Equal(protocol.ENG))
			Expect(p.Name()).To(Equal("ENGLAND"))
		})

		It("fails on names outside the map", func() {
			_, err := protocol.PowerFromName("ATLANTIS")
			Expect(err).NotTo(Succeed())
		})
	})

	Describe("Province", func() {
		It("round trips a coasted province through its wire form", func() {
			p, err := protocol.ProvinceFromString("STP/NC")
			Expect(err).To(Succeed())
			Expect(p.String()).To(Equal("STP/NC"))

			parsed, rest, err := protocol.ParseProvince(p.Tokens(), protocol.Raise)
			Expect(err).To(Succeed())
			Expect(rest).To(BeEmpty())
			Expect(parsed).To(Equal(p))
		})

		It("renders a plain province as a single token", func() {
			p, err := protocol.ProvinceFromString("PAR")
			Expect(err).To(Succeed())
			Expect(p.Tokens()).To(HaveLen(1))
		})

		It("rejects coast qualifiers it does not know", func() {
			_, err := protocol.ProvinceFromString("STP/XX")
			Expect(errors.Is(err, protocol.ErrMalformedClause)).To(BeTrue())
		})
	})

	Describe("Turn", func() {
		It("renders phase notation with a four digit year", func() {
			t := protocol.Turn{Season: protocol.SPR, Year: 1901}
			Expect(t.String()).To(Equal("S1901M"))
		})

		It("parses both four and two digit years", func() {
			long, err := protocol.TurnFromString("F1905M")
			Expect(err).To(Succeed())

			short, err := protocol.TurnFromString("F05M")
			Expect(err).To(Succeed())

			Expect(short).To(Equal(long))
			Expect(long.Season).To(Equal(protocol.FAL))
			Expect(long.Year).To(Equal(1905))
		})

		It("round trips through its wire form", func() {
			t := protocol.Turn{Season: protocol.WIN, Year: 1903}

			parsed, rest, err := protocol.ParseTurn(t.Tokens(), protocol.Raise)
			Expect(err).To(Succeed())
			Expect(rest).To(BeEmpty())
			Expect(parsed).To(Equal(t))
			Expect(parsed.String()).To(Equal("W1903A"))
		})
	})

	Describe("Policy", func() {
		It("Ignore leaves the cursor where it was on a parse failure", func() {
			ts := []protocol.Token{protocol.NME}

			_, rest, err := protocol.ParseTurn(ts, protocol.Ignore)
			Expect(err).To(Succeed())
			Expect(rest).To(Equal(ts))
		})

		It("Raise surfaces the error", func() {
			_, _, err := protocol.ParseTurn([]protocol.Token{protocol.NME}, protocol.Raise)
			Expect(errors.Is(err, protocol.ErrMalformedClause)).To(BeTrue())
		})
	})

	Describe("Balanced", func() {
		It("accepts nested matching parens", func() {
			ts := []protocol.Token{
				protocol.OpenParen, protocol.OpenParen, protocol.GOF,
				protocol.CloseParen, protocol.CloseParen,
			}
			Expect(protocol.Balanced(ts)).To(BeTrue())
		})

		It("rejects a missing close", func() {
			ts := []protocol.Token{protocol.NOT, protocol.OpenParen, protocol.GOF}
			Expect(protocol.Balanced(ts)).To(BeFalse())
		})

		It("rejects a close before any open", func() {
			ts := []protocol.Token{protocol.CloseParen, protocol.OpenParen}
			Expect(protocol.Balanced(ts)).To(BeFalse())
		})
	})

	Describe("Text clauses", func() {
		It("round trips quoted text", func() {
			ts := protocol.TextClauseTokens("Albert")

			s, rest, err := protocol.ParseText(ts, protocol.Raise)
			Expect(err).To(Succeed())
			Expect(rest).To(BeEmpty())
			Expect(s).To(Equal("Albert"))
		})
	})

	Describe("Unit", func() {
		It("round trips an owned unit", func() {
			eng, _ := protocol.PowerFromName("ENGLAND")
			lvp, _ := protocol.ProvinceFromString("LVP")
			u := protocol.Unit{Power: eng, Type: protocol.AMY, Province: lvp}

			Expect(u.String()).To(Equal("A LVP"))

			parsed, rest, err := protocol.ParseUnit(u.Tokens(), protocol.Raise)
			Expect(err).To(Succeed())
			Expect(rest).To(BeEmpty())
			Expect(parsed).To(Equal(u))
		})
	})
})
