package protocol

import (
	"fmt"
	"strings"
)

// Order is one parsed order clause. Which fields are set depends on the
// verb:
//
//	HLD DSB BLD REM  unit only
//	MTO RTO          unit + Dest
//	CTO              unit + Dest + Path (the convoying sea provinces)
//	SUP              unit + Target, plus Dest when supporting a move
//	CVY              unit + Target + Dest
//	WVE              bare Power, no unit
type Order struct {
	Power  Power // owner; from the unit for all verbs except WVE
	Unit   *Unit
	Verb   Token
	Dest   *Province
	Target *Unit
	Path   []Province
}

// ParseOrder reads one parenthesized order clause from the front of ts.
// Any unconsumed tokens left inside the group make the clause malformed.
func ParseOrder(ts []Token, pol Policy) (Order, []Token, error) {
	o, rest, err := parseOrder(ts)
	if err != nil {
		return Order{}, ts, pol.Apply(err)
	}

	return o, rest, nil
}

func parseOrder(ts []Token) (Order, []Token, error) {
	inner, rest, err := takeGroup(ts)
	if err != nil {
		return Order{}, ts, err
	}

	var o Order

	// A waive leads with a bare power; every other order leads with a
	// nested unit group.
	if len(inner) > 0 && inner[0].Category() == CatPowers {
		o.Power = Power{Token: inner[0]}
		inner = inner[1:]

		if len(inner) != 1 || inner[0] != WVE {
			return Order{}, ts, fmt.Errorf("bare power must be followed by WVE alone: %w", ErrMalformedClause)
		}

		o.Verb = WVE

		return o, rest, nil
	}

	unit, inner, err := parseUnit(inner)
	if err != nil {
		return Order{}, ts, err
	}

	o.Unit = &unit
	o.Power = unit.Power

	if len(inner) == 0 || inner[0].Category() != CatOrders {
		return Order{}, ts, fmt.Errorf("expected an order verb after the unit: %w", ErrMalformedClause)
	}

	o.Verb = inner[0]
	inner = inner[1:]

	switch o.Verb {
	case HLD, DSB, BLD, REM:
		// no arguments

	case MTO, RTO:
		var dest Province

		dest, inner, err = parseProvince(inner)
		if err != nil {
			return Order{}, ts, err
		}

		o.Dest = &dest

	case SUP:
		var target Unit

		target, inner, err = parseUnit(inner)
		if err != nil {
			return Order{}, ts, err
		}

		o.Target = &target

		// Supporting a move carries a further MTO destination.
		if len(inner) > 0 && inner[0] == MTO {
			var dest Province

			dest, inner, err = parseProvince(inner[1:])
			if err != nil {
				return Order{}, ts, err
			}

			o.Dest = &dest
		}

	case CVY:
		var target Unit

		target, inner, err = parseUnit(inner)
		if err != nil {
			return Order{}, ts, err
		}

		o.Target = &target

		if len(inner) == 0 || inner[0] != CTO {
			return Order{}, ts, fmt.Errorf("convoy needs CTO and a destination: %w", ErrMalformedClause)
		}

		var dest Province

		dest, inner, err = parseProvince(inner[1:])
		if err != nil {
			return Order{}, ts, err
		}

		o.Dest = &dest

	case CTO:
		var dest Province

		dest, inner, err = parseProvince(inner)
		if err != nil {
			return Order{}, ts, err
		}

		o.Dest = &dest

		if len(inner) == 0 || inner[0] != VIA {
			return Order{}, ts, fmt.Errorf("move by convoy needs VIA: %w", ErrMalformedClause)
		}

		var path []Token

		path, inner, err = takeGroup(inner[1:])
		if err != nil {
			return Order{}, ts, err
		}

		for len(path) > 0 {
			var sea Province

			sea, path, err = parseProvince(path)
			if err != nil {
				return Order{}, ts, err
			}

			o.Path = append(o.Path, sea)
		}

	default:
		return Order{}, ts, fmt.Errorf("%s is not an order verb here: %w", o.Verb, ErrMalformedClause)
	}

	if len(inner) != 0 {
		return Order{}, ts, fmt.Errorf("%d leftover tokens after order: %w", len(inner), ErrMalformedClause)
	}

	return o, rest, nil
}

// Tokens renders the order back into its wire clause.
func (o Order) Tokens() []Token {
	if o.Verb == WVE {
		return group([]Token{o.Power.Token, WVE})
	}

	body := []Token{OpenParen}
	body = append(body, o.Unit.Tokens()...)
	body = append(body, o.Verb)

	switch o.Verb {
	case MTO, RTO:
		body = append(body, o.Dest.Tokens()...)

	case SUP:
		body = append(body, o.Target.Tokens()...)
		if o.Dest != nil {
			body = append(body, MTO)
			body = append(body, o.Dest.Tokens()...)
		}

	case CVY:
		body = append(body, o.Target.Tokens()...)
		body = append(body, CTO)
		body = append(body, o.Dest.Tokens()...)

	case CTO:
		body = append(body, o.Dest.Tokens()...)
		body = append(body, VIA)

		path := []Token{}
		for _, sea := range o.Path {
			path = append(path, sea.Tokens()...)
		}

		body = append(body, group(path)...)
	}

	return append(body, CloseParen)
}

// String renders the short order notation used by the rest of the server:
// "A LVP H", "A PAR - BUR", "F ENG C A LON - NWY", "A BUD S A VIE",
// "F GOL - SPA/SC VIA", "WAIVE".
func (o Order) String() string {
	if o.Verb == WVE {
		return "WAIVE"
	}

	var b strings.Builder

	b.WriteString(o.Unit.String())

	switch o.Verb {
	case HLD:
		b.WriteString(" H")
	case MTO:
		b.WriteString(" - " + o.Dest.String())
	case CTO:
		b.WriteString(" - " + o.Dest.String() + " VIA")
	case SUP:
		b.WriteString(" S " + o.Target.String())
		if o.Dest != nil {
			b.WriteString(" - " + o.Dest.String())
		}
	case CVY:
		b.WriteString(" C " + o.Target.String() + " - " + o.Dest.String())
	case RTO:
		b.WriteString(" R " + o.Dest.String())
	case DSB, REM:
		b.WriteString(" D")
	case BLD:
		b.WriteString(" B")
	}

	return b.String()
}
