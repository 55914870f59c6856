package protocol

import (
	"fmt"
	"strings"
)

// OrderFromString parses the short order notation back into a wire
// clause. The owning power comes separately since the notation omits it,
// and the phase letter ('M', 'R' or 'A') disambiguates "D", which means
// disband during retreats and removal during adjustment.
func OrderFromString(power, order string, phase byte) (Order, error) {
	p, err := PowerFromName(power)
	if err != nil {
		return Order{}, err
	}

	if order == "WAIVE" {
		return Order{Power: p, Verb: WVE}, nil
	}

	fields := strings.Fields(order)

	unit, fields, err := unitFromFields(p, fields)
	if err != nil {
		return Order{}, err
	}

	o := Order{Power: p, Unit: &unit}

	if len(fields) == 0 {
		return Order{}, fmt.Errorf("%q has no order verb: %w", order, ErrMalformedClause)
	}

	verb := fields[0]
	fields = fields[1:]

	switch verb {
	case "H":
		o.Verb = HLD

	case "-":
		dest, rest, err := provinceFromFields(fields)
		if err != nil {
			return Order{}, err
		}

		o.Dest = &dest
		o.Verb = MTO
		fields = rest

		if len(fields) == 1 && fields[0] == "VIA" {
			o.Verb = CTO
			fields = nil
		}

	case "S":
		target, rest, err := unitFromFields(Power{}, fields)
		if err != nil {
			return Order{}, err
		}

		o.Verb = SUP
		o.Target = &target
		fields = rest

		if len(fields) > 0 && fields[0] == "-" {
			dest, rest, err := provinceFromFields(fields[1:])
			if err != nil {
				return Order{}, err
			}

			o.Dest = &dest
			fields = rest
		}

	case "C":
		target, rest, err := unitFromFields(Power{}, fields)
		if err != nil {
			return Order{}, err
		}

		if len(rest) == 0 || rest[0] != "-" {
			return Order{}, fmt.Errorf("%q convoys nowhere: %w", order, ErrMalformedClause)
		}

		dest, rest, err := provinceFromFields(rest[1:])
		if err != nil {
			return Order{}, err
		}

		o.Verb = CVY
		o.Target = &target
		o.Dest = &dest
		fields = rest

	case "R":
		dest, rest, err := provinceFromFields(fields)
		if err != nil {
			return Order{}, err
		}

		o.Verb = RTO
		o.Dest = &dest
		fields = rest

	case "D":
		o.Verb = DSB
		if phase == 'A' {
			o.Verb = REM
		}

	case "B":
		o.Verb = BLD

	default:
		return Order{}, fmt.Errorf("%q is not an order verb: %w", verb, ErrMalformedClause)
	}

	if len(fields) != 0 {
		return Order{}, fmt.Errorf("%q has trailing fields: %w", order, ErrMalformedClause)
	}

	return o, nil
}

func unitFromFields(owner Power, fields []string) (Unit, []string, error) {
	if len(fields) < 2 {
		return Unit{}, fields, fmt.Errorf("expected a unit: %w", ErrMalformedClause)
	}

	var kind Token

	switch fields[0] {
	case "A":
		kind = AMY
	case "F":
		kind = FLT
	default:
		return Unit{}, fields, fmt.Errorf("%q is not a unit kind: %w", fields[0], ErrMalformedClause)
	}

	prov, rest, err := provinceFromFields(fields[1:])
	if err != nil {
		return Unit{}, fields, err
	}

	return Unit{Power: owner, Type: kind, Province: prov}, rest, nil
}

func provinceFromFields(fields []string) (Province, []string, error) {
	if len(fields) == 0 {
		return Province{}, fields, fmt.Errorf("expected a province: %w", ErrMalformedClause)
	}

	p, err := ProvinceFromString(fields[0])
	if err != nil {
		return Province{}, fields, err
	}

	return p, fields[1:], nil
}
