package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrMalformedClause = errors.New("clause does not match its expected shape")
	ErrUnknownCommand  = errors.New("leading token is not a known command")
)

// Policy controls what a composite parser does when a sub-clause fails to
// parse. Raise propagates the failure, Warn logs it and reports no match,
// Ignore silently reports no match. In the no-match cases the caller gets
// its token cursor back unmoved and can try a different clause variant.
type Policy int

const (
	Raise Policy = iota
	Warn
	Ignore
)

// Apply resolves a sub-parse failure against the policy.
func (p Policy) Apply(err error) error {
	if err == nil {
		return nil
	}

	switch p {
	case Warn:
		zap.L().Warn("Failed to parse clause", zap.Error(err))
		return nil
	case Ignore:
		return nil
	default:
		return err
	}
}

// takeGroup splits a leading parenthesized group off ts, returning the
// tokens inside the parens and the tokens after the closing paren. The
// cursor is unmoved on failure.
func takeGroup(ts []Token) (inner, rest []Token, err error) {
	if len(ts) == 0 || ts[0] != OpenParen {
		return nil, ts, fmt.Errorf("expected an opening paren: %w", ErrMalformedClause)
	}

	depth := 0

	for i, t := range ts {
		switch t {
		case OpenParen:
			depth++
		case CloseParen:
			depth--
			if depth == 0 {
				return ts[1:i], ts[i+1:], nil
			}
		}
	}

	return nil, ts, fmt.Errorf("unbalanced parens: %w", ErrMalformedClause)
}

// Balanced reports whether every opening paren in ts has a matching
// close and no close arrives early.
func Balanced(ts []Token) bool {
	depth := 0

	for _, t := range ts {
		switch t {
		case OpenParen:
			depth++
		case CloseParen:
			depth--
			if depth < 0 {
				return false
			}
		}
	}

	return depth == 0
}

// group wraps tokens in a paren pair.
func group(ts ...[]Token) []Token {
	out := []Token{OpenParen}
	for _, t := range ts {
		out = append(out, t...)
	}

	return append(out, CloseParen)
}

// === Power

// Power names a great power. Tokens outside the alias table pass through
// verbatim so variant powers from newer peers still round-trip.
type Power struct {
	Token Token
}

var powerNames = map[Token]string{
	AUS: "AUSTRIA",
	ENG: "ENGLAND",
	FRA: "FRANCE",
	GER: "GERMANY",
	ITA: "ITALY",
	RUS: "RUSSIA",
	TUR: "TURKEY",
}

var powerTokens = func() map[string]Token {
	m := make(map[string]Token, len(powerNames))
	for t, name := range powerNames {
		m[name] = t
	}

	return m
}()

// Name returns the full power name, or the wire short code for powers
// outside the alias table.
func (p Power) Name() string {
	if name, ok := powerNames[p.Token]; ok {
		return name
	}

	return p.Token.String()
}

func (p Power) String() string {
	return p.Name()
}

// PowerFromName accepts either a full name (AUSTRIA) or a wire code (AUS).
func PowerFromName(name string) (Power, error) {
	if t, ok := powerTokens[name]; ok {
		return Power{Token: t}, nil
	}

	t, err := FromSymbol(name)
	if err != nil || t.Category() != CatPowers {
		return Power{}, fmt.Errorf("%q is not a power: %w", name, ErrMalformedClause)
	}

	return Power{Token: t}, nil
}

func parsePower(ts []Token) (Power, []Token, error) {
	if len(ts) == 0 || ts[0].Category() != CatPowers {
		return Power{}, ts, fmt.Errorf("expected a power token: %w", ErrMalformedClause)
	}

	return Power{Token: ts[0]}, ts[1:], nil
}

// ParsePower reads one power token from the front of ts.
func ParsePower(ts []Token, pol Policy) (Power, []Token, error) {
	p, rest, err := parsePower(ts)
	if err != nil {
		return Power{}, ts, pol.Apply(err)
	}

	return p, rest, nil
}

// === Province

// Province is a map location, optionally qualified by a coast for
// bicoastal provinces. The wire form of a coasted province is a nested
// group: (STP NCS) for STP/NC.
type Province struct {
	Token Token
	Coast Token // zero when no coast qualifier
}

var coastSuffixes = map[Token]string{}

var coastTokens = map[string]Token{}

func init() {
	for symbol, suffix := range map[string]string{
		"NCS": "NC", "NEC": "NE", "ECS": "EC", "SEC": "SE",
		"SCS": "SC", "SWC": "SW", "WCS": "WC", "NWC": "NW",
	} {
		t := keywordTokens[symbol]
		coastSuffixes[t] = suffix
		coastTokens[suffix] = t
	}
}

func (p Province) String() string {
	if p.Coast != 0 {
		return p.Token.String() + "/" + coastSuffixes[p.Coast]
	}

	return p.Token.String()
}

// Tokens renders the wire form, nesting a group when a coast is present.
func (p Province) Tokens() []Token {
	if p.Coast != 0 {
		return group([]Token{p.Token, p.Coast})
	}

	return []Token{p.Token}
}

// ProvinceFromString parses human notation such as "PAR" or "STP/NC".
func ProvinceFromString(s string) (Province, error) {
	code, suffix, hasCoast := strings.Cut(s, "/")

	t, err := FromSymbol(code)
	if err != nil || !t.IsProvince() {
		return Province{}, fmt.Errorf("%q is not a province: %w", s, ErrMalformedClause)
	}

	p := Province{Token: t}

	if hasCoast {
		coast, ok := coastTokens[suffix]
		if !ok {
			return Province{}, fmt.Errorf("%q is not a coast: %w", suffix, ErrMalformedClause)
		}

		p.Coast = coast
	}

	return p, nil
}

func parseProvince(ts []Token) (Province, []Token, error) {
	if len(ts) == 0 {
		return Province{}, ts, fmt.Errorf("expected a province: %w", ErrMalformedClause)
	}

	if ts[0] == OpenParen {
		inner, rest, err := takeGroup(ts)
		if err != nil {
			return Province{}, ts, err
		}

		if len(inner) != 2 || !inner[0].IsProvince() || inner[1].Category() != CatCoasts {
			return Province{}, ts, fmt.Errorf("expected (province coast): %w", ErrMalformedClause)
		}

		return Province{Token: inner[0], Coast: inner[1]}, rest, nil
	}

	if !ts[0].IsProvince() {
		return Province{}, ts, fmt.Errorf("%s is not a province: %w", ts[0], ErrMalformedClause)
	}

	return Province{Token: ts[0]}, ts[1:], nil
}

// ParseProvince reads a plain or coast-qualified province from the front
// of ts.
func ParseProvince(ts []Token, pol Policy) (Province, []Token, error) {
	p, rest, err := parseProvince(ts)
	if err != nil {
		return Province{}, ts, pol.Apply(err)
	}

	return p, rest, nil
}

// === Turn

// Turn identifies a game phase: a season token plus a year. Its short
// string form is the phase notation used by the rest of the server,
// e.g. SPR 1901 <-> "S1901M".
type Turn struct {
	Season Token
	Year   int
}

var seasonPhases = map[Token][2]byte{
	SPR: {'S', 'M'},
	SUM: {'S', 'R'},
	FAL: {'F', 'M'},
	AUT: {'F', 'R'},
	WIN: {'W', 'A'},
}

func (t Turn) String() string {
	phase, ok := seasonPhases[t.Season]
	if !ok {
		return fmt.Sprintf("?%d?", t.Year)
	}

	return fmt.Sprintf("%c%d%c", phase[0], t.Year, phase[1])
}

// Tokens renders the wire form (season year).
func (t Turn) Tokens() []Token {
	year, err := FromInt(t.Year)
	if err != nil {
		// Out-of-range years cannot come from a parsed turn and the phase
		// notation caps at four digits; encode the sentinel zero.
		year = 0
	}

	return group([]Token{t.Season, year})
}

// TurnFromString parses phase notation. Two-digit years are expanded into
// the 1900s.
func TurnFromString(s string) (Turn, error) {
	if len(s) < 3 {
		return Turn{}, fmt.Errorf("%q is not a phase: %w", s, ErrMalformedClause)
	}

	year, err := strconv.Atoi(s[1 : len(s)-1])
	if err != nil {
		return Turn{}, fmt.Errorf("%q has no year: %w", s, ErrMalformedClause)
	}

	if year < 100 {
		year += 1900
	}

	want := [2]byte{s[0], s[len(s)-1]}
	for season, phase := range seasonPhases {
		if phase == want {
			return Turn{Season: season, Year: year}, nil
		}
	}

	return Turn{}, fmt.Errorf("%q names no season: %w", s, ErrMalformedClause)
}

func parseTurn(ts []Token) (Turn, []Token, error) {
	inner, rest, err := takeGroup(ts)
	if err != nil {
		return Turn{}, ts, err
	}

	if len(inner) != 2 || inner[0].Category() != CatSeasons {
		return Turn{}, ts, fmt.Errorf("expected (season year): %w", ErrMalformedClause)
	}

	year, ok := inner[1].Int()
	if !ok {
		return Turn{}, ts, fmt.Errorf("turn year is not an integer: %w", ErrMalformedClause)
	}

	if year < 100 {
		year += 1900
	}

	return Turn{Season: inner[0], Year: year}, rest, nil
}

// ParseTurn reads a (season year) group from the front of ts.
func ParseTurn(ts []Token, pol Policy) (Turn, []Token, error) {
	t, rest, err := parseTurn(ts)
	if err != nil {
		return Turn{}, ts, pol.Apply(err)
	}

	return t, rest, nil
}

// === Unit

// Unit is an owned piece on the board. An owner of UNO means the owner is
// unknown; it is kept on the wire but omitted from rendered strings.
type Unit struct {
	Power    Power
	Type     Token // AMY or FLT
	Province Province
}

func (u Unit) String() string {
	kind := "A"
	if u.Type == FLT {
		kind = "F"
	}

	return kind + " " + u.Province.String()
}

// Tokens renders the wire form (power type province).
func (u Unit) Tokens() []Token {
	owner := u.Power.Token
	if owner == 0 {
		owner = UNO
	}

	return group([]Token{owner, u.Type}, u.Province.Tokens())
}

func parseUnit(ts []Token) (Unit, []Token, error) {
	inner, rest, err := takeGroup(ts)
	if err != nil {
		return Unit{}, ts, err
	}

	var u Unit

	switch {
	case len(inner) == 0:
		return Unit{}, ts, fmt.Errorf("empty unit group: %w", ErrMalformedClause)
	case inner[0].Category() == CatPowers:
		u.Power = Power{Token: inner[0]}
		inner = inner[1:]
	case inner[0] == UNO:
		inner = inner[1:]
	default:
		return Unit{}, ts, fmt.Errorf("unit group must lead with a power: %w", ErrMalformedClause)
	}

	if len(inner) == 0 || inner[0].Category() != CatUnitTypes {
		return Unit{}, ts, fmt.Errorf("expected a unit type: %w", ErrMalformedClause)
	}

	u.Type = inner[0]

	u.Province, inner, err = parseProvince(inner[1:])
	if err != nil {
		return Unit{}, ts, err
	}

	if len(inner) != 0 {
		return Unit{}, ts, fmt.Errorf("%d leftover tokens after unit: %w", len(inner), ErrMalformedClause)
	}

	return u, rest, nil
}

// ParseUnit reads a (power type province) group from the front of ts.
func ParseUnit(ts []Token, pol Policy) (Unit, []Token, error) {
	u, rest, err := parseUnit(ts)
	if err != nil {
		return Unit{}, ts, pol.Apply(err)
	}

	return u, rest, nil
}

// === Text and numbers

func parseText(ts []Token) (string, []Token, error) {
	inner, rest, err := takeGroup(ts)
	if err != nil {
		return "", ts, err
	}

	var b strings.Builder

	for _, t := range inner {
		ch, ok := t.Char()
		if !ok {
			return "", ts, fmt.Errorf("%s inside a text clause: %w", t, ErrMalformedClause)
		}

		b.WriteByte(ch)
	}

	return b.String(), rest, nil
}

// ParseText reads a parenthesized run of character tokens as a string.
func ParseText(ts []Token, pol Policy) (string, []Token, error) {
	s, rest, err := parseText(ts)
	if err != nil {
		return "", ts, pol.Apply(err)
	}

	return s, rest, nil
}

// TextClauseTokens renders a free-text string as a parenthesized clause.
func TextClauseTokens(s string) []Token {
	return group(TextTokens(s))
}

func parseNumber(ts []Token) (int, []Token, error) {
	if len(ts) == 0 {
		return 0, ts, fmt.Errorf("expected a number: %w", ErrMalformedClause)
	}

	n, ok := ts[0].Int()
	if !ok {
		return 0, ts, fmt.Errorf("%s is not an integer token: %w", ts[0], ErrMalformedClause)
	}

	return n, ts[1:], nil
}

// ParseNumber reads one integer token from the front of ts.
func ParseNumber(ts []Token, pol Policy) (int, []Token, error) {
	n, rest, err := parseNumber(ts)
	if err != nil {
		return 0, ts, pol.Apply(err)
	}

	return n, rest, nil
}
