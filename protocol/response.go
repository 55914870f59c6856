package protocol

// Reply is anything the server can render into a Diplomacy payload: a
// direct response to a request or a pushed notification. Replies are
// constructed by the dispatch layer, serialized once and discarded.
type Reply interface {
	Tokens() []Token
}

// ReplyMessage renders the reply as a framed Diplomacy message.
func ReplyMessage(r Reply) Message {
	return NewDiplomacyMessage(r.Tokens())
}

// === YES / REJ / HUH / PRN

// YesResponse accepts a request, echoing it.
type YesResponse struct {
	Echo []Token
}

func (r *YesResponse) Tokens() []Token {
	return append([]Token{YES}, group(r.Echo)...)
}

// RejResponse rejects a request, echoing it. Domain-level rejections
// (wrong phase, no permission, finished game) all take this shape.
type RejResponse struct {
	Echo []Token
}

func (r *RejResponse) Tokens() []Token {
	return append([]Token{REJ}, group(r.Echo)...)
}

// HuhResponse reports a syntax error, echoing the offending tokens with
// an ERR marker inserted in front of the token that failed to parse.
type HuhResponse struct {
	Echo []Token
}

// NewHuh builds a HUH reply marking position at in the offending
// sequence. Out-of-range positions mark the end.
func NewHuh(offending []Token, at int) *HuhResponse {
	if at < 0 || at > len(offending) {
		at = len(offending)
	}

	echo := make([]Token, 0, len(offending)+1)
	echo = append(echo, offending[:at]...)
	echo = append(echo, ERR)
	echo = append(echo, offending[at:]...)

	return &HuhResponse{Echo: echo}
}

func (r *HuhResponse) Tokens() []Token {
	return append([]Token{HUH}, group(r.Echo)...)
}

// PrnResponse reports an unbalanced-parenthesis payload, echoed verbatim
// without a surrounding group since the grouping itself is broken.
type PrnResponse struct {
	Echo []Token
}

func (r *PrnResponse) Tokens() []Token {
	return append([]Token{PRN, OpenParen}, append(r.Echo, CloseParen)...)
}

// === MAP / MDF

// MapResponse carries the map name: MAP ('name').
type MapResponse struct {
	Name string
}

func (r *MapResponse) Tokens() []Token {
	return append([]Token{MAP}, TextClauseTokens(r.Name)...)
}

// ScoGroup is one ownership group: a power (or UNO for neutral) and the
// centres it owns.
type ScoGroup struct {
	Owner   Power // zero token means unowned
	Centres []Province
}

func (g ScoGroup) tokens() []Token {
	owner := g.Owner.Token
	if owner == 0 {
		owner = UNO
	}

	inner := []Token{owner}
	for _, c := range g.Centres {
		inner = append(inner, c.Tokens()...)
	}

	return group(inner)
}

// MdfResponse is the map definition: the powers, the provinces split into
// supply centres (grouped by home power) and the rest. The adjacency
// section is rendered as an empty group; clients that need adjacencies
// carry their own map data.
type MdfResponse struct {
	Powers    []Power
	Centres   []ScoGroup
	Provinces []Province
}

func (r *MdfResponse) Tokens() []Token {
	powers := []Token{}
	for _, p := range r.Powers {
		powers = append(powers, p.Token)
	}

	centres := []Token{}
	for _, g := range r.Centres {
		centres = append(centres, g.tokens()...)
	}

	others := []Token{}
	for _, p := range r.Provinces {
		others = append(others, p.Tokens()...)
	}

	ts := []Token{MDF}
	ts = append(ts, group(powers)...)
	ts = append(ts, group(group(centres), group(others))...)
	return append(ts, group(nil)...)
}

// === HLO

// HelloResponse confirms a power assignment: HLO (power) (passcode)
// (variant options). The passcode lets the client reclaim the power with
// IAM after a reconnect.
type HelloResponse struct {
	Power       Power
	Passcode    int
	Level       int
	MoveSeconds int // movement-phase deadline; 0 means untimed
}

func (r *HelloResponse) Tokens() []Token {
	code, _ := FromInt(r.Passcode)
	level, _ := FromInt(r.Level)

	options := append([]Token{}, group([]Token{LVL, level})...)
	if r.MoveSeconds > 0 {
		mtl, _ := FromInt(r.MoveSeconds)
		options = append(options, group([]Token{keywordTokens["MTL"], mtl})...)
	}

	ts := []Token{HLO}
	ts = append(ts, group([]Token{r.Power.Token})...)
	ts = append(ts, group([]Token{code})...)
	return append(ts, group(options)...)
}

// === SCO

// ScoResponse is current supply centre ownership: one group per owner,
// neutrals under UNO.
type ScoResponse struct {
	Groups []ScoGroup
}

func (r *ScoResponse) Tokens() []Token {
	ts := []Token{SCO}
	for _, g := range r.Groups {
		ts = append(ts, g.tokens()...)
	}

	return ts
}

// === NOW

// UnitPosition is one unit in a NOW response, with its retreat options
// when the unit has been dislodged.
type UnitPosition struct {
	Unit        Unit
	MustRetreat []Province
}

func (u UnitPosition) tokens() []Token {
	inner := u.Unit.Tokens()

	if len(u.MustRetreat) > 0 {
		inner = inner[:len(inner)-1] // reopen the unit group

		opts := []Token{}
		for _, p := range u.MustRetreat {
			opts = append(opts, p.Tokens()...)
		}

		inner = append(inner, MRT)
		inner = append(inner, group(opts)...)
		inner = append(inner, CloseParen)
	}

	return inner
}

// NowResponse is the current turn and every unit's position.
type NowResponse struct {
	Turn  Turn
	Units []UnitPosition
}

func (r *NowResponse) Tokens() []Token {
	ts := append([]Token{NOW}, r.Turn.Tokens()...)
	for _, u := range r.Units {
		ts = append(ts, u.tokens()...)
	}

	return ts
}

// === THX

// ThxResponse acknowledges one submitted order with a note: MBV when the
// order looks valid, otherwise the reason it does not.
type ThxResponse struct {
	Order Order
	Note  Token
}

func (r *ThxResponse) Tokens() []Token {
	ts := append([]Token{THX}, group(r.Order.Tokens())...)
	return append(ts, group([]Token{r.Note})...)
}

// === MIS

// MisResponse lists what is still wanted from the power: units without
// orders during movement and retreat phases, or a build/removal count
// during adjustment.
type MisResponse struct {
	Units []UnitPosition
	Count *int
}

func (r *MisResponse) Tokens() []Token {
	ts := []Token{MIS}

	if r.Count != nil {
		n, _ := FromInt(*r.Count)
		return append(ts, group([]Token{n})...)
	}

	for _, u := range r.Units {
		ts = append(ts, u.tokens()...)
	}

	return ts
}

// === TME

// TmeResponse reports the seconds remaining until the deadline.
type TmeResponse struct {
	Seconds int
}

func (r *TmeResponse) Tokens() []Token {
	secs, _ := FromInt(r.Seconds)
	return append([]Token{TME}, group([]Token{secs})...)
}

var _ Reply = (*YesResponse)(nil)
var _ Reply = (*RejResponse)(nil)
var _ Reply = (*HuhResponse)(nil)
var _ Reply = (*PrnResponse)(nil)
var _ Reply = (*MapResponse)(nil)
var _ Reply = (*MdfResponse)(nil)
var _ Reply = (*HelloResponse)(nil)
var _ Reply = (*ScoResponse)(nil)
var _ Reply = (*NowResponse)(nil)
var _ Reply = (*ThxResponse)(nil)
var _ Reply = (*MisResponse)(nil)
var _ Reply = (*TmeResponse)(nil)
