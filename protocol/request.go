package protocol

import (
	"fmt"
)

// Request is a command sent by a client, parsed from a Diplomacy payload.
// Requests are immutable once parsed; Tokens re-renders the exact clause
// structure so a request can be echoed inside YES, REJ and HUH replies.
type Request interface {
	Verb() Token
	Tokens() []Token
}

// ParseRequest parses a Diplomacy payload into a typed request. A leading
// token outside the command namespace fails with ErrUnknownCommand;
// anything wrong past the verb is ErrMalformedClause.
func ParseRequest(payload []byte) (Request, error) {
	tokens, err := TokensFromBytes(payload)
	if err != nil {
		return nil, err
	}

	return ParseRequestTokens(tokens)
}

// ParseRequestTokens is ParseRequest over an already-decoded sequence.
func ParseRequestTokens(tokens []Token) (Request, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty payload: %w", ErrUnknownCommand)
	}

	parse, ok := requestParsers[tokens[0]]
	if !ok {
		return nil, fmt.Errorf("%s does not start a request: %w", tokens[0], ErrUnknownCommand)
	}

	req, rest, err := parse(tokens[1:])
	if err != nil {
		return nil, err
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%d leftover tokens after %s: %w",
			len(rest), tokens[0], ErrMalformedClause)
	}

	return req, nil
}

// requestParsers maps each client verb to its body parser. Adding a verb
// means adding a struct, a parser and one entry here. Populated in init
// because parseNotRequest recurses through ParseRequestTokens, which
// reads the map back.
var requestParsers map[Token]func([]Token) (Request, []Token, error)

func init() {
	requestParsers = map[Token]func([]Token) (Request, []Token, error){
		NME: parseNameRequest,
		OBS: parseObserverRequest,
		IAM: parseIAmRequest,
		HLO: parseBare(func() Request { return &HelloRequest{} }),
		MAP: parseBare(func() Request { return &MapRequest{} }),
		MDF: parseBare(func() Request { return &MdfRequest{} }),
		SCO: parseBare(func() Request { return &SupplyCentreRequest{} }),
		NOW: parseBare(func() Request { return &NowRequest{} }),
		MIS: parseBare(func() Request { return &MissingRequest{} }),
		GOF: parseBare(func() Request { return &GoFlagRequest{} }),
		HST: parseHistoryRequest,
		SUB: parseSubmitRequest,
		TME: parseTimeRequest,
		DRW: parseDrawRequest,
		SND: parseSendRequest,
		NOT: parseNotRequest,
		YES: parseAcceptRequest,
		REJ: parseRefuseRequest,
		ADM: parseAdminRequest,
	}
}

// parseBare covers the query verbs that carry no body.
func parseBare(build func() Request) func([]Token) (Request, []Token, error) {
	return func(ts []Token) (Request, []Token, error) {
		return build(), ts[:0], nilIfEmpty(ts)
	}
}

func nilIfEmpty(ts []Token) error {
	if len(ts) != 0 {
		return fmt.Errorf("%d unexpected tokens: %w", len(ts), ErrMalformedClause)
	}

	return nil
}

// === NME ('name') ('version')

// NameRequest is the client login: NME ('name') ('version').
type NameRequest struct {
	ClientName    string
	ClientVersion string
}

func (r *NameRequest) Verb() Token { return NME }

func (r *NameRequest) Tokens() []Token {
	ts := []Token{NME}
	ts = append(ts, TextClauseTokens(r.ClientName)...)
	return append(ts, TextClauseTokens(r.ClientVersion)...)
}

func parseNameRequest(ts []Token) (Request, []Token, error) {
	name, ts, err := parseText(ts)
	if err != nil {
		return nil, ts, err
	}

	version, ts, err := parseText(ts)
	if err != nil {
		return nil, ts, err
	}

	return &NameRequest{ClientName: name, ClientVersion: version}, ts, nil
}

// === OBS

// ObserverRequest joins the connection as a non-playing observer.
type ObserverRequest struct{}

func (r *ObserverRequest) Verb() Token     { return OBS }
func (r *ObserverRequest) Tokens() []Token { return []Token{OBS} }

func parseObserverRequest(ts []Token) (Request, []Token, error) {
	return &ObserverRequest{}, ts[:0], nilIfEmpty(ts)
}

// === IAM (power) (passcode)

// IAmRequest reclaims a power after reconnecting.
type IAmRequest struct {
	Power    Power
	Passcode int
}

func (r *IAmRequest) Verb() Token { return IAM }

func (r *IAmRequest) Tokens() []Token {
	code, _ := FromInt(r.Passcode)
	ts := []Token{IAM}
	ts = append(ts, group([]Token{r.Power.Token})...)
	return append(ts, group([]Token{code})...)
}

func parseIAmRequest(ts []Token) (Request, []Token, error) {
	inner, ts, err := takeGroup(ts)
	if err != nil {
		return nil, ts, err
	}

	power, inner, err := parsePower(inner)
	if err != nil || len(inner) != 0 {
		return nil, ts, fmt.Errorf("IAM power group: %w", ErrMalformedClause)
	}

	inner, ts, err = takeGroup(ts)
	if err != nil {
		return nil, ts, err
	}

	code, inner, err := parseNumber(inner)
	if err != nil || len(inner) != 0 {
		return nil, ts, fmt.Errorf("IAM passcode group: %w", ErrMalformedClause)
	}

	return &IAmRequest{Power: power, Passcode: code}, ts, nil
}

// === Bare queries

// HelloRequest asks the server to repeat the HLO for this connection.
type HelloRequest struct{}

func (r *HelloRequest) Verb() Token     { return HLO }
func (r *HelloRequest) Tokens() []Token { return []Token{HLO} }

// MapRequest asks for the map name.
type MapRequest struct{}

func (r *MapRequest) Verb() Token     { return MAP }
func (r *MapRequest) Tokens() []Token { return []Token{MAP} }

// MdfRequest asks for the full map definition.
type MdfRequest struct{}

func (r *MdfRequest) Verb() Token     { return MDF }
func (r *MdfRequest) Tokens() []Token { return []Token{MDF} }

// SupplyCentreRequest asks for current supply centre ownership.
type SupplyCentreRequest struct{}

func (r *SupplyCentreRequest) Verb() Token     { return SCO }
func (r *SupplyCentreRequest) Tokens() []Token { return []Token{SCO} }

// NowRequest asks for the current turn and unit positions.
type NowRequest struct{}

func (r *NowRequest) Verb() Token     { return NOW }
func (r *NowRequest) Tokens() []Token { return []Token{NOW} }

// MissingRequest asks which of the power's units still lack orders.
type MissingRequest struct{}

func (r *MissingRequest) Verb() Token     { return MIS }
func (r *MissingRequest) Tokens() []Token { return []Token{MIS} }

// GoFlagRequest marks the power ready for the phase to process without
// waiting for the deadline. Negated with NOT (GOF).
type GoFlagRequest struct{}

func (r *GoFlagRequest) Verb() Token     { return GOF }
func (r *GoFlagRequest) Tokens() []Token { return []Token{GOF} }

// === HST (turn)

// HistoryRequest asks for the results of an earlier turn.
type HistoryRequest struct {
	Turn Turn
}

func (r *HistoryRequest) Verb() Token { return HST }

func (r *HistoryRequest) Tokens() []Token {
	return append([]Token{HST}, r.Turn.Tokens()...)
}

func parseHistoryRequest(ts []Token) (Request, []Token, error) {
	turn, ts, err := parseTurn(ts)
	if err != nil {
		return nil, ts, err
	}

	return &HistoryRequest{Turn: turn}, ts, nil
}

// === SUB [(turn)] (order)...

// SubmitRequest submits orders. The turn clause is optional; when present
// the dispatch layer rejects the whole request if it does not name the
// game's current phase.
type SubmitRequest struct {
	Turn   *Turn
	Orders []Order
}

func (r *SubmitRequest) Verb() Token { return SUB }

func (r *SubmitRequest) Tokens() []Token {
	ts := []Token{SUB}
	if r.Turn != nil {
		ts = append(ts, r.Turn.Tokens()...)
	}

	for _, o := range r.Orders {
		ts = append(ts, o.Tokens()...)
	}

	return ts
}

func parseSubmitRequest(ts []Token) (Request, []Token, error) {
	req := &SubmitRequest{}

	// The first group is a turn when it parses as one; otherwise it is
	// the first order. Probing with Ignore keeps the cursor unmoved.
	if turn, rest, err := ParseTurn(ts, Ignore); err == nil && len(rest) != len(ts) {
		req.Turn = &turn
		ts = rest
	}

	for len(ts) > 0 {
		order, rest, err := parseOrder(ts)
		if err != nil {
			return nil, ts, err
		}

		req.Orders = append(req.Orders, order)
		ts = rest
	}

	// A bare SUB is legal only inside NOT (SUB); the dispatch layer
	// rejects an empty submission arriving on its own.
	return req, ts, nil
}

// === TME [(seconds)]

// TimeRequest queries the deadline, or with seconds set asks for a TME
// notification when that much time remains.
type TimeRequest struct {
	Seconds *int
}

func (r *TimeRequest) Verb() Token { return TME }

func (r *TimeRequest) Tokens() []Token {
	if r.Seconds == nil {
		return []Token{TME}
	}

	secs, _ := FromInt(*r.Seconds)
	return append([]Token{TME}, group([]Token{secs})...)
}

func parseTimeRequest(ts []Token) (Request, []Token, error) {
	req := &TimeRequest{}

	if len(ts) == 0 {
		return req, ts, nil
	}

	inner, ts, err := takeGroup(ts)
	if err != nil {
		return nil, ts, err
	}

	secs, inner, err := parseNumber(inner)
	if err != nil || len(inner) != 0 {
		return nil, ts, fmt.Errorf("TME seconds group: %w", ErrMalformedClause)
	}

	req.Seconds = &secs

	return req, ts, nil
}

// === DRW [(power...)]

// DrawRequest votes for a draw. With powers present it proposes a partial
// draw among exactly those powers.
type DrawRequest struct {
	Powers []Power
}

func (r *DrawRequest) Verb() Token { return DRW }

func (r *DrawRequest) Tokens() []Token {
	if len(r.Powers) == 0 {
		return []Token{DRW}
	}

	inner := []Token{}
	for _, p := range r.Powers {
		inner = append(inner, p.Token)
	}

	return append([]Token{DRW}, group(inner)...)
}

func parseDrawRequest(ts []Token) (Request, []Token, error) {
	req := &DrawRequest{}

	if len(ts) == 0 {
		return req, ts, nil
	}

	inner, ts, err := takeGroup(ts)
	if err != nil {
		return nil, ts, err
	}

	for len(inner) > 0 {
		var p Power

		p, inner, err = parsePower(inner)
		if err != nil {
			return nil, ts, err
		}

		req.Powers = append(req.Powers, p)
	}

	return req, ts, nil
}

// === SND [(turn)] (power...) (press)

// SendRequest sends press to other powers. The press body is carried as
// an opaque token sequence; the server relays it without interpreting.
type SendRequest struct {
	Turn  *Turn
	To    []Power
	Press []Token
}

func (r *SendRequest) Verb() Token { return SND }

func (r *SendRequest) Tokens() []Token {
	ts := []Token{SND}
	if r.Turn != nil {
		ts = append(ts, r.Turn.Tokens()...)
	}

	to := []Token{}
	for _, p := range r.To {
		to = append(to, p.Token)
	}

	ts = append(ts, group(to)...)

	return append(ts, group(r.Press)...)
}

func parseSendRequest(ts []Token) (Request, []Token, error) {
	req := &SendRequest{}

	if turn, rest, err := ParseTurn(ts, Ignore); err == nil && len(rest) != len(ts) {
		req.Turn = &turn
		ts = rest
	}

	inner, ts, err := takeGroup(ts)
	if err != nil {
		return nil, ts, err
	}

	for len(inner) > 0 {
		var p Power

		p, inner, err = parsePower(inner)
		if err != nil {
			return nil, ts, err
		}

		req.To = append(req.To, p)
	}

	if len(req.To) == 0 {
		return nil, ts, fmt.Errorf("SND names no recipients: %w", ErrMalformedClause)
	}

	press, ts, err := takeGroup(ts)
	if err != nil {
		return nil, ts, err
	}

	req.Press = press

	return req, ts, nil
}

// === NOT (request)

// NotRequest negates a pending request. The inner clause is parsed as a
// full request so the dispatch layer can re-dispatch it as a cancellation
// of whatever the inner verb set up.
type NotRequest struct {
	Inner Request
}

func (r *NotRequest) Verb() Token { return NOT }

func (r *NotRequest) Tokens() []Token {
	return append([]Token{NOT}, group(r.Inner.Tokens())...)
}

func parseNotRequest(ts []Token) (Request, []Token, error) {
	inner, ts, err := takeGroup(ts)
	if err != nil {
		return nil, ts, err
	}

	req, err := ParseRequestTokens(inner)
	if err != nil {
		return nil, ts, err
	}

	return &NotRequest{Inner: req}, ts, nil
}

// === YES (echo) / REJ (echo)

// AcceptRequest acknowledges a server message, echoing it back.
type AcceptRequest struct {
	Echo []Token
}

func (r *AcceptRequest) Verb() Token { return YES }

func (r *AcceptRequest) Tokens() []Token {
	return append([]Token{YES}, group(r.Echo)...)
}

// RefuseRequest refuses a server message, echoing it back.
type RefuseRequest struct {
	Echo []Token
}

func (r *RefuseRequest) Verb() Token { return REJ }

func (r *RefuseRequest) Tokens() []Token {
	return append([]Token{REJ}, group(r.Echo)...)
}

func parseAcceptRequest(ts []Token) (Request, []Token, error) {
	echo, ts, err := takeGroup(ts)
	if err != nil {
		return nil, ts, err
	}

	return &AcceptRequest{Echo: echo}, ts, nil
}

func parseRefuseRequest(ts []Token) (Request, []Token, error) {
	echo, ts, err := takeGroup(ts)
	if err != nil {
		return nil, ts, err
	}

	return &RefuseRequest{Echo: echo}, ts, nil
}

// === ADM ('name') ('text')

// AdminRequest is out-of-band chat, broadcast to every connection.
type AdminRequest struct {
	Name string
	Text string
}

func (r *AdminRequest) Verb() Token { return ADM }

func (r *AdminRequest) Tokens() []Token {
	ts := []Token{ADM}
	ts = append(ts, TextClauseTokens(r.Name)...)
	return append(ts, TextClauseTokens(r.Text)...)
}

func parseAdminRequest(ts []Token) (Request, []Token, error) {
	name, ts, err := parseText(ts)
	if err != nil {
		return nil, ts, err
	}

	text, ts, err := parseText(ts)
	if err != nil {
		return nil, ts, err
	}

	return &AdminRequest{Name: name, Text: text}, ts, nil
}

var _ Request = (*NameRequest)(nil)
var _ Request = (*ObserverRequest)(nil)
var _ Request = (*IAmRequest)(nil)
var _ Request = (*HelloRequest)(nil)
var _ Request = (*MapRequest)(nil)
var _ Request = (*MdfRequest)(nil)
var _ Request = (*SupplyCentreRequest)(nil)
var _ Request = (*NowRequest)(nil)
var _ Request = (*MissingRequest)(nil)
var _ Request = (*GoFlagRequest)(nil)
var _ Request = (*HistoryRequest)(nil)
var _ Request = (*SubmitRequest)(nil)
var _ Request = (*TimeRequest)(nil)
var _ Request = (*DrawRequest)(nil)
var _ Request = (*SendRequest)(nil)
var _ Request = (*NotRequest)(nil)
var _ Request = (*AcceptRequest)(nil)
var _ Request = (*RefuseRequest)(nil)
var _ Request = (*AdminRequest)(nil)
