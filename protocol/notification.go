package protocol

// Notifications are replies pushed by the server without a prompting
// request: order results when a phase processes, game status changes, and
// relayed press. HLO, SCO, NOW and MAP double as notifications and reuse
// the response types.

// OrdNotification reports one order's adjudication result.
type OrdNotification struct {
	Turn   Turn
	Order  Order
	Result []Token // result token, optionally followed by RET
}

func (n *OrdNotification) Tokens() []Token {
	ts := append([]Token{ORD}, n.Turn.Tokens()...)
	ts = append(ts, group(n.Order.Tokens())...)
	return append(ts, group(n.Result)...)
}

// CcdNotification announces a power in civil disorder (its client is
// gone or missed a deadline).
type CcdNotification struct {
	Power Power
}

func (n *CcdNotification) Tokens() []Token {
	return append([]Token{CCD}, group([]Token{n.Power.Token})...)
}

// OutNotification announces an eliminated power.
type OutNotification struct {
	Power Power
}

func (n *OutNotification) Tokens() []Token {
	return append([]Token{OUT}, group([]Token{n.Power.Token})...)
}

// DrwNotification announces the game ended in a draw. Powers names the
// participants of a partial draw; empty means everyone still alive.
type DrwNotification struct {
	Powers []Power
}

func (n *DrwNotification) Tokens() []Token {
	if len(n.Powers) == 0 {
		return []Token{DRW}
	}

	inner := []Token{}
	for _, p := range n.Powers {
		inner = append(inner, p.Token)
	}

	return append([]Token{DRW}, group(inner)...)
}

// SloNotification announces a solo victory.
type SloNotification struct {
	Power Power
}

func (n *SloNotification) Tokens() []Token {
	return append([]Token{SLO}, group([]Token{n.Power.Token})...)
}

// SmrEntry is one power's line in the end-of-game summary.
type SmrEntry struct {
	Power         Power
	ClientName    string
	ClientVersion string
	Centres       int
	EliminatedIn  *int // year, set only for eliminated powers
}

// SmrNotification is the end-of-game summary sent after DRW, SLO or OFF.
type SmrNotification struct {
	Turn    Turn
	Entries []SmrEntry
}

func (n *SmrNotification) Tokens() []Token {
	ts := append([]Token{SMR}, n.Turn.Tokens()...)

	for _, e := range n.Entries {
		centres, _ := FromInt(e.Centres)

		inner := []Token{e.Power.Token}
		inner = append(inner, TextClauseTokens(e.ClientName)...)
		inner = append(inner, TextClauseTokens(e.ClientVersion)...)
		inner = append(inner, centres)

		if e.EliminatedIn != nil {
			year, _ := FromInt(*e.EliminatedIn)
			inner = append(inner, year)
		}

		ts = append(ts, group(inner)...)
	}

	return ts
}

// OffNotification orders the client to sign off; sent when the game is
// over or cancelled.
type OffNotification struct{}

func (n *OffNotification) Tokens() []Token {
	return []Token{OFF}
}

// FrmNotification relays press from another power. A broadcast recipient
// list is expanded by the dispatch layer before this is built, so To is
// always the explicit list the sender reached.
type FrmNotification struct {
	From  Power
	To    []Power
	Press []Token
}

func (n *FrmNotification) Tokens() []Token {
	ts := append([]Token{FRM}, group([]Token{n.From.Token})...)

	to := []Token{}
	for _, p := range n.To {
		to = append(to, p.Token)
	}

	ts = append(ts, group(to)...)

	return append(ts, group(n.Press)...)
}

// AdmNotification relays out-of-band chat to every connection.
type AdmNotification struct {
	Name string
	Text string
}

func (n *AdmNotification) Tokens() []Token {
	ts := []Token{ADM}
	ts = append(ts, TextClauseTokens(n.Name)...)
	return append(ts, TextClauseTokens(n.Text)...)
}

var _ Reply = (*OrdNotification)(nil)
var _ Reply = (*CcdNotification)(nil)
var _ Reply = (*OutNotification)(nil)
var _ Reply = (*DrwNotification)(nil)
var _ Reply = (*SloNotification)(nil)
var _ Reply = (*SmrNotification)(nil)
var _ Reply = (*OffNotification)(nil)
var _ Reply = (*FrmNotification)(nil)
var _ Reply = (*AdmNotification)(nil)
