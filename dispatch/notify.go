package dispatch

import (
	"time"

	"go.uber.org/zap"

	"github.com/trieste/parley/game"
	"github.com/trieste/parley/protocol"
)

// TranslateEvent renders one model event into the notifications a
// particular connection should receive. The transport calls it once per
// connection per event; events the connection should not see come back
// as an empty slice.
func (d *Dispatcher) TranslateEvent(ctx *ConnContext, ev game.Event) []protocol.Reply {
	if !ctx.Joined() {
		return nil
	}

	switch ev.Kind {
	case game.PhaseProcessed:
		return d.translatePhase(ev)
	case game.StatusChanged:
		return d.translateStatus(ctx, ev)
	case game.MessageReceived:
		return d.translatePress(ctx, ev)
	default:
		// Unknown kinds are the model's future; skip them.
		return nil
	}
}

func (d *Dispatcher) translatePhase(ev game.Event) []protocol.Reply {
	turn, err := protocol.TurnFromString(ev.Phase)
	if err != nil {
		d.log.Warn("model reported an unparseable phase",
			zap.String("phase", ev.Phase), zap.Error(err))
		return nil
	}

	replies := []protocol.Reply{}
	for _, res := range ev.Results {
		ord, err := d.buildOrd(turn, res)
		if err != nil {
			d.log.Warn("unrenderable order result",
				zap.String("order", res.Order), zap.Error(err))
			continue
		}

		replies = append(replies, ord)
	}

	for _, state := range d.model.Powers() {
		if state.Eliminated && state.EliminatedIn == turn.Year {
			if p, err := protocol.PowerFromName(state.Name); err == nil {
				replies = append(replies, &protocol.OutNotification{Power: p})
			}
		}
	}

	if ev.Status == game.Active {
		replies = append(replies, d.buildSco(), d.buildNow())
		if tme, ok := d.buildTme(); ok {
			replies = append(replies, tme)
		}
	}

	return replies
}

func (d *Dispatcher) translateStatus(ctx *ConnContext, ev game.Event) []protocol.Reply {
	switch ev.Status {
	case game.Active:
		replies := []protocol.Reply{}
		if hlo := d.buildHello(ctx.Power()); hlo != nil {
			replies = append(replies, hlo)
		}

		replies = append(replies, d.buildSco(), d.buildNow())
		if tme, ok := d.buildTme(); ok {
			replies = append(replies, tme)
		}

		return replies
	case game.Completed:
		replies := []protocol.Reply{}

		if ev.Winner != "" {
			if p, err := protocol.PowerFromName(ev.Winner); err == nil {
				replies = append(replies, &protocol.SloNotification{Power: p})
			}
		} else {
			drw := &protocol.DrwNotification{}
			for _, name := range ev.DrawPowers {
				if p, err := protocol.PowerFromName(name); err == nil {
					drw.Powers = append(drw.Powers, p)
				}
			}

			replies = append(replies, drw)
		}

		return append(replies, d.buildSmr(), &protocol.OffNotification{})
	case game.Cancelled:
		return []protocol.Reply{&protocol.OffNotification{}}
	default:
		return nil
	}
}

func (d *Dispatcher) translatePress(ctx *ConnContext, ev game.Event) []protocol.Reply {
	power := ctx.Power()
	if power == "" || power == ev.From {
		return nil
	}

	mine := false
	for _, name := range ev.To {
		if name == power {
			mine = true
			break
		}
	}

	if !mine {
		return nil
	}

	from, err := protocol.PowerFromName(ev.From)
	if err != nil {
		return nil
	}

	press, err := protocol.TokensFromBytes(ev.Body)
	if err != nil {
		d.log.Warn("relayed press body is not token-aligned", zap.Error(err))
		return nil
	}

	frm := &protocol.FrmNotification{From: from, Press: press}
	for _, name := range ev.To {
		if p, err := protocol.PowerFromName(name); err == nil {
			frm.To = append(frm.To, p)
		}
	}

	return []protocol.Reply{frm}
}

// === reply builders

func (d *Dispatcher) buildHello(power string) *protocol.HelloResponse {
	if power == "" {
		return nil
	}

	p, err := protocol.PowerFromName(power)
	if err != nil {
		return nil
	}

	passcode, ok := d.reg.Passcode(power)
	if !ok {
		return nil
	}

	return &protocol.HelloResponse{
		Power:       p,
		Passcode:    passcode,
		Level:       d.cfg.PressLevel,
		MoveSeconds: d.cfg.DeadlineSeconds,
	}
}

func (d *Dispatcher) buildMdf() *protocol.MdfResponse {
	mdf := &protocol.MdfResponse{}
	centres := map[string]bool{}

	for _, setup := range d.v.Powers {
		p, err := protocol.PowerFromName(setup.Name)
		if err != nil {
			continue
		}

		mdf.Powers = append(mdf.Powers, p)

		grp := protocol.ScoGroup{Owner: p}
		for _, name := range setup.Centres {
			if prov, err := protocol.ProvinceFromString(name); err == nil {
				grp.Centres = append(grp.Centres, prov)
				centres[name] = true
			}
		}

		mdf.Centres = append(mdf.Centres, grp)
	}

	neutral := protocol.ScoGroup{}
	for _, name := range d.v.NeutralCentres {
		if prov, err := protocol.ProvinceFromString(name); err == nil {
			neutral.Centres = append(neutral.Centres, prov)
			centres[name] = true
		}
	}

	mdf.Centres = append(mdf.Centres, neutral)

	for _, prov := range protocol.RegisteredProvinces() {
		if !centres[prov.String()] {
			mdf.Provinces = append(mdf.Provinces, prov)
		}
	}

	return mdf
}

func (d *Dispatcher) buildSco() *protocol.ScoResponse {
	sco := &protocol.ScoResponse{}
	owned := map[string]bool{}

	for _, state := range d.model.Powers() {
		p, err := protocol.PowerFromName(state.Name)
		if err != nil {
			continue
		}

		grp := protocol.ScoGroup{Owner: p}
		for _, name := range state.Centres {
			if prov, err := protocol.ProvinceFromString(name); err == nil {
				grp.Centres = append(grp.Centres, prov)
				owned[name] = true
			}
		}

		sco.Groups = append(sco.Groups, grp)
	}

	neutral := protocol.ScoGroup{}
	for _, name := range d.allCentres() {
		if owned[name] {
			continue
		}

		if prov, err := protocol.ProvinceFromString(name); err == nil {
			neutral.Centres = append(neutral.Centres, prov)
		}
	}

	if len(neutral.Centres) > 0 {
		sco.Groups = append(sco.Groups, neutral)
	}

	return sco
}

func (d *Dispatcher) allCentres() []string {
	names := []string{}
	for _, setup := range d.v.Powers {
		names = append(names, setup.Centres...)
	}

	return append(names, d.v.NeutralCentres...)
}

func (d *Dispatcher) buildNow() *protocol.NowResponse {
	now := &protocol.NowResponse{}

	if turn, err := protocol.TurnFromString(d.model.Phase()); err == nil {
		now.Turn = turn
	}

	for _, state := range d.model.Powers() {
		for _, u := range state.Units {
			pos, err := unitPosition(state.Name, u)
			if err != nil {
				d.log.Warn("unrenderable unit position",
					zap.String("province", u.Province), zap.Error(err))
				continue
			}

			now.Units = append(now.Units, pos)
		}
	}

	return now
}

func unitPosition(power string, u game.UnitPos) (protocol.UnitPosition, error) {
	p, err := protocol.PowerFromName(power)
	if err != nil {
		return protocol.UnitPosition{}, err
	}

	prov, err := protocol.ProvinceFromString(u.Province)
	if err != nil {
		return protocol.UnitPosition{}, err
	}

	kind := protocol.AMY
	if u.Kind == "F" {
		kind = protocol.FLT
	}

	pos := protocol.UnitPosition{
		Unit: protocol.Unit{Power: p, Type: kind, Province: prov},
	}

	for _, name := range u.Retreats {
		if opt, err := protocol.ProvinceFromString(name); err == nil {
			pos.MustRetreat = append(pos.MustRetreat, opt)
		}
	}

	return pos, nil
}

func (d *Dispatcher) buildMis(power string) (*protocol.MisResponse, error) {
	units, count, err := d.model.Missing(power)
	if err != nil {
		return nil, err
	}

	mis := &protocol.MisResponse{}
	if count != 0 {
		mis.Count = &count
		return mis, nil
	}

	for _, u := range units {
		pos, err := unitPosition(power, u)
		if err != nil {
			continue
		}

		mis.Units = append(mis.Units, pos)
	}

	return mis, nil
}

func (d *Dispatcher) buildTme() (*protocol.TmeResponse, bool) {
	deadline := d.model.Deadline()
	if deadline.IsZero() {
		return nil, false
	}

	secs := int(time.Until(deadline).Seconds())
	if secs < 0 {
		secs = 0
	}

	return &protocol.TmeResponse{Seconds: secs}, true
}

func (d *Dispatcher) buildOrd(turn protocol.Turn, res game.OrderResult) (*protocol.OrdNotification, error) {
	phase := byte('M')
	if s := turn.String(); len(s) > 0 {
		phase = s[len(s)-1]
	}

	order, err := protocol.OrderFromString(res.Power, res.Order, phase)
	if err != nil {
		return nil, err
	}

	result, err := protocol.FromSymbol(res.Result)
	if err != nil {
		return nil, err
	}

	return &protocol.OrdNotification{
		Turn:   turn,
		Order:  order,
		Result: []protocol.Token{result},
	}, nil
}

func (d *Dispatcher) buildSmr() *protocol.SmrNotification {
	smr := &protocol.SmrNotification{}

	if turn, err := protocol.TurnFromString(d.model.Phase()); err == nil {
		smr.Turn = turn
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, state := range d.model.Powers() {
		p, err := protocol.PowerFromName(state.Name)
		if err != nil {
			continue
		}

		entry := protocol.SmrEntry{
			Power:         p,
			ClientName:    "unknown",
			ClientVersion: "0",
			Centres:       len(state.Centres),
		}

		if info, ok := d.clients[state.Name]; ok {
			entry.ClientName = info.name
			entry.ClientVersion = info.version
		}

		if state.Eliminated {
			year := state.EliminatedIn
			entry.EliminatedIn = &year
		}

		smr.Entries = append(smr.Entries, entry)
	}

	return smr
}
