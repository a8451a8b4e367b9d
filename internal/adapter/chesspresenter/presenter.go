package chesspresenter

import (
	"github.com/park285/Cheese-Clock/internal/coordinator"
	"github.com/park285/Cheese-Clock/internal/domain"
	"github.com/park285/Cheese-Clock/pkg/chessdto"
)

// Presenter delivers snapshots and replies to one viewer without knowing the transport.
type Presenter struct {
	format      *Formatter
	deliver     func(*chessdto.Envelope) error
	orientation domain.Side
}

func NewPresenter(format *Formatter, deliver func(*chessdto.Envelope) error, orientation domain.Side) *Presenter {
	if !orientation.Valid() {
		orientation = domain.White
	}
	return &Presenter{format: format, deliver: deliver, orientation: orientation}
}

func (p *Presenter) Orientation() domain.Side { return p.orientation }

// Flip turns this viewer's board around. Nothing else changes.
func (p *Presenter) Flip() domain.Side {
	p.orientation = p.orientation.Opponent()
	return p.orientation
}

func (p *Presenter) Snapshot(s coordinator.Snapshot) error {
	if p == nil || p.deliver == nil {
		return nil
	}
	return p.deliver(&chessdto.Envelope{Type: chessdto.MsgSnapshot, Snapshot: p.format.ToDTOSnapshot(s, p.orientation)})
}

// Reply acknowledges command id, carrying err in wire form when set.
func (p *Presenter) Reply(id string, err error) error {
	if p == nil || p.deliver == nil {
		return nil
	}
	env := &chessdto.Envelope{Type: chessdto.MsgReply, ID: id, OK: err == nil}
	if err != nil {
		de := p.format.Error(err)
		env.Error = &de
	}
	return p.deliver(env)
}

func (p *Presenter) Reject(id string, de chessdto.DomainError) error {
	if p == nil || p.deliver == nil {
		return nil
	}
	return p.deliver(&chessdto.Envelope{Type: chessdto.MsgReply, ID: id, Error: &de})
}
