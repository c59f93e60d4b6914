package httpexec

import (
	"time"

	"github.com/velmie/netq"
)

type stage int

const (
	stageResolve stage = iota
	stageConnect
	stageTransfer
	stageDone
)

// phases accumulates DNS, handshake and transfer time across redirect hops.
// The stage in progress is charged up to now when a Timing is taken.
type phases struct {
	clock     netq.Clock
	start     time.Time
	mark      time.Time
	stage     stage
	dns       time.Duration
	handshake time.Duration
	transfer  time.Duration
}

func newPhases(clock netq.Clock) *phases {
	now := clock.Now()

	return &phases{clock: clock, start: now, mark: now, stage: stageDone}
}

func (p *phases) beginHop() {
	p.mark = p.clock.Now()
	p.stage = stageResolve
}

func (p *phases) resolved() {
	now := p.clock.Now()
	p.dns += now.Sub(p.mark)
	p.mark = now
	p.stage = stageConnect
}

func (p *phases) connected() {
	now := p.clock.Now()
	p.handshake += now.Sub(p.mark)
	p.mark = now
	p.stage = stageTransfer
}

func (p *phases) hopDone() {
	now := p.clock.Now()
	p.transfer += now.Sub(p.mark)
	p.mark = now
	p.stage = stageDone
}

func (p *phases) timing() netq.Timing {
	now := p.clock.Now()
	t := netq.Timing{
		Total:     now.Sub(p.start),
		DNS:       p.dns,
		Handshake: p.handshake,
		Transfer:  p.transfer,
	}

	running := now.Sub(p.mark)
	switch p.stage {
	case stageResolve:
		t.DNS += running
	case stageConnect:
		t.Handshake += running
	case stageTransfer:
		t.Transfer += running
	}

	return t
}
