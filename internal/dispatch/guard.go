package dispatch

import (
	"sync"

	"ibctl/internal/channel"
	ibcerr "ibctl/internal/errors"
	"ibctl/util"
)

// guard is the Replier handed to handlers for one command cycle.  It
// lets exactly one ack or nack through.  After Seal, ack and nack are
// refused outright so a scheduled sub-step cannot answer a command
// that has already been answered; INFO lines still pass.
type guard struct {
	ch      channel.Replier
	keyword string
	log     *util.Logger

	mu      sync.Mutex
	replied bool
	acked   bool
	sealed  bool
	werr    error // first channel write failure during the cycle
}

var _ channel.Replier = (*guard)(nil)

func newGuard(ch channel.Replier, keyword string, log *util.Logger) *guard {
	return &guard{ch: ch, keyword: keyword, log: log}
}

func (g *guard) WriteAck(msg string) error  { return g.settle(true, msg) }
func (g *guard) WriteNack(msg string) error { return g.settle(false, msg) }

func (g *guard) WriteInfo(msg string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.ch.WriteInfo(msg)
	if err != nil && !g.sealed && g.werr == nil {
		g.werr = err
	}
	return err
}

// Replied reports whether an ack or nack has been written.
func (g *guard) Replied() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.replied
}

// Seal closes the cycle.  It reports whether the reply was an ack and
// the first channel failure seen while the cycle was open.
func (g *guard) Seal() (acked bool, werr error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sealed = true
	return g.acked, g.werr
}

func (g *guard) settle(ack bool, msg string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.replied || g.sealed {
		g.log.Warn("%s: dropped extra reply %q", g.keyword, msg)
		return ibcerr.ErrAlreadyReplied
	}
	g.replied = true
	g.acked = ack

	var err error
	if ack {
		err = g.ch.WriteAck(msg)
	} else {
		err = g.ch.WriteNack(msg)
	}
	if err != nil && g.werr == nil {
		g.werr = err
	}
	return err
}
