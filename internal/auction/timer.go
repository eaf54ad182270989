package auction

import (
	"context"
	"time"

	"github.com/DoyleJ11/auction-backend/internal/engine"
)

// syncTimer runs exactly one ticker for the state's armed countdown. A new
// generation replaces the old ticker; ticks already queued for it are stale
// and get dropped by the engine.
func (a *Auction) syncTimer() {
	t := a.state.Timer
	if t.Kind == engine.TimerNone {
		a.haltTimer()
		return
	}
	if a.stopTimer != nil && a.timerGen == t.Gen {
		return
	}
	a.haltTimer()

	ctx, cancel := context.WithCancel(a.ctx)
	a.stopTimer = cancel
	a.timerGen = t.Gen
	go a.runTicker(ctx, t.Gen)
}

func (a *Auction) haltTimer() {
	if a.stopTimer != nil {
		a.stopTimer()
		a.stopTimer = nil
	}
}

func (a *Auction) runTicker(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(a.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case a.inbox <- timerFired{Gen: gen}:
			case <-ctx.Done():
				return
			}
		}
	}
}
