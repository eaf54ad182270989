package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/auction-backend/internal/engine"
	"github.com/DoyleJ11/auction-backend/pkg/types"
)

// EvtPersistenceFailure tags the broadcast sent when a resolved lot could not
// be recorded. The lot stays in settling until an operator retries or resets it.
const EvtPersistenceFailure = "persistence_failure"

// settle records the pending sale and only then applies it. When the store
// keeps failing nothing is debited and the lot is held.
func (a *Auction) settle() error {
	rec, ok := engine.PendingSale(a.state)
	if !ok {
		return &engine.RejectError{Code: engine.CodePreconditionFailed, Reason: "no resolved lot to settle"}
	}

	if err := a.persist(rec); err != nil {
		a.settleFailed = true
		a.version++
		a.logger.Error("settlement held",
			zap.String("player", rec.PlayerID),
			zap.String("team", rec.TeamID),
			zap.String("price", rec.Price.String()),
			zap.Error(err),
		)
		snap := Snapshot(a.state, a.version, true)
		a.hubBroadcast(types.ServerMessage{
			Type:    types.MsgEvent,
			Event:   &types.Event{Type: EvtPersistenceFailure, Team: rec.TeamID, PlayerID: rec.PlayerID, Amount: rec.Price.String(), RTM: rec.RTMUsed},
			Version: a.version,
			State:   &snap,
			Code:    string(engine.CodePersistenceFailure),
			Error:   err.Error(),
		})
		return persistenceError(err)
	}

	events, next, err := engine.Settle(a.state)
	if err != nil {
		// The record is durable but memory disagrees; surface it loudly.
		a.logger.Error("settle after persist failed", zap.String("player", rec.PlayerID), zap.Error(err))
		return err
	}
	return a.commit(events, next)
}

// persist appends rec with exponential backoff between attempts.
func (a *Auction) persist(rec engine.SaleRecord) error {
	var lastErr error
	backoff := a.opts.PersistBackoff

	for attempt := 0; attempt < a.opts.PersistRetries; attempt++ {
		if attempt > 0 {
			a.logger.Debug("retrying sale write", zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
			select {
			case <-a.ctx.Done():
				return a.ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		ctx, cancel := context.WithTimeout(a.ctx, a.opts.PersistTimeout)
		err := a.store.AppendSale(ctx, rec)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) && a.ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", a.opts.PersistRetries, lastErr)
}

func (a *Auction) retrySettlement() error {
	if a.state.Phase != engine.PhaseSettling {
		return &engine.RejectError{Code: engine.CodePreconditionFailed, Reason: "no settlement pending"}
	}
	a.settleFailed = false
	return a.settle()
}

func persistenceError(err error) error {
	return &engine.RejectError{Code: engine.CodePersistenceFailure, Reason: fmt.Sprintf("sale log unavailable: %v", err)}
}
