// Package store persists sale records, the append-only history that budgets,
// squads and match-right flags are rebuilt from at startup.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/DoyleJ11/auction-backend/internal/engine"
)

var ErrUnavailable = errors.New("store unavailable")

// ErrConflict means a different sale is already stored for the player.
var ErrConflict = errors.New("conflicting sale already stored")

// sameSale accepts a stored record identical to rec.
func sameSale(stored, rec engine.SaleRecord) error {
	if stored.TeamID == rec.TeamID && stored.Price.Equal(rec.Price) && stored.RTMUsed == rec.RTMUsed {
		return nil
	}
	return fmt.Errorf("%w: player %s held by %s at %s", ErrConflict, rec.PlayerID, stored.TeamID, stored.Price)
}

// Memory keeps sales in process. It backs tests and deployments without a
// database; FailNext injects outages.
type Memory struct {
	mu       sync.Mutex
	records  []engine.SaleRecord
	failures int
	lost     int
}

func NewMemory(seed ...engine.SaleRecord) *Memory {
	return &Memory{records: append([]engine.SaleRecord(nil), seed...)}
}

// LoseReplies makes the next n appends store the record but report
// ErrUnavailable, as when a commit lands after the caller gave up.
func (m *Memory) LoseReplies(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lost = n
}

// FailNext makes the next n calls return ErrUnavailable.
func (m *Memory) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

func (m *Memory) fail() error {
	if m.failures > 0 {
		m.failures--
		return ErrUnavailable
	}
	return nil
}

func (m *Memory) AppendSale(ctx context.Context, rec engine.SaleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.fail(); err != nil {
		return err
	}
	for _, stored := range m.records {
		if stored.PlayerID == rec.PlayerID {
			return sameSale(stored, rec)
		}
	}
	m.records = append(m.records, rec)
	if m.lost > 0 {
		m.lost--
		return ErrUnavailable
	}
	return nil
}

func (m *Memory) LoadSales(ctx context.Context) ([]engine.SaleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return append([]engine.SaleRecord(nil), m.records...), nil
}

func (m *Memory) TruncateSales(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.records = nil
	return nil
}

func (m *Memory) Close() error { return nil }
