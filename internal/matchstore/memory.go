package matchstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/park285/rematch-discord-bot/internal/domain"
)

// memstore is a process-local store used for development and tests.
type memstore struct {
	mu      sync.RWMutex
	records map[domain.MatchID]*domain.MatchChannelRecord
	now     func() time.Time
}

func NewMemoryStore() Store {
	return &memstore{records: make(map[domain.MatchID]*domain.MatchChannelRecord), now: time.Now}
}

func (m *memstore) Upsert(ctx context.Context, id domain.MatchID, teamA, teamB string, expiresAt *time.Time) error {
	if id.IsZero() {
		return domain.ErrEmptyMatchID
	}
	rec := newRecord(id, teamA, teamB, expiresAt, m.now())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = rec
	return nil
}

func (m *memstore) GetActiveMatch(ctx context.Context, id domain.MatchID) (*domain.MatchChannelRecord, error) {
	rec, err := m.GetMatch(ctx, id)
	if err != nil || !rec.Active() {
		return nil, err
	}
	return rec, nil
}

func (m *memstore) GetMatch(ctx context.Context, id domain.MatchID) (*domain.MatchChannelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[id].Clone(), nil
}

func (m *memstore) GetExpiredActiveMatches(ctx context.Context, now time.Time) ([]*domain.MatchChannelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return collectExpired(mapValues(m.records), now), nil
}

func (m *memstore) MarkDeleted(ctx context.Context, id domain.MatchID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		rec.Status = domain.StatusDeleted
	}
	return nil
}

func (m *memstore) Close() error { return nil }

func mapValues(in map[domain.MatchID]*domain.MatchChannelRecord) []*domain.MatchChannelRecord {
	out := make([]*domain.MatchChannelRecord, 0, len(in))
	for _, r := range in {
		out = append(out, r)
	}
	return out
}

// collectExpired filters and clones expired records, oldest expiry first.
func collectExpired(all []*domain.MatchChannelRecord, now time.Time) []*domain.MatchChannelRecord {
	out := []*domain.MatchChannelRecord{}
	for _, r := range all {
		if r.ExpiredAt(now) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(*out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
		}
		return out[i].MatchID < out[j].MatchID
	})
	return out
}
