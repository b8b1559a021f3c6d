package matchstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/park285/rematch-discord-bot/internal/domain"
)

// Store persists match channel records. Every backend satisfies the same
// contract: keyed upsert, one-way status transition and an expiry query.
type Store interface {
	// Upsert writes a new ACTIVE record, replacing any record with the same id.
	// The write is durable before Upsert returns.
	Upsert(ctx context.Context, id domain.MatchID, teamAChannelID, teamBChannelID string, expiresAt *time.Time) error
	// GetActiveMatch returns nil, nil when the record is missing or DELETED.
	GetActiveMatch(ctx context.Context, id domain.MatchID) (*domain.MatchChannelRecord, error)
	// GetMatch returns the record regardless of status, nil when missing.
	GetMatch(ctx context.Context, id domain.MatchID) (*domain.MatchChannelRecord, error)
	// GetExpiredActiveMatches returns ACTIVE records whose expiry is before now.
	GetExpiredActiveMatches(ctx context.Context, now time.Time) ([]*domain.MatchChannelRecord, error)
	// MarkDeleted is a no-op for missing or already DELETED records.
	MarkDeleted(ctx context.Context, id domain.MatchID) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Errors
var (
	ErrUnknownBackend = errf("unknown store backend")
	ErrMissingURL     = errf("store backend requires a connection url")
	ErrInvalidRecord  = errf("invalid match record")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// wireRecord is the persisted JSON layout shared by the file and Redis
// backends. Times are epoch milliseconds; match_id may be a legacy number.
type wireRecord struct {
	MatchID        domain.MatchID     `json:"match_id"`
	TeamAChannelID string             `json:"team_a_channel_id"`
	TeamBChannelID string             `json:"team_b_channel_id"`
	CreatedAt      int64              `json:"created_at"`
	ExpiresAt      *int64             `json:"expires_at"`
	Status         domain.MatchStatus `json:"status"`
}

func toWire(r *domain.MatchChannelRecord) wireRecord {
	w := wireRecord{
		MatchID:        r.MatchID,
		TeamAChannelID: r.TeamAChannelID,
		TeamBChannelID: r.TeamBChannelID,
		CreatedAt:      r.CreatedAt.UnixMilli(),
		Status:         r.Status,
	}
	if r.ExpiresAt != nil {
		ms := r.ExpiresAt.UnixMilli()
		w.ExpiresAt = &ms
	}
	return w
}

func (w wireRecord) toDomain() (*domain.MatchChannelRecord, error) {
	if w.MatchID.IsZero() {
		return nil, ErrInvalidRecord
	}
	status := w.Status
	if status != domain.StatusActive && status != domain.StatusDeleted {
		return nil, ErrInvalidRecord
	}
	r := &domain.MatchChannelRecord{
		MatchID:        w.MatchID,
		TeamAChannelID: w.TeamAChannelID,
		TeamBChannelID: w.TeamBChannelID,
		CreatedAt:      domain.UnixMillis(w.CreatedAt),
		Status:         status,
	}
	if w.ExpiresAt != nil {
		t := domain.UnixMillis(*w.ExpiresAt)
		r.ExpiresAt = &t
	}
	return r, nil
}

func encodeRecord(r *domain.MatchChannelRecord) ([]byte, error) {
	return json.Marshal(toWire(r))
}

func decodeRecord(raw []byte) (*domain.MatchChannelRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return w.toDomain()
}

// newRecord builds the ACTIVE record written by Upsert. Times are truncated
// to milliseconds so every backend round-trips the same value.
func newRecord(id domain.MatchID, teamA, teamB string, expiresAt *time.Time, now time.Time) *domain.MatchChannelRecord {
	r := &domain.MatchChannelRecord{
		MatchID:        id,
		TeamAChannelID: teamA,
		TeamBChannelID: teamB,
		CreatedAt:      now.UTC().Truncate(time.Millisecond),
		Status:         domain.StatusActive,
	}
	if expiresAt != nil {
		t := expiresAt.UTC().Truncate(time.Millisecond)
		r.ExpiresAt = &t
	}
	return r
}
