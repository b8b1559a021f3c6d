package matchstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/rematch-discord-bot/internal/domain"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS match_channels (
    match_id          TEXT PRIMARY KEY,
    team_a_channel_id TEXT NOT NULL,
    team_b_channel_id TEXT NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL,
    expires_at        TIMESTAMPTZ NULL,
    status            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS match_channels_expiry_idx
    ON match_channels (expires_at) WHERE status = 'ACTIVE' AND expires_at IS NOT NULL;`

const selectColumns = `match_id, team_a_channel_id, team_b_channel_id, created_at, expires_at, status`

// PostgresStore keeps one row per match keyed by match_id.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore opens databaseURL, pings it and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL: %w", ErrMissingURL)
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(pctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

func (r *PostgresStore) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresStore) Upsert(ctx context.Context, id domain.MatchID, teamA, teamB string, expiresAt *time.Time) error {
	if id.IsZero() {
		return domain.ErrEmptyMatchID
	}
	rec := newRecord(id, teamA, teamB, expiresAt, r.now())

	q := `INSERT INTO match_channels (
        match_id, team_a_channel_id, team_b_channel_id, created_at, expires_at, status
      ) VALUES ($1,$2,$3,$4,$5,$6)
      ON CONFLICT (match_id) DO UPDATE SET
        team_a_channel_id=EXCLUDED.team_a_channel_id,
        team_b_channel_id=EXCLUDED.team_b_channel_id,
        created_at=EXCLUDED.created_at,
        expires_at=EXCLUDED.expires_at,
        status=EXCLUDED.status`

	var exp sql.NullTime
	if rec.ExpiresAt != nil {
		exp = sql.NullTime{Time: *rec.ExpiresAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q,
		string(rec.MatchID), rec.TeamAChannelID, rec.TeamBChannelID,
		rec.CreatedAt, exp, string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("upsert match %s: %w", id, err)
	}
	return nil
}

func (r *PostgresStore) GetActiveMatch(ctx context.Context, id domain.MatchID) (*domain.MatchChannelRecord, error) {
	q := `SELECT ` + selectColumns + ` FROM match_channels WHERE match_id=$1 AND status='ACTIVE'`
	return r.queryOne(ctx, q, string(id))
}

func (r *PostgresStore) GetMatch(ctx context.Context, id domain.MatchID) (*domain.MatchChannelRecord, error) {
	q := `SELECT ` + selectColumns + ` FROM match_channels WHERE match_id=$1`
	return r.queryOne(ctx, q, string(id))
}

func (r *PostgresStore) GetExpiredActiveMatches(ctx context.Context, now time.Time) ([]*domain.MatchChannelRecord, error) {
	q := `SELECT ` + selectColumns + ` FROM match_channels
      WHERE status='ACTIVE' AND expires_at IS NOT NULL AND expires_at < $1
      ORDER BY expires_at ASC, match_id ASC`
	rows, err := r.db.QueryContext(ctx, q, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.MatchChannelRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresStore) MarkDeleted(ctx context.Context, id domain.MatchID) error {
	q := `UPDATE match_channels SET status='DELETED' WHERE match_id=$1 AND status='ACTIVE'`
	if _, err := r.db.ExecContext(ctx, q, string(id)); err != nil {
		return fmt.Errorf("mark deleted %s: %w", id, err)
	}
	return nil
}

func (r *PostgresStore) queryOne(ctx context.Context, q string, args ...any) (*domain.MatchChannelRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.MatchChannelRecord, error) {
	var (
		id, a, b, status string
		created          time.Time
		exp              sql.NullTime
	)
	if err := row.Scan(&id, &a, &b, &created, &exp, &status); err != nil {
		return nil, err
	}
	rec := &domain.MatchChannelRecord{
		MatchID:        domain.MatchID(id),
		TeamAChannelID: a,
		TeamBChannelID: b,
		CreatedAt:      created.UTC(),
		Status:         domain.MatchStatus(status),
	}
	if exp.Valid {
		t := exp.Time.UTC()
		rec.ExpiresAt = &t
	}
	return rec, nil
}
