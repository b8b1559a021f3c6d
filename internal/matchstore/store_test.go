package matchstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/rematch-discord-bot/internal/domain"
	"github.com/redis/go-redis/v9"
)

type storeFactory func(t *testing.T) Store

func backends(t *testing.T) map[string]storeFactory {
	t.Helper()
	out := map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "match_channels.json"), nil)
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			return s
		},
		"redis": func(t *testing.T) Store {
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis: %v", err)
			}
			t.Cleanup(mr.Close)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			s := NewRedisStore(rdb, nil)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		out["postgres"] = func(t *testing.T) Store {
			s, err := NewPostgresStore(context.Background(), dsn)
			if err != nil {
				t.Fatalf("NewPostgresStore: %v", err)
			}
			if _, err := s.db.Exec(`TRUNCATE match_channels`); err != nil {
				t.Fatalf("truncate: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}
	}
	return out
}

func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range backends(t) {
		factory := factory
		t.Run(name, func(t *testing.T) { fn(t, factory(t)) })
	}
}

func tp(t time.Time) *time.Time { return &t }

func TestUpsertReplacesRecord(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		t1 := time.Now().Add(time.Hour)
		t2 := time.Now().Add(2 * time.Hour)

		if err := s.Upsert(ctx, "5", "A", "B", &t1); err != nil {
			t.Fatalf("Upsert#1: %v", err)
		}
		if err := s.Upsert(ctx, "5", "A2", "B2", &t2); err != nil {
			t.Fatalf("Upsert#2: %v", err)
		}
		rec, err := s.GetActiveMatch(ctx, "5")
		if err != nil || rec == nil {
			t.Fatalf("GetActiveMatch: rec=%v err=%v", rec, err)
		}
		if rec.TeamAChannelID != "A2" || rec.TeamBChannelID != "B2" {
			t.Fatalf("channels not replaced: %+v", rec)
		}
		if rec.ExpiresAt == nil || rec.ExpiresAt.UnixMilli() != t2.UnixMilli() {
			t.Fatalf("expiry not replaced: %v want %v", rec.ExpiresAt, t2)
		}
		if rec.CreatedAt.IsZero() {
			t.Fatalf("created_at not set")
		}

		// exactly one record: marking deleted hides it entirely
		if err := s.MarkDeleted(ctx, "5"); err != nil {
			t.Fatalf("MarkDeleted: %v", err)
		}
		if rec, _ := s.GetActiveMatch(ctx, "5"); rec != nil {
			t.Fatalf("record still active after MarkDeleted: %+v", rec)
		}
	})
}

func TestDeletedRecordIsNotActive(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Upsert(ctx, "9", "A", "B", nil); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if err := s.MarkDeleted(ctx, "9"); err != nil {
			t.Fatalf("MarkDeleted: %v", err)
		}
		if rec, err := s.GetActiveMatch(ctx, "9"); err != nil || rec != nil {
			t.Fatalf("GetActiveMatch after delete: rec=%v err=%v", rec, err)
		}
		rec, err := s.GetMatch(ctx, "9")
		if err != nil || rec == nil {
			t.Fatalf("GetMatch after delete: rec=%v err=%v", rec, err)
		}
		if rec.Status != domain.StatusDeleted {
			t.Fatalf("status = %s, want DELETED", rec.Status)
		}
	})
}

func TestMarkDeletedIdempotent(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.MarkDeleted(ctx, "missing"); err != nil {
			t.Fatalf("MarkDeleted on missing: %v", err)
		}
		if err := s.Upsert(ctx, "3", "A", "B", nil); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := s.MarkDeleted(ctx, "3"); err != nil {
				t.Fatalf("MarkDeleted#%d: %v", i, err)
			}
		}
		rec, _ := s.GetMatch(ctx, "3")
		if rec == nil || rec.Status != domain.StatusDeleted {
			t.Fatalf("expected DELETED record, got %+v", rec)
		}
	})
}

func TestExpiredActiveMatchesExactness(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now()

		must := func(err error) {
			t.Helper()
			if err != nil {
				t.Fatalf("setup: %v", err)
			}
		}
		must(s.Upsert(ctx, "expired", "A1", "B1", tp(now.Add(-time.Minute))))
		must(s.Upsert(ctx, "older", "A2", "B2", tp(now.Add(-time.Hour))))
		must(s.Upsert(ctx, "live", "A3", "B3", tp(now.Add(time.Minute))))
		must(s.Upsert(ctx, "never", "A4", "B4", nil))
		must(s.Upsert(ctx, "gone", "A5", "B5", tp(now.Add(-time.Minute))))
		must(s.MarkDeleted(ctx, "gone"))

		got, err := s.GetExpiredActiveMatches(ctx, now)
		if err != nil {
			t.Fatalf("GetExpiredActiveMatches: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 expired records, got %d (%+v)", len(got), got)
		}
		if got[0].MatchID != "older" || got[1].MatchID != "expired" {
			t.Fatalf("unexpected order/ids: %s, %s", got[0].MatchID, got[1].MatchID)
		}

		// far future: only "never" and the deleted record stay out
		far, err := s.GetExpiredActiveMatches(ctx, now.Add(1000*time.Hour))
		if err != nil {
			t.Fatalf("GetExpiredActiveMatches(far): %v", err)
		}
		for _, r := range far {
			if r.MatchID == "never" || r.MatchID == "gone" {
				t.Fatalf("record %s must never be reported as expired", r.MatchID)
			}
		}
		if len(far) != 3 {
			t.Fatalf("expected 3 expired records in the far future, got %d", len(far))
		}
	})
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		if err := s.Upsert(context.Background(), "", "A", "B", nil); err == nil {
			t.Fatalf("expected error for empty match id")
		}
	})
}
