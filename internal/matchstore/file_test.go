package matchstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreCorruptDocumentResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "match_channels.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if got, _ := s.GetExpiredActiveMatches(context.Background(), time.Now().Add(time.Hour)); len(got) != 0 {
		t.Fatalf("expected empty store, got %d records", len(got))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string][]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("reset document is not valid json: %v (%s)", err, raw)
	}
	if list, ok := doc["match_channels"]; !ok || len(list) != 0 {
		t.Fatalf("expected empty match_channels array, got %s", raw)
	}
}

func TestFileStoreMissingFileIsCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	if _, err := NewFileStore(path, nil); err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected store file to be created: %v", err)
	}
}

func TestFileStoreDurableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "match_channels.json")
	ctx := context.Background()
	exp := time.Now().Add(-time.Minute)

	s, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Upsert(ctx, "42", "a", "b", &exp); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	reopened, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rec, err := reopened.GetActiveMatch(ctx, "42")
	if err != nil || rec == nil {
		t.Fatalf("GetActiveMatch after reopen: rec=%v err=%v", rec, err)
	}
	if rec.TeamAChannelID != "a" || rec.TeamBChannelID != "b" {
		t.Fatalf("unexpected channels: %+v", rec)
	}
	if rec.ExpiresAt == nil || rec.ExpiresAt.UnixMilli() != exp.UnixMilli() {
		t.Fatalf("expiry lost: %v", rec.ExpiresAt)
	}
}

func TestFileStoreReadsLegacyNumericIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "match_channels.json")
	legacy := `{
  "match_channels": [
    {"match_id": 17, "team_a_channel_id": "111", "team_b_channel_id": "222",
     "created_at": 1700000000000, "expires_at": 1700007200000, "status": "ACTIVE"},
    {"match_id": "18", "team_a_channel_id": "333", "team_b_channel_id": "444",
     "created_at": 1700000000000, "expires_at": null, "status": "DELETED"},
    {"team_a_channel_id": "broken"}
  ]
}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	rec, _ := s.GetActiveMatch(ctx, "17")
	if rec == nil || rec.TeamAChannelID != "111" {
		t.Fatalf("numeric match_id not normalized: %+v", rec)
	}
	if rec.ExpiresAt == nil || rec.ExpiresAt.UnixMilli() != 1700007200000 {
		t.Fatalf("expires_at not decoded: %v", rec.ExpiresAt)
	}
	if rec, _ := s.GetActiveMatch(ctx, "18"); rec != nil {
		t.Fatalf("deleted legacy record reported active")
	}
	if rec, _ := s.GetMatch(ctx, "18"); rec == nil || rec.ExpiresAt != nil {
		t.Fatalf("legacy deleted record lost or gained an expiry: %+v", rec)
	}
}
