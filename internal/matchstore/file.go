package matchstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/park285/rematch-discord-bot/internal/domain"
	"go.uber.org/zap"
)

const DefaultFilePath = "match_channels.json"

// fileDocument is the on-disk layout: a single JSON document holding every record.
type fileDocument struct {
	MatchChannels []json.RawMessage `json:"match_channels"`
}

// FileStore keeps all records in one JSON document, rewritten atomically on
// every mutation (temp file, fsync, rename).
type FileStore struct {
	mu      sync.Mutex
	path    string
	records []*domain.MatchChannelRecord
	logger  *zap.Logger
	now     func() time.Time
}

// NewFileStore loads path. A missing, unreadable or corrupt document is
// replaced by an empty one which is written out before returning.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultFilePath
	}
	s := &FileStore{path: path, logger: logger, now: time.Now}

	recs, err := s.load()
	switch {
	case err == nil:
		s.records = recs
		s.logger.Info("match_store_loaded", zap.String("path", path), zap.Int("records", len(recs)))
		return s, nil
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info("match_store_init", zap.String("path", path))
	default:
		s.logger.Warn("match_store_corrupt_reset", zap.String("path", path), zap.Error(err))
	}

	if err := s.persist(nil); err != nil {
		return nil, fmt.Errorf("initialize match store: %w", err)
	}
	return s, nil
}

func (s *FileStore) load() ([]*domain.MatchChannelRecord, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if doc.MatchChannels == nil {
		return nil, fmt.Errorf("decode %s: missing match_channels", s.path)
	}
	out := make([]*domain.MatchChannelRecord, 0, len(doc.MatchChannels))
	seen := make(map[domain.MatchID]int, len(doc.MatchChannels))
	for i, item := range doc.MatchChannels {
		rec, err := decodeRecord(item)
		if err != nil {
			s.logger.Warn("match_store_skip_record", zap.Int("index", i), zap.Error(err))
			continue
		}
		// Later entries win, matching replace-on-save semantics.
		if at, ok := seen[rec.MatchID]; ok {
			out[at] = rec
			continue
		}
		seen[rec.MatchID] = len(out)
		out = append(out, rec)
	}
	return out, nil
}

// persist writes recs to a temp file next to the target and renames it into place.
func (s *FileStore) persist(recs []*domain.MatchChannelRecord) error {
	doc := fileDocument{MatchChannels: make([]json.RawMessage, 0, len(recs))}
	for _, r := range recs {
		raw, err := encodeRecord(r)
		if err != nil {
			return err
		}
		doc.MatchChannels = append(doc.MatchChannels, raw)
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return err
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func (s *FileStore) Upsert(ctx context.Context, id domain.MatchID, teamA, teamB string, expiresAt *time.Time) error {
	if id.IsZero() {
		return domain.ErrEmptyMatchID
	}
	rec := newRecord(id, teamA, teamB, expiresAt, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]*domain.MatchChannelRecord, 0, len(s.records)+1)
	for _, r := range s.records {
		if r.MatchID != id {
			next = append(next, r)
		}
	}
	next = append(next, rec)
	if err := s.persist(next); err != nil {
		return fmt.Errorf("persist match %s: %w", id, err)
	}
	s.records = next
	return nil
}

func (s *FileStore) GetActiveMatch(ctx context.Context, id domain.MatchID) (*domain.MatchChannelRecord, error) {
	rec, err := s.GetMatch(ctx, id)
	if err != nil || !rec.Active() {
		return nil, err
	}
	return rec, nil
}

func (s *FileStore) GetMatch(ctx context.Context, id domain.MatchID) (*domain.MatchChannelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.MatchID == id {
			return r.Clone(), nil
		}
	}
	return nil, nil
}

func (s *FileStore) GetExpiredActiveMatches(ctx context.Context, now time.Time) ([]*domain.MatchChannelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return collectExpired(s.records, now), nil
}

func (s *FileStore) MarkDeleted(ctx context.Context, id domain.MatchID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, r := range s.records {
		if r.MatchID == id {
			idx = i
			break
		}
	}
	if idx < 0 || !s.records[idx].Active() {
		return nil
	}
	next := append([]*domain.MatchChannelRecord(nil), s.records...)
	updated := next[idx].Clone()
	updated.Status = domain.StatusDeleted
	next[idx] = updated
	if err := s.persist(next); err != nil {
		return fmt.Errorf("persist match %s: %w", id, err)
	}
	s.records = next
	return nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Close() error { return nil }
