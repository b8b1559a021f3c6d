package matchlife

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/park285/rematch-discord-bot/internal/domain"
	"github.com/park285/rematch-discord-bot/internal/matchstore"
	"github.com/park285/rematch-discord-bot/internal/voice"
)

type fakeProvisioner struct {
	mu sync.Mutex

	nextID    int
	created   []voice.ChannelSpec
	deleted   []string
	moved     map[string]string
	createErr map[int]error // keyed by 1-based create call number
	deleteErr map[string]error
	moveErr   map[string]error
	inVoice   map[string]bool
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{
		moved:     map[string]string{},
		createErr: map[int]error{},
		deleteErr: map[string]error{},
		moveErr:   map[string]error{},
		inVoice:   map[string]bool{},
	}
}

func (f *fakeProvisioner) CreateVoiceChannel(_ context.Context, spec voice.ChannelSpec) (*voice.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if err := f.createErr[f.nextID]; err != nil {
		return nil, err
	}
	f.created = append(f.created, spec)
	return &voice.Channel{ID: fmt.Sprintf("vc-%d", f.nextID), Name: spec.Name}, nil
}

func (f *fakeProvisioner) DeleteVoiceChannel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr[id]
}

func (f *fakeProvisioner) MoveMember(_ context.Context, memberID, channelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.moveErr[memberID]; err != nil {
		return false, err
	}
	if !f.inVoice[memberID] {
		return false, nil
	}
	f.moved[memberID] = channelID
	return true, nil
}

func (f *fakeProvisioner) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeProvisioner) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type fixedNamer struct{}

func (fixedNamer) ChannelName(id domain.MatchID, team domain.Team) string {
	label := "Time A"
	if team == domain.TeamB {
		label = "Time B"
	}
	return "Partida #" + id.String() + " | " + label
}

// failingStore wraps a store and injects errors on selected operations.
type failingStore struct {
	matchstore.Store
	upsertErr     error
	markDeleteErr error
	queryErr      error
}

func (s *failingStore) Upsert(ctx context.Context, id domain.MatchID, a, b string, exp *time.Time) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.Store.Upsert(ctx, id, a, b, exp)
}

func (s *failingStore) MarkDeleted(ctx context.Context, id domain.MatchID) error {
	if s.markDeleteErr != nil {
		return s.markDeleteErr
	}
	return s.Store.MarkDeleted(ctx, id)
}

func (s *failingStore) GetExpiredActiveMatches(ctx context.Context, now time.Time) ([]*domain.MatchChannelRecord, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.Store.GetExpiredActiveMatches(ctx, now)
}

var errRemote = errors.New("remote api failure")

func ptime(t time.Time) *time.Time { return &t }
