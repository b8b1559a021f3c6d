package matchlife

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/rematch-discord-bot/internal/domain"
	"github.com/park285/rematch-discord-bot/internal/matchstore"
)

func TestSweeperTickTearsDownOnlyExpired(t *testing.T) {
	m, prov, store := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	for _, seed := range []struct {
		id  domain.MatchID
		exp time.Time
	}{
		{"old1", now.Add(-2 * time.Minute)},
		{"old2", now.Add(-time.Minute)},
		{"live", now.Add(time.Hour)},
	} {
		if err := store.Upsert(ctx, seed.id, string(seed.id)+"-a", string(seed.id)+"-b", ptime(seed.exp)); err != nil {
			t.Fatalf("Upsert %s: %v", seed.id, err)
		}
	}

	s := NewSweeper(m, m, time.Hour, WithClock(func() time.Time { return now }))
	rep := s.Tick(ctx)
	if rep.Expired != 2 || rep.TornDown != 2 || rep.Failed != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	for _, id := range []domain.MatchID{"old1", "old2"} {
		if rec, _ := store.GetActiveMatch(ctx, id); rec != nil {
			t.Fatalf("%s must be torn down", id)
		}
	}
	if rec, _ := store.GetActiveMatch(ctx, "live"); rec == nil {
		t.Fatalf("live match must remain ACTIVE")
	}
	for _, id := range prov.deletedIDs() {
		if id == "live-a" || id == "live-b" {
			t.Fatalf("live channels deleted")
		}
	}
}

type flakyTeardown struct {
	inner Teardowner
	fail  domain.MatchID
	calls []domain.MatchID
}

func (f *flakyTeardown) Teardown(ctx context.Context, id domain.MatchID, o *ChannelOverride) (*TeardownResult, error) {
	f.calls = append(f.calls, id)
	if id == f.fail {
		return nil, errors.New("boom")
	}
	return f.inner.Teardown(ctx, id, o)
}

func TestSweeperContinuesPastFailures(t *testing.T) {
	m, _, store := newTestManager(t)
	ctx := context.Background()
	now := time.Now()
	for _, id := range []domain.MatchID{"a", "b", "c"} {
		if err := store.Upsert(ctx, id, "x", "y", ptime(now.Add(-time.Minute))); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	target := &flakyTeardown{inner: m, fail: "a"}
	rep := NewSweeper(m, target, time.Hour).Tick(ctx)
	if rep.Failed != 1 || rep.TornDown != 2 || len(target.calls) != 3 {
		t.Fatalf("unexpected report %+v calls=%v", rep, target.calls)
	}
}

func TestSweeperQueryFailureIsLogged(t *testing.T) {
	store := &failingStore{Store: matchstore.NewMemoryStore(), queryErr: errors.New("unavailable")}
	m := NewManager(store, newFakeProvisioner(), fixedNamer{}, "category")
	rep := NewSweeper(m, m, time.Hour).Tick(context.Background())
	if rep != (SweepReport{}) {
		t.Fatalf("expected empty report, got %+v", rep)
	}
}

type countingSource struct {
	ticks   int32
	block   chan struct{}
	started chan struct{}
}

func (c *countingSource) ExpiredMatches(context.Context, time.Time) ([]*domain.MatchChannelRecord, error) {
	n := atomic.AddInt32(&c.ticks, 1)
	if n == 1 && c.started != nil {
		close(c.started)
	}
	if c.block != nil {
		<-c.block
	}
	return nil, nil
}

func TestSweeperFirstTickIsImmediate(t *testing.T) {
	src := &countingSource{started: make(chan struct{})}
	s := NewSweeper(src, nil, time.Hour)
	s.Start()
	defer s.Stop()

	select {
	case <-src.started:
	case <-time.After(time.Second):
		t.Fatalf("first tick did not run on start")
	}
	if s.State() != SweeperRunning {
		t.Fatalf("state = %s", s.State())
	}
}

func TestSweeperStopPreventsFurtherTicks(t *testing.T) {
	src := &countingSource{}
	s := NewSweeper(src, nil, 10*time.Millisecond)
	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	if s.State() != SweeperStopped {
		t.Fatalf("state = %s", s.State())
	}
	after := atomic.LoadInt32(&src.ticks)
	if after < 2 {
		t.Fatalf("expected recurring ticks, got %d", after)
	}
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&src.ticks); got != after {
		t.Fatalf("ticks continued after Stop: %d -> %d", after, got)
	}
	// idempotent
	s.Stop()
}

func TestSweeperStopWaitsForInFlightTick(t *testing.T) {
	src := &countingSource{block: make(chan struct{}), started: make(chan struct{})}
	s := NewSweeper(src, nil, time.Hour)
	s.Start()
	<-src.started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatalf("Stop returned while a tick was in progress")
	case <-time.After(30 * time.Millisecond):
	}
	close(src.block)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("Stop did not return after the tick finished")
	}
}
