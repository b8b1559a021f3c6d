package matchlife

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/rematch-discord-bot/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultSweepInterval = 5 * time.Minute
	teardownTimeout      = 30 * time.Second
)

// SweeperState is STOPPED or RUNNING.
type SweeperState string

const (
	SweeperStopped SweeperState = "STOPPED"
	SweeperRunning SweeperState = "RUNNING"
)

// ExpiredSource lists expired ACTIVE matches.
type ExpiredSource interface {
	ExpiredMatches(ctx context.Context, now time.Time) ([]*domain.MatchChannelRecord, error)
}

// Teardowner tears down one match by id.
type Teardowner interface {
	Teardown(ctx context.Context, id domain.MatchID, override *ChannelOverride) (*TeardownResult, error)
}

// SweepReport summarizes one tick.
type SweepReport struct {
	Expired  int
	TornDown int
	Failed   int
}

// Sweeper periodically tears down expired matches. The first tick runs as
// soon as Start is called.
type Sweeper struct {
	source   ExpiredSource
	target   Teardowner
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.Mutex
	state  SweeperState
	stopCh chan struct{}
	done   chan struct{}
}

type SweeperOption func(*Sweeper)

func WithSweepLogger(l *zap.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for expiry comparisons.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper builds a stopped sweeper. A *Manager serves as both source and target.
func NewSweeper(source ExpiredSource, target Teardowner, interval time.Duration, opts ...SweeperOption) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s := &Sweeper{
		source:   source,
		target:   target,
		interval: interval,
		now:      time.Now,
		logger:   zap.NewNop(),
		state:    SweeperStopped,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sweeper) State() SweeperState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start moves STOPPED to RUNNING. Calling it while running is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SweeperRunning {
		return
	}
	s.state = SweeperRunning
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stopCh, s.done)
	s.logger.Info("sweeper_started", zap.Duration("interval", s.interval))
}

// Stop prevents further ticks and waits for an in-flight tick to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if s.state != SweeperRunning {
		s.mu.Unlock()
		return
	}
	s.state = SweeperStopped
	stopCh, done := s.stopCh, s.done
	close(stopCh)
	s.mu.Unlock()

	<-done
	s.logger.Info("sweeper_stopped")
}

func (s *Sweeper) loop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	s.Tick(context.Background())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			// Stop may race the ticker; it wins.
			select {
			case <-stopCh:
				return
			default:
			}
			s.Tick(context.Background())
		}
	}
}

// Tick runs one sweep. Failures are logged and never stop the loop.
func (s *Sweeper) Tick(ctx context.Context) SweepReport {
	var rep SweepReport
	log := s.logger.With(zap.String("sweep_id", uuid.NewString()))

	now := s.now()
	expired, err := s.source.ExpiredMatches(ctx, now)
	if err != nil {
		log.Error("sweep_query_failed", zap.Error(err))
		return rep
	}
	rep.Expired = len(expired)
	if rep.Expired == 0 {
		log.Debug("sweep_idle")
		return rep
	}

	log.Info("sweep_expired_found", zap.Int("count", rep.Expired))
	for _, rec := range expired {
		tctx, cancel := context.WithTimeout(ctx, teardownTimeout)
		_, err := s.target.Teardown(tctx, rec.MatchID, nil)
		cancel()
		if err != nil {
			rep.Failed++
			log.Warn("sweep_teardown_failed", zap.String("match_id", rec.MatchID.String()), zap.Error(err))
			continue
		}
		rep.TornDown++
	}
	log.Info("sweep_done",
		zap.Int("expired", rep.Expired),
		zap.Int("torn_down", rep.TornDown),
		zap.Int("failed", rep.Failed),
	)
	return rep
}
