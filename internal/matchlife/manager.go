package matchlife

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/rematch-discord-bot/internal/domain"
	"github.com/park285/rematch-discord-bot/internal/matchstore"
	"github.com/park285/rematch-discord-bot/internal/voice"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultMoveConcurrency = 4

// Namer renders channel names for a match side.
type Namer interface {
	ChannelName(id domain.MatchID, team domain.Team) string
}

// ChannelRef is a provisioned channel as reported to callers.
type ChannelRef struct {
	ID   string
	Name string
}

// MoveReport summarizes the best-effort member moves after a create.
type MoveReport struct {
	Moved   int
	Skipped int
	Failed  int
}

// CreationResult is returned by Create. Replayed is set when the match was
// already ACTIVE and no channels were provisioned.
type CreationResult struct {
	MatchID  domain.MatchID
	TeamA    ChannelRef
	TeamB    ChannelRef
	Replayed bool
	Moves    MoveReport
}

// ChannelOverride carries caller-supplied channel ids for teardown.
type ChannelOverride struct {
	TeamA string
	TeamB string
}

func (o *ChannelOverride) complete() bool {
	return o != nil && strings.TrimSpace(o.TeamA) != "" && strings.TrimSpace(o.TeamB) != ""
}

// TeardownSource tells which view supplied the channel ids.
type TeardownSource string

const (
	SourceOverride       TeardownSource = "override"
	SourceStore          TeardownSource = "store"
	SourceAlreadyDeleted TeardownSource = "already_deleted"
)

// TeardownResult reports what teardown attempted. Per-side delete failures
// are informational; the store transition is the outcome.
type TeardownResult struct {
	MatchID        domain.MatchID
	Source         TeardownSource
	TeamAChannelID string
	TeamBChannelID string
	TeamADeleted   bool
	TeamBDeleted   bool
}

// Manager creates and tears down the channel pair of each match.
type Manager struct {
	store      matchstore.Store
	prov       voice.Provisioner
	namer      Namer
	categoryID string
	logger     *zap.Logger

	moveLimit     int
	cleanupOrphan bool
	locks         *keyedMutex
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMoveConcurrency bounds parallel member moves after create.
func WithMoveConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.moveLimit = n
		}
	}
}

// WithOrphanCleanup enables a single best-effort delete of channels created
// by a create call that failed afterwards.
func WithOrphanCleanup(enabled bool) Option {
	return func(m *Manager) { m.cleanupOrphan = enabled }
}

func NewManager(store matchstore.Store, prov voice.Provisioner, namer Namer, categoryID string, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		prov:       prov,
		namer:      namer,
		categoryID: strings.TrimSpace(categoryID),
		logger:     zap.NewNop(),
		moveLimit:  defaultMoveConcurrency,
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create provisions both team channels, persists the record and moves
// rostered members that are already in voice.
func (m *Manager) Create(ctx context.Context, req domain.MatchRequest) (*CreationResult, error) {
	roster, err := normalize(req)
	if err != nil {
		return nil, err
	}
	id := req.ID()
	log := m.logger.With(zap.String("match_id", id.String()))

	// 동시성: 같은 match_id 의 생성/종료는 프로세스 내에서 직렬화
	unlock := m.locks.Lock(id)
	defer unlock()

	existing, err := m.store.GetActiveMatch(ctx, id)
	if err != nil {
		log.Error("match_create_lookup_failed", zap.Error(err))
		return nil, fmt.Errorf("%w: lookup: %w", ErrPersistence, err)
	}
	if existing != nil {
		// 이미 ACTIVE: 채널을 새로 만들지 않고 기존 결과 재전송
		log.Info("match_create_replayed",
			zap.String("team_a_channel_id", existing.TeamAChannelID),
			zap.String("team_b_channel_id", existing.TeamBChannelID),
		)
		return &CreationResult{
			MatchID:  id,
			TeamA:    ChannelRef{ID: existing.TeamAChannelID, Name: m.namer.ChannelName(id, domain.TeamA)},
			TeamB:    ChannelRef{ID: existing.TeamBChannelID, Name: m.namer.ChannelName(id, domain.TeamB)},
			Replayed: true,
		}, nil
	}

	log.Info("match_create", zap.Bool("rostered", roster != nil))

	chA, err := m.prov.CreateVoiceChannel(ctx, m.channelSpec(id, domain.TeamA, roster))
	if err != nil {
		log.Error("match_create_provision_failed", zap.String("team", string(domain.TeamA)), zap.Error(err))
		return nil, fmt.Errorf("%w: team %s: %w", ErrProvisioning, domain.TeamA, err)
	}
	chB, err := m.prov.CreateVoiceChannel(ctx, m.channelSpec(id, domain.TeamB, roster))
	if err != nil {
		log.Error("match_create_provision_failed",
			zap.String("team", string(domain.TeamB)),
			zap.String("orphan_channel_id", chA.ID),
			zap.Error(err),
		)
		m.compensate(ctx, log, chA)
		return nil, fmt.Errorf("%w: team %s: %w", ErrProvisioning, domain.TeamB, err)
	}

	if err := m.store.Upsert(ctx, id, chA.ID, chB.ID, req.Expiry()); err != nil {
		log.Error("match_create_persist_failed",
			zap.String("orphan_channel_a", chA.ID),
			zap.String("orphan_channel_b", chB.ID),
			zap.Error(err),
		)
		m.compensate(ctx, log, chA, chB)
		return nil, fmt.Errorf("%w: upsert: %w", ErrPersistence, err)
	}

	res := &CreationResult{
		MatchID: id,
		TeamA:   ChannelRef{ID: chA.ID, Name: chA.Name},
		TeamB:   ChannelRef{ID: chB.ID, Name: chB.Name},
	}
	if roster != nil {
		res.Moves = m.moveMembers(ctx, log, roster, chA.ID, chB.ID)
	}
	log.Info("match_created",
		zap.String("team_a_channel_id", chA.ID),
		zap.String("team_b_channel_id", chB.ID),
		zap.Int("moved", res.Moves.Moved),
		zap.Int("move_failed", res.Moves.Failed),
	)
	return res, nil
}

// normalize validates req and returns the roster when one was supplied.
func normalize(req domain.MatchRequest) (*domain.RosteredMatch, error) {
	if req == nil {
		return nil, validationErr("match_id is required")
	}
	if req.ID().IsZero() {
		return nil, validationErr("match_id is required")
	}
	var roster *domain.RosteredMatch
	switch r := req.(type) {
	case domain.MinimalMatch, *domain.MinimalMatch:
		return nil, nil
	case domain.RosteredMatch:
		roster = &r
	case *domain.RosteredMatch:
		roster = r
	default:
		return nil, validationErr("unsupported request %T", req)
	}

	verr := &ValidationError{}
	for _, team := range []domain.Team{domain.TeamA, domain.TeamB} {
		members, _ := roster.Roster(team)
		// 한쪽 팀만 비면 닫힌/열린 채널이 섞이므로 거부
		if len(members) == 0 {
			verr.add("team %s roster is empty", team)
		}
		for _, mem := range members {
			if strings.TrimSpace(mem.DiscordID) == "" {
				name := mem.DisplayName()
				verr.Missing = append(verr.Missing, MissingMember{Team: team, Name: name})
				verr.add("team %s member %q has no discord_id", team, name)
			}
		}
	}
	if !verr.empty() {
		return nil, verr
	}
	return roster, nil
}

func (m *Manager) channelSpec(id domain.MatchID, team domain.Team, roster *domain.RosteredMatch) voice.ChannelSpec {
	spec := voice.ChannelSpec{Name: m.namer.ChannelName(id, team), ParentID: m.categoryID}
	if roster == nil {
		return spec
	}
	members, captain := roster.Roster(team)
	for _, mem := range members {
		spec.Grants = append(spec.Grants, voice.MemberGrant{
			MemberID:   strings.TrimSpace(mem.DiscordID),
			CanConnect: true,
			CanSpeak:   true,
			IsPriority: captain.Matches(mem),
		})
	}
	return spec
}

func (m *Manager) compensate(ctx context.Context, log *zap.Logger, chs ...*voice.Channel) {
	if !m.cleanupOrphan {
		return
	}
	for _, ch := range chs {
		if err := m.prov.DeleteVoiceChannel(ctx, ch.ID); err != nil {
			log.Warn("match_create_orphan_cleanup_failed", zap.String("channel_id", ch.ID), zap.Error(err))
			continue
		}
		log.Info("match_create_orphan_removed", zap.String("channel_id", ch.ID))
	}
}

func (m *Manager) moveMembers(ctx context.Context, log *zap.Logger, roster *domain.RosteredMatch, chA, chB string) MoveReport {
	var (
		mu  sync.Mutex
		rep MoveReport
		g   errgroup.Group
	)
	g.SetLimit(m.moveLimit)
	for _, side := range []struct {
		team    domain.Team
		channel string
	}{{domain.TeamA, chA}, {domain.TeamB, chB}} {
		members, _ := roster.Roster(side.team)
		for _, mem := range members {
			memberID := strings.TrimSpace(mem.DiscordID)
			channel := side.channel
			team := side.team
			g.Go(func() error {
				moved, err := m.prov.MoveMember(ctx, memberID, channel)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					rep.Failed++
					log.Warn("match_member_move_failed",
						zap.String("team", string(team)),
						zap.String("member_id", memberID),
						zap.Error(err),
					)
				case moved:
					rep.Moved++
				default:
					rep.Skipped++
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return rep
}

// Teardown deletes both channels of a match and marks it DELETED. A complete
// override wins over the stored ids. A match that is already DELETED yields
// success without remote calls.
func (m *Manager) Teardown(ctx context.Context, id domain.MatchID, override *ChannelOverride) (*TeardownResult, error) {
	if id.IsZero() {
		return nil, validationErr("match_id is required")
	}
	log := m.logger.With(zap.String("match_id", id.String()))

	unlock := m.locks.Lock(id)
	defer unlock()

	res := &TeardownResult{MatchID: id}
	switch {
	case override.complete():
		res.Source = SourceOverride
		res.TeamAChannelID = strings.TrimSpace(override.TeamA)
		res.TeamBChannelID = strings.TrimSpace(override.TeamB)
	default:
		rec, err := m.store.GetActiveMatch(ctx, id)
		if err != nil {
			log.Error("match_teardown_lookup_failed", zap.Error(err))
			return nil, fmt.Errorf("%w: lookup: %w", ErrPersistence, err)
		}
		if rec != nil {
			res.Source = SourceStore
			res.TeamAChannelID = rec.TeamAChannelID
			res.TeamBChannelID = rec.TeamBChannelID
			break
		}
		prior, err := m.store.GetMatch(ctx, id)
		if err != nil {
			log.Error("match_teardown_lookup_failed", zap.Error(err))
			return nil, fmt.Errorf("%w: lookup: %w", ErrPersistence, err)
		}
		if prior != nil && prior.Status == domain.StatusDeleted {
			log.Info("match_teardown_already_deleted")
			res.Source = SourceAlreadyDeleted
			res.TeamAChannelID = prior.TeamAChannelID
			res.TeamBChannelID = prior.TeamBChannelID
			return res, nil
		}
		log.Warn("match_teardown_not_found")
		return nil, ErrNotFound
	}

	log.Info("match_teardown",
		zap.String("source", string(res.Source)),
		zap.String("team_a_channel_id", res.TeamAChannelID),
		zap.String("team_b_channel_id", res.TeamBChannelID),
	)
	res.TeamADeleted = m.deleteSide(ctx, log, domain.TeamA, res.TeamAChannelID)
	res.TeamBDeleted = m.deleteSide(ctx, log, domain.TeamB, res.TeamBChannelID)

	if err := m.store.MarkDeleted(ctx, id); err != nil {
		// Channels are gone but the record may still read ACTIVE.
		log.Error("match_teardown_mark_deleted_failed",
			zap.Bool("team_a_deleted", res.TeamADeleted),
			zap.Bool("team_b_deleted", res.TeamBDeleted),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: mark deleted: %w", ErrPersistence, err)
	}
	log.Info("match_torn_down",
		zap.Bool("team_a_deleted", res.TeamADeleted),
		zap.Bool("team_b_deleted", res.TeamBDeleted),
	)
	return res, nil
}

func (m *Manager) deleteSide(ctx context.Context, log *zap.Logger, team domain.Team, channelID string) bool {
	if strings.TrimSpace(channelID) == "" {
		log.Warn("match_teardown_side_missing", zap.String("team", string(team)))
		return false
	}
	if err := m.prov.DeleteVoiceChannel(ctx, channelID); err != nil {
		log.Warn("match_teardown_side_failed",
			zap.String("team", string(team)),
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// ExpiredMatches returns the records the sweeper should tear down.
func (m *Manager) ExpiredMatches(ctx context.Context, now time.Time) ([]*domain.MatchChannelRecord, error) {
	recs, err := m.store.GetExpiredActiveMatches(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%w: expired query: %w", ErrPersistence, err)
	}
	return recs, nil
}
