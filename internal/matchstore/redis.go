package matchstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/rematch-discord-bot/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const markDeletedRetries = 3

// RedisStore keeps one JSON record per match under match:<id> and an expiry
// index in the match:expiry sorted set (score = expires_at in ms). Only
// ACTIVE records with an expiry are indexed.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewRedisStore(rdb *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{rdb: rdb, logger: logger, now: time.Now}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("REDIS_URL: %w", ErrMissingURL)
	}
	opts, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}

func keyMatch(id domain.MatchID) string { return "match:" + strings.TrimSpace(string(id)) }
func keyExpiry() string                 { return "match:expiry" }

func (s *RedisStore) Upsert(ctx context.Context, id domain.MatchID, teamA, teamB string, expiresAt *time.Time) error {
	if id.IsZero() {
		return domain.ErrEmptyMatchID
	}
	rec := newRecord(id, teamA, teamB, expiresAt, s.now())
	raw, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, keyMatch(id), raw, 0)
		if rec.ExpiresAt != nil {
			p.ZAdd(ctx, keyExpiry(), redis.Z{Score: float64(rec.ExpiresAt.UnixMilli()), Member: string(id)})
		} else {
			p.ZRem(ctx, keyExpiry(), string(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis upsert %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) GetActiveMatch(ctx context.Context, id domain.MatchID) (*domain.MatchChannelRecord, error) {
	rec, err := s.GetMatch(ctx, id)
	if err != nil || !rec.Active() {
		return nil, err
	}
	return rec, nil
}

func (s *RedisStore) GetMatch(ctx context.Context, id domain.MatchID) (*domain.MatchChannelRecord, error) {
	raw, err := s.rdb.Get(ctx, keyMatch(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		s.logger.Warn("match_store_bad_record", zap.String("match_id", id.String()), zap.Error(err))
		return nil, nil
	}
	return rec, nil
}

func (s *RedisStore) GetExpiredActiveMatches(ctx context.Context, now time.Time) ([]*domain.MatchChannelRecord, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, keyExpiry(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	var cands []*domain.MatchChannelRecord
	for _, member := range ids {
		rec, err := s.GetMatch(ctx, domain.MatchID(member))
		if err != nil {
			return nil, err
		}
		if rec == nil || !rec.Active() {
			// 인덱스 정리: 레코드 없음/DELETED
			_ = s.rdb.ZRem(ctx, keyExpiry(), member).Err()
			continue
		}
		cands = append(cands, rec)
	}
	return collectExpired(cands, now), nil
}

func (s *RedisStore) MarkDeleted(ctx context.Context, id domain.MatchID) error {
	key := keyMatch(id)
	var err error
	for attempt := 0; attempt < markDeletedRetries; attempt++ {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return nil
			}
			if err != nil {
				return err
			}
			rec, derr := decodeRecord(raw)
			if derr != nil || !rec.Active() {
				return nil
			}
			rec.Status = domain.StatusDeleted
			updated, err := encodeRecord(rec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, updated, 0)
				p.ZRem(ctx, keyExpiry(), string(id))
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("redis mark deleted %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
