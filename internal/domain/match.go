package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// MatchID is the canonical string form of a site-assigned match identifier.
// The site sends either a JSON number or a numeric string; both normalize to
// the same value so store lookups never depend on the producer's typing.
type MatchID string

var ErrEmptyMatchID = errors.New("match_id is required")

// ParseMatchID trims s and folds integral numeric forms ("42", "42.0", "042")
// to their decimal representation. Digit strings of any length keep every
// digit; only leading zeros are dropped. Other ids are kept as trimmed text.
func ParseMatchID(s string) (MatchID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyMatchID
	}
	if d, ok := integralDigits(s); ok {
		return MatchID(d), nil
	}
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return MatchID(strconv.FormatInt(int64(f), 10)), nil
		}
	}
	return MatchID(s), nil
}

// integralDigits accepts [-]digits with an optional all-zero fraction and
// returns the digits without leading zeros.
func integralDigits(s string) (string, bool) {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if whole, frac, found := strings.Cut(s, "."); found {
		if frac == "" || strings.Trim(frac, "0") != "" {
			return "", false
		}
		s = whole
	}
	if s == "" || strings.Trim(s, "0123456789") != "" {
		return "", false
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0", true
	}
	if neg {
		return "-" + s, true
	}
	return s, true
}

func (id MatchID) String() string { return string(id) }

func (id MatchID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

// UnmarshalJSON accepts numbers and strings. null leaves the id empty so the
// caller's validation reports it as missing.
func (id *MatchID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	var raw string
	switch b[0] {
	case '"':
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		if strings.TrimSpace(raw) == "" {
			*id = ""
			return nil
		}
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return errors.New("match_id must be a number or a string")
		}
		raw = n.String()
	}
	parsed, err := ParseMatchID(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MatchStatus is the lifecycle of a match channel pair. ACTIVE moves to
// DELETED once and never back.
type MatchStatus string

const (
	StatusActive  MatchStatus = "ACTIVE"
	StatusDeleted MatchStatus = "DELETED"
)

// MatchChannelRecord maps a match to its two provisioned voice channels.
type MatchChannelRecord struct {
	MatchID        MatchID
	TeamAChannelID string
	TeamBChannelID string
	CreatedAt      time.Time
	ExpiresAt      *time.Time
	Status         MatchStatus
}

func (r *MatchChannelRecord) Active() bool { return r != nil && r.Status == StatusActive }

// ExpiredAt reports whether the record is ACTIVE with an expiry strictly before now.
func (r *MatchChannelRecord) ExpiredAt(now time.Time) bool {
	return r.Active() && r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// Clone returns a deep copy so stores never hand out their internal pointers.
func (r *MatchChannelRecord) Clone() *MatchChannelRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Team identifies one side of a match.
type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

// UnixMillis converts an epoch-milliseconds value to a UTC time.
func UnixMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
