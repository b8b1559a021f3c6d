package webhook

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/park285/rematch-discord-bot/internal/domain"
	"github.com/park285/rematch-discord-bot/internal/matchlife"
	"github.com/park285/rematch-discord-bot/pkg/matchdto"
)

// toMatchRequest normalizes the wire body into MinimalMatch or RosteredMatch.
func toMatchRequest(body matchdto.CreateMatchRequest) (domain.MatchRequest, error) {
	id, err := domain.ParseMatchID(body.MatchID.String())
	if err != nil {
		return nil, err
	}
	exp, err := parseExpiry(body.ExpiresAt)
	if err != nil {
		return nil, err
	}

	a, b := body.Rosters()
	if len(a) == 0 && len(b) == 0 {
		return domain.MinimalMatch{MatchID: id, ExpiresAt: exp}, nil
	}
	return domain.RosteredMatch{
		MatchID:   id,
		ExpiresAt: exp,
		TeamA:     toMembers(a),
		TeamB:     toMembers(b),
		CaptainA:  toCaptain(body.CaptainA),
		CaptainB:  toCaptain(body.CaptainB),
	}, nil
}

// parseExpiry reads epoch milliseconds; empty means no expiry.
func parseExpiry(v matchdto.Scalar) (*time.Time, error) {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil, fmt.Errorf("expires_at must be epoch milliseconds, got %q", s)
	}
	t := time.UnixMilli(int64(f)).UTC()
	return &t, nil
}

func toMembers(in []matchdto.Player) []domain.Member {
	out := make([]domain.Member, 0, len(in))
	for _, p := range in {
		out = append(out, domain.Member{
			SiteID:    p.ID.String(),
			Nickname:  strings.TrimSpace(p.Nickname),
			DiscordID: p.DiscordID.String(),
		})
	}
	return out
}

func toCaptain(c *matchdto.Captain) *domain.Captain {
	if c == nil || (c.ID == "" && strings.TrimSpace(c.Nickname) == "") {
		return nil
	}
	return &domain.Captain{SiteID: c.ID.String(), Nickname: strings.TrimSpace(c.Nickname)}
}

func toOverride(o *matchdto.ChannelOverride) *matchlife.ChannelOverride {
	if o == nil {
		return nil
	}
	return &matchlife.ChannelOverride{TeamA: o.TeamA.String(), TeamB: o.TeamB.String()}
}

func toCreateResponse(res *matchlife.CreationResult, rostered bool) matchdto.CreateMatchResponse {
	out := matchdto.CreateMatchResponse{
		Success: true,
		MatchID: res.MatchID.String(),
		Channels: matchdto.Channels{
			TeamA: matchdto.Channel{ID: res.TeamA.ID, Name: res.TeamA.Name},
			TeamB: matchdto.Channel{ID: res.TeamB.ID, Name: res.TeamB.Name},
		},
		Replayed: res.Replayed,
	}
	if rostered && !res.Replayed {
		out.Moves = &matchdto.MoveSummary{Moved: res.Moves.Moved, Skipped: res.Moves.Skipped, Failed: res.Moves.Failed}
	}
	return out
}
