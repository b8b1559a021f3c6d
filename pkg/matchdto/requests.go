package matchdto

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Scalar holds a JSON string or number as text. The site sends ids both ways.
type Scalar string

func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = Scalar(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("expected a string or number")
	}
	*s = Scalar(n.String())
	return nil
}

func (s Scalar) String() string { return string(s) }

type Player struct {
	ID        Scalar `json:"id"`
	Nickname  string `json:"nickname"`
	DiscordID Scalar `json:"discord_id"`
}

type Captain struct {
	ID       Scalar `json:"id"`
	Nickname string `json:"nickname"`
}

type Teams struct {
	TeamA []Player `json:"team_a"`
	TeamB []Player `json:"team_b"`
}

// CreateMatchRequest is the body of the match-created webhook. Rosters arrive
// either nested under teams or at the top level.
type CreateMatchRequest struct {
	MatchID   Scalar   `json:"match_id"`
	ExpiresAt Scalar   `json:"expires_at"`
	Teams     *Teams   `json:"teams,omitempty"`
	TeamA     []Player `json:"team_a,omitempty"`
	TeamB     []Player `json:"team_b,omitempty"`
	CaptainA  *Captain `json:"captain_a,omitempty"`
	CaptainB  *Captain `json:"captain_b,omitempty"`
}

// Rosters returns the team lists, preferring the nested form.
func (r CreateMatchRequest) Rosters() (a, b []Player) {
	if r.Teams != nil && (len(r.Teams.TeamA) > 0 || len(r.Teams.TeamB) > 0) {
		return r.Teams.TeamA, r.Teams.TeamB
	}
	return r.TeamA, r.TeamB
}

type ChannelOverride struct {
	TeamA Scalar `json:"team_a"`
	TeamB Scalar `json:"team_b"`
}

// TeardownMatchRequest is the body of the match-finished webhook.
type TeardownMatchRequest struct {
	MatchID  Scalar           `json:"match_id"`
	Channels *ChannelOverride `json:"channels,omitempty"`
}
