package domain

import "time"

// Member is one roster entry as known to the site.
type Member struct {
	SiteID    string
	Nickname  string
	DiscordID string
}

// DisplayName prefers the nickname and falls back to the site id.
func (m Member) DisplayName() string {
	if m.Nickname != "" {
		return m.Nickname
	}
	return m.SiteID
}

// Captain designates the priority speaker of a team.
type Captain struct {
	SiteID   string
	Nickname string
}

// Matches reports whether the captain designation points at m.
func (c *Captain) Matches(m Member) bool {
	if c == nil {
		return false
	}
	if c.SiteID != "" && c.SiteID == m.SiteID {
		return true
	}
	return c.SiteID == "" && c.Nickname != "" && c.Nickname == m.Nickname
}

// MatchRequest is the normalized create payload: either MinimalMatch or
// RosteredMatch. The unexported marker closes the set.
type MatchRequest interface {
	ID() MatchID
	Expiry() *time.Time
	isMatchRequest()
}

// MinimalMatch provisions an open channel pair without rosters.
type MinimalMatch struct {
	MatchID   MatchID
	ExpiresAt *time.Time
}

func (m MinimalMatch) ID() MatchID        { return m.MatchID }
func (m MinimalMatch) Expiry() *time.Time { return m.ExpiresAt }
func (MinimalMatch) isMatchRequest()      {}

// RosteredMatch provisions closed channels restricted to each team.
type RosteredMatch struct {
	MatchID   MatchID
	ExpiresAt *time.Time
	TeamA     []Member
	TeamB     []Member
	CaptainA  *Captain
	CaptainB  *Captain
}

func (m RosteredMatch) ID() MatchID        { return m.MatchID }
func (m RosteredMatch) Expiry() *time.Time { return m.ExpiresAt }
func (RosteredMatch) isMatchRequest()      {}

// Roster returns the members and captain of one team.
func (m RosteredMatch) Roster(t Team) ([]Member, *Captain) {
	if t == TeamB {
		return m.TeamB, m.CaptainB
	}
	return m.TeamA, m.CaptainA
}
