package matchdto

type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Channels struct {
	TeamA Channel `json:"team_a"`
	TeamB Channel `json:"team_b"`
}

type MoveSummary struct {
	Moved   int `json:"moved"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type CreateMatchResponse struct {
	Success  bool         `json:"success"`
	MatchID  string       `json:"match_id"`
	Channels Channels     `json:"channels"`
	Replayed bool         `json:"replayed,omitempty"`
	Moves    *MoveSummary `json:"moves,omitempty"`
}

type TeardownMatchResponse struct {
	Success        bool   `json:"success"`
	MatchID        string `json:"match_id"`
	Source         string `json:"source,omitempty"`
	AlreadyDeleted bool   `json:"already_deleted,omitempty"`
}

type ErrorResponse struct {
	Success   bool     `json:"success"`
	Error     string   `json:"error"`
	Code      string   `json:"code,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
	Details   []string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Bot     string `json:"bot"`
	Store   string `json:"store,omitempty"`
	Sweeper string `json:"sweeper,omitempty"`
}
