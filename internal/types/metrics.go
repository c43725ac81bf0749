package types

import "time"

// Metrics captures the cost of a capability invocation.
type Metrics struct {
	PromptTokens     int           `yaml:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int           `yaml:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int           `yaml:"total_tokens" json:"total_tokens"`
	CostUSD          float64       `yaml:"cost_usd" json:"cost_usd"`
	Duration         time.Duration `yaml:"duration" json:"duration"`
	Rounds           int           `yaml:"rounds,omitempty" json:"rounds,omitempty"`

	// Score is the 0-10 quality score, set only by capabilities that
	// produce one. Nil means "no score", which is distinct from 0.
	Score *float64 `yaml:"score,omitempty" json:"score,omitempty"`

	// Model records which provider model served the invocation, empty for
	// deterministic capabilities.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`
}

// Add accumulates another invocation into m. Token counts, cost, and
// duration sum; the most recent score and model win.
func (m *Metrics) Add(other Metrics) {
	m.PromptTokens += other.PromptTokens
	m.CompletionTokens += other.CompletionTokens
	m.TotalTokens += other.TotalTokens
	m.CostUSD += other.CostUSD
	m.Duration += other.Duration
	m.Rounds += other.Rounds
	if other.Score != nil {
		m.Score = other.Score
	}
	if other.Model != "" {
		m.Model = other.Model
	}
}

// ScoreValue returns the score and whether one is present.
func (m Metrics) ScoreValue() (float64, bool) {
	if m.Score == nil {
		return 0, false
	}
	return *m.Score, true
}

// ScoreOf is a convenience for building score pointers in literals.
func ScoreOf(v float64) *float64 {
	return &v
}
