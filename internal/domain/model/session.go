package model

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message represents one message within a session's history.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Generation defaults applied when a SessionConfig leaves them unset.
const (
	DefaultTemperature = 0.7
	DefaultTopK        = 40
)

// SessionConfig holds caller-supplied generation parameters. Immutable once
// a session is created from it; create a new session to change it.
type SessionConfig struct {
	Temperature  float64 `json:"temperature"`
	TopK         int     `json:"top_k"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
}

// WithDefaults returns a copy with zero generation parameters replaced by
// the package defaults.
func (c SessionConfig) WithDefaults() SessionConfig {
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	return c
}

// Session is the caller-visible handle for a conversation. The owning
// adapter keeps all private state (history, native handles) in its own
// table keyed by ID; nothing outside that adapter may interpret it.
type Session struct {
	ID       string        `json:"id"`
	Provider string        `json:"provider"`
	Config   SessionConfig `json:"config"`
}
