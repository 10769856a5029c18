package storage

import (
	"errors"
	"time"
)

// Turn is one chat completion relayed by the proxy.
type Turn struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	Stream     bool   `json:"stream"`
	StatusCode int    `json:"status_code"`

	// Prompt is the content of the last user message in the request.
	Prompt   string `json:"prompt"`
	Response string `json:"response"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`

	// Estimated is set when the upstream reported no usage and the token
	// counts were derived from text length.
	Estimated bool `json:"estimated"`

	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Validate checks the fields every driver requires.
func (t *Turn) Validate() error {
	if t == nil {
		return errors.New("cannot store nil turn")
	}
	if t.ID == "" {
		return errors.New("turn id is required")
	}
	return nil
}

// TotalTokens is the sum of prompt and completion tokens.
func (t *Turn) TotalTokens() int {
	return t.PromptTokens + t.CompletionTokens
}
