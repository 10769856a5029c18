package llm

// Usage is the authoritative token accounting reported by the upstream API.
// Each category is optional and independent of the others.
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
	TotalTokens      *int `json:"total_tokens,omitempty"`
}

// Merge overlays the categories present in other onto u.
func (u *Usage) Merge(other *Usage) {
	if other == nil {
		return
	}
	if other.PromptTokens != nil {
		u.PromptTokens = clonePtr(other.PromptTokens)
	}
	if other.CompletionTokens != nil {
		u.CompletionTokens = clonePtr(other.CompletionTokens)
	}
	if other.TotalTokens != nil {
		u.TotalTokens = clonePtr(other.TotalTokens)
	}
}

// Empty reports whether no category is present.
func (u *Usage) Empty() bool {
	return u == nil || (u.PromptTokens == nil && u.CompletionTokens == nil && u.TotalTokens == nil)
}

// ChatCompletion is a single, non-streaming chat response.
type ChatCompletion struct {
	ID      string   `json:"id,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion alternative. Streaming chunks carry Delta,
// complete responses carry Message.
type Choice struct {
	Index        int            `json:"index"`
	Delta        *ChoiceContent `json:"delta,omitempty"`
	Message      *ChoiceContent `json:"message,omitempty"`
	FinishReason *string        `json:"finish_reason,omitempty"`
}

// ChoiceContent is the content-bearing part of a choice. A nil Content means
// the field was absent.
type ChoiceContent struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// ErrorResponse is the JSON error body returned by the proxy.
type ErrorResponse struct {
	Error string `json:"error"`
}
