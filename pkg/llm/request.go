package llm

// ChatMessage is a message as sent to the model: role and plain text content.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams are the user-tunable generation parameters for a chat turn.
type ChatParams struct {
	Model               string           `json:"model"`
	SystemPrompt        string           `json:"system_prompt,omitempty"`
	Temperature         *float64         `json:"temperature,omitempty"`
	TopP                *float64         `json:"top_p,omitempty"`
	MinP                *float64         `json:"min_p,omitempty"`
	MaxCompletionTokens *int             `json:"max_completion_tokens,omitempty"`
	TopK                *int             `json:"top_k,omitempty"`
	RepetitionPenalty   *float64         `json:"repetition_penalty,omitempty"`
	VeniceParameters    VeniceParameters `json:"venice_parameters,omitzero"`
}

// VeniceParameters are the provider-specific request options.
// Extra carries options this client does not model explicitly.
type VeniceParameters struct {
	IncludeVeniceSystemPrompt *bool          `json:"include_venice_system_prompt,omitempty"`
	EnableWebSearch           string         `json:"enable_web_search,omitempty"`
	CharacterSlug             string         `json:"character_slug,omitempty"`
	StripThinkingResponse     *bool          `json:"strip_thinking_response,omitempty"`
	DisableThinking           *bool          `json:"disable_thinking,omitempty"`
	Extra                     map[string]any `json:"extra,omitempty"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Model               string         `json:"model"`
	Messages            []ChatMessage  `json:"messages"`
	Stream              bool           `json:"stream"`
	Temperature         *float64       `json:"temperature,omitempty"`
	TopP                *float64       `json:"top_p,omitempty"`
	MinP                *float64       `json:"min_p,omitempty"`
	MaxCompletionTokens *int           `json:"max_completion_tokens,omitempty"`
	TopK                *int           `json:"top_k,omitempty"`
	RepetitionPenalty   *float64       `json:"repetition_penalty,omitempty"`
	VeniceParameters    map[string]any `json:"venice_parameters"`
	StreamOptions       *StreamOptions `json:"stream_options,omitempty"`
}

// StreamOptions asks the upstream to append a usage event to the stream.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// NewChatRequest builds a streaming request from params and the message context.
func NewChatRequest(params ChatParams, messages []ChatMessage) *ChatRequest {
	return &ChatRequest{
		Model:               params.Model,
		Messages:            messages,
		Stream:              true,
		Temperature:         params.Temperature,
		TopP:                params.TopP,
		MinP:                params.MinP,
		MaxCompletionTokens: params.MaxCompletionTokens,
		TopK:                params.TopK,
		RepetitionPenalty:   params.RepetitionPenalty,
		VeniceParameters:    params.VeniceParameters.Map(),
		StreamOptions:       &StreamOptions{IncludeUsage: true},
	}
}

// Map flattens the parameters into the JSON object sent upstream.
// The result is never nil.
func (v VeniceParameters) Map() map[string]any {
	out := make(map[string]any, len(v.Extra)+5)
	for k, val := range v.Extra {
		out[k] = val
	}
	if v.IncludeVeniceSystemPrompt != nil {
		out["include_venice_system_prompt"] = *v.IncludeVeniceSystemPrompt
	}
	if v.EnableWebSearch != "" {
		out["enable_web_search"] = v.EnableWebSearch
	}
	if v.CharacterSlug != "" {
		out["character_slug"] = v.CharacterSlug
	}
	if v.StripThinkingResponse != nil {
		out["strip_thinking_response"] = *v.StripThinkingResponse
	}
	if v.DisableThinking != nil {
		out["disable_thinking"] = *v.DisableThinking
	}
	return out
}

// PromptText concatenates the message contents, used for input token estimates.
func PromptText(messages []ChatMessage) string {
	n := 0
	for _, m := range messages {
		n += len(m.Content)
	}

	buf := make([]byte, 0, n)
	for _, m := range messages {
		buf = append(buf, m.Content...)
	}
	return string(buf)
}
