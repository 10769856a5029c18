package llm

import "encoding/json"

// Model types accepted by GET /models?type=.
const (
	ModelTypeText  = "text"
	ModelTypeImage = "image"
)

// ModelMetadata describes one model offered by the upstream API.
type ModelMetadata struct {
	ID        string    `json:"id"`
	Type      string    `json:"type,omitempty"`
	OwnedBy   string    `json:"owned_by,omitempty"`
	ModelSpec ModelSpec `json:"model_spec"`
}

// ModelSpec is the descriptive part of ModelMetadata.
type ModelSpec struct {
	Name                   string         `json:"name,omitempty"`
	Pricing                ModelPricing   `json:"pricing"`
	Capabilities           map[string]any `json:"capabilities,omitempty"`
	Constraints            map[string]any `json:"constraints,omitempty"`
	AvailableContextTokens int            `json:"availableContextTokens,omitempty"`
}

// ModelPricing keeps each price field raw: the upstream sends either a bare
// number or an object keyed by currency.
type ModelPricing struct {
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Generation json.RawMessage `json:"generation,omitempty"`
}

// DisplayName returns the spec name, falling back to the id.
func (m ModelMetadata) DisplayName() string {
	if m.ModelSpec.Name != "" {
		return m.ModelSpec.Name
	}
	return m.ID
}

// ModelList is the body of GET /models. Either key may carry the list.
type ModelList struct {
	Data   []ModelMetadata `json:"data,omitempty"`
	Models []ModelMetadata `json:"models,omitempty"`
}

// Items returns whichever list is populated, preferring data.
func (l ModelList) Items() []ModelMetadata {
	if len(l.Data) > 0 {
		return l.Data
	}
	return l.Models
}
