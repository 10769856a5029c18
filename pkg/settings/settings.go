// Package settings persists the user's chat and image preferences as a JSON
// blob in the .veneer/ directory.
package settings

import (
	"maps"

	"github.com/papercomputeco/veneer/pkg/llm"
)

const (
	// DefaultChatModel is used until the user picks a model.
	DefaultChatModel = "llama-3.3-70b"

	// DefaultImageModel is used by veneer image until the user picks a model.
	DefaultImageModel = "hidream"
)

// Settings is the full preferences blob.
type Settings struct {
	Chat  llm.ChatParams `json:"chat"`
	Image ImageDefaults  `json:"image"`
}

// ImageDefaults are the generation options applied to image requests.
type ImageDefaults struct {
	Model          string   `json:"model"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	Format         string   `json:"format"`
	Steps          *int     `json:"steps,omitempty"`
	CfgScale       *float64 `json:"cfg_scale,omitempty"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
}

// Defaults returns the settings used when nothing has been saved.
func Defaults() Settings {
	return Settings{
		Chat: llm.ChatParams{
			Model:       DefaultChatModel,
			Temperature: llm.Ptr(0.7),
			TopP:        llm.Ptr(0.9),
			VeniceParameters: llm.VeniceParameters{
				IncludeVeniceSystemPrompt: llm.Ptr(true),
			},
		},
		Image: ImageDefaults{
			Model:  DefaultImageModel,
			Width:  1024,
			Height: 1024,
			Format: "webp",
		},
	}
}

// Clone returns a copy that shares no maps with s. Pointer fields are shared;
// they are replaced, never written through.
func (s Settings) Clone() Settings {
	out := s
	if s.Chat.VeniceParameters.Extra != nil {
		out.Chat.VeniceParameters.Extra = maps.Clone(s.Chat.VeniceParameters.Extra)
	}
	return out
}

// ImageRequest builds a generation request for prompt from the image defaults.
func (d ImageDefaults) ImageRequest(prompt string) *llm.ImageRequest {
	return &llm.ImageRequest{
		Model:          d.Model,
		Prompt:         prompt,
		Width:          d.Width,
		Height:         d.Height,
		Format:         d.Format,
		Steps:          d.Steps,
		CfgScale:       d.CfgScale,
		NegativePrompt: d.NegativePrompt,
	}
}
