package settings

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/papercomputeco/veneer/pkg/llm"
)

// keyInfo maps a dotted settings key to a getter and setter on *Settings.
// Setting an optional numeric or boolean key to "" clears it.
type keyInfo struct {
	get func(s *Settings) string
	set func(s *Settings, v string) error
}

var webSearchModes = []string{"auto", "on", "off"}

var keys = map[string]keyInfo{
	"chat.model": {
		get: func(s *Settings) string { return s.Chat.Model },
		set: func(s *Settings, v string) error {
			if v == "" {
				return errors.New("chat.model cannot be empty")
			}
			s.Chat.Model = v
			return nil
		},
	},
	"chat.system_prompt": {
		get: func(s *Settings) string { return s.Chat.SystemPrompt },
		set: func(s *Settings, v string) error { s.Chat.SystemPrompt = v; return nil },
	},
	"chat.temperature":           floatKey(func(s *Settings) **float64 { return &s.Chat.Temperature }, 0, 2),
	"chat.top_p":                 floatKey(func(s *Settings) **float64 { return &s.Chat.TopP }, 0, 1),
	"chat.min_p":                 floatKey(func(s *Settings) **float64 { return &s.Chat.MinP }, 0, 1),
	"chat.max_completion_tokens": intKey(func(s *Settings) **int { return &s.Chat.MaxCompletionTokens }, 1),
	"chat.top_k":                 intKey(func(s *Settings) **int { return &s.Chat.TopK }, 0),
	"chat.repetition_penalty":    floatKey(func(s *Settings) **float64 { return &s.Chat.RepetitionPenalty }, 0, 2),

	"venice.include_venice_system_prompt": boolKey(func(s *Settings) **bool {
		return &s.Chat.VeniceParameters.IncludeVeniceSystemPrompt
	}),
	"venice.enable_web_search": {
		get: func(s *Settings) string { return s.Chat.VeniceParameters.EnableWebSearch },
		set: func(s *Settings, v string) error {
			if v != "" && !slices.Contains(webSearchModes, v) {
				return fmt.Errorf("invalid web search mode %q (available: %s)", v, strings.Join(webSearchModes, ", "))
			}
			s.Chat.VeniceParameters.EnableWebSearch = v
			return nil
		},
	},
	"venice.character_slug": {
		get: func(s *Settings) string { return s.Chat.VeniceParameters.CharacterSlug },
		set: func(s *Settings, v string) error { s.Chat.VeniceParameters.CharacterSlug = v; return nil },
	},
	"venice.strip_thinking_response": boolKey(func(s *Settings) **bool {
		return &s.Chat.VeniceParameters.StripThinkingResponse
	}),
	"venice.disable_thinking": boolKey(func(s *Settings) **bool {
		return &s.Chat.VeniceParameters.DisableThinking
	}),

	"image.model": {
		get: func(s *Settings) string { return s.Image.Model },
		set: func(s *Settings, v string) error {
			if v == "" {
				return errors.New("image.model cannot be empty")
			}
			s.Image.Model = v
			return nil
		},
	},
	"image.width":  dimensionKey(func(s *Settings) *int { return &s.Image.Width }),
	"image.height": dimensionKey(func(s *Settings) *int { return &s.Image.Height }),
	"image.format": {
		get: func(s *Settings) string { return s.Image.Format },
		set: func(s *Settings, v string) error {
			switch v {
			case "webp", "png", "jpeg":
				s.Image.Format = v
				return nil
			default:
				return fmt.Errorf("invalid image format %q (available: webp, png, jpeg)", v)
			}
		},
	},
	"image.steps":     intKey(func(s *Settings) **int { return &s.Image.Steps }, 1),
	"image.cfg_scale": floatKey(func(s *Settings) **float64 { return &s.Image.CfgScale }, 0, 20),
	"image.negative_prompt": {
		get: func(s *Settings) string { return s.Image.NegativePrompt },
		set: func(s *Settings, v string) error { s.Image.NegativePrompt = v; return nil },
	},
}

// Keys returns every supported settings key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// IsValidKey reports whether key is a supported settings key.
func IsValidKey(key string) bool {
	_, ok := keys[key]
	return ok
}

// Get returns the string form of key in s.
func (s *Settings) Get(key string) (string, error) {
	info, ok := keys[key]
	if !ok {
		return "", fmt.Errorf("unknown settings key: %q", key)
	}
	return info.get(s), nil
}

// Set parses value and assigns it to key in s.
func (s *Settings) Set(key, value string) error {
	info, ok := keys[key]
	if !ok {
		return fmt.Errorf("unknown settings key: %q", key)
	}
	return info.set(s, value)
}

func floatKey(field func(s *Settings) **float64, lo, hi float64) keyInfo {
	return keyInfo{
		get: func(s *Settings) string {
			p := *field(s)
			if p == nil {
				return ""
			}
			return strconv.FormatFloat(*p, 'f', -1, 64)
		},
		set: func(s *Settings, v string) error {
			if v == "" {
				*field(s) = nil
				return nil
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid number %q: %w", v, err)
			}
			if f < lo || f > hi {
				return fmt.Errorf("value %v out of range [%v, %v]", f, lo, hi)
			}
			*field(s) = llm.Ptr(f)
			return nil
		},
	}
}

func intKey(field func(s *Settings) **int, lo int) keyInfo {
	return keyInfo{
		get: func(s *Settings) string {
			p := *field(s)
			if p == nil {
				return ""
			}
			return strconv.Itoa(*p)
		},
		set: func(s *Settings, v string) error {
			if v == "" {
				*field(s) = nil
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer %q: %w", v, err)
			}
			if n < lo {
				return fmt.Errorf("value %d must be at least %d", n, lo)
			}
			*field(s) = llm.Ptr(n)
			return nil
		},
	}
}

func boolKey(field func(s *Settings) **bool) keyInfo {
	return keyInfo{
		get: func(s *Settings) string {
			p := *field(s)
			if p == nil {
				return ""
			}
			return strconv.FormatBool(*p)
		},
		set: func(s *Settings, v string) error {
			if v == "" {
				*field(s) = nil
				return nil
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean %q: %w", v, err)
			}
			*field(s) = llm.Ptr(b)
			return nil
		},
	}
}

func dimensionKey(field func(s *Settings) *int) keyInfo {
	return keyInfo{
		get: func(s *Settings) string { return strconv.Itoa(*field(s)) },
		set: func(s *Settings, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer %q: %w", v, err)
			}
			if n <= 0 || n > 4096 {
				return fmt.Errorf("dimension %d out of range (1-4096)", n)
			}
			*field(s) = n
			return nil
		},
	}
}
