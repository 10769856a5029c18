package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/papercomputeco/veneer/pkg/llm"
)

// Transcript is a saved chat session that `veneer chat --resume` picks up.
type Transcript struct {
	// Model is the chat model the session last used.
	Model string `json:"model,omitempty"`

	// Messages is the conversation history in chronological order.
	Messages []llm.Message `json:"messages"`

	SavedAt time.Time `json:"saved_at"`
}

// LoadTranscript loads the transcript from a target .veneer/transcript.json.
// Returns nil, nil if no transcript has been saved.
func (m *Manager) LoadTranscript(overrideDir string) (*Transcript, error) {
	path, err := m.File(overrideDir, TranscriptFile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	t := &Transcript{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parsing transcript: %w", err)
	}

	return t, nil
}

// SaveTranscript persists t to a target .veneer/transcript.json.
func (m *Manager) SaveTranscript(t *Transcript, overrideDir string) error {
	if t == nil {
		return errors.New("cannot save nil transcript")
	}

	path, err := m.File(overrideDir, TranscriptFile)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling transcript: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}

	return nil
}

// ClearTranscript removes the saved transcript. Returns nil if none exists.
func (m *Manager) ClearTranscript(overrideDir string) error {
	path, err := m.File(overrideDir, TranscriptFile)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing transcript: %w", err)
	}

	return nil
}
