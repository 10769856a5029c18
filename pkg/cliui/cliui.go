// Package cliui provides reusable terminal UI helpers (spinners, step indicators,
// styles, markdown rendering) for veneer CLI commands.
package cliui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/papercomputeco/veneer/pkg/llm"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))

	HeaderStyle  = lipgloss.NewStyle().Bold(true)
	KeyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "0", Dark: "255"})
	NameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	WarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	NoticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	RoleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	PreviewStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "236", Dark: "252"})
)

// spinnerFrames matches bubbletea's spinner.Dot pattern.
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Step prints an animated spinner while fn runs, then replaces it with
// a ✓ or ✗ checkmark and elapsed time.
func Step(w io.Writer, msg string, fn func() error) error {
	done := make(chan struct{})
	var mu sync.Mutex

	// Run spinner animation in background
	go func() {
		frame := 0
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			mu.Lock()
			fmt.Fprintf(w, "\r  %s %s",
				spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]),
				msg,
			)
			mu.Unlock()

			select {
			case <-done:
				return
			case <-ticker.C:
				frame++
			}
		}
	}()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	close(done)

	// Clear the spinner line and print final result
	mu.Lock()
	fmt.Fprintf(w, "\r  %s %s %s\n",
		Mark(err),
		msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)
	mu.Unlock()

	return err
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// FormatMetrics renders the known metrics as a single dim line, e.g.
// "42 tokens · 18.5 tok/s · $0.0012 · 2.3s". Unknown metrics are omitted.
func FormatMetrics(m *llm.Metrics) string {
	if m == nil {
		return ""
	}

	var parts []string
	if m.TotalTokens != nil {
		parts = append(parts, fmt.Sprintf("%d tokens", *m.TotalTokens))
	}
	if m.TokensPerSecond != nil {
		parts = append(parts, fmt.Sprintf("%.1f tok/s", *m.TokensPerSecond))
	}
	if m.Cost != nil {
		parts = append(parts, fmt.Sprintf("$%.4f", *m.Cost))
	}
	if m.ResponseTime != nil {
		parts = append(parts, FormatDuration(*m.ResponseTime))
	}
	return strings.Join(parts, " · ")
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// RenderMarkdown renders markdown content for terminal display using glamour.
// The style follows the terminal background.
func RenderMarkdown(content string) (string, error) {
	style := "light"
	if termenv.HasDarkBackground() {
		style = "dark"
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return rendered, nil
}
