// Package chatcmder provides the chat command for interactive LLM chat
// through the veneer proxy.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/veneer/cmd/veneer/proxyclient"
	"github.com/papercomputeco/veneer/pkg/cliui"
	"github.com/papercomputeco/veneer/pkg/conversation"
	"github.com/papercomputeco/veneer/pkg/dotdir"
	"github.com/papercomputeco/veneer/pkg/llm"
	"github.com/papercomputeco/veneer/pkg/logger"
	"github.com/papercomputeco/veneer/pkg/settings"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

type chatCommander struct {
	opts      proxyclient.Options
	configDir string
	model     string
	system    string
	resume    bool
	plain     bool
	debug     bool

	logger *slog.Logger
	dirs   *dotdir.Manager
	store  *settings.FileStore
	mgr    *conversation.Manager
}

const chatLongDesc string = `Start an interactive chat session through the veneer proxy.

Responses stream as they arrive. Each answer is followed by its token count,
throughput, cost and response time. Generation parameters come from the
settings file ("veneer settings") and are reloaded when it changes.

Ctrl+C cancels the response in flight; pressing it while idle quits.
The session is saved after every answer and "--resume" picks it up again.

Commands:
  /clear         forget the conversation
  /model <id>    switch the chat model for this session
  /exit          quit (Ctrl+D works too)

Examples:
  veneer chat
  veneer chat --model qwen3-235b --system "Answer tersely."
  veneer chat --resume`

const chatShortDesc string = "Interactive LLM chat through the veneer proxy"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return cmder.opts.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd)
		},
	}

	cmder.opts.AddFlags(cmd)
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Chat model for this session (default from settings)")
	cmd.Flags().StringVar(&cmder.system, "system", "", "System prompt for this session (default from settings)")
	cmd.Flags().BoolVarP(&cmder.resume, "resume", "r", false, "Resume the last saved conversation")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Print streamed text instead of rendered markdown")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()

	out := cmd.OutOrStdout()
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr), logger.WithComponent("chat"))
	c.dirs = dotdir.NewManager()

	cl, err := c.opts.NewClient(c.logger)
	if err != nil {
		return err
	}
	cat, err := c.opts.NewCatalog(cl, c.logger)
	if err != nil {
		return err
	}

	c.store, err = settings.NewFileStore(c.configDir, c.logger)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	go c.watchSettings(ctx)

	c.mgr, err = conversation.New(conversation.Config{
		Transport: cl,
		Params:    c.params,
		Prices:    cat,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	if err := c.restore(cmd, out); err != nil {
		return err
	}
	fmt.Fprintf(out, "  %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(c.params().Model),
	)
	fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	p := newPrinter(out, c.markdown(out))
	unsubscribe := c.mgr.Subscribe(p.handle)
	defer unsubscribe()

	go c.handleInterrupts(ctx, stop)

	lines := readLines(cmd.InOrStdin())
	for {
		fmt.Fprint(out, userPrompt)

		var in inputLine
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return c.persist()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return c.persist()
			}
			in = l
		}
		if in.err != nil {
			return fmt.Errorf("reading input: %w", in.err)
		}

		input := strings.TrimSpace(in.text)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			quit, err := c.command(out, input)
			if err != nil {
				fmt.Fprintf(out, "  %s %v\n\n", cliui.FailMark, err)
			}
			if quit {
				fmt.Fprintln(out)
				return c.persist()
			}
			continue
		}

		t, err := c.mgr.Send(ctx, input)
		if err != nil {
			fmt.Fprintf(out, "  %s %v\n\n", cliui.FailMark, err)
			continue
		}
		t.Wait()
		fmt.Fprintln(out)

		if err := c.persist(); err != nil {
			c.logger.Warn("could not save transcript", "error", err)
		}
	}
}

// params merges the session overrides into the current settings.
func (c *chatCommander) params() llm.ChatParams {
	p := c.store.ChatParams()
	if c.model != "" {
		p.Model = c.model
	}
	if c.system != "" {
		p.SystemPrompt = c.system
	}
	return p
}

func (c *chatCommander) markdown(out io.Writer) bool {
	if c.plain {
		return false
	}
	f, ok := out.(*os.File)
	return ok && cliui.IsTerminal(f)
}

func (c *chatCommander) restore(cmd *cobra.Command, out io.Writer) error {
	if !c.resume {
		fmt.Fprintf(out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
		return nil
	}

	t, err := c.dirs.LoadTranscript(c.configDir)
	if err != nil {
		return fmt.Errorf("loading transcript: %w", err)
	}
	if t == nil || len(t.Messages) == 0 {
		fmt.Fprintf(out, "  %s No saved conversation, starting a new one\n", cliui.DimStyle.Render("●"))
		return nil
	}

	if err := c.mgr.Restore(t.Messages); err != nil {
		return fmt.Errorf("restoring transcript: %w", err)
	}
	if !cmd.Flags().Changed("model") && t.Model != "" {
		c.model = t.Model
	}

	fmt.Fprintf(out, "  %s Resuming conversation %s\n",
		cliui.SuccessMark,
		cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(t.Messages))),
	)
	return nil
}

// command runs a slash command and reports whether the session should end.
func (c *chatCommander) command(out io.Writer, input string) (bool, error) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true, nil

	case "/clear":
		if err := c.mgr.Clear(); err != nil {
			return false, err
		}
		if err := c.dirs.ClearTranscript(c.configDir); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "  %s Conversation cleared\n\n", cliui.SuccessMark)
		return false, nil

	case "/model":
		if arg == "" {
			fmt.Fprintf(out, "  %s %s\n\n", cliui.KeyStyle.Render("Model:"), cliui.NameStyle.Render(c.params().Model))
			return false, nil
		}
		c.model = arg
		fmt.Fprintf(out, "  %s Switched to %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(arg))
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %q", name)
	}
}

// persist saves the transcript, or removes it once the conversation is empty.
func (c *chatCommander) persist() error {
	history := c.mgr.History()
	if len(history) == 0 {
		return c.dirs.ClearTranscript(c.configDir)
	}

	return c.dirs.SaveTranscript(&dotdir.Transcript{
		Model:    c.params().Model,
		Messages: history,
		SavedAt:  time.Now().UTC(),
	}, c.configDir)
}

func (c *chatCommander) watchSettings(ctx context.Context) {
	err := c.store.Watch(ctx, func(s settings.Settings) {
		c.logger.Debug("settings reloaded", "model", s.Chat.Model)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("settings are no longer watched", "error", err)
	}
}

// handleInterrupts cancels the turn in flight on Ctrl+C, or ends the session
// when there is none.
func (c *chatCommander) handleInterrupts(ctx context.Context, stop context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			if !c.mgr.Cancel() {
				stop()
				return
			}
		}
	}
}

type inputLine struct {
	text string
	err  error
}

// readLines scans r on its own goroutine so the session can end while a read
// is blocked.
func readLines(r io.Reader) <-chan inputLine {
	lines := make(chan inputLine)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- inputLine{text: scanner.Text()}
		}
		if err := scanner.Err(); err != nil {
			lines <- inputLine{err: err}
		}
	}()
	return lines
}
