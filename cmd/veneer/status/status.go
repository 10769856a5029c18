// Package statuscmder provides the status command for displaying the saved
// chat transcript of the .veneer directory.
package statuscmder

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/veneer/pkg/cliui"
	"github.com/papercomputeco/veneer/pkg/dotdir"
	"github.com/papercomputeco/veneer/pkg/llm"
	"github.com/papercomputeco/veneer/pkg/utils"
)

const statusLongDesc string = `Show the saved chat session.

Reads the local .veneer/ directory (or ~/.veneer/) to display the conversation
that "veneer chat --resume" would pick up, with a preview of every message.

Examples:
  veneer status`

const statusShortDesc string = "Show the saved chat session"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runStatus(cmd.OutOrStdout(), configDir)
		},
	}

	return cmd
}

func runStatus(out io.Writer, configDir string) error {
	manager := dotdir.NewManager()

	t, err := manager.LoadTranscript(configDir)
	if err != nil {
		return fmt.Errorf("loading transcript: %w", err)
	}

	if t == nil || len(t.Messages) == 0 {
		fmt.Fprintf(out, "  %s No saved conversation. Next chat will start a new one.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Fprintf(out, "\n  %s  %s\n", cliui.KeyStyle.Render("Model:   "), cliui.NameStyle.Render(t.Model))
	fmt.Fprintf(out, "  %s  %s\n", cliui.KeyStyle.Render("Saved:   "), cliui.ValueStyle.Render(t.SavedAt.Local().Format("2006-01-02 15:04:05")))
	fmt.Fprintf(out, "  %s  %s\n\n", cliui.KeyStyle.Render("Messages:"), cliui.NameStyle.Render(strconv.Itoa(len(t.Messages))))

	for i, msg := range t.Messages {
		preview := utils.Truncate(msg.Content, 72)
		if msg.Notice {
			preview = cliui.NoticeStyle.Render(preview)
		} else {
			preview = cliui.PreviewStyle.Render(preview)
		}

		fmt.Fprintf(out, "  %s %s %s%s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%d.", i+1)),
			cliui.RoleStyle.Render("["+msg.Role+"]"),
			preview,
			statusSuffix(msg),
		)
	}

	fmt.Fprintln(out)
	return nil
}

// statusSuffix marks assistant messages that did not complete.
func statusSuffix(msg llm.Message) string {
	switch msg.Status {
	case llm.StatusCancelled, llm.StatusFailed:
		return " " + cliui.WarnStyle.Render("("+string(msg.Status)+")")
	default:
		return ""
	}
}
