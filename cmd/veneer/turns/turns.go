// Package turnscmder provides the turns command that lists the chat turns a
// proxy recorded into SQLite.
package turnscmder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/veneer/cmd/veneer/sqlitepath"
	"github.com/papercomputeco/veneer/pkg/cliui"
	"github.com/papercomputeco/veneer/pkg/storage"
	"github.com/papercomputeco/veneer/pkg/storage/sqlite"
	"github.com/papercomputeco/veneer/pkg/utils"
)

type turnsCommander struct {
	sqlitePath string
	model      string
	limit      int
	jsonOut    bool
}

const turnsLongDesc string = `List the chat turns recorded by "veneer serve --sqlite".

The database is read directly, so the proxy does not need to be running.
Without --sqlite the path comes from $VENEER_SQLITE, then ./veneer.db,
./.veneer/veneer.db and ~/.veneer/veneer.db.

Token counts prefixed with "~" were estimated from text length because the
upstream reported no usage.

Examples:
  veneer turns
  veneer turns --model llama-3.3-70b --limit 5
  veneer turns --sqlite ./proxy.db --json`

const turnsShortDesc string = "List recorded chat turns"

func NewTurnsCmd() *cobra.Command {
	cmder := &turnsCommander{}

	cmd := &cobra.Command{
		Use:   "turns",
		Short: turnsShortDesc,
		Long:  turnsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to the proxy's SQLite database")
	cmd.Flags().StringVar(&cmder.model, "model", "", "Only list turns of this model")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 20, "Maximum number of turns to list")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the turns as JSON")

	return cmd
}

func (c *turnsCommander) run(cmd *cobra.Command) error {
	if c.limit < 1 {
		return errors.New("--limit must be at least 1")
	}

	path, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("opening database %s: %w", path, err)
	}

	driver, err := sqlite.NewSQLiteDriver(path)
	if err != nil {
		return err
	}
	defer driver.Close()

	turns, err := driver.List(cmd.Context(), storage.ListOptions{
		Model: c.model,
		Limit: c.limit,
	})
	if err != nil {
		return fmt.Errorf("listing turns: %w", err)
	}

	out := cmd.OutOrStdout()
	if c.jsonOut {
		if turns == nil {
			turns = []*storage.Turn{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(turns)
	}

	printTurns(out, turns)
	return nil
}

func printTurns(out io.Writer, turns []*storage.Turn) {
	if len(turns) == 0 {
		fmt.Fprintf(out, "  %s No turns recorded.\n", cliui.DimStyle.Render("●"))
		return
	}

	width := 0
	for _, t := range turns {
		width = max(width, len(t.Model))
	}

	fmt.Fprintln(out)
	for _, t := range turns {
		tokens := fmt.Sprintf("%d tokens", t.TotalTokens())
		if t.Estimated {
			tokens = "~" + tokens
		}

		mark := cliui.SuccessMark
		if t.StatusCode >= 400 {
			mark = cliui.FailMark
		}

		fmt.Fprintf(out, "  %s %s  %s  %s  %s\n",
			mark,
			cliui.DimStyle.Render(t.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			cliui.NameStyle.Render(fmt.Sprintf("%-*s", width, t.Model)),
			cliui.ValueStyle.Render(tokens),
			cliui.DimStyle.Render(cliui.FormatDuration(t.Duration)),
		)
		fmt.Fprintf(out, "      %s %s\n",
			cliui.RoleStyle.Render("[user]"),
			cliui.PreviewStyle.Render(utils.Truncate(oneLine(t.Prompt), 72)),
		)
		fmt.Fprintf(out, "      %s %s\n",
			cliui.RoleStyle.Render("[assistant]"),
			cliui.PreviewStyle.Render(utils.Truncate(oneLine(t.Response), 72)),
		)
	}
	fmt.Fprintln(out)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
