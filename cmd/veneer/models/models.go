// Package modelscmder provides the models command that lists upstream models
// through the veneer proxy.
package modelscmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/veneer/cmd/veneer/proxyclient"
	"github.com/papercomputeco/veneer/pkg/catalog"
	"github.com/papercomputeco/veneer/pkg/cliui"
	"github.com/papercomputeco/veneer/pkg/llm"
	"github.com/papercomputeco/veneer/pkg/logger"
	"github.com/papercomputeco/veneer/pkg/metering"
)

type modelsCommander struct {
	opts      proxyclient.Options
	modelType string
	jsonOut   bool
	debug     bool

	logger *slog.Logger
}

const modelsLongDesc string = `List the models offered by the upstream API.

Text models show their context window and price per million input and output
tokens. Image models show their price per generated image. Prices from
--pricing-file take precedence over the upstream catalog.

Examples:
  veneer models
  veneer models --type image
  veneer models --json`

const modelsShortDesc string = "List available models"

func NewModelsCmd() *cobra.Command {
	cmder := &modelsCommander{}

	cmd := &cobra.Command{
		Use:   "models",
		Short: modelsShortDesc,
		Long:  modelsLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
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
	cmd.Flags().StringVarP(&cmder.modelType, "type", "t", llm.ModelTypeText, "Model type (text, image)")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the raw model list as JSON")

	return cmd
}

func (c *modelsCommander) run(cmd *cobra.Command) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr), logger.WithComponent("models"))

	cl, err := c.opts.NewClient(c.logger)
	if err != nil {
		return err
	}
	cat, err := c.opts.NewCatalog(cl, c.logger)
	if err != nil {
		return err
	}

	models, err := cat.Models(cmd.Context(), c.modelType)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(models)
	}

	prices := make([]string, len(models))
	for i, m := range models {
		prices[i] = c.formatPrice(cmd.Context(), cat, m)
	}

	printModels(out, models, prices)
	return nil
}

// formatPrice renders the price column for m, or "-" when unknown.
func (c *modelsCommander) formatPrice(ctx context.Context, cat *catalog.Catalog, m llm.ModelMetadata) string {
	if c.modelType == llm.ModelTypeImage {
		if v, ok := metering.GenerationPrice(m); ok {
			return fmt.Sprintf("$%s/image", formatFloat(v))
		}
		return "-"
	}

	p, err := cat.Price(ctx, m.ID)
	if err != nil || !p.Known() {
		return "-"
	}
	return fmt.Sprintf("$%s in · $%s out /1M", formatSide(p.Input), formatSide(p.Output))
}

func printModels(out io.Writer, models []llm.ModelMetadata, prices []string) {
	if len(models) == 0 {
		fmt.Fprintf(out, "\n  %s No models available.\n\n", cliui.DimStyle.Render("●"))
		return
	}

	width := 0
	for _, m := range models {
		width = max(width, len(m.ID))
	}

	fmt.Fprintln(out)
	for i, m := range models {
		window := ""
		if n := m.ModelSpec.AvailableContextTokens; n > 0 {
			window = strconv.Itoa(n/1000) + "k ctx"
		}

		fmt.Fprintf(out, "  %s  %s  %s  %s\n",
			cliui.NameStyle.Render(fmt.Sprintf("%-*s", width, m.ID)),
			cliui.ValueStyle.Render(m.DisplayName()),
			cliui.DimStyle.Render(window),
			cliui.KeyStyle.Render(prices[i]),
		)
	}
	fmt.Fprintln(out)
}

func formatSide(v *float64) string {
	if v == nil {
		return "?"
	}
	return formatFloat(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
