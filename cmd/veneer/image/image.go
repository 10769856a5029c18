// Package imagecmder provides the image command that generates images through
// the veneer proxy.
package imagecmder

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/veneer/cmd/veneer/proxyclient"
	"github.com/papercomputeco/veneer/pkg/cliui"
	"github.com/papercomputeco/veneer/pkg/llm"
	"github.com/papercomputeco/veneer/pkg/logger"
	"github.com/papercomputeco/veneer/pkg/metering"
	"github.com/papercomputeco/veneer/pkg/settings"
)

type imageCommander struct {
	opts      proxyclient.Options
	configDir string
	outputDir string
	debug     bool

	model    string
	width    int
	height   int
	format   string
	steps    int
	cfgScale float64
	negative string
	seed     int

	logger *slog.Logger
	now    func() time.Time
}

const imageLongDesc string = `Generate images from a text prompt.

Defaults for the model, size, format and sampling come from the image.* keys of
"veneer settings". Flags override them for a single run. Generated images are
decoded and written to the output directory, and the estimated cost is shown
when the model's price is known.

Examples:
  veneer image "a lighthouse at dusk"
  veneer image --model hidream --width 512 --height 512 "a red fox"
  veneer image -o ./out --format png "isometric city"`

const imageShortDesc string = "Generate images from a prompt"

func NewImageCmd() *cobra.Command {
	cmder := &imageCommander{now: time.Now}

	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: imageShortDesc,
		Long:  imageLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return cmder.opts.Resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd, strings.Join(args, " "))
		},
	}

	cmder.opts.AddFlags(cmd)
	cmd.Flags().StringVarP(&cmder.outputDir, "output", "o", ".", "Directory to write images to")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Image model (default: image.model setting)")
	cmd.Flags().IntVar(&cmder.width, "width", 0, "Image width in pixels")
	cmd.Flags().IntVar(&cmder.height, "height", 0, "Image height in pixels")
	cmd.Flags().StringVar(&cmder.format, "format", "", "Output format (webp, png, jpeg)")
	cmd.Flags().IntVar(&cmder.steps, "steps", 0, "Inference steps")
	cmd.Flags().Float64Var(&cmder.cfgScale, "cfg-scale", 0, "Prompt adherence")
	cmd.Flags().StringVar(&cmder.negative, "negative", "", "Negative prompt")
	cmd.Flags().IntVar(&cmder.seed, "seed", 0, "Random seed")

	return cmd
}

func (c *imageCommander) run(cmd *cobra.Command, prompt string) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr), logger.WithComponent("image"))

	if strings.TrimSpace(prompt) == "" {
		return errors.New("prompt is empty")
	}

	store, err := settings.NewFileStore(c.configDir, c.logger)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	req := c.buildRequest(cmd, store.Current().Image, prompt)

	cl, err := c.opts.NewClient(c.logger)
	if err != nil {
		return err
	}
	cat, err := c.opts.NewCatalog(cl, c.logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)

	var resp *llm.ImageResponse
	err = cliui.Step(out, fmt.Sprintf("Generating with %s", cliui.NameStyle.Render(req.Model)), func() error {
		var genErr error
		resp, genErr = cl.GenerateImage(cmd.Context(), req)
		return genErr
	})
	if err != nil {
		return err
	}

	paths, err := c.writeImages(resp, req.Format)
	if err != nil {
		return err
	}

	for _, p := range paths {
		fmt.Fprintf(out, "  %s %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(p))
	}

	price, err := cat.ImagePrice(cmd.Context(), req.Model)
	if err != nil {
		c.logger.Debug("image price unavailable", "model", req.Model, "error", err)
	}
	if cost, ok := metering.ImageCost(len(paths), price); ok {
		fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf("%d image(s) · $%.4f", len(paths), metering.Round(cost, 4))))
	}
	fmt.Fprintln(out)

	return nil
}

// buildRequest applies the flags the user set on top of the saved defaults.
func (c *imageCommander) buildRequest(cmd *cobra.Command, defaults settings.ImageDefaults, prompt string) *llm.ImageRequest {
	req := defaults.ImageRequest(prompt)

	flags := cmd.Flags()
	if flags.Changed("model") {
		req.Model = c.model
	}
	if flags.Changed("width") {
		req.Width = c.width
	}
	if flags.Changed("height") {
		req.Height = c.height
	}
	if flags.Changed("format") {
		req.Format = c.format
	}
	if flags.Changed("steps") {
		req.Steps = llm.Ptr(c.steps)
	}
	if flags.Changed("cfg-scale") {
		req.CfgScale = llm.Ptr(c.cfgScale)
	}
	if flags.Changed("negative") {
		req.NegativePrompt = c.negative
	}
	if flags.Changed("seed") {
		req.Seed = llm.Ptr(c.seed)
	}
	return req
}

// writeImages decodes each base64 image into the output directory.
func (c *imageCommander) writeImages(resp *llm.ImageResponse, format string) ([]string, error) {
	if resp == nil || len(resp.Images) == 0 {
		return nil, errors.New("no images returned")
	}

	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	ext := format
	if ext == "" {
		ext = "webp"
	}
	stem := "veneer-" + c.now().Format("20060102-150405")

	paths := make([]string, 0, len(resp.Images))
	for i, encoded := range resp.Images {
		data, err := base64.StdEncoding.DecodeString(stripDataURL(encoded))
		if err != nil {
			return paths, fmt.Errorf("decoding image %d: %w", i+1, err)
		}

		name := fmt.Sprintf("%s.%s", stem, ext)
		if len(resp.Images) > 1 {
			name = fmt.Sprintf("%s-%d.%s", stem, i+1, ext)
		}

		path := filepath.Join(c.outputDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("writing image: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// stripDataURL removes a "data:image/...;base64," prefix, if present.
func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if _, rest, ok := strings.Cut(s, ","); ok {
			return rest
		}
	}
	return s
}
