// Package versioncmder
package versioncmder

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/veneer/pkg/utils"
)

type versionCommander struct {
	jsonOut bool
}

type versionInfo struct {
	Version   string `json:"version"`
	Sha       string `json:"sha"`
	Buildtime string `json:"buildtime"`
	GoVersion string `json:"go_version"`
}

func NewVersionCmd() *cobra.Command {
	cmder := &versionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version of this CLI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print version information as JSON")

	return cmd
}

func (c *versionCommander) run(out io.Writer) error {
	info := versionInfo{
		Version:   utils.Version,
		Sha:       utils.Sha,
		Buildtime: utils.Buildtime,
		GoVersion: runtime.Version(),
	}

	if c.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(out, "Version: %s\nSha: %s\nBuilt at: %s\nGo: %s\n", info.Version, info.Sha, info.Buildtime, info.GoVersion)
	return nil
}
