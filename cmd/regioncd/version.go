package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"regioncd/app/internal/output"
	"regioncd/app/internal/version"
)

func (c *cli) newVersionCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			outFormat, err := output.ParseFormat(format)
			if err != nil {
				return withExitCode(exitFailure, err)
			}

			info := version.Get("")
			if outFormat == output.FormatText {
				fmt.Fprintf(c.stdout, "regioncd %s (commit %s, built %s, %s)\n", info.Version, orUnknown(info.Commit), orUnknown(info.BuildDate), info.GoVersion)
				return nil
			}
			return output.Encode(c.stdout, outFormat, info)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or yaml")

	return cmd
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
