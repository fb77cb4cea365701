package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfluke/typepack/detector"
)

func newDetectCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Probe the WebGPU adapter and print its limits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := detector.Detect()
			if err != nil {
				return err
			}
			var out string
			switch format {
			case "json":
				out, err = rep.JSON()
			case "yaml":
				out, err = rep.YAML()
			default:
				return fmt.Errorf("unknown format %q (expected json|yaml)", format)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format (json|yaml)")
	return cmd
}
