package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfluke/typepack/metadata"
	"github.com/openfluke/typepack/offset"
)

func newOffsetsCmd() *cobra.Command {
	var (
		count     int64
		decompose bool
	)
	cmd := &cobra.Command{
		Use:   "offsets <layout.yaml>",
		Short: "Print the scattered byte offset of every element",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("count must be positive, got %d", count)
			}
			n, err := loadLayout(args[0])
			if err != nil {
				return err
			}
			md, err := metadata.Build(n)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for g := int64(0); g < count*md.NumElements; g++ {
				if !decompose {
					_, _ = fmt.Fprintf(w, "%d\t%d\n", g, offset.Offset(md, g))
					continue
				}
				d := offset.Decompose(md, g)
				_, _ = fmt.Fprintf(w, "%d\t%d\trep=%d", g, d.Offset, d.Repetition)
				for _, s := range d.Steps {
					if s.Kind.Blocked() {
						_, _ = fmt.Fprintf(w, " %s[%d,%d]", s.Kind, s.Index, s.InBlock)
					} else if !s.Kind.Transparent() {
						_, _ = fmt.Fprintf(w, " %s[%d]", s.Kind, s.Index)
					}
				}
				_, _ = fmt.Fprintf(w, " leaf=%d\n", d.Leaf)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&count, "count", 1, "Number of layout repetitions")
	cmd.Flags().BoolVar(&decompose, "decompose", false, "Show per-level indices")
	return cmd
}
