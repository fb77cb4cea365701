package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfluke/typepack/dispatch"
	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/metadata"
	"github.com/openfluke/typepack/offset"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <layout.yaml>",
		Short: "Show bounds, metadata and the routines selected for a layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			n, err := loadLayout(args[0])
			if err != nil {
				return err
			}
			return writePlan(cmd.OutOrStdout(), n, cfg.Backend, cfg.MaxNestingLevel)
		},
	}
}

func writePlan(w io.Writer, n *layout.Node, backend string, maxDepth int) error {
	md, err := metadata.Build(n)
	if err != nil {
		return err
	}
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(w, format, args...) }

	p("layout:       %s\n", n)
	p("elements:     %d x %s\n", n.NumElements(), n.Element())
	p("bounds:       lb=%d ub=%d extent=%d\n", n.LB(), n.UB(), n.Extent())
	p("true bounds:  lb=%d ub=%d\n", n.TrueLB(), n.TrueUB())
	p("depth:        %d (limit %d)\n", n.Depth(), maxDepth)
	p("alignment:    %d\n", md.Align())
	if words, err := md.Words(); err != nil {
		p("device image: %v\n", err)
	} else {
		p("device image: %d words\n", len(words))
	}

	c := catalogFor(backend)
	for _, dir := range []offset.Direction{offset.Pack, offset.Unpack} {
		r, key, err := dispatch.Select(c, n, dir, maxDepth)
		if err != nil {
			p("%-13s %s (%v)\n", dir.String()+":", "unspecialized", err)
			continue
		}
		p("%-13s %s [%s]\n", dir.String()+":", r.Name(), key)
	}
	return nil
}
