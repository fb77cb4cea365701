package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openfluke/typepack/gpu"
	"github.com/openfluke/typepack/host"
	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/offset"
	"github.com/openfluke/typepack/pup"
)

// staged is a device buffer initialized from host memory.
type staged struct {
	buf     pup.Buffer
	read    func() ([]byte, error)
	release func()
}

func stage(dev pup.Device, data []byte, label string) (*staged, error) {
	if _, ok := dev.(*gpu.Device); ok {
		b, err := gpu.NewBufferInit(data, label)
		if err != nil {
			return nil, err
		}
		return &staged{buf: b, read: b.Read, release: b.Destroy}, nil
	}
	b := host.Bytes(bytes.Clone(data))
	return &staged{
		buf:     b,
		read:    func() ([]byte, error) { return b, nil },
		release: func() {},
	}, nil
}

func newRunCmd() *cobra.Command {
	var count int64
	cmd := &cobra.Command{
		Use:   "run <layout.yaml>",
		Short: "Pack and unpack a pattern through the configured device and verify the round trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if count < 0 {
				return fmt.Errorf("count must not be negative, got %d", count)
			}
			n, err := loadLayout(args[0])
			if err != nil {
				return err
			}
			dev, closeDev, err := openDevice(cfg)
			if err != nil {
				return err
			}
			defer closeDev()

			eng := pup.NewEngine(dev, pup.WithMaxDepth(cfg.MaxNestingLevel))
			defer eng.Close()
			t, err := eng.Commit(n)
			if err != nil {
				return err
			}
			return roundTrip(cmd, eng, t, n, count)
		},
	}
	cmd.Flags().Int64Var(&count, "count", 1, "Number of layout repetitions")
	return cmd
}

func roundTrip(cmd *cobra.Command, eng *pup.Engine, t *pup.Type, n *layout.Node, count int64) error {
	w := cmd.OutOrStdout()
	span := n.Span(count)
	want := make([]byte, span)
	for i := range want {
		want[i] = byte(i*31 + 7)
	}

	src, err := stage(eng.Device(), want, "run_src")
	if err != nil {
		return err
	}
	defer src.release()
	packed, err := stage(eng.Device(), make([]byte, count*n.NumElements()*int64(n.Element().Size())), "run_packed")
	if err != nil {
		return err
	}
	defer packed.release()
	out, err := stage(eng.Device(), make([]byte, span), "run_out")
	if err != nil {
		return err
	}
	defer out.release()

	start := time.Now()
	if err := eng.Pack(src.buf, packed.buf, count, t); err != nil {
		_, _ = fmt.Fprintf(w, "pack:   %s\n", pup.StatusOf(err))
		return err
	}
	packDur := time.Since(start)
	start = time.Now()
	if err := eng.Unpack(packed.buf, out.buf, count, t); err != nil {
		_, _ = fmt.Fprintf(w, "unpack: %s\n", pup.StatusOf(err))
		return err
	}
	unpackDur := time.Since(start)

	got, err := out.read()
	if err != nil {
		return err
	}
	size := int64(n.Element().Size())
	mismatches := 0
	md, err := t.Metadata()
	if err != nil {
		return err
	}
	for r := int64(0); r < count*md.NumElements; r++ {
		off := offset.Offset(md, r)
		if !bytes.Equal(got[off:off+size], want[off:off+size]) {
			mismatches++
		}
	}

	pup.Logger().Debug("round trip", zap.Duration("pack", packDur), zap.Duration("unpack", unpackDur))
	_, _ = fmt.Fprintf(w, "routine:  %s / %s\n", t.Routine(offset.Pack).Name(), t.Routine(offset.Unpack).Name())
	_, _ = fmt.Fprintf(w, "elements: %d\n", count*n.NumElements())
	_, _ = fmt.Fprintf(w, "pack:     %v\n", packDur)
	_, _ = fmt.Fprintf(w, "unpack:   %v\n", unpackDur)
	if mismatches > 0 {
		return fmt.Errorf("round trip mismatch in %d elements", mismatches)
	}
	_, _ = fmt.Fprintln(w, "round trip: ok")
	return nil
}
