package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/hashprobe/internal/benchmark"
	"github.com/MeKo-Tech/hashprobe/internal/corrupt"
	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

func newBenchCommand(a *app) *cobra.Command {
	var (
		modes      []int
		batch      int
		size       int
		iterations int
	)

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Time the corruption transforms on a synthetic batch",
		Long: `Apply each corruption mode to a synthetic batch several times and report
the mean time and allocation per application. No model is loaded.

Examples:
  hashprobe bench
  hashprobe bench --modes 13,14,15,16,20 --batch 32 --iterations 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if batch <= 0 || size <= 0 || iterations <= 0 {
				return errors.New("batch, size and iterations must be positive")
			}
			if len(modes) == 0 {
				modes = corrupt.Modes()
			}
			rng, err := a.cfg.Range()
			if err != nil {
				return err
			}

			images := syntheticBatch(batch, size, rng)
			tr := corrupt.NewTransformer(rng, a.cfg.Eval.Seed).WithNativeSize(size)
			suite, err := benchmark.NewModeSuite(tr, images, modes)
			if err != nil {
				return err
			}

			results := suite.RunAll(cmd.Context(), iterations)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "BENCHMARK\tITERATIONS\tAVG\tALLOC/OP")
			for _, r := range results {
				if r.Error != nil {
					_ = tw.Flush()
					return fmt.Errorf("%s: %w", r.Name, r.Error)
				}
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%v\t%s\n",
					r.Name, r.Iterations, r.PerOp(), humanize.Bytes(r.AllocatedPerOp()))
			}
			return tw.Flush()
		},
	}

	f := benchCmd.Flags()
	f.IntSliceVar(&modes, "modes", nil, "modes to time (default: all)")
	f.IntVar(&batch, "batch", 8, "images per batch")
	f.IntVar(&size, "size", corrupt.NativeSize, "image side length (multiple of 16 for JPEG modes)")
	f.IntVar(&iterations, "iterations", 3, "applications per mode")
	return benchCmd
}

// syntheticBatch fills n size×size images with a smooth pattern inside the
// valid range of rng.
func syntheticBatch(n, size int, rng corrupt.Range) tensor.Tensor {
	c := rng.Channels()
	t := tensor.New(n, c, size, size)
	for i := range n {
		img := t.Image(i)
		for ch := range c {
			for y := range size {
				for x := range size {
					v := float32((x+y+i*7+ch*13)%size) / float32(size)
					img[(ch*size+y)*size+x] = rng.Normalize(ch, v)
				}
			}
		}
	}
	return t
}
