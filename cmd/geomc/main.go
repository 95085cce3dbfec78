package main

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/oisee/geomc/pkg/codegen"
	"github.com/oisee/geomc/pkg/ir"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "geomc",
		Short: "geomc — geometry-equation compiler",
	}

	rootCmd.AddCommand(newInterpCmd(), newIRCmd(), newMemoizeCmd(), newAsmCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadProgram reads textual IR from path (or stdin if path is "-"),
// simplifying every instruction as it's pushed.
func loadProgram(path string) (*ir.Insts, error) {
	f, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	insts := &ir.Insts{}
	simp := ir.NewSimplify[ir.InstIdx](insts)
	if _, err := ir.Read[ir.SignIdx[ir.InstIdx]](f, simp); err != nil {
		return nil, fmt.Errorf("geomc: read program: %w", err)
	}
	return insts, nil
}

func openInput(path string) (*os.File, error) {
	if path == "" || path == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geomc: open %s: %w", path, err)
	}
	return f, nil
}

func newIRCmd() *cobra.Command {
	var input string
	var reassociate, reorder bool

	cmd := &cobra.Command{
		Use:   "ir",
		Short: "Print simplified (and optionally reassociated/reordered) IR",
		RunE: func(cmd *cobra.Command, args []string) error {
			insts, err := loadProgram(input)
			if err != nil {
				return err
			}

			if reassociate {
				out := &ir.Insts{}
				simp := ir.NewSimplify[ir.InstIdx](out)
				ir.Reassociate[ir.SignIdx[ir.InstIdx]](insts, simp)
				insts = out
			}
			if reorder {
				ir.Reorder(insts)
			}

			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()
			return ir.Write(w, insts.Pool)
		},
	}
	cmd.Flags().StringVar(&input, "input", "-", "Input IR file ('-' for stdin)")
	cmd.Flags().BoolVar(&reassociate, "reassociate", false, "Run the reassociate pass")
	cmd.Flags().BoolVar(&reorder, "reorder", false, "Run the reorder pass")
	return cmd
}

// buildMemoized runs the full simplify → reassociate → reorder → memoize
// pipeline over the program at path.
func buildMemoized(path string) (*ir.Memoized, error) {
	insts, err := loadProgram(path)
	if err != nil {
		return nil, err
	}

	reassoc := &ir.Insts{}
	simp := ir.NewSimplify[ir.InstIdx](reassoc)
	ir.Reassociate[ir.SignIdx[ir.InstIdx]](insts, simp)
	ir.Reorder(reassoc)

	return ir.Memoize(reassoc), nil
}

func newMemoizeCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "memoize",
		Short: "Print the per-variable-set split functional form",
		RunE: func(cmd *cobra.Command, args []string) error {
			memoized, err := buildMemoized(input)
			if err != nil {
				return err
			}
			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()
			return ir.WriteMemoized(w, memoized)
		},
	}
	cmd.Flags().StringVar(&input, "input", "-", "Input IR file ('-' for stdin)")
	return cmd
}

func newAsmCmd() *cobra.Command {
	var input string
	var sinkLoadsFlag string

	cmd := &cobra.Command{
		Use:   "asm",
		Short: "Emit AT&T/AVX x86-64 assembly",
		RunE: func(cmd *cobra.Command, args []string) error {
			sinkLoads, err := parseSinkLoads(sinkLoadsFlag)
			if err != nil {
				return err
			}

			memoized, err := buildMemoized(input)
			if err != nil {
				return err
			}

			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()
			return codegen.WriteProgram(w, memoized, sinkLoads)
		},
	}
	cmd.Flags().StringVar(&input, "input", "-", "Input IR file ('-' for stdin)")
	cmd.Flags().StringVar(&sinkLoadsFlag, "sink-loads", "spill-any",
		"Sunk-load policy: none, spill-any, prefer-dead, require-dead, all")
	return cmd
}

func parseSinkLoads(s string) (codegen.SinkLoads, error) {
	switch s {
	case "none":
		return codegen.SinkNone, nil
	case "spill-any":
		return codegen.SinkSpillAny, nil
	case "prefer-dead":
		return codegen.SinkPreferDead, nil
	case "require-dead":
		return codegen.SinkRequireDead, nil
	case "all":
		return codegen.SinkAll, nil
	default:
		return 0, fmt.Errorf("geomc: unknown sink-loads policy %q", s)
	}
}

func newInterpCmd() *cobra.Command {
	var input string
	var size int
	var output string
	var workers int

	cmd := &cobra.Command{
		Use:   "interp",
		Short: "Render a PBM image by interpreting the program directly",
		RunE: func(cmd *cobra.Command, args []string) error {
			insts, err := loadProgram(input)
			if err != nil {
				return err
			}

			out := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("geomc: create %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}

			return renderParallel(out, insts, size, workers)
		},
	}
	cmd.Flags().StringVar(&input, "input", "-", "Input IR file ('-' for stdin)")
	cmd.Flags().IntVar(&size, "size", 256, "Image width/height in pixels")
	cmd.Flags().StringVar(&output, "output", "", "Output PBM file path (default stdout)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of rendering workers (0 = NumCPU)")
	return cmd
}

// renderParallel fans independent image rows out across a worker pool: a
// channel of row tasks drained by a fixed set of goroutines, joined with a
// WaitGroup. Rows are rendered into pre-allocated buffers so write-out stays
// in top-to-bottom order regardless of which worker finished which row
// first.
func renderParallel(out *os.File, insts *ir.Insts, size int, workers int) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > size {
		workers = size
	}
	if workers < 1 {
		workers = 1
	}

	rows := make([][]byte, size)
	scale := 2.0 / float32(size-1)

	type task struct{ y int }
	ch := make(chan task, size)
	for y := 0; y < size; y++ {
		ch <- task{y: y}
	}
	close(ch)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range ch {
				row := make([]byte, size)
				vars := [3]float32{0, float32(t.y)*scale - 1, 0}
				ir.EvalRow(insts, vars, size, scale, row)
				rows[t.y] = row
			}
		}()
	}
	wg.Wait()

	bw := bufio.NewWriter(out)
	if _, err := fmt.Fprintf(bw, "P5 %d %d 255\n", size, size); err != nil {
		return fmt.Errorf("geomc: interp: write header: %w", err)
	}
	for y := size - 1; y >= 0; y-- {
		if _, err := bw.Write(rows[y]); err != nil {
			return fmt.Errorf("geomc: interp: write row: %w", err)
		}
	}
	return bw.Flush()
}
