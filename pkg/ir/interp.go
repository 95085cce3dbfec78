package ir

import (
	"bufio"
	"fmt"
	"io"
	"math"
)

// Interp renders insts as a binary PBM image (P5: one byte per pixel, 0 or
// 255) of size x size pixels, evaluating the whole pool once per pixel. It is
// a reference renderer for checking a pipeline's output against the
// unoptimized program, not a fast path — every pass after GVN/simplify exists
// to avoid doing this much redundant work at runtime.
//
// Coordinates are mapped to [-1, 1] with y flipped (image row 0 is the
// largest y), matching the PBM top-down row convention. Z is always 0; this
// renderer only supports the 2D slice through the surface at z=0.
func Interp(w io.Writer, insts *Insts, size int) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "P5 %d %d 255\n", size, size); err != nil {
		return fmt.Errorf("ir: interp: write header: %w", err)
	}

	row := make([]byte, size)
	scale := 2.0 / float32(size-1)
	for y := size - 1; y >= 0; y-- {
		vars := [3]float32{0, float32(y)*scale - 1, 0}
		EvalRow(insts, vars, size, scale, row)
		if _, err := bw.Write(row); err != nil {
			return fmt.Errorf("ir: interp: write row: %w", err)
		}
	}
	return bw.Flush()
}

// EvalRow fills row (len(row) == size) with the thresholded sign of insts'
// last value at each pixel in one image row, given vars[1] (y) and vars[2]
// (z) already fixed by the caller. It allocates its own scratch register
// file, so independent calls (e.g. one per row from a worker pool) never
// alias state.
func EvalRow(insts *Insts, vars [3]float32, size int, scale float32, row []byte) {
	regs := make([]float32, insts.Len())
	for x := 0; x < size; x++ {
		vars[0] = float32(x)*scale - 1
		evalInto(insts, vars, regs)
		v := regs[len(regs)-1]
		if v < 0 {
			row[x] = 255
		} else {
			row[x] = 0
		}
	}
}

// evalInto evaluates every instruction in insts in order, writing each
// result into regs[i]. Load instructions are rejected: the unified pool
// Interp/EvalRow operate over never contains one (Load only exists in a
// Memoized program's per-VarSet functions).
func evalInto(insts *Insts, vars [3]float32, regs []float32) {
	for i, inst := range insts.Pool {
		switch inst.Shape {
		case ShapeConst:
			regs[i] = inst.Value.Value()
		case ShapeVar:
			regs[i] = vars[inst.Var]
		case ShapeUnOp:
			arg := regs[inst.Arg.Idx()]
			switch inst.Op {
			case Neg:
				regs[i] = -arg
			case Square:
				regs[i] = arg * arg
			case Sqrt:
				regs[i] = sqrtf32(arg)
			}
		case ShapeBinOp:
			a := regs[inst.Args[0].Idx()]
			b := regs[inst.Args[1].Idx()]
			switch inst.BinOp {
			case Add:
				regs[i] = a + b
			case Sub:
				regs[i] = a - b
			case Mul:
				regs[i] = a * b
			case Min:
				regs[i] = minf32(a, b)
			case Max:
				regs[i] = maxf32(a, b)
			}
		case ShapeLoad:
			panic("ir: interp: Load instruction in unmemoized pool")
		}
	}
}

func sqrtf32(v float32) float32 { return float32(math.Sqrt(float64(v))) }

func minf32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
