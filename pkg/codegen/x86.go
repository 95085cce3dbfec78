package codegen

import (
	"fmt"
	"io"

	"github.com/oisee/geomc/pkg/ir"
)

// Stride is the per-memory-space lane count: 4 when any vectors are in play
// (vbroadcastss/movaps addressing scales by 4 32-bit lanes), 1 for a
// pure-scalar function.
const Stride = 4

// zeroReg is %xmm15, reserved at prologue to hold a broadcast zero so Neg
// can be synthesized as a subtract. It sits outside the 15-register
// allocatable file (NumRegisters), so it's constructed directly rather than
// through NewRegister's range check.
var zeroReg = rawRegister(NumRegisters)

// memorySpaceAddr is the fixed addressing-mode table:
// stack, consts, then the seven non-empty VarSets in popcount-then-mask
// order (x, y, z, xy, xz, yz, xyz) — looked up via addressSlot, not
// MemorySpace.Idx() directly, since Idx() follows plain ascending mask
// order (x, y, xy, z, xz, yz, xyz), which disagrees with the table's order
// once a VarSet's popcount differs from its mask-value rank (z=4 > xy=3).
var memorySpaceAddr = [...]string{
	"(%rsp)",
	"+consts(%rip)",
	"(%rdi)",
	"(%rsi)",
	"(%rdx)",
	"(%rcx)",
	"(%r8)",
	"(%r9)",
	"(%r10)",
}

// varSetAddrOrder maps a VarSet mask (1..7) to its popcount-then-mask rank
// (0..6) in the table above.
var varSetAddrOrder = [int(ir.ALL) + 1]int{
	0: -1, // unused: mask 0 is the consts space, handled separately
	1: 0,  // x
	2: 1,  // y
	4: 2,  // z
	3: 3,  // xy
	5: 4,  // xz
	6: 5,  // yz
	7: 6,  // xyz
}

// addressSlot returns mem's position in memorySpaceAddr.
func addressSlot(mem MemorySpace) int {
	switch mem {
	case StackSpace:
		return 0
	case ConstsSpace:
		return 1
	default:
		mask := mem.Idx() - 1 // MemorySpace.Idx() == mask+1 for VarSet spaces
		return 2 + varSetAddrOrder[mask]
	}
}

// WriteFunc emits one MemoizedFunc's body as an AT&T/AVX assembly routine
// named by its VarSet. The set of memory spaces treated as packed
// (contiguous 4-lane) rather than broadcast scalars is computed here: every
// non-empty VarSet that intersects fn.Vars, plus the stack space.
func WriteFunc(w io.Writer, fn *ir.MemoizedFunc, sinkLoads SinkLoads) error {
	insts, stackSlots := Alloc(fn.Insts, fn.Vars, fn.Outputs, sinkLoads)

	// A memory space is addressed as vector (packed, contiguous 4-lane) iff
	// its VarSet intersects this function's own VarSet; the function's own
	// output space always qualifies. The stack (spill-slot) space is sized
	// and addressed with the same stride as everything else in the frame
	// (Store/Load below follow vectorMask, not a space-specific stride), so
	// it must join the vector set whenever anything else does.
	vectorMask := 0
	for v := ir.VarSet(1); v <= ir.ALL; v++ {
		if v.Intersects(fn.Vars) {
			vectorMask |= 1 << SpaceOf(v).Idx()
		}
	}
	if vectorMask != 0 {
		vectorMask |= 1 << StackSpace.Idx()
	}
	stride := 1
	if vectorMask != 0 {
		stride = Stride
	}

	frameSize := int(stackSlots) * stride * 4

	fmt.Fprintf(w, ".globl %s\n", fn.Vars)
	fmt.Fprintf(w, "%s:\n", fn.Vars)
	if frameSize > 0 {
		fmt.Fprintln(w, "pushq %rbp")
		fmt.Fprintln(w, "movq %rsp,%rbp")
		fmt.Fprintf(w, "sub $%#x,%%rsp\n", frameSize)
	}
	fmt.Fprintf(w, "xorps %s,%s\n", xmm(zeroReg), xmm(zeroReg))

	// Alloc already returns insts in execution order.
	for _, inst := range insts {
		if err := writeAsmInst(w, inst, fn.Vars, vectorMask, stride); err != nil {
			return fmt.Errorf("codegen: x86: %w", err)
		}
	}

	if frameSize > 0 {
		fmt.Fprintln(w, "movq %rbp,%rsp")
		fmt.Fprintln(w, "pop %rbp")
	}
	fmt.Fprintln(w, "ret")
	return nil
}

func writeAsmInst(w io.Writer, inst AsmInst, ownVars ir.VarSet, vectorMask int, stride int) error {
	var err error
	switch inst.Shape {
	case AsmUnOp:
		switch inst.Op {
		case ir.Neg:
			_, err = fmt.Fprintf(w, "vsubps %s,%s,%s\n", operand(inst.Arg, vectorMask, stride), xmm(zeroReg), xmm(inst.Reg))
		case ir.Square:
			a := operand(inst.Arg, vectorMask, stride)
			_, err = fmt.Fprintf(w, "vmulps %s,%s,%s\n", a, a, xmm(inst.Reg))
		case ir.Sqrt:
			_, err = fmt.Fprintf(w, "vsqrtps %s,%s\n", operand(inst.Arg, vectorMask, stride), xmm(inst.Reg))
		}
	case AsmBinOp:
		opcode := map[ir.BinOp]string{
			ir.Add: "vaddps", ir.Sub: "vsubps", ir.Mul: "vmulps",
			ir.Min: "vminps", ir.Max: "vmaxps",
		}[inst.BinOp]
		_, err = fmt.Fprintf(w, "%s %s,%s,%s\n", opcode,
			operand(inst.Args[1], vectorMask, stride), operand(inst.Args[0], vectorMask, stride), xmm(inst.Reg))
	case AsmLoad:
		opcode, s := loadOp(inst.Mem, vectorMask, stride)
		_, err = fmt.Fprintf(w, "%s %s,%s\n", opcode, address(inst.Mem, inst.Loc, s), xmm(inst.Reg))
	case AsmStore:
		opcode := "movd"
		s := 1
		if vectorMask&(1<<inst.Mem.Idx()) != 0 {
			opcode, s = "movaps", stride
		}
		_, err = fmt.Fprintf(w, "%s %s,%s\n", opcode, xmm(inst.Reg), address(inst.Mem, inst.Loc, s))
	}
	return err
}

// loadOp picks the load opcode and effective stride for mem: constants are
// always scalar (broadcast), everything else follows the vector/broadcast
// rule keyed by vectorMask.
func loadOp(mem MemorySpace, vectorMask int, stride int) (string, int) {
	if mem == ConstsSpace {
		return "vbroadcastss", 1
	}
	if vectorMask&(1<<mem.Idx()) != 0 {
		return "movaps", stride
	}
	return "vbroadcastss", stride
}

func operand(op Operand, vectorMask int, stride int) string {
	if op.HasReg {
		return xmm(op.Reg)
	}
	s := stride
	if op.Mem == ConstsSpace {
		s = 1
	}
	return address(op.Mem, op.Loc, s)
}

func xmm(r Register) string {
	return fmt.Sprintf("%%xmm%d", r.Idx())
}

// address renders an AT&T memory operand: a displacement of loc*stride*4
// bytes (omitted when zero) into the base-pointer addressing mode for mem.
func address(mem MemorySpace, loc ir.Location, stride int) string {
	base := memorySpaceAddr[addressSlot(mem)]
	if loc == 0 {
		return base
	}
	return fmt.Sprintf("%#x%s", int(loc)*stride*4, base)
}

// WriteConsts emits the shared constants table as a .rodata block.
func WriteConsts(w io.Writer, consts []ir.Const) error {
	fmt.Fprintln(w, ".section .rodata")
	fmt.Fprintln(w, ".balign 4")
	fmt.Fprintln(w, "consts:")
	for _, c := range consts {
		if _, err := fmt.Fprintf(w, ".long %#x\n", c.Bits()); err != nil {
			return fmt.Errorf("codegen: x86: write consts: %w", err)
		}
	}
	return nil
}

// WriteProgram emits a complete assembly file for a memoized program: the
// consts section, a global stride datum, then one labeled .text routine plus
// a companion <vars>_size datum per non-empty MemoizedFunc.
func WriteProgram(w io.Writer, m *ir.Memoized, sinkLoads SinkLoads) error {
	if err := WriteConsts(w, m.Consts); err != nil {
		return err
	}

	stride := 1
	for _, fn := range m.Funcs {
		if fn != nil && len(fn.Insts) > 0 {
			stride = Stride
			break
		}
	}
	fmt.Fprintln(w, ".section .rodata")
	fmt.Fprintln(w, ".globl stride")
	fmt.Fprintln(w, "stride:")
	fmt.Fprintf(w, ".word %d\n", stride)

	fmt.Fprintln(w, ".text")
	for _, fn := range m.Funcs {
		if fn == nil || len(fn.Insts) == 0 {
			continue
		}
		fmt.Fprintf(w, ".globl %s_size\n", fn.Vars)
		fmt.Fprintln(w, ".section .rodata")
		fmt.Fprintf(w, "%s_size:\n", fn.Vars)
		fmt.Fprintf(w, ".word %d\n", len(fn.Outputs))
		fmt.Fprintln(w, ".text")
		if err := WriteFunc(w, fn, sinkLoads); err != nil {
			return err
		}
	}
	return nil
}
