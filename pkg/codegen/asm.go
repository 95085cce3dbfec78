// Package codegen lowers a memoized IR function to a register/spill-slot
// assignment and then to AT&T-syntax x86-64/AVX assembly text.
package codegen

import (
	"fmt"

	"github.com/oisee/geomc/pkg/ir"
)

// Register is a 1-based architectural vector register index. 15 are usable;
// the 16th (%xmm15) is reserved by the emitter for a broadcast-zero constant.
type Register struct{ n uint8 }

// NumRegisters is how many registers the allocator may hand out.
const NumRegisters = 15

// NewRegister constructs the Register for 0-based slot idx.
func NewRegister(idx int) Register {
	if idx < 0 || idx >= NumRegisters {
		panic(fmt.Sprintf("codegen: register index %d out of range", idx))
	}
	return Register{n: uint8(idx) + 1}
}

// Idx returns the 0-based register slot.
func (r Register) Idx() int { return int(r.n) - 1 }

// rawRegister constructs the Register for 0-based slot idx without the
// NumRegisters range check NewRegister enforces, for the one fixed register
// (%xmm15) that lives outside the allocatable file.
func rawRegister(idx int) Register { return Register{n: uint8(idx) + 1} }

// MemorySpace is a 1-based memory-space identifier: 1=stack, 2=consts,
// 3..9=the seven non-empty VarSets in ascending mask order.
type MemorySpace struct{ n uint8 }

// StackSpace is the frame's own spill-slot space.
var StackSpace = MemorySpace{n: 1}

// ConstsSpace is the shared read-only constant pool.
var ConstsSpace = MemorySpace{n: 2}

// SpaceOf returns the MemorySpace for a non-empty VarSet.
func SpaceOf(vars ir.VarSet) MemorySpace {
	return MemorySpace{n: uint8(vars.Idx()) + 2}
}

// Idx returns the 0-based memory-space slot, used as the space's bit
// position in the emitter's vector mask. The emitter's addressing-mode
// table is indexed through addressSlot instead.
func (m MemorySpace) Idx() int { return int(m.n) - 1 }

// Operand is an asm-instruction argument that is either a register or, for a
// sunk load, a direct memory reference — letting the
// allocator fold a Load into its consumer instead of round-tripping the
// value through a register.
type Operand struct {
	Reg    Register
	HasReg bool
	Mem    MemorySpace
	Loc    ir.Location
}

// RegOperand wraps a plain register operand.
func RegOperand(reg Register) Operand { return Operand{Reg: reg, HasReg: true} }

// MemOperand wraps a sunk-load memory operand.
func MemOperand(mem MemorySpace, loc ir.Location) Operand { return Operand{Mem: mem, Loc: loc} }

// AsmShape identifies which target-independent asm-instruction variant an
// AsmInst holds.
type AsmShape uint8

const (
	AsmUnOp AsmShape = iota
	AsmBinOp
	AsmLoad
	AsmStore
)

// AsmInst is one target-independent asm-instruction. The register allocator
// produces them in reverse execution order during its backward walk and Alloc
// reverses the slice before returning it, so the x86 emitter prints it
// front to back. Const and Var never reach this stage — they
// are always lowered to Loads by memoize.
type AsmInst struct {
	Shape AsmShape
	Reg   Register
	Op    ir.UnOp      // AsmUnOp
	BinOp ir.BinOp     // AsmBinOp
	Args  [2]Operand   // AsmBinOp
	Arg   Operand      // AsmUnOp
	Mem   MemorySpace  // AsmLoad, AsmStore
	Loc   ir.Location  // AsmLoad, AsmStore
}

// UnOpAsm builds an AsmUnOp instruction.
func UnOpAsm(reg Register, op ir.UnOp, arg Operand) AsmInst {
	return AsmInst{Shape: AsmUnOp, Reg: reg, Op: op, Arg: arg}
}

// BinOpAsm builds an AsmBinOp instruction.
func BinOpAsm(reg Register, op ir.BinOp, args [2]Operand) AsmInst {
	return AsmInst{Shape: AsmBinOp, Reg: reg, BinOp: op, Args: args}
}

// LoadAsm builds an AsmLoad instruction.
func LoadAsm(reg Register, mem MemorySpace, loc ir.Location) AsmInst {
	return AsmInst{Shape: AsmLoad, Reg: reg, Mem: mem, Loc: loc}
}

// StoreAsm builds an AsmStore instruction.
func StoreAsm(reg Register, mem MemorySpace, loc ir.Location) AsmInst {
	return AsmInst{Shape: AsmStore, Reg: reg, Mem: mem, Loc: loc}
}
