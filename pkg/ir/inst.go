// Package ir implements the arithmetic SSA pool and the optimization passes
// that run over it: GVN/simplify, reassociate, memoize, and reorder.
package ir

import (
	"fmt"
	"math"
)

// Const is a finite 32-bit IEEE-754 value, identified by bit pattern.
type Const struct {
	bits uint32
}

// NewConst constructs a Const from a float32. It panics if v is NaN or
// infinite — constructing a non-finite constant is a programmer error, not
// a recoverable one.
func NewConst(v float32) Const {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		panic(fmt.Sprintf("ir: non-finite constant %v", v))
	}
	return Const{bits: math.Float32bits(v)}
}

// Value returns the float32 this constant represents.
func (c Const) Value() float32 {
	return math.Float32frombits(c.bits)
}

// Bits returns the raw IEEE-754 bit pattern.
func (c Const) Bits() uint32 {
	return c.bits
}

func (c Const) String() string {
	return fmt.Sprintf("%v", c.Value())
}

// UnOp is a unary arithmetic operator.
type UnOp uint8

const (
	Neg UnOp = iota
	Square
	Sqrt
)

// Name returns the textual IR opcode name for op.
func (op UnOp) Name() string {
	switch op {
	case Neg:
		return "neg"
	case Square:
		return "square"
	case Sqrt:
		return "sqrt"
	default:
		panic(fmt.Sprintf("ir: unknown UnOp %d", op))
	}
}

// BinOp is a binary arithmetic operator.
type BinOp uint8

const (
	Add BinOp = iota
	Sub
	Mul
	Min
	Max
)

// Name returns the textual IR opcode name for op.
func (op BinOp) Name() string {
	switch op {
	case Add:
		return "add"
	case Sub:
		return "sub"
	case Mul:
		return "mul"
	case Min:
		return "min"
	case Max:
		return "max"
	default:
		panic(fmt.Sprintf("ir: unknown BinOp %d", op))
	}
}

// IsCommutative reports whether operand order doesn't affect the result.
func (op BinOp) IsCommutative() bool {
	switch op {
	case Add, Mul, Min, Max:
		return true
	default:
		return false
	}
}

// Var names one of the three input variables.
type Var uint8

const (
	X Var = iota
	Y
	Z
)

// Name returns the single-letter textual IR name ('x', 'y', or 'z').
func (v Var) Name() byte {
	return 'x' + byte(v)
}

// VarSet is a bitmask over {X, Y, Z}. The empty set denotes a constant.
type VarSet uint8

// ALL is the VarSet containing X, Y, and Z.
const ALL VarSet = 7

// Of returns the singleton VarSet containing v.
func Of(v Var) VarSet {
	return VarSet(1 << uint8(v))
}

// Idx returns the VarSet's raw mask value, used to index per-VarSet arrays.
func (s VarSet) Idx() int {
	return int(s)
}

// Union returns the set union (bitwise OR) of s and o.
func (s VarSet) Union(o VarSet) VarSet {
	return s | o
}

// Contains reports whether v is a member of s.
func (s VarSet) Contains(v Var) bool {
	return s&Of(v) != 0
}

// Intersects reports whether s and o share any variable.
func (s VarSet) Intersects(o VarSet) bool {
	return s&o != 0
}

// IsSubsetOf reports whether every variable in s is also in o.
func (s VarSet) IsSubsetOf(o VarSet) bool {
	return s&^o == 0
}

// Vars returns the member variables of s in X, Y, Z order.
func (s VarSet) Vars() []Var {
	var out []Var
	for v := Var(0); v < 3; v++ {
		if s.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}

// String renders s as e.g. "xy", or "const" if empty.
func (s VarSet) String() string {
	if s == 0 {
		return "const"
	}
	buf := make([]byte, 0, 3)
	for _, v := range s.Vars() {
		buf = append(buf, v.Name())
	}
	return string(buf)
}

// InstIdx is an opaque index into an instruction pool. The zero value is the
// reserved "not yet assigned" sentinel; a real index is stored internally as
// idx+1 so the zero value can double as that sentinel without an extra bool.
type InstIdx struct {
	n uint16
}

// NoIdx is the "not yet assigned" sentinel InstIdx.
var NoIdx = InstIdx{}

// NewInstIdx constructs the InstIdx for pool position idx. It panics if idx
// does not fit the 16-bit index space (pool overflow is a programmer error:
// the pool is bounded at 65,534 live instructions).
func NewInstIdx(idx int) InstIdx {
	if idx < 0 || idx > 0xFFFD {
		panic(fmt.Sprintf("ir: instruction pool overflow at index %d", idx))
	}
	return InstIdx{n: uint16(idx) + 1}
}

// Valid reports whether i is not the sentinel.
func (i InstIdx) Valid() bool {
	return i.n != 0
}

// Idx returns the zero-based pool index. It panics on the sentinel.
func (i InstIdx) Idx() int {
	if i.n == 0 {
		panic("ir: use of unassigned InstIdx")
	}
	return int(i.n) - 1
}

// Less gives InstIdx its ascending pool-position ordering, used to sort
// commutative operands canonically during GVN.
func (i InstIdx) Less(o InstIdx) bool {
	return i.n < o.n
}

func (i InstIdx) String() string {
	if !i.Valid() {
		return "<none>"
	}
	return fmt.Sprintf("v%d", i.Idx())
}

// Location names a cell within a memory space (see MemorySpace in package
// codegen). MaxLocation is the reserved "not yet assigned" sentinel.
type Location = uint16

// MaxLocation is the "not yet assigned" sentinel for Location.
const MaxLocation Location = 0xFFFF

// Shape identifies which of the five Instruction variants a value holds.
type Shape uint8

const (
	ShapeConst Shape = iota
	ShapeVar
	ShapeUnOp
	ShapeBinOp
	ShapeLoad
)

// Inst is a single SSA value: a tagged union over the five instruction
// shapes (Const, Var, UnOp, BinOp, Load). Argument indices (Arg, Args) reference earlier
// entries in the same pool.
type Inst struct {
	Shape Shape
	Value Const    // ShapeConst
	Var   Var      // ShapeVar
	Op    UnOp     // ShapeUnOp
	BinOp BinOp    // ShapeBinOp
	Arg   InstIdx  // ShapeUnOp
	Args  [2]InstIdx // ShapeBinOp
	Vars  VarSet   // ShapeLoad
	Loc   Location // ShapeLoad
}

// ConstInst builds a ShapeConst Inst.
func ConstInst(v Const) Inst { return Inst{Shape: ShapeConst, Value: v} }

// VarInst builds a ShapeVar Inst.
func VarInst(v Var) Inst { return Inst{Shape: ShapeVar, Var: v} }

// UnOpInst builds a ShapeUnOp Inst.
func UnOpInst(op UnOp, arg InstIdx) Inst { return Inst{Shape: ShapeUnOp, Op: op, Arg: arg} }

// BinOpInst builds a ShapeBinOp Inst.
func BinOpInst(op BinOp, args [2]InstIdx) Inst {
	return Inst{Shape: ShapeBinOp, BinOp: op, Args: args}
}

// LoadInst builds a ShapeLoad Inst.
func LoadInst(vars VarSet, loc Location) Inst {
	return Inst{Shape: ShapeLoad, Vars: vars, Loc: loc}
}

// ArgRefs returns the argument indices this instruction references, in order.
// Const, Var, and Load instructions reference nothing.
func (i Inst) ArgRefs() []InstIdx {
	switch i.Shape {
	case ShapeUnOp:
		return []InstIdx{i.Arg}
	case ShapeBinOp:
		return i.Args[:]
	default:
		return nil
	}
}

// InstSink is the pass-agnostic destination for newly constructed
// instructions. Each pass-specific sink wraps a downstream sink and layers
// one concern (GVN, reassociation, memoization, ...), composing instead of
// inheriting.
type InstSink[Idx any] interface {
	PushConst(value Const) Idx
	PushVar(v Var) Idx
	PushUnOp(op UnOp, arg Idx) Idx
	PushBinOp(op BinOp, args [2]Idx) Idx
	PushLoad(vars VarSet, loc Location) Idx
	Finish(last Idx)
}

// Insts is the flat, owned instruction pool: a plain InstSink that simply
// appends. It is the base sink every layered sink eventually bottoms out at.
type Insts struct {
	Pool []Inst
	Vars []VarSet
}

// Len returns the number of instructions in the pool.
func (p *Insts) Len() int { return len(p.Pool) }

// At returns the instruction at idx.
func (p *Insts) At(idx InstIdx) Inst { return p.Pool[idx.Idx()] }

// VarsAt returns the recorded VarSet for idx.
func (p *Insts) VarsAt(idx InstIdx) VarSet { return p.Vars[idx.Idx()] }

func (p *Insts) push(inst Inst, vars VarSet) InstIdx {
	idx := NewInstIdx(len(p.Pool))
	p.Pool = append(p.Pool, inst)
	p.Vars = append(p.Vars, vars)
	return idx
}

func (p *Insts) PushConst(value Const) InstIdx {
	return p.push(ConstInst(value), VarSet(0))
}

func (p *Insts) PushVar(v Var) InstIdx {
	return p.push(VarInst(v), Of(v))
}

func (p *Insts) PushUnOp(op UnOp, arg InstIdx) InstIdx {
	return p.push(UnOpInst(op, arg), p.VarsAt(arg))
}

func (p *Insts) PushBinOp(op BinOp, args [2]InstIdx) InstIdx {
	vars := p.VarsAt(args[0]).Union(p.VarsAt(args[1]))
	return p.push(BinOpInst(op, args), vars)
}

func (p *Insts) PushLoad(vars VarSet, loc Location) InstIdx {
	return p.push(LoadInst(vars, loc), vars)
}

// Finish is a no-op for the base pool: the caller already holds *Insts.
func (p *Insts) Finish(InstIdx) {}
