package codegen

import "github.com/oisee/geomc/pkg/ir"

// Modeled after https://www.mattkeeter.com/blog/2022-10-04-ssra/, except a
// value may be both in memory and in a register at the same time: memory
// inputs/outputs share the spill-slot machinery, and the sunk-load extension
// below lets some loads skip the register file entirely.

// SinkLoads configures how aggressively the allocator folds a Load directly
// into the memory operand of its consuming instruction instead of
// round-tripping it through a register. With any policy other than SinkNone,
// every use of a Load that does not hold a register at that point of the
// backward walk is sunk, whether the Load has one consumer or several.
//
// The allocator keeps no record of sunk loads and never turns a sunk load
// back into a register load: once sunk, always sunk. SinkSpillAny,
// SinkPreferDead and SinkRequireDead therefore behave identically to
// SinkAll; only the SinkNone/non-SinkNone distinction changes emitted code.
type SinkLoads uint8

const (
	// SinkNone never sinks; every Load gets a register.
	SinkNone SinkLoads = iota
	// SinkSpillAny sinks exactly as SinkAll does. Default.
	SinkSpillAny
	// SinkPreferDead sinks exactly as SinkAll does.
	SinkPreferDead
	// SinkRequireDead sinks exactly as SinkAll does.
	SinkRequireDead
	// SinkAll sinks whenever possible and never brings a sunk load back to
	// a register.
	SinkAll
)

type allocation struct {
	reg    Register
	hasReg bool
	mem    MemorySpace
	hasMem bool
	loc    ir.Location
}

func (a *allocation) initialLocation(mem MemorySpace, loc ir.Location) {
	a.mem = mem
	a.loc = loc
	a.hasMem = true
}

type freeSlot struct {
	mem MemorySpace
	loc ir.Location
}

// allocator owns all regalloc scratch state for one MemoizedFunc's pass: the
// LRU register file, per-value allocation records, and the free spill-slot
// list. It emits AsmInst in reverse execution order (the order the backward
// walk visits instructions); Alloc reverses the result before returning it.
type allocator struct {
	allocs     []allocation
	recent     *lru
	live       []int // InstIdx+1 resident in each register, 0 = empty
	stackSlots ir.Location
	freeSlots  []freeSlot
	out        []AsmInst
	sinkLoads  SinkLoads
}

func newAllocator(n int, sinkLoads SinkLoads) *allocator {
	return &allocator{
		allocs:    make([]allocation, n),
		recent:    newLru(NumRegisters),
		live:      make([]int, NumRegisters),
		sinkLoads: sinkLoads,
	}
}

func (a *allocator) getOutputReg(idx int) Register {
	reg := a.getReg(idx)
	a.freeReg(reg)
	if alloc := a.allocs[idx]; alloc.hasMem {
		a.out = append(a.out, StoreAsm(reg, alloc.mem, alloc.loc))
		a.freeSlots = append(a.freeSlots, freeSlot{alloc.mem, alloc.loc})
	}
	return reg
}

func (a *allocator) getReg(idx int) Register {
	if alloc := a.allocs[idx]; alloc.hasReg {
		a.recent.markUsed(alloc.reg.Idx())
		return alloc.reg
	}

	reg := NewRegister(a.recent.pop())
	if mem, loc, ok := a.clobber(idx, reg); ok {
		a.out = append(a.out, LoadAsm(reg, mem, loc))
	}
	return reg
}

// clobber assigns reg to idx, evicting and spilling whatever value reg
// previously held (if any).
func (a *allocator) clobber(idx int, reg Register) (MemorySpace, ir.Location, bool) {
	a.allocs[idx].reg = reg
	a.allocs[idx].hasReg = true

	prev := a.live[reg.Idx()]
	a.live[reg.Idx()] = idx + 1
	if prev == 0 {
		return MemorySpace{}, 0, false
	}
	live := prev - 1

	alloc := &a.allocs[live]
	var mem MemorySpace
	var loc ir.Location
	if alloc.hasMem {
		mem, loc = alloc.mem, alloc.loc
	} else if n := len(a.freeSlots); n > 0 {
		slot := a.freeSlots[n-1]
		a.freeSlots = a.freeSlots[:n-1]
		mem, loc = slot.mem, slot.loc
	} else {
		loc = a.stackSlots
		a.stackSlots++
		mem = StackSpace
	}

	*alloc = allocation{hasMem: true, mem: mem, loc: loc}
	return mem, loc, true
}

func (a *allocator) freeReg(reg Register) {
	a.recent.markUnused(reg.Idx())
	a.live[reg.Idx()] = 0
}

// emitLoad handles the Load instruction case during the backward walk: if
// idx still holds an assigned register at this point, emit the load;
// otherwise either a downstream spill already stole the register (so the
// load already happened at that point) or the value was sunk into its sole
// consumer and never needed a register at all.
func (a *allocator) emitLoad(idx int, mem MemorySpace, loc ir.Location) {
	if alloc := a.allocs[idx]; alloc.hasReg {
		a.out = append(a.out, LoadAsm(alloc.reg, mem, loc))
		a.freeReg(alloc.reg)
	}
}

// resolveArg produces the operand for an instruction argument: a direct
// memory operand if idx is a Load that holds no register at this point and
// sinking is enabled (folding the load into this consumer), otherwise
// a register obtained the normal way.
func (a *allocator) resolveArg(insts []ir.Inst, idx int) Operand {
	inst := insts[idx]
	if inst.Shape == ir.ShapeLoad && a.sinkLoads != SinkNone && !a.allocs[idx].hasReg {
		return MemOperand(SpaceOf(inst.Vars), inst.Loc)
	}
	return RegOperand(a.getReg(idx))
}

// Alloc runs reverse linear-scan register allocation over insts (the body
// of one MemoizedFunc for VarSet fnVars, with the given output slots) and
// returns the emitted asm-instructions in forward (execution) order, plus
// the number of stack spill slots the frame needs. Outputs are homed to
// fnVars's own memory space (not the stack): a consumer in another function
// reads a cross-function value via a Load keyed by the producer's VarSet
// (SpaceOf(inst.Vars) in the ShapeLoad case below), so the producer must
// store it there too, and the caller reads the function's final result back
// out through that same space's base pointer.
func Alloc(insts []ir.Inst, fnVars ir.VarSet, outputs []ir.InstIdx, sinkLoads SinkLoads) ([]AsmInst, ir.Location) {
	a := newAllocator(len(insts), sinkLoads)

	// A Load's value already lives at the location it reads, so that is its
	// home: evicting it later reloads from there instead of from a stack
	// slot nothing ever stored to.
	for i, inst := range insts {
		if inst.Shape == ir.ShapeLoad {
			a.allocs[i].initialLocation(SpaceOf(inst.Vars), inst.Loc)
		}
	}

	outSpace := SpaceOf(fnVars)
	for loc, def := range outputs {
		if def.Valid() {
			a.allocs[def.Idx()].initialLocation(outSpace, ir.Location(loc))
		}
	}

	for i := len(insts) - 1; i >= 0; i-- {
		inst := insts[i]
		switch inst.Shape {
		case ir.ShapeUnOp:
			reg := a.getOutputReg(i)
			arg := a.resolveArg(insts, inst.Arg.Idx())
			a.out = append(a.out, UnOpAsm(reg, inst.Op, arg))
		case ir.ShapeBinOp:
			reg := a.getOutputReg(i)
			a0 := a.resolveArg(insts, inst.Args[0].Idx())
			a1 := a.resolveArg(insts, inst.Args[1].Idx())
			a.out = append(a.out, BinOpAsm(reg, inst.BinOp, [2]Operand{a0, a1}))
		case ir.ShapeLoad:
			a.emitLoad(i, SpaceOf(inst.Vars), inst.Loc)
		default:
			panic("codegen: regalloc: Const/Var instruction in a MemoizedFunc")
		}
	}

	// The walk above emitted instructions in the order it visited them
	// (backward over the program), so execution order is the reverse.
	out := make([]AsmInst, len(a.out))
	for i, inst := range a.out {
		out[len(a.out)-1-i] = inst
	}
	return out, a.stackSlots
}

// lru is a doubly linked list over register indices (0-based) supporting
// O(1) touch and pop-oldest.
type lru struct {
	data []lruNode
	head int
}

type lruNode struct {
	prev, next int
}

func newLru(n int) *lru {
	data := make([]lruNode, n)
	for i := range data {
		data[i] = lruNode{prev: (i + n - 1) % n, next: (i + 1) % n}
	}
	return &lru{data: data, head: 0}
}

// markUsed marks i as the newest (most-recently-used) entry.
func (l *lru) markUsed(i int) {
	l.markUnused(i)
	l.head = i
}

// markUnused marks i as the oldest entry, moving it to just before head.
func (l *lru) markUnused(i int) {
	if i == l.head {
		l.head = l.data[i].next
		return
	}

	next := l.head
	prev := l.data[next].prev
	l.data[next].prev = i
	if prev != i {
		l.data[prev].next = i
		oldPrev, oldNext := l.data[i].prev, l.data[i].next
		l.data[i] = lruNode{prev: prev, next: next}
		l.data[oldPrev].next = oldNext
		l.data[oldNext].prev = oldPrev
	}
}

// pop returns the oldest entry, rotating it to newest.
func (l *lru) pop() int {
	out := l.data[l.head].prev
	l.head = out
	return out
}
