package ir

// Reassociate rebalances a frozen instruction pool by the variable set each
// sub-expression depends on: it delays combining operands
// from different VarSets for as long as possible, so that memoize later finds
// the largest sub-expressions confined to the narrowest VarSet. It feeds the
// rebuilt program into sink (typically a Simplify wrapping the next Insts
// pool), so the rewritten program is itself already GVN'd and sign-folded.
func Reassociate[I any](insts *Insts, sink InstSink[I]) {
	uses := reassociateUseCounts(insts)
	data := make([]instData[I], 0, insts.Len())

	for i := 0; i < insts.Len(); i++ {
		inst := insts.At(NewInstIdx(i))

		var nd instData[I]
		switch inst.Shape {
		case ShapeConst:
			nd = newInstData(VarSet(0), sink.PushConst(inst.Value))
		case ShapeVar:
			nd = newInstData(Of(inst.Var), sink.PushVar(inst.Var))
		case ShapeLoad:
			nd = newInstData(inst.Vars, sink.PushLoad(inst.Vars, inst.Loc))
		case ShapeUnOp:
			arg := data[inst.Arg.Idx()]
			if inst.Op == Neg {
				arg.negate()
				nd = arg
			} else {
				vars, idx := arg.flushNeg(sink)
				nd = newInstData(vars, sink.PushUnOp(inst.Op, idx))
			}
		case ShapeBinOp:
			op := inst.BinOp
			a := data[inst.Args[0].Idx()]
			b := data[inst.Args[1].Idx()]
			if op == Sub {
				// a - b reassociates exactly like a + (-b).
				op = Add
				b.negate()
			}
			if !(a.op.has && a.op.val == op) {
				a.flush(sink)
			}
			if !(b.op.has && b.op.val == op) {
				b.flush(sink)
			}
			for v := 0; v <= int(ALL); v++ {
				a.subtrees[v].merge(&b.subtrees[v], op, sink)
			}
			a.op = someOp(op)
			nd = a
		default:
			panic("ir: reassociate: unexpected instruction shape")
		}

		if uses[i] > 1 {
			// Shared more than once downstream: flush now so every user sees
			// the same materialized value instead of re-deriving it.
			nd.flush(sink)
		}
		data = append(data, nd)
	}

	if len(data) == 0 {
		return
	}
	last := data[len(data)-1]
	_, idx := last.flushNeg(sink)
	sink.Finish(idx)
}

// reassociateUseCounts computes, for each instruction, how many times it is
// referenced by a later instruction (the root counts as one implicit use),
// saturating at 255 — only ">1" is ever tested, so saturation never changes
// an observable decision.
func reassociateUseCounts(insts *Insts) []uint8 {
	uses := make([]uint8, insts.Len())
	if len(uses) > 0 {
		uses[len(uses)-1] = 1
	}
	for i := insts.Len() - 1; i >= 0; i-- {
		if uses[i] == 0 {
			continue
		}
		for _, arg := range insts.At(NewInstIdx(i)).ArgRefs() {
			j := arg.Idx()
			if uses[j] < 255 {
				uses[j]++
			}
		}
	}
	return uses
}

// opt is a minimal Option<T>, used in place of Rust's Option since Go has no
// built-in equivalent.
type opt[T any] struct {
	has bool
	val T
}

func some[T any](v T) opt[T] { return opt[T]{has: true, val: v} }

func someOp(op BinOp) opt[BinOp] { return opt[BinOp]{has: true, val: op} }

// subtree accumulates the positive and negative leaves of one VarSet's
// contribution to an in-progress associative chain. At most one of pos/neg is
// ever both non-empty past a flush, since flush immediately combines them.
type subtree[I any] struct {
	pos opt[I]
	neg opt[I]
}

func (t *subtree[I]) isEmpty() bool {
	return !t.pos.has && !t.neg.has
}

func (t *subtree[I]) negate() {
	t.pos, t.neg = t.neg, t.pos
}

// mergeOpt folds other into *this with op, if other holds a value.
func mergeOpt[I any](this *opt[I], other opt[I], op BinOp, sink InstSink[I]) {
	if !other.has {
		return
	}
	if this.has {
		*this = some(sink.PushBinOp(op, [2]I{this.val, other.val}))
	} else {
		*this = other
	}
}

// merge folds other into t under op, per the five associative-op rules:
// Add/Sub combine like signs directly and merge unlike signs
// independently; Mul tracks a single combined sign; Min/Max swap which slot
// receives which operation when combining against the opposite sign.
func (t *subtree[I]) merge(other *subtree[I], op BinOp, sink InstSink[I]) {
	switch op {
	case Mul:
		neg := t.neg.has != other.neg.has
		tPos, tNeg := t.pos, t.neg
		oPos, oNeg := other.pos, other.neg
		var selfLeaf, otherLeaf opt[I]
		if tPos.has {
			selfLeaf = tPos
		} else {
			selfLeaf = tNeg
		}
		if oPos.has {
			otherLeaf = oPos
		} else {
			otherLeaf = oNeg
		}
		t.pos, t.neg = selfLeaf, opt[I]{}
		mergeOpt(&t.pos, otherLeaf, Mul, sink)
		if neg {
			t.negate()
		}
	case Add:
		mergeOpt(&t.pos, other.pos, Add, sink)
		mergeOpt(&t.neg, other.neg, Add, sink)
	case Min:
		mergeOpt(&t.pos, other.pos, Min, sink)
		mergeOpt(&t.neg, other.neg, Max, sink)
	case Max:
		mergeOpt(&t.pos, other.pos, Max, sink)
		mergeOpt(&t.neg, other.neg, Min, sink)
	default:
		panic("ir: reassociate: unreassociable op")
	}
}

// flush combines a pending pos/neg pair into a single pos slot under op, so
// the subtree is ready to merge into a differently-signed accumulation.
func (t *subtree[I]) flush(op BinOp, sink InstSink[I]) {
	if !t.pos.has || !t.neg.has {
		return
	}
	switch op {
	case Add:
		t.pos = some(sink.PushBinOp(Sub, [2]I{t.pos.val, t.neg.val}))
	case Min, Max:
		negArg := sink.PushUnOp(Neg, t.neg.val)
		t.pos = some(sink.PushBinOp(op, [2]I{t.pos.val, negArg}))
	default:
		panic("ir: reassociate: unflushable op")
	}
	t.neg = opt[I]{}
}

// instData tracks the in-progress associative chain for one instruction,
// split by VarSet: subtrees[v] holds the not-yet-combined leaves whose
// combined dependency set is exactly v. op records which associative
// operator is currently being accumulated, if any.
type instData[I any] struct {
	op       opt[BinOp]
	subtrees [int(ALL) + 1]subtree[I]
}

func newInstData[I any](vars VarSet, idx I) instData[I] {
	var nd instData[I]
	nd.subtrees[vars.Idx()].pos = some(idx)
	return nd
}

// flush forces every pending VarSet bucket through op, largest-VarSet-first,
// merging each into a single running accumulator, then stores that
// accumulator back under the union of all the VarSets it absorbed. This is
// the point where cross-VarSet combination actually happens, deferred as
// long as possible.
func (d *instData[I]) flush(sink InstSink[I]) {
	if !d.op.has {
		return
	}
	op := d.op.val

	var result subtree[I]
	resultVars := VarSet(0)
	for v := int(ALL); v >= 0; v-- {
		st := &d.subtrees[v]
		if st.isEmpty() {
			continue
		}
		st.flush(op, sink)
		result.merge(st, op, sink)
		result.flush(op, sink)
		resultVars = resultVars.Union(VarSet(v))
		*st = subtree[I]{}
	}
	d.subtrees[resultVars.Idx()] = result
	d.op = opt[BinOp]{}
}

// flushNeg forces any pending op, then resolves the single remaining leaf
// (materializing a Neg instruction if only the negative slot is occupied)
// down to a plain value.
func (d *instData[I]) flushNeg(sink InstSink[I]) (VarSet, I) {
	d.flush(sink)
	for v := 0; v <= int(ALL); v++ {
		st := &d.subtrees[v]
		if st.isEmpty() {
			continue
		}
		if st.pos.has {
			return VarSet(v), st.pos.val
		}
		return VarSet(v), sink.PushUnOp(Neg, st.neg.val)
	}
	panic("ir: reassociate: instData holds no value")
}

// negate flips the sign of every pending leaf and, if an associative op is
// mid-accumulation, swaps Min/Max (Add/Mul/Sub are their own sign-dual under
// per-leaf negation, so they're left alone).
func (d *instData[I]) negate() {
	for i := range d.subtrees {
		d.subtrees[i].negate()
	}
	if d.op.has {
		switch d.op.val {
		case Min:
			d.op.val = Max
		case Max:
			d.op.val = Min
		}
	}
}
