package ir

// MemoIdx identifies a value produced while memoizing: either a location in
// the shared consts table, a raw (not-yet-materialized) variable reference,
// or an instruction living inside the MemoizedFunc for Vars. Exactly one of
// these three is meaningful for a given MemoIdx, selected by Vars and the
// isVar flag.
type MemoIdx struct {
	Vars     VarSet
	idx      InstIdx  // valid when Vars != 0 && !isVar: a materialized instruction in Funcs[Vars]
	constLoc Location // valid when Vars == 0: index into Memoized.Consts
	isVar    bool      // true: a bare input variable, not yet materialized anywhere
}

// MemoizedFunc is one per-VarSet sub-function of a memoized program. Its
// instruction pool holds only UnOp, BinOp, and Load shapes — Const and Var
// are lowered away before a value crosses into a sub-function.
type MemoizedFunc struct {
	Vars    VarSet
	Insts   []Inst
	Outputs []InstIdx // slot -> defining instruction index within this func
}

func (f *MemoizedFunc) push(inst Inst) InstIdx {
	if inst.Shape == ShapeConst || inst.Shape == ShapeVar {
		panic("ir: memoize: Const/Var instruction pushed into a MemoizedFunc")
	}
	idx := NewInstIdx(len(f.Insts))
	f.Insts = append(f.Insts, inst)
	return idx
}

// addOutput reserves a new output slot for def and returns its location.
func (f *MemoizedFunc) addOutput(def InstIdx) Location {
	loc := Location(len(f.Outputs))
	f.Outputs = append(f.Outputs, def)
	return loc
}

// Memoized is the full split program: a flat consts table plus one
// MemoizedFunc per non-empty VarSet, indexed by VarSet mask (1..7); index 0
// is unused (VarSet 0 — constants — has no function, only the consts table).
type Memoized struct {
	Consts []Const
	Funcs  [ALL + 1]*MemoizedFunc
}

type storeKey struct {
	vars VarSet
	idx  InstIdx
}

type loadKey struct {
	vars VarSet
	loc  Location
}

// Memoize splits a single frozen instruction pool into one sub-function per
// non-empty VarSet, inserting explicit Load instructions (and output slots
// on the producing side) wherever a value crosses from one VarSet's function
// into another's. insts must contain only Const, Var,
// UnOp, and BinOp shapes — no Load (those are this pass's own output).
func Memoize(insts *Insts) *Memoized {
	m := &Memoized{}
	for v := VarSet(1); v <= ALL; v++ {
		m.Funcs[v] = &MemoizedFunc{Vars: v}
	}

	memo := make([]MemoIdx, insts.Len())
	stores := make(map[storeKey]Location)
	loads := make([]map[loadKey]InstIdx, ALL+1)
	for v := range loads {
		loads[v] = make(map[loadKey]InstIdx)
	}

	// ensureLoad returns an InstIdx, local to the function for targetVars,
	// that holds src's value — reusing a direct reference when src already
	// lives in that same function, and otherwise allocating (or reusing,
	// via the per-function load cache) a Load instruction.
	ensureLoad := func(targetVars VarSet, src MemoIdx) InstIdx {
		if !src.isVar && src.Vars != 0 && src.Vars == targetVars {
			return src.idx
		}

		var key loadKey
		switch {
		case src.Vars == 0:
			key = loadKey{vars: 0, loc: src.constLoc}
		case src.isVar:
			key = loadKey{vars: src.Vars, loc: 0}
		default:
			sk := storeKey{vars: src.Vars, idx: src.idx}
			loc, ok := stores[sk]
			if !ok {
				loc = m.Funcs[src.Vars].addOutput(src.idx)
				stores[sk] = loc
			}
			key = loadKey{vars: src.Vars, loc: loc}
		}

		cache := loads[targetVars]
		if idx, ok := cache[key]; ok {
			return idx
		}
		idx := m.Funcs[targetVars].push(LoadInst(key.vars, key.loc))
		cache[key] = idx
		return idx
	}

	for i := 0; i < insts.Len(); i++ {
		old := NewInstIdx(i)
		inst := insts.At(old)

		switch inst.Shape {
		case ShapeConst:
			loc := Location(len(m.Consts))
			m.Consts = append(m.Consts, inst.Value)
			memo[i] = MemoIdx{Vars: 0, constLoc: loc}

		case ShapeVar:
			memo[i] = MemoIdx{Vars: Of(inst.Var), isVar: true}

		case ShapeUnOp:
			arg := memo[inst.Arg.Idx()]
			target := arg.Vars
			argIdx := ensureLoad(target, arg)
			memo[i] = MemoIdx{Vars: target, idx: m.Funcs[target].push(UnOpInst(inst.Op, argIdx))}

		case ShapeBinOp:
			a := memo[inst.Args[0].Idx()]
			b := memo[inst.Args[1].Idx()]
			target := a.Vars.Union(b.Vars)
			aIdx := ensureLoad(target, a)
			bIdx := ensureLoad(target, b)
			memo[i] = MemoIdx{Vars: target, idx: m.Funcs[target].push(BinOpInst(inst.BinOp, [2]InstIdx{aIdx, bIdx}))}

		default:
			panic("ir: memoize: unexpected instruction shape in input pool")
		}
	}

	if insts.Len() > 0 {
		last := memo[insts.Len()-1]
		if last.isVar || last.Vars == 0 {
			// Degenerate program: the root is a bare variable or constant
			// with no arithmetic at all. Materialize it into the {x,y,z}
			// function so the program still has a well-formed output.
			idx := ensureLoad(ALL, last)
			m.Funcs[ALL].addOutput(idx)
		} else {
			m.Funcs[last.Vars].addOutput(last.idx)
		}
	}

	return m
}
