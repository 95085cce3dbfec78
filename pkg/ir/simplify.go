package ir

// OrdIdx is the constraint Simplify needs on the index type of the sink it
// wraps: comparable (so it can key a GVN hash map) and orderable (so
// commutative operands can be canonically sorted ascending).
// InstIdx is the only index type this package wraps Simplify around.
type OrdIdx[T any] interface {
	comparable
	Less(T) bool
}

// Simplify is the sole constructor for IR instructions: it layers global
// value numbering (structural de-duplication) and sign-folding rewrites on
// top of a downstream InstSink. It is generic over the
// downstream sink's index type so it can sit directly atop an Insts pool, or
// atop any other layered sink, matching the composable-sink design used
// throughout this package.
type Simplify[I OrdIdx[I]] struct {
	base InstSink[I]
	gvn  map[simplifyKey[I]]I
}

// NewSimplify wraps base with GVN/sign-folding.
func NewSimplify[I OrdIdx[I]](base InstSink[I]) *Simplify[I] {
	return &Simplify[I]{base: base, gvn: make(map[simplifyKey[I]]I)}
}

// SignIdx is the handle Simplify hands to its caller: a value together with
// a deferred sign. Encoding the sign as a tag (rather than materializing a
// Neg instruction immediately) lets later rewrites cancel it out for free.
type SignIdx[I any] struct {
	idx I
	neg bool
}

// Pos wraps idx with no pending negation.
func Pos[I any](idx I) SignIdx[I] { return SignIdx[I]{idx: idx} }

// NegIdx wraps idx with a pending negation.
func NegIdx[I any](idx I) SignIdx[I] { return SignIdx[I]{idx: idx, neg: true} }

func (s SignIdx[I]) negate() SignIdx[I] {
	return SignIdx[I]{idx: s.idx, neg: !s.neg}
}

type simplifyKeyKind uint8

const (
	keyConst simplifyKeyKind = iota
	keyVar
	keyUnOp
	keyBinOp
	keyLoad
)

type simplifyKey[I comparable] struct {
	kind  simplifyKeyKind
	cst   Const
	v     Var
	unop  UnOp
	binop BinOp
	arg   I
	args  [2]I
	vars  VarSet
	loc   Location
}

func (s *Simplify[I]) gvnUnOp(op UnOp, arg I) I {
	k := simplifyKey[I]{kind: keyUnOp, unop: op, arg: arg}
	if idx, ok := s.gvn[k]; ok {
		return idx
	}
	idx := s.base.PushUnOp(op, arg)
	s.gvn[k] = idx
	return idx
}

// gvnBinOp interns a binop whose operands are already in final order —
// ascending by index for commutative ops (enforced by sortAndCombine before
// this is called), as-given for Sub. Sub additionally checks for an existing
// reversed-order entry and, if found, returns its negation instead of
// creating a new instruction (the "Sub reversal" rewrite: a-b interned as
// -(b-a) when b-a already exists).
func (s *Simplify[I]) gvnBinOp(op BinOp, args [2]I) SignIdx[I] {
	if op == Sub {
		a, b := args[0], args[1]
		reversed := simplifyKey[I]{kind: keyBinOp, binop: op, args: [2]I{b, a}}
		if idx, ok := s.gvn[reversed]; ok {
			return NegIdx(idx)
		}
	}

	k := simplifyKey[I]{kind: keyBinOp, binop: op, args: args}
	if idx, ok := s.gvn[k]; ok {
		return Pos(idx)
	}
	idx := s.base.PushBinOp(op, args)
	s.gvn[k] = idx
	return Pos(idx)
}

func (s *Simplify[I]) forceNeg(arg SignIdx[I]) I {
	if arg.neg {
		return s.gvnUnOp(Neg, arg.idx)
	}
	return arg.idx
}

func (s *Simplify[I]) PushConst(value Const) SignIdx[I] {
	k := simplifyKey[I]{kind: keyConst, cst: value}
	idx, ok := s.gvn[k]
	if !ok {
		idx = s.base.PushConst(value)
		s.gvn[k] = idx
	}
	return Pos(idx)
}

func (s *Simplify[I]) PushVar(v Var) SignIdx[I] {
	k := simplifyKey[I]{kind: keyVar, v: v}
	idx, ok := s.gvn[k]
	if !ok {
		idx = s.base.PushVar(v)
		s.gvn[k] = idx
	}
	return Pos(idx)
}

func (s *Simplify[I]) PushUnOp(op UnOp, arg SignIdx[I]) SignIdx[I] {
	switch op {
	case Neg:
		// Delay creating the Neg instruction in case it cancels out later.
		return arg.negate()
	case Square:
		// Squaring -x is the same as squaring x: ignore the sign.
		return Pos(s.gvnUnOp(Square, arg.idx))
	default:
		return Pos(s.gvnUnOp(op, s.forceNeg(arg)))
	}
}

func (s *Simplify[I]) PushBinOp(op BinOp, args [2]SignIdx[I]) SignIdx[I] {
	a, b := args[0], args[1]

	switch {
	case !a.neg && !b.neg:
		return s.sortAndCombine(op, a.idx, b.idx, false)

	case op == Add && a.neg && b.neg:
		// (-x) + (-y) = -(x + y)
		return s.sortAndCombine(Add, a.idx, b.idx, true)
	case op == Add && !a.neg && b.neg:
		// x + (-y) = x - y
		return s.gvnBinOp(Sub, [2]I{a.idx, b.idx})
	case op == Add && a.neg && !b.neg:
		// (-x) + y = y - x
		return s.gvnBinOp(Sub, [2]I{b.idx, a.idx})

	case op == Sub && a.neg && b.neg:
		// (-x) - (-y) = y - x
		return s.gvnBinOp(Sub, [2]I{b.idx, a.idx})
	case op == Sub && !a.neg && b.neg:
		// x - (-y) = x + y
		return s.sortAndCombine(Add, a.idx, b.idx, false)
	case op == Sub && a.neg && !b.neg:
		// (-x) - y = -(x + y)
		return s.sortAndCombine(Add, a.idx, b.idx, true)

	case op == Mul && a.neg && b.neg:
		// (-x) * (-y) = x * y
		return s.sortAndCombine(Mul, a.idx, b.idx, false)
	case op == Mul && (a.neg != b.neg):
		// x * (-y) = -(x*y); (-x) * y = -(x*y)
		return s.sortAndCombine(Mul, a.idx, b.idx, true)

	case op == Min && a.neg && b.neg:
		// min(-x, -y) = -max(x, y)
		return s.sortAndCombine(Max, a.idx, b.idx, true)
	case op == Max && a.neg && b.neg:
		// max(-x, -y) = -min(x, y)
		return s.sortAndCombine(Min, a.idx, b.idx, true)

	default:
		// Exactly one operand negative, and op isn't Add/Sub/Mul/Min/Max
		// with a matching fast path above (Min/Max with one negative side):
		// materialize the Neg and recurse as a plain positive binop.
		pa, pb := a.idx, b.idx
		if a.neg {
			pa = s.gvnUnOp(Neg, a.idx)
		}
		if b.neg {
			pb = s.gvnUnOp(Neg, b.idx)
		}
		return s.sortAndCombine(op, pa, pb, false)
	}
}

// sortAndCombine applies commutative ascending-by-index sorting (via I's own
// Less method, which the OrdIdx constraint guarantees) and negates the result
// if requested.
func (s *Simplify[I]) sortAndCombine(op BinOp, a, b I, negated bool) SignIdx[I] {
	args := [2]I{a, b}
	if op.IsCommutative() && b.Less(a) {
		args = [2]I{b, a}
	}
	idx := s.gvnBinOp(op, args)
	if negated {
		return idx.negate()
	}
	return idx
}

func (s *Simplify[I]) PushLoad(vars VarSet, loc Location) SignIdx[I] {
	k := simplifyKey[I]{kind: keyLoad, vars: vars, loc: loc}
	idx, ok := s.gvn[k]
	if !ok {
		idx = s.base.PushLoad(vars, loc)
		s.gvn[k] = idx
	}
	return Pos(idx)
}

func (s *Simplify[I]) Finish(last SignIdx[I]) {
	final := s.forceNeg(last)
	s.base.Finish(final)
}
