package ir

import "testing"

func TestSimplifyGVNDeduplicates(t *testing.T) {
	pool := &Insts{}
	s := NewSimplify[InstIdx](pool)

	x1 := s.PushVar(X)
	x2 := s.PushVar(X)
	if x1.idx != x2.idx {
		t.Fatalf("two pushes of the same var should GVN to the same index")
	}

	c1 := s.PushConst(NewConst(1))
	c2 := s.PushConst(NewConst(1))
	if c1.idx != c2.idx {
		t.Fatalf("two pushes of the same const should GVN to the same index")
	}

	sq1 := s.PushUnOp(Square, x1)
	sq2 := s.PushUnOp(Square, x2)
	if sq1.idx != sq2.idx {
		t.Fatalf("two squares of the same value should GVN to the same index")
	}

	if pool.Len() != 3 {
		t.Fatalf("pool should only hold 3 distinct instructions (x, 1, x squared), got %d", pool.Len())
	}
}

func TestSimplifyCommutativeSortingDeduplicates(t *testing.T) {
	pool := &Insts{}
	s := NewSimplify[InstIdx](pool)

	x := s.PushVar(X)
	y := s.PushVar(Y)

	xy := s.PushBinOp(Add, [2]SignIdx[InstIdx]{x, y})
	yx := s.PushBinOp(Add, [2]SignIdx[InstIdx]{y, x})
	if xy.idx != yx.idx {
		t.Fatalf("x+y and y+x should GVN to the same commutative instruction")
	}
}

func TestSimplifyNegCancels(t *testing.T) {
	pool := &Insts{}
	s := NewSimplify[InstIdx](pool)

	x := s.PushVar(X)
	negX := s.PushUnOp(Neg, x)
	negNegX := s.PushUnOp(Neg, negX)

	if negNegX.idx != x.idx || negNegX.neg != x.neg {
		t.Fatalf("double negation should cancel back to the original handle")
	}
	if pool.Len() != 1 {
		t.Fatalf("negating should never materialize an instruction eagerly, got pool len %d", pool.Len())
	}
}

func TestSimplifySubReversal(t *testing.T) {
	pool := &Insts{}
	s := NewSimplify[InstIdx](pool)

	x := s.PushVar(X)
	y := s.PushVar(Y)

	xMinusY := s.PushBinOp(Sub, [2]SignIdx[InstIdx]{x, y})
	yMinusX := s.PushBinOp(Sub, [2]SignIdx[InstIdx]{y, x})

	if yMinusX.idx != xMinusY.idx {
		t.Fatalf("y-x should reuse the x-y instruction")
	}
	if !yMinusX.neg {
		t.Fatalf("y-x should be the negation of x-y")
	}
}

func TestSimplifySquareIgnoresSign(t *testing.T) {
	pool := &Insts{}
	s := NewSimplify[InstIdx](pool)

	x := s.PushVar(X)
	negX := s.PushUnOp(Neg, x)

	sqX := s.PushUnOp(Square, x)
	sqNegX := s.PushUnOp(Square, negX)
	if sqX.idx != sqNegX.idx {
		t.Fatalf("square(x) and square(-x) should GVN to the same instruction")
	}
}

func TestSimplifyMinMaxNegationSwaps(t *testing.T) {
	pool := &Insts{}
	s := NewSimplify[InstIdx](pool)

	x := s.PushVar(X)
	y := s.PushVar(Y)
	negX := s.PushUnOp(Neg, x)
	negY := s.PushUnOp(Neg, y)

	// min(-x, -y) = -max(x, y)
	got := s.PushBinOp(Min, [2]SignIdx[InstIdx]{negX, negY})
	want := s.PushBinOp(Max, [2]SignIdx[InstIdx]{x, y})
	if got.idx != want.idx || !got.neg {
		t.Fatalf("min(-x,-y) should be the negation of max(x,y)")
	}
}
