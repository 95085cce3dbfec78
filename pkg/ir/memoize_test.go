package ir

import "testing"

func TestMemoizeSplitsByVarSet(t *testing.T) {
	// x*x + y*y: the two squares stay in their own singleton functions (each
	// loading its variable first), and the add crosses into {x,y} with two
	// Loads.
	src := &Insts{}
	x := src.PushVar(X)
	y := src.PushVar(Y)
	sqx := src.PushUnOp(Square, x)
	sqy := src.PushUnOp(Square, y)
	src.PushBinOp(Add, [2]InstIdx{sqx, sqy})

	m := Memoize(src)

	fx := m.Funcs[Of(X).Idx()]
	if len(fx.Insts) != 2 || fx.Insts[0].Shape != ShapeLoad || fx.Insts[1].Shape != ShapeUnOp {
		t.Fatalf("x-function should hold exactly a Load of x and the one square, got %+v", fx.Insts)
	}
	if len(fx.Outputs) != 1 {
		t.Fatalf("x-function should export its square, got %d outputs", len(fx.Outputs))
	}

	fy := m.Funcs[Of(Y).Idx()]
	if len(fy.Insts) != 2 || len(fy.Outputs) != 1 {
		t.Fatalf("y-function should hold exactly a Load of y, one square and one output, got %+v / %d outputs", fy.Insts, len(fy.Outputs))
	}

	xy := Of(X).Union(Of(Y))
	fxy := m.Funcs[xy.Idx()]
	if len(fxy.Insts) != 3 {
		t.Fatalf("xy-function should hold 2 loads + 1 add, got %d insts", len(fxy.Insts))
	}
	if len(fxy.Outputs) != 1 {
		t.Fatalf("xy-function should export the final sum, got %d outputs", len(fxy.Outputs))
	}
}

func TestMemoizeConstStaysOutOfFunctions(t *testing.T) {
	src := &Insts{}
	c := src.PushConst(NewConst(3))
	x := src.PushVar(X)
	src.PushBinOp(Add, [2]InstIdx{c, x})

	m := Memoize(src)
	if len(m.Consts) != 1 || m.Consts[0].Value() != 3 {
		t.Fatalf("expected one const (3) in the shared table, got %+v", m.Consts)
	}

	fx := m.Funcs[Of(X).Idx()]
	if len(fx.Insts) != 3 {
		t.Fatalf("x-function should hold a const-load + x-load + add, got %d", len(fx.Insts))
	}
	if fx.Insts[0].Shape != ShapeLoad || fx.Insts[0].Vars != VarSet(0) {
		t.Fatalf("first x-function instruction should be a Load from the consts space, got %+v", fx.Insts[0])
	}
}

func TestMemoizeReusesLoadsForRepeatedCrossing(t *testing.T) {
	// x used twice inside the xy-function shouldn't produce two Loads.
	src := &Insts{}
	x := src.PushVar(X)
	y := src.PushVar(Y)
	a := src.PushBinOp(Add, [2]InstIdx{x, y})
	src.PushBinOp(Mul, [2]InstIdx{a, x})

	m := Memoize(src)
	xy := Of(X).Union(Of(Y))
	fxy := m.Funcs[xy.Idx()]

	loads := 0
	for _, inst := range fxy.Insts {
		if inst.Shape == ShapeLoad && inst.Vars == Of(X) {
			loads++
		}
	}
	if loads != 1 {
		t.Fatalf("expected exactly one Load of x reused across both uses, got %d", loads)
	}
}

func TestMemoizeDegenerateBareVar(t *testing.T) {
	src := &Insts{}
	src.PushVar(X)

	m := Memoize(src)
	all := m.Funcs[ALL.Idx()]
	if len(all.Outputs) != 1 {
		t.Fatalf("bare-variable program should still produce one output in the {x,y,z} function, got %d", len(all.Outputs))
	}
}
