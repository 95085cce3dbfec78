package ir

import "testing"

func TestReorderDropsDeadCode(t *testing.T) {
	src := &Insts{}
	x := src.PushVar(X)
	src.PushVar(Y) // dead: never referenced by the root
	sq := src.PushUnOp(Square, x)

	Reorder(src)

	if src.Len() != 2 {
		t.Fatalf("expected dead Y to be dropped, got %d live instructions", src.Len())
	}
	last := src.Pool[src.Len()-1]
	if last.Shape != ShapeUnOp || last.Op != Square {
		t.Fatalf("root should still be the square, got %+v", last)
	}
	_ = sq
}

func TestReorderPreservesValue(t *testing.T) {
	src := &Insts{}
	x := src.PushVar(X)
	y := src.PushVar(Y)
	src.PushVar(Z) // dead
	xy := src.PushBinOp(Add, [2]InstIdx{x, y})
	src.PushUnOp(Square, xy)

	samples := [][3]float32{{1, 2, 3}, {-2, 4, 0}}
	want := make([]float32, len(samples))
	for i, vars := range samples {
		want[i] = evalLast(src, vars)
	}

	Reorder(src)

	for i, vars := range samples {
		got := evalLast(src, vars)
		if got != want[i] {
			t.Errorf("reorder changed value for %v: got %v, want %v", vars, got, want[i])
		}
	}
}

func TestReorderArgsPrecedeUses(t *testing.T) {
	src := &Insts{}
	x := src.PushVar(X)
	y := src.PushVar(Y)
	z := src.PushVar(Z)
	xy := src.PushBinOp(Add, [2]InstIdx{x, y})
	src.PushBinOp(Mul, [2]InstIdx{xy, z})

	Reorder(src)

	for i, inst := range src.Pool {
		for _, arg := range inst.ArgRefs() {
			if arg.Idx() >= i {
				t.Fatalf("instruction %d references argument %d, which doesn't precede it", i, arg.Idx())
			}
		}
	}
}

func TestReorderEmptyPool(t *testing.T) {
	src := &Insts{}
	Reorder(src)
	if src.Len() != 0 {
		t.Fatalf("reordering an empty pool should stay empty, got %d", src.Len())
	}
}
