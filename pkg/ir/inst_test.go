package ir

import "testing"

func TestVarSetString(t *testing.T) {
	tests := []struct {
		vars VarSet
		want string
	}{
		{VarSet(0), "const"},
		{Of(X), "x"},
		{Of(X).Union(Of(Y)), "xy"},
		{ALL, "xyz"},
	}
	for _, tt := range tests {
		if got := tt.vars.String(); got != tt.want {
			t.Errorf("VarSet(%d).String() = %q, want %q", tt.vars, got, tt.want)
		}
	}
}

func TestVarSetContainsIntersectsSubset(t *testing.T) {
	xy := Of(X).Union(Of(Y))
	if !xy.Contains(X) || !xy.Contains(Y) || xy.Contains(Z) {
		t.Fatalf("xy.Contains: got x=%v y=%v z=%v", xy.Contains(X), xy.Contains(Y), xy.Contains(Z))
	}
	if !xy.Intersects(Of(Y)) {
		t.Fatalf("xy should intersect {y}")
	}
	if xy.Intersects(Of(Z)) {
		t.Fatalf("xy should not intersect {z}")
	}
	if !Of(X).IsSubsetOf(xy) {
		t.Fatalf("{x} should be a subset of xy")
	}
	if xy.IsSubsetOf(Of(X)) {
		t.Fatalf("xy should not be a subset of {x}")
	}
}

func TestInstIdxSentinel(t *testing.T) {
	if NoIdx.Valid() {
		t.Fatalf("NoIdx must not be valid")
	}
	idx := NewInstIdx(0)
	if !idx.Valid() {
		t.Fatalf("NewInstIdx(0) must be valid")
	}
	if idx.Idx() != 0 {
		t.Fatalf("Idx() = %d, want 0", idx.Idx())
	}
}

func TestInstIdxOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on out-of-range index")
		}
	}()
	NewInstIdx(0xFFFF)
}

func TestInstIdxUnassignedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic using sentinel InstIdx")
		}
	}()
	NoIdx.Idx()
}

func TestNewConstRejectsNonFinite(t *testing.T) {
	for _, v := range []float32{float32(nan()), float32(inf())} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("expected panic for non-finite constant %v", v)
				}
			}()
			NewConst(v)
		}()
	}
}

func nan() float64 { return nanVal }
func inf() float64 { return infVal }

var nanVal = func() float64 {
	var zero float64
	return zero / zero
}()

var infVal = func() float64 {
	return 1.0 / zeroFloat
}()

var zeroFloat = 0.0

func TestInstsPushBuildsVarSet(t *testing.T) {
	p := &Insts{}
	c := p.PushConst(NewConst(1))
	x := p.PushVar(X)
	sum := p.PushBinOp(Add, [2]InstIdx{c, x})
	if got := p.VarsAt(sum); got != Of(X) {
		t.Fatalf("VarsAt(sum) = %v, want {x}", got)
	}
	sq := p.PushUnOp(Square, sum)
	if got := p.VarsAt(sq); got != Of(X) {
		t.Fatalf("VarsAt(sq) = %v, want {x}", got)
	}
}
