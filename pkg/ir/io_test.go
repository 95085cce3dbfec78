package ir

import (
	"errors"
	"strings"
	"testing"
)

func TestReadWriteRoundTrip(t *testing.T) {
	src := strings.Join([]string{
		"a var-x",
		"b var-y",
		"c add a b",
		"d square c",
	}, "\n")

	pool := &Insts{}
	last, err := Read[InstIdx](strings.NewReader(src), pool)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if pool.Len() != 4 {
		t.Fatalf("expected 4 instructions, got %d", pool.Len())
	}
	if last.Idx() != 3 {
		t.Fatalf("Read should return the last line's index, got %d", last.Idx())
	}

	var buf strings.Builder
	if err := Write(&buf, pool.Pool); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := "v0 var-x\nv1 var-y\nv2 add v0 v1\nv3 square v2\n"
	if buf.String() != want {
		t.Fatalf("Write output mismatch:\ngot:  %q\nwant: %q", buf.String(), want)
	}
}

func TestReadSkipsCommentsAndBlankLines(t *testing.T) {
	src := "# a comment\n\na var-x  # trailing comment\n"
	pool := &Insts{}
	_, err := Read[InstIdx](strings.NewReader(src), pool)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if pool.Len() != 1 {
		t.Fatalf("expected 1 instruction, got %d", pool.Len())
	}
}

func TestReadEmptyInput(t *testing.T) {
	pool := &Insts{}
	_, err := Read[InstIdx](strings.NewReader("# nothing but comments\n"), pool)
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestReadUndefinedName(t *testing.T) {
	pool := &Insts{}
	_, err := Read[InstIdx](strings.NewReader("a neg b\n"), pool)
	var undef *UndefinedNameError
	if !errors.As(err, &undef) {
		t.Fatalf("expected UndefinedNameError, got %v", err)
	}
}

func TestReadRedefinedName(t *testing.T) {
	pool := &Insts{}
	_, err := Read[InstIdx](strings.NewReader("a var-x\na var-y\n"), pool)
	var redef *RedefinedNameError
	if !errors.As(err, &redef) {
		t.Fatalf("expected RedefinedNameError, got %v", err)
	}
}

func TestReadUnknownOp(t *testing.T) {
	pool := &Insts{}
	_, err := Read[InstIdx](strings.NewReader("a frobnicate\n"), pool)
	var unknown *UnknownOpError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownOpError, got %v", err)
	}
}

func TestReadExtraToken(t *testing.T) {
	pool := &Insts{}
	_, err := Read[InstIdx](strings.NewReader("a var-x garbage\n"), pool)
	var extra *ExtraTokenError
	if !errors.As(err, &extra) {
		t.Fatalf("expected ExtraTokenError, got %v", err)
	}
}

func TestReadMissingToken(t *testing.T) {
	pool := &Insts{}
	_, err := Read[InstIdx](strings.NewReader("a var-x\nb add a\n"), pool)
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestReadCallsFinish(t *testing.T) {
	pool := &Insts{}
	simp := NewSimplify[InstIdx](pool)
	last, err := Read[SignIdx[InstIdx]](strings.NewReader("a var-x\nb neg a\n"), simp)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	// Finish should have forced the pending sign into a materialized Neg,
	// even though the SignIdx Read itself returns still carries the deferred
	// sign (Read returns the pre-Finish handle; Finish's materialization is
	// only observable via the underlying pool).
	if pool.Len() != 2 {
		t.Fatalf("expected Finish to materialize the pending negation, got pool len %d", pool.Len())
	}
	if !last.neg {
		t.Fatalf("expected the returned handle to carry the deferred negation")
	}
}

func TestWriteMemoizedFormat(t *testing.T) {
	src := &Insts{}
	x := src.PushVar(X)
	src.PushUnOp(Square, x)
	m := Memoize(src)

	var buf strings.Builder
	if err := WriteMemoized(&buf, m); err != nil {
		t.Fatalf("WriteMemoized: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "# consts: 0") {
		t.Errorf("expected a consts header, got %q", out)
	}
	if !strings.Contains(out, "# func x: 1 outputs") {
		t.Errorf("expected the x-function header, got %q", out)
	}
}
