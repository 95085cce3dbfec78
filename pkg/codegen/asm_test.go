package codegen

import (
	"testing"

	"github.com/oisee/geomc/pkg/ir"
)

func TestNewRegisterRangeCheck(t *testing.T) {
	if got := NewRegister(0).Idx(); got != 0 {
		t.Fatalf("NewRegister(0).Idx() = %d, want 0", got)
	}
	if got := NewRegister(NumRegisters - 1).Idx(); got != NumRegisters-1 {
		t.Fatalf("NewRegister(%d).Idx() = %d, want %d", NumRegisters-1, got, NumRegisters-1)
	}
}

func TestNewRegisterPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for out-of-range register index")
		}
	}()
	NewRegister(NumRegisters)
}

func TestSpaceOfDistinctForEachVarSet(t *testing.T) {
	seen := make(map[int]ir.VarSet)
	for v := ir.VarSet(1); v <= ir.ALL; v++ {
		slot := SpaceOf(v).Idx()
		if other, ok := seen[slot]; ok {
			t.Fatalf("VarSets %v and %v map to the same MemorySpace slot %d", v, other, slot)
		}
		seen[slot] = v
	}
}

func TestOperandConstructors(t *testing.T) {
	reg := NewRegister(2)
	op := RegOperand(reg)
	if !op.HasReg || op.Reg != reg {
		t.Fatalf("RegOperand did not preserve the register")
	}

	mem := MemOperand(ConstsSpace, 5)
	if mem.HasReg {
		t.Fatalf("MemOperand should not report HasReg")
	}
	if mem.Mem != ConstsSpace || mem.Loc != 5 {
		t.Fatalf("MemOperand did not preserve mem/loc, got %+v", mem)
	}
}
