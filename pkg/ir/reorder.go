package ir

// Reorder rewrites insts in place into dense postorder: dead instructions
// (unreachable from the final value) are dropped, and every live instruction
// is renumbered to its position in a depth-first postorder walk from the
// root, so every argument precedes its uses. It uses an explicit stack rather than recursion so pool sizes in the
// thousands don't risk blowing a goroutine's stack.
func Reorder(insts *Insts) {
	if insts.Len() == 0 {
		return
	}
	root := NewInstIdx(insts.Len() - 1)

	remap := make([]InstIdx, insts.Len())
	stack := []InstIdx{root}
	placed := 0

	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		i := idx.Idx()
		if !remap[i].Valid() {
			changed := false
			args := insts.At(idx).ArgRefs()
			for j := len(args) - 1; j >= 0; j-- {
				arg := args[j]
				if !remap[arg.Idx()].Valid() {
					stack = append(stack, arg)
					changed = true
				}
			}
			if changed {
				continue
			}
			remap[i] = NewInstIdx(placed)
			placed++
		}
		stack = stack[:len(stack)-1]
	}

	pool := make([]Inst, placed)
	vars := make([]VarSet, placed)
	for old := 0; old < insts.Len(); old++ {
		newIdx := remap[old]
		if !newIdx.Valid() {
			continue // dead: unreachable from root
		}
		inst := insts.Pool[old]
		switch inst.Shape {
		case ShapeUnOp:
			inst.Arg = remap[inst.Arg.Idx()]
		case ShapeBinOp:
			inst.Args[0] = remap[inst.Args[0].Idx()]
			inst.Args[1] = remap[inst.Args[1].Idx()]
		}
		pool[newIdx.Idx()] = inst
		vars[newIdx.Idx()] = insts.Vars[old]
	}

	insts.Pool = pool
	insts.Vars = vars
}
