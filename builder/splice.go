package builder

import (
	"fmt"
	"sort"

	"github.com/googleprojectzero/fuzzilli-sub008/analyzer"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// maxSpliceAttempts bounds how many instructions SpliceRandom tries before
// giving up on a source program.
const maxSpliceAttempts = 10

// spliceEligible reports whether an instruction may anchor a splice. Jumps
// and lone block ends cannot stand on their own, and literals carry no
// behavior worth copying.
func spliceEligible(instr il.Instruction) bool {
	def := instr.Op.Definition()
	if def.IsJump() {
		return false
	}
	if def.IsBlockEnd() && !def.IsBlockStart() {
		return false
	}
	if def.Attributes.Contains(il.AttrPrimitive) || def.Attributes.Contains(il.AttrLiteral) {
		return false
	}
	return true
}

// SpliceRandom splices a slice anchored at a randomly chosen eligible
// instruction of the source program.
func (b *ProgramBuilder) SpliceRandom(from *il.Program) error {
	if from.Size() == 0 {
		return fmt.Errorf("cannot splice from an empty program: %w", ErrInvariantViolation)
	}
	for attempt := 0; attempt < maxSpliceAttempts; attempt++ {
		at := b.rng.Intn(from.Size())
		if !spliceEligible(from.At(at)) {
			continue
		}
		if err := b.Splice(from, at); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no spliceable instruction found: %w", ErrInvariantViolation)
}

// groupNode describes one block group of the source program.
type groupNode struct {
	parent      *groupNode
	blockInstrs []int
	start, end  int
}

// blockStructure computes, per instruction, the innermost block group it
// belongs to. Block instructions belong to the group they delimit.
func blockStructure(p *il.Program) []*groupNode {
	enclosing := make([]*groupNode, p.Size())
	var stack []*groupNode
	top := func() *groupNode {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}
	for i, instr := range p.Code {
		isEnd, isStart := instr.IsBlockEnd(), instr.IsBlockStart()
		switch {
		case isEnd && isStart:
			g := top()
			g.blockInstrs = append(g.blockInstrs, i)
			enclosing[i] = g
		case isStart:
			g := &groupNode{parent: top(), start: i, blockInstrs: []int{i}}
			stack = append(stack, g)
			enclosing[i] = g
		case isEnd:
			g := top()
			g.blockInstrs = append(g.blockInstrs, i)
			g.end = i
			enclosing[i] = g
			stack = stack[:len(stack)-1]
		default:
			enclosing[i] = top()
		}
	}
	return enclosing
}

// Splice copies the minimal closed dataflow slice ending at instruction `at`
// of the source program into the draft buffer. Enclosing block groups are
// carried along so the slice stays syntactically complete; free inputs whose
// definitions are literals are rewired to type-compatible local variables
// when any exist. On failure the buffer is restored.
func (b *ProgramBuilder) Splice(from *il.Program, at int) error {
	if at < 0 || at >= from.Size() {
		return fmt.Errorf("splice anchor %d out of range: %w", at, ErrInvariantViolation)
	}
	if !spliceEligible(from.At(at)) {
		return fmt.Errorf("%s cannot anchor a splice: %w", from.At(at).Op.Opcode, ErrInvariantViolation)
	}

	// Per-variable defining instruction and final inferred types of the
	// source program.
	defIdx := make(map[il.Variable]int)
	for i, instr := range from.Code {
		for _, v := range instr.AllOutputs() {
			defIdx[v] = i
		}
	}
	srcTyper := analyzer.NewTyper()
	analyzer.AnalyzeProgram(srcTyper, from)
	enclosing := blockStructure(from)

	needs := make(map[int]bool)
	seenVar := make(map[il.Variable]bool)
	free := make(map[il.Variable]il.Variable)

	var needInstr func(idx int)
	var needSpan func(g *groupNode)
	needVar := func(v il.Variable) {
		if seenVar[v] {
			return
		}
		seenVar[v] = true
		d := defIdx[v]
		dInstr := from.At(d)

		isInner := false
		for _, inner := range dInstr.InnerOutputs() {
			if inner == v {
				isInner = true
				break
			}
		}

		def := dInstr.Op.Definition()
		if def.Attributes.Contains(il.AttrLiteral) || def.Attributes.Contains(il.AttrPrimitive) {
			// Prefer rewiring literal-defined values to host dataflow.
			if local, ok := b.RandomVariableOfType(srcTyper.Type(v)); ok {
				free[v] = local
				return
			}
			if local, ok := b.RandomVariableForUseAs(srcTyper.Type(v)); ok {
				free[v] = local
				return
			}
		}
		if !isInner && def.IsBlockGroupStart() {
			// A value produced by a whole block group (a function, a class)
			// is meaningless without the group's content.
			needSpan(enclosing[d])
			return
		}
		needInstr(d)
	}
	needInstr = func(idx int) {
		if needs[idx] {
			return
		}
		needs[idx] = true
		instr := from.At(idx)
		for _, v := range instr.Inputs() {
			needVar(v)
		}
		for g := enclosing[idx]; g != nil; g = g.parent {
			for _, i := range g.blockInstrs {
				needInstr(i)
			}
		}
	}
	needSpan = func(g *groupNode) {
		for i := g.start; i <= g.end; i++ {
			needInstr(i)
		}
	}

	needInstr(at)

	indices := make([]int, 0, len(needs))
	for idx := range needs {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	mark := b.snapshot()
	err := b.Adopting(from, func() error {
		for foreign, local := range free {
			if err := b.MapVariable(foreign, local); err != nil {
				return err
			}
		}
		for _, idx := range indices {
			if err := b.Adopt(from.At(idx)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.rollback(mark)
		return err
	}
	return nil
}

// snapshot marks the current buffer position for a possible rollback.
func (b *ProgramBuilder) snapshot() int { return len(b.code) }

// rollback discards everything emitted after the mark and replays the
// remaining buffer through fresh analyzers.
func (b *ProgramBuilder) rollback(mark int) {
	code := b.code[:mark]
	b.deadCode.Reset()
	b.contexts.Reset()
	b.scopes.Reset()
	b.typer.Reset()
	b.code = nil
	b.numVariables = 0
	for idx := range b.comments {
		if idx >= mark {
			delete(b.comments, idx)
		}
	}
	for _, instr := range code {
		b.appendUnchecked(instr)
	}
}
