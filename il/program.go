package il

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Program is an immutable, ordered sequence of instructions with a stable
// identity. Programs are the only values exchanged between mutators, the
// corpus, and the serialization layer; all construction and editing happens
// inside a builder, never on a Program directly.
type Program struct {
	// ID is the program's unique identity.
	ID uuid.UUID

	// Code is the instruction sequence. Each instruction's index equals its
	// position.
	Code []Instruction

	// Comments maps instruction indices to free-form annotations, preserved
	// across serialization.
	Comments map[int]string

	// Parent is the program this one was derived from, if any.
	Parent *Program
}

// NewProgram creates a program from the given instructions, assigning dense
// indices and a fresh identity.
func NewProgram(code []Instruction) *Program {
	p := &Program{ID: uuid.New(), Code: make([]Instruction, len(code))}
	for i, instr := range code {
		p.Code[i] = instr.withIndex(i)
	}
	return p
}

// Size returns the number of instructions.
func (p *Program) Size() int { return len(p.Code) }

// At returns the instruction at position i.
func (p *Program) At(i int) Instruction { return p.Code[i] }

// NumVariables returns the number of variables defined in the program.
// Variables are numbered densely, so this is one past the highest number.
func (p *Program) NumVariables() int {
	n := 0
	for _, instr := range p.Code {
		n += instr.NumOutputs() + instr.NumInnerOutputs()
	}
	return n
}

// String renders the whole program as an indented listing.
func (p *Program) String() string {
	var sb strings.Builder
	indent := 0
	for _, instr := range p.Code {
		if instr.IsBlockEnd() && indent > 0 {
			indent--
		}
		sb.WriteString(strings.Repeat("    ", indent))
		sb.WriteString(instr.String())
		if comment, ok := p.Comments[instr.Index()]; ok {
			sb.WriteString(" // ")
			sb.WriteString(comment)
		}
		sb.WriteString("\n")
		if instr.IsBlockStart() {
			indent++
		}
	}
	return sb.String()
}

// blockGroupMatches reports whether closer may continue or close a block group
// opened by start.
func blockGroupMatches(start, closer Opcode) bool {
	switch closer {
	case OpBeginElse, OpEndIf:
		return start == OpBeginIf
	case OpEndWhileLoop:
		return start == OpBeginWhileLoop
	case OpEndDoWhileLoop:
		return start == OpBeginDoWhileLoop
	case OpEndForLoop:
		return start == OpBeginForLoop
	case OpEndForInLoop:
		return start == OpBeginForInLoop
	case OpEndForOfLoop:
		return start == OpBeginForOfLoop
	case OpEndRepeatLoop:
		return start == OpBeginRepeatLoop
	case OpBeginCatch, OpBeginFinally, OpEndTryCatchFinally:
		return start == OpBeginTry
	case OpEndWith:
		return start == OpBeginWith
	case OpEndSwitch:
		return start == OpBeginSwitch
	case OpEndSwitchCase:
		return start == OpBeginSwitchCase || start == OpBeginSwitchDefaultCase
	case OpEndClassDefinition:
		return start == OpBeginClassDefinition
	case OpEndClassConstructor:
		return start == OpBeginClassConstructor
	case OpEndClassMethod:
		return start == OpBeginClassMethod
	case OpEndCodeString:
		return start == OpBeginCodeString
	case OpEndPlainFunction:
		return start == OpBeginPlainFunction
	case OpEndArrowFunction:
		return start == OpBeginArrowFunction
	case OpEndGeneratorFunction:
		return start == OpBeginGeneratorFunction
	case OpEndAsyncFunction:
		return start == OpBeginAsyncFunction
	case OpEndAsyncArrowFunction:
		return start == OpBeginAsyncArrowFunction
	case OpEndAsyncGeneratorFunction:
		return start == OpBeginAsyncGeneratorFunction
	default:
		return false
	}
}

// InnerContext returns the context active inside the block opened by start,
// given the context surrounding the block group.
func InnerContext(surrounding Context, start *Operation) Context {
	def := start.Definition()
	if def.Attributes.Contains(AttrIsolating) {
		return ContextScript | def.ProvidedContext
	}
	return surrounding | def.ProvidedContext
}

// Check verifies the structural invariants of the program: dense instruction
// indexing, dense single-definition variable numbering, inputs defined by
// earlier instructions, matched block groups, and context closure. It returns
// the first violation found, or nil.
func (p *Program) Check() error {
	defined := make([]bool, p.NumVariables())
	numDefined := 0
	type frame struct {
		start *Operation
		ctx   Context
	}
	blocks := []frame{}
	ctx := ContextScript

	for i, instr := range p.Code {
		if instr.Index() != i {
			return fmt.Errorf("instruction %d carries index %d", i, instr.Index())
		}
		def := instr.Op.Definition()

		if !def.IsVariadic() && instr.NumInputs() != def.NumInputs {
			return fmt.Errorf("instruction %d: %s requires %d inputs, has %d", i, instr.Op.Opcode, def.NumInputs, instr.NumInputs())
		}
		if def.IsVariadic() && instr.NumInputs() < def.NumInputs {
			return fmt.Errorf("instruction %d: %s requires at least %d inputs, has %d", i, instr.Op.Opcode, def.NumInputs, instr.NumInputs())
		}
		if instr.Op.Guarded && !def.IsGuardable() {
			return fmt.Errorf("instruction %d: %s cannot be guarded", i, instr.Op.Opcode)
		}

		for _, v := range instr.Inputs() {
			if int(v) < 0 || int(v) >= len(defined) || !defined[v] {
				return fmt.Errorf("instruction %d uses undefined variable %s", i, v)
			}
		}
		for _, v := range instr.AllOutputs() {
			if int(v) != numDefined {
				return fmt.Errorf("instruction %d defines %s out of order, expected v%d", i, v, numDefined)
			}
			if defined[v] {
				return fmt.Errorf("instruction %d redefines variable %s", i, v)
			}
			defined[v] = true
			numDefined++
		}

		if !ctx.Contains(def.RequiredContext) {
			return fmt.Errorf("instruction %d: %s requires context %s, active is %s", i, instr.Op.Opcode, def.RequiredContext, ctx)
		}

		if def.IsBlockEnd() {
			if len(blocks) == 0 {
				return fmt.Errorf("instruction %d closes a block but none is open", i)
			}
			top := blocks[len(blocks)-1]
			if !blockGroupMatches(top.start.Opcode, instr.Op.Opcode) {
				return fmt.Errorf("instruction %d: %s does not close %s", i, instr.Op.Opcode, top.start.Opcode)
			}
			blocks = blocks[:len(blocks)-1]
			ctx = top.ctx
			if def.IsBlockStart() {
				// Continuation of the same group (else, catch, finally).
				blocks = append(blocks, frame{start: top.start, ctx: top.ctx})
				ctx = InnerContext(top.ctx, instr.Op)
			}
		} else if def.IsBlockStart() {
			blocks = append(blocks, frame{start: instr.Op, ctx: ctx})
			ctx = InnerContext(ctx, instr.Op)
		}
	}
	if len(blocks) != 0 {
		return fmt.Errorf("%d block(s) left open at end of program", len(blocks))
	}
	return nil
}
