package il

import (
	"fmt"
	"strings"
)

// Variable is the identity of an IL value: a small non-negative integer
// assigned at definition time. Variables are numbered densely in definition
// order within one program; adoption into another program renumbers them.
type Variable int

// String renders the variable in listings, e.g. "v3".
func (v Variable) String() string { return fmt.Sprintf("v%d", int(v)) }

// Instruction is one operation together with its input and output variables
// and its position in the owning program. Instructions are immutable.
type Instruction struct {
	// Op is the operation executed by this instruction.
	Op *Operation

	// inouts is the variable list, partitioned as inputs, then outputs, then
	// inner outputs, with counts taken from the operation.
	inouts []Variable

	// index is the instruction's position in the owning program, or -1 for
	// instructions not yet part of a program.
	index int
}

// NewInstruction creates an instruction from an operation and its variables.
// The number of variables must match the operation's shape exactly.
func NewInstruction(op *Operation, inouts ...Variable) Instruction {
	if len(inouts) != op.NumInouts() {
		panic(fmt.Sprintf("%s requires %d inouts, got %d", op.Opcode, op.NumInouts(), len(inouts)))
	}
	return Instruction{Op: op, inouts: inouts, index: -1}
}

// withIndex returns a copy of the instruction positioned at index i.
func (i Instruction) withIndex(idx int) Instruction {
	i.index = idx
	return i
}

// Index returns the instruction's position in the owning program, or -1.
func (i Instruction) Index() int { return i.index }

// NumInputs returns the number of input variables.
func (i Instruction) NumInputs() int { return i.Op.NumInputs() }

// NumOutputs returns the number of outer output variables.
func (i Instruction) NumOutputs() int { return i.Op.NumOutputs() }

// NumInnerOutputs returns the number of inner output variables.
func (i Instruction) NumInnerOutputs() int { return i.Op.NumInnerOutputs() }

// Input returns the n-th input variable.
func (i Instruction) Input(n int) Variable { return i.inouts[n] }

// Inputs returns the input variables. The returned slice must not be modified.
func (i Instruction) Inputs() []Variable { return i.inouts[:i.NumInputs()] }

// Output returns the single outer output of the instruction.
func (i Instruction) Output() Variable {
	if i.NumOutputs() != 1 {
		panic(fmt.Sprintf("%s has %d outputs", i.Op.Opcode, i.NumOutputs()))
	}
	return i.inouts[i.NumInputs()]
}

// Outputs returns the outer output variables. The returned slice must not be
// modified.
func (i Instruction) Outputs() []Variable {
	return i.inouts[i.NumInputs() : i.NumInputs()+i.NumOutputs()]
}

// InnerOutput returns the n-th inner output variable.
func (i Instruction) InnerOutput(n int) Variable {
	return i.inouts[i.NumInputs()+i.NumOutputs()+n]
}

// InnerOutputs returns the inner output variables. The returned slice must not
// be modified.
func (i Instruction) InnerOutputs() []Variable {
	return i.inouts[i.NumInputs()+i.NumOutputs():]
}

// AllOutputs returns outer and inner outputs together. The returned slice must
// not be modified.
func (i Instruction) AllOutputs() []Variable { return i.inouts[i.NumInputs():] }

// Inouts returns all variables of the instruction. The returned slice must not
// be modified.
func (i Instruction) Inouts() []Variable { return i.inouts }

// HasOutputs reports whether the instruction defines any variable.
func (i Instruction) HasOutputs() bool { return i.NumOutputs()+i.NumInnerOutputs() > 0 }

// IsBlockStart reports whether the instruction opens a block.
func (i Instruction) IsBlockStart() bool { return i.Op.Definition().IsBlockStart() }

// IsBlockEnd reports whether the instruction closes a block.
func (i Instruction) IsBlockEnd() bool { return i.Op.Definition().IsBlockEnd() }

// IsBlock reports whether the instruction opens or closes a block.
func (i Instruction) IsBlock() bool { return i.IsBlockStart() || i.IsBlockEnd() }

// IsJump reports whether the instruction unconditionally transfers control.
func (i Instruction) IsJump() bool { return i.Op.Definition().IsJump() }

// String renders the instruction in listing form, e.g.
// "v2 <- BinaryOp '+' v0, v1".
func (i Instruction) String() string {
	var sb strings.Builder
	if n := i.NumOutputs(); n > 0 {
		sb.WriteString(joinVariables(i.Outputs()))
		sb.WriteString(" <- ")
	}
	sb.WriteString(i.Op.String())
	if n := i.NumInnerOutputs(); n > 0 {
		sb.WriteString(" [")
		sb.WriteString(joinVariables(i.InnerOutputs()))
		sb.WriteString("]")
	}
	if i.NumInputs() > 0 {
		sb.WriteString(" ")
		sb.WriteString(joinVariables(i.Inputs()))
	}
	return sb.String()
}

func joinVariables(vars []Variable) string {
	parts := make([]string, len(vars))
	for n, v := range vars {
		parts[n] = v.String()
	}
	return strings.Join(parts, ", ")
}
