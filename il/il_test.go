package il

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCatalogComplete verifies that every opcode has a definition and that the
// definitions are internally consistent.
func TestCatalogComplete(t *testing.T) {
	for op := Opcode(0); op < Opcode(NumOpcodes); op++ {
		def, err := Lookup(op)
		require.NoError(t, err, "opcode %d has no definition", op)
		require.NotEmpty(t, def.Name)

		if def.IsBlockGroupStart() {
			assert.True(t, def.IsBlockStart(), "%s: group starts must open a block", def.Name)
		}
		if def.IsBlockGroupEnd() {
			assert.True(t, def.IsBlockEnd(), "%s: group ends must close a block", def.Name)
			assert.False(t, def.IsBlockStart(), "%s: group ends cannot reopen a block", def.Name)
		}
		if def.Attributes.Contains(AttrIsolating) {
			assert.True(t, def.IsBlockStart(), "%s: only block starts can isolate context", def.Name)
		}
		if def.ProvidedContext != ContextNone {
			assert.True(t, def.IsBlockStart(), "%s: only block starts provide context", def.Name)
		}
		assert.NotEqual(t, ContextNone, def.RequiredContext,
			"%s: required context must not be empty", def.Name)
	}

	_, err := Lookup(Opcode(NumOpcodes))
	assert.Error(t, err)
}

// TestCatalogNames verifies that opcode names are unique.
func TestCatalogNames(t *testing.T) {
	seen := make(map[string]Opcode)
	for op := Opcode(0); op < Opcode(NumOpcodes); op++ {
		name := op.String()
		if prev, ok := seen[name]; ok {
			t.Errorf("opcodes %d and %d share the name %q", prev, op, name)
		}
		seen[name] = op
	}
}

func TestOperationShapes(t *testing.T) {
	tests := []struct {
		op              *Operation
		numInputs       int
		numOutputs      int
		numInnerOutputs int
	}{
		{NewLoadInteger(42), 0, 1, 0},
		{NewLoadString("foo"), 0, 1, 0},
		{NewBinaryOp(Add), 2, 1, 0},
		{NewCompare(StrictEqual), 2, 1, 0},
		{NewGetProperty("length", false), 1, 1, 0},
		{NewSetProperty("x"), 2, 0, 0},
		{NewCallFunction(3, false), 4, 1, 0},
		{NewCallMethod("push", 2, false), 3, 1, 0},
		{NewCallComputedMethod(1, false), 3, 1, 0},
		{NewConstruct(0, true), 1, 1, 0},
		{NewCreateObject([]string{"a", "b"}), 2, 1, 0},
		{NewCreateArray(5), 5, 1, 0},
		{NewCreateTemplateString([]string{"a", "b", "c"}), 2, 1, 0},
		{NewBeginPlainFunction(FunctionParams{NumParameters: 2}), 0, 1, 2},
		{NewBeginGeneratorFunction(FunctionParams{}), 0, 1, 0},
		{NewBeginIf(false), 1, 0, 0},
		{NewBeginForLoop(LessThan, Add), 3, 0, 1},
		{NewBeginRepeatLoop(100), 0, 0, 1},
		{NewBeginClassDefinition(true), 1, 1, 0},
		{NewBeginClassDefinition(false), 0, 1, 0},
		{NewBeginClassConstructor(2), 0, 0, 3},
		{NewBeginClassMethod("m", 1), 0, 0, 2},
		{NewExplore("probe1", 3), 4, 0, 0},
		{NewProbe("p0"), 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.op.Opcode.String(), func(t *testing.T) {
			assert.Equal(t, tt.numInputs, tt.op.NumInputs())
			assert.Equal(t, tt.numOutputs, tt.op.NumOutputs())
			assert.Equal(t, tt.numInnerOutputs, tt.op.NumInnerOutputs())
		})
	}
}

func TestGuardedOperations(t *testing.T) {
	op := NewGetProperty("foo", true)
	assert.True(t, op.Guarded)

	unguarded := op.WithGuard(false)
	assert.False(t, unguarded.Guarded)
	assert.True(t, op.Guarded, "WithGuard must not modify the receiver")

	assert.Panics(t, func() { New(OpLoadUndefined).WithGuard(true) })
}

func TestInstructionAccessors(t *testing.T) {
	instr := NewInstruction(NewBinaryOp(Mul), 0, 1, 2)
	assert.Equal(t, []Variable{0, 1}, instr.Inputs())
	assert.Equal(t, Variable(2), instr.Output())
	assert.Empty(t, instr.InnerOutputs())
	assert.Equal(t, -1, instr.Index())

	fn := NewInstruction(NewBeginPlainFunction(FunctionParams{NumParameters: 2}), 3, 4, 5)
	assert.Empty(t, fn.Inputs())
	assert.Equal(t, Variable(3), fn.Output())
	assert.Equal(t, []Variable{4, 5}, fn.InnerOutputs())
	assert.Equal(t, []Variable{3, 4, 5}, fn.AllOutputs())
	assert.True(t, fn.IsBlockStart())

	assert.Panics(t, func() { NewInstruction(NewBinaryOp(Add), 0, 1) })
}

func TestProgramIdentityAndIndexing(t *testing.T) {
	code := []Instruction{
		NewInstruction(NewLoadInteger(1), 0),
		NewInstruction(NewLoadInteger(2), 1),
		NewInstruction(NewBinaryOp(Add), 0, 1, 2),
	}
	p := NewProgram(code)
	q := NewProgram(code)

	assert.NotEqual(t, p.ID, q.ID)
	assert.Equal(t, 3, p.Size())
	assert.Equal(t, 3, p.NumVariables())
	for i := 0; i < p.Size(); i++ {
		assert.Equal(t, i, p.At(i).Index())
	}
	require.NoError(t, p.Check())
}

func TestProgramCheck(t *testing.T) {
	tests := []struct {
		name    string
		code    []Instruction
		wantErr string
	}{
		{
			name: "valid block structure",
			code: []Instruction{
				NewInstruction(NewLoadBoolean(true), 0),
				NewInstruction(NewBeginIf(false), 0),
				NewInstruction(NewLoadInteger(1), 1),
				NewInstruction(New(OpBeginElse)),
				NewInstruction(NewLoadInteger(2), 2),
				NewInstruction(New(OpEndIf)),
			},
		},
		{
			name: "undefined input",
			code: []Instruction{
				NewInstruction(NewLoadInteger(1), 0),
				NewInstruction(NewBinaryOp(Add), 0, 5, 1),
			},
			wantErr: "undefined variable",
		},
		{
			name: "use before definition",
			code: []Instruction{
				NewInstruction(New(OpTypeOf), 1, 0),
				NewInstruction(NewLoadInteger(1), 1),
			},
			wantErr: "undefined variable",
		},
		{
			name: "non-dense numbering",
			code: []Instruction{
				NewInstruction(NewLoadInteger(1), 1),
			},
			wantErr: "out of order",
		},
		{
			name: "unmatched block end",
			code: []Instruction{
				NewInstruction(New(OpEndIf)),
			},
			wantErr: "none is open",
		},
		{
			name: "mismatched group",
			code: []Instruction{
				NewInstruction(New(OpBeginTry)),
				NewInstruction(New(OpEndIf)),
			},
			wantErr: "does not close",
		},
		{
			name: "unterminated block",
			code: []Instruction{
				NewInstruction(NewLoadBoolean(true), 0),
				NewInstruction(NewBeginIf(false), 0),
			},
			wantErr: "left open",
		},
		{
			name: "return outside subroutine",
			code: []Instruction{
				NewInstruction(NewLoadInteger(1), 0),
				NewInstruction(New(OpReturn), 0),
			},
			wantErr: "requires context",
		},
		{
			name: "return inside function",
			code: []Instruction{
				NewInstruction(NewBeginPlainFunction(FunctionParams{NumParameters: 1}), 0, 1),
				NewInstruction(New(OpReturn), 1),
				NewInstruction(New(OpEndPlainFunction)),
			},
		},
		{
			name: "break outside loop",
			code: []Instruction{
				NewInstruction(New(OpLoopBreak)),
			},
			wantErr: "requires context",
		},
		{
			name: "function body does not inherit loop context",
			code: []Instruction{
				NewInstruction(NewLoadInteger(0), 0),
				NewInstruction(NewLoadInteger(10), 1),
				NewInstruction(NewBeginWhileLoop(LessThan), 0, 1),
				NewInstruction(NewBeginPlainFunction(FunctionParams{}), 2),
				NewInstruction(New(OpLoopBreak)),
				NewInstruction(New(OpEndPlainFunction)),
				NewInstruction(New(OpEndWhileLoop)),
			},
			wantErr: "requires context",
		},
		{
			name: "guard on non-guardable opcode",
			code: []Instruction{
				NewInstruction(NewLoadInteger(1), 0),
				NewInstruction(&Operation{Opcode: OpReassign, Guarded: true, numInputs: 2}, 0, 0),
			},
			wantErr: "cannot be guarded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewProgram(tt.code).Check()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestProgramListing(t *testing.T) {
	p := NewProgram([]Instruction{
		NewInstruction(NewLoadInteger(1), 0),
		NewInstruction(NewLoadInteger(2), 1),
		NewInstruction(NewBinaryOp(Add), 0, 1, 2),
	})
	p.Comments = map[int]string{2: "sum"}

	out := p.String()
	assert.Contains(t, out, "v0 <- LoadInteger 1")
	assert.Contains(t, out, "v2 <- BinaryOp '+' v0, v1")
	assert.Contains(t, out, "// sum")
}

func TestContextString(t *testing.T) {
	ctx := ContextScript | ContextLoop
	assert.Equal(t, "[script, loop]", ctx.String())
	assert.True(t, ctx.Contains(ContextScript))
	assert.False(t, ctx.Contains(ContextSubroutine))
}
