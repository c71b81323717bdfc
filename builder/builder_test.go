package builder

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googleprojectzero/fuzzilli-sub008/il"
	"github.com/googleprojectzero/fuzzilli-sub008/jstype"
)

// uniformPolicy selects uniformly among the eligible generators.
type uniformPolicy struct{}

func (uniformPolicy) Select(rng *rand.Rand, eligible []int) int {
	return eligible[rng.Intn(len(eligible))]
}

func newTestBuilder(t *testing.T) *ProgramBuilder {
	t.Helper()
	return New(rand.New(rand.NewSource(42)), nil, nil)
}

func finalize(t *testing.T, b *ProgramBuilder) *il.Program {
	t.Helper()
	p, err := b.Finalize()
	require.NoError(t, err)
	require.NoError(t, p.Check())
	return p
}

func TestEmitAndFinalize(t *testing.T) {
	b := newTestBuilder(t)
	v0 := b.LoadInt(1)
	v1 := b.LoadInt(2)
	v2 := b.BinaryOp(il.Add, v0, v1)

	assert.Equal(t, il.Variable(0), v0)
	assert.Equal(t, il.Variable(2), v2)
	assert.Equal(t, 3, b.Size())

	p := finalize(t, b)
	assert.Equal(t, 3, p.Size())

	// The builder is reusable after finalization.
	assert.Equal(t, 0, b.Size())
	b.LoadInt(7)
	q := finalize(t, b)
	assert.Equal(t, 1, q.Size())
	assert.NotEqual(t, p.ID, q.ID)
}

func TestBlockStructureEmission(t *testing.T) {
	b := newTestBuilder(t)
	cond := b.LoadBool(true)
	b.BeginIf(cond, false)
	b.LoadInt(1)
	b.BeginElse()
	b.LoadInt(2)
	b.EndIf()

	p := finalize(t, b)
	assert.Equal(t, 6, p.Size())
}

func TestFunctionValueVisibility(t *testing.T) {
	b := newTestBuilder(t)
	fn, params := b.BeginPlainFunction(il.FunctionParams{NumParameters: 2})
	require.Len(t, params, 2)

	// Inside the body the parameters are visible but the function itself is
	// not yet.
	visible := b.VisibleVariables()
	assert.Contains(t, visible, params[0])
	assert.NotContains(t, visible, fn)

	b.Return(params[0])
	b.EndPlainFunction()

	assert.Contains(t, b.VisibleVariables(), fn)
	arg := b.LoadInt(42)
	b.CallFunction(fn, arg)
	finalize(t, b)
}

func TestEmitRejectsContextViolation(t *testing.T) {
	b := newTestBuilder(t)
	v := b.LoadInt(1)
	err := CatchInvariantViolations(func() error {
		b.Return(v) // not inside a subroutine
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestAppendValidation(t *testing.T) {
	b := newTestBuilder(t)
	b.LoadInt(1)

	// Input not visible.
	err := b.Append(il.NewInstruction(il.New(il.OpTypeOf), 7, 1))
	assert.ErrorIs(t, err, ErrInvariantViolation)

	// Output breaks dense numbering.
	err = b.Append(il.NewInstruction(il.NewLoadInteger(2), 5))
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestAdoptRenumbersForeignProgram(t *testing.T) {
	b := newTestBuilder(t)
	b.LoadInt(1)
	b.LoadInt(2)
	src := finalize(t, b)

	// Adopting into a builder that already holds code shifts all numbers.
	b.LoadString("prefix")
	require.NoError(t, b.AdoptProgram(src))
	p := finalize(t, b)

	assert.Equal(t, 3, p.Size())
	assert.Equal(t, il.Variable(1), p.At(1).Output())
	assert.Equal(t, il.Variable(2), p.At(2).Output())
}

func TestReadoptingFinalizedProgramIsEquivalent(t *testing.T) {
	b := newTestBuilder(t)
	v0 := b.LoadInt(10)
	v1 := b.LoadInt(20)
	cond := b.Compare(il.LessThan, v0, v1)
	b.BeginIf(cond, false)
	b.BinaryOp(il.Mul, v0, v1)
	b.EndIf()
	p := finalize(t, b)

	require.NoError(t, b.AdoptProgram(p))
	q := finalize(t, b)

	require.Equal(t, p.Size(), q.Size())
	for i := 0; i < p.Size(); i++ {
		assert.Equal(t, p.At(i).Op.Opcode, q.At(i).Op.Opcode)
		assert.Equal(t, p.At(i).Inouts(), q.At(i).Inouts())
	}
}

func TestRandomVariableSelection(t *testing.T) {
	b := newTestBuilder(t)

	_, ok := b.RandomVariable()
	assert.False(t, ok, "no variables visible in an empty builder")

	i := b.LoadInt(1)
	s := b.LoadString("x")

	v, ok := b.RandomVariableOfType(jstype.String)
	require.True(t, ok)
	assert.Equal(t, s, v)

	v, ok = b.RandomVariableOfType(jstype.Integer)
	require.True(t, ok)
	assert.Equal(t, i, v)

	_, ok = b.RandomVariableOfType(jstype.RegExp)
	assert.False(t, ok)

	// May-be matching accepts only the integer for number; the string cannot be one.
	for trial := 0; trial < 20; trial++ {
		v, ok := b.RandomVariableForUseAs(jstype.Number)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestRandomVariablesPrefix(t *testing.T) {
	b := newTestBuilder(t)
	for i := 0; i < 5; i++ {
		b.LoadInt(int64(i))
	}
	for trial := 0; trial < 10; trial++ {
		vars := b.RandomVariables(3)
		assert.NotEmpty(t, vars)
		assert.LessOrEqual(t, len(vars), 3)
		seen := map[il.Variable]bool{}
		for _, v := range vars {
			assert.False(t, seen[v], "selection must not repeat variables")
			seen[v] = true
		}
	}
}

func TestRandomVariableFromOuterScope(t *testing.T) {
	b := newTestBuilder(t)
	outer := b.LoadInt(1)
	b.BeginIf(b.LoadBool(true), false)
	b.LoadInt(2)

	for trial := 0; trial < 10; trial++ {
		v, ok := b.RandomVariableFromOuterScope()
		require.True(t, ok)
		assert.NotEqual(t, il.Variable(2), v, "inner variable must not be selected")
	}
	_ = outer
	b.EndIf()
}

func TestSpliceRewiresFreeLiteralInputs(t *testing.T) {
	// Source: w0 = LoadInt 7; w1 = LoadString "x"; w2 = GetProperty("len", w1)
	sb := newTestBuilder(t)
	sb.LoadInt(7)
	w1 := sb.LoadString("x")
	sb.GetProperty(w1, "len")
	source := finalize(t, sb)

	// Target has a string variable to take w1's place.
	b := newTestBuilder(t)
	v0 := b.LoadString("host")
	require.NoError(t, b.Splice(source, 2))
	p := finalize(t, b)

	require.Equal(t, 2, p.Size())
	got := p.At(1)
	assert.Equal(t, il.OpGetProperty, got.Op.Opcode)
	assert.Equal(t, "len", got.Op.Params.(il.PropertyParams).Name)
	assert.Equal(t, v0, got.Input(0))
	assert.Equal(t, il.Variable(1), got.Output())
}

func TestSpliceIncludesDefinitionsWithoutHostCandidates(t *testing.T) {
	sb := newTestBuilder(t)
	w0 := sb.LoadInt(7)
	w1 := sb.LoadInt(8)
	sb.BinaryOp(il.Add, w0, w1)
	source := finalize(t, sb)

	// Empty target: the literal definitions must be copied.
	b := newTestBuilder(t)
	require.NoError(t, b.Splice(source, 2))
	p := finalize(t, b)
	assert.Equal(t, 3, p.Size())
	assert.Equal(t, il.OpBinaryOp, p.At(2).Op.Opcode)
}

func TestSpliceCarriesEnclosingBlocks(t *testing.T) {
	sb := newTestBuilder(t)
	w0 := sb.LoadInt(0)
	w1 := sb.LoadInt(10)
	sb.BeginWhileLoop(w0, w1, il.LessThan)
	sb.BinaryOp(il.Add, w0, w1)
	sb.EndWhileLoop()
	source := finalize(t, sb)

	b := newTestBuilder(t)
	require.NoError(t, b.Splice(source, 3))
	p := finalize(t, b)
	require.NoError(t, p.Check())

	var opcodes []il.Opcode
	for _, instr := range p.Code {
		opcodes = append(opcodes, instr.Op.Opcode)
	}
	assert.Contains(t, opcodes, il.OpBeginWhileLoop)
	assert.Contains(t, opcodes, il.OpEndWhileLoop)
	assert.Contains(t, opcodes, il.OpBinaryOp)
}

func TestSpliceRejectsIneligibleAnchor(t *testing.T) {
	sb := newTestBuilder(t)
	sb.LoadInt(7)
	source := finalize(t, sb)

	b := newTestBuilder(t)
	err := b.Splice(source, 0)
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, 0, b.Size(), "failed splice must not leave code behind")
}

func TestSpliceOfWholeProgramEqualsAdoption(t *testing.T) {
	// With an empty target there are no host variables to rewire to, so
	// splicing the closure of the final instruction reproduces the program.
	sb := newTestBuilder(t)
	w0 := sb.LoadInt(1)
	w1 := sb.LoadInt(2)
	sb.BinaryOp(il.Add, w0, w1)
	source := finalize(t, sb)

	spliced := newTestBuilder(t)
	require.NoError(t, spliced.Splice(source, 2))
	p, err := spliced.Finalize()
	require.NoError(t, err)

	adopted := newTestBuilder(t)
	require.NoError(t, adopted.AdoptProgram(source))
	q, err := adopted.Finalize()
	require.NoError(t, err)

	require.Equal(t, q.Size(), p.Size())
	for i := 0; i < p.Size(); i++ {
		assert.Equal(t, q.At(i).Op.Opcode, p.At(i).Op.Opcode)
		assert.Equal(t, q.At(i).Inouts(), p.At(i).Inouts())
	}
}

func TestBuildZeroIsNoOp(t *testing.T) {
	b := newTestBuilder(t)
	require.NoError(t, b.Build(0, BuildByGenerating))
	assert.Equal(t, 0, b.Size())
}

func TestBuildByGenerating(t *testing.T) {
	gens := []CodeGenerator{
		{
			Name:            "intPair",
			RequiredContext: il.ContextScript,
			Body: func(b *ProgramBuilder, _ []il.Variable) {
				b.LoadInt(b.RandomInt())
			},
		},
		{
			Name:            "adder",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.Number, jstype.Number},
			Body: func(b *ProgramBuilder, inputs []il.Variable) {
				b.BinaryOp(il.Add, inputs[0], inputs[1])
			},
		},
	}
	registry := NewGeneratorRegistry(gens, uniformPolicy{})
	b := New(rand.New(rand.NewSource(7)), registry, nil)

	require.NoError(t, b.Build(10, BuildByGenerating))
	assert.GreaterOrEqual(t, b.Size(), 10)
	assert.NotEmpty(t, b.UsedGenerators())
	finalize(t, b)
}

func TestFinalizeWithOpenBlockFails(t *testing.T) {
	b := newTestBuilder(t)
	cond := b.LoadBool(true)
	b.BeginIf(cond, false)
	_, err := b.Finalize()
	assert.ErrorIs(t, err, ErrInvariantViolation)

	// The builder resets even on failed finalization.
	assert.Equal(t, 0, b.Size())
	b.LoadInt(1)
	finalize(t, b)
}
