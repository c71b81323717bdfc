package mutator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// fakeCorpus serves a fixed set of programs.
type fakeCorpus struct {
	programs []*il.Program
}

func (c *fakeCorpus) RandomElement() *il.Program {
	if len(c.programs) == 0 {
		return nil
	}
	return c.programs[0]
}

func (c *fakeCorpus) RandomElementForSplicing() *il.Program { return c.RandomElement() }

// fakeHost wires mutators to canned collaborators.
type fakeHost struct {
	tunables Tunables
	corpus   *fakeCorpus
	execute  func(p *il.Program) Execution
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		tunables: DefaultTunables(),
		corpus:   &fakeCorpus{},
		execute: func(*il.Program) Execution {
			return Execution{Outcome: ExecutionSucceeded}
		},
	}
}

func (h *fakeHost) Tunables() Tunables { return h.tunables }
func (h *fakeHost) Corpus() Corpus     { return h.corpus }
func (h *fakeHost) ExecuteForFeedback(p *il.Program) Execution {
	return h.execute(p)
}

func newBuilder(seed int64) *builder.ProgramBuilder {
	return builder.New(rand.New(rand.NewSource(seed)), nil, nil)
}

// addSubProgram is the three-instruction program of the input replacement
// scenario: v0 = 1, v1 = 2, v2 = v0 + v1.
func addSubProgram(t *testing.T) *il.Program {
	t.Helper()
	p := il.NewProgram([]il.Instruction{
		il.NewInstruction(il.NewLoadInteger(1), 0),
		il.NewInstruction(il.NewLoadInteger(2), 1),
		il.NewInstruction(il.NewBinaryOp(il.Add), 0, 1, 2),
	})
	require.NoError(t, p.Check())
	return p
}

func TestInputMutatorReplacesExactlyOneInput(t *testing.T) {
	p := addSubProgram(t)
	host := newFakeHost()
	host.tunables.MaxSimultaneousMutations = 1
	m := NewInputMutator(Loose)

	changed := false
	for seed := int64(0); seed < 20; seed++ {
		b := newBuilder(seed)
		out, err := m.Mutate(p, b, host)
		require.NoError(t, err)
		require.NoError(t, out.Check())
		require.Equal(t, p.Size(), out.Size())

		// Only the BinaryOp instruction can have been touched, and at most
		// one of its input slots.
		got := out.At(2)
		assert.Equal(t, il.OpBinaryOp, got.Op.Opcode)
		diffs := 0
		for i, v := range got.Inputs() {
			assert.Contains(t, []il.Variable{0, 1}, v)
			if v != p.At(2).Input(i) {
				diffs++
			}
		}
		assert.LessOrEqual(t, diffs, 1)
		if diffs == 1 {
			changed = true
		}
	}
	assert.True(t, changed, "some mutation must actually replace an input")
}

func TestInputMutatorAwareRespectsTypes(t *testing.T) {
	// v0 int, v1 string, v2 int, v3 = v0 + v2. Aware replacement of an
	// integer input must never select the string.
	p := il.NewProgram([]il.Instruction{
		il.NewInstruction(il.NewLoadInteger(1), 0),
		il.NewInstruction(il.NewLoadString("s"), 1),
		il.NewInstruction(il.NewLoadInteger(2), 2),
		il.NewInstruction(il.NewBinaryOp(il.Add), 0, 2, 3),
	})
	require.NoError(t, p.Check())
	host := newFakeHost()
	host.tunables.MaxSimultaneousMutations = 1
	m := NewInputMutator(Aware)

	for seed := int64(0); seed < 30; seed++ {
		b := newBuilder(seed)
		out, err := m.Mutate(p, b, host)
		require.NoError(t, err)
		require.NoError(t, out.Check())
		for _, v := range out.At(3).Inputs() {
			assert.NotEqual(t, il.Variable(1), v, "string variable used as integer input")
		}
	}
}

func TestInputMutatorFailsWithoutCandidates(t *testing.T) {
	p := il.NewProgram([]il.Instruction{
		il.NewInstruction(il.NewLoadInteger(1), 0),
	})
	m := NewInputMutator(Loose)
	out, err := m.Mutate(p, newBuilder(1), newFakeHost())
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrMutationFailed)
}

func TestOperationMutatorRewritesOperator(t *testing.T) {
	p := addSubProgram(t)
	host := newFakeHost()
	host.tunables.MaxSimultaneousMutations = 1
	m := NewOperationMutator()

	differentOperator := false
	for seed := int64(0); seed < 30; seed++ {
		b := newBuilder(seed)
		out, err := m.Mutate(p, b, host)
		require.NoError(t, err)
		require.NoError(t, out.Check())
		require.Equal(t, p.Size(), out.Size())

		got := out.At(2)
		if got.Op.Opcode == il.OpBinaryOp {
			// Inouts must be untouched by a parameter rewrite.
			assert.Equal(t, p.At(2).Inouts(), got.Inouts())
			if got.Op.Params.(il.BinaryOpParams).Op != il.Add {
				differentOperator = true
			}
		}
	}
	assert.True(t, differentOperator, "the operator must change in some mutation")
}

func TestOperationMutatorExtendsVariadicCall(t *testing.T) {
	// v2 = CallFunction(v0; v1) with v1 an extra visible value.
	p := il.NewProgram([]il.Instruction{
		il.NewInstruction(il.NewBeginPlainFunction(il.FunctionParams{}), 0),
		il.NewInstruction(il.New(il.OpEndPlainFunction)),
		il.NewInstruction(il.NewLoadInteger(7), 1),
		il.NewInstruction(il.NewCallFunction(1, false), 0, 1, 2),
	})
	require.NoError(t, p.Check())
	host := newFakeHost()
	host.tunables.MaxSimultaneousMutations = 1
	m := NewOperationMutator()

	extended := false
	for seed := int64(0); seed < 30 && !extended; seed++ {
		b := newBuilder(seed)
		out, err := m.Mutate(p, b, host)
		require.NoError(t, err)
		require.NoError(t, out.Check())
		last := out.At(out.Size() - 1)
		require.Equal(t, il.OpCallFunction, last.Op.Opcode)
		assert.Equal(t, 1, last.NumOutputs(), "outputs preserved")
		if last.NumInputs() > 2 {
			extended = true
			assert.LessOrEqual(t, last.NumInputs(), 5, "at most three extra inputs")
		}
	}
	assert.True(t, extended, "the call must gain inputs in some mutation")
}

func TestSpliceMutatorInsertsCorpusSlice(t *testing.T) {
	sb := builder.New(rand.New(rand.NewSource(1)), nil, nil)
	w0 := sb.LoadString("x")
	sb.GetProperty(w0, "len")
	source, err := sb.Finalize()
	require.NoError(t, err)

	host := newFakeHost()
	host.tunables.MaxSimultaneousMutations = 1
	host.corpus.programs = []*il.Program{source}

	p := addSubProgram(t)
	m := NewSpliceMutator()

	grown := false
	for seed := int64(0); seed < 20 && !grown; seed++ {
		b := newBuilder(seed)
		out, err := m.Mutate(p, b, host)
		require.NoError(t, err)
		require.NoError(t, out.Check())
		if out.Size() > p.Size() {
			grown = true
			var found bool
			for _, instr := range out.Code {
				if instr.Op.Opcode == il.OpGetProperty {
					found = true
				}
			}
			assert.True(t, found, "the spliced property load must appear")
		}
	}
	assert.True(t, grown, "some mutation must splice code in")
}

func TestCombineMutatorAppendsWholeProgram(t *testing.T) {
	other := il.NewProgram([]il.Instruction{
		il.NewInstruction(il.NewLoadString("combined"), 0),
		il.NewInstruction(il.New(il.OpTypeOf), 0, 1),
	})
	require.NoError(t, other.Check())

	host := newFakeHost()
	host.tunables.MaxSimultaneousMutations = 1
	host.corpus.programs = []*il.Program{other}

	p := addSubProgram(t)
	m := NewCombineMutator()
	b := newBuilder(3)
	out, err := m.Mutate(p, b, host)
	require.NoError(t, err)
	require.NoError(t, out.Check())
	assert.Equal(t, p.Size()+other.Size(), out.Size())

	var loads int
	for _, instr := range out.Code {
		if p, ok := instr.Op.Params.(il.LoadStringParams); ok && p.Value == "combined" {
			loads++
		}
	}
	assert.Equal(t, 1, loads)
}

func TestJITStressMutatorCallsAFunction(t *testing.T) {
	p := il.NewProgram([]il.Instruction{
		il.NewInstruction(il.NewBeginPlainFunction(il.FunctionParams{NumParameters: 1}), 0, 1),
		il.NewInstruction(il.New(il.OpReturn), 1),
		il.NewInstruction(il.New(il.OpEndPlainFunction)),
		il.NewInstruction(il.NewLoadInteger(5), 2),
	})
	require.NoError(t, p.Check())

	m := NewJITStressMutator()
	out, err := m.Mutate(p, newBuilder(4), newFakeHost())
	require.NoError(t, err)
	require.NoError(t, out.Check())

	var sawLoop, sawCall bool
	for _, instr := range out.Code {
		switch instr.Op.Opcode {
		case il.OpBeginRepeatLoop:
			sawLoop = true
		case il.OpCallFunction:
			sawCall = true
			assert.True(t, instr.Op.Guarded, "stress calls are guarded")
		}
	}
	assert.True(t, sawLoop)
	assert.True(t, sawCall)
}

func TestMutatedProgramsRecordParent(t *testing.T) {
	p := addSubProgram(t)
	host := newFakeHost()
	host.tunables.MaxSimultaneousMutations = 1
	out, err := NewInputMutator(Loose).Mutate(p, newBuilder(5), host)
	require.NoError(t, err)
	assert.Same(t, p, out.Parent)
}
