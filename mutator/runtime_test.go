package mutator

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

func TestParseFuzzout(t *testing.T) {
	tests := []struct {
		name        string
		out         string
		wantOutcome InstrumentationOutcome
		wantActions int
		wantFails   int
	}{
		{
			name:        "action line",
			out:         `EXPLORE_ACTION: {"id":"x1","operation":"TYPE_OF","inputs":[]}`,
			wantOutcome: InstrumentationSuccess,
			wantActions: 1,
		},
		{
			name:        "failure line",
			out:         "EXPLORE_FAILURE: x2",
			wantOutcome: InstrumentationSuccess,
			wantFails:   1,
		},
		{
			name:        "no results",
			out:         "unrelated output\n",
			wantOutcome: NoResults,
		},
		{
			name:        "unexpected error",
			out:         "EXPLORE_ERROR: TypeError: x is not a function",
			wantOutcome: UnexpectedError,
		},
		{
			name: "tolerated error",
			out: "EXPLORE_ERROR: RangeError: Maximum call stack size exceeded\n" +
				"EXPLORE_ACTION: {\"id\":\"x3\",\"operation\":\"TYPE_OF\",\"inputs\":[]}",
			wantOutcome: InstrumentationSuccess,
			wantActions: 1,
		},
		{
			name:        "malformed action",
			out:         "EXPLORE_ACTION: {not json}",
			wantOutcome: UnexpectedError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, outcome, _ := parseFuzzout("EXPLORE", tt.out)
			assert.Equal(t, tt.wantOutcome, outcome)
			if outcome == InstrumentationSuccess {
				assert.Len(t, fb.actions, tt.wantActions)
				assert.Len(t, fb.failures, tt.wantFails)
			}
		})
	}
}

// exploreBase builds the program of the action replacement scenario: two
// integers and an array to explore.
func exploreBase(t *testing.T) *il.Program {
	t.Helper()
	p := il.NewProgram([]il.Instruction{
		il.NewInstruction(il.NewLoadInteger(1), 0),
		il.NewInstruction(il.NewLoadInteger(2), 1),
		il.NewInstruction(il.NewCreateArray(0), 2),
	})
	require.NoError(t, p.Check())
	return p
}

func TestExplorationMutatorTranslatesAction(t *testing.T) {
	p := exploreBase(t)
	host := newFakeHost()
	host.execute = func(instrumented *il.Program) Execution {
		// Answer one CALL_METHOD action for the point exploring the array.
		var out strings.Builder
		for _, instr := range instrumented.Code {
			params, ok := instr.Op.Params.(il.ExploreParams)
			if !ok {
				continue
			}
			def := defOf(instrumented, instr.Input(0))
			if def.Op.Opcode != il.OpCreateArray {
				continue
			}
			if instr.NumInputs() < 2 {
				continue
			}
			fmt.Fprintf(&out, "EXPLORE_ACTION: {\"id\":%q,\"operation\":\"CALL_METHOD\","+
				"\"inputs\":[{\"methodName\":\"push\"},{\"argumentIndex\":0}]}\n", params.ID)
		}
		return Execution{Outcome: ExecutionSucceeded, Fuzzout: out.String()}
	}

	m := NewExplorationMutator()
	var out *il.Program
	var err error
	for seed := int64(0); seed < 20; seed++ {
		out, err = m.Mutate(p, newBuilder(seed), host)
		if err == nil {
			break
		}
	}
	require.NoError(t, err)
	require.NoError(t, out.Check())

	var call *il.Instruction
	for i := range out.Code {
		instr := out.Code[i]
		assert.NotEqual(t, il.OpExplore, instr.Op.Opcode, "instrumentation must not survive")
		if instr.Op.Opcode == il.OpCallMethod {
			call = &out.Code[i]
		}
	}
	require.NotNil(t, call, "the selected action must be materialized")
	assert.Equal(t, "push", call.Op.Params.(il.MethodParams).Name)
	assert.Equal(t, 2, call.NumInputs(), "receiver plus one argument")
	receiverDef := defOf(out, call.Input(0))
	assert.Equal(t, il.OpCreateArray, receiverDef.Op.Opcode)
}

// defOf returns the instruction defining v in p.
func defOf(p *il.Program, v il.Variable) il.Instruction {
	for _, instr := range p.Code {
		for _, out := range instr.AllOutputs() {
			if out == v {
				return instr
			}
		}
	}
	panic("undefined variable")
}

func TestExplorationMutatorDropsUnansweredPoints(t *testing.T) {
	p := exploreBase(t)
	host := newFakeHost()
	host.execute = func(instrumented *il.Program) Execution {
		// Report a failure for every point.
		var out strings.Builder
		for _, instr := range instrumented.Code {
			if params, ok := instr.Op.Params.(il.ExploreParams); ok {
				fmt.Fprintf(&out, "EXPLORE_FAILURE: %s\n", params.ID)
			}
		}
		return Execution{Outcome: ExecutionSucceeded, Fuzzout: out.String()}
	}

	out, err := NewExplorationMutator().Mutate(p, newBuilder(1), host)
	require.NoError(t, err)
	require.NoError(t, out.Check())
	assert.Equal(t, p.Size(), out.Size(), "dropped instrumentation leaves the original code")
}

func TestExplorationMutatorOutcomes(t *testing.T) {
	p := exploreBase(t)

	tests := []struct {
		name    string
		exec    Execution
		outcome InstrumentationOutcome
	}{
		{"timeout", Execution{Outcome: ExecutionTimedOut}, InstrumentedProgramTimedOut},
		{"failed", Execution{Outcome: ExecutionFailed}, InstrumentedProgramFailed},
		{"silent", Execution{Outcome: ExecutionSucceeded}, NoResults},
		{"runtime error", Execution{Outcome: ExecutionSucceeded,
			Fuzzout: "EXPLORE_ERROR: SyntaxError"}, UnexpectedError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newFakeHost()
			host.execute = func(*il.Program) Execution { return tt.exec }
			out, err := NewExplorationMutator().Mutate(p, newBuilder(2), host)
			assert.Nil(t, out)
			var ie *InstrumentationError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.outcome, ie.Outcome)
		})
	}
}

func TestExplorationMutatorCannotInstrumentEmptyProgram(t *testing.T) {
	q := il.NewProgram(nil)
	out, err := NewExplorationMutator().Mutate(q, newBuilder(3), newFakeHost())
	assert.Nil(t, out)
	var ie *InstrumentationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, CannotInstrument, ie.Outcome)
}

func TestProbingMutatorMaterializesReport(t *testing.T) {
	p := exploreBase(t)
	host := newFakeHost()
	host.execute = func(instrumented *il.Program) Execution {
		var out strings.Builder
		for _, instr := range instrumented.Code {
			if params, ok := instr.Op.Params.(il.ProbeParams); ok {
				fmt.Fprintf(&out, "PROBE_ACTION: {\"id\":%q,\"operation\":\"GET_PROPERTY\","+
					"\"inputs\":[{\"propertyName\":\"length\"}]}\n", params.ID)
			}
		}
		return Execution{Outcome: ExecutionSucceeded, Fuzzout: out.String()}
	}

	out, err := NewProbingMutator().Mutate(p, newBuilder(4), host)
	require.NoError(t, err)
	require.NoError(t, out.Check())

	var gets int
	for _, instr := range out.Code {
		assert.NotEqual(t, il.OpProbe, instr.Op.Opcode)
		if instr.Op.Opcode == il.OpGetProperty {
			assert.Equal(t, "length", instr.Op.Params.(il.PropertyParams).Name)
			gets++
		}
	}
	assert.Greater(t, gets, 0)
}

// guardedFixupProgram holds one guarded property load, the fixup scenario's
// subject.
func guardedFixupProgram(t *testing.T) *il.Program {
	t.Helper()
	p := il.NewProgram([]il.Instruction{
		il.NewInstruction(il.NewCreateArray(0), 0),
		il.NewInstruction(il.NewGetProperty("foo", true), 0, 1),
		il.NewInstruction(il.New(il.OpTypeOf), 1, 2),
	})
	require.NoError(t, p.Check())
	return p
}

func TestFixupMutatorRemovesGuard(t *testing.T) {
	p := guardedFixupProgram(t)
	host := newFakeHost()
	host.execute = func(instrumented *il.Program) Execution {
		var out strings.Builder
		for _, instr := range instrumented.Code {
			params, ok := instr.Op.Params.(il.FixupParams)
			if !ok {
				continue
			}
			action, err := ParseAction(params.Action)
			require.NoError(t, err)
			require.True(t, action.IsGuarded, "the encoded action carries the guard")
			// The runtime reports the operation no longer throws.
			action.IsGuarded = false
			fmt.Fprintf(&out, "FIXUP_ACTION: %s\n", action.Encode())
		}
		return Execution{Outcome: ExecutionSucceeded, Fuzzout: out.String()}
	}

	out, err := NewFixupMutator().Mutate(p, newBuilder(5), host)
	require.NoError(t, err)
	require.NoError(t, out.Check())

	var get *il.Instruction
	for i := range out.Code {
		assert.NotEqual(t, il.OpFixup, out.Code[i].Op.Opcode)
		if out.Code[i].Op.Opcode == il.OpGetProperty {
			get = &out.Code[i]
		}
	}
	require.NotNil(t, get)
	assert.False(t, get.Op.Guarded, "the guard must be removed")
	assert.Equal(t, "foo", get.Op.Params.(il.PropertyParams).Name)
	// Downstream use of the loaded value still resolves.
	assert.Equal(t, il.OpTypeOf, out.At(out.Size()-1).Op.Opcode)
}

func TestFixupMutatorKeepsOriginalOnFailure(t *testing.T) {
	p := guardedFixupProgram(t)
	host := newFakeHost()
	host.execute = func(instrumented *il.Program) Execution {
		var out strings.Builder
		for _, instr := range instrumented.Code {
			if params, ok := instr.Op.Params.(il.FixupParams); ok {
				fmt.Fprintf(&out, "FIXUP_FAILURE: %s\n", params.ID)
			}
		}
		return Execution{Outcome: ExecutionSucceeded, Fuzzout: out.String()}
	}

	out, err := NewFixupMutator().Mutate(p, newBuilder(6), host)
	require.NoError(t, err)
	require.NoError(t, out.Check())

	var get *il.Instruction
	for i := range out.Code {
		if out.Code[i].Op.Opcode == il.OpGetProperty {
			get = &out.Code[i]
		}
	}
	require.NotNil(t, get)
	assert.True(t, get.Op.Guarded, "the guard must be retained")
}

func TestFixupMutatorRewritesPropertyName(t *testing.T) {
	p := guardedFixupProgram(t)
	host := newFakeHost()
	host.execute = func(instrumented *il.Program) Execution {
		var out strings.Builder
		for _, instr := range instrumented.Code {
			params, ok := instr.Op.Params.(il.FixupParams)
			if !ok {
				continue
			}
			action, err := ParseAction(params.Action)
			require.NoError(t, err)
			name := "length"
			action.Inputs[0].PropertyName = &name
			action.IsGuarded = false
			fmt.Fprintf(&out, "FIXUP_ACTION: %s\n", action.Encode())
		}
		return Execution{Outcome: ExecutionSucceeded, Fuzzout: out.String()}
	}

	out, err := NewFixupMutator().Mutate(p, newBuilder(7), host)
	require.NoError(t, err)
	require.NoError(t, out.Check())

	var names []string
	for _, instr := range out.Code {
		if instr.Op.Opcode == il.OpGetProperty {
			names = append(names, instr.Op.Params.(il.PropertyParams).Name)
		}
	}
	assert.Contains(t, names, "length")
	assert.NotContains(t, names, "foo")
}

func TestCodeGenMutatorInsertsCode(t *testing.T) {
	p := addSubProgram(t)
	host := newFakeHost()
	host.tunables.MaxSimultaneousMutations = 1

	gens := []builder.CodeGenerator{{
		Name:            "IntGen",
		RequiredContext: il.ContextScript,
		Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
			b.LoadInt(9)
		},
	}}
	registry := builder.NewGeneratorRegistry(gens, uniformTestPolicy{})
	b := builder.New(rand.New(rand.NewSource(8)), registry, nil)

	out, err := NewCodeGenMutator().Mutate(p, b, host)
	require.NoError(t, err)
	require.NoError(t, out.Check())
	assert.Greater(t, out.Size(), p.Size())
}

type uniformTestPolicy struct{}

func (uniformTestPolicy) Select(rng *rand.Rand, eligible []int) int {
	return eligible[rng.Intn(len(eligible))]
}
