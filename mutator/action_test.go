package mutator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

func TestActionJSONRoundTrip(t *testing.T) {
	data := []byte(`{"id":"x7","operation":"CALL_METHOD","inputs":[{"methodName":"push"},{"argumentIndex":0}]}`)
	a, err := ParseAction(data)
	require.NoError(t, err)
	assert.Equal(t, "x7", a.ID)
	assert.Equal(t, ActionCallMethod, a.Operation)
	require.Len(t, a.Inputs, 2)
	assert.Equal(t, "push", *a.Inputs[0].MethodName)
	assert.Equal(t, 0, *a.Inputs[1].ArgumentIndex)
	assert.False(t, a.IsGuarded)

	b, err := ParseAction(a.Encode())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseActionRejectsGarbage(t *testing.T) {
	_, err := ParseAction([]byte("{"))
	assert.Error(t, err)
	_, err = ParseAction([]byte(`{"id":"x"}`))
	assert.Error(t, err)
}

func TestActionTranslateCallMethod(t *testing.T) {
	b := builder.New(rand.New(rand.NewSource(1)), nil, nil)
	subject := b.CreateArray(nil)
	arg := b.LoadInt(42)

	idx := 0
	name := "push"
	a := &Action{
		ID:        "x7",
		Operation: ActionCallMethod,
		Inputs:    []ActionInput{{MethodName: &name}, {ArgumentIndex: &idx}},
	}
	result, hasResult, err := a.Translate(&ActionContext{Subject: subject, Arguments: []il.Variable{arg}}, b)
	require.NoError(t, err)
	assert.True(t, hasResult)

	p, err := b.Finalize()
	require.NoError(t, err)
	require.NoError(t, p.Check())
	call := p.At(p.Size() - 1)
	assert.Equal(t, il.OpCallMethod, call.Op.Opcode)
	assert.Equal(t, []il.Variable{subject, arg}, call.Inputs())
	assert.Equal(t, result, call.Output())
}

func TestActionTranslateLiteralsAndSpecials(t *testing.T) {
	b := builder.New(rand.New(rand.NewSource(2)), nil, nil)
	subject := b.LoadInt(1)

	op := "+"
	val := int64(5)
	a := &Action{
		ID:        "x1",
		Operation: ActionBinaryOp,
		Inputs:    []ActionInput{{String: &op}, {Int: &val}},
	}
	_, hasResult, err := a.Translate(&ActionContext{Subject: subject}, b)
	require.NoError(t, err)
	assert.True(t, hasResult)

	p, err := b.Finalize()
	require.NoError(t, err)
	require.NoError(t, p.Check())

	// The literal argument was materialized as a load.
	var sawLoad bool
	for _, instr := range p.Code {
		if params, ok := instr.Op.Params.(il.LoadIntegerParams); ok && params.Value == 5 {
			sawLoad = true
		}
	}
	assert.True(t, sawLoad)
}

func TestActionTranslateGuardedNonGuardable(t *testing.T) {
	b := builder.New(rand.New(rand.NewSource(3)), nil, nil)
	subject := b.CreateArray(nil)
	value := b.LoadInt(1)

	name := "x"
	idx := 0
	a := &Action{
		ID:        "x2",
		Operation: ActionSetProperty,
		Inputs:    []ActionInput{{PropertyName: &name}, {ArgumentIndex: &idx}},
		IsGuarded: true,
	}
	_, _, err := a.Translate(&ActionContext{Subject: subject, Arguments: []il.Variable{value}}, b)
	require.NoError(t, err)

	p, err := b.Finalize()
	require.NoError(t, err)
	require.NoError(t, p.Check())

	var sawTry, sawCatch bool
	for _, instr := range p.Code {
		switch instr.Op.Opcode {
		case il.OpBeginTry:
			sawTry = true
		case il.OpBeginCatch:
			sawCatch = true
		}
	}
	assert.True(t, sawTry, "guarded non-guardable actions compile to try/catch")
	assert.True(t, sawCatch)
}

func TestActionTranslateValidatesShape(t *testing.T) {
	b := builder.New(rand.New(rand.NewSource(4)), nil, nil)
	subject := b.LoadInt(1)
	ctx := &ActionContext{Subject: subject}

	_, _, err := (&Action{Operation: ActionGetProperty}).Translate(ctx, b)
	assert.Error(t, err, "missing property name input")

	_, _, err = (&Action{Operation: "UNKNOWN_OP"}).Translate(ctx, b)
	assert.Error(t, err)

	badIdx := 5
	_, _, err = (&Action{Operation: ActionCallFunction,
		Inputs: []ActionInput{{ArgumentIndex: &badIdx}}}).Translate(ctx, b)
	assert.Error(t, err, "argument index out of range")
}
