package storage

import (
	"bytes"
	"io"
	"math/rand"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/codegen"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// instructionComparer compares instructions structurally: opcode, guard,
// parameters, and variables.
var instructionComparer = cmp.Comparer(func(a, b il.Instruction) bool {
	if a.Op.Opcode != b.Op.Opcode || a.Op.Guarded != b.Op.Guarded {
		return false
	}
	if !reflect.DeepEqual(a.Op.Params, b.Op.Params) {
		return false
	}
	return reflect.DeepEqual(a.Inouts(), b.Inouts())
})

func requireEquivalent(t *testing.T, want, got *il.Program) {
	t.Helper()
	require.Equal(t, want.Size(), got.Size())
	if diff := cmp.Diff(want.Code, got.Code, instructionComparer); diff != "" {
		t.Fatalf("programs differ (-want +got):\n%s", diff)
	}
}

// buildSampleProgram covers literals, block structure, guards, variadic
// calls, and instrumentation opcodes.
func buildSampleProgram(t *testing.T) *il.Program {
	t.Helper()
	b := builder.New(rand.New(rand.NewSource(1)), nil, nil)
	i := b.LoadInt(-42)
	f := b.LoadFloat(13.37)
	s := b.LoadString("payload")
	arr := b.CreateArray([]il.Variable{i, f, s})
	b.Emit(il.NewGetProperty("length", true), arr)
	fn, params := b.BeginPlainFunction(il.FunctionParams{NumParameters: 2, HasRestParameter: true})
	b.Return(params[0])
	b.EndPlainFunction()
	b.CallFunction(fn, i, s)
	cond := b.Compare(il.LessThan, i, f)
	b.BeginIf(cond, true)
	b.SetProperty(arr, "x", s)
	b.BeginElse()
	b.Emit(il.NewExplore("xp1", 1), arr, i)
	b.EndIf()

	p, err := b.Finalize()
	require.NoError(t, err)
	require.NoError(t, p.Check())
	return p
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := buildSampleProgram(t)
	p.Comments = map[int]string{0: "first", 3: "the array"}

	payload := NewEncoder().Encode(p)
	got, err := NewDecoder().Decode(payload)
	require.NoError(t, err)
	require.NoError(t, got.Check())

	requireEquivalent(t, p, got)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Comments, got.Comments)
}

func TestRoundTripPreservesParentChain(t *testing.T) {
	parent := buildSampleProgram(t)
	child := buildSampleProgram(t)
	child.Parent = parent

	got, err := NewDecoder().Decode(NewEncoder().Encode(child))
	require.NoError(t, err)
	require.NotNil(t, got.Parent)
	assert.Equal(t, parent.ID, got.Parent.ID)
	requireEquivalent(t, parent, got.Parent)
}

func TestOperationDeduplication(t *testing.T) {
	// Two instructions sharing one operation value: the second occurrence is
	// an index reference and must decode to the same operation.
	op := il.NewLoadInteger(7)
	p := il.NewProgram([]il.Instruction{
		il.NewInstruction(op, 0),
		il.NewInstruction(op, 1),
		il.NewInstruction(il.NewBinaryOp(il.Add), 0, 1, 2),
	})
	require.NoError(t, p.Check())

	full := NewEncoder().Encode(p)
	// The deduplicated encoding is smaller than one that re-emits the
	// operation message.
	separate := NewEncoder().Encode(il.NewProgram([]il.Instruction{
		il.NewInstruction(il.NewLoadInteger(7), 0),
		il.NewInstruction(il.NewLoadInteger(7), 1),
		il.NewInstruction(il.NewBinaryOp(il.Add), 0, 1, 2),
	}))
	assert.Less(t, len(full), len(separate))

	got, err := NewDecoder().Decode(full)
	require.NoError(t, err)
	requireEquivalent(t, p, got)
	assert.Same(t, got.At(0).Op, got.At(1).Op, "dedup restores shared identity")
}

func TestDecodeRejectsCorruptPayloads(t *testing.T) {
	p := buildSampleProgram(t)
	payload := NewEncoder().Encode(p)

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
	}{
		{"truncated", func(b []byte) []byte { return b[:len(b)-3] }},
		{"garbage", func([]byte) []byte { return []byte{0xff, 0xff, 0xff} }},
		{"bad op index", func([]byte) []byte {
			// A single instruction referencing a table entry that was never
			// emitted.
			var buf []byte
			var instr []byte
			instr = appendTagBytes(instr, fieldInstrInouts, []byte{0})
			instr = appendTagVarint(instr, fieldInstrOpIdx, 99)
			buf = appendTagBytes(buf, fieldProgramInstr, instr)
			return buf
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder().Decode(tt.mutate(append([]byte(nil), payload...)))
			assert.ErrorIs(t, err, ErrCorruptData)
		})
	}
}

func TestStreamFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, []byte("abcde")))
	// 4 size bytes + 5 payload + 3 padding.
	assert.Equal(t, 12, buf.Len())

	payload, err := ReadRecord(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcde"), payload)

	_, err = ReadRecord(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCorpusExportImport(t *testing.T) {
	programs := []*il.Program{
		buildSampleProgram(t),
		buildSampleProgram(t),
		buildSampleProgram(t),
	}

	var buf bytes.Buffer
	require.NoError(t, ExportCorpus(&buf, programs))

	result, err := ImportCorpus(&buf)
	require.NoError(t, err)
	require.Len(t, result.Programs, len(programs))
	assert.Zero(t, result.Invalid)
	for i := range programs {
		requireEquivalent(t, programs[i], result.Programs[i])
	}
}

func TestImportAbortsOnCorruptStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportCorpus(&buf, []*il.Program{buildSampleProgram(t)}))
	data := buf.Bytes()
	truncated := bytes.NewReader(data[:len(data)-6])

	_, err := ImportCorpus(truncated)
	assert.ErrorIs(t, err, ErrCorruptData)
}

func TestRoundTripGeneratedPrograms(t *testing.T) {
	registry := codegen.NewDefaultRegistry(nil)
	b := builder.New(rand.New(rand.NewSource(99)), registry, nil)

	for trial := 0; trial < 10; trial++ {
		require.NoError(t, b.Build(20, builder.BuildByGenerating))
		p, err := b.Finalize()
		require.NoError(t, err)
		require.NoError(t, p.Check())

		got, err := NewDecoder().Decode(NewEncoder().Encode(p))
		require.NoError(t, err, "trial %d", trial)
		require.NoError(t, got.Check(), "trial %d", trial)
		requireEquivalent(t, p, got)
	}
}

func appendTagBytes(buf []byte, num int, val []byte) []byte {
	buf = append(buf, byte(num<<3|2))
	buf = append(buf, byte(len(val)))
	return append(buf, val...)
}

func appendTagVarint(buf []byte, num int, v uint64) []byte {
	buf = append(buf, byte(num<<3|0))
	return append(buf, byte(v))
}
