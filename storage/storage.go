// Package storage serializes programs for the on-disk corpus.
//
// The format is a length-delimited stream of per-program protobuf records:
//
//	stream ::= record*
//	record ::= size:uint32(LE) payload:bytes[size] pad[(-size) mod 4]
//
// The payload is a protobuf message carrying the program's identity, its
// instructions with packed inouts and one operation submessage each, its
// comments, and optionally its parent program. Identical operation values
// shared between instructions are deduplicated: any repeat occurrence is
// encoded as an index into the implicit table formed by first occurrences.
//
// Decoding failures surface as ErrCorruptData and abort the import, never
// the process.
package storage

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// ErrCorruptData reports a malformed stream or record.
var ErrCorruptData = errors.New("corrupt program data")

// Program message fields.
const (
	fieldProgramUUID     = 1
	fieldProgramInstr    = 2
	fieldProgramComments = 4
	fieldProgramParent   = 5
)

// Instruction message fields. Operation submessages occupy the field range
// starting at fieldOpcodeBase, one field number per opcode.
const (
	fieldInstrInouts = 1
	fieldInstrOpIdx  = 2
	fieldOpcodeBase  = 10
)

// Operation submessage fields, shared by all opcodes.
const (
	fieldOpGuarded         = 1
	fieldOpNumInputs       = 2
	fieldOpNumOutputs      = 3
	fieldOpNumInnerOutputs = 4
	fieldOpInt             = 5
	fieldOpFloat           = 6
	fieldOpStr             = 7
	fieldOpStr2            = 8
	fieldOpEnum            = 9
	fieldOpEnum2           = 10
	fieldOpStrList         = 11
	fieldOpBoolList        = 12
	fieldOpIntList         = 13
	fieldOpFloatList       = 14
	fieldOpBool            = 15
)

// Encoder serializes programs, deduplicating operation values across one
// encoder's lifetime.
type Encoder struct {
	opTable map[*il.Operation]int
	nextIdx int
}

// NewEncoder creates an encoder with an empty operation table.
func NewEncoder() *Encoder {
	return &Encoder{opTable: make(map[*il.Operation]int)}
}

// Encode serializes one program into a protobuf payload.
func (e *Encoder) Encode(p *il.Program) []byte {
	var buf []byte
	id := p.ID
	buf = protowire.AppendTag(buf, fieldProgramUUID, protowire.BytesType)
	buf = protowire.AppendBytes(buf, id[:])
	for _, instr := range p.Code {
		buf = protowire.AppendTag(buf, fieldProgramInstr, protowire.BytesType)
		buf = protowire.AppendBytes(buf, e.encodeInstruction(instr))
	}
	for idx, comment := range p.Comments {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(idx))
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendString(entry, comment)
		buf = protowire.AppendTag(buf, fieldProgramComments, protowire.BytesType)
		buf = protowire.AppendBytes(buf, entry)
	}
	if p.Parent != nil {
		buf = protowire.AppendTag(buf, fieldProgramParent, protowire.BytesType)
		buf = protowire.AppendBytes(buf, e.Encode(p.Parent))
	}
	return buf
}

func (e *Encoder) encodeInstruction(instr il.Instruction) []byte {
	var buf []byte

	var inouts []byte
	for _, v := range instr.Inouts() {
		inouts = protowire.AppendVarint(inouts, uint64(uint32(v)))
	}
	buf = protowire.AppendTag(buf, fieldInstrInouts, protowire.BytesType)
	buf = protowire.AppendBytes(buf, inouts)

	if idx, ok := e.opTable[instr.Op]; ok {
		buf = protowire.AppendTag(buf, fieldInstrOpIdx, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(idx))
		return buf
	}
	e.opTable[instr.Op] = e.nextIdx
	e.nextIdx++

	buf = protowire.AppendTag(buf, fieldOpcodeBase+protowire.Number(instr.Op.Opcode), protowire.BytesType)
	buf = protowire.AppendBytes(buf, encodeOperation(instr.Op))
	return buf
}

// encodeOperation serializes an operation's shape and parameters. Inouts are
// never part of the operation message.
func encodeOperation(op *il.Operation) []byte {
	var buf []byte
	appendBool := func(field protowire.Number, v bool) {
		if v {
			buf = protowire.AppendTag(buf, field, protowire.VarintType)
			buf = protowire.AppendVarint(buf, 1)
		}
	}
	appendInt := func(field protowire.Number, v int64) {
		buf = protowire.AppendTag(buf, field, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(v))
	}
	appendStr := func(field protowire.Number, v string) {
		buf = protowire.AppendTag(buf, field, protowire.BytesType)
		buf = protowire.AppendString(buf, v)
	}

	appendBool(fieldOpGuarded, op.Guarded)
	appendInt(fieldOpNumInputs, int64(op.NumInputs()))
	appendInt(fieldOpNumOutputs, int64(op.NumOutputs()))
	appendInt(fieldOpNumInnerOutputs, int64(op.NumInnerOutputs()))

	switch p := op.Params.(type) {
	case nil:
	case il.LoadIntegerParams:
		appendInt(fieldOpInt, p.Value)
	case il.LoadBigIntParams:
		appendStr(fieldOpStr, p.Value)
	case il.LoadFloatParams:
		buf = protowire.AppendTag(buf, fieldOpFloat, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, math.Float64bits(p.Value))
	case il.LoadStringParams:
		appendStr(fieldOpStr, p.Value)
	case il.LoadBooleanParams:
		appendBool(fieldOpBool, p.Value)
	case il.LoadRegExpParams:
		appendStr(fieldOpStr, p.Pattern)
		appendInt(fieldOpEnum, int64(p.Flags))
	case il.LoadBuiltinParams:
		appendStr(fieldOpStr, p.Name)
	case il.TemplateStringParams:
		for _, part := range p.Parts {
			appendStr(fieldOpStrList, part)
		}
	case il.CreateObjectParams:
		for _, name := range p.PropertyNames {
			appendStr(fieldOpStrList, name)
		}
	case il.SpreadParams:
		buf = appendPackedBools(buf, fieldOpBoolList, p.Spreads)
	case il.IntArrayParams:
		buf = appendPackedInts(buf, fieldOpIntList, p.Values)
	case il.FloatArrayParams:
		buf = appendPackedFloats(buf, fieldOpFloatList, p.Values)
	case il.PropertyParams:
		appendStr(fieldOpStr, p.Name)
	case il.UpdatePropertyParams:
		appendStr(fieldOpStr, p.Name)
		appendInt(fieldOpEnum, int64(p.Op))
	case il.ElementParams:
		appendInt(fieldOpInt, p.Index)
	case il.UpdateElementParams:
		appendInt(fieldOpInt, p.Index)
		appendInt(fieldOpEnum, int64(p.Op))
	case il.UnaryOpParams:
		appendInt(fieldOpEnum, int64(p.Op))
	case il.BinaryOpParams:
		appendInt(fieldOpEnum, int64(p.Op))
	case il.CompareParams:
		appendInt(fieldOpEnum, int64(p.Op))
	case il.MethodParams:
		appendStr(fieldOpStr, p.Name)
	case il.MethodSpreadParams:
		appendStr(fieldOpStr, p.Name)
		buf = appendPackedBools(buf, fieldOpBoolList, p.Spreads)
	case il.FunctionParams:
		appendInt(fieldOpEnum, int64(p.NumParameters))
		appendBool(fieldOpBool, p.HasRestParameter)
	case il.IfParams:
		appendBool(fieldOpBool, p.Inverted)
	case il.LoopParams:
		appendInt(fieldOpEnum, int64(p.Comparator))
	case il.ForLoopParams:
		appendInt(fieldOpEnum, int64(p.Comparator))
		appendInt(fieldOpEnum2, int64(p.Op))
	case il.RepeatParams:
		appendInt(fieldOpInt, p.Iterations)
	case il.ClassParams:
		appendBool(fieldOpBool, p.HasSuperclass)
	case il.ClassConstructorParams:
		appendInt(fieldOpEnum, int64(p.NumParameters))
	case il.ClassMethodParams:
		appendStr(fieldOpStr, p.Name)
		appendInt(fieldOpEnum, int64(p.NumParameters))
	case il.ExploreParams:
		appendStr(fieldOpStr, p.ID)
	case il.ProbeParams:
		appendStr(fieldOpStr, p.ID)
	case il.FixupParams:
		appendStr(fieldOpStr, p.ID)
		buf = protowire.AppendTag(buf, fieldOpStr2, protowire.BytesType)
		buf = protowire.AppendBytes(buf, p.Action)
	default:
		panic(fmt.Sprintf("unencodable parameters %T", op.Params))
	}
	return buf
}

func appendPackedBools(buf []byte, field protowire.Number, vals []bool) []byte {
	var packed []byte
	for _, v := range vals {
		if v {
			packed = protowire.AppendVarint(packed, 1)
		} else {
			packed = protowire.AppendVarint(packed, 0)
		}
	}
	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendBytes(buf, packed)
}

func appendPackedInts(buf []byte, field protowire.Number, vals []int64) []byte {
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(v))
	}
	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendBytes(buf, packed)
}

func appendPackedFloats(buf []byte, field protowire.Number, vals []float64) []byte {
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendBytes(buf, packed)
}
