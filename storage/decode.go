package storage

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// Decoder reconstructs programs, resolving deduplicated operation references
// against the table built from first occurrences.
type Decoder struct {
	opTable []*il.Operation
}

// NewDecoder creates a decoder with an empty operation table.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// corrupt wraps a decoding failure into the surfaced error class.
func corrupt(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrCorruptData)...)
}

// fields iterates the fields of one protobuf message.
func fields(data []byte, visit func(num protowire.Number, typ protowire.Type, value []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return corrupt("malformed field tag")
		}
		data = data[n:]
		size := protowire.ConsumeFieldValue(num, typ, data)
		if size < 0 {
			return corrupt("malformed field %d", num)
		}
		if err := visit(num, typ, data[:size]); err != nil {
			return err
		}
		data = data[size:]
	}
	return nil
}

func consumeVarint(value []byte) (uint64, error) {
	v, n := protowire.ConsumeVarint(value)
	if n < 0 {
		return 0, corrupt("malformed varint")
	}
	return v, nil
}

func consumeBytes(value []byte) ([]byte, error) {
	v, n := protowire.ConsumeBytes(value)
	if n < 0 {
		return nil, corrupt("malformed length-delimited value")
	}
	return v, nil
}

// Decode reconstructs one program from a protobuf payload.
func (d *Decoder) Decode(payload []byte) (*il.Program, error) {
	var id uuid.UUID
	var code []il.Instruction
	comments := make(map[int]string)
	var parent *il.Program

	err := fields(payload, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case fieldProgramUUID:
			raw, err := consumeBytes(value)
			if err != nil {
				return err
			}
			parsed, err := uuid.FromBytes(raw)
			if err != nil {
				return corrupt("bad program id: %v", err)
			}
			id = parsed
		case fieldProgramInstr:
			raw, err := consumeBytes(value)
			if err != nil {
				return err
			}
			instr, err := d.decodeInstruction(raw)
			if err != nil {
				return err
			}
			code = append(code, instr)
		case fieldProgramComments:
			raw, err := consumeBytes(value)
			if err != nil {
				return err
			}
			var key int
			var text string
			if err := fields(raw, func(num protowire.Number, _ protowire.Type, value []byte) error {
				switch num {
				case 1:
					v, err := consumeVarint(value)
					if err != nil {
						return err
					}
					key = int(v)
				case 2:
					s, err := consumeBytes(value)
					if err != nil {
						return err
					}
					text = string(s)
				}
				return nil
			}); err != nil {
				return err
			}
			comments[key] = text
		case fieldProgramParent:
			raw, err := consumeBytes(value)
			if err != nil {
				return err
			}
			p, err := d.Decode(raw)
			if err != nil {
				return err
			}
			parent = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p := il.NewProgram(code)
	p.ID = id
	if len(comments) > 0 {
		p.Comments = comments
	}
	p.Parent = parent
	return p, nil
}

func (d *Decoder) decodeInstruction(data []byte) (il.Instruction, error) {
	inouts := []il.Variable{}
	var op *il.Operation

	err := fields(data, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch {
		case num == fieldInstrInouts:
			raw, err := consumeBytes(value)
			if err != nil {
				return err
			}
			for len(raw) > 0 {
				v, n := protowire.ConsumeVarint(raw)
				if n < 0 {
					return corrupt("malformed inouts")
				}
				inouts = append(inouts, il.Variable(uint32(v)))
				raw = raw[n:]
			}
		case num == fieldInstrOpIdx:
			idx, err := consumeVarint(value)
			if err != nil {
				return err
			}
			if idx >= uint64(len(d.opTable)) {
				return corrupt("operation index %d out of table range %d", idx, len(d.opTable))
			}
			op = d.opTable[idx]
		case num >= fieldOpcodeBase:
			raw, err := consumeBytes(value)
			if err != nil {
				return err
			}
			opcode := il.Opcode(num - fieldOpcodeBase)
			decoded, err := decodeOperation(opcode, raw)
			if err != nil {
				return err
			}
			d.opTable = append(d.opTable, decoded)
			op = decoded
		}
		return nil
	})
	if err != nil {
		return il.Instruction{}, err
	}
	if op == nil {
		return il.Instruction{}, corrupt("instruction carries no operation")
	}
	if len(inouts) != op.NumInouts() {
		return il.Instruction{}, corrupt("%s requires %d inouts, got %d", op.Opcode, op.NumInouts(), len(inouts))
	}
	return il.NewInstruction(op, inouts...), nil
}

// operationFields holds the raw field values of one operation submessage.
type operationFields struct {
	guarded                               bool
	numInputs, numOutputs, numInnerOutput int
	intVal                                int64
	floatVal                              float64
	str, str2                             string
	str2Set                               bool
	enum1, enum2                          int64
	boolVal                               bool
	strList                               []string
	boolList                              []bool
	intList                               []int64
	floatList                             []float64
}

func parseOperationFields(data []byte) (*operationFields, error) {
	f := &operationFields{}
	err := fields(data, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case fieldOpGuarded, fieldOpBool:
			v, err := consumeVarint(value)
			if err != nil {
				return err
			}
			if num == fieldOpGuarded {
				f.guarded = v != 0
			} else {
				f.boolVal = v != 0
			}
		case fieldOpNumInputs, fieldOpNumOutputs, fieldOpNumInnerOutputs, fieldOpInt, fieldOpEnum, fieldOpEnum2:
			v, err := consumeVarint(value)
			if err != nil {
				return err
			}
			decoded := protowire.DecodeZigZag(v)
			switch num {
			case fieldOpNumInputs:
				f.numInputs = int(decoded)
			case fieldOpNumOutputs:
				f.numOutputs = int(decoded)
			case fieldOpNumInnerOutputs:
				f.numInnerOutput = int(decoded)
			case fieldOpInt:
				f.intVal = decoded
			case fieldOpEnum:
				f.enum1 = decoded
			case fieldOpEnum2:
				f.enum2 = decoded
			}
		case fieldOpFloat:
			v, n := protowire.ConsumeFixed64(value)
			if n < 0 {
				return corrupt("malformed float")
			}
			f.floatVal = math.Float64frombits(v)
		case fieldOpStr, fieldOpStr2:
			raw, err := consumeBytes(value)
			if err != nil {
				return err
			}
			if num == fieldOpStr {
				f.str = string(raw)
			} else {
				f.str2 = string(raw)
				f.str2Set = true
			}
		case fieldOpStrList:
			raw, err := consumeBytes(value)
			if err != nil {
				return err
			}
			f.strList = append(f.strList, string(raw))
		case fieldOpBoolList:
			raw, err := consumeBytes(value)
			if err != nil {
				return err
			}
			for len(raw) > 0 {
				v, n := protowire.ConsumeVarint(raw)
				if n < 0 {
					return corrupt("malformed packed bools")
				}
				f.boolList = append(f.boolList, v != 0)
				raw = raw[n:]
			}
		case fieldOpIntList:
			raw, err := consumeBytes(value)
			if err != nil {
				return err
			}
			for len(raw) > 0 {
				v, n := protowire.ConsumeVarint(raw)
				if n < 0 {
					return corrupt("malformed packed ints")
				}
				f.intList = append(f.intList, protowire.DecodeZigZag(v))
				raw = raw[n:]
			}
		case fieldOpFloatList:
			raw, err := consumeBytes(value)
			if err != nil {
				return err
			}
			for len(raw) > 0 {
				v, n := protowire.ConsumeFixed64(raw)
				if n < 0 {
					return corrupt("malformed packed floats")
				}
				f.floatList = append(f.floatList, math.Float64frombits(v))
				raw = raw[n:]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// decodeOperation rebuilds an operation through its public constructor so
// all shape bookkeeping stays in one place.
func decodeOperation(opcode il.Opcode, data []byte) (*il.Operation, error) {
	if _, err := il.Lookup(opcode); err != nil {
		return nil, corrupt("%v", err)
	}
	f, err := parseOperationFields(data)
	if err != nil {
		return nil, err
	}

	var op *il.Operation
	switch opcode {
	case il.OpLoadInteger:
		op = il.NewLoadInteger(f.intVal)
	case il.OpLoadBigInt:
		op = il.NewLoadBigInt(f.str)
	case il.OpLoadFloat:
		op = il.NewLoadFloat(f.floatVal)
	case il.OpLoadString:
		op = il.NewLoadString(f.str)
	case il.OpLoadBoolean:
		op = il.NewLoadBoolean(f.boolVal)
	case il.OpLoadRegExp:
		op = il.NewLoadRegExp(f.str, il.RegExpFlags(f.enum1))
	case il.OpLoadBuiltin:
		op = il.NewLoadBuiltin(f.str)
	case il.OpCreateTemplateString:
		if len(f.strList) == 0 {
			return nil, corrupt("template string without parts")
		}
		op = il.NewCreateTemplateString(f.strList)
	case il.OpCreateObject:
		op = il.NewCreateObject(f.strList)
	case il.OpCreateArray:
		op = il.NewCreateArray(f.numInputs)
	case il.OpCreateArrayWithSpread:
		op = il.NewCreateArrayWithSpread(f.boolList)
	case il.OpCreateIntArray:
		op = il.NewCreateIntArray(f.intList)
	case il.OpCreateFloatArray:
		op = il.NewCreateFloatArray(f.floatList)
	case il.OpGetProperty:
		op = il.NewGetProperty(f.str, f.guarded)
	case il.OpSetProperty:
		op = il.NewSetProperty(f.str)
	case il.OpUpdateProperty:
		op = il.NewUpdateProperty(f.str, il.BinaryOperator(f.enum1))
	case il.OpDeleteProperty:
		op = il.NewDeleteProperty(f.str, f.guarded)
	case il.OpGetElement:
		op = il.NewGetElement(f.intVal, f.guarded)
	case il.OpSetElement:
		op = il.NewSetElement(f.intVal)
	case il.OpUpdateElement:
		op = il.NewUpdateElement(f.intVal, il.BinaryOperator(f.enum1))
	case il.OpDeleteElement:
		op = il.NewDeleteElement(f.intVal, f.guarded)
	case il.OpUnaryOp:
		op = il.NewUnaryOp(il.UnaryOperator(f.enum1))
	case il.OpBinaryOp:
		op = il.NewBinaryOp(il.BinaryOperator(f.enum1))
	case il.OpUpdate:
		op = il.NewUpdate(il.BinaryOperator(f.enum1))
	case il.OpCompare:
		op = il.NewCompare(il.Comparator(f.enum1))
	case il.OpCallFunction:
		op = il.NewCallFunction(f.numInputs-1, f.guarded)
	case il.OpCallFunctionWithSpread:
		op = il.NewCallFunctionWithSpread(f.boolList, f.guarded)
	case il.OpConstruct:
		op = il.NewConstruct(f.numInputs-1, f.guarded)
	case il.OpConstructWithSpread:
		op = il.NewConstructWithSpread(f.boolList, f.guarded)
	case il.OpCallMethod:
		op = il.NewCallMethod(f.str, f.numInputs-1, f.guarded)
	case il.OpCallMethodWithSpread:
		op = il.NewCallMethodWithSpread(f.str, f.boolList, f.guarded)
	case il.OpCallComputedMethod:
		op = il.NewCallComputedMethod(f.numInputs-2, f.guarded)
	case il.OpBeginPlainFunction:
		op = il.NewBeginPlainFunction(il.FunctionParams{NumParameters: int(f.enum1), HasRestParameter: f.boolVal})
	case il.OpBeginArrowFunction:
		op = il.NewBeginArrowFunction(il.FunctionParams{NumParameters: int(f.enum1), HasRestParameter: f.boolVal})
	case il.OpBeginGeneratorFunction:
		op = il.NewBeginGeneratorFunction(il.FunctionParams{NumParameters: int(f.enum1), HasRestParameter: f.boolVal})
	case il.OpBeginAsyncFunction:
		op = il.NewBeginAsyncFunction(il.FunctionParams{NumParameters: int(f.enum1), HasRestParameter: f.boolVal})
	case il.OpBeginAsyncArrowFunction:
		op = il.NewBeginAsyncArrowFunction(il.FunctionParams{NumParameters: int(f.enum1), HasRestParameter: f.boolVal})
	case il.OpBeginAsyncGeneratorFunction:
		op = il.NewBeginAsyncGeneratorFunction(il.FunctionParams{NumParameters: int(f.enum1), HasRestParameter: f.boolVal})
	case il.OpBeginIf:
		op = il.NewBeginIf(f.boolVal)
	case il.OpBeginWhileLoop:
		op = il.NewBeginWhileLoop(il.Comparator(f.enum1))
	case il.OpBeginDoWhileLoop:
		op = il.NewBeginDoWhileLoop(il.Comparator(f.enum1))
	case il.OpBeginForLoop:
		op = il.NewBeginForLoop(il.Comparator(f.enum1), il.BinaryOperator(f.enum2))
	case il.OpBeginRepeatLoop:
		op = il.NewBeginRepeatLoop(f.intVal)
	case il.OpBeginClassDefinition:
		op = il.NewBeginClassDefinition(f.boolVal)
	case il.OpBeginClassConstructor:
		op = il.NewBeginClassConstructor(int(f.enum1))
	case il.OpBeginClassMethod:
		op = il.NewBeginClassMethod(f.str, int(f.enum1))
	case il.OpExplore:
		op = il.NewExplore(f.str, f.numInputs-1)
	case il.OpProbe:
		op = il.NewProbe(f.str)
	case il.OpFixup:
		var action []byte
		if f.str2Set {
			action = []byte(f.str2)
		}
		op = il.NewFixup(f.str, action, f.numInputs, f.numOutputs)
	default:
		// Every remaining opcode is parameterless with a fixed shape.
		op = il.New(opcode)
	}

	if op.NumInputs() != f.numInputs || op.NumOutputs() != f.numOutputs || op.NumInnerOutputs() != f.numInnerOutput {
		return nil, corrupt("%s decoded with inconsistent shape", opcode)
	}
	return op, nil
}
