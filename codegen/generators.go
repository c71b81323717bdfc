package codegen

import (
	"github.com/googleprojectzero/fuzzilli-sub008/builder"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
	"github.com/googleprojectzero/fuzzilli-sub008/jstype"
)

// DefaultGenerators returns the built-in code generator catalog. The order is
// stable so selection policies can be persisted against it.
func DefaultGenerators() []builder.CodeGenerator {
	return []builder.CodeGenerator{
		{
			Name:            "IntegerGenerator",
			RequiredContext: il.ContextScript,
			Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
				b.LoadInt(b.RandomInt())
			},
		},
		{
			Name:            "FloatGenerator",
			RequiredContext: il.ContextScript,
			Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
				b.LoadFloat(b.RandomFloat())
			},
		},
		{
			Name:            "StringGenerator",
			RequiredContext: il.ContextScript,
			Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
				b.LoadString(b.RandomString())
			},
		},
		{
			Name:            "BigIntGenerator",
			RequiredContext: il.ContextScript,
			Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
				b.LoadBigInt("1000000000000000000")
			},
		},
		{
			Name:            "RegExpGenerator",
			RequiredContext: il.ContextScript,
			Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
				patterns := []string{"a+", "[0-9]*", "\\w+\\s", "(a|b)+c?", "^foo.*bar$"}
				pattern := patterns[b.Rand().Intn(len(patterns))]
				b.LoadRegExp(pattern, il.RandomRegExpFlags(func() bool { return b.Rand().Intn(4) == 0 }))
			},
		},
		{
			Name:            "BuiltinGenerator",
			RequiredContext: il.ContextScript,
			Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
				b.LoadBuiltin(b.RandomBuiltinName())
			},
		},
		{
			Name:            "ObjectGenerator",
			RequiredContext: il.ContextScript,
			Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
				n := 1 + b.Rand().Intn(3)
				names := make([]string, 0, n)
				values := b.RandomVariables(n)
				for range values {
					names = append(names, b.RandomPropertyName())
				}
				b.CreateObject(names, values)
			},
		},
		{
			Name:            "ArrayGenerator",
			RequiredContext: il.ContextScript,
			Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
				b.CreateArray(b.RandomVariables(4))
			},
		},
		{
			Name:            "UnaryOpGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.Anything},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				ops := il.AllUnaryOperators
				b.UnaryOp(ops[b.Rand().Intn(len(ops))], inputs[0])
			},
		},
		{
			Name:            "BinaryOpGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.Anything, jstype.Anything},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				ops := il.AllBinaryOperators
				b.BinaryOp(ops[b.Rand().Intn(len(ops))], inputs[0], inputs[1])
			},
		},
		{
			Name:            "ComparisonGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.Anything, jstype.Anything},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				ops := il.AllComparators
				b.Compare(ops[b.Rand().Intn(len(ops))], inputs[0], inputs[1])
			},
		},
		{
			Name:            "TypeOfGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.Anything},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				b.TypeOf(inputs[0])
			},
		},
		{
			Name:            "PropertyLoadGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.PlainObject},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				name, ok := b.Type(inputs[0]).RandomProperty(b.Rand())
				if !ok {
					name = b.RandomPropertyName()
				}
				b.GetProperty(inputs[0], name)
			},
		},
		{
			Name:            "PropertyStoreGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.PlainObject, jstype.Anything},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				b.SetProperty(inputs[0], b.RandomPropertyName(), inputs[1])
			},
		},
		{
			Name:            "ElementLoadGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.PlainObject},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				b.GetElement(inputs[0], int64(b.Rand().Intn(10)))
			},
		},
		{
			Name:            "ElementStoreGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.PlainObject, jstype.Anything},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				b.SetElement(inputs[0], int64(b.Rand().Intn(10)), inputs[1])
			},
		},
		{
			Name:            "ComputedPropertyLoadGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.PlainObject, jstype.String},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				b.GetComputedProperty(inputs[0], inputs[1])
			},
		},
		{
			Name:            "MethodCallGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.PlainObject},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				name, ok := b.Type(inputs[0]).RandomMethod(b.Rand())
				if !ok {
					name = b.RandomMethodName()
				}
				args := b.RandomVariables(3)
				b.CallMethod(inputs[0], name, args...)
			},
		},
		{
			Name:            "FunctionCallGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.Function(nil)},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				args := b.RandomVariables(3)
				b.CallFunction(inputs[0], args...)
			},
		},
		{
			Name:            "ConstructorCallGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.Constructor(nil)},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				args := b.RandomVariables(2)
				b.Construct(inputs[0], args...)
			},
		},
		{
			Name:            "FunctionDefinitionGenerator",
			RequiredContext: il.ContextScript,
			Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
				fn, params := b.BeginPlainFunction(il.FunctionParams{NumParameters: b.Rand().Intn(4)})
				b.BuildRecursive()
				if len(params) > 0 {
					b.Return(params[0])
				} else if v, ok := b.RandomVariable(); ok {
					b.Return(v)
				}
				b.EndPlainFunction()
				args := b.RandomVariables(3)
				b.CallFunction(fn, args...)
			},
		},
		{
			Name:            "IfElseGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.Anything},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				b.BeginIf(inputs[0], b.Rand().Intn(2) == 0)
				b.BuildRecursive()
				b.BeginElse()
				b.BuildRecursive()
				b.EndIf()
			},
		},
		{
			Name:            "WhileLoopGenerator",
			RequiredContext: il.ContextScript,
			Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
				start := b.LoadInt(0)
				end := b.LoadInt(int64(1 + b.Rand().Intn(10)))
				b.BeginWhileLoop(start, end, il.LessThan)
				b.BuildRecursive()
				one := b.LoadInt(1)
				b.Emit(il.NewUpdate(il.Add), start, one)
				b.EndWhileLoop()
			},
		},
		{
			Name:            "ForLoopGenerator",
			RequiredContext: il.ContextScript,
			Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
				start := b.LoadInt(0)
				end := b.LoadInt(int64(1 + b.Rand().Intn(100)))
				step := b.LoadInt(1)
				b.BeginForLoop(start, end, step, il.LessThan, il.Add)
				b.BuildRecursive()
				b.EndForLoop()
			},
		},
		{
			Name:            "ForOfLoopGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.PlainObject},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				b.BeginForOfLoop(inputs[0])
				b.BuildRecursive()
				b.EndForOfLoop()
			},
		},
		{
			Name:            "RepeatLoopGenerator",
			RequiredContext: il.ContextScript,
			Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
				b.BeginRepeatLoop(int64(2 + b.Rand().Intn(100)))
				b.BuildRecursive()
				b.EndRepeatLoop()
			},
		},
		{
			Name:            "TryCatchGenerator",
			RequiredContext: il.ContextScript,
			Body: func(b *builder.ProgramBuilder, _ []il.Variable) {
				b.BeginTry()
				b.BuildRecursive()
				b.BeginCatch()
				b.BuildRecursive()
				b.EndTryCatch()
			},
		},
		{
			Name:            "ThrowGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.Anything},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				b.BeginTry()
				b.ThrowException(inputs[0])
				b.BeginCatch()
				b.EndTryCatch()
			},
		},
		{
			Name:            "DupGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.Anything},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				b.Dup(inputs[0])
			},
		},
		{
			Name:            "ReassignGenerator",
			RequiredContext: il.ContextScript,
			InputTypes:      []jstype.Type{jstype.Anything, jstype.Anything},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				b.Reassign(inputs[0], inputs[1])
			},
		},
		{
			Name:            "ReturnGenerator",
			RequiredContext: il.ContextSubroutine,
			InputTypes:      []jstype.Type{jstype.Anything},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				b.Return(inputs[0])
			},
		},
		{
			Name:            "AwaitGenerator",
			RequiredContext: il.ContextAsync,
			InputTypes:      []jstype.Type{jstype.Anything},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				b.Await(inputs[0])
			},
		},
		{
			Name:            "YieldGenerator",
			RequiredContext: il.ContextGenerator,
			InputTypes:      []jstype.Type{jstype.Anything},
			Body: func(b *builder.ProgramBuilder, inputs []il.Variable) {
				b.Yield(inputs[0])
			},
		},
	}
}

// GeneratorNames returns the names of the given generators, in order.
func GeneratorNames(gens []builder.CodeGenerator) []string {
	names := make([]string, len(gens))
	for i, g := range gens {
		names[i] = g.Name
	}
	return names
}

// NewDefaultRegistry couples the default catalog with the given policy; a nil
// policy falls back to a uniform weighted list.
func NewDefaultRegistry(policy builder.SelectionPolicy) *builder.GeneratorRegistry {
	gens := DefaultGenerators()
	if policy == nil {
		policy = NewUniformList(len(gens))
	}
	return builder.NewGeneratorRegistry(gens, policy)
}
