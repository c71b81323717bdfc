// Package builder provides the ProgramBuilder, the stateful construction
// context through which all program creation and mutation happens.
//
// A builder owns a draft instruction buffer and one instance of each
// analyzer, kept synchronized with the buffer. Instructions enter the buffer
// through Append (locally built code), Adopt (renumbered foreign code),
// Splice (a closed dataflow slice of a foreign program), or Build (recursive
// code generation). Every entry path validates the program model invariants;
// a violation aborts the current mutation and no partial program is ever
// exposed. Finalize atomically produces an immutable Program and resets the
// builder.
package builder

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/googleprojectzero/fuzzilli-sub008/analyzer"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
	"github.com/googleprojectzero/fuzzilli-sub008/jstype"
)

// ErrInvariantViolation reports that an operation would have broken a program
// model invariant. Mutators treat it as mutation failure.
var ErrInvariantViolation = errors.New("program invariant violation")

// ErrNoCodeGenerated reports that Build could not produce any code at all.
var ErrNoCodeGenerated = errors.New("no applicable generator produced code")

// invariantPanic carries an invariant violation out of emit helpers that have
// no error return. CatchInvariantViolations converts it back into an error at
// the mutator boundary.
type invariantPanic struct{ err error }

// CatchInvariantViolations runs f and converts an invariant-violation panic
// raised inside it into an error. Other panics propagate.
func CatchInvariantViolations(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ip, ok := r.(invariantPanic)
			if !ok {
				panic(r)
			}
			err = ip.err
		}
	}()
	return f()
}

// adoptionScope is one variable-renumbering session for code adopted from a
// foreign program.
type adoptionScope struct {
	from    *il.Program
	mapping map[il.Variable]il.Variable
}

// ProgramBuilder incrementally constructs one program while enforcing the
// scope, context, and variable-numbering invariants. Builders are not safe
// for concurrent use and must not be shared across mutations.
type ProgramBuilder struct {
	rng *rand.Rand

	code         []il.Instruction
	numVariables int
	comments     map[int]string
	parent       *il.Program

	deadCode *analyzer.DeadCodeAnalyzer
	contexts *analyzer.ContextAnalyzer
	scopes   *analyzer.ScopeAnalyzer
	typer    *analyzer.Typer

	adoptions []adoptionScope

	// registry supplies code generators for Build; nil disables generation.
	registry *GeneratorRegistry

	// splicePool supplies foreign programs for the splicing build strategy.
	splicePool SplicePool

	// usedGenerators records the generators invoked since the last Finalize,
	// so their selection policy can be credited with the outcome.
	usedGenerators []string
}

// SplicePool supplies programs to splice from during Build.
type SplicePool interface {
	RandomElementForSplicing() *il.Program
}

// New creates a builder drawing randomness from rng and generators from
// registry. Both the registry and the splice pool may be nil, disabling the
// corresponding build strategies.
func New(rng *rand.Rand, registry *GeneratorRegistry, pool SplicePool) *ProgramBuilder {
	b := &ProgramBuilder{
		rng:        rng,
		registry:   registry,
		splicePool: pool,
	}
	b.reset()
	return b
}

func (b *ProgramBuilder) reset() {
	b.code = nil
	b.numVariables = 0
	b.comments = nil
	b.parent = nil
	b.adoptions = b.adoptions[:0]
	b.usedGenerators = nil
	b.deadCode = analyzer.NewDeadCodeAnalyzer()
	b.contexts = analyzer.NewContextAnalyzer()
	b.scopes = analyzer.NewScopeAnalyzer()
	b.typer = analyzer.NewTyper()
}

// SetParent records the program this builder's product is derived from.
func (b *ProgramBuilder) SetParent(p *il.Program) { b.parent = p }

// AddComment annotates the next emitted instruction.
func (b *ProgramBuilder) AddComment(text string) {
	if b.comments == nil {
		b.comments = make(map[int]string)
	}
	b.comments[len(b.code)] = text
}

// Size returns the number of instructions in the draft buffer.
func (b *ProgramBuilder) Size() int { return len(b.code) }

// Context returns the set of contexts active at the cursor.
func (b *ProgramBuilder) Context() il.Context { return b.contexts.Context() }

// CurrentlyInDeadCode reports whether the cursor follows an unconditional
// terminator in the innermost block.
func (b *ProgramBuilder) CurrentlyInDeadCode() bool { return b.deadCode.CurrentlyInDeadCode() }

// Rand returns the builder's random source.
func (b *ProgramBuilder) Rand() *rand.Rand { return b.rng }

// Type returns the inferred type of a variable in the draft buffer.
func (b *ProgramBuilder) Type(v il.Variable) jstype.Type { return b.typer.Type(v) }

// UsedGenerators returns the names of generators run since the last reset.
func (b *ProgramBuilder) UsedGenerators() []string { return b.usedGenerators }

// nextVariable allocates the next variable number.
func (b *ProgramBuilder) nextVariable() il.Variable {
	v := il.Variable(b.numVariables)
	b.numVariables++
	return v
}

// fail aborts the current builder operation with an invariant violation.
func (b *ProgramBuilder) fail(format string, args ...any) {
	err := fmt.Errorf(format+": %w", append(args, ErrInvariantViolation)...)
	panic(invariantPanic{err})
}

// visibleSet returns the set of currently visible variables.
func (b *ProgramBuilder) visibleSet() map[il.Variable]bool {
	vars := b.scopes.VisibleVariables()
	set := make(map[il.Variable]bool, len(vars))
	for _, v := range vars {
		set[v] = true
	}
	return set
}

// validate checks an instruction against the current builder state.
func (b *ProgramBuilder) validate(instr il.Instruction) error {
	def := instr.Op.Definition()
	if !b.Context().Contains(def.RequiredContext) {
		return fmt.Errorf("%s requires context %s but %s is active: %w",
			instr.Op.Opcode, def.RequiredContext, b.Context(), ErrInvariantViolation)
	}
	visible := b.visibleSet()
	for _, v := range instr.Inputs() {
		if !visible[v] {
			return fmt.Errorf("%s input %s is not visible: %w", instr.Op.Opcode, v, ErrInvariantViolation)
		}
	}
	next := il.Variable(b.numVariables)
	for _, v := range instr.AllOutputs() {
		if v != next {
			return fmt.Errorf("%s output %s breaks dense numbering, expected %s: %w",
				instr.Op.Opcode, v, next, ErrInvariantViolation)
		}
		next++
	}
	return nil
}

// appendUnchecked pushes an already validated instruction and advances the
// analyzers.
func (b *ProgramBuilder) appendUnchecked(instr il.Instruction) {
	b.code = append(b.code, instr)
	b.numVariables += instr.NumOutputs() + instr.NumInnerOutputs()
	b.deadCode.Analyze(instr)
	b.contexts.Analyze(instr)
	b.scopes.Analyze(instr)
	b.typer.Analyze(instr)
}

// Append adds a locally built instruction to the draft buffer. The
// instruction's outputs must continue the builder's dense variable numbering.
func (b *ProgramBuilder) Append(instr il.Instruction) error {
	if err := b.validate(instr); err != nil {
		return err
	}
	b.appendUnchecked(instr)
	return nil
}

// Emit creates an instruction from an operation and input variables,
// allocating fresh output variables, and appends it. It panics with an
// invariant violation on misuse; use CatchInvariantViolations at the mutation
// boundary.
func (b *ProgramBuilder) Emit(op *il.Operation, inputs ...il.Variable) il.Instruction {
	if len(inputs) != op.NumInputs() {
		b.fail("%s requires %d inputs, got %d", op.Opcode, op.NumInputs(), len(inputs))
	}
	inouts := make([]il.Variable, 0, op.NumInouts())
	inouts = append(inouts, inputs...)
	for i := 0; i < op.NumOutputs()+op.NumInnerOutputs(); i++ {
		inouts = append(inouts, il.Variable(b.numVariables)+il.Variable(i))
	}
	instr := il.NewInstruction(op, inouts...)
	if err := b.validate(instr); err != nil {
		panic(invariantPanic{err})
	}
	b.appendUnchecked(instr)
	return instr
}

// Adopting opens a renumbering session for code from a foreign program and
// runs body inside it. All Adopt calls within one session share a single
// renumbering table, so dataflow between adopted instructions is preserved.
func (b *ProgramBuilder) Adopting(from *il.Program, body func() error) error {
	b.adoptions = append(b.adoptions, adoptionScope{
		from:    from,
		mapping: make(map[il.Variable]il.Variable),
	})
	defer func() {
		b.adoptions = b.adoptions[:len(b.adoptions)-1]
	}()
	return body()
}

// currentAdoption returns the active renumbering session.
func (b *ProgramBuilder) currentAdoption() *adoptionScope {
	if len(b.adoptions) == 0 {
		return nil
	}
	return &b.adoptions[len(b.adoptions)-1]
}

// MapVariable pre-seeds the active renumbering session, rewiring the foreign
// variable to an existing local one. Used to connect free inputs of a splice
// to host dataflow.
func (b *ProgramBuilder) MapVariable(foreign, local il.Variable) error {
	scope := b.currentAdoption()
	if scope == nil {
		return fmt.Errorf("no adopting session active: %w", ErrInvariantViolation)
	}
	scope.mapping[foreign] = local
	return nil
}

// AdoptVariable translates a foreign variable through the active renumbering
// session. Unmapped variables are free; translating one is an error.
func (b *ProgramBuilder) AdoptVariable(foreign il.Variable) (il.Variable, error) {
	scope := b.currentAdoption()
	if scope == nil {
		return 0, fmt.Errorf("no adopting session active: %w", ErrInvariantViolation)
	}
	local, ok := scope.mapping[foreign]
	if !ok {
		return 0, fmt.Errorf("foreign variable %s is free and unmapped: %w", foreign, ErrInvariantViolation)
	}
	return local, nil
}

// Adopt renumbers a foreign instruction into the builder's variable space and
// appends it. Inputs must be defined by previously adopted instructions or
// pre-mapped via MapVariable; outputs always receive fresh local numbers.
// Adoption fails if the instruction's required context is not active or an
// input is not visible.
func (b *ProgramBuilder) Adopt(instr il.Instruction) error {
	scope := b.currentAdoption()
	if scope == nil {
		return fmt.Errorf("no adopting session active: %w", ErrInvariantViolation)
	}
	inouts := make([]il.Variable, 0, len(instr.Inouts()))
	for _, v := range instr.Inputs() {
		local, ok := scope.mapping[v]
		if !ok {
			return fmt.Errorf("adopted %s input %s is free and unmapped: %w", instr.Op.Opcode, v, ErrInvariantViolation)
		}
		inouts = append(inouts, local)
	}
	for _, v := range instr.AllOutputs() {
		local := il.Variable(b.numVariables + len(inouts) - instr.NumInputs())
		scope.mapping[v] = local
		inouts = append(inouts, local)
	}
	return b.Append(il.NewInstruction(instr.Op, inouts...))
}

// AdoptTransformed appends a changed version of a foreign instruction:
// op replaces the original operation and localInputs, already in the
// builder's variable space, replace the inputs. The foreign instruction's
// outputs are renumbered and recorded in the active session exactly as Adopt
// would, so later foreign instructions keep resolving them.
func (b *ProgramBuilder) AdoptTransformed(instr il.Instruction, op *il.Operation, localInputs []il.Variable) error {
	scope := b.currentAdoption()
	if scope == nil {
		return fmt.Errorf("no adopting session active: %w", ErrInvariantViolation)
	}
	if len(localInputs) != op.NumInputs() {
		return fmt.Errorf("%s requires %d inputs, got %d: %w", op.Opcode, op.NumInputs(), len(localInputs), ErrInvariantViolation)
	}
	if op.NumOutputs() != instr.NumOutputs() || op.NumInnerOutputs() != instr.NumInnerOutputs() {
		return fmt.Errorf("%s changes the output shape of %s: %w", op.Opcode, instr.Op.Opcode, ErrInvariantViolation)
	}
	inouts := make([]il.Variable, 0, op.NumInouts())
	inouts = append(inouts, localInputs...)
	for _, v := range instr.AllOutputs() {
		local := il.Variable(b.numVariables + len(inouts) - op.NumInputs())
		scope.mapping[v] = local
		inouts = append(inouts, local)
	}
	return b.Append(il.NewInstruction(op, inouts...))
}

// AdoptProgram adopts every instruction of a program in order, inside one
// renumbering session.
func (b *ProgramBuilder) AdoptProgram(p *il.Program) error {
	return b.Adopting(p, func() error {
		for _, instr := range p.Code {
			if err := b.Adopt(instr); err != nil {
				return err
			}
		}
		return nil
	})
}

// Discard abandons the draft buffer and resets the builder without producing
// a program.
func (b *ProgramBuilder) Discard() { b.reset() }

// Finalize atomically produces the constructed program and resets the builder
// for the next construction. It fails if blocks are left open.
func (b *ProgramBuilder) Finalize() (*il.Program, error) {
	if b.scopes.Depth() != 0 {
		depth := b.scopes.Depth()
		b.reset()
		return nil, fmt.Errorf("%d block(s) left open: %w", depth, ErrInvariantViolation)
	}
	p := il.NewProgram(b.code)
	if len(b.comments) > 0 {
		p.Comments = b.comments
	}
	p.Parent = b.parent
	b.reset()
	return p, nil
}
