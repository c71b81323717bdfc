package engine

import "github.com/googleprojectzero/fuzzilli-sub008/il"

// Lifter converts programs to target-language source text. The real lifter
// for a JavaScript engine, including the runtime support for instrumentation
// opcodes, is an external collaborator; the engine only depends on this
// interface.
type Lifter interface {
	// Lift renders the program as executable source.
	Lift(p *il.Program) string
}

// DisassemblyLifter renders programs as their textual listing. It exists for
// debugging and for wiring up the engine before a real lifter is attached;
// the listing is not executable JavaScript.
type DisassemblyLifter struct{}

// Lift implements the Lifter contract.
func (DisassemblyLifter) Lift(p *il.Program) string { return p.String() }
