package il

import "strings"

// Context is a bitset of the syntactic regions open at a program position.
//
// Every position has at least ContextScript. Block-opening operations add the
// contexts they provide to all positions inside their block; operations whose
// definition carries AttrIsolating replace the surrounding context instead of
// extending it (a function body does not inherit an enclosing loop, so a break
// inside it would be invalid).
type Context uint32

const (
	// ContextScript is the base context, active at every program position.
	ContextScript Context = 1 << iota

	// ContextSubroutine is active inside any function, method, or constructor body.
	ContextSubroutine

	// ContextGenerator is active inside generator function bodies, where yield is valid.
	ContextGenerator

	// ContextAsync is active inside async function bodies, where await is valid.
	ContextAsync

	// ContextLoop is active inside loop bodies, where break and continue are valid.
	ContextLoop

	// ContextSwitch is active directly inside a switch construct, between its cases.
	ContextSwitch

	// ContextSwitchCase is active inside the body of a switch case.
	ContextSwitchCase

	// ContextClassBody is active directly inside a class definition, between its members.
	ContextClassBody

	// ContextWith is active inside the body of a with statement.
	ContextWith

	// ContextCodeString is active inside a code string, whose body is later
	// materialized as source text.
	ContextCodeString

	// ContextWasmModule is active inside a WebAssembly module definition.
	ContextWasmModule

	// ContextWasmFunction is active inside a WebAssembly function body.
	ContextWasmFunction

	// ContextWasmTypeGroup is active inside a WebAssembly recursive type group.
	ContextWasmTypeGroup
)

// ContextNone is the empty context.
const ContextNone Context = 0

var contextNames = map[Context]string{
	ContextScript:        "script",
	ContextSubroutine:    "subroutine",
	ContextGenerator:     "generator",
	ContextAsync:         "async",
	ContextLoop:          "loop",
	ContextSwitch:        "switch",
	ContextSwitchCase:    "switchCase",
	ContextClassBody:     "classBody",
	ContextWith:          "with",
	ContextCodeString:    "codeString",
	ContextWasmModule:    "wasmModule",
	ContextWasmFunction:  "wasmFunction",
	ContextWasmTypeGroup: "wasmTypeGroup",
}

// Contains reports whether every context bit in other is also set in c.
func (c Context) Contains(other Context) bool {
	return c&other == other
}

// Union returns the combination of both contexts.
func (c Context) Union(other Context) Context {
	return c | other
}

// String provides a human-readable representation of the context bits, such as "[script, loop]".
func (c Context) String() string {
	var parts []string
	for bit := Context(1); bit != 0 && bit <= ContextWasmTypeGroup; bit <<= 1 {
		if c&bit != 0 {
			parts = append(parts, contextNames[bit])
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
