// Package jstype models abstract JavaScript types as bitmask pairs.
//
// A type is the pair (definite, possible) of bitmasks over disjoint base
// kinds. The definite mask holds what a value certainly is, the possible mask
// what it might be; definite is always contained in possible. Subtyping is
// bit containment, so union, intersection, and subsumption are cheap mask
// arithmetic. Object-like types may carry an extension recording known
// properties, methods, a group tag, and a call signature.
package jstype

import "math/rand"

// kind is the bitmask over base type kinds.
type kind uint32

const (
	kindUndefined kind = 1 << iota
	kindNull
	kindBoolean
	kindInteger
	kindBigInt
	kindFloat
	kindString
	kindRegExp
	kindObject
	kindFunction
	kindConstructor
	kindIterable

	kindAll = kind(1)<<12 - 1
)

// Type is an abstract JavaScript type. The zero value is Nothing, the type
// with no inhabitants.
type Type struct {
	definite kind
	possible kind
	ext      *Extension
}

// Extension refines an object-like type with structural knowledge.
type Extension struct {
	// Group tags types belonging to a named family of objects, such as the
	// instances of one builtin.
	Group string

	// Properties lists property names known to exist on the value.
	Properties []string

	// Methods lists method names known to exist on the value.
	Methods []string

	// Signature describes how a function or constructor can be invoked.
	Signature *Signature
}

// Signature describes the invocation shape of a callable value.
type Signature struct {
	// InputTypes are the expected argument types.
	InputTypes []Type

	// OutputType is the type of the call's result.
	OutputType Type
}

// The base types.
var (
	// Nothing has no inhabitants.
	Nothing = Type{}

	// Anything is the top type: nothing definite, everything possible.
	Anything = Type{possible: kindAll}

	Undefined   = base(kindUndefined)
	Null        = base(kindNull)
	Boolean     = base(kindBoolean)
	Integer     = base(kindInteger)
	BigInt      = base(kindBigInt)
	Float       = base(kindFloat)
	String      = base(kindString)
	RegExp      = base(kindRegExp | kindObject)
	Iterable    = base(kindIterable)
	PlainObject = base(kindObject)

	// Number is anything usable in arithmetic without coercion surprises.
	Number = Integer.Union(Float)

	// Primitive covers all non-object base kinds.
	Primitive = Undefined.Union(Null).Union(Boolean).Union(Integer).
			Union(BigInt).Union(Float).Union(String)
)

func base(k kind) Type {
	return Type{definite: k, possible: k}
}

// Object creates an object type tagged with a group and known properties and
// methods. Empty arguments are allowed.
func Object(group string, properties, methods []string) Type {
	t := base(kindObject)
	if group != "" || len(properties) > 0 || len(methods) > 0 {
		t.ext = &Extension{Group: group, Properties: properties, Methods: methods}
	}
	return t
}

// Function creates a callable function type with an optional signature.
func Function(sig *Signature) Type {
	t := base(kindFunction | kindObject)
	if sig != nil {
		t.ext = &Extension{Signature: sig}
	}
	return t
}

// Constructor creates a constructible type with an optional signature.
func Constructor(sig *Signature) Type {
	t := base(kindConstructor | kindFunction | kindObject)
	if sig != nil {
		t.ext = &Extension{Signature: sig}
	}
	return t
}

// FunctionAndConstructor creates the type of plain function definitions,
// which are both callable and constructible.
func FunctionAndConstructor(sig *Signature) Type {
	t := base(kindFunction | kindConstructor | kindObject)
	if sig != nil {
		t.ext = &Extension{Signature: sig}
	}
	return t
}

// Union returns the type of values that are t or u. Definite knowledge is
// intersected, possible knowledge combined, and extensions merged where they
// agree.
func (t Type) Union(u Type) Type {
	r := Type{definite: t.definite & u.definite, possible: t.possible | u.possible}
	r.ext = mergeExtensions(t.ext, u.ext)
	return r
}

// Intersection returns the type of values that are both t and u, or Nothing
// if the masks are contradictory.
func (t Type) Intersection(u Type) Type {
	r := Type{definite: t.definite | u.definite, possible: t.possible & u.possible}
	if r.definite&^r.possible != 0 {
		return Nothing
	}
	if t.ext != nil {
		r.ext = t.ext
	} else {
		r.ext = u.ext
	}
	return r
}

// Is reports whether t is a subtype of u: every value of t is a value of u.
// This is the "usable as" relation.
func (t Type) Is(u Type) bool {
	return t.definite&u.definite == u.definite && t.possible&^u.possible == 0
}

// MayBe reports whether some value of t could be a value of u.
func (t Type) MayBe(u Type) bool {
	return t.possible&u.possible != 0
}

// IsNothing reports whether the type has no inhabitants.
func (t Type) IsNothing() bool { return t.possible == 0 }

// IsCallable reports whether values of the type can definitely be called.
func (t Type) IsCallable() bool { return t.definite&kindFunction != 0 }

// IsConstructible reports whether values can definitely be used with new.
func (t Type) IsConstructible() bool { return t.definite&kindConstructor != 0 }

// Generalized widens the type by dropping its extension, keeping only the
// base kind masks.
func (t Type) Generalized() Type {
	t.ext = nil
	return t
}

// Group returns the group tag, or the empty string.
func (t Type) Group() string {
	if t.ext == nil {
		return ""
	}
	return t.ext.Group
}

// Properties returns the known property names. The returned slice must not be
// modified.
func (t Type) Properties() []string {
	if t.ext == nil {
		return nil
	}
	return t.ext.Properties
}

// Methods returns the known method names. The returned slice must not be
// modified.
func (t Type) Methods() []string {
	if t.ext == nil {
		return nil
	}
	return t.ext.Methods
}

// Signature returns the call signature, or nil.
func (t Type) Signature() *Signature {
	if t.ext == nil {
		return nil
	}
	return t.ext.Signature
}

// RandomProperty samples one known property name.
func (t Type) RandomProperty(rng *rand.Rand) (string, bool) {
	props := t.Properties()
	if len(props) == 0 {
		return "", false
	}
	return props[rng.Intn(len(props))], true
}

// RandomMethod samples one known method name.
func (t Type) RandomMethod(rng *rand.Rand) (string, bool) {
	methods := t.Methods()
	if len(methods) == 0 {
		return "", false
	}
	return methods[rng.Intn(len(methods))], true
}

// Equal reports whether two types carry identical masks and structurally
// equal extensions.
func (t Type) Equal(u Type) bool {
	if t.definite != u.definite || t.possible != u.possible {
		return false
	}
	return extensionsEqual(t.ext, u.ext)
}

// mergeExtensions keeps only the structural knowledge shared by both sides.
func mergeExtensions(a, b *Extension) *Extension {
	if a == nil || b == nil {
		return nil
	}
	merged := &Extension{}
	if a.Group == b.Group {
		merged.Group = a.Group
	}
	merged.Properties = intersectNames(a.Properties, b.Properties)
	merged.Methods = intersectNames(a.Methods, b.Methods)
	if signaturesEqual(a.Signature, b.Signature) {
		merged.Signature = a.Signature
	}
	if merged.Group == "" && len(merged.Properties) == 0 && len(merged.Methods) == 0 && merged.Signature == nil {
		return nil
	}
	return merged
}

func intersectNames(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	inB := make(map[string]bool, len(b))
	for _, name := range b {
		inB[name] = true
	}
	var out []string
	for _, name := range a {
		if inB[name] {
			out = append(out, name)
		}
	}
	return out
}

func extensionsEqual(a, b *Extension) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Group != b.Group || len(a.Properties) != len(b.Properties) || len(a.Methods) != len(b.Methods) {
		return false
	}
	for i := range a.Properties {
		if a.Properties[i] != b.Properties[i] {
			return false
		}
	}
	for i := range a.Methods {
		if a.Methods[i] != b.Methods[i] {
			return false
		}
	}
	return signaturesEqual(a.Signature, b.Signature)
}

func signaturesEqual(a, b *Signature) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.InputTypes) != len(b.InputTypes) || !a.OutputType.Equal(b.OutputType) {
		return false
	}
	for i := range a.InputTypes {
		if !a.InputTypes[i].Equal(b.InputTypes[i]) {
			return false
		}
	}
	return true
}

// String renders the type compactly for listings and logs.
func (t Type) String() string {
	if t.IsNothing() {
		return "nothing"
	}
	if t.possible == kindAll && t.definite == 0 {
		return "anything"
	}
	names := []struct {
		k kind
		n string
	}{
		{kindUndefined, "undefined"}, {kindNull, "null"}, {kindBoolean, "boolean"},
		{kindInteger, "integer"}, {kindBigInt, "bigint"}, {kindFloat, "float"},
		{kindString, "string"}, {kindRegExp, "regexp"}, {kindObject, "object"},
		{kindFunction, "function"}, {kindConstructor, "constructor"}, {kindIterable, "iterable"},
	}
	out := ""
	for _, kn := range names {
		if t.definite&kn.k != 0 {
			if out != "" {
				out += "+"
			}
			out += "." + kn.n
		}
	}
	if out == "" {
		out = "?"
		for _, kn := range names {
			if t.possible&kn.k != 0 {
				out += "." + kn.n
			}
		}
	}
	if t.ext != nil && t.ext.Group != "" {
		out += "(" + t.ext.Group + ")"
	}
	return out
}
