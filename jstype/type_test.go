package jstype

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubtyping(t *testing.T) {
	tests := []struct {
		name string
		sub  Type
		sup  Type
		is   bool
	}{
		{"integer is number", Integer, Number, true},
		{"float is number", Float, Number, true},
		{"string is not number", String, Number, false},
		{"integer is anything", Integer, Anything, true},
		{"anything is not integer", Anything, Integer, false},
		{"integer is integer", Integer, Integer, true},
		{"number is not integer", Number, Integer, false},
		{"object with group is object", Object("Array", nil, nil), PlainObject, true},
		{"undefined is primitive", Undefined, Primitive, true},
		{"object is not primitive", PlainObject, Primitive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.is, tt.sub.Is(tt.sup))
		})
	}
}

func TestMayBe(t *testing.T) {
	assert.True(t, Anything.MayBe(Integer))
	assert.True(t, Number.MayBe(Float))
	assert.False(t, String.MayBe(Integer))
	assert.True(t, Integer.Union(String).MayBe(String))
	assert.False(t, Nothing.MayBe(Anything))
}

func TestUnionIntersection(t *testing.T) {
	num := Integer.Union(Float)
	assert.True(t, num.Equal(Number))

	// Union forgets what only one side knows for certain.
	iOrS := Integer.Union(String)
	assert.False(t, iOrS.Is(Integer))
	assert.False(t, iOrS.Is(String))
	assert.True(t, iOrS.MayBe(Integer))

	// Intersection recovers it.
	assert.True(t, iOrS.Intersection(Integer).Is(Integer))

	// Contradictory intersections are empty.
	assert.True(t, Integer.Intersection(String).IsNothing())
}

func TestExtensions(t *testing.T) {
	arr := Object("Array", []string{"length"}, []string{"push", "pop", "slice"})
	assert.Equal(t, "Array", arr.Group())
	assert.Equal(t, []string{"length"}, arr.Properties())

	rng := rand.New(rand.NewSource(42))
	m, ok := arr.RandomMethod(rng)
	assert.True(t, ok)
	assert.Contains(t, []string{"push", "pop", "slice"}, m)

	_, ok = PlainObject.RandomMethod(rng)
	assert.False(t, ok)

	gen := arr.Generalized()
	assert.Empty(t, gen.Group())
	assert.True(t, gen.Is(PlainObject))
	assert.True(t, arr.Is(gen))
}

func TestExtensionMerge(t *testing.T) {
	a := Object("Array", []string{"length", "name"}, []string{"push"})
	b := Object("Array", []string{"length"}, []string{"pop"})
	u := a.Union(b)
	assert.Equal(t, "Array", u.Group())
	assert.Equal(t, []string{"length"}, u.Properties())
	assert.Empty(t, u.Methods())

	c := Object("Map", []string{"size"}, nil)
	assert.Empty(t, a.Union(c).Group())
}

func TestCallable(t *testing.T) {
	sig := &Signature{InputTypes: []Type{Integer}, OutputType: Anything}
	fn := Function(sig)
	assert.True(t, fn.IsCallable())
	assert.False(t, fn.IsConstructible())
	assert.Equal(t, sig, fn.Signature())

	both := FunctionAndConstructor(nil)
	assert.True(t, both.IsCallable())
	assert.True(t, both.IsConstructible())

	assert.False(t, Anything.IsCallable())
	assert.True(t, Anything.MayBe(Function(nil)))
}

func TestString(t *testing.T) {
	assert.Equal(t, "anything", Anything.String())
	assert.Equal(t, "nothing", Nothing.String())
	assert.Equal(t, ".integer", Integer.String())
	assert.Contains(t, Object("Array", nil, nil).String(), "Array")
}
