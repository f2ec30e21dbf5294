package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject_Accessors(t *testing.T) {
	obj := New(
		P("z", Float(2.5)),
		P("k_serial", Int(7)),
		P("label", String("RK45")),
		P("source", Bool(true)),
		P("whole", Float(3)),
	)

	z, ok := obj.Float("z")
	require.True(t, ok)
	assert.Equal(t, 2.5, z)

	// Ints widen to float
	k, ok := obj.Float("k_serial")
	require.True(t, ok)
	assert.Equal(t, 7.0, k)

	n, ok := obj.Int("k_serial")
	require.True(t, ok)
	assert.Equal(t, int64(7), n)

	// Whole floats narrow to int
	w, ok := obj.Int("whole")
	require.True(t, ok)
	assert.Equal(t, int64(3), w)

	_, ok = obj.Int("z")
	assert.False(t, ok, "fractional float must not narrow to int")

	s, ok := obj.String("label")
	require.True(t, ok)
	assert.Equal(t, "RK45", s)

	b, ok := obj.Bool("source")
	require.True(t, ok)
	assert.True(t, b)

	_, ok = obj.String("missing")
	assert.False(t, ok)
}

func TestObject_UnmarshalJSON_NumberKinds(t *testing.T) {
	var obj Object
	err := json.Unmarshal([]byte(`{"a":1,"b":1.5,"c":1e-6,"d":"x","e":null,"f":[1,2.0]}`), &obj)
	require.NoError(t, err)

	assert.Equal(t, Int(1), obj["a"])
	assert.Equal(t, Float(1.5), obj["b"])
	assert.Equal(t, Float(1e-6), obj["c"])
	assert.Equal(t, String("x"), obj["d"])
	assert.Equal(t, Null{}, obj["e"])
	assert.Equal(t, Array{Int(1), Float(2)}, obj["f"])
}

func TestObject_MarshalJSON_SortedAndFloatsStayFloats(t *testing.T) {
	obj := New(P("b", Float(1)), P("a", Int(1)))

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":1.0}`, string(data))

	var back Object
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Float(1), back["b"])
	assert.Equal(t, Int(1), back["a"])
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"z":    0.5,
		"n":    3,
		"tags": []any{"x", true},
	})
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, Float(0.5), obj["z"])
	assert.Equal(t, Int(3), obj["n"])
	assert.Equal(t, Array{String("x"), Bool(true)}, obj["tags"])

	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+FF61 sorts before U+10000 in UTF-8 but after it in UTF-16
	obj := Object{"\uff61": Int(1), "\U00010000": Int(2), "a": Int(3)}
	assert.Equal(t, []string{"a", "\U00010000", "\uff61"}, obj.SortedKeys())
}

func TestClone_IsIndependent(t *testing.T) {
	orig := New(P("z", Float(1)))
	cp := orig.Clone()
	cp["z"] = Float(2)
	assert.Equal(t, Float(1), orig["z"])
}
