package raw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictSetGet(t *testing.T) {
	d := Dict()
	d.Set(NameLiteral("Type"), NameLiteral("Catalog"))
	d.Set(NameLiteral("Count"), NumberInt(3))

	v, ok := d.Lookup("Type")
	require.True(t, ok)
	assert.Equal(t, NameObj{Val: "Catalog"}, v)

	_, ok = d.Lookup("Missing")
	assert.False(t, ok)
	assert.Equal(t, 2, d.Len())
}

func TestDictNilValueStoresNull(t *testing.T) {
	d := Dict()
	d.Set(NameLiteral("K"), nil)
	v, ok := d.Lookup("K")
	require.True(t, ok)
	assert.Equal(t, Null, v)
}

func TestArrayGuards(t *testing.T) {
	a := NewArray()
	a.Append(NumberInt(1))
	a.Append(nil)

	v, ok := a.Get(1)
	require.True(t, ok)
	assert.Equal(t, Object(Null), v)

	_, ok = a.Get(5)
	assert.False(t, ok)
	_, ok = a.Get(-1)
	assert.False(t, ok)
}

func TestNumberAccessors(t *testing.T) {
	i := NumberInt(42)
	assert.True(t, i.IsInteger())
	assert.EqualValues(t, 42, i.Int())
	assert.EqualValues(t, 42.0, i.Float())

	f := NumberFloat(2.5)
	assert.False(t, f.IsInteger())
	assert.EqualValues(t, 2, f.Int())
	assert.EqualValues(t, 2.5, f.Float())
}

func TestClassifyKeyword(t *testing.T) {
	assert.Equal(t, KwObj, ClassifyKeyword("obj"))
	assert.Equal(t, KwEndObj, ClassifyKeyword("endobj"))
	assert.Equal(t, KwStream, ClassifyKeyword("stream"))
	assert.Equal(t, KwEndStream, ClassifyKeyword("endstream"))
	assert.Equal(t, KwXref, ClassifyKeyword("xref"))
	assert.Equal(t, KwTrailer, ClassifyKeyword("trailer"))
	assert.Equal(t, KwStartXref, ClassifyKeyword("startxref"))
	assert.Equal(t, KwOther, ClassifyKeyword("BT"))
}

func TestFormatComposite(t *testing.T) {
	d := Dict()
	d.Set(NameLiteral("A"), NumberInt(1))
	d.Set(NameLiteral("B"), Bool(true))
	arr := NewArray()
	arr.Append(NameLiteral("X"))
	arr.Append(Ref(5, 0))
	d.Set(NameLiteral("C"), arr)

	// keys are emitted sorted, so the output is stable
	assert.Equal(t, "<< /A 1 /B true /C [/X 5 0 R] >>", string(Format(d)))
}

func TestFormatNameEscaping(t *testing.T) {
	assert.Equal(t, "/A#20B#23C", string(Format(NameLiteral("A B#C"))))
}

func TestFormatStrings(t *testing.T) {
	assert.Equal(t, `(a\(b\)\n)`, string(Format(StringObj{Bytes: []byte("a(b)\n")})))
	assert.Equal(t, "<48690A>", string(Format(StringObj{Bytes: []byte("Hi\n"), Hex: true})))
}

func TestEqualSemantics(t *testing.T) {
	// numbers compare numerically across the int/float divide
	assert.True(t, Equal(NumberInt(2), NumberFloat(2.0)))
	assert.False(t, Equal(NumberInt(2), NumberInt(3)))

	// the written form of a string is not significant
	assert.True(t, Equal(
		StringObj{Bytes: []byte("hi")},
		StringObj{Bytes: []byte("hi"), Hex: true},
	))

	a := Dict()
	a.Set(NameLiteral("K"), NumberInt(1))
	b := Dict()
	b.Set(NameLiteral("K"), NumberFloat(1))
	assert.True(t, Equal(a, b))

	b.Set(NameLiteral("Extra"), Null)
	assert.False(t, Equal(a, b))
}

func TestEqualRefs(t *testing.T) {
	assert.True(t, Equal(Ref(1, 0), Ref(1, 0)))
	assert.False(t, Equal(Ref(1, 0), Ref(1, 1)))
	assert.False(t, Equal(Ref(1, 0), Null))
}
