package document

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdflib/ir/raw"
	"pdflib/recovery"
)

// fileBuilder assembles a classic single-section file with real offsets.
type fileBuilder struct {
	buf     bytes.Buffer
	offsets map[int]int64
	maxNum  int
}

func newFileBuilder() *fileBuilder {
	b := &fileBuilder{offsets: map[int]int64{}}
	b.buf.WriteString("%PDF-1.7\n")
	return b
}

func (b *fileBuilder) add(num int, body string) {
	b.offsets[num] = int64(b.buf.Len())
	if num > b.maxNum {
		b.maxNum = num
	}
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (b *fileBuilder) addStream(num int, extra, payload string) {
	dict := fmt.Sprintf("<< %s/Length %d >>", extra, len(payload))
	b.add(num, fmt.Sprintf("%s\nstream\n%s\nendstream", dict, payload))
}

func (b *fileBuilder) finish(trailerExtra string) []byte {
	xrefOff := int64(b.buf.Len())
	fmt.Fprintf(&b.buf, "xref\n0 %d\n", b.maxNum+1)
	b.buf.WriteString("0000000000 65535 f \n")
	for n := 1; n <= b.maxNum; n++ {
		if off, ok := b.offsets[n]; ok {
			fmt.Fprintf(&b.buf, "%010d 00000 n \n", off)
		} else {
			b.buf.WriteString("0000000000 65535 f \n")
		}
	}
	fmt.Fprintf(&b.buf, "trailer\n<< /Size %d %s >>\n", b.maxNum+1, trailerExtra)
	fmt.Fprintf(&b.buf, "startxref\n%d\n%%%%EOF\n", xrefOff)
	return b.buf.Bytes()
}

func openDoc(t *testing.T, data []byte, opts *Options) *Document {
	t.Helper()
	doc, err := NewDocument(context.Background(), bytes.NewReader(data), int64(len(data)), opts)
	require.NoError(t, err)
	return doc
}

func twoPageFile() []byte {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 "+
		"/MediaBox [0 0 612 792] /Resources << /ProcSet [/PDF] >> >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R /Contents 5 0 R /Rotate 450 >>")
	b.add(4, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 100 200] >>")
	b.addStream(5, "", "BT /F1 12 Tf ET")
	return b.finish("/Root 1 0 R")
}

func TestOpenBasicDocument(t *testing.T) {
	doc := openDoc(t, twoPageFile(), nil)

	assert.Equal(t, "1.7", doc.Version())
	assert.Equal(t, 2, doc.PageCount())
	assert.NotNil(t, doc.Catalog())
	assert.False(t, doc.IsEncrypted())
	assert.True(t, doc.Permissions().Print)
	assert.Empty(t, doc.Conditions())
}

func TestPageInheritance(t *testing.T) {
	doc := openDoc(t, twoPageFile(), nil)
	ctx := context.Background()

	p, err := doc.Page(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, p.MediaBox)
	require.Equal(t, 4, p.MediaBox.Len())
	assert.InDelta(t, 612.0, p.MediaBox.Items[2].(raw.NumberObj).Float(), 0.001)
	assert.NotNil(t, p.Resources)
	assert.Equal(t, 90, p.Rotate) // 450 normalizes
	assert.Equal(t, raw.ObjectRef{Num: 3}, p.Ref)

	// the second page's own box wins over the inherited one
	p, err = doc.Page(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p.MediaBox)
	assert.InDelta(t, 100.0, p.MediaBox.Items[2].(raw.NumberObj).Float(), 0.001)
	assert.Equal(t, 0, p.Rotate)

	_, err = doc.Page(ctx, 2)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	_, err = doc.Page(ctx, -1)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
}

func TestPageDescentThroughNestedNodes(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 3 >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R /Marker /A >>")
	b.add(4, "<< /Type /Pages /Parent 2 0 R /Kids [5 0 R 6 0 R] /Count 2 >>")
	b.add(5, "<< /Type /Page /Parent 4 0 R /Marker /B >>")
	b.add(6, "<< /Type /Page /Parent 4 0 R /Marker /C >>")
	doc := openDoc(t, b.finish("/Root 1 0 R"), nil)
	ctx := context.Background()

	require.Equal(t, 3, doc.PageCount())
	for i, want := range []string{"A", "B", "C"} {
		p, err := doc.Page(ctx, i)
		require.NoError(t, err)
		v, ok := p.Dict.Lookup("Marker")
		require.True(t, ok)
		assert.Equal(t, raw.NameObj{Val: want}, v)
	}
}

func TestPageLookupMemoizesLeaves(t *testing.T) {
	doc := openDoc(t, twoPageFile(), nil)
	ctx := context.Background()

	first, err := doc.Page(ctx, 0)
	require.NoError(t, err)

	// the resolved leaf replaced its Kids slot with a marker
	kidsObj, ok := doc.pagesRoot.Lookup("Kids")
	require.True(t, ok)
	kids := kidsObj.(*raw.ArrayObj)
	slot, _ := kids.Get(0)
	m, ok := slot.(pageRefMarker)
	require.True(t, ok)
	assert.Equal(t, first.Dict, m.dict)

	// a repeat lookup reuses the marker and agrees with the first
	again, err := doc.Page(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, first.Dict, again.Dict)
	assert.Equal(t, first.Ref, again.Ref)
}

func TestWalkContentsSingleStream(t *testing.T) {
	doc := openDoc(t, twoPageFile(), nil)
	ctx := context.Background()

	p, err := doc.Page(ctx, 0)
	require.NoError(t, err)

	var got []byte
	err = doc.WalkContents(ctx, p, func(data []byte) error {
		got = append(got, data...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("BT /F1 12 Tf ET"), got)

	// a page without /Contents walks nothing
	p, err = doc.Page(ctx, 1)
	require.NoError(t, err)
	err = doc.WalkContents(ctx, p, func([]byte) error {
		t.Fatal("unexpected content stream")
		return nil
	})
	require.NoError(t, err)
}

func TestWalkContentsArray(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R /Contents [4 0 R 5 0 R] >>")
	b.addStream(4, "", "first ")
	b.addStream(5, "", "second")
	doc := openDoc(t, b.finish("/Root 1 0 R"), nil)
	ctx := context.Background()

	p, err := doc.Page(ctx, 0)
	require.NoError(t, err)

	var parts []string
	err = doc.WalkContents(ctx, p, func(data []byte) error {
		parts = append(parts, string(data))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first ", "second"}, parts)
}

func TestInfoMetadata(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	// /Author carries a UTF-16BE BOM; the rest is PDFDocEncoding
	b.add(3, "<< /Title (Report) /Author <FEFF00480069> "+
		"/Keywords (go, pdf; parsing) /Producer (pdflib) "+
		"/CreationDate (D:20240101120000) >>")
	doc := openDoc(t, b.finish("/Root 1 0 R /Info 3 0 R"), nil)

	md := doc.Info(context.Background())
	assert.Equal(t, "Report", md.Title)
	assert.Equal(t, "Hi", md.Author)
	assert.Equal(t, []string{"go", "pdf", "parsing"}, md.Keywords)
	assert.Equal(t, "pdflib", md.Producer)
	assert.Equal(t, "D:20240101120000", md.CreationDate)
	assert.Empty(t, md.Subject)
}

func TestInfoAbsent(t *testing.T) {
	doc := openDoc(t, twoPageFile(), nil)
	md := doc.Info(context.Background())
	assert.Empty(t, md.Title)
	assert.Nil(t, md.Keywords)
}

func TestDecodeTextString(t *testing.T) {
	assert.Equal(t, "Hi", DecodeTextString([]byte{0xFE, 0xFF, 0x00, 'H', 0x00, 'i'}))
	assert.Equal(t, "plain", DecodeTextString([]byte("plain")))
	assert.Equal(t, "a•b", DecodeTextString([]byte{'a', 0x80, 'b'}))
	assert.Equal(t, "", DecodeTextString(nil))
}

func TestSplitKeywords(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitKeywords("a, b; c"))
	assert.Equal(t, []string{"solo"}, splitKeywords("solo"))
	assert.Nil(t, splitKeywords(""))
	assert.Empty(t, splitKeywords(" ;, "))
}

func TestRepairFromBrokenStartxref(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n")
	// the offset points far past the end of the file
	buf.WriteString("startxref\n999999\n%%EOF\n")

	doc := openDoc(t, buf.Bytes(), nil)
	assert.True(t, doc.Flags().Has(recovery.FlagRepaired))
	assert.NotNil(t, doc.Catalog())
	assert.Equal(t, 1, doc.PageCount())
	assert.NotEmpty(t, doc.Conditions())
}

func TestStrictModeRejectsBrokenFile(t *testing.T) {
	// the same damage a lenient open repairs is fatal under strict mode
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n")
	buf.WriteString("startxref\n999999\n%%EOF\n")

	_, err := NewDocument(context.Background(), bytes.NewReader(buf.Bytes()),
		int64(buf.Len()), &Options{StrictMode: true})
	assert.Error(t, err)
}

func TestTypedAccessors(t *testing.T) {
	doc := openDoc(t, twoPageFile(), nil)
	ctx := context.Background()

	// /Root is indirect; the accessor resolves it
	root, err := doc.DictGetDict(ctx, doc.Trailer(), "Root")
	require.NoError(t, err)
	assert.Equal(t, doc.Catalog(), root)

	pages, err := doc.DictGetDict(ctx, root, "Pages")
	require.NoError(t, err)
	n, ok, err := doc.DictGetInt(ctx, pages, "Count")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 2, n)

	// wrong type surfaces ErrTypeCheck
	_, err = doc.DictGetString(ctx, root, "Pages")
	assert.ErrorIs(t, err, ErrTypeCheck)

	// absent key is not an error
	_, ok, err = doc.DictGetInt(ctx, root, "Nope")
	require.NoError(t, err)
	assert.False(t, ok)

	name, err := doc.DictGetName(ctx, root, "Type")
	require.NoError(t, err)
	assert.Equal(t, "Catalog", name)
}
