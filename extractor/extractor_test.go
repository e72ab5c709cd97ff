package extractor

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdflib/document"
)

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

func (b *fileBuilder) addStream(num int, payload string) {
	b.add(num, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(payload), payload))
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

func newExtractor(t *testing.T, data []byte) *Extractor {
	t.Helper()
	doc, err := document.NewDocument(context.Background(), bytes.NewReader(data),
		int64(len(data)), nil)
	require.NoError(t, err)
	e, err := New(context.Background(), doc)
	require.NoError(t, err)
	return e
}

func TestAnnotations(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R /Annots [4 0 R 5 0 R] >>")
	b.add(4, "<< /Subtype /Link /Rect [10 20 30 40] /F 4 /C [1 0 0] "+
		"/A << /S /URI /URI (https://example.com) >> >>")
	b.add(5, "<< /Subtype /Text /Contents (Note here) >>")
	e := newExtractor(t, b.finish("/Root 1 0 R"))

	annots, err := e.Annotations(context.Background())
	require.NoError(t, err)
	require.Len(t, annots, 2)

	link := annots[0]
	assert.Equal(t, 0, link.Page)
	assert.Equal(t, "Link", link.Subtype)
	assert.Equal(t, [4]float64{10, 20, 30, 40}, link.Rect)
	assert.Equal(t, "https://example.com", link.URI)
	assert.Equal(t, 4, link.Flags)
	assert.Equal(t, []float64{1, 0, 0}, link.Color)

	note := annots[1]
	assert.Equal(t, "Text", note.Subtype)
	assert.Equal(t, "Note here", note.Contents)
	assert.Empty(t, note.URI)
}

func TestBookmarks(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R /Outlines 6 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R >>")
	b.add(4, "<< /Type /Page /Parent 2 0 R >>")
	b.add(6, "<< /Type /Outlines /First 7 0 R >>")
	b.add(7, "<< /Title (One) /Dest [3 0 R /Fit] /Next 8 0 R /First 9 0 R >>")
	b.add(8, "<< /Title (Two) /A << /S /GoTo /D [4 0 R /Fit] >> >>")
	b.add(9, "<< /Title (Child) >>")
	e := newExtractor(t, b.finish("/Root 1 0 R"))

	marks := e.Bookmarks(context.Background())
	require.Len(t, marks, 2)
	assert.Equal(t, "One", marks[0].Title)
	assert.Equal(t, 0, marks[0].Page)
	require.Len(t, marks[0].Children, 1)
	assert.Equal(t, "Child", marks[0].Children[0].Title)
	assert.Equal(t, -1, marks[0].Children[0].Page)
	assert.Equal(t, "Two", marks[1].Title)
	assert.Equal(t, 1, marks[1].Page)

	toc := e.TableOfContents(context.Background())
	require.Len(t, toc, 3)
	assert.Equal(t, []int{0, 1, 0}, []int{toc[0].Depth, toc[1].Depth, toc[2].Depth})
	assert.Equal(t, "1", toc[0].Label)
	assert.Equal(t, "2", toc[2].Label)
}

func TestPageLabels(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R /PageLabels << /Nums "+
		"[0 << /S /r >> 2 << /S /D /P (A-) /St 5 >>] >> >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R 4 0 R 5 0 R 6 0 R] /Count 4 >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R >>")
	b.add(4, "<< /Type /Page /Parent 2 0 R >>")
	b.add(5, "<< /Type /Page /Parent 2 0 R >>")
	b.add(6, "<< /Type /Page /Parent 2 0 R >>")
	e := newExtractor(t, b.finish("/Root 1 0 R"))

	labels := e.PageLabels()
	assert.Equal(t, map[int]string{0: "i", 1: "ii", 2: "A-5", 3: "A-6"}, labels)
}

func TestPageLabelsDefault(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R >>")
	e := newExtractor(t, b.finish("/Root 1 0 R"))

	assert.Equal(t, map[int]string{0: "1"}, e.PageLabels())
}

func TestEmbeddedFiles(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R /Names 30 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	b.add(30, "<< /EmbeddedFiles 31 0 R >>")
	b.add(31, "<< /Names [(readme.txt) 32 0 R] >>")
	b.add(32, "<< /Type /Filespec /F (readme.txt) /Desc (Read me) /EF << /F 33 0 R >> >>")
	b.addStream(33, "hello attachment")
	e := newExtractor(t, b.finish("/Root 1 0 R"))

	files, err := e.EmbeddedFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "readme.txt", files[0].Name)
	assert.Equal(t, "Read me", files[0].Description)
	assert.Equal(t, []byte("hello attachment"), files[0].Data)
}

func TestFonts(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 10 0 R /F2 11 0 R >> >> >>")
	b.add(4, "<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 10 0 R >> >> >>")
	b.add(10, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	b.add(11, "<< /Type /Font /Subtype /Type1 /BaseFont /Times-Roman "+
		"/Encoding /WinAnsiEncoding /ToUnicode 12 0 R >>")
	b.addStream(12, "cmap data")
	e := newExtractor(t, b.finish("/Root 1 0 R"))

	fonts := e.Fonts(context.Background())
	require.Len(t, fonts, 2)

	assert.Equal(t, "Helvetica", fonts[0].BaseFont)
	assert.Equal(t, []int{0, 1}, fonts[0].Pages)
	assert.False(t, fonts[0].HasToUnicode)

	assert.Equal(t, "Times-Roman", fonts[1].BaseFont)
	assert.Equal(t, "WinAnsiEncoding", fonts[1].Encoding)
	assert.Equal(t, []int{0}, fonts[1].Pages)
	assert.True(t, fonts[1].HasToUnicode)
}

func TestFontsInheritedResources(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 "+
		"/Resources << /Font << /F1 10 0 R >> >> >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R >>")
	b.add(10, "<< /Type /Font /Subtype /Type1 /BaseFont /Courier >>")
	e := newExtractor(t, b.finish("/Root 1 0 R"))

	fonts := e.Fonts(context.Background())
	require.Len(t, fonts, 1)
	assert.Equal(t, "Courier", fonts[0].BaseFont)
}

func TestAcroForm(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R "+
		"/AcroForm << /NeedAppearances true /Fields [20 0 R 21 0 R 23 0 R] >> >>")
	b.add(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	b.add(20, "<< /FT /Tx /T (name) /V (Alice) /MaxLen 32 >>")
	b.add(21, "<< /FT /Btn /T (gender) /Ff 32768 /V /M /Kids [22 0 R] >>")
	b.add(22, "<< /Parent 21 0 R /Rect [0 0 10 10] >>")
	b.add(23, "<< /FT /Ch /T (color) /Ff 131072 /Opt [(Red) [(b) (Blue)]] /V (Red) >>")
	e := newExtractor(t, b.finish("/Root 1 0 R"))

	form, err := e.AcroForm(context.Background())
	require.NoError(t, err)
	require.NotNil(t, form)
	assert.True(t, form.NeedAppearances)
	require.Len(t, form.Fields, 3)

	name := form.Fields[0]
	assert.Equal(t, "name", name.Name)
	assert.Equal(t, "Tx", name.Type)
	assert.Equal(t, "Alice", name.Value)
	assert.EqualValues(t, 32, name.MaxLen)

	gender := form.Fields[1]
	assert.Equal(t, "gender", gender.Name)
	assert.True(t, gender.IsRadio())
	assert.Equal(t, "M", gender.Value)

	color := form.Fields[2]
	assert.True(t, color.IsComboBox())
	assert.Equal(t, []string{"Red", "Blue"}, color.Options)
	assert.Equal(t, "Red", color.Value)
}

func TestAcroFormAbsent(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	e := newExtractor(t, b.finish("/Root 1 0 R"))

	form, err := e.AcroForm(context.Background())
	require.NoError(t, err)
	assert.Nil(t, form)
}

func TestFormatPageNumber(t *testing.T) {
	assert.Equal(t, "IV", toRoman(4))
	assert.Equal(t, "MCMXCIX", toRoman(1999))
	assert.Equal(t, "Z", toAlpha(26))
	assert.Equal(t, "AA", toAlpha(27))
	assert.Equal(t, "iv", formatPageNumber("r", 4))
	assert.Equal(t, "7", formatPageNumber("D", 7))
	assert.Equal(t, "", formatPageNumber("", 3))
}
