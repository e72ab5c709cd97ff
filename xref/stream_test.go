package xref

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdflib/parser"
	"pdflib/recovery"
)

// xrefStreamRow packs a [1 2 1] row big-endian.
func xrefStreamRow(kind byte, f2 int64, f3 byte) []byte {
	return []byte{kind, byte(f2 >> 8), byte(f2), f3}
}

// xrefStreamFile builds a file whose only cross-reference section is an
// uncompressed xref stream.
func xrefStreamFile() ([]byte, map[int]int64, int64) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := map[int]int64{}

	offsets[1] = int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")

	streamOff := int64(buf.Len())
	var rows bytes.Buffer
	rows.Write(xrefStreamRow(0, 0, 255))
	rows.Write(xrefStreamRow(1, offsets[1], 0))
	rows.Write(xrefStreamRow(1, offsets[2], 0))
	rows.Write(xrefStreamRow(1, streamOff, 0))

	fmt.Fprintf(&buf,
		"3 0 obj\n<< /Type /XRef /Size 4 /W [1 2 1] /Root 1 0 R /Length %d >>\nstream\n",
		rows.Len())
	buf.Write(rows.Bytes())
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", streamOff)
	return buf.Bytes(), offsets, streamOff
}

func TestReadChainXRefStream(t *testing.T) {
	data, offsets, streamOff := xrefStreamFile()
	rd := newTestReader(data, nil)

	table, err := rd.ReadChain(context.Background(), streamOff)
	require.NoError(t, err)
	require.Equal(t, 4, table.Size())

	for num, off := range offsets {
		e, ok := table.Entry(num)
		require.True(t, ok)
		assert.Equal(t, parser.XRefUncompressed, e.Kind)
		assert.Equal(t, off, e.Offset)
	}
	e, _ := table.Entry(0)
	assert.Equal(t, parser.XRefFree, e.Kind)

	_, hasRoot := table.Trailer().Lookup("Root")
	assert.True(t, hasRoot)
}

func TestReadChainXRefStreamWithIndexAndCompressed(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")

	streamOff := int64(buf.Len())
	var rows bytes.Buffer
	// /Index [5 2]: object 5 compressed in stream 9 at index 3, object 6
	// uncompressed at a made-up offset
	rows.Write(xrefStreamRow(2, 9, 3))
	rows.Write(xrefStreamRow(1, 1234, 0))

	fmt.Fprintf(&buf,
		"3 0 obj\n<< /Type /XRef /Size 7 /Index [5 2] /W [1 2 1] /Length %d >>\nstream\n",
		rows.Len())
	buf.Write(rows.Bytes())
	buf.WriteString("\nendstream\nendobj\n")

	rd := newTestReader(buf.Bytes(), nil)
	table, err := rd.ReadChain(context.Background(), streamOff)
	require.NoError(t, err)
	require.Equal(t, 7, table.Size())

	e, ok := table.Entry(5)
	require.True(t, ok)
	assert.Equal(t, parser.XRefCompressed, e.Kind)
	assert.Equal(t, 9, e.StreamNum)
	assert.Equal(t, 3, e.StreamIdx)

	e, _ = table.Entry(6)
	assert.Equal(t, parser.XRefUncompressed, e.Kind)
	assert.EqualValues(t, 1234, e.Offset)
}

func TestReadChainXRefStreamZeroWidthTypeDefaultsToOne(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")

	streamOff := int64(buf.Len())
	// /W [0 2 1]: the missing type field reads as 1 (in use)
	rows := []byte{0x04, 0xD2, 0x00}

	fmt.Fprintf(&buf,
		"3 0 obj\n<< /Type /XRef /Size 1 /Index [4 1] /W [0 2 1] /Length %d >>\nstream\n",
		len(rows))
	buf.Write(rows)
	buf.WriteString("\nendstream\nendobj\n")

	rd := newTestReader(buf.Bytes(), nil)
	table, err := rd.ReadChain(context.Background(), streamOff)
	require.NoError(t, err)

	e, ok := table.Entry(4)
	require.True(t, ok)
	assert.Equal(t, parser.XRefUncompressed, e.Kind)
	assert.EqualValues(t, 1234, e.Offset)
}

func TestReadChainRejectsNonXRefStream(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	streamOff := int64(buf.Len())
	buf.WriteString("3 0 obj\n<< /Type /ObjStm /Length 2 >>\nstream\nAB\nendstream\nendobj\n")

	flags := &recovery.FlagSet{}
	rd := newTestReader(buf.Bytes(), flags)
	_, err := rd.ReadChain(context.Background(), streamOff)
	assert.Error(t, err)
	assert.True(t, flags.Has(recovery.FlagBadXrefStream))
}

// hybridFile carries a classic table whose trailer names an /XRefStm. The
// two disagree about object 2; the stream is right.
func hybridFile() ([]byte, int64, int64, int64) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")

	off1 := int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")

	stmOff := int64(buf.Len())
	var rows bytes.Buffer
	rows.Write(xrefStreamRow(1, off2, 0))
	fmt.Fprintf(&buf,
		"4 0 obj\n<< /Type /XRef /Size 5 /Index [2 1] /W [1 2 1] /Length %d >>\nstream\n",
		rows.Len())
	buf.Write(rows.Bytes())
	buf.WriteString("\nendstream\nendobj\n")

	classicOff := int64(buf.Len())
	buf.WriteString("xref\n0 3\n")
	buf.WriteString("0000000000 65535 f \n")
	fmt.Fprintf(&buf, "%010d 00000 n \n", off1)
	fmt.Fprintf(&buf, "%010d 00000 n \n", int64(1)) // classic lies about object 2
	fmt.Fprintf(&buf, "trailer\n<< /Size 5 /Root 1 0 R /XRefStm %d >>\n", stmOff)
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", classicOff)
	return buf.Bytes(), classicOff, off2, int64(1)
}

func TestReadChainHybridPrefersStream(t *testing.T) {
	data, classicOff, goodOff, _ := hybridFile()
	rd := newTestReader(data, nil)

	table, err := rd.ReadChain(context.Background(), classicOff)
	require.NoError(t, err)

	e, ok := table.Entry(2)
	require.True(t, ok)
	assert.Equal(t, goodOff, e.Offset)

	// classic trailer keys stay on top of the stream dictionary's
	_, hasRoot := table.Trailer().Lookup("Root")
	assert.True(t, hasRoot)
}

func TestReadChainHybridClassicFallback(t *testing.T) {
	data, classicOff, _, badOff := hybridFile()
	rd := newTestReader(data, nil)
	rd.PreferXRefStm = false

	table, err := rd.ReadChain(context.Background(), classicOff)
	require.NoError(t, err)

	e, ok := table.Entry(2)
	require.True(t, ok)
	assert.Equal(t, badOff, e.Offset)
}
