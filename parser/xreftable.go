package parser

// XRefKind says how an object is stored.
type XRefKind int

const (
	XRefFree XRefKind = iota
	XRefUncompressed
	XRefCompressed
)

// XRefEntry locates one indirect object. Offset/Gen apply to uncompressed
// entries, StreamNum/StreamIdx to objects living inside an object stream.
type XRefEntry struct {
	Kind      XRefKind
	Offset    int64
	Gen       int
	StreamNum int
	StreamIdx int
}

// XRefTable is what the loader needs from a cross-reference table. The
// concrete table lives in the xref package.
type XRefTable interface {
	// Entry returns the entry for an object number; ok is false when the
	// number is outside the table.
	Entry(num int) (XRefEntry, bool)
	// Size is one past the highest addressable object number.
	Size() int
}
