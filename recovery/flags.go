package recovery

// Flag marks one distinct recoverable condition observed while reading a
// document. Flags are sticky for the lifetime of the document: hitting the
// same condition a thousand times records it once.
type Flag uint32

const (
	FlagNoHeader Flag = 1 << iota
	FlagNoStartxref
	FlagBadXref
	FlagBadXrefStream
	FlagMalformedNumber
	FlagMissingWhitespace
	FlagUnbalancedString
	FlagKeywordTooLong
	FlagBadObjectNumber
	FlagDerefFreeObject
	FlagMissingEndobj
	FlagBadStreamLength
	FlagDanglingDictKey
	FlagCircularReference
	FlagRepaired
	FlagMissingRoot
	FlagInvalidNameEscape
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagNoHeader, "file header missing or damaged"},
	{FlagNoStartxref, "startxref not found"},
	{FlagBadXref, "cross-reference table damaged"},
	{FlagBadXrefStream, "cross-reference stream damaged"},
	{FlagMalformedNumber, "malformed number"},
	{FlagMissingWhitespace, "missing whitespace between tokens"},
	{FlagUnbalancedString, "unterminated string"},
	{FlagKeywordTooLong, "keyword exceeds length bound"},
	{FlagBadObjectNumber, "object header does not match reference"},
	{FlagDerefFreeObject, "reference to a free object"},
	{FlagMissingEndobj, "endobj missing after object body"},
	{FlagBadStreamLength, "stream Length does not match data"},
	{FlagDanglingDictKey, "dictionary key without a value"},
	{FlagCircularReference, "circular reference"},
	{FlagRepaired, "cross-reference rebuilt by scanning"},
	{FlagMissingRoot, "document catalog missing from trailer"},
	{FlagInvalidNameEscape, "invalid #-escape in name"},
}

// FlagSet accumulates the distinct conditions seen in one document.
// A Document is single-goroutine, so no locking.
type FlagSet struct {
	bits Flag
}

func (fs *FlagSet) Set(f Flag)       { fs.bits |= f }
func (fs *FlagSet) Has(f Flag) bool  { return fs.bits&f != 0 }
func (fs *FlagSet) Empty() bool      { return fs.bits == 0 }
func (fs *FlagSet) Bits() Flag       { return fs.bits }
func (fs *FlagSet) Merge(o *FlagSet) { fs.bits |= o.bits }

// Report lists each recorded condition once, in declaration order.
func (fs *FlagSet) Report() []string {
	var out []string
	for _, fn := range flagNames {
		if fs.bits&fn.flag != 0 {
			out = append(out, fn.name)
		}
	}
	return out
}
