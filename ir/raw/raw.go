package raw

import "fmt"

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Dictionary represents a PDF dictionary object.
type Dictionary interface {
	Object
	Get(key Name) (Object, bool)
	Set(key Name, value Object)
	Keys() []Name
	Len() int
}

// Array represents a PDF array object.
type Array interface {
	Object
	Get(index int) (Object, bool)
	Len() int
	Append(obj Object)
}

// Stream represents a raw (undecoded) PDF stream.
type Stream interface {
	Object
	Dictionary() Dictionary
	RawData() []byte
	Length() int64
}

// Name represents a PDF name object.
type Name interface {
	Object
	Value() string
}

// String represents a PDF string (literal or hex).
type String interface {
	Object
	Value() []byte
	IsHex() bool
}

// Number represents a PDF numeric value.
type Number interface {
	Object
	Int() int64
	Float() float64
	IsInteger() bool
}

// Boolean represents a PDF boolean.
type Boolean interface {
	Object
	Value() bool
}

// Reference represents an indirect object reference. A reference is a weak
// descriptor: it never owns its target, which is materialized on demand.
type Reference interface {
	Object
	Ref() ObjectRef
}

// KeywordKind classifies the keywords that delimit object and file
// structure. Anything else lexes as KwOther and is left to the caller.
type KeywordKind int

const (
	KwOther KeywordKind = iota
	KwObj
	KwEndObj
	KwStream
	KwEndStream
	KwXref
	KwTrailer
	KwStartXref
	KwInvalid // keyword exceeded the length bound
)

func (k KeywordKind) String() string {
	switch k {
	case KwObj:
		return "obj"
	case KwEndObj:
		return "endobj"
	case KwStream:
		return "stream"
	case KwEndStream:
		return "endstream"
	case KwXref:
		return "xref"
	case KwTrailer:
		return "trailer"
	case KwStartXref:
		return "startxref"
	case KwInvalid:
		return "invalid"
	}
	return "keyword"
}

// ClassifyKeyword maps a lexed bare identifier to its kind.
func ClassifyKeyword(s string) KeywordKind {
	switch s {
	case "obj":
		return KwObj
	case "endobj":
		return KwEndObj
	case "stream":
		return KwStream
	case "endstream":
		return KwEndStream
	case "xref":
		return KwXref
	case "trailer":
		return KwTrailer
	case "startxref":
		return KwStartXref
	}
	return KwOther
}

// DocumentMetadata contains common PDF info fields.
type DocumentMetadata struct {
	Producer string
	Creator  string
	Title    string
	Author   string
	Subject  string
	Keywords []string

	// Dates keep the original "D:YYYYMMDDHHmmSS" form.
	CreationDate string
	ModDate      string
}
