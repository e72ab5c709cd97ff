package xref

import (
	"pdflib/ir/raw"
	"pdflib/parser"
)

// Table is a flat cross-reference table indexed by object number. It is
// built newest-section-first, so SetEntry keeps the first writer: an entry
// from a later incremental update is never overwritten by the older
// section behind it.
type Table struct {
	entries []parser.XRefEntry
	set     []bool
	trailer *raw.DictObj
}

func NewTable() *Table {
	return &Table{trailer: raw.Dict()}
}

func (t *Table) Entry(num int) (parser.XRefEntry, bool) {
	if num < 0 || num >= len(t.entries) {
		return parser.XRefEntry{}, false
	}
	return t.entries[num], true
}

// Size is one past the highest addressable object number.
func (t *Table) Size() int { return len(t.entries) }

// Grow extends the table with free entries up to size n.
func (t *Table) Grow(n int) {
	for len(t.entries) < n {
		t.entries = append(t.entries, parser.XRefEntry{Kind: parser.XRefFree})
		t.set = append(t.set, false)
	}
}

// SetEntry records an entry unless a newer section already claimed the
// slot. The table grows as needed.
func (t *Table) SetEntry(num int, e parser.XRefEntry) {
	if num < 0 {
		return
	}
	t.Grow(num + 1)
	if t.set[num] {
		return
	}
	t.entries[num] = e
	t.set[num] = true
}

// ReplaceEntry overwrites unconditionally. The repair scan uses it for its
// last-writer-wins rebuild.
func (t *Table) ReplaceEntry(num int, e parser.XRefEntry) {
	if num < 0 {
		return
	}
	t.Grow(num + 1)
	t.entries[num] = e
	t.set[num] = true
}

// Trailer is the merged trailer dictionary: for each key the newest
// section that carries it wins.
func (t *Table) Trailer() *raw.DictObj { return t.trailer }

func (t *Table) mergeTrailer(d *raw.DictObj) {
	if d == nil {
		return
	}
	for k, v := range d.KV {
		if _, ok := t.trailer.KV[k]; !ok {
			t.trailer.Set(raw.NameLiteral(k), v)
		}
	}
}

// SetTrailer replaces the merged trailer. Repair uses it when a scanned
// trailer supersedes whatever partial merge existed.
func (t *Table) SetTrailer(d *raw.DictObj) {
	if d != nil {
		t.trailer = d
	}
}
