package xref

import (
	"context"

	"github.com/pkg/errors"

	"pdflib/ir/raw"
	"pdflib/parser"
	"pdflib/recovery"
	"pdflib/scanner"
)

// readStreamSection parses a cross-reference stream object at the current
// scanner position and applies its entries. The stream dictionary doubles
// as the section trailer.
func (rd *Reader) readStreamSection(ctx context.Context, t *Table, s scanner.Scanner) (*raw.DictObj, error) {
	tr := parser.NewTokenReader(s)
	opt := parser.ReadOptions{Flags: rd.flags, Recovery: rd.strategy}

	tok, err := tr.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		rd.flags.Set(recovery.FlagBadXrefStream)
		return nil, errors.New("cross-reference stream: no object header")
	}
	tok, err = tr.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		rd.flags.Set(recovery.FlagBadXrefStream)
		return nil, errors.New("cross-reference stream: no object header")
	}
	tok, err = tr.Next()
	if err != nil || tok.Type != scanner.TokenKeyword || tok.Kind != raw.KwObj {
		rd.flags.Set(recovery.FlagBadXrefStream)
		return nil, errors.New("cross-reference stream: obj keyword missing")
	}

	obj, err := parser.ReadObject(tr, opt)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		rd.flags.Set(recovery.FlagBadXrefStream)
		return nil, errors.New("cross-reference stream: object is not a dictionary")
	}
	// Length in an xref stream must be direct; the table needed to chase a
	// reference does not exist yet
	hint := int64(-1)
	if v, ok := dict.Lookup("Length"); ok {
		if n, ok := v.(raw.NumberObj); ok && n.IsInt && n.I >= 0 {
			hint = n.I
		}
	}
	tr.SetStreamLengthHint(hint)
	tok, err = tr.Next()
	if err != nil || tok.Type != scanner.TokenStream {
		rd.flags.Set(recovery.FlagBadXrefStream)
		return nil, errors.New("cross-reference stream: stream payload missing")
	}
	if tn, ok := dict.Lookup("Type"); !ok {
		rd.flags.Set(recovery.FlagBadXrefStream)
	} else if n, ok := tn.(raw.NameObj); !ok || n.Val != "XRef" {
		rd.flags.Set(recovery.FlagBadXrefStream)
		return nil, errors.New("cross-reference stream: /Type is not /XRef")
	}

	names, params := streamFilters(dict)
	data := tok.Bytes
	if len(names) > 0 {
		data, err = rd.pipeline.Decode(ctx, data, names, params)
		if err != nil {
			return nil, errors.Wrap(err, "cross-reference stream: decode")
		}
	}

	widths, err := fieldWidths(dict)
	if err != nil {
		rd.flags.Set(recovery.FlagBadXrefStream)
		return nil, err
	}
	size := int(dictIntVal(dict, "Size"))
	index := indexPairs(dict, size)

	rowLen := widths[0] + widths[1] + widths[2]
	if rowLen == 0 {
		rd.flags.Set(recovery.FlagBadXrefStream)
		return nil, errors.New("cross-reference stream: /W is all zero")
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for n := 0; n < count; n++ {
			if pos+rowLen > len(data) {
				rd.flags.Set(recovery.FlagBadXrefStream)
				return dict, nil // keep what decoded so far
			}
			f1 := readField(data[pos:pos+widths[0]], 1) // type defaults to 1
			pos += widths[0]
			f2 := readField(data[pos:pos+widths[1]], 0)
			pos += widths[1]
			f3 := readField(data[pos:pos+widths[2]], 0)
			pos += widths[2]
			applyStreamEntry(t, first+n, f1, f2, f3)
		}
	}
	if size > 0 {
		t.Grow(size)
	}
	return dict, nil
}

func applyStreamEntry(t *Table, num int, f1, f2, f3 int64) {
	switch f1 {
	case 0:
		t.SetEntry(num, parser.XRefEntry{Kind: parser.XRefFree, Gen: int(f3)})
	case 1:
		t.SetEntry(num, parser.XRefEntry{Kind: parser.XRefUncompressed, Offset: f2, Gen: int(f3)})
	case 2:
		t.SetEntry(num, parser.XRefEntry{Kind: parser.XRefCompressed, StreamNum: int(f2), StreamIdx: int(f3)})
	default:
		// ISO 32000-1 7.5.8.3: unknown types read as references to null
	}
}

// readField decodes a big-endian field; a zero-width field takes its
// default value.
func readField(b []byte, def int64) int64 {
	if len(b) == 0 {
		return def
	}
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func fieldWidths(dict *raw.DictObj) ([3]int, error) {
	var w [3]int
	v, ok := dict.Lookup("W")
	if !ok {
		return w, errors.New("cross-reference stream: /W missing")
	}
	arr, ok := v.(*raw.ArrayObj)
	if !ok || arr.Len() < 3 {
		return w, errors.New("cross-reference stream: /W malformed")
	}
	for i := 0; i < 3; i++ {
		n, ok := arr.Items[i].(raw.NumberObj)
		if !ok || !n.IsInt || n.I < 0 || n.I > 8 {
			return w, errors.New("cross-reference stream: /W malformed")
		}
		w[i] = int(n.I)
	}
	return w, nil
}

// indexPairs returns the /Index pairs, defaulting to [0 Size].
func indexPairs(dict *raw.DictObj, size int) []int {
	if v, ok := dict.Lookup("Index"); ok {
		if arr, ok := v.(*raw.ArrayObj); ok && arr.Len() >= 2 {
			out := make([]int, 0, arr.Len())
			for _, it := range arr.Items {
				if n, ok := it.(raw.NumberObj); ok && n.IsInt {
					out = append(out, int(n.I))
				}
			}
			if len(out)%2 == 0 {
				return out
			}
		}
	}
	return []int{0, size}
}

func dictIntVal(d *raw.DictObj, key string) int64 {
	if v, ok := d.Lookup(key); ok {
		if n, ok := v.(raw.NumberObj); ok {
			return n.Int()
		}
	}
	return 0
}

func streamFilters(d *raw.DictObj) ([]string, []raw.Dictionary) {
	fObj, ok := d.Lookup("Filter")
	if !ok {
		return nil, nil
	}
	var names []string
	switch v := fObj.(type) {
	case raw.NameObj:
		names = []string{v.Val}
	case *raw.ArrayObj:
		for _, it := range v.Items {
			if n, ok := it.(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	var params []raw.Dictionary
	if dp, ok := d.Lookup("DecodeParms"); ok {
		switch p := dp.(type) {
		case *raw.DictObj:
			params = append(params, p)
		case *raw.ArrayObj:
			for _, it := range p.Items {
				if dd, ok := it.(*raw.DictObj); ok {
					params = append(params, dd)
				} else {
					params = append(params, nil)
				}
			}
		}
	}
	return names, params
}
