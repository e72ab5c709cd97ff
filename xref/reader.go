package xref

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"pdflib/filters"
	"pdflib/ir/raw"
	"pdflib/parser"
	"pdflib/recovery"
	"pdflib/scanner"
	"pdflib/security"
)

// Reader walks the cross-reference chain of a file: the section named by
// startxref, then every /Prev behind it, oldest last. Hybrid files carry a
// classic table plus an /XRefStm stream; the stream is preferred unless
// the caller flipped PreferXRefStm off after a failed bootstrap.
type Reader struct {
	src      io.ReaderAt
	limits   security.Limits
	flags    *recovery.FlagSet
	strategy recovery.Strategy
	pipeline *filters.Pipeline

	PreferXRefStm bool
}

func NewReader(src io.ReaderAt, limits security.Limits, flags *recovery.FlagSet, strategy recovery.Strategy) *Reader {
	if flags == nil {
		flags = &recovery.FlagSet{}
	}
	return &Reader{
		src:      src,
		limits:   limits,
		flags:    flags,
		strategy: strategy,
		pipeline: filters.NewStandardPipeline(filters.Limits{
			MaxDecompressedSize: limits.MaxDecompressedSize,
			MaxDecodeTime:       limits.MaxDecodeTime,
		}),
		PreferXRefStm: true,
	}
}

func (rd *Reader) newScanner() scanner.Scanner {
	return scanner.New(rd.src, scanner.Config{
		MaxStringLength: rd.limits.MaxStringLength,
		MaxStreamLength: rd.limits.MaxStreamLength,
		MaxStreamScan:   rd.limits.MaxStreamScan,
		Recovery:        rd.strategy,
		Flags:           rd.flags,
	})
}

// ReadChain builds the table starting from the startxref offset.
func (rd *Reader) ReadChain(ctx context.Context, start int64) (*Table, error) {
	t := NewTable()
	visited := make(map[int64]bool)
	offset := start
	depth := 0
	for offset >= 0 {
		if visited[offset] {
			rd.flags.Set(recovery.FlagBadXref)
			break
		}
		visited[offset] = true
		depth++
		if rd.limits.MaxXRefDepth > 0 && depth > rd.limits.MaxXRefDepth {
			return nil, errors.New("xref chain too deep")
		}
		prev, err := rd.readSection(ctx, t, offset)
		if err != nil {
			return nil, errors.Wrapf(err, "xref section at %d", offset)
		}
		offset = prev
	}
	if t.Size() == 0 {
		return nil, errors.New("empty cross-reference table")
	}
	return t, nil
}

// readSection reads one link of the chain and returns the /Prev offset,
// or -1 when the chain ends here.
func (rd *Reader) readSection(ctx context.Context, t *Table, offset int64) (int64, error) {
	s := rd.newScanner()
	if err := s.Seek(offset); err != nil {
		return -1, err
	}
	tok, err := s.Next()
	if err != nil {
		return -1, err
	}
	if tok.Type == scanner.TokenKeyword && tok.Kind == raw.KwXref {
		return rd.readClassicSection(ctx, t, s)
	}
	// otherwise the section must be a cross-reference stream object
	if tok.Type != scanner.TokenNumber || !tok.IsInt {
		rd.flags.Set(recovery.FlagBadXref)
		return -1, errors.Errorf("neither xref keyword nor object at offset %d", offset)
	}
	if err := s.Seek(offset); err != nil {
		return -1, err
	}
	trailer, err := rd.readStreamSection(ctx, t, s)
	if err != nil {
		return -1, err
	}
	t.mergeTrailer(trailer)
	return prevOffset(trailer), nil
}

// readClassicSection parses "first count" subsections of 20-byte entries
// followed by a trailer dictionary.
func (rd *Reader) readClassicSection(ctx context.Context, t *Table, s scanner.Scanner) (int64, error) {
	type pending struct {
		num   int
		entry parser.XRefEntry
	}
	var collected []pending
	var trailer *raw.DictObj

	tr := parser.NewTokenReader(s)
	for {
		tok, err := tr.Next()
		if err != nil {
			return -1, errors.Wrap(err, "classic table truncated")
		}
		if tok.Type == scanner.TokenKeyword && tok.Kind == raw.KwTrailer {
			obj, err := parser.ReadObject(tr, parser.ReadOptions{Flags: rd.flags, Recovery: rd.strategy})
			if err != nil {
				return -1, errors.Wrap(err, "trailer dictionary")
			}
			d, ok := obj.(*raw.DictObj)
			if !ok {
				return -1, errors.New("trailer is not a dictionary")
			}
			trailer = d
			break
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			rd.flags.Set(recovery.FlagBadXref)
			return -1, errors.New("malformed xref subsection header")
		}
		first := int(tok.Int)
		tok, err = tr.Next()
		if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
			rd.flags.Set(recovery.FlagBadXref)
			return -1, errors.New("malformed xref subsection header")
		}
		count := int(tok.Int)
		for i := 0; i < count; i++ {
			entry, err := rd.readClassicEntry(tr)
			if err != nil {
				return -1, err
			}
			collected = append(collected, pending{num: first + i, entry: entry})
		}
	}

	// hybrid: the accompanying cross-reference stream outranks the
	// classic entries, so it writes first
	if x, ok := trailer.Lookup("XRefStm"); ok && rd.PreferXRefStm {
		if n, ok := x.(raw.NumberObj); ok && n.IsInt {
			sub := rd.newScanner()
			if err := sub.Seek(n.I); err == nil {
				if subTrailer, err := rd.readStreamSection(ctx, t, sub); err != nil {
					rd.flags.Set(recovery.FlagBadXrefStream)
				} else {
					defer t.mergeTrailer(subTrailer)
				}
			}
		}
	}
	for _, p := range collected {
		t.SetEntry(p.num, p.entry)
	}
	if sz, ok := trailer.Lookup("Size"); ok {
		if n, ok := sz.(raw.NumberObj); ok && n.IsInt && n.I > 0 {
			t.Grow(int(n.I))
		}
	}
	t.mergeTrailer(trailer)
	return prevOffset(trailer), nil
}

// readClassicEntry consumes one "oooooooooo ggggg n/f" line. The scanner
// tokenizes the two numbers and the flag keyword regardless of whether the
// line ends in CRLF, LF CR, or a single EOL, so the 19/20/21-byte variants
// all read the same.
func (rd *Reader) readClassicEntry(tr *parser.TokenReader) (parser.XRefEntry, error) {
	tokOff, err := tr.Next()
	if err != nil || tokOff.Type != scanner.TokenNumber || !tokOff.IsInt {
		rd.flags.Set(recovery.FlagBadXref)
		return parser.XRefEntry{}, errors.New("malformed xref entry")
	}
	tokGen, err := tr.Next()
	if err != nil || tokGen.Type != scanner.TokenNumber || !tokGen.IsInt {
		rd.flags.Set(recovery.FlagBadXref)
		return parser.XRefEntry{}, errors.New("malformed xref entry")
	}
	tokFlag, err := tr.Next()
	if err != nil || tokFlag.Type != scanner.TokenKeyword {
		rd.flags.Set(recovery.FlagBadXref)
		return parser.XRefEntry{}, errors.New("malformed xref entry")
	}
	switch tokFlag.Str {
	case "n":
		return parser.XRefEntry{
			Kind:   parser.XRefUncompressed,
			Offset: tokOff.Int,
			Gen:    int(tokGen.Int),
		}, nil
	case "f":
		return parser.XRefEntry{Kind: parser.XRefFree, Gen: int(tokGen.Int)}, nil
	}
	rd.flags.Set(recovery.FlagBadXref)
	return parser.XRefEntry{}, errors.Errorf("xref entry flag %q", tokFlag.Str)
}

func prevOffset(trailer *raw.DictObj) int64 {
	if trailer == nil {
		return -1
	}
	if v, ok := trailer.Lookup("Prev"); ok {
		if n, ok := v.(raw.NumberObj); ok && n.IsInt && n.I >= 0 {
			return n.I
		}
	}
	return -1
}
