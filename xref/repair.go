package xref

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"pdflib/ir/raw"
	"pdflib/parser"
	"pdflib/recovery"
	"pdflib/scanner"
)

// Repair rebuilds the table by scanning the whole file for "N G obj"
// headers. Later headers win: the scan runs front to back, so the object
// a later incremental update rewrote ends up pointing at the newest copy.
// Stream payloads are skipped whole (the scanner consumes them up to their
// endstream marker), so object-lookalike bytes inside streams are ignored.
// Trailer dictionaries met along the way are collected in file order.
func (rd *Reader) Repair(ctx context.Context) (*Table, []*raw.DictObj, error) {
	s := rd.newScanner()
	t := NewTable()
	var trailers []*raw.DictObj

	rd.flags.Set(recovery.FlagRepaired)

	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			default:
			}
		}
		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// damaged bytes between objects; skip one byte and resync
			if serr := s.Seek(s.Position() + 1); serr != nil {
				break
			}
			continue
		}
		switch {
		case tok.Type == scanner.TokenNumber && tok.IsInt:
			num := int(tok.Int)
			headerPos := tok.Pos
			tokGen, err := s.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					goto done
				}
				continue
			}
			if tokGen.Type != scanner.TokenNumber || !tokGen.IsInt {
				continue
			}
			tokObj, err := s.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					goto done
				}
				continue
			}
			if tokObj.Type == scanner.TokenKeyword && tokObj.Kind == raw.KwObj {
				if num > 0 {
					t.ReplaceEntry(num, parser.XRefEntry{
						Kind:   parser.XRefUncompressed,
						Offset: headerPos,
						Gen:    int(tokGen.Int),
					})
				}
				continue
			}
			// "1 2 3 obj" must still find "2 3 obj": rewind to the
			// second number and rescan
			if err := s.Seek(tokGen.Pos); err != nil {
				return nil, nil, err
			}
		case tok.Type == scanner.TokenKeyword && tok.Kind == raw.KwTrailer:
			tr := parser.NewTokenReader(s)
			obj, err := parser.ReadObject(tr, parser.ReadOptions{Flags: rd.flags})
			if err == nil {
				if d, ok := obj.(*raw.DictObj); ok {
					trailers = append(trailers, d)
				}
			}
		}
	}
done:
	if t.Size() == 0 {
		return nil, nil, errors.New("repair found no objects")
	}
	// newest trailer keys win, so merge back to front
	for i := len(trailers) - 1; i >= 0; i-- {
		t.mergeTrailer(trailers[i])
	}
	return t, trailers, nil
}
