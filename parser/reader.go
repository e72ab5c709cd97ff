package parser

import (
	"errors"
	"io"

	"pdflib/ir/raw"
	"pdflib/recovery"
	"pdflib/scanner"
)

// TokenSource is the part of scanner.Scanner composite building needs.
type TokenSource interface {
	Next() (scanner.Token, error)
}

type streamLengthSetter interface{ SetNextStreamLength(int64) }

// TokenReader wraps a token source with pushback, so composite readers can
// look one token ahead without losing it.
type TokenReader struct {
	s            TokenSource
	buf          []scanner.Token
	lengthSetter streamLengthSetter
}

func NewTokenReader(src TokenSource) *TokenReader {
	tr := &TokenReader{s: src}
	if setter, ok := src.(streamLengthSetter); ok {
		tr.lengthSetter = setter
	}
	return tr
}

func (r *TokenReader) Next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *TokenReader) Unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

func (r *TokenReader) SetStreamLengthHint(n int64) {
	if r.lengthSetter != nil {
		r.lengthSetter.SetNextStreamLength(n)
	}
}

// ReadOptions carries the defect plumbing into composite building.
type ReadOptions struct {
	Flags    *recovery.FlagSet
	Recovery recovery.Strategy
	ObjNum   int
	ObjGen   int
}

func (o ReadOptions) flags() *recovery.FlagSet {
	if o.Flags != nil {
		return o.Flags
	}
	return &recovery.FlagSet{}
}

func (o ReadOptions) recover(err error, component string) error {
	if o.Recovery == nil {
		return nil
	}
	loc := recovery.Location{ObjectNum: o.ObjNum, ObjectGen: o.ObjGen, Component: component}
	switch o.Recovery.OnError(nil, err, loc) {
	case recovery.ActionSkip, recovery.ActionFix, recovery.ActionWarn:
		return nil
	default:
		return err
	}
}

// ReadObject assembles exactly one object from the token stream. Structure
// keywords (obj, endobj, stream, ...) come back as raw.KeywordObj so the
// caller can react to them; a value position never holds one in a
// well-formed file.
func ReadObject(tr *TokenReader, opt ReadOptions) (raw.Object, error) {
	tok, err := tr.Next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return raw.NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return raw.Null, nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenRef:
		return raw.RefObj{R: raw.ObjectRef{Num: tok.Num, Gen: tok.Gen}}, nil
	case scanner.TokenArray:
		return readArray(tr, opt)
	case scanner.TokenDict:
		return readDict(tr, opt)
	case scanner.TokenStream:
		// a bare stream keyword with no preceding dict; hand the payload up
		return raw.NewStream(nil, tok.Bytes), nil
	case scanner.TokenKeyword:
		return raw.KeywordObj{Val: tok.Str, Kind: tok.Kind}, nil
	case scanner.TokenArrayEnd, scanner.TokenDictEnd, scanner.TokenProc, scanner.TokenProcEnd:
		return nil, errors.New("unexpected delimiter token")
	}
	return nil, errors.New("unexpected token")
}

func readArray(tr *TokenReader, opt ReadOptions) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := tr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// unterminated array at EOF; return what was collected
				if rerr := opt.recover(errors.New("unterminated array"), "parser:array"); rerr != nil {
					return nil, rerr
				}
				return arr, nil
			}
			return nil, err
		}
		if tok.Type == scanner.TokenArrayEnd {
			break
		}
		if tok.Type == scanner.TokenKeyword && tok.Kind != raw.KwOther {
			// object structure bleeding into the array means the ] is lost
			tr.Unread(tok)
			if rerr := opt.recover(errors.New("unterminated array"), "parser:array"); rerr != nil {
				return nil, rerr
			}
			break
		}
		tr.Unread(tok)
		item, err := ReadObject(tr, opt)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
	return arr, nil
}

func readDict(tr *TokenReader, opt ReadOptions) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := tr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if rerr := opt.recover(errors.New("unterminated dictionary"), "parser:dict"); rerr != nil {
					return nil, rerr
				}
				return d, nil
			}
			return nil, err
		}
		if tok.Type == scanner.TokenDictEnd {
			break
		}
		if tok.Type != scanner.TokenName {
			if tok.Type == scanner.TokenKeyword && tok.Kind != raw.KwOther {
				// missing >>; let the caller see the structure keyword
				tr.Unread(tok)
				if rerr := opt.recover(errors.New("unterminated dictionary"), "parser:dict"); rerr != nil {
					return nil, rerr
				}
				break
			}
			if rerr := opt.recover(errors.New("dictionary key is not a name"), "parser:dict"); rerr != nil {
				return nil, rerr
			}
			continue // skip the stray token
		}
		key := tok.Str
		// a key followed immediately by >> has no value: drop the key
		vtok, err := tr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				opt.flags().Set(recovery.FlagDanglingDictKey)
				if rerr := opt.recover(errors.New("dictionary key without value"), "parser:dict"); rerr != nil {
					return nil, rerr
				}
				return d, nil
			}
			return nil, err
		}
		if vtok.Type == scanner.TokenDictEnd {
			opt.flags().Set(recovery.FlagDanglingDictKey)
			if rerr := opt.recover(errors.New("dictionary key without value"), "parser:dict"); rerr != nil {
				return nil, rerr
			}
			break
		}
		tr.Unread(vtok)
		val, err := ReadObject(tr, opt)
		if err != nil {
			return nil, err
		}
		if kw, ok := val.(raw.KeywordObj); ok && kw.Kind != raw.KwOther {
			// structure keyword in value position: treat like a lost >>
			opt.flags().Set(recovery.FlagDanglingDictKey)
			if rerr := opt.recover(errors.New("dictionary key without value"), "parser:dict"); rerr != nil {
				return nil, rerr
			}
			break
		}
		d.Set(raw.NameObj{Val: key}, val)
	}
	return d, nil
}
