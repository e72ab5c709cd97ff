package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"pdflib/filters"
	"pdflib/ir/raw"
	"pdflib/recovery"
	"pdflib/scanner"
	"pdflib/security"
)

var (
	// ErrUnknownObject means the object number lies outside the table.
	ErrUnknownObject = errors.New("object not in xref table")
	// ErrObjectMismatch means the bytes at the xref offset do not carry
	// the header of the requested object.
	ErrObjectMismatch = errors.New("object header mismatch")
	// ErrCircularReference means following references returned to an
	// object already being resolved.
	ErrCircularReference = errors.New("circular reference")
)

// Loader materializes indirect objects on demand: seek via the xref table,
// parse, decrypt, cache. One Loader owns one scanner over the file and is
// confined to a single goroutine.
type Loader struct {
	reader   io.ReaderAt
	table    XRefTable
	scanner  scanner.Scanner
	security security.Handler
	limits   security.Limits
	cache    Cache
	strategy recovery.Strategy
	flags    *recovery.FlagSet
	pipeline *filters.Pipeline
	loops    loopDetector
}

type LoaderBuilder struct {
	reader   io.ReaderAt
	table    XRefTable
	scanner  scanner.Scanner
	security security.Handler
	limits   *security.Limits
	cache    Cache
	strategy recovery.Strategy
	flags    *recovery.FlagSet
}

func (b *LoaderBuilder) WithReader(r io.ReaderAt) *LoaderBuilder        { b.reader = r; return b }
func (b *LoaderBuilder) WithXRef(t XRefTable) *LoaderBuilder            { b.table = t; return b }
func (b *LoaderBuilder) WithScanner(s scanner.Scanner) *LoaderBuilder   { b.scanner = s; return b }
func (b *LoaderBuilder) WithSecurity(h security.Handler) *LoaderBuilder { b.security = h; return b }
func (b *LoaderBuilder) WithLimits(l security.Limits) *LoaderBuilder    { b.limits = &l; return b }
func (b *LoaderBuilder) WithCache(c Cache) *LoaderBuilder               { b.cache = c; return b }
func (b *LoaderBuilder) WithRecovery(s recovery.Strategy) *LoaderBuilder {
	b.strategy = s
	return b
}
func (b *LoaderBuilder) WithFlags(f *recovery.FlagSet) *LoaderBuilder { b.flags = f; return b }

func (b *LoaderBuilder) Build() (*Loader, error) {
	if b.reader == nil || b.table == nil {
		return nil, errors.New("reader and xref table required")
	}
	limits := security.DefaultLimits()
	if b.limits != nil {
		limits = *b.limits
	}
	flags := b.flags
	if flags == nil {
		flags = &recovery.FlagSet{}
	}
	sc := b.scanner
	if sc == nil {
		sc = scanner.New(b.reader, scanner.Config{
			MaxStringLength: limits.MaxStringLength,
			MaxStreamLength: limits.MaxStreamLength,
			MaxStreamScan:   limits.MaxStreamScan,
			Recovery:        b.strategy,
			Flags:           flags,
		})
	}
	sec := b.security
	if sec == nil {
		sec = security.NoopHandler()
	}
	cache := b.cache
	if cache == nil {
		cache = NewLRUCache(DefaultCacheSize)
	}
	return &Loader{
		reader:   b.reader,
		table:    b.table,
		scanner:  sc,
		security: sec,
		limits:   limits,
		cache:    cache,
		strategy: b.strategy,
		flags:    flags,
		pipeline: filters.NewStandardPipeline(filters.Limits{
			MaxDecompressedSize: limits.MaxDecompressedSize,
			MaxDecodeTime:       limits.MaxDecodeTime,
		}),
	}, nil
}

func (l *Loader) Cache() Cache                { return l.cache }
func (l *Loader) Flags() *recovery.FlagSet    { return l.flags }
func (l *Loader) Security() security.Handler  { return l.security }
func (l *Loader) SetSecurity(h security.Handler) {
	if h == nil {
		h = security.NoopHandler()
	}
	l.security = h
}

func (l *Loader) recover(err error, num, gen int, component string) error {
	if l.strategy == nil {
		return nil
	}
	loc := recovery.Location{ObjectNum: num, ObjectGen: gen, Component: component}
	switch l.strategy.OnError(nil, err, loc) {
	case recovery.ActionSkip, recovery.ActionFix, recovery.ActionWarn:
		return nil
	default:
		return err
	}
}

// Dereference materializes object (num, gen). The scanner position is
// saved on entry and restored on every exit, so a Dereference in the
// middle of another parse leaves its caller's cursor untouched.
func (l *Loader) Dereference(ctx context.Context, num, gen int) (raw.Object, error) {
	entry, ok := l.table.Entry(num)
	if !ok {
		return nil, fmt.Errorf("%w: %d %d R", ErrUnknownObject, num, gen)
	}
	if num == 0 || entry.Kind == XRefFree {
		l.flags.Set(recovery.FlagDerefFreeObject)
		if err := l.recover(fmt.Errorf("dereference of free object %d %d R", num, gen), num, gen, "loader"); err != nil {
			return nil, err
		}
		return raw.Null, nil
	}
	if l.loops.Present(num) {
		l.flags.Set(recovery.FlagCircularReference)
		return nil, fmt.Errorf("%w: %d %d R", ErrCircularReference, num, gen)
	}
	ref := raw.ObjectRef{Num: num, Gen: gen}
	if obj, ok := l.cache.Get(ref); ok {
		return obj, nil
	}

	l.loops.Mark()
	l.loops.Add(num)
	defer l.loops.ClearToMark()

	saved := l.scanner.Position()
	defer l.scanner.Seek(saved)

	var (
		obj raw.Object
		err error
	)
	switch entry.Kind {
	case XRefUncompressed:
		obj, err = l.loadClassic(ctx, num, gen, entry)
	case XRefCompressed:
		obj, err = l.loadCompressed(ctx, num, entry)
	default:
		return nil, fmt.Errorf("%w: %d %d R", ErrUnknownObject, num, gen)
	}
	if err != nil {
		return nil, err
	}
	l.cache.Put(ref, obj)
	return obj, nil
}

// Resolve follows reference chains until a direct object comes back.
func (l *Loader) Resolve(ctx context.Context, obj raw.Object) (raw.Object, error) {
	l.loops.Mark()
	defer l.loops.ClearToMark()
	for depth := 0; ; depth++ {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return obj, nil
		}
		if l.limits.MaxIndirectDepth > 0 && depth >= l.limits.MaxIndirectDepth {
			return nil, fmt.Errorf("%w: reference chain too deep", ErrCircularReference)
		}
		if l.loops.Present(ref.R.Num) {
			l.flags.Set(recovery.FlagCircularReference)
			return nil, fmt.Errorf("%w: %s", ErrCircularReference, ref.R)
		}
		next, err := l.Dereference(ctx, ref.R.Num, ref.R.Gen)
		if err != nil {
			return nil, err
		}
		l.loops.Add(ref.R.Num)
		obj = next
	}
}

func (l *Loader) loadClassic(ctx context.Context, num, gen int, entry XRefEntry) (raw.Object, error) {
	if err := l.scanner.Seek(entry.Offset); err != nil {
		return nil, err
	}
	tr := NewTokenReader(l.scanner)
	opt := ReadOptions{Flags: l.flags, Recovery: l.strategy, ObjNum: num, ObjGen: gen}

	tok, err := tr.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenNumber || !tok.IsInt || int(tok.Int) != num {
		l.flags.Set(recovery.FlagBadObjectNumber)
		return nil, fmt.Errorf("%w: wanted %d at offset %d", ErrObjectMismatch, num, entry.Offset)
	}
	tok, err = tr.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenNumber || !tok.IsInt {
		l.flags.Set(recovery.FlagBadObjectNumber)
		return nil, fmt.Errorf("%w: %d %d R", ErrObjectMismatch, num, gen)
	}
	// a generation mismatch is tolerated; only the number decides identity
	if int(tok.Int) != gen {
		l.flags.Set(recovery.FlagBadObjectNumber)
		if err := l.recover(fmt.Errorf("generation mismatch for object %d: header says %d, wanted %d", num, tok.Int, gen), num, gen, "loader"); err != nil {
			return nil, err
		}
	}
	tok, err = tr.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenKeyword || tok.Kind != raw.KwObj {
		l.flags.Set(recovery.FlagBadObjectNumber)
		return nil, fmt.Errorf("%w: obj keyword missing for %d %d R", ErrObjectMismatch, num, gen)
	}

	obj, err := ReadObject(tr, opt)
	if err != nil {
		return nil, err
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		hint := l.streamLengthHint(ctx, dict)
		tr.SetStreamLengthHint(hint)
		next, err := tr.Next()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if err == nil {
			if next.Type == scanner.TokenStream {
				if hint < 0 {
					l.flags.Set(recovery.FlagBadStreamLength)
					if rerr := l.recover(fmt.Errorf("stream %d %d R has no usable /Length", num, gen), num, gen, "loader"); rerr != nil {
						return nil, rerr
					}
				}
				obj = raw.NewStream(dict, next.Bytes)
			} else {
				tr.SetStreamLengthHint(-1)
				tr.Unread(next)
			}
		}
	}

	// the body should close with endobj
	if next, err := tr.Next(); err == nil {
		if next.Type != scanner.TokenKeyword || next.Kind != raw.KwEndObj {
			l.flags.Set(recovery.FlagMissingEndobj)
			if rerr := l.recover(fmt.Errorf("endobj missing after object %d %d R", num, gen), num, gen, "loader"); rerr != nil {
				return nil, rerr
			}
			tr.Unread(next)
		}
	}

	return l.decryptObject(raw.ObjectRef{Num: num, Gen: gen}, obj)
}

// streamLengthHint resolves /Length for the stream about to be read.
// Returns -1 when no usable value exists, which sends the scanner into a
// marker scan. Most dictionaries are not stream dictionaries, so a
// missing /Length is only a defect once a stream keyword follows; the
// caller records that.
func (l *Loader) streamLengthHint(ctx context.Context, dict *raw.DictObj) int64 {
	val, ok := dict.Lookup("Length")
	if !ok {
		return -1
	}
	resolved, err := l.Resolve(ctx, val)
	if err != nil {
		return -1
	}
	if n, ok := resolved.(raw.NumberObj); ok && n.IsInt && n.I >= 0 {
		return n.I
	}
	return -1
}

func (l *Loader) loadCompressed(ctx context.Context, num int, entry XRefEntry) (raw.Object, error) {
	container, err := l.Dereference(ctx, entry.StreamNum, 0)
	if err != nil {
		return nil, err
	}
	st, ok := container.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("object stream %d is not a stream", entry.StreamNum)
	}
	if typeName(st.Dict) != "ObjStm" {
		return nil, fmt.Errorf("object stream %d is not /Type /ObjStm", entry.StreamNum)
	}
	data, first, pairs, err := l.decodeObjStm(ctx, st)
	if err != nil {
		return nil, err
	}
	idx := entry.StreamIdx
	if idx < 0 || 2*idx+1 >= len(pairs) || pairs[2*idx] != num {
		// index and pair table disagree; fall back to searching the table
		l.flags.Set(recovery.FlagBadObjectNumber)
		idx = -1
		for i := 0; 2*i+1 < len(pairs); i++ {
			if pairs[2*i] == num {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: object %d not in object stream %d", ErrObjectMismatch, num, entry.StreamNum)
		}
	}
	off := int64(first + pairs[2*idx+1])
	if off < 0 || off > int64(len(data)) {
		return nil, fmt.Errorf("object stream %d: member offset out of range", entry.StreamNum)
	}
	sc := scanner.New(bytes.NewReader(data[off:]), scanner.Config{
		MaxStringLength: l.limits.MaxStringLength,
		Recovery:        l.strategy,
		Flags:           l.flags,
	})
	tr := NewTokenReader(sc)
	obj, err := ReadObject(tr, ReadOptions{Flags: l.flags, Recovery: l.strategy, ObjNum: num})
	if err != nil {
		return nil, err
	}
	// members of object streams are never encrypted on their own; the
	// container stream was decrypted as a whole
	return obj, nil
}

// decodeObjStm decompresses an object stream and reads its pair table:
// 2*N integers of object number and relative offset.
func (l *Loader) decodeObjStm(ctx context.Context, st *raw.StreamObj) (data []byte, first int, pairs []int, err error) {
	n := int(dictInt(st.Dict, "N"))
	first = int(dictInt(st.Dict, "First"))
	if n <= 0 || first < 0 {
		return nil, 0, nil, errors.New("object stream missing /N or /First")
	}
	names, params := filterChain(st.Dict)
	data = st.RawData()
	if len(names) > 0 {
		data, err = l.pipeline.Decode(ctx, data, names, params)
		if err != nil {
			return nil, 0, nil, err
		}
	}
	if first > len(data) {
		return nil, 0, nil, errors.New("object stream /First exceeds data length")
	}
	sc := scanner.New(bytes.NewReader(data[:first]), scanner.Config{Flags: l.flags})
	for len(pairs) < 2*n {
		tok, terr := sc.Next()
		if terr != nil {
			return nil, 0, nil, errors.New("object stream pair table truncated")
		}
		if tok.Type == scanner.TokenNumber && tok.IsInt {
			pairs = append(pairs, int(tok.Int))
			continue
		}
		if tok.Type == scanner.TokenRef {
			// two integers collapsed with a stray R; recover both
			pairs = append(pairs, tok.Num, tok.Gen)
			continue
		}
		return nil, 0, nil, errors.New("object stream pair table malformed")
	}
	return data, first, pairs, nil
}

// ObjStmMembers lists the object numbers of an object stream in member
// order. The repair path uses it to register compressed entries.
func (l *Loader) ObjStmMembers(ctx context.Context, st *raw.StreamObj) ([]int, error) {
	_, _, pairs, err := l.decodeObjStm(ctx, st)
	if err != nil {
		return nil, err
	}
	nums := make([]int, 0, len(pairs)/2)
	for i := 0; 2*i < len(pairs); i++ {
		nums = append(nums, pairs[2*i])
	}
	return nums, nil
}

// DecodeStream runs a stream's declared filter chain over its payload.
func (l *Loader) DecodeStream(ctx context.Context, st *raw.StreamObj) ([]byte, error) {
	names, params := filterChain(st.Dict)
	if len(names) == 0 {
		return st.RawData(), nil
	}
	return l.pipeline.Decode(ctx, st.RawData(), names, params)
}

func (l *Loader) decryptObject(ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	if l.security == nil || !l.security.IsEncrypted() {
		return obj, nil
	}
	switch v := obj.(type) {
	case raw.StringObj:
		dec, err := l.security.Decrypt(ref.Num, ref.Gen, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: dec, Hex: v.Hex}, nil
	case *raw.ArrayObj:
		for i, item := range v.Items {
			dec, err := l.decryptObject(ref, item)
			if err != nil {
				return nil, err
			}
			v.Items[i] = dec
		}
		return v, nil
	case *raw.DictObj:
		for key, item := range v.KV {
			dec, err := l.decryptObject(ref, item)
			if err != nil {
				return nil, err
			}
			v.KV[key] = dec
		}
		return v, nil
	case *raw.StreamObj:
		// cross-reference streams are readable before authentication and
		// are never encrypted
		if typeName(v.Dict) == "XRef" {
			return v, nil
		}
		if v.Dict != nil {
			if _, err := l.decryptObject(ref, v.Dict); err != nil {
				return nil, err
			}
		}
		class := security.DataClassStream
		if typeName(v.Dict) == "Metadata" {
			if !l.security.EncryptMetadata() {
				return v, nil
			}
			class = security.DataClassMetadataStream
		}
		filter, has := cryptFilterName(v.Dict)
		if has && filter == "Identity" {
			return v, nil
		}
		dec, err := l.security.DecryptWithFilter(ref.Num, ref.Gen, v.Data, class, filter)
		if err != nil {
			return nil, err
		}
		v.Data = dec
		return v, nil
	default:
		return obj, nil
	}
}

// dict helpers shared inside the package

func dictInt(d *raw.DictObj, key string) int64 {
	if d == nil {
		return 0
	}
	if v, ok := d.Lookup(key); ok {
		if n, ok := v.(raw.NumberObj); ok {
			return n.Int()
		}
	}
	return 0
}

func typeName(d *raw.DictObj) string {
	if d == nil {
		return ""
	}
	if v, ok := d.Lookup("Type"); ok {
		if n, ok := v.(raw.NameObj); ok {
			return n.Val
		}
	}
	return ""
}

func filterChain(d *raw.DictObj) ([]string, []raw.Dictionary) {
	if d == nil {
		return nil, nil
	}
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

func cryptFilterName(d *raw.DictObj) (string, bool) {
	names, params := filterChain(d)
	for idx, name := range names {
		if name != "Crypt" {
			continue
		}
		var dp raw.Dictionary
		if idx < len(params) {
			dp = params[idx]
		} else if len(params) == 1 {
			dp = params[0]
		}
		if dp != nil {
			if nObj, ok := dp.Get(raw.NameLiteral("Name")); ok {
				if n, ok := nObj.(raw.NameObj); ok {
					return n.Val, true
				}
			}
		}
		return "", true
	}
	return "", false
}
