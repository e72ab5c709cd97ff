package document

import (
	"bytes"
	"context"
	"strings"

	"github.com/pkg/errors"

	"pdflib/ir/raw"
	"pdflib/observability"
	"pdflib/parser"
	"pdflib/recovery"
	"pdflib/security"
	"pdflib/xref"
)

// headerWindow bounds how deep into the file the %PDF- marker may sit.
const headerWindow = 2048

// startxrefChunk is the block size for the backward trailer scan.
const startxrefChunk = 2048

func (d *Document) bootstrap(ctx context.Context, opts *Options) error {
	d.readHeader()

	rd := xref.NewReader(d.r, d.limits, d.flags, d.strategy)

	table, err := d.readChainFromStartxref(ctx, rd)
	if err != nil {
		d.log.Warn("cross-reference chain unusable, repairing",
			observability.Error("cause", err))
		table, err = d.repair(ctx, rd, opts, err)
		if err != nil {
			return err
		}
	}
	d.table = table
	if err := d.buildLoader(ctx, opts); err != nil {
		return err
	}

	// the catalog decides whether the chain was good enough
	if err := d.locateCatalog(ctx); err != nil {
		// hybrid files sometimes carry a broken xref stream next to an
		// intact classic table; retry preferring the classic side
		if rd.PreferXRefStm {
			rd.PreferXRefStm = false
			if table, cerr := d.readChainFromStartxref(ctx, rd); cerr == nil {
				d.table = table
				if lerr := d.buildLoader(ctx, opts); lerr == nil {
					if d.locateCatalog(ctx) == nil {
						d.log.Info("catalog found via classic table of hybrid file")
						err = nil
					}
				}
			}
		}
		if err != nil {
			if !d.flags.Has(recovery.FlagRepaired) {
				table, rerr := d.repair(ctx, rd, opts, err)
				if rerr != nil {
					return rerr
				}
				d.table = table
				if lerr := d.buildLoader(ctx, opts); lerr != nil {
					return lerr
				}
				if cerr := d.locateCatalog(ctx); cerr != nil {
					return cerr
				}
			} else {
				return err
			}
		}
	}

	if err := d.countPages(ctx); err != nil {
		return err
	}
	d.log.Info("document open",
		observability.String("version", d.version),
		observability.Int(observability.MetricPageCount, d.pageCount),
		observability.Int("conditions", len(d.Conditions())))
	return nil
}

// readHeader finds the %PDF- marker in the first 2 KB and records the
// version. A missing header is a condition, not a failure.
func (d *Document) readHeader() {
	buf := make([]byte, headerWindow)
	n, _ := d.r.ReadAt(buf, 0)
	buf = buf[:n]
	idx := bytes.Index(buf, []byte("%PDF-"))
	if idx < 0 {
		d.flags.Set(recovery.FlagNoHeader)
		return
	}
	rest := buf[idx+len("%PDF-"):]
	end := 0
	for end < len(rest) {
		c := rest[end]
		if (c < '0' || c > '9') && c != '.' {
			break
		}
		end++
	}
	d.version = strings.TrimSpace(string(rest[:end]))
}

// readChainFromStartxref locates the last startxref keyword and walks the
// chain it names.
func (d *Document) readChainFromStartxref(ctx context.Context, rd *xref.Reader) (*xref.Table, error) {
	start, ok := d.findStartxref()
	if !ok {
		d.flags.Set(recovery.FlagNoStartxref)
		return nil, errors.New("startxref not found")
	}
	if start <= 0 || start >= d.size {
		d.flags.Set(recovery.FlagBadXref)
		return nil, errors.Errorf("startxref offset %d out of range", start)
	}
	return rd.ReadChain(ctx, start)
}

// findStartxref scans backward from the end of the file in fixed chunks.
// The keyword can straddle a chunk boundary, so each pass keeps the first
// bytes of the previous chunk as carry.
func (d *Document) findStartxref() (int64, bool) {
	needle := []byte("startxref")
	carryLen := int64(len(needle) - 1)
	end := d.size
	for end > 0 {
		start := end - startxrefChunk
		if start < 0 {
			start = 0
		}
		readEnd := end + carryLen
		if readEnd > d.size {
			readEnd = d.size
		}
		buf := make([]byte, readEnd-start)
		n, _ := d.r.ReadAt(buf, start)
		buf = buf[:n]
		if idx := bytes.LastIndex(buf, needle); idx >= 0 {
			if off, ok := d.parseStartxrefValue(start + int64(idx) + int64(len(needle))); ok {
				return off, true
			}
			// a startxref with no number behind it; keep scanning backward
		}
		end = start
	}
	return 0, false
}

func (d *Document) parseStartxrefValue(at int64) (int64, bool) {
	buf := make([]byte, 64)
	n, _ := d.r.ReadAt(buf, at)
	buf = buf[:n]
	i := 0
	for i < len(buf) && (buf[i] == ' ' || buf[i] == '\r' || buf[i] == '\n' || buf[i] == '\t') {
		i++
	}
	j := i
	var v int64
	for j < len(buf) && buf[j] >= '0' && buf[j] <= '9' {
		v = v*10 + int64(buf[j]-'0')
		j++
	}
	if j == i {
		return 0, false
	}
	return v, true
}

func (d *Document) buildLoader(ctx context.Context, opts *Options) error {
	handler := d.handler
	if handler == nil {
		handler = security.NoopHandler()
	}
	b := (&parser.LoaderBuilder{}).
		WithReader(d.r).
		WithXRef(d.table).
		WithLimits(d.limits).
		WithRecovery(d.strategy).
		WithFlags(d.flags).
		WithSecurity(handler).
		WithCache(parser.NewLRUCache(d.cacheSize(opts)))
	loader, err := b.Build()
	if err != nil {
		return err
	}
	d.loader = loader
	return d.setupSecurity(ctx, opts)
}

func (d *Document) cacheSize(opts *Options) int {
	if opts != nil && opts.CacheSize > 0 {
		return opts.CacheSize
	}
	return parser.DefaultCacheSize
}

// setupSecurity builds the standard security handler from /Encrypt. The
// Encrypt dictionary itself is loaded before any handler exists, so it is
// never run through decryption.
func (d *Document) setupSecurity(ctx context.Context, opts *Options) error {
	if d.handler != nil && d.handler.IsEncrypted() {
		d.loader.SetSecurity(d.handler)
		return nil
	}
	trailer := d.table.Trailer()
	encObj, ok := trailer.Lookup("Encrypt")
	if !ok {
		d.handler = security.NoopHandler()
		return nil
	}
	resolved, err := d.loader.Resolve(ctx, encObj)
	if err != nil {
		return errors.Wrap(err, "encrypt dictionary")
	}
	encDict, ok := resolved.(*raw.DictObj)
	if !ok {
		d.handler = security.NoopHandler()
		return nil
	}
	handler, err := (&security.HandlerBuilder{}).
		WithEncryptDict(encDict).
		WithTrailer(trailer).
		Build()
	if err != nil {
		return err
	}
	password := ""
	if opts != nil {
		password = opts.Password
	}
	if err := handler.Authenticate(password); err != nil {
		return err
	}
	d.handler = handler
	d.loader.SetSecurity(handler)
	return nil
}

// repair rebuilds the table by scanning and then registers the members of
// every object stream the scan surfaced, so compressed-only objects stay
// reachable without any xref stream.
func (d *Document) repair(ctx context.Context, rd *xref.Reader, opts *Options, cause error) (*xref.Table, error) {
	if d.strategy.OnError(ctx, cause, recovery.Location{Component: "bootstrap"}) == recovery.ActionFail {
		return nil, cause
	}
	d.log.Warn("rebuilding cross-reference table by scanning")
	table, _, err := rd.Repair(ctx)
	if err != nil {
		return nil, err
	}
	d.table = table
	if err := d.buildLoader(ctx, opts); err != nil {
		return nil, err
	}
	d.registerObjStmMembers(ctx, table)
	return table, nil
}

func (d *Document) registerObjStmMembers(ctx context.Context, table *xref.Table) {
	size := table.Size()
	for num := 1; num < size; num++ {
		entry, ok := table.Entry(num)
		if !ok || entry.Kind != parser.XRefUncompressed {
			continue
		}
		obj, err := d.loader.Dereference(ctx, num, entry.Gen)
		if err != nil {
			continue
		}
		st, ok := obj.(*raw.StreamObj)
		if !ok || typeNameOf(st.Dict) != "ObjStm" {
			continue
		}
		members, err := d.loader.ObjStmMembers(ctx, st)
		if err != nil {
			continue
		}
		for idx, mnum := range members {
			// direct headers found by the scan outrank stream members
			table.SetEntry(mnum, parser.XRefEntry{
				Kind:      parser.XRefCompressed,
				StreamNum: num,
				StreamIdx: idx,
			})
		}
	}
}

// locateCatalog resolves /Root and verifies it is a catalog. After a
// repair with no usable trailer the objects themselves are searched for
// /Type /Catalog.
func (d *Document) locateCatalog(ctx context.Context) error {
	trailer := d.table.Trailer()
	if rootObj, ok := trailer.Lookup("Root"); ok {
		resolved, err := d.loader.Resolve(ctx, rootObj)
		if err == nil {
			if cat, ok := resolved.(*raw.DictObj); ok && typeNameOf(cat) == "Catalog" {
				d.catalog = cat
				return nil
			}
		}
		d.flags.Set(recovery.FlagMissingRoot)
	} else {
		d.flags.Set(recovery.FlagMissingRoot)
	}
	if !d.flags.Has(recovery.FlagRepaired) {
		return ErrNoCatalog
	}
	// scan every known object for the catalog
	for num := 1; num < d.table.Size(); num++ {
		entry, ok := d.table.Entry(num)
		if !ok || entry.Kind == parser.XRefFree {
			continue
		}
		obj, err := d.loader.Dereference(ctx, num, entry.Gen)
		if err != nil {
			continue
		}
		if cat, ok := obj.(*raw.DictObj); ok && typeNameOf(cat) == "Catalog" {
			d.catalog = cat
			d.table.Trailer().Set(raw.NameLiteral("Root"), raw.Ref(num, entry.Gen))
			d.log.Info("catalog located by scan", observability.Int("object", num))
			return nil
		}
	}
	return ErrNoCatalog
}

func typeNameOf(dict *raw.DictObj) string {
	if dict == nil {
		return ""
	}
	if v, ok := dict.Lookup("Type"); ok {
		if n, ok := v.(raw.NameObj); ok {
			return n.Val
		}
	}
	return ""
}
