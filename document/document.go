package document

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"

	"pdflib/ir/raw"
	"pdflib/observability"
	"pdflib/parser"
	"pdflib/recovery"
	"pdflib/security"
	"pdflib/xref"
)

// Options controls how a file is opened.
type Options struct {
	// StrictMode turns every recoverable defect into a hard failure.
	StrictMode bool
	// Password for encrypted files; the empty string is tried by default.
	Password string
	// CacheSize bounds the object cache; 0 means the default.
	CacheSize int
	// Limits override the resource bounds; nil means defaults.
	Limits *security.Limits
	// Recovery overrides the strategy derived from StrictMode.
	Recovery recovery.Strategy
	// Logger receives open/repair milestones; nil means no logging.
	Logger observability.Logger
}

// Document is an open PDF file: its cross-reference table, its object
// loader, and the bookkeeping that accumulated while reading it. A
// Document is confined to one goroutine.
type Document struct {
	r      io.ReaderAt
	size   int64
	closer io.Closer

	limits   security.Limits
	strategy recovery.Strategy
	flags    *recovery.FlagSet
	log      observability.Logger

	version   string
	table     *xref.Table
	loader    *parser.Loader
	catalog   *raw.DictObj
	pagesRoot *raw.DictObj
	pageCount int
	handler   security.Handler
}

// Open opens the file at path.
func Open(path string, opts *Options) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	doc, err := NewDocument(context.Background(), f, st.Size(), opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	doc.closer = f
	return doc, nil
}

// NewDocument opens a document over any ReaderAt of known size.
func NewDocument(ctx context.Context, r io.ReaderAt, size int64, opts *Options) (*Document, error) {
	if opts == nil {
		opts = &Options{}
	}
	limits := security.DefaultLimits()
	if opts.Limits != nil {
		limits = *opts.Limits
	}
	strategy := opts.Recovery
	if strategy == nil {
		if opts.StrictMode {
			strategy = recovery.NewStrictStrategy()
		} else {
			strategy = recovery.NewLenientStrategy()
		}
	}
	log := opts.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	doc := &Document{
		r:        r,
		size:     size,
		limits:   limits,
		strategy: strategy,
		flags:    &recovery.FlagSet{},
		log:      log,
	}
	if err := doc.bootstrap(ctx, opts); err != nil {
		return nil, err
	}
	return doc, nil
}

// Close releases the underlying file when the document owns one.
func (d *Document) Close() error {
	if d.closer != nil {
		err := d.closer.Close()
		d.closer = nil
		return err
	}
	return nil
}

// Version is the header version, e.g. "1.7"; empty when no header.
func (d *Document) Version() string { return d.version }

// Trailer is the merged trailer dictionary.
func (d *Document) Trailer() *raw.DictObj { return d.table.Trailer() }

// Catalog is the document catalog.
func (d *Document) Catalog() *raw.DictObj { return d.catalog }

// Flags exposes the sticky condition set accumulated so far.
func (d *Document) Flags() *recovery.FlagSet { return d.flags }

// Conditions lists each distinct defect observed once, in a stable order.
func (d *Document) Conditions() []string { return d.flags.Report() }

// Permissions reports what the security handler allows.
func (d *Document) Permissions() security.Permissions { return d.handler.Permissions() }

// IsEncrypted reports whether the file carries a security handler.
func (d *Document) IsEncrypted() bool { return d.handler.IsEncrypted() }

// Dereference materializes the object (num, gen).
func (d *Document) Dereference(ctx context.Context, num, gen int) (raw.Object, error) {
	return d.loader.Dereference(ctx, num, gen)
}

// Resolve follows reference chains until a direct object comes back.
func (d *Document) Resolve(ctx context.Context, obj raw.Object) (raw.Object, error) {
	return d.loader.Resolve(ctx, obj)
}

// DecodeStream applies a stream's filter chain to its payload.
func (d *Document) DecodeStream(ctx context.Context, st *raw.StreamObj) ([]byte, error) {
	return d.loader.DecodeStream(ctx, st)
}

// PageCount is the number of leaf pages in the page tree.
func (d *Document) PageCount() int { return d.pageCount }

var ErrNoCatalog = errors.New("document catalog not found")
