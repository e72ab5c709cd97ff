// Package extractor pulls structured data out of an open document: page
// annotations, the outline tree, embedded files, font usage, and form
// fields. It works purely through the document's object loader, so every
// lookup benefits from the same caching, recovery, and decryption the
// rest of the engine uses.
package extractor

import (
	"context"

	"github.com/pkg/errors"

	"pdflib/document"
	"pdflib/ir/raw"
)

// Extractor exposes read-only views over one open document.
type Extractor struct {
	doc    *document.Document
	pages  []pageEntry
	labels map[int]string
}

type pageEntry struct {
	dict      *raw.DictObj
	ref       raw.ObjectRef
	resources *raw.DictObj
}

// New resolves every page up front so later lookups can map objects back
// to page indices.
func New(ctx context.Context, doc *document.Document) (*Extractor, error) {
	if doc == nil {
		return nil, errors.New("document is required")
	}
	e := &Extractor{doc: doc}
	for i := 0; i < doc.PageCount(); i++ {
		p, err := doc.Page(ctx, i)
		if err != nil {
			return nil, errors.Wrapf(err, "page %d", i)
		}
		e.pages = append(e.pages, pageEntry{dict: p.Dict, ref: p.Ref, resources: p.Resources})
	}
	e.labels = e.collectPageLabels(ctx)
	return e, nil
}

// PageLabels maps each page index to its display label. Pages outside any
// labelling range keep their one-based number.
func (e *Extractor) PageLabels() map[int]string {
	out := make(map[int]string, len(e.labels))
	for k, v := range e.labels {
		out[k] = v
	}
	return out
}

// pageIndexOf locates a page by reference first and by identity second.
// The loader caches objects, so two loads of the same page share a dict.
func (e *Extractor) pageIndexOf(ref raw.ObjectRef, dict *raw.DictObj) int {
	for i, p := range e.pages {
		if ref.Num != 0 && p.ref == ref {
			return i
		}
		if dict != nil && p.dict == dict {
			return i
		}
	}
	return -1
}

// dictAt resolves dict[key] to a dictionary, swallowing type mismatches.
func (e *Extractor) dictAt(ctx context.Context, dict *raw.DictObj, key string) *raw.DictObj {
	d, err := e.doc.DictGetDict(ctx, dict, key)
	if err != nil {
		return nil
	}
	return d
}

func (e *Extractor) arrayAt(ctx context.Context, dict *raw.DictObj, key string) *raw.ArrayObj {
	a, err := e.doc.DictGetArray(ctx, dict, key)
	if err != nil {
		return nil
	}
	return a
}

func (e *Extractor) textAt(ctx context.Context, dict *raw.DictObj, key string) string {
	b, err := e.doc.DictGetString(ctx, dict, key)
	if err != nil || b == nil {
		return ""
	}
	return document.DecodeTextString(b)
}

func (e *Extractor) nameAt(ctx context.Context, dict *raw.DictObj, key string) string {
	n, err := e.doc.DictGetName(ctx, dict, key)
	if err != nil {
		return ""
	}
	return n
}

func (e *Extractor) intAt(ctx context.Context, dict *raw.DictObj, key string) (int64, bool) {
	n, ok, err := e.doc.DictGetInt(ctx, dict, key)
	if err != nil || !ok {
		return 0, false
	}
	return n, true
}

// rectAt reads a four-number array; missing or short arrays come back zero.
func (e *Extractor) rectAt(ctx context.Context, dict *raw.DictObj, key string) [4]float64 {
	var rect [4]float64
	arr := e.arrayAt(ctx, dict, key)
	if arr == nil {
		return rect
	}
	for i := 0; i < arr.Len() && i < 4; i++ {
		item, _ := arr.Get(i)
		if n, ok := item.(raw.NumberObj); ok {
			rect[i] = n.Float()
		}
	}
	return rect
}

func floatItems(arr *raw.ArrayObj) []float64 {
	if arr == nil {
		return nil
	}
	out := make([]float64, 0, arr.Len())
	for _, item := range arr.Items {
		if n, ok := item.(raw.NumberObj); ok {
			out = append(out, n.Float())
		}
	}
	return out
}
