package document

import (
	"context"

	"github.com/pkg/errors"

	"pdflib/ir/raw"
)

var (
	ErrPageOutOfRange = errors.New("page index out of range")
	ErrPageTree       = errors.New("malformed page tree")
)

// Page is one resolved leaf of the page tree with its inherited
// attributes folded in.
type Page struct {
	Dict      *raw.DictObj
	Resources *raw.DictObj
	MediaBox  *raw.ArrayObj
	CropBox   *raw.ArrayObj
	Rotate    int
	Ref       raw.ObjectRef
}

// pageRefMarker replaces a Kids slot once its leaf has been resolved, so
// repeat descents reuse the dictionary without going back to the loader.
type pageRefMarker struct {
	dict *raw.DictObj
	ref  raw.ObjectRef
}

func (pageRefMarker) Type() string     { return "pageref" }
func (pageRefMarker) IsIndirect() bool { return false }

// inherited carries the attributes a Pages node passes down to its kids.
type inherited struct {
	resources *raw.DictObj
	mediaBox  *raw.ArrayObj
	cropBox   *raw.ArrayObj
	rotate    int
	hasRotate bool
}

// merge folds a node's own attributes over the inherited set. Attribute
// values may themselves be indirect.
func (d *Document) merge(ctx context.Context, in inherited, dict *raw.DictObj) inherited {
	out := in
	if v, err := d.resolveKey(ctx, dict, "Resources"); err == nil {
		if dd, ok := v.(*raw.DictObj); ok {
			out.resources = dd
		}
	}
	if v, err := d.resolveKey(ctx, dict, "MediaBox"); err == nil {
		if arr, ok := v.(*raw.ArrayObj); ok {
			out.mediaBox = arr
		}
	}
	if v, err := d.resolveKey(ctx, dict, "CropBox"); err == nil {
		if arr, ok := v.(*raw.ArrayObj); ok {
			out.cropBox = arr
		}
	}
	if v, err := d.resolveKey(ctx, dict, "Rotate"); err == nil {
		if n, ok := v.(raw.NumberObj); ok {
			out.rotate = int(n.Int())
			out.hasRotate = true
		}
	}
	return out
}

func (d *Document) resolveKey(ctx context.Context, dict *raw.DictObj, key string) (raw.Object, error) {
	v, ok := dict.Lookup(key)
	if !ok {
		return nil, errors.Errorf("key %s absent", key)
	}
	return d.loader.Resolve(ctx, v)
}

// countPages resolves the page tree root and records /Count.
func (d *Document) countPages(ctx context.Context) error {
	pagesObj, ok := d.catalog.Lookup("Pages")
	if !ok {
		d.pageCount = 0
		return nil
	}
	resolved, err := d.loader.Resolve(ctx, pagesObj)
	if err != nil {
		return errors.Wrap(err, "page tree root")
	}
	root, ok := resolved.(*raw.DictObj)
	if !ok {
		return ErrPageTree
	}
	d.pagesRoot = root
	if v, ok := root.Lookup("Count"); ok {
		if n, ok := v.(raw.NumberObj); ok {
			d.pageCount = int(n.Int())
		}
	}
	if d.pageCount < 0 {
		d.pageCount = 0
	}
	return nil
}

// Page returns leaf i (zero-based). The descent uses each intermediate
// node's /Count to skip whole subtrees, so locating a page is O(depth)
// rather than a full-tree walk. Inherited attributes accumulate on the
// way down; the leaf's own entries win.
func (d *Document) Page(ctx context.Context, i int) (*Page, error) {
	if d.pagesRoot == nil || i < 0 || i >= d.pageCount {
		return nil, ErrPageOutOfRange
	}
	node := d.pagesRoot
	var pageRef raw.ObjectRef
	attrs := inherited{}
	remaining := i

	for depth := 0; ; depth++ {
		if depth > 100 {
			return nil, errors.Wrap(ErrPageTree, "page tree too deep")
		}
		attrs = d.merge(ctx, attrs, node)
		if typeNameOf(node) == "Page" {
			return buildPage(node, pageRef, attrs), nil
		}
		kidsObj, ok := node.Lookup("Kids")
		if !ok {
			return nil, ErrPageTree
		}
		kidsResolved, err := d.loader.Resolve(ctx, kidsObj)
		if err != nil {
			return nil, errors.Wrap(err, "page tree kids")
		}
		kids, ok := kidsResolved.(*raw.ArrayObj)
		if !ok {
			return nil, ErrPageTree
		}
		var next *raw.DictObj
		for k := 0; k < kids.Len(); k++ {
			kid, _ := kids.Get(k)
			var kd *raw.DictObj
			var ref raw.ObjectRef
			if m, ok := kid.(pageRefMarker); ok {
				kd, ref = m.dict, m.ref
			} else {
				if r, ok := kid.(raw.RefObj); ok {
					ref = r.R
				}
				kr, err := d.loader.Resolve(ctx, kid)
				if err != nil {
					return nil, errors.Wrapf(err, "page tree kid %d", k)
				}
				var ok bool
				kd, ok = kr.(*raw.DictObj)
				if !ok {
					continue
				}
				// first resolution memoizes into the Kids slot: leaves
				// become markers, intermediate nodes are stored direct
				switch typeNameOf(kd) {
				case "Page":
					kids.Items[k] = pageRefMarker{dict: kd, ref: ref}
				case "Pages":
					kids.Items[k] = kd
				}
			}
			span := 1
			if typeNameOf(kd) == "Pages" {
				span = kidCount(kd)
				if span <= 0 {
					// broken /Count; fall back to walking into the node
					span = 1
					if remaining == 0 {
						next = kd
						pageRef = ref
						break
					}
					remaining--
					continue
				}
			}
			if remaining < span {
				next = kd
				pageRef = ref
				break
			}
			remaining -= span
		}
		if next == nil {
			return nil, ErrPageTree
		}
		node = next
	}
}

func kidCount(node *raw.DictObj) int {
	if v, ok := node.Lookup("Count"); ok {
		if n, ok := v.(raw.NumberObj); ok {
			return int(n.Int())
		}
	}
	return -1
}

func buildPage(dict *raw.DictObj, ref raw.ObjectRef, attrs inherited) *Page {
	p := &Page{
		Dict:      dict,
		Resources: attrs.resources,
		MediaBox:  attrs.mediaBox,
		CropBox:   attrs.cropBox,
		Ref:       ref,
	}
	if attrs.hasRotate {
		p.Rotate = ((attrs.rotate % 360) + 360) % 360
	}
	return p
}

// WalkContents invokes fn with the decoded bytes of every content stream
// of the page, in order. /Contents may be one stream or an array.
func (d *Document) WalkContents(ctx context.Context, p *Page, fn func(data []byte) error) error {
	contObj, ok := p.Dict.Lookup("Contents")
	if !ok {
		return nil
	}
	resolved, err := d.loader.Resolve(ctx, contObj)
	if err != nil {
		return errors.Wrap(err, "page contents")
	}
	switch v := resolved.(type) {
	case *raw.StreamObj:
		return d.walkOne(ctx, v, fn)
	case *raw.ArrayObj:
		for k := 0; k < v.Len(); k++ {
			item, _ := v.Get(k)
			it, err := d.loader.Resolve(ctx, item)
			if err != nil {
				return errors.Wrapf(err, "page contents %d", k)
			}
			st, ok := it.(*raw.StreamObj)
			if !ok {
				continue
			}
			if err := d.walkOne(ctx, st, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Document) walkOne(ctx context.Context, st *raw.StreamObj, fn func([]byte) error) error {
	data, err := d.loader.DecodeStream(ctx, st)
	if err != nil {
		return err
	}
	return fn(data)
}
