package extractor

import (
	"context"

	"github.com/pkg/errors"

	"pdflib/ir/raw"
)

// Annotation summarizes one page annotation.
type Annotation struct {
	Page     int
	Subtype  string
	Rect     [4]float64
	Contents string
	URI      string
	Flags    int
	Color    []float64
}

// Annotations walks /Annots on every page.
func (e *Extractor) Annotations(ctx context.Context) ([]Annotation, error) {
	var out []Annotation
	for idx, page := range e.pages {
		arr := e.arrayAt(ctx, page.dict, "Annots")
		if arr == nil {
			continue
		}
		for k := 0; k < arr.Len(); k++ {
			item, _ := arr.Get(k)
			resolved, err := e.doc.Resolve(ctx, item)
			if err != nil {
				return nil, errors.Wrapf(err, "page %d annotation %d", idx, k)
			}
			dict, ok := resolved.(*raw.DictObj)
			if !ok {
				continue
			}
			a := Annotation{
				Page:     idx,
				Subtype:  e.nameAt(ctx, dict, "Subtype"),
				Rect:     e.rectAt(ctx, dict, "Rect"),
				Contents: e.textAt(ctx, dict, "Contents"),
				Color:    floatItems(e.arrayAt(ctx, dict, "C")),
			}
			if f, ok := e.intAt(ctx, dict, "F"); ok {
				a.Flags = int(f)
			}
			a.URI = e.actionURI(ctx, dict)
			out = append(out, a)
		}
	}
	return out, nil
}

// actionURI digs the target out of a /URI action, if the annotation has one.
func (e *Extractor) actionURI(ctx context.Context, annot *raw.DictObj) string {
	action := e.dictAt(ctx, annot, "A")
	if action == nil {
		return ""
	}
	if e.nameAt(ctx, action, "S") != "URI" {
		return ""
	}
	return e.textAt(ctx, action, "URI")
}
