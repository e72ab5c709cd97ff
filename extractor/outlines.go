package extractor

import (
	"context"

	"pdflib/ir/raw"
)

// Bookmark is one outline entry. Page is -1 when the destination could
// not be resolved to a page.
type Bookmark struct {
	Title    string
	Page     int
	Children []Bookmark
}

// TOCEntry is a flattened bookmark with its page label and nesting depth.
type TOCEntry struct {
	Title string
	Page  int
	Label string
	Depth int
}

// maxOutlineNodes caps the walk; real outline trees with broken /Next
// links can cycle.
const maxOutlineNodes = 10000

// Bookmarks walks the document outline tree.
func (e *Extractor) Bookmarks(ctx context.Context) []Bookmark {
	outlines := e.dictAt(ctx, e.doc.Catalog(), "Outlines")
	if outlines == nil {
		return nil
	}
	budget := maxOutlineNodes
	return e.outlineBranch(ctx, outlines, "First", &budget)
}

// TableOfContents flattens the outline and attaches page labels.
func (e *Extractor) TableOfContents(ctx context.Context) []TOCEntry {
	var entries []TOCEntry
	var walk func(items []Bookmark, depth int)
	walk = func(items []Bookmark, depth int) {
		for _, item := range items {
			label := ""
			if item.Page >= 0 {
				label = e.labels[item.Page]
			}
			entries = append(entries, TOCEntry{
				Title: item.Title,
				Page:  item.Page,
				Label: label,
				Depth: depth,
			})
			walk(item.Children, depth+1)
		}
	}
	walk(e.Bookmarks(ctx), 0)
	return entries
}

func (e *Extractor) outlineBranch(ctx context.Context, parent *raw.DictObj, key string, budget *int) []Bookmark {
	var list []Bookmark
	node := e.dictAt(ctx, parent, key)
	for node != nil {
		if *budget <= 0 {
			break
		}
		*budget--
		b := Bookmark{
			Title: e.textAt(ctx, node, "Title"),
			Page:  e.destPage(ctx, node),
		}
		b.Children = e.outlineBranch(ctx, node, "First", budget)
		list = append(list, b)
		node = e.dictAt(ctx, node, "Next")
	}
	return list
}

// destPage resolves /Dest, or the /D of a GoTo action, to a page index.
func (e *Extractor) destPage(ctx context.Context, node *raw.DictObj) int {
	if v, ok := node.Lookup("Dest"); ok {
		return e.resolveDest(ctx, v)
	}
	action := e.dictAt(ctx, node, "A")
	if action == nil || e.nameAt(ctx, action, "S") != "GoTo" {
		return -1
	}
	if v, ok := action.Lookup("D"); ok {
		return e.resolveDest(ctx, v)
	}
	return -1
}

func (e *Extractor) resolveDest(ctx context.Context, obj raw.Object) int {
	var ref raw.ObjectRef
	if r, ok := obj.(raw.RefObj); ok {
		ref = r.R
	}
	resolved, err := e.doc.Resolve(ctx, obj)
	if err != nil {
		return -1
	}
	switch v := resolved.(type) {
	case *raw.ArrayObj:
		// explicit destination: [page /XYZ x y z] and friends
		if v.Len() == 0 {
			return -1
		}
		first, _ := v.Get(0)
		return e.resolveDest(ctx, first)
	case *raw.DictObj:
		return e.pageIndexOf(ref, v)
	}
	// named destinations live in the catalog's name tree; not followed here
	return -1
}
