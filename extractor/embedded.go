package extractor

import (
	"context"

	"pdflib/ir/raw"
)

// EmbeddedFile is one attachment from the EmbeddedFiles name tree, with
// its payload already run through the stream's filter chain.
type EmbeddedFile struct {
	Name         string
	Description  string
	Relationship string
	Data         []byte
}

const maxNameTreeDepth = 32

// EmbeddedFiles walks the catalog's EmbeddedFiles name tree, including
// intermediate /Kids nodes.
func (e *Extractor) EmbeddedFiles(ctx context.Context) ([]EmbeddedFile, error) {
	names := e.dictAt(ctx, e.doc.Catalog(), "Names")
	if names == nil {
		return nil, nil
	}
	tree := e.dictAt(ctx, names, "EmbeddedFiles")
	if tree == nil {
		return nil, nil
	}
	var files []EmbeddedFile
	e.walkNameTree(ctx, tree, 0, func(name string, value raw.Object) {
		spec, err := e.doc.Resolve(ctx, value)
		if err != nil {
			return
		}
		dict, ok := spec.(*raw.DictObj)
		if !ok {
			return
		}
		f := EmbeddedFile{
			Name:         name,
			Description:  e.textAt(ctx, dict, "Desc"),
			Relationship: e.nameAt(ctx, dict, "AFRelationship"),
		}
		f.Data = e.embeddedPayload(ctx, dict)
		files = append(files, f)
	})
	return files, nil
}

// walkNameTree visits the leaf (name, value) pairs in tree order.
func (e *Extractor) walkNameTree(ctx context.Context, node *raw.DictObj, depth int, fn func(string, raw.Object)) {
	if node == nil || depth > maxNameTreeDepth {
		return
	}
	if kids := e.arrayAt(ctx, node, "Kids"); kids != nil {
		for k := 0; k < kids.Len(); k++ {
			item, _ := kids.Get(k)
			resolved, err := e.doc.Resolve(ctx, item)
			if err != nil {
				continue
			}
			if kid, ok := resolved.(*raw.DictObj); ok {
				e.walkNameTree(ctx, kid, depth+1, fn)
			}
		}
		return
	}
	pairs := e.arrayAt(ctx, node, "Names")
	if pairs == nil {
		return
	}
	for i := 0; i+1 < pairs.Len(); i += 2 {
		nameObj, _ := pairs.Get(i)
		value, _ := pairs.Get(i + 1)
		s, ok := nameObj.(raw.StringObj)
		if !ok {
			continue
		}
		fn(string(s.Bytes), value)
	}
}

// embeddedPayload finds the stream behind a file spec: /EF /F first, then
// /EF /UF, then a bare /F stream for pre-1.3 specs.
func (e *Extractor) embeddedPayload(ctx context.Context, spec *raw.DictObj) []byte {
	if ef := e.dictAt(ctx, spec, "EF"); ef != nil {
		for _, key := range []string{"F", "UF"} {
			if data := e.streamPayload(ctx, ef, key); data != nil {
				return data
			}
		}
		return nil
	}
	return e.streamPayload(ctx, spec, "F")
}

func (e *Extractor) streamPayload(ctx context.Context, dict *raw.DictObj, key string) []byte {
	st, err := e.doc.DictGetStream(ctx, dict, key)
	if err != nil || st == nil {
		return nil
	}
	data, err := e.doc.DecodeStream(ctx, st)
	if err != nil {
		return nil
	}
	return data
}
