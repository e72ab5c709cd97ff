package extractor

import (
	"context"
	"sort"

	"pdflib/ir/raw"
)

// FontInfo describes one distinct font dictionary and where it is used.
type FontInfo struct {
	ResourceName string
	BaseFont     string
	Subtype      string
	Encoding     string
	HasToUnicode bool
	Pages        []int
}

// Fonts reports the distinct fonts referenced from page resources.
// Identity is the font dictionary itself: the same font reached from ten
// pages appears once, with all ten page indices.
func (e *Extractor) Fonts(ctx context.Context) []FontInfo {
	fontMap := make(map[*raw.DictObj]*FontInfo)
	for idx, page := range e.pages {
		// resources come pre-merged with the page tree's inherited set
		if page.resources == nil {
			continue
		}
		fonts := e.dictAt(ctx, page.resources, "Font")
		if fonts == nil {
			continue
		}
		for name, obj := range fonts.KV {
			resolved, err := e.doc.Resolve(ctx, obj)
			if err != nil {
				continue
			}
			dict, ok := resolved.(*raw.DictObj)
			if !ok {
				continue
			}
			info, seen := fontMap[dict]
			if !seen {
				info = &FontInfo{
					ResourceName: name,
					BaseFont:     e.nameAt(ctx, dict, "BaseFont"),
					Subtype:      e.nameAt(ctx, dict, "Subtype"),
					Encoding:     e.nameAt(ctx, dict, "Encoding"),
					HasToUnicode: e.hasStream(ctx, dict, "ToUnicode"),
				}
				fontMap[dict] = info
			}
			if !containsInt(info.Pages, idx) {
				info.Pages = append(info.Pages, idx)
			}
		}
	}
	out := make([]FontInfo, 0, len(fontMap))
	for _, info := range fontMap {
		sort.Ints(info.Pages)
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BaseFont == out[j].BaseFont {
			return out[i].ResourceName < out[j].ResourceName
		}
		return out[i].BaseFont < out[j].BaseFont
	})
	return out
}

func (e *Extractor) hasStream(ctx context.Context, dict *raw.DictObj, key string) bool {
	st, err := e.doc.DictGetStream(ctx, dict, key)
	return err == nil && st != nil
}

func containsInt(values []int, v int) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
