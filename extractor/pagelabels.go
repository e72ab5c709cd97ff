package extractor

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"pdflib/ir/raw"
)

// labelRange is one /PageLabels entry: pages from start up to the next
// range get prefix plus a number in the given style, counting from first.
type labelRange struct {
	start  int
	style  string
	prefix string
	first  int
}

// collectPageLabels evaluates the catalog's /PageLabels number tree.
// Every page starts with its one-based number; labelled ranges override.
func (e *Extractor) collectPageLabels(ctx context.Context) map[int]string {
	out := make(map[int]string, len(e.pages))
	for i := range e.pages {
		out[i] = strconv.Itoa(i + 1)
	}
	tree := e.dictAt(ctx, e.doc.Catalog(), "PageLabels")
	if tree == nil {
		return out
	}
	var ranges []labelRange
	e.walkNumberTree(ctx, tree, 0, func(idx int, value raw.Object) {
		resolved, err := e.doc.Resolve(ctx, value)
		if err != nil {
			return
		}
		dict, ok := resolved.(*raw.DictObj)
		if !ok {
			return
		}
		r := labelRange{start: idx, first: 1}
		r.style = e.nameAt(ctx, dict, "S")
		r.prefix = e.textAt(ctx, dict, "P")
		if st, ok := e.intAt(ctx, dict, "St"); ok && st >= 1 {
			r.first = int(st)
		}
		ranges = append(ranges, r)
	})
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
	for ri, r := range ranges {
		end := len(e.pages)
		if ri+1 < len(ranges) && ranges[ri+1].start < end {
			end = ranges[ri+1].start
		}
		for p := r.start; p < end; p++ {
			if p < 0 {
				continue
			}
			out[p] = r.prefix + formatPageNumber(r.style, r.first+(p-r.start))
		}
	}
	return out
}

// walkNumberTree visits leaf (key, value) pairs of a number tree.
func (e *Extractor) walkNumberTree(ctx context.Context, node *raw.DictObj, depth int, fn func(int, raw.Object)) {
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
				e.walkNumberTree(ctx, kid, depth+1, fn)
			}
		}
		return
	}
	pairs := e.arrayAt(ctx, node, "Nums")
	if pairs == nil {
		return
	}
	for i := 0; i+1 < pairs.Len(); i += 2 {
		keyObj, _ := pairs.Get(i)
		value, _ := pairs.Get(i + 1)
		n, ok := keyObj.(raw.NumberObj)
		if !ok || !n.IsInt {
			continue
		}
		fn(int(n.I), value)
	}
}

// formatPageNumber renders n in a page label numbering style. An empty
// style means the range is prefix-only.
func formatPageNumber(style string, n int) string {
	switch style {
	case "D":
		return strconv.Itoa(n)
	case "R":
		return toRoman(n)
	case "r":
		return strings.ToLower(toRoman(n))
	case "A":
		return toAlpha(n)
	case "a":
		return strings.ToLower(toAlpha(n))
	}
	return ""
}

var romanValues = []struct {
	v int
	s string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

func toRoman(n int) string {
	if n <= 0 {
		return ""
	}
	var sb strings.Builder
	for _, rv := range romanValues {
		for n >= rv.v {
			sb.WriteString(rv.s)
			n -= rv.v
		}
	}
	return sb.String()
}

// toAlpha counts A..Z, then AA..ZZ, then AAA and so on.
func toAlpha(n int) string {
	if n <= 0 {
		return ""
	}
	letter := byte('A' + (n-1)%26)
	reps := (n-1)/26 + 1
	return strings.Repeat(string(letter), reps)
}
