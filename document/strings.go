package document

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"pdflib/ir/raw"
)

// pdfDocEncoding maps the bytes of PDFDocEncoding that differ from
// Latin-1 onto their Unicode code points. Everything else maps straight
// through.
var pdfDocEncoding = map[byte]rune{
	0x18: '˘', 0x19: 'ˇ', 0x1A: 'ˆ', 0x1B: '˙',
	0x1C: '˝', 0x1D: '˛', 0x1E: '˚', 0x1F: '˜',
	0x80: '•', 0x81: '†', 0x82: '‡', 0x83: '…',
	0x84: '—', 0x85: '–', 0x86: 'ƒ', 0x87: '⁄',
	0x88: '‹', 0x89: '›', 0x8A: '−', 0x8B: '‰',
	0x8C: '„', 0x8D: '“', 0x8E: '”', 0x8F: '‘',
	0x90: '’', 0x91: '‚', 0x92: '™', 0x93: 'ﬁ',
	0x94: 'ﬂ', 0x95: 'Ł', 0x96: 'Œ', 0x97: 'Š',
	0x98: 'Ÿ', 0x99: 'Ž', 0x9A: 'ı', 0x9B: 'ł',
	0x9C: 'œ', 0x9D: 'š', 0x9E: 'ž', 0xA0: '€',
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)

// DecodeTextString converts a text string's raw bytes to UTF-8. A
// UTF-16BE BOM selects UTF-16; everything else is PDFDocEncoding.
func DecodeTextString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		out, err := utf16be.NewDecoder().Bytes(b)
		if err == nil {
			return string(out)
		}
	}
	var sb bytes.Buffer
	for _, c := range b {
		if r, ok := pdfDocEncoding[c]; ok {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(rune(c))
		}
	}
	return sb.String()
}

// Metadata carries the common entries of the information dictionary,
// already decoded to UTF-8.
type Metadata = raw.DocumentMetadata

// Info reads the /Info dictionary from the trailer. Absent entries come
// back empty; a missing or broken Info dictionary is not an error.
func (d *Document) Info(ctx context.Context) Metadata {
	var md Metadata
	info, err := d.DictGetDict(ctx, d.Trailer(), "Info")
	if err != nil || info == nil {
		return md
	}
	get := func(key string) string {
		b, err := d.DictGetString(ctx, info, key)
		if err != nil || b == nil {
			return ""
		}
		return DecodeTextString(b)
	}
	md.Title = get("Title")
	md.Author = get("Author")
	md.Subject = get("Subject")
	md.Keywords = splitKeywords(get("Keywords"))
	md.Creator = get("Creator")
	md.Producer = get("Producer")
	md.CreationDate = get("CreationDate")
	md.ModDate = get("ModDate")
	return md
}

// splitKeywords breaks the free-form /Keywords string on commas and
// semicolons, both of which appear in the wild.
func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
