package extractor

import (
	"context"

	"pdflib/document"
	"pdflib/ir/raw"
)

// Form is the document's interactive form.
type Form struct {
	NeedAppearances bool
	Fields          []FormField
}

// FormField is one terminal field. Type carries the /FT name (Tx, Btn,
// Ch, Sig), inherited from the parent when the node omits it.
type FormField struct {
	Name    string
	Type    string
	Value   string
	Flags   int64
	Rect    [4]float64
	Options []string
	MaxLen  int64
}

const (
	fieldFlagRadio = 1 << 15
	fieldFlagPush  = 1 << 16
	fieldFlagCombo = 1 << 17
	maxFieldDepth  = 50
)

// IsPushButton reports a /Btn field with the pushbutton flag.
func (f FormField) IsPushButton() bool { return f.Type == "Btn" && f.Flags&fieldFlagPush != 0 }

// IsRadio reports a /Btn field with the radio flag.
func (f FormField) IsRadio() bool { return f.Type == "Btn" && f.Flags&fieldFlagRadio != 0 }

// IsCheckbox reports a /Btn field that is neither push nor radio.
func (f FormField) IsCheckbox() bool {
	return f.Type == "Btn" && f.Flags&(fieldFlagPush|fieldFlagRadio) == 0
}

// IsComboBox reports a /Ch field with the combo flag.
func (f FormField) IsComboBox() bool { return f.Type == "Ch" && f.Flags&fieldFlagCombo != 0 }

// AcroForm reads /AcroForm from the catalog. A document without a form
// returns (nil, nil).
func (e *Extractor) AcroForm(ctx context.Context) (*Form, error) {
	dict := e.dictAt(ctx, e.doc.Catalog(), "AcroForm")
	if dict == nil {
		return nil, nil
	}
	form := &Form{}
	if na, ok, err := e.doc.DictGetBool(ctx, dict, "NeedAppearances"); err == nil && ok {
		form.NeedAppearances = na
	}
	fields := e.arrayAt(ctx, dict, "Fields")
	if fields == nil {
		return form, nil
	}
	for k := 0; k < fields.Len(); k++ {
		item, _ := fields.Get(k)
		e.walkField(ctx, item, "", 0, &form.Fields)
	}
	return form, nil
}

// walkField descends the field hierarchy. A node with /T is a field; its
// kids inherit the effective /FT.
func (e *Extractor) walkField(ctx context.Context, obj raw.Object, parentFT string, depth int, out *[]FormField) {
	if depth > maxFieldDepth {
		return
	}
	resolved, err := e.doc.Resolve(ctx, obj)
	if err != nil {
		return
	}
	dict, ok := resolved.(*raw.DictObj)
	if !ok {
		return
	}
	ft := e.nameAt(ctx, dict, "FT")
	if ft == "" {
		ft = parentFT
	}
	if _, hasName := dict.Lookup("T"); hasName {
		*out = append(*out, e.fieldAt(ctx, dict, ft))
	}
	if kids := e.arrayAt(ctx, dict, "Kids"); kids != nil {
		for k := 0; k < kids.Len(); k++ {
			kid, _ := kids.Get(k)
			e.walkField(ctx, kid, ft, depth+1, out)
		}
	}
}

func (e *Extractor) fieldAt(ctx context.Context, dict *raw.DictObj, ft string) FormField {
	f := FormField{
		Name: e.textAt(ctx, dict, "T"),
		Type: ft,
		Rect: e.rectAt(ctx, dict, "Rect"),
	}
	if flags, ok := e.intAt(ctx, dict, "Ff"); ok {
		f.Flags = flags
	}
	f.Value = e.fieldValue(ctx, dict)
	switch ft {
	case "Tx":
		if ml, ok := e.intAt(ctx, dict, "MaxLen"); ok {
			f.MaxLen = ml
		}
	case "Ch":
		f.Options = e.choiceOptions(ctx, dict)
	}
	return f
}

// fieldValue reads /V, which is a string for text and choice fields and a
// name for buttons.
func (e *Extractor) fieldValue(ctx context.Context, dict *raw.DictObj) string {
	v, ok := dict.Lookup("V")
	if !ok {
		return ""
	}
	resolved, err := e.doc.Resolve(ctx, v)
	if err != nil {
		return ""
	}
	switch val := resolved.(type) {
	case raw.StringObj:
		return document.DecodeTextString(val.Bytes)
	case raw.NameObj:
		return val.Val
	}
	return ""
}

// choiceOptions flattens /Opt: entries may be plain strings or
// [export display] pairs, in which case the display string is kept.
func (e *Extractor) choiceOptions(ctx context.Context, dict *raw.DictObj) []string {
	arr := e.arrayAt(ctx, dict, "Opt")
	if arr == nil {
		return nil
	}
	var out []string
	for k := 0; k < arr.Len(); k++ {
		item, _ := arr.Get(k)
		switch v := item.(type) {
		case raw.StringObj:
			out = append(out, document.DecodeTextString(v.Bytes))
		case *raw.ArrayObj:
			if v.Len() == 2 {
				if s, ok := v.Items[1].(raw.StringObj); ok {
					out = append(out, document.DecodeTextString(s.Bytes))
				}
			}
		}
	}
	return out
}
