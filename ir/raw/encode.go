package raw

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Format serializes an object back into token syntax. The output is valid
// input for the scanner, so parse(Format(x)) is structurally equal to x.
func Format(obj Object) []byte {
	var buf bytes.Buffer
	writeObject(&buf, obj)
	return buf.Bytes()
}

func writeObject(buf *bytes.Buffer, obj Object) {
	switch o := obj.(type) {
	case NullObj:
		buf.WriteString("null")
	case BoolObj:
		if o.V {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case NumberObj:
		if o.IsInt {
			buf.WriteString(strconv.FormatInt(o.I, 10))
		} else {
			buf.WriteString(strconv.FormatFloat(o.F, 'f', -1, 64))
		}
	case NameObj:
		writeName(buf, o.Val)
	case StringObj:
		if o.Hex {
			buf.WriteByte('<')
			for _, b := range o.Bytes {
				fmt.Fprintf(buf, "%02X", b)
			}
			buf.WriteByte('>')
		} else {
			writeLiteralString(buf, o.Bytes)
		}
	case RefObj:
		fmt.Fprintf(buf, "%d %d R", o.R.Num, o.R.Gen)
	case *ArrayObj:
		buf.WriteByte('[')
		for i, item := range o.Items {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeObject(buf, item)
		}
		buf.WriteByte(']')
	case *DictObj:
		writeDict(buf, o)
	case *StreamObj:
		writeDict(buf, o.Dict)
		buf.WriteString("\nstream\n")
		buf.Write(o.Data)
		buf.WriteString("\nendstream")
	case KeywordObj:
		buf.WriteString(o.Val)
	default:
		buf.WriteString("null")
	}
}

func writeDict(buf *bytes.Buffer, d *DictObj) {
	buf.WriteString("<<")
	// deterministic output for comparison and tests
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(' ')
		writeName(buf, k)
		buf.WriteByte(' ')
		writeObject(buf, d.KV[k])
	}
	buf.WriteString(" >>")
}

func writeName(buf *bytes.Buffer, val string) {
	buf.WriteByte('/')
	for i := 0; i < len(val); i++ {
		c := val[i]
		if c < '!' || c > '~' || c == '#' || isDelimiterByte(c) {
			fmt.Fprintf(buf, "#%02X", c)
		} else {
			buf.WriteByte(c)
		}
	}
}

func writeLiteralString(buf *bytes.Buffer, data []byte) {
	buf.WriteByte('(')
	for _, b := range data {
		switch b {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			if b < 0x20 || b >= 0x7f {
				fmt.Fprintf(buf, `\%03o`, b)
			} else {
				buf.WriteByte(b)
			}
		}
	}
	buf.WriteByte(')')
}

func isDelimiterByte(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// Equal reports structural equality. Numbers compare numerically, strings
// and names byte-for-byte; the hex/literal written form is not significant.
func Equal(a, b Object) bool {
	switch x := a.(type) {
	case NullObj:
		_, ok := b.(NullObj)
		return ok
	case BoolObj:
		y, ok := b.(BoolObj)
		return ok && x.V == y.V
	case NumberObj:
		y, ok := b.(NumberObj)
		if !ok {
			return false
		}
		if x.IsInt && y.IsInt {
			return x.I == y.I
		}
		return x.Float() == y.Float()
	case NameObj:
		y, ok := b.(NameObj)
		return ok && x.Val == y.Val
	case StringObj:
		y, ok := b.(StringObj)
		return ok && bytes.Equal(x.Bytes, y.Bytes)
	case RefObj:
		y, ok := b.(RefObj)
		return ok && x.R == y.R
	case KeywordObj:
		y, ok := b.(KeywordObj)
		return ok && x.Val == y.Val && x.Kind == y.Kind
	case *ArrayObj:
		y, ok := b.(*ArrayObj)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !Equal(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	case *DictObj:
		y, ok := b.(*DictObj)
		return ok && dictEqual(x, y)
	case *StreamObj:
		y, ok := b.(*StreamObj)
		return ok && dictEqual(x.Dict, y.Dict) && bytes.Equal(x.Data, y.Data)
	}
	return false
}

func dictEqual(a, b *DictObj) bool {
	if len(a.KV) != len(b.KV) {
		return false
	}
	for k, va := range a.KV {
		vb, ok := b.KV[k]
		if !ok || !Equal(va, vb) {
			return false
		}
	}
	return true
}
