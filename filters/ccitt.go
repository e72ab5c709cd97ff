package filters

import (
	"bytes"
	"context"
	"io"

	"golang.org/x/image/ccitt"

	"pdflib/ir/raw"
)

// CCITTFaxDecode, Group 3 and Group 4 bi-level image data.
type ccittFaxDecoder struct{}

func NewCCITTFaxDecoder() Decoder    { return ccittFaxDecoder{} }
func (ccittFaxDecoder) Name() string { return "CCITTFaxDecode" }

func (ccittFaxDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	columns := intParam(params, "Columns", 1728)
	rows := intParam(params, "Rows", 0)
	k := intParam(params, "K", 0)
	blackIs1 := boolParam(params, "BlackIs1", false)
	byteAlign := boolParam(params, "EncodedByteAlign", false)

	sf := ccitt.Group3
	if k < 0 {
		sf = ccitt.Group4
	}
	if rows == 0 {
		rows = ccitt.AutoDetectHeight
	}
	opts := &ccitt.Options{Invert: blackIs1, Align: byteAlign}
	r := ccitt.NewReader(bytes.NewReader(in), ccitt.MSB, sf, columns, rows, opts)
	return io.ReadAll(r)
}
