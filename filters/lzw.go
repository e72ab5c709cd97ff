package filters

import (
	"bytes"
	"context"
	"io"

	"github.com/hhrutter/lzw"

	"pdflib/ir/raw"
)

// LZWDecode. The stdlib compress/lzw cannot honor /EarlyChange, which PDF
// writers default to 1, so the PDF-aware fork is used instead.
type lzwDecoder struct{}

func NewLZWDecoder() Decoder    { return lzwDecoder{} }
func (lzwDecoder) Name() string { return "LZWDecode" }

func (lzwDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	earlyChange := intParam(params, "EarlyChange", 1)
	r := lzw.NewReader(bytes.NewReader(in), earlyChange == 1)
	defer r.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil && out.Len() == 0 {
		return nil, err
	}
	return applyPredictor(out.Bytes(), params)
}
