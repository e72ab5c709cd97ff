package filters

import (
	"errors"

	"pdflib/ir/raw"
)

// applyPredictor undoes the /Predictor stage declared in DecodeParms for
// FlateDecode and LZWDecode data. Predictor 1 is the identity, 2 is TIFF
// horizontal differencing, 10 and up are the PNG per-row filters.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	predictor := intParam(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)
	if colors < 1 || bpc < 1 || columns < 1 {
		return nil, errors.New("predictor: bad parameters")
	}
	bpp := (colors*bpc + 7) / 8 // bytes per pixel, rounded up
	rowLen := (colors*bpc*columns + 7) / 8

	if predictor == 2 {
		return tiffPredictor(data, colors, bpc, columns, rowLen)
	}
	if predictor >= 10 {
		return pngPredictor(data, bpp, rowLen)
	}
	return nil, errors.New("predictor: unsupported value")
}

func tiffPredictor(data []byte, colors, bpc, columns, rowLen int) ([]byte, error) {
	if bpc != 8 {
		// sub-byte TIFF differencing is vanishingly rare; reject rather
		// than silently corrupt
		return nil, errors.New("predictor: TIFF differencing requires 8 bits per component")
	}
	out := append([]byte(nil), data...)
	for row := 0; row+rowLen <= len(out); row += rowLen {
		for i := colors; i < rowLen; i++ {
			out[row+i] += out[row+i-colors]
		}
	}
	return out, nil
}

func pngPredictor(data []byte, bpp, rowLen int) ([]byte, error) {
	// each row is prefixed with a filter-type byte
	stride := rowLen + 1
	if len(data)%stride != 0 {
		return nil, errors.New("predictor: data does not divide into rows")
	}
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		ft := data[r*stride]
		copy(cur, data[r*stride+1:(r+1)*stride])
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = cur[i-bpp]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = cur[i-bpp]
					upLeft = prev[i-bpp]
				}
				cur[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, errors.New("predictor: bad PNG filter type")
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
