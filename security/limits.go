package security

import "time"

// Limits bounds resource use while parsing. They guard against crafted
// files (decompression bombs, unbounded reference chains) rather than
// against honest size.
type Limits struct {
	// Maximum decompressed stream size. Default: 100 MB.
	MaxDecompressedSize int64

	// Maximum reference chain length during Resolve. Default: 100.
	MaxIndirectDepth int

	// Maximum xref chain depth across /Prev links. Default: 50.
	MaxXRefDepth int

	// Maximum string length in bytes. Default: 10 MB.
	MaxStringLength int64

	// Maximum raw stream length in bytes. Default: 50 MB.
	MaxStreamLength int64

	// Maximum distance to scan for a lost endstream marker. Default: 50 MB.
	MaxStreamScan int64

	// Maximum decode time per stream. Default: 30s.
	MaxDecodeTime time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 100 * 1024 * 1024,
		MaxIndirectDepth:    100,
		MaxXRefDepth:        50,
		MaxStringLength:     10 * 1024 * 1024,
		MaxStreamLength:     50 * 1024 * 1024,
		MaxStreamScan:       50 * 1024 * 1024,
		MaxDecodeTime:       30 * time.Second,
	}
}
