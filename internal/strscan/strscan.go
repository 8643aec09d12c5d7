// Package strscan extracts printable ASCII and UTF-16LE strings from a
// buffer or a DMA-backed address range, the way the "strings" utility does
// for a file.
package strscan

import (
	"github.com/orpheus-re/orpheus/internal/chunkscan"
	"github.com/orpheus-re/orpheus/internal/dma"
	"github.com/orpheus-re/orpheus/internal/session"
)

// Encoding identifies how a Found string's raw bytes were decoded.
type Encoding int

const (
	ASCII Encoding = iota
	UTF16LE
)

func (e Encoding) String() string {
	if e == UTF16LE {
		return "utf16le"
	}
	return "ascii"
}

// Found is one extracted string.
type Found struct {
	Address   uint64
	Value     string
	Encoding  Encoding
	RawLength int
}

// Options configures a scan. Zero value is not directly usable; use
// DefaultOptions.
type Options struct {
	MinLength           int
	MaxLength           int
	ScanASCII           bool
	ScanUTF16LE         bool
	RequireNulTerminator bool
}

// DefaultOptions mirrors the defaults of the tool this package replaces.
func DefaultOptions() Options {
	return Options{
		MinLength:            4,
		MaxLength:            1024,
		ScanASCII:            true,
		ScanUTF16LE:          true,
		RequireNulTerminator: true,
	}
}

func isPrintableASCII(c byte) bool {
	return c >= 0x20 && c < 0x7F
}

func isPrintableUTF16(c uint16) bool {
	if c == 0x09 || c == 0x0A || c == 0x0D {
		return true
	}
	return c >= 0x20 && c < 0x7F
}

// scanASCII finds runs of printable ASCII bytes at least MinLength long.
func scanASCII(data []byte, base uint64, opts Options) []Found {
	var out []Found
	runStart := -1

	flush := func(end int) {
		if runStart < 0 {
			return
		}
		n := end - runStart
		if n >= opts.MinLength {
			terminated := end < len(data) && data[end] == 0
			if !opts.RequireNulTerminator || terminated {
				length := n
				if length > opts.MaxLength {
					length = opts.MaxLength
				}
				out = append(out, Found{
					Address:   base + uint64(runStart),
					Value:     string(data[runStart : runStart+length]),
					Encoding:  ASCII,
					RawLength: length,
				})
			}
		}
		runStart = -1
	}

	for i := 0; i <= len(data); i++ {
		if runStart >= 0 && i-runStart >= opts.MaxLength {
			flush(i)
		}
		if i < len(data) && isPrintableASCII(data[i]) {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flush(i)
	}
	return out
}

// scanUTF16LE finds runs of printable UTF-16LE code units at least
// MinLength characters long.
func scanUTF16LE(data []byte, base uint64, opts Options) []Found {
	var out []Found
	runStart := -1 // byte offset where the run began
	runChars := 0

	flush := func(endByte int) {
		if runStart < 0 {
			return
		}
		if runChars >= opts.MinLength {
			terminated := endByte+1 < len(data) && data[endByte] == 0 && data[endByte+1] == 0
			if !opts.RequireNulTerminator || terminated {
				chars := runChars
				if chars > opts.MaxLength {
					chars = opts.MaxLength
				}
				runes := make([]rune, 0, chars)
				for i := 0; i < chars; i++ {
					lo := data[runStart+i*2]
					hi := data[runStart+i*2+1]
					runes = append(runes, rune(uint16(hi)<<8|uint16(lo)))
				}
				out = append(out, Found{
					Address:   base + uint64(runStart),
					Value:     string(runes),
					Encoding:  UTF16LE,
					RawLength: chars * 2,
				})
			}
		}
		runStart = -1
		runChars = 0
	}

	i := 0
	for i+1 < len(data) {
		unit := uint16(data[i]) | uint16(data[i+1])<<8
		if isPrintableUTF16(unit) && runChars < opts.MaxLength {
			if runStart < 0 {
				runStart = i
			}
			runChars++
			i += 2
			continue
		}
		flush(i)
		i += 2
	}
	flush(len(data))
	return out
}

// Scan runs both passes over data and merges results, sorted and deduped
// by start address.
func Scan(data []byte, base uint64, opts Options) []Found {
	var out []Found
	if opts.ScanASCII {
		out = append(out, scanASCII(data, base, opts)...)
	}
	if opts.ScanUTF16LE {
		out = append(out, scanUTF16LE(data, base, opts)...)
	}

	for i := 1; i < len(out); i++ {
		v := out[i]
		j := i - 1
		for j >= 0 && out[j].Address > v.Address {
			out[j+1] = out[j]
			j--
		}
		out[j+1] = v
	}

	deduped := out[:0]
	var lastAddr uint64
	seen := false
	for _, f := range out {
		if seen && f.Address == lastAddr {
			continue
		}
		deduped = append(deduped, f)
		lastAddr = f.Address
		seen = true
	}
	return deduped
}

// RangeOptions configures a chunked scan over a DMA-backed address range.
type RangeOptions struct {
	ChunkSize int // defaults to 2MiB
}

// RangeResult reports a chunked scan's outcome.
type RangeResult struct {
	Found        []Found
	BytesScanned uint64
	Cancelled    bool
}

// ScanRange scans [base, base+size) in bounded chunks, carrying
// opts.MaxLength bytes of overlap across chunk boundaries so a string
// straddling a chunk boundary is not split in two.
func ScanRange(read dma.ReadFunc, base, size uint64, opts Options, rangeOpts RangeOptions, h *session.Handle) RangeResult {
	var res RangeResult
	overlap := opts.MaxLength

	chunkSize := rangeOpts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 2 << 20
	}

	chunkscan.Walk(read, base, size, chunkscan.Options{ChunkSize: chunkSize, Overlap: overlap},
		session.Cancelled(h),
		func(c chunkscan.Chunk) bool {
			res.BytesScanned += uint64(len(c.Data) - c.NewOffset)
			found := Scan(c.Data, c.Base, opts)
			newRegionStart := c.Base + uint64(c.NewOffset)
			chunkEnd := c.Base + uint64(len(c.Data))
			for _, f := range found {
				end := f.Address + uint64(f.RawLength)
				// A run that reaches the end of the buffer may continue in
				// the next read; the next chunk carries these bytes and
				// reports it whole.
				if end >= chunkEnd && chunkEnd < base+size {
					continue
				}
				// A hit that starts in the carried bytes and ends, its
				// terminator included, before the new region was already
				// reported by the previous chunk; drop every such hit, since
				// more than one string can fall in that window.
				term := uint64(1)
				if f.Encoding == UTF16LE {
					term = 2
				}
				if f.Address < newRegionStart && end+term <= newRegionStart {
					continue
				}
				res.Found = append(res.Found, f)
			}
			return false
		})

	if h != nil && h.Cancelled() {
		res.Cancelled = true
	}
	return res
}
