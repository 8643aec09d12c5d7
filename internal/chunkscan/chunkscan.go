// Package chunkscan factors out the chunked-range-read-with-tail-carry
// protocol shared by the pattern, string, and RTTI range scanners: read a
// bounded window at a time, carry the last overlap-sized slice of bytes
// forward so matches that straddle a chunk boundary are not missed, and
// stop early on cancellation. An empty DMA read is treated as an unmapped
// chunk, not the end of the target: the walk skips past it and keeps
// going, since that's the common case against a live process's address
// space, not an exceptional one.
package chunkscan

import "github.com/orpheus-re/orpheus/internal/dma"

// Options configures one chunked walk over [base, base+size).
type Options struct {
	ChunkSize int // bytes read per DMA call
	Overlap   int // bytes of the previous chunk re-scanned with the next
}

// Cancelled is polled between chunks; nil means never cancel.
type Cancelled func() bool

// Chunk describes one scanned window, already carrying the overlap from
// the previous chunk so a callback can treat it as one contiguous buffer.
type Chunk struct {
	// Base is the address data[0] corresponds to.
	Base uint64
	Data []byte
	// NewOffset is the index into Data where bytes freshly read for this
	// chunk begin: the number of carried bytes, 0 on the first chunk and
	// after a skipped empty read, otherwise at most Overlap. Callers that
	// want to avoid reporting the same match twice on successive chunks
	// can skip match start offsets below NewOffset on non-first chunks,
	// though in practice a dedupe-by-address pass downstream is simpler.
	NewOffset int
}

// Walk reads [base, base+size) in Options.ChunkSize windows, calling fn
// once per window with the previous window's trailing Overlap bytes
// prepended. It stops when size is exhausted or cancel returns true. A
// chunk whose read comes back empty (an unmapped page, a momentarily busy
// backend) is skipped: the walk advances past it and continues with the
// next chunk rather than aborting the whole range.
func Walk(read dma.ReadFunc, base uint64, size uint64, opts Options, cancel Cancelled, fn func(Chunk) (stop bool)) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 2 << 20
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}

	var carry []byte
	offset := uint64(0)
	first := true

	for offset < size {
		if cancel != nil && cancel() {
			return
		}

		want := uint64(opts.ChunkSize)
		if remaining := size - offset; remaining < want {
			want = remaining
		}

		data := read(base+offset, int(want))
		if len(data) == 0 {
			// Unmapped or momentarily unreadable: nothing new to scan, and
			// whatever was carried no longer abuts the next read, so it
			// can't be glued to it either. Skip ahead instead of stopping.
			carry = nil
			offset += want
			continue
		}

		buf := make([]byte, 0, len(carry)+len(data))
		buf = append(buf, carry...)
		buf = append(buf, data...)

		chunkBase := base + offset - uint64(len(carry))
		newOffset := 0
		if !first {
			newOffset = len(carry)
		}

		if fn(Chunk{Base: chunkBase, Data: buf, NewOffset: newOffset}) {
			return
		}

		if opts.Overlap == 0 {
			carry = nil
		} else if len(buf) > opts.Overlap {
			carry = append([]byte(nil), buf[len(buf)-opts.Overlap:]...)
		} else {
			carry = append([]byte(nil), buf...)
		}

		offset += uint64(len(data))
		first = false
	}
}
