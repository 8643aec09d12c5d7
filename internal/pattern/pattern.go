// Package pattern implements IDA-style masked byte-pattern compilation and
// scanning: "48 8B 05 ?? ?? ?? ??" against an in-memory buffer or a
// DMA-backed address range.
package pattern

import (
	"fmt"
	"strings"

	"github.com/orpheus-re/orpheus/internal/chunkscan"
	"github.com/orpheus-re/orpheus/internal/dma"
	"github.com/orpheus-re/orpheus/internal/session"
)

// Compiled is a pattern ready to scan: a byte per position plus a mask of
// which positions must match exactly.
type Compiled struct {
	Name     string
	Original string
	Bytes    []byte
	Mask     []bool
}

// Valid reports whether the pattern has at least one byte and matching
// slice lengths.
func (p *Compiled) Valid() bool {
	return p != nil && len(p.Bytes) > 0 && len(p.Bytes) == len(p.Mask)
}

// Compile parses an IDA-style pattern string. Whitespace is stripped,
// letters are case-folded, and each pair of characters becomes one byte
// cell: "??", "**", "xx"/"XX", or a pair containing a lone '?'/'*' is a
// wildcard; anything else must be a valid hex pair.
func Compile(text string, name string) (*Compiled, error) {
	var cleaned strings.Builder
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		cleaned.WriteRune(r)
	}
	clean := strings.ToUpper(cleaned.String())

	if clean == "" || len(clean)%2 != 0 {
		return nil, fmt.Errorf("invalid pattern %q: empty or odd length", text)
	}

	p := &Compiled{Name: name, Original: text}
	for i := 0; i < len(clean); i += 2 {
		c1, c2 := clean[i], clean[i+1]

		switch {
		case (c1 == '?' && c2 == '?') || (c1 == '*' && c2 == '*') || (c1 == 'X' && c2 == 'X'):
			p.Bytes = append(p.Bytes, 0)
			p.Mask = append(p.Mask, false)
		case c1 == '?' || c1 == '*' || c2 == '?' || c2 == '*':
			p.Bytes = append(p.Bytes, 0)
			p.Mask = append(p.Mask, false)
		default:
			hi, ok1 := hexNibble(c1)
			lo, ok2 := hexNibble(c2)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("invalid pattern %q: bad hex pair %q", text, clean[i:i+2])
			}
			p.Bytes = append(p.Bytes, byte(hi<<4|lo))
			p.Mask = append(p.Mask, true)
		}
	}

	if !p.Valid() {
		return nil, fmt.Errorf("invalid pattern %q", text)
	}
	return p, nil
}

func hexNibble(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}

// matchAt reports whether pattern matches data starting at pos.
func (p *Compiled) matchAt(data []byte, pos int) bool {
	if pos+len(p.Bytes) > len(data) {
		return false
	}
	for i, want := range p.Bytes {
		if p.Mask[i] && data[pos+i] != want {
			return false
		}
	}
	return true
}

// Scan finds every occurrence of p in data, naively (O(|data|*|pattern|),
// as required: this tool trades raw throughput for a scanner simple enough
// to trust against adversarial or corrupted memory). maxResults caps the
// result count; 0 means unlimited.
func (p *Compiled) Scan(data []byte, base uint64, maxResults int) []uint64 {
	var out []uint64
	if !p.Valid() || len(data) == 0 {
		return out
	}

	end := len(data) - len(p.Bytes) + 1
	for i := 0; i < end; i++ {
		if p.matchAt(data, i) {
			out = append(out, base+uint64(i))
			if maxResults > 0 && len(out) >= maxResults {
				break
			}
		}
	}
	return out
}

// FindFirst returns the first match address, if any.
func (p *Compiled) FindFirst(data []byte, base uint64) (uint64, bool) {
	res := p.Scan(data, base, 1)
	if len(res) == 0 {
		return 0, false
	}
	return res[0], true
}

// QuickScan compiles text on the fly and scans data with it.
func QuickScan(data []byte, text string, base uint64) ([]uint64, error) {
	p, err := Compile(text, "")
	if err != nil {
		return nil, err
	}
	return p.Scan(data, base, 0), nil
}

// Match is one hit from ScanMultiple: an address plus the bytes around it.
type Match struct {
	Address uint64
	Pattern string
	Context []byte
}

// ScanMultiple scans data for every pattern in one pass over the buffer,
// bounded by the shortest pattern's length (a longer pattern simply never
// matches past where its own tail would run off the buffer — checked in
// matchAt). contextRadius bytes on each side of a match are captured,
// clamped to the buffer bounds.
func ScanMultiple(data []byte, patterns []*Compiled, base uint64, contextRadius int) []Match {
	var out []Match
	if len(data) == 0 || len(patterns) == 0 {
		return out
	}

	minLen := -1
	for _, p := range patterns {
		if !p.Valid() {
			continue
		}
		if minLen == -1 || len(p.Bytes) < minLen {
			minLen = len(p.Bytes)
		}
	}
	if minLen == -1 {
		return out
	}

	end := len(data) - minLen + 1
	for i := 0; i < end; i++ {
		for _, p := range patterns {
			if !p.Valid() || !p.matchAt(data, i) {
				continue
			}
			ctxStart := clamp(i-contextRadius, 0, len(data))
			ctxEnd := clamp(i+len(p.Bytes)+contextRadius, 0, len(data))
			ctx := append([]byte(nil), data[ctxStart:ctxEnd]...)
			out = append(out, Match{
				Address: base + uint64(i),
				Pattern: p.Name,
				Context: ctx,
			})
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RangeOptions configures a chunked scan over a DMA-backed address range.
type RangeOptions struct {
	ChunkSize  int // defaults to 2MiB
	MaxResults int // 0 = unlimited
}

// RangeResult reports a chunked scan's outcome.
type RangeResult struct {
	Addresses    []uint64
	BytesScanned uint64
	Cancelled    bool
}

// ScanRange scans [base, base+size) read through read in bounded chunks,
// carrying len(pattern)-1 bytes of overlap across chunk boundaries so a
// match straddling two chunks is never missed. An empty DMA read (an
// unmapped chunk) is skipped rather than ending the scan, and session
// cancellation is polled once per chunk.
func (p *Compiled) ScanRange(read dma.ReadFunc, base, size uint64, opts RangeOptions, h *session.Handle) RangeResult {
	var res RangeResult
	if !p.Valid() {
		return res
	}

	overlap := len(p.Bytes) - 1
	chunkscan.Walk(read, base, size, chunkscan.Options{ChunkSize: opts.ChunkSize, Overlap: overlap},
		session.Cancelled(h),
		func(c chunkscan.Chunk) bool {
			res.BytesScanned += uint64(len(c.Data) - c.NewOffset)
			matches := p.Scan(c.Data, c.Base, 0)
			for _, addr := range matches {
				if len(res.Addresses) > 0 && addr == res.Addresses[len(res.Addresses)-1] {
					continue
				}
				res.Addresses = append(res.Addresses, addr)
				if opts.MaxResults > 0 && len(res.Addresses) >= opts.MaxResults {
					return true
				}
			}
			return false
		})

	if h != nil && h.Cancelled() {
		res.Cancelled = true
	}
	return res
}
