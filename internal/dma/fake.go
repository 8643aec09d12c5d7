package dma

import "sync"

// Fake is an in-memory Reader for tests: a byte buffer with a base
// address, answering reads that fall entirely outside its range with a
// nil slice (a short/empty read) rather than an error, the way the spec
// requires of every real backend.
type Fake struct {
	mu   sync.Mutex
	base uint64
	data []byte

	// FailNext, if >0, makes the next N reads return nil regardless of
	// range, for exercising short-read handling in callers.
	FailNext int
}

// NewFake creates a Fake presenting data starting at base.
func NewFake(base uint64, data []byte) *Fake {
	return &Fake{base: base, data: data}
}

// Read implements Reader, ignoring pid (a Fake models one address space).
func (f *Fake) Read(_ uint32, addr uint64, length int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailNext > 0 {
		f.FailNext--
		return nil
	}
	if length <= 0 || addr < f.base {
		return nil
	}
	start := addr - f.base
	if start >= uint64(len(f.data)) {
		return nil
	}
	end := start + uint64(length)
	if end > uint64(len(f.data)) {
		end = uint64(len(f.data))
	}
	out := make([]byte, end-start)
	copy(out, f.data[start:end])
	return out
}

// Write patches bytes into the fake's backing buffer at addr, for tests
// that simulate the target process changing under a watcher.
func (f *Fake) Write(addr uint64, b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if addr < f.base {
		return
	}
	start := addr - f.base
	if start >= uint64(len(f.data)) {
		return
	}
	n := copy(f.data[start:], b)
	_ = n
}
