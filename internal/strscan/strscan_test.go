package strscan

import (
	"testing"

	"github.com/orpheus-re/orpheus/internal/dma"
	"github.com/orpheus-re/orpheus/internal/session"
)

func TestScanASCIIFindsNulTerminatedRun(t *testing.T) {
	data := append([]byte("hello"), 0, 0xFF, 0xFF)
	found := Scan(data, 0x2000, DefaultOptions())
	if len(found) != 1 {
		t.Fatalf("got %d strings, want 1: %v", len(found), found)
	}
	if found[0].Value != "hello" || found[0].Encoding != ASCII {
		t.Fatalf("got %+v, want hello/ASCII", found[0])
	}
	if found[0].Address != 0x2000 {
		t.Errorf("address: got 0x%x, want 0x2000", found[0].Address)
	}
}

func TestScanASCIIRejectsShortRun(t *testing.T) {
	data := append([]byte("hi"), 0)
	opts := DefaultOptions()
	found := Scan(data, 0, opts)
	if len(found) != 0 {
		t.Fatalf("expected no matches below MinLength, got %v", found)
	}
}

func TestScanASCIIRequiresNulTerminator(t *testing.T) {
	data := []byte("helloworld")
	opts := DefaultOptions()
	found := Scan(data, 0, opts)
	if len(found) != 0 {
		t.Fatalf("expected no matches without a nul terminator, got %v", found)
	}

	opts.RequireNulTerminator = false
	found = Scan(data, 0, opts)
	if len(found) != 1 || found[0].Value != "helloworld" {
		t.Fatalf("got %v, want [helloworld]", found)
	}
}

func TestScanUTF16LE(t *testing.T) {
	// "hi" as UTF-16LE, nul terminated.
	data := []byte{'h', 0, 'i', 0, 0, 0}
	opts := DefaultOptions()
	opts.MinLength = 2
	opts.ScanASCII = false

	found := Scan(data, 0x3000, opts)
	if len(found) != 1 {
		t.Fatalf("got %d strings, want 1: %v", len(found), found)
	}
	if found[0].Value != "hi" || found[0].Encoding != UTF16LE {
		t.Fatalf("got %+v, want hi/UTF16LE", found[0])
	}
	if found[0].RawLength != 4 {
		t.Errorf("RawLength: got %d, want 4", found[0].RawLength)
	}
}

func TestScanMaxLengthClamps(t *testing.T) {
	data := append([]byte{}, make([]byte, 0)...)
	for i := 0; i < 20; i++ {
		data = append(data, 'A')
	}
	data = append(data, 0)

	opts := DefaultOptions()
	opts.MaxLength = 10

	found := Scan(data, 0, opts)
	if len(found) != 1 {
		t.Fatalf("got %d strings, want 1", len(found))
	}
	if len(found[0].Value) != 10 {
		t.Fatalf("got length %d, want clamped to 10", len(found[0].Value))
	}
}

func TestScanDedupesOverlappingAddresses(t *testing.T) {
	// A run that both scanners could in principle start at the same address
	// should only appear once in the merged, sorted result.
	data := append([]byte("abcd"), 0, 0, 0)
	opts := DefaultOptions()
	opts.MinLength = 2

	found := Scan(data, 0, opts)
	seen := map[uint64]bool{}
	for _, f := range found {
		if seen[f.Address] {
			t.Fatalf("duplicate address 0x%x in result: %v", f.Address, found)
		}
		seen[f.Address] = true
	}
}

func TestScanRangeAcrossChunkBoundary(t *testing.T) {
	data := make([]byte, 40)
	copy(data[10:], []byte("needleinthehaystack"))
	data[10+len("needleinthehaystack")] = 0

	fake := dma.NewFake(0, data)
	opts := DefaultOptions()
	opts.MinLength = 4

	res := ScanRange(dma.Bind(fake, 1), 0, uint64(len(data)), opts, RangeOptions{ChunkSize: 16}, nil)

	var got string
	for _, f := range res.Found {
		if f.Address == 10 {
			got = f.Value
		}
	}
	if got != "needleinthehaystack" {
		t.Fatalf("did not find the string split across chunks, found: %v", res.Found)
	}
}

func TestScanRangeCancellation(t *testing.T) {
	fake := dma.NewFake(0, make([]byte, 64))
	h := session.New()
	h.Cancel()

	res := ScanRange(dma.Bind(fake, 1), 0, 64, DefaultOptions(), RangeOptions{}, h)
	if !res.Cancelled {
		t.Error("expected Cancelled true")
	}
}

func TestScanRangeDoesNotDoubleReportTwoStringsInOneOverlapWindow(t *testing.T) {
	// Two short nul-terminated strings sit entirely inside what becomes the
	// carried overlap window (the last opts.MaxLength bytes of the first
	// chunk), so both get rediscovered when the second chunk rescans the
	// carry. Neither should be reported twice, and neither should be lost.
	opts := DefaultOptions()
	opts.MinLength = 2
	opts.MaxLength = 8

	data := make([]byte, 24)
	copy(data[2:], []byte("hi"))
	data[4] = 0
	copy(data[6:], []byte("yo"))
	data[8] = 0

	fake := dma.NewFake(0, data)
	res := ScanRange(dma.Bind(fake, 1), 0, uint64(len(data)), opts, RangeOptions{ChunkSize: 10}, nil)

	counts := map[uint64]int{}
	for _, f := range res.Found {
		counts[f.Address]++
	}
	if counts[2] != 1 {
		t.Errorf("address 0x2 (%q): got %d occurrences, want 1", "hi", counts[2])
	}
	if counts[6] != 1 {
		t.Errorf("address 0x6 (%q): got %d occurrences, want 1", "yo", counts[6])
	}
}
