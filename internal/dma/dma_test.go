package dma

import "testing"

func TestBind(t *testing.T) {
	var gotPid uint32
	var gotAddr uint64
	var gotLen int

	r := ReaderFunc(func(pid uint32, addr uint64, length int) []byte {
		gotPid, gotAddr, gotLen = pid, addr, length
		return []byte{1, 2, 3}
	})

	read := Bind(r, 7)
	out := read(0x1000, 3)

	if gotPid != 7 || gotAddr != 0x1000 || gotLen != 3 {
		t.Fatalf("Bind did not close over pid/addr/length correctly: pid=%d addr=0x%x len=%d", gotPid, gotAddr, gotLen)
	}
	if len(out) != 3 {
		t.Fatalf("got %d bytes, want 3", len(out))
	}
}

func TestFakeReadWithinRange(t *testing.T) {
	f := NewFake(0x1000, []byte{0xAA, 0xBB, 0xCC, 0xDD})
	out := f.Read(1, 0x1001, 2)
	if len(out) != 2 || out[0] != 0xBB || out[1] != 0xCC {
		t.Fatalf("got %v, want [0xBB 0xCC]", out)
	}
}

func TestFakeReadOutsideRange(t *testing.T) {
	f := NewFake(0x1000, []byte{0xAA, 0xBB})
	if out := f.Read(1, 0x2000, 4); out != nil {
		t.Fatalf("expected nil for out-of-range read, got %v", out)
	}
	if out := f.Read(1, 0x0FF0, 4); out != nil {
		t.Fatalf("expected nil for below-base read, got %v", out)
	}
}

func TestFakeReadTruncatesAtEnd(t *testing.T) {
	f := NewFake(0, []byte{1, 2, 3})
	out := f.Read(1, 1, 10)
	if len(out) != 2 {
		t.Fatalf("got %d bytes, want 2 (truncated to buffer end)", len(out))
	}
}

func TestFakeFailNext(t *testing.T) {
	f := NewFake(0, []byte{1, 2, 3, 4})
	f.FailNext = 1
	if out := f.Read(1, 0, 2); out != nil {
		t.Fatalf("expected nil on the failing read, got %v", out)
	}
	if out := f.Read(1, 0, 2); len(out) != 2 {
		t.Fatalf("expected the next read to succeed normally, got %v", out)
	}
}

func TestFakeWrite(t *testing.T) {
	f := NewFake(0x100, []byte{0, 0, 0, 0})
	f.Write(0x101, []byte{0xFF, 0xFE})
	out := f.Read(1, 0x100, 4)
	want := []byte{0, 0xFF, 0xFE, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("got %v, want %v", out, want)
		}
	}
}

func TestPageCacheWrapCachesAlignedReads(t *testing.T) {
	calls := 0
	backing := ReadFunc(func(addr uint64, length int) []byte {
		calls++
		return make([]byte, length)
	})

	cached := NewPageCache(4).Wrap(backing)

	cached(0x1000, 4096)
	cached(0x1000, 4096)

	if calls != 1 {
		t.Fatalf("expected the second aligned read to hit cache, got %d backing calls", calls)
	}

	cached(0x1001, 10)
	if calls != 2 {
		t.Fatalf("expected a non-page-aligned read to bypass the cache, got %d backing calls", calls)
	}
}
