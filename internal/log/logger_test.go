package log

import (
	"sync"
	"testing"
)

func TestHexFormatsLowercaseNoLeadingZeros(t *testing.T) {
	cases := map[uint64]string{
		0:          "0x0",
		0xFF:       "0xff",
		0x1000:     "0x1000",
		0xCAFEBABE: "0xcafebabe",
	}
	for v, want := range cases {
		if got := Hex(v); got != want {
			t.Errorf("Hex(0x%x): got %q, want %q", v, got, want)
		}
	}
}

func TestNewNopDoesNotPanic(t *testing.T) {
	l := NewNop()
	l.Event(0x1000, "pattern", "hit", "detail")
	l.Fault(0x2000, 8, true)
	l.ScanStart("pattern", 0x1000, 0x100)
	l.ScanDone("pattern", 3, false)
	l.WatchChange(0x3000, 2)
}

func TestSetOnEventInvokedByEvent(t *testing.T) {
	l := NewNop()
	var gotPC uint64
	var gotCat, gotName, gotDetail string
	l.SetOnEvent(func(pc uint64, category, name, detail string) {
		gotPC, gotCat, gotName, gotDetail = pc, category, name, detail
	})

	l.Event(0x1234, "rtti", "class_found", "MyClass")

	if gotPC != 0x1234 || gotCat != "rtti" || gotName != "class_found" || gotDetail != "MyClass" {
		t.Errorf("callback got pc=0x%x cat=%q name=%q detail=%q", gotPC, gotCat, gotName, gotDetail)
	}
}

func TestWithCategoryPreservesOnEvent(t *testing.T) {
	l := NewNop()
	called := false
	l.SetOnEvent(func(pc uint64, category, name, detail string) { called = true })

	sub := l.WithCategory("watch")
	sub.Event(0, "watch", "change", "")

	if !called {
		t.Fatal("expected WithCategory's logger to preserve the onEvent callback")
	}
}

func TestInitIsOnceOnly(t *testing.T) {
	L = nil
	once = sync.Once{}
	Init(false)
	first := L
	Init(true)
	if L != first {
		t.Fatal("expected Init to take effect only on the first call")
	}
}
