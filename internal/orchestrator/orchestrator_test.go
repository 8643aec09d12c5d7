package orchestrator

import (
	"testing"

	"github.com/orpheus-re/orpheus/internal/dma"
	"github.com/orpheus-re/orpheus/internal/strscan"
	"github.com/orpheus-re/orpheus/internal/watch"
)

func TestScanPatternFindsMatch(t *testing.T) {
	data := []byte{0x00, 0x48, 0x8B, 0x05, 0x11, 0x22, 0x33, 0x44, 0x00}
	reader := dma.NewFake(0, data)
	o := New(reader)

	addrs, err := o.ScanPattern(1, "48 8B 05 ?? ?? ?? ??", 0, uint64(len(data)), nil)
	if err != nil {
		t.Fatalf("ScanPattern: %v", err)
	}
	if len(addrs) != 1 || addrs[0] != 1 {
		t.Fatalf("got %v, want [1]", addrs)
	}
}

func TestScanPatternRejectsBadPattern(t *testing.T) {
	o := New(dma.NewFake(0, nil))
	if _, err := o.ScanPattern(1, "ZZ", 0, 16, nil); err == nil {
		t.Fatal("expected an error for an invalid pattern")
	}
}

func TestScanStringsFindsNulTerminated(t *testing.T) {
	data := append([]byte("orpheus"), 0)
	reader := dma.NewFake(0x5000, data)
	o := New(reader)

	found, err := o.ScanStrings(1, 0x5000, uint64(len(data)), strscan.DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("ScanStrings: %v", err)
	}
	if len(found) != 1 || found[0].Value != "orpheus" {
		t.Fatalf("got %v, want [orpheus]", found)
	}
}

func TestWatcherIsReusedPerPid(t *testing.T) {
	o := New(dma.NewFake(0, make([]byte, 16)))
	w1 := o.Watcher(42)
	w2 := o.Watcher(42)
	if w1 != w2 {
		t.Fatal("expected the same *watch.Watcher for repeated calls with the same pid")
	}
	w3 := o.Watcher(99)
	if w1 == w3 {
		t.Fatal("expected a distinct watcher for a different pid")
	}
	var _ *watch.Watcher = w1
}

func TestStartFinishCancelScan(t *testing.T) {
	o := New(dma.NewFake(0, nil))
	h := o.StartScan()

	if !o.CancelScan(h.ID().String()) {
		t.Fatal("expected CancelScan to find the tracked handle")
	}
	if !h.Cancelled() {
		t.Fatal("expected the handle to be marked cancelled")
	}

	o.FinishScan(h)
	if o.CancelScan(h.ID().String()) {
		t.Fatal("expected CancelScan to fail once the scan has finished")
	}
}

func TestCancelScanRejectsMalformedID(t *testing.T) {
	o := New(dma.NewFake(0, nil))
	if o.CancelScan("not-a-uuid") {
		t.Fatal("expected CancelScan to reject a malformed ID")
	}
}

func TestOpenImageReturnsErrorOnBadHeader(t *testing.T) {
	o := New(dma.NewFake(0, []byte{0x00, 0x00}))
	if _, err := o.OpenImage(1, 0); err == nil {
		t.Fatal("expected an error opening a non-PE image")
	}
}

func TestEvalExprArithmetic(t *testing.T) {
	o := New(dma.NewFake(0, nil))
	got, err := o.EvalExpr(1, "0x10 + 0x20", nil)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if got != 0x30 {
		t.Errorf("got 0x%x, want 0x30", got)
	}
}
