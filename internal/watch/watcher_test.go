package watch

import (
	"testing"
	"time"

	"github.com/orpheus-re/orpheus/internal/dma"
)

func TestAddWatchSeedsBaseline(t *testing.T) {
	fake := dma.NewFake(0, []byte{1, 2, 3, 4})
	w := New(dma.Bind(fake, 1))

	id := w.AddWatch(0, 4, Value, "counter")
	watches := w.Watches()
	if len(watches) != 1 || watches[0].ID != id || watches[0].Name != "counter" {
		t.Fatalf("got %+v", watches)
	}

	// No change yet: Scan should report nothing.
	if changes := w.Scan(); len(changes) != 0 {
		t.Fatalf("expected no changes before any write, got %v", changes)
	}
}

func TestScanDetectsChange(t *testing.T) {
	fake := dma.NewFake(0, []byte{0, 0, 0, 0})
	w := New(dma.Bind(fake, 1))
	w.AddWatch(0, 4, Value, "")

	fake.Write(0, []byte{0xFF, 0xFF, 0xFF, 0xFF})

	changes := w.Scan()
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	if changes[0].ChangeCount != 1 {
		t.Errorf("ChangeCount: got %d, want 1", changes[0].ChangeCount)
	}

	// A second scan with no further writes should report nothing new.
	if changes := w.Scan(); len(changes) != 0 {
		t.Fatalf("expected no changes on repeat scan, got %v", changes)
	}
}

func TestScanIgnoresEmptyReads(t *testing.T) {
	fake := dma.NewFake(0x1000, []byte{1, 2, 3, 4})
	w := New(dma.Bind(fake, 1))
	// Watch an address entirely outside the fake's backing range: every
	// read comes back empty and must never be treated as a change.
	w.AddWatch(0xF000, 4, Value, "")

	if changes := w.Scan(); len(changes) != 0 {
		t.Fatalf("expected no changes from an unreadable region, got %v", changes)
	}
}

func TestRemoveWatchAndSetEnabled(t *testing.T) {
	fake := dma.NewFake(0, []byte{0, 0})
	w := New(dma.Bind(fake, 1))
	id := w.AddWatch(0, 2, Value, "")

	if !w.RemoveWatch(id) {
		t.Fatal("expected RemoveWatch to succeed")
	}
	if w.RemoveWatch(id) {
		t.Fatal("expected second RemoveWatch to report false")
	}

	id2 := w.AddWatch(0, 2, Value, "")
	w.SetWatchEnabled(id2, false)
	fake.Write(0, []byte{1, 1})
	if changes := w.Scan(); len(changes) != 0 {
		t.Fatalf("expected disabled watch to be skipped, got %v", changes)
	}
}

func TestChangeCallbackRunsUnlocked(t *testing.T) {
	fake := dma.NewFake(0, []byte{0, 0})
	w := New(dma.Bind(fake, 1))
	w.AddWatch(0, 2, Value, "reentrant")

	var reentrantID uint32
	w.SetChangeCallback(func(c Change) {
		// If the callback ran under w.mu, this would deadlock.
		reentrantID = w.AddWatch(0, 2, Value, "added-from-callback")
	})

	fake.Write(0, []byte{9, 9})
	w.Scan()

	if reentrantID == 0 {
		t.Fatal("expected the callback to be able to add a watch without deadlocking")
	}
	if len(w.Watches()) != 2 {
		t.Fatalf("got %d watches, want 2", len(w.Watches()))
	}
}

func TestHistoryBoundedAndClearable(t *testing.T) {
	fake := dma.NewFake(0, []byte{0})
	w := New(dma.Bind(fake, 1))
	w.AddWatch(0, 1, Value, "")

	for i := byte(1); i < 20; i++ {
		fake.Write(0, []byte{i})
		w.Scan()
	}

	if w.TotalChangeCount() != 19 {
		t.Errorf("TotalChangeCount: got %d, want 19", w.TotalChangeCount())
	}
	recent := w.RecentChanges(5)
	if len(recent) != 5 {
		t.Fatalf("got %d recent changes, want 5", len(recent))
	}

	w.ClearHistory()
	if w.TotalChangeCount() != 0 {
		t.Error("expected TotalChangeCount reset after ClearHistory")
	}
	if len(w.RecentChanges(5)) != 0 {
		t.Error("expected no recent changes after ClearHistory")
	}
}

func TestStartStopAutoScan(t *testing.T) {
	fake := dma.NewFake(0, []byte{0})
	w := New(dma.Bind(fake, 1))
	w.AddWatch(0, 1, Value, "")

	w.StartAutoScan(5 * time.Millisecond)
	if !w.IsScanning() {
		t.Fatal("expected IsScanning true after StartAutoScan")
	}

	fake.Write(0, []byte{7})
	time.Sleep(30 * time.Millisecond)

	w.StopAutoScan()
	if w.IsScanning() {
		t.Fatal("expected IsScanning false after StopAutoScan")
	}
	if w.TotalChangeCount() == 0 {
		t.Error("expected the background loop to have detected at least one change")
	}
}

func TestClearAllWatches(t *testing.T) {
	fake := dma.NewFake(0, []byte{0, 0})
	w := New(dma.Bind(fake, 1))
	w.AddWatch(0, 1, Value, "")
	w.AddWatch(1, 1, Value, "")

	w.ClearAllWatches()
	if len(w.Watches()) != 0 {
		t.Fatalf("expected no watches after ClearAllWatches, got %d", len(w.Watches()))
	}
}
