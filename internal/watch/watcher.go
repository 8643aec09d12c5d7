// Package watch monitors a set of memory regions for value changes,
// keeping a bounded history and optionally polling them on a background
// ticker.
package watch

import (
	"bytes"
	"sync"
	"time"

	"github.com/orpheus-re/orpheus/internal/dma"
)

// Type distinguishes what a watch is meant to detect. Only Write/ReadWrite
// are meaningfully different from a pure value-polling loop without
// hardware breakpoint support, which this package does not have; the
// field is kept for parity with the tool this package replaces and for a
// future hardware-assisted backend to act on.
type Type int

const (
	Read Type = iota
	Write
	ReadWrite
	Value
)

// MaxHistory bounds the ring-buffered change log.
const MaxHistory = 10000

// Change is one detected difference between a watch's previous and
// current value.
type Change struct {
	Address     uint64
	OldValue    []byte
	NewValue    []byte
	Timestamp   time.Time
	ChangeCount uint32
}

// Region is one monitored address range.
type Region struct {
	ID      uint32
	Address uint64
	Size    int
	Type    Type
	Name    string
	Enabled bool

	lastValue   []byte
	changeCount uint32
}

// ChangeCallback is invoked once per detected change, with the watcher's
// mutex already released (see the Watcher doc for why).
type ChangeCallback func(Change)

// Watcher monitors a set of Regions for changes against a DMA-backed
// process.
//
// Callback discipline: ChangeCallback is invoked with the watcher's own
// mutex released, not held. The obvious alternative (call while holding
// the lock, matching how this evolved historically) deadlocks the moment
// a callback calls back into the watcher — e.g. a UI handler reacting to
// a change by adding a new watch. Copy-then-unlock-then-call costs one
// extra allocation per change and is worth it.
type Watcher struct {
	read dma.ReadFunc

	mu       sync.Mutex
	regions  map[uint32]*Region
	nextID   uint32
	history  []Change
	total    uint64
	callback ChangeCallback

	scanning  bool
	stopCh    chan struct{}
	scanDone  chan struct{}
	interval  time.Duration
}

// New creates a watcher bound to read.
func New(read dma.ReadFunc) *Watcher {
	return &Watcher{
		read:    read,
		regions: make(map[uint32]*Region),
		nextID:  1,
	}
}

// AddWatch registers a new watched region, seeding its baseline value
// with an immediate read.
func (w *Watcher) AddWatch(address uint64, size int, typ Type, name string) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++

	if name == "" {
		name = defaultName(id)
	}

	w.regions[id] = &Region{
		ID:        id,
		Address:   address,
		Size:      size,
		Type:      typ,
		Name:      name,
		Enabled:   true,
		lastValue: w.read(address, size),
	}
	return id
}

func defaultName(id uint32) string {
	return "watch_" + itoa(id)
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// RemoveWatch deregisters a watch. It reports false if no such watch
// existed.
func (w *Watcher) RemoveWatch(id uint32) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.regions[id]; !ok {
		return false
	}
	delete(w.regions, id)
	return true
}

// SetWatchEnabled toggles whether a watch participates in Scan.
func (w *Watcher) SetWatchEnabled(id uint32, enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if r, ok := w.regions[id]; ok {
		r.Enabled = enabled
	}
}

// ClearAllWatches removes every registered watch.
func (w *Watcher) ClearAllWatches() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.regions = make(map[uint32]*Region)
}

// Watches returns a snapshot of every registered region.
func (w *Watcher) Watches() []Region {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Region, 0, len(w.regions))
	for _, r := range w.regions {
		out = append(out, *r)
	}
	return out
}

// SetChangeCallback installs (or clears, with nil) the change callback.
func (w *Watcher) SetChangeCallback(cb ChangeCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callback = cb
}

// Scan reads every enabled region once and reports what changed.
func (w *Watcher) Scan() []Change {
	w.mu.Lock()

	var changes []Change
	var toCallback []Change

	for _, r := range w.regions {
		if !r.Enabled {
			continue
		}
		current := w.read(r.Address, r.Size)
		if len(current) == 0 {
			continue
		}
		if bytes.Equal(current, r.lastValue) {
			continue
		}

		r.changeCount++
		change := Change{
			Address:     r.Address,
			OldValue:    r.lastValue,
			NewValue:    current,
			Timestamp:   now(),
			ChangeCount: r.changeCount,
		}
		r.lastValue = current

		changes = append(changes, change)
		w.pushHistory(change)
		toCallback = append(toCallback, change)
	}

	cb := w.callback
	w.mu.Unlock()

	if cb != nil {
		for _, c := range toCallback {
			cb(c)
		}
	}

	return changes
}

// pushHistory appends to the bounded ring, evicting the oldest entry once
// MaxHistory is reached. Caller must hold w.mu.
func (w *Watcher) pushHistory(c Change) {
	if len(w.history) >= MaxHistory {
		w.history = w.history[1:]
	}
	w.history = append(w.history, c)
	w.total++
}

// StartAutoScan begins a background goroutine that calls Scan once per
// interval until StopAutoScan is called. Calling it while already running
// restarts the ticker at the new interval.
func (w *Watcher) StartAutoScan(interval time.Duration) {
	w.mu.Lock()
	if w.scanning {
		w.mu.Unlock()
		w.StopAutoScan()
		w.mu.Lock()
	}
	w.scanning = true
	w.interval = interval
	stop := make(chan struct{})
	done := make(chan struct{})
	w.stopCh = stop
	w.scanDone = done
	w.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				w.Scan()
			}
		}
	}()
}

// StopAutoScan halts the background scan loop, blocking until the
// goroutine has observed the stop signal.
func (w *Watcher) StopAutoScan() {
	w.mu.Lock()
	if !w.scanning {
		w.mu.Unlock()
		return
	}
	w.scanning = false
	stop := w.stopCh
	done := w.scanDone
	w.mu.Unlock()

	close(stop)
	<-done
}

// IsScanning reports whether a background auto-scan loop is active.
func (w *Watcher) IsScanning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scanning
}

// RecentChanges returns up to maxCount of the most recent changes.
func (w *Watcher) RecentChanges(maxCount int) []Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.history) == 0 {
		return nil
	}
	start := 0
	if len(w.history) > maxCount {
		start = len(w.history) - maxCount
	}
	out := make([]Change, len(w.history)-start)
	copy(out, w.history[start:])
	return out
}

// ClearHistory discards the change log and resets the total counter.
func (w *Watcher) ClearHistory() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history = nil
	w.total = 0
}

// TotalChangeCount returns the number of changes ever recorded, including
// ones since evicted from history.
func (w *Watcher) TotalChangeCount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

var now = time.Now
