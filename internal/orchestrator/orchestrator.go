// Package orchestrator composes the pattern, string, PE, RTTI, watch, and
// emulator subsystems behind one façade bound to a single DMA reader,
// tracking per-pid watchers and in-flight cancellable scans.
package orchestrator

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/orpheus-re/orpheus/internal/dma"
	"github.com/orpheus-re/orpheus/internal/emulator"
	"github.com/orpheus-re/orpheus/internal/expr"
	"github.com/orpheus-re/orpheus/internal/log"
	"github.com/orpheus-re/orpheus/internal/pattern"
	"github.com/orpheus-re/orpheus/internal/peimage"
	"github.com/orpheus-re/orpheus/internal/rtti"
	"github.com/orpheus-re/orpheus/internal/session"
	"github.com/orpheus-re/orpheus/internal/strscan"
	"github.com/orpheus-re/orpheus/internal/watch"
)

// Orchestrator is the single entry point a CLI or future RPC layer talks
// to: one DMA reader, one cancellation registry, and a watcher per pid
// that has ever been watched.
type Orchestrator struct {
	reader dma.Reader
	reg    *session.Registry

	mu       sync.Mutex
	watchers map[uint32]*watch.Watcher
}

// New creates an orchestrator bound to reader.
func New(reader dma.Reader) *Orchestrator {
	return &Orchestrator{
		reader:   reader,
		reg:      session.NewRegistry(),
		watchers: make(map[uint32]*watch.Watcher),
	}
}

// bind returns the per-pid read function every subsystem call needs.
func (o *Orchestrator) bind(pid uint32) dma.ReadFunc {
	return dma.Bind(o.reader, pid)
}

// StartScan allocates a cancellable handle tracked by the orchestrator's
// registry. The handle carries its ID, so a caller can cancel later by ID
// alone (a CLI command, a future RPC layer) without holding the handle.
func (o *Orchestrator) StartScan() *session.Handle {
	return o.reg.Start()
}

// FinishScan stops tracking a handle once its operation has completed.
func (o *Orchestrator) FinishScan(h *session.Handle) {
	o.reg.Finish(h)
}

// CancelScan cancels a tracked scan by ID. Reports false if no such scan
// is currently tracked.
func (o *Orchestrator) CancelScan(id string) bool {
	u, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return o.reg.Cancel(u)
}

// ScanPattern compiles text and scans [base, base+size) of pid's address
// space for matches, honoring h's cancellation if non-nil.
func (o *Orchestrator) ScanPattern(pid uint32, text string, base, size uint64, h *session.Handle) ([]uint64, error) {
	compiled, err := pattern.Compile(text, "")
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	result := compiled.ScanRange(o.bind(pid), base, size, pattern.RangeOptions{}, h)
	if log.L != nil {
		log.L.ScanDone("pattern", len(result.Addresses), result.Cancelled)
	}
	return result.Addresses, nil
}

// ScanStrings extracts printable strings from [base, base+size) of pid's
// address space.
func (o *Orchestrator) ScanStrings(pid uint32, base, size uint64, opts strscan.Options, h *session.Handle) ([]strscan.Found, error) {
	result := strscan.ScanRange(o.bind(pid), base, size, opts, strscan.RangeOptions{}, h)
	if log.L != nil {
		log.L.ScanDone("string", len(result.Found), result.Cancelled)
	}
	return result.Found, nil
}

// OpenImage parses the PE headers of the module mapped at base in pid's
// address space.
func (o *Orchestrator) OpenImage(pid uint32, base uint64) (*peimage.Image, error) {
	img := peimage.New(o.bind(pid), base)
	if !img.ParseHeaders() {
		return nil, fmt.Errorf("parse PE headers: %s", img.LastError())
	}
	return img, nil
}

// ScanRtti walks the module's non-executable initialized-data sections
// for MSVC RTTI vtables, trusting moduleBase for every class's RVA
// lookups. The module's PE headers are parsed first so RVA bounds-checking
// has a real SizeOfImage to check against; if that parse fails the scan
// still proceeds, just without bounds-checking RVAs.
func (o *Orchestrator) ScanRtti(pid uint32, moduleBase uint64, callback func(rtti.ClassInfo), h *session.Handle) []rtti.ClassInfo {
	p := rtti.New(o.bind(pid), moduleBase)
	if img, err := o.OpenImage(pid, moduleBase); err == nil {
		p.SetModuleSize(uint64(img.ImageSize()))
	}
	found := p.ScanModule(moduleBase, callback, h)
	if log.L != nil {
		log.L.ScanDone("rtti", len(found), h.Cancelled())
	}
	return found
}

// Watcher returns the watcher for pid, creating one on first use.
func (o *Orchestrator) Watcher(pid uint32) *watch.Watcher {
	o.mu.Lock()
	defer o.mu.Unlock()
	if w, ok := o.watchers[pid]; ok {
		return w
	}
	w := watch.New(o.bind(pid))
	o.watchers[pid] = w
	return w
}

// NewEmulator creates an x86-64 emulator bridge backed by pid's memory,
// lazily paging in on demand.
func (o *Orchestrator) NewEmulator(pid uint32, cfg emulator.Config) (*emulator.Emulator, error) {
	return emulator.Init(o.bind(pid), pid, cfg)
}

// EvalExpr evaluates an address expression against pid's memory for
// dereference syntax, with vars bound as $name and resolvers tried in
// order for bare identifiers.
func (o *Orchestrator) EvalExpr(pid uint32, expression string, vars map[string]uint64, resolvers ...expr.Resolver) (uint64, error) {
	return expr.Evaluate(expression, vars, o.bind(pid), resolvers...)
}
