// Package emulator wraps Unicorn Engine in x86-64 mode to execute code
// recovered from a foreign process, lazily paging memory in on demand
// through a DMA read function.
package emulator

import (
	"fmt"
	"sync"
	"time"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
	"golang.org/x/arch/x86/x86asm"

	"github.com/orpheus-re/orpheus/internal/dma"
	"github.com/orpheus-re/orpheus/internal/trace"
)

// pageSize is the granularity at which faulting addresses are mapped in.
const pageSize = 0x1000

// Config controls the emulator's stack layout and run budgets.
type Config struct {
	StackBase uint64
	StackSize uint64
}

// DefaultConfig returns a reasonable stack layout for x64 code.
func DefaultConfig() Config {
	return Config{
		StackBase: 0x0000700000000000,
		StackSize: 0x00100000, // 1MB
	}
}

// ModuleResolver is the process-enumeration collaborator MapModule defers
// to: something that can turn a module name into a base/size pair. This
// repo ships only the interface; a real implementation lives outside it.
type ModuleResolver interface {
	Resolve(name string) (base, size uint64, ok bool)
}

// AccessHookFunc observes every traced memory access.
type AccessHookFunc func(addr uint64, size int, isWrite bool)

// Emulator bridges Unicorn's x86-64 core to a DMA-backed foreign process.
type Emulator struct {
	mu uc.Unicorn

	read dma.ReadFunc
	pid  uint32
	cfg  Config

	mappedPages map[uint64]bool
	pagesMu     sync.Mutex

	accessedPages map[uint64]struct{}
	accessMu      sync.Mutex
	accessHooks   []AccessHookFunc

	traceEnabled bool
	events       []trace.Event
	eventsMu     sync.Mutex

	stopped bool
}

// Init constructs an x86-64 emulator over the given DMA-bound read
// function. read should already be bound to the target pid (see
// dma.Bind); the emulator never sees the pid directly except for logging.
func Init(read dma.ReadFunc, pid uint32, cfg Config) (*Emulator, error) {
	m, err := uc.NewUnicorn(uc.ARCH_X86, uc.MODE_64)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}

	e := &Emulator{
		mu:            m,
		read:          read,
		pid:           pid,
		cfg:           cfg,
		mappedPages:   make(map[uint64]bool),
		accessedPages: make(map[uint64]struct{}),
	}

	if err := e.mapStack(); err != nil {
		m.Close()
		return nil, err
	}

	if err := e.setupFaultHook(); err != nil {
		m.Close()
		return nil, err
	}

	if err := e.setupAccessHook(); err != nil {
		m.Close()
		return nil, err
	}

	return e, nil
}

func (e *Emulator) mapStack() error {
	base := pageAlign(e.cfg.StackBase)
	size := alignUp(e.cfg.StackSize, pageSize)
	if err := e.mu.MemMap(base, size); err != nil {
		return fmt.Errorf("map stack (0x%x): %w", base, err)
	}
	e.pagesMu.Lock()
	for p := base; p < base+size; p += pageSize {
		e.mappedPages[p] = true
	}
	e.pagesMu.Unlock()

	mid := e.cfg.StackBase + e.cfg.StackSize/2
	if err := e.mu.RegWrite(uc.X86_REG_RSP, mid); err != nil {
		return fmt.Errorf("set RSP: %w", err)
	}
	if err := e.mu.RegWrite(uc.X86_REG_RBP, mid); err != nil {
		return fmt.Errorf("set RBP: %w", err)
	}
	return nil
}

// setupFaultHook installs the lazy DMA-backed page-in handler. It is the
// x64/DMA counterpart of the teacher's pre-seeded mock-object memory: here
// there is nothing to pre-seed, every unmapped page is resolved on demand
// from the foreign process.
func (e *Emulator) setupFaultHook() error {
	_, err := e.mu.HookAdd(uc.HOOK_MEM_UNMAPPED, func(m uc.Unicorn, access int, addr uint64, size int, value int64) bool {
		return e.handleFault(addr)
	}, 1, 0)
	if err != nil {
		return fmt.Errorf("install fault hook: %w", err)
	}
	return nil
}

func (e *Emulator) handleFault(addr uint64) bool {
	page := pageAlign(addr)

	e.pagesMu.Lock()
	if e.mappedPages[page] {
		e.pagesMu.Unlock()
		return true
	}
	e.pagesMu.Unlock()

	if err := e.mu.MemMap(page, pageSize); err != nil {
		return false
	}

	data := e.read(page, pageSize)
	buf := make([]byte, pageSize)
	copy(buf, data) // short/empty reads leave the remainder zero-filled

	if err := e.mu.MemWrite(page, buf); err != nil {
		return false
	}
	if err := e.mu.MemProtect(page, pageSize, uc.PROT_ALL); err != nil {
		return false
	}

	e.pagesMu.Lock()
	e.mappedPages[page] = true
	e.pagesMu.Unlock()

	return true
}

func (e *Emulator) setupAccessHook() error {
	_, err := e.mu.HookAdd(uc.HOOK_MEM_READ|uc.HOOK_MEM_WRITE, func(m uc.Unicorn, access int, addr uint64, size int, value int64) {
		page := pageAlign(addr)
		e.accessMu.Lock()
		e.accessedPages[page] = struct{}{}
		hooks := append([]AccessHookFunc{}, e.accessHooks...)
		e.accessMu.Unlock()

		isWrite := access == uc.MEM_WRITE
		for _, h := range hooks {
			h(addr, size, isWrite)
		}
	}, 1, 0)
	if err != nil {
		return fmt.Errorf("install access hook: %w", err)
	}
	return nil
}

// HookAccess registers a callback invoked on every traced memory access.
func (e *Emulator) HookAccess(fn AccessHookFunc) {
	e.accessMu.Lock()
	defer e.accessMu.Unlock()
	e.accessHooks = append(e.accessHooks, fn)
}

// AccessedPages returns the set of 4KiB pages touched since the emulator
// was created or last reset.
func (e *Emulator) AccessedPages() []uint64 {
	e.accessMu.Lock()
	defer e.accessMu.Unlock()
	out := make([]uint64, 0, len(e.accessedPages))
	for p := range e.accessedPages {
		out = append(out, p)
	}
	return out
}

// MapRegion eagerly maps and fills size bytes at addr from the DMA source,
// for callers that want to pre-load a region rather than rely on faulting.
func (e *Emulator) MapRegion(addr, size uint64) error {
	base := pageAlign(addr)
	end := alignUp(addr+size, pageSize)
	for p := base; p < end; p += pageSize {
		e.pagesMu.Lock()
		already := e.mappedPages[p]
		e.pagesMu.Unlock()
		if already {
			continue
		}
		if !e.handleFault(p) {
			return fmt.Errorf("map region failed at 0x%x", p)
		}
	}
	return nil
}

// MapModule resolves name via resolver and maps its full range.
func (e *Emulator) MapModule(resolver ModuleResolver, name string) (base, size uint64, err error) {
	base, size, ok := resolver.Resolve(name)
	if !ok {
		return 0, 0, fmt.Errorf("module %q not found", name)
	}
	if err := e.MapRegion(base, size); err != nil {
		return 0, 0, err
	}
	return base, size, nil
}

// Close releases the underlying Unicorn context.
func (e *Emulator) Close() error {
	return e.mu.Close()
}

// EnableTrace turns on per-instruction trace.Event collection.
func (e *Emulator) EnableTrace() {
	e.traceEnabled = true
}

// DisableTrace stops trace.Event collection.
func (e *Emulator) DisableTrace() {
	e.traceEnabled = false
}

// Events returns a copy of the collected trace events.
func (e *Emulator) Events() []trace.Event {
	e.eventsMu.Lock()
	defer e.eventsMu.Unlock()
	return append([]trace.Event{}, e.events...)
}

func (e *Emulator) addEvent(ev trace.Event) {
	e.eventsMu.Lock()
	e.events = append(e.events, ev)
	e.eventsMu.Unlock()
}

// ClearEvents discards collected trace events.
func (e *Emulator) ClearEvents() {
	e.eventsMu.Lock()
	e.events = nil
	e.eventsMu.Unlock()
}

// RunOptions bounds one emulation run.
type RunOptions struct {
	MaxInstructions uint64        // 0 means unbounded
	Timeout         time.Duration // 0 means unbounded
}

// EmulationResult reports the outcome of Run/RunInstructions. It is always
// populated, even on failure, with a full register snapshot taken at the
// moment emulation stopped.
type EmulationResult struct {
	InstructionsExecuted uint64
	Stopped              bool
	Err                  error
	Registers            RegisterSnapshot
}

// Run executes from start until it reaches end (0 disables the end
// address check) or a budget in opts is exhausted.
func (e *Emulator) Run(start, end uint64, opts RunOptions) EmulationResult {
	e.stopped = false

	var executed uint64
	var hookID uc.Hook
	if opts.MaxInstructions > 0 {
		hookID, _ = e.mu.HookAdd(uc.HOOK_CODE, func(m uc.Unicorn, addr uint64, size uint32) {
			executed++
			if executed >= opts.MaxInstructions {
				e.Stop()
			}
		}, 1, 0)
		defer e.mu.HookDel(hookID)
	}
	if e.traceEnabled {
		var traceHook uc.Hook
		traceHook, _ = e.mu.HookAdd(uc.HOOK_CODE, func(m uc.Unicorn, addr uint64, size uint32) {
			ev := trace.Event{PC: addr, Tags: trace.Tags{trace.Tag("exec")}}
			if code, err := m.MemRead(addr, 16); err == nil {
				if inst, err := x86asm.Decode(code, 64); err == nil {
					ev.Name = x86asm.GNUSyntax(inst, addr, nil)
				}
			}
			e.addEvent(ev)
		}, 1, 0)
		defer e.mu.HookDel(traceHook)
	}

	var timeoutUs uint64
	if opts.Timeout > 0 {
		timeoutUs = uint64(opts.Timeout / time.Microsecond)
	}

	var runErr error
	if timeoutUs > 0 || opts.MaxInstructions > 0 {
		count := int(opts.MaxInstructions)
		if count <= 0 {
			count = -1
		}
		runErr = e.mu.StartWithOptions(start, end, &uc.UcOptions{Timeout: timeoutUs, Count: count})
	} else {
		runErr = e.mu.Start(start, end)
	}

	if opts.MaxInstructions == 0 {
		executed, _ = e.instructionCountFallback()
	}

	return EmulationResult{
		InstructionsExecuted: executed,
		Stopped:              e.stopped,
		Err:                  runErr,
		Registers:            e.snapshot(),
	}
}

// instructionCountFallback reports 0 when no instruction budget hook was
// installed to count executed instructions; unicorn does not expose an
// instruction counter of its own.
func (e *Emulator) instructionCountFallback() (uint64, error) {
	return 0, nil
}

// RunInstructions runs at most n instructions starting at start.
func (e *Emulator) RunInstructions(start uint64, n uint64, timeout time.Duration) EmulationResult {
	return e.Run(start, 0, RunOptions{MaxInstructions: n, Timeout: timeout})
}

// Stop halts an in-progress Run/RunInstructions call.
func (e *Emulator) Stop() {
	e.stopped = true
	e.mu.Stop()
}

// ResetCPU clears all general-purpose, flags, and XMM registers to zero,
// then restores RSP and RBP to the stack midpoint, without touching mapped
// memory.
func (e *Emulator) ResetCPU() error {
	for _, r := range gpRegisters {
		if err := e.mu.RegWrite(r, 0); err != nil {
			return err
		}
	}
	for i := 0; i < 16; i++ {
		if err := e.SetXMM(i, Xmm128{}); err != nil {
			return err
		}
	}
	mid := e.cfg.StackBase + e.cfg.StackSize/2
	if err := e.mu.RegWrite(uc.X86_REG_RSP, mid); err != nil {
		return err
	}
	return e.mu.RegWrite(uc.X86_REG_RBP, mid)
}

// ResetAll clears registers and unmaps every page mapped so far, returning
// the emulator to its just-constructed state.
func (e *Emulator) ResetAll() error {
	e.pagesMu.Lock()
	pages := make([]uint64, 0, len(e.mappedPages))
	for p := range e.mappedPages {
		pages = append(pages, p)
	}
	e.pagesMu.Unlock()

	for _, p := range pages {
		_ = e.mu.MemUnmap(p, pageSize)
	}
	e.pagesMu.Lock()
	e.mappedPages = make(map[uint64]bool)
	e.pagesMu.Unlock()

	e.accessMu.Lock()
	e.accessedPages = make(map[uint64]struct{})
	e.accessMu.Unlock()

	e.ClearEvents()
	if err := e.mapStack(); err != nil {
		return err
	}
	return e.ResetCPU()
}

func pageAlign(addr uint64) uint64 {
	return addr &^ (pageSize - 1)
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
