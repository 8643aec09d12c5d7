//go:build linux

package dma

import (
	"fmt"
	"os"
)

// ProcFSReader implements Reader over /proc/<pid>/mem, the local stand-in
// this CLI uses when no PCIe DMA vendor SDK is wired up (out of scope per
// spec: "the underlying protocol ... is out of scope; the contract is
// that any (pid, address, length) may silently return fewer bytes").
// Reading another process's memory this way requires the same privileges
// ptrace would (CAP_SYS_PTRACE or a matching uid), the same as any local
// debugger.
type ProcFSReader struct{}

// NewProcFSReader creates a Reader backed by /proc/<pid>/mem.
func NewProcFSReader() ProcFSReader { return ProcFSReader{} }

// Read opens /proc/pid/mem fresh on every call rather than caching a file
// handle per pid: pids get reused, and a stale handle reading a recycled
// pid's memory would be a far worse bug than the extra open() cost.
func (ProcFSReader) Read(pid uint32, addr uint64, length int) []byte {
	if length <= 0 {
		return nil
	}
	f, err := os.Open(fmt.Sprintf("/proc/%d/mem", pid))
	if err != nil {
		return nil
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, int64(addr))
	if n <= 0 {
		return nil
	}
	if err != nil && n < length {
		return buf[:n]
	}
	return buf[:n]
}
