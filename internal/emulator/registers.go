package emulator

import (
	"fmt"
	"strings"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

// CpuRegister names a general-purpose or flags register by its lowercase
// mnemonic, matching the lookup table SetRegisters accepts.
type CpuRegister string

const (
	RegRAX CpuRegister = "rax"
	RegRBX CpuRegister = "rbx"
	RegRCX CpuRegister = "rcx"
	RegRDX CpuRegister = "rdx"
	RegRSI CpuRegister = "rsi"
	RegRDI CpuRegister = "rdi"
	RegRBP CpuRegister = "rbp"
	RegRSP CpuRegister = "rsp"
	RegR8  CpuRegister = "r8"
	RegR9  CpuRegister = "r9"
	RegR10 CpuRegister = "r10"
	RegR11 CpuRegister = "r11"
	RegR12 CpuRegister = "r12"
	RegR13 CpuRegister = "r13"
	RegR14 CpuRegister = "r14"
	RegR15 CpuRegister = "r15"
	RegRIP CpuRegister = "rip"
	RegEFL CpuRegister = "rflags"
)

var regLookup = map[CpuRegister]int{
	RegRAX: uc.X86_REG_RAX,
	RegRBX: uc.X86_REG_RBX,
	RegRCX: uc.X86_REG_RCX,
	RegRDX: uc.X86_REG_RDX,
	RegRSI: uc.X86_REG_RSI,
	RegRDI: uc.X86_REG_RDI,
	RegRBP: uc.X86_REG_RBP,
	RegRSP: uc.X86_REG_RSP,
	RegR8:  uc.X86_REG_R8,
	RegR9:  uc.X86_REG_R9,
	RegR10: uc.X86_REG_R10,
	RegR11: uc.X86_REG_R11,
	RegR12: uc.X86_REG_R12,
	RegR13: uc.X86_REG_R13,
	RegR14: uc.X86_REG_R14,
	RegR15: uc.X86_REG_R15,
	RegRIP: uc.X86_REG_RIP,
	RegEFL: uc.X86_REG_EFLAGS,
}

var gpRegisters = []int{
	uc.X86_REG_RAX, uc.X86_REG_RBX, uc.X86_REG_RCX, uc.X86_REG_RDX,
	uc.X86_REG_RSI, uc.X86_REG_RDI, uc.X86_REG_RBP, uc.X86_REG_RSP,
	uc.X86_REG_R8, uc.X86_REG_R9, uc.X86_REG_R10, uc.X86_REG_R11,
	uc.X86_REG_R12, uc.X86_REG_R13, uc.X86_REG_R14, uc.X86_REG_R15,
	uc.X86_REG_RIP, uc.X86_REG_EFLAGS,
}

var xmmRegisters = []int{
	uc.X86_REG_XMM0, uc.X86_REG_XMM1, uc.X86_REG_XMM2, uc.X86_REG_XMM3,
	uc.X86_REG_XMM4, uc.X86_REG_XMM5, uc.X86_REG_XMM6, uc.X86_REG_XMM7,
	uc.X86_REG_XMM8, uc.X86_REG_XMM9, uc.X86_REG_XMM10, uc.X86_REG_XMM11,
	uc.X86_REG_XMM12, uc.X86_REG_XMM13, uc.X86_REG_XMM14, uc.X86_REG_XMM15,
}

// Xmm128 holds one 128-bit SSE register as two 64-bit halves, low qword
// first. The pinned Unicorn binding exposes XMM registers as a 16-byte
// little-endian blob via RegReadMMR/RegWriteMMR; this type is the package's
// boundary around exactly how those 16 bytes are packed.
type Xmm128 struct {
	Lo, Hi uint64
}

// GetRegister reads a general-purpose or flags register by mnemonic.
func (e *Emulator) GetRegister(name CpuRegister) (uint64, error) {
	id, ok := regLookup[CpuRegister(strings.ToLower(string(name)))]
	if !ok {
		return 0, fmt.Errorf("unknown register %q", name)
	}
	return e.mu.RegRead(id)
}

// SetRegister writes a general-purpose or flags register by mnemonic.
func (e *Emulator) SetRegister(name CpuRegister, val uint64) error {
	id, ok := regLookup[CpuRegister(strings.ToLower(string(name)))]
	if !ok {
		return fmt.Errorf("unknown register %q", name)
	}
	return e.mu.RegWrite(id, val)
}

// SetRegisters writes a batch of registers keyed by lowercase mnemonic.
func (e *Emulator) SetRegisters(values map[string]uint64) error {
	for name, val := range values {
		if err := e.SetRegister(CpuRegister(name), val); err != nil {
			return err
		}
	}
	return nil
}

// GetXMM reads XMM0-XMM15 (n in [0,15]) as a 128-bit value.
func (e *Emulator) GetXMM(n int) (Xmm128, error) {
	if n < 0 || n > 15 {
		return Xmm128{}, fmt.Errorf("invalid xmm register %d", n)
	}
	raw, err := e.mu.RegReadMMR(xmmRegisters[n])
	if err != nil {
		return Xmm128{}, err
	}
	return unpackXmm(raw), nil
}

// SetXMM writes XMM0-XMM15 (n in [0,15]) from a 128-bit value.
func (e *Emulator) SetXMM(n int, v Xmm128) error {
	if n < 0 || n > 15 {
		return fmt.Errorf("invalid xmm register %d", n)
	}
	return e.mu.RegWriteMMR(xmmRegisters[n], packXmm(v))
}

func packXmm(v Xmm128) []byte {
	b := make([]byte, 16)
	for i := 0; i < 8; i++ {
		b[i] = byte(v.Lo >> (8 * i))
		b[8+i] = byte(v.Hi >> (8 * i))
	}
	return b
}

func unpackXmm(b []byte) Xmm128 {
	var v Xmm128
	for i := 0; i < 8 && i < len(b); i++ {
		v.Lo |= uint64(b[i]) << (8 * i)
	}
	for i := 0; i < 8 && 8+i < len(b); i++ {
		v.Hi |= uint64(b[8+i]) << (8 * i)
	}
	return v
}

// RegisterSnapshot captures every general-purpose, flags, and XMM register
// at one point in time, taken unconditionally on every Run/RunInstructions
// exit path.
type RegisterSnapshot struct {
	RAX, RBX, RCX, RDX        uint64
	RSI, RDI, RBP, RSP        uint64
	R8, R9, R10, R11          uint64
	R12, R13, R14, R15        uint64
	RIP, RFlags               uint64
	XMM                       [16]Xmm128
}

func (e *Emulator) snapshot() RegisterSnapshot {
	read := func(r CpuRegister) uint64 {
		v, _ := e.GetRegister(r)
		return v
	}
	s := RegisterSnapshot{
		RAX: read(RegRAX), RBX: read(RegRBX), RCX: read(RegRCX), RDX: read(RegRDX),
		RSI: read(RegRSI), RDI: read(RegRDI), RBP: read(RegRBP), RSP: read(RegRSP),
		R8: read(RegR8), R9: read(RegR9), R10: read(RegR10), R11: read(RegR11),
		R12: read(RegR12), R13: read(RegR13), R14: read(RegR14), R15: read(RegR15),
		RIP: read(RegRIP), RFlags: read(RegEFL),
	}
	for i := 0; i < 16; i++ {
		s.XMM[i], _ = e.GetXMM(i)
	}
	return s
}
