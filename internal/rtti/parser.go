package rtti

import (
	"encoding/binary"

	"github.com/orpheus-re/orpheus/internal/dma"
)

// Parser recovers RTTI relative to one module's base address, memoising
// type-descriptor names it has already resolved this session.
type Parser struct {
	read       dma.ReadFunc
	moduleBase uint64
	moduleSize uint64

	nameCache map[int32]string
}

// New creates a parser bound to moduleBase. When moduleBase is 0 (unknown),
// ParseCOL instead recovers a base per-call from each COL's own self_rva.
func New(read dma.ReadFunc, moduleBase uint64) *Parser {
	return &Parser{read: read, moduleBase: moduleBase, nameCache: make(map[int32]string)}
}

// SetModuleSize records the module's mapped size, used only to bound the
// isValidRVA checks on type descriptor and base class RVAs.
func (p *Parser) SetModuleSize(size uint64) { p.moduleSize = size }

func (p *Parser) rvaToVA(base uint64, rva int32) uint64 {
	return uint64(int64(base) + int64(rva))
}

func (p *Parser) isValidRVA(rva int32) bool {
	if rva < 0 {
		return false
	}
	if p.moduleSize == 0 {
		return true
	}
	return uint64(rva) < p.moduleSize
}

func readU32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off : off+4]) }
func readI32(b []byte, off int) int32  { return int32(readU32(b, off)) }

func (p *Parser) readCOL(addr uint64) (CompleteObjectLocator, bool) {
	raw := p.read(addr, colSize)
	if len(raw) < colSize {
		return CompleteObjectLocator{}, false
	}
	return CompleteObjectLocator{
		Signature:         readU32(raw, 0x00),
		Offset:            readU32(raw, 0x04),
		CDOffset:          readU32(raw, 0x08),
		TypeDescriptorRVA: readI32(raw, 0x0C),
		ClassHierarchyRVA: readI32(raw, 0x10),
		SelfRVA:           readI32(raw, 0x14),
	}, true
}

func (p *Parser) readCHD(addr uint64) (ClassHierarchyDescriptor, bool) {
	raw := p.read(addr, chdSize)
	if len(raw) < chdSize {
		return ClassHierarchyDescriptor{}, false
	}
	return ClassHierarchyDescriptor{
		Signature:         readU32(raw, 0x00),
		Attributes:        readU32(raw, 0x04),
		NumBaseClasses:    readU32(raw, 0x08),
		BaseClassArrayRVA: readI32(raw, 0x0C),
	}, true
}

func (p *Parser) readBCD(addr uint64) (BaseClassDescriptor, bool) {
	raw := p.read(addr, bcdSize)
	if len(raw) < bcdSize {
		return BaseClassDescriptor{}, false
	}
	return BaseClassDescriptor{
		TypeDescriptorRVA:   readI32(raw, 0x00),
		NumContainedBases:   readU32(raw, 0x04),
		MemberDisplacement:  readI32(raw, 0x08),
		VBTableDisplacement: readI32(raw, 0x0C),
		VBTableOffset:       readU32(raw, 0x10),
		Attributes:          readU32(raw, 0x14),
		ClassHierarchyRVA:   readI32(raw, 0x18),
	}, true
}

// GetMangledName resolves a Type Descriptor RVA (relative to base) to its
// mangled name, memoising the result.
func (p *Parser) GetMangledName(base uint64, typeDescRVA int32) string {
	if name, ok := p.nameCache[typeDescRVA]; ok {
		return name
	}
	if !p.isValidRVA(typeDescRVA) {
		return ""
	}
	addr := p.rvaToVA(base, typeDescRVA)
	// TypeDescriptor: 8 bytes vtable ptr, 8 bytes internal ptr, then the
	// NUL-terminated mangled name.
	nameAddr := addr + 16
	raw := p.read(nameAddr, 256)
	end := 0
	for end < len(raw) && raw[end] != 0 {
		end++
	}
	name := string(raw[:end])
	p.nameCache[typeDescRVA] = name
	return name
}

// GetBaseClasses walks a Class Hierarchy Descriptor's base class array and
// returns each base's demangled name (skipping index 0, which is the
// class itself).
func (p *Parser) GetBaseClasses(base uint64, chdRVA int32) []string {
	if !p.isValidRVA(chdRVA) {
		return nil
	}
	chd, ok := p.readCHD(p.rvaToVA(base, chdRVA))
	if !ok || chd.NumBaseClasses == 0 {
		return nil
	}
	if !p.isValidRVA(chd.BaseClassArrayRVA) {
		return nil
	}

	arrayAddr := p.rvaToVA(base, chd.BaseClassArrayRVA)
	var out []string
	for i := uint32(1); i < chd.NumBaseClasses; i++ {
		raw := p.read(arrayAddr+uint64(i)*4, 4)
		if len(raw) < 4 {
			break
		}
		bcdRVA := readI32(raw, 0)
		if !p.isValidRVA(bcdRVA) {
			continue
		}
		bcd, ok := p.readBCD(p.rvaToVA(base, bcdRVA))
		if !ok {
			continue
		}
		mangled := p.GetMangledName(base, bcd.TypeDescriptorRVA)
		if mangled == "" {
			continue
		}
		out = append(out, Demangle(mangled))
	}
	return out
}

// ParseCOL parses a Complete Object Locator at colAddress. If the parser
// was constructed with a known module base, every subsequent RVA lookup
// uses it; only when no base is known (moduleBase == 0) is it recovered
// from the COL's own self_rva field (colAddress - self_rva), a fallback,
// not an override of a base the caller already trusts.
func (p *Parser) ParseCOL(colAddress uint64) (ClassInfo, bool) {
	col, ok := p.readCOL(colAddress)
	if !ok || col.Signature != 1 {
		return ClassInfo{}, false
	}

	base := p.moduleBase
	if base == 0 {
		base = colAddress - uint64(col.SelfRVA)
	}

	mangled := p.GetMangledName(base, col.TypeDescriptorRVA)
	if mangled == "" {
		return ClassInfo{}, false
	}

	chd, _ := p.readCHD(p.rvaToVA(base, col.ClassHierarchyRVA))
	bases := p.GetBaseClasses(base, col.ClassHierarchyRVA)

	return ClassInfo{
		COLAddress:            colAddress,
		MangledName:           mangled,
		DemangledName:         Demangle(mangled),
		VftableOffset:         col.Offset,
		HasVirtualBase:        chd.VirtualInheritance(),
		IsMultipleInheritance: chd.MultipleInheritance(),
		BaseClasses:           bases,
	}, true
}

// ParseVTable parses the RTTI for a vtable by reading its COL pointer at
// vtable[-1] and delegating to ParseCOL.
func (p *Parser) ParseVTable(vtableAddress uint64) (ClassInfo, bool) {
	raw := p.read(vtableAddress-8, 8)
	if len(raw) < 8 {
		return ClassInfo{}, false
	}
	colAddr := binary.LittleEndian.Uint64(raw)
	if colAddr == 0 {
		return ClassInfo{}, false
	}

	info, ok := p.ParseCOL(colAddr)
	if !ok {
		return ClassInfo{}, false
	}
	info.VtableAddress = vtableAddress
	info.MethodCount = p.CountMethods(vtableAddress, 1024)
	return info, true
}
