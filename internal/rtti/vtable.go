package rtti

import "encoding/binary"

// CountMethods walks a vtable's function-pointer slots and returns how
// many look like real code pointers, stopping at the first slot that
// doesn't: a zero, implausibly-small, or non-canonical pointer, a pointer
// outside any mapped range the DMA source can answer for (an empty read),
// or a slot whose first four bytes look like padding/filler rather than
// the start of an instruction (00 00, CC CC, 90 90, FF FF, or a small
// integer XX 00 00 00 with XX < 0x40).
func (p *Parser) CountMethods(vtableAddress uint64, maxEntries int) uint32 {
	var count uint32
	for i := 0; i < maxEntries; i++ {
		raw := p.read(vtableAddress+uint64(i)*8, 8)
		if len(raw) < 8 {
			break
		}
		ptr := binary.LittleEndian.Uint64(raw)
		if !looksLikeCodePointer(ptr) {
			break
		}

		head := p.read(ptr, 4)
		if len(head) < 4 {
			break
		}
		if isFillerPrefix(head) {
			break
		}

		count++
	}
	return count
}

func looksLikeCodePointer(ptr uint64) bool {
	if ptr == 0 {
		return false
	}
	// A pointer small enough to plausibly be a struct member or integer
	// masquerading as an address, not a real 64-bit canonical user-space
	// pointer.
	if ptr < 0x10000 {
		return false
	}
	// Above the canonical user-space range on x86-64; can't be a real
	// code pointer even if it happens to look non-zero.
	if ptr >= 0x0000_7FFF_FFFF_FFFF {
		return false
	}
	return true
}

func isFillerPrefix(head []byte) bool {
	pairs := [][2]byte{{0x00, 0x00}, {0xCC, 0xCC}, {0x90, 0x90}, {0xFF, 0xFF}}
	for _, pr := range pairs {
		if head[0] == pr[0] && head[1] == pr[1] {
			return true
		}
	}
	// A small integer stored where code should be: low byte under 0x40,
	// the rest zero. Real instruction bytes essentially never look like
	// this, but a vtable slot reused as a plain data field does.
	if len(head) >= 4 && head[0] < 0x40 && head[1] == 0 && head[2] == 0 && head[3] == 0 {
		return true
	}
	return false
}

// IsValidVTable reports whether address looks like the start of a vtable:
// its COL pointer resolves and its first entry looks like a code pointer.
func (p *Parser) IsValidVTable(address uint64) bool {
	colRaw := p.read(address-8, 8)
	if len(colRaw) < 8 {
		return false
	}
	colAddr := binary.LittleEndian.Uint64(colRaw)
	if colAddr == 0 {
		return false
	}
	if _, ok := p.readCOL(colAddr); !ok {
		return false
	}

	first := p.read(address, 8)
	if len(first) < 8 {
		return false
	}
	return looksLikeCodePointer(binary.LittleEndian.Uint64(first))
}

// ParseFullVTable parses a vtable's RTTI and its method slots together.
// maxEntries of 0 auto-detects via CountMethods.
func (p *Parser) ParseFullVTable(vtableAddress uint64, maxEntries int) (VTableInfo, bool) {
	info, ok := p.ParseVTable(vtableAddress)
	if !ok {
		return VTableInfo{}, false
	}

	n := maxEntries
	if n <= 0 {
		n = int(info.MethodCount)
	}

	entries := make([]VTableEntry, 0, n)
	for i := 0; i < n; i++ {
		raw := p.read(vtableAddress+uint64(i)*8, 8)
		if len(raw) < 8 {
			break
		}
		ptr := binary.LittleEndian.Uint64(raw)
		if !looksLikeCodePointer(ptr) {
			break
		}
		entries = append(entries, VTableEntry{Address: ptr, Index: i})
	}

	return VTableInfo{
		Address:   vtableAddress,
		Class:     info,
		Entries:   entries,
		SizeBytes: len(entries) * 8,
	}, true
}
