package rtti

import (
	"github.com/orpheus-re/orpheus/internal/chunkscan"
	"github.com/orpheus-re/orpheus/internal/peimage"
	"github.com/orpheus-re/orpheus/internal/session"
)

// ScanForVTables scans a raw address range for candidate vtables: for
// every 8-byte-aligned slot, it checks whether the 8 bytes immediately
// before it look like a plausible COL pointer and, if so, attempts a full
// parse. callback, if non-nil, is invoked for each class found.
func (p *Parser) ScanForVTables(start uint64, size uint64, callback func(ClassInfo), h *session.Handle) []ClassInfo {
	var found []ClassInfo

	chunkscan.Walk(p.read, start, size, chunkscan.Options{ChunkSize: 4 << 20, Overlap: 8},
		session.Cancelled(h),
		func(c chunkscan.Chunk) bool {
			for off := c.NewOffset; off+8 <= len(c.Data); off += 8 {
				candidate := c.Base + uint64(off) + 8
				if !p.IsValidVTable(candidate) {
					continue
				}
				info, ok := p.ParseVTable(candidate)
				if !ok {
					continue
				}
				found = append(found, info)
				if callback != nil {
					callback(info)
				}
			}
			return false
		})

	return found
}

// GetPESections returns the module's section table via internal/peimage,
// replacing the duplicated minimal PE reader the tool this package
// replaces kept inline.
func (p *Parser) GetPESections(moduleBase uint64) []peimage.SectionInfo {
	img := peimage.New(p.read, moduleBase)
	if !img.ParseHeaders() {
		return nil
	}
	return img.SectionInfos()
}

// ScanModule scans every non-executable initialized-data section at least
// 4KiB in size named .rdata or .data for vtables. moduleBase locates the
// section table; each hit's RVAs are resolved by ParseCOL, against the
// parser's own module base, or against the base recovered from the COL's
// self_rva when the parser was built with base 0.
func (p *Parser) ScanModule(moduleBase uint64, callback func(ClassInfo), h *session.Handle) []ClassInfo {
	sections := p.GetPESections(moduleBase)

	var found []ClassInfo
	for _, s := range sections {
		if s.Characteristics&peimage.SectionMemExecute != 0 {
			continue
		}
		if s.Characteristics&peimage.SectionCntInitData == 0 {
			continue
		}
		if (s.Name != ".rdata" && s.Name != ".data") || s.VirtualSize < 4096 {
			continue
		}

		sectionStart := moduleBase + uint64(s.VirtualAddress)
		found = append(found, p.ScanForVTables(sectionStart, uint64(s.VirtualSize), callback, h)...)

		if h != nil && h.Cancelled() {
			break
		}
	}
	return found
}
