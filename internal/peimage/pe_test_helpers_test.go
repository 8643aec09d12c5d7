package peimage

import "encoding/binary"

// buildMinimalPE64 assembles a byte image laid out the way ParseHeaders
// expects: a DOS header with e_lfanew pointing at a PE64 header, with
// NumberOfSections set to numSections and room for that many section
// headers plus 0x4000 bytes of section data. The section headers and data
// directories are left zero for putSectionHeader/putDataDirectory to fill
// in. It returns the full buffer.
func buildMinimalPE64(numSections int, sizeOfImage uint32) []byte {
	const lfanew = 0x80
	const optHeaderSize = 112 + 16*8 // PE32+ fixed fields + 16 data directories
	const sectionTableOff = lfanew + 24 + optHeaderSize
	const sectionHeaderSize = 40

	total := sectionTableOff + numSections*sectionHeaderSize + 0x4000
	buf := make([]byte, total)

	// DOS header.
	binary.LittleEndian.PutUint16(buf[0:2], dosSignature)
	binary.LittleEndian.PutUint32(buf[0x3C:0x40], lfanew)

	// PE signature + file header.
	binary.LittleEndian.PutUint32(buf[lfanew:lfanew+4], peSignature)
	fh := lfanew + 4
	binary.LittleEndian.PutUint16(buf[fh+16:fh+18], uint16(optHeaderSize)) // SizeOfOptionalHeader
	binary.LittleEndian.PutUint16(buf[fh+2:fh+4], uint16(numSections))    // NumberOfSections

	// Optional header (PE32+).
	opt := lfanew + 24
	binary.LittleEndian.PutUint16(buf[opt:opt+2], Magic64)
	binary.LittleEndian.PutUint32(buf[opt+16:opt+20], 0x1000) // AddressOfEntryPoint
	binary.LittleEndian.PutUint64(buf[opt+24:opt+32], 0x140000000)
	binary.LittleEndian.PutUint32(buf[opt+32:opt+36], 0x1000) // SectionAlignment
	binary.LittleEndian.PutUint32(buf[opt+36:opt+40], 0x200)  // FileAlignment
	binary.LittleEndian.PutUint32(buf[opt+56:opt+60], sizeOfImage)
	binary.LittleEndian.PutUint32(buf[opt+60:opt+64], 0x400) // SizeOfHeaders
	binary.LittleEndian.PutUint32(buf[opt+108:opt+112], 16)  // NumberOfRvaAndSizes

	return buf
}

func putDataDirectory(buf []byte, index int, rva, size uint32) {
	const lfanew = 0x80
	opt := lfanew + 24
	ddOff := opt + 112 + index*8
	binary.LittleEndian.PutUint32(buf[ddOff:ddOff+4], rva)
	binary.LittleEndian.PutUint32(buf[ddOff+4:ddOff+8], size)
}

func putSectionHeader(buf []byte, index int, name string, virtAddr, virtSize, rawOff, rawSize uint32) {
	const lfanew = 0x80
	const optHeaderSize = 112 + 16*8
	sectionTableOff := lfanew + 24 + optHeaderSize
	off := sectionTableOff + index*40
	copy(buf[off:off+8], name)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], virtSize)
	binary.LittleEndian.PutUint32(buf[off+12:off+16], virtAddr)
	binary.LittleEndian.PutUint32(buf[off+16:off+20], rawSize)
	binary.LittleEndian.PutUint32(buf[off+20:off+24], rawOff)
}
