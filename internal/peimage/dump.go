package peimage

import "encoding/binary"

// Dump reconstructs a file-layout PE image from the memory-mapped one at
// im.base. With opts.UnmapSections it repacks each section's raw data at
// an opts.FileAlignment-aligned file offset (the memory layout is
// SectionAlignment-aligned, almost always 0x1000, which is wasteful and
// often invalid as a file); without it, the memory layout is dumped
// byte-for-byte (SizeOfImage bytes starting at the base).
func (im *Image) Dump(opts DumpOptions) []byte {
	if im.Optional.SizeOfImage == 0 {
		im.fail("image not parsed or SizeOfImage is zero")
		return nil
	}

	if !opts.UnmapSections {
		return im.dumpMemoryLayout()
	}
	return im.dumpFileLayout(opts)
}

func (im *Image) dumpMemoryLayout() []byte {
	size := im.Optional.SizeOfImage
	buf := im.read(im.base, int(size))
	if len(buf) < int(size) {
		padded := make([]byte, size)
		copy(padded, buf)
		buf = padded
	}
	return buf
}

func (im *Image) dumpFileLayout(opts DumpOptions) []byte {
	fa := opts.FileAlignment
	if fa == 0 {
		fa = 0x200
	}

	headerSize := im.Optional.SizeOfHeaders
	if headerSize == 0 {
		headerSize = fa
	}
	header := im.read(im.base, int(headerSize))
	if len(header) < int(headerSize) {
		padded := make([]byte, headerSize)
		copy(padded, header)
		header = padded
	}

	alignedHeaderSize := alignUp(headerSize, fa)

	var laid []laidOutSection
	cursor := alignedHeaderSize
	for _, s := range im.Sections {
		data := im.read(im.base+uint64(s.VirtualAddress), int(s.VirtualSize))
		fileSize := alignUp(uint32(len(data)), fa)
		if fileSize == 0 {
			// A zero-sized or entirely unread section still occupies one
			// alignment unit in the file layout; never let it collapse two
			// sections onto the same file offset.
			fileSize = fa
		}
		padded := make([]byte, fileSize)
		copy(padded, data)
		laid = append(laid, laidOutSection{section: s, fileOff: cursor, fileSize: fileSize, data: padded})
		cursor += fileSize
	}

	out := make([]byte, cursor)
	copy(out, header)

	if opts.FixHeaders {
		patchSectionHeaders(out, im, laid, fa, alignedHeaderSize)
	}

	for _, l := range laid {
		copy(out[l.fileOff:l.fileOff+uint32(len(l.data))], l.data)
	}

	return out
}

type laidOutSection struct {
	section  SectionHeader
	fileOff  uint32
	fileSize uint32
	data     []byte
}

// patchSectionHeaders rewrites PointerToRawData/SizeOfRawData in the
// dumped header bytes to match the new file-layout offsets, and patches
// the optional header's FileAlignment and SizeOfHeaders fields, so a
// static analysis tool that trusts the header's own file offsets gets
// correct ones instead of the memory layout's.
func patchSectionHeaders(out []byte, im *Image, laid []laidOutSection, fileAlign, headerSize uint32) {
	sectionTableAddr := int(im.Dos.ELfanew) + 24 + int(im.File.SizeOfOptionalHeader)

	for i, l := range laid {
		off := sectionTableAddr + i*40
		if off+40 > len(out) {
			break
		}
		binary.LittleEndian.PutUint32(out[off+16:off+20], l.fileOff)
		binary.LittleEndian.PutUint32(out[off+20:off+24], l.fileSize)
		_ = l.section
	}

	optAddr := int(im.Dos.ELfanew) + 24
	faFieldOff := optAddr + 36
	if faFieldOff+4 <= len(out) {
		binary.LittleEndian.PutUint32(out[faFieldOff:faFieldOff+4], fileAlign)
	}

	sizeOfHeadersOff := optAddr + 60
	if sizeOfHeadersOff+4 <= len(out) {
		binary.LittleEndian.PutUint32(out[sizeOfHeadersOff:sizeOfHeadersOff+4], headerSize)
	}
}
