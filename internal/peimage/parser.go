package peimage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/orpheus-re/orpheus/internal/dma"
)

// Image is a parsed PE header view over a DMA-backed module base address.
// ParseHeaders reads the headers once and the header accessors return
// those cached values; Imports, Exports, and Dump read through the bound
// ReadFunc again on every call.
type Image struct {
	read dma.ReadFunc
	base uint64

	Dos      DosHeader
	File     FileHeader
	Optional OptionalHeader
	Sections []SectionHeader

	lastErr string
}

// New creates an unparsed Image bound to read and base. Call ParseHeaders
// before using any other method.
func New(read dma.ReadFunc, base uint64) *Image {
	return &Image{read: read, base: base}
}

func (im *Image) fail(format string, args ...interface{}) bool {
	im.lastErr = fmt.Sprintf(format, args...)
	return false
}

// LastError returns the reason the most recent failing call returned
// false/empty, or "" if the last call succeeded.
func (im *Image) LastError() string { return im.lastErr }

func readStruct(data []byte, out interface{}) error {
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, out)
}

// ParseHeaders reads the DOS header, PE signature, COFF header, optional
// header, and section table. It returns false (with LastError explaining
// why) on any short read or malformed field — never a panic.
func (im *Image) ParseHeaders() bool {
	raw := im.read(im.base, 0x40)
	if len(raw) < 0x40 {
		return im.fail("short read for DOS header at 0x%x", im.base)
	}
	im.Dos.EMagic = binary.LittleEndian.Uint16(raw[0:2])
	im.Dos.ELfanew = int32(binary.LittleEndian.Uint32(raw[0x3C:0x40]))
	if im.Dos.EMagic != dosSignature {
		return im.fail("bad DOS signature 0x%x", im.Dos.EMagic)
	}

	peHdrAddr := im.base + uint64(im.Dos.ELfanew)
	peHdr := im.read(peHdrAddr, 4+20)
	if len(peHdr) < 24 {
		return im.fail("short read for PE header at 0x%x", peHdrAddr)
	}
	sig := binary.LittleEndian.Uint32(peHdr[0:4])
	if sig != peSignature {
		return im.fail("bad PE signature 0x%x", sig)
	}
	if err := readStruct(peHdr[4:24], &im.File); err != nil {
		return im.fail("parse file header: %v", err)
	}

	optAddr := peHdrAddr + 24
	optRaw := im.read(optAddr, int(im.File.SizeOfOptionalHeader))
	if len(optRaw) < 2 {
		return im.fail("short read for optional header at 0x%x", optAddr)
	}
	magic := binary.LittleEndian.Uint16(optRaw[0:2])
	switch magic {
	case Magic64:
		if !im.parseOptional64(optRaw) {
			return false
		}
	case Magic32:
		if !im.parseOptional32(optRaw) {
			return false
		}
	default:
		return im.fail("unknown optional header magic 0x%x", magic)
	}

	sectionAddr := optAddr + uint64(im.File.SizeOfOptionalHeader)
	im.Sections = make([]SectionHeader, 0, im.File.NumberOfSections)
	for i := 0; i < int(im.File.NumberOfSections); i++ {
		raw := im.read(sectionAddr+uint64(i*40), 40)
		if len(raw) < 40 {
			return im.fail("short read for section header %d", i)
		}
		var sh SectionHeader
		copy(sh.Name[:], raw[0:8])
		sh.VirtualSize = binary.LittleEndian.Uint32(raw[8:12])
		sh.VirtualAddress = binary.LittleEndian.Uint32(raw[12:16])
		sh.SizeOfRawData = binary.LittleEndian.Uint32(raw[16:20])
		sh.PointerToRawData = binary.LittleEndian.Uint32(raw[20:24])
		sh.PointerToRelocations = binary.LittleEndian.Uint32(raw[24:28])
		sh.PointerToLinenumbers = binary.LittleEndian.Uint32(raw[28:32])
		sh.NumberOfRelocations = binary.LittleEndian.Uint16(raw[32:34])
		sh.NumberOfLinenumbers = binary.LittleEndian.Uint16(raw[34:36])
		sh.Characteristics = binary.LittleEndian.Uint32(raw[36:40])
		im.Sections = append(im.Sections, sh)
	}

	im.lastErr = ""
	return true
}

func (im *Image) parseOptional64(raw []byte) bool {
	const need = 112 + 16*8
	if len(raw) < need {
		return im.fail("short optional header (PE32+), got %d bytes", len(raw))
	}
	h := &im.Optional
	h.Magic = binary.LittleEndian.Uint16(raw[0:2])
	h.AddressOfEntryPoint = binary.LittleEndian.Uint32(raw[16:20])
	h.ImageBase = binary.LittleEndian.Uint64(raw[24:32])
	h.SectionAlignment = binary.LittleEndian.Uint32(raw[32:36])
	h.FileAlignment = binary.LittleEndian.Uint32(raw[36:40])
	h.SizeOfImage = binary.LittleEndian.Uint32(raw[56:60])
	h.SizeOfHeaders = binary.LittleEndian.Uint32(raw[60:64])
	h.NumberOfRvaAndSizes = binary.LittleEndian.Uint32(raw[108:112])
	im.readDataDirectories(raw[112:], h)
	return true
}

func (im *Image) parseOptional32(raw []byte) bool {
	const need = 96 + 16*8
	if len(raw) < need {
		return im.fail("short optional header (PE32), got %d bytes", len(raw))
	}
	h := &im.Optional
	h.Magic = binary.LittleEndian.Uint16(raw[0:2])
	h.AddressOfEntryPoint = binary.LittleEndian.Uint32(raw[16:20])
	h.ImageBase = uint64(binary.LittleEndian.Uint32(raw[28:32]))
	h.SectionAlignment = binary.LittleEndian.Uint32(raw[32:36])
	h.FileAlignment = binary.LittleEndian.Uint32(raw[36:40])
	h.SizeOfImage = binary.LittleEndian.Uint32(raw[56:60])
	h.SizeOfHeaders = binary.LittleEndian.Uint32(raw[60:64])
	h.NumberOfRvaAndSizes = binary.LittleEndian.Uint32(raw[92:96])
	im.readDataDirectories(raw[96:], h)
	return true
}

func (im *Image) readDataDirectories(raw []byte, h *OptionalHeader) {
	for i := 0; i < 16 && i*8+8 <= len(raw); i++ {
		h.DataDirectory[i] = DataDirectory{
			VirtualAddress: binary.LittleEndian.Uint32(raw[i*8 : i*8+4]),
			Size:           binary.LittleEndian.Uint32(raw[i*8+4 : i*8+8]),
		}
	}
}

// Is64Bit reports whether the most recently parsed header is PE32+.
func (im *Image) Is64Bit() bool { return im.Optional.Is64Bit() }

// ImageSize returns SizeOfImage from the optional header.
func (im *Image) ImageSize() uint32 { return im.Optional.SizeOfImage }

// EntryPoint returns the entry point RVA.
func (im *Image) EntryPoint() uint32 { return im.Optional.AddressOfEntryPoint }

// rvaToOffset maps a memory-layout RVA to the file-layout offset of the
// section that contains it. Returns the RVA unchanged if no section
// contains it (headers themselves sit before the first section).
func rvaToOffset(rva uint32, sections []SectionHeader) uint32 {
	for _, s := range sections {
		start := s.VirtualAddress
		end := start + s.VirtualSize
		if s.VirtualSize == 0 {
			end = start + s.SizeOfRawData
		}
		if rva >= start && rva < end {
			return s.PointerToRawData + (rva - start)
		}
	}
	return rva
}

// SectionInfos returns the section table as SectionInfo.
func (im *Image) SectionInfos() []SectionInfo {
	out := make([]SectionInfo, 0, len(im.Sections))
	for _, s := range im.Sections {
		out = append(out, SectionInfo{
			Name:            s.NameString(),
			VirtualAddress:  s.VirtualAddress,
			VirtualSize:     s.VirtualSize,
			RawSize:         s.SizeOfRawData,
			RawOffset:       s.PointerToRawData,
			Characteristics: s.Characteristics,
		})
	}
	return out
}

func alignUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
