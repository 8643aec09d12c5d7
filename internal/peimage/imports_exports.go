package peimage

import "encoding/binary"

func (im *Image) readNullString(addr uint64, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 256
	}
	raw := im.read(addr, maxLen)
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}

// Imports walks the import directory and returns every imported module
// with its functions, by name or ordinal.
func (im *Image) Imports() []ImportModule {
	dir := im.Optional.DataDirectory[DirImport]
	if dir.VirtualAddress == 0 {
		return nil
	}

	var modules []ImportModule
	descAddr := im.base + uint64(dir.VirtualAddress)

	for i := 0; ; i++ {
		raw := im.read(descAddr+uint64(i*20), 20)
		if len(raw) < 20 {
			break
		}
		var d importDescriptor
		d.OriginalFirstThunk = binary.LittleEndian.Uint32(raw[0:4])
		d.TimeDateStamp = binary.LittleEndian.Uint32(raw[4:8])
		d.ForwarderChain = binary.LittleEndian.Uint32(raw[8:12])
		d.Name = binary.LittleEndian.Uint32(raw[12:16])
		d.FirstThunk = binary.LittleEndian.Uint32(raw[16:20])

		if d.OriginalFirstThunk == 0 && d.Name == 0 && d.FirstThunk == 0 {
			break
		}

		mod := ImportModule{Name: im.readNullString(im.base+uint64(d.Name), 256)}

		thunkRVA := d.OriginalFirstThunk
		if thunkRVA == 0 {
			thunkRVA = d.FirstThunk
		}
		thunkAddr := im.base + uint64(thunkRVA)

		entrySize := uint64(8)
		if !im.Is64Bit() {
			entrySize = 4
		}

		for j := 0; ; j++ {
			thunkRaw := im.read(thunkAddr+uint64(j)*entrySize, int(entrySize))
			if len(thunkRaw) < int(entrySize) {
				break
			}

			var entry ImportEntry
			entry.ThunkRVA = uint64(thunkRVA) + uint64(j)*entrySize

			if im.Is64Bit() {
				val := binary.LittleEndian.Uint64(thunkRaw)
				if val == 0 {
					break
				}
				if val&ordinalFlag64 != 0 {
					entry.ByOrdinal = true
					entry.Ordinal = uint16(val & 0xFFFF)
				} else {
					hintNameAddr := im.base + val
					entry.Name = im.readNullString(hintNameAddr+2, 256)
				}
			} else {
				val := binary.LittleEndian.Uint32(thunkRaw)
				if val == 0 {
					break
				}
				if val&ordinalFlag32 != 0 {
					entry.ByOrdinal = true
					entry.Ordinal = uint16(val & 0xFFFF)
				} else {
					hintNameAddr := im.base + uint64(val)
					entry.Name = im.readNullString(hintNameAddr+2, 256)
				}
			}

			mod.Functions = append(mod.Functions, entry)
		}

		modules = append(modules, mod)
	}

	return modules
}

// Exports walks the export directory's three parallel arrays (functions,
// names, name ordinals) and reports forwarders where the export RVA
// points back inside the export directory itself.
func (im *Image) Exports() []ExportEntry {
	dir := im.Optional.DataDirectory[DirExport]
	if dir.VirtualAddress == 0 {
		return nil
	}

	raw := im.read(im.base+uint64(dir.VirtualAddress), 40)
	if len(raw) < 40 {
		return nil
	}
	var ed exportDirectory
	ed.Characteristics = binary.LittleEndian.Uint32(raw[0:4])
	ed.TimeDateStamp = binary.LittleEndian.Uint32(raw[4:8])
	ed.MajorVersion = binary.LittleEndian.Uint16(raw[8:10])
	ed.MinorVersion = binary.LittleEndian.Uint16(raw[10:12])
	ed.Name = binary.LittleEndian.Uint32(raw[12:16])
	ed.Base = binary.LittleEndian.Uint32(raw[16:20])
	ed.NumberOfFunctions = binary.LittleEndian.Uint32(raw[20:24])
	ed.NumberOfNames = binary.LittleEndian.Uint32(raw[24:28])
	ed.AddressOfFunctions = binary.LittleEndian.Uint32(raw[28:32])
	ed.AddressOfNames = binary.LittleEndian.Uint32(raw[32:36])
	ed.AddressOfNameOrdinals = binary.LittleEndian.Uint32(raw[36:40])

	exportStart := dir.VirtualAddress
	exportEnd := dir.VirtualAddress + dir.Size

	funcs := make([]uint32, ed.NumberOfFunctions)
	for i := range funcs {
		b := im.read(im.base+uint64(ed.AddressOfFunctions)+uint64(i*4), 4)
		if len(b) < 4 {
			break
		}
		funcs[i] = binary.LittleEndian.Uint32(b)
	}

	nameToOrdinal := make(map[uint16]string)
	for i := uint32(0); i < ed.NumberOfNames; i++ {
		nb := im.read(im.base+uint64(ed.AddressOfNames)+uint64(i*4), 4)
		ob := im.read(im.base+uint64(ed.AddressOfNameOrdinals)+uint64(i*2), 2)
		if len(nb) < 4 || len(ob) < 2 {
			continue
		}
		nameRVA := binary.LittleEndian.Uint32(nb)
		ordIdx := binary.LittleEndian.Uint16(ob)
		nameToOrdinal[ordIdx] = im.readNullString(im.base+uint64(nameRVA), 256)
	}

	var out []ExportEntry
	for i, rva := range funcs {
		if rva == 0 {
			continue
		}
		e := ExportEntry{
			Ordinal: uint16(i) + uint16(ed.Base),
			RVA:     rva,
			Address: im.base + uint64(rva),
			Name:    nameToOrdinal[uint16(i)],
		}
		if rva >= exportStart && rva < exportEnd {
			e.IsForwarder = true
			e.ForwarderName = im.readNullString(im.base+uint64(rva), 256)
		}
		out = append(out, e)
	}
	return out
}
