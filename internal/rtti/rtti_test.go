package rtti

import (
	"encoding/binary"
	"testing"

	"github.com/orpheus-re/orpheus/internal/dma"
)

func TestDemangleRTTISimple(t *testing.T) {
	got := DemangleRTTI(".?AVMyClass@@")
	if got != "class MyClass" {
		t.Errorf("got %q, want %q", got, "class MyClass")
	}
}

func TestDemangleRTTINested(t *testing.T) {
	got := DemangleRTTI(".?AVOuter@Inner@@")
	if got != "class Inner::Outer" {
		t.Errorf("got %q, want %q", got, "class Inner::Outer")
	}
}

func TestDemangleRTTIStructKind(t *testing.T) {
	got := DemangleRTTI(".?AUPoint@@")
	if got != "struct Point" {
		t.Errorf("got %q, want %q", got, "struct Point")
	}
}

func TestDemangleFallsThroughToGeneralDemangler(t *testing.T) {
	got := Demangle("not_rtti_and_not_mangled_either")
	if got != "not_rtti_and_not_mangled_either" {
		t.Errorf("got %q, want unchanged input", got)
	}
}

// buildVtableFixture assembles a minimal but complete MSVC x64 RTTI chain
// (COL, TypeDescriptor, CHD, vtable with two method slots) inside a single
// flat buffer based at `base`, and returns the vtable's address.
func buildVtableFixture(base uint64) (*dma.Fake, uint64) {
	data := make([]byte, 0x10000)

	const (
		tdRVA    = 0x500
		chdRVA   = 0x600
		colRVA   = 0x8000
		vtblRVA  = 0x9000
		method0  = 0x1000
		method1  = 0x1100
	)

	// COL at colRVA.
	binary.LittleEndian.PutUint32(data[colRVA:colRVA+4], 1)        // Signature
	binary.LittleEndian.PutUint32(data[colRVA+4:colRVA+8], 0)      // Offset
	binary.LittleEndian.PutUint32(data[colRVA+8:colRVA+12], 0)     // CDOffset
	binary.LittleEndian.PutUint32(data[colRVA+12:colRVA+16], tdRVA)
	binary.LittleEndian.PutUint32(data[colRVA+16:colRVA+20], chdRVA)
	binary.LittleEndian.PutUint32(data[colRVA+20:colRVA+24], colRVA)

	// TypeDescriptor at tdRVA: 8-byte vtable ptr, 8-byte spare, then name.
	copy(data[tdRVA+16:], ".?AVMyClass@@\x00")

	// ClassHierarchyDescriptor at chdRVA: no base classes besides self.
	binary.LittleEndian.PutUint32(data[chdRVA:chdRVA+4], 0)  // Signature
	binary.LittleEndian.PutUint32(data[chdRVA+4:chdRVA+8], 0) // Attributes
	binary.LittleEndian.PutUint32(data[chdRVA+8:chdRVA+12], 1) // NumBaseClasses (self only)

	// vtable[-1] holds the COL's absolute address.
	binary.LittleEndian.PutUint64(data[vtblRVA-8:vtblRVA], base+colRVA)

	// Two method slots, then a zero terminator.
	binary.LittleEndian.PutUint64(data[vtblRVA:vtblRVA+8], base+method0)
	binary.LittleEndian.PutUint64(data[vtblRVA+8:vtblRVA+16], base+method1)
	binary.LittleEndian.PutUint64(data[vtblRVA+16:vtblRVA+24], 0)

	// Non-filler bytes at each method target so CountMethods accepts them.
	data[method0], data[method0+1] = 0x55, 0x8B
	data[method1], data[method1+1] = 0x48, 0x89

	fake := dma.NewFake(base, data)
	return fake, base + vtblRVA
}

func TestParseVTableRecoversClassInfo(t *testing.T) {
	const base = 0x400000
	fake, vtableAddr := buildVtableFixture(base)
	p := New(dma.Bind(fake, 1), base)

	info, ok := p.ParseVTable(vtableAddr)
	if !ok {
		t.Fatal("ParseVTable failed")
	}
	if info.DemangledName != "class MyClass" {
		t.Errorf("DemangledName: got %q, want %q", info.DemangledName, "class MyClass")
	}
	if info.MethodCount != 2 {
		t.Errorf("MethodCount: got %d, want 2", info.MethodCount)
	}
	if info.VtableAddress != vtableAddr {
		t.Errorf("VtableAddress: got 0x%x, want 0x%x", info.VtableAddress, vtableAddr)
	}
}

func TestParseCOLRecoversModuleBaseFromSelfRVAWhenUnknown(t *testing.T) {
	const base = 0x400000
	fake, vtableAddr := buildVtableFixture(base)
	// New is constructed with no known module base; ParseCOL must recover
	// it from the COL's own self_rva field.
	p := New(dma.Bind(fake, 1), 0)

	raw := p.read(vtableAddr-8, 8)
	colAddr := binary.LittleEndian.Uint64(raw)

	info, ok := p.ParseCOL(colAddr)
	if !ok {
		t.Fatal("ParseCOL failed")
	}
	if info.MangledName != ".?AVMyClass@@" {
		t.Errorf("MangledName: got %q", info.MangledName)
	}
}

func TestParseCOLPrefersKnownModuleBaseOverSelfRVA(t *testing.T) {
	const base = 0x400000
	fake, vtableAddr := buildVtableFixture(base)
	// New is constructed with the real module base; ParseCOL must trust it
	// rather than recomputing (and potentially getting a different answer)
	// from self_rva.
	p := New(dma.Bind(fake, 1), base)

	raw := p.read(vtableAddr-8, 8)
	colAddr := binary.LittleEndian.Uint64(raw)

	info, ok := p.ParseCOL(colAddr)
	if !ok {
		t.Fatal("ParseCOL failed")
	}
	if info.MangledName != ".?AVMyClass@@" {
		t.Errorf("MangledName: got %q", info.MangledName)
	}
}

func TestIsValidVTable(t *testing.T) {
	const base = 0x400000
	fake, vtableAddr := buildVtableFixture(base)
	p := New(dma.Bind(fake, 1), base)

	if !p.IsValidVTable(vtableAddr) {
		t.Error("expected constructed vtable to be valid")
	}
	if p.IsValidVTable(vtableAddr + 0x4000) {
		t.Error("expected an address with no COL pointer to be invalid")
	}
}

func TestCountMethodsStopsAtZeroEntry(t *testing.T) {
	const base = 0x400000
	fake, vtableAddr := buildVtableFixture(base)
	p := New(dma.Bind(fake, 1), base)

	if got := p.CountMethods(vtableAddr, 1024); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestCountMethodsRejectsNonCanonicalPointer(t *testing.T) {
	const base = 0x400000
	fake, vtableAddr := buildVtableFixture(base)
	p := New(dma.Bind(fake, 1), base)

	// Overwrite the second slot with a pointer above the canonical
	// user-space ceiling; only the first entry should count.
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, 0x0001_0000_0000_0000)
	fake.Write(vtableAddr+8, raw)

	if got := p.CountMethods(vtableAddr, 1024); got != 1 {
		t.Errorf("got %d, want 1 (non-canonical pointer should stop the walk)", got)
	}
}

func TestCountMethodsStopsAtSmallIntegerFillerPattern(t *testing.T) {
	const base = 0x400000
	fake, vtableAddr := buildVtableFixture(base)
	p := New(dma.Bind(fake, 1), base)

	// Point the second slot at a target whose first four bytes look like a
	// small integer (0x05 followed by three zero bytes) rather than code.
	const fillerTarget = 0x2000
	fake.Write(base+fillerTarget, []byte{0x05, 0x00, 0x00, 0x00})
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, base+fillerTarget)
	fake.Write(vtableAddr+8, raw)

	if got := p.CountMethods(vtableAddr, 1024); got != 1 {
		t.Errorf("got %d, want 1 (small-integer filler pattern should stop the walk)", got)
	}
}

func TestParseFullVTableCollectsEntries(t *testing.T) {
	const base = 0x400000
	fake, vtableAddr := buildVtableFixture(base)
	p := New(dma.Bind(fake, 1), base)

	info, ok := p.ParseFullVTable(vtableAddr, 0)
	if !ok {
		t.Fatal("ParseFullVTable failed")
	}
	if len(info.Entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(info.Entries), info.Entries)
	}
	if info.Entries[0].Address != base+0x1000 {
		t.Errorf("entry 0 address: got 0x%x, want 0x%x", info.Entries[0].Address, base+0x1000)
	}
}

func TestSetModuleSizeBoundsRVALookups(t *testing.T) {
	const base = 0x400000
	fake, vtableAddr := buildVtableFixture(base)
	p := New(dma.Bind(fake, 1), base)

	raw := p.read(vtableAddr-8, 8)
	colAddr := binary.LittleEndian.Uint64(raw)

	// Unbounded (the default), the fixture's type descriptor RVA (0x500)
	// resolves fine.
	if _, ok := p.ParseCOL(colAddr); !ok {
		t.Fatal("ParseCOL failed with no module size set")
	}

	// Once the module size is set smaller than the type descriptor's RVA,
	// the RVA is out of bounds and the lookup must fail rather than read
	// past the module.
	p2 := New(dma.Bind(fake, 1), base)
	p2.SetModuleSize(0x100)
	if _, ok := p2.ParseCOL(colAddr); ok {
		t.Error("expected ParseCOL to fail once the type descriptor RVA is out of the bounded module size")
	}
}

func TestClassInfoFlagsAndHierarchy(t *testing.T) {
	c := ClassInfo{
		DemangledName:         "class Derived",
		IsMultipleInheritance: true,
		HasVirtualBase:        true,
		BaseClasses:           []string{"class Base1", "struct Base2"},
	}
	if c.Flags() != "MV" {
		t.Errorf("Flags: got %q, want MV", c.Flags())
	}
	want := "Derived: Base1, Base2"
	if c.Hierarchy() != want {
		t.Errorf("Hierarchy: got %q, want %q", c.Hierarchy(), want)
	}
}
