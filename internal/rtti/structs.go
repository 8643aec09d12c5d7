// Package rtti recovers MSVC x64 RTTI (Complete Object Locator, Type
// Descriptor, Class Hierarchy Descriptor) from a vtable address, letting a
// caller turn an arbitrary vtable pointer found in memory into a class
// name and inheritance chain.
package rtti

const (
	colSize = 0x18
	chdSize = 0x10
	bcdSize = 0x1C
)

// CompleteObjectLocator (COL) sits at vtable[-1] and is the root of MSVC
// x64 RTTI recovery: every other structure is reached via an RVA stored
// here, relative to the owning module's base.
type CompleteObjectLocator struct {
	Signature         uint32
	Offset            uint32
	CDOffset          uint32
	TypeDescriptorRVA int32
	ClassHierarchyRVA int32
	SelfRVA           int32
}

// ClassHierarchyDescriptor (CHD) describes the inheritance shape of a
// class: how many base classes it has and whether that inheritance is
// multiple and/or virtual.
type ClassHierarchyDescriptor struct {
	Signature        uint32
	Attributes       uint32
	NumBaseClasses   uint32
	BaseClassArrayRVA int32
}

const (
	CHDMultipleInheritance = 0x01
	CHDVirtualInheritance  = 0x02
	CHDAmbiguous           = 0x04
)

func (c ClassHierarchyDescriptor) MultipleInheritance() bool {
	return c.Attributes&CHDMultipleInheritance != 0
}
func (c ClassHierarchyDescriptor) VirtualInheritance() bool {
	return c.Attributes&CHDVirtualInheritance != 0
}
func (c ClassHierarchyDescriptor) Ambiguous() bool {
	return c.Attributes&CHDAmbiguous != 0
}

// BaseClassDescriptor (BCD) describes one entry of a class hierarchy's
// base class array.
type BaseClassDescriptor struct {
	TypeDescriptorRVA   int32
	NumContainedBases   uint32
	MemberDisplacement  int32
	VBTableDisplacement int32
	VBTableOffset       uint32
	Attributes          uint32
	ClassHierarchyRVA   int32
}

// ClassInfo is the recovered, human-usable view of one vtable's RTTI.
type ClassInfo struct {
	VtableAddress         uint64
	COLAddress            uint64
	MangledName           string
	DemangledName         string
	VftableOffset         uint32
	HasVirtualBase        bool
	IsMultipleInheritance bool
	MethodCount           uint32
	BaseClasses           []string
}

// Flags renders the ClassInformer-style compact flag string ("M", "V",
// "MV", or "").
func (c ClassInfo) Flags() string {
	var f string
	if c.IsMultipleInheritance {
		f += "M"
	}
	if c.HasVirtualBase {
		f += "V"
	}
	return f
}

// Hierarchy renders the ClassInformer-style "Name: Base1, Base2" string,
// stripping the "class "/"struct " prefix from every name involved.
func (c ClassInfo) Hierarchy() string {
	result := stripPrefix(c.DemangledName)
	if len(c.BaseClasses) == 0 {
		return result
	}
	result += ": "
	for i, b := range c.BaseClasses {
		if i > 0 {
			result += ", "
		}
		result += stripPrefix(b)
	}
	return result
}

func stripPrefix(s string) string {
	for _, p := range []string{"class ", "struct ", "union ", "enum "} {
		if len(s) >= len(p) && s[:len(p)] == p {
			return s[len(p):]
		}
	}
	return s
}

// VTableEntry is one resolved function pointer slot.
type VTableEntry struct {
	Address uint64
	Index   int
}

// VTableInfo is a fully parsed vtable: its class info plus every method
// slot CountMethods determined to be a real function pointer.
type VTableInfo struct {
	Address   uint64
	Class     ClassInfo
	Entries   []VTableEntry
	SizeBytes int
}
