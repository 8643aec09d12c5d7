package rtti

import (
	"strings"

	"github.com/orpheus-re/orpheus/internal/demangle"
)

// rttiKind maps the MSVC RTTI type-descriptor kind letter to the keyword
// it demangles to.
var rttiKind = map[byte]string{
	'V': "class ",
	'U': "struct ",
	'T': "union ",
	'W': "enum ",
}

// Demangle demangles a name. If it is in the RTTI-specific ".?A..." form,
// DemangleRTTI handles it directly; otherwise it falls through to the
// general MSVC/Itanium demangler for whatever other mangling scheme a
// caller might feed it (e.g. an export name).
func Demangle(mangled string) string {
	if strings.HasPrefix(mangled, ".?A") {
		return DemangleRTTI(mangled)
	}
	if out, ok := demangle.TryDemangle(mangled); ok {
		return out
	}
	return mangled
}

// DemangleRTTI demangles the RTTI type-descriptor form:
// ".?A" + kind-letter + colon-separated segments reversed, each
// terminated by "@", with the whole name ending in "@@".
//
//	".?AVMyClass@@"            -> "class MyClass"
//	".?AVOuter@Inner@@"        -> "class Inner::Outer"
func DemangleRTTI(mangled string) string {
	if !strings.HasPrefix(mangled, ".?A") || len(mangled) < 4 {
		return mangled
	}
	kind, ok := rttiKind[mangled[3]]
	if !ok {
		return mangled
	}

	body := mangled[4:]
	body = strings.TrimSuffix(body, "@@")

	var segments []string
	for _, seg := range strings.Split(body, "@") {
		if seg == "" {
			continue
		}
		segments = append(segments, seg)
	}

	// Segments are stored innermost-first (e.g. "Outer@Inner" means
	// Inner::Outer); reverse them to get source order.
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}

	return kind + strings.Join(segments, "::")
}
