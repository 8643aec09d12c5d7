// Package demangle wraps ianlancetaylor/demangle as the optional general
// symbol demangler callers can fall back to when a name isn't in the
// RTTI-specific form internal/rtti handles directly.
package demangle

import (
	"github.com/ianlancetaylor/demangle"
)

// TryDemangle attempts to demangle an Itanium or MSVC-mangled symbol name.
// It reports false if the name is not recognized as mangled.
func TryDemangle(mangled string) (string, bool) {
	if out, err := demangle.ToString(mangled, demangle.NoParams); err == nil && out != mangled {
		return out, true
	}
	return mangled, false
}
