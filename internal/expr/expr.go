// Package expr evaluates reversing-context address expressions: hex
// arithmetic, $-prefixed variables, module/register identifiers, and
// [addr]-style pointer dereference, against a live DMA source.
package expr

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"

	"github.com/orpheus-re/orpheus/internal/dma"
)

// identRE matches a bare identifier (module name or register), used to
// decide whether to rewrite a token as a variable reference into the
// resolved-identifier table before handing the expression to goja.
var identRE = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_.]*`)

// bracketRE rewrites `[...]` dereference syntax to `deref(...)` calls,
// since goja is a JS runtime and has no such operator. Doesn't attempt to
// nest-balance; address expressions in practice are shallow enough that a
// simple pass suffices. Non-greedy so back-to-back "[a][b]" stays two
// deref() calls instead of one spanning both.
var bracketRE = regexp.MustCompile(`\[([^\[\]]*)\]`)

// Resolver resolves a bare identifier (module name or lowercase register
// mnemonic) to a value. Returning ok=false for an identifier lets
// Evaluate try the next resolver; if none answer, the identifier is left
// as-is and goja fails with a ReferenceError.
type Resolver func(name string) (uint64, bool)

// Evaluate compiles and runs expr as a small JavaScript snippet. vars
// supplies $name variable bindings; resolvers are tried in order for any
// bare identifier not found in vars (conventionally a register resolver
// then a module-base resolver, matching the original tool's lookup
// order). read, if non-nil, backs [addr] dereference syntax with an
// 8-byte little-endian load; a nil read makes any dereference an error.
func Evaluate(expression string, vars map[string]uint64, read dma.ReadFunc, resolvers ...Resolver) (uint64, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return 0, fmt.Errorf("empty expression")
	}

	vm := goja.New()

	vm.Set("deref", func(addr uint64) (uint64, error) {
		if read == nil {
			return 0, fmt.Errorf("memory reader not available")
		}
		raw := read(addr, 8)
		if len(raw) < 8 {
			return 0, fmt.Errorf("failed to read memory at 0x%x", addr)
		}
		var v uint64
		for i := 7; i >= 0; i-- {
			v = v<<8 | uint64(raw[i])
		}
		return v, nil
	})

	resolved := make(map[string]uint64)
	js := bracketRE.ReplaceAllString(trimmed, "deref($1)")
	js = rewriteDollarVars(js, vars)
	js = rewriteIdentifiers(js, vars, resolved, resolvers)

	for name, v := range resolved {
		vm.Set(name, v)
	}

	val, err := vm.RunString(js)
	if err != nil {
		return 0, err
	}
	f := val.ToFloat()
	if f < 0 {
		return uint64(int64(f)), nil
	}
	return uint64(f), nil
}

// rewriteDollarVars replaces every $name with its bound value, or leaves
// it as a reference that will fail at runtime as "name is not defined"
// if unbound (goja's native ReferenceError reads fine as an eval error).
func rewriteDollarVars(js string, vars map[string]uint64) string {
	var out strings.Builder
	i := 0
	for i < len(js) {
		if js[i] == '$' {
			j := i + 1
			for j < len(js) && isIdentByte(js[j]) {
				j++
			}
			name := js[i+1 : j]
			if v, ok := vars[name]; ok {
				fmt.Fprintf(&out, "%d", v)
			} else {
				out.WriteString(name)
			}
			i = j
			continue
		}
		out.WriteByte(js[i])
		i++
	}
	return out.String()
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// rewriteIdentifiers finds bare identifiers that aren't JS keywords we
// introduced ("deref") and resolves them via resolvers, substituting a
// unique JS variable name bound to the resolved value.
func rewriteIdentifiers(js string, vars map[string]uint64, resolved map[string]uint64, resolvers []Resolver) string {
	n := 0
	return identRE.ReplaceAllStringFunc(js, func(tok string) string {
		if tok == "deref" {
			return tok
		}
		if v, ok := vars[tok]; ok {
			return fmt.Sprintf("%d", v)
		}
		for _, resolve := range resolvers {
			if v, ok := resolve(strings.ToLower(tok)); ok {
				slot := fmt.Sprintf("__id%d", n)
				n++
				resolved[slot] = v
				return slot
			}
		}
		return tok
	})
}
