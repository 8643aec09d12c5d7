package demangle

import "testing"

func TestTryDemangleItanium(t *testing.T) {
	out, ok := TryDemangle("_Znwm")
	if !ok {
		t.Fatal("expected _Znwm to be recognized as mangled")
	}
	if out == "_Znwm" {
		t.Error("expected demangled output to differ from input")
	}
}

func TestTryDemangleUnrecognized(t *testing.T) {
	out, ok := TryDemangle("not_a_mangled_name")
	if ok {
		t.Errorf("expected unrecognized name to report false, got %q", out)
	}
}
