package pattern

// Common is a small library of frequently-searched-for x64 byte patterns,
// ported from the reversing tool this package replaces.
var Common = map[string]string{
	"call_rel32":         "E8 ?? ?? ?? ??",
	"jmp_rel32":          "E9 ?? ?? ?? ??",
	"lea_rip_rel":        "48 8D ?? ?? ?? ?? ??",
	"mov_rax_imm64":      "48 B8 ?? ?? ?? ?? ?? ?? ?? ??",
	"mov_rcx_imm64":      "48 B9 ?? ?? ?? ?? ?? ?? ?? ??",
	"func_prologue_1":    "40 55 48 83 EC",
	"func_prologue_2":    "48 89 5C 24 ?? 48 89 6C",
	"func_prologue_3":    "48 83 EC ?? 48 8B",
	"isdebuggerpresent":  "FF 15 ?? ?? ?? ?? 85 C0 74",
	"ntqueryinfo":        "B9 07 00 00 00",
}
