//go:build amd64

package tee

// cpuid is implemented in cpuid_amd64.s — a small hand-written stub since
// the module otherwise avoids cgo and this is a two-instruction leaf read
// no published library wraps more conveniently than asm.
func cpuid(eax, ecx uint32) (a, b, c, d uint32)

// cpuidSevSNPBitSet checks CPUID leaf 0x8000001F, EAX bit 4 (SEV-SNP).
func cpuidSevSNPBitSet() bool {
	a, _, _, _ := cpuid(0x8000001F, 0)
	return a&(1<<4) != 0
}

// cpuidHypervisorPresent checks for the hypervisor CPUID leaf
// (0x40000000 reporting a vendor string means a hypervisor is present).
func cpuidHypervisorPresent() bool {
	a, _, _, _ := cpuid(0x40000000, 0)
	return a >= 0x40000000
}
