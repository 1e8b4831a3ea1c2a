//go:build !amd64

package tee

// Non-amd64 hosts have no SEV-SNP path; detection degrades to the VM
// heuristics that don't require CPUID.
func cpuidSevSNPBitSet() bool { return false }

func cpuidHypervisorPresent() bool { return false }
