// Package tee implements self-detection, sealed storage, and attestation
// for the confidential-computing boundary described in spec §4.9.
package tee

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// SecurityLevel ranks the runtime's confidentiality guarantee.
// ProcessOnly < VmIsolation < TeeHardware.
type SecurityLevel int

const (
	ProcessOnly SecurityLevel = iota
	VmIsolation
	TeeHardware
)

func (l SecurityLevel) String() string {
	switch l {
	case VmIsolation:
		return "vm_isolation"
	case TeeHardware:
		return "tee_hardware"
	default:
		return "process_only"
	}
}

// State is the runtime's own lifecycle, separate from SecurityLevel
// (which is a fact about the host, set once at startup).
type State int32

const (
	StateUninitialized State = iota
	StateActive
	StateShuttingDown
)

const sevGuestDevice = "/dev/sev-guest"

// vmProductNames are DMI product_name values that indicate a hypervisor,
// per spec §4.9 step 3.
var vmProductNames = []string{"kvm", "qemu", "libkrun"}

// Runtime holds the once-computed security level and current lifecycle
// state. Detection never fails — a probe error degrades the result rather
// than propagating.
type Runtime struct {
	level SecurityLevel
	state atomic.Int32
	mu    sync.Mutex
}

// Detect runs the startup probe sequence once and returns a Runtime in
// StateActive.
func Detect() *Runtime {
	r := &Runtime{level: detectLevel()}
	r.state.Store(int32(StateActive))
	return r
}

func detectLevel() SecurityLevel {
	hasSevGuest := deviceExists(sevGuestDevice)
	sevSNPBit := cpuidSevSNPBitSet()

	if hasSevGuest && sevSNPBit {
		return TeeHardware
	}

	if vmHeuristicMatches() {
		return VmIsolation
	}
	return ProcessOnly
}

func deviceExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// vmHeuristicMatches implements spec §4.9 step 3: DMI product_name match,
// OR hypervisor CPUID leaf, OR "hypervisor" string in /proc/cpuinfo.
func vmHeuristicMatches() bool {
	if dmiProductNameIsVM() {
		return true
	}
	if cpuidHypervisorPresent() {
		return true
	}
	if procCpuinfoMentionsHypervisor() {
		return true
	}
	return false
}

func dmiProductNameIsVM() bool {
	data, err := os.ReadFile("/sys/class/dmi/id/product_name")
	if err != nil {
		return false
	}
	name := strings.ToLower(strings.TrimSpace(string(data)))
	for _, candidate := range vmProductNames {
		if strings.Contains(name, candidate) {
			return true
		}
	}
	return false
}

func procCpuinfoMentionsHypervisor() bool {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return false
	}
	return bytes.Contains(bytes.ToLower(data), []byte("hypervisor"))
}

// Level returns the security level computed at Detect time.
func (r *Runtime) Level() SecurityLevel {
	return r.level
}

// IsTeeActive reports whether the runtime is in StateActive and running
// under genuine TEE hardware.
func (r *Runtime) IsTeeActive() bool {
	return State(r.state.Load()) == StateActive && r.level == TeeHardware
}

// AttestationAvailable is true iff TeeHardware and the device node can
// still be opened (a transient permission or device-removal change after
// startup degrades this without re-running full detection).
func (r *Runtime) AttestationAvailable() bool {
	if r.level != TeeHardware {
		return false
	}
	f, err := os.Open(sevGuestDevice)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Shutdown transitions the runtime to StateShuttingDown. Idempotent.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Store(int32(StateShuttingDown))
}

func (r *Runtime) State() State {
	return State(r.state.Load())
}
