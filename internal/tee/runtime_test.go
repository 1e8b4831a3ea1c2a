package tee

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectNeverFails(t *testing.T) {
	r := Detect()
	assert.NotNil(t, r)
	assert.Equal(t, StateActive, r.State())
}

func TestSecurityLevelOrdering(t *testing.T) {
	assert.True(t, ProcessOnly < VmIsolation)
	assert.True(t, VmIsolation < TeeHardware)
}

func TestIsTeeActiveFalseWhenNotHardware(t *testing.T) {
	r := &Runtime{level: ProcessOnly}
	r.state.Store(int32(StateActive))
	assert.False(t, r.IsTeeActive())
}

func TestIsTeeActiveFalseWhenShuttingDown(t *testing.T) {
	r := &Runtime{level: TeeHardware}
	r.state.Store(int32(StateActive))
	r.Shutdown()
	assert.False(t, r.IsTeeActive())
}

func TestAttestationUnavailableWithoutHardware(t *testing.T) {
	r := &Runtime{level: VmIsolation}
	assert.False(t, r.AttestationAvailable())
}

func TestSecurityLevelString(t *testing.T) {
	assert.Equal(t, "process_only", ProcessOnly.String())
	assert.Equal(t, "vm_isolation", VmIsolation.String())
	assert.Equal(t, "tee_hardware", TeeHardware.String())
}
