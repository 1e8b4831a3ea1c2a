package tee

import "github.com/arc-self/safeclaw-gateway/internal/errs"

// GenerateAttestationReport produces an SNP attestation report binding
// userData (the caller's 64-byte challenge) into hardware-signed evidence.
// Unavailable unless the runtime is TeeHardware and the device is
// currently readable.
func (r *Runtime) GenerateAttestationReport(userData [64]byte) ([]byte, error) {
	if !r.AttestationAvailable() {
		return nil, errs.New(errs.KindTee, "attestation unavailable at security level "+r.Level().String())
	}
	return generateAttestationReport(userData)
}
