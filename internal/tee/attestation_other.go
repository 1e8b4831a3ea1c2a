//go:build !linux

package tee

import "github.com/arc-self/safeclaw-gateway/internal/errs"

func generateAttestationReport(userData [64]byte) ([]byte, error) {
	return nil, errs.New(errs.KindTee, "attestation unavailable on this platform")
}

func getDerivedKeyFromDevice() ([]byte, error) {
	return nil, errNoDerivedKeySupport
}
