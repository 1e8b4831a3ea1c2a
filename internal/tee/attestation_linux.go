//go:build linux

package tee

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/arc-self/safeclaw-gateway/internal/errs"
)

// SEV-SNP guest device ioctl numbers and request/response layouts, per the
// Linux kernel's sev-guest ABI (include/uapi/linux/sev-guest.h).
const (
	snpGetReportIoctl      = 0xc0905300
	snpGetDerivedKeyIoctl  = 0xc0105301
	snpReportRequestSize   = 96
	snpReportResponseSize  = 0x2A0
	snpDerivedKeyRespSize  = 32
)

type snpGuestRequest struct {
	MsgVersion uint8
	_          [7]byte
	ReqData    uint64
	RespData   uint64
	FwErr      uint64
}

// generateAttestationReport issues SNP_GET_REPORT with userData (64 bytes)
// embedded in the report request, returning the raw response buffer.
func generateAttestationReport(userData [64]byte) ([]byte, error) {
	f, err := os.OpenFile(sevGuestDevice, os.O_RDWR, 0)
	if err != nil {
		return nil, errs.Wrap(errs.KindTee, "sev-guest device unavailable", err)
	}
	defer f.Close()

	req := make([]byte, snpReportRequestSize)
	copy(req, userData[:])

	resp := make([]byte, snpReportResponseSize)

	guestReq := snpGuestRequest{
		MsgVersion: 1,
		ReqData:    uint64(uintptr(unsafe.Pointer(&req[0]))),
		RespData:   uint64(uintptr(unsafe.Pointer(&resp[0]))),
	}

	if err := ioctl(f.Fd(), snpGetReportIoctl, uintptr(unsafe.Pointer(&guestReq))); err != nil {
		return nil, errs.Wrap(errs.KindTee, "SNP_GET_REPORT ioctl failed", err)
	}
	return resp, nil
}

// getDerivedKeyFromDevice issues SNP_GET_DERIVED_KEY, bound to the guest's
// root key, measurement, and policy by the firmware — the device does the
// binding, this call only retrieves the result.
func getDerivedKeyFromDevice() ([]byte, error) {
	f, err := os.OpenFile(sevGuestDevice, os.O_RDWR, 0)
	if err != nil {
		return nil, errNoDerivedKeySupport
	}
	defer f.Close()

	resp := make([]byte, snpDerivedKeyRespSize)
	guestReq := snpGuestRequest{
		MsgVersion: 1,
		RespData:   uint64(uintptr(unsafe.Pointer(&resp[0]))),
	}

	if err := ioctl(f.Fd(), snpGetDerivedKeyIoctl, uintptr(unsafe.Pointer(&guestReq))); err != nil {
		return nil, errs.Wrap(errs.KindTee, "SNP_GET_DERIVED_KEY ioctl failed", err)
	}
	return resp, nil
}

func ioctl(fd uintptr, request uint, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(request), arg)
	if errno != 0 {
		return errno
	}
	return nil
}
