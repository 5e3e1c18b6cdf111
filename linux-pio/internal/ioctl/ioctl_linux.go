package ioctl

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Ptr issues req with a pointer argument. The error is the bare errno so
// callers can classify it.
func Ptr(f *os.File, req uintptr, data unsafe.Pointer) error {
	_, _, errNo := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, uintptr(data))
	if errNo != 0 {
		return errNo
	}
	return nil
}

// Value issues req with an integer argument
func Value(f *os.File, req uintptr, value uintptr) error {
	_, _, errNo := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, value)
	if errNo != 0 {
		return errNo
	}
	return nil
}
