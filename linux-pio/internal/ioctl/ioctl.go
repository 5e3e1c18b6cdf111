// Package ioctl builds request numbers the way the asm-generic ioctl.h macros
// do and issues them on character devices.
package ioctl

const (
	nrBits   = 8
	typeBits = 8
	sizeBits = 14

	nrShift   = 0
	typeShift = nrShift + nrBits
	sizeShift = typeShift + typeBits
	dirShift  = sizeShift + sizeBits

	dirNone  = 0
	dirWrite = 1
	dirRead  = 2
)

func request(dir uintptr, typ byte, nr byte, size uintptr) uintptr {
	return dir<<dirShift | size<<sizeShift | uintptr(typ)<<typeShift | uintptr(nr)<<nrShift
}

// IO is _IO(typ, nr)
func IO(typ byte, nr byte) uintptr {
	return request(dirNone, typ, nr, 0)
}

// IOR is _IOR(typ, nr, size)
func IOR(typ byte, nr byte, size uintptr) uintptr {
	return request(dirRead, typ, nr, size)
}

// IOW is _IOW(typ, nr, size)
func IOW(typ byte, nr byte, size uintptr) uintptr {
	return request(dirWrite, typ, nr, size)
}
