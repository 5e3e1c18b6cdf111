// Package bus is the contract shared by the character device buses: SPI, I2C
// and UART handles are opened, configured and then used for transfers.
//
// Errors follow the hwerr taxonomy. Open fails with hwerr.ErrorIO, Configure
// with hwerr.ErrorInvalidConfiguration and Transfer with hwerr.ErrorIO or
// hwerr.ErrorTimeout. Buses do not take part in sysfs export handling.
package bus

import (
	"syscall"

	"github.com/BertoldVdb/go-sysfs/hwerr"
)

// Transactor writes a request and reads readLen bytes of response
type Transactor interface {
	Transfer(write []byte, readLen int) ([]byte, error)
	Close() error
}

// TransactorFunc adapts a function, mostly for tests
type TransactorFunc func(write []byte, readLen int) ([]byte, error)

func (f TransactorFunc) Transfer(write []byte, readLen int) ([]byte, error) {
	return f(write, readLen)
}

func (f TransactorFunc) Close() error {
	return nil
}

// WriteRegister writes value to a register of a register-mapped device
func WriteRegister(t Transactor, reg uint8, value ...uint8) error {
	_, err := t.Transfer(append([]byte{reg}, value...), 0)
	return err
}

// ReadRegister reads n bytes starting at reg
func ReadRegister(t Transactor, reg uint8, n int) ([]byte, error) {
	if n <= 0 {
		return nil, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "read register", "", "cannot read %d bytes", n)
	}

	data, err := t.Transfer([]byte{reg}, n)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, hwerr.Newf(hwerr.ErrorIO, "read register", "", "short read of %d/%d bytes", len(data), n)
	}
	return data, nil
}

// ReadRegister8 reads a single byte register
func ReadRegister8(t Transactor, reg uint8) (uint8, error) {
	data, err := ReadRegister(t, reg, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// TransferError classifies a failed transfer on path
func TransferError(path string, err error) error {
	if hwerr.IsErrno(err, syscall.ETIMEDOUT) {
		return hwerr.New(hwerr.ErrorTimeout, "transfer", path, err)
	}
	return hwerr.New(hwerr.ErrorIO, "transfer", path, err)
}

// ConfigureError classifies a driver refusing a setting on path
func ConfigureError(path string, err error) error {
	if hwerr.IsErrno(err, syscall.EINVAL, syscall.ENOTSUP, syscall.EOPNOTSUPP) {
		return hwerr.New(hwerr.ErrorInvalidConfiguration, "configure", path, err)
	}
	return hwerr.New(hwerr.ErrorIO, "configure", path, err)
}
