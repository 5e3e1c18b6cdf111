//go:build linux

package i2c

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/BertoldVdb/go-sysfs/linux-pio/bus"
	"github.com/BertoldVdb/go-sysfs/linux-pio/internal/ioctl"
)

const (
	i2cRetries uintptr = 0x0701
	i2cTimeout uintptr = 0x0702
	i2cRdWr    uintptr = 0x0707

	i2cFlagsRead uint16 = 1
)

// Bus is an open i2c-dev adapter. Transfers are serialized.
type Bus struct {
	mutex sync.Mutex
	file  *os.File
	path  string
}

// Open opens an i2c-dev node
func Open(path string) (*Bus, error) {
	file, err := os.OpenFile(path, syscall.O_RDWR|syscall.O_NOCTTY, 0600)
	if err != nil {
		return nil, hwerr.New(hwerr.ErrorIO, "open", path, err)
	}

	return &Bus{
		file: file,
		path: path,
	}, nil
}

// OpenBus opens /dev/i2c-<busID>
func OpenBus(busID int) (*Bus, error) {
	return Open(fmt.Sprintf("/dev/i2c-%d", busID))
}

// Configure sets the adapter timeout and retry count
func (b *Bus) Configure(c BusConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if c.Timeout > 0 {
		if err := ioctl.Value(b.file, i2cTimeout, uintptr(c.timeoutTicks())); err != nil {
			return bus.ConfigureError(b.path, err)
		}
	}
	if err := ioctl.Value(b.file, i2cRetries, uintptr(c.Retries)); err != nil {
		return bus.ConfigureError(b.path, err)
	}
	return nil
}

/* struct i2c_msg */
type msg struct {
	Address uint16
	Flags   uint16
	Len     uint16
	Buf     uintptr
}

/* struct i2c_rdwr_ioctl_data */
type rdWr struct {
	Messages    uintptr
	NumMessages uint32
}

// Tx writes writeBuf to address and then reads readBuf with a repeated start
func (b *Bus) Tx(address uint16, writeBuf []byte, readBuf []byte) error {
	var transfer []msg
	if len(writeBuf) > 0 {
		transfer = append(transfer, msg{
			Address: address,
			Len:     uint16(len(writeBuf)),
			Buf:     uintptr(unsafe.Pointer(&writeBuf[0])),
		})
	}
	if len(readBuf) > 0 {
		transfer = append(transfer, msg{
			Address: address,
			Flags:   i2cFlagsRead,
			Len:     uint16(len(readBuf)),
			Buf:     uintptr(unsafe.Pointer(&readBuf[0])),
		})
	}

	if len(transfer) == 0 {
		// A succesful, albeit useless, transfer
		return nil
	}

	param := rdWr{
		Messages:    uintptr(unsafe.Pointer(&transfer[0])),
		NumMessages: uint32(len(transfer)),
	}

	b.mutex.Lock()
	err := ioctl.Ptr(b.file, i2cRdWr, unsafe.Pointer(&param))
	b.mutex.Unlock()

	runtime.KeepAlive(transfer)
	runtime.KeepAlive(writeBuf)
	runtime.KeepAlive(readBuf)

	if err != nil {
		return bus.TransferError(b.path, err)
	}
	return nil
}

// Device returns a handle for the peripheral at address
func (b *Bus) Device(address uint16) *Device {
	return NewDevice(b, address)
}

// Close closes the adapter node
func (b *Bus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if err := b.file.Close(); err != nil {
		return hwerr.New(hwerr.ErrorIO, "close", b.path, err)
	}
	return nil
}
