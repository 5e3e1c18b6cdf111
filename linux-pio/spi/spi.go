//go:build linux

package spi

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
	spiMagic = 'k'

	nrMessage     = 0
	nrMode        = 1
	nrBitsPerWord = 3
	nrMaxSpeedHz  = 4
	nrMode32      = 5
)

// Device is an open spidev node. It is safe for concurrent use, transfers
// are serialized.
type Device struct {
	mutex  sync.Mutex
	file   *os.File
	path   string
	config Config
}

var _ bus.Transactor = (*Device)(nil)

// Open opens a spidev node. The driver keeps its current settings until
// Configure is called.
func Open(path string) (*Device, error) {
	file, err := os.OpenFile(path, syscall.O_RDWR|syscall.O_NOCTTY, 0600)
	if err != nil {
		return nil, hwerr.New(hwerr.ErrorIO, "open", path, err)
	}

	return &Device{
		file:   file,
		path:   path,
		config: DefaultConfig,
	}, nil
}

// OpenDevice opens /dev/spidev<busID>.<deviceID>
func OpenDevice(busID int, deviceID int) (*Device, error) {
	return Open(fmt.Sprintf("/dev/spidev%d.%d", busID, deviceID))
}

// Configure validates c and programs it into the driver
func (d *Device) Configure(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	var err error
	if c.Mode > 0xFF {
		mode := uint32(c.Mode)
		err = ioctl.Ptr(d.file, ioctl.IOW(spiMagic, nrMode32, 4), unsafe.Pointer(&mode))
	} else {
		mode := uint8(c.Mode)
		err = ioctl.Ptr(d.file, ioctl.IOW(spiMagic, nrMode, 1), unsafe.Pointer(&mode))
	}
	if err != nil {
		return bus.ConfigureError(d.path, err)
	}

	bits := c.BitsPerWord
	if err := ioctl.Ptr(d.file, ioctl.IOW(spiMagic, nrBitsPerWord, 1), unsafe.Pointer(&bits)); err != nil {
		return bus.ConfigureError(d.path, err)
	}

	speed := c.SpeedHz
	if err := ioctl.Ptr(d.file, ioctl.IOW(spiMagic, nrMaxSpeedHz, 4), unsafe.Pointer(&speed)); err != nil {
		return bus.ConfigureError(d.path, err)
	}

	d.config = c
	return nil
}

// Config returns the settings used for transfers
func (d *Device) Config() Config {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.config
}

/* struct spi_ioc_transfer */
type iocTransfer struct {
	TxBuf       uint64
	RxBuf       uint64
	Len         uint32
	SpeedHz     uint32
	DelayUs     uint16
	BitsPerWord uint8
	CsChange    uint8
	Pad         uint32
}

func (d *Device) segment(tx []byte, rx []byte) iocTransfer {
	tr := iocTransfer{
		SpeedHz:     d.config.SpeedHz,
		DelayUs:     d.config.DelayUs,
		BitsPerWord: d.config.BitsPerWord,
	}

	if len(tx) > 0 {
		tr.TxBuf = uint64(uintptr(unsafe.Pointer(&tx[0])))
		tr.Len = uint32(len(tx))
	}
	if len(rx) > 0 {
		tr.RxBuf = uint64(uintptr(unsafe.Pointer(&rx[0])))
		tr.Len = uint32(len(rx))
	}
	return tr
}

func (d *Device) message(transfers []iocTransfer) error {
	size := uintptr(len(transfers)) * unsafe.Sizeof(transfers[0])
	err := ioctl.Ptr(d.file, ioctl.IOW(spiMagic, nrMessage, size), unsafe.Pointer(&transfers[0]))
	runtime.KeepAlive(transfers)

	if err != nil {
		return bus.TransferError(d.path, err)
	}
	return nil
}

// Tx clocks writeBuf out while clocking readBuf in. When both are given they
// must have the same length.
func (d *Device) Tx(writeBuf []byte, readBuf []byte) error {
	if len(writeBuf) == 0 && len(readBuf) == 0 {
		return nil
	}
	if len(writeBuf) > 0 && len(readBuf) > 0 && len(writeBuf) != len(readBuf) {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "transfer", d.path,
			"buffer lengths %d and %d differ", len(writeBuf), len(readBuf))
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	err := d.message([]iocTransfer{d.segment(writeBuf, readBuf)})
	runtime.KeepAlive(writeBuf)
	runtime.KeepAlive(readBuf)
	return err
}

// Transfer writes write and then reads readLen bytes without releasing chip
// select in between.
func (d *Device) Transfer(write []byte, readLen int) ([]byte, error) {
	if readLen < 0 {
		return nil, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "transfer", d.path, "negative read length")
	}
	read := make([]byte, readLen)

	d.mutex.Lock()
	defer d.mutex.Unlock()

	var transfers []iocTransfer
	if len(write) > 0 {
		transfers = append(transfers, d.segment(write, nil))
	}
	if readLen > 0 {
		transfers = append(transfers, d.segment(nil, read))
	}
	if len(transfers) == 0 {
		return read, nil
	}

	err := d.message(transfers)
	runtime.KeepAlive(write)
	runtime.KeepAlive(read)
	if err != nil {
		return nil, err
	}
	return read, nil
}

// Close closes the device node
func (d *Device) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.file.Close(); err != nil {
		return hwerr.New(hwerr.ErrorIO, "close", d.path, err)
	}
	return nil
}
