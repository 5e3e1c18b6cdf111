// Package i2c talks to peripherals on an i2c-dev adapter
package i2c

import (
	"fmt"
	"time"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/sigurn/crc8"
)

var pecTable = crc8.MakeTable(crc8.Params{
	Poly: 0x07,
	Init: 0x00,
	Name: "CRC-8/SMBUS",
})

// BusConfig is applied with Bus.Configure
type BusConfig struct {
	// Timeout of a transfer, rounded up to 10ms. Zero keeps the driver default.
	Timeout time.Duration
	// Retries when the address is not acknowledged
	Retries int
}

// Validate rejects negative settings
func (c BusConfig) Validate() error {
	if c.Timeout < 0 {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", "", "negative timeout %v", c.Timeout)
	}
	if c.Retries < 0 {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", "", "negative retries %d", c.Retries)
	}
	return nil
}

/* The adapter counts the timeout in jiffies of 10ms */
func (c BusConfig) timeoutTicks() int {
	const tick = 10 * time.Millisecond
	return int((c.Timeout + tick - 1) / tick)
}

// Transport is what a Device needs from its adapter
type Transport interface {
	Tx(address uint16, writeBuf []byte, readBuf []byte) error
}

// Device is a peripheral on a bus. It implements bus.Transactor, Close
// leaves the adapter open.
type Device struct {
	bus     Transport
	address uint16
	pec     bool
}

// NewDevice binds address on t
func NewDevice(t Transport, address uint16) *Device {
	return &Device{
		bus:     t,
		address: address,
	}
}

// Address returns the 7 bit address
func (d *Device) Address() uint16 {
	return d.address
}

// SetPEC enables SMBus packet error checking. Writes get a checksum byte
// appended, reads expect one after the data.
func (d *Device) SetPEC(enabled bool) {
	d.pec = enabled
}

func (d *Device) checksum(write []byte, read []byte) uint8 {
	addr := uint8(d.address << 1)

	crc := crc8.Init(pecTable)
	if len(write) > 0 {
		crc = crc8.Update(crc, []byte{addr}, pecTable)
		crc = crc8.Update(crc, write, pecTable)
	}
	if read != nil {
		crc = crc8.Update(crc, []byte{addr | 1}, pecTable)
		crc = crc8.Update(crc, read, pecTable)
	}
	return crc8.Complete(crc, pecTable)
}

// Transfer writes write and reads readLen bytes in one combined transaction
func (d *Device) Transfer(write []byte, readLen int) ([]byte, error) {
	if readLen < 0 {
		return nil, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "transfer", d.String(), "negative read length")
	}

	if !d.pec {
		read := make([]byte, readLen)
		if err := d.bus.Tx(d.address, write, read); err != nil {
			return nil, err
		}
		return read, nil
	}

	if readLen == 0 {
		framed := append(append([]byte(nil), write...), d.checksum(write, nil))
		return []byte{}, d.bus.Tx(d.address, framed, nil)
	}

	read := make([]byte, readLen+1)
	if err := d.bus.Tx(d.address, write, read); err != nil {
		return nil, err
	}

	data, got := read[:readLen], read[readLen]
	if want := d.checksum(write, data); got != want {
		return nil, hwerr.Newf(hwerr.ErrorIO, "transfer", d.String(), "PEC mismatch: got %#02x, want %#02x", got, want)
	}
	return data, nil
}

// WriteReg8 writes a single byte register
func (d *Device) WriteReg8(reg uint8, value uint8) error {
	_, err := d.Transfer([]byte{reg, value}, 0)
	return err
}

// ReadReg8 reads a single byte register
func (d *Device) ReadReg8(reg uint8) (uint8, error) {
	read, err := d.Transfer([]byte{reg}, 1)
	if err != nil {
		return 0, err
	}
	return read[0], nil
}

// Close does nothing, the adapter is shared between devices
func (d *Device) Close() error {
	return nil
}

func (d *Device) String() string {
	return fmt.Sprintf("i2c device %#02x", d.address)
}
