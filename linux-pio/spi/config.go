package spi

import (
	"github.com/BertoldVdb/go-sysfs/hwerr"
)

// Mode holds the SPI_MODE flags of linux/spi/spidev.h
type Mode uint32

const (
	CPHA      Mode = 0x01
	CPOL      Mode = 0x02
	CSHigh    Mode = 0x04
	LSBFirst  Mode = 0x08
	ThreeWire Mode = 0x10
	Loop      Mode = 0x20
	NoCS      Mode = 0x40
	Ready     Mode = 0x80
	TxDual    Mode = 0x100
	TxQuad    Mode = 0x200
	RxDual    Mode = 0x400
	RxQuad    Mode = 0x800

	Mode0 Mode = 0
	Mode1      = CPHA
	Mode2      = CPOL
	Mode3      = CPOL | CPHA

	modeMask Mode = 0xFFF
)

// Config is applied with Device.Configure
type Config struct {
	Mode        Mode
	BitsPerWord uint8
	SpeedHz     uint32
	// DelayUs is the pause after each transfer before chip select changes
	DelayUs uint16
}

// DefaultConfig is what a freshly opened device uses
var DefaultConfig = Config{
	Mode:        Mode0,
	BitsPerWord: 8,
	SpeedHz:     1000000,
	DelayUs:     20,
}

// Validate rejects settings no spidev driver accepts
func (c Config) Validate() error {
	if c.Mode&^modeMask != 0 {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", "", "unknown mode bits %#x", uint32(c.Mode&^modeMask))
	}
	if c.Mode&TxDual != 0 && c.Mode&TxQuad != 0 {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", "", "dual and quad transmit are exclusive")
	}
	if c.Mode&RxDual != 0 && c.Mode&RxQuad != 0 {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", "", "dual and quad receive are exclusive")
	}
	if c.BitsPerWord == 0 || c.BitsPerWord > 32 {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", "", "%d bits per word", c.BitsPerWord)
	}
	if c.SpeedHz == 0 {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", "", "speed must be positive")
	}
	return nil
}
