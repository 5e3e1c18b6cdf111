// Package adc reads analog inputs of an IIO device. The channels are always
// present, so there is nothing to claim or release.
package adc

import (
	"fmt"
	"path/filepath"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/BertoldVdb/go-sysfs/sysfs"
)

// DefaultRoot is the IIO device of the on-chip converter
const DefaultRoot = "/sys/bus/iio/devices/iio:device0"

// Options configure Open
type Options struct {
	// Root overrides DefaultRoot
	Root string
}

// Channel is one analog input. It holds no open files and may be copied.
type Channel struct {
	id  int
	raw sysfs.Attribute[uint64]
}

// Open binds channel id. Nothing is read until ReadRaw.
func Open(h *sysfs.Host, id int, options *Options) (*Channel, error) {
	if options == nil {
		options = &Options{}
	}
	root := options.Root
	if root == "" {
		root = DefaultRoot
	}
	if id < 0 {
		return nil, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "open", root, "negative channel %d", id)
	}

	path := filepath.Join(root, fmt.Sprintf("in_voltage%d_raw", id))
	return &Channel{
		id:  id,
		raw: sysfs.NewAttribute(h.Fs(), path, sysfs.UintCodec),
	}, nil
}

// ID returns the channel number
func (c *Channel) ID() int {
	return c.id
}

// Path returns the raw sample attribute
func (c *Channel) Path() string {
	return c.raw.Path()
}

// ReadRaw returns one sample as reported by the driver
func (c *Channel) ReadRaw() (uint64, error) {
	return c.raw.Read()
}

// ReadScaled maps a sample linearly so that maxRaw reads as maxVoltage
func (c *Channel) ReadScaled(maxRaw uint64, maxVoltage float64) (float64, error) {
	if maxRaw == 0 {
		return 0, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "read", c.raw.Path(), "full scale of 0")
	}
	return c.ReadScaledBy(maxVoltage / float64(maxRaw))
}

// ReadScaledBy multiplies a sample by factor, e.g. to convert to a sensor unit
func (c *Channel) ReadScaledBy(factor float64) (float64, error) {
	raw, err := c.ReadRaw()
	if err != nil {
		return 0, err
	}
	return float64(raw) * factor, nil
}
