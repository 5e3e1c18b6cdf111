package ioctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestNumbers(t *testing.T) {
	/* Values from linux/spi/spidev.h and linux/i2c-dev.h */
	assert.Equal(t, uintptr(0x40206B00), IOW('k', 0, 32))
	assert.Equal(t, uintptr(0x40406B00), IOW('k', 0, 64))
	assert.Equal(t, uintptr(0x40016B01), IOW('k', 1, 1))
	assert.Equal(t, uintptr(0x80016B01), IOR('k', 1, 1))
	assert.Equal(t, uintptr(0x40046B04), IOW('k', 4, 4))
	assert.Equal(t, uintptr(0x0707), IO(0x07, 0x07))
}
