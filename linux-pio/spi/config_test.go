package spi

import (
	"testing"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig.Validate())

	good := DefaultConfig
	good.Mode = Mode3 | CSHigh | TxDual | RxQuad
	good.BitsPerWord = 16
	assert.NoError(t, good.Validate())

	for name, mutate := range map[string]func(c *Config){
		"unknown mode":  func(c *Config) { c.Mode = 0x1000 },
		"dual and quad": func(c *Config) { c.Mode = TxDual | TxQuad },
		"rx dual quad":  func(c *Config) { c.Mode = RxDual | RxQuad },
		"zero bits":     func(c *Config) { c.BitsPerWord = 0 },
		"wide words":    func(c *Config) { c.BitsPerWord = 33 },
		"zero speed":    func(c *Config) { c.SpeedHz = 0 },
	} {
		c := DefaultConfig
		mutate(&c)
		err := c.Validate()
		assert.True(t, errors.Is(err, hwerr.ErrorInvalidConfiguration), name)
	}
}

func TestModes(t *testing.T) {
	assert.Equal(t, Mode(0), Mode0)
	assert.Equal(t, Mode(1), Mode1)
	assert.Equal(t, Mode(2), Mode2)
	assert.Equal(t, Mode(3), Mode3)
}
