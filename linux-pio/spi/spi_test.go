//go:build linux

package spi

import (
	"testing"
	"unsafe"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestTransferLayout(t *testing.T) {
	assert.Equal(t, uintptr(32), unsafe.Sizeof(iocTransfer{}))
}

func TestOpenMissing(t *testing.T) {
	_, err := Open("/nonexistent/spidev9.9")
	assert.True(t, errors.Is(err, hwerr.ErrorIO))
}
