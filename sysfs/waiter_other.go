//go:build !linux

package sysfs

import (
	"time"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/spf13/afero"
)

type unsupportedWaiter struct{}

// NewPollWaiter returns a waiter that always fails outside Linux
func NewPollWaiter(fs afero.Fs) EdgeWaiter {
	return unsupportedWaiter{}
}

func (unsupportedWaiter) WaitForChange(path string, timeout time.Duration) (bool, error) {
	return false, hwerr.Newf(hwerr.ErrorUnsupported, "wait", path, "edge detection needs Linux")
}
