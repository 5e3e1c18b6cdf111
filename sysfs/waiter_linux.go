package sysfs

import (
	"io"
	"os"
	"time"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

type realPather interface {
	RealPath(name string) (string, error)
}

type pollWaiter struct {
	fs afero.Fs
}

// NewPollWaiter waits for POLLPRI on sysfs value files, the way the kernel
// signals GPIO edges. Paths are resolved through fs when it is a base path filesystem.
func NewPollWaiter(fs afero.Fs) EdgeWaiter {
	return &pollWaiter{fs: fs}
}

func (w *pollWaiter) WaitForChange(path string, timeout time.Duration) (bool, error) {
	if rp, ok := w.fs.(realPather); ok {
		resolved, err := rp.RealPath(path)
		if err != nil {
			return false, hwerr.New(hwerr.ErrorIO, "wait", path, err)
		}
		path = resolved
	}

	file, err := os.Open(path)
	if err != nil {
		return false, hwerr.New(hwerr.ErrorIO, "wait", path, err)
	}
	defer file.Close()

	/* The value must be consumed once, otherwise poll returns immediately */
	buf := make([]byte, 16)
	if _, err := file.Read(buf); err != nil && err != io.EOF {
		return false, hwerr.New(hwerr.ErrorIO, "wait", path, err)
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	fds := []unix.PollFd{{
		Fd:     int32(file.Fd()),
		Events: unix.POLLPRI | unix.POLLERR,
	}}

	for {
		ms := -1
		if timeout >= 0 {
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			ms = int((remaining + time.Millisecond - 1) / time.Millisecond)
		}

		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, hwerr.New(hwerr.ErrorIO, "wait", path, err)
		}
		if n == 0 {
			return false, nil
		}

		if _, err := file.Seek(0, io.SeekStart); err == nil {
			file.Read(buf)
		}
		return true, nil
	}
}
