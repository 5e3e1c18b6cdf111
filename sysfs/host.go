// Package sysfs manages peripherals that the kernel exposes through the
// export/unexport attribute protocol (GPIO, PWM) and plain read-only attribute
// files (IIO ADC).
//
// A Host binds the layer to a filesystem. Production code uses DefaultHost,
// which talks to the real /sys; tests pass an in-memory filesystem from the
// sysfstest package.
package sysfs

import (
	"reflect"
	"sync"
	"time"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/BertoldVdb/go-sysfs/logrusconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// EdgeWaiter blocks until the attribute at path signals a change, or the
// timeout passes. A negative timeout waits forever. It returns false on timeout.
type EdgeWaiter interface {
	WaitForChange(path string, timeout time.Duration) (bool, error)
}

// HostOptions is a parameter struct for NewHost
type HostOptions struct {
	// Fs is the filesystem holding the sysfs tree. Defaults to the OS filesystem.
	Fs afero.Fs
	// Waiter is used for edge detection. Defaults to a poll(2) based waiter on Fs.
	Waiter EdgeWaiter
	// Logger defaults to an info level logger.
	Logger *logrus.Entry
	// ExportTimeout bounds how long a fresh export may take to become usable.
	ExportTimeout time.Duration
	// LedgerFile, when set, records exports so a restarted process can clean up.
	LedgerFile string
}

const (
	// DefaultExportTimeout covers udev fixing up permissions after an export
	DefaultExportTimeout = 500 * time.Millisecond

	exportPollInterval = 5 * time.Millisecond
)

// Host is the shared context of all handles created on one filesystem
type Host struct {
	fs            afero.Fs
	waiter        EdgeWaiter
	log           *logrus.Entry
	exportTimeout time.Duration

	ledger *ledger
}

// NewHost creates a host from options, filling in defaults
func NewHost(options *HostOptions) (*Host, error) {
	if options == nil {
		options = &HostOptions{}
	}

	h := &Host{
		fs:            options.Fs,
		waiter:        options.Waiter,
		log:           options.Logger,
		exportTimeout: options.ExportTimeout,
	}

	if h.fs == nil {
		h.fs = afero.NewOsFs()
	}
	if h.waiter == nil {
		h.waiter = NewPollWaiter(h.fs)
	}
	if h.log == nil {
		h.log = logrusconfig.GetPrefixedLogger(logrus.InfoLevel, "sysfs")
	}
	if h.exportTimeout <= 0 {
		h.exportTimeout = DefaultExportTimeout
	}

	if options.LedgerFile != "" {
		l, err := openLedger(h.fs, options.LedgerFile)
		if err != nil {
			return nil, err
		}
		h.ledger = l
	}

	return h, nil
}

var (
	defaultHost     *Host
	defaultHostOnce sync.Once
)

// DefaultHost returns the process wide host on the real filesystem
func DefaultHost() *Host {
	defaultHostOnce.Do(func() {
		/* Cannot fail without a ledger */
		defaultHost, _ = NewHost(nil)
	})
	return defaultHost
}

// Fs returns the filesystem of the host
func (h *Host) Fs() afero.Fs {
	return h.fs
}

// Waiter returns the edge waiter of the host
func (h *Host) Waiter() EdgeWaiter {
	return h.waiter
}

// Logger returns the log entry of the host
func (h *Host) Logger() *logrus.Entry {
	return h.log
}

// claimKey identifies an attribute directory on one filesystem
type claimKey struct {
	fs  interface{}
	dir string
}

type osFsIdentity struct{}

/* Live claims of every host in the process */
var claims = struct {
	sync.Mutex
	owners map[claimKey]*Host
}{owners: make(map[claimKey]*Host)}

func (h *Host) claimKey(dir string) claimKey {
	var fs interface{} = h.fs
	switch {
	case isOsFs(h.fs):
		fs = osFsIdentity{}
	case !reflect.TypeOf(h.fs).Comparable():
		fs = h
	}
	return claimKey{fs: fs, dir: dir}
}

func isOsFs(fs afero.Fs) bool {
	switch fs.(type) {
	case *afero.OsFs, afero.OsFs:
		return true
	}
	return false
}

func (h *Host) reserve(dir string) error {
	key := h.claimKey(dir)

	claims.Lock()
	defer claims.Unlock()

	if owner, found := claims.owners[key]; found {
		if owner == h {
			return hwerr.Newf(hwerr.ErrorAlreadyInUse, "claim", dir, "another handle in this process owns it")
		}
		return hwerr.Newf(hwerr.ErrorAlreadyInUse, "claim", dir, "a handle of another host in this process owns it")
	}
	claims.owners[key] = h
	return nil
}

func (h *Host) unreserve(dir string) {
	claims.Lock()
	delete(claims.owners, h.claimKey(dir))
	claims.Unlock()
}

// Claimed reports whether a live handle in this process owns dir on the
// filesystem of h, whichever host created it
func (h *Host) Claimed(dir string) bool {
	claims.Lock()
	defer claims.Unlock()

	_, found := claims.owners[h.claimKey(dir)]
	return found
}
