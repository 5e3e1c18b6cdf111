package sysfs

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/sirupsen/logrus"
)

// Subsystem describes where a class of exportable resources lives
type Subsystem struct {
	// Name is used in log output, e.g. "gpio"
	Name string
	// Root is the directory holding the export and unexport files
	Root string
	// Prefix of the per-id directory, e.g. "gpio" for gpio60
	Prefix string
	// Probe is an attribute that exists once the export is usable
	Probe string
}

// Dir returns the attribute directory of id
func (s Subsystem) Dir(id int) string {
	return filepath.Join(s.Root, fmt.Sprintf("%s%d", s.Prefix, id))
}

// State of a Resource. Released is terminal.
type State int

const (
	Unclaimed State = iota
	Exported
	Released
)

func (s State) String() string {
	switch s {
	case Unclaimed:
		return "unclaimed"
	case Exported:
		return "exported"
	case Released:
		return "released"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Resource is an exported kernel resource owned by this process.
//
// A Resource must be released exactly once with Release or Close, normally with
// defer right after a successful Claim. It is not safe for concurrent use.
type Resource struct {
	host *Host
	sub  Subsystem
	id   int
	dir  string
	log  *logrus.Entry

	mutex   sync.Mutex
	state   State
	adopted bool
}

// Claim exports id in sub. On error nothing stays exported and no handle exists.
//
// Only one handle per id exists in the process. Hosts on the same filesystem
// share that rule, so a second host gets ErrorAlreadyInUse instead of adopting.
//
// An id that the kernel reports as busy is adopted when its attribute directory
// is usable, which is what a restart after a crash looks like.
func Claim(h *Host, sub Subsystem, id int) (*Resource, error) {
	if id < 0 {
		return nil, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "claim", sub.Root, "negative id %d", id)
	}

	r := &Resource{
		host:  h,
		sub:   sub,
		id:    id,
		dir:   sub.Dir(id),
		state: Unclaimed,
	}
	r.log = h.log.WithFields(logrus.Fields{
		"subsystem": sub.Name,
		"id":        id,
	})

	if err := h.reserve(r.dir); err != nil {
		return nil, err
	}

	if err := r.export(); err != nil {
		h.unreserve(r.dir)
		return nil, err
	}

	r.state = Exported
	if h.ledger != nil {
		if err := h.ledger.add(sub, id); err != nil {
			r.log.WithError(err).Warn("Failed to record export in ledger")
		}
	}

	runtime.SetFinalizer(r, (*Resource).finalize)
	return r, nil
}

func (r *Resource) export() error {
	control := NewAttribute(r.host.fs, filepath.Join(r.sub.Root, "export"), IntCodec)

	err := control.Write(int64(r.id))
	if err != nil {
		if !hwerr.IsErrno(err, syscall.EBUSY) {
			return err
		}
		if !r.ready() {
			return hwerr.New(hwerr.ErrorAlreadyInUse, "claim", r.dir, err)
		}

		r.adopted = true
		r.log.Info("Adopted existing export")
		return nil
	}

	r.log.Debug("Exported")

	deadline := time.Now().Add(r.host.exportTimeout)
	for !r.ready() {
		if time.Now().After(deadline) {
			r.unexport()
			return hwerr.Newf(hwerr.ErrorIO, "claim", r.dir, "export did not become usable within %v", r.host.exportTimeout)
		}
		time.Sleep(exportPollInterval)
	}

	return nil
}

func (r *Resource) ready() bool {
	_, err := readText(r.host.fs, r.Attr(r.sub.Probe))
	return err == nil
}

func (r *Resource) unexport() error {
	control := NewAttribute(r.host.fs, filepath.Join(r.sub.Root, "unexport"), IntCodec)
	err := control.Write(int64(r.id))
	if err != nil {
		r.log.WithError(err).Warn("Unexport failed")
		return err
	}

	r.log.Debug("Unexported")
	return nil
}

// Release unexports the resource. Releasing again is a no-op.
func (r *Resource) Release() error {
	r.mutex.Lock()
	if r.state != Exported {
		r.mutex.Unlock()
		return nil
	}
	r.state = Released
	r.mutex.Unlock()

	runtime.SetFinalizer(r, nil)

	err := r.unexport()

	r.host.unreserve(r.dir)
	if r.host.ledger != nil {
		if lerr := r.host.ledger.remove(r.sub, r.id); lerr != nil {
			r.log.WithError(lerr).Warn("Failed to update ledger")
		}
	}

	return err
}

// Close is Release, so a Resource is an io.Closer
func (r *Resource) Close() error {
	return r.Release()
}

func (r *Resource) finalize() {
	r.log.Warn("Handle was garbage collected without Close, releasing it")
	r.Release()
}

// State returns the lifecycle state
func (r *Resource) State() State {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.state
}

// Exported reports whether the handle may be used
func (r *Resource) Exported() bool {
	return r.State() == Exported
}

// CheckExported returns ErrorInvalidState once the handle is released
func (r *Resource) CheckExported(op string) error {
	if !r.Exported() {
		return hwerr.Newf(hwerr.ErrorInvalidState, op, r.dir, "handle is %s", r.State())
	}
	return nil
}

// Adopted reports whether the export already existed when it was claimed
func (r *Resource) Adopted() bool {
	return r.adopted
}

// ID returns the numeric id of the resource
func (r *Resource) ID() int {
	return r.id
}

// Dir returns the attribute directory
func (r *Resource) Dir() string {
	return r.dir
}

// Attr returns the path of an attribute in the resource directory
func (r *Resource) Attr(name string) string {
	return filepath.Join(r.dir, name)
}

// Host returns the host the resource was claimed on
func (r *Resource) Host() *Host {
	return r.host
}

// Logger returns a log entry tagged with the resource
func (r *Resource) Logger() *logrus.Entry {
	return r.log
}
