package sysfs

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// LedgerEntry is one export recorded by a process
type LedgerEntry struct {
	Session string
	Name    string
	Root    string
	Prefix  string
	ID      int
	Since   time.Time
}

type ledgerState struct {
	Entries map[string]LedgerEntry
}

// ledger persists the exports of this process with gob, so a process that
// restarts after a crash can unexport what its predecessor left behind.
type ledger struct {
	sync.Mutex

	fs       afero.Fs
	filename string
	session  string

	state  ledgerState
	buffer bytes.Buffer
}

func openLedger(fs afero.Fs, filename string) (*ledger, error) {
	l := &ledger{
		fs:       fs,
		filename: filename,
		session:  uuid.New().String(),
	}

	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func ledgerKey(sub Subsystem, id int) string {
	return fmt.Sprintf("%s|%s|%d", sub.Root, sub.Prefix, id)
}

func (l *ledger) load() error {
	l.state.Entries = make(map[string]LedgerEntry)

	data, err := afero.ReadFile(l.fs, l.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return hwerr.New(hwerr.ErrorIO, "load ledger", l.filename, err)
	}

	var state ledgerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return hwerr.New(hwerr.ErrorParse, "load ledger", l.filename, err)
	}
	for k, v := range state.Entries {
		l.state.Entries[k] = v
	}

	return nil
}

func (l *ledger) save() error {
	tmpName := l.filename + ".tmp"

	l.buffer.Reset()
	err := gob.NewEncoder(&l.buffer).Encode(&l.state)
	if err != nil {
		goto done
	}

	err = afero.WriteFile(l.fs, tmpName, l.buffer.Bytes(), 0600)
	if err != nil {
		goto done
	}

	err = l.fs.Rename(tmpName, l.filename)

done:
	if err != nil {
		return hwerr.New(hwerr.ErrorIO, "save ledger", l.filename, err)
	}
	return nil
}

func (l *ledger) add(sub Subsystem, id int) error {
	l.Lock()
	defer l.Unlock()

	l.state.Entries[ledgerKey(sub, id)] = LedgerEntry{
		Session: l.session,
		Name:    sub.Name,
		Root:    sub.Root,
		Prefix:  sub.Prefix,
		ID:      id,
		Since:   time.Now(),
	}
	return l.save()
}

func (l *ledger) remove(sub Subsystem, id int) error {
	l.Lock()
	defer l.Unlock()

	delete(l.state.Entries, ledgerKey(sub, id))
	return l.save()
}

func (l *ledger) entries() []LedgerEntry {
	l.Lock()
	defer l.Unlock()

	result := make([]LedgerEntry, 0, len(l.state.Entries))
	for _, e := range l.state.Entries {
		result = append(result, e)
	}
	return result
}

// Ledger returns the recorded exports, or nil without a ledger file
func (h *Host) Ledger() []LedgerEntry {
	if h.ledger == nil {
		return nil
	}
	return h.ledger.entries()
}

// ReleaseStale unexports every resource a previous process recorded in the
// ledger and never released. It returns the number of unexported resources.
func (h *Host) ReleaseStale() (int, error) {
	if h.ledger == nil {
		return 0, nil
	}

	l := h.ledger
	l.Lock()
	defer l.Unlock()

	released := 0
	var firstErr error

	for key, e := range l.state.Entries {
		if e.Session == l.session {
			continue
		}

		sub := Subsystem{Name: e.Name, Root: e.Root, Prefix: e.Prefix}
		dir := sub.Dir(e.ID)
		log := h.log.WithField("subsystem", e.Name).WithField("id", e.ID)

		if exists, _ := afero.DirExists(h.fs, dir); exists {
			control := NewAttribute(h.fs, filepath.Join(e.Root, "unexport"), IntCodec)
			err := control.Write(int64(e.ID))
			if err != nil && !hwerr.IsErrno(err, syscall.EINVAL) {
				log.WithError(err).Warn("Failed to release stale export")
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			log.WithField("since", e.Since).Info("Released stale export")
			released++
		}

		delete(l.state.Entries, key)
	}

	if err := l.save(); err != nil && firstErr == nil {
		firstErr = err
	}

	return released, errors.Wrap(firstErr, "release stale exports")
}
