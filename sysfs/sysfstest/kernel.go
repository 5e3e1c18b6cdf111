// Package sysfstest provides an in-memory kernel that mimics the sysfs GPIO,
// PWM and IIO attribute trees closely enough to test the sysfs packages.
package sysfstest

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

type subsystemKind int

const (
	kindGPIO subsystemKind = iota
	kindPWM
)

type subsystem struct {
	kind      subsystemKind
	prefix    string
	count     int
	inputOnly map[int]bool
}

// Kernel is an afero.Fs whose export, unexport and attribute writes behave like
// the kernel drivers. It also implements sysfs.EdgeWaiter.
type Kernel struct {
	afero.Fs

	mutex      sync.Mutex
	subsystems map[string]*subsystem
	writes     map[string][]string
	journal    []string
	waiters    map[string][]chan struct{}
	armed      chan string

	// HideExports makes new exports invisible, like a driver that never finishes
	HideExports bool
}

// NewKernel returns an empty kernel on a memory filesystem
func NewKernel() *Kernel {
	return &Kernel{
		Fs:         afero.NewMemMapFs(),
		subsystems: make(map[string]*subsystem),
		writes:     make(map[string][]string),
		waiters:    make(map[string][]chan struct{}),
		armed:      make(chan string, 16),
	}
}

func (k *Kernel) addControl(root string, sub *subsystem) {
	k.Fs.MkdirAll(root, 0755)
	afero.WriteFile(k.Fs, filepath.Join(root, "export"), nil, 0200)
	afero.WriteFile(k.Fs, filepath.Join(root, "unexport"), nil, 0200)

	k.mutex.Lock()
	k.subsystems[filepath.Clean(root)] = sub
	k.mutex.Unlock()
}

// AddGPIO creates a GPIO class directory with export/unexport files.
// Pins listed in inputOnly refuse the "out" direction.
func (k *Kernel) AddGPIO(root string, inputOnly ...int) {
	sub := &subsystem{
		kind:      kindGPIO,
		prefix:    "gpio",
		inputOnly: make(map[int]bool),
	}
	for _, id := range inputOnly {
		sub.inputOnly[id] = true
	}
	k.addControl(root, sub)
}

// AddPWMChip creates a pwmchip directory with npwm channels
func (k *Kernel) AddPWMChip(root string, npwm int) {
	k.addControl(root, &subsystem{
		kind:   kindPWM,
		prefix: "pwm",
		count:  npwm,
	})
	afero.WriteFile(k.Fs, filepath.Join(root, "npwm"), []byte(strconv.Itoa(npwm)+"\n"), 0444)
}

// AddADC creates an IIO device with the given raw channel values
func (k *Kernel) AddADC(root string, raw map[int]string) {
	k.Fs.MkdirAll(root, 0755)
	for ch, value := range raw {
		k.Set(filepath.Join(root, "in_voltage"+strconv.Itoa(ch)+"_raw"), value)
	}
}

// Set stores a value directly, bypassing driver rules
func (k *Kernel) Set(path string, value string) {
	k.Fs.MkdirAll(filepath.Dir(path), 0755)
	afero.WriteFile(k.Fs, path, []byte(value+"\n"), 0644)
}

// Value returns the trimmed content of an attribute, or "" when it is missing
func (k *Kernel) Value(path string) string {
	data, err := afero.ReadFile(k.Fs, path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Exists reports whether path exists
func (k *Kernel) Exists(path string) bool {
	ok, _ := afero.Exists(k.Fs, path)
	return ok
}

// Writes returns every value written to path through the filesystem, in order
func (k *Kernel) Writes(path string) []string {
	k.mutex.Lock()
	defer k.mutex.Unlock()

	return append([]string(nil), k.writes[filepath.Clean(path)]...)
}

// Journal returns every write below dir as "path=value", in the order of all
// writes across files
func (k *Kernel) Journal(dir string) []string {
	k.mutex.Lock()
	defer k.mutex.Unlock()

	dir = filepath.Clean(dir) + "/"
	var out []string
	for _, entry := range k.journal {
		if strings.HasPrefix(entry, dir) {
			out = append(out, strings.TrimPrefix(entry, dir))
		}
	}
	return out
}

// OpenFile intercepts writable opens so the value is applied on Close
func (k *Kernel) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		return k.Fs.OpenFile(name, flag, perm)
	}

	if flag&os.O_CREATE == 0 {
		info, err := k.Fs.Stat(name)
		if err != nil {
			return nil, &os.PathError{Op: "open", Path: name, Err: syscall.ENOENT}
		}
		if info.IsDir() {
			return nil, &os.PathError{Op: "open", Path: name, Err: syscall.EISDIR}
		}
	} else if !k.isAttribute(name) {
		return k.Fs.OpenFile(name, flag, perm)
	}

	f, err := k.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	return &attributeFile{File: f, kernel: k, name: filepath.Clean(name)}, nil
}

// Create follows OpenFile
func (k *Kernel) Create(name string) (afero.File, error) {
	return k.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (k *Kernel) isAttribute(name string) bool {
	k.mutex.Lock()
	defer k.mutex.Unlock()

	name = filepath.Clean(name)
	for root := range k.subsystems {
		if strings.HasPrefix(name, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

type attributeFile struct {
	afero.File
	kernel *Kernel
	name   string
	buffer bytes.Buffer
	closed bool
}

func (f *attributeFile) Write(p []byte) (int, error) {
	return f.buffer.Write(p)
}

func (f *attributeFile) WriteString(s string) (int, error) {
	return f.buffer.WriteString(s)
}

func (f *attributeFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	f.File.Close()
	if err := f.kernel.store(f.name, f.buffer.String()); err != nil {
		return &os.PathError{Op: "write", Path: f.name, Err: err}
	}
	return nil
}

func (k *Kernel) store(name string, raw string) error {
	k.mutex.Lock()
	defer k.mutex.Unlock()

	k.writes[name] = append(k.writes[name], raw)
	k.journal = append(k.journal, name+"="+strings.TrimSpace(raw))
	value := strings.TrimSpace(raw)

	dir, attr := filepath.Split(name)
	dir = filepath.Clean(dir)

	if sub, found := k.subsystems[dir]; found {
		switch attr {
		case "export":
			return k.export(dir, sub, value)
		case "unexport":
			return k.unexport(dir, sub, value)
		}
	}

	parent := filepath.Dir(dir)
	if sub, found := k.subsystems[parent]; found {
		id, _ := strconv.Atoi(strings.TrimPrefix(filepath.Base(dir), sub.prefix))
		switch sub.kind {
		case kindGPIO:
			return k.storeGPIO(dir, sub, id, attr, value)
		case kindPWM:
			return k.storePWM(dir, attr, value)
		}
	}

	return k.write(name, value)
}

func (k *Kernel) write(name string, value string) error {
	return afero.WriteFile(k.Fs, name, []byte(value+"\n"), 0644)
}

func (k *Kernel) read(name string) string {
	data, _ := afero.ReadFile(k.Fs, name)
	return strings.TrimSpace(string(data))
}

func (k *Kernel) export(root string, sub *subsystem, value string) error {
	id, err := strconv.Atoi(value)
	if err != nil || id < 0 || (sub.count > 0 && id >= sub.count) {
		return syscall.EINVAL
	}

	dir := filepath.Join(root, sub.prefix+strconv.Itoa(id))
	if exists, _ := afero.DirExists(k.Fs, dir); exists {
		return syscall.EBUSY
	}
	if k.HideExports {
		return nil
	}

	k.Fs.MkdirAll(dir, 0755)
	switch sub.kind {
	case kindGPIO:
		k.write(filepath.Join(dir, "direction"), "in")
		k.write(filepath.Join(dir, "value"), "0")
		k.write(filepath.Join(dir, "edge"), "none")
		k.write(filepath.Join(dir, "active_low"), "0")
	case kindPWM:
		k.write(filepath.Join(dir, "period"), "0")
		k.write(filepath.Join(dir, "duty_cycle"), "0")
		k.write(filepath.Join(dir, "polarity"), "normal")
		k.write(filepath.Join(dir, "enable"), "0")
	}
	return nil
}

func (k *Kernel) unexport(root string, sub *subsystem, value string) error {
	id, err := strconv.Atoi(value)
	if err != nil {
		return syscall.EINVAL
	}

	dir := filepath.Join(root, sub.prefix+strconv.Itoa(id))
	if exists, _ := afero.DirExists(k.Fs, dir); !exists {
		return syscall.EINVAL
	}
	return k.Fs.RemoveAll(dir)
}

func (k *Kernel) storeGPIO(dir string, sub *subsystem, id int, attr string, value string) error {
	switch attr {
	case "direction":
		switch value {
		case "in":
		case "out", "high", "low":
			if sub.inputOnly[id] {
				return syscall.EPERM
			}
		default:
			return syscall.EINVAL
		}
		if value == "high" || value == "low" {
			level := "0"
			if value == "high" {
				level = "1"
			}
			k.write(filepath.Join(dir, "value"), level)
			value = "out"
		}
		return k.write(filepath.Join(dir, attr), value)

	case "value":
		if k.read(filepath.Join(dir, "direction")) != "out" {
			return syscall.EPERM
		}
		if value != "0" {
			value = "1"
		}
		return k.write(filepath.Join(dir, attr), value)

	case "edge":
		switch value {
		case "none", "rising", "falling", "both":
			return k.write(filepath.Join(dir, attr), value)
		}
		return syscall.EINVAL

	case "active_low":
		if value != "0" {
			value = "1"
		}
		return k.write(filepath.Join(dir, attr), value)
	}

	return syscall.EIO
}

func (k *Kernel) storePWM(dir string, attr string, value string) error {
	period, _ := strconv.ParseUint(k.read(filepath.Join(dir, "period")), 10, 64)
	duty, _ := strconv.ParseUint(k.read(filepath.Join(dir, "duty_cycle")), 10, 64)
	enabled := k.read(filepath.Join(dir, "enable")) == "1"

	switch attr {
	case "period":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil || v < duty {
			return syscall.EINVAL
		}
	case "duty_cycle":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil || v > period {
			return syscall.EINVAL
		}
	case "polarity":
		if enabled {
			return syscall.EBUSY
		}
		if value != "normal" && value != "inversed" {
			return syscall.EINVAL
		}
	case "enable":
		if value != "0" && value != "1" {
			return syscall.EINVAL
		}
		if value == "1" && period == 0 {
			return syscall.EINVAL
		}
	default:
		return syscall.EIO
	}

	return k.write(filepath.Join(dir, attr), value)
}

// Drive changes the level of an input pin from the outside and signals waiters
// when the configured edge matches.
func (k *Kernel) Drive(pinDir string, level bool) {
	k.mutex.Lock()
	defer k.mutex.Unlock()

	valuePath := filepath.Join(pinDir, "value")
	old := k.read(valuePath) == "1"

	v := "0"
	if level {
		v = "1"
	}
	k.write(valuePath, v)

	if old == level {
		return
	}

	fire := false
	switch k.read(filepath.Join(pinDir, "edge")) {
	case "rising":
		fire = level
	case "falling":
		fire = !level
	case "both":
		fire = true
	}
	if !fire {
		return
	}

	for _, ch := range k.waiters[valuePath] {
		close(ch)
	}
	delete(k.waiters, valuePath)
}

// Armed delivers the value path each time a waiter starts waiting
func (k *Kernel) Armed() <-chan string {
	return k.armed
}

// WaitForChange implements sysfs.EdgeWaiter
func (k *Kernel) WaitForChange(path string, timeout time.Duration) (bool, error) {
	path = filepath.Clean(path)

	k.mutex.Lock()
	if exists, _ := afero.Exists(k.Fs, path); !exists {
		k.mutex.Unlock()
		return false, &os.PathError{Op: "open", Path: path, Err: syscall.ENOENT}
	}
	ch := make(chan struct{})
	k.waiters[path] = append(k.waiters[path], ch)
	k.mutex.Unlock()

	select {
	case k.armed <- path:
	default:
	}

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ch:
		return true, nil
	case <-expired:
		k.mutex.Lock()
		list := k.waiters[path]
		for i, c := range list {
			if c == ch {
				k.waiters[path] = append(list[:i], list[i+1:]...)
				break
			}
		}
		k.mutex.Unlock()
		return false, nil
	}
}
