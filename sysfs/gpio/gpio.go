// Package gpio drives general purpose pins through the sysfs GPIO class.
package gpio

import (
	"syscall"
	"time"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/BertoldVdb/go-sysfs/sysfs"
	"github.com/pkg/errors"
)

// DefaultRoot is the GPIO class directory of the kernel
const DefaultRoot = "/sys/class/gpio"

// Direction of a pin
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// Edge selects which transitions of an input are reported
type Edge string

const (
	EdgeNone    Edge = "none"
	EdgeRising  Edge = "rising"
	EdgeFalling Edge = "falling"
	EdgeBoth    Edge = "both"
)

type outputLevel string

var (
	directionCodec = sysfs.EnumCodec(In, Out)
	outputCodec    = sysfs.EnumCodec[outputLevel]("high", "low")
	edgeCodec      = sysfs.EnumCodec(EdgeNone, EdgeRising, EdgeFalling, EdgeBoth)
)

// Options configure Open
type Options struct {
	// Root overrides DefaultRoot
	Root string
	// Direction is applied after claiming the pin, empty keeps the kernel setting
	Direction Direction
	// Initial is the logical level of an output pin
	Initial bool
	// ActiveLow inverts every value read or written
	ActiveLow bool
}

// Pin is an exported GPIO. Direction and active low are cached, values are
// always read from the kernel. A Pin is not safe for concurrent use.
type Pin struct {
	*sysfs.Resource

	direction Direction
	activeLow bool

	directionAttr sysfs.Attribute[Direction]
	outputAttr    sysfs.Attribute[outputLevel]
	valueAttr     sysfs.Attribute[bool]
	edgeAttr      sysfs.Attribute[Edge]
}

// Subsystem returns the sysfs description of the GPIO class at root
func Subsystem(root string) sysfs.Subsystem {
	if root == "" {
		root = DefaultRoot
	}
	return sysfs.Subsystem{
		Name:   "gpio",
		Root:   root,
		Prefix: "gpio",
		Probe:  "direction",
	}
}

// Open claims pin id. Either a configured pin is returned, or an error and the
// pin is left unexported.
func Open(h *sysfs.Host, id int, options *Options) (*Pin, error) {
	if options == nil {
		options = &Options{}
	}

	r, err := sysfs.Claim(h, Subsystem(options.Root), id)
	if err != nil {
		return nil, err
	}

	fs := h.Fs()
	p := &Pin{
		Resource:      r,
		activeLow:     options.ActiveLow,
		directionAttr: sysfs.NewAttribute(fs, r.Attr("direction"), directionCodec),
		outputAttr:    sysfs.NewAttribute(fs, r.Attr("direction"), outputCodec),
		valueAttr:     sysfs.NewAttribute(fs, r.Attr("value"), sysfs.BoolCodec),
		edgeAttr:      sysfs.NewAttribute(fs, r.Attr("edge"), edgeCodec),
	}

	switch options.Direction {
	case "":
		p.direction, err = p.directionAttr.Read()
	case Out:
		err = p.SetOutput(options.Initial)
	default:
		err = p.SetDirection(options.Direction)
	}

	if err != nil {
		r.Release()
		return nil, err
	}

	return p, nil
}

// With opens pin id, runs fn and releases the pin on every path out of fn
func With(h *sysfs.Host, id int, options *Options, fn func(p *Pin) error) (err error) {
	p, err := Open(h, id, options)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); err == nil {
			err = cerr
		}
	}()

	return fn(p)
}

// The kernel refuses unsupported directions with one of these codes
func directionError(err error) error {
	var op *hwerr.OpError
	if errors.As(err, &op) && hwerr.IsErrno(err, syscall.EPERM, syscall.EOPNOTSUPP, syscall.ENOTSUP, syscall.EIO) {
		return hwerr.New(hwerr.ErrorUnsupported, "set direction", op.Path, op.Err)
	}
	return err
}

// SetDirection configures the pin as input or output
func (p *Pin) SetDirection(d Direction) error {
	if err := p.CheckExported("set direction"); err != nil {
		return err
	}

	if err := p.directionAttr.Write(d); err != nil {
		return directionError(err)
	}

	p.direction = d
	return nil
}

// SetOutput makes the pin an output that starts at the given logical level
// without a glitch through the opposite level.
func (p *Pin) SetOutput(level bool) error {
	if err := p.CheckExported("set direction"); err != nil {
		return err
	}

	electrical := outputLevel("low")
	if level != p.activeLow {
		electrical = "high"
	}

	if err := p.outputAttr.Write(electrical); err != nil {
		return directionError(err)
	}

	p.direction = Out
	return nil
}

// Direction returns the cached direction
func (p *Pin) Direction() Direction {
	return p.direction
}

// ActiveLow reports whether values are inverted
func (p *Pin) ActiveLow() bool {
	return p.activeLow
}

// SetActiveLow changes the inversion of future reads and writes
func (p *Pin) SetActiveLow(activeLow bool) {
	p.activeLow = activeLow
}

// Write drives an output pin
func (p *Pin) Write(value bool) error {
	if err := p.CheckExported("write"); err != nil {
		return err
	}
	if p.direction != Out {
		return hwerr.Newf(hwerr.ErrorInvalidState, "write", p.valueAttr.Path(), "pin is configured as %q", p.direction)
	}

	return p.valueAttr.Write(value != p.activeLow)
}

// Read returns the logical level of the pin as reported by the kernel
func (p *Pin) Read() (bool, error) {
	if err := p.CheckExported("read"); err != nil {
		return false, err
	}

	v, err := p.valueAttr.Read()
	if err != nil {
		return false, err
	}
	return v != p.activeLow, nil
}

// Edge returns the edge setting of the kernel
func (p *Pin) Edge() (Edge, error) {
	if err := p.CheckExported("read edge"); err != nil {
		return EdgeNone, err
	}
	return p.edgeAttr.Read()
}

// SetEdge configures which transitions the kernel reports
func (p *Pin) SetEdge(e Edge) error {
	if err := p.CheckExported("set edge"); err != nil {
		return err
	}
	return p.edgeAttr.Write(e)
}

// WaitForEdge configures edge and blocks until it occurs or timeout passes,
// in which case it returns hwerr.ErrorTimeout. A negative timeout waits forever.
// Edges are electrical, active low does not swap rising and falling.
func (p *Pin) WaitForEdge(edge Edge, timeout time.Duration) error {
	if edge == EdgeNone {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "wait for edge", p.edgeAttr.Path(), "edge %q never fires", edge)
	}
	if err := p.SetEdge(edge); err != nil {
		return err
	}

	return p.waitChange(edge, timeout)
}

// waitChange waits on the value file for the edge already configured
func (p *Pin) waitChange(edge Edge, timeout time.Duration) error {
	path := p.valueAttr.Path()
	fired, err := p.Host().Waiter().WaitForChange(path, timeout)
	if err != nil {
		if hwerr.KindOf(err) != "" {
			return err
		}
		return hwerr.New(hwerr.ErrorIO, "wait for edge", path, err)
	}
	if !fired {
		return hwerr.Newf(hwerr.ErrorTimeout, "wait for edge", path, "no %s edge within %v", edge, timeout)
	}

	return nil
}

// Close releases the pin
func (p *Pin) Close() error {
	return p.Release()
}
