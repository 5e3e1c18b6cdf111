// Package pwm drives pulse width modulators through the sysfs PWM class.
//
// All times are integer nanoseconds, the unit of the kernel interface. The
// channel keeps duty cycle <= period: writes that would break it are refused
// before the kernel sees them, and Configure orders its writes so no
// intermediate state breaks it either.
package pwm

import (
	"fmt"
	"math"
	"path/filepath"
	"syscall"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/BertoldVdb/go-sysfs/sysfs"
)

// DefaultRoot is the PWM class directory of the kernel
const DefaultRoot = "/sys/class/pwm"

// Polarity of the active part of the period
type Polarity string

const (
	Normal   Polarity = "normal"
	Inversed Polarity = "inversed"
)

var polarityCodec = sysfs.EnumCodec(Normal, Inversed)

// Options configure Open
type Options struct {
	// Root overrides DefaultRoot, the directory holding the pwmchip<N> entries
	Root string
}

// Channel is an exported PWM output. Settings are cached after every
// successful write. A Channel is not safe for concurrent use.
type Channel struct {
	*sysfs.Resource
	chip int

	period   uint64
	duty     uint64
	polarity Polarity
	enabled  bool

	periodAttr   sysfs.Attribute[uint64]
	dutyAttr     sysfs.Attribute[uint64]
	polarityAttr sysfs.Attribute[Polarity]
	enableAttr   sysfs.Attribute[bool]
}

// Subsystem returns the sysfs description of one PWM chip
func Subsystem(root string, chip int) sysfs.Subsystem {
	if root == "" {
		root = DefaultRoot
	}
	return sysfs.Subsystem{
		Name:   fmt.Sprintf("pwmchip%d", chip),
		Root:   filepath.Join(root, fmt.Sprintf("pwmchip%d", chip)),
		Prefix: "pwm",
		Probe:  "period",
	}
}

// Open claims channel of chip and loads its current settings
func Open(h *sysfs.Host, chip int, channel int, options *Options) (*Channel, error) {
	if options == nil {
		options = &Options{}
	}
	if chip < 0 {
		return nil, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "claim", options.Root, "negative chip %d", chip)
	}

	r, err := sysfs.Claim(h, Subsystem(options.Root, chip), channel)
	if err != nil {
		return nil, err
	}

	fs := h.Fs()
	c := &Channel{
		Resource:     r,
		chip:         chip,
		periodAttr:   sysfs.NewAttribute(fs, r.Attr("period"), sysfs.UintCodec),
		dutyAttr:     sysfs.NewAttribute(fs, r.Attr("duty_cycle"), sysfs.UintCodec),
		polarityAttr: sysfs.NewAttribute(fs, r.Attr("polarity"), polarityCodec),
		enableAttr:   sysfs.NewAttribute(fs, r.Attr("enable"), sysfs.BoolCodec),
	}

	if err := c.Refresh(); err != nil {
		r.Release()
		return nil, err
	}

	return c, nil
}

// With opens a channel, runs fn and releases the channel on every path out of fn
func With(h *sysfs.Host, chip int, channel int, options *Options, fn func(c *Channel) error) (err error) {
	c, err := Open(h, chip, channel, options)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}()

	return fn(c)
}

// Refresh reloads the cached settings from the kernel
func (c *Channel) Refresh() error {
	if err := c.CheckExported("refresh"); err != nil {
		return err
	}

	period, err := c.periodAttr.Read()
	if err != nil {
		return err
	}
	duty, err := c.dutyAttr.Read()
	if err != nil {
		return err
	}
	polarity, err := c.polarityAttr.Read()
	if err != nil {
		return err
	}
	enabled, err := c.enableAttr.Read()
	if err != nil {
		return err
	}

	c.period, c.duty, c.polarity, c.enabled = period, duty, polarity, enabled
	return nil
}

// Chip returns the chip number
func (c *Channel) Chip() int {
	return c.chip
}

// Period returns the cached period in nanoseconds
func (c *Channel) Period() uint64 {
	return c.period
}

// DutyCycle returns the cached duty cycle in nanoseconds
func (c *Channel) DutyCycle() uint64 {
	return c.duty
}

// Polarity returns the cached polarity
func (c *Channel) Polarity() Polarity {
	return c.polarity
}

// Enabled reports whether the output runs
func (c *Channel) Enabled() bool {
	return c.enabled
}

func (c *Channel) writePeriod(ns uint64) error {
	if err := c.periodAttr.Write(ns); err != nil {
		return err
	}
	c.period = ns
	return nil
}

func (c *Channel) writeDuty(ns uint64) error {
	if err := c.dutyAttr.Write(ns); err != nil {
		return err
	}
	c.duty = ns
	return nil
}

// SetPeriod changes the period. A period shorter than the current duty cycle
// is refused; use Configure to change both.
func (c *Channel) SetPeriod(ns uint64) error {
	if err := c.CheckExported("set period"); err != nil {
		return err
	}
	if ns == 0 {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "set period", c.periodAttr.Path(), "period must be positive")
	}
	if ns < c.duty {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "set period", c.periodAttr.Path(),
			"period %dns is shorter than duty cycle %dns", ns, c.duty)
	}

	return c.writePeriod(ns)
}

// SetDutyCycle changes the duty cycle, which may not exceed the period
func (c *Channel) SetDutyCycle(ns uint64) error {
	if err := c.CheckExported("set duty cycle"); err != nil {
		return err
	}
	if ns > c.period {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "set duty cycle", c.dutyAttr.Path(),
			"duty cycle %dns exceeds period %dns", ns, c.period)
	}

	return c.writeDuty(ns)
}

// Configure sets period and duty cycle together. A shorter period is written
// after the duty cycle, a longer or equal one before it.
func (c *Channel) Configure(period uint64, duty uint64) error {
	if err := c.CheckExported("configure"); err != nil {
		return err
	}
	if period == 0 || duty > period {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", c.Dir(),
			"duty cycle %dns does not fit period %dns", duty, period)
	}

	if period >= c.period {
		if err := c.writePeriod(period); err != nil {
			return err
		}
		return c.writeDuty(duty)
	}

	if err := c.writeDuty(duty); err != nil {
		return err
	}
	return c.writePeriod(period)
}

// SetDutyPercent sets the duty cycle as a share of the current period,
// truncated to whole nanoseconds.
func (c *Channel) SetDutyPercent(percent float64) error {
	if percent < 0 || percent > 100 || math.IsNaN(percent) {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "set duty cycle", c.dutyAttr.Path(), "%v%% is not a percentage", percent)
	}

	return c.SetDutyCycle(uint64(float64(c.period) * percent / 100))
}

// SetPolarity changes the polarity. Drivers refuse this while enabled.
func (c *Channel) SetPolarity(p Polarity) error {
	if err := c.CheckExported("set polarity"); err != nil {
		return err
	}
	if c.enabled {
		return hwerr.Newf(hwerr.ErrorInvalidState, "set polarity", c.polarityAttr.Path(), "output is enabled")
	}

	if err := c.polarityAttr.Write(p); err != nil {
		if hwerr.IsErrno(err, syscall.EBUSY) {
			return hwerr.New(hwerr.ErrorInvalidState, "set polarity", c.polarityAttr.Path(), err)
		}
		return err
	}

	c.polarity = p
	return nil
}

func (c *Channel) setEnable(op string, enable bool) error {
	if err := c.CheckExported(op); err != nil {
		return err
	}
	if enable && c.period == 0 {
		return hwerr.Newf(hwerr.ErrorInvalidState, op, c.enableAttr.Path(), "period is not set")
	}

	if err := c.enableAttr.Write(enable); err != nil {
		return err
	}

	c.enabled = enable
	return nil
}

// Enable starts the output
func (c *Channel) Enable() error {
	return c.setEnable("enable", true)
}

// Disable stops the output
func (c *Channel) Disable() error {
	return c.setEnable("disable", false)
}

// Close stops a running output and releases the channel
func (c *Channel) Close() error {
	if c.Exported() && c.enabled {
		if err := c.Disable(); err != nil {
			c.Logger().WithError(err).Warn("Failed to disable output before release")
		}
	}
	return c.Release()
}
