// Package board maps header names of a board to sysfs resources, so callers
// can ask for "P9_12" instead of GPIO 60.
package board

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/BertoldVdb/go-sysfs/sysfs"
	"github.com/BertoldVdb/go-sysfs/sysfs/adc"
	"github.com/BertoldVdb/go-sysfs/sysfs/gpio"
	"github.com/BertoldVdb/go-sysfs/sysfs/pwm"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// PWMOutput locates a PWM channel
type PWMOutput struct {
	Chip    int `yaml:"chip"`
	Channel int `yaml:"channel"`
}

// Board describes where the peripherals of a board live
type Board struct {
	Name string `yaml:"name"`

	GPIORoot string `yaml:"gpio_root,omitempty"`
	PWMRoot  string `yaml:"pwm_root,omitempty"`
	ADCRoot  string `yaml:"adc_root,omitempty"`

	// ADCMaxRaw and ADCMaxVoltage give the full scale of the converter
	ADCMaxRaw     uint64  `yaml:"adc_max_raw,omitempty"`
	ADCMaxVoltage float64 `yaml:"adc_max_voltage,omitempty"`

	GPIO map[string]int       `yaml:"gpio,omitempty"`
	PWM  map[string]PWMOutput `yaml:"pwm,omitempty"`
	ADC  map[string]int       `yaml:"adc,omitempty"`
}

// Parse decodes a YAML board description. Unknown keys are an error.
func Parse(data []byte) (*Board, error) {
	var b Board

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return nil, hwerr.New(hwerr.ErrorParse, "parse board", "", err)
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Load reads a board file from fs
func Load(fs afero.Fs, filename string) (*Board, error) {
	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, hwerr.New(hwerr.ErrorIO, "load board", filename, err)
	}

	b, err := Parse(data)
	if err != nil {
		var op *hwerr.OpError
		if errors.As(err, &op) {
			op.Path = filename
		}
		return nil, err
	}
	return b, nil
}

// Validate checks that every number in the description can be a resource
func (b *Board) Validate() error {
	for name, id := range b.GPIO {
		if id < 0 {
			return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "validate board", "", "gpio %s has negative number %d", name, id)
		}
	}
	for name, out := range b.PWM {
		if out.Chip < 0 || out.Channel < 0 {
			return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "validate board", "", "pwm %s has negative chip or channel", name)
		}
	}
	for name, ch := range b.ADC {
		if ch < 0 {
			return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "validate board", "", "adc %s has negative channel %d", name, ch)
		}
	}
	return nil
}

// Names are matched case insensitively and "P9.12" equals "P9_12"
func normalize(name string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), ".", "_"))
}

func lookup[T any](m map[string]T, name string) (T, bool) {
	if v, found := m[name]; found {
		return v, true
	}
	want := normalize(name)
	for k, v := range m {
		if normalize(k) == want {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// GPIOPin resolves a header name or a plain kernel number
func (b *Board) GPIOPin(name string) (int, error) {
	if id, found := lookup(b.GPIO, name); found {
		return id, nil
	}
	if id, err := strconv.Atoi(name); err == nil && id >= 0 {
		return id, nil
	}
	return 0, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "resolve gpio", "", "%q is not a pin of %s", name, b.Name)
}

// PWMOutput resolves an output name, or "chip:channel"
func (b *Board) PWMOutput(name string) (PWMOutput, error) {
	if out, found := lookup(b.PWM, name); found {
		return out, nil
	}

	chip, channel, ok := strings.Cut(name, ":")
	if ok {
		c, err1 := strconv.Atoi(chip)
		n, err2 := strconv.Atoi(channel)
		if err1 == nil && err2 == nil && c >= 0 && n >= 0 {
			return PWMOutput{Chip: c, Channel: n}, nil
		}
	}
	return PWMOutput{}, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "resolve pwm", "", "%q is not a pwm output of %s", name, b.Name)
}

// ADCChannel resolves an analog input name or a plain channel number
func (b *Board) ADCChannel(name string) (int, error) {
	if ch, found := lookup(b.ADC, name); found {
		return ch, nil
	}
	if ch, err := strconv.Atoi(name); err == nil && ch >= 0 {
		return ch, nil
	}
	return 0, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "resolve adc", "", "%q is not an analog input of %s", name, b.Name)
}

// OpenPin resolves name and opens it with the board's GPIO root
func (b *Board) OpenPin(h *sysfs.Host, name string, options gpio.Options) (*gpio.Pin, error) {
	id, err := b.GPIOPin(name)
	if err != nil {
		return nil, err
	}
	options.Root = b.GPIORoot
	return gpio.Open(h, id, &options)
}

// OpenPWM resolves name and opens it with the board's PWM root
func (b *Board) OpenPWM(h *sysfs.Host, name string) (*pwm.Channel, error) {
	out, err := b.PWMOutput(name)
	if err != nil {
		return nil, err
	}
	return pwm.Open(h, out.Chip, out.Channel, &pwm.Options{Root: b.PWMRoot})
}

// OpenADC resolves name and opens it with the board's IIO root
func (b *Board) OpenADC(h *sysfs.Host, name string) (*adc.Channel, error) {
	ch, err := b.ADCChannel(name)
	if err != nil {
		return nil, err
	}
	return adc.Open(h, ch, &adc.Options{Root: b.ADCRoot})
}

// ReadVoltage reads an analog input scaled to the board's full scale
func (b *Board) ReadVoltage(c *adc.Channel) (float64, error) {
	if b.ADCMaxRaw == 0 || b.ADCMaxVoltage == 0 {
		return 0, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "read voltage", c.Path(), "%s has no adc full scale", b.Name)
	}
	return c.ReadScaled(b.ADCMaxRaw, b.ADCMaxVoltage)
}

// Marshal encodes the description as YAML, the format Load reads
func (b *Board) Marshal() ([]byte, error) {
	return yaml.Marshal(b)
}
