// Package serial drives UARTs through termios. A Port is a plain byte stream
// and a bus.Transactor for request/response devices.
package serial

import (
	"io"
	"time"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/BertoldVdb/go-sysfs/linux-pio/bus"
)

// Port is an extended io.ReadWriteCloser that also allows changing
// some serial port specific settings
type Port interface {
	io.ReadWriteCloser
	bus.Transactor

	/* Configuration */
	Configure(options *PortOptions) error
	SetInterfaceRate(rate uint32) error
	SetFlowControl(enabled bool) error

	/* Pins */
	SetDTR(enabled bool) error
	SetRTS(enabled bool) error
	GetPins() (PortPins, error)
}

// Parity of each character
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// DefaultReadTimeout bounds Transfer when PortOptions.ReadTimeout is zero
const DefaultReadTimeout = time.Second

// PortOptions is a parameter struct for Open and Configure
type PortOptions struct {
	PortName      string
	InterfaceRate uint32
	FlowControl   bool

	// DataBits defaults to 8, StopBits to 1
	DataBits int
	StopBits int
	Parity   Parity

	// ReadTimeout is how long Transfer waits for the complete response
	ReadTimeout time.Duration
}

// Validate fills in defaults and rejects impossible settings
func (o *PortOptions) Validate() error {
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = DefaultReadTimeout
	}

	switch {
	case o.InterfaceRate == 0:
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", o.PortName, "baud rate must be positive")
	case o.DataBits < 5 || o.DataBits > 8:
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", o.PortName, "%d data bits", o.DataBits)
	case o.StopBits != 1 && o.StopBits != 2:
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", o.PortName, "%d stop bits", o.StopBits)
	case o.Parity < ParityNone || o.Parity > ParityEven:
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", o.PortName, "unknown parity %d", o.Parity)
	case o.ReadTimeout < 0:
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", o.PortName, "negative read timeout")
	}
	return nil
}

/* VTIME in tenths of a second, so a read returns often enough to check the deadline */
func (o *PortOptions) vtime() uint8 {
	t := o.ReadTimeout / (100 * time.Millisecond)
	if t < 1 {
		return 1
	}
	if t > 10 {
		return 10
	}
	return uint8(t)
}

// PortPins indicates the state of the modem control signals
type PortPins struct {
	DSR bool
	DTR bool
	RTS bool
	CTS bool
	DCD bool
	RNG bool
}

// Open creates an object that implements the SerialPort interface
func Open(options *PortOptions) (Port, error) {
	port, err := openPortOs(options)
	if err != nil {
		return nil, err
	}
	return port, nil
}
