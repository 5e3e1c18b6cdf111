package serial

import (
	"io"
	"os"
	"syscall"
	"time"
	"unsafe"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/BertoldVdb/go-sysfs/linux-pio/bus"
	"golang.org/x/sys/unix"
)

type serialPortLinux struct {
	file      *os.File
	name      string
	closeChan chan (struct{})

	readTimeout time.Duration
}

func (port *serialPortLinux) ioError(op string, err error) error {
	return hwerr.New(hwerr.ErrorIO, op, port.name, err)
}

func (port *serialPortLinux) SetFlowControl(enabled bool) error {
	termios, err := unix.IoctlGetTermios(int(port.file.Fd()), unix.TCGETS2)
	if err != nil {
		return port.ioError("get termios", err)
	}

	if enabled {
		termios.Cflag |= unix.CRTSCTS
	} else {
		termios.Cflag &= ^uint32(unix.CRTSCTS)
	}

	if err := unix.IoctlSetTermios(int(port.file.Fd()), unix.TCSETS2, termios); err != nil {
		return bus.ConfigureError(port.name, err)
	}
	return nil
}

func (port *serialPortLinux) SetInterfaceRate(rate uint32) error {
	if rate == 0 {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "configure", port.name, "baud rate must be positive")
	}

	termios, err := unix.IoctlGetTermios(int(port.file.Fd()), unix.TCGETS2)
	if err != nil {
		return port.ioError("get termios", err)
	}

	termios.Cflag &= ^uint32(unix.CBAUD)
	termios.Cflag |= uint32(unix.BOTHER)
	termios.Ispeed = rate
	termios.Ospeed = rate

	if err := unix.IoctlSetTermios(int(port.file.Fd()), unix.TCSETS2, termios); err != nil {
		return bus.ConfigureError(port.name, err)
	}
	return nil
}

var characterSizes = map[int]uint32{
	5: unix.CS5,
	6: unix.CS6,
	7: unix.CS7,
	8: unix.CS8,
}

// Configure applies every setting of options except PortName
func (port *serialPortLinux) Configure(options *PortOptions) error {
	opts := *options
	if err := opts.Validate(); err != nil {
		return err
	}

	termios := &unix.Termios{}
	/* Raw mode, receiver on, modem lines ignored */
	termios.Cflag |= characterSizes[opts.DataBits] | unix.CLOCAL | unix.CREAD
	if opts.StopBits == 2 {
		termios.Cflag |= unix.CSTOPB
	}
	switch opts.Parity {
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		termios.Cflag |= unix.PARENB
	}
	if opts.FlowControl {
		termios.Cflag |= unix.CRTSCTS
	}
	termios.Cflag |= uint32(unix.BOTHER)
	termios.Ispeed = opts.InterfaceRate
	termios.Ospeed = opts.InterfaceRate

	/* Reads return after VTIME without data, so Close and Transfer deadlines
	 * are noticed even when the line stays quiet */
	termios.Cc[unix.VTIME] = opts.vtime()
	termios.Cc[unix.VMIN] = 0

	if err := unix.IoctlSetTermios(int(port.file.Fd()), unix.TCSETS2, termios); err != nil {
		return bus.ConfigureError(port.name, err)
	}

	port.readTimeout = opts.ReadTimeout
	return nil
}

func openPortOs(options *PortOptions) (*serialPortLinux, error) {
	opts := *options
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(opts.PortName, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0600)
	if err != nil {
		return nil, hwerr.New(hwerr.ErrorIO, "open", opts.PortName, err)
	}

	port := &serialPortLinux{}
	port.file = file
	port.name = opts.PortName
	port.closeChan = make(chan (struct{}), 1)
	port.closeChan <- struct{}{}

	err = port.Configure(&opts)
	if err != nil {
		goto failed
	}

	err = unix.SetNonblock(int(port.file.Fd()), false)
	if err != nil {
		err = port.ioError("open", err)
		goto failed
	}

	return port, nil

failed:
	file.Close()
	return nil, err
}

func (port *serialPortLinux) setPinIoctl(enabled bool, pin int) error {
	req := unix.TIOCMBIC
	if enabled {
		req = unix.TIOCMBIS
	}

	_, _, errNo := unix.Syscall(unix.SYS_IOCTL, port.file.Fd(), uintptr(req), uintptr(unsafe.Pointer(&pin)))
	if errNo != 0 {
		return port.ioError("TIOCMBIC/TIOCMBIS", errNo)
	}
	return nil
}

func (port *serialPortLinux) SetDTR(enabled bool) error {
	return port.setPinIoctl(enabled, unix.TIOCM_DTR)
}

func (port *serialPortLinux) SetRTS(enabled bool) error {
	return port.setPinIoctl(enabled, unix.TIOCM_RTS)
}

func (port *serialPortLinux) GetPins() (PortPins, error) {
	pins := PortPins{}

	v, err := unix.IoctlGetInt(int(port.file.Fd()), unix.TIOCMGET)
	if err != nil {
		return pins, port.ioError("TIOCMGET", err)
	}

	/* Decode response */
	pins.DTR = (v & unix.TIOCM_DTR) > 0
	pins.RTS = (v & unix.TIOCM_RTS) > 0
	pins.CTS = (v & unix.TIOCM_CTS) > 0
	pins.DCD = (v & unix.TIOCM_CAR) > 0
	pins.RNG = (v & unix.TIOCM_RNG) > 0
	pins.DSR = (v & unix.TIOCM_DSR) > 0

	return pins, nil
}

/* read returns 0 bytes when VTIME passes without data */
func (port *serialPortLinux) read(p []byte) (int, error) {
	token, ok := <-port.closeChan
	if !ok {
		return 0, hwerr.Newf(hwerr.ErrorInvalidState, "read", port.name, "port closed")
	}

	n, err := port.file.Read(p)
	port.closeChan <- token

	if err == io.EOF {
		return n, nil
	}
	if err != nil {
		return n, port.ioError("read", err)
	}
	return n, nil
}

func (port *serialPortLinux) Read(p []byte) (int, error) {
	for {
		n, err := port.read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (port *serialPortLinux) Write(p []byte) (int, error) {
	n, err := port.file.Write(p)
	if err != nil {
		return n, port.ioError("write", err)
	}
	return n, nil
}

// Transfer writes the request and collects readLen bytes of response within
// the read timeout.
func (port *serialPortLinux) Transfer(write []byte, readLen int) ([]byte, error) {
	if readLen < 0 {
		return nil, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "transfer", port.name, "negative read length")
	}

	if _, err := port.Write(write); err != nil {
		return nil, err
	}

	response := make([]byte, readLen)
	deadline := time.Now().Add(port.readTimeout)

	for got := 0; got < readLen; {
		n, err := port.read(response[got:])
		if err != nil {
			return nil, err
		}
		got += n

		if got < readLen && time.Now().After(deadline) {
			return nil, hwerr.Newf(hwerr.ErrorTimeout, "transfer", port.name, "%d of %d bytes after %v", got, readLen, port.readTimeout)
		}
	}

	return response, nil
}

func (port *serialPortLinux) Close() error {
	_, ok := <-port.closeChan
	if ok {
		close(port.closeChan)
		if err := port.file.Close(); err != nil {
			return port.ioError("close", err)
		}
	}

	return nil
}
