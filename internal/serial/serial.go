// Package serial owns the bridge's serial endpoint: opening the device
// with its line discipline, classifying failures, and pumping bytes
// between the port and the bridge loop.
package serial

import (
	"io/fs"
	"time"

	gobug "go.bug.st/serial"

	"serbridge/config"
	sberr "serbridge/internal/errors"
)

// port is the slice of the serial library the endpoint relies on,
// narrow enough to fake in tests.
type port interface {
	SetReadTimeout(t time.Duration) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// openPort and listPorts are swapped out by tests.
var (
	openPort = func(name string, mode *gobug.Mode) (port, error) {
		return gobug.Open(name, mode)
	}
	listPorts = gobug.GetPortsList
)

// modeFor translates the parsed device spec into the library's mode.
// Validation happens upstream, so unexpected values degrade to the
// 8N1 conventions instead of failing.
func modeFor(spec config.DeviceSpec) *gobug.Mode {
	m := &gobug.Mode{BaudRate: spec.Baud, DataBits: spec.DataBits}
	switch spec.Parity {
	case 'O':
		m.Parity = gobug.OddParity
	case 'E':
		m.Parity = gobug.EvenParity
	case 'M':
		m.Parity = gobug.MarkParity
	case 'S':
		m.Parity = gobug.SpaceParity
	default:
		m.Parity = gobug.NoParity
	}
	if spec.StopBits == 2 {
		m.StopBits = gobug.TwoStopBits
	} else {
		m.StopBits = gobug.OneStopBit
	}
	return m
}

// classify maps a library error onto the bridge's failure taxonomy.
func classify(err error) sberr.SerialCode {
	var pe *gobug.PortError
	if sberr.As(err, &pe) {
		switch pe.Code() {
		case gobug.PortNotFound:
			return sberr.SerialNotFound
		case gobug.PortBusy:
			return sberr.SerialBusy
		case gobug.PermissionDenied:
			return sberr.SerialPermission
		case gobug.InvalidSpeed, gobug.InvalidDataBits, gobug.InvalidParity,
			gobug.InvalidStopBits, gobug.InvalidTimeoutValue:
			return sberr.SerialInvalid
		case gobug.PortClosed, gobug.InvalidSerialPort:
			return sberr.SerialDisconnected
		}
		return sberr.SerialUnknown
	}
	// Raw errnos reach us on platforms where the library passes the
	// open(2) failure through.
	if sberr.Is(err, fs.ErrNotExist) {
		return sberr.SerialNotFound
	}
	if sberr.Is(err, fs.ErrPermission) {
		return sberr.SerialPermission
	}
	return sberr.SerialUnknown
}

// ioCode classifies a failure on an already-open port. Whatever the
// errno, a port that stops reading or writing is gone from the
// bridge's point of view.
func ioCode(err error) sberr.SerialCode {
	if c := classify(err); c != sberr.SerialUnknown {
		return c
	}
	return sberr.SerialDisconnected
}

// Available enumerates the serial ports present on the system.
// Enumeration failures degrade to an empty list; this only feeds
// diagnostics.
func Available() []string {
	ports, err := listPorts()
	if err != nil {
		return nil
	}
	return ports
}
