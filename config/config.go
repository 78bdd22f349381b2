// Package config defines the runtime configuration for serbridge and
// provides the parser for serial device specifications.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	sberr "serbridge/internal/errors"
)

// Config holds every tuneable for a single serbridge run.
type Config struct {
	// ── Device ───────────────────────────────────────────────────────
	Device DeviceSpec `mapstructure:"-"` // positional, never from file/env

	// ── Network ──────────────────────────────────────────────────────
	ListenHost  string `mapstructure:"host"`    // serve mode bind address
	Port        int    `mapstructure:"port"`    // -p: serve mode listen port
	ConnectAddr string `mapstructure:"connect"` // -c: forward device to a remote bridge
	AttachAddr  string `mapstructure:"-"`       // --attach: interactive console, flags only
	Reconnect   bool   `mapstructure:"reconnect"`

	// ── Buffering ────────────────────────────────────────────────────
	BufferSize int `mapstructure:"buffer"`     // per-read chunk size
	HighWater  int `mapstructure:"high-water"` // pause reads above this many pending bytes
	LowWater   int `mapstructure:"low-water"`  // resume reads below this

	// ── Output ───────────────────────────────────────────────────────
	Verbose    int    `mapstructure:"verbose"`
	LogFile    string `mapstructure:"log-file"`
	LogMaxSize int    `mapstructure:"log-max-size"` // MiB per rotated file
	DryRun     bool   `mapstructure:"-"`
}

// ── Device spec ──────────────────────────────────────────────────────

// DeviceSpec identifies the serial device and its line discipline.
type DeviceSpec struct {
	Path     string
	Baud     int
	DataBits int  // 5-8
	Parity   byte // 'N', 'E', 'O', 'M', 'S'
	StopBits int  // 1 or 2
}

func (d DeviceSpec) String() string {
	return fmt.Sprintf("%s@%d,%d%c%d", d.Path, d.Baud, d.DataBits, d.Parity, d.StopBits)
}

// ParseDeviceSpec parses "path[,baud[,mode]]" where mode is the compact
// discipline notation such as "8N1".  A spec like "/dev/ttyUSB0" alone
// selects 115200 baud at 8N1.
func ParseDeviceSpec(spec string) (DeviceSpec, error) {
	ds := DeviceSpec{
		Baud:     DefaultBaud,
		DataBits: DefaultDataBits,
		Parity:   DefaultParity,
		StopBits: DefaultStopBits,
	}

	if strings.TrimSpace(spec) == "" {
		return ds, &sberr.ConfigError{
			Field:   "device",
			Message: "device spec is required",
			Hint:    "expected <path>[,<baud>[,<mode>]], e.g. /dev/ttyUSB0,115200,8N1",
		}
	}

	fields := strings.Split(spec, ",")
	if len(fields) > 3 {
		return ds, &sberr.ConfigError{
			Field:   "device",
			Value:   spec,
			Message: "too many fields",
			Hint:    "expected <path>[,<baud>[,<mode>]]",
		}
	}

	ds.Path = strings.TrimSpace(fields[0])
	if ds.Path == "" {
		return ds, &sberr.ConfigError{
			Field:   "device",
			Value:   spec,
			Message: "device path is empty",
		}
	}

	if len(fields) >= 2 {
		raw := strings.TrimSpace(fields[1])
		baud, err := strconv.Atoi(raw)
		if err != nil || baud <= 0 {
			return ds, &sberr.ConfigError{
				Field:   "baud",
				Value:   raw,
				Message: "baud rate must be a positive integer",
			}
		}
		ds.Baud = baud
	}

	if len(fields) == 3 {
		if err := ds.applyMode(strings.TrimSpace(fields[2])); err != nil {
			return ds, err
		}
	}

	return ds, nil
}

// applyMode interprets a three-character discipline token: data bits,
// parity letter, stop bits.
func (d *DeviceSpec) applyMode(mode string) error {
	m := strings.ToUpper(mode)
	if len(m) != 3 {
		return &sberr.ConfigError{
			Field:   "mode",
			Value:   mode,
			Message: "line discipline must be <databits><parity><stopbits>",
			Hint:    "e.g. 8N1, 7E1, 8N2",
		}
	}
	switch m[0] {
	case '5', '6', '7', '8':
		d.DataBits = int(m[0] - '0')
	default:
		return &sberr.ConfigError{Field: "mode", Value: mode, Message: "data bits must be 5-8"}
	}
	switch m[1] {
	case 'N', 'E', 'O', 'M', 'S':
		d.Parity = m[1]
	default:
		return &sberr.ConfigError{Field: "mode", Value: mode, Message: "parity must be one of N, E, O, M, S"}
	}
	switch m[2] {
	case '1', '2':
		d.StopBits = int(m[2] - '0')
	default:
		return &sberr.ConfigError{Field: "mode", Value: mode, Message: "stop bits must be 1 or 2"}
	}
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.ConnectAddr != "" && c.AttachAddr != "" {
		return &sberr.ConfigError{
			Field:   "connect",
			Message: "-c and --attach are mutually exclusive",
		}
	}

	if c.AttachAddr != "" {
		if c.Device.Path != "" {
			return &sberr.ConfigError{
				Field:   "attach",
				Value:   c.AttachAddr,
				Message: "attach mode takes no device spec",
				Hint:    "the remote bridge owns the serial device",
			}
		}
		if _, _, err := net.SplitHostPort(c.AttachAddr); err != nil {
			return &sberr.ConfigError{
				Field:   "attach",
				Value:   c.AttachAddr,
				Message: "expected host:port",
			}
		}
	} else if c.Device.Path == "" {
		return &sberr.ConfigError{
			Field:   "device",
			Message: "no serial port specified",
			Hint:    "usage: serbridge [flags] <device>[,<baud>[,<mode>]]",
		}
	}

	if c.ConnectAddr != "" {
		if _, _, err := net.SplitHostPort(c.ConnectAddr); err != nil {
			return &sberr.ConfigError{
				Field:   "connect",
				Value:   c.ConnectAddr,
				Message: "expected host:port",
			}
		}
	}

	if c.Reconnect && c.ConnectAddr == "" {
		return &sberr.ConfigError{
			Field:   "reconnect",
			Message: "--reconnect requires -c <host:port>",
		}
	}

	if c.Port < 1 || c.Port > 65535 {
		return &sberr.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "out of range 1-65535",
		}
	}

	if c.BufferSize <= 0 {
		return &sberr.ConfigError{
			Field:   "buffer",
			Value:   c.BufferSize,
			Message: "buffer size must be positive",
		}
	}

	if c.HighWater <= 0 || c.LowWater < 0 || c.LowWater >= c.HighWater {
		return &sberr.ConfigError{
			Field:   "high-water",
			Value:   fmt.Sprintf("%d/%d", c.HighWater, c.LowWater),
			Message: "watermarks must satisfy 0 <= low < high",
		}
	}

	return nil
}
