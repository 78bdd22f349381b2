// Package cmd wires up the CLI flags and dispatches to the bridge core.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	log "github.com/sirupsen/logrus"

	"serbridge/config"
	"serbridge/internal/core"
	sberr "serbridge/internal/errors"
	"serbridge/internal/serial"
	"serbridge/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X serbridge/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the appropriate serbridge mode.
func Execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serbridge", flag.ContinueOnError)

	// ── network ──────────────────────────────────────────────────
	host := fs.String("host", config.DefaultHost, "Bind address for serve mode")
	port := fs.IntP("port", "p", config.DefaultPort, "TCP port to listen on")
	connect := fs.StringP("connect", "c", "", "Forward the device to host:port instead of listening")
	attach := fs.String("attach", "", "Open an interactive console to a bridge at host:port")
	reconnect := fs.Bool("reconnect", false, "Redial the -c target with backoff when the link drops")

	// ── buffering ────────────────────────────────────────────────
	buffer := fs.IntP("buffer", "b", config.DefaultBufferSize, "I/O chunk size in bytes")
	highWater := fs.Int("high-water", config.DefaultHighWater, "Pause reads above this many pending bytes")
	lowWater := fs.Int("low-water", config.DefaultLowWater, "Resume reads below this many pending bytes")

	// ── output ───────────────────────────────────────────────────
	verbose := fs.CountP("verbose", "v", "Increase verbosity (repeatable)")
	quiet := fs.BoolP("quiet", "q", false, "Warnings and errors only")
	logFile := fs.String("log-file", "", "Append logs to this rotated file instead of stderr")
	cfgPath := fs.String("config", "", "Config file (default: serbridge.yaml if present)")
	dryRun := fs.Bool("dry-run", false, "Validate the configuration and exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("serbridge %s\n", version)
		return nil
	}

	// ── overlay: flags > env > file > defaults ───────────────────
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if fs.Changed("host") {
		cfg.ListenHost = *host
	}
	if fs.Changed("port") {
		cfg.Port = *port
	}
	if fs.Changed("connect") {
		cfg.ConnectAddr = *connect
	}
	if fs.Changed("reconnect") {
		cfg.Reconnect = *reconnect
	}
	if fs.Changed("buffer") {
		cfg.BufferSize = *buffer
	}
	if fs.Changed("high-water") {
		cfg.HighWater = *highWater
	}
	if fs.Changed("low-water") {
		cfg.LowWater = *lowWater
	}
	if fs.Changed("verbose") {
		cfg.Verbose = *verbose
	}
	if fs.Changed("log-file") {
		cfg.LogFile = *logFile
	}
	cfg.AttachAddr = *attach
	cfg.DryRun = *dryRun

	// ── positional device spec ───────────────────────────────────
	rest := fs.Args()
	switch {
	case len(rest) > 1:
		return fmt.Errorf("unexpected argument %q", rest[1])
	case len(rest) == 1:
		dev, err := config.ParseDeviceSpec(rest[0])
		if err != nil {
			return err
		}
		cfg.Device = dev
	}

	util.SetupLogging(cfg.Verbose, *quiet, cfg.LogFile, cfg.LogMaxSize, config.DefaultLogMaxBackups)

	if cfg.BufferSize < config.MinBufferSize {
		log.Warnf("buffer size %d below minimum, using %d", cfg.BufferSize, config.MinBufferSize)
		cfg.BufferSize = config.MinBufferSize
	}

	if cfg.DryRun {
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Printf("configuration ok: %s\n", describe(cfg))
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	mode, err := core.Build(cfg)
	if err != nil {
		return err
	}

	err = mode.Run(ctx)
	if sberr.SerialCodeOf(err) == sberr.SerialNotFound {
		if ports := serial.Available(); len(ports) > 0 {
			fmt.Fprintf(os.Stderr, "available serial ports: %s\n", strings.Join(ports, ", "))
		}
	}
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

// describe summarizes the resolved configuration in one line.
func describe(cfg *config.Config) string {
	switch {
	case cfg.AttachAddr != "":
		return fmt.Sprintf("attach %s", cfg.AttachAddr)
	case cfg.ConnectAddr != "":
		return fmt.Sprintf("forward %s to %s", cfg.Device, cfg.ConnectAddr)
	default:
		return fmt.Sprintf("serve %s on %s", cfg.Device, util.FormatAddr(cfg.ListenHost, cfg.Port))
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `serbridge – serial-to-TCP bridge v%s

Exposes a local serial device to the network, speaking enough telnet
that standard terminal clients work in raw character mode.

Usage:
  serbridge [options] <device>[,<baud>[,<mode>]]      Serve (default)
  serbridge -c <host:port> [options] <device>[,...]   Forward to a collector
  serbridge --attach <host:port>                      Interactive console

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  serbridge /dev/ttyUSB0                              Serve on :8722, 115200 8N1
  serbridge -p 7000 /dev/ttyACM0,9600                 Serve on :7000 at 9600 baud
  serbridge -c collector:9000 --reconnect /dev/ttyUSB0
  serbridge --attach 192.168.1.50:8722                Console, detach with Ctrl-]
`)
}
