package core

import (
	"context"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"serbridge/config"
	"serbridge/internal/bridge"
	"serbridge/internal/metrics"
	"serbridge/internal/serial"
	"serbridge/internal/transport"
)

// ServeMode is the default mode: it owns the serial device, listens
// on a TCP port, and bridges the device to one client at a time.
type ServeMode struct {
	Device  config.DeviceSpec
	Address string
	Options bridge.Options
	Metrics *metrics.Collector
}

// Run opens the device, binds the listener, and hands both to the
// bridge engine.  The device is opened first so a missing or busy
// port fails before the address is claimed.
func (m *ServeMode) Run(ctx context.Context) error {
	dev, err := serial.Open(m.Device, m.Options.BufferSize, config.DefaultPollInterval)
	if err != nil {
		return err
	}

	ln, err := transport.Listen(m.Address)
	if err != nil {
		dev.Close() //nolint:errcheck
		return err
	}

	log.WithField("device", m.Device.String()).Infof("Listening on %s", ln.Addr())

	runErr := bridge.New(dev, ln, m.Options).Run(ctx)

	var result *multierror.Error
	result = multierror.Append(result, runErr)
	if cerr := ln.Close(); cerr != nil {
		result = multierror.Append(result, cerr)
	}
	if cerr := dev.Close(); cerr != nil {
		result = multierror.Append(result, cerr)
	}

	if m.Metrics != nil {
		log.Debugf("final counters: %s", m.Metrics.JSON())
	}
	return result.ErrorOrNil()
}
