package core

import (
	"context"
	"net"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"serbridge/config"
	"serbridge/internal/bridge"
	sberr "serbridge/internal/errors"
	"serbridge/internal/metrics"
	"serbridge/internal/retry"
	"serbridge/internal/serial"
	"serbridge/internal/transport"
)

// ForwardMode reverses the bridge direction: instead of waiting for a
// client it dials a remote collector and pumps the local device into
// that connection.  The link is raw; any telnet handling is the remote
// end's business.
type ForwardMode struct {
	Device    config.DeviceSpec
	Address   string
	Reconnect bool
	Options   bridge.Options
	Metrics   *metrics.Collector

	// Dialer defaults to a plain TCP dialer when nil.  Override in
	// tests for deterministic failures.
	Dialer transport.Dialer
}

func (m *ForwardMode) dialer() transport.Dialer {
	if m.Dialer != nil {
		return m.Dialer
	}
	return &transport.TCPDialer{Timeout: config.DefaultDialTimeout}
}

// Run opens the device once and keeps it open across network drops:
// with Reconnect set, a lost link is redialed with backoff while the
// device stays healthy.  Device failures always end the run.
func (m *ForwardMode) Run(ctx context.Context) error {
	dev, err := serial.Open(m.Device, m.Options.BufferSize, config.DefaultPollInterval)
	if err != nil {
		return err
	}

	runErr := m.relay(ctx, dev)

	var result *multierror.Error
	result = multierror.Append(result, runErr)
	if cerr := dev.Close(); cerr != nil {
		result = multierror.Append(result, cerr)
	}

	if m.Metrics != nil {
		log.Debugf("final counters: %s", m.Metrics.JSON())
	}
	return result.ErrorOrNil()
}

func (m *ForwardMode) relay(ctx context.Context, dev *serial.Endpoint) error {
	dialer := m.dialer()
	defer dialer.Close()

	log.WithField("device", m.Device.String()).Infof("Forwarding to %s", m.Address)

	for {
		conn, err := m.dial(ctx, dialer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		runErr := bridge.NewConnected(dev, conn, m.Options).Run(ctx)
		conn.Close() //nolint:errcheck

		var serialErr *sberr.SerialError
		switch {
		case ctx.Err() != nil || runErr == nil:
			return nil
		case sberr.As(runErr, &serialErr):
			// The device is gone; redialing cannot help.
			return runErr
		case !m.Reconnect:
			return runErr
		}

		log.Warnf("Link to %s lost: %v; reconnecting", m.Address, runErr)
		m.Metrics.Reconnect()
	}
}

// dial resolves one usable connection.  Without Reconnect a single
// failure is final; with it, every failure feeds the backoff until the
// context ends.
func (m *ForwardMode) dial(ctx context.Context, dialer transport.Dialer) (net.Conn, error) {
	if !m.Reconnect {
		return dialer.Dial(ctx, "tcp", m.Address)
	}

	var conn net.Conn
	backoff := &retry.Backoff{
		InitialDelay: config.DefaultReconnectBackoff,
		MaxDelay:     config.DefaultMaxReconnectBackoff,
		MaxAttempts:  config.DefaultMaxReconnectAttempts,
		Jitter:       true,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.WithField("attempt", attempt).
				Warnf("Dial %s failed: %v; next try in %s", m.Address, err, delay.Round(time.Millisecond))
		},
	}
	err := backoff.Do(ctx, func(int) error {
		c, derr := dialer.Dial(ctx, "tcp", m.Address)
		if derr != nil {
			return derr
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
