package core

import (
	"serbridge/config"
	"serbridge/internal/bridge"
	"serbridge/internal/metrics"
	"serbridge/util"
)

// Build constructs the appropriate Mode from the given configuration.
// The config is validated here so that programmatic callers get the
// same checks as the CLI.
func Build(cfg *config.Config) (Mode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch {
	case cfg.AttachAddr != "":
		return buildAttach(cfg), nil
	case cfg.ConnectAddr != "":
		return buildForward(cfg), nil
	default:
		return buildServe(cfg), nil
	}
}

// ── mode builders ────────────────────────────────────────────────────

func buildServe(cfg *config.Config) Mode {
	m := metrics.New()
	return &ServeMode{
		Device:  cfg.Device,
		Address: util.FormatAddr(cfg.ListenHost, cfg.Port),
		Options: bridgeOptions(cfg, m),
		Metrics: m,
	}
}

func buildForward(cfg *config.Config) Mode {
	m := metrics.New()
	opts := bridgeOptions(cfg, m)
	// A dialed bridge-to-bridge link carries bytes verbatim; telnet
	// framing is only spoken toward accepted terminal clients.
	opts.Raw = true
	return &ForwardMode{
		Device:    cfg.Device,
		Address:   cfg.ConnectAddr,
		Reconnect: cfg.Reconnect,
		Options:   opts,
		Metrics:   m,
	}
}

func buildAttach(cfg *config.Config) Mode {
	return &AttachMode{Address: cfg.AttachAddr}
}

// ── shared helpers ───────────────────────────────────────────────────

func bridgeOptions(cfg *config.Config, m *metrics.Collector) bridge.Options {
	return bridge.Options{
		BufferSize: cfg.BufferSize,
		HighWater:  cfg.HighWater,
		LowWater:   cfg.LowWater,
		Metrics:    m,
	}
}
