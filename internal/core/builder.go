package core

import (
	"echosock/config"
	errs "echosock/internal/errors"
	"echosock/internal/metrics"
	"echosock/util"
)

// Build constructs the appropriate Mode from a validated configuration.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Listen {
		return buildServe(cfg, logger)
	}
	return buildConnect(cfg, logger)
}

// ── mode builders ────────────────────────────────────────────────────

func buildServe(cfg *config.Config, logger *util.Logger) (Mode, error) {
	port, err := port16(cfg.Port)
	if err != nil {
		return nil, err
	}
	return &ServeMode{
		Address:   cfg.Host,
		Port:      port,
		Backlog:   cfg.Backlog,
		ChunkSize: cfg.ChunkSize,
		Spawner:   cfg.Spawner,
		AdminAddr: cfg.AdminAddr,
		Logger:    logger,
		Metrics:   metrics.New(),
	}, nil
}

func buildConnect(cfg *config.Config, logger *util.Logger) (Mode, error) {
	port, err := port16(cfg.Port)
	if err != nil {
		return nil, err
	}
	return &ConnectMode{
		Address:   cfg.Host,
		Port:      port,
		ChunkSize: cfg.ChunkSize,
		Message:   cfg.Message,
		Logger:    logger,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

func port16(p int) (uint16, error) {
	if p < 0 || p > 65535 {
		return 0, &errs.ConfigError{Field: "port", Value: p, Message: "out of range 0-65535"}
	}
	return uint16(p), nil
}
