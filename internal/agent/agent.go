// Package agent runs the city side of the directory protocol: it serves the
// command port, registers with the directory and pushes telemetry.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"citydir/internal/addrutil"
	"citydir/internal/api"
	"citydir/internal/cmdport"
	"citydir/internal/config"
	"citydir/internal/model"
	"citydir/internal/stunutil"
)

const stunTimeout = 5 * time.Second

// EnsureID assigns a random id when cfg has none and reports whether it did.
func EnsureID(cfg *config.CityConfig) bool {
	if cfg.ID != "" {
		return false
	}
	cfg.ID = uuid.NewString()
	return true
}

// Run serves commands from sim and reports its telemetry until ctx ends.
func Run(ctx context.Context, cfg config.CityConfig, sim *Sim, logger *slog.Logger) error {
	if cfg.ID == "" {
		return errors.New("city id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("city", cfg.Name, "id", cfg.ID)

	responder, err := cmdport.Listen(cfg.CommandListen, sim.Handle, logger)
	if err != nil {
		return fmt.Errorf("command port: %w", err)
	}
	defer responder.Close()

	address, err := advertiseAddr(ctx, cfg, responder.LocalAddr(), logger)
	if err != nil {
		return err
	}
	logger.Info("command port ready", "listen", responder.LocalAddr(), "advertise", address)

	interval := time.Duration(cfg.UpdateIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Duration(config.DefaultUpdateIntervalSec) * time.Second
	}

	// A directory call never outlives one reporting interval.
	opts := []api.ClientOption{api.WithHTTPClient(&http.Client{Timeout: interval})}
	if cfg.TelemetryEncoding == "cbor" {
		opts = append(opts, api.WithCBORTelemetry())
	}
	client := api.NewClient(cfg.Directory, opts...)

	meta := model.CityMetadata{Name: cfg.Name, ID: cfg.ID, Map: cfg.Map, Address: address}
	if err := register(ctx, client, meta, logger); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	push(ctx, client, cfg.ID, sim, logger)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			sim.Step(now.Sub(last))
			last = now
			push(ctx, client, cfg.ID, sim, logger)
		}
	}
}

func advertiseAddr(ctx context.Context, cfg config.CityConfig, listenAddr string, logger *slog.Logger) (string, error) {
	publicHost := ""
	if cfg.Advertise == "" && len(cfg.STUNServers) > 0 {
		host, err := stunutil.PublicHost(ctx, cfg.STUNServers, stunTimeout)
		if err != nil {
			logger.Warn("STUN discovery failed, advertising listener address", "error", err)
		} else {
			publicHost = host
		}
	}
	return addrutil.AdvertiseAddr(cfg.Advertise, listenAddr, publicHost)
}

// register treats a name conflict as success: in strict mode a restarted
// agent finds its own earlier registration.
func register(ctx context.Context, client *api.Client, meta model.CityMetadata, logger *slog.Logger) error {
	_, err := client.Register(ctx, meta)
	switch {
	case err == nil:
		logger.Info("registered", "address", meta.Address, "map", meta.Map)
		return nil
	case api.IsConflict(err):
		logger.Warn("name already registered, keeping existing entry", "error", err)
		return nil
	default:
		return fmt.Errorf("register: %w", err)
	}
}

func push(ctx context.Context, client *api.Client, id string, sim *Sim, logger *slog.Logger) {
	t := sim.Telemetry()
	if err := client.UpdateTelemetry(ctx, id, t); err != nil {
		if ctx.Err() == nil {
			logger.Warn("telemetry push failed", "error", err)
		}
		return
	}
	logger.Debug("telemetry pushed", "running", t.Running, "population", t.Population)
}
