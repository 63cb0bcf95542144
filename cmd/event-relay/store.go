package main

import (
	"context"
	"fmt"

	"github.com/devblac/event-relay/internal/config"
	"github.com/devblac/event-relay/internal/storage"
	"github.com/devblac/event-relay/internal/storage/postgres"
)

// relayStore is the union of capabilities the CLI needs; both backends satisfy it.
type relayStore interface {
	GetTarget(ctx context.Context, identifier string) (storage.Target, error)
	ListTargets(ctx context.Context) ([]storage.Target, error)
	ListDueTargets(ctx context.Context, limit int) ([]storage.Target, error)
	UpsertTarget(ctx context.Context, t storage.Target, resetCursor bool) error
	SetPaused(ctx context.Context, identifier string, paused bool) error
	AdvanceCursor(ctx context.Context, identifier string, block uint64) error

	LoadSettings(ctx context.Context) (storage.Settings, bool, error)
	SaveSettings(ctx context.Context, st storage.Settings) error

	GetEndpoint(ctx context.Context, event string) (string, error)
	SetEndpoint(ctx context.Context, event, url string) error
	ListEndpoints(ctx context.Context) ([]storage.Endpoint, error)

	RecordDelivery(ctx context.Context, d storage.Delivery) error

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ relayStore = (*storage.Store)(nil)
	_ relayStore = (*postgres.Store)(nil)
)

func openStore(ctx context.Context, cfg *config.Config) (relayStore, error) {
	switch cfg.Global.DBDriver {
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, cfg.Global.DBURL, cfg.Global.Namespace)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return st, nil
	default:
		st, err := storage.Open(cfg.Global.DBPath, cfg.Global.Namespace)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		return st, nil
	}
}

// loadStore reads the config and opens its store.
func loadStore(ctx context.Context) (*config.Config, relayStore, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func defaultSettings(cfg *config.Config) storage.Settings {
	return storage.Settings{
		ChainID:         cfg.Defaults.ChainID,
		TargetsPerCycle: cfg.Defaults.TargetsPerCycle,
		PollIntervalMS:  cfg.Defaults.PollIntervalMS,
	}
}

// seedEndpoints writes config endpoints that the store does not know yet.
// Endpoints already in the store win, so runtime edits survive restarts.
func seedEndpoints(ctx context.Context, st relayStore, endpoints map[string]string) (int, error) {
	existing, err := st.ListEndpoints(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		known[e.Event] = struct{}{}
	}
	seeded := 0
	for event, url := range endpoints {
		if _, ok := known[event]; ok {
			continue
		}
		if err := st.SetEndpoint(ctx, event, url); err != nil {
			return seeded, fmt.Errorf("seed endpoint %s: %w", event, err)
		}
		seeded++
	}
	return seeded, nil
}
