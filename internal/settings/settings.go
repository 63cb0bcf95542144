package settings

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/devblac/event-relay/internal/storage"
)

const defaultRefresh = 15 * time.Second

// Source reads the stored process-wide settings. ok is false when none are stored.
type Source interface {
	LoadSettings(ctx context.Context) (s storage.Settings, ok bool, err error)
}

// Manager holds the in-memory copy of the poll settings. Load fills it once;
// Watch keeps it current and notifies OnChange subscribers.
type Manager struct {
	src      Source
	defaults storage.Settings
	refresh  time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	current   storage.Settings
	loaded    bool
	listeners []func(storage.Settings)
}

// New builds a Manager. Zero fields in stored settings fall back to defaults.
func New(src Source, defaults storage.Settings, refresh time.Duration, logger *slog.Logger) *Manager {
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		src:      src,
		defaults: defaults,
		refresh:  refresh,
		logger:   logger.With("component", "settings"),
		current:  defaults,
	}
}

// Load reads the settings from the source and makes them current.
func (m *Manager) Load(ctx context.Context) (storage.Settings, error) {
	s, err := m.read(ctx)
	if err != nil {
		return storage.Settings{}, err
	}
	m.mu.Lock()
	m.current = s
	m.loaded = true
	m.mu.Unlock()
	return s, nil
}

// Current returns the in-memory settings.
func (m *Manager) Current() storage.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnChange registers fn to run with the new settings after each change seen by Watch.
func (m *Manager) OnChange(fn func(storage.Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Watch polls the source until ctx is done. Read failures keep the last known settings.
func (m *Manager) Watch(ctx context.Context) error {
	m.logger.Info("settings watcher started", "poll_interval", m.refresh)
	ticker := time.NewTicker(m.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("settings watcher stopping")
			return ctx.Err()
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

// Refresh performs one poll and reports whether the settings changed.
func (m *Manager) Refresh(ctx context.Context) bool {
	s, err := m.read(ctx)
	if err != nil {
		m.logger.Warn("settings poll failed", "error", err)
		return false
	}

	m.mu.Lock()
	old := m.current
	if m.loaded && old == s {
		m.mu.Unlock()
		return false
	}
	m.current = s
	m.loaded = true
	listeners := append([]func(storage.Settings){}, m.listeners...)
	m.mu.Unlock()

	m.logger.Info("settings changed",
		"chain_id", s.ChainID,
		"targets_per_cycle", s.TargetsPerCycle,
		"poll_interval_ms", s.PollIntervalMS,
		"old_poll_interval_ms", old.PollIntervalMS,
	)
	for _, fn := range listeners {
		fn(s)
	}
	return true
}

func (m *Manager) read(ctx context.Context) (storage.Settings, error) {
	s, ok, err := m.src.LoadSettings(ctx)
	if err != nil {
		return storage.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		return m.defaults, nil
	}
	if s.ChainID <= 0 {
		s.ChainID = m.defaults.ChainID
	}
	if s.TargetsPerCycle <= 0 {
		s.TargetsPerCycle = m.defaults.TargetsPerCycle
	}
	if s.PollIntervalMS <= 0 {
		s.PollIntervalMS = m.defaults.PollIntervalMS
	}
	return s, nil
}
