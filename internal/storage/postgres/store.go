// Package postgres is the Postgres-backed store, a drop-in for the SQLite store
// when several relay processes share scan state.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/devblac/event-relay/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists scan targets, settings, endpoints, and deliveries in Postgres.
type Store struct {
	pool *pgxpool.Pool
	ns   string
}

// Open connects, pings, and applies the schema.
func Open(ctx context.Context, connStr, namespace string) (*Store, error) {
	if namespace == "" {
		return nil, errors.New("namespace required")
	}
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, ns: namespace}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS scan_targets (
	namespace            TEXT NOT NULL,
	identifier           TEXT NOT NULL,
	contract_address     TEXT NOT NULL DEFAULT '',
	last_scanned_block   BIGINT NOT NULL DEFAULT 0,
	max_blocks_per_query BIGINT NOT NULL DEFAULT 1000,
	paused               BOOLEAN NOT NULL DEFAULT FALSE,
	rpc_url              TEXT NOT NULL DEFAULT '',
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (namespace, identifier)
);
CREATE INDEX IF NOT EXISTS scan_targets_due
	ON scan_targets (namespace, paused, last_scanned_block, identifier);
CREATE TABLE IF NOT EXISTS poll_settings (
	namespace         TEXT PRIMARY KEY,
	chain_id          BIGINT NOT NULL,
	targets_per_cycle INTEGER NOT NULL,
	poll_interval_ms  BIGINT NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS endpoints (
	namespace TEXT NOT NULL,
	event     TEXT NOT NULL,
	url       TEXT NOT NULL,
	PRIMARY KEY (namespace, event)
);
CREATE TABLE IF NOT EXISTS deliveries (
	id            TEXT PRIMARY KEY,
	namespace     TEXT NOT NULL,
	target        TEXT NOT NULL,
	event         TEXT NOT NULL,
	destination   TEXT NOT NULL,
	block_number  BIGINT NOT NULL,
	tx_hash       TEXT,
	log_index     BIGINT NOT NULL,
	status        TEXT NOT NULL,
	response_code INTEGER,
	error         TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Namespace reports the scope this store reads and writes.
func (s *Store) Namespace() string { return s.ns }

// Close releases the pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("store not initialized")
	}
	return s.pool.Ping(ctx)
}

const targetColumns = `identifier, contract_address, last_scanned_block, max_blocks_per_query, paused, rpc_url`

func scanTarget(row pgx.Row) (storage.Target, error) {
	var (
		t               storage.Target
		last, maxBlocks int64
	)
	if err := row.Scan(&t.Identifier, &t.ContractAddress, &last, &maxBlocks, &t.Paused, &t.RPCURL); err != nil {
		return storage.Target{}, err
	}
	t.LastScannedBlock = uint64(last)
	t.MaxBlocksPerQuery = uint64(maxBlocks)
	return storage.NormalizeTarget(t), nil
}

func (s *Store) GetTarget(ctx context.Context, identifier string) (storage.Target, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+targetColumns+` FROM scan_targets WHERE namespace = $1 AND identifier = $2`,
		s.ns, identifier)
	t, err := scanTarget(row)
	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return storage.Target{}, fmt.Errorf("%w: %s", storage.ErrTargetNotFound, identifier)
	default:
		return storage.Target{}, fmt.Errorf("get target: %w", err)
	}
}

func (s *Store) ListDueTargets(ctx context.Context, limit int) ([]storage.Target, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+targetColumns+` FROM scan_targets
		WHERE namespace = $1 AND paused = FALSE
		ORDER BY last_scanned_block ASC, identifier ASC
		LIMIT $2`, s.ns, limit)
	if err != nil {
		return nil, fmt.Errorf("list due targets: %w", err)
	}
	return collectTargets(rows)
}

func (s *Store) ListTargets(ctx context.Context) ([]storage.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+targetColumns+` FROM scan_targets WHERE namespace = $1 ORDER BY identifier ASC`, s.ns)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return collectTargets(rows)
}

func collectTargets(rows pgx.Rows) ([]storage.Target, error) {
	defer rows.Close()
	var out []storage.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return out, nil
}

func (s *Store) AdvanceCursor(ctx context.Context, identifier string, block uint64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scan_targets SET last_scanned_block = $1, updated_at = NOW()
		WHERE namespace = $2 AND identifier = $3 AND last_scanned_block <= $1`,
		int64(block), s.ns, identifier)
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetTarget(ctx, identifier); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s to %d", storage.ErrStaleCursor, identifier, block)
}

func (s *Store) UpsertTarget(ctx context.Context, t storage.Target, resetCursor bool) error {
	if t.Identifier == "" {
		return errors.New("identifier required")
	}
	t = storage.NormalizeTarget(t)
	cursorUpdate := "last_scanned_block = scan_targets.last_scanned_block"
	if resetCursor {
		cursorUpdate = "last_scanned_block = EXCLUDED.last_scanned_block"
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_targets (namespace, identifier, contract_address, last_scanned_block, max_blocks_per_query, paused, rpc_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (namespace, identifier) DO UPDATE SET
			contract_address = EXCLUDED.contract_address,
			`+cursorUpdate+`,
			max_blocks_per_query = EXCLUDED.max_blocks_per_query,
			paused = EXCLUDED.paused,
			rpc_url = EXCLUDED.rpc_url,
			updated_at = NOW()`,
		s.ns, t.Identifier, strings.ToLower(t.ContractAddress), int64(t.LastScannedBlock),
		int64(t.MaxBlocksPerQuery), t.Paused, t.RPCURL)
	if err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

func (s *Store) SetPaused(ctx context.Context, identifier string, paused bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scan_targets SET paused = $1, updated_at = NOW() WHERE namespace = $2 AND identifier = $3`,
		paused, s.ns, identifier)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", storage.ErrTargetNotFound, identifier)
	}
	return nil
}

func (s *Store) LoadSettings(ctx context.Context) (storage.Settings, bool, error) {
	var st storage.Settings
	err := s.pool.QueryRow(ctx,
		`SELECT chain_id, targets_per_cycle, poll_interval_ms FROM poll_settings WHERE namespace = $1`,
		s.ns).Scan(&st.ChainID, &st.TargetsPerCycle, &st.PollIntervalMS)
	switch {
	case err == nil:
		return st, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return storage.Settings{}, false, nil
	default:
		return storage.Settings{}, false, fmt.Errorf("load settings: %w", err)
	}
}

func (s *Store) SaveSettings(ctx context.Context, st storage.Settings) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO poll_settings (namespace, chain_id, targets_per_cycle, poll_interval_ms)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace) DO UPDATE SET
			chain_id = EXCLUDED.chain_id,
			targets_per_cycle = EXCLUDED.targets_per_cycle,
			poll_interval_ms = EXCLUDED.poll_interval_ms,
			updated_at = NOW()`,
		s.ns, st.ChainID, st.TargetsPerCycle, st.PollIntervalMS)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *Store) GetEndpoint(ctx context.Context, event string) (string, error) {
	var url string
	err := s.pool.QueryRow(ctx,
		`SELECT url FROM endpoints WHERE namespace = $1 AND event = $2`, s.ns, event).Scan(&url)
	switch {
	case err == nil && url != "":
		return url, nil
	case err == nil, errors.Is(err, pgx.ErrNoRows):
		return "", fmt.Errorf("%w: %s", storage.ErrEndpointNotFound, event)
	default:
		return "", fmt.Errorf("get endpoint: %w", err)
	}
}

func (s *Store) SetEndpoint(ctx context.Context, event, url string) error {
	if event == "" || url == "" {
		return errors.New("event and url required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO endpoints (namespace, event, url) VALUES ($1, $2, $3)
		ON CONFLICT (namespace, event) DO UPDATE SET url = EXCLUDED.url`, s.ns, event, url)
	if err != nil {
		return fmt.Errorf("set endpoint: %w", err)
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context) ([]storage.Endpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event, url FROM endpoints WHERE namespace = $1 ORDER BY event ASC`, s.ns)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()
	var out []storage.Endpoint
	for rows.Next() {
		var e storage.Endpoint
		if err := rows.Scan(&e.Event, &e.URL); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) RecordDelivery(ctx context.Context, d storage.Delivery) error {
	if d.ID == "" || d.Target == "" || d.Status == "" {
		return errors.New("id, target, and status are required")
	}
	var createdAt any
	if !d.CreatedAt.IsZero() {
		createdAt = d.CreatedAt.UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deliveries (id, namespace, target, event, destination, block_number, tx_hash, log_index, status, response_code, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12::timestamptz, NOW()))`,
		d.ID, s.ns, d.Target, d.Event, d.Destination, int64(d.BlockNumber), d.TxHash,
		int64(d.LogIndex), d.Status, d.ResponseCode, d.Error, createdAt)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}
