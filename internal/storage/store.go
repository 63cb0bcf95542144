package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for scan targets, settings, endpoints, and deliveries.
// Every row is scoped to the namespace the store was opened with.
type Store struct {
	db *sql.DB
	ns string
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path, namespace string) (*Store, error) {
	if namespace == "" {
		return nil, errors.New("namespace required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, ns: namespace}, nil
}

// Namespace reports the scope this store reads and writes.
func (s *Store) Namespace() string { return s.ns }

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS scan_targets (
  namespace            TEXT NOT NULL,
  identifier           TEXT NOT NULL,
  contract_address     TEXT NOT NULL DEFAULT '',
  last_scanned_block   INTEGER NOT NULL DEFAULT 0,
  max_blocks_per_query INTEGER NOT NULL DEFAULT 1000,
  paused               INTEGER NOT NULL DEFAULT 0,
  rpc_url              TEXT NOT NULL DEFAULT '',
  updated_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(namespace, identifier)
);

CREATE INDEX IF NOT EXISTS scan_targets_due
  ON scan_targets(namespace, paused, last_scanned_block, identifier);

CREATE TABLE IF NOT EXISTS poll_settings (
  namespace         TEXT PRIMARY KEY,
  chain_id          INTEGER NOT NULL,
  targets_per_cycle INTEGER NOT NULL,
  poll_interval_ms  INTEGER NOT NULL,
  updated_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS endpoints (
  namespace  TEXT NOT NULL,
  event      TEXT NOT NULL,
  url        TEXT NOT NULL,
  PRIMARY KEY(namespace, event)
);

CREATE TABLE IF NOT EXISTS deliveries (
  id            TEXT PRIMARY KEY,
  namespace     TEXT NOT NULL,
  target        TEXT NOT NULL,
  event         TEXT NOT NULL,
  destination   TEXT NOT NULL,
  block_number  INTEGER NOT NULL,
  tx_hash       TEXT,
  log_index     INTEGER NOT NULL,
  status        TEXT NOT NULL,
  response_code INTEGER,
  error         TEXT,
  created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const targetColumns = `identifier, contract_address, last_scanned_block, max_blocks_per_query, paused, rpc_url`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(row rowScanner) (Target, error) {
	var t Target
	if err := row.Scan(&t.Identifier, &t.ContractAddress, &t.LastScannedBlock, &t.MaxBlocksPerQuery, &t.Paused, &t.RPCURL); err != nil {
		return Target{}, err
	}
	return NormalizeTarget(t), nil
}

// GetTarget loads the current state of one scan target.
func (s *Store) GetTarget(ctx context.Context, identifier string) (Target, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+targetColumns+` FROM scan_targets WHERE namespace = ? AND identifier = ?;
`, s.ns, identifier)
	t, err := scanTarget(row)
	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, sql.ErrNoRows):
		return Target{}, fmt.Errorf("%w: %s", ErrTargetNotFound, identifier)
	default:
		return Target{}, fmt.Errorf("get target: %w", err)
	}
}

// ListDueTargets returns up to limit unpaused targets, furthest behind first.
// Ties on last_scanned_block are ordered by identifier.
func (s *Store) ListDueTargets(ctx context.Context, limit int) ([]Target, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+targetColumns+` FROM scan_targets
WHERE namespace = ? AND paused = 0
ORDER BY last_scanned_block ASC, identifier ASC
LIMIT ?;
`, s.ns, limit)
	if err != nil {
		return nil, fmt.Errorf("list due targets: %w", err)
	}
	return collectTargets(rows)
}

// ListTargets returns every target in the namespace ordered by identifier.
func (s *Store) ListTargets(ctx context.Context) ([]Target, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+targetColumns+` FROM scan_targets WHERE namespace = ? ORDER BY identifier ASC;
`, s.ns)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return collectTargets(rows)
}

func collectTargets(rows *sql.Rows) ([]Target, error) {
	defer rows.Close()
	var out []Target
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

// AdvanceCursor sets last_scanned_block for a target. The write is refused with
// ErrStaleCursor when the stored cursor is already beyond block.
func (s *Store) AdvanceCursor(ctx context.Context, identifier string, block uint64) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE scan_targets SET last_scanned_block = ?, updated_at = CURRENT_TIMESTAMP
WHERE namespace = ? AND identifier = ? AND last_scanned_block <= ?;
`, block, s.ns, identifier, block)
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetTarget(ctx, identifier); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s to %d", ErrStaleCursor, identifier, block)
}

// UpsertTarget provisions or reconfigures a target. The cursor of an existing
// row is only replaced when resetCursor is set.
func (s *Store) UpsertTarget(ctx context.Context, t Target, resetCursor bool) error {
	if t.Identifier == "" {
		return errors.New("identifier required")
	}
	t = NormalizeTarget(t)
	t.ContractAddress = strings.ToLower(t.ContractAddress)
	cursorUpdate := "last_scanned_block = scan_targets.last_scanned_block"
	if resetCursor {
		cursorUpdate = "last_scanned_block = excluded.last_scanned_block"
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO scan_targets (namespace, identifier, contract_address, last_scanned_block, max_blocks_per_query, paused, rpc_url, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(namespace, identifier) DO UPDATE SET
  contract_address = excluded.contract_address,
  `+cursorUpdate+`,
  max_blocks_per_query = excluded.max_blocks_per_query,
  paused = excluded.paused,
  rpc_url = excluded.rpc_url,
  updated_at = CURRENT_TIMESTAMP;
`, s.ns, t.Identifier, t.ContractAddress, t.LastScannedBlock, t.MaxBlocksPerQuery, t.Paused, t.RPCURL)
	if err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

// SetPaused flips the paused flag of a target.
func (s *Store) SetPaused(ctx context.Context, identifier string, paused bool) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE scan_targets SET paused = ?, updated_at = CURRENT_TIMESTAMP WHERE namespace = ? AND identifier = ?;
`, paused, s.ns, identifier)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, identifier)
	}
	return nil
}

// LoadSettings reads the namespace's poll settings; ok is false when none are stored.
func (s *Store) LoadSettings(ctx context.Context) (Settings, bool, error) {
	var st Settings
	err := s.db.QueryRowContext(ctx, `
SELECT chain_id, targets_per_cycle, poll_interval_ms FROM poll_settings WHERE namespace = ?;
`, s.ns).Scan(&st.ChainID, &st.TargetsPerCycle, &st.PollIntervalMS)
	switch {
	case err == nil:
		return st, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return Settings{}, false, nil
	default:
		return Settings{}, false, fmt.Errorf("load settings: %w", err)
	}
}

// SaveSettings writes the namespace's poll settings.
func (s *Store) SaveSettings(ctx context.Context, st Settings) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO poll_settings (namespace, chain_id, targets_per_cycle, poll_interval_ms, updated_at)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(namespace) DO UPDATE SET
  chain_id = excluded.chain_id,
  targets_per_cycle = excluded.targets_per_cycle,
  poll_interval_ms = excluded.poll_interval_ms,
  updated_at = CURRENT_TIMESTAMP;
`, s.ns, st.ChainID, st.TargetsPerCycle, st.PollIntervalMS)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// GetEndpoint resolves the sink URL registered for an event name.
func (s *Store) GetEndpoint(ctx context.Context, event string) (string, error) {
	var url string
	err := s.db.QueryRowContext(ctx, `
SELECT url FROM endpoints WHERE namespace = ? AND event = ?;
`, s.ns, event).Scan(&url)
	switch {
	case err == nil && url != "":
		return url, nil
	case err == nil, errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("%w: %s", ErrEndpointNotFound, event)
	default:
		return "", fmt.Errorf("get endpoint: %w", err)
	}
}

// SetEndpoint registers or replaces the sink URL of an event name.
func (s *Store) SetEndpoint(ctx context.Context, event, url string) error {
	if event == "" || url == "" {
		return errors.New("event and url required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO endpoints (namespace, event, url) VALUES (?, ?, ?)
ON CONFLICT(namespace, event) DO UPDATE SET url = excluded.url;
`, s.ns, event, url)
	if err != nil {
		return fmt.Errorf("set endpoint: %w", err)
	}
	return nil
}

// ListEndpoints returns the namespace's endpoint registry ordered by event name.
func (s *Store) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT event, url FROM endpoints WHERE namespace = ? ORDER BY event ASC;
`, s.ns)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()
	var out []Endpoint
	for rows.Next() {
		var e Endpoint
		if err := rows.Scan(&e.Event, &e.URL); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordDelivery stores a sink delivery attempt; the id must be unique.
func (s *Store) RecordDelivery(ctx context.Context, d Delivery) error {
	if d.ID == "" || d.Target == "" || d.Status == "" {
		return errors.New("id, target, and status are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO deliveries (id, namespace, target, event, destination, block_number, tx_hash, log_index, status, response_code, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP));
`, d.ID, s.ns, d.Target, d.Event, d.Destination, d.BlockNumber, d.TxHash, d.LogIndex, d.Status, d.ResponseCode, d.Error, nullTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// CountDeliveries returns the number of recorded attempts for a target with the given status.
func (s *Store) CountDeliveries(ctx context.Context, target, status string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM deliveries WHERE namespace = ? AND target = ? AND status = ?;
`, s.ns, target, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return n, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
