package storage

import (
	"errors"
	"time"
)

var (
	// ErrTargetNotFound is returned when no scan target exists for an identifier.
	ErrTargetNotFound = errors.New("scan target not found")
	// ErrEndpointNotFound is returned when an event name has no destination URL.
	ErrEndpointNotFound = errors.New("endpoint not found")
	// ErrStaleCursor is returned when a cursor write would move a target backward.
	ErrStaleCursor = errors.New("cursor write would move backward")
)

// DefaultMaxBlocksPerQuery applies when a target row carries no chunk cap.
const DefaultMaxBlocksPerQuery uint64 = 1000

// Target is the durable configuration and progress of one pollable contract.
type Target struct {
	Identifier        string
	ContractAddress   string
	LastScannedBlock  uint64
	MaxBlocksPerQuery uint64
	Paused            bool
	RPCURL            string
}

// Settings are the process-wide poll parameters.
type Settings struct {
	ChainID         int64
	TargetsPerCycle int
	PollIntervalMS  int64
}

// PollInterval returns the poll interval as a duration.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

// Delivery statuses.
const (
	DeliveryOK      = "ok"
	DeliveryFailed  = "failed"
	DeliverySkipped = "skipped"
)

// Delivery records one forwarding attempt to a sink.
type Delivery struct {
	ID           string
	Target       string
	Event        string
	Destination  string
	BlockNumber  uint64
	TxHash       string
	LogIndex     uint
	Status       string
	ResponseCode int
	Error        string
	CreatedAt    time.Time
}

// Endpoint maps an event name to its sink URL.
type Endpoint struct {
	Event string
	URL   string
}

// NormalizeTarget applies the storage-level defaults to a target row.
func NormalizeTarget(t Target) Target {
	if t.MaxBlocksPerQuery == 0 {
		t.MaxBlocksPerQuery = DefaultMaxBlocksPerQuery
	}
	return t
}
