package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/devblac/event-relay/internal/contracts"
	"github.com/devblac/event-relay/internal/dispatch"
	"github.com/devblac/event-relay/internal/metrics"
	"github.com/devblac/event-relay/internal/sink"
	"github.com/devblac/event-relay/internal/source/evm"
	"github.com/devblac/event-relay/internal/storage"
	"github.com/devblac/event-relay/internal/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Store is the cursor store capability a pass needs.
type Store interface {
	GetTarget(ctx context.Context, identifier string) (storage.Target, error)
	AdvanceCursor(ctx context.Context, identifier string, block uint64) error
	GetEndpoint(ctx context.Context, event string) (string, error)
	RecordDelivery(ctx context.Context, d storage.Delivery) error
}

// ClientSource hands out a chain client for an RPC URL.
type ClientSource interface {
	Client(ctx context.Context, rpcURL string) (evm.Client, error)
}

// Result summarises one pass.
type Result struct {
	Target    string
	Paused    bool
	From      uint64
	To        uint64
	Scanned   bool
	Forwarded int
	Skipped   int
}

// Scanner runs bounded scan passes. It holds no per-target state; every pass
// reloads its target from the store.
type Scanner struct {
	store   Store
	clients ClientSource
	sender  sink.Sender
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

// New builds a Scanner. logger and m may be nil.
func New(store Store, clients ClientSource, sender sink.Sender, logger *slog.Logger, m *metrics.Metrics) *Scanner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scanner{
		store:   store,
		clients: clients,
		sender:  sender,
		logger:  logger.With("component", "scanner"),
		metrics: m,
		tracer:  tracing.Tracer("github.com/devblac/event-relay/internal/scanner"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// ScanRange computes the inclusive block range for a target whose cursor is
// last, given the chain head. The newest block is never scanned and the range
// spans at most maxBlocks blocks past the cursor. ok is false when there is
// nothing new to scan.
func ScanRange(last, head, maxBlocks uint64) (from, to uint64, ok bool) {
	if maxBlocks == 0 {
		maxBlocks = storage.DefaultMaxBlocksPerQuery
	}
	if head == 0 {
		return 0, 0, false
	}
	end := head - 1
	if end <= last {
		return 0, 0, false
	}
	if end-last > maxBlocks {
		end = last + maxBlocks
	}
	return last, end, true
}

type eventBatch struct {
	spec        contracts.EventSpec
	destination string
	logs        []types.Log
}

// Pass executes one scan pass for the bound target. The cursor moves only when
// every record of the range was accepted by its sink.
func (s *Scanner) Pass(ctx context.Context, b dispatch.Binding, chainID int64) (res Result, err error) {
	res.Target = b.CursorKey
	ctx, span := s.tracer.Start(ctx, "scanner.pass", trace.WithAttributes(
		attribute.String("target", b.CursorKey),
		attribute.String("family", b.Family),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int64("from", int64(res.From)),
			attribute.Int64("to", int64(res.To)),
			attribute.Int("forwarded", res.Forwarded),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(Classify(err)))
		}
		span.End()
	}()

	t, err := s.store.GetTarget(ctx, b.CursorKey)
	if err != nil {
		if errors.Is(err, storage.ErrTargetNotFound) {
			return res, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return res, fmt.Errorf("%w: load target %s: %w", ErrStore, b.CursorKey, err)
	}
	if t.RPCURL == "" {
		return res, fmt.Errorf("%w: target %s has no rpc url", ErrConfiguration, t.Identifier)
	}
	if !common.IsHexAddress(t.ContractAddress) {
		return res, fmt.Errorf("%w: target %s has invalid contract address %q", ErrConfiguration, t.Identifier, t.ContractAddress)
	}
	if t.Paused {
		res.Paused = true
		return res, nil
	}

	client, err := s.clients.Client(ctx, t.RPCURL)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	head, err := client.HeadBlock(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: head block: %w", ErrProvider, err)
	}
	from, to, ok := ScanRange(t.LastScannedBlock, head, t.MaxBlocksPerQuery)
	if !ok {
		s.logger.Debug("nothing to scan", "target", t.Identifier, "cursor", t.LastScannedBlock, "head", head)
		return res, nil
	}
	res.From, res.To, res.Scanned = from, to, true

	address := common.HexToAddress(t.ContractAddress)
	batches := make([]eventBatch, 0, len(b.Events))
	for _, spec := range b.Events {
		logs, err := client.Logs(ctx, address, spec.Topic(), from, to)
		if err != nil {
			return res, fmt.Errorf("%w: %s logs: %w", ErrProvider, spec.Name, err)
		}
		batches = append(batches, eventBatch{spec: spec, logs: logs})
	}

	// Resolve every destination before forwarding anything so a missing
	// mapping cannot leave the range half delivered.
	for i := range batches {
		if len(batches[i].logs) == 0 {
			continue
		}
		dest, err := s.store.GetEndpoint(ctx, batches[i].spec.Destination)
		if err != nil {
			if errors.Is(err, storage.ErrEndpointNotFound) {
				return res, fmt.Errorf("%w: %s: %w", ErrConfiguration, batches[i].spec.Name, err)
			}
			return res, fmt.Errorf("%w: endpoint %s: %w", ErrStore, batches[i].spec.Destination, err)
		}
		batches[i].destination = dest
	}

	cc := sink.ChainContext{ChainID: chainID, Target: t.Identifier, Family: b.Family}
	var failures []error
	for _, batch := range batches {
		sortLogs(batch.logs)
		for _, lg := range batch.logs {
			forwarded, skipped, ferr := s.forward(ctx, batch, lg, cc)
			res.Forwarded += forwarded
			res.Skipped += skipped
			if ferr != nil {
				failures = append(failures, ferr)
			}
		}
	}
	if len(failures) > 0 {
		return res, fmt.Errorf("%w: %d records in blocks %d-%d: %w", ErrForwarding, len(failures), from, to, errors.Join(failures...))
	}

	if err := s.store.AdvanceCursor(ctx, t.Identifier, to); err != nil {
		if errors.Is(err, storage.ErrStaleCursor) {
			s.logger.Warn("cursor already past range", "target", t.Identifier, "to", to)
			return res, nil
		}
		return res, fmt.Errorf("%w: advance cursor: %w", ErrStore, err)
	}
	s.metrics.Cursor(t.Identifier, to)
	s.logger.Debug("pass complete", "target", t.Identifier, "from", from, "to", to, "forwarded", res.Forwarded)
	return res, nil
}

// forward decodes and sends one log. Logs that cannot be decoded or were
// removed by a reorg are recorded as skipped and do not fail the pass.
func (s *Scanner) forward(ctx context.Context, batch eventBatch, lg types.Log, cc sink.ChainContext) (forwarded, skipped int, err error) {
	d := storage.Delivery{
		Target:      cc.Target,
		Event:       batch.spec.Name,
		Destination: batch.destination,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
		LogIndex:    lg.Index,
		CreatedAt:   s.now(),
	}

	if lg.Removed {
		d.ID, d.Status, d.Error = s.newID(), storage.DeliverySkipped, "log removed"
		s.record(ctx, d)
		return 0, 1, nil
	}
	rec, err := batch.spec.Decode(lg, cc.ChainID)
	if err != nil {
		s.logger.Warn("skipping undecodable log", "target", cc.Target, "event", batch.spec.Name, "block", lg.BlockNumber, "index", lg.Index, "err", err)
		d.ID, d.Status, d.Error = s.newID(), storage.DeliverySkipped, err.Error()
		s.record(ctx, d)
		return 0, 1, nil
	}

	out, sendErr := s.sender.Send(ctx, batch.destination, rec, cc)
	d.ID = out.DeliveryID
	if d.ID == "" {
		d.ID = s.newID()
	}
	d.ResponseCode = out.StatusCode
	if sendErr != nil {
		d.Status, d.Error = storage.DeliveryFailed, sendErr.Error()
		s.record(ctx, d)
		s.metrics.ForwardFailed()
		s.logger.Warn("forward failed", "target", cc.Target, "event", batch.spec.Name, "block", lg.BlockNumber, "index", lg.Index, "err", sendErr)
		return 0, 0, fmt.Errorf("%s block %d index %d: %w", batch.spec.Name, lg.BlockNumber, lg.Index, sendErr)
	}
	d.Status = storage.DeliveryOK
	s.record(ctx, d)
	s.metrics.RecordForwarded()
	return 1, 0, nil
}

// record writes to the delivery log. The log is informational, so failures are only logged.
func (s *Scanner) record(ctx context.Context, d storage.Delivery) {
	if err := s.store.RecordDelivery(ctx, d); err != nil {
		s.logger.Warn("record delivery", "target", d.Target, "delivery", d.ID, "err", err)
	}
}

// sortLogs orders logs by block then log index, keeping provider order on ties.
func sortLogs(logs []types.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}
