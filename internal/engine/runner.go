package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/devblac/event-relay/internal/dispatch"
	"github.com/devblac/event-relay/internal/metrics"
	"github.com/devblac/event-relay/internal/scanner"
	"github.com/devblac/event-relay/internal/storage"
	"github.com/devblac/event-relay/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// TargetLister selects the targets due for a cycle.
type TargetLister interface {
	ListDueTargets(ctx context.Context, limit int) ([]storage.Target, error)
}

// Resolver routes an identifier to its scanner binding.
type Resolver interface {
	Resolve(identifier string) (dispatch.Binding, error)
}

// Passer runs one scan pass.
type Passer interface {
	Pass(ctx context.Context, b dispatch.Binding, chainID int64) (scanner.Result, error)
}

// Settings supplies the process-wide poll settings.
type Settings interface {
	Load(ctx context.Context) (storage.Settings, error)
	Current() storage.Settings
	OnChange(fn func(storage.Settings))
	Watch(ctx context.Context) error
}

// Skip reasons reported in metrics.
const (
	SkipUnknownContract = "unknown_contract"
	SkipInFlight        = "in_flight"
)

// CycleReport summarises one cycle.
type CycleReport struct {
	Selected int
	Scanned  int
	Skipped  int
	Failures map[string]error
}

// Err joins the per-target failures, or returns nil.
func (r CycleReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for id, err := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", id, err))
	}
	return errors.Join(errs...)
}

// Orchestrator selects due targets and runs a scan pass for each. A target is
// never scanned by two cycles at once.
type Orchestrator struct {
	targets     TargetLister
	table       Resolver
	scanner     Passer
	settings    Settings
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	parallelism int

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Options tune an Orchestrator. Zero values give the sequential design.
type Options struct {
	Parallelism int
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(targets TargetLister, table Resolver, sc Passer, settings Settings, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	return &Orchestrator{
		targets:     targets,
		table:       table,
		scanner:     sc,
		settings:    settings,
		logger:      logger.With("component", "orchestrator"),
		metrics:     opts.Metrics,
		tracer:      tracing.Tracer("github.com/devblac/event-relay/internal/engine"),
		parallelism: parallelism,
		inFlight:    map[string]struct{}{},
	}
}

// RunOnce loads the settings and runs a single cycle. The error is non-nil only
// when targets could not be selected; per-target failures are in the report.
func (o *Orchestrator) RunOnce(ctx context.Context) (CycleReport, error) {
	s, err := o.settings.Load(ctx)
	if err != nil {
		return CycleReport{}, err
	}
	return o.cycle(ctx, s)
}

// Run starts a cycle immediately and then on every tick of the poll interval
// until ctx is done. Settings changes apply from the next cycle; a new poll
// interval takes effect once the current tick has fired.
func (o *Orchestrator) Run(ctx context.Context) error {
	s, err := o.settings.Load(ctx)
	if err != nil {
		return err
	}

	intervals := make(chan time.Duration, 1)
	o.settings.OnChange(func(next storage.Settings) {
		select {
		case <-intervals:
		default:
		}
		intervals <- next.PollInterval()
	})

	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := o.settings.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Warn("settings watcher stopped", "error", err)
		}
	}()

	interval := s.PollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	o.logger.Info("orchestrator started", "poll_interval", interval, "targets_per_cycle", s.TargetsPerCycle, "parallelism", o.parallelism)

	// latest is the most recently pushed interval; it wins even when it reverts
	// an earlier change that never reached the ticker.
	latest := interval
	o.launch(ctx, &wg)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping")
			return ctx.Err()
		case latest = <-intervals:
		case <-ticker.C:
			if latest > 0 && latest != interval {
				ticker.Reset(latest)
				o.logger.Info("poll interval changed", "from", interval, "to", latest)
				interval = latest
			}
			o.launch(ctx, &wg)
		}
	}
}

// launch runs a cycle in the background so a slow cycle never delays the next tick.
func (o *Orchestrator) launch(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := o.cycle(ctx, o.settings.Current()); err != nil {
			o.logger.Error("cycle failed", "error", err)
		}
	}()
}

func (o *Orchestrator) cycle(ctx context.Context, s storage.Settings) (report CycleReport, err error) {
	ctx, span := o.tracer.Start(ctx, "engine.cycle", trace.WithAttributes(
		attribute.Int("targets_per_cycle", s.TargetsPerCycle),
		attribute.Int64("chain_id", s.ChainID),
	))
	defer span.End()

	report.Failures = map[string]error{}
	due, err := o.targets.ListDueTargets(ctx, s.TargetsPerCycle)
	if err != nil {
		span.RecordError(err)
		return report, fmt.Errorf("select targets: %w", err)
	}
	report.Selected = len(due)
	o.logger.Debug("cycle start", "selected", len(due))

	type job struct {
		id      string
		binding dispatch.Binding
	}
	jobs := make([]job, 0, len(due))
	for _, t := range due {
		b, err := o.table.Resolve(t.Identifier)
		if err != nil {
			if errors.Is(err, dispatch.ErrNotFound) {
				o.logger.Warn("no scanner found", "target", t.Identifier)
				o.metrics.TargetSkipped(SkipUnknownContract)
				report.Skipped++
				continue
			}
			report.Failures[t.Identifier] = err
			continue
		}
		if !o.claim(t.Identifier) {
			o.logger.Debug("target still in flight", "target", t.Identifier)
			o.metrics.TargetSkipped(SkipInFlight)
			report.Skipped++
			continue
		}
		jobs = append(jobs, job{id: t.Identifier, binding: b})
	}

	var mu sync.Mutex
	run := func(j job) {
		defer o.release(j.id)
		res, err := o.scanner.Pass(ctx, j.binding, s.ChainID)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			class := scanner.Classify(err)
			o.logger.Error("scan pass failed", "target", j.id, "class", class, "retryable", class.Retryable(), "error", err)
			o.metrics.PassFailed(j.id, string(class))
			report.Failures[j.id] = err
			return
		}
		o.metrics.PassSucceeded(j.id)
		if res.Scanned {
			report.Scanned++
		}
	}

	if o.parallelism == 1 {
		for _, j := range jobs {
			run(j)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.parallelism)
		for _, j := range jobs {
			j := j
			g.Go(func() error {
				run(j)
				return nil
			})
		}
		_ = g.Wait()
	}

	o.logger.Info("cycle complete", "selected", report.Selected, "scanned", report.Scanned, "skipped", report.Skipped, "failed", len(report.Failures))
	return report, nil
}

func (o *Orchestrator) claim(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[id]; busy {
		return false
	}
	o.inFlight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, id)
}
