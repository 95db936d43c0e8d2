// Package cycle runs one monitoring pass over the watch list.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/diff"
	"github.com/JakeFAU/pagewatch/internal/dispatcher"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/normalize"
	"github.com/JakeFAU/pagewatch/internal/queue/memory"
	"github.com/JakeFAU/pagewatch/internal/report"
	"github.com/JakeFAU/pagewatch/internal/telemetry"
)

const defaultConcurrency = 4

// Notification and the state save still run after ctx is canceled, bounded by
// these timeouts.
const (
	notifyTimeout = time.Minute
	saveTimeout   = 30 * time.Second
)

// Limiter delays requests to the same host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Config tunes a cycle.
type Config struct {
	Concurrency   int
	SubjectPrefix string
}

// Deps are the collaborators of an Orchestrator. Archiver, Notifier, Limiter
// and Tracer are optional.
type Deps struct {
	Fetcher  monitor.Fetcher
	Retry    monitor.RetryPolicy
	Limiter  Limiter
	Hasher   monitor.Hasher
	Store    monitor.StateStore
	Archiver monitor.Archiver
	Notifier monitor.Notifier
	Clock    monitor.Clock
	IDs      monitor.IDGenerator
	Tracer   trace.Tracer
	Logger   *zap.Logger
}

// Orchestrator checks every target once, reports changes and persists state.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

type task struct {
	index  int
	target monitor.WatchTarget
}

// result is written by exactly one worker into its input slot.
type result struct {
	done    bool
	outcome monitor.Outcome
	record  monitor.WatchRecord
}

// New validates deps and builds an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("cycle: fetcher is required")
	case deps.Hasher == nil:
		return nil, errors.New("cycle: hasher is required")
	case deps.Store == nil:
		return nil, errors.New("cycle: state store is required")
	case deps.Clock == nil:
		return nil, errors.New("cycle: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("cycle: id generator is required")
	case deps.Retry == nil:
		return nil, errors.New("cycle: retry policy is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaultConcurrency
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.Tracer()
	}
	return &Orchestrator{cfg: cfg, deps: deps, log: deps.Logger.Named("cycle")}, nil
}

// Run performs one cycle. State is saved exactly once after every target was
// handled, whether or not notification succeeded. A notification failure is
// reported in the Summary; ErrNoNotifier is returned when changes exist but
// no notifier is configured.
func (o *Orchestrator) Run(ctx context.Context, targets []monitor.WatchTarget) (monitor.Summary, error) {
	cycleID, err := o.deps.IDs.NewID()
	if err != nil {
		return monitor.Summary{}, fmt.Errorf("new cycle id: %w", err)
	}
	summary := monitor.Summary{CycleID: cycleID, StartedAt: o.deps.Clock.Now(), Total: len(targets)}
	log := o.log.With(zap.String("cycle_id", cycleID))

	ctx, span := o.deps.Tracer.Start(ctx, "pagewatch.cycle",
		trace.WithAttributes(attribute.String("cycle_id", cycleID), attribute.Int("targets", len(targets))))
	defer span.End()

	state, err := o.deps.Store.Load(ctx)
	if err != nil {
		o.finish(span, &summary, err)
		return summary, fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		state = monitor.State{}
	}

	var rep monitor.CycleReport
	results := o.checkAll(ctx, targets, state, &rep, log)

	for i, res := range results {
		if !res.done {
			rep.AddFailure(i, monitor.Failure{
				Target: targets[i],
				Kind:   monitor.FetchErrorNetwork,
				Detail: fmt.Sprintf("not checked: %v", ctx.Err()),
			})
			res.outcome = monitor.OutcomeFailed
		}
		switch res.outcome {
		case monitor.OutcomeFirstSeen:
			summary.FirstSeen++
		case monitor.OutcomeUnchanged:
			summary.Unchanged++
		case monitor.OutcomeChanged:
			summary.Changed++
		default:
			summary.Failed++
		}
		if res.outcome != monitor.OutcomeFailed {
			state[targets[i].URL] = res.record
		}
		metrics.ObserveURL(string(res.outcome))
	}

	var notifyErr error
	if rep.HasChanges() {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		notifyErr = o.notify(notifyCtx, &rep, &summary, log)
		cancel()
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	err = o.deps.Store.Save(saveCtx, state)
	cancel()
	if err != nil {
		o.finish(span, &summary, err)
		return summary, fmt.Errorf("save state: %w", err)
	}

	log.Info("cycle complete",
		zap.Int("urls", summary.Total),
		zap.Int("first_seen", summary.FirstSeen),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("changes", summary.Changed),
		zap.Int("errors", summary.Failed),
		zap.Bool("notified", summary.Notified),
	)

	if errors.Is(notifyErr, monitor.ErrNoNotifier) {
		o.finish(span, &summary, notifyErr)
		return summary, notifyErr
	}
	o.finish(span, &summary, nil)
	return summary, nil
}

func (o *Orchestrator) checkAll(
	ctx context.Context,
	targets []monitor.WatchTarget,
	state monitor.State,
	rep *monitor.CycleReport,
	log *zap.Logger,
) []result {
	results := make([]result, len(targets))
	queue := memory.NewQueue[task](len(targets))
	for i, t := range targets {
		// Capacity equals len(targets), so this never blocks.
		if err := queue.Enqueue(ctx, task{index: i, target: t}); err != nil {
			break
		}
	}
	queue.Close()

	workers := dispatcher.New[task](queue, o.cfg.Concurrency, func(ctx context.Context, tk task) {
		prev := state[tk.target.URL]
		results[tk.index] = o.check(ctx, tk, prev, rep, log)
	}, log)
	workers.Run(ctx)
	return results
}

func (o *Orchestrator) check(
	ctx context.Context,
	tk task,
	prev monitor.WatchRecord,
	rep *monitor.CycleReport,
	log *zap.Logger,
) result {
	url := tk.target.URL
	log = log.With(zap.String("url", url))
	ctx, span := o.deps.Tracer.Start(ctx, "pagewatch.check", trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	start := time.Now()
	body, err := o.fetch(ctx, url)
	metrics.ObserveFetch(time.Since(start))
	if err != nil {
		failure := monitor.ClassifyFetchError(tk.target, err)
		rep.AddFailure(tk.index, failure)
		log.Warn("fetch failed", zap.String("outcome", string(monitor.OutcomeFailed)),
			zap.Stringer("kind", failure.Kind), zap.Error(err))
		span.SetStatus(codes.Error, failure.Summary())
		span.SetAttributes(attribute.String("outcome", string(monitor.OutcomeFailed)))
		return result{done: true, outcome: monitor.OutcomeFailed}
	}

	page := normalize.Page(body)
	snap := monitor.PageSnapshot{
		NormalizedText:    page.Text,
		StructuredExtract: page.Extract,
		Fingerprint:       o.deps.Hasher.Fingerprint(page.Text),
		CapturedAt:        o.deps.Clock.Now(),
	}

	outcome := monitor.OutcomeUnchanged
	switch {
	case !prev.Seen():
		outcome = monitor.OutcomeFirstSeen
	case prev.Fingerprint != snap.Fingerprint:
		outcome = monitor.OutcomeChanged
		rep.AddChange(tk.index, o.changeEvent(ctx, tk.target, prev, snap, log))
	}

	log.Info("page checked", zap.String("outcome", string(outcome)))
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	return result{done: true, outcome: outcome, record: monitor.RecordFromSnapshot(snap)}
}

func (o *Orchestrator) changeEvent(
	ctx context.Context,
	target monitor.WatchTarget,
	prev monitor.WatchRecord,
	snap monitor.PageSnapshot,
	log *zap.Logger,
) monitor.ChangeEvent {
	ev := monitor.ChangeEvent{
		Target:             target,
		PreviousExtract:    prev.StructuredExtract,
		CurrentExtract:     snap.StructuredExtract,
		PreviousCheckedAt:  prev.LastCheckedAt,
		CurrentFingerprint: snap.Fingerprint,
	}

	// Upgraded legacy records carry no text, so every current line is an addition.
	d, err := diff.Unified(prev.NormalizedText, snap.NormalizedText)
	if err != nil {
		log.Warn("diff failed", zap.Error(err))
	}
	ev.Diff = d

	if o.deps.Archiver != nil {
		locator, err := o.deps.Archiver.Archive(ctx, target, snap)
		if err != nil {
			log.Warn("archive failed", zap.Error(err))
		} else {
			ev.ArchiveLocator = locator
		}
	}
	return ev
}

// fetch retries per the policy, honoring the host limiter before every attempt.
func (o *Orchestrator) fetch(ctx context.Context, url string) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		if o.deps.Limiter != nil {
			if err := o.deps.Limiter.Wait(ctx, url); err != nil {
				return nil, monitor.NewNetworkError(err)
			}
		}
		body, err := o.deps.Fetcher.Fetch(ctx, url)
		if err == nil {
			return body, nil
		}
		if !o.deps.Retry.ShouldRetry(err, attempt) {
			return nil, err
		}
		wait := o.deps.Retry.Backoff(attempt)
		o.log.Debug("retrying fetch", zap.String("url", url), zap.Int("attempt", attempt),
			zap.Duration("backoff", wait), zap.Error(err))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		case <-timer.C:
		}
	}
}

func (o *Orchestrator) notify(
	ctx context.Context,
	rep *monitor.CycleReport,
	summary *monitor.Summary,
	log *zap.Logger,
) error {
	changes := rep.Changes()
	if o.deps.Notifier == nil {
		log.Error("changes detected but no notifier configured", zap.Int("changes", len(changes)))
		summary.NotifyErr = monitor.ErrNoNotifier.Error()
		metrics.ObserveNotification("unconfigured")
		return monitor.ErrNoNotifier
	}

	subject := report.Subject(o.cfg.SubjectPrefix, len(changes))
	body := report.Body(changes, rep.Failures())
	if err := o.deps.Notifier.Notify(ctx, subject, body); err != nil {
		log.Error("notification failed", zap.Error(err))
		summary.NotifyErr = err.Error()
		metrics.ObserveNotification("failed")
		return fmt.Errorf("notify: %w", err)
	}
	summary.Notified = true
	metrics.ObserveNotification("sent")
	log.Info("notification sent", zap.Int("changes", len(changes)))
	return nil
}

func (o *Orchestrator) finish(span trace.Span, summary *monitor.Summary, err error) {
	summary.FinishedAt = o.deps.Clock.Now()
	resultLabel := "ok"
	switch {
	case err != nil:
		resultLabel = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case summary.NotifyErr != "":
		resultLabel = "notify_failed"
	}
	metrics.ObserveCycle(resultLabel, summary.FinishedAt)
}
