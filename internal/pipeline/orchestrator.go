// Package pipeline sequences the extraction phases for one session: discover
// candidate URLs, rapid-scrape them in batches, score the results, escalate
// weak pages to a heavier strategy, and merge everything into one dataset.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brandforge/siteharvest/internal/aggregate"
	"github.com/brandforge/siteharvest/internal/blob"
	"github.com/brandforge/siteharvest/internal/enhance"
	"github.com/brandforge/siteharvest/internal/events"
	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/fetch"
	"github.com/brandforge/siteharvest/internal/metrics"
	"github.com/brandforge/siteharvest/internal/publish"
	"github.com/brandforge/siteharvest/internal/session"
	"github.com/brandforge/siteharvest/internal/strategy"
	"github.com/brandforge/siteharvest/internal/validate"
)

// Discoverer produces candidate URLs for a domain.
type Discoverer interface {
	Discover(ctx context.Context, domain string) ([]extract.DiscoveredURL, error)
}

// Deps are the collaborators one Orchestrator run needs. Static, Dynamic and
// SPA are the fetchers behind the three strategy tiers; Analyzer and
// Publisher may be nil.
type Deps struct {
	Discoverer Discoverer
	Analyzer   extract.Analyzer
	Static     extract.Fetcher
	Dynamic    extract.Fetcher
	SPA        extract.Fetcher
	Sessions   session.Store
	Snapshots  blob.Store
	Publisher  publish.Publisher
	Clock      extract.Clock
	Logger     *zap.Logger
}

// Config tunes the phases of a run.
type Config struct {
	Fetch        fetch.Config
	Quality      validate.Config
	Enhance      enhance.Config
	Aggregate    aggregate.Config
	RunTimeout   time.Duration
	PublishTopic string
}

// Orchestrator runs the phase sequence. It is stateless across runs; all
// per-run state lives on the stack and in the session store.
type Orchestrator struct {
	deps Deps
	cfg  Config
}

// New validates the collaborators and builds an Orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Discoverer == nil {
		return nil, fmt.Errorf("discoverer is required")
	}
	if deps.Static == nil || deps.Dynamic == nil || deps.SPA == nil {
		return nil, fmt.Errorf("all three strategy fetchers are required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if deps.Snapshots == nil {
		deps.Snapshots = blob.Discard{}
	}
	if deps.Publisher == nil {
		deps.Publisher = publish.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg}, nil
}

func (o *Orchestrator) now() time.Time {
	if o.deps.Clock != nil {
		return o.deps.Clock.Now()
	}
	return time.Now().UTC()
}

// Run executes the full phase sequence for sess and returns the aggregated
// dataset. Cancellation mid-run degrades to partial success: whatever was
// fetched before the abort still flows through aggregation. Exactly one
// terminal event reaches the bus, either complete or error.
func (o *Orchestrator) Run(ctx context.Context, sess session.Session, bus *events.Bus) (extract.AggregatedDataset, error) {
	start := o.now()
	corrID := sess.ID.String()
	logger := o.deps.Logger.With(zap.String("session_id", corrID), zap.String("domain", sess.Domain))

	metrics.ExtractionStarted()
	defer metrics.ExtractionFinished()

	budget := o.cfg.RunTimeout
	if sess.Options.Timeout > 0 {
		budget = sess.Options.Timeout
	}
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	tracker := events.NewTracker()
	skip := o.skipSet(sess.Options.SkipPhases, logger)

	if err := o.deps.Sessions.SetStatus(ctx, sess.ID, session.StatusRunning, ""); err != nil {
		return o.fail(ctx, sess, bus, corrID, start, tracker, extract.AggregatedDataset{},
			fmt.Errorf("mark session running: %w", err))
	}

	// Discovery. A session submitted with a pre-built URL list bypasses it.
	urls := sess.URLs
	if len(urls) > 0 {
		_ = tracker.Skip(events.PhaseDiscovery)
		o.emitStatus(bus, corrID, events.PhaseDiscovery, "discovery skipped, using supplied urls")
	} else {
		phaseStart := o.now()
		_ = tracker.Start(events.PhaseDiscovery)
		o.emitProgress(bus, corrID, events.PhaseDiscovery, "start", "discovery started", nil)

		discovered, err := o.deps.Discoverer.Discover(ctx, sess.Domain)
		if err != nil {
			_ = tracker.Fail(events.PhaseDiscovery)
			return o.fail(ctx, sess, bus, corrID, start, tracker, extract.AggregatedDataset{},
				fmt.Errorf("discover urls: %w", err))
		}
		if len(discovered) == 0 {
			_ = tracker.Fail(events.PhaseDiscovery)
			return o.fail(ctx, sess, bus, corrID, start, tracker, extract.AggregatedDataset{},
				fmt.Errorf("no reachable urls discovered for %s", sess.Domain))
		}
		urls = discovered
		if err := o.deps.Sessions.UpsertURLs(ctx, sess.ID, urls); err != nil {
			_ = tracker.Fail(events.PhaseDiscovery)
			return o.fail(ctx, sess, bus, corrID, start, tracker, extract.AggregatedDataset{},
				fmt.Errorf("checkpoint urls: %w", err))
		}
		_ = tracker.Complete(events.PhaseDiscovery)
		metrics.ObservePhaseDuration(string(events.PhaseDiscovery), o.now().Sub(phaseStart))
		o.emitProgress(bus, corrID, events.PhaseDiscovery, "done", "discovery complete", map[string]any{
			"url_count": len(urls),
		})
	}

	if max := sess.Options.MaxPages; max > 0 && len(urls) > max {
		urls = urls[:max]
	}

	// Strategy selection is advisory; dynamic mode forces the middle tier.
	meta := o.analyze(ctx, sess.Domain, logger)
	selected := strategy.Select(meta)
	if sess.Options.Mode == extract.ModeDynamic {
		selected = extract.StrategyDynamic
	}
	logger.Info("strategy selected",
		zap.String("strategy", string(selected)),
		zap.String("technology", meta.Technology),
	)

	// Rapid scrape.
	phaseStart := o.now()
	_ = tracker.Start(events.PhaseRapidScrape)
	o.emitProgress(bus, corrID, events.PhaseRapidScrape, "start", "rapid scrape started", map[string]any{
		"url_count": len(urls),
		"strategy":  string(selected),
	})

	executor := fetch.NewExecutor(o.fetcherFor(selected), o.cfg.Fetch, logger)
	records := executor.Run(ctx, urls, meta, func(i int, rec *extract.PageRecord) {
		o.emitPage(bus, corrID, events.PhaseRapidScrape, urls[i].URL, rec)
	})
	processed := countFetched(records)
	_ = tracker.Complete(events.PhaseRapidScrape)
	metrics.ObservePhaseDuration(string(events.PhaseRapidScrape), o.now().Sub(phaseStart))
	o.emitProgress(bus, corrID, events.PhaseRapidScrape, "done", "rapid scrape complete", map[string]any{
		"pages_fetched": processed,
		"pages_failed":  len(urls) - processed,
	})

	// Validation.
	var report extract.ValidationReport
	if skip[events.PhaseValidation] {
		_ = tracker.Skip(events.PhaseValidation)
		o.emitStatus(bus, corrID, events.PhaseValidation, "validation skipped")
	} else {
		phaseStart = o.now()
		_ = tracker.Start(events.PhaseValidation)
		report = validate.Run(records, o.cfg.Quality)
		_ = tracker.Complete(events.PhaseValidation)
		metrics.ObservePhaseDuration(string(events.PhaseValidation), o.now().Sub(phaseStart))
		o.emitProgress(bus, corrID, events.PhaseValidation, "done", "validation complete", map[string]any{
			"accepted":      len(report.Accepted),
			"flagged":       len(report.NeedsEnhancement),
			"average_score": report.AverageScore,
		})
	}

	// Enhancement. Runs only when validation actually flagged something.
	enhanced := 0
	switch {
	case skip[events.PhaseEnhancement]:
		_ = tracker.Skip(events.PhaseEnhancement)
		o.emitStatus(bus, corrID, events.PhaseEnhancement, "enhancement skipped")
	case len(report.NeedsEnhancement) == 0:
		_ = tracker.Skip(events.PhaseEnhancement)
	default:
		phaseStart = o.now()
		_ = tracker.Start(events.PhaseEnhancement)
		heavy := o.fetcherFor(strategy.Heavier(selected))
		escalator := enhance.New(heavy, o.cfg.Enhance, logger)
		enhanced = escalator.Run(ctx, records, report.NeedsEnhancement, func(flag extract.FlaggedPage, replaced bool) {
			o.emitEscalation(bus, corrID, flag, replaced)
		})
		_ = tracker.Complete(events.PhaseEnhancement)
		metrics.ObservePhaseDuration(string(events.PhaseEnhancement), o.now().Sub(phaseStart))
		o.emitProgress(bus, corrID, events.PhaseEnhancement, "done", "enhancement complete", map[string]any{
			"flagged":  len(report.NeedsEnhancement),
			"replaced": enhanced,
		})
	}

	o.snapshot(ctx, corrID, records, logger)

	// Aggregation and the terminal bookkeeping.
	_ = tracker.Start(events.PhaseComplete)
	dataset := aggregate.Merge(records, extract.DomainURL(sess.Domain), o.cfg.Aggregate)
	dataset.Metadata.Domain = sess.Domain
	dataset.Metadata.PagesAttempted = len(urls)
	dataset.Metadata.PagesProcessed = countFetched(records)
	dataset.Metadata.DurationMs = o.now().Sub(start).Milliseconds()
	dataset.Metadata.ValidationScore = report.AverageScore
	dataset.Metadata.EnhancementCount = enhanced
	dataset.Metadata.Scraper = selected
	dataset.Metadata.PhasesRun = tracker.Run()
	_ = tracker.Complete(events.PhaseComplete)

	if err := o.deps.Sessions.UpsertDataset(ctx, sess.ID, dataset); err != nil {
		return o.fail(ctx, sess, bus, corrID, start, tracker, dataset,
			fmt.Errorf("persist dataset: %w", err))
	}
	if err := o.deps.Sessions.SetStatus(ctx, sess.ID, session.StatusComplete, ""); err != nil {
		return o.fail(ctx, sess, bus, corrID, start, tracker, dataset,
			fmt.Errorf("mark session complete: %w", err))
	}

	bus.Publish(events.Event{
		Type:          events.KindComplete,
		Phase:         events.PhaseComplete,
		CorrelationID: corrID,
		Timestamp:     o.now(),
		Priority:      events.PriorityHigh,
		Source:        "orchestrator",
		Message:       "extraction complete",
		Payload: map[string]any{
			"phases_run":        dataset.Metadata.PhasesRun,
			"pages_processed":   dataset.Metadata.PagesProcessed,
			"pages_attempted":   dataset.Metadata.PagesAttempted,
			"validation_score":  dataset.Metadata.ValidationScore,
			"enhancement_count": dataset.Metadata.EnhancementCount,
			"duration_ms":       dataset.Metadata.DurationMs,
		},
	})
	o.publishSummary(sess, string(session.StatusComplete), dataset.Metadata, logger)

	logger.Info("extraction complete",
		zap.Int("pages_processed", dataset.Metadata.PagesProcessed),
		zap.Int("pages_attempted", dataset.Metadata.PagesAttempted),
		zap.Int64("duration_ms", dataset.Metadata.DurationMs),
	)
	return dataset, nil
}

// fail emits the single terminal error event, marks the session failed, and
// hands back whatever dataset had been computed.
func (o *Orchestrator) fail(
	ctx context.Context,
	sess session.Session,
	bus *events.Bus,
	corrID string,
	start time.Time,
	tracker *events.Tracker,
	dataset extract.AggregatedDataset,
	cause error,
) (extract.AggregatedDataset, error) {
	o.deps.Logger.Error("extraction failed",
		zap.String("session_id", corrID),
		zap.Error(cause),
	)
	bus.Publish(events.Event{
		Type:          events.KindError,
		Phase:         events.PhaseComplete,
		CorrelationID: corrID,
		Timestamp:     o.now(),
		Priority:      events.PriorityFatal,
		Source:        "orchestrator",
		Message:       cause.Error(),
		Payload: map[string]any{
			"phases_run": tracker.Run(),
		},
	})
	// Best effort; the session store may be the thing that failed.
	if err := o.deps.Sessions.SetStatus(ctx, sess.ID, session.StatusFailed, cause.Error()); err != nil {
		o.deps.Logger.Warn("mark session failed", zap.String("session_id", corrID), zap.Error(err))
	}
	meta := dataset.Metadata
	meta.PhasesRun = tracker.Run()
	meta.DurationMs = o.now().Sub(start).Milliseconds()
	o.publishSummary(sess, string(session.StatusFailed), meta, o.deps.Logger)
	return dataset, cause
}

func (o *Orchestrator) analyze(ctx context.Context, domain string, logger *zap.Logger) extract.SiteMetadata {
	if o.deps.Analyzer == nil {
		return extract.SiteMetadata{}
	}
	meta, err := o.deps.Analyzer.Analyze(ctx, domain)
	if err != nil {
		logger.Warn("site analysis failed, defaulting to heavier strategy", zap.Error(err))
		return extract.SiteMetadata{}
	}
	return meta
}

func (o *Orchestrator) fetcherFor(s extract.Strategy) extract.Fetcher {
	switch s {
	case extract.StrategyStatic:
		return o.deps.Static
	case extract.StrategySPA:
		return o.deps.SPA
	default:
		return o.deps.Dynamic
	}
}

// skipSet parses the requested skip list. Only validation and enhancement
// are skippable; the pipeline cannot produce a dataset without the fetch
// phase, and discovery is bypassed by supplying URLs instead.
func (o *Orchestrator) skipSet(requested []string, logger *zap.Logger) map[events.Phase]bool {
	set := make(map[events.Phase]bool, len(requested))
	for _, raw := range requested {
		p, err := events.ParsePhase(raw)
		if err != nil {
			logger.Warn("ignoring unknown skip phase", zap.String("phase", raw))
			continue
		}
		if p != events.PhaseValidation && p != events.PhaseEnhancement {
			logger.Warn("phase cannot be skipped", zap.String("phase", raw))
			continue
		}
		set[p] = true
	}
	return set
}

// snapshot writes the raw HTML of every fetched page to the blob store.
// Failures are logged and swallowed; losing an artifact never fails a run.
func (o *Orchestrator) snapshot(ctx context.Context, sessionID string, records []*extract.PageRecord, logger *zap.Logger) {
	for _, rec := range records {
		if rec == nil || rec.HTML == "" {
			continue
		}
		path := blob.SnapshotPath(sessionID, rec.URL)
		uri, err := o.deps.Snapshots.Put(ctx, path, "text/html; charset=utf-8", []byte(rec.HTML))
		if err != nil {
			logger.Warn("snapshot write failed", zap.String("url", rec.URL), zap.Error(err))
			continue
		}
		if uri != "" {
			logger.Debug("snapshot written", zap.String("url", rec.URL), zap.String("uri", uri))
		}
	}
}

func (o *Orchestrator) publishSummary(sess session.Session, status string, meta extract.DatasetMetadata, logger *zap.Logger) {
	summary := publish.Summary{
		SessionID:       sess.ID.String(),
		Domain:          sess.Domain,
		Status:          status,
		PagesProcessed:  meta.PagesProcessed,
		PagesAttempted:  meta.PagesAttempted,
		ValidationScore: meta.ValidationScore,
		PhasesRun:       meta.PhasesRun,
		DurationMs:      meta.DurationMs,
		FinishedAt:      o.now(),
	}
	pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := o.deps.Publisher.Publish(pubCtx, o.cfg.PublishTopic, summary); err != nil {
		logger.Warn("publish run summary", zap.Error(err))
	}
}

// emitProgress reports one phase milestone. Source carries the milestone so
// distinct notifications from the same phase never share a structural dedup
// key within the coarsened-second window.
func (o *Orchestrator) emitProgress(bus *events.Bus, corrID string, phase events.Phase, milestone, msg string, payload map[string]any) {
	bus.Publish(events.Event{
		Type:          events.KindProgress,
		Phase:         phase,
		CorrelationID: corrID,
		Timestamp:     o.now(),
		Priority:      events.PriorityNormal,
		Source:        string(phase) + "." + milestone,
		Message:       msg,
		Payload:       payload,
	})
}

func (o *Orchestrator) emitStatus(bus *events.Bus, corrID string, phase events.Phase, msg string) {
	bus.Publish(events.Event{
		Type:          events.KindStatus,
		Phase:         phase,
		CorrelationID: corrID,
		Timestamp:     o.now(),
		Priority:      events.PriorityLow,
		Source:        string(phase),
		Message:       msg,
	})
}

// emitEscalation reports the outcome of one flagged-page re-fetch, keyed per
// page like emitPage so concurrent escalations in the same second all reach
// subscribers.
func (o *Orchestrator) emitEscalation(bus *events.Bus, corrID string, flag extract.FlaggedPage, replaced bool) {
	msg := "page escalated: " + flag.URL
	if !replaced {
		msg = "page escalation failed: " + flag.URL
	}
	bus.Publish(events.Event{
		Type:          events.KindProgress,
		Phase:         events.PhaseEnhancement,
		CorrelationID: corrID,
		Timestamp:     o.now(),
		Priority:      events.PriorityNormal,
		Source:        flag.URL,
		Message:       msg,
		Payload: map[string]any{
			"url":      flag.URL,
			"replaced": replaced,
		},
	})
}

// emitPage reports one fetched page. Both dedup keys must stay unique per
// page: Source carries the URL for the structural window, and the URL is
// repeated in Message because the notification window keys on message text.
func (o *Orchestrator) emitPage(bus *events.Bus, corrID string, phase events.Phase, url string, rec *extract.PageRecord) {
	payload := map[string]any{"url": url, "fetched": rec != nil}
	kind := events.KindData
	msg := "page fetched: " + url
	if rec == nil {
		kind = events.KindProgress
		msg = "page failed: " + url
	}
	bus.Publish(events.Event{
		Type:          kind,
		Phase:         phase,
		CorrelationID: corrID,
		Timestamp:     o.now(),
		Priority:      events.PriorityLow,
		Source:        url,
		Message:       msg,
		Payload:       payload,
	})
}

func countFetched(records []*extract.PageRecord) int {
	n := 0
	for _, rec := range records {
		if rec != nil {
			n++
		}
	}
	return n
}
