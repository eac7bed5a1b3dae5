package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edwinhu/sec-sro-rss/internal/config"
	"github.com/edwinhu/sec-sro-rss/internal/feed"
	"github.com/edwinhu/sec-sro-rss/internal/fetch"
	"github.com/edwinhu/sec-sro-rss/internal/filter"
	"github.com/edwinhu/sec-sro-rss/internal/metrics"
	"github.com/edwinhu/sec-sro-rss/internal/model"
	"github.com/edwinhu/sec-sro-rss/internal/source"
	"github.com/edwinhu/sec-sro-rss/internal/store"
)

// ErrAllSourcesFailed reports a run in which no source delivered anything.
// Outputs and state stay untouched; the next scheduled run is the retry.
var ErrAllSourcesFailed = errors.New("pipeline: all sources failed")

// fetchLimit caps concurrent source fetches. sec.gov throttles aggressively,
// two in flight is plenty.
const fetchLimit = 2

// SourceResult is one source's outcome within a run.
type SourceResult struct {
	Name    string
	Fetched int
	Skipped int
	Err     error
}

// Result is the run report.
type Result struct {
	RunID    string
	Sources  []SourceResult
	Excluded int
	New      int
	Total    int
}

// Succeeded counts sources that completed their fetch.
func (r Result) Succeeded() int {
	n := 0
	for _, sr := range r.Sources {
		if sr.Err == nil {
			n++
		}
	}
	return n
}

// Runner executes one fetch, filter, merge, render, persist cycle.
type Runner struct {
	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics // optional, a fresh set when nil
	DryRun  bool             // full cycle, nothing written or pushed
	Now     func() time.Time // optional, time.Now when nil
}

// Run executes a single cycle with default options.
func Run(ctx context.Context, cfg config.Config, log *zap.Logger) (Result, error) {
	return (&Runner{Config: cfg, Log: log}).Run(ctx)
}

func (p *Runner) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	cfg := p.Config

	runID := uuid.NewString()
	log := p.Log.With(zap.String("run_id", runID))
	res := Result{RunID: runID}

	m := p.Metrics
	if m == nil {
		m = metrics.New()
	}

	eng, err := filter.New(cfg.Filter)
	if err != nil {
		return res, fmt.Errorf("pipeline: %w", err)
	}

	client := fetch.NewClient(cfg.Fetch)
	srcs := make([]source.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		src, err := source.New(sc, client, log)
		if err != nil {
			return res, fmt.Errorf("pipeline: %w", err)
		}
		srcs = append(srcs, src)
	}

	log.Info("run starting", zap.Int("sources", len(srcs)), zap.Bool("dry_run", p.DryRun))

	// Bounded fan-out with one result slot per source, so one source failing
	// never disturbs the others.
	res.Sources = make([]SourceResult, len(srcs))
	batches := make([]source.Batch, len(srcs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchLimit)
	for i, src := range srcs {
		g.Go(func() error {
			batch, err := src.Fetch(gctx)
			res.Sources[i] = SourceResult{
				Name:    src.Name(),
				Fetched: len(batch.Filings),
				Skipped: batch.Skipped,
				Err:     err,
			}
			if err != nil {
				log.Warn("source failed", zap.String("source", src.Name()), zap.Error(err))
				return nil
			}
			batches[i] = batch
			m.FilingsFetched.WithLabelValues(src.Name()).Add(float64(len(batch.Filings)))
			log.Info("fetched filings", zap.String("source", src.Name()),
				zap.Int("count", len(batch.Filings)), zap.Int("skipped", batch.Skipped))
			return nil
		})
	}
	_ = g.Wait() // failures live in the result slots

	if res.Succeeded() == 0 {
		return res, ErrAllSourcesFailed
	}

	var incoming []model.Filing
	for _, b := range batches {
		incoming = append(incoming, b.Filings...)
	}

	kept, dropped := eng.Apply(incoming)
	res.Excluded = len(dropped)
	for _, d := range dropped {
		m.FilingsExcluded.WithLabelValues(d.Pattern).Inc()
		log.Debug("excluded filing",
			zap.String("id", d.Filing.ID),
			zap.String("title", d.Filing.Title),
			zap.String("rule", d.Pattern))
	}
	if res.Excluded > 0 {
		log.Info("excluded filings", zap.Int("count", res.Excluded))
	}

	// Dedup against prior runs. A corrupt state file degrades to a fresh
	// start rather than failing the cycle.
	st, err := store.Load(cfg.Output.StatePath)
	if err != nil {
		log.Warn("state unreadable, starting fresh", zap.Error(err))
	}
	res.New = st.Merge(kept)
	m.FilingsNew.Add(float64(res.New))

	all := st.All()
	res.Total = len(all)
	m.FeedEntries.Set(float64(res.Total))

	// Render strictly before persist: a feed that cannot be built must not
	// mark its filings as seen.
	rend := &feed.Renderer{
		OutDir:      cfg.Output.Dir,
		Title:       cfg.Feed.Title,
		Description: cfg.Feed.Description,
		ID:          cfg.Feed.ID,
		Link:        cfg.Feed.Link,
		Now:         p.Now,
	}
	docs, err := rend.Build(all)
	if err != nil {
		return res, fmt.Errorf("pipeline: %w", err)
	}

	if p.DryRun {
		log.Info("dry run, skipping writes",
			zap.String("dir", cfg.Output.Dir), zap.String("state", cfg.Output.StatePath))
	} else {
		if err := rend.Write(docs); err != nil {
			return res, fmt.Errorf("pipeline: %w", err)
		}
		if err := store.Save(cfg.Output.StatePath, st); err != nil {
			return res, fmt.Errorf("pipeline: %w", err)
		}
	}

	m.LastRunUnixtime.Set(float64(time.Now().Unix()))
	m.RunDuration.Observe(time.Since(start).Seconds())
	if cfg.Metrics.GatewayURL != "" && !p.DryRun {
		if err := m.Push(cfg.Metrics.GatewayURL, cfg.Metrics.Job); err != nil {
			log.Warn("metrics push failed", zap.Error(err))
		}
	}

	fetched := 0
	for _, sr := range res.Sources {
		fetched += sr.Fetched
	}
	log.Info("cycle finished",
		zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)),
		zap.Int("fetched", fetched),
		zap.Int("excluded", res.Excluded),
		zap.Int("new", res.New),
		zap.Int("feed_entries", res.Total))
	return res, nil
}
