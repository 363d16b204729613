// Package pipeline runs the analysis loop: scoring, windowing and
// meta-analysis on an adaptive cadence. One tick at a time; an interval that
// shrinks to the minimum on activity and doubles toward the maximum when the
// system is quiet.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loglens/loglens/pkg/config"
	"github.com/loglens/loglens/pkg/llm"
	"github.com/loglens/loglens/pkg/meta"
	"github.com/loglens/loglens/pkg/metrics"
	"github.com/loglens/loglens/pkg/scoring"
	"github.com/loglens/loglens/pkg/store"
	"github.com/loglens/loglens/pkg/windowing"
)

// AlertFunc is invoked for every window whose meta-analysis succeeded.
type AlertFunc func(ctx context.Context, windowID string)

// Orchestrator owns the cooperative pipeline loop.
type Orchestrator struct {
	store     *store.Store
	cfg       *config.Service
	scoring   *scoring.Job
	windowing *windowing.Service
	analyzer  *meta.Analyzer
	onWindow  AlertFunc

	interval time.Duration
	running  bool
	mu       sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// New wires the orchestrator. onWindow may be nil.
func New(st *store.Store, cfg *config.Service, client llm.Client, onWindow AlertFunc) *Orchestrator {
	return &Orchestrator{
		store:     st,
		cfg:       cfg,
		scoring:   scoring.NewJob(st, cfg, client),
		windowing: windowing.NewService(st, cfg),
		analyzer:  meta.NewAnalyzer(st, cfg, client),
		onWindow:  onWindow,
	}
}

// Start launches the pipeline loop.
func (o *Orchestrator) Start(ctx context.Context) {
	if o.cancel != nil {
		return
	}
	ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})

	go o.run(ctx)
	slog.Info("Pipeline orchestrator started")
}

// Stop signals the loop to exit and waits for it to finish.
func (o *Orchestrator) Stop() {
	if o.cancel == nil {
		return
	}
	o.cancel()
	<-o.done
	slog.Info("Pipeline orchestrator stopped")
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)

	o.interval = o.minInterval(ctx)
	timer := time.NewTimer(o.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			o.tick(ctx)
			timer.Reset(o.interval)
		}
	}
}

// tick runs one pipeline pass and adapts the cadence. Re-entrant fires are
// skipped and simply rescheduled.
func (o *Orchestrator) tick(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		slog.Warn("Pipeline tick skipped, previous run still in progress")
		return
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	started := time.Now()
	scored, analyzed := o.runOnce(ctx)
	metrics.PipelineRunSeconds.Observe(time.Since(started).Seconds())
	o.adapt(ctx, scored > 0 || analyzed > 0)
}

// runOnce is one pipeline pass: scoring, windowing, meta-analysis, alerts.
func (o *Orchestrator) runOnce(ctx context.Context) (scored, analyzed int) {
	// Config is re-read every tick so UI changes apply without restart.
	if !o.cfg.AI(ctx).Configured() {
		slog.Debug("Pipeline idle, no LLM API key configured")
		return 0, 0
	}

	scored, err := o.scoring.Run(ctx)
	if err != nil {
		slog.Error("Scoring run failed", "error", err)
	} else if scored > 0 {
		metrics.EventsScored.Add(float64(scored))
		slog.Info("Scoring run complete", "events_scored", scored)
	}

	windows, err := o.windowing.Advance(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("Window advance failed", "error", err)
	}

	for _, w := range windows {
		ok, err := o.analyzer.Analyze(ctx, w.ID, meta.Options{})
		if err != nil {
			slog.Error("Meta-analysis failed", "window_id", w.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		analyzed++
		if o.onWindow != nil {
			o.onWindow(ctx, w.ID)
		}
	}
	if analyzed > 0 {
		slog.Info("Meta-analysis complete", "windows_analyzed", analyzed)
	}
	return scored, analyzed
}

// adapt resets the interval to the minimum after activity and doubles it
// toward the maximum otherwise. Bounds come from the store every time, so
// they are runtime-tunable.
func (o *Orchestrator) adapt(ctx context.Context, activity bool) {
	minIv := o.minInterval(ctx)
	maxIv := o.maxInterval(ctx)

	if activity {
		o.interval = minIv
	} else {
		o.interval *= 2
		if o.interval > maxIv {
			o.interval = maxIv
		}
	}
	if o.interval < minIv {
		o.interval = minIv
	}
	slog.Debug("Pipeline cadence adjusted", "interval", o.interval, "activity", activity)
}

func (o *Orchestrator) minInterval(ctx context.Context) time.Duration {
	return time.Duration(o.cfg.Pipeline(ctx).MinIntervalMinutes) * time.Minute
}

func (o *Orchestrator) maxInterval(ctx context.Context) time.Duration {
	return time.Duration(o.cfg.Pipeline(ctx).MaxIntervalMinutes) * time.Minute
}
