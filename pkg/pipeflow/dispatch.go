package pipeflow

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pipeflow/pipeflow/pkg/catalog"
	"github.com/pipeflow/pipeflow/pkg/logging"
	"github.com/pipeflow/pipeflow/pkg/progress"
)

// Run executes the pipeline to completion: it plans if necessary, selects
// a master dataset (or runs a single one-shot pass when there is none),
// and dispatches every master key through the configured engine.
//
// Run returns nil on success, the *StopPipeline signal that ended the run
// early, or the first non-tolerated *Error/*ConfigError encountered.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.planned {
		if err := p.Plan(ctx, PlanOptions{InitHandlers: true}); err != nil {
			return err
		}
	}
	registerMetrics()
	log := logging.FromContext(ctx)

	params, err := p.paramsSnapshot()
	if err != nil {
		return err
	}

	master, ok := p.masterHandler()
	if !ok {
		log.Info("running one-shot pipeline", "pipeline", p.Name)
		res := p.timedRunItem(ctx, nil, params)
		return outcomeToErr(res)
	}

	total, err := master.Length(ctx)
	if err != nil {
		return err
	}

	workers := resolveWorkers(p.Config.MaxWorkers)
	log.Info("starting pipeline run", "pipeline", p.Name, "engine", p.Config.Engine, "workers", workers, "items", total)

	showProgress := true
	if proj, err := p.catalog.Project(); err == nil {
		showProgress = proj.ShowProgress()
	}
	bar := progress.New(p.Name, total, showProgress)
	defer bar.Close()

	if workers == 1 {
		return p.runSequential(ctx, master, params, bar)
	}
	if p.Config.Engine == IsolatedProcessParallel {
		return p.runIsolatedProcessParallel(ctx, master, params, workers, bar)
	}
	return p.runSharedMemoryParallel(ctx, master, params, workers, bar)
}

// masterHandler picks the dataset that drives iteration: the first input
// of the first node in execOrder that resolves to a catalog input
// handler, falling back to any input handler at all. false means the
// pipeline has no catalog inputs and should run as a single one-shot
// pass.
func (p *Pipeline) masterHandler() (catalog.Handler, bool) {
	for _, n := range p.execOrder {
		for _, in := range n.Inputs {
			if h, ok := p.inputHandlers.Get(in); ok {
				return h, true
			}
		}
	}
	if pair := p.inputHandlers.Oldest(); pair != nil {
		return pair.Value, true
	}
	return nil, false
}

func (p *Pipeline) paramsSnapshot() (catalog.FlatParams, error) {
	if p.catalog == nil {
		return orderedmap.New[string, any](), nil
	}
	return p.catalog.Parameters()
}

// resolveWorkers turns a Config.MaxWorkers value into a concrete worker
// count: 0 (unset) and 1 both mean sequential; AutoWorkers resolves to
// the available logical processor count, matching the original's
// multiprocessing.cpu_count() fallback.
func resolveWorkers(maxWorkers int) int {
	switch {
	case maxWorkers == AutoWorkers:
		return runtime.GOMAXPROCS(0)
	case maxWorkers <= 1:
		return 1
	default:
		return maxWorkers
	}
}

// timedRunItem wraps runItem with the duration histogram and outcome
// counter every engine shares.
func (p *Pipeline) timedRunItem(ctx context.Context, key any, params catalog.FlatParams) itemResult {
	start := time.Now()
	res := p.runItem(ctx, key, params)
	itemDuration.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())
	observeOutcome(p.Name, res.Outcome)
	return res
}

// outcomeToErr converts a terminal itemResult into the error Run/the
// dispatcher returns: StopPipeline and non-tolerated failures surface as
// errors, everything else (including Skip, which never propagates) is
// nil.
func outcomeToErr(res itemResult) error {
	switch res.Outcome {
	case outcomeStopped:
		return res.Stop
	case outcomeFailed:
		return res.Err
	default:
		return nil
	}
}

// runSequential implements spec.md §4.5 mode 1: an inline loop over the
// master handler's Iterate, invoking the executor directly with no
// worker pool.
func (p *Pipeline) runSequential(ctx context.Context, master catalog.Handler, params catalog.FlatParams, bar *progress.Bar) error {
	log := logging.FromContext(ctx)
	inflightWorkers.WithLabelValues(p.Name).Set(1)
	defer inflightWorkers.WithLabelValues(p.Name).Set(0)

	for key := range master.Iterate(ctx) {
		res := p.timedRunItem(ctx, key, params)
		bar.Increment(1)

		switch res.Outcome {
		case outcomeSkipped:
			log.Debug("item skipped", "pipeline", p.Name, "master_key", key, "message", res.Skip.Message)
		case outcomeStopped:
			log.Info("pipeline stopped by item", "pipeline", p.Name, "master_key", key, "message", res.Stop.Message)
			return res.Stop
		case outcomeFailed:
			logItemFailure(log, p.Name, key, res.Err)
			if !p.Config.ErrorTolerant {
				return res.Err
			}
		}
	}
	return nil
}

// outcome channels and typed results shared by both parallel engines.
type workerOutcome struct {
	key    any
	result itemResult
}

// runSharedMemoryParallel implements spec.md §4.5 mode 2: a bounded pool
// of goroutines sharing this process's address space, fed by a lazy key
// iterator and collected over a results channel. The first Stop or first
// non-tolerated Err stops enqueuing further keys; in-flight workers are
// allowed to drain before the signal is surfaced.
func (p *Pipeline) runSharedMemoryParallel(ctx context.Context, master catalog.Handler, params catalog.FlatParams, workers int, bar *progress.Bar) error {
	log := logging.FromContext(ctx)

	keys := make(chan any, workers)
	results := make(chan workerOutcome, workers)
	stopCh := make(chan struct{})
	var stopOnce sync.Once
	requestStop := func() { stopOnce.Do(func() { close(stopCh) }) }

	var wg sync.WaitGroup
	inflightWorkers.WithLabelValues(p.Name).Set(float64(workers))
	defer inflightWorkers.WithLabelValues(p.Name).Set(0)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range keys {
				res := p.timedRunItem(ctx, key, params)
				results <- workerOutcome{key: key, result: res}
			}
		}()
	}

	go func() {
		defer close(keys)
		for key := range master.Iterate(ctx) {
			select {
			case <-stopCh:
				return
			case keys <- key:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var final error
	for out := range results {
		bar.Increment(1)
		switch out.result.Outcome {
		case outcomeSkipped:
			log.Debug("item skipped", "pipeline", p.Name, "master_key", out.key, "message", out.result.Skip.Message)
		case outcomeStopped:
			log.Info("pipeline stopped by item", "pipeline", p.Name, "master_key", out.key, "message", out.result.Stop.Message)
			if final == nil {
				final = out.result.Stop
			}
			requestStop()
		case outcomeFailed:
			if !p.Config.ErrorTolerant {
				if final == nil {
					final = out.result.Err
				}
				requestStop()
			} else {
				logItemFailure(log, p.Name, out.key, out.result.Err)
			}
		}
	}
	return final
}

// logItemFailure logs a tolerated or about-to-propagate item failure with
// its structured attributes when it's a *Error (the common case), falling
// back to a plain message for anything else (e.g. an ArityMismatchError
// propagated unwrapped).
func logItemFailure(log *slog.Logger, pipeline string, key any, err error) {
	var ie *Error
	if errors.As(err, &ie) {
		log.LogAttrs(context.Background(), slog.LevelError, "item failed", ie.LogAttrs()...)
		return
	}
	log.Error("item failed", "pipeline", pipeline, "master_key", key, "error", err)
}
