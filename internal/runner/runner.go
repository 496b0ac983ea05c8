// Package runner executes a planned task sequence against the price
// service: one request at a time, pacing between requests, the daily
// fallback for sparse hourly data and the per-run download ceiling.
package runner

import (
	"context"
	stderrors "errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"bcgrab/pkg/barchart"
	"bcgrab/pkg/errors"
	"bcgrab/pkg/logger"
	"bcgrab/pkg/market"
	"bcgrab/pkg/planner"
	"bcgrab/pkg/ratelimit"
)

// Status classifies the outcome of one task.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusMerged     Status = "merged"
	StatusFellBack   Status = "fell_back"
	StatusNoData     Status = "no_data"
	StatusFailed     Status = "failed"
	StatusPlanned    Status = "planned" // dry run only
)

// Result is the outcome of one executed (or dry-run planned) task.
type Result struct {
	Task     planner.Task
	Status   Status
	Rows     int
	Err      error
	Duration time.Duration
}

// Summary aggregates a whole run.
type Summary struct {
	RunID      string
	Planned    int
	Downloaded int
	Merged     int
	FellBack   int
	NoData     int
	Failed     int
	Requests   int
	Results    []Result
}

// SeriesStore is the runner's view of the save directory.
type SeriesStore interface {
	WriteSeries(name string, freq market.Frequency, series market.Series) error
	MergeSeries(name string, freq market.Frequency, series market.Series) error
}

// Options are runtime knobs independent of planning.
type Options struct {
	DryRun        bool
	MinHourlyRows int           // hourly results below this trigger the daily fallback
	PauseMin      time.Duration // randomized pause between tasks
	PauseMax      time.Duration
}

// Runner drives the fetch/store cycle for a planned sequence.
type Runner struct {
	planner   *planner.Planner
	fetcher   barchart.Fetcher
	store     SeriesStore
	limiter   ratelimit.Limiter
	allowance *ratelimit.Allowance
	opts      Options
	log       logger.Logger
	runID     string
}

// New wires a runner. Each run gets its own ID so interleaved log lines
// from scheduled invocations can be told apart.
func New(
	p *planner.Planner,
	fetcher barchart.Fetcher,
	store SeriesStore,
	limiter ratelimit.Limiter,
	allowance *ratelimit.Allowance,
	opts Options,
	log logger.Logger,
) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.MinHourlyRows <= 0 {
		opts.MinHourlyRows = 30
	}
	runID := uuid.NewString()
	return &Runner{
		planner:   p,
		fetcher:   fetcher,
		store:     store,
		limiter:   limiter,
		allowance: allowance,
		opts:      opts,
		log:       log.WithField("run_id", runID),
		runID:     runID,
	}
}

// Run executes the task sequence for the given instruments. Per-task
// failures are recorded and skipped; only context cancellation returns an
// error. Instrument-level config problems are reported in the summary via
// planner.ConfigErrs on the iterator.
func (r *Runner) Run(ctx context.Context, instruments []string) (Summary, error) {
	summary := Summary{RunID: r.runID}
	it := r.planner.Iter(instruments)
	if err := planner.ConfigErrs(it.Errs()); err != nil {
		r.log.WithError(err).Warn("some instruments could not be planned")
	}

	for {
		task, ok := it.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Planned++

		if r.opts.DryRun {
			r.log.InfoWithFields("planned task", map[string]interface{}{
				"contract":  task.Contract.Symbol(),
				"frequency": task.Frequency.String(),
				"start":     task.Start.Format("2006-01-02"),
				"end":       task.End.Format("2006-01-02"),
				"file":      task.FileName,
				"append":    task.Append,
			})
			summary.Results = append(summary.Results, Result{Task: task, Status: StatusPlanned})
			continue
		}

		if !r.allowance.Take() {
			r.log.WithField("requests", summary.Requests).Warn("download ceiling reached, stopping run")
			break
		}

		result, requests := r.execute(ctx, task)
		summary.Requests += requests
		summary.Results = append(summary.Results, result)
		r.account(&summary, result)

		if stderrors.Is(result.Err, barchart.ErrAllowanceExhausted) {
			r.log.Warn("service reports daily allowance exhausted, stopping run")
			break
		}
		r.pause()
	}

	r.log.InfoWithFields("run finished", map[string]interface{}{
		"planned":    summary.Planned,
		"downloaded": summary.Downloaded,
		"merged":     summary.Merged,
		"fell_back":  summary.FellBack,
		"no_data":    summary.NoData,
		"failed":     summary.Failed,
		"requests":   summary.Requests,
	})
	return summary, nil
}

// execute runs one task, applying the single-shot daily fallback for
// sparse hourly data. The returned count is the number of paid requests
// made, including the fallback fetch.
func (r *Runner) execute(ctx context.Context, task planner.Task) (Result, int) {
	result := r.fetchAndStore(ctx, task)

	if task.Frequency == market.Hourly && r.needsFallback(result) {
		fallback, ok := r.planner.Fallback(task)
		if !ok {
			return result, 1
		}
		r.log.InfoWithFields("insufficient hourly data, falling back to daily", map[string]interface{}{
			"contract": task.Contract.Symbol(),
			"rows":     result.Rows,
		})
		if !r.allowance.Take() {
			return result, 1
		}
		fbResult := r.fetchAndStore(ctx, fallback)
		if fbResult.Err == nil {
			fbResult.Status = StatusFellBack
		}
		return fbResult, 2
	}
	return result, 1
}

// needsFallback reports whether an hourly result was empty or too sparse
// to keep.
func (r *Runner) needsFallback(result Result) bool {
	if stderrors.Is(result.Err, barchart.ErrAllowanceExhausted) {
		return false
	}
	if errors.IsKind(result.Err, errors.KindEmptyData) {
		return true
	}
	return result.Err == nil && result.Rows < r.opts.MinHourlyRows
}

func (r *Runner) fetchAndStore(ctx context.Context, task planner.Task) Result {
	start := time.Now()
	result := Result{Task: task}

	if r.limiter != nil {
		r.limiter.Wait()
	}

	fetched, err := r.fetcher.Fetch(ctx, task.Contract.Symbol(), task.Start, task.End, task.Frequency)
	if fetched.AllowanceUsed >= 0 && r.allowance != nil {
		r.allowance.Observe(fetched.AllowanceUsed)
	}
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		if errors.IsKind(err, errors.KindEmptyData) {
			result.Status = StatusNoData
		} else {
			result.Status = StatusFailed
		}
		logger.LogTask(task.Contract.Instrument.Code, task.Contract.Symbol(), task.Frequency.String(), string(result.Status), err)
		return result
	}

	result.Rows = len(fetched.Series)

	// Sparse hourly data is not worth keeping; leave the file for the
	// daily fallback instead.
	if task.Frequency == market.Hourly && result.Rows < r.opts.MinHourlyRows {
		result.Status = StatusNoData
		result.Duration = time.Since(start)
		logger.LogTask(task.Contract.Instrument.Code, task.Contract.Symbol(), task.Frequency.String(), string(result.Status), nil)
		return result
	}

	if task.Append {
		err = r.store.MergeSeries(task.FileName, task.Frequency, fetched.Series)
		result.Status = StatusMerged
	} else {
		err = r.store.WriteSeries(task.FileName, task.Frequency, fetched.Series)
		result.Status = StatusDownloaded
	}
	if err != nil {
		result.Err = err
		result.Status = StatusFailed
	}
	result.Duration = time.Since(start)
	logger.LogTask(task.Contract.Instrument.Code, task.Contract.Symbol(), task.Frequency.String(), string(result.Status), result.Err)
	return result
}

func (r *Runner) account(summary *Summary, result Result) {
	switch result.Status {
	case StatusDownloaded:
		summary.Downloaded++
	case StatusMerged:
		summary.Merged++
	case StatusFellBack:
		summary.FellBack++
	case StatusNoData:
		summary.NoData++
	case StatusFailed:
		summary.Failed++
	}
}

// pause sleeps a randomized interval between requests so the run does not
// look like a burst.
func (r *Runner) pause() {
	if r.opts.PauseMax <= 0 {
		return
	}
	span := r.opts.PauseMax - r.opts.PauseMin
	d := r.opts.PauseMin
	if span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	time.Sleep(d)
}
