// Package planner decides which contract files need downloading. It turns
// an instrument list and year range into an ordered, lazy sequence of
// download tasks, clipping every requested window to the exchange's
// documented data availability and skipping work already on disk.
package planner

import (
	stderrors "errors"
	"time"

	"bcgrab/pkg/errors"
	"bcgrab/pkg/logger"
	"bcgrab/pkg/market"
)

// Task is one planned download: a contract at a resolution over a
// requested date window, destined for a named file.
type Task struct {
	Contract  market.Contract
	Frequency market.Frequency
	Start     time.Time
	End       time.Time
	FileName  string
	// Append marks an update-mode tail download that must be merged into
	// the existing file instead of replacing it.
	Append bool
}

// Files is the planner's view of the save directory.
type Files interface {
	Exists(name string) bool
	LastTime(name string, freq market.Frequency) (time.Time, error)
}

// Options carries the run parameters that shape the plan.
type Options struct {
	StartYear int
	EndYear   int
	DailyOnly bool
	// Update extends existing files by their missing tail instead of
	// skipping them.
	Update bool
	// LookbackDays is the window length before the contract month for
	// instruments without their own override.
	LookbackDays int
	// StaleAfter is how recent a file's last row may be before update-mode
	// skips it.
	StaleAfter time.Duration
	// Now anchors "today"; zero means the wall clock.
	Now time.Time
}

const (
	defaultLookbackDays = 120
	defaultStaleAfter   = 4 * 24 * time.Hour
)

// Planner builds task sequences from the contract map and the state of the
// save directory.
type Planner struct {
	contracts market.Map
	files     Files
	opts      Options
	log       logger.Logger
}

// New creates a Planner. Nothing is computed until Iter.
func New(contracts market.Map, files Files, opts Options, log logger.Logger) *Planner {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = defaultLookbackDays
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	return &Planner{contracts: contracts, files: files, opts: opts, log: log}
}

// Iter builds the task iterator for the given instruments. Unknown
// instruments or exchanges are reported through Iterator.Errs and do not
// stop the other instruments. An empty instrument list means every
// configured instrument.
func (p *Planner) Iter(instruments []string) *Iterator {
	if len(instruments) == 0 {
		instruments = p.contracts.Codes()
	}

	it := &Iterator{planner: p}
	perInstrument := make(map[string][]market.Contract, len(instruments))
	var order []string
	for _, code := range instruments {
		contracts, err := p.contracts.Contracts(code, p.opts.StartYear, p.opts.EndYear)
		if err != nil {
			p.log.WithError(err).WithField("instrument", code).Error("skipping instrument")
			it.errs = append(it.errs, err)
			continue
		}
		perInstrument[code] = contracts
		order = append(order, code)
	}
	it.queue = interleave(order, perInstrument)
	return it
}

// interleave round-robins contracts across instruments, weighted by cycle
// length, newest contracts first within each instrument. A quota-limited
// run then spreads its allowance across instruments instead of exhausting
// it on the first one.
func interleave(order []string, perInstrument map[string][]market.Contract) []market.Contract {
	remaining := 0
	for _, contracts := range perInstrument {
		remaining += len(contracts)
	}

	queue := make([]market.Contract, 0, remaining)
	for remaining > 0 {
		for _, code := range order {
			contracts := perInstrument[code]
			if len(contracts) == 0 {
				continue
			}
			weight := 1
			switch cycle := len(contracts[0].Instrument.Cycle); {
			case cycle > 10:
				weight = 3
			case cycle > 7:
				weight = 2
			}
			for i := 0; i < weight && len(contracts) > 0; i++ {
				last := len(contracts) - 1
				queue = append(queue, contracts[last])
				contracts = contracts[:last]
				remaining--
			}
			perInstrument[code] = contracts
		}
	}
	return queue
}

// Iterator walks the planned task sequence lazily. File existence is
// probed at Next time, so a daily file written by an earlier fallback in
// the same run is seen and skipped.
type Iterator struct {
	planner *Planner
	queue   []market.Contract
	pos     int
	freqPos int
	errs    []error
}

// Errs returns the per-instrument configuration errors hit while building
// the sequence.
func (it *Iterator) Errs() []error {
	return it.errs
}

// Next returns the next task that needs action, or false when the
// sequence is exhausted.
func (it *Iterator) Next() (Task, bool) {
	for it.pos < len(it.queue) {
		contract := it.queue[it.pos]
		freqs := it.frequencies()
		if it.freqPos >= len(freqs) {
			it.pos++
			it.freqPos = 0
			continue
		}
		freq := freqs[it.freqPos]
		it.freqPos++

		task, ok := it.planner.taskFor(contract, freq)
		if ok {
			return task, true
		}
	}
	return Task{}, false
}

func (it *Iterator) frequencies() []market.Frequency {
	if it.planner.opts.DailyOnly {
		return []market.Frequency{market.Daily}
	}
	return market.Frequencies
}

// taskFor decides whether one contract/frequency combination needs a
// download and computes its window.
func (p *Planner) taskFor(contract market.Contract, freq market.Frequency) (Task, bool) {
	exchange, err := p.contracts.ExchangeFor(contract.Instrument)
	if err != nil {
		// Iter already validated the exchange; an error here means the map
		// changed under us, which it never does.
		return Task{}, false
	}

	start, end, ok := p.window(contract, freq, exchange)
	if !ok {
		return Task{}, false
	}

	name := contract.FileName(freq)
	if p.files.Exists(name) {
		if !p.opts.Update {
			p.log.DebugWithFields("file exists, skipping", map[string]interface{}{
				"file": name,
			})
			return Task{}, false
		}
		return p.updateTask(contract, freq, name, end)
	}

	return Task{
		Contract:  contract,
		Frequency: freq,
		Start:     start,
		End:       end,
		FileName:  name,
	}, true
}

// window computes the requested date range for a contract at a frequency,
// clipped to the exchange's earliest available date. Reports false when
// the clipped window is empty or entirely in the future.
func (p *Planner) window(contract market.Contract, freq market.Frequency, exchange market.Exchange) (time.Time, time.Time, bool) {
	lookback := p.opts.LookbackDays
	if contract.Instrument.LookbackDays > 0 {
		lookback = contract.Instrument.LookbackDays
	}

	start := contract.MonthStart().AddDate(0, 0, -lookback)
	end := contract.Expiry()
	if end.After(p.opts.Now) {
		end = p.opts.Now
	}

	if earliest := exchange.Earliest(freq); start.Before(earliest) {
		start = earliest
	}
	if start.After(p.opts.Now) || start.After(end) {
		p.log.DebugWithFields("window out of range, skipping", map[string]interface{}{
			"contract":  contract.Symbol(),
			"frequency": freq.String(),
		})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// updateTask computes the missing tail of an existing file: from the last
// recorded row to today. Files updated recently are left alone.
func (p *Planner) updateTask(contract market.Contract, freq market.Frequency, name string, end time.Time) (Task, bool) {
	last, err := p.files.LastTime(name, freq)
	if err != nil {
		p.log.WithError(err).WithField("file", name).Warn("cannot read last timestamp, skipping update")
		return Task{}, false
	}
	if p.opts.Now.Sub(last) < p.opts.StaleAfter {
		p.log.DebugWithFields("recently updated, skipping", map[string]interface{}{
			"file": name,
			"last": last,
		})
		return Task{}, false
	}

	var start time.Time
	if freq == market.Hourly {
		start = last.Add(time.Hour)
	} else {
		start = last.AddDate(0, 0, 1)
	}
	if !start.Before(end) {
		return Task{}, false
	}

	return Task{
		Contract:  contract,
		Frequency: freq,
		Start:     start,
		End:       end,
		FileName:  name,
		Append:    true,
	}, true
}

// Fallback derives the one-shot daily retry for an hourly task whose data
// came back empty or too sparse. Reports false when the task was not
// hourly, the daily window is out of range, or the daily file already
// exists.
func (p *Planner) Fallback(task Task) (Task, bool) {
	if task.Frequency != market.Hourly {
		return Task{}, false
	}
	exchange, err := p.contracts.ExchangeFor(task.Contract.Instrument)
	if err != nil {
		return Task{}, false
	}

	start, end, ok := p.window(task.Contract, market.Daily, exchange)
	if !ok {
		return Task{}, false
	}
	name := task.Contract.FileName(market.Daily)
	if p.files.Exists(name) {
		if !p.opts.Update {
			return Task{}, false
		}
		return p.updateTask(task.Contract, market.Daily, name, end)
	}

	return Task{
		Contract:  task.Contract,
		Frequency: market.Daily,
		Start:     start,
		End:       end,
		FileName:  name,
	}, true
}

// ConfigErrs joins instrument lookup failures into a single error for
// callers that only want a summary, nil when there were none.
func ConfigErrs(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Wrap(errors.KindConfig, stderrors.Join(errs...), "some instruments were skipped")
}
