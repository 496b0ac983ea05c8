package planner

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bcgrab/pkg/errors"
	"bcgrab/pkg/market"
)

// fakeFiles is an in-memory Files backed by a name -> last-row-time map.
type fakeFiles struct {
	last map[string]time.Time
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{last: make(map[string]time.Time)}
}

func (f *fakeFiles) Exists(name string) bool {
	_, ok := f.last[name]
	return ok
}

func (f *fakeFiles) LastTime(name string, _ market.Frequency) (time.Time, error) {
	t, ok := f.last[name]
	if !ok {
		return time.Time{}, os.ErrNotExist
	}
	return t, nil
}

func testMap() market.Map {
	return market.NewMap(map[string]market.Instrument{
		"GOLD": {Symbol: "GC", Cycle: "GJMQVZ", Exchange: "COMEX"},
		"CORN": {Symbol: "ZC", Cycle: "HKNUZ", Exchange: "CBOT"},
	}, market.DefaultExchanges())
}

func utc(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func drain(it *Iterator) []Task {
	var tasks []Task
	for {
		task, ok := it.Next()
		if !ok {
			return tasks
		}
		tasks = append(tasks, task)
	}
}

func TestPlanFullYear(t *testing.T) {
	p := New(testMap(), newFakeFiles(), Options{
		StartYear: 2020,
		EndYear:   2020,
		Now:       utc(2021, time.June, 1),
	}, nil)

	tasks := drain(p.Iter([]string{"GOLD"}))

	// 6 cycle months, hourly and daily each
	require.Len(t, tasks, 12)
	hourly, daily := 0, 0
	for _, task := range tasks {
		switch task.Frequency {
		case market.Hourly:
			hourly++
		case market.Daily:
			daily++
		}
		assert.Equal(t, 2020, task.Contract.Year)
		assert.False(t, task.Append)
	}
	assert.Equal(t, 6, hourly)
	assert.Equal(t, 6, daily)
}

func TestPlanTaskCountBound(t *testing.T) {
	p := New(testMap(), newFakeFiles(), Options{
		StartYear: 2015,
		EndYear:   2020,
		Now:       utc(2021, time.June, 1),
	}, nil)

	tasks := drain(p.Iter(nil))

	// Never more than contracts x frequencies
	bound := (6 + 5) * 6 * 2 // GOLD + CORN cycles, 6 years, 2 frequencies
	assert.LessOrEqual(t, len(tasks), bound)
	assert.NotEmpty(t, tasks)
}

func TestPlanWindow(t *testing.T) {
	p := New(testMap(), newFakeFiles(), Options{
		StartYear: 2020,
		EndYear:   2020,
		Now:       utc(2021, time.June, 1),
	}, nil)

	tasks := drain(p.Iter([]string{"GOLD"}))
	for _, task := range tasks {
		if task.Contract.Month != time.June {
			continue
		}
		// June 1 minus 120 days
		assert.Equal(t, utc(2020, time.February, 2), task.Start)
		assert.Equal(t, utc(2020, time.June, 30), task.End)
	}
}

func TestPlanClipsToToday(t *testing.T) {
	now := utc(2020, time.July, 1)
	p := New(testMap(), newFakeFiles(), Options{
		StartYear: 2020,
		EndYear:   2020,
		Now:       now,
	}, nil)

	tasks := drain(p.Iter([]string{"GOLD"}))

	var months []time.Month
	for _, task := range tasks {
		assert.False(t, task.End.After(now), "window must not reach past today")
		assert.False(t, task.Start.After(now), "window must not start in the future")
		if task.Frequency == market.Daily {
			months = append(months, task.Contract.Month)
		}
	}
	// December's window starts in August and is dropped entirely
	assert.NotContains(t, months, time.December)
	assert.Contains(t, months, time.October)
}

func TestPlanClipsToExchangeEarliest(t *testing.T) {
	m := testMap()
	p := New(m, newFakeFiles(), Options{
		StartYear: 2008,
		EndYear:   2008,
		Now:       utc(2021, time.June, 1),
	}, nil)

	gold, err := m.Instrument("GOLD")
	require.NoError(t, err)
	comex, err := m.ExchangeFor(gold)
	require.NoError(t, err)

	tasks := drain(p.Iter([]string{"GOLD"}))
	require.NotEmpty(t, tasks)
	for _, task := range tasks {
		earliest := comex.Earliest(task.Frequency)
		assert.False(t, task.Start.Before(earliest),
			"%s %s starts %v, before exchange earliest %v",
			task.Contract.Symbol(), task.Frequency, task.Start, earliest)
	}

	// The June 2008 hourly window would start in February and must be
	// clipped to the exchange's first hourly date.
	for _, task := range tasks {
		if task.Frequency == market.Hourly && task.Contract.Month == time.June {
			assert.Equal(t, utc(2008, time.May, 4), task.Start)
		}
	}
}

func TestPlanYearsBeforeHourlyData(t *testing.T) {
	p := New(testMap(), newFakeFiles(), Options{
		StartYear: 2000,
		EndYear:   2000,
		Now:       utc(2021, time.June, 1),
	}, nil)

	tasks := drain(p.Iter([]string{"GOLD"}))
	require.NotEmpty(t, tasks)
	for _, task := range tasks {
		assert.Equal(t, market.Daily, task.Frequency,
			"no hourly task can exist for contracts that expired before intraday data begins")
	}
	assert.Len(t, tasks, 6)
}

func TestPlanSkipsExistingFiles(t *testing.T) {
	files := newFakeFiles()
	p := New(testMap(), files, Options{
		StartYear: 2020,
		EndYear:   2020,
		Now:       utc(2021, time.June, 1),
	}, nil)

	// First pass plans everything; marking each file as written makes a
	// second pass empty.
	for _, task := range drain(p.Iter([]string{"GOLD"})) {
		files.last[task.FileName] = task.End
	}
	assert.Empty(t, drain(p.Iter([]string{"GOLD"})))
}

func TestPlanDailyOnly(t *testing.T) {
	p := New(testMap(), newFakeFiles(), Options{
		StartYear: 2020,
		EndYear:   2020,
		DailyOnly: true,
		Now:       utc(2021, time.June, 1),
	}, nil)

	tasks := drain(p.Iter([]string{"GOLD"}))
	require.Len(t, tasks, 6)
	for _, task := range tasks {
		assert.Equal(t, market.Daily, task.Frequency)
	}
}

func TestPlanUpdateMode(t *testing.T) {
	now := utc(2020, time.June, 15)
	files := newFakeFiles()
	gold := market.Instrument{Code: "GOLD", Symbol: "GC", Cycle: "GJMQVZ", Exchange: "COMEX"}
	june := market.Contract{Instrument: gold, Year: 2020, Month: time.June}

	stale := utc(2020, time.June, 1)
	files.last[june.FileName(market.Daily)] = stale

	p := New(testMap(), files, Options{
		StartYear: 2020,
		EndYear:   2020,
		DailyOnly: true,
		Update:    true,
		Now:       now,
	}, nil)

	tasks := drain(p.Iter([]string{"GOLD"}))

	var updated *Task
	for i := range tasks {
		if tasks[i].FileName == june.FileName(market.Daily) {
			updated = &tasks[i]
		}
	}
	require.NotNil(t, updated, "stale file should produce an update task")
	assert.True(t, updated.Append)
	assert.Equal(t, stale.AddDate(0, 0, 1), updated.Start)
	assert.Equal(t, now, updated.End)
}

func TestPlanUpdateSkipsFreshFiles(t *testing.T) {
	now := utc(2020, time.June, 15)
	files := newFakeFiles()
	gold := market.Instrument{Code: "GOLD", Symbol: "GC", Cycle: "GJMQVZ", Exchange: "COMEX"}
	june := market.Contract{Instrument: gold, Year: 2020, Month: time.June}

	// Last row one day old, well inside the stale threshold
	files.last[june.FileName(market.Daily)] = now.AddDate(0, 0, -1)

	p := New(testMap(), files, Options{
		StartYear: 2020,
		EndYear:   2020,
		DailyOnly: true,
		Update:    true,
		Now:       now,
	}, nil)

	for _, task := range drain(p.Iter([]string{"GOLD"})) {
		assert.NotEqual(t, june.FileName(market.Daily), task.FileName)
	}
}

func TestPlanInterleavesInstruments(t *testing.T) {
	p := New(testMap(), newFakeFiles(), Options{
		StartYear: 2018,
		EndYear:   2020,
		DailyOnly: true,
		Now:       utc(2021, time.June, 1),
	}, nil)

	tasks := drain(p.Iter([]string{"GOLD", "CORN"}))
	require.NotEmpty(t, tasks)

	// Both cycles weigh 1, so the head of the sequence alternates
	assert.Equal(t, "GOLD", tasks[0].Contract.Instrument.Code)
	assert.Equal(t, "CORN", tasks[1].Contract.Instrument.Code)
	assert.Equal(t, "GOLD", tasks[2].Contract.Instrument.Code)

	// Newest contracts first within an instrument
	assert.Equal(t, 2020, tasks[0].Contract.Year)
	assert.Equal(t, time.December, tasks[0].Contract.Month)
}

func TestPlanUnknownInstrument(t *testing.T) {
	p := New(testMap(), newFakeFiles(), Options{
		StartYear: 2020,
		EndYear:   2020,
		Now:       utc(2021, time.June, 1),
	}, nil)

	it := p.Iter([]string{"GOLD", "NOPE"})
	tasks := drain(it)

	assert.NotEmpty(t, tasks, "the known instrument still gets planned")
	require.Len(t, it.Errs(), 1)
	err := ConfigErrs(it.Errs())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestFallback(t *testing.T) {
	files := newFakeFiles()
	p := New(testMap(), files, Options{
		StartYear: 2020,
		EndYear:   2020,
		Now:       utc(2021, time.June, 1),
	}, nil)

	var hourly Task
	for _, task := range drain(p.Iter([]string{"GOLD"})) {
		if task.Frequency == market.Hourly && task.Contract.Month == time.June {
			hourly = task
		}
	}
	require.NotEmpty(t, hourly.FileName)

	daily, ok := p.Fallback(hourly)
	require.True(t, ok)
	assert.Equal(t, market.Daily, daily.Frequency)
	assert.Equal(t, hourly.Contract, daily.Contract)
	assert.Equal(t, "Day_GOLD_20200600.csv", daily.FileName)
	assert.False(t, daily.Append)

	// Once the daily file exists the fallback is refused
	files.last[daily.FileName] = daily.End
	_, ok = p.Fallback(hourly)
	assert.False(t, ok)

	// Daily tasks never fall back
	_, ok = p.Fallback(daily)
	assert.False(t, ok)
}

func TestConfigErrsNil(t *testing.T) {
	assert.NoError(t, ConfigErrs(nil))
}
