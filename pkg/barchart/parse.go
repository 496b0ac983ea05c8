package barchart

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"sync"
	"time"

	"bcgrab/pkg/errors"
	"bcgrab/pkg/market"
)

// The service serves intraday timestamps in exchange-local Central time;
// everything is normalized to UTC on the way in.
var (
	centralOnce sync.Once
	centralLoc  *time.Location
)

func central() *time.Location {
	centralOnce.Do(func() {
		loc, err := time.LoadLocation("America/Chicago")
		if err != nil {
			loc = time.FixedZone("CST", -6*3600)
		}
		centralLoc = loc
	})
	return centralLoc
}

const (
	dailyWireLayout  = "2006-01-02"
	hourlyWireLayout = "01/02/2006 15:04"
)

// ParseCSV parses a download response body into a price series. The body
// carries a header row, OHLCV rows and a one-line vendor trailer which is
// dropped.
func ParseCSV(payload []byte, freq market.Frequency) (market.Series, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(errors.KindFetch, err, "malformed CSV payload")
	}
	if len(records) < 2 {
		return nil, errors.New(errors.KindEmptyData, "empty CSV payload")
	}

	cols, err := columnIndex(records[0])
	if err != nil {
		return nil, err
	}

	series := make(market.Series, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) <= cols.max() {
			// Vendor trailer line.
			continue
		}
		bar, err := parseBar(rec, cols, freq)
		if err != nil {
			continue
		}
		series = append(series, bar)
	}
	if len(series) == 0 {
		return nil, errors.New(errors.KindEmptyData, "CSV payload carried no rows")
	}
	series.Sort()
	return series, nil
}

type columns struct {
	time, open, high, low, close, volume int
}

func (c columns) max() int {
	m := c.time
	for _, i := range []int{c.open, c.high, c.low, c.close, c.volume} {
		if i > m {
			m = i
		}
	}
	return m
}

func columnIndex(header []string) (columns, error) {
	cols := columns{time: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "time":
			cols.time = i
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		// The service labels the settlement column "Last"; saved files
		// use "Close".
		case "last", "close":
			cols.close = i
		case "volume":
			cols.volume = i
		}
	}
	if cols.time < 0 || cols.open < 0 || cols.high < 0 || cols.low < 0 || cols.close < 0 || cols.volume < 0 {
		return columns{}, errors.New(errors.KindFetch, "CSV header missing expected columns: %v", header)
	}
	return cols, nil
}

func parseBar(rec []string, cols columns, freq market.Frequency) (market.Bar, error) {
	var (
		ts  time.Time
		err error
	)
	raw := strings.TrimSpace(rec[cols.time])
	if freq == market.Hourly {
		ts, err = time.ParseInLocation(hourlyWireLayout, raw, central())
		ts = ts.UTC()
	} else {
		ts, err = time.Parse(dailyWireLayout, raw)
	}
	if err != nil {
		return market.Bar{}, err
	}

	open, err := parseFloat(rec[cols.open])
	if err != nil {
		return market.Bar{}, err
	}
	high, err := parseFloat(rec[cols.high])
	if err != nil {
		return market.Bar{}, err
	}
	low, err := parseFloat(rec[cols.low])
	if err != nil {
		return market.Bar{}, err
	}
	closePx, err := parseFloat(rec[cols.close])
	if err != nil {
		return market.Bar{}, err
	}
	volume, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(rec[cols.volume]), ",", ""), 10, 64)
	if err != nil {
		volume = 0
	}

	return market.Bar{Time: ts, Open: open, High: high, Low: low, Close: closePx, Volume: volume}, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
}
