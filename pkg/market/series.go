package market

import (
	"sort"
	"time"
)

// Bar is a single OHLCV row. Times are stored in UTC regardless of the
// exchange's local zone.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Series is an ordered price series for one contract at one resolution.
type Series []Bar

// Sort orders the series by timestamp ascending.
func (s Series) Sort() {
	sort.Slice(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })
}

// First and Last assume a non-empty, sorted series.
func (s Series) First() Bar { return s[0] }
func (s Series) Last() Bar  { return s[len(s)-1] }
