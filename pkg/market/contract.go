package market

import (
	"fmt"
	"time"
)

// monthLetters maps the standard futures month codes: F=Jan .. Z=Dec.
const monthLetters = "FGHJKMNQUVXZ"

// MonthFromLetter returns the calendar month for a futures month code.
func MonthFromLetter(letter rune) (time.Month, error) {
	for i, l := range monthLetters {
		if l == letter {
			return time.Month(i + 1), nil
		}
	}
	return 0, fmt.Errorf("invalid contract month letter %q", letter)
}

// LetterForMonth returns the futures month code for a calendar month.
func LetterForMonth(m time.Month) rune {
	return rune(monthLetters[int(m)-1])
}

// Instrument is one configured futures market: the config key (Code), the
// vendor symbol root, the contract month cycle and the exchange it trades
// on. Immutable once loaded.
type Instrument struct {
	Code         string
	Symbol       string
	Cycle        string
	Exchange     string
	LookbackDays int // 0 means use the run default
}

// Exchange carries the documented earliest data availability per resolution.
type Exchange struct {
	EarliestDaily  time.Time
	EarliestHourly time.Time
}

// Earliest returns the earliest available date for the given resolution.
func (e Exchange) Earliest(f Frequency) time.Time {
	if f == Hourly {
		return e.EarliestHourly
	}
	return e.EarliestDaily
}

// Contract identifies a single expiry of an instrument, e.g. GOLD June 2020.
type Contract struct {
	Instrument Instrument
	Year       int
	Month      time.Month
}

// Symbol renders the vendor contract code, e.g. GCM20 for GOLD June 2020.
func (c Contract) Symbol() string {
	return fmt.Sprintf("%s%c%02d", c.Instrument.Symbol, LetterForMonth(c.Month), c.Year%100)
}

// Expiry is the contract's nominal expiry date. The real expiry rules vary
// per exchange; the last day of the contract month is a close enough bound
// for building download windows.
func (c Contract) Expiry() time.Time {
	first := time.Date(c.Year, c.Month, 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1)
}

// MonthStart is the first day of the contract month.
func (c Contract) MonthStart() time.Time {
	return time.Date(c.Year, c.Month, 1, 0, 0, 0, 0, time.UTC)
}

// FileName renders the on-disk name for this contract at the given
// resolution, e.g. Hour_GOLD_20200600.csv.
func (c Contract) FileName(f Frequency) string {
	return fmt.Sprintf("%s_%s_%d%02d00.csv", f, c.Instrument.Code, c.Year, int(c.Month))
}
