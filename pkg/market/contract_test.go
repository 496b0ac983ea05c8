package market

import (
	"testing"
	"time"
)

func TestMonthFromLetter(t *testing.T) {
	cases := []struct {
		letter rune
		month  time.Month
	}{
		{'F', time.January},
		{'G', time.February},
		{'H', time.March},
		{'J', time.April},
		{'K', time.May},
		{'M', time.June},
		{'N', time.July},
		{'Q', time.August},
		{'U', time.September},
		{'V', time.October},
		{'X', time.November},
		{'Z', time.December},
	}
	for _, tc := range cases {
		month, err := MonthFromLetter(tc.letter)
		if err != nil {
			t.Fatalf("MonthFromLetter(%q) returned error: %v", tc.letter, err)
		}
		if month != tc.month {
			t.Errorf("MonthFromLetter(%q) = %v, want %v", tc.letter, month, tc.month)
		}
		if got := LetterForMonth(tc.month); got != tc.letter {
			t.Errorf("LetterForMonth(%v) = %q, want %q", tc.month, got, tc.letter)
		}
	}
}

func TestMonthFromLetterInvalid(t *testing.T) {
	for _, letter := range []rune{'A', 'I', 'z', ' '} {
		if _, err := MonthFromLetter(letter); err == nil {
			t.Errorf("MonthFromLetter(%q) should have failed", letter)
		}
	}
}

func TestContractSymbol(t *testing.T) {
	gold := Instrument{Code: "GOLD", Symbol: "GC", Cycle: "GJMQVZ", Exchange: "COMEX"}

	c := Contract{Instrument: gold, Year: 2020, Month: time.June}
	if got := c.Symbol(); got != "GCM20" {
		t.Errorf("Symbol() = %q, want GCM20", got)
	}

	// Single-digit two-digit year keeps the leading zero
	c = Contract{Instrument: gold, Year: 2009, Month: time.December}
	if got := c.Symbol(); got != "GCZ09" {
		t.Errorf("Symbol() = %q, want GCZ09", got)
	}
}

func TestContractExpiry(t *testing.T) {
	gold := Instrument{Code: "GOLD", Symbol: "GC"}

	c := Contract{Instrument: gold, Year: 2020, Month: time.June}
	want := time.Date(2020, time.June, 30, 0, 0, 0, 0, time.UTC)
	if got := c.Expiry(); !got.Equal(want) {
		t.Errorf("Expiry() = %v, want %v", got, want)
	}

	// Leap February
	c = Contract{Instrument: gold, Year: 2020, Month: time.February}
	want = time.Date(2020, time.February, 29, 0, 0, 0, 0, time.UTC)
	if got := c.Expiry(); !got.Equal(want) {
		t.Errorf("Expiry() = %v, want %v", got, want)
	}
}

func TestContractFileName(t *testing.T) {
	gold := Instrument{Code: "GOLD", Symbol: "GC"}
	c := Contract{Instrument: gold, Year: 2020, Month: time.June}

	if got := c.FileName(Hourly); got != "Hour_GOLD_20200600.csv" {
		t.Errorf("FileName(Hourly) = %q, want Hour_GOLD_20200600.csv", got)
	}
	if got := c.FileName(Daily); got != "Day_GOLD_20200600.csv" {
		t.Errorf("FileName(Daily) = %q, want Day_GOLD_20200600.csv", got)
	}
}

func TestParseFrequency(t *testing.T) {
	for _, f := range Frequencies {
		got, err := ParseFrequency(string(f))
		if err != nil {
			t.Fatalf("ParseFrequency(%q) returned error: %v", f, err)
		}
		if got != f {
			t.Errorf("ParseFrequency(%q) = %q", f, got)
		}
	}
	if _, err := ParseFrequency("Weekly"); err == nil {
		t.Error("ParseFrequency(\"Weekly\") should have failed")
	}
}

func TestExchangeEarliest(t *testing.T) {
	ex := Exchange{
		EarliestDaily:  time.Date(1978, time.February, 27, 0, 0, 0, 0, time.UTC),
		EarliestHourly: time.Date(2008, time.May, 4, 0, 0, 0, 0, time.UTC),
	}
	if got := ex.Earliest(Daily); !got.Equal(ex.EarliestDaily) {
		t.Errorf("Earliest(Daily) = %v", got)
	}
	if got := ex.Earliest(Hourly); !got.Equal(ex.EarliestHourly) {
		t.Errorf("Earliest(Hourly) = %v", got)
	}
}
