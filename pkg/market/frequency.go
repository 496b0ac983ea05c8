package market

import "fmt"

// Frequency is the bar resolution of a price series. The string value is
// the prefix used in saved file names.
type Frequency string

const (
	Daily  Frequency = "Day"
	Hourly Frequency = "Hour"
)

// Frequencies lists supported resolutions in download order: hourly first,
// so a failed hourly request can still fall back to daily within the run.
var Frequencies = []Frequency{Hourly, Daily}

func (f Frequency) String() string {
	return string(f)
}

// TimeLayout returns the timestamp layout used in saved CSV files for this
// resolution.
func (f Frequency) TimeLayout() string {
	if f == Hourly {
		return "2006-01-02T15:04:05Z07:00"
	}
	return "2006-01-02"
}

// ParseFrequency converts a file-name prefix back to a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch s {
	case "Day":
		return Daily, nil
	case "Hour":
		return Hourly, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}
