package storage

import (
	"os"
	"regexp"
	"time"

	"bcgrab/pkg/market"
)

// Instrument codes may themselves contain underscores (CRUDE_W, GAS_US),
// so the code segment matches greedily up to the date suffix.
var legacyName = regexp.MustCompile(`^([A-Z0-9_]+)_([0-9]{8})\.csv$`)

// MigrateResult describes what happened to one legacy file.
type MigrateResult struct {
	From   string
	To     string // empty when the file was skipped or removed
	Reason string
}

// MigrateLegacy renames files saved under the old single-frequency naming
// (<INSTRUMENT>_<YYYYMMDD>.csv) to the frequency-prefixed convention. The
// frequency is inferred from the average spacing of the most recent rows;
// files too sparse or too irregular to classify are left alone and
// reported. Dry run reports without touching disk.
func (s *Store) MigrateLegacy(dryRun bool) ([]MigrateResult, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var results []MigrateResult
	for _, entry := range entries {
		if entry.IsDir() || !legacyName.MatchString(entry.Name()) {
			continue
		}
		if _, _, ok := parseName(entry.Name()); ok {
			// Already carries a frequency prefix.
			continue
		}

		freq, reason := s.classify(entry.Name())
		if freq == "" {
			results = append(results, MigrateResult{From: entry.Name(), Reason: reason})
			continue
		}

		to := string(freq) + "_" + entry.Name()
		if !dryRun {
			if err := os.Rename(s.Path(entry.Name()), s.Path(to)); err != nil {
				return results, err
			}
			delete(s.existing, entry.Name())
			s.existing[to] = true
		}
		results = append(results, MigrateResult{From: entry.Name(), To: to, Reason: reason})
	}
	return results, nil
}

// classify infers the resolution of a legacy file from row spacing. Legacy
// files used the hourly timestamp layout regardless of resolution.
func (s *Store) classify(name string) (market.Frequency, string) {
	series, err := s.ReadSeries(name, market.Hourly)
	if err != nil {
		return "", "unreadable: " + err.Error()
	}
	if len(series) <= 21 {
		return "", "too few rows to classify"
	}
	series.Sort()

	// Only the most recent rows matter; old files mix regimes.
	if len(series) > 100 {
		series = series[len(series)-100:]
	}
	var total time.Duration
	for i := 1; i < len(series); i++ {
		total += series[i].Time.Sub(series[i-1].Time)
	}
	mean := total / time.Duration(len(series)-1)

	switch {
	case mean >= 3*24*time.Hour:
		return "", "rows too sparse to classify"
	case mean > 18*time.Hour:
		return market.Daily, "mean row spacing " + mean.String()
	case mean > 0:
		return market.Hourly, "mean row spacing " + mean.String()
	default:
		return "", "zero row spacing"
	}
}
