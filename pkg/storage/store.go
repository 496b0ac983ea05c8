// Package storage persists price series as CSV files, one file per
// contract and resolution, named <Frequency>_<Instrument>_<YYYYMM>00.csv.
package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bcgrab/pkg/errors"
	"bcgrab/pkg/market"
)

var header = []string{"Time", "Open", "High", "Low", "Close", "Volume"}

// Store manages the save directory.
type Store struct {
	dir      string
	existing map[string]bool
}

// NewStore creates the directory if needed and scans it so existence
// checks avoid repeated stat calls.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindWrite, err, "failed to create save directory %s", dir)
	}
	s := &Store{dir: dir, existing: make(map[string]bool)}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.KindWrite, err, "failed to read save directory %s", dir)
	}
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".csv" {
			s.existing[entry.Name()] = true
		}
	}
	return s, nil
}

// Dir returns the save directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute path for a file name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists reports whether the named file is already on disk.
func (s *Store) Exists(name string) bool {
	if s.existing[name] {
		return true
	}
	if _, err := os.Stat(s.Path(name)); err == nil {
		s.existing[name] = true
		return true
	}
	return false
}

// WriteSeries writes a series to a new file, replacing any previous
// content. The write goes through a temp file and rename so a crashed run
// never leaves a half-written file behind.
func (s *Store) WriteSeries(name string, freq market.Frequency, series market.Series) error {
	series.Sort()
	if err := s.writeAtomic(name, freq, series); err != nil {
		return err
	}
	s.existing[name] = true
	return nil
}

// MergeSeries merges new rows into an existing file by timestamp key:
// duplicate timestamps keep the row already on disk, order stays
// ascending. Merging the same range twice is a no-op.
func (s *Store) MergeSeries(name string, freq market.Frequency, series market.Series) error {
	existing, err := s.ReadSeries(name, freq)
	if err != nil {
		if !os.IsNotExist(underlying(err)) {
			return err
		}
		existing = nil
	}

	seen := make(map[time.Time]bool, len(existing))
	for _, bar := range existing {
		seen[bar.Time] = true
	}
	merged := existing
	for _, bar := range series {
		if !seen[bar.Time] {
			merged = append(merged, bar)
			seen[bar.Time] = true
		}
	}
	merged.Sort()

	if err := s.writeAtomic(name, freq, merged); err != nil {
		return err
	}
	s.existing[name] = true
	return nil
}

// ReadSeries loads a saved file back into memory.
func (s *Store) ReadSeries(name string, freq market.Frequency) (market.Series, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, errors.Wrap(errors.KindWrite, err, "failed to open %s", name)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(errors.KindWrite, err, "failed to read %s", name)
	}
	if len(records) == 0 {
		return nil, nil
	}

	layout := freq.TimeLayout()
	series := make(market.Series, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(header) {
			continue
		}
		ts, err := time.Parse(layout, rec[0])
		if err != nil {
			return nil, errors.Wrap(errors.KindWrite, err, "bad timestamp in %s", name)
		}
		open, _ := strconv.ParseFloat(rec[1], 64)
		high, _ := strconv.ParseFloat(rec[2], 64)
		low, _ := strconv.ParseFloat(rec[3], 64)
		closePx, _ := strconv.ParseFloat(rec[4], 64)
		volume, _ := strconv.ParseInt(rec[5], 10, 64)
		series = append(series, market.Bar{
			Time: ts.UTC(), Open: open, High: high, Low: low, Close: closePx, Volume: volume,
		})
	}
	return series, nil
}

// LastTime returns the newest timestamp recorded in a saved file.
func (s *Store) LastTime(name string, freq market.Frequency) (time.Time, error) {
	series, err := s.ReadSeries(name, freq)
	if err != nil {
		return time.Time{}, err
	}
	if len(series) == 0 {
		return time.Time{}, errors.New(errors.KindWrite, "%s has no rows", name)
	}
	series.Sort()
	return series.Last().Time, nil
}

func (s *Store) writeAtomic(name string, freq market.Frequency, series market.Series) error {
	path := s.Path(name)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(errors.KindWrite, err, "failed to create %s", tmp)
	}

	writer := csv.NewWriter(f)
	writeErr := writer.Write(header)
	layout := freq.TimeLayout()
	for _, bar := range series {
		if writeErr != nil {
			break
		}
		writeErr = writer.Write([]string{
			bar.Time.Format(layout),
			formatPrice(bar.Open),
			formatPrice(bar.High),
			formatPrice(bar.Low),
			formatPrice(bar.Close),
			strconv.FormatInt(bar.Volume, 10),
		})
	}
	writer.Flush()
	if writeErr == nil {
		writeErr = writer.Error()
	}
	closeErr := f.Close()

	if writeErr != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.KindWrite, writeErr, "failed to write %s", name)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.KindWrite, closeErr, "failed to close %s", name)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.KindWrite, err, "failed to move %s into place", name)
	}
	return nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// underlying digs the innermost cause out of a wrapped error chain.
func underlying(err error) error {
	for {
		next := stdUnwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func stdUnwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

// FileName mirrors market.Contract.FileName for callers that only have the
// raw parts.
func FileName(freq market.Frequency, instrument string, year int, month time.Month) string {
	return fmt.Sprintf("%s_%s_%d%02d00.csv", freq, instrument, year, int(month))
}

// parseName splits <Frequency>_<Instrument>_<YYYYMM>00.csv into its parts.
func parseName(name string) (freq market.Frequency, instrument string, ok bool) {
	base := strings.TrimSuffix(name, ".csv")
	// Split on the first and last underscore; the instrument in between
	// may itself contain underscores (CRUDE_W).
	first := strings.Index(base, "_")
	last := strings.LastIndex(base, "_")
	if first < 0 || last <= first {
		return "", "", false
	}
	f, err := market.ParseFrequency(base[:first])
	if err != nil {
		return "", "", false
	}
	if len(base)-last-1 != 8 {
		return "", "", false
	}
	return f, base[first+1 : last], true
}
