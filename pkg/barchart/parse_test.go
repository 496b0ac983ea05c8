package barchart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bcgrab/pkg/errors"
	"bcgrab/pkg/market"
)

const dailyPayload = `Time,Open,High,Low,Last,Volume
2020-05-04,"1,700.50","1,720.00","1,690.00","1,710.20","12,345"
2020-05-01,1695.00,1705.00,1688.00,1700.10,9876
Downloaded from the service
`

func TestParseCSVDaily(t *testing.T) {
	series, err := ParseCSV([]byte(dailyPayload), market.Daily)
	require.NoError(t, err)
	require.Len(t, series, 2, "the vendor trailer must be dropped")

	// Rows come back sorted ascending
	assert.Equal(t, time.Date(2020, time.May, 1, 0, 0, 0, 0, time.UTC), series[0].Time)
	assert.Equal(t, time.Date(2020, time.May, 4, 0, 0, 0, 0, time.UTC), series[1].Time)

	// Thousands separators are stripped
	assert.Equal(t, 1700.5, series[1].Open)
	assert.Equal(t, 1710.2, series[1].Close)
	assert.Equal(t, int64(12345), series[1].Volume)
}

func TestParseCSVHourly(t *testing.T) {
	// January is outside daylight saving, Central is UTC-6
	payload := "Time,Open,High,Low,Last,Volume\n" +
		"01/15/2020 09:00,1550.1,1551.0,1549.5,1550.8,300\n"

	series, err := ParseCSV([]byte(payload), market.Hourly)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, time.Date(2020, time.January, 15, 15, 0, 0, 0, time.UTC), series[0].Time)
}

func TestParseCSVCloseColumnAlias(t *testing.T) {
	payload := "Time,Open,High,Low,Close,Volume\n2020-05-01,1,2,0.5,1.5,10\n"
	series, err := ParseCSV([]byte(payload), market.Daily)
	require.NoError(t, err)
	assert.Equal(t, 1.5, series[0].Close)
}

func TestParseCSVEmpty(t *testing.T) {
	for _, payload := range []string{"", "Time,Open,High,Low,Last,Volume\n"} {
		_, err := ParseCSV([]byte(payload), market.Daily)
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindEmptyData), "payload %q", payload)
	}
}

func TestParseCSVMissingColumns(t *testing.T) {
	_, err := ParseCSV([]byte("Time,Open,Volume\n2020-05-01,1,10\n"), market.Daily)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindFetch))
}

func TestParseCSVSkipsBadRows(t *testing.T) {
	payload := "Time,Open,High,Low,Last,Volume\n" +
		"not-a-date,1,2,0.5,1.5,10\n" +
		"2020-05-01,1,2,0.5,1.5,10\n"
	series, err := ParseCSV([]byte(payload), market.Daily)
	require.NoError(t, err)
	assert.Len(t, series, 1)
}
