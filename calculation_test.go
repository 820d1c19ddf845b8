package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillDays(api *fakeAPI, mpan string, from, to time.Time, valueAt func(ts time.Time) float64) {
	for ts := from; ts.Before(to); ts = ts.Add(halfHour) {
		api.set(mpan, ts, valueAt(ts))
	}
}

// typicalDay yields 1.0 kWh at 17:30, 1.2 kWh at 18:00 and a trickle
// otherwise, so a 17:30 two-period session has baseline [1.0, 1.2].
func typicalDay(ts time.Time) float64 {
	switch ts.Hour()*60 + ts.Minute() {
	case 17*60 + 30:
		return 1.0
	case 18 * 60:
		return 1.2
	default:
		return 0.05
	}
}

func testSession(start time.Time, hh int, rate int) SavingSession {
	return SavingSession{
		ID:                       "1",
		Code:                     "TEST",
		StartAt:                  apiTime(start),
		EndAt:                    apiTime(start.Add(time.Duration(hh) * halfHour)),
		RewardPerKwhInOctoPoints: rate,
	}
}

func TestCalculateWeekdaySession(t *testing.T) {
	start := time.Date(2023, 11, 14, 17, 30, 0, 0, time.UTC) // a Tuesday
	api := newFakeAPI()
	mp := testMeterPoint()
	fillDays(api, mp.Mpan, start.AddDate(0, 0, -65), start.AddDate(0, 0, 1), typicalDay)
	api.set(mp.Mpan, start, 0.4)
	api.set(mp.Mpan, start.Add(halfHour), 0.6)

	ss := testSession(start, 2, 1800)
	calc := NewCalculation(ss)
	ticks := 0
	tick := NewProgress(22, func(done, total int) { ticks++ })

	err := calc.Calculate(api, []SavingSession{ss}, NewReadings(mp), nil, tick, t.Logf)
	require.NoError(t, err)

	require.Equal(t, []float64{0.4, 0.6}, calc.SessionImport)
	require.Len(t, calc.BaselineDays, 10)
	for _, day := range calc.BaselineDays {
		assert.True(t, isWeekday(day), "baseline day %s is not a weekday", day)
	}
	require.InDeltaSlice(t, []float64{1.0, 1.2}, calc.Baseline, 1e-9)
	require.InDeltaSlice(t, []float64{0.6, 0.6}, calc.SavedKwh, 1e-9)
	require.Equal(t, []int{1080, 1080}, calc.Points)

	row := calc.Row()
	require.NotNil(t, row.Reward)
	assert.Equal(t, 2160, *row.Reward)
	assert.Zero(t, *row.Reward%pointsQuantum)
	assert.InDelta(t, 2.7, *row.Earnings, 1e-9)
	assert.InDelta(t, 1.0, *row.Import, 1e-9)
	assert.InDelta(t, 2.2, *row.Baseline, 1e-9)
	assert.InDelta(t, 1.2, *row.Saved, 1e-9)

	// One tick for the session fetch plus one per baseline day.
	assert.Equal(t, 11, ticks)
}

func TestCalculateExcludesOtherSessionDays(t *testing.T) {
	start := time.Date(2023, 11, 14, 17, 30, 0, 0, time.UTC)
	api := newFakeAPI()
	mp := testMeterPoint()
	fillDays(api, mp.Mpan, start.AddDate(0, 0, -65), start.AddDate(0, 0, 1), typicalDay)

	ss := testSession(start, 2, 1800)
	// Another event on the Monday before must not serve as a baseline day.
	other := testSession(start.AddDate(0, 0, -1), 2, 1800)
	other.ID = "2"

	calc := NewCalculation(ss)
	err := calc.Calculate(api, []SavingSession{ss, other}, NewReadings(mp), nil, nil, nil)
	require.NoError(t, err)

	require.Len(t, calc.BaselineDays, 10)
	for _, day := range calc.BaselineDays {
		assert.NotEqual(t, dateKey(other.StartAt.Time()), dateKey(day))
	}
}

func TestCalculateWeekendSession(t *testing.T) {
	start := time.Date(2023, 11, 18, 17, 30, 0, 0, time.UTC) // a Saturday
	api := newFakeAPI()
	mp := testMeterPoint()
	fillDays(api, mp.Mpan, start.AddDate(0, 0, -65), start.AddDate(0, 0, 1), typicalDay)

	ss := testSession(start, 2, 1800)
	calc := NewCalculation(ss)
	err := calc.Calculate(api, []SavingSession{ss}, NewReadings(mp), nil, nil, nil)
	require.NoError(t, err)

	require.Len(t, calc.BaselineDays, 4)
	for _, day := range calc.BaselineDays {
		assert.False(t, isWeekday(day), "baseline day %s is not a weekend day", day)
	}
}

func TestCalculateSessionReadingsPending(t *testing.T) {
	start := time.Date(2023, 11, 14, 17, 30, 0, 0, time.UTC)
	api := newFakeAPI()
	mp := testMeterPoint()
	// History is settled but the session window has not landed yet.
	fillDays(api, mp.Mpan, start.AddDate(0, 0, -65), start, typicalDay)

	ss := testSession(start, 2, 1800)
	calc := NewCalculation(ss)
	err := calc.Calculate(api, []SavingSession{ss}, NewReadings(mp), nil, nil, nil)
	require.NoError(t, err)

	require.Nil(t, calc.SessionImport)
	require.Len(t, calc.BaselineDays, 10)
	require.NotNil(t, calc.Baseline)
	require.Nil(t, calc.SavedKwh)

	row := calc.Row()
	assert.Nil(t, row.Import)
	assert.NotNil(t, row.Baseline)
	assert.Nil(t, row.Saved)
	assert.Nil(t, row.Reward)
	assert.Nil(t, row.Earnings)
}

func TestCalculateNoUsableBaseline(t *testing.T) {
	start := time.Date(2023, 11, 14, 17, 30, 0, 0, time.UTC)
	api := newFakeAPI() // no readings at all

	ss := testSession(start, 2, 1800)
	calc := NewCalculation(ss)
	err := calc.Calculate(api, []SavingSession{ss}, NewReadings(testMeterPoint()), nil, nil, nil)
	require.NoError(t, err)

	require.Nil(t, calc.SessionImport)
	require.Empty(t, calc.BaselineDays)
	require.Nil(t, calc.Baseline)

	row := calc.Row()
	assert.Equal(t, start, row.Session)
	assert.Nil(t, row.Import)
	assert.Nil(t, row.Baseline)
	assert.Nil(t, row.Reward)
}

func TestCalculateExportExceedsImport(t *testing.T) {
	start := time.Date(2023, 11, 14, 17, 30, 0, 0, time.UTC)
	api := newFakeAPI()
	importPoint := testMeterPoint()
	exportPoint := ElectricityMeterPoint{
		ID:     "2",
		Mpan:   "2222222222222",
		Meters: []ElectricityMeter{{ID: "456", SerialNumber: "S2"}},
	}
	fillDays(api, importPoint.Mpan, start.AddDate(0, 0, -65), start.AddDate(0, 0, 1), func(time.Time) float64 { return 0.2 })
	fillDays(api, exportPoint.Mpan, start.AddDate(0, 0, -65), start.AddDate(0, 0, 1), func(time.Time) float64 { return 0.9 })
	// Nothing imported or exported during the session itself.
	api.set(importPoint.Mpan, start, 0)
	api.set(importPoint.Mpan, start.Add(halfHour), 0)
	api.set(exportPoint.Mpan, start, 0)
	api.set(exportPoint.Mpan, start.Add(halfHour), 0)

	ss := testSession(start, 2, 1800)
	calc := NewCalculation(ss)
	ticks := 0
	tick := NewProgress(22, func(done, total int) { ticks++ })

	err := calc.Calculate(api, []SavingSession{ss}, NewReadings(importPoint), NewReadings(exportPoint), tick, nil)
	require.NoError(t, err)

	// Net baseline is legitimately negative, and saving still clips at zero.
	require.NotNil(t, calc.Baseline)
	for _, v := range calc.Baseline {
		assert.InDelta(t, -0.7, v, 1e-9)
	}
	require.Equal(t, []float64{0, 0}, calc.SavedKwh)
	require.Equal(t, []int{0, 0}, calc.Points)

	row := calc.Row()
	require.NotNil(t, row.Baseline)
	assert.Negative(t, *row.Baseline)
	require.NotNil(t, row.Reward)
	assert.Equal(t, 0, *row.Reward)

	// Import and export fetched for the session and for each baseline day.
	assert.Equal(t, 22, ticks)
}

func TestCalculateTransportErrorPropagates(t *testing.T) {
	start := time.Date(2023, 11, 14, 17, 30, 0, 0, time.UTC)
	api := newFakeAPI()
	api.err = errors.New("bad gateway")

	ss := testSession(start, 2, 1800)
	calc := NewCalculation(ss)
	err := calc.Calculate(api, []SavingSession{ss}, NewReadings(testMeterPoint()), nil, nil, nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrMissingReadings)
}

func TestSavingsNeverNegative(t *testing.T) {
	start := time.Date(2023, 11, 14, 17, 30, 0, 0, time.UTC)
	api := newFakeAPI()
	mp := testMeterPoint()
	fillDays(api, mp.Mpan, start.AddDate(0, 0, -65), start.AddDate(0, 0, 1), typicalDay)
	// Using far more than baseline during the session earns no penalty.
	api.set(mp.Mpan, start, 5.0)
	api.set(mp.Mpan, start.Add(halfHour), 0.1)

	ss := testSession(start, 2, 1800)
	calc := NewCalculation(ss)
	err := calc.Calculate(api, []SavingSession{ss}, NewReadings(mp), nil, nil, nil)
	require.NoError(t, err)

	require.NotNil(t, calc.SavedKwh)
	for i, v := range calc.SavedKwh {
		assert.GreaterOrEqual(t, v, 0.0, "slot %d", i)
	}
	assert.Zero(t, calc.SavedKwh[0])
	assert.Positive(t, calc.SavedKwh[1])
}

func TestQuantizePoints(t *testing.T) {
	tests := []struct {
		name   string
		raw    float64
		expect int
	}{
		{"zero", 0, 0},
		{"below half quantum", 3.99, 0},
		{"half quantum rounds up", 4, 8},
		{"exact multiple", 1080, 1080},
		{"rounds to nearest", 1083, 1080},
		{"rounds up past midpoint", 1084, 1088},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := quantizePoints(test.raw)
			assert.Equal(t, test.expect, got)
			assert.Zero(t, got%pointsQuantum)
		})
	}
}
