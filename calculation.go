package main

import (
	"errors"
	"math"
	"time"
)

const (
	// Baseline comparison day targets: the past 10 matching weekdays, or the
	// past 4 weekend days when the session falls on a weekend.
	weekdayBaselineDays = 10
	weekendBaselineDays = 4

	// baselineLookbackDays bounds the scan to the 60 days before the session.
	baselineLookbackDays = 60

	// pointsQuantum is the platform's minimum awardable points granularity.
	pointsQuantum = 8

	// octoPointsPerPound converts reward points to pounds.
	octoPointsPerPound = 800
)

// isWeekday reports whether t falls Monday through Friday.
func isWeekday(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Calculation computes the baseline and reward for one saving session. Nil
// slices mark quantities that could not be derived because readings were not
// available yet; that is an expected transient state, not an error.
type Calculation struct {
	Session SavingSession

	SessionImport []float64
	SessionExport []float64

	// Per-day baseline readings are kept separate so breakdowns stay
	// inspectable after the run.
	BaselineDays   []time.Time
	BaselineImport [][]float64
	BaselineExport [][]float64

	Baseline []float64
	SavedKwh []float64
	Points   []int
}

func NewCalculation(ss SavingSession) *Calculation {
	return &Calculation{Session: ss}
}

// Calculate fetches session and baseline readings and derives the saving and
// reward. sessions is the full list of known events; their dates are excluded
// from baseline selection. Missing readings are tolerated per quantity;
// transport and API errors abort and propagate.
func (c *Calculation) Calculate(api ConsumptionAPI, sessions []SavingSession, importReadings, exportReadings *Readings, tick *Progress, debug Logf) error {
	start := c.Session.StartAt.Time()
	hh := c.Session.HalfHours()

	daysRequired := weekendBaselineDays
	if isWeekday(start) {
		daysRequired = weekdayBaselineDays
	}
	sessionDays := make(map[string]struct{}, len(sessions))
	for _, other := range sessions {
		sessionDays[dateKey(other.StartAt.Time())] = struct{}{}
	}

	values, err := importReadings.Get(api, start, hh, debug)
	tick.Step()
	switch {
	case err == nil:
		c.SessionImport = values
		debug.printf("session import: %v", values)
	case errors.Is(err, ErrMissingReadings):
		// Incomplete, but the baseline is still worth calculating.
		debug.printf("session incomplete")
	default:
		return err
	}

	if exportReadings != nil {
		values, err := exportReadings.Get(api, start, hh, debug)
		tick.Step()
		switch {
		case err == nil:
			c.SessionExport = values
			debug.printf("session export: %v", values)
		case errors.Is(err, ErrMissingReadings):
			debug.printf("missing session export readings")
		default:
			return err
		}
	}

	days := 0
	for back := 1; back <= baselineLookbackDays && days < daysRequired; back++ {
		day := start.AddDate(0, 0, -back)
		if isWeekday(day) != isWeekday(start) {
			continue
		}
		if _, ok := sessionDays[dateKey(day)]; ok {
			continue
		}

		importValues, err := importReadings.Get(api, day, hh, debug)
		tick.Step()
		if errors.Is(err, ErrMissingReadings) {
			debug.printf("skipped day %s: missing readings", dateKey(day))
			continue
		} else if err != nil {
			return err
		}
		c.BaselineImport = append(c.BaselineImport, importValues)
		debug.printf("baseline day #%d %s import: %v", days, dateKey(day), importValues)

		if exportReadings != nil {
			exportValues, err := exportReadings.Get(api, day, hh, debug)
			tick.Step()
			switch {
			case err == nil:
				c.BaselineExport = append(c.BaselineExport, exportValues)
				debug.printf("baseline day #%d %s export: %v", days, dateKey(day), exportValues)
			case errors.Is(err, ErrMissingReadings):
				debug.printf("baseline day %s: missing export readings", dateKey(day))
			default:
				return err
			}
		}

		c.BaselineDays = append(c.BaselineDays, day)
		days++
	}

	if len(c.BaselineImport) == 0 {
		// No usable baseline; session totals, if any, still stand.
		return nil
	}
	c.Baseline = meanAcross(c.BaselineImport)
	if len(c.BaselineExport) > 0 {
		exportMean := meanAcross(c.BaselineExport)
		for i := range c.Baseline {
			c.Baseline[i] -= exportMean[i]
		}
	}

	if c.SessionImport == nil {
		return nil
	}
	session := append([]float64(nil), c.SessionImport...)
	if c.SessionExport != nil {
		for i := range session {
			session[i] -= c.SessionExport[i]
		}
	}

	// Saving is credited per settlement period and never goes negative.
	c.SavedKwh = make([]float64, hh)
	c.Points = make([]int, hh)
	for i := range session {
		saved := c.Baseline[i] - session[i]
		if saved < 0 {
			saved = 0
		}
		c.SavedKwh[i] = saved
		c.Points[i] = quantizePoints(saved * float64(c.Session.RewardPerKwhInOctoPoints))
	}
	return nil
}

// quantizePoints rounds raw points for one settlement period to the nearest
// multiple of the points quantum.
func quantizePoints(raw float64) int {
	return int(math.Round(raw/pointsQuantum)) * pointsQuantum
}

// meanAcross averages equal-length series element-wise.
func meanAcross(series [][]float64) []float64 {
	mean := make([]float64, len(series[0]))
	for _, s := range series {
		for i, v := range s {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(series))
	}
	return mean
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func ptr[T any](v T) *T { return &v }

// Result is one report row. Pointer fields are nil when the underlying
// quantity is not available yet.
type Result struct {
	Session  time.Time
	Import   *float64
	Export   *float64
	Baseline *float64
	Saved    *float64
	Reward   *int
	Earnings *float64
}

// Row summarises the calculation into a report row.
func (c *Calculation) Row() Result {
	row := Result{Session: c.Session.StartAt.Time()}
	if c.SessionImport != nil {
		row.Import = ptr(sum(c.SessionImport))
	}
	if c.SessionExport != nil {
		row.Export = ptr(sum(c.SessionExport))
	}
	if c.Baseline != nil {
		row.Baseline = ptr(sum(c.Baseline))
	}
	if c.SavedKwh != nil {
		row.Saved = ptr(sum(c.SavedKwh))
		reward := 0
		for _, p := range c.Points {
			reward += p
		}
		row.Reward = &reward
		row.Earnings = ptr(float64(reward) / octoPointsPerPound)
	}
	return row
}
