package main

import (
	"errors"
	"fmt"
	"log"
	"time"
)

const halfHour = 30 * time.Minute

// readingsPageSize is the fixed consumption page requested from the API. The
// window ends at the last requested slot, over-fetching backward so that
// baseline probes of nearby days at the same time of day hit the cache.
const readingsPageSize = 100

// ErrMissingReadings indicates a requested half-hour window could not be
// fully satisfied even after querying the API. Callers treat it as "data not
// yet available" rather than a failure; meter data can lag by up to a day.
var ErrMissingReadings = errors.New("missing readings")

// Logf is a printf-style debug sink. A nil Logf discards output.
type Logf func(format string, args ...any)

func (f Logf) printf(format string, args ...any) {
	if f != nil {
		f(format, args...)
	}
}

// ConsumptionAPI is the single operation the reading store needs from the
// Kraken client.
type ConsumptionAPI interface {
	HalfHourlyReadings(mpan, meter string, startAt time.Time, first int, before *string) ([]Reading, error)
}

// Readings is a cached table of half-hourly consumption for one meter point.
// requested records every slot a fetch has covered, whether or not the API
// had a value for it; a covered slot is never fetched again. Not safe for
// concurrent use: exactly one caller drives a store at a time.
type Readings struct {
	meterPoint ElectricityMeterPoint
	requested  map[time.Time]struct{}
	values     map[time.Time]float64
	warned     bool
}

func NewReadings(meterPoint ElectricityMeterPoint) *Readings {
	return &Readings{
		meterPoint: meterPoint,
		requested:  make(map[time.Time]struct{}),
		values:     make(map[time.Time]float64),
	}
}

// Get returns exactly hh chronological half-hour values starting at ts,
// fetching from the API when part of the window is not cached yet. A window
// that cannot be fully satisfied returns ErrMissingReadings.
func (r *Readings) Get(api ConsumptionAPI, ts time.Time, hh int, debug Logf) ([]float64, error) {
	if hh < 1 {
		return nil, fmt.Errorf("periods must be at least 1, got %d", hh)
	}
	ts = ts.UTC()
	if !ts.Truncate(halfHour).Equal(ts) {
		return nil, fmt.Errorf("start %s is not on a half-hour boundary", ts.Format(time.RFC3339))
	}

	if !r.covered(ts, hh) {
		if err := r.fetch(api, ts, hh, debug); err != nil {
			return nil, err
		}
	}

	values := make([]float64, hh)
	for i := range values {
		v, ok := r.values[ts.Add(time.Duration(i)*halfHour)]
		if !ok {
			return nil, ErrMissingReadings
		}
		values[i] = v
	}
	return values, nil
}

func (r *Readings) covered(ts time.Time, hh int) bool {
	for i := 0; i < hh; i++ {
		if _, ok := r.requested[ts.Add(time.Duration(i)*halfHour)]; !ok {
			return false
		}
	}
	return true
}

func (r *Readings) fetch(api ConsumptionAPI, ts time.Time, hh int, debug Logf) error {
	if len(r.meterPoint.Meters) == 0 {
		return fmt.Errorf("meter point %s has no meters", r.meterPoint.Mpan)
	}
	// Documented simplification: a meter point with several physical meters
	// is read through the first one only.
	if len(r.meterPoint.Meters) > 1 && !r.warned {
		log.Printf("Meter point %s has %d meters, using the first", r.meterPoint.Mpan, len(r.meterPoint.Meters))
		r.warned = true
	}

	startAt := ts.Add(-time.Duration(readingsPageSize-hh) * halfHour)
	debug.printf("fetching %s readings from %s", r.meterPoint.Mpan, startAt.Format(time.RFC3339))

	readings, err := api.HalfHourlyReadings(r.meterPoint.Mpan, r.meterPoint.Meters[0].ID, startAt, readingsPageSize, nil)
	if err != nil {
		return err
	}

	// Mark the covered span so gaps are final and never re-fetched. When the
	// API returned data the span is bounded by the last reading actually
	// received, since anything beyond it may settle later.
	markUntil := startAt.Add(time.Duration(readingsPageSize-1) * halfHour)
	if len(readings) > 0 {
		last := readings[len(readings)-1]
		markUntil = last.StartAt.Time()
		debug.printf("received %d readings from %s to %s", len(readings),
			readings[0].StartAt.Time().Format(time.RFC3339), last.EndAt.Time().Format(time.RFC3339))
	} else {
		debug.printf("received no readings")
	}
	for t := startAt; !t.After(markUntil); t = t.Add(halfHour) {
		r.requested[t] = struct{}{}
	}
	for _, reading := range readings {
		r.values[reading.StartAt.Time()] = float64(reading.Value)
	}
	return nil
}
