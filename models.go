package main

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
)

// apiTime parses Kraken timestamps. Some fields arrive as
// "2021-11-12 03:30:00+00:00" with a space instead of 'T', so the value is
// normalized before strfmt parsing. Times are kept in UTC.
type apiTime time.Time

func (t *apiTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	dt, err := strfmt.ParseDateTime(strings.Replace(s, " ", "T", 1))
	if err != nil {
		return err
	}
	*t = apiTime(time.Time(dt).UTC())
	return nil
}

func (t apiTime) Time() time.Time { return time.Time(t) }

// apiFloat parses consumption values, which the API returns as either a JSON
// number or a quoted decimal string.
type apiFloat float64

func (f *apiFloat) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseFloat(strings.Trim(string(data), `"`), 64)
	if err != nil {
		return err
	}
	*f = apiFloat(v)
	return nil
}

type Account struct {
	Number string `json:"number"`
}

type ElectricityMeter struct {
	ID           string `json:"id"`
	SerialNumber string `json:"serialNumber"`
}

type ElectricityMeterPoint struct {
	ID     string             `json:"id"`
	Mpan   string             `json:"mpan"`
	Meters []ElectricityMeter `json:"meters"`
}

type Tariff struct {
	ProductCode string `json:"productCode"`
}

type Agreement struct {
	ID         int                   `json:"id"`
	ValidFrom  apiTime               `json:"validFrom"`
	ValidTo    *apiTime              `json:"validTo"`
	Tariff     Tariff                `json:"tariff"`
	MeterPoint ElectricityMeterPoint `json:"meterPoint"`
}

type EnergyProduct struct {
	FullName  string `json:"fullName"`
	Direction string `json:"direction"`
}

// Reading is one settled half-hour of consumption, [StartAt, EndAt).
type Reading struct {
	StartAt apiTime  `json:"startAt"`
	EndAt   apiTime  `json:"endAt"`
	Value   apiFloat `json:"value"`
}

// SavingSession is one demand-flexibility event.
type SavingSession struct {
	ID                       string  `json:"id"`
	Code                     string  `json:"code"`
	StartAt                  apiTime `json:"startAt"`
	EndAt                    apiTime `json:"endAt"`
	RewardPerKwhInOctoPoints int     `json:"rewardPerKwhInOctoPoints"`
}

// HalfHours is the session duration in settlement periods.
func (s SavingSession) HalfHours() int {
	return int(s.EndAt.Time().Sub(s.StartAt.Time()) / (30 * time.Minute))
}

type JoinedEvent struct {
	EventID string `json:"eventId"`
}

type SavingSessionsAccount struct {
	HasJoinedCampaign  bool          `json:"hasJoinedCampaign"`
	SignedUpMeterPoint string        `json:"signedUpMeterPoint"`
	JoinedEvents       []JoinedEvent `json:"joinedEvents"`
}

// SavingSessionsResult is the account's campaign state plus all known events.
type SavingSessionsResult struct {
	Account  SavingSessionsAccount `json:"account"`
	Sessions []SavingSession       `json:"events"`
}
