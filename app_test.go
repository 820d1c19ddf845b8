package main

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevantSessions(t *testing.T) {
	now := time.Date(2023, 11, 15, 12, 0, 0, 0, time.UTC)
	past := apiTime(now.AddDate(0, 0, -7))
	future := apiTime(now.AddDate(0, 0, 2))

	res := &SavingSessionsResult{
		Account: SavingSessionsAccount{
			JoinedEvents: []JoinedEvent{{EventID: "1"}},
		},
		Sessions: []SavingSession{
			{ID: "1", StartAt: past},   // joined
			{ID: "2", StartAt: past},   // not joined and over: skipped
			{ID: "3", StartAt: future}, // upcoming: previewed even if not joined yet
		},
	}

	sessions := relevantSessions(res, now)
	require.Len(t, sessions, 2)
	assert.Equal(t, "1", sessions[0].ID)
	assert.Equal(t, "3", sessions[1].ID)
}

func TestResolveMeterPoints(t *testing.T) {
	service := NewKrakenService(&MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			query, variables := decodeGraphQLRequest(t, req)

			switch {
			case strings.Contains(query, "electricityAgreements"):
				assert.Equal(t, "A-12345678", variables["account"])
				return jsonResponse(`{
				  "data": {
				    "account": {
				      "electricityAgreements": [
				        {
				          "id": 1,
				          "validFrom": "2022-01-01T00:00:00+00:00",
				          "validTo": null,
				          "tariff": {"productCode": "FLEX-22"},
				          "meterPoint": {
				            "id": "9",
				            "mpan": "1111111111111",
				            "meters": [{"id": "123", "serialNumber": "S1"}]
				          }
				        },
				        {
				          "id": 2,
				          "validFrom": "2022-01-01T00:00:00+00:00",
				          "validTo": null,
				          "tariff": {"productCode": "OUTGOING-22"},
				          "meterPoint": {
				            "id": "10",
				            "mpan": "2222222222222",
				            "meters": [{"id": "456", "serialNumber": "S2"}]
				          }
				        }
				      ]
				    }
				  }
				}`), nil
			case strings.Contains(query, "energyProduct"):
				assert.Equal(t, "OUTGOING-22", variables["code"])
				return jsonResponse(`{
				  "data": {
				    "energyProduct": {"fullName": "Outgoing Octopus", "direction": "EXPORT"}
				  }
				}`), nil
			default:
				t.Fatalf("unhandled query: %s", query)
				return nil, nil
			}
		},
	})

	app := &App{Config: &Config{}, Kraken: service}

	importPoint, exportPoint, err := app.resolveMeterPoints("A-12345678", "1111111111111")
	require.NoError(t, err)

	require.NotNil(t, importPoint)
	assert.Equal(t, "1111111111111", importPoint.Mpan)
	require.NotNil(t, exportPoint)
	assert.Equal(t, "2222222222222", exportPoint.Mpan)
}

func TestResolveMeterPointsNoAgreements(t *testing.T) {
	service := NewKrakenService(&MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(`{"data":{"account":{"electricityAgreements":[]}}}`), nil
		},
	})

	app := &App{Config: &Config{}, Kraken: service}

	_, _, err := app.resolveMeterPoints("A-12345678", "1111111111111")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no agreements")
}
