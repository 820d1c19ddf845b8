// kraken.go
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const krakenBaseURL = "https://api.octopus.energy/v1/graphql/"

// authErrorCode is the Kraken error code for a rejected API key or token.
const authErrorCode = "KT-CT-1139"

// ErrAuthentication marks a credential rejection from the API. It is fatal
// and non-retryable; nothing below the top-level pipeline recovers from it.
var ErrAuthentication = errors.New("authentication rejected")

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		ErrorCode        string `json:"errorCode"`
		ErrorDescription string `json:"errorDescription"`
	} `json:"extensions"`
}

// APIError carries GraphQL-level errors returned by the Kraken API.
type APIError struct {
	Errors []graphQLError
}

func (e *APIError) Error() string {
	messages := make([]string, len(e.Errors))
	for i, ge := range e.Errors {
		messages[i] = ge.Message
	}
	return fmt.Sprintf("kraken api error: %s", strings.Join(messages, "; "))
}

// KrakenService handles interactions with the Octopus Energy GraphQL API.
type KrakenService struct {
	BaseURL string
	Client  *http.Client

	token string
}

// NewKrakenService creates an unauthenticated service over the given
// transport. Call Authenticate before any account-scoped query.
func NewKrakenService(rt http.RoundTripper) *KrakenService {
	return &KrakenService{
		BaseURL: krakenBaseURL,
		Client:  &http.Client{Transport: rt},
	}
}

func (s *KrakenService) query(operation string, variables map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{
		"query":     operation,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("encoding kraken request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.BaseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building kraken request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", s.token)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("querying kraken: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading kraken response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kraken returned %s: %s", resp.Status, data)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decoding kraken response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		for _, ge := range envelope.Errors {
			if ge.Extensions.ErrorCode == authErrorCode {
				return fmt.Errorf("%w: %s", ErrAuthentication, ge.Extensions.ErrorDescription)
			}
		}
		return &APIError{Errors: envelope.Errors}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decoding kraken data: %w", err)
		}
	}
	return nil
}

const authenticateQuery = `mutation krakenTokenAuthentication($key: String!) {
  obtainKrakenToken(input: {APIKey: $key}) {
    token
  }
}`

// Authenticate exchanges the API key for a Kraken token used on all
// subsequent requests.
func (s *KrakenService) Authenticate(apiKey string) error {
	var data struct {
		ObtainKrakenToken struct {
			Token string `json:"token"`
		} `json:"obtainKrakenToken"`
	}
	if err := s.query(authenticateQuery, map[string]any{"key": apiKey}, &data); err != nil {
		return err
	}
	s.token = data.ObtainKrakenToken.Token
	return nil
}

const accountsQuery = `query accounts {
  viewer {
    accounts {
      number
    }
  }
}`

// Accounts lists the account numbers visible to the authenticated key.
func (s *KrakenService) Accounts() ([]Account, error) {
	var data struct {
		Viewer struct {
			Accounts []Account `json:"accounts"`
		} `json:"viewer"`
	}
	if err := s.query(accountsQuery, nil, &data); err != nil {
		return nil, err
	}
	return data.Viewer.Accounts, nil
}

const agreementsQuery = `query agreements($account: String!) {
  account(accountNumber: $account) {
    electricityAgreements {
      id
      validFrom
      validTo
      tariff {
        ... on TariffType {
          productCode
        }
      }
      meterPoint {
        id
        mpan
        meters {
          id
          serialNumber
        }
      }
    }
  }
}`

// Agreements lists the electricity agreements on an account, including each
// agreement's meter point and tariff product code.
func (s *KrakenService) Agreements(account string) ([]Agreement, error) {
	var data struct {
		Account struct {
			ElectricityAgreements []Agreement `json:"electricityAgreements"`
		} `json:"account"`
	}
	if err := s.query(agreementsQuery, map[string]any{"account": account}, &data); err != nil {
		return nil, err
	}
	return data.Account.ElectricityAgreements, nil
}

const energyProductQuery = `query product($code: String!) {
  energyProduct(code: $code) {
    direction
    fullName
  }
}`

// EnergyProduct looks up a product by code; Direction distinguishes import
// from export tariffs.
func (s *KrakenService) EnergyProduct(code string) (*EnergyProduct, error) {
	var data struct {
		EnergyProduct *EnergyProduct `json:"energyProduct"`
	}
	if err := s.query(energyProductQuery, map[string]any{"code": code}, &data); err != nil {
		return nil, err
	}
	if data.EnergyProduct == nil {
		return nil, fmt.Errorf("product %s not found", code)
	}
	return data.EnergyProduct, nil
}

const savingSessionsQuery = `query savingSessions($account: String!) {
  savingSessions {
    account(accountNumber: $account) {
      hasJoinedCampaign
      signedUpMeterPoint
      joinedEvents {
        eventId
      }
    }
    events {
      id
      code
      startAt
      endAt
      rewardPerKwhInOctoPoints
    }
  }
}`

// SavingSessions returns the account's campaign state and all known events.
func (s *KrakenService) SavingSessions(account string) (*SavingSessionsResult, error) {
	var data struct {
		SavingSessions SavingSessionsResult `json:"savingSessions"`
	}
	if err := s.query(savingSessionsQuery, map[string]any{"account": account}, &data); err != nil {
		return nil, err
	}
	return &data.SavingSessions, nil
}

const halfHourlyReadingsQuery = `query halfHourlyReadings($mpan: ID, $meter: Int, $startAt: DateTime!, $first: Int, $before: String) {
  meterPoints(mpan: $mpan) {
    meters(id: $meter) {
      consumption(startAt: $startAt, grouping: HALF_HOUR, timezone: "UTC", first: $first, before: $before) {
        edges {
          node {
            value
            startAt
            endAt
          }
        }
      }
    }
  }
}`

// HalfHourlyReadings fetches up to first half-hour readings for a meter,
// chronologically ordered, starting at startAt. The meter id is the GraphQL
// meter id, not the serial number.
func (s *KrakenService) HalfHourlyReadings(mpan, meter string, startAt time.Time, first int, before *string) ([]Reading, error) {
	meterID, err := strconv.Atoi(meter)
	if err != nil {
		return nil, fmt.Errorf("meter id %q is not numeric: %w", meter, err)
	}

	variables := map[string]any{
		"mpan":    mpan,
		"meter":   meterID,
		"startAt": startAt.UTC().Format(time.RFC3339),
		"first":   first,
	}
	if before != nil {
		variables["before"] = *before
	}

	var data struct {
		MeterPoints struct {
			Meters []struct {
				Consumption struct {
					Edges []struct {
						Node Reading `json:"node"`
					} `json:"edges"`
				} `json:"consumption"`
			} `json:"meters"`
		} `json:"meterPoints"`
	}
	if err := s.query(halfHourlyReadingsQuery, variables, &data); err != nil {
		return nil, err
	}
	if len(data.MeterPoints.Meters) == 0 {
		return nil, fmt.Errorf("meter %s not found on meter point %s", meter, mpan)
	}

	edges := data.MeterPoints.Meters[0].Consumption.Edges
	readings := make([]Reading, len(edges))
	for i, edge := range edges {
		readings[i] = edge.Node
	}
	return readings, nil
}
