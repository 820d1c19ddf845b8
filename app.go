// app.go
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Config contains configuration for the application.
type Config struct {
	APIKey         string
	Account        string
	OutputCSV      string
	CacheDirectory string
	Debug          bool
}

// App manages application dependencies and logic.
type App struct {
	Config     *Config
	HTTPClient *http.Client
	Kraken     *KrakenService

	debug Logf
}

func NewApp(config *Config) *App {
	rt := http.DefaultTransport

	if config.CacheDirectory != "disable" {
		cacheDir := config.CacheDirectory
		if cacheDir == "" {
			cacheDir = os.TempDir()
		}
		err := os.MkdirAll(cacheDir, 0755)
		if err != nil {
			log.Fatalf("failed to create cache dir: %v", err)
		}

		rt = &CachingRoundTripper{
			UnderlyingTransport: http.DefaultTransport, CacheDir: path.Clean(cacheDir),
		}

		log.Printf("HTTP caching enabled in directory: %s", cacheDir)
	}

	var debug Logf
	if config.Debug {
		debug = log.Printf
	}

	return &App{
		Config:     config,
		HTTPClient: &http.Client{Transport: rt},
		Kraken:     NewKrakenService(rt),
		debug:      debug,
	}
}

func (app *App) Run() error {
	log.Println("Authenticating...")
	if err := app.Kraken.Authenticate(app.Config.APIKey); err != nil {
		if errors.Is(err, ErrAuthentication) {
			return fmt.Errorf("authentication error, check your API key: %w", err)
		}
		return err
	}

	account := app.Config.Account
	if account == "" {
		accounts, err := app.Kraken.Accounts()
		if err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}
		if len(accounts) == 0 {
			return fmt.Errorf("no accounts found")
		}
		account = accounts[0].Number
	}
	log.Printf("Using account %s", account)

	res, err := app.Kraken.SavingSessions(account)
	if err != nil {
		return fmt.Errorf("failed to list saving sessions: %w", err)
	}
	if !res.Account.HasJoinedCampaign {
		return fmt.Errorf("account %s has not joined saving sessions", account)
	}
	if res.Account.SignedUpMeterPoint == "" {
		return fmt.Errorf("account %s has no meter point signed up for saving sessions", account)
	}

	sessions := relevantSessions(res, time.Now())
	if len(sessions) == 0 {
		return fmt.Errorf("not joined any saving sessions yet")
	}

	importPoint, exportPoint, err := app.resolveMeterPoints(account, res.Account.SignedUpMeterPoint)
	if err != nil {
		return err
	}

	importReadings := NewReadings(*importPoint)
	var exportReadings *Readings
	if exportPoint != nil {
		exportReadings = NewReadings(*exportPoint)
	} else {
		log.Println("Import meter only")
	}

	var rows []Result
	for i, ss := range sessions {
		start := ss.StartAt.Time()
		daysRequired := weekendBaselineDays
		if isWeekday(start) {
			daysRequired = weekdayBaselineDays
		}
		// One step per session fetch plus import and export per baseline day.
		steps := 2 + 2*daysRequired
		bar := progressbar.NewOptions(steps,
			progressbar.OptionSetDescription(fmt.Sprintf("Session #%d (%s)", i+1, start.Format("Jan 02"))),
			progressbar.OptionClearOnFinish(),
		)
		tick := NewProgress(steps, func(done, total int) {
			_ = bar.Set(done)
		})

		calc := NewCalculation(ss)
		if err := calc.Calculate(app.Kraken, res.Sessions, importReadings, exportReadings, tick, app.debug); err != nil {
			return fmt.Errorf("calculating session %s: %w", ss.Code, err)
		}
		tick.Finish()
		_ = bar.Finish()

		rows = append(rows, calc.Row())
	}

	printResults(os.Stdout, rows)

	for _, row := range rows {
		if row.Reward == nil {
			log.Printf("Session on %s is awaiting readings...", row.Session.Format("2006/01/02"))
		}
	}

	if app.Config.OutputCSV != "" {
		if err := writeCSV(app.Config.OutputCSV, rows); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		log.Printf("Wrote CSV to %s", app.Config.OutputCSV)
	}

	return nil
}

// relevantSessions picks the sessions worth calculating: events the account
// joined, plus any event that has not started yet.
func relevantSessions(res *SavingSessionsResult, now time.Time) []SavingSession {
	joined := make(map[string]struct{}, len(res.Account.JoinedEvents))
	for _, ev := range res.Account.JoinedEvents {
		joined[ev.EventID] = struct{}{}
	}

	var sessions []SavingSession
	for _, ss := range res.Sessions {
		if _, ok := joined[ss.ID]; ok || ss.StartAt.Time().After(now) {
			sessions = append(sessions, ss)
		}
	}
	return sessions
}

// resolveMeterPoints maps the account's electricity agreements onto an import
// and optionally an export meter point. The signed-up meter point always
// serves import; a meter point on an EXPORT-direction product serves export.
func (app *App) resolveMeterPoints(account, signedUpMpan string) (*ElectricityMeterPoint, *ElectricityMeterPoint, error) {
	agreements, err := app.Kraken.Agreements(account)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list agreements: %w", err)
	}
	if len(agreements) == 0 {
		return nil, nil, fmt.Errorf("no agreements on account")
	}

	var importPoint, exportPoint *ElectricityMeterPoint
	for i := range agreements {
		agreement := agreements[i]
		app.debug.printf("agreement: mpan %s product %s", agreement.MeterPoint.Mpan, agreement.Tariff.ProductCode)

		if agreement.MeterPoint.Mpan == signedUpMpan {
			importPoint = &agreements[i].MeterPoint
			continue
		}

		product, err := app.Kraken.EnergyProduct(agreement.Tariff.ProductCode)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to look up product %s: %w", agreement.Tariff.ProductCode, err)
		}
		if product.Direction == "EXPORT" {
			exportPoint = &agreements[i].MeterPoint
		} else if importPoint == nil {
			importPoint = &agreements[i].MeterPoint
		}
	}

	if importPoint == nil {
		return nil, nil, fmt.Errorf("no import meter found")
	}
	return importPoint, exportPoint, nil
}

func printResults(w io.Writer, rows []Result) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Session\tImport\tExport\tBaseline\tSaved\tReward\tEarnings")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Session.Format("2006/01/02 15:04"),
			kwhCell(row.Import),
			kwhCell(row.Export),
			kwhCell(row.Baseline),
			kwhCell(row.Saved),
			rewardCell(row.Reward),
			earningsCell(row.Earnings),
		)
	}
	tw.Flush()
}

func kwhCell(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f kWh", *v)
}

func rewardCell(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func earningsCell(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("£%.2f", *v)
}
