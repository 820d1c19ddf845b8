package main

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// formatFloat renders an optional value with the given precision. Absent
// quantities become empty cells rather than zeroes.
func formatFloat(val *float64, precision int) string {
	if val == nil {
		return ""
	}
	return strconv.FormatFloat(*val, 'f', precision, 64)
}

func formatInt(val *int) string {
	if val == nil {
		return ""
	}
	return strconv.Itoa(*val)
}

// writeCSV writes one row per session to a CSV file.
func writeCSV(filename string, rows []Result) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Session",
		"Import_KWh",
		"Export_KWh",
		"Baseline_KWh",
		"Saved_KWh",
		"Reward_Points",
		"Earnings_GBP",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.Session.Format(time.RFC3339),
			formatFloat(row.Import, 3),
			formatFloat(row.Export, 3),
			formatFloat(row.Baseline, 3),
			formatFloat(row.Saved, 3),
			formatInt(row.Reward),
			formatFloat(row.Earnings, 2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}
