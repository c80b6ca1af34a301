package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadReturnsCSV reads a daily return series from a CSV file with
// "date,return" rows. Dates are YYYY-MM-DD, returns are fractional. A
// header row is skipped when the first field does not parse as a date.
func LoadReturnsCSV(path string) ([]DailyReturn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open returns file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read returns file %s: %w", path, err)
	}

	var out []DailyReturn
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("%s line %d: expected date,return", path, i+1)
		}
		date, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("%s line %d: invalid date %q: %w", path, i+1, row[0], err)
		}
		ret, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: invalid return %q: %w", path, i+1, row[1], err)
		}
		out = append(out, DailyReturn{Date: date, Return: ret})
	}
	return out, nil
}
