package marketdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadClosesCSV reads benchmark closes from a CSV file with "date,close"
// rows. Dates are YYYY-MM-DD. A header row is skipped when the first
// field does not parse as a date.
func LoadClosesCSV(path string) ([]DatedClose, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open closes file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read closes file %s: %w", path, err)
	}

	var out []DatedClose
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("%s line %d: expected date,close", path, i+1)
		}
		date, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("%s line %d: invalid date %q: %w", path, i+1, row[0], err)
		}
		close, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: invalid close %q: %w", path, i+1, row[1], err)
		}
		out = append(out, DatedClose{Date: date, Close: close})
	}
	return out, nil
}
