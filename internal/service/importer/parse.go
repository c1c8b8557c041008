package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
}

// parseDate reads a sheet date in the operation's zone. Day-first layouts are
// used for slashed dates.
func parseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// parseAmount reads a monetary cell. Spaces are thousands separators; a comma
// is a decimal separator unless it is followed by exactly three digits or a
// dot also appears.
func parseAmount(value string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, value)
	if cleaned == "" {
		return decimal.Zero, nil
	}

	if strings.Contains(cleaned, ",") {
		last := cleaned[strings.LastIndex(cleaned, ",")+1:]
		if strings.Contains(cleaned, ".") || len(last) == 3 {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", value)
	}
	return d, nil
}

// parseInt reads a count cell; empty cells are zero.
func parseInt(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	d, err := parseAmount(value)
	if err != nil {
		return 0, err
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("expected a whole number, got %q", value)
	}
	return int(d.IntPart()), nil
}

// parseFloat reads a measurement cell; empty cells are zero.
func parseFloat(value string) (float64, error) {
	if value == "" {
		return 0, nil
	}
	d, err := parseAmount(value)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}
