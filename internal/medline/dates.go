package medline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var shortMonths = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// resolveDate converts a Year/Month/Day element group to a date. The year is
// required; unparseable or out-of-range months and days degrade to 1 with a
// warning. The range checks keep time.Date from normalizing bad values into
// a different month or year.
func resolveDate(e *dateElement, logger zerolog.Logger) (time.Time, error) {
	year, err := strconv.Atoi(strings.TrimSpace(e.Year))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date year %q: %w", e.Year, err)
	}

	month := time.January
	if text := strings.TrimSpace(e.Month); text != "" {
		if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= 12 {
			month = time.Month(n)
		} else if m, ok := shortMonths[strings.ToLower(text)]; ok {
			month = m
		} else {
			logger.Warn().Str("month", text).Msg("could not parse date month")
		}
	}

	day := 1
	if text := strings.TrimSpace(e.Day); text != "" {
		if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= 31 {
			day = n
		} else {
			logger.Warn().Str("day", text).Msg("could not parse date day")
		}
	}

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
}
