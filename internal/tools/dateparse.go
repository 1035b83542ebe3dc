package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Natural-language date parsing for spoken dates. Heuristics only: anything
// unrecognized falls through as the raw string so the booking backend's own
// validation produces the authoritative error.

var (
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	numberRe  = regexp.MustCompile(`\d+`)
)

// Ordered so longer names win before their abbreviations.
var monthNames = []struct {
	name  string
	month int
}{
	{"january", 1}, {"february", 2}, {"march", 3}, {"april", 4},
	{"june", 6}, {"july", 7}, {"august", 8}, {"september", 9},
	{"october", 10}, {"november", 11}, {"december", 12},
	{"jan", 1}, {"feb", 2}, {"mar", 3}, {"apr", 4}, {"may", 5},
	{"jun", 6}, {"jul", 7}, {"aug", 8}, {"sep", 9},
	{"oct", 10}, {"nov", 11}, {"dec", 12},
}

// ParseDate normalizes a spoken date to YYYY-MM-DD relative to now.
// Supported inputs: "today"/"tomorrow", YYYY-MM-DD passthrough, month names
// ("20th October 2025", "October 20"), DD MM YYYY, DD MM (current year),
// 2-digit years windowed into 2000-2099. Unparseable input returns raw.
func ParseDate(raw string, now time.Time) string {
	dateStr := strings.ToLower(strings.TrimSpace(raw))
	today := now

	if strings.Contains(dateStr, "tomorrow") {
		return today.AddDate(0, 0, 1).Format("2006-01-02")
	}
	if strings.Contains(dateStr, "today") {
		return today.Format("2006-01-02")
	}
	if isoDateRe.MatchString(dateStr) {
		return dateStr
	}

	month := 0
	for _, m := range monthNames {
		if strings.Contains(dateStr, m.name) {
			month = m.month
			break
		}
	}

	numbers := numberRe.FindAllString(dateStr, -1)

	if month > 0 && len(numbers) >= 1 {
		day, _ := strconv.Atoi(numbers[0])
		year := today.Year()
		if len(numbers) >= 2 {
			year, _ = strconv.Atoi(numbers[1])
			if year < 100 {
				year += 2000
			}
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	}

	if len(numbers) >= 3 {
		day, _ := strconv.Atoi(numbers[0])
		m, _ := strconv.Atoi(numbers[1])
		year, _ := strconv.Atoi(numbers[2])
		if year < 100 {
			year += 2000
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, m, day)
	}

	if len(numbers) == 2 {
		day, _ := strconv.Atoi(numbers[0])
		m, _ := strconv.Atoi(numbers[1])
		return fmt.Sprintf("%04d-%02d-%02d", today.Year(), m, day)
	}

	return raw
}

// ParseHour extracts the 24-hour hour from a spoken time range like "2 PM",
// "10-11 AM" or "between 2 and 3 PM". The first number names the hour; a PM
// marker shifts it into the afternoon.
func ParseHour(timeRange string) (int, error) {
	numbers := numberRe.FindAllString(timeRange, -1)
	if len(numbers) == 0 {
		return 0, fmt.Errorf("no hour found in %q", timeRange)
	}

	hour, err := strconv.Atoi(numbers[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", timeRange)
	}

	if strings.Contains(strings.ToLower(timeRange), "pm") && hour < 12 {
		hour += 12
	}
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("hour %d out of range", hour)
	}
	return hour, nil
}
