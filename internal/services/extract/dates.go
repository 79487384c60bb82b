package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/leadharvest/internal/models"
)

// DateTokens are the relative day words the CRM renders instead of a date
type DateTokens struct {
	Today     string
	Yesterday string
}

var feedDatePattern = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})(?:[\sT,]+(\d{1,2}):(\d{2})(?::(\d{2})(?:\.(\d{1,3}))?)?)?`)

// ResolveDate converts a rendered feed date to unix seconds in loc. Relative day
// words are resolved against now. ok is false when no date can be read.
func ResolveDate(raw string, now time.Time, tokens DateTokens, loc *time.Location) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	if loc == nil {
		loc = time.UTC
	}

	local := now.In(loc)
	value := raw
	if tokens.Today != "" {
		value = strings.ReplaceAll(value, tokens.Today, local.Format("02.01.2006"))
	}
	if tokens.Yesterday != "" {
		value = strings.ReplaceAll(value, tokens.Yesterday, local.AddDate(0, 0, -1).Format("02.01.2006"))
	}

	m := feedDatePattern.FindStringSubmatch(value)
	if m == nil {
		return 0, false
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	second, _ := strconv.Atoi(m[6])

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return 0, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	// time.Date normalises 31.02 into March; reject it instead
	if t.Day() != day || int(t.Month()) != month {
		return 0, false
	}
	return t.Unix(), true
}

// NormalizeDates fills DateISO for every message whose date can be read, using one
// reference time for the whole batch
func NormalizeDates(messages []models.Message, now time.Time, tokens DateTokens, loc *time.Location) {
	for i := range messages {
		if ts, ok := ResolveDate(messages[i].Date, now, tokens, loc); ok {
			messages[i].DateISO = &ts
		} else {
			messages[i].DateISO = nil
		}
	}
}
