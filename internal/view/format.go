package view

import (
	"fmt"
	"strings"
	"time"
)

// Placeholders used when a field is absent. All display defaulting goes
// through these helpers so no page ever renders an empty value.
const (
	PlaceholderNA   = "N/A"
	PlaceholderDash = "-"
)

// OrNA returns the value, or "N/A" when it is blank.
func OrNA(value string) string {
	if strings.TrimSpace(value) == "" {
		return PlaceholderNA
	}
	return value
}

// OrDash returns the value, or "-" when it is blank.
func OrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return PlaceholderDash
	}
	return value
}

// Price formats a price in dinars, or "N/A" for a zero value.
func Price(amount float64) string {
	if amount == 0 {
		return PlaceholderNA
	}
	return fmt.Sprintf("%.2f DT", amount)
}

// Date formats a timestamp for display, or "N/A" when nil/zero. It accepts
// both time.Time and *time.Time so templates can pass either.
func Date(v interface{}) string {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case *time.Time:
		if x == nil {
			return PlaceholderNA
		}
		t = *x
	default:
		return PlaceholderNA
	}
	if t.IsZero() {
		return PlaceholderNA
	}
	return t.Format("02/01/2006 15:04")
}

// StatusBucket classifies a machine's free-text status into one of the four
// display buckets by case-insensitive substring match, the same way the
// status badge colors are chosen.
func StatusBucket(status string) string {
	s := strings.ToLower(status)
	switch {
	case strings.Contains(s, "termin") || strings.Contains(s, "complet"):
		return "termine"
	case strings.Contains(s, "cours") || strings.Contains(s, "progress"):
		return "en-cours"
	case strings.Contains(s, "probl") || strings.Contains(s, "bloqu") || strings.Contains(s, "block"):
		return "probleme"
	default:
		return "secondary"
	}
}
