package usecase

import (
	"strconv"
	"strings"

	"github.com/brani-milo/kerberus-sub000/internal/core/domain"
)

// neutralYear is the fixed default when no usable year is present;
// it lands mid-range so the recency term neither boosts nor buries
// undated documents.
const neutralYear = 2000

// extractYear resolves a document year through an ordered fallback chain:
// nested metadata.year, explicit year field, then date strings in ISO
// (2024-03-15), slash (2024/03/15) and dotted day-first (15.03.2024)
// forms, and finally the neutral default. Total: always returns a year.
func extractYear(payload map[string]any, currentYear int) int {
	if y, ok := payloadYear(metadataMap(payload), "year", currentYear); ok {
		return y
	}
	if y, ok := payloadYear(payload, "year", currentYear); ok {
		return y
	}

	for _, source := range []map[string]any{metadataMap(payload), payload} {
		for _, field := range []string{"date", "date_decided"} {
			if y, ok := yearFromDateString(domain.PayloadString(source, field), currentYear); ok {
				return y
			}
		}
	}

	return neutralYear
}

func metadataMap(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	if meta, ok := payload["metadata"].(map[string]any); ok {
		return meta
	}
	return nil
}

func payloadYear(payload map[string]any, key string, currentYear int) (int, bool) {
	raw := domain.PayloadString(payload, key)
	if raw == "" {
		return 0, false
	}
	// Numeric payloads round-trip through JSON as floats ("2021" or "2021.0").
	raw = strings.TrimSuffix(raw, ".0")
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	if !plausibleYear(year, currentYear) {
		return 0, false
	}
	return year, true
}

func yearFromDateString(date string, currentYear int) (int, bool) {
	if date == "" {
		return 0, false
	}

	var candidate string
	switch {
	case strings.Contains(date, "-"):
		candidate = strings.SplitN(date, "-", 2)[0]
	case strings.Contains(date, "/"):
		candidate = strings.SplitN(date, "/", 2)[0]
	case strings.Contains(date, "."):
		parts := strings.Split(date, ".")
		candidate = parts[len(parts)-1]
	default:
		return 0, false
	}

	year, err := strconv.Atoi(strings.TrimSpace(candidate))
	if err != nil || !plausibleYear(year, currentYear) {
		return 0, false
	}
	return year, true
}

func plausibleYear(year, currentYear int) bool {
	return year >= 1900 && year <= currentYear+1
}
