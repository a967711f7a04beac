package table

import (
	"strconv"
	"strings"
	"time"
)

// missingTokens are the spellings read as a missing value.
var missingTokens = map[string]bool{
	"": true, "#N/A": true, "#N/A N/A": true, "#NA": true, "-1.#IND": true,
	"-1.#QNAN": true, "-NaN": true, "-nan": true, "1.#IND": true, "1.#QNAN": true,
	"<NA>": true, "N/A": true, "NA": true, "NULL": true, "NaN": true,
	"None": true, "n/a": true, "nan": true, "null": true,
}

// IsMissing reports whether v spells a missing value.
func IsMissing(v string) bool {
	return missingTokens[strings.TrimSpace(v)]
}

// NormalizeMissing maps every missing spelling to the empty string.
func NormalizeMissing(v string) string {
	if IsMissing(v) {
		return ""
	}
	return v
}

// Inferred column type labels.
const (
	TypeEmpty   = "empty"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeDate    = "date"
	TypeText    = "text"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
}

// InferType labels a column by the narrowest type all its non-missing values fit.
func InferType(values []string) string {
	integer, number, boolean, date := true, true, true, true
	seen := 0

	for _, raw := range values {
		if IsMissing(raw) {
			continue
		}
		seen++
		v := strings.TrimSpace(raw)
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			integer = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			number = false
		}
		if !isBool(v) {
			boolean = false
		}
		if !isDate(v) {
			date = false
		}
	}

	switch {
	case seen == 0:
		return TypeEmpty
	case integer:
		return TypeInteger
	case number:
		return TypeNumber
	case boolean:
		return TypeBoolean
	case date:
		return TypeDate
	default:
		return TypeText
	}
}

// Samples returns up to n non-missing values in order.
func Samples(values []string, n int) []string {
	out := make([]string, 0, n)
	for _, v := range values {
		if len(out) == n {
			break
		}
		if !IsMissing(v) {
			out = append(out, v)
		}
	}
	return out
}

func isBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false":
		return true
	}
	return false
}

func isDate(v string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
