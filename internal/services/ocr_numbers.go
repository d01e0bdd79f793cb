package services

import (
	"math"
	"strconv"
	"strings"

	"github.com/tibiamarket/tracker/internal/models"
)

// DigitWhitelist restricts OCR to characters that appear in market numbers
const DigitWhitelist = "0123456789,.k"

// normalizeOCRDigits replaces common OCR misreads of digits
func normalizeOCRDigits(s string) string {
	r := strings.NewReplacer("O", "0", "o", "0", "l", "1", "I", "1", "|", "1", "S", "5")
	return r.Replace(s)
}

// NormalizeOCRNumber turns OCR output like "1,200" or "1.5k" into plain digits
// ("1200", "1500"). Separators are dropped; a trailing "k" multiplies by 1000
// per k. With a "k" suffix a single separator followed by exactly three
// digits is a thousands separator ("1,200k"), any other single separator is a
// decimal point ("1.5k"). Values that do not fit in an int64 normalize to "".
// The result is not guaranteed to be numeric.
func NormalizeOCRNumber(text string) string {
	s := strings.Join(strings.Fields(text), "")
	s = normalizeOCRDigits(s)
	s = strings.ToLower(s)

	var multiplier int64 = 1
	for strings.HasSuffix(s, "k") {
		if multiplier > math.MaxInt64/1000 {
			return ""
		}
		multiplier *= 1000
		s = strings.TrimSuffix(s, "k")
	}

	if multiplier > 1 {
		decimal := strings.ReplaceAll(s, ",", ".")
		if strings.Count(decimal, ".") == 1 && len(decimal)-strings.Index(decimal, ".")-1 != 3 {
			v, err := strconv.ParseFloat(decimal, 64)
			if err == nil && v >= 0 {
				scaled := math.Round(v * float64(multiplier))
				if scaled >= math.MaxInt64 {
					return ""
				}
				return strconv.FormatInt(int64(scaled), 10)
			}
		}
	}

	s = strings.NewReplacer(",", "", ".", "").Replace(s)
	if multiplier > 1 {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			if v > math.MaxInt64/multiplier {
				return ""
			}
			return strconv.FormatInt(v*multiplier, 10)
		}
	}
	return s
}

// ParseOCRInt normalizes OCR output and parses it. Anything that is not a
// non-negative integer after normalization is reported as unreadable.
func ParseOCRInt(text string) models.ReadableInt {
	normalized := NormalizeOCRNumber(text)
	if normalized == "" {
		return models.Missing()
	}
	v, err := strconv.Atoi(normalized)
	if err != nil || v < 0 {
		return models.Missing()
	}
	return models.Readable(v)
}
