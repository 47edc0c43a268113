package dataprocessing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveAccents decomposes text (NFKD) and drops the combining marks, so
// "bogotá" becomes "bogota". Case is left untouched.
func RemoveAccents(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

// NormalizeName lower-cases text, collapses whitespace runs into a single
// space, trims it and removes accents.
func NormalizeName(text string) string {
	return RemoveAccents(strings.Join(strings.Fields(strings.ToLower(text)), " "))
}

// ParseInt parses an integer cell. Whole-valued decimals such as "5001.0"
// are accepted since spreadsheet exports often write integer columns that way.
func ParseInt(value string) (int64, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid integer %q", value)
	}
	return int64(f), nil
}

// CastInt rewrites an integer cell in canonical form ("5001.0" -> "5001")
func CastInt(value string) (string, error) {
	n, err := ParseInt(value)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

// ZeroPad left-pads s with zeros to width characters. Longer strings are
// returned unchanged; a leading sign stays in front of the padding.
func ZeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	sign := ""
	if s != "" && (s[0] == '-' || s[0] == '+') {
		sign, s = s[:1], s[1:]
	}
	return sign + strings.Repeat("0", width-len(s)-len(sign)) + s
}
