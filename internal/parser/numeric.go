package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// errNoNumber is returned by the strict parsers when a cell has no digits.
var errNoNumber = errors.New("no number in cell")

// intPattern finds the first signed integer after separators are removed.
var intPattern = regexp.MustCompile(`-?\d+`)

// ParseOrDefault applies parse to raw and returns def if parse fails.
// Cells from the source are uncontrolled; a malformed numeric cell must
// never abort a row.
func ParseOrDefault[T any](raw string, parse func(string) (T, error), def T) T {
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

// ParseCurrency parses "$1,234.50" as 1234.50. Blank or unparsable cells
// such as "N/A" yield 0.
func ParseCurrency(raw string) float64 {
	return ParseOrDefault(raw, parseDecimal("$"), 0)
}

// ParsePercent parses "12.5%" as 12.5. Blank or unparsable cells yield 0.
func ParsePercent(raw string) float64 {
	return ParseOrDefault(raw, parseDecimal("%"), 0)
}

// ParseInt parses "1,234,567" as 1234567, keeping a leading minus sign.
// Cells without digits yield 0.
func ParseInt(raw string) int64 {
	return ParseOrDefault(raw, parseInteger, 0)
}

// parseDecimal returns a strict parser that strips symbol and thousands
// separators before reading an exact decimal.
func parseDecimal(symbol string) func(string) (float64, error) {
	return func(raw string) (float64, error) {
		s := normalizeText(raw)
		s = strings.NewReplacer(symbol, "", ",", "", " ", "").Replace(s)
		if s == "" {
			return 0, errNoNumber
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, err
		}
		return d.InexactFloat64(), nil
	}
}

// parseInteger is the strict integer parser behind ParseInt.
func parseInteger(raw string) (int64, error) {
	s := strings.NewReplacer(",", "", " ", "").Replace(normalizeText(raw))
	m := intPattern.FindString(s)
	if m == "" {
		return 0, errNoNumber
	}
	return strconv.ParseInt(m, 10, 64)
}
