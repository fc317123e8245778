package parser

import (
	"strconv"
	"strings"
)

// Field normalizers. Each takes raw selector text and returns a typed value,
// or nil when the input is empty or unparseable. They never return an error:
// a field that cannot be parsed is simply absent.

// ParsePrice strips the currency marker and thousands separators and parses
// the remainder as a decimal, e.g. "KSh 12,345.00" -> 12345.00.
func ParsePrice(text string) *float64 {
	text = strings.ReplaceAll(text, "KSh", "")
	text = strings.ReplaceAll(text, ",", "")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return ParseFloat(text)
}

// ParseRating parses the leading token of strings like "4.5 out of 5".
func ParseRating(text string) *float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	return ParseFloat(fields[0])
}

// ParseReviewCount strips parentheses and thousands separators and parses an
// integer, e.g. "(1,234)" -> 1234.
func ParseReviewCount(text string) *int {
	text = strings.ReplaceAll(text, "(", "")
	text = strings.ReplaceAll(text, ")", "")
	text = strings.ReplaceAll(text, ",", "")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	f := ParseFloat(text)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

// ParseInt parses as float first so that "8.0" coerces to 8.
func ParseInt(text string) *int {
	f := ParseFloat(text)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

// ParseFloat is a best-effort float parse.
func ParseFloat(text string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return nil
	}
	return &f
}
