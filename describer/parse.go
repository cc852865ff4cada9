package describer

import (
	"regexp"
	"strconv"
	"strings"
)

// Fallbacks used when information_schema omits precision metadata, as it does
// for decimal and char array columns. DDL generation depends on these exact values.
const (
	DefaultNumericPrecision = 65
	DefaultNumericScale     = 30
	DefaultCharacterLength  = 64000
)

// Precision is the raw precision metadata of a column.
type Precision struct {
	CharacterMaximumLength *int64
	NumericPrecision       *int64
	NumericScale           *int64
	TimePrecision          *int64
}

func (p Precision) NumericPrecisionOrDefault() int64 {
	if p.NumericPrecision == nil {
		return DefaultNumericPrecision
	}
	return *p.NumericPrecision
}

func (p Precision) NumericScaleOrDefault() int64 {
	if p.NumericScale == nil {
		return DefaultNumericScale
	}
	return *p.NumericScale
}

func (p Precision) CharacterLengthOrDefault() int64 {
	if p.CharacterMaximumLength == nil {
		return DefaultCharacterLength
	}
	return *p.CharacterMaximumLength
}

var (
	numRe   = regexp.MustCompile(`^'?(\d+)'?$`)
	floatRe = regexp.MustCompile(`^'?([^']+)'?$`)
)

// ParseInt parses integer defaults such as 42 or '42'.
func ParseInt(value string) (int64, bool) {
	m := numRe.FindStringSubmatch(value)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func ParseBool(value string) (bool, bool) {
	switch strings.ToLower(value) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// ParseFloat parses decimal defaults such as 1.5 or '1.5'.
func ParseFloat(value string) (string, bool) {
	m := floatRe.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	if _, err := strconv.ParseFloat(m[1], 64); err != nil {
		return "", false
	}
	return m[1], true
}

// UnquoteString strips the quoting characters databases wrap string defaults in.
func UnquoteString(val string) string {
	val = strings.TrimLeft(val, "'")
	val = strings.TrimRight(val, "'")
	val = strings.TrimLeft(val, `\`)
	val = strings.TrimLeft(val, `"`)
	val = strings.TrimRight(val, `"`)
	val = strings.TrimRight(val, `\`)
	return val
}

func normalizeRule(rule string) string {
	return strings.ToLower(strings.TrimSpace(rule))
}
