package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order when parsing a DATE value. The original
// system accepts several common textual forms; this list mirrors that
// forgiving behavior.
var dateLayouts = []string{
	"2006/01/02",
	"01/02/2006",
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"Jan 2 2006 15:04:05",
	"Jan 2 2006",
	"Jan 02 2006 15:04:05",
	"Jan 02 2006",
}

func parseDate(axis, token string) (time.Time, error) {
	token = strings.TrimSpace(token)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, token); err == nil {
			return t, nil
		}
	}
	return time.Time{}, IllegalArgumentError{Axis: axis, Message: fmt.Sprintf("cannot parse date from %q", token)}
}

// ParseDiscreteValue parses a single scalar token into the Value variant
// appropriate for valueType, as used by DISCRETE axes and by the bounds of a
// RANGE/SET element.
func ParseDiscreteValue(axis string, valueType AxisValueType, token string) (Value, error) {
	switch valueType {
	case ValueString:
		return StringValue(token), nil
	case ValueLong:
		n, err := strconv.ParseInt(strings.TrimSpace(token), 10, 64)
		if err != nil {
			return nil, IllegalArgumentError{Axis: axis, Message: fmt.Sprintf("cannot parse long from %q", token)}
		}
		return LongValue(n), nil
	case ValueDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(token), 64)
		if err != nil {
			return nil, IllegalArgumentError{Axis: axis, Message: fmt.Sprintf("cannot parse double from %q", token)}
		}
		return DoubleValue(f), nil
	case ValueBigDecimal:
		f, ok := new(big.Float).SetString(strings.TrimSpace(token))
		if !ok {
			return nil, IllegalArgumentError{Axis: axis, Message: fmt.Sprintf("cannot parse big decimal from %q", token)}
		}
		return BigDecimalValue{V: f}, nil
	case ValueDate:
		t, err := parseDate(axis, token)
		if err != nil {
			return nil, err
		}
		return DateValue(t), nil
	case ValueComparable:
		var v any
		if err := json.Unmarshal([]byte(token), &v); err != nil {
			return nil, IllegalArgumentError{Axis: axis, Message: fmt.Sprintf("cannot parse comparable JSON from %q: %v", token, err)}
		}
		return ComparableValue{V: v}, nil
	case ValueExpression:
		expr, err := ParseRuleValue(token)
		if err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, IllegalArgumentError{Axis: axis, Message: fmt.Sprintf("unsupported value type %q", valueType)}
	}
}

// ParseRangeValue parses "low, high" or "[low, high]" into a Range, rejecting
// an empty interval or unparsable bounds.
func ParseRangeValue(axis string, valueType AxisValueType, token string) (Range, error) {
	trimmed := strings.TrimSpace(token)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	parts := splitTopLevel(trimmed, ',')
	if len(parts) != 2 {
		return Range{}, IllegalArgumentError{Axis: axis, Message: fmt.Sprintf("range requires exactly two bounds, got %q", token)}
	}
	low, err := ParseDiscreteValue(axis, valueType, strings.TrimSpace(parts[0]))
	if err != nil {
		return Range{}, err
	}
	high, err := ParseDiscreteValue(axis, valueType, strings.TrimSpace(parts[1]))
	if err != nil {
		return Range{}, err
	}
	r := Range{Low: low, High: high}
	if err := r.Validate(); err != nil {
		return Range{}, IllegalArgumentError{Axis: axis, Message: err.Error()}
	}
	return r, nil
}

// ParseSetValue parses a comma-separated list of discrete tokens and
// bracketed [low, high] ranges into a RangeSet. Quoted strings are required
// for STRING/DATE discrete elements whose text contains a delimiter;
// backslash-escaped quotes are honored. Null/empty entries are rejected.
func ParseSetValue(axis string, valueType AxisValueType, token string) (RangeSet, error) {
	tokens, err := tokenizeSet(axis, token)
	if err != nil {
		return RangeSet{}, err
	}
	set := RangeSet{}
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			return RangeSet{}, IllegalArgumentError{Axis: axis, Message: "set elements must not be empty"}
		}
		if strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]") {
			r, err := ParseRangeValue(axis, valueType, t)
			if err != nil {
				return RangeSet{}, err
			}
			set.Elements = append(set.Elements, RangeSetElement{Range: &r})
			continue
		}
		unquoted, err := unquoteSetToken(axis, t)
		if err != nil {
			return RangeSet{}, err
		}
		v, err := ParseDiscreteValue(axis, valueType, unquoted)
		if err != nil {
			return RangeSet{}, err
		}
		set.Elements = append(set.Elements, RangeSetElement{Discrete: v})
	}
	if len(set.Elements) == 0 {
		return RangeSet{}, IllegalArgumentError{Axis: axis, Message: "set must contain at least one element"}
	}
	return set, nil
}

// unquoteSetToken strips a surrounding pair of double quotes and unescapes
// \" sequences, required when a discrete STRING/DATE token itself contains
// the comma delimiter.
func unquoteSetToken(axis, t string) (string, error) {
	if len(t) >= 2 && strings.HasPrefix(t, "\"") && strings.HasSuffix(t, "\"") {
		inner := t[1 : len(t)-1]
		return strings.ReplaceAll(inner, `\"`, `"`), nil
	}
	if strings.Contains(t, "\"") {
		return "", IllegalArgumentError{Axis: axis, Message: fmt.Sprintf("unbalanced quote in set token %q", t)}
	}
	return t, nil
}

// tokenizeSet splits a SET literal on top-level commas, respecting bracketed
// ranges and double-quoted strings so that embedded delimiters do not split
// a single element.
func tokenizeSet(axis, token string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	depth := 0
	inQuote := false
	escaped := false
	for _, r := range token {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && inQuote:
			cur.WriteRune(r)
			escaped = true
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case inQuote:
			cur.WriteRune(r)
		case r == '[':
			depth++
			cur.WriteRune(r)
		case r == ']':
			depth--
			if depth < 0 {
				return nil, IllegalArgumentError{Axis: axis, Message: fmt.Sprintf("unbalanced bracket in set %q", token)}
			}
			cur.WriteRune(r)
		case r == ',' && depth == 0:
			tokens = append(tokens, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if depth != 0 || inQuote {
		return nil, IllegalArgumentError{Axis: axis, Message: fmt.Sprintf("unterminated bracket or quote in set %q", token)}
	}
	tokens = append(tokens, cur.String())
	return tokens, nil
}

// splitTopLevel splits s on sep, ignoring occurrences nested inside brackets.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '[':
			depth++
			cur.WriteRune(r)
		case ']':
			depth--
			cur.WriteRune(r)
		case sep:
			if depth == 0 {
				parts = append(parts, cur.String())
				cur.Reset()
				continue
			}
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

// ParseNearestValue parses a NEAREST-axis query/column value. When valueType
// is COMPARABLE, "x, y" parses as a LatLon and "x, y, z" as a Point3D;
// otherwise the token is parsed as a plain discrete value of valueType
// (LONG, DOUBLE, DATE, ...).
func ParseNearestValue(axis string, valueType AxisValueType, token string) (Value, error) {
	if valueType == ValueComparable {
		parts := splitTopLevel(token, ',')
		floats := make([]float64, 0, len(parts))
		for _, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, IllegalArgumentError{Axis: axis, Message: fmt.Sprintf("cannot parse nearest coordinate from %q", token)}
			}
			floats = append(floats, f)
		}
		switch len(floats) {
		case 2:
			return LatLon{Lat: floats[0], Lon: floats[1]}, nil
		case 3:
			return Point3D{X: floats[0], Y: floats[1], Z: floats[2]}, nil
		default:
			return nil, IllegalArgumentError{Axis: axis, Message: fmt.Sprintf("nearest coordinate requires 2 or 3 components, got %d", len(floats))}
		}
	}
	return ParseDiscreteValue(axis, valueType, token)
}

// ParseRuleValue parses RULE-axis source text, recognizing pipe-prefixed
// options from {url|, cache|} in any order ahead of the payload.
func ParseRuleValue(token string) (Expression, error) {
	remaining := token
	isURL := false
	cacheable := false
	for {
		switch {
		case strings.HasPrefix(remaining, "url|"):
			isURL = true
			remaining = remaining[len("url|"):]
		case strings.HasPrefix(remaining, "cache|"):
			cacheable = true
			remaining = remaining[len("cache|"):]
		default:
			if isURL {
				return Expression{URL: remaining, Cacheable: cacheable}, nil
			}
			return Expression{Cmd: remaining, Cacheable: cacheable}, nil
		}
	}
}
