package venue

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Operator describes how a settlement value is compared to the strike.
type Operator string

const (
	OpGreater Operator = ">"
	OpLess    Operator = "<"
	OpBetween Operator = "between"
)

// Condition is the structured settlement condition parsed out of a ticker.
// It is the only thing downstream components ever see; raw ticker strings stop
// here.
type Condition struct {
	Series   string // series root, e.g. "KXHIGH"
	Location string // series suffix, e.g. "LAX" or "BTC" variant
	Date     time.Time
	Op       Operator
	Lower    float64 // strike or lower bound (inclusive)
	Upper    float64 // upper bound for OpBetween (inclusive)
}

// Strike returns the single strike value for threshold conditions and the
// bracket midpoint for between conditions.
func (c Condition) Strike() float64 {
	if c.Op == OpBetween {
		return (c.Lower + c.Upper) / 2
	}
	return c.Lower
}

// Holds reports whether the condition is true for a settled value.
func (c Condition) Holds(value float64) bool {
	switch c.Op {
	case OpGreater:
		return value > c.Lower
	case OpLess:
		return value < c.Lower
	default:
		return value >= c.Lower && value <= c.Upper
	}
}

// ParseError reports a ticker whose settlement condition could not be parsed.
// Markets that produce one are skipped, never traded.
type ParseError struct {
	Ticker string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("venue: invalid market condition in %q: %s", e.Ticker, e.Reason)
}

// seriesRoots are the known series prefixes, longest first so KXLOWT wins over
// shorter overlaps.
var seriesRoots = []string{"KXHIGH", "KXLOWT", "KXBTC", "KXETH"}

// ParseTicker parses a ticker of the form SERIES-DATE-STRIKE, e.g.
// "KXHIGHLAX-25DEC27-B60.5" (bracket 60-61) or "KXHIGHLAX-25DEC27-T63"
// (threshold). Threshold direction cannot be recovered from the ticker alone,
// so the market title is consulted for "above"/"over"/">" wording.
func ParseTicker(ticker, title string) (Condition, error) {
	parts := strings.Split(ticker, "-")
	if len(parts) < 3 {
		return Condition{}, &ParseError{Ticker: ticker, Reason: "expected SERIES-DATE-STRIKE"}
	}

	var c Condition

	prefix := parts[0]
	for _, root := range seriesRoots {
		if strings.HasPrefix(prefix, root) {
			c.Series = root
			c.Location = strings.TrimPrefix(prefix, root)
			break
		}
	}
	if c.Series == "" {
		return Condition{}, &ParseError{Ticker: ticker, Reason: "unknown series prefix " + prefix}
	}

	date, err := parseDateCode(parts[1])
	if err != nil {
		return Condition{}, &ParseError{Ticker: ticker, Reason: "bad date code " + parts[1]}
	}
	c.Date = date

	spec := parts[len(parts)-1]
	switch {
	case strings.HasPrefix(spec, "B"):
		mid, err := strconv.ParseFloat(spec[1:], 64)
		if err != nil {
			return Condition{}, &ParseError{Ticker: ticker, Reason: "bad bracket strike " + spec}
		}
		c.Op = OpBetween
		c.Lower = mid - 0.5
		c.Upper = mid + 0.5
	case strings.HasPrefix(spec, "T"):
		strike, err := strconv.ParseFloat(spec[1:], 64)
		if err != nil {
			return Condition{}, &ParseError{Ticker: ticker, Reason: "bad threshold strike " + spec}
		}
		c.Lower = strike
		if titleSaysAbove(title) {
			c.Op = OpGreater
		} else {
			c.Op = OpLess
		}
	default:
		return Condition{}, &ParseError{Ticker: ticker, Reason: "unrecognized strike spec " + spec}
	}

	return c, nil
}

// parseDateCode parses Kalshi date codes like "25DEC27" (2025-12-27).
func parseDateCode(code string) (time.Time, error) {
	if len(code) != 7 {
		return time.Time{}, fmt.Errorf("date code must be 7 chars, got %q", code)
	}
	normalized := code[:2] + code[2:3] + strings.ToLower(code[3:5]) + code[5:]
	return time.Parse("06Jan02", normalized)
}

func titleSaysAbove(title string) bool {
	t := strings.ToLower(title)
	return strings.Contains(t, ">") || strings.Contains(t, "above") || strings.Contains(t, "over") || strings.Contains(t, "higher")
}
