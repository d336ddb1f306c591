package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ExitKind tags the variant of an ExitCondition.
type ExitKind string

const (
	// ExitFixedPrice triggers when the favorable extreme reaches Target.
	ExitFixedPrice ExitKind = "price"
	// ExitPercent triggers when the favorable extreme reaches
	// entry_price scaled by Pct (e.g. 0.15 = +15% for a long).
	ExitPercent ExitKind = "pct"
	// ExitDaysRemaining triggers once Days calendar days have elapsed
	// since CreatedDate. Remaining count is derived from the creation
	// date, so evaluating it any number of times on one day yields the
	// same answer.
	ExitDaysRemaining ExitKind = "days"
	// ExitCompound triggers when any child triggers (OR semantics).
	ExitCompound ExitKind = "any"
)

// ExitCondition is a tagged exit rule attached to a position. Exactly the
// fields relevant to Kind are meaningful.
type ExitCondition struct {
	Kind        ExitKind        `json:"kind"`
	Target      float64         `json:"target,omitempty"`
	Pct         float64         `json:"pct,omitempty"`
	Days        int             `json:"days,omitempty"`
	CreatedDate time.Time       `json:"created_date,omitempty"`
	Children    []ExitCondition `json:"children,omitempty"`
}

// FixedPriceExit builds a fixed-price exit rule.
func FixedPriceExit(target float64) ExitCondition {
	return ExitCondition{Kind: ExitFixedPrice, Target: target}
}

// PercentExit builds an exit at entry price moved by pct in the favorable
// direction.
func PercentExit(pct float64) ExitCondition {
	return ExitCondition{Kind: ExitPercent, Pct: pct}
}

// DaysExit builds a countdown exit of n calendar days starting at created.
func DaysExit(n int, created time.Time) ExitCondition {
	return ExitCondition{Kind: ExitDaysRemaining, Days: n, CreatedDate: created}
}

// AnyExit builds a compound OR rule over the given children.
func AnyExit(children ...ExitCondition) ExitCondition {
	return ExitCondition{Kind: ExitCompound, Children: children}
}

// DaysRemaining returns the countdown value as of the given date. Only
// meaningful for ExitDaysRemaining.
func (c ExitCondition) DaysRemaining(asOf time.Time) int {
	elapsed := CalendarDaysBetween(c.CreatedDate, asOf)
	if elapsed < 0 {
		elapsed = 0
	}
	return c.Days - elapsed
}

// dateLayout is the calendar-date encoding used in the textual rule form.
const dateLayout = "2006-01-02"

// String renders the condition in the persisted textual form:
// "price:110.5", "pct:0.15", "days:3@2026-08-30",
// "any(price:110.5|days:5@2026-08-30)".
func (c ExitCondition) String() string {
	switch c.Kind {
	case ExitFixedPrice:
		return "price:" + strconv.FormatFloat(c.Target, 'f', -1, 64)
	case ExitPercent:
		return "pct:" + strconv.FormatFloat(c.Pct, 'f', -1, 64)
	case ExitDaysRemaining:
		s := "days:" + strconv.Itoa(c.Days)
		if !c.CreatedDate.IsZero() {
			s += "@" + c.CreatedDate.UTC().Format(dateLayout)
		}
		return s
	case ExitCompound:
		parts := make([]string, 0, len(c.Children))
		for _, ch := range c.Children {
			parts = append(parts, ch.String())
		}
		return "any(" + strings.Join(parts, "|") + ")"
	default:
		return ""
	}
}

// ParseExitCondition is the boundary adapter from the textual rule form
// back to the tagged type. It accepts the canonical encodings produced by
// String plus the legacy bare-number form, which is read as a fixed price.
func ParseExitCondition(s string) (ExitCondition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ExitCondition{}, fmt.Errorf("domain: empty exit condition")
	}

	if strings.HasPrefix(s, "any(") && strings.HasSuffix(s, ")") {
		inner := s[len("any(") : len(s)-1]
		var children []ExitCondition
		for _, part := range splitTopLevel(inner, '|') {
			ch, err := ParseExitCondition(part)
			if err != nil {
				return ExitCondition{}, fmt.Errorf("domain: compound exit %q: %w", s, err)
			}
			children = append(children, ch)
		}
		if len(children) == 0 {
			return ExitCondition{}, fmt.Errorf("domain: compound exit %q has no children", s)
		}
		return AnyExit(children...), nil
	}

	kind, rest, found := strings.Cut(s, ":")
	if !found {
		// Legacy rows store a bare profit-target price.
		target, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return ExitCondition{}, fmt.Errorf("domain: unrecognized exit condition %q", s)
		}
		return FixedPriceExit(target), nil
	}

	switch ExitKind(kind) {
	case ExitFixedPrice:
		target, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return ExitCondition{}, fmt.Errorf("domain: exit price %q: %w", rest, err)
		}
		return FixedPriceExit(target), nil
	case ExitPercent:
		pct, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return ExitCondition{}, fmt.Errorf("domain: exit pct %q: %w", rest, err)
		}
		return PercentExit(pct), nil
	case ExitDaysRemaining:
		daysStr, dateStr, hasDate := strings.Cut(rest, "@")
		days, err := strconv.Atoi(daysStr)
		if err != nil {
			return ExitCondition{}, fmt.Errorf("domain: exit days %q: %w", daysStr, err)
		}
		var created time.Time
		if hasDate {
			created, err = time.Parse(dateLayout, dateStr)
			if err != nil {
				return ExitCondition{}, fmt.Errorf("domain: exit days date %q: %w", dateStr, err)
			}
		}
		return DaysExit(days, created), nil
	default:
		return ExitCondition{}, fmt.Errorf("domain: unknown exit kind %q", kind)
	}
}

// splitTopLevel splits s on sep, ignoring separators nested inside
// parentheses, so compound rules can contain compound children.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// MarshalJSON keeps the structured-document mirror readable by encoding
// the condition both as the tagged object and its textual form.
func (c ExitCondition) MarshalJSON() ([]byte, error) {
	type alias ExitCondition
	return json.Marshal(struct {
		alias
		Text string `json:"text"`
	}{alias(c), c.String()})
}

// UnmarshalJSON accepts both the tagged object and a bare textual rule.
func (c *ExitCondition) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseExitCondition(s)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	type alias ExitCondition
	var a struct {
		alias
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = ExitCondition(a.alias)
	return nil
}
