package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RuleKind is the closed set of validation rule types.
type RuleKind string

const (
	RuleRequired RuleKind = "required"
	RuleType     RuleKind = "type"
	RuleLength   RuleKind = "length"
	RuleRange    RuleKind = "range"
	RulePattern  RuleKind = "pattern"
	RuleEnum     RuleKind = "enum"
	RuleCustom   RuleKind = "custom"
)

// ValidationRule checks one constraint on an extracted value.
type ValidationRule struct {
	Kind      RuleKind
	ValueType string // "int" or "float", for RuleType and RuleRange
	MinLen    int
	MaxLen    int
	Min       float64
	Max       float64
	Pattern   *regexp.Regexp
	Enum      []string
	Predicate func(string) error
}

// ValidationResult reports pass/fail and the collected errors.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate runs every rule; all failures are collected, not just the first.
func Validate(value string, rules []ValidationRule) ValidationResult {
	var errs []string
	for _, r := range rules {
		if msg := r.check(value); msg != "" {
			errs = append(errs, msg)
		}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func (r ValidationRule) check(value string) string {
	switch r.Kind {
	case RuleRequired:
		if strings.TrimSpace(value) == "" {
			return "value is required"
		}
	case RuleType:
		if value == "" {
			return ""
		}
		switch r.ValueType {
		case "int":
			if _, err := strconv.Atoi(value); err != nil {
				return fmt.Sprintf("not an integer: %q", value)
			}
		case "float":
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return fmt.Sprintf("not a number: %q", value)
			}
		}
	case RuleLength:
		if r.MinLen > 0 && len(value) < r.MinLen {
			return fmt.Sprintf("shorter than %d characters", r.MinLen)
		}
		if r.MaxLen > 0 && len(value) > r.MaxLen {
			return fmt.Sprintf("longer than %d characters", r.MaxLen)
		}
	case RuleRange:
		if value == "" {
			return ""
		}
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Sprintf("not numeric: %q", value)
		}
		if n < r.Min || (r.Max > 0 && n > r.Max) {
			return fmt.Sprintf("value %v outside [%v, %v]", n, r.Min, r.Max)
		}
	case RulePattern:
		if value != "" && r.Pattern != nil && !r.Pattern.MatchString(value) {
			return fmt.Sprintf("does not match %s", r.Pattern)
		}
	case RuleEnum:
		if value == "" {
			return ""
		}
		for _, e := range r.Enum {
			if strings.EqualFold(value, e) {
				return ""
			}
		}
		return fmt.Sprintf("%q not in allowed set", value)
	case RuleCustom:
		if r.Predicate != nil {
			if err := r.Predicate(value); err != nil {
				return err.Error()
			}
		}
	}
	return ""
}

// vinPattern excludes I, O, Q per the VIN character set.
var vinPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// DefaultRules returns the validation rule set for a known field name.
func DefaultRules(field string) []ValidationRule {
	switch field {
	case "vin":
		return []ValidationRule{{Kind: RulePattern, Pattern: vinPattern}}
	case "year":
		return []ValidationRule{
			{Kind: RuleType, ValueType: "int"},
			{Kind: RuleRange, Min: 1950, Max: 2049},
		}
	case "price":
		return []ValidationRule{
			{Kind: RuleType, ValueType: "float"},
			{Kind: RuleRange, Min: 0, Max: 10_000_000},
		}
	case "mileage":
		return []ValidationRule{
			{Kind: RuleType, ValueType: "int"},
			{Kind: RuleRange, Min: 0, Max: 2_000_000},
		}
	case "make", "model", "title", "location":
		return []ValidationRule{
			{Kind: RuleRequired},
			{Kind: RuleLength, MaxLen: 200},
		}
	default:
		return nil
	}
}
