package extract

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_DefaultVINRules(t *testing.T) {
	rules := DefaultRules("vin")

	assert.True(t, Validate("1FTFW1ET5DFC10312", rules).Valid)
	assert.False(t, Validate("not-a-vin", rules).Valid)
	// I, O, Q are not legal VIN characters.
	assert.False(t, Validate("1FTFW1ET5DFC1031O", rules).Valid)
}

func TestValidate_DefaultYearRules(t *testing.T) {
	rules := DefaultRules("year")

	assert.True(t, Validate("2015", rules).Valid)
	assert.False(t, Validate("1800", rules).Valid)
	assert.False(t, Validate("soon", rules).Valid)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	rules := []ValidationRule{
		{Kind: RuleRequired},
		{Kind: RuleLength, MinLen: 5},
	}

	res := Validate("", rules)
	assert.False(t, res.Valid)
	assert.Len(t, res.Errors, 2)
}

func TestValidate_Enum(t *testing.T) {
	rules := []ValidationRule{{Kind: RuleEnum, Enum: []string{"running", "non-running", "parts"}}}

	assert.True(t, Validate("Running", rules).Valid)
	assert.False(t, Validate("exploded", rules).Valid)
	// Empty values pass enum checks; pair with RuleRequired to forbid them.
	assert.True(t, Validate("", rules).Valid)
}

func TestValidate_Pattern(t *testing.T) {
	rules := []ValidationRule{{Kind: RulePattern, Pattern: regexp.MustCompile(`^\d{5}$`)}}

	assert.True(t, Validate("43215", rules).Valid)
	assert.False(t, Validate("4321", rules).Valid)
}

func TestValidate_Custom(t *testing.T) {
	rules := []ValidationRule{{
		Kind: RuleCustom,
		Predicate: func(v string) error {
			if v == "forbidden" {
				return errors.New("value is forbidden")
			}
			return nil
		},
	}}

	assert.True(t, Validate("ok", rules).Valid)
	res := Validate("forbidden", rules)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "forbidden")
}
