package parse

import (
	"regexp"
	"strings"
)

var anyNumberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Confidence bands for the weight extractor. A full value+unit match is
// near-certain; a missing unit defaults to lbs and costs a band.
const (
	weightFullConfidence       = 95
	weightNoUnitConfidence     = 85
	weightBareNumberConfidence = 80
	weightLooseConfidence      = 70
	weightMissingConfidence    = 40
)

// extractWeight pulls a body-weight value and unit from the segment.
func extractWeight(text string) (Fields, int) {
	if match := weightExpressionPattern.FindStringSubmatch(text); match != nil {
		if value, ok := parseNumber(match[1]); ok {
			unit, hasUnit := normalizeWeightUnit(match[2])
			confidence := weightFullConfidence
			if !hasUnit {
				confidence = weightBareNumberConfidence
				if containsAny(text, weightWords) {
					confidence = weightNoUnitConfidence
				}
			}
			return WeightFields{Value: value, Unit: unit}, confidence
		}
	}

	// Weaker signal: the segment mentioned weight but is not a clean
	// reading; take the first number if there is one.
	if raw := anyNumberPattern.FindString(text); raw != "" {
		if value, ok := parseNumber(raw); ok {
			unit, _ := normalizeWeightUnit(unitTokenNear(text))
			return WeightFields{Value: value, Unit: unit}, weightLooseConfidence
		}
	}

	// No value at all: nothing worth logging without a rephrase.
	return WeightFields{Unit: UnitLbs}, weightMissingConfidence
}

// normalizeWeightUnit maps a unit token onto kg or lbs. Anything with a
// "k" prefix is metric; everything else, including a missing token,
// defaults to lbs.
func normalizeWeightUnit(token string) (WeightUnit, bool) {
	if token == "" {
		return UnitLbs, false
	}
	if strings.HasPrefix(token, "kg") || strings.HasPrefix(token, "kilo") {
		return UnitKg, true
	}
	return UnitLbs, true
}

// unitTokenNear finds a weight unit token anywhere in the text.
func unitTokenNear(text string) string {
	for _, token := range tokenize(text) {
		switch token {
		case "kg", "kgs", "kilo", "kilos", "kilogram", "kilograms", "lb", "lbs", "pound", "pounds":
			return token
		}
	}
	return ""
}
