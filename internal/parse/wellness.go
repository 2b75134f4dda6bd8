package parse

import "strings"

const (
	sleepFullConfidence    = 95
	sleepMissingConfidence = 45

	waterFullConfidence    = 92
	waterKeywordConfidence = 70

	moodExplicitConfidence = 85
	moodDefaultConfidence  = 70

	energyFullConfidence    = 92
	energyMissingConfidence = 45

	unknownConfidence = 25
)

// moodVocabulary is the fixed label set; anything else defaults to okay.
var moodVocabulary = wordSet("great", "good", "bad", "terrible", "tired", "happy", "sad", "stressed", "anxious")

// extractSleep parses "slept N hours" and "N hours of sleep".
func extractSleep(text string) (Fields, int) {
	match := sleepHoursPattern.FindStringSubmatch(text)
	if match == nil {
		match = hoursOfSleepPattern.FindStringSubmatch(text)
	}
	if match != nil {
		if hours, ok := parseNumber(match[1]); ok {
			return SleepFields{Hours: hours}, sleepFullConfidence
		}
	}
	// Sleep was mentioned but no duration; not worth logging as-is.
	return SleepFields{}, sleepMissingConfidence
}

// extractWater parses "<amount> <unit>" alongside the word "water".
func extractWater(text string) (Fields, int) {
	if match := waterAmountPattern.FindStringSubmatch(text); match != nil && containsAny(text, waterWords) {
		if amount, ok := parseNumber(match[1]); ok {
			return WaterFields{Amount: amount, Unit: normalizeWaterUnit(match[2])}, waterFullConfidence
		}
	}
	// "drank water" with no amount still counts as one cup.
	return WaterFields{Amount: 1, Unit: "cups"}, waterKeywordConfidence
}

// extractMood matches the mood vocabulary, defaulting to okay.
func extractMood(text string) (Fields, int) {
	if mood, ok := firstMatch(text, moodVocabulary); ok {
		return MoodFields{Mood: mood}, moodExplicitConfidence
	}
	return MoodFields{Mood: "okay"}, moodDefaultConfidence
}

// extractEnergy parses "energy N" and "energy N/10" as an integer level.
func extractEnergy(text string) (Fields, int) {
	if match := energyLevelPattern.FindStringSubmatch(text); match != nil {
		if level, ok := parseNumber(match[1]); ok {
			return EnergyFields{Level: int(level)}, energyFullConfidence
		}
	}
	return EnergyFields{}, energyMissingConfidence
}

func normalizeWaterUnit(token string) string {
	switch {
	case strings.HasPrefix(token, "oz"), strings.HasPrefix(token, "ounce"):
		return "oz"
	case strings.HasPrefix(token, "ml"), strings.HasPrefix(token, "milli"):
		return "ml"
	case strings.HasPrefix(token, "cup"):
		return "cups"
	default:
		return "liters"
	}
}
