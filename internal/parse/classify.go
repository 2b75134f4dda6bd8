package parse

import "regexp"

// Keyword vocabularies. Tokens, not substrings, so "weights" does not hit
// the weight set and "water" inside another word does not count.
var (
	foodWords = wordSet(
		"ate", "eat", "eating", "food", "meal", "calories",
		"pizza", "salad", "sandwich", "burger", "taco", "soup", "sushi",
		"egg", "eggs", "chicken", "beef", "fish", "salmon", "tofu",
		"rice", "pasta", "bread", "toast", "oatmeal", "cereal",
		"apple", "banana", "orange", "berries", "avocado",
		"yogurt", "cheese", "smoothie", "shake", "bar", "nuts",
	)
	mealWords = wordSet("breakfast", "lunch", "dinner", "snack", "brunch")

	cardioWords = wordSet(
		"ran", "run", "running", "jog", "jogged", "jogging",
		"walk", "walked", "walking", "hike", "hiked", "hiking",
		"cycle", "cycled", "cycling", "bike", "biked", "biking",
		"swim", "swam", "swimming", "row", "rowed", "rowing",
		"cardio", "treadmill", "elliptical", "sprints",
	)
	workoutWords = wordSet(
		"workout", "exercise", "exercised", "gym", "trained", "training",
		"lifted", "lifting", "yoga", "stretching",
	)
	strengthWords = wordSet(
		"bench", "squat", "squats", "deadlift", "deadlifts",
		"press", "curl", "curls", "row", "rows", "lunges",
		"pullups", "pushups", "dips", "sets", "reps",
	)

	weightWords   = wordSet("weight", "weigh", "weighed", "weighing")
	sleepWords    = wordSet("slept", "sleep", "nap", "napped")
	waterWords    = wordSet("water", "hydrated", "hydration")
	energyWords   = wordSet("energy")
	moodWords     = wordSet("mood", "great", "good", "bad", "terrible", "tired", "happy", "sad", "stressed", "anxious")
	feelingsWords = wordSet("feel", "feeling", "felt")
)

// Structured pattern detectors. A structured match is a stronger signal
// than any keyword hit and fixes the type immediately.
var (
	weightExpressionPattern = regexp.MustCompile(`^\s*(?:(?:my\s+)?(?:body\s*)?weight(?:\s*(?:is|:|at))?|weighed(?:\s+in(?:\s+at)?)?|weigh)?\s*(\d+(?:\.\d+)?)\s*(kgs?|kilos?|kilograms?|lbs?|pounds?)?\s*$`)

	sleepHoursPattern   = regexp.MustCompile(`\b(?:slept|sleep)\s+(?:for\s+)?(\d+(?:\.\d+)?)\s*(?:hours?|hrs?|hr)\b`)
	hoursOfSleepPattern = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:hours?|hrs?)\s+of\s+sleep\b`)

	energyLevelPattern = regexp.MustCompile(`\benergy\s*(?:level\s*)?(?:is\s*|at\s*)?(\d{1,2})\s*(?:/\s*10)?\b`)

	waterAmountPattern = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(oz|ounces?|ml|milliliters?|cups?|liters?|litres?|l)\b`)

	strengthSetPattern = regexp.MustCompile(`\b(\d{1,2})\s*x\s*(\d{1,3})\b(?:\s*@\s*(\d+(?:\.\d+)?)\s*(kgs?|lbs?|pounds?)?)?`)
	rpePattern         = regexp.MustCompile(`\brpe\s*(\d+(?:\.\d+)?)\b`)

	distancePattern = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(kms?|kilometers?|k|mi|miles?|meters?|m)\b`)
)

// isWeightExpression reports whether the whole segment is a body-weight
// reading: a number plus a weight unit, a weigh-word plus a number, or
// both. A bare number alone is not enough without an override.
func isWeightExpression(text string) bool {
	match := weightExpressionPattern.FindStringSubmatch(text)
	if match == nil {
		return false
	}
	if _, ok := parseNumber(match[1]); !ok {
		return false
	}
	return match[2] != "" || containsAny(text, weightWords)
}

// isBareNumber reports whether the segment is nothing but a number.
func isBareNumber(text string) bool {
	match := weightExpressionPattern.FindStringSubmatch(text)
	if match == nil || match[2] != "" {
		return false
	}
	if _, ok := parseNumber(match[1]); !ok {
		return false
	}
	return !containsAny(text, weightWords)
}

func isSleepExpression(text string) bool {
	return matchedNumber(sleepHoursPattern, text) || matchedNumber(hoursOfSleepPattern, text)
}

func isEnergyExpression(text string) bool {
	return matchedNumber(energyLevelPattern, text)
}

// isWaterExpression requires the word "water" alongside the quantity so
// unrelated amounts ("ran 5 k") are not mistaken for hydration.
func isWaterExpression(text string) bool {
	return containsAny(text, waterWords) && matchedNumber(waterAmountPattern, text)
}

func isStrengthSetExpression(text string) bool {
	match := strengthSetPattern.FindStringSubmatch(text)
	if match == nil {
		return false
	}
	_, setsOK := parseNumber(match[1])
	_, repsOK := parseNumber(match[2])
	return setsOK && repsOK
}

// isCardioDistanceExpression needs both a movement verb and a distance.
func isCardioDistanceExpression(text string) bool {
	return containsAny(text, cardioWords) && matchedNumber(distancePattern, text)
}

func matchedNumber(pattern *regexp.Regexp, text string) bool {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return false
	}
	_, ok := parseNumber(match[1])
	return ok
}

func hasFoodSignal(text string) bool {
	return containsAny(text, foodWords) || containsAny(text, mealWords)
}

func hasWorkoutSignal(text string) bool {
	return containsAny(text, cardioWords) || containsAny(text, workoutWords) || containsAny(text, strengthWords)
}

// classify assigns exactly one activity type to a normalized segment.
//
// Structured detectors run first in fixed priority order: weight, sleep,
// energy, water, strength sets, cardio distance. The food-vs-workout
// conflict check sits between the vitals detectors and the workout-family
// detectors: when both strong signals fire the segment is unknown, never a
// guess. Keyword scanning handles everything the detectors miss.
func classify(text string) ActivityType {
	switch {
	case isWeightExpression(text):
		return TypeWeight
	case isSleepExpression(text):
		return TypeSleep
	case isEnergyExpression(text):
		return TypeEnergy
	case isWaterExpression(text):
		return TypeWater
	}

	hasFood := hasFoodSignal(text)
	hasWorkout := hasWorkoutSignal(text)
	if hasFood && hasWorkout {
		return TypeUnknown
	}

	switch {
	case isStrengthSetExpression(text):
		return TypeStrength
	case isCardioDistanceExpression(text):
		return TypeCardio
	}

	if hasFood {
		return TypeNutrition
	}
	if hasWorkout {
		if containsAny(text, strengthWords) {
			return TypeStrength
		}
		return TypeCardio
	}

	switch {
	case containsAny(text, weightWords):
		return TypeWeight
	case containsAny(text, sleepWords):
		return TypeSleep
	case containsAny(text, waterWords):
		return TypeWater
	case containsAny(text, energyWords):
		return TypeEnergy
	case containsAny(text, moodWords), containsAny(text, feelingsWords):
		return TypeMood
	}
	return TypeUnknown
}

// overrideMatchesText validates a caller-supplied type hint against the
// text. Overrides are advisory: an override contradicted by the text is
// discarded and auto-detection takes over.
func overrideMatchesText(override ActivityType, text string) bool {
	switch override {
	case TypeWeight:
		// Food words disqualify a weight override unless the text really
		// is a weight reading or just a number.
		if hasFoodSignal(text) && !isWeightExpression(text) && !isBareNumber(text) {
			return false
		}
		return true
	case TypeNutrition:
		return !isWeightExpression(text) || hasFoodSignal(text)
	case TypeCardio, TypeStrength:
		return !(hasFoodSignal(text) && !hasWorkoutSignal(text) && !isStrengthSetExpression(text) && !isCardioDistanceExpression(text))
	case TypeSleep:
		return !(hasFoodSignal(text) && !containsAny(text, sleepWords) && !isSleepExpression(text))
	case TypeWater:
		return !(hasFoodSignal(text) && !containsAny(text, waterWords))
	case TypeMood, TypeEnergy:
		return true
	}
	return false
}
