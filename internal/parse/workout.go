package parse

import (
	"regexp"
	"strings"
)

// poundsToKilograms is the standard conversion factor for imperial set
// weights; strength sets are stored canonically in kilograms.
const poundsToKilograms = 0.453592

var (
	durationMinutesPattern = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:minutes?|mins?|min)\b`)
	durationHoursPattern   = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:hours?|hrs?|hr)\b`)
	durationClockPattern   = regexp.MustCompile(`\bin\s+(\d{1,3}):(\d{2})\b`)
)

// canonicalActivityNames maps verb inflections onto one activity name.
var canonicalActivityNames = map[string]string{
	"ran": "run", "run": "run", "running": "run",
	"jog": "jog", "jogged": "jog", "jogging": "jog",
	"walk": "walk", "walked": "walk", "walking": "walk",
	"hike": "hike", "hiked": "hike", "hiking": "hike",
	"cycle": "cycling", "cycled": "cycling", "cycling": "cycling",
	"bike": "cycling", "biked": "cycling", "biking": "cycling",
	"swim": "swim", "swam": "swim", "swimming": "swim",
	"row": "rowing", "rowed": "rowing", "rowing": "rowing",
	"treadmill": "treadmill", "elliptical": "elliptical",
	"sprints": "sprints", "yoga": "yoga",
}

const (
	cardioFullConfidence     = 95
	cardioDistanceConfidence = 90
	cardioDurationConfidence = 88
	cardioVerbConfidence     = 75

	strengthFullConfidence    = 95
	strengthSetsConfidence    = 90
	strengthKeywordConfidence = 75
)

// extractCardio pulls the activity name plus optional distance and
// duration from a cardio segment.
func extractCardio(text string) (Fields, int) {
	fields := CardioFields{ActivityName: cardioActivityName(text)}

	if match := distancePattern.FindStringSubmatch(text); match != nil {
		if value, ok := parseNumber(match[1]); ok {
			fields.Distance = value
			fields.DistanceUnit = normalizeDistanceUnit(match[2])
		}
	}
	fields.DurationMinutes = extractDurationMinutes(text)

	switch {
	case fields.Distance > 0 && fields.DurationMinutes > 0:
		return fields, cardioFullConfidence
	case fields.Distance > 0:
		return fields, cardioDistanceConfidence
	case fields.DurationMinutes > 0:
		return fields, cardioDurationConfidence
	}
	return fields, cardioVerbConfidence
}

// extractStrength parses "<exercise> SxR" and "<exercise> SxR @ W"
// shapes, expanding the set count into identical set records.
func extractStrength(text string) (Fields, int) {
	match := strengthSetPattern.FindStringSubmatch(text)
	if match == nil {
		name, _ := firstMatch(text, strengthWords)
		if name == "" {
			name = strings.TrimSpace(text)
		}
		return StrengthFields{ActivityName: name}, strengthKeywordConfidence
	}

	sets, setsOK := parseNumber(match[1])
	reps, repsOK := parseNumber(match[2])
	if !setsOK || !repsOK {
		name, _ := firstMatch(text, strengthWords)
		return StrengthFields{ActivityName: name}, strengthKeywordConfidence
	}

	record := SetRecord{Reps: int(reps)}
	confidence := strengthSetsConfidence
	if match[3] != "" {
		if weight, ok := parseNumber(match[3]); ok {
			if isPoundsUnit(match[4]) {
				weight *= poundsToKilograms
			}
			record.WeightKg = weight
			confidence = strengthFullConfidence
		}
	}
	if rpe := rpePattern.FindStringSubmatch(text); rpe != nil {
		if value, ok := parseNumber(rpe[1]); ok {
			record.RPE = value
		}
	}

	records := make([]SetRecord, 0, int(sets))
	for i := 0; i < int(sets); i++ {
		records = append(records, record)
	}

	return StrengthFields{
		ActivityName: strengthActivityName(text, match[0]),
		Sets:         records,
	}, confidence
}

// cardioActivityName picks the canonical verb, falling back to the first
// generic workout word.
func cardioActivityName(text string) string {
	for _, token := range tokenize(text) {
		if name, ok := canonicalActivityNames[token]; ok {
			return name
		}
	}
	if name, ok := firstMatch(text, workoutWords); ok {
		return name
	}
	return "workout"
}

// strengthActivityName is the free text preceding the SxR expression,
// e.g. "bench press" in "bench press 3x8 @ 135".
func strengthActivityName(text, setExpression string) string {
	idx := strings.Index(text, setExpression)
	if idx > 0 {
		if name := strings.TrimSpace(text[:idx]); name != "" {
			return name
		}
	}
	if name, ok := firstMatch(text, strengthWords); ok {
		return name
	}
	return "strength training"
}

func normalizeDistanceUnit(token string) string {
	switch {
	case token == "k" || strings.HasPrefix(token, "km") || strings.HasPrefix(token, "kilometer"):
		return "km"
	case strings.HasPrefix(token, "mi"):
		return "mi"
	default:
		return "m"
	}
}

func isPoundsUnit(token string) bool {
	// Bare "@ 135" means pounds; metric lifters say the unit.
	return token == "" || strings.HasPrefix(token, "lb") || strings.HasPrefix(token, "pound")
}

// extractDurationMinutes handles "25 minutes", "1.5 hours", and clock
// expressions like "in 25:30" (minutes:seconds).
func extractDurationMinutes(text string) float64 {
	if match := durationClockPattern.FindStringSubmatch(text); match != nil {
		minutes, minutesOK := parseNumber(match[1])
		seconds, secondsOK := parseNumber(match[2])
		if minutesOK && secondsOK && seconds < 60 {
			return minutes + seconds/60
		}
	}
	if match := durationMinutesPattern.FindStringSubmatch(text); match != nil {
		if minutes, ok := parseNumber(match[1]); ok {
			return minutes
		}
	}
	if match := durationHoursPattern.FindStringSubmatch(text); match != nil {
		if hours, ok := parseNumber(match[1]); ok {
			return hours * 60
		}
	}
	return 0
}
