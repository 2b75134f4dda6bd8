// Package parse turns free-text fitness utterances into typed activity
// records. The pipeline is normalize -> classify -> extract -> score, with
// no I/O and no clock reads: the caller supplies "now", so a given input
// always produces the same output.
package parse

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyInput is returned when the input text is empty or whitespace-only.
var ErrEmptyInput = errors.New("input text is empty")

// ActivityType identifies what kind of event an utterance describes.
type ActivityType string

const (
	TypeNutrition ActivityType = "nutrition"
	TypeCardio    ActivityType = "cardio"
	TypeStrength  ActivityType = "strength"
	TypeWeight    ActivityType = "weight"
	TypeSleep     ActivityType = "sleep"
	TypeWater     ActivityType = "water"
	TypeMood      ActivityType = "mood"
	TypeEnergy    ActivityType = "energy"
	TypeUnknown   ActivityType = "unknown"
)

// knownTypes lists the types a caller may supply as an override.
var knownTypes = map[ActivityType]struct{}{
	TypeNutrition: {},
	TypeCardio:    {},
	TypeStrength:  {},
	TypeWeight:    {},
	TypeSleep:     {},
	TypeWater:     {},
	TypeMood:      {},
	TypeEnergy:    {},
}

// Activity is the structured result of parsing one segment.
type Activity struct {
	Type       ActivityType `json:"type"`
	Fields     Fields       `json:"fields"`
	Confidence int          `json:"confidence"`
	RawText    string       `json:"raw_text"`
	Timestamp  time.Time    `json:"timestamp"`
	Warnings   []string     `json:"warnings,omitempty"`
}

// Input carries one parse request. Now is the reference clock for
// defaulting and validating OccurredAt; callers inject it so parsing stays
// deterministic. OccurredAt is optional and defaults to Now.
type Input struct {
	Text         string
	TypeOverride ActivityType
	Now          time.Time
	OccurredAt   time.Time
}

// Parse classifies and extracts every segment of the input text. Inputs
// containing commas are split into independent segments, each yielding its
// own Activity in original order. Empty or whitespace-only text returns
// ErrEmptyInput.
func Parse(in Input) ([]Activity, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	occurredAt := in.OccurredAt
	var timestampWarning string
	switch {
	case occurredAt.IsZero():
		occurredAt = now
	case occurredAt.After(now):
		// Future-dated entries are never accepted silently.
		timestampWarning = fmt.Sprintf("occurred_at %s is in the future; using current time", occurredAt.UTC().Format(time.RFC3339))
		occurredAt = now
	}

	segments := splitSegments(in.Text)
	activities := make([]Activity, 0, len(segments))
	for _, seg := range segments {
		activity := parseSegment(seg, in.TypeOverride)
		activity.Timestamp = occurredAt
		if timestampWarning != "" {
			activity.Warnings = append(activity.Warnings, timestampWarning)
		}
		activities = append(activities, activity)
	}
	return activities, nil
}

// parseSegment runs the classify/extract pipeline for one segment.
func parseSegment(seg segment, override ActivityType) Activity {
	var warnings []string

	if override != "" {
		if _, known := knownTypes[override]; !known {
			warnings = append(warnings, fmt.Sprintf("unrecognized type override %q; using auto-detection", override))
			override = ""
		} else if !overrideMatchesText(override, seg.normalized) {
			warnings = append(warnings, fmt.Sprintf("type override %q does not match text; using auto-detection", override))
			override = ""
		}
	}

	activityType := override
	if activityType == "" {
		activityType = classify(seg.normalized)
	}

	fields, confidence := extract(activityType, seg)
	return Activity{
		Type:       activityType,
		Fields:     fields,
		Confidence: confidence,
		RawText:    seg.raw,
		Warnings:   warnings,
	}
}

// extract dispatches to the extractor for the chosen type.
func extract(activityType ActivityType, seg segment) (Fields, int) {
	switch activityType {
	case TypeWeight:
		return extractWeight(seg.normalized)
	case TypeNutrition:
		return extractNutrition(seg.normalized)
	case TypeCardio:
		return extractCardio(seg.normalized)
	case TypeStrength:
		return extractStrength(seg.normalized)
	case TypeSleep:
		return extractSleep(seg.normalized)
	case TypeWater:
		return extractWater(seg.normalized)
	case TypeMood:
		return extractMood(seg.normalized)
	case TypeEnergy:
		return extractEnergy(seg.normalized)
	default:
		return UnknownFields{Raw: seg.raw}, unknownConfidence
	}
}
