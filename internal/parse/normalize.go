package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// segment is one independently parsed clause. raw preserves the caller's
// original casing for audit and undo; normalized is what the matchers see.
type segment struct {
	raw        string
	normalized string
}

// splitSegments breaks a comma-separated utterance into independent
// segments. A comma only splits when it produces more than one non-empty
// piece; otherwise the whole string is a single segment.
func splitSegments(text string) []segment {
	if strings.Contains(text, ",") {
		pieces := strings.Split(text, ",")
		segments := make([]segment, 0, len(pieces))
		for _, piece := range pieces {
			trimmed := strings.TrimSpace(piece)
			if trimmed == "" {
				continue
			}
			segments = append(segments, newSegment(trimmed))
		}
		if len(segments) > 1 {
			return segments
		}
	}
	return []segment{newSegment(strings.TrimSpace(text))}
}

func newSegment(raw string) segment {
	return segment{raw: raw, normalized: strings.ToLower(raw)}
}

var nonAlphaNumeric = regexp.MustCompile(`[^a-z0-9.]+`)

// tokenize splits normalized text into lowercase word tokens.
func tokenize(text string) []string {
	parts := nonAlphaNumeric.Split(text, -1)
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, ".")
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// containsAny reports whether any token of text is in the vocabulary.
func containsAny(text string, vocabulary map[string]struct{}) bool {
	for _, token := range tokenize(text) {
		if _, ok := vocabulary[token]; ok {
			return true
		}
	}
	return false
}

// firstMatch returns the first token of text present in the vocabulary.
func firstMatch(text string, vocabulary map[string]struct{}) (string, bool) {
	for _, token := range tokenize(text) {
		if _, ok := vocabulary[token]; ok {
			return token, true
		}
	}
	return "", false
}

// parseNumber parses a decimal number, rejecting anything that does not
// survive a round trip to a finite float. A failed parse demotes the
// pattern that captured it rather than propagating NaN downstream.
func parseNumber(raw string) (float64, bool) {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if value != value || value > 1e15 || value < -1e15 {
		return 0, false
	}
	return value, true
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}
