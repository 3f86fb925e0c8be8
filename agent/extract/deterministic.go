package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
	statex "github.com/biancassilva/pharmacy-sales-chatbot/agent/state"
)

var digitRun = regexp.MustCompile(`\d+`)

// businessKeywords hint that a phrase names a pharmacy or health business.
var businessKeywords = map[string]bool{
	"pharmacy": true, "natural": true, "health": true, "care": true,
	"medical": true, "wellness": true, "supplements": true, "products": true,
	"drug": true, "drugstore": true,
}

// titleKeywords hint that a phrase names a contact person.
var titleKeywords = map[string]bool{
	"manager": true, "owner": true, "director": true, "pharmacist": true,
}

// leadingStopwords are skipped when hunting for capitalized phrases, so that
// sentence-initial words like "My" don't swallow the real name.
var leadingStopwords = map[string]bool{
	"my": true, "i": true, "the": true, "we": true, "our": true, "it": true,
	"hi": true, "hello": true, "yes": true, "is": true, "in": true, "at": true,
	"a": true, "an": true, "this": true, "its": true, "it's": true,
	"i'm": true, "i've": true, "i'd": true, "we're": true, "we've": true,
	"that's": true, "what's": true, "here's": true,
}

// deterministicTier extracts fields with pattern and keyword heuristics.
// It never calls out and always succeeds or reports ErrNoValue.
type deterministicTier struct{}

func (deterministicTier) Name() string { return "deterministic" }

func (deterministicTier) Extract(_ context.Context, field contractx.FieldKey, utterance string) (statex.FieldValue, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return statex.FieldValue{}, ErrNoValue
	}

	switch field {
	case contractx.FieldRxVolume:
		match := digitRun.FindString(utterance)
		if match == "" {
			return statex.FieldValue{}, ErrNoValue
		}
		n, err := strconv.Atoi(match)
		if err != nil {
			return statex.FieldValue{}, ErrNoValue
		}
		return validateValue(field, n)

	case contractx.FieldEmail:
		match := emailPattern.FindString(utterance)
		if match == "" {
			return statex.FieldValue{}, ErrNoValue
		}
		return validateValue(field, match)

	case contractx.FieldPharmacyName:
		if name, ok := capitalizedPhrase(utterance, businessKeywords); ok {
			return validateValue(field, name)
		}
		if shortUtterance(utterance) {
			return validateValue(field, utterance)
		}
		if containsAnyFold(utterance, businessKeywords) {
			return validateValue(field, utterance)
		}
		return statex.FieldValue{}, ErrNoValue

	case contractx.FieldLocation:
		if loc, ok := capitalizedPhrase(utterance, nil); ok {
			return validateValue(field, loc)
		}
		if shortUtterance(utterance) {
			return validateValue(field, utterance)
		}
		return statex.FieldValue{}, ErrNoValue

	case contractx.FieldContactPerson:
		if person, ok := capitalizedPhrase(utterance, titleKeywords); ok {
			return validateValue(field, person)
		}
		if shortUtterance(utterance) {
			return validateValue(field, utterance)
		}
		if containsAnyFold(utterance, titleKeywords) {
			return validateValue(field, utterance)
		}
		return statex.FieldValue{}, ErrNoValue

	default:
		return statex.FieldValue{}, fmt.Errorf("%w: %s", statex.ErrUnknownField, field)
	}
}

// Email pulls a syntactically plausible email address from free text.
// Exposed for the follow-up stage, which captures an address outside the
// normal collection loop.
func Email(utterance string) (string, bool) {
	match := emailPattern.FindString(utterance)
	return match, match != ""
}

func shortUtterance(s string) bool {
	return len(strings.Fields(s)) <= 3
}

func containsAnyFold(s string, keywords map[string]bool) bool {
	for _, word := range strings.Fields(strings.ToLower(s)) {
		if keywords[strings.Trim(word, ".,!?")] {
			return true
		}
	}
	return false
}

// capitalizedPhrase finds runs of capitalized tokens, skipping leading
// stopwords. When preferred keywords are given, a run containing one wins;
// otherwise the first run is returned.
func capitalizedPhrase(s string, preferred map[string]bool) (string, bool) {
	words := strings.Fields(s)

	var runs [][]string
	var current []string
	for _, word := range words {
		trimmed := strings.Trim(word, ".,!?;:")
		if trimmed == "" {
			continue
		}
		if startsUpper(trimmed) && !leadingStopwords[strings.ToLower(trimmed)] {
			current = append(current, trimmed)
			continue
		}
		if len(current) > 0 {
			runs = append(runs, current)
			current = nil
		}
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	if len(runs) == 0 {
		return "", false
	}

	if preferred != nil {
		for _, run := range runs {
			for _, word := range run {
				if preferred[strings.ToLower(word)] {
					return strings.Join(run, " "), true
				}
			}
		}
	}
	return strings.Join(runs[0], " "), true
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
