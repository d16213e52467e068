package matching

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/fieldmatch/internal/survey"
)

const previewRunes = 500

// ErrMalformedResponse is matched by every *MalformedResponseError.
var ErrMalformedResponse = errors.New("malformed LLM response")

// MalformedResponseError reports a completion that could not be decoded
// under any supported envelope.
type MalformedResponseError struct {
	Preview string // first 500 characters of the raw completion
	Cause   error
}

func (e *MalformedResponseError) Error() string {
	msg := ErrMalformedResponse.Error()
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return fmt.Sprintf("%s (response starts with %q)", msg, e.Preview)
}

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

func (e *MalformedResponseError) Unwrap() error { return e.Cause }

// Policy controls how invalid elements inside an otherwise valid envelope
// are treated.
type Policy int

const (
	// PolicyStrict fails the whole batch when any element is invalid.
	PolicyStrict Policy = iota
	// PolicySkipInvalid drops invalid elements and records them in the report.
	PolicySkipInvalid
)

// Envelope names the outer JSON shape a completion was found in.
type Envelope string

const (
	EnvelopeArray   Envelope = "array"
	EnvelopeResults Envelope = "results"
	EnvelopeData    Envelope = "data"
)

// SkippedElement is an element dropped under PolicySkipInvalid.
type SkippedElement struct {
	Index int
	Err   error
}

// ParseReport is the outcome of ParseWith.
type ParseReport struct {
	Records  []survey.MatchedQuestion
	Envelope Envelope
	Skipped  []SkippedElement
}

// Parse decodes an LLM completion into matched-question records. It fails
// the whole batch if any element is invalid.
func Parse(raw string) ([]survey.MatchedQuestion, error) {
	report, err := ParseWith(raw, PolicyStrict)
	if err != nil {
		return nil, err
	}
	return report.Records, nil
}

// ParseWith decodes raw under the given policy.
//
// Markdown fence markers are removed anywhere in the text, then the span
// from the first '[' to the last ']' is tried as a bare array. Failing that,
// the text is tried as an object with a "results" array, then a "data" array.
// An empty array is a valid, empty result.
func ParseWith(raw string, policy Policy) (ParseReport, error) {
	elems, env, err := findEnvelope(raw)
	if err != nil {
		return ParseReport{}, &MalformedResponseError{Preview: preview(raw), Cause: err}
	}

	report := ParseReport{
		Records:  make([]survey.MatchedQuestion, 0, len(elems)),
		Envelope: env,
	}
	for i, el := range elems {
		var mq survey.MatchedQuestion
		if err := json.Unmarshal(el, &mq); err != nil {
			if policy == PolicySkipInvalid {
				report.Skipped = append(report.Skipped, SkippedElement{Index: i, Err: err})
				continue
			}
			return ParseReport{}, &MalformedResponseError{
				Preview: preview(raw),
				Cause:   fmt.Errorf("element %d: %w", i, err),
			}
		}
		report.Records = append(report.Records, mq)
	}
	return report, nil
}

// stripFences removes every ```json and ``` marker and trims the result.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func findEnvelope(raw string) ([]json.RawMessage, Envelope, error) {
	s := stripFences(raw)
	if s == "" {
		return nil, "", errors.New("empty response")
	}

	if start, end := strings.Index(s, "["), strings.LastIndex(s, "]"); start != -1 && end > start {
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(s[start:end+1]), &arr); err == nil {
			return arr, EnvelopeArray, nil
		}
	}

	candidates := []string{s}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start > 0 && end > start {
		candidates = append(candidates, s[start:end+1])
	}
	for _, key := range []Envelope{EnvelopeResults, EnvelopeData} {
		for _, c := range candidates {
			if arr, ok := keyedArray(c, string(key)); ok {
				return arr, key, nil
			}
		}
	}
	return nil, "", errors.New("no JSON array, results or data envelope found")
}

func keyedArray(s, key string) ([]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	v, ok := obj[key]
	if !ok {
		return nil, false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(v, &arr); err != nil || arr == nil {
		return nil, false
	}
	return arr, true
}

func preview(raw string) string {
	r := []rune(raw)
	if len(r) <= previewRunes {
		return raw
	}
	return string(r[:previewRunes])
}
