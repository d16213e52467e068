// Package classify buckets free-text survey answers into coarse categories.
package classify

import (
	"strings"
	"unicode"
)

// Kind is the semantic category of an answer.
type Kind int

const (
	Affirmative Kind = iota
	Negative
	Other
	Unanswered
)

func (k Kind) String() string {
	switch k {
	case Affirmative:
		return "affirmative"
	case Negative:
		return "negative"
	case Other:
		return "other"
	case Unanswered:
		return "unanswered"
	}
	return "unknown"
}

// Reserved bucket keys. Other answers are keyed by OtherKey.
const (
	KeyAffirmative = "yes"
	KeyNegative    = "no"
	KeyUnanswered  = "unanswered"
)

// otherPrefix escapes Other keys that would collide with a reserved key.
const otherPrefix = "other:"

// IsReserved reports whether key is one of the yes, no or unanswered keys.
func IsReserved(key string) bool {
	return key == KeyAffirmative || key == KeyNegative || key == KeyUnanswered
}

// OtherKey maps normalized answer text to its Other bucket key. Text equal to
// a reserved key, or already carrying the escape prefix, gets the prefix, so
// distinct answers never share a key and never land in a reserved bucket.
func OtherKey(normalized string) string {
	if IsReserved(normalized) || strings.HasPrefix(normalized, otherPrefix) {
		return otherPrefix + normalized
	}
	return normalized
}

// Bucket is the classification of one answer.
type Bucket struct {
	Kind    Kind
	Key     string
	Display string
}

var (
	affirmativeBucket = Bucket{Kind: Affirmative, Key: KeyAffirmative, Display: "Yes"}
	negativeBucket    = Bucket{Kind: Negative, Key: KeyNegative, Display: "No"}
	unansweredBucket  = Bucket{Kind: Unanswered, Key: KeyUnanswered, Display: "Unanswered"}
)

// UnansweredBucket is the bucket for absent or blank answers.
func UnansweredBucket() Bucket { return unansweredBucket }

// Lexicon lists the words (or short phrases) that mark an answer as
// affirmative or negative.
type Lexicon struct {
	Affirmative []string
	Negative    []string
}

// DefaultLexicon returns the built-in word lists.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Affirmative: []string{"yes", "good", "safe", "well", "appealing"},
		Negative:    []string{"no", "unsafe", "poor", "unappealing"},
	}
}

// Extend returns l with extra words appended to each list.
func (l Lexicon) Extend(affirmative, negative []string) Lexicon {
	return Lexicon{
		Affirmative: append(append([]string(nil), l.Affirmative...), affirmative...),
		Negative:    append(append([]string(nil), l.Negative...), negative...),
	}
}

// Classifier matches answers against a lexicon on whole-word boundaries, so
// "unsafe" never counts as "safe". It is safe for concurrent use.
type Classifier struct {
	affirmative [][]string
	negative    [][]string
}

// New builds a classifier for lex. Entries that normalize to no words are ignored.
func New(lex Lexicon) *Classifier {
	return &Classifier{
		affirmative: phrases(lex.Affirmative),
		negative:    phrases(lex.Negative),
	}
}

var defaultClassifier = New(DefaultLexicon())

// Default returns the classifier for the built-in lexicon.
func Default() *Classifier { return defaultClassifier }

// Classify buckets answer with the built-in lexicon.
func Classify(answer string) Bucket { return defaultClassifier.Classify(answer) }

// Classify buckets answer. Affirmative words are checked before negative
// ones; anything else is Other, keyed by OtherKey of its lowercase trimmed
// text and displayed as written. Blank input is Unanswered.
func (c *Classifier) Classify(answer string) Bucket {
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		return unansweredBucket
	}
	normalized := strings.ToLower(trimmed)
	words := tokenize(normalized)

	if containsAny(words, c.affirmative) {
		return affirmativeBucket
	}
	if containsAny(words, c.negative) {
		return negativeBucket
	}
	return Bucket{Kind: Other, Key: OtherKey(normalized), Display: trimmed}
}

// tokenize splits s on every rune that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func phrases(entries []string) [][]string {
	out := make([][]string, 0, len(entries))
	for _, e := range entries {
		if words := tokenize(strings.ToLower(e)); len(words) > 0 {
			out = append(out, words)
		}
	}
	return out
}

func containsAny(words []string, lexicon [][]string) bool {
	for _, p := range lexicon {
		if containsPhrase(words, p) {
			return true
		}
	}
	return false
}

func containsPhrase(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, w := range phrase {
			if words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
