// Package aggregate folds survey exports into per-question answer statistics.
package aggregate

import (
	"sort"
	"strings"

	"github.com/kalambet/fieldmatch/internal/classify"
	"github.com/kalambet/fieldmatch/internal/questionnaire"
	"github.com/kalambet/fieldmatch/internal/survey"
)

// DefaultGroup is the group key used when no KeyFunc is given.
const DefaultGroup = "all"

// UnknownLocation is the ByLocation key for surveys without a location.
const UnknownLocation = "unknown"

// KeyFunc assigns a survey to a group.
type KeyFunc func(survey.SurveyExport) string

// ByLocation groups surveys by trimmed respondent location.
func ByLocation(s survey.SurveyExport) string {
	if s.Respondent == nil {
		return UnknownLocation
	}
	if loc := strings.TrimSpace(s.Respondent.Location); loc != "" {
		return loc
	}
	return UnknownLocation
}

// Options tune an aggregation run. The zero value aggregates everything
// into DefaultGroup with the built-in lexicon.
type Options struct {
	GroupBy    KeyFunc
	Classifier *classify.Classifier
	// Workers bounds concurrent document reads in AggregateFiles.
	Workers int
}

func (o Options) groupKey(s survey.SurveyExport) string {
	if o.GroupBy == nil {
		return DefaultGroup
	}
	if k := o.GroupBy(s); k != "" {
		return k
	}
	return DefaultGroup
}

func (o Options) classifier() *classify.Classifier {
	if o.Classifier == nil {
		return classify.Default()
	}
	return o.Classifier
}

// QuestionStats holds the bucket counters for one question.
type QuestionStats struct {
	QuestionID   int
	QuestionText string
	Counts       map[string]int
	DisplayNames map[string]string
}

func newQuestionStats(id int, text string) *QuestionStats {
	q := &QuestionStats{
		QuestionID:   id,
		QuestionText: text,
		Counts:       make(map[string]int),
		DisplayNames: make(map[string]string),
	}
	for _, b := range reservedBuckets {
		q.Counts[b.Key] = 0
		q.DisplayNames[b.Key] = b.Display
	}
	return q
}

var reservedBuckets = []classify.Bucket{
	classify.Classify("yes"),
	classify.Classify("no"),
	classify.UnansweredBucket(),
}

func (q *QuestionStats) add(b classify.Bucket) {
	q.Counts[b.Key]++
	if _, ok := q.DisplayNames[b.Key]; !ok {
		q.DisplayNames[b.Key] = b.Display
	}
}

// Total is the sum of every bucket.
func (q *QuestionStats) Total() int {
	n := 0
	for _, c := range q.Counts {
		n += c
	}
	return n
}

// BucketCount is one bucket of a question with its display name.
type BucketCount struct {
	Key     string
	Display string
	Count   int
}

// Others returns the non-reserved buckets by descending count, ties broken
// by ascending key.
func (q *QuestionStats) Others() []BucketCount {
	var out []BucketCount
	for k, c := range q.Counts {
		if classify.IsReserved(k) {
			continue
		}
		out = append(out, BucketCount{Key: k, Display: q.DisplayNames[k], Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Buckets returns the reserved buckets in yes/no/unanswered order followed
// by Others.
func (q *QuestionStats) Buckets() []BucketCount {
	out := make([]BucketCount, 0, len(q.Counts))
	for _, b := range reservedBuckets {
		out = append(out, BucketCount{Key: b.Key, Display: q.DisplayNames[b.Key], Count: q.Counts[b.Key]})
	}
	return append(out, q.Others()...)
}

// SkippedFile is a document that could not be read or decoded.
type SkippedFile struct {
	Name string
	Err  error
}

// Result is the aggregation of one group.
type Result struct {
	Group          string
	PerQuestion    map[int]*QuestionStats
	FilesProcessed int
	// FilesSkipped and Skipped describe the whole corpus, not just this group:
	// an undecodable document has no group.
	FilesSkipped int
	Skipped      []SkippedFile
	Summary      string
}

// QuestionIDs returns the tracked question ids in ascending order.
func (r *Result) QuestionIDs() []int {
	ids := make([]int, 0, len(r.PerQuestion))
	for id := range r.PerQuestion {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Aggregate folds surveys into one Result per group. With a catalog, every
// catalog question is tracked and each survey that does not answer it adds
// one to its unanswered count; without one only questions seen in the data
// are tracked.
func Aggregate(surveys []survey.SurveyExport, cat *questionnaire.Catalog, opts Options) map[string]*Result {
	f := newFolder(cat, opts)
	for _, s := range surveys {
		f.add(s)
	}
	return f.results(nil)
}

// folder is the serial reduce step shared by Aggregate and AggregateFiles.
type folder struct {
	cat    *questionnaire.Catalog
	opts   Options
	cls    *classify.Classifier
	groups map[string]*Result
}

func newFolder(cat *questionnaire.Catalog, opts Options) *folder {
	return &folder{cat: cat, opts: opts, cls: opts.classifier(), groups: make(map[string]*Result)}
}

func (f *folder) group(key string) *Result {
	r, ok := f.groups[key]
	if ok {
		return r
	}
	r = &Result{Group: key, PerQuestion: make(map[int]*QuestionStats)}
	if f.cat != nil {
		for _, q := range f.cat.Questions() {
			r.PerQuestion[q.ID] = newQuestionStats(q.ID, q.Text)
		}
	}
	f.groups[key] = r
	return r
}

func (f *folder) stats(r *Result, mq survey.MatchedQuestion) *QuestionStats {
	q, ok := r.PerQuestion[mq.QuestionID]
	if !ok {
		q = newQuestionStats(mq.QuestionID, mq.QuestionText)
		r.PerQuestion[mq.QuestionID] = q
	}
	return q
}

func (f *folder) add(s survey.SurveyExport) {
	r := f.group(f.opts.groupKey(s))
	r.FilesProcessed++

	answered := make(map[int]bool)
	for _, mq := range s.MatchedQuestions {
		if !mq.Answered() {
			continue
		}
		f.stats(r, mq).add(f.cls.Classify(mq.ExtractedAnswer))
		answered[mq.QuestionID] = true
	}

	// Blank answers never reach the classifier; each question counts as
	// unanswered at most once per survey.
	counted := make(map[int]bool)
	for _, mq := range s.MatchedQuestions {
		if answered[mq.QuestionID] || counted[mq.QuestionID] {
			continue
		}
		f.stats(r, mq).add(classify.UnansweredBucket())
		counted[mq.QuestionID] = true
	}

	if f.cat == nil {
		return
	}
	for _, id := range f.cat.IDs() {
		if answered[id] || counted[id] {
			continue
		}
		r.PerQuestion[id].add(classify.UnansweredBucket())
	}
}

func (f *folder) results(skipped []SkippedFile) map[string]*Result {
	if len(f.groups) == 0 {
		f.group(DefaultGroup)
	}
	for _, r := range f.groups {
		r.FilesSkipped = len(skipped)
		r.Skipped = skipped
		r.Summary = Summary(r)
	}
	return f.groups
}
