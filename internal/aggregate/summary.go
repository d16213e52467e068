package aggregate

import (
	"fmt"
	"strings"

	"github.com/kalambet/fieldmatch/internal/classify"
)

// Percent is floor(count*100/total). It is undefined for total <= 0 and
// returns 0 there.
func Percent(count, total int) int {
	if total <= 0 {
		return 0
	}
	return count * 100 / total
}

// Summary renders r as human-readable text: each question in ascending id
// order with its total, the yes/no/unanswered percentages and any other
// answers by descending count. Questions with no responses at all show no
// percentages.
func Summary(r *Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Survey aggregation: %s\n", r.Group)
	fmt.Fprintf(&sb, "Files processed: %d\n", r.FilesProcessed)
	if r.FilesSkipped > 0 {
		fmt.Fprintf(&sb, "Files skipped: %d\n", r.FilesSkipped)
	}

	for _, id := range r.QuestionIDs() {
		q := r.PerQuestion[id]
		total := q.Total()

		fmt.Fprintf(&sb, "\nQ%d: %s\n", id, q.QuestionText)
		fmt.Fprintf(&sb, "  Total responses: %d\n", total)
		if total == 0 {
			continue
		}
		for _, key := range []string{classify.KeyAffirmative, classify.KeyNegative, classify.KeyUnanswered} {
			fmt.Fprintf(&sb, "  %s: %d%% (%d)\n", q.DisplayNames[key], Percent(q.Counts[key], total), q.Counts[key])
		}

		others := q.Others()
		if len(others) == 0 {
			continue
		}
		sb.WriteString("  Other answers:\n")
		for _, o := range others {
			fmt.Fprintf(&sb, "    - %s: %d (%d%%)\n", o.Display, o.Count, Percent(o.Count, total))
		}
	}
	return sb.String()
}
