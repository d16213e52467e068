package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/fieldmatch/internal/questionnaire"
	"github.com/kalambet/fieldmatch/internal/survey"
)

// Source enumerates and reads persisted survey export documents.
type Source interface {
	List(ctx context.Context) ([]string, error)
	ReadSurvey(ctx context.Context, name string) (survey.SurveyExport, error)
}

type readResult struct {
	survey survey.SurveyExport
	err    error
}

// AggregateFiles aggregates every document in src. Documents are read
// concurrently and folded serially in listing order. A document that cannot
// be read or decoded is skipped and reported; only a listing failure or
// cancellation aborts the run. Cancellation is checked once per document.
func AggregateFiles(ctx context.Context, src Source, cat *questionnaire.Catalog, opts Options) (map[string]*Result, error) {
	names, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing export documents: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	read := make([]readResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, name := range names {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := src.ReadSurvey(gctx, name)
			read[i] = readResult{survey: s, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f := newFolder(cat, opts)
	var skipped []SkippedFile
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if read[i].err != nil {
			slog.Warn("skipping export document", "name", name, "error", read[i].err)
			skipped = append(skipped, SkippedFile{Name: name, Err: read[i].err})
			continue
		}
		f.add(read[i].survey)
	}
	return f.results(skipped), nil
}
