package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/kalambet/fieldmatch/internal/aggregate"
	"github.com/kalambet/fieldmatch/internal/config"
	"github.com/kalambet/fieldmatch/internal/export"
	"github.com/kalambet/fieldmatch/internal/questionnaire"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [dir]",
	Short: "Aggregate survey exports into per-question statistics",
	Long: `Aggregate every survey export in a directory into per-question statistics.

The directory defaults to export.dir. Unreadable or malformed documents are
skipped and reported.

Examples:
  fieldmatch aggregate
  fieldmatch aggregate ./exports --group-by location --json stats.json
  fieldmatch aggregate --no-catalog --save`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		groupBy, _ := cmd.Flags().GetString("group-by")
		noCatalog, _ := cmd.Flags().GetBool("no-catalog")
		jsonPath, _ := cmd.Flags().GetString("json")
		save, _ := cmd.Flags().GetBool("save")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		dir := cfg.Export.Dir
		if len(args) == 1 {
			dir = args[0]
		}

		var cat *questionnaire.Catalog
		if !noCatalog {
			if cat, err = loadCatalog(cfg); err != nil {
				return err
			}
		}

		opts := aggregate.Options{Classifier: newClassifier(cfg), Workers: cfg.Aggregate.Workers}
		switch groupBy {
		case "", aggregate.DefaultGroup:
		case "location":
			opts.GroupBy = aggregate.ByLocation
		default:
			return fmt.Errorf("unknown --group-by %q (want \"location\")", groupBy)
		}

		store := export.NewStore(dir)
		results, err := aggregate.AggregateFiles(cmd.Context(), store, cat, opts)
		if err != nil {
			return err
		}

		groups := sortedGroups(results)
		if len(groups) > 0 {
			for _, s := range results[groups[0]].Skipped {
				printWarning("skipped %s: %v", s.Name, s.Err)
			}
		}
		for _, g := range groups {
			fmt.Fprintln(stdout, results[g].Summary)
		}

		if jsonPath != "" {
			written, err := writeAggregationFiles(jsonPath, results, time.Now())
			if err != nil {
				return err
			}
			for _, p := range written {
				printSuccess("Wrote %s", p)
			}
		}
		if save {
			for _, g := range groups {
				name, err := store.SaveAggregation(results[g])
				if err != nil {
					return err
				}
				printSuccess("Saved %s", store.Path(name))
			}
		}
		return nil
	},
}

func sortedGroups(results map[string]*aggregate.Result) []string {
	groups := make([]string, 0, len(results))
	for g := range results {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// writeAggregationFiles writes one aggregation document per group. With more
// than one group the sanitized group name is appended to the file stem.
func writeAggregationFiles(path string, results map[string]*aggregate.Result, now time.Time) ([]string, error) {
	groups := sortedGroups(results)
	var written []string
	for _, g := range groups {
		data, err := export.EncodeAggregation(results[g], now)
		if err != nil {
			return written, err
		}
		target := path
		if len(groups) > 1 {
			ext := filepath.Ext(path)
			target = strings.TrimSuffix(path, ext) + "_" + sanitizeGroup(g) + ext
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", target, err)
		}
		written = append(written, target)
	}
	return written, nil
}

func sanitizeGroup(g string) string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			return unicode.ToLower(r)
		}
		return '_'
	}, strings.TrimSpace(g))
	if s == "" {
		return "group"
	}
	return s
}

func init() {
	aggregateCmd.Flags().String("group-by", "", `group surveys before counting ("location")`)
	aggregateCmd.Flags().Bool("no-catalog", false, "count only questions seen in the exports")
	aggregateCmd.Flags().String("json", "", "write aggregation documents to this path")
	aggregateCmd.Flags().Bool("save", false, "save aggregation documents into the export directory")
}
