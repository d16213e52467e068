package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/fieldmatch/internal/classify"
	"github.com/kalambet/fieldmatch/internal/config"
	"github.com/kalambet/fieldmatch/internal/matching"
	"github.com/kalambet/fieldmatch/internal/questionnaire"
)

// stdout receives command results; tests swap it out.
var stdout io.Writer = os.Stdout

func writeIndented(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadCatalog reads the questionnaire named by --questionnaire or the config.
func loadCatalog(cfg config.Config) (*questionnaire.Catalog, error) {
	path := cfg.Questionnaire.Path
	if questionnaireFlag != "" {
		path = questionnaireFlag
	}
	cat, err := questionnaire.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading questionnaire: %w", err)
	}
	return cat, nil
}

func newClassifier(cfg config.Config) *classify.Classifier {
	aff := config.ExtraPhrases(cfg.Classify.ExtraAffirmative)
	neg := config.ExtraPhrases(cfg.Classify.ExtraNegative)
	if len(aff) == 0 && len(neg) == 0 {
		return classify.Default()
	}
	return classify.New(classify.DefaultLexicon().Extend(aff, neg))
}

// --- parse ---

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Decode a raw LLM matching response into records",
	Long: `Decode a raw LLM matching response into records.

The response is read from the file argument, or from stdin when omitted.
Markdown code fences and {"results": [...]} / {"data": [...]} envelopes are accepted.

Examples:
  fieldmatch parse reply.txt
  pbpaste | fieldmatch parse --skip-invalid`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skip, _ := cmd.Flags().GetBool("skip-invalid")

		var (
			raw []byte
			err error
		)
		if len(args) == 1 {
			raw, err = os.ReadFile(args[0])
		} else {
			raw, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		return runParse(string(raw), skip)
	},
}

func runParse(raw string, skipInvalid bool) error {
	policy := matching.PolicyStrict
	if skipInvalid {
		policy = matching.PolicySkipInvalid
	}

	rep, err := matching.ParseWith(raw, policy)
	if err != nil {
		return err
	}
	for _, s := range rep.Skipped {
		printWarning("skipped element %d: %v", s.Index, s.Err)
	}
	return writeIndented(rep.Records)
}

func init() {
	parseCmd.Flags().Bool("skip-invalid", false, "drop invalid elements instead of failing")
}

// --- classify ---

var classifyCmd = &cobra.Command{
	Use:   "classify <answer...>",
	Short: "Show the bucket an answer falls into",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		b := newClassifier(cfg).Classify(strings.Join(args, " "))
		fmt.Fprintf(stdout, "%s  %s\n", colorize(colorBold, b.Kind.String()), b.Display)
		return nil
	},
}

// --- catalog ---

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the questionnaire",
}

var catalogShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List the questionnaire questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cat, err := loadCatalog(cfg)
		if err != nil {
			return err
		}
		printCatalog(cat)
		return nil
	},
}

func printCatalog(cat *questionnaire.Catalog) {
	fmt.Fprintln(stdout, colorize(colorBold, cat.Title()))
	if cat.Description() != "" {
		fmt.Fprintln(stdout, cat.Description())
	}
	for _, q := range cat.Questions() {
		fmt.Fprintf(stdout, "%s  %s", colorize(colorCyan, fmt.Sprintf("%3d", q.ID)), q.Text)
		if q.Type != "" {
			fmt.Fprintf(stdout, " (%s)", q.Type)
		}
		fmt.Fprintln(stdout)
		if q.FollowUp != "" {
			fmt.Fprintf(stdout, "     follow-up: %s\n", q.FollowUp)
		}
	}
}

func init() {
	catalogCmd.AddCommand(catalogShowCmd)
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Queue transcriptions on the running server and track them",
}

var sessionsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Queue a transcription for matching",
	Long: `Queue a transcription for matching on the running server.

Examples:
  fieldmatch sessions submit --text "Yes, I walk here every day" --location "North Park"
  fieldmatch sessions submit --file interview.pdf --name "A. Resident" --age 34`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := transcriptionInput(cmd)
		if err != nil {
			return err
		}

		req := map[string]any{"transcription": text}
		if r := respondentFromFlags(cmd); r != nil {
			req["respondent"] = r
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/sessions", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued session %s", result["id"])
		return nil
	},
}

type sessionSummary struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	ExportName   string `json:"export_name"`
	MatchedCount int    `json:"matched_count"`
	LastError    string `json:"last_error"`
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/sessions", url.Values{"limit": {strconv.Itoa(limit)}})
		if err != nil {
			return err
		}

		var sessions []sessionSummary
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Fprintln(stdout, "No sessions found.")
			return nil
		}
		for _, s := range sessions {
			fmt.Fprintln(stdout, sessionLine(s))
		}
		return nil
	},
}

func sessionLine(s sessionSummary) string {
	id := s.ID
	if len(id) > 8 {
		id = id[:8]
	}
	line := fmt.Sprintf("%s  %s  %-9s", colorize(colorCyan, id), s.CreatedAt, s.Status)
	switch {
	case s.ExportName != "":
		line += fmt.Sprintf("  %s (%d matched)", s.ExportName, s.MatchedCount)
	case s.LastError != "":
		line += "  " + colorize(colorRed, s.LastError)
	}
	return line
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/sessions/"+url.PathEscape(args[0]), nil)
		if err != nil {
			return err
		}

		var sess any
		if err := decodeJSON(resp, &sess); err != nil {
			return err
		}
		return writeIndented(sess)
	},
}

func init() {
	addTranscriptionFlags(sessionsSubmitCmd)
	sessionsListCmd.Flags().Int("limit", 20, "maximum number of sessions to list")
	sessionsCmd.AddCommand(sessionsSubmitCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Fprintf(stdout, "# %s\n", config.Location())
		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a stored configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store an API key in the platform secret store",
	Long: fmt.Sprintf(`Store an API key in the platform secret store.

Valid keys: %s`, strings.Join(config.SecretKeys(), ", ")),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(config.NewKeychain(), args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
