package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "FIELDMATCH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "llm.provider", typ: kString, env: "FIELDMATCH_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.model", typ: kString, env: "FIELDMATCH_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.base_url", typ: kString, env: "FIELDMATCH_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.requests_per_minute", typ: kInt, env: "FIELDMATCH_LLM_REQUESTS_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.LLM.RequestsPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.RequestsPerMinute },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FIELDMATCH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "export.dir", typ: kString, env: "FIELDMATCH_EXPORT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Export.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Export.Dir },
	},
	{
		key: "questionnaire.path", typ: kString, env: "FIELDMATCH_QUESTIONNAIRE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Questionnaire.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Questionnaire.Path },
	},
	{
		key: "aggregate.workers", typ: kInt, env: "FIELDMATCH_AGGREGATE_WORKERS",
		apply:   func(cfg *Config, v any) { cfg.Aggregate.Workers = v.(int) },
		extract: func(cfg Config) any { return cfg.Aggregate.Workers },
	},
	{
		key: "classify.extra_affirmative", typ: kString, env: "FIELDMATCH_CLASSIFY_EXTRA_AFFIRMATIVE",
		apply:   func(cfg *Config, v any) { cfg.Classify.ExtraAffirmative = v.(string) },
		extract: func(cfg Config) any { return cfg.Classify.ExtraAffirmative },
	},
	{
		key: "classify.extra_negative", typ: kString, env: "FIELDMATCH_CLASSIFY_EXTRA_NEGATIVE",
		apply:   func(cfg *Config, v any) { cfg.Classify.ExtraNegative = v.(string) },
		extract: func(cfg Config) any { return cfg.Classify.ExtraNegative },
	},
	{
		key: "log.level", typ: kString, env: "FIELDMATCH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "llm.openai_api_key", typ: kString, env: "FIELDMATCH_OPENAI_API_KEY",
		secret: true,
	},
	{
		key: "llm.openrouter_api_key", typ: kString, env: "FIELDMATCH_OPENROUTER_API_KEY",
		secret: true,
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

// applyEnvOverrides leaves secrets alone; Credentials reads those.
func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" || s.secret {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
