package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chatter sends a conversation to a language model and returns the raw text
// of its reply. Implementations never interpret the reply.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []Message) (string, error)
}

// Provider names an LLM backend.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
	ProviderOllama     Provider = "ollama"
)

// ProviderInfo is static metadata about a provider.
type ProviderInfo struct {
	Name           Provider
	DefaultModel   string
	DefaultBaseURL string
	KeyURL         string // where a user can obtain an API key; empty if none needed
}

var providers = map[Provider]ProviderInfo{
	ProviderOpenAI: {
		Name:           ProviderOpenAI,
		DefaultModel:   "gpt-4o-mini",
		DefaultBaseURL: "https://api.openai.com/v1",
		KeyURL:         "https://platform.openai.com/api-keys",
	},
	ProviderOpenRouter: {
		Name:           ProviderOpenRouter,
		DefaultModel:   "openai/gpt-4o-mini",
		DefaultBaseURL: "https://openrouter.ai/api/v1",
		KeyURL:         "https://openrouter.ai/keys",
	},
	ProviderOllama: {
		Name:           ProviderOllama,
		DefaultModel:   "llama3.1",
		DefaultBaseURL: "http://localhost:11434",
	},
}

// Info returns metadata for p.
func Info(p Provider) (ProviderInfo, bool) {
	info, ok := providers[p]
	return info, ok
}

// ParseProvider normalizes a provider name.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := providers[p]; !ok {
		return "", fmt.Errorf("unknown LLM provider %q (want openai, openrouter or ollama)", s)
	}
	return p, nil
}

// CredentialSource supplies API keys. Callers inject it; the package keeps
// no provider or key state of its own.
type CredentialSource interface {
	// APIKey returns the key configured for p, or "" if there is none.
	APIKey(p Provider) string
	// Hint describes where a key for p can be configured.
	Hint(p Provider) string
}

// ErrMissingCredential is matched by every *MissingCredentialError.
var ErrMissingCredential = errors.New("missing API credential")

// MissingCredentialError is returned before any network call when the
// selected provider needs a key and none is configured.
type MissingCredentialError struct {
	Provider Provider
	Hint     string
	KeyURL   string
}

func (e *MissingCredentialError) Error() string {
	msg := fmt.Sprintf("no API key configured for provider %s", e.Provider)
	if e.Hint != "" {
		msg += "; " + e.Hint
	}
	if e.KeyURL != "" {
		msg += " (get a key at " + e.KeyURL + ")"
	}
	return msg
}

func (e *MissingCredentialError) Is(target error) bool {
	return target == ErrMissingCredential
}

// Config selects a provider and model. Empty Model and BaseURL fall back to
// the provider defaults.
type Config struct {
	Provider Provider
	Model    string
	BaseURL  string
}

// Resolved returns cfg with provider defaults filled in.
func (cfg Config) Resolved() (Config, error) {
	info, ok := providers[cfg.Provider]
	if !ok {
		return cfg, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if cfg.Model == "" {
		cfg.Model = info.DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = info.DefaultBaseURL
	}
	return cfg, nil
}

// New builds a Chatter for cfg.Provider, looking up its key in creds.
// A provider that needs a key and has none yields *MissingCredentialError.
func New(ctx context.Context, cfg Config, creds CredentialSource) (Chatter, Config, error) {
	cfg, err := cfg.Resolved()
	if err != nil {
		return nil, cfg, err
	}
	info := providers[cfg.Provider]

	var key string
	if info.KeyURL != "" {
		if creds != nil {
			key = creds.APIKey(cfg.Provider)
		}
		if key == "" {
			e := &MissingCredentialError{Provider: cfg.Provider, KeyURL: info.KeyURL}
			if creds != nil {
				e.Hint = creds.Hint(cfg.Provider)
			}
			return nil, cfg, e
		}
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		c, err := NewEinoChatter(ctx, key, cfg.BaseURL, cfg.Model)
		return c, cfg, err
	case ProviderOpenRouter:
		return NewClientWithBaseURL(key, cfg.BaseURL), cfg, nil
	case ProviderOllama:
		return NewOllama(cfg.BaseURL), cfg, nil
	}
	return nil, cfg, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
}
