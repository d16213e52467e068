package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kalambet/fieldmatch/internal/llm"
)

// keychainService is the secret-store service name for all fieldmatch secrets.
const keychainService = "fieldmatch"

const appDirName = "fieldmatch"

type Config struct {
	Server        ServerConfig
	LLM           LLMConfig
	Storage       StorageConfig
	Export        ExportConfig
	Questionnaire QuestionnaireConfig
	Aggregate     AggregateConfig
	Classify      ClassifyConfig
	Log           LogConfig
}

type ServerConfig struct {
	Port int
}

type LLMConfig struct {
	Provider          string
	Model             string
	BaseURL           string
	RequestsPerMinute int
}

type StorageConfig struct {
	DataDir string
}

type ExportConfig struct {
	Dir string
}

type QuestionnaireConfig struct {
	Path string
}

type AggregateConfig struct {
	Workers int
}

// ClassifyConfig holds extra lexicon phrases, comma separated.
type ClassifyConfig struct {
	ExtraAffirmative string
	ExtraNegative    string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		LLM: LLMConfig{
			Provider:          string(llm.ProviderOpenRouter),
			RequestsPerMinute: 30,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Export: ExportConfig{
			Dir: filepath.Join(dataDir, "exports"),
		},
		Questionnaire: QuestionnaireConfig{
			Path: "questionnaire.json",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.fieldmatch.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/fieldmatch/config.json.
//
// Environment variables (FIELDMATCH_*) override backend values on all platforms.
// API keys are not part of Config; they are resolved on demand by Credentials.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if _, err := llm.ParseProvider(cfg.LLM.Provider); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LLMSelection returns the provider selection as an llm.Config.
func (c Config) LLMSelection() llm.Config {
	p, _ := llm.ParseProvider(c.LLM.Provider)
	return llm.Config{Provider: p, Model: c.LLM.Model, BaseURL: c.LLM.BaseURL}
}

// ExtraPhrases splits a comma-separated lexicon setting.
func ExtraPhrases(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Keychain abstracts the platform secret store for testing.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store: macOS Keychain on darwin,
// a 0600 secrets.json under the data directory elsewhere.
func NewKeychain() Keychain {
	return platformKeychain{}
}

type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

const apiTokenAccount = "api_token"

// GetAPIToken returns the bearer token for the HTTP API, generating and
// storing one on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if tok := os.Getenv("FIELDMATCH_API_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, err := kc.Get(keychainService, apiTokenAccount); err == nil && tok != "" {
		return tok, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := kc.Set(keychainService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

// Credentials resolves provider API keys from environment variables and the
// secret store. It implements llm.CredentialSource.
type Credentials struct {
	kc Keychain
}

func NewCredentials(kc Keychain) *Credentials {
	return &Credentials{kc: kc}
}

func (c *Credentials) APIKey(p llm.Provider) string {
	s, ok := secretFor(p)
	if !ok {
		return ""
	}
	if v := os.Getenv(s.env); v != "" {
		return v
	}
	if c.kc == nil {
		return ""
	}
	v, err := c.kc.Get(keychainService, secretAccount(s.key))
	if err != nil {
		return ""
	}
	return v
}

func (c *Credentials) Hint(p llm.Provider) string {
	s, ok := secretFor(p)
	if !ok {
		return ""
	}
	return "set environment variable " + s.env + secretHint(secretAccount(s.key))
}

// SetSecret stores an API key in the platform secret store.
func SetSecret(kc Keychain, key, value string) error {
	for _, s := range specs {
		if s.secret && s.key == key {
			return kc.Set(keychainService, secretAccount(key), value)
		}
	}
	return fmt.Errorf("unknown secret: %q", key)
}

func secretFor(p llm.Provider) (keySpec, bool) {
	want := "llm." + string(p) + "_api_key"
	for _, s := range specs {
		if s.secret && s.key == want {
			return s, true
		}
	}
	return keySpec{}, false
}

// secretAccount maps "llm.openai_api_key" to "openai_api_key".
func secretAccount(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[i+1:]
	}
	return key
}
