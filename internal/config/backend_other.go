//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// xdgDir resolves an XDG base directory, falling back to ~/<fallback...>
// and finally to the working directory.
func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), appDirName)
}

func secretHint(account string) string {
	return " or run `fieldmatch config set-secret llm." + account + "`"
}

// writeFileAtomic replaces path with data via a temp file in the same
// directory, so a crash never leaves a half-written settings file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// jsonFileBackend keeps settings as one flat JSON object at
// $XDG_CONFIG_HOME/fieldmatch/config.json.
type jsonFileBackend struct {
	path   string
	values map[string]json.RawMessage
}

func newPlatformBackend() Backend {
	return openJSONFileBackend(filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), appDirName, "config.json"))
}

// openJSONFileBackend never fails: an unreadable file is logged and treated
// as empty so the defaults still apply.
func openJSONFileBackend(path string) *jsonFileBackend {
	b := &jsonFileBackend{path: path, values: map[string]json.RawMessage{}}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		slog.Warn("could not read config file, using defaults", "path", path, "error", err)
	default:
		if err := json.Unmarshal(data, &b.values); err != nil {
			slog.Warn("could not parse config file, using defaults", "path", path, "error", err)
			b.values = map[string]json.RawMessage{}
		}
	}
	return b
}

func (b *jsonFileBackend) Location() string { return b.path }

func (b *jsonFileBackend) flush() error {
	data, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(b.path, data)
}

func (b *jsonFileBackend) GetString(key string) (string, bool, error) {
	raw, ok := b.values[key]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Numbers and booleans written by hand are accepted verbatim.
		return string(raw), true, nil
	}
	return s, true, nil
}

func (b *jsonFileBackend) GetInt(key string) (int, bool, error) {
	raw, ok := b.values[key]
	if !ok {
		return 0, false, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f < math.MinInt || f > math.MaxInt || f != math.Trunc(f) {
			return 0, true, fmt.Errorf("%s: %v is not an integer in range", key, f)
		}
		return int(f), true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, true, fmt.Errorf("%s: expected an integer, got %s", key, raw)
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

func (b *jsonFileBackend) set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.values[key] = raw
	return b.flush()
}

func (b *jsonFileBackend) SetString(key, val string) error { return b.set(key, val) }

func (b *jsonFileBackend) SetInt(key string, val int) error { return b.set(key, val) }

func (b *jsonFileBackend) Delete(key string) error {
	if _, ok := b.values[key]; !ok {
		return nil
	}
	delete(b.values, key)
	return b.flush()
}
