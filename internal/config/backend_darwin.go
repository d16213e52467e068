//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.fieldmatch.app"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fieldmatch-data"
	}
	return filepath.Join(home, "Library", "Application Support", appDirName)
}

func secretHint(account string) string {
	return fmt.Sprintf(" or store it in the macOS Keychain (service %s, account %s)", keychainService, account)
}

// defaultsBackend keeps settings in a UserDefaults domain via defaults(1).
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() Backend {
	return defaultsBackend{domain: defaultsDomain}
}

func (b defaultsBackend) Location() string { return "UserDefaults domain " + b.domain }

func (b defaultsBackend) defaults(args ...string) (string, error) {
	out, err := exec.Command("defaults", args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// lookup reports ok=false when the key is absent; defaults exits 1 for that.
func (b defaultsBackend) lookup(key string) (string, bool, error) {
	val, err := b.defaults("read", b.domain, key)
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return val, true, nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 1:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("defaults read %s: %w (%s)", key, err, val)
	}
}

func (b defaultsBackend) GetString(key string) (string, bool, error) {
	return b.lookup(key)
}

func (b defaultsBackend) GetInt(key string) (int, bool, error) {
	val, ok, err := b.lookup(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, true, fmt.Errorf("%s is not an integer: %w", key, err)
	}
	return n, true, nil
}

func (b defaultsBackend) write(key, typ, val string) error {
	if out, err := b.defaults("write", b.domain, key, typ, val); err != nil {
		return fmt.Errorf("defaults write %s: %w (%s)", key, err, out)
	}
	return nil
}

func (b defaultsBackend) SetString(key, val string) error { return b.write(key, "-string", val) }

func (b defaultsBackend) SetInt(key string, val int) error {
	return b.write(key, "-int", strconv.Itoa(val))
}

func (b defaultsBackend) Delete(key string) error {
	if _, ok, err := b.lookup(key); err != nil || !ok {
		return err
	}
	if out, err := b.defaults("delete", b.domain, key); err != nil {
		return fmt.Errorf("defaults delete %s: %w (%s)", key, err, out)
	}
	return nil
}
