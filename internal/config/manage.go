package config

import (
	"fmt"
	"strconv"
)

// KeyInfo is one row of `fieldmatch config show`.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

func findSpec(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key == key {
			return s, nil
		}
	}
	return keySpec{}, fmt.Errorf("unknown config key: %q", key)
}

// plainSpec finds a non-secret key; secrets are only writable through SetSecret.
func plainSpec(key string) (keySpec, error) {
	s, err := findSpec(key)
	if err != nil {
		return s, err
	}
	if s.secret {
		return s, fmt.Errorf("%q is a secret; use `config set-secret` or %s", key, s.env)
	}
	return s, nil
}

func keysWhere(secret bool) []string {
	var keys []string
	for _, s := range specs {
		if s.secret == secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// ShowAll lists the effective value of every non-secret key in cfg.
func ShowAll(cfg Config) []KeyInfo {
	rows := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		if s.secret {
			continue
		}
		rows = append(rows, KeyInfo{Key: s.key, EnvVar: s.env, Value: fmt.Sprint(s.extract(cfg))})
	}
	return rows
}

func ValidKeys() []string  { return keysWhere(false) }
func SecretKeys() []string { return keysWhere(true) }

// SetKey persists a value in the platform backend.
func SetKey(key, value string) error {
	return setKey(newPlatformBackend(), key, value)
}

func setKey(b Backend, key, value string) error {
	s, err := plainSpec(key)
	if err != nil {
		return err
	}
	if s.typ == kString {
		return b.SetString(key, value)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s wants an integer: %w", key, err)
	}
	return b.SetInt(key, n)
}

// UnsetKey drops a stored value so the default or env override applies again.
func UnsetKey(key string) error {
	return unsetKey(newPlatformBackend(), key)
}

func unsetKey(b Backend, key string) error {
	if _, err := plainSpec(key); err != nil {
		return err
	}
	return b.Delete(key)
}

// Location describes where the platform backend keeps settings.
func Location() string {
	return newPlatformBackend().Location()
}
