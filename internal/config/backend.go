package config

// Backend persists non-secret settings. Load layers FIELDMATCH_* environment
// variables on top of whatever a Backend returns.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
	// Location names where values are kept, for `config show`.
	Location() string
}
