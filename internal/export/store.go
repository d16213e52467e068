package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/fieldmatch/internal/aggregate"
	"github.com/kalambet/fieldmatch/internal/survey"
)

const (
	surveyPrefix      = "survey_"
	aggregationPrefix = "aggregation_"
	fileExt           = ".json"
	fileTimeLayout    = "20060102T150405Z"
)

// Store keeps export documents as files in a single directory.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore returns a store rooted at dir. The directory is created on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the full path of a document name.
func (s *Store) Path(name string) string { return filepath.Join(s.dir, name) }

// Save writes s as a new survey document and returns its file name.
func (s *Store) Save(exp survey.SurveyExport) (string, error) {
	now := s.now()
	data, err := EncodeSurvey(exp, now)
	if err != nil {
		return "", err
	}
	name := newName(surveyPrefix, now)
	return name, s.write(name, data)
}

// SaveSession writes the survey document for one session. The name is
// derived from the session id and the export timestamp, so saving the same
// session again replaces its document.
func (s *Store) SaveSession(sessionID string, exp survey.SurveyExport) (string, error) {
	if sessionID == "" || filepath.Base(sessionID) != sessionID || strings.HasPrefix(sessionID, ".") {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	data, err := EncodeSurvey(exp, s.now())
	if err != nil {
		return "", err
	}
	name := surveyPrefix + exp.Timestamp.UTC().Format(fileTimeLayout) + "_" + sessionID + fileExt
	return name, s.write(name, data)
}

// SaveAggregation writes r as a new aggregation document and returns its file name.
func (s *Store) SaveAggregation(r *aggregate.Result) (string, error) {
	now := s.now()
	data, err := EncodeAggregation(r, now)
	if err != nil {
		return "", err
	}
	name := newName(aggregationPrefix, now)
	return name, s.write(name, data)
}

// List returns the names of the survey documents in the store, sorted. A
// missing directory is an empty store.
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &IOError{Op: "list", Path: s.dir, Err: err}
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(n, surveyPrefix) && strings.HasSuffix(n, fileExt) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the raw bytes of a document.
func (s *Store) Read(name string) ([]byte, error) {
	p := s.Path(filepath.Base(name))
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, &IOError{Op: "read", Path: p, Err: err}
	}
	return data, nil
}

// ReadSurvey reads and decodes a survey document. Decoding failures are
// *DecodeError carrying the file name.
func (s *Store) ReadSurvey(ctx context.Context, name string) (survey.SurveyExport, error) {
	if err := ctx.Err(); err != nil {
		return survey.SurveyExport{}, err
	}
	data, err := s.Read(name)
	if err != nil {
		return survey.SurveyExport{}, err
	}
	exp, err := DecodeSurvey(data)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Name = name
		}
		return survey.SurveyExport{}, err
	}
	return exp, nil
}

func (s *Store) write(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: s.dir, Err: err}
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return &IOError{Op: "create", Path: s.dir, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &IOError{Op: "write", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "write", Path: tmp.Name(), Err: err}
	}
	dst := s.Path(name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return &IOError{Op: "rename", Path: dst, Err: err}
	}
	return nil
}

func newName(prefix string, t time.Time) string {
	return prefix + t.UTC().Format(fileTimeLayout) + "_" + uuid.NewString()[:8] + fileExt
}
