package questionnaire

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Question is one entry of the bundled questionnaire.
type Question struct {
	ID       int
	Text     string
	Type     string
	FollowUp string
	Keywords []string
}

// Catalog is the immutable, in-memory questionnaire. The zero value is an
// empty catalog.
type Catalog struct {
	title       string
	description string
	questions   []Question
	byID        map[int]int
}

// fileQuestion mirrors one element of questionnaire.questions on disk.
type fileQuestion struct {
	ID       *int     `json:"id" yaml:"id"`
	Question string   `json:"question" yaml:"question"`
	Type     string   `json:"type" yaml:"type"`
	FollowUp *string  `json:"follow_up" yaml:"follow_up"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

type fileCatalog struct {
	Questionnaire *struct {
		Title       string         `json:"title" yaml:"title"`
		Description string         `json:"description" yaml:"description"`
		Questions   []fileQuestion `json:"questions" yaml:"questions"`
	} `json:"questionnaire" yaml:"questionnaire"`
}

// Load reads a catalog file. Files ending in .yaml or .yml are parsed as
// YAML; everything else as JSON.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading questionnaire: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// ParseJSON decodes the {questionnaire: {...}} JSON document.
func ParseJSON(data []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing questionnaire JSON: %w", err)
	}
	return build(fc)
}

// ParseYAML decodes the same document shape written as YAML.
func ParseYAML(data []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing questionnaire YAML: %w", err)
	}
	return build(fc)
}

func build(fc fileCatalog) (*Catalog, error) {
	if fc.Questionnaire == nil {
		return nil, errors.New("questionnaire: missing top-level \"questionnaire\" object")
	}
	qs := make([]Question, 0, len(fc.Questionnaire.Questions))
	for i, q := range fc.Questionnaire.Questions {
		if q.ID == nil {
			return nil, fmt.Errorf("questionnaire: question %d has no id", i)
		}
		var followUp string
		if q.FollowUp != nil {
			followUp = *q.FollowUp
		}
		qs = append(qs, Question{
			ID:       *q.ID,
			Text:     q.Question,
			Type:     q.Type,
			FollowUp: followUp,
			Keywords: append([]string(nil), q.Keywords...),
		})
	}
	return New(fc.Questionnaire.Title, fc.Questionnaire.Description, qs)
}

// New builds a catalog from questions in display order. Ids must be unique.
func New(title, description string, questions []Question) (*Catalog, error) {
	c := &Catalog{
		title:       title,
		description: description,
		questions:   make([]Question, len(questions)),
		byID:        make(map[int]int, len(questions)),
	}
	for i, q := range questions {
		if _, dup := c.byID[q.ID]; dup {
			return nil, fmt.Errorf("questionnaire: duplicate question id %d", q.ID)
		}
		q.Keywords = append([]string(nil), q.Keywords...)
		c.questions[i] = q
		c.byID[q.ID] = i
	}
	return c, nil
}

func (c *Catalog) Title() string       { return c.title }
func (c *Catalog) Description() string { return c.description }
func (c *Catalog) Len() int            { return len(c.questions) }

// Questions returns a copy of the questions in declared order.
func (c *Catalog) Questions() []Question {
	out := make([]Question, len(c.questions))
	for i, q := range c.questions {
		q.Keywords = append([]string(nil), q.Keywords...)
		out[i] = q
	}
	return out
}

// IDs returns the question ids in declared order.
func (c *Catalog) IDs() []int {
	ids := make([]int, len(c.questions))
	for i, q := range c.questions {
		ids[i] = q.ID
	}
	return ids
}

// Lookup returns the question with the given id.
func (c *Catalog) Lookup(id int) (Question, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Question{}, false
	}
	q := c.questions[i]
	q.Keywords = append([]string(nil), q.Keywords...)
	return q, true
}
