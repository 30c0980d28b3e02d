// Package knowledge provides the disease knowledge store: a read-only table
// of cause and cure text keyed by the class names the detector emits.
package knowledge

import (
	_ "embed"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Unavailable is the text used for a cause or cure the store has no entry for.
const Unavailable = "Information not available."

//go:embed default.json
var defaultTable []byte

// Entry is the knowledge held for a single disease class.
type Entry struct {
	Cause string `json:"cause"`
	Cure  string `json:"cure"`
}

// Store maps disease class names to their entries. A Store is immutable once
// built and safe for concurrent use.
type Store struct {
	entries    map[string]Entry
	normalized map[string]string
	names      []string
}

// Load reads a knowledge table from a JSON file.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read knowledge file %s", path)
	}
	store, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse knowledge file %s", path)
	}
	return store, nil
}

// LoadDefault returns the table compiled into the binary.
func LoadDefault() (*Store, error) {
	return Parse(defaultTable)
}

// Parse builds a Store from a JSON object of the form
// {"<class>": {"cause": "...", "cure": "..."}}. Missing or blank fields are
// replaced with Unavailable.
func Parse(data []byte) (*Store, error) {
	var raw map[string]Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode knowledge table")
	}

	s := &Store{
		entries:    make(map[string]Entry, len(raw)),
		normalized: make(map[string]string, len(raw)),
		names:      make([]string, 0, len(raw)),
	}
	for name, entry := range raw {
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("knowledge table contains an empty class name")
		}
		if strings.TrimSpace(entry.Cause) == "" {
			entry.Cause = Unavailable
		}
		if strings.TrimSpace(entry.Cure) == "" {
			entry.Cure = Unavailable
		}
		s.entries[name] = entry
		s.names = append(s.names, name)

		key := Normalize(name)
		if other, ok := s.normalized[key]; ok {
			return nil, errors.Errorf("classes %q and %q normalize to the same name", other, name)
		}
		s.normalized[key] = name
	}
	sort.Strings(s.names)
	return s, nil
}

// Lookup returns the entry for a class. An exact match wins; otherwise the
// name is compared in normalized form.
func (s *Store) Lookup(name string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	if entry, ok := s.entries[name]; ok {
		return entry, true
	}
	if canonical, ok := s.normalized[Normalize(name)]; ok {
		return s.entries[canonical], true
	}
	return Entry{}, false
}

// Len returns the number of classes in the store.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Names returns the class names in sorted order.
func (s *Store) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

// Normalize folds a class name for tolerant matching: lower case, trimmed,
// with runs of spaces, hyphens and underscores collapsed to one underscore.
func Normalize(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	})
	return strings.Join(fields, "_")
}
