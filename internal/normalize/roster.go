// ABOUTME: Roster of known usernames and alias variants used by the parsers
// ABOUTME: Loaded once from roster.json and shared read-only by every pipeline
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Roster holds the known usernames and a variant -> canonical alias table
type Roster struct {
	Usernames []string
	// Aliases maps a lower-cased name variant to its canonical username
	Aliases map[string]string

	once       sync.Once
	userRx     *regexp.Regexp
	attributRx *regexp.Regexp
}

// NewRoster creates a roster. Alias keys are lower-cased.
func NewRoster(usernames []string, aliases map[string]string) *Roster {
	r := &Roster{
		Usernames: append([]string(nil), usernames...),
		Aliases:   make(map[string]string, len(aliases)),
	}
	for variant, canonical := range aliases {
		r.Aliases[strings.ToLower(variant)] = canonical
	}
	return r
}

// rosterFile is the object form of roster.json
type rosterFile struct {
	Usernames []string                   `json:"usernames"`
	Aliases   map[string]json.RawMessage `json:"aliases"`
}

// ParseRoster decodes roster.json. The file is either a bare array of
// usernames or an object with "usernames" and a canonical -> alias(es) table.
func ParseRoster(data []byte) (*Roster, error) {
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		return NewRoster(names, nil), nil
	}

	var file rosterFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding roster: %w", err)
	}

	aliases := make(map[string]string)
	for canonical, raw := range file.Aliases {
		var one string
		if err := json.Unmarshal(raw, &one); err == nil {
			aliases[one] = canonical
			continue
		}
		var many []string
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, fmt.Errorf("decoding aliases for %q: %w", canonical, err)
		}
		for _, variant := range many {
			aliases[variant] = canonical
		}
	}

	return NewRoster(file.Usernames, aliases), nil
}

// LoadRoster reads and parses a roster file. A missing file yields an empty
// roster and an error wrapping os.ErrNotExist so the caller can warn.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewRoster(nil, nil), fmt.Errorf("roster %s: %w", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("reading roster: %w", err)
	}
	return ParseRoster(data)
}

// Canonical maps a lower-cased name through the alias table
func (r *Roster) Canonical(name string) string {
	if r == nil {
		return name
	}
	if canonical, ok := r.Aliases[name]; ok {
		return canonical
	}
	return name
}

// UsernamePattern matches any known username, case-insensitively.
// Returns nil when the roster has no usernames.
func (r *Roster) UsernamePattern() *regexp.Regexp {
	if r == nil {
		return nil
	}
	r.compile()
	return r.userRx
}

// AttributionPattern matches any known username or alias variant.
// Returns nil when there is nothing to match.
func (r *Roster) AttributionPattern() *regexp.Regexp {
	if r == nil {
		return nil
	}
	r.compile()
	return r.attributRx
}

func (r *Roster) compile() {
	r.once.Do(func() {
		r.userRx = namePattern(r.Usernames)

		names := append([]string(nil), r.Usernames...)
		for variant := range r.Aliases {
			names = append(names, variant)
		}
		r.attributRx = namePattern(names)
	})
}

// namePattern builds a case-insensitive alternation, longest names first so
// "alice2" wins over "alice".
func namePattern(names []string) *regexp.Regexp {
	quoted := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" || seen[strings.ToLower(n)] {
			continue
		}
		seen[strings.ToLower(n)] = true
		quoted = append(quoted, regexp.QuoteMeta(n))
	}
	if len(quoted) == 0 {
		return nil
	}
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
}
