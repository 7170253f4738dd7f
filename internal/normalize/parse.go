// ABOUTME: Pure parsers turning raw quote and lim fragments into documents
// ABOUTME: Extracts speakers, mentions and attributions without any I/O
package normalize

import (
	"errors"
	"regexp"
	"strings"

	"github.com/harper/brain-migrate/internal/models"
)

// AnonymousAttribution marks a lim whose last line carried no attribution
const AnonymousAttribution = "- anonymous"

// ErrEmptyFragment is returned for fragments with no content
var ErrEmptyFragment = errors.New("empty fragment")

// Parser turns one raw fragment into a document
type Parser func(src string, roster *Roster) (models.Document, error)

var (
	quoteLineRx   = regexp.MustCompile(`^\[[^\]]+\]\s+([^:]+):(.*)$`)
	// a dash run followed by a name; bare separators and "-1 points" do not count
	attributionRx = regexp.MustCompile(`^\s*[-–—]+\s*[^\s\d\-–—]`)
)

// ParseQuote parses a transcript excerpt. Lines shaped "[tag] speaker: text"
// contribute their speaker, and any known username in the text becomes a
// mention. Other lines only contribute to the body.
func ParseQuote(src string, roster *Roster) (models.Document, error) {
	if strings.TrimSpace(src) == "" {
		return models.Document{}, ErrEmptyFragment
	}

	speakers := newOrderedSet()
	mentions := newOrderedSet()
	nameRx := roster.UsernamePattern()

	for _, line := range strings.Split(src, "\n") {
		m := quoteLineRx.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		speakers.add(strings.TrimSpace(m[1]))

		if nameRx == nil {
			continue
		}
		for _, mention := range nameRx.FindAllString(m[2], -1) {
			mentions.add(mention)
		}
	}

	return models.Document{
		Body:     src,
		Speakers: speakers.items(),
		Mentions: mentions.items(),
		Subjects: []string{},
	}, nil
}

// LimParser parses quips separated by "---" lines. The bot's own name is
// never reported as a speaker.
type LimParser struct {
	BotName string
}

// NewLimParser creates a lim parser that excludes the given bot identity
func NewLimParser(botName string) *LimParser {
	return &LimParser{BotName: strings.ToLower(botName)}
}

// Parse treats a final line starting with a dash as the attribution. Names in
// it are lower-cased and mapped through the alias table; the earlier lines
// become a block-quoted body. Without an attribution line the whole fragment
// is quoted and attributed to AnonymousAttribution.
func (p *LimParser) Parse(src string, roster *Roster) (models.Document, error) {
	trimmed := strings.Trim(src, "\r\n")
	if strings.TrimSpace(trimmed) == "" {
		return models.Document{}, ErrEmptyFragment
	}

	lines := strings.Split(trimmed, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}
	final := lines[len(lines)-1]

	if len(lines) < 2 || !attributionRx.MatchString(final) {
		return models.Document{
			Body:        blockQuote(lines) + "\n" + AnonymousAttribution,
			Speakers:    []string{},
			Mentions:    []string{},
			Subjects:    []string{},
			Attribution: AnonymousAttribution,
		}, nil
	}

	speakers := newOrderedSet()
	if nameRx := roster.AttributionPattern(); nameRx != nil {
		for _, name := range nameRx.FindAllString(final, -1) {
			canonical := roster.Canonical(strings.ToLower(name))
			if strings.ToLower(canonical) == p.BotName {
				continue
			}
			speakers.add(canonical)
		}
	}

	return models.Document{
		Body:        blockQuote(lines[:len(lines)-1]) + "\n" + final,
		Speakers:    speakers.items(),
		Mentions:    []string{},
		Subjects:    []string{},
		Attribution: strings.TrimSpace(final),
	}, nil
}

func blockQuote(lines []string) string {
	quoted := make([]string, len(lines))
	for i, line := range lines {
		if line == "" {
			quoted[i] = ">"
			continue
		}
		quoted[i] = "> " + line
	}
	return strings.Join(quoted, "\n")
}

// orderedSet deduplicates while keeping first-insertion order
type orderedSet struct {
	seen  map[string]bool
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(v string) {
	if v == "" || s.seen[v] {
		return
	}
	s.seen[v] = true
	s.order = append(s.order, v)
}

func (s *orderedSet) items() []string {
	if s.order == nil {
		return []string{}
	}
	return s.order
}
