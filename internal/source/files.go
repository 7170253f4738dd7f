// ABOUTME: Reads quote, lim and mapping files from the bundle directory
// ABOUTME: Splits files into fragments and isolates per-fragment parse failures
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/harper/brain-migrate/internal/models"
	"github.com/harper/brain-migrate/internal/normalize"
)

// MinFragmentLength discards stray separators and single characters
const MinFragmentLength = 2

var (
	// QuoteSeparator splits the quote file on blank lines
	QuoteSeparator = regexp.MustCompile(`\r?\n\r?\n`)
	// LimSeparator splits the lim file on literal "---" lines, including one
	// that ends the file without a trailing newline
	LimSeparator = regexp.MustCompile(`\r?\n---[ \t]*(?:\r?\n|$)`)

	setNameRx = regexp.MustCompile(`[^a-z0-9_]+`)
)

// DocumentFileReader parses a delimiter-split text file into documents
type DocumentFileReader struct {
	path          string
	separator     *regexp.Regexp
	parse         normalize.Parser
	roster        *normalize.Roster
	warnNoSpeaker bool
	logger        *zap.Logger
}

// NewDocumentFileReader creates a reader for one file
func NewDocumentFileReader(path string, separator *regexp.Regexp, parse normalize.Parser, roster *normalize.Roster, logger *zap.Logger) *DocumentFileReader {
	if roster == nil {
		roster = normalize.NewRoster(nil, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentFileReader{
		path:      path,
		separator: separator,
		parse:     parse,
		roster:    roster,
		logger:    logger.With(zap.String("file", filepath.Base(path))),
	}
}

// WithSpeakerWarning logs every document that comes out without a speaker.
// Such documents are still kept.
func (r *DocumentFileReader) WithSpeakerWarning() *DocumentFileReader {
	r.warnNoSpeaker = true
	return r
}

// Load reads the whole file and parses every fragment. A fragment that fails
// to parse is logged and dropped; the rest still load.
func (r *DocumentFileReader) Load(ctx context.Context) ([]models.Document, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w: %w", r.path, models.ErrSourceUnavailable, err)
	}

	fragments := r.separator.Split(string(data), -1)
	docs := make([]models.Document, 0, len(fragments))
	skipped := 0

	for i, fragment := range fragments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(fragment) < MinFragmentLength {
			continue
		}

		doc, err := r.parse(fragment, r.roster)
		if err != nil {
			skipped++
			r.logger.Warn("dropping fragment",
				zap.Int("fragment", i),
				zap.Error(fmt.Errorf("%w: %w", models.ErrParseDegraded, err)))
			continue
		}

		if r.warnNoSpeaker && len(doc.Speakers) == 0 {
			r.logger.Warn("no speaker recovered",
				zap.Int("fragment", i),
				zap.String("attribution", doc.Attribution))
		}
		docs = append(docs, doc)
	}

	r.logger.Info("parsed documents", zap.Int("documents", len(docs)), zap.Int("skipped", skipped))
	return docs, nil
}

// MappingFileReader reads a JSON object of identifier -> body text
type MappingFileReader struct {
	path   string
	logger *zap.Logger
}

// NewMappingFileReader creates a reader for one mapping file
func NewMappingFileReader(path string, logger *zap.Logger) *MappingFileReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MappingFileReader{path: path, logger: logger.With(zap.String("file", filepath.Base(path)))}
}

// Load returns the mapping. A file that is not a JSON object of strings
// yields an empty mapping and a warning instead of an error.
func (r *MappingFileReader) Load(ctx context.Context) (map[string]string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w: %w", r.path, models.ErrSourceUnavailable, err)
	}

	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil || mapping == nil {
		r.logger.Warn("mapping file not usable, continuing with an empty mapping",
			zap.Error(fmt.Errorf("%w: %v", models.ErrParseDegraded, err)))
		return map[string]string{}, nil
	}
	return mapping, nil
}

// MappingDocuments turns a mapping into documents whose single subject is the
// identifier, ordered by identifier.
func MappingDocuments(mapping map[string]string) []models.Document {
	ids := make([]string, 0, len(mapping))
	for id := range mapping {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]models.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, models.Document{
			Body:     mapping[id],
			Speakers: []string{},
			Mentions: []string{},
			Subjects: []string{id},
		})
	}
	return docs
}

// MappingFile is one *.json file of the mappings directory
type MappingFile struct {
	SetName string
	Path    string
}

// ListMappingFiles returns the mapping files in dir ordered by name, each with
// the document set name derived from its file name.
func ListMappingFiles(dir string) ([]MappingFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w: %w", dir, models.ErrSourceUnavailable, err)
	}

	var files []MappingFile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		files = append(files, MappingFile{
			SetName: SetNameFromFile(entry.Name()),
			Path:    filepath.Join(dir, entry.Name()),
		})
	}
	return files, nil
}

// SetNameFromFile derives a document set name from a file name:
// "Nick-Names.json" becomes "nick_names". The result still has to pass
// identifier validation before it reaches the sink.
func SetNameFromFile(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return strings.Trim(setNameRx.ReplaceAllString(strings.ToLower(base), "_"), "_")
}
