// ABOUTME: YAML console rendering of source records for dry runs
// ABOUTME: One YAML document per pipeline section, written in call order
package migrate

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/harper/brain-migrate/internal/models"
)

// Dumper renders records as a stream of YAML documents
type Dumper struct {
	enc *yaml.Encoder
}

// NewDumper creates a dumper writing to w
func NewDumper(w io.Writer) *Dumper {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &Dumper{enc: enc}
}

type dumpSection struct {
	Kind     Kind        `yaml:"kind"`
	Pipeline string      `yaml:"pipeline"`
	Batch    int         `yaml:"batch,omitempty"`
	Count    int         `yaml:"count"`
	Records  interface{} `yaml:"records"`
}

type brainRecord struct {
	Type  string      `yaml:"type"`
	Key   string      `yaml:"key"`
	Value interface{} `yaml:"value"`
}

type documentRecord struct {
	Body        string   `yaml:"body"`
	Speakers    []string `yaml:"speakers,flow"`
	Mentions    []string `yaml:"mentions,flow"`
	Subjects    []string `yaml:"subjects,flow"`
	Attribution string   `yaml:"attribution,omitempty"`
}

type transitionRecord struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Frequency int    `yaml:"frequency"`
}

// Brain writes the entries of a snapshot
func (d *Dumper) Brain(name string, snapshot models.BrainSnapshot) error {
	entries := snapshot.Entries()
	records := make([]brainRecord, len(entries))
	for i, e := range entries {
		var value interface{}
		if err := json.Unmarshal(e.Value, &value); err != nil {
			value = string(e.Value)
		}
		records[i] = brainRecord{Type: e.Type, Key: e.Key, Value: value}
	}
	return d.enc.Encode(dumpSection{Kind: KindBrain, Pipeline: name, Count: len(records), Records: records})
}

// Transitions writes one batch of a Markov model
func (d *Dumper) Transitions(name string, batch int, transitions []models.Transition) error {
	records := make([]transitionRecord, len(transitions))
	for i, t := range transitions {
		records[i] = transitionRecord(t)
	}
	return d.enc.Encode(dumpSection{Kind: KindMarkov, Pipeline: name, Batch: batch, Count: len(records), Records: records})
}

// Documents writes the documents of one set
func (d *Dumper) Documents(kind Kind, name string, docs []models.Document) error {
	records := make([]documentRecord, len(docs))
	for i, doc := range docs {
		records[i] = documentRecord(doc)
	}
	return d.enc.Encode(dumpSection{Kind: kind, Pipeline: name, Count: len(records), Records: records})
}

// Close flushes the encoder
func (d *Dumper) Close() error {
	return d.enc.Close()
}
