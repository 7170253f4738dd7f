// ABOUTME: Document records parsed from quote, lim and mapping files
// ABOUTME: Each document carries speaker, mention and subject attributes
package models

// AttributeKind tags an attribute row attached to a document
type AttributeKind string

const (
	AttributeSpeaker AttributeKind = "speaker"
	AttributeMention AttributeKind = "mention"
	AttributeSubject AttributeKind = "subject"
)

// Document is one parsed corpus entry
type Document struct {
	Body     string   `json:"body" yaml:"body"`
	Speakers []string `json:"speakers" yaml:"speakers"`
	Mentions []string `json:"mentions" yaml:"mentions"`
	Subjects []string `json:"subjects" yaml:"subjects"`

	// Attribution is the trailing attribution line of a lim, or the
	// anonymous sentinel when it had none. Empty for other sets.
	Attribution string `json:"attribution,omitempty" yaml:"attribution,omitempty"`
}

// Attribute is a tagged value attached to a stored document
type Attribute struct {
	DocumentID int64         `json:"document_id" yaml:"document_id"`
	Kind       AttributeKind `json:"kind" yaml:"kind"`
	Value      string        `json:"value" yaml:"value"`
}

// Attributes expands the document's speakers, mentions and subjects into
// attribute rows for the given document id.
func (d Document) Attributes(documentID int64) []Attribute {
	attrs := make([]Attribute, 0, len(d.Speakers)+len(d.Mentions)+len(d.Subjects))
	for _, v := range d.Speakers {
		attrs = append(attrs, Attribute{DocumentID: documentID, Kind: AttributeSpeaker, Value: v})
	}
	for _, v := range d.Mentions {
		attrs = append(attrs, Attribute{DocumentID: documentID, Kind: AttributeMention, Value: v})
	}
	for _, v := range d.Subjects {
		attrs = append(attrs, Attribute{DocumentID: documentID, Kind: AttributeSubject, Value: v})
	}
	return attrs
}
