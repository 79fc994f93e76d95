package types

import "errors"

// Validation errors for input records and queries.
var (
	ErrEmptyRecordID = errors.New("record id cannot be empty")
	ErrEmptyName     = errors.New("name cannot be empty")
	ErrEmptyWorkID   = errors.New("work id cannot be empty")
	ErrEmptyTitle    = errors.New("title cannot be empty")
	ErrEmptyQuery    = errors.New("query text cannot be empty")
)

// SourceRecord is one expert's combined profile as produced by the export
// step. It is immutable input to the pipeline.
type SourceRecord struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Title        string       `json:"title,omitempty"`
	Organization string       `json:"organization,omitempty"`
	Skills       []string     `json:"skills,omitempty"`
	Topics       []string     `json:"topics,omitempty"`
	Bio          string       `json:"bio,omitempty"`
	Works        []WorkRecord `json:"works,omitempty"`
}

// Validate checks the fields the normalizer cannot work without.
func (r *SourceRecord) Validate() error {
	if r.ID == "" {
		return ErrEmptyRecordID
	}
	if r.Name == "" {
		return ErrEmptyName
	}
	return nil
}

// Author identifies one author of a work. The ID refers to an expert's
// SourceRecord ID; co-authors outside the exported set carry only a name.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WorkRecord is a research output. It belongs to exactly one SourceRecord at
// ingestion but may list several experts as co-authors.
type WorkRecord struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract,omitempty"`
	Authors  []Author `json:"authors,omitempty"`
	Topics   []string `json:"topics,omitempty"`
}

// Validate checks the fields a Work node cannot be built without.
func (w *WorkRecord) Validate() error {
	if w.ID == "" {
		return ErrEmptyWorkID
	}
	if w.Title == "" {
		return ErrEmptyTitle
	}
	return nil
}
