package core

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrDocNotFound = errors.New("document not found")
	ErrDocExists   = errors.New("document already exists")
)

// Collections
const (
	StudentsCollection         = "students"
	SectionsCollection         = "sections"
	UsersCollection            = "users"
	ArchivedStudentsCollection = "archivedStudents"
	ArchivedSectionsCollection = "archivedSections"
	QuizResultsCollection      = "quizResults" // sub-collection of a student

	// ArchiveKeyPrefix prefixes the original id to form archive document keys.
	ArchiveKeyPrefix = "arch_"
)

type (
	// Document is a stored document as raw JSON.
	Document struct {
		ID   string          `json:"id"`
		Data json.RawMessage `json:"data"`
	}

	// DocumentStore is a remote document store client.
	// Documents are addressed by collection path + key; no multi-document transactions are offered.
	DocumentStore interface {
		// Get decodes the document into dst. Returns ErrDocNotFound if it does not exist.
		Get(ctx context.Context, collection, id string, dst interface{}) error
		// List returns all the documents of a collection ordered by ID.
		List(ctx context.Context, collection string) ([]Document, error)
		// Create writes the document only if it does not exist yet. Returns ErrDocExists otherwise.
		Create(ctx context.Context, collection, id string, doc interface{}) error
		// Set creates or overwrites the document.
		Set(ctx context.Context, collection, id string, doc interface{}) error
		// Update merges fields into the top level of an existing document. Returns ErrDocNotFound if it does not exist.
		Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
		// Delete removes the document. Deleting a missing document is not an error.
		Delete(ctx context.Context, collection, id string) error
		// Reserve atomically raises the named counter to at least floor, then reserves n values after it.
		// It returns the first reserved value.
		Reserve(ctx context.Context, counter string, floor, n int64) (int64, error)
	}
)

func (d Document) Decode(dst interface{}) error {
	return errors.Wrapf(json.Unmarshal(d.Data, dst), "decoding document %q", d.ID)
}

// ArchiveKey returns the archive document key of an original id. Already prefixed ids are returned as is.
func ArchiveKey(id string) string {
	if strings.HasPrefix(id, ArchiveKeyPrefix) {
		return id
	}
	return ArchiveKeyPrefix + id
}

// Path joins collection path segments, eg. Path("students", "STU0001", "quizResults").
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}

// EncodeDocument marshals a document, passing json.RawMessage through untouched.
func EncodeDocument(doc interface{}) (json.RawMessage, error) {
	if raw, ok := doc.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encoding document")
	}
	return data, nil
}

// MergeDocument sets fields on the top level of the JSON object in data.
func MergeDocument(data json.RawMessage, fields map[string]interface{}) (json.RawMessage, error) {
	obj := make(map[string]interface{})
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, errors.Wrap(err, "decoding document for update")
	}
	for k, v := range fields {
		obj[k] = v
	}
	return EncodeDocument(obj)
}
