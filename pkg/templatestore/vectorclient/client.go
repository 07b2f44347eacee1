// Package vectorclient abstracts a vector/document store backend:
// collection CRUD by name with an opaque handle returned on
// create, document-level add/get/update/delete/count, metadata `where`
// filters supporting exact-match and `$and`.
package vectorclient

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document matches the given id.
var ErrNotFound = errors.New("vectorclient: document not found")

// Where is a metadata filter. A key maps to a single exact-match value;
// multiple keys are implicitly conjoined ($and semantics).
type Where map[string]string

// Document is one record stored in a collection.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float64
}

// Client is the store's document-level surface. Implementations resolve
// a collection name to an opaque handle once and cache it for the
// process lifetime.
type Client interface {
	// CreateCollection creates a new collection, failing if one by this
	// name already exists.
	CreateCollection(ctx context.Context, name string) (string, error)
	// GetOrCreateCollection resolves name to its handle, creating the
	// collection if absent.
	GetOrCreateCollection(ctx context.Context, name string) (string, error)
	// Add inserts docs into the collection identified by handle.
	Add(ctx context.Context, handle string, docs []Document) error
	// Get returns every document in handle matching where. A nil or
	// empty where returns every document.
	Get(ctx context.Context, handle string, where Where) ([]Document, error)
	// Update replaces an existing document by id, failing with
	// ErrNotFound if it does not exist.
	Update(ctx context.Context, handle string, doc Document) error
	// Delete removes the document identified by id from handle.
	Delete(ctx context.Context, handle string, id string) error
	// Count returns the number of documents in handle matching where.
	Count(ctx context.Context, handle string, where Where) (int, error)
}

// Matches reports whether metadata satisfies where's conjunction of
// exact-match clauses.
func (w Where) Matches(metadata map[string]string) bool {
	for k, v := range w {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
