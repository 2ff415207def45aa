// Package memory keeps harvested documents in-process for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/datacite"
)

// DocumentStore stores documents keyed by identifier, remembering the order
// in which identifiers were first saved.
type DocumentStore struct {
	mu    sync.RWMutex
	docs  map[string]datacite.Document
	order []string
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]datacite.Document)}
}

// Save stores doc, replacing any earlier document with the same identifier.
func (s *DocumentStore) Save(ctx context.Context, doc datacite.Document) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	if doc.Identifier == "" {
		return fmt.Errorf("save document: identifier is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.Identifier]; !ok {
		s.order = append(s.order, doc.Identifier)
	}
	s.docs[doc.Identifier] = doc
	return nil
}

// Get returns the document stored for identifier.
func (s *DocumentStore) Get(identifier string) (datacite.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[identifier]
	return doc, ok
}

// Documents returns the stored documents in first-save order.
func (s *DocumentStore) Documents() []datacite.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]datacite.Document, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out
}

// Len reports how many distinct documents are stored.
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
