package vectorclient

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process fake used by the test suite and as a
// local-dev fallback when no vector store backend is configured.
type Memory struct {
	mu          sync.Mutex
	collections map[string]string              // name -> handle
	docs        map[string]map[string]Document // handle -> id -> document
	nextHandle  int
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]string),
		docs:        make(map[string]map[string]Document),
	}
}

func (m *Memory) CreateCollection(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[name]; ok {
		return "", fmt.Errorf("vectorclient: collection %q already exists", name)
	}
	m.nextHandle++
	handle := fmt.Sprintf("coll-%d", m.nextHandle)
	m.collections[name] = handle
	m.docs[handle] = make(map[string]Document)
	return handle, nil
}

func (m *Memory) GetOrCreateCollection(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if handle, ok := m.collections[name]; ok {
		return handle, nil
	}
	m.nextHandle++
	handle := fmt.Sprintf("coll-%d", m.nextHandle)
	m.collections[name] = handle
	m.docs[handle] = make(map[string]Document)
	return handle, nil
}

func (m *Memory) Add(_ context.Context, handle string, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.docs[handle]
	if !ok {
		return fmt.Errorf("vectorclient: unknown collection handle %q", handle)
	}
	for _, doc := range docs {
		bucket[doc.ID] = doc
	}
	return nil
}

func (m *Memory) Get(_ context.Context, handle string, where Where) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.docs[handle]
	if !ok {
		return nil, fmt.Errorf("vectorclient: unknown collection handle %q", handle)
	}
	out := make([]Document, 0, len(bucket))
	for _, doc := range bucket {
		if where.Matches(doc.Metadata) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *Memory) Update(_ context.Context, handle string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.docs[handle]
	if !ok {
		return fmt.Errorf("vectorclient: unknown collection handle %q", handle)
	}
	if _, ok := bucket[doc.ID]; !ok {
		return ErrNotFound
	}
	bucket[doc.ID] = doc
	return nil
}

func (m *Memory) Delete(_ context.Context, handle string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.docs[handle]
	if !ok {
		return fmt.Errorf("vectorclient: unknown collection handle %q", handle)
	}
	delete(bucket, id)
	return nil
}

func (m *Memory) Count(ctx context.Context, handle string, where Where) (int, error) {
	docs, err := m.Get(ctx, handle, where)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}
