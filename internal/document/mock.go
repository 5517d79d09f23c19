package document

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/storage"
)

// MockRenderer stores a placeholder document per invoice without building a
// PDF. Set Err to make Render and Regenerate fail.
type MockRenderer struct {
	mu      sync.Mutex
	docs    map[string][]byte
	Err     error
	Renders int
}

var _ Renderer = (*MockRenderer)(nil)

func NewMockRenderer() *MockRenderer {
	return &MockRenderer{docs: make(map[string][]byte)}
}

func (m *MockRenderer) Render(ctx context.Context, inv *domain.Invoice) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	key := Key(inv)
	m.docs[key] = []byte("%PDF mock " + inv.InvoiceNumber)
	m.Renders++
	return key, nil
}

func (m *MockRenderer) Regenerate(ctx context.Context, inv *domain.Invoice) (string, error) {
	return m.Render(ctx, inv)
}

func (m *MockRenderer) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, key)
	return nil
}

func (m *MockRenderer) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[key]
	if !ok {
		return nil, storage.ErrFileNotFound(key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Has reports whether a document is stored under key.
func (m *MockRenderer) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[key]
	return ok
}
