package llm

import (
	"context"
	"sync"

	"convo-search/internal/domain"
)

// MockCall registra una invocación a MockProvider.
type MockCall struct {
	APIKey  string
	Query   string
	History []domain.Turn
}

// MockProvider permite tests sin llamar a un proveedor real.
type MockProvider struct {
	mu      sync.Mutex
	Result  SearchResult
	Err     error
	Respond func(ctx context.Context, query string, history []domain.Turn) (SearchResult, error)
	calls   []MockCall
}

func (m *MockProvider) Search(ctx context.Context, apiKey, query string, history []domain.Turn) (SearchResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{APIKey: apiKey, Query: query, History: history})
	respond, result, err := m.Respond, m.Result, m.Err
	m.mu.Unlock()

	if respond != nil {
		return respond(ctx, query, history)
	}
	return result, err
}

// Calls devuelve las invocaciones registradas.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}
