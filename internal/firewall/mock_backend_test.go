package firewall

import (
	"io"
	"log/slog"
	"sync"
)

// mockCall records a single method invocation on mockBackend.
type mockCall struct {
	Method string
	Args   []interface{}
}

// mockBackend is a test double for Backend.
type mockBackend struct {
	mu sync.Mutex

	calls []mockCall

	applyRulesErr error
	resetErr      error
}

func (m *mockBackend) ApplyRules(rules []Rule) error {
	m.mu.Lock()
	m.calls = append(m.calls, mockCall{Method: "ApplyRules", Args: []interface{}{rules}})
	err := m.applyRulesErr
	m.mu.Unlock()
	return err
}

func (m *mockBackend) Reset() error {
	m.mu.Lock()
	m.calls = append(m.calls, mockCall{Method: "Reset"})
	err := m.resetErr
	m.mu.Unlock()
	return err
}

// callsFor returns all recorded calls for the given method name.
func (m *mockBackend) callsFor(method string) []mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []mockCall
	for _, c := range m.calls {
		if c.Method == method {
			result = append(result, c)
		}
	}
	return result
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
