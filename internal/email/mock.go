package email

import (
	"context"
	"fmt"
	"sync"
)

// MockSender records sent emails. Set Err to make every send fail.
type MockSender struct {
	mu   sync.Mutex
	Sent []*Email
	Err  error
}

func (m *MockSender) Send(ctx context.Context, email *Email) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.Sent = append(m.Sent, email)
	return fmt.Sprintf("mock-%d", len(m.Sent)), nil
}

// Messages returns a copy of the sent emails.
func (m *MockSender) Messages() []*Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Email(nil), m.Sent...)
}
