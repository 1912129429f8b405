package provider

import (
	"context"
	"fmt"
	"sync"
)

// StubProvider is a scripted provider for tests and offline runs.
// Scripted Responses are consumed first, then Reply (if set), then a
// numbered canned answer.
type StubProvider struct {
	Responses []Response
	Reply     func(req Request) (*Response, error)

	mu       sync.Mutex
	requests []Request
}

func NewStubProvider(responses ...string) *StubProvider {
	s := &StubProvider{}
	for _, r := range responses {
		s.Responses = append(s.Responses, Response{Content: r})
	}
	return s
}

func (m *StubProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	n := len(m.requests)
	var scripted *Response
	if len(m.Responses) > 0 {
		resp := m.Responses[0]
		m.Responses = m.Responses[1:]
		scripted = &resp
	}
	m.mu.Unlock()

	if scripted != nil {
		return scripted, nil
	}
	if m.Reply != nil {
		return m.Reply(req)
	}
	return &Response{Content: fmt.Sprintf("stub response %d", n)}, nil
}

// Requests returns every request seen so far, oldest first.
func (m *StubProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *StubProvider) Name() string {
	return "stub"
}
