package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/memochat/internal/prompt"
	"github.com/felixgeelhaar/memochat/internal/provider"
)

func TestSummarizer_TrimsAndJoins(t *testing.T) {
	p := provider.NewStubProvider("\n  The user greeted the bot and asked for a joke.  \n")
	s := NewSummarizer(p, nil, provider.Options{Temperature: 0.7, MaxTokens: 100})

	got, _, err := s.Summarize(context.Background(), []string{"User: hi", "User: tell me a joke"})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got != "The user greeted the bot and asked for a joke." {
		t.Errorf("summary not trimmed: %q", got)
	}

	reqs := p.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 backend call, got %d", len(reqs))
	}
	sent := reqs[0].Messages[0].Content
	if !strings.Contains(sent, "User: hi\nUser: tell me a joke") {
		t.Errorf("history not newline-joined in prompt:\n%s", sent)
	}
	if reqs[0].Options.MaxTokens != 100 {
		t.Errorf("generation options not forwarded: %+v", reqs[0].Options)
	}
}

func TestSummarizer_EmptyOutput(t *testing.T) {
	for _, out := range []string{"", "   ", "\n\t\n"} {
		s := NewSummarizer(provider.NewStubProvider(out), nil, provider.Options{})
		_, _, err := s.Summarize(context.Background(), []string{"User: hi"})
		if !errors.Is(err, ErrEmptySummary) {
			t.Errorf("output %q: expected ErrEmptySummary, got %v", out, err)
		}
	}
}

func TestSummarizer_BackendFailure(t *testing.T) {
	p := provider.NewStubProvider()
	p.Reply = func(provider.Request) (*provider.Response, error) {
		return nil, errors.New("model not loaded")
	}
	s := NewSummarizer(p, nil, provider.Options{})

	_, _, err := s.Summarize(context.Background(), []string{"User: hi"})
	if !errors.Is(err, provider.ErrBackend) {
		t.Errorf("expected ErrBackend, got %v", err)
	}
}

func TestSummarizer_CustomTemplate(t *testing.T) {
	prompts, err := prompt.New("", "Sum: {{.History}}")
	if err != nil {
		t.Fatal(err)
	}
	p := provider.NewStubProvider("ok")
	s := NewSummarizer(p, prompts, provider.Options{})

	if _, _, err := s.Summarize(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if got := p.Requests()[0].Messages[0].Content; got != "Sum: a\nb" {
		t.Errorf("unexpected prompt %q", got)
	}
}

type sliceStore struct {
	items []string
	err   error
}

func (s *sliceStore) Contains(_ context.Context, text string) (bool, error) {
	for _, it := range s.items {
		if it == text {
			return true, nil
		}
	}
	return false, s.err
}

func (s *sliceStore) Append(ctx context.Context, text string) (bool, error) {
	if ok, err := s.Contains(ctx, text); ok || err != nil {
		return false, err
	}
	s.items = append(s.items, text)
	return true, nil
}

func (s *sliceStore) LoadAll(context.Context) ([]string, error) {
	return s.items, s.err
}

func TestLongTerm(t *testing.T) {
	s := &sliceStore{items: []string{"first summary", "second summary"}}
	got, err := LongTerm(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if got != "first summary\nsecond summary" {
		t.Errorf("unexpected long-term memory %q", got)
	}

	empty, _ := LongTerm(context.Background(), &sliceStore{})
	if empty != "" {
		t.Errorf("expected empty memory, got %q", empty)
	}

	boom := errors.New("disk gone")
	if _, err := LongTerm(context.Background(), &sliceStore{err: boom}); !errors.Is(err, boom) {
		t.Errorf("expected read error to propagate, got %v", err)
	}
}

func TestSummarizer_ReportsUsage(t *testing.T) {
	p := &provider.StubProvider{Responses: []provider.Response{{
		Content: "The user likes tea.",
		Usage:   provider.Usage{PromptTokens: 40, CompletionTokens: 6, TotalTokens: 46},
	}}}
	s := NewSummarizer(p, nil, provider.Options{})

	_, usage, err := s.Summarize(context.Background(), []string{"User: I like tea"})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if usage.PromptTokens != 40 || usage.CompletionTokens != 6 {
		t.Errorf("usage not returned: %+v", usage)
	}
}
