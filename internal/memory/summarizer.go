package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/memochat/internal/prompt"
	"github.com/felixgeelhaar/memochat/internal/provider"
)

// ErrEmptySummary is returned when the backend answers with blank text.
// Such a summary must never be persisted.
var ErrEmptySummary = errors.New("summarizer returned an empty summary")

// Summarizer condenses a batch of turns into one prose paragraph.
type Summarizer struct {
	provider provider.Provider
	prompts  *prompt.Set
	opts     provider.Options
}

func NewSummarizer(p provider.Provider, prompts *prompt.Set, opts provider.Options) *Summarizer {
	if prompts == nil {
		prompts = prompt.Default()
	}
	return &Summarizer{provider: p, prompts: prompts, opts: opts}
}

// Summarize joins history one entry per line, asks the backend for a
// summary and returns it trimmed, along with the tokens the call used.
// Usage is reported even when the summary comes back empty.
func (s *Summarizer) Summarize(ctx context.Context, history []string) (string, provider.Usage, error) {
	text, err := s.prompts.Summary(strings.Join(history, "\n"))
	if err != nil {
		return "", provider.Usage{}, err
	}

	out, usage, err := provider.Call(ctx, s.provider, provider.Prompt(text, s.opts))
	if err != nil {
		return "", usage, fmt.Errorf("summarize %d turns: %w", len(history), err)
	}

	summary := strings.TrimSpace(out)
	if summary == "" {
		return "", usage, ErrEmptySummary
	}
	return summary, usage, nil
}
