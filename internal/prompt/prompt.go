// Package prompt renders the two fixed templates the assistant sends to its
// backend: the persona prompt for every reply and the summary prompt used to
// compress short-term history.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

const DefaultPersona = `You are {{.BotName}}, a chatbot with a distinct personality.

{{.Personality}}

Here is what you remember about the user: {{.Memory}}

Here is the recent conversation history: {{.Context}}

Question: {{.Question}}

Be brief and to the point. Keep your response up to one sentence.
`

const DefaultSummary = `Summarize the following conversation history in one paragraph, focusing only on key events and important details.
Ignore small talk. Do not return anything else than the summary itself.

History:
{{.History}}

Summary:
`

// Fields are the named inputs of the persona template.
type Fields struct {
	BotName     string
	Personality string
	Memory      string
	Context     string
	Question    string
}

type summaryFields struct {
	History string
}

// Set holds the parsed persona and summary templates.
type Set struct {
	persona *template.Template
	summary *template.Template
}

// Default returns the built-in templates.
func Default() *Set {
	s, err := New("", "")
	if err != nil {
		panic(err)
	}
	return s
}

// New parses custom templates; empty strings fall back to the defaults.
func New(persona, summary string) (*Set, error) {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	if strings.TrimSpace(summary) == "" {
		summary = DefaultSummary
	}

	p, err := template.New("persona").Option("missingkey=error").Parse(persona)
	if err != nil {
		return nil, fmt.Errorf("parse persona template: %w", err)
	}
	s, err := template.New("summary").Option("missingkey=error").Parse(summary)
	if err != nil {
		return nil, fmt.Errorf("parse summary template: %w", err)
	}

	// Unknown fields such as {{.Mem}} only fail on execution.
	set := &Set{persona: p, summary: s}
	if _, err := set.Persona(Fields{}); err != nil {
		return nil, err
	}
	if _, err := set.Summary(""); err != nil {
		return nil, err
	}
	return set, nil
}

// Persona renders the reply prompt.
func (s *Set) Persona(f Fields) (string, error) {
	var sb strings.Builder
	if err := s.persona.Execute(&sb, f); err != nil {
		return "", fmt.Errorf("render persona prompt: %w", err)
	}
	return sb.String(), nil
}

// Summary renders the summarization prompt around an already joined history.
func (s *Set) Summary(history string) (string, error) {
	var sb strings.Builder
	if err := s.summary.Execute(&sb, summaryFields{History: history}); err != nil {
		return "", fmt.Errorf("render summary prompt: %w", err)
	}
	return sb.String(), nil
}
