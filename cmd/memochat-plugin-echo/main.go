// Command memochat-plugin-echo is a minimal backend plugin. It answers every
// prompt by repeating the user's question, which is enough to try the
// plugin provider without a model server.
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/memochat/internal/plugin"
	"github.com/felixgeelhaar/memochat/internal/provider"
)

type echo struct{}

func (echo) Name() string { return "echo" }

func (echo) Complete(_ context.Context, req provider.Request) (*provider.Response, error) {
	var last string
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	for _, line := range strings.Split(last, "\n") {
		if q, ok := strings.CutPrefix(line, "Question: "); ok {
			return &provider.Response{Content: "You said: " + q}, nil
		}
	}
	// Summary prompts have no question line.
	return &provider.Response{Content: summarize(last)}, nil
}

func summarize(prompt string) string {
	_, history, _ := strings.Cut(prompt, "History:\n")
	history, _, _ = strings.Cut(history, "\n\nSummary:")
	lines := strings.Split(strings.TrimSpace(history), "\n")
	return fmt.Sprintf("The user sent %d messages, ending with %q.", len(lines), strings.TrimPrefix(lines[len(lines)-1], "User: "))
}

func main() {
	plugin.Serve(echo{})
}
