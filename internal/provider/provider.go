package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrBackend marks failures raised by the model backend itself.
var ErrBackend = errors.New("backend call failed")

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes generation for a single call. Zero values leave the
// backend's own default in place.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Request is a rendered prompt plus generation options.
type Request struct {
	Messages []Message `json:"messages"`
	Options  Options   `json:"options"`
}

// Prompt wraps a single rendered prompt as a user message.
func Prompt(text string, opts Options) Request {
	return Request{
		Messages: []Message{{Role: RoleUser, Content: text}},
		Options:  opts,
	}
}

// Response represents the output from the model.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Payload returns the textual part of the envelope.
func (r *Response) Payload() string {
	if r == nil {
		return ""
	}
	return r.Content
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for AI model interactions.
type Provider interface {
	// Complete sends the request to the model and returns its answer.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// Call invokes p and normalizes whatever it hands back to plain text.
// Invalid UTF-8 in the reply becomes U+FFFD. Backend failures are wrapped
// with ErrBackend.
func Call(ctx context.Context, p Provider, req Request) (string, Usage, error) {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("%w (%s): %w", ErrBackend, p.Name(), err)
	}
	var usage Usage
	if resp != nil {
		usage = resp.Usage
	}
	return strings.ToValidUTF8(Text(resp), "\uFFFD"), usage, nil
}
