package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/ollama/ollama/api"
)

const defaultOllamaModel = "mistral:7b"

type OllamaProvider struct {
	client *api.Client
	model  string
}

// NewOllamaProvider talks to the server named by OLLAMA_HOST, or the local
// default.
func NewOllamaProvider(model string) (*OllamaProvider, error) {
	return NewOllamaProviderAt(os.Getenv("OLLAMA_HOST"), model)
}

func NewOllamaProviderAt(baseURL, model string) (*OllamaProvider, error) {
	if model == "" {
		model = defaultOllamaModel
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	uri, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", baseURL, err)
	}

	return &OllamaProvider{
		client: api.NewClient(uri, http.DefaultClient),
		model:  model,
	}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	apiMsgs := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		apiMsgs = append(apiMsgs, api.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: apiMsgs,
		Stream:   new(bool), // false
		Options:  ollamaOptions(req.Options),
	}

	var content string
	var usage Usage
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		if resp.Done {
			usage = Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}

	return &Response{Content: content, Usage: usage}, nil
}

// ollamaOptions maps generation options onto Ollama's model parameters.
func ollamaOptions(o Options) map[string]any {
	opts := map[string]any{}
	if o.Temperature > 0 {
		opts["temperature"] = o.Temperature
	}
	if o.MaxTokens > 0 {
		opts["num_predict"] = o.MaxTokens
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}
