package provider

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CLIProvider shells out to a local model runner (llm, ollama run, ...)
// and treats its stdout as the answer.
type CLIProvider struct {
	binaryPath string
	args       []string
	timeout    time.Duration
}

func NewCLIProvider(binaryPath string, args []string) (*CLIProvider, error) {
	if binaryPath == "" {
		return nil, fmt.Errorf("binary path is required for CLI provider")
	}
	return &CLIProvider{
		binaryPath: binaryPath,
		args:       args,
		timeout:    2 * time.Minute,
	}, nil
}

func (p *CLIProvider) Name() string {
	return "cli-" + p.binaryPath
}

func (p *CLIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	parts := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		parts = append(parts, m.Content)
	}
	prompt := strings.Join(parts, "\n\n")

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	fullArgs := append(append([]string{}, p.args...), prompt)
	cmd := exec.CommandContext(execCtx, p.binaryPath, fullArgs...) // #nosec G204

	output, err := cmd.Output()
	result := string(output)
	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("cli backend timed out: %w", err)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("cli backend failed: %w\nStderr: %s", err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("cli backend failed: %w", err)
	}

	return &Response{
		Content: result,
		Usage: Usage{
			TotalTokens: len(strings.Fields(result)),
		},
	}, nil
}
