// Package config loads the assistant's settings: persona, backend, memory
// policy and prompt templates.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/memochat/internal/guard"
	"github.com/felixgeelhaar/memochat/internal/prompt"
)

const (
	DefaultBotName     = "Aisha"
	DefaultPersonality = "You are a sarcastic and witty AI with a love for sci-fi, cyberpunk, and retro video games.\n" +
		"Your main goal is to provide engaging and entertaining conversations for users."
	DefaultProvider    = "ollama"
	DefaultModel       = "mistral:7b"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 100
	DefaultThreshold   = 5
	DefaultExitCommand = "/exit"

	StoreSQLite = "sqlite"
	StoreJSON   = "json"
)

type Persona struct {
	Name        string `json:"name" yaml:"name"`
	Personality string `json:"personality" yaml:"personality"`
}

type Backend struct {
	Provider    string  `json:"provider" yaml:"provider"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	// Command and Args configure the "cli" provider.
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args" yaml:"args"`
	// PluginPath is the executable for the "plugin" provider.
	PluginPath string `json:"plugin_path" yaml:"plugin_path"`
}

type Memory struct {
	// Threshold is the buffer size that triggers a summary flush.
	Threshold int    `json:"threshold" yaml:"threshold"`
	Store     string `json:"store" yaml:"store"`
	// Path overrides the store location inside the data directory.
	Path string `json:"path" yaml:"path"`
}

type Templates struct {
	Persona string `json:"persona" yaml:"persona"`
	Summary string `json:"summary" yaml:"summary"`
}

// Config is the full settings document.
type Config struct {
	Persona     Persona   `json:"persona" yaml:"persona"`
	Backend     Backend   `json:"backend" yaml:"backend"`
	Memory      Memory    `json:"memory" yaml:"memory"`
	Templates   Templates `json:"templates" yaml:"templates"`
	ExitCommand string    `json:"exit_command" yaml:"exit_command"`
	// MaxTurns ends the session after this many turns; 0 means no limit.
	MaxTurns int `json:"max_turns" yaml:"max_turns"`
	// MaxPromptTokens and MaxOutputTokens cap the tokens the backend
	// reports across replies and summaries; 0 means no limit.
	MaxPromptTokens int `json:"max_prompt_tokens" yaml:"max_prompt_tokens"`
	MaxOutputTokens int `json:"max_output_tokens" yaml:"max_output_tokens"`
}

// ValidationResult represents the outcome of a validation pass.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// Default returns the settings the assistant runs with when no file is given.
func Default() Config {
	return Config{
		Persona: Persona{Name: DefaultBotName, Personality: DefaultPersonality},
		Backend: Backend{
			Provider:    DefaultProvider,
			Model:       DefaultModel,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
		},
		Memory:      Memory{Threshold: DefaultThreshold, Store: StoreSQLite},
		ExitCommand: DefaultExitCommand,
	}
}

// Load reads a settings file (JSON or YAML) and overlays it on Default.
// Fields absent from the file keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to unmarshal JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config format: %s (use .json or .yaml)", ext)
	}

	return cfg, nil
}

// Validate checks the settings for values the session cannot run with.
func (c Config) Validate() ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}
	fail := func(msg string) {
		res.Valid = false
		res.Errors = append(res.Errors, msg)
	}

	if strings.TrimSpace(c.Persona.Name) == "" {
		fail("persona name is required")
	}
	if strings.TrimSpace(c.Persona.Personality) == "" {
		res.Warnings = append(res.Warnings, "personality is empty; replies will have no character")
	}

	if c.Memory.Threshold < 1 {
		fail(fmt.Sprintf("memory threshold must be at least 1, got %d", c.Memory.Threshold))
	}
	switch c.Memory.Store {
	case StoreSQLite, StoreJSON:
	default:
		fail(fmt.Sprintf("unknown memory store %q (use sqlite or json)", c.Memory.Store))
	}

	if c.Backend.Provider == "" {
		fail("backend provider is required")
	}
	if c.Backend.Provider == "cli" && c.Backend.Command == "" {
		fail("cli provider needs backend.command")
	}
	if c.Backend.Provider == "plugin" && c.Backend.PluginPath == "" {
		fail("plugin provider needs backend.plugin_path")
	}
	if c.Backend.Temperature < 0 || c.Backend.Temperature > 2 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("temperature %.2f is outside the usual 0-2 range", c.Backend.Temperature))
	}
	if c.Backend.MaxTokens < 0 {
		fail("max_tokens cannot be negative")
	}

	if strings.TrimSpace(c.ExitCommand) == "" {
		fail("exit command is required")
	}
	if c.MaxTurns < 0 {
		fail("max_turns cannot be negative")
	}
	if c.MaxPromptTokens < 0 || c.MaxOutputTokens < 0 {
		fail("token budgets cannot be negative")
	}

	if _, err := prompt.New(c.Templates.Persona, c.Templates.Summary); err != nil {
		fail(err.Error())
	}

	return res
}

// Budget returns the session limits as a guard policy.
func (c Config) Budget() guard.Policy {
	return guard.Policy{
		MaxTurns:        c.MaxTurns,
		MaxPromptTokens: c.MaxPromptTokens,
		MaxOutputTokens: c.MaxOutputTokens,
	}
}

// Prompts parses the configured templates, falling back to the built-in ones.
func (c Config) Prompts() (*prompt.Set, error) {
	return prompt.New(c.Templates.Persona, c.Templates.Summary)
}
