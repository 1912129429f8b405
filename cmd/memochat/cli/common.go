package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/memochat/internal/config"
	"github.com/felixgeelhaar/memochat/internal/credential"
	"github.com/felixgeelhaar/memochat/internal/observe"
	"github.com/felixgeelhaar/memochat/internal/plugin"
	"github.com/felixgeelhaar/memochat/internal/provider"
	"github.com/felixgeelhaar/memochat/internal/store"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

const (
	dataDirName    = ".memochat"
	configFileName = "config.yaml"
	sqliteFileName = "memory.db"
	jsonFileName   = "memory.json"
)

func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, dataDirName), nil
}

func newObserver(cmd *cobra.Command) *observe.Observer {
	return observe.New(cmd.ErrOrStderr(), observe.Options{Verbose: verbose, JSON: jsonLogs})
}

// loadSettings reads the settings file and applies the flags the user set
// explicitly on top of it.
func loadSettings(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	path := configPath
	if path == "" {
		dir, err := dataDir()
		if err != nil {
			return cfg, err
		}
		if _, err := os.Stat(filepath.Join(dir, configFileName)); err == nil {
			path = filepath.Join(dir, configFileName)
		}
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Backend.Provider = providerType
		if !flags.Changed("model") && providerType != config.DefaultProvider {
			cfg.Backend.Model = ""
		}
	}
	if flags.Changed("model") {
		cfg.Backend.Model = modelName
	}
	if flags.Changed("store") {
		cfg.Memory.Store = storeKind
	}
	if flags.Changed("db") {
		cfg.Memory.Path = dbPath
	}
	if flags.Changed("threshold") {
		cfg.Memory.Threshold = threshold
	}
	if flags.Changed("max-turns") {
		cfg.MaxTurns = maxTurns
	}
	if flags.Changed("max-prompt-tokens") {
		cfg.MaxPromptTokens = maxPrompt
	}
	if flags.Changed("max-output-tokens") {
		cfg.MaxOutputTokens = maxOutput
	}

	res := cfg.Validate()
	for _, w := range res.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning:", w)
	}
	if !res.Valid {
		return cfg, fmt.Errorf("invalid settings: %s", strings.Join(res.Errors, "; "))
	}
	return cfg, nil
}

// stores bundles the settings database with the summary log in use. The
// database always exists for settings and session records; summaries live
// in it or in a TinyDB JSON file.
type stores struct {
	db        *store.SQLiteStore
	summaries store.SummaryLog
}

func (s *stores) Close() error {
	var errs []error
	if s.summaries != nil && s.summaries != store.SummaryLog(s.db) {
		errs = append(errs, s.summaries.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

func openStores(cfg config.Config) (*stores, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}

	dbFile := filepath.Join(dir, sqliteFileName)
	if cfg.Memory.Store == config.StoreSQLite && cfg.Memory.Path != "" {
		dbFile = cfg.Memory.Path
	}
	db, err := store.NewSQLiteStore(dbFile)
	if err != nil {
		return nil, err
	}

	s := &stores{db: db, summaries: db}
	if cfg.Memory.Store == config.StoreJSON {
		path := cfg.Memory.Path
		if path == "" {
			path = filepath.Join(dir, jsonFileName)
		}
		js, err := store.NewJSONStore(path)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.summaries = js
	}
	return s, nil
}

// API keys are read from the settings table first, then the environment.
var apiKeys = map[string][2]string{
	"openai":    {"openai_api_key", "OPENAI_API_KEY"},
	"gemini":    {"gemini_api_key", "GEMINI_API_KEY"},
	"anthropic": {"anthropic_api_key", "ANTHROPIC_API_KEY"},
}

func apiKey(kv credential.KV, name string) (string, error) {
	keys, ok := apiKeys[name]
	if !ok {
		return "", nil
	}
	vault, err := credential.NewVault()
	if err != nil {
		return "", err
	}
	key, err := vault.Lookup(kv, keys[0], keys[1])
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("%s needs an API key: run 'memochat config set %s <key>' or set %s", name, keys[0], keys[1])
	}
	return key, nil
}

// buildProvider returns the configured backend and a func releasing it.
func buildProvider(b config.Backend, kv credential.KV) (provider.Provider, func(), error) {
	noop := func() {}

	switch b.Provider {
	case "ollama":
		p, err := provider.NewOllamaProviderAt(b.BaseURL, b.Model)
		return p, noop, err
	case "openai":
		key, err := apiKey(kv, b.Provider)
		if err != nil {
			return nil, noop, err
		}
		p, err := provider.NewOpenAIProvider(key, b.BaseURL, b.Model)
		return p, noop, err
	case "gemini":
		key, err := apiKey(kv, b.Provider)
		if err != nil {
			return nil, noop, err
		}
		p, err := provider.NewGeminiProvider(key, b.Model)
		if err != nil {
			return nil, noop, err
		}
		return p, func() { _ = p.Close() }, nil
	case "anthropic":
		key, err := apiKey(kv, b.Provider)
		if err != nil {
			return nil, noop, err
		}
		p, err := provider.NewAnthropicProvider(key, b.Model)
		if err != nil {
			return nil, noop, err
		}
		if b.BaseURL != "" {
			p.SetBaseURL(b.BaseURL)
		}
		return p, noop, nil
	case "cli":
		p, err := provider.NewCLIProvider(b.Command, b.Args)
		return p, noop, err
	case "plugin":
		logger := hclog.New(&hclog.LoggerOptions{
			Name:   "plugin",
			Output: os.Stderr,
			Level:  hclog.LevelFromString(pluginLogLevel()),
		})
		p, err := plugin.Open(b.PluginPath, logger)
		if err != nil {
			return nil, noop, err
		}
		return p, func() { _ = p.Close() }, nil
	case "stub":
		return provider.NewStubProvider(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown provider %q", b.Provider)
	}
}

func pluginLogLevel() string {
	if verbose {
		return "debug"
	}
	return "warn"
}
