package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/felixgeelhaar/memochat/internal/chat"
	"github.com/felixgeelhaar/memochat/internal/config"
	"github.com/felixgeelhaar/memochat/internal/guard"
	"github.com/felixgeelhaar/memochat/internal/ui"
	"github.com/felixgeelhaar/memochat/internal/ui/tui"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	providerType string
	modelName    string
	storeKind    string
	dbPath       string
	threshold    int
	maxTurns     int
	maxPrompt    int
	maxOutput    int
	verbose      bool
	jsonLogs     bool
	interactive  bool
)

// RootCmd starts a chat when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "memochat",
	Short: "Terminal chat assistant with long-term memory",
	Long: `memochat talks to a language model in the voice of a configurable persona.
Every few turns the conversation is summarized and the summary is kept,
so later sessions start with what earlier ones talked about.`,
	Args:          cobra.NoArgs,
	RunE:          runChat,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start a chat session (default)",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

// Execute runs the command line and exits with its status: 130 after an
// interrupt, 1 after any failure including a lost final summary.
func Execute() {
	err := RootCmd.ExecuteContext(context.Background())
	code := ExitCode(err)
	if code == 1 {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(code)
}

// ExitCode maps a command error to a process status. A failed final flush
// wins over an interrupt so the lost summary is never reported as a clean
// Ctrl+C.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, chat.ErrFinalFlush):
		return 1
	case errors.Is(err, chat.ErrInterrupted):
		return 130
	default:
		return 1
	}
}

func init() {
	RootCmd.AddCommand(chatCmd)

	pf := RootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Settings file (.yaml or .json); defaults to ~/.memochat/config.yaml if present")
	pf.StringVarP(&providerType, "provider", "p", config.DefaultProvider, "Backend (ollama, openai, gemini, anthropic, cli, plugin, stub)")
	pf.StringVarP(&modelName, "model", "m", "", "Model name (default depends on provider)")
	pf.StringVar(&storeKind, "store", config.StoreSQLite, "Summary store (sqlite, json)")
	pf.StringVar(&dbPath, "db", "", "Summary store location (default in ~/.memochat)")
	pf.IntVar(&threshold, "threshold", config.DefaultThreshold, "Turns buffered before a summary is written")
	pf.IntVar(&maxTurns, "max-turns", 0, "End the session after this many turns (0 = no limit)")
	pf.IntVar(&maxPrompt, "max-prompt-tokens", 0, "End the session once backend prompt tokens reach this total (0 = no limit)")
	pf.IntVar(&maxOutput, "max-output-tokens", 0, "End the session once backend output tokens reach this total (0 = no limit)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	pf.BoolVar(&jsonLogs, "json-logs", false, "Write logs as JSON")
	pf.BoolVarP(&interactive, "tui", "i", false, "Start the full-screen chat")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	obs := newObserver(cmd)
	defer obs.Close()

	stores, err := openStores(cfg)
	if err != nil {
		obs.Log().Error().Err(err).Msg("Failed to open memory store")
		return err
	}
	defer stores.Close()

	p, closeProvider, err := buildProvider(cfg.Backend, stores.db)
	if err != nil {
		obs.Log().Error().Err(err).Str("provider", cfg.Backend.Provider).Msg("Failed to initialize provider")
		return err
	}
	defer closeProvider()

	chatCfg, err := chat.NewConfig(cfg)
	if err != nil {
		return err
	}

	sess := chat.New(chatCfg, p, stores.summaries, obs)
	sess.SetRecorder(stores.db)
	sess.SetGuard(guard.New(cfg.Budget()))
	sess.Events().SubscribeAll(func(e chat.Event) {
		obs.Log().Debug().
			Str("event", string(e.Type)).
			Str("session", e.SessionID).
			Msg("session event")
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if interactive {
		return runTUI(ctx, sess, cfg)
	}

	sess.SetUI(ui.NewConsole(cmd.OutOrStdout()))
	return sess.Run(ctx, cmd.InOrStdin())
}

// runTUI drives the session from the full-screen chat. Submitted lines
// travel through a pipe into Session.Run.
func runTUI(ctx context.Context, sess *chat.Session, cfg config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pr, pw := io.Pipe()
	model := tui.NewModel(cfg.Persona.Name, cfg.Memory.Threshold, pw)
	// Runs after the pipe is closed, so queued lines cannot block it.
	defer model.Close()
	program := tea.NewProgram(model, tea.WithAltScreen())
	sess.SetUI(tui.NewTUI(program))

	done := make(chan error, 1)
	go func() {
		err := sess.Run(ctx, pr)
		program.Quit()
		done <- err
	}()
	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	final, err := program.Run()
	if err != nil {
		cancel()
		pw.Close()
		<-done
		return fmt.Errorf("tui: %w", err)
	}

	m, ok := final.(tui.Model)
	if ok && m.Interrupted() || ctx.Err() != nil {
		// Cancel before closing the pipe so Run sees the interrupt and
		// not an end of input.
		cancel()
		runErr := <-done
		pw.Close()
		return runErr
	}

	pw.Close()
	return <-done
}
