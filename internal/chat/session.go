// Package chat runs a conversation: it feeds user turns into the short-term
// buffer, compresses the buffer into long-term summaries at a threshold,
// answers every turn with a prompt built from both memory tiers and flushes
// whatever is left when the conversation ends.
package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/memochat/internal/config"
	"github.com/felixgeelhaar/memochat/internal/guard"
	"github.com/felixgeelhaar/memochat/internal/memory"
	"github.com/felixgeelhaar/memochat/internal/observe"
	"github.com/felixgeelhaar/memochat/internal/prompt"
	"github.com/felixgeelhaar/memochat/internal/provider"
	"github.com/felixgeelhaar/memochat/internal/store"
	"github.com/felixgeelhaar/memochat/internal/ui"
)

var (
	// ErrExit is returned by HandleTurn when the user typed the exit command.
	ErrExit = errors.New("exit requested")
	// ErrInterrupted marks a conversation ended by a signal rather than by
	// the user.
	ErrInterrupted = errors.New("session interrupted")
	// ErrBudgetExhausted ends the conversation once the guard policy is hit.
	ErrBudgetExhausted = errors.New("session budget exhausted")
	// ErrFinalized is returned for turns offered after Finalize.
	ErrFinalized = errors.New("session already finalized")
	// ErrFinalFlush wraps a failure of the flush that runs at shutdown.
	ErrFinalFlush = errors.New("final flush failed")
)

const exitNotice = "Saving chat and exiting..."

// State is where the session is in its turn cycle.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingInput State = "awaiting_input"
	StateProcessing    State = "processing"
	StateSummarizing   State = "summarizing"
	StatePersisting    State = "persisting"
	StateResponding    State = "responding"
	StateExiting       State = "exiting"
)

// Config is the read-only persona and memory policy of a session.
type Config struct {
	BotName     string
	Personality string
	// Threshold is the buffer size that triggers a flush.
	Threshold   int
	ExitCommand string
	Generation  provider.Options
	Prompts     *prompt.Set
}

// NewConfig derives a session config from loaded settings.
func NewConfig(c config.Config) (Config, error) {
	prompts, err := c.Prompts()
	if err != nil {
		return Config{}, err
	}
	return Config{
		BotName:     c.Persona.Name,
		Personality: c.Persona.Personality,
		Threshold:   c.Memory.Threshold,
		ExitCommand: c.ExitCommand,
		Generation: provider.Options{
			Temperature: c.Backend.Temperature,
			MaxTokens:   c.Backend.MaxTokens,
		},
		Prompts: prompts,
	}, nil
}

// Recorder keeps the session record. *store.SQLiteStore implements it.
type Recorder interface {
	CreateSession(session *store.Session) error
	UpdateSession(session *store.Session) error
}

// Session owns one conversation. HandleTurn, Flush and Finalize are
// serialized; the buffer is never touched outside them.
type Session struct {
	cfg        Config
	provider   provider.Provider
	summaries  memory.SummaryStore
	summarizer *memory.Summarizer
	buffer     *memory.Buffer
	observe    *observe.Observer
	ui         ui.UI
	guard      *guard.Guard
	events     *EventBus
	recorder   Recorder

	id     string
	state  atomic.Value
	record *store.Session

	mu           sync.Mutex
	started      bool
	finalized    bool
	finalErr     error
	turns        int
	flushes      int
	promptTokens int
	outputTokens int
}

func New(cfg Config, p provider.Provider, summaries memory.SummaryStore, o *observe.Observer) *Session {
	if cfg.Threshold < 1 {
		cfg.Threshold = config.DefaultThreshold
	}
	if cfg.ExitCommand == "" {
		cfg.ExitCommand = config.DefaultExitCommand
	}
	if cfg.BotName == "" {
		cfg.BotName = config.DefaultBotName
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompt.Default()
	}
	if o == nil {
		o = observe.Discard()
	}

	s := &Session{
		cfg:        cfg,
		provider:   p,
		summaries:  summaries,
		summarizer: memory.NewSummarizer(p, cfg.Prompts, cfg.Generation),
		buffer:     memory.NewBuffer(),
		observe:    o,
		ui:         ui.SilentUI{},
		guard:      guard.New(guard.DefaultPolicy),
		events:     NewEventBus(),
		id:         uuid.NewString(),
	}
	s.state.Store(StateIdle)
	return s
}

func (s *Session) SetUI(u ui.UI) {
	if u != nil {
		s.ui = u
	}
}

func (s *Session) SetGuard(g *guard.Guard) {
	if g != nil {
		s.guard = g
	}
}

// SetRecorder makes the session keep a record of its lifecycle.
func (s *Session) SetRecorder(r Recorder) {
	s.recorder = r
}

func (s *Session) Events() *EventBus {
	return s.events
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return s.state.Load().(State)
}

// Pending is the number of turns waiting for the next summary.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Size()
}

func (s *Session) setState(st State) {
	s.state.Store(st)
}

func (s *Session) publish(t EventType, data map[string]any) {
	s.events.PublishWithData(t, s.id, data)
}

// Start shows the banner and opens the session record. It is safe to call
// more than once.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	if s.recorder != nil {
		now := time.Now()
		s.record = &store.Session{
			ID:        s.id,
			CreatedAt: now,
			UpdatedAt: now,
			Status:    store.StatusActive,
			Metadata: map[string]string{
				"bot":      s.cfg.BotName,
				"provider": s.provider.Name(),
			},
		}
		if err := s.recorder.CreateSession(s.record); err != nil {
			s.observe.Log().Warn().Str("session", s.id).Err(err).Msg("failed to record session")
			s.record = nil
		}
	}

	s.observe.Log().Info().
		Str("session", s.id).
		Str("provider", s.provider.Name()).
		Int("threshold", s.cfg.Threshold).
		Msg("session started")
	s.ui.Banner(s.cfg.BotName, s.cfg.ExitCommand)
}

// HandleTurn processes one line of user input and returns the reply.
//
// It returns ErrExit for the exit command. A failed flush is reported to
// the UI and the turn carries on; a failed memory read or backend call
// fails the turn. When the guard budget runs out after a successful turn
// the reply is returned together with ErrBudgetExhausted.
func (s *Session) HandleTurn(ctx context.Context, line string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return "", ErrFinalized
	}
	if strings.EqualFold(line, s.cfg.ExitCommand) {
		return "", ErrExit
	}

	defer s.setState(StateIdle)
	s.setState(StateProcessing)
	s.turns++
	turnLog := s.observe.Log().With().Str("session", s.id).Int("turn", s.turns).Logger()

	s.buffer.Append(memory.Turn{Role: memory.RoleUser, Text: line})
	s.publish(EventTurnReceived, map[string]any{"turn": s.turns, "pending": s.buffer.Size()})

	if s.buffer.Size() >= s.cfg.Threshold {
		if err := s.flush(ctx); err != nil {
			turnLog.Warn().Err(err).Msg("memory flush failed, keeping short-term buffer")
			s.ui.Notice(fmt.Sprintf("Could not save memory (%v); will retry.", err))
		}
	}
	s.ui.UpdateBuffer(s.buffer.Size(), s.cfg.Threshold)

	longTerm, err := memory.LongTerm(ctx, s.summaries)
	if err != nil {
		turnLog.Error().Err(err).Msg("failed to load long-term memory")
		return "", fmt.Errorf("load long-term memory: %w", err)
	}
	s.publish(EventMemoryLoaded, map[string]any{"bytes": len(longTerm)})

	text, err := s.cfg.Prompts.Persona(prompt.Fields{
		BotName:     s.cfg.BotName,
		Personality: s.cfg.Personality,
		Memory:      longTerm,
		Context:     strings.Join(s.buffer.Lines(), "\n"),
		Question:    line,
	})
	if err != nil {
		return "", err
	}

	s.setState(StateResponding)
	callCtx, span := s.observe.StartSpan(context.WithoutCancel(ctx), "chat.respond", s.id)
	reply, usage, err := provider.Call(callCtx, s.provider, provider.Prompt(text, s.cfg.Generation))
	span.End()
	if err != nil {
		turnLog.Error().Err(err).Msg("backend call failed")
		s.publish(EventBackendError, map[string]any{"error": err.Error()})
		return "", err
	}

	s.promptTokens += usage.PromptTokens
	s.outputTokens += usage.CompletionTokens
	s.publish(EventResponse, map[string]any{"turn": s.turns, "tokens": usage.TotalTokens})
	turnLog.Debug().Int("tokens", usage.TotalTokens).Msg("reply received")

	if v := s.guard.CheckBudget(s.turns, s.promptTokens, s.outputTokens); v != nil {
		turnLog.Warn().Str("violation", v.Rule).Msg("session budget reached")
		return reply, fmt.Errorf("%w: %w", ErrBudgetExhausted, v)
	}
	return reply, nil
}

// Flush summarizes and persists the buffer now, regardless of threshold.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.setState(StateIdle)
	return s.flush(ctx)
}

// flush persists before it drains: the buffer only empties once the
// summary is durable. The caller holds s.mu.
func (s *Session) flush(ctx context.Context) error {
	if s.buffer.IsEmpty() {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	ctx, span := s.observe.StartSpan(ctx, "chat.flush", s.id)
	defer span.End()

	turns := s.buffer.Size()
	s.publish(EventFlushStarted, map[string]any{"turns": turns})

	s.setState(StateSummarizing)
	summary, usage, err := s.summarizer.Summarize(ctx, s.buffer.Lines())
	s.promptTokens += usage.PromptTokens
	s.outputTokens += usage.CompletionTokens
	if err != nil {
		return s.flushFailed(err)
	}

	s.setState(StatePersisting)
	written, err := s.summaries.Append(ctx, summary)
	if err != nil {
		return s.flushFailed(err)
	}

	s.buffer.Drain()
	s.flushes++
	if written {
		s.publish(EventSummaryPersisted, map[string]any{"turns": turns, "summary": summary})
	} else {
		s.publish(EventSummaryDuplicate, map[string]any{"turns": turns, "summary": summary})
	}
	s.observe.Log().Info().
		Str("session", s.id).
		Int("turns", turns).
		Str("new", strconv.FormatBool(written)).
		Msg("short-term memory flushed")
	return nil
}

func (s *Session) flushFailed(err error) error {
	s.publish(EventFlushFailed, map[string]any{"error": err.Error()})
	return fmt.Errorf("flush memory: %w", err)
}

// Finalize runs the final flush and closes the session record. Only the
// first call does any work; later calls return the first result. cause is
// why the conversation ended: nil, ErrInterrupted or ErrBudgetExhausted.
func (s *Session) Finalize(ctx context.Context, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return s.finalErr
	}
	s.finalized = true
	s.setState(StateExiting)

	pending := s.buffer.Size()
	err := s.flush(ctx)
	s.finalErr = err
	s.setState(StateExiting)

	status := store.StatusCompleted
	switch {
	case err != nil:
		status = store.StatusFailed
	case errors.Is(cause, ErrInterrupted):
		status = store.StatusInterrupted
	}

	if s.record != nil {
		s.record.Status = status
		s.record.Metadata["turns"] = strconv.Itoa(s.turns)
		s.record.Metadata["flushes"] = strconv.Itoa(s.flushes)
		if uerr := s.recorder.UpdateSession(s.record); uerr != nil {
			s.observe.Log().Warn().Str("session", s.id).Err(uerr).Msg("failed to update session record")
		}
	}

	s.publish(EventSessionFinalized, map[string]any{"status": status, "pending": pending})
	if err != nil {
		s.observe.Log().Error().Str("session", s.id).Err(err).Msg("final flush failed")
	} else {
		s.observe.Log().Info().Str("session", s.id).Str("status", status).Msg("session finalized")
	}
	return err
}

// Run reads lines from in until the exit command, end of input, budget
// exhaustion or ctx cancellation, then finalizes the session.
//
// Cancellation is noticed between turns; a backend call already in flight
// completes first. The returned error wraps ErrInterrupted after a
// cancellation and ErrFinalFlush if the last summary could not be saved.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	s.Start()

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		r := bufio.NewReader(in)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				select {
				case lines <- strings.TrimRight(line, "\r\n"):
				case <-done:
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var cause error
loop:
	for {
		s.setState(StateAwaitingInput)
		s.ui.Prompt()

		select {
		case <-ctx.Done():
			cause = ErrInterrupted
			break loop

		case err := <-readErr:
			if !errors.Is(err, io.EOF) {
				cause = fmt.Errorf("read input: %w", err)
			}
			break loop

		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			reply, err := s.HandleTurn(ctx, line)
			switch {
			case errors.Is(err, ErrExit):
				break loop
			case errors.Is(err, ErrBudgetExhausted):
				s.ui.Reply(s.cfg.BotName, reply)
				s.ui.Notice(err.Error())
				cause = err
				break loop
			case err != nil:
				s.ui.Error(err.Error())
				continue
			}
			s.ui.Reply(s.cfg.BotName, reply)
		}
	}

	s.ui.Notice(exitNotice)
	ferr := s.Finalize(ctx, cause)

	var errs []error
	if cause != nil && !errors.Is(cause, ErrBudgetExhausted) {
		errs = append(errs, cause)
	}
	if ferr != nil {
		s.ui.Error(ferr.Error())
		errs = append(errs, fmt.Errorf("%w: %w", ErrFinalFlush, ferr))
	}
	return errors.Join(errs...)
}
