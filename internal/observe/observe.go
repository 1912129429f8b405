package observe

import (
	"context"
	"io"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("memochat")

// Options selects the log format and verbosity.
type Options struct {
	// Verbose enables info and debug output; otherwise only warnings and
	// errors are logged.
	Verbose bool
	// JSON switches from the console handler to one JSON object per line.
	JSON bool
}

// Observer handles logging and tracing
type Observer struct {
	log *bolt.Logger
}

// New creates an Observer writing to out. Chat output goes to stdout, so
// callers normally pass stderr here.
func New(out io.Writer, opts Options) *Observer {
	var l *bolt.Logger
	if opts.JSON {
		l = bolt.New(bolt.NewJSONHandler(out))
	} else {
		l = bolt.New(bolt.NewConsoleHandler(out))
	}

	if !opts.Verbose {
		l.SetLevel(bolt.WARN)
	}

	return &Observer{
		log: l,
	}
}

// Discard returns an Observer that drops everything; used by tests and by
// library callers that don't care about logs.
func Discard() *Observer {
	return New(io.Discard, Options{})
}

// Log returns the underlying logger
func (o *Observer) Log() *bolt.Logger {
	return o.log
}

// StartSpan starts a new OTel span tagged with the session id.
func (o *Observer) StartSpan(ctx context.Context, name, sessionID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("memochat.session", sessionID)))
}

// Close ensures any buffered logs or traces are flushed (placeholder)
func (o *Observer) Close() error {
	return nil
}
