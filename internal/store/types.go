package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRead wraps failures reading the durable medium.
	ErrRead = errors.New("store read failed")
	// ErrWrite wraps failures writing the durable medium.
	ErrWrite = errors.New("store write failed")
)

const (
	StatusActive      = "active"
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

// Session represents one interactive chat run
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    string
	Metadata  map[string]string
}

// SummaryLog is the append-only, deduplicated list of conversation summaries.
type SummaryLog interface {
	Contains(ctx context.Context, text string) (bool, error)
	// Append stores text unless an identical entry exists. It reports
	// whether a new entry was written.
	Append(ctx context.Context, text string) (bool, error)
	// LoadAll returns every summary in insertion order.
	LoadAll(ctx context.Context) ([]string, error)
	Close() error
}

// Storage defines the interface for persistence
type Storage interface {
	SummaryLog

	// Session Management
	CreateSession(session *Session) error
	GetSession(id string) (*Session, error)
	UpdateSession(session *Session) error

	// Configuration Management
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)
}
