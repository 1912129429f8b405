// Package memory holds the two memory tiers of a chat session: the
// short-term turn buffer and the contract for the long-term summary log,
// plus the summarizer that moves turns from one to the other.
package memory

import (
	"context"
	"strings"
)

// SummaryStore is the long-term tier: an append-only log of summaries
// deduplicated on exact text.
type SummaryStore interface {
	// Contains reports whether a summary with exactly this text exists.
	Contains(ctx context.Context, text string) (bool, error)

	// Append stores text unless it is already present. It reports whether
	// a new entry was written.
	Append(ctx context.Context, text string) (bool, error)

	// LoadAll returns every summary in storage order.
	LoadAll(ctx context.Context) ([]string, error)
}

// LongTerm reads the whole summary log fresh and joins it one per line.
func LongTerm(ctx context.Context, s SummaryStore) (string, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join(all, "\n"), nil
}
