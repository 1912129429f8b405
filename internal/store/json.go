package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// tinyTable is the TinyDB default table name. Memory files written by
// TinyDB keep their summaries under it.
const tinyTable = "_default"

type tinyRecord struct {
	Summary string `json:"summary"`
}

// JSONStore keeps the summary log in a human-readable JSON file with the
// TinyDB layout {"_default": {"1": {"summary": "..."}}}. Every call goes
// back to disk; nothing is cached between reads.
type JSONStore struct {
	path string
}

func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create memory directory: %w", err)
	}
	return &JSONStore{path: path}, nil
}

func (s *JSONStore) Path() string {
	return s.path
}

// Contains and Append compare text as it will read back from the file:
// invalid UTF-8 is stored as U+FFFD.
func (s *JSONStore) Contains(_ context.Context, text string) (bool, error) {
	text = strings.ToValidUTF8(text, "\uFFFD")
	entries, err := s.read()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e == text {
			return true, nil
		}
	}
	return false, nil
}

func (s *JSONStore) Append(ctx context.Context, text string) (bool, error) {
	text = strings.ToValidUTF8(text, "\uFFFD")
	entries, err := s.read()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e == text {
			return false, nil
		}
	}
	if err := s.write(append(entries, text)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *JSONStore) LoadAll(context.Context) ([]string, error) {
	return s.read()
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) read() ([]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer f.Close()

	entries, err := ReadTinyDB(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, s.path, err)
	}
	return entries, nil
}

// write replaces the file atomically so a crash never leaves half a log.
func (s *JSONStore) write(entries []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".memory-*.json")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteTinyDB(tmp, entries); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// ReadTinyDB decodes summaries from a TinyDB-layout document in document-id
// order. An empty document is an empty log.
func ReadTinyDB(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var doc map[string]map[string]tinyRecord
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode memory file: %w", err)
	}

	table := doc[tinyTable]
	ids := make([]int, 0, len(table))
	byID := make(map[int]string, len(table))
	for key, rec := range table {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("decode memory file: bad document id %q", key)
		}
		ids = append(ids, id)
		byID[id] = rec.Summary
	}
	sort.Ints(ids)

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}

// WriteTinyDB encodes summaries with document ids starting at 1.
func WriteTinyDB(w io.Writer, summaries []string) error {
	table := make(map[string]tinyRecord, len(summaries))
	for i, s := range summaries {
		table[strconv.Itoa(i+1)] = tinyRecord{Summary: s}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]map[string]tinyRecord{tinyTable: table})
}

var _ SummaryLog = (*JSONStore)(nil)
