package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	s := newSQLite(t)

	t.Run("Sessions", func(t *testing.T) {
		sess := &Session{
			ID:        "s1",
			CreatedAt: time.Now(),
			Status:    StatusActive,
			Metadata:  map[string]string{"bot": "Aisha"},
		}

		if err := s.CreateSession(sess); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}

		got, err := s.GetSession("s1")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.Metadata["bot"] != "Aisha" {
			t.Errorf("Expected metadata 'Aisha', got '%s'", got.Metadata["bot"])
		}

		got.Status = StatusCompleted
		if err := s.UpdateSession(got); err != nil {
			t.Fatalf("UpdateSession failed: %v", err)
		}

		updated, _ := s.GetSession("s1")
		if updated.Status != StatusCompleted {
			t.Errorf("Expected status 'completed', got '%s'", updated.Status)
		}

		if _, err := s.GetSession("non-existent"); err == nil {
			t.Error("Expected error for non-existent session")
		}
	})

	t.Run("Config", func(t *testing.T) {
		if err := s.SetConfig("k1", "v1"); err != nil {
			t.Fatalf("SetConfig failed: %v", err)
		}
		if err := s.SetConfig("k1", "v2"); err != nil {
			t.Fatalf("SetConfig overwrite failed: %v", err)
		}

		val, err := s.GetConfig("k1")
		if err != nil {
			t.Fatalf("GetConfig failed: %v", err)
		}
		if val != "v2" {
			t.Errorf("Expected 'v2', got '%s'", val)
		}

		val2, _ := s.GetConfig("unknown")
		if val2 != "" {
			t.Errorf("Expected empty string for unknown config, got '%s'", val2)
		}
	})
}

// summaryStores runs a test against every summary log backend.
func summaryStores(t *testing.T, fn func(t *testing.T, s SummaryLog)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLite(t)) })
	t.Run("json", func(t *testing.T) {
		j, err := NewJSONStore(filepath.Join(t.TempDir(), "memory.json"))
		if err != nil {
			t.Fatal(err)
		}
		fn(t, j)
	})
}

func TestSummaries_DedupInvalidUTF8(t *testing.T) {
	summaryStores(t, func(t *testing.T, s SummaryLog) {
		ctx := context.Background()
		const text = "likes \xff games"

		for i := 0; i < 2; i++ {
			written, err := s.Append(ctx, text)
			if err != nil {
				t.Fatalf("Append %d failed: %v", i+1, err)
			}
			if want := i == 0; written != want {
				t.Errorf("Append %d written = %v, want %v", i+1, written, want)
			}
		}

		if ok, err := s.Contains(ctx, text); err != nil || !ok {
			t.Errorf("Contains = %v, %v; want true", ok, err)
		}
		all, err := s.LoadAll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 1 {
			t.Errorf("expected 1 entry, got %q", all)
		}
	})
}

func TestSummaries_Dedup(t *testing.T) {
	summaryStores(t, func(t *testing.T, s SummaryLog) {
		ctx := context.Background()

		written, err := s.Append(ctx, "The user said hi.")
		if err != nil || !written {
			t.Fatalf("first Append = %v, %v", written, err)
		}
		written, err = s.Append(ctx, "The user said hi.")
		if err != nil {
			t.Fatalf("second Append failed: %v", err)
		}
		if written {
			t.Error("duplicate summary was written")
		}

		// Dedup is exact-text only.
		if written, _ := s.Append(ctx, "The user said hi. "); !written {
			t.Error("near-duplicate should be stored")
		}

		all, err := s.LoadAll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"The user said hi.", "The user said hi. "}, all); diff != "" {
			t.Errorf("LoadAll mismatch (-want +got):\n%s", diff)
		}

		ok, _ := s.Contains(ctx, "The user said hi.")
		if !ok {
			t.Error("Contains should find stored summary")
		}
		ok, _ = s.Contains(ctx, "the user said hi.")
		if ok {
			t.Error("Contains must be case sensitive")
		}
	})
}

func TestSummaries_OrderAndPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	want := []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten", "eleven"}

	s, err := NewSQLiteStore(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	j, _ := NewJSONStore(filepath.Join(dir, "memory.json"))
	for _, w := range want {
		s.Append(ctx, w)
		j.Append(ctx, w)
	}
	s.Close()

	reopened, err := NewSQLiteStore(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, _ := reopened.LoadAll(ctx)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sqlite order after reopen (-want +got):\n%s", diff)
	}

	// Ten-plus ids catch lexical ordering of document keys.
	got, _ = j.LoadAll(ctx)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("json order (-want +got):\n%s", diff)
	}
}

func TestSummaries_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newSQLite(t)
	for _, w := range []string{"alpha", "beta", "gamma"} {
		src.Append(ctx, w)
	}

	all, _ := src.LoadAll(ctx)
	var buf bytes.Buffer
	if err := WriteTinyDB(&buf, all); err != nil {
		t.Fatal(err)
	}

	back, err := ReadTinyDB(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	// Writing back into the same log adds nothing.
	for _, b := range back {
		if written, _ := src.Append(ctx, b); written {
			t.Errorf("round-tripped summary %q was duplicated", b)
		}
	}

	dst := newSQLite(t)
	for _, b := range back {
		dst.Append(ctx, b)
	}
	got, _ := dst.LoadAll(ctx)
	if diff := cmp.Diff(all, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_ClosedDB(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	ctx := context.Background()
	if _, err := s.LoadAll(ctx); !errors.Is(err, ErrRead) {
		t.Errorf("expected ErrRead, got %v", err)
	}
	if _, err := s.Append(ctx, "x"); !errors.Is(err, ErrWrite) {
		t.Errorf("expected ErrWrite, got %v", err)
	}
}
