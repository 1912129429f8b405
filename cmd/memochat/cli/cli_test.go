package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/felixgeelhaar/memochat/internal/chat"
	"github.com/felixgeelhaar/memochat/internal/credential"
	"github.com/felixgeelhaar/memochat/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
)

// run executes the root command with a fresh home directory state and
// returns what it printed.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	RootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})

	var out, errOut bytes.Buffer
	RootCmd.SetArgs(args)
	RootCmd.SetIn(strings.NewReader(stdin))
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	err := RootCmd.Execute()
	return out.String(), errOut.String(), err
}

func useHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestCLI_Root(t *testing.T) {
	want := map[string][]string{
		"chat":   nil,
		"config": {"get", "set"},
		"memory": {"export", "import", "list"},
	}

	got := map[string][]string{}
	for _, cmd := range RootCmd.Commands() {
		if _, ok := want[cmd.Name()]; !ok {
			continue
		}
		var subs []string
		for _, sub := range cmd.Commands() {
			subs = append(subs, sub.Name())
		}
		sort.Strings(subs)
		got[cmd.Name()] = subs
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestCLI_Config(t *testing.T) {
	home := useHome(t)

	out, _, err := run(t, "", "config", "set", "openai_api_key", "sk-abcdefgh12345678")
	if err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if !strings.Contains(out, "Configuration saved: openai_api_key") {
		t.Errorf("unexpected output: %q", out)
	}

	out, _, err = run(t, "", "config", "get", "openai_api_key")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	if strings.TrimSpace(out) != "sk-a...5678" {
		t.Errorf("expected masked key, got %q", out)
	}

	db, err := store.NewSQLiteStore(filepath.Join(home, dataDirName, sqliteFileName))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := db.GetConfig("openai_api_key")
	db.Close()
	if err != nil {
		t.Fatal(err)
	}
	if !credential.IsSealed(raw) {
		t.Errorf("expected key to be stored sealed, got %q", raw)
	}

	out, _, _ = run(t, "", "config", "set", "greeting", "hello")
	if !strings.Contains(out, "Configuration saved") {
		t.Errorf("unexpected output: %q", out)
	}
	out, _, _ = run(t, "", "config", "get", "greeting")
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("expected plain value, got %q", out)
	}

	out, _, _ = run(t, "", "config", "get", "missing")
	if strings.TrimSpace(out) != "(not set)" {
		t.Errorf("expected (not set), got %q", out)
	}
}

func TestCLI_Chat(t *testing.T) {
	useHome(t)

	out, _, err := run(t, "hi\nthere\n/exit\n", "--provider=stub", "--threshold=2")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	for _, want := range []string{
		"You are talking to Aisha (Type '/exit' to stop)",
		"Aisha: stub response 1",
		"Saving chat and exiting...",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	out, _, err = run(t, "", "memory", "list")
	if err != nil {
		t.Fatalf("memory list failed: %v", err)
	}
	if strings.TrimSpace(out) != "1. stub response 2" {
		t.Errorf("expected one summary, got %q", out)
	}
}

func TestCLI_ChatSubcommandUsesJSONStore(t *testing.T) {
	home := useHome(t)

	_, _, err := run(t, "one\ntwo\n", "chat", "--provider=stub", "--threshold=5", "--store=json")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}

	f, err := os.Open(filepath.Join(home, dataDirName, jsonFileName))
	if err != nil {
		t.Fatalf("expected memory file: %v", err)
	}
	defer f.Close()
	entries, err := store.ReadTinyDB(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected the final flush to write one summary, got %v", entries)
	}
}

func TestCLI_InvalidSettings(t *testing.T) {
	useHome(t)

	_, _, err := run(t, "", "--provider=stub", "--threshold=0")
	if err == nil || !strings.Contains(err.Error(), "invalid settings") {
		t.Fatalf("expected invalid settings error, got %v", err)
	}

	_, _, err = run(t, "", "--provider=stub", "--max-output-tokens=-1")
	if err == nil || !strings.Contains(err.Error(), "token budgets") {
		t.Fatalf("expected token budget flag to reach validation, got %v", err)
	}

	_, _, err = run(t, "", "--provider=nope")
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestCLI_ConfigFile(t *testing.T) {
	home := useHome(t)
	dir := filepath.Join(home, dataDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	settings := "persona:\n  name: Nova\nbackend:\n  provider: stub\n"
	if err := os.WriteFile(filepath.Join(dir, configFileName), []byte(settings), 0o600); err != nil {
		t.Fatal(err)
	}

	out, _, err := run(t, "/exit\n")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if !strings.Contains(out, "You are talking to Nova") {
		t.Errorf("expected persona from settings file, got:\n%s", out)
	}
}

func TestCLI_Memory(t *testing.T) {
	home := useHome(t)

	src := filepath.Join(home, "backups")
	writeTinyDB(t, filepath.Join(src, "a.json"), "likes tea", "owns a cat")
	writeTinyDB(t, filepath.Join(src, "nested", "b.json"), "owns a cat", "plays chess")

	out, _, err := run(t, "", "memory", "import", filepath.Join(src, "**", "*.json"))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, "Imported 3 summaries from 2 files (1 already known)") {
		t.Errorf("unexpected import output: %q", out)
	}

	// Importing again adds nothing.
	out, _, _ = run(t, "", "memory", "import", filepath.Join(src, "*.json"))
	if !strings.Contains(out, "Imported 0 summaries from 1 files (2 already known)") {
		t.Errorf("unexpected re-import output: %q", out)
	}

	dest := filepath.Join(home, "export.json")
	out, _, err = run(t, "", "memory", "export", dest)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.Contains(out, "Exported 3 summaries") {
		t.Errorf("unexpected export output: %q", out)
	}

	f, err := os.Open(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := store.ReadTinyDB(f)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(got)
	if diff := cmp.Diff([]string{"likes tea", "owns a cat", "plays chess"}, got); diff != "" {
		t.Errorf("export mismatch (-want +got):\n%s", diff)
	}
}

func TestCLI_MemoryImportBadFile(t *testing.T) {
	home := useHome(t)
	bad := filepath.Join(home, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := run(t, "", "memory", "import", bad); err == nil {
		t.Fatal("expected error for corrupt file")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"Clean", nil, 0},
		{"Interrupted", chat.ErrInterrupted, 130},
		{"Interrupted And Flush Failed", errors.Join(chat.ErrInterrupted, fmt.Errorf("%w: disk full", chat.ErrFinalFlush)), 1},
		{"Flush Failed", fmt.Errorf("%w: disk full", chat.ErrFinalFlush), 1},
		{"Startup", errors.New("unknown provider"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func writeTinyDB(t *testing.T, path string, summaries ...string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := store.WriteTinyDB(f, summaries); err != nil {
		t.Fatal(err)
	}
}
