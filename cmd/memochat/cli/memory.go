package cli

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/felixgeelhaar/memochat/internal/store"
	"github.com/spf13/cobra"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and move long-term memory",
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every stored summary, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSummaries(cmd, func(log store.SummaryLog) error {
			all, err := log.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(all) == 0 {
				fmt.Fprintln(out, "(no summaries)")
				return nil
			}
			for i, s := range all {
				fmt.Fprintf(out, "%d. %s\n", i+1, s)
			}
			return nil
		})
	},
}

var memoryImportCmd = &cobra.Command{
	Use:   "import [pattern...]",
	Short: "Import summaries from TinyDB JSON files",
	Long: `Import summaries from TinyDB JSON files matching the given glob patterns
(for example "backups/**/*.json"). Summaries already in memory are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSummaries(cmd, func(log store.SummaryLog) error {
			var files, added, dupes int
			for _, pattern := range args {
				matches, err := doublestar.FilepathGlob(pattern)
				if err != nil {
					return fmt.Errorf("bad pattern %q: %w", pattern, err)
				}
				for _, path := range matches {
					entries, err := readTinyDBFile(path)
					if err != nil {
						return err
					}
					files++
					for _, text := range entries {
						written, err := log.Append(cmd.Context(), text)
						if err != nil {
							return err
						}
						if written {
							added++
						} else {
							dupes++
						}
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d summaries from %d files (%d already known)\n", added, files, dupes)
			return nil
		})
	},
}

var memoryExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write all summaries to a TinyDB JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSummaries(cmd, func(log store.SummaryLog) error {
			all, err := log.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Create(args[0]) // #nosec G304
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := store.WriteTinyDB(f, all); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d summaries to %s\n", len(all), args[0])
			return nil
		})
	},
}

func withSummaries(cmd *cobra.Command, fn func(store.SummaryLog) error) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	s, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s.summaries)
}

func readTinyDBFile(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	entries, err := store.ReadTinyDB(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

func init() {
	RootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryImportCmd)
	memoryCmd.AddCommand(memoryExportCmd)
}
