package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ctxasm/internal/domain"
)

var (
	selectQuery string
	selectLevel int
	selectJSON  bool
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Show the indexed files picked for a query",
	Long: `Run the file selection cascade over the stored index: query match,
related-file expansion and content verification, depending on the filter level.
Mention files with @path and symbols with @@name to pin them.

Examples:
  ctxasm select -q "where are sessions validated"
  ctxasm select -q "refactor @internal/auth/session.go" --level 1 --json`,
	RunE: runSelect,
}

func init() {
	rootCmd.AddCommand(selectCmd)
	selectCmd.Flags().StringVarP(&selectQuery, "query", "q", "", "query (required)")
	selectCmd.Flags().IntVar(&selectLevel, "level", -1, "filter level 0, 1 or 2 (default from config)")
	selectCmd.Flags().BoolVar(&selectJSON, "json", false, "output as JSON")
	selectCmd.MarkFlagRequired("query")
}

func runSelect(cmd *cobra.Command, args []string) error {
	cfg := *GetConfig()
	if selectLevel >= 0 {
		if selectLevel > 2 {
			return fmt.Errorf("level %d is not 0, 1 or 2", selectLevel)
		}
		cfg.Filter.IndexFilterLevel = selectLevel
	}

	a, err := newApp(&cfg, GetRootDir(), GetLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := loadIndex(a)
	if err != nil {
		return err
	}

	targets, err := a.selector.Select(cmd.Context(), selectQuery, idx)
	if err != nil {
		return fmt.Errorf("selection failed: %w", err)
	}

	if selectJSON {
		output, _ := json.MarshalIndent(targets, "", "  ")
		fmt.Println(string(output))
		return nil
	}
	if len(targets) == 0 {
		fmt.Println("No relevant files found.")
		return nil
	}
	fmt.Printf("Selected %d of %d files for: %s\n\n", len(targets), len(idx), selectQuery)
	for i, t := range targets {
		fmt.Printf("[%d] %s (score: %.0f, %s)\n", i+1, t.Path, t.Score, t.Stage)
		if t.Reason != "" {
			fmt.Printf("    %s\n", t.Reason)
		}
	}
	return nil
}

// loadIndex reads the stored index and rejects a missing or unreadable one.
func loadIndex(a *app) (domain.Index, error) {
	idx, err := a.store.Load()
	if err != nil {
		if errors.Is(err, domain.ErrIndexCorrupt) {
			return nil, fmt.Errorf("%w; run 'ctxasm index' to rebuild it", err)
		}
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("no index found at %s. Run 'ctxasm index' first", a.store.Path())
	}
	return idx, nil
}
