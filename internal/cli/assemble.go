package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	assembleQuery  string
	assembleDocs   string
	assembleBudget int
	assembleOutput string
	assembleSkip   bool
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Assemble the context for a query",
	Long: `Refresh the index, select the relevant source files, retrieve and filter
documents, then pack both into the token budget. Whole documents fill the
full-text share; the rest are excerpted into the segment share.

Examples:
  ctxasm assemble -q "how does authentication work"
  ctxasm assemble -q "database layer" -b 8000 -o context.json`,
	RunE: runAssemble,
}

func init() {
	rootCmd.AddCommand(assembleCmd)
	assembleCmd.Flags().StringVarP(&assembleQuery, "query", "q", "", "query (required)")
	assembleCmd.Flags().StringVar(&assembleDocs, "docs", "", "document corpus root (default from config)")
	assembleCmd.Flags().IntVarP(&assembleBudget, "budget", "b", 0, "token limit (default from config)")
	assembleCmd.Flags().StringVarP(&assembleOutput, "output", "o", "", "output file (default: stdout)")
	assembleCmd.Flags().BoolVar(&assembleSkip, "skip-build", false, "use the stored index without refreshing it")
	assembleCmd.MarkFlagRequired("query")
}

func runAssemble(cmd *cobra.Command, args []string) error {
	cfg := *GetConfig()
	if assembleDocs != "" {
		cfg.Docs.Root = assembleDocs
	}
	if assembleBudget > 0 {
		cfg.Budget.TokenLimit = assembleBudget
	}
	if assembleSkip {
		cfg.Index.SkipBuildIndex = true
	}

	a, err := newApp(&cfg, GetRootDir(), GetLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	assembled, err := a.assembler().AssembleContext(cmd.Context(), a.session(), assembleQuery)
	if err != nil {
		return fmt.Errorf("assembly failed: %w", err)
	}

	for _, w := range assembled.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}

	output, err := json.MarshalIndent(assembled, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	if assembleOutput != "" {
		if err := os.WriteFile(assembleOutput, output, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		excerpts := 0
		for _, it := range assembled.Items {
			if it.Excerpt {
				excerpts++
			}
		}
		fmt.Printf("Context assembled to: %s\n", assembleOutput)
		fmt.Printf("  Items:    %d (%d excerpts)\n", len(assembled.Items), excerpts)
		fmt.Printf("  Tokens:   %d / %d\n", assembled.UsedTokens, assembled.Allocation.TotalLimit)
	} else {
		fmt.Println(string(output))
	}
	return nil
}
