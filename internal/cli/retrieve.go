package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	retrieveQuery    string
	retrieveDocs     string
	retrieveMinScore int
	retrieveNoFilter bool
	retrieveJSON     bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Retrieve and filter documents for a query",
	Long: `Retrieve candidate documents from the document corpus (docs.root) and keep
those whose relevance score is above the minimum.

Examples:
  ctxasm retrieve -q "deployment checklist" --docs ./docs
  ctxasm retrieve -q "release process" --no-filter --json`,
	RunE: runRetrieve,
}

func init() {
	rootCmd.AddCommand(retrieveCmd)
	retrieveCmd.Flags().StringVarP(&retrieveQuery, "query", "q", "", "query (required)")
	retrieveCmd.Flags().StringVar(&retrieveDocs, "docs", "", "document corpus root (default from config)")
	retrieveCmd.Flags().IntVar(&retrieveMinScore, "min-score", -1, "keep documents scoring above this (default from config)")
	retrieveCmd.Flags().BoolVar(&retrieveNoFilter, "no-filter", false, "skip relevance scoring")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output as JSON")
	retrieveCmd.MarkFlagRequired("query")
}

type retrieveResult struct {
	Path           string  `json:"path"`
	Tokens         int     `json:"tokens"`
	RetrievalScore float64 `json:"retrieval_score"`
	Score          int     `json:"score"`
	Reason         string  `json:"reason,omitempty"`
	HighlyRelevant bool    `json:"highly_relevant,omitempty"`
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	cfg := *GetConfig()
	if retrieveDocs != "" {
		cfg.Docs.Root = retrieveDocs
	}
	if cfg.Docs.Root == "" {
		return fmt.Errorf("no document corpus configured; set docs.root or pass --docs")
	}
	threshold := cfg.Docs.MinScore
	if retrieveMinScore >= 0 {
		threshold = retrieveMinScore
	}

	a, err := newApp(&cfg, GetRootDir(), GetLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	docs, err := a.retrieve.Retrieve(ctx, retrieveQuery)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}
	if !retrieveNoFilter {
		docs, err = a.filter.Filter(ctx, retrieveQuery, docs, threshold)
		if err != nil {
			return fmt.Errorf("filtering failed: %w", err)
		}
	}

	results := make([]retrieveResult, len(docs))
	for i, d := range docs {
		results[i] = retrieveResult{
			Path:           d.Path,
			Tokens:         d.Tokens,
			RetrievalScore: d.RetrievalScore,
			Score:          d.Score,
			Reason:         d.Reason,
			HighlyRelevant: d.HighlyRelevant,
		}
	}

	if retrieveJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}
	if len(results) == 0 {
		fmt.Println("No relevant documents found.")
		return nil
	}
	fmt.Printf("Found %d documents for: %s\n\n", len(results), retrieveQuery)
	for i, r := range results {
		marker := ""
		if r.HighlyRelevant {
			marker = " *"
		}
		fmt.Printf("[%d] %s (score: %d, retrieval: %.2f, tokens: %d)%s\n", i+1, r.Path, r.Score, r.RetrievalScore, r.Tokens, marker)
		if r.Reason != "" {
			fmt.Printf("    %s\n", r.Reason)
		}
	}
	return nil
}
