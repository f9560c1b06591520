package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ctxasm/internal/adapter/store"
)

var exportCmd = &cobra.Command{
	Use:   "export <dir|file>",
	Short: "Export the index with project-relative paths",
	Long: `Write the symbol index with paths relative to the project root so it can be
imported into a checkout at another location. A directory receives index.json;
a file name ending in .zst is zstd-compressed.

Examples:
  ctxasm export ./backup
  ctxasm export /tmp/project-index.json.zst`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <dir|file>",
	Short: "Import an exported index",
	Long: `Replace the symbol index with an exported one, rebasing its relative paths
onto the project root. The current index is kept as index.json.bak.

Examples:
  ctxasm import ./backup
  ctxasm import /tmp/project-index.json.zst`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	root := GetRootDir()
	a, err := newApp(GetConfig(), root, GetLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := loadIndex(a)
	if err != nil {
		return err
	}
	dest, err := store.Export(idx, root, args[0])
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Printf("Exported %d entries to %s\n", len(idx), dest)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	root := GetRootDir()
	a, err := newApp(GetConfig(), root, GetLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := store.Import(root, args[0])
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	bak, err := a.store.Backup()
	if err != nil {
		return fmt.Errorf("failed to back up current index: %w", err)
	}
	if err := a.store.Save(idx); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}

	fmt.Printf("Imported %d entries into %s\n", len(idx), a.store.Path())
	if bak != "" {
		fmt.Printf("Previous index kept at %s\n", bak)
	}
	return nil
}
