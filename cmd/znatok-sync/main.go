// Package main provides the znatok CLI for knowledge-base indexing and maintenance.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bull/znatok/internal/app"
	"github.com/bull/znatok/internal/config"
	"github.com/bull/znatok/internal/indexer"
	"github.com/bull/znatok/internal/rag"
	"github.com/bull/znatok/internal/sources"
)

var (
	department string
	verbose    bool
	confirm    bool
)

var rootCmd = &cobra.Command{
	Use:          "znatok-sync",
	Short:        "Znatok knowledge-base indexing tool",
	Long:         "CLI tool for managing the Znatok document index",
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync [bitrix24-kb|confluence|github|all]",
	Short: "Synchronize external knowledge sources",
	Long: `Pulls documents modified since the last successful sync and indexes them.

This command:
1. Connects to the vector index and restores the generation view
2. Reads knowledge-source connections from the settings document
3. Fetches every item modified after the stored watermark
4. Re-indexes each item under department "all"
5. Advances the watermark when the sweep completed

Sources that are disabled or not configured are skipped.

Environment variables:
  QDRANT_HOST       Qdrant hostname (default: localhost)
  QDRANT_PORT       Qdrant gRPC port (default: 6334)
  VECTOR_BACKEND    qdrant, pgvector or memory (default: qdrant)
  EMBEDDING_BASE_URL OpenAI-compatible embedding server
  SETTINGS_PATH     Settings document (default: data/settings.json)
  GITHUB_TOKEN      GitHub token for higher rate limits (optional)`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

var indexCmd = &cobra.Command{
	Use:   "index <file>...",
	Short: "Index local files",
	Long: `Extracts, chunks and embeds the given files. Each file is indexed under
its base name, replacing any earlier version of the same name.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <source>",
	Short: "Remove every chunk of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate the collection",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Runs the Znatok MCP server over stdin/stdout for local clients.
Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log component activity to stderr")
	indexCmd.Flags().StringVarP(&department, "department", "d", "all", "department the documents belong to")
	askCmd.Flags().StringVarP(&department, "department", "d", "all", "department of the asking user")
	resetCmd.Flags().BoolVar(&confirm, "yes", false, "confirm dropping every indexed document")

	rootCmd.AddCommand(syncCmd, indexCmd, askCmd, listCmd, deleteCmd, resetCmd, mcpCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// open loads configuration and wires the application. The returned context is
// cancelled on SIGINT/SIGTERM.
func open(cmd *cobra.Command) (context.Context, *app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := zap.NewNop()
	if verbose {
		if logger, err = app.NewLogger(cfg.LogLevel); err != nil {
			return nil, nil, nil, fmt.Errorf("create logger: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, a, func() {
		a.Close()
		_ = logger.Sync()
		cancel()
	}, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	start := time.Now()
	name := "all"
	if len(args) == 1 {
		name = args[0]
	}

	fmt.Println("Starting sync...")
	fmt.Println()

	ctx, a, closeFn, err := open(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	var results map[string]sources.Result
	if name == "all" {
		results, err = a.Sources.RunAll(ctx)
	} else {
		var res sources.Result
		res, err = a.Sources.Run(ctx, name)
		if err == nil {
			results = map[string]sources.Result{name: res}
		}
	}

	if len(results) == 0 && err == nil {
		fmt.Println("No knowledge sources are enabled")
	}
	for _, source := range a.Sources.Names() {
		res, ok := results[source]
		if !ok {
			continue
		}
		fmt.Printf("%s:\n", source)
		fmt.Printf("  Synced: %d\n", res.Synced)
		fmt.Printf("  Skipped: %d\n", res.Skipped)
		fmt.Printf("  Failed: %d\n", res.Failed)
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))

	if err != nil {
		return fmt.Errorf("Sync failed: %w", err)
	}
	return nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, a, closeFn, err := open(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	inputs := make([]indexer.Input, len(args))
	for i, path := range args {
		inputs[i] = indexer.Input{
			Source:     filepath.Base(path),
			Department: department,
			Path:       path,
		}
	}

	fmt.Printf("Indexing %d file(s) into department %q...\n", len(inputs), department)
	result := a.Pipeline.IndexAll(ctx, inputs)

	fmt.Println()
	fmt.Println("Indexing complete!")
	fmt.Printf("  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))

	if len(result.FailedDocs) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.Source, failed.Reason)
		}
		return fmt.Errorf("%d of %d documents failed", len(result.FailedDocs), result.TotalDocs)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, a, closeFn, err := open(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	resp, err := a.Orchestrator.Ask(ctx, rag.AskRequest{
		Question:   strings.Join(args, " "),
		Department: department,
	})
	if err != nil {
		return err
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, s := range resp.Sources {
			fmt.Printf("  - %s\n", s.Source)
		}
	}
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx, a, closeFn, err := open(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	docs, err := a.Pipeline.Documents(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tDEPARTMENT\tCHUNKS\tUPLOADED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.Source, d.Department, d.Chunks, d.UploadedAt.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d document(s)\n", len(docs))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx, a, closeFn, err := open(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := a.Pipeline.DeleteSource(ctx, args[0]); err != nil {
		return fmt.Errorf("Failed to delete %s: %w", args[0], err)
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runReset(cmd *cobra.Command, _ []string) error {
	if !confirm {
		return fmt.Errorf("refusing to drop the collection without --yes")
	}

	ctx, a, closeFn, err := open(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	fmt.Println("Clearing existing collection...")
	if err := a.Pipeline.Reset(ctx); err != nil {
		return fmt.Errorf("Failed to reset collection: %w", err)
	}
	fmt.Println("Collection cleared")
	return nil
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, a, closeFn, err := open(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	return a.MCP.Run(ctx)
}
