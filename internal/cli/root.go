// Package cli implements the persona-memory CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/ablate"
	"github.com/rcliao/persona-memory/internal/config"
	"github.com/rcliao/persona-memory/internal/embedding"
	"github.com/rcliao/persona-memory/internal/llm"
	"github.com/rcliao/persona-memory/internal/logging"
	"github.com/rcliao/persona-memory/internal/retrieve"
	"github.com/rcliao/persona-memory/internal/store"
)

var (
	dbPath     string
	formatFlag string
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "persona-memory",
	Short: "Associative memory for generative agent personas",
	Long: "Store persona memories in SQLite, retrieve them by recency, relevance and importance, " +
		"derive ablated personas and interview them.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(configPath)
		if err != nil {
			exitErr("load config", err)
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		l, err := logging.New(os.Stderr, loaded.LogOptions())
		if err != nil {
			exitErr("configure logging", err)
		}
		cfg, logger = loaded, l
		slog.SetDefault(l)
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $PERSONA_MEMORY_DB or ~/.persona-memory/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("PERSONA_MEMORY_CONFIG"), "YAML config file")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return cfg.DBPath
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath())
}

func newEmbedder() (embedding.Embedder, error) {
	return embedding.New(cfg.EmbeddingOptions())
}

func newLLM() (llm.Client, error) {
	return llm.New(cfg.LLMOptions())
}

func newRetriever(e embedding.Embedder) *retrieve.Retriever {
	return retrieve.New(retrieve.Config{
		Embedder:    e,
		Parallelism: cfg.Retrieval.Parallelism,
		Logger:      logger,
	})
}

// ablationDeps wires the collaborators the full ablation needs. A missing
// provider only fails when a transform actually calls it.
func ablationDeps(e embedding.Embedder) ablate.Deps {
	deps := ablate.Deps{Embedder: e, Logger: logger}
	if c, err := newLLM(); err == nil {
		deps.Scorer = llm.NewImportanceScorer(c)
	}
	return deps
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// printOutput prints v as JSON, or as a table when --format text is set.
func printOutput(v any, headers []string, rows [][]string) {
	if formatFlag != "text" {
		printJSON(v)
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("241"))).
		Headers(headers...).
		Rows(rows...)
	fmt.Println(t.Render())
}
