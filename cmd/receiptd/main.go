package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/sync/errgroup"

	"github.com/ysaito/receipt-pipeline/internal/dedup"
	"github.com/ysaito/receipt-pipeline/internal/extraction"
	"github.com/ysaito/receipt-pipeline/internal/notify"
	"github.com/ysaito/receipt-pipeline/internal/pipeline"
	"github.com/ysaito/receipt-pipeline/internal/receipt"
	"github.com/ysaito/receipt-pipeline/internal/scoring"
	"github.com/ysaito/receipt-pipeline/internal/watcher"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	fs := ff.NewFlagSet("receiptd")
	var (
		inputDir       = fs.StringLong("input", "./pdfs", "Directory watched for incoming receipt PDFs")
		archiveDir     = fs.StringLong("archive", ".", "Base directory for processed PDFs (success_pdfs/, error_pdfs/)")
		dbPath         = fs.StringLong("db", "receipts.db", "Database file path")
		extractorType  = fs.StringLong("extractor", "gemini", "Extraction backend: 'gemini' or 'ollama'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set RECEIPTD_GEMINI_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		workers        = fs.IntLong("workers", 2, "Maximum concurrent in-flight documents")
		extractTimeout = fs.DurationLong("extract-timeout", 60*time.Second, "Per-document extraction deadline")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPTD"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.Info("Initializing database...", "path", *dbPath)
	db, err := receipt.OpenDB(*dbPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := receipt.NewBoltStore(db)
	if err != nil {
		slog.Error("Failed to initialize record store", "error", err)
		os.Exit(1)
	}

	ledger, err := dedup.NewBoltLedger(db)
	if err != nil {
		slog.Error("Failed to initialize dedup ledger", "error", err)
		os.Exit(1)
	}

	var extractor extraction.Extractor
	switch *extractorType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor, err = extraction.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = extraction.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid extractor type", "type", *extractorType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer extractor.Close()

	archive, err := receipt.NewLocalArchive(*archiveDir)
	if err != nil {
		slog.Error("Failed to initialize archive", "error", err)
		os.Exit(1)
	}

	source, err := watcher.NewDirWatcher(*inputDir)
	if err != nil {
		slog.Error("Failed to initialize watcher", "error", err)
		os.Exit(1)
	}

	hub := notify.NewHub()
	engine := scoring.NewEngine()
	orchestrator := pipeline.New(ledger, extractor, engine, store, archive, hub, pipeline.Options{
		Workers:        *workers,
		ExtractTimeout: *extractTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return source.Run(gctx)
	})
	g.Go(func() error {
		return orchestrator.Run(gctx, source.Documents())
	})

	slog.Info("Watching for receipts", "dir", *inputDir, "workers", *workers, "version", version)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("Pipeline error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}
