package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/davuth-chan/khmerscribe/constants"
	"github.com/davuth-chan/khmerscribe/internal/config"
	"github.com/davuth-chan/khmerscribe/internal/entity"
	"github.com/davuth-chan/khmerscribe/internal/fetch"
	"github.com/davuth-chan/khmerscribe/internal/gemini"
	"github.com/davuth-chan/khmerscribe/internal/governor"
	"github.com/davuth-chan/khmerscribe/internal/memguard"
	"github.com/davuth-chan/khmerscribe/internal/pipeline"
	"github.com/davuth-chan/khmerscribe/internal/render"
	"github.com/davuth-chan/khmerscribe/internal/repository"
	"github.com/davuth-chan/khmerscribe/internal/sink"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		urlsFile = flag.String("urls", "", "file with document URLs, one per line (default: interactive prompt)")
		out      = flag.String("out", "", "output CSV path (overrides OUTPUT_CSV)")
	)
	flag.Parse()

	cfg := config.LoadConfig()
	if *out != "" {
		cfg.Output.CSVPath = *out
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	tiers, err := config.LoadTiers(cfg.Pipeline.TiersFile)
	if err != nil {
		logger.Error("invalid tiers configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	urls, err := collectURLs(*urlsFile)
	if err != nil {
		logger.Error("collect urls", "error", err)
		os.Exit(1)
	}
	if len(urls) == 0 {
		fmt.Println("No input received. Exiting application.")
		return
	}

	state, counts, err := runBatch(ctx, cfg, tiers, urls, logger)
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	if state.Halted() {
		fmt.Printf("Run halted (%s). Partial results preserved: %d success, %d skipped, %d failed.\n",
			state.HaltReason, counts.Success, counts.Skipped, counts.Failed)
		return
	}
	fmt.Printf("Batch processed: %d success, %d skipped, %d failed. Results in %s\n",
		counts.Success, counts.Skipped, counts.Failed, cfg.Output.CSVPath)
}

// runBatch wires one pipeline run end to end.
func runBatch(ctx context.Context, cfg *config.Config, tiers config.Tiers, urls []string, logger *slog.Logger) (*entity.RunState, sink.Counts, error) {
	var store *repository.CheckpointStore
	if cfg.Output.CheckpointDSN != "" {
		db, err := repository.Open(ctx, cfg.Output.CheckpointDSN, logger)
		if err != nil {
			return nil, sink.Counts{}, err
		}
		defer repository.Close(db, logger)
		store, err = repository.NewCheckpointStore(ctx, db, logger)
		if err != nil {
			return nil, sink.Counts{}, err
		}
	}

	resultSink, err := sink.Open(cfg.Output.CSVPath, cfg.Output.XLSXPath, store, logger)
	if err != nil {
		return nil, sink.Counts{}, err
	}

	// Both stages share one governor so tier quota accounting spans the run.
	gov := governor.New(gemini.NewClient(cfg.Gemini, logger), tiers, cfg.Pipeline.RetryCeiling, logger)

	state := entity.NewRunState()
	orch := pipeline.NewOrchestrator(
		cfg.Pipeline,
		fetch.NewFetcher(cfg.Pipeline.DownloadTimeout, logger),
		render.NewRenderer(cfg.Render, logger),
		memguard.NewGuard(cfg.Memory, logger),
		pipeline.NewClassifyStage(gov, logger),
		pipeline.NewTranscribeStage(gov, logger),
		resultSink,
		state,
		logger,
	)
	counts, err := orch.Run(ctx, urls)
	return state, counts, err
}

// collectURLs reads URLs from a file when given, otherwise prompts on stdin:
// one URL per line, blank line starts processing, "exit" quits.
func collectURLs(path string) ([]string, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var urls []string
		for _, line := range strings.Split(string(raw), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if !constants.IsDocumentURL(line) {
				printError("Invalid URL (must end with .pdf): %s\n", line)
				continue
			}
			urls = append(urls, line)
		}
		return urls, nil
	}

	fmt.Println("Enter PDF URLs one per line.")
	fmt.Println("Press Enter on a blank line to start processing.")
	fmt.Println("Type 'exit' to quit.")

	var urls []string
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(" > ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, "exit") {
			return nil, nil
		}
		if line == "" {
			break
		}
		if !constants.IsDocumentURL(line) {
			fmt.Println("Invalid URL: must end with .pdf")
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
