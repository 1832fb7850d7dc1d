// Package main wires the narrative consistency engine's core
// components into one process. No HTTP surface is implemented here
// (§1/§6 place the wire protocol out of scope); this binary exists to
// demonstrate construction order for an embedding HTTP layer.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/louisbranch/narrative-engine/internal/narrative/config"
	"github.com/louisbranch/narrative-engine/internal/narrative/extractor"
	"github.com/louisbranch/narrative-engine/internal/narrative/manager"
	"github.com/louisbranch/narrative-engine/internal/narrative/orchestrator"
	"github.com/louisbranch/narrative-engine/internal/narrative/store/sqlite"
	platformconfig "github.com/louisbranch/narrative-engine/internal/platform/config"
	"github.com/louisbranch/narrative-engine/internal/platform/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		platformconfig.Exitf("load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "narrative-engine")
	if err != nil {
		platformconfig.Exitf("setup tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		platformconfig.Exitf("open state store: %v", err)
	}
	defer st.Close()

	completer, err := extractor.NewAnyLLMCompleter(cfg.LLMBaseURL, cfg.LLMAPIKey)
	if err != nil {
		platformconfig.Exitf("build llm completer: %v", err)
	}

	ext := extractor.New(completer, cfg.LLMModel, cfg.ExtractorRetryCount, logger)
	mgr := manager.New(st, logger)
	// orc.ProcessTurn is the single entry point an embedding HTTP layer
	// calls per §6; this process has no such layer, so it only proves
	// out construction order.
	_ = orchestrator.New(ext, mgr, time.Duration(cfg.TurnTimeoutSeconds)*time.Second, logger)

	logger.InfoContext(ctx, "narrative engine ready", "db_path", cfg.DBPath, "llm_model", cfg.LLMModel)
	<-ctx.Done()
	logger.InfoContext(ctx, "narrative engine shutting down")
}
