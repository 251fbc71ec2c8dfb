package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conveyor/internal/api"
	"conveyor/internal/core"
	"conveyor/internal/history"
	"conveyor/internal/storage"
)

func main() {
	var (
		addr        = flag.String("addr", "", "listen address (default $CONVEYOR_ADDR, :$PORT or :8080)")
		logDir      = flag.String("log-dir", ".conveyor/logs", "directory for captured job logs")
		historyPath = flag.String("history", ".conveyor/history.jsonl", "run journal file (empty disables)")
		targetsPath = flag.String("targets", "", "target manifest file")
		workers     = flag.Int("workers", 2, "concurrent pipeline runs")
		debug       = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	address := listenAddr(*addr)

	opts := []core.RunnerOption{
		core.WithOutput(io.Discard),
		core.WithLogger(log),
		core.WithLogStore(storage.NewLogStore(*logDir)),
	}
	if *historyPath != "" {
		journal, err := history.Open(*historyPath)
		if err != nil {
			log.Error("open journal", "error", err)
			os.Exit(1)
		}
		opts = append(opts, core.WithJournal(journal))
	}
	if *targetsPath != "" {
		manifest, err := core.LoadManifest(*targetsPath)
		if err != nil {
			log.Error("load target manifest", "error", err)
			os.Exit(1)
		}
		opts = append(opts, core.WithTargets(manifest))
	}

	server := api.New(core.NewRunner(opts...), api.WithLogger(log), api.WithWorkers(*workers))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              address,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker pool stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("conveyor server listening", "addr", address)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// listenAddr resolves the listen address: the -addr flag wins, then
// CONVEYOR_ADDR, then :$PORT, then :8080.
func listenAddr(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if addr := os.Getenv("CONVEYOR_ADDR"); addr != "" {
		return addr
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8080"
}
