// Command server answers best-move requests and hosts games against the
// engine over websockets.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/brensch/checkers/config"
	"github.com/brensch/checkers/logging"
	"github.com/brensch/checkers/server"
)

func main() {
	d := config.Default()
	flags := pflag.NewFlagSet("server", pflag.ExitOnError)
	config.RegisterFlags(flags)
	flags.String("addr", d.Server.Addr, "HTTP listen address")
	flags.Int("max-depth", d.Server.MaxDepth, "Deepest search a client may request")
	flags.String("ai-player", d.Server.AIPlayer, "Side the engine plays in websocket games")
	_ = flags.Parse(os.Args[1:])

	configPath, _ := flags.GetString("config")
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.Must(cfg.Log.Level, cfg.Log.Development)
	defer func() { _ = log.Sync() }()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(cfg, log).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.Server.Addr),
			zap.Int("depth", cfg.Search.Depth),
			zap.String("expansion", string(cfg.Search.Expansion)),
			zap.Bool("pruning", !cfg.Search.DisablePruning),
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", zap.Error(err))
		}
	}
}
