// Command viewer browses recorded self-play and debug games. It queries the
// parquet output of the executor and debuggame commands through DuckDB.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/brensch/checkers/config"
	"github.com/brensch/checkers/logging"
)

func defaultDataDirs() []string {
	return []string{config.Default().SelfPlay.OutDir, "debug_games"}
}

func parseDataRoots(s string) []string {
	var roots []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			roots = append(roots, p)
		}
	}
	return roots
}

func main() {
	fs := pflag.NewFlagSet("viewer", pflag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:8081", "HTTP listen address")
	dataDirs := fs.String("data-dirs", strings.Join(defaultDataDirs(), ","), "Comma-separated list of directories containing game parquet files")
	refresh := fs.Duration("refresh", 30*time.Second, "How long a DuckDB snapshot of the data dirs is reused")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	_ = fs.Parse(os.Args[1:])

	log, err := logging.New(*logLevel, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	roots := parseDataRoots(*dataDirs)
	log.Info("viewer data roots", zap.Strings("roots", roots))

	s := NewServer(roots, *refresh, log)
	defer s.dbCache.Close()

	srv := &http.Server{
		Addr:              *listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("viewer listening", zap.String("addr", "http://"+*listen))
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal("viewer stopped", zap.Error(err))
	}
}
