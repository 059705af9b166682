package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/brensch/checkers/config"
	"github.com/brensch/checkers/executor/selfplay"
	"github.com/brensch/checkers/logging"
)

func main() {
	flags := pflag.NewFlagSet("debuggame", pflag.ExitOnError)
	config.RegisterFlags(flags)
	outDir := flags.String("out-dir", "debug_games", "Output directory for debug games")
	opponentDepth := flags.Int("opponent-depth", 0, "Search depth for the second player (0 = same as --depth)")
	maxTurns := flags.Int("max-turns", config.Default().SelfPlay.MaxTurns, "Declare a draw after this many plies")
	randomPlies := flags.Int("random-plies", 0, "Random opening plies")
	seed := flags.Int64("seed", time.Now().UnixNano(), "Seed for the random opening")
	trees := flags.Bool("trees", true, "Record every search tree")
	quiet := flags.Bool("quiet", false, "Do not print the board after each ply")
	_ = flags.Parse(os.Args[1:])

	configPath, _ := flags.GetString("config")
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Must(cfg.Log.Level, cfg.Log.Development)
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Infof("Generating debug game: depth %d vs %d, %s expansion, pruning=%v",
		cfg.Search.Depth, *opponentDepth, cfg.Search.Expansion, !cfg.Search.DisablePruning)

	out, err := selfplay.PlayGame(ctx, selfplay.Options{
		Rules:       cfg.RuleSet(),
		Board:       cfg.Board.New(),
		Search:      cfg.Search,
		SecondDepth: *opponentDepth,
		MaxTurns:    *maxTurns,
		RandomPlies: *randomPlies,
		Seed:        *seed,
		RecordTrees: *trees,
		Log:         logger,
		OnStep: func(s selfplay.Step) {
			if !*quiet {
				fmt.Println(selfplay.FormatStep(s))
			}
		},
	})
	if err != nil {
		log.Fatalf("Failed to play debug game: %v", err)
	}
	if !out.Completed {
		log.Fatalf("Debug game %s did not finish in time (turn %d)", out.GameID, out.Turns)
	}
	log.Infof("Game complete: %d turns, winner: %s, visited %d, cutoffs %d",
		out.Turns, out.Winner, out.Stats.Visited, out.Stats.Cutoffs)

	turnsPath, treesPath, err := selfplay.WriteDebugGame(*outDir, out)
	if err != nil {
		log.Fatalf("Failed to write debug game: %v", err)
	}
	log.Infof("Turns written to: %s", turnsPath)
	if treesPath != "" {
		log.Infof("Search trees written to: %s (%d nodes)", treesPath, len(out.Trees))
	}
}
