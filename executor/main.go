package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/brensch/checkers/config"
	"github.com/brensch/checkers/executor/selfplay"
	"github.com/brensch/checkers/logging"
	"github.com/brensch/checkers/store"
)

var totalMoves atomic.Int64
var totalNodes atomic.Int64
var totalGames atomic.Int64

type GameUpdate struct {
	WorkerID int
	Outcome  selfplay.Outcome
}

type gameWriteRequest struct {
	gameID string
	rows   []store.TurnRow
}

type model struct {
	gamesPlayed int
	wins        map[string]int
	moves       int64
	nodes       int64
	startTime   time.Time
	recentGames []string
	updates     chan GameUpdate
}

func initialModel(updates chan GameUpdate) model {
	return model{
		startTime: time.Now(),
		wins:      make(map[string]int),
		updates:   updates,
	}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(updates chan GameUpdate) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.moves = totalMoves.Load()
		m.nodes = totalNodes.Load()
		return m, tickCmd()
	case GameUpdate:
		m.gamesPlayed++
		m.wins[msg.Outcome.Winner.String()]++
		m.recentGames = append([]string{describeGame(msg)}, m.recentGames...)
		if len(m.recentGames) > 10 {
			m.recentGames = m.recentGames[:10]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	gamesPerSec := float64(m.gamesPlayed) / duration.Seconds()
	movesPerSec := float64(m.moves) / duration.Seconds()
	nodesPerSec := float64(m.nodes) / duration.Seconds()
	if duration.Seconds() < 1 {
		gamesPerSec = 0
		movesPerSec = 0
		nodesPerSec = 0
	}

	s := fmt.Sprintf("Games Played:   %d\n", m.gamesPlayed)
	s += fmt.Sprintf("Wins:           first %d / second %d / draws %d\n", m.wins["first"], m.wins["second"], m.wins["none"])
	s += fmt.Sprintf("Total Moves:    %d\n", m.moves)
	s += fmt.Sprintf("Nodes Visited:  %d\n", m.nodes)
	s += fmt.Sprintf("Duration:       %s\n", duration.Round(time.Second))
	s += fmt.Sprintf("Games/Sec:      %.2f\n", gamesPerSec)
	s += fmt.Sprintf("Moves/Sec:      %.2f\n", movesPerSec)
	s += fmt.Sprintf("Nodes/Sec:      %.0f\n\n", nodesPerSec)

	s += "Recent Games:\n"
	for _, g := range m.recentGames {
		s += g + "\n"
	}

	s += "\nPress q to quit.\n"
	return s
}

func describeGame(u GameUpdate) string {
	return fmt.Sprintf("Worker %d: Winner %s, Turns %d, Visited %d, Cutoffs %d",
		u.WorkerID, u.Outcome.Winner, u.Outcome.Turns, u.Outcome.Stats.Visited, u.Outcome.Stats.Cutoffs)
}

func main() {
	flags := pflag.NewFlagSet("executor", pflag.ExitOnError)
	config.RegisterFlags(flags)
	flags.Int("workers", config.Default().SelfPlay.Workers, "Number of self-play workers")
	flags.String("out-dir", config.Default().SelfPlay.OutDir, "Output directory for generated parquet batches")
	flags.Int("games-per-flush", config.Default().SelfPlay.GamesPerFlush, "Number of games to buffer per parquet flush")
	flags.Int64("max-games", 0, "If > 0, stop after generating this many games (across all workers)")
	flags.Int("max-turns", config.Default().SelfPlay.MaxTurns, "Declare a draw after this many plies")
	flags.Int("opponent-depth", 0, "Search depth for the second player (0 = same as --depth)")
	flags.Int("random-plies", config.Default().SelfPlay.RandomPlies, "Random opening plies per game")
	flags.Bool("tui", false, "Show the terminal dashboard instead of log lines")
	_ = flags.Parse(os.Args[1:])

	configPath, _ := flags.GetString("config")
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Must(cfg.Log.Level, cfg.Log.Development)
	if cfg.SelfPlay.TUI {
		// Log lines would tear the dashboard apart.
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	sp := cfg.SelfPlay
	if cfg.Search.Depth < 1 {
		log.Fatalf("Self-play needs a search depth of at least 1, got %d", cfg.Search.Depth)
	}
	log.Infof("Starting self-play with %d workers (depth %d vs %d, %s expansion, pruning=%v)",
		sp.Workers, cfg.Search.Depth, opponentDepth(cfg), cfg.Search.Expansion, !cfg.Search.DisablePruning)

	gameLog, err := store.OpenGameLog(filepath.Join(sp.OutDir, "games.log"))
	if err != nil {
		log.Fatalf("Failed to open game log: %v", err)
	}
	defer gameLog.Close()

	updates := make(chan GameUpdate, sp.Workers)
	writeReqs := make(chan gameWriteRequest, sp.Workers*4)

	writerDone := make(chan struct{})
	go func() {
		parquetWriterLoop(log, sp.OutDir, sp.GamesPerFlush, gameLog, writeReqs)
		close(writerDone)
	}()

	var workerWG sync.WaitGroup
	for i := 0; i < sp.Workers; i++ {
		workerWG.Add(1)
		go func(workerID int) {
			defer workerWG.Done()
			runWorker(ctx, cancel, cfg, workerID, logger, writeReqs, updates)
		}(i)
	}

	shutdown := func() {
		log.Infof("Shutdown requested; waiting for workers to finish current games...")
		workerWG.Wait()
		close(writeReqs)
		<-writerDone
		log.Infof("Shutdown complete: final parquet flush done (games=%d)", totalGames.Load())
	}

	if sp.TUI {
		p := tea.NewProgram(initialModel(updates), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "dashboard: %v\n", err)
		}
		cancel()
		shutdown()
		return
	}

	startTime := time.Now()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdown()
			return
		case update := <-updates:
			log.Infof("%s", describeGame(update))
		case <-ticker.C:
			duration := time.Since(startTime)
			log.Infof("Stats: Games: %d, Moves/s: %.2f, Nodes/s: %.0f",
				totalGames.Load(),
				float64(totalMoves.Load())/duration.Seconds(),
				float64(totalNodes.Load())/duration.Seconds())
		}
	}
}

func opponentDepth(cfg *config.Config) int {
	if cfg.SelfPlay.OpponentDepth > 0 {
		return cfg.SelfPlay.OpponentDepth
	}
	return cfg.Search.Depth
}

func runWorker(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, workerID int, logger *zap.Logger, writeReqs chan<- gameWriteRequest, updates chan<- GameUpdate) {
	log := logger.Sugar()
	log.Debugf("Worker %d started", workerID)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		out, err := selfplay.PlayGame(ctx, selfplay.Options{
			Rules:       cfg.RuleSet(),
			Board:       cfg.Board.New(),
			Search:      cfg.Search,
			SecondDepth: cfg.SelfPlay.OpponentDepth,
			MaxTurns:    cfg.SelfPlay.MaxTurns,
			RandomPlies: cfg.SelfPlay.RandomPlies,
			Seed:        time.Now().UnixNano() + int64(workerID)*1000003,
			Log:         logger.With(zap.Int("worker", workerID)),
			OnStep: func(s selfplay.Step) {
				totalMoves.Add(1)
				totalNodes.Add(int64(s.Stats.Visited))
			},
		})
		if err != nil {
			log.Errorf("Worker %d: game aborted: %v", workerID, err)
			continue
		}
		if !out.Completed {
			// Shutting down; a partial game is not worth keeping.
			return
		}

		total := totalGames.Add(1)
		if cfg.SelfPlay.MaxGames > 0 && total >= cfg.SelfPlay.MaxGames {
			cancel()
		}

		writeReqs <- gameWriteRequest{gameID: out.GameID, rows: out.Rows}

		// Avoid blocking shutdown if the UI loop stops consuming.
		select {
		case updates <- GameUpdate{WorkerID: workerID, Outcome: out}:
		default:
		}
	}
}

func parquetWriterLoop(log *zap.SugaredLogger, outDir string, gamesPerFlush int, gameLog *store.GameLog, in <-chan gameWriteRequest) {
	if gamesPerFlush <= 0 {
		gamesPerFlush = 50
	}

	var w *store.BatchWriter
	pendingGames := make([]string, 0, gamesPerFlush)

	flush := func(final bool) {
		if w == nil {
			return
		}
		outPath, rows, games, err := w.Finalize()
		w = nil
		if err != nil {
			log.Errorf("Parquet flush failed (final=%v games=%d): %v", final, len(pendingGames), err)
		} else if outPath != "" {
			log.Infof("Parquet flush ok: %s (final=%v games=%d rows=%d)", outPath, final, games, rows)
			if err := gameLog.AddMany(pendingGames); err != nil {
				log.Errorf("Game log append failed: %v", err)
			}
		}
		pendingGames = pendingGames[:0]
	}

	for req := range in {
		if len(req.rows) == 0 || gameLog.Has(req.gameID) {
			continue
		}
		if w == nil {
			var err error
			if w, err = store.NewBatchWriter(outDir); err != nil {
				log.Errorf("Open parquet batch: %v", err)
				continue
			}
		}
		if err := w.WriteGame(req.rows); err != nil {
			log.Errorf("Write game %s: %v", req.gameID, err)
			continue
		}
		pendingGames = append(pendingGames, req.gameID)

		if w.BufferedGames() >= gamesPerFlush {
			flush(false)
		}
	}

	flush(true)
}
