package selfplay

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brensch/checkers/executor/alphabeta"
	"github.com/brensch/checkers/game"
	"github.com/brensch/checkers/rules"
	"github.com/brensch/checkers/store"
)

const (
	SourceSearch = "selfplay"
	SourceRandom = "random"
)

// InProgressGame is a resumable self-play game snapshot. The winner is only
// stamped onto Rows once the game completes.
type InProgressGame struct {
	GameID string
	Board  *game.Board
	ToMove game.Player
	Rows   []store.TurnRow
	Seed   int64
}

// Options configures one game. A zero Rules plays the default rule set.
type Options struct {
	Rules rules.Checkers
	// Board is the starting position; nil uses an 8x8 board with 3 rows each.
	Board *game.Board
	// Search is shared by both sides; FirstDepth and SecondDepth override
	// its depth per side when positive.
	Search      alphabeta.Config
	FirstDepth  int
	SecondDepth int
	// MaxTurns ends the game as a draw.
	MaxTurns int
	// RandomPlies are played uniformly at random before the engines take
	// over, so deterministic engines still produce distinct games.
	RandomPlies int
	Seed        int64
	// RecordTrees keeps every search tree in Outcome.Trees.
	RecordTrees bool

	Resume        *InProgressGame
	StopRequested func() bool
	OnStep        func(Step)
	Log           *zap.Logger
}

// Step describes one ply after it was played.
type Step struct {
	GameID string
	Turn   int
	Player game.Player
	Piece  game.Cell
	Move   game.Destination
	Score  int
	Stats  alphabeta.Stats
	Random bool
	// Board is the position after the move.
	Board *game.Board
}

type Outcome struct {
	GameID    string
	Completed bool
	// Winner is NoPlayer for draws and unfinished games.
	Winner     game.Player
	Turns      int
	Rows       []store.TurnRow
	Trees      []store.TreeNodeRow
	Stats      alphabeta.Stats
	Checkpoint *InProgressGame
}

// PlayGame plays one engine-versus-engine game.
//
// Cancelling ctx or StopRequested returning true ends the game early with
// Completed=false and a Checkpoint that Resume accepts. Errors are reserved
// for rule or search failures.
func PlayGame(ctx context.Context, opts Options) (Outcome, error) {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 200
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Rules == (rules.Checkers{}) {
		opts.Rules = rules.NewCheckers()
	}
	stopRequested := opts.StopRequested
	if stopRequested == nil {
		stopRequested = func() bool { return false }
	}

	var (
		gameID string
		board  *game.Board
		toMove = game.PlayerFirst
		seed   = opts.Seed
		rows   = make([]store.TurnRow, 0, 128)
	)
	if r := opts.Resume; r != nil && r.Board != nil && r.GameID != "" {
		gameID, board, toMove, seed = r.GameID, r.Board.Clone(), r.ToMove, r.Seed
		rows = append(rows, r.Rows...)
	} else {
		gameID = uuid.NewString()
		board = opts.Board.Clone()
		if board == nil {
			board = game.NewBoard(8, 3)
		}
	}
	if err := board.Validate(); err != nil {
		return Outcome{}, err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	players, err := newPlayers(opts)
	if err != nil {
		return Outcome{}, err
	}

	log := opts.Log.With(zap.String("game_id", gameID))
	out := Outcome{GameID: gameID}

	for {
		select {
		case <-ctx.Done():
			stopRequested = func() bool { return true }
		default:
		}
		if stopRequested() {
			out.Rows = rows
			out.Turns = board.Turn
			out.Checkpoint = &InProgressGame{
				GameID: gameID,
				Board:  board.Clone(),
				ToMove: toMove,
				Rows:   append([]store.TurnRow(nil), rows...),
				Seed:   rng.Int63(),
			}
			log.Debug("game paused", zap.Int("turn", board.Turn))
			return out, nil
		}

		if board.Turn >= opts.MaxTurns {
			log.Debug("turn limit reached", zap.Int("turn", board.Turn))
			break
		}

		row := store.TurnRow{
			GameID: gameID,
			Turn:   int32(board.Turn),
			Player: toMove.String(),
			Board:  board.String(),
			Source: SourceSearch,
		}
		step := Step{GameID: gameID, Turn: board.Turn, Player: toMove}

		if board.Turn < opts.RandomPlies {
			moves := rules.MovableEntries(board, toMove, opts.Rules.Settings)
			if len(moves) == 0 {
				out.Winner = toMove.Opponent()
				break
			}
			m := moves[rng.Intn(len(moves))]
			step.Piece, step.Move = m.Piece, m.Destinations[rng.Intn(len(m.Destinations))]
			step.Random = true
			row.Source = SourceRandom
		} else {
			p := players[toMove]
			res, err := p.Search(board)
			if err != nil {
				return out, fmt.Errorf("turn %d: %w", board.Turn, err)
			}
			if res.Move == nil {
				out.Winner = toMove.Opponent()
				break
			}
			step.Piece, step.Move = res.Move.Piece, res.Move.Destination
			step.Score, step.Stats = res.Score, res.Stats
			out.Stats.Add(res.Stats)

			row.Score = int64(res.Score)
			row.Depth = int32(p.Config().Depth)
			row.Visited = int32(res.Stats.Visited)
			row.Generated = int32(res.Stats.Generated)
			row.Cutoffs = int32(res.Stats.Cutoffs)
			if opts.RecordTrees {
				out.Trees = append(out.Trees, store.TreeRows(gameID, board.Turn, res.Tree)...)
			}
		}
		row.SetMove(step.Piece, step.Move)
		rows = append(rows, row)

		next, err := rules.SimulateMove(board, step.Piece, step.Move)
		if err != nil {
			return out, fmt.Errorf("turn %d: %w", board.Turn, err)
		}
		board = next
		toMove = toMove.Opponent()

		if opts.OnStep != nil {
			step.Board = board.Clone()
			opts.OnStep(step)
		}
	}

	for i := range rows {
		rows[i].Winner = out.Winner.String()
	}
	out.Rows = rows
	out.Turns = board.Turn
	out.Completed = true
	log.Debug("game complete",
		zap.Stringer("winner", out.Winner),
		zap.Int("turns", out.Turns),
		zap.Object("stats", out.Stats),
	)
	return out, nil
}

func newPlayers(opts Options) (map[game.Player]*alphabeta.AiPlayer[*game.Board], error) {
	players := make(map[game.Player]*alphabeta.AiPlayer[*game.Board], 2)
	for _, side := range []struct {
		player game.Player
		depth  int
	}{
		{game.PlayerFirst, opts.FirstDepth},
		{game.PlayerSecond, opts.SecondDepth},
	} {
		cfg := opts.Search
		if side.depth > 0 {
			cfg.Depth = side.depth
		}
		if cfg.Depth < 1 {
			return nil, fmt.Errorf("%w: %s needs a depth of at least 1", alphabeta.ErrInvalidConfig, side.player)
		}
		p, err := alphabeta.NewAiPlayer[*game.Board](opts.Rules, side.player, side.player.Opponent(), cfg,
			alphabeta.WithLogger(opts.Log))
		if err != nil {
			return nil, err
		}
		players[side.player] = p
	}
	return players, nil
}
