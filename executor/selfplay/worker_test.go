package selfplay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/brensch/checkers/executor/alphabeta"
	"github.com/brensch/checkers/game"
	"github.com/brensch/checkers/rules"
	"github.com/brensch/checkers/store"
)

func quickOptions() Options {
	return Options{
		Search:   alphabeta.Config{Depth: 2},
		MaxTurns: 120,
		Seed:     7,
	}
}

// checkRowsLegal replays every row against the board it recorded.
func checkRowsLegal(t *testing.T, rows []store.TurnRow) {
	t.Helper()
	for i, r := range rows {
		b, err := game.ParseBoard(r.Board)
		if err != nil {
			t.Fatalf("row %d: parse board: %v\n%s", i, err, r.Board)
		}
		player, err := game.ParsePlayer(r.Player)
		if err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
		from := game.Cell{X: int(r.SourceX), Y: int(r.SourceY)}
		to := game.Cell{X: int(r.DestX), Y: int(r.DestY)}
		if _, _, ok := rules.FindMove(b, player, rules.DefaultSettings, from, to); !ok {
			t.Fatalf("row %d: %s %s -> %s is not legal on\n%s", i, player, from, to, b)
		}
		if i > 0 && rows[i-1].Player == r.Player {
			t.Fatalf("row %d: %s moved twice in a row", i, r.Player)
		}
	}
}

func TestPlayGame_Completes(t *testing.T) {
	var steps int
	opts := quickOptions()
	opts.OnStep = func(s Step) {
		steps++
		if s.Board == nil || s.Board.Turn != s.Turn+1 {
			t.Fatalf("step %d board turn mismatch", s.Turn)
		}
	}

	out, err := PlayGame(context.Background(), opts)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	t.Logf("game %s: winner=%s turns=%d stats=%+v", out.GameID, out.Winner, out.Turns, out.Stats)

	if !out.Completed || out.Checkpoint != nil {
		t.Fatalf("completed=%v checkpoint=%v", out.Completed, out.Checkpoint)
	}
	if len(out.Rows) != out.Turns || steps != out.Turns {
		t.Fatalf("rows=%d steps=%d turns=%d", len(out.Rows), steps, out.Turns)
	}
	if out.Winner == game.NoPlayer && out.Turns != opts.MaxTurns {
		t.Fatalf("draw before the turn limit after %d turns", out.Turns)
	}
	for _, r := range out.Rows {
		if r.GameID != out.GameID || r.Winner != out.Winner.String() {
			t.Fatalf("row not stamped: %+v", r)
		}
	}
	checkRowsLegal(t, out.Rows)
}

func TestPlayGame_PerSideDepthAndRandomOpening(t *testing.T) {
	opts := quickOptions()
	opts.FirstDepth = 1
	opts.SecondDepth = 3
	opts.RandomPlies = 4
	opts.MaxTurns = 12

	out, err := PlayGame(context.Background(), opts)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	for i, r := range out.Rows {
		switch {
		case i < 4:
			if r.Source != SourceRandom || r.Depth != 0 {
				t.Fatalf("row %d: want random opening, got %+v", i, r)
			}
		case r.Player == game.PlayerFirst.String() && r.Depth != 1,
			r.Player == game.PlayerSecond.String() && r.Depth != 3:
			t.Fatalf("row %d: %s searched at depth %d", i, r.Player, r.Depth)
		}
	}
	checkRowsLegal(t, out.Rows)
}

func TestPlayGame_StopAndResume(t *testing.T) {
	opts := quickOptions()
	opts.MaxTurns = 10
	played := 0
	opts.OnStep = func(Step) { played++ }
	opts.StopRequested = func() bool { return played >= 3 }

	paused, err := PlayGame(context.Background(), opts)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if paused.Completed || paused.Checkpoint == nil {
		t.Fatalf("expected a paused game, got completed=%v", paused.Completed)
	}
	cp := paused.Checkpoint
	if len(cp.Rows) != 3 || cp.Board.Turn != 3 || cp.ToMove != game.PlayerSecond {
		t.Fatalf("checkpoint rows=%d turn=%d to move=%s", len(cp.Rows), cp.Board.Turn, cp.ToMove)
	}

	opts.StopRequested = nil
	opts.Resume = cp
	done, err := PlayGame(context.Background(), opts)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !done.Completed || done.GameID != paused.GameID {
		t.Fatalf("resumed game completed=%v id=%s want %s", done.Completed, done.GameID, paused.GameID)
	}
	if len(done.Rows) != done.Turns || done.Rows[3].Turn != 3 {
		t.Fatalf("resumed rows=%d turns=%d", len(done.Rows), done.Turns)
	}
	checkRowsLegal(t, done.Rows)
}

func TestPlayGame_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := PlayGame(ctx, quickOptions())
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if out.Completed || len(out.Rows) != 0 || out.Checkpoint == nil {
		t.Fatalf("completed=%v rows=%d", out.Completed, len(out.Rows))
	}
}

func TestPlayGame_SideWithoutMovesLoses(t *testing.T) {
	b, err := game.ParseBoard(`
 . . . .
. . . . 
 . . . .
. . . . 
 . . . .
. . . . 
 . . . .
o . . . 
`)
	if err != nil {
		t.Fatal(err)
	}
	opts := quickOptions()
	opts.Board = b

	out, err := PlayGame(context.Background(), opts)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if !out.Completed || out.Winner != game.PlayerSecond || out.Turns != 0 || len(out.Rows) != 0 {
		t.Fatalf("completed=%v winner=%s turns=%d", out.Completed, out.Winner, out.Turns)
	}
}

func TestPlayGame_RejectsDepthZero(t *testing.T) {
	opts := quickOptions()
	opts.Search.Depth = 0
	if _, err := PlayGame(context.Background(), opts); !errors.Is(err, alphabeta.ErrInvalidConfig) {
		t.Fatalf("err=%v want ErrInvalidConfig", err)
	}
}

func TestWriteDebugGame(t *testing.T) {
	opts := quickOptions()
	opts.MaxTurns = 4
	opts.RecordTrees = true
	out, err := PlayGame(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Trees) == 0 {
		t.Fatalf("no trees recorded")
	}

	turnsPath, treesPath, err := WriteDebugGame(t.TempDir(), out)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	turns, err := store.ReadTurnRows(turnsPath)
	if err != nil || len(turns) != 4 {
		t.Fatalf("turns=%d err=%v", len(turns), err)
	}
	trees, err := store.ReadTreeRows(treesPath)
	if err != nil || len(trees) != len(out.Trees) {
		t.Fatalf("trees=%d want %d err=%v", len(trees), len(out.Trees), err)
	}
}

func TestFormatStep(t *testing.T) {
	b := game.NewBoard(8, 3)
	s := Step{
		Turn:   0,
		Player: game.PlayerFirst,
		Piece:  b.At(1, 2),
		Move:   game.NewDestination(game.Cell{X: 2, Y: 3}),
		Board:  b,
	}
	got := FormatStep(s)
	if !strings.Contains(got, "(1,2) -> (2,3)") || strings.Count(got, "\n") != 9 {
		t.Fatalf("unexpected output:\n%s", got)
	}
}
