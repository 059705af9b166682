package main

import (
	"fmt"

	"github.com/brensch/checkers/game"
	"github.com/brensch/checkers/store"
)

// Square codes in TrainingXRow.X, always from the mover's point of view.
const (
	sqEmpty byte = iota
	sqOwnMan
	sqOwnKing
	sqOppMan
	sqOppKing
)

type TrainingXRow struct {
	GameID string `parquet:"game_id,dict"`
	Turn   int32  `parquet:"turn"`

	// X holds one square code per cell, row by row. Boards are rotated so the
	// mover always advances towards higher rows.
	X    []byte `parquet:"x"`
	Size int32  `parquet:"size"`

	// Value is the final result for the mover: 1 win, -1 loss, 0 draw.
	Value float32 `parquet:"value"`
	// Score is the search score of the chosen move.
	Score  int64  `parquet:"score"`
	Depth  int32  `parquet:"depth"`
	Source string `parquet:"source,dict"`
}

// encodeBoard flattens b for mover.
func encodeBoard(b *game.Board, mover game.Player) []byte {
	n := b.Size
	x := make([]byte, n*n)
	for _, c := range b.Cells {
		if c.Empty() {
			continue
		}
		code := sqOppMan
		if c.Player == mover {
			code = sqOwnMan
		}
		if c.King {
			code++
		}
		px, py := c.X, c.Y
		if mover == game.PlayerSecond {
			px, py = n-1-px, n-1-py
		}
		x[py*n+px] = code
	}
	return x
}

func outcomeFor(mover game.Player, winner string) (float32, error) {
	w, err := game.ParsePlayer(winner)
	if err != nil {
		return 0, err
	}
	switch w {
	case game.NoPlayer:
		return 0, nil
	case mover:
		return 1, nil
	}
	return -1, nil
}

// convertRow turns one recorded ply into a training row. Random plies carry
// no search signal and are skipped.
func convertRow(row store.TurnRow) (TrainingXRow, bool, error) {
	if row.Source != "selfplay" {
		return TrainingXRow{}, false, nil
	}
	mover, err := game.ParsePlayer(row.Player)
	if err != nil || mover == game.NoPlayer {
		return TrainingXRow{}, false, fmt.Errorf("game %s turn %d: bad player %q", row.GameID, row.Turn, row.Player)
	}
	b, err := game.ParseBoard(row.Board)
	if err != nil {
		return TrainingXRow{}, false, fmt.Errorf("game %s turn %d: %w", row.GameID, row.Turn, err)
	}
	value, err := outcomeFor(mover, row.Winner)
	if err != nil {
		return TrainingXRow{}, false, fmt.Errorf("game %s turn %d: %w", row.GameID, row.Turn, err)
	}
	return TrainingXRow{
		GameID: row.GameID,
		Turn:   row.Turn,
		X:      encodeBoard(b, mover),
		Size:   int32(b.Size),
		Value:  value,
		Score:  row.Score,
		Depth:  row.Depth,
		Source: row.Source,
	}, true, nil
}
