package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/checkers/game"
)

const turnSchema = "checkers_turn_v1"

// TurnRow is one ply of a recorded game.
//
// Source and destination are the moving piece and where it stopped. For
// captures, Captured* lists the jumped pieces in order and Steps* the
// intermediate landing squares of a multi-jump. Score and the search counters
// come from the search that chose the move. Winner is filled in once the game
// is over and is "none" for draws and unfinished games.
type TurnRow struct {
	GameID string `parquet:"game_id,dict"`
	Turn   int32  `parquet:"turn"`
	Player string `parquet:"player,dict"`

	SourceX int32 `parquet:"source_x"`
	SourceY int32 `parquet:"source_y"`
	DestX   int32 `parquet:"dest_x"`
	DestY   int32 `parquet:"dest_y"`
	King    bool  `parquet:"king"`

	CapturedX []int32 `parquet:"captured_x"`
	CapturedY []int32 `parquet:"captured_y"`
	StepsX    []int32 `parquet:"steps_x"`
	StepsY    []int32 `parquet:"steps_y"`

	Score     int64 `parquet:"score"`
	Depth     int32 `parquet:"depth"`
	Visited   int32 `parquet:"visited"`
	Generated int32 `parquet:"generated"`
	Cutoffs   int32 `parquet:"cutoffs"`

	// Board is the position before the move, as drawn by game.Board.String.
	Board  string `parquet:"board,zstd"`
	Winner string `parquet:"winner,dict"`
	Source string `parquet:"source,dict"`
}

// SetMove fills the move columns from a piece and its destination.
func (r *TurnRow) SetMove(piece game.Cell, dst game.Destination) {
	r.SourceX, r.SourceY = int32(piece.X), int32(piece.Y)
	r.DestX, r.DestY = int32(dst.Cell().X), int32(dst.Cell().Y)
	r.King = piece.King
	r.CapturedX, r.CapturedY = splitXY(dst.Captured())
	r.StepsX, r.StepsY = splitXY(dst.Steps())
}

func splitXY(cells []game.Cell) (xs, ys []int32) {
	if len(cells) == 0 {
		return nil, nil
	}
	xs = make([]int32, len(cells))
	ys = make([]int32, len(cells))
	for i, c := range cells {
		xs[i], ys[i] = int32(c.X), int32(c.Y)
	}
	return xs, ys
}

// WriteBatchParquetAtomic writes a Parquet file into outDir/tmp and then
// atomically moves it into outDir.
//
// Readers polling outDir never observe a partially-written file.
func WriteBatchParquetAtomic(outDir string, rows []TurnRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("board"),
		parquet.KeyValueMetadata("schema", turnSchema),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}

// ReadTurnRows loads every row of a file written by this package.
func ReadTurnRows(path string) ([]TurnRow, error) {
	rows, err := parquet.ReadFile[TurnRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
