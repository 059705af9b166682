package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/checkers/executor/alphabeta"
	"github.com/brensch/checkers/game"
)

const treeSchema = "checkers_search_tree_v1"

// TreeNodeRow is one node of a search tree, flattened for offline
// inspection. Parent is -1 for the root; nodes skipped by a cutoff have
// Scored=false.
type TreeNodeRow struct {
	GameID string `parquet:"game_id,dict"`
	Turn   int32  `parquet:"turn"`
	Node   int32  `parquet:"node"`
	Parent int32  `parquet:"parent"`
	Depth  int32  `parquet:"depth"`
	AiTurn bool   `parquet:"ai_turn"`
	Score  int64  `parquet:"score"`
	Scored bool   `parquet:"scored"`

	SourceX   int32   `parquet:"source_x"`
	SourceY   int32   `parquet:"source_y"`
	DestX     int32   `parquet:"dest_x"`
	DestY     int32   `parquet:"dest_y"`
	CapturedX []int32 `parquet:"captured_x"`
	CapturedY []int32 `parquet:"captured_y"`
}

// TreeRows flattens tree in depth-first generation order.
func TreeRows(gameID string, turn int, tree *alphabeta.Tree[*game.Board]) []TreeNodeRow {
	rows := make([]TreeNodeRow, 0, tree.Len())
	parent := make(map[alphabeta.NodeID]alphabeta.NodeID, tree.Len())
	tree.Walk(func(id alphabeta.NodeID, n *alphabeta.Node[*game.Board]) bool {
		for _, c := range n.Children {
			parent[c] = id
		}
		row := TreeNodeRow{
			GameID: gameID,
			Turn:   int32(turn),
			Node:   int32(id),
			Parent: -1,
			Depth:  int32(n.Depth),
			AiTurn: n.AiTurn,
			Score:  int64(n.Score),
			Scored: n.Scored,
		}
		if p, ok := parent[id]; ok {
			row.Parent = int32(p)
		}
		if n.HasMove {
			row.SourceX, row.SourceY = int32(n.Piece.X), int32(n.Piece.Y)
			row.DestX, row.DestY = int32(n.Destination.Cell().X), int32(n.Destination.Cell().Y)
			row.CapturedX, row.CapturedY = splitXY(n.Destination.Captured())
		}
		rows = append(rows, row)
		return true
	})
	return rows
}

// WriteTreeParquet writes the search trees of one game to outDir/<gameID>.parquet.
func WriteTreeParquet(outDir, gameID string, rows []TreeNodeRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	outPath := filepath.Join(outDir, gameID+".parquet")
	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", treeSchema),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return outPath, nil
}

// ReadTreeRows loads a file written by WriteTreeParquet.
func ReadTreeRows(path string) ([]TreeNodeRow, error) {
	rows, err := parquet.ReadFile[TreeNodeRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
