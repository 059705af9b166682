package selfplay

import (
	"fmt"
	"path/filepath"

	"github.com/brensch/checkers/store"
)

// WriteDebugGame writes a finished game for offline inspection: its turns
// go to outDir/turns and, when recorded, its search trees to outDir/trees.
func WriteDebugGame(outDir string, out Outcome) (turnsPath, treesPath string, err error) {
	if len(out.Rows) == 0 {
		return "", "", fmt.Errorf("game %s has no turns", out.GameID)
	}
	turnsPath, err = store.WriteBatchParquetAtomic(filepath.Join(outDir, "turns"), out.Rows)
	if err != nil {
		return "", "", fmt.Errorf("write turns: %w", err)
	}
	if len(out.Trees) == 0 {
		return turnsPath, "", nil
	}
	treesPath, err = store.WriteTreeParquet(filepath.Join(outDir, "trees"), out.GameID, out.Trees)
	if err != nil {
		return turnsPath, "", fmt.Errorf("write trees: %w", err)
	}
	return turnsPath, treesPath, nil
}
