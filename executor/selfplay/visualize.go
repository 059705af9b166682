package selfplay

import (
	"fmt"
	"strings"
	"time"
)

// FormatStep renders a ply and the resulting board for console debugging.
func FormatStep(s Step) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Turn %3d | %-6s | %s -> %s", s.Turn, s.Player, s.Piece, s.Move.Cell())
	if s.Move.IsCapture() {
		sb.WriteString(" x")
		for _, c := range s.Move.Captured() {
			sb.WriteString(" " + c.String())
		}
	}
	if s.Random {
		sb.WriteString(" | random opening")
	} else {
		fmt.Fprintf(&sb, " | score %d | visited %d/%d | cutoffs %d | %s",
			s.Score, s.Stats.Visited, s.Stats.Generated, s.Stats.Cutoffs, s.Stats.Elapsed.Round(time.Microsecond))
	}
	sb.WriteByte('\n')
	if s.Board != nil {
		for _, line := range strings.Split(strings.TrimRight(s.Board.String(), "\n"), "\n") {
			sb.WriteString("    |" + line + "|\n")
		}
	}
	return sb.String()
}
