package rules

import "github.com/brensch/checkers/game"

// Weights scores material and progress for Evaluate.
type Weights struct {
	Man     int `mapstructure:"man"`
	King    int `mapstructure:"king"`
	Advance int `mapstructure:"advance"` // per row a man has advanced
}

var DefaultWeights = Weights{Man: 100, King: 160, Advance: 5}

// Evaluate scores b from ai's point of view. Positive favours ai, negative
// favours adversary. Pieces of any other player are ignored.
func Evaluate(b *game.Board, ai, adversary game.Player, w Weights) int {
	score := 0
	for _, c := range b.Cells {
		var sign int
		switch c.Player {
		case ai:
			sign = 1
		case adversary:
			sign = -1
		default:
			continue
		}
		score += sign * pieceValue(b, c, w)
	}
	return score
}

func pieceValue(b *game.Board, c game.Cell, w Weights) int {
	if c.King {
		return w.King
	}
	rows := c.Y
	if c.Player == game.PlayerSecond {
		rows = b.Size - 1 - c.Y
	}
	return w.Man + w.Advance*rows
}
