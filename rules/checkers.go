package rules

import (
	"fmt"

	"github.com/brensch/checkers/game"
)

// Checkers binds Settings and Weights into the board service the search
// engine consumes.
type Checkers struct {
	Settings Settings
	Weights  Weights
}

// NewCheckers returns the default rule set.
func NewCheckers() Checkers {
	return Checkers{Settings: DefaultSettings, Weights: DefaultWeights}
}

func (c Checkers) MovablePieces(b *game.Board, player game.Player) ([]game.Movable, error) {
	if b == nil {
		return nil, fmt.Errorf("movable pieces: nil board")
	}
	return MovableEntries(b, player, c.Settings), nil
}

func (c Checkers) SimulateMove(b *game.Board, piece game.Cell, dst game.Destination) (*game.Board, error) {
	return SimulateMove(b, piece, dst)
}

func (c Checkers) Evaluate(b *game.Board, ai, adversary game.Player) (int, error) {
	if b == nil {
		return 0, fmt.Errorf("evaluate: nil board")
	}
	return Evaluate(b, ai, adversary, c.Weights), nil
}

// Winner reports who has won with toMove to play, or NoPlayer.
func (c Checkers) Winner(b *game.Board, toMove game.Player) game.Player {
	return Winner(b, toMove, c.Settings)
}
