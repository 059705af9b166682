package rules

import (
	"errors"
	"fmt"

	"github.com/brensch/checkers/game"
)

// ErrIllegalMove is returned when a move does not fit the board it is applied to.
var ErrIllegalMove = errors.New("illegal move")

// Settings selects between the common checkers variants.
type Settings struct {
	// CaptureMandatory removes plain moves whenever any capture is available.
	CaptureMandatory bool `mapstructure:"capture_mandatory"`
	// MenCaptureBackward lets men jump towards their own side.
	MenCaptureBackward bool `mapstructure:"men_capture_backward"`
	// FlyingKings lets kings slide any distance along a diagonal.
	FlyingKings bool `mapstructure:"flying_kings"`
}

// DefaultSettings plays Russian draughts: forced captures, men capture
// backwards and kings fly.
var DefaultSettings = Settings{CaptureMandatory: true, MenCaptureBackward: true, FlyingKings: true}

// directions are visited in this order; it fixes move enumeration order.
var directions = [4][2]int{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}}

// forward is the row delta a man of player advances by.
func forward(player game.Player) int {
	if player == game.PlayerSecond {
		return -1
	}
	return 1
}

// MovableEntries returns every piece of player that can move, each with its
// destinations. Pieces are listed row-major; captures precede plain moves.
func MovableEntries(b *game.Board, player game.Player, s Settings) []game.Movable {
	type candidate struct {
		piece    game.Cell
		captures []game.Destination
		plain    []game.Destination
	}

	var candidates []candidate
	anyCapture := false
	for _, c := range b.Cells {
		if c.Player != player {
			continue
		}
		cand := candidate{piece: c}
		for _, chain := range captureChains(b, c, s) {
			cand.captures = append(cand.captures, game.NewCaptureDestination(chain))
		}
		cand.plain = plainMoves(b, c, s)
		if len(cand.captures) > 0 {
			anyCapture = true
		}
		if len(cand.captures) > 0 || len(cand.plain) > 0 {
			candidates = append(candidates, cand)
		}
	}

	out := make([]game.Movable, 0, len(candidates))
	for _, cand := range candidates {
		var dsts []game.Destination
		if s.CaptureMandatory && anyCapture {
			dsts = cand.captures
		} else {
			dsts = append(cand.captures, cand.plain...)
		}
		if len(dsts) == 0 {
			continue
		}
		out = append(out, game.Movable{Piece: cand.piece, Destinations: dsts})
	}
	return out
}

func plainMoves(b *game.Board, piece game.Cell, s Settings) []game.Destination {
	var out []game.Destination
	for _, d := range directions {
		if !piece.King && d[1] != forward(piece.Player) {
			continue
		}
		x, y := piece.X+d[0], piece.Y+d[1]
		for b.InBounds(x, y) && b.At(x, y).Empty() {
			out = append(out, game.NewDestination(game.Cell{X: x, Y: y}))
			if !piece.King || !s.FlyingKings {
				break
			}
			x, y = x+d[0], y+d[1]
		}
	}
	return out
}

// SimulateMove returns the board after piece moves to dst. The input board
// is left untouched.
func SimulateMove(b *game.Board, piece game.Cell, dst game.Destination) (*game.Board, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil board", ErrIllegalMove)
	}
	if !b.InBounds(piece.X, piece.Y) {
		return nil, fmt.Errorf("%w: source %s off board", ErrIllegalMove, piece)
	}
	src := b.At(piece.X, piece.Y)
	if src.Empty() || src.Player != piece.Player {
		return nil, fmt.Errorf("%w: no %s piece at %s", ErrIllegalMove, piece.Player, piece)
	}
	to := dst.Cell()
	if !b.InBounds(to.X, to.Y) || !game.Playable(to.X, to.Y) {
		return nil, fmt.Errorf("%w: destination %s not playable", ErrIllegalMove, to)
	}
	if !b.At(to.X, to.Y).Empty() && !to.SamePos(src) {
		return nil, fmt.Errorf("%w: destination %s occupied", ErrIllegalMove, to)
	}

	next := b.Clone()
	next.Turn++
	next.Clear(src.X, src.Y)
	for _, c := range dst.Captured() {
		if !next.InBounds(c.X, c.Y) {
			return nil, fmt.Errorf("%w: captured piece %s off board", ErrIllegalMove, c)
		}
		victim := next.At(c.X, c.Y)
		if victim.Player != src.Player.Opponent() {
			return nil, fmt.Errorf("%w: nothing to capture at %s", ErrIllegalMove, c)
		}
		next.Clear(c.X, c.Y)
	}

	king := src.King || promotes(next, src.Player, to.Y)
	for _, step := range dst.Steps() {
		king = king || promotes(next, src.Player, step.Y)
	}
	moved := game.Cell{X: to.X, Y: to.Y, Player: src.Player, King: king}
	next.Put(moved)
	return next, nil
}

func promotes(b *game.Board, player game.Player, y int) bool {
	if player == game.PlayerSecond {
		return y == 0
	}
	return y == b.Size-1
}

// Winner returns the opponent of toMove when toMove cannot move, otherwise NoPlayer.
func Winner(b *game.Board, toMove game.Player, s Settings) game.Player {
	if len(MovableEntries(b, toMove, s)) == 0 {
		return toMove.Opponent()
	}
	return game.NoPlayer
}

// IsTerminal returns true if the side to move has lost.
func IsTerminal(b *game.Board, toMove game.Player, s Settings) bool {
	return Winner(b, toMove, s) != game.NoPlayer
}

// FindMove looks up the legal destination of the piece at from that ends on
// to. Ambiguous captures (same landing square, different victims) resolve to
// the first one enumerated.
func FindMove(b *game.Board, player game.Player, s Settings, from, to game.Cell) (game.Cell, game.Destination, bool) {
	for _, m := range MovableEntries(b, player, s) {
		if !m.Piece.SamePos(from) {
			continue
		}
		for _, d := range m.Destinations {
			if d.Cell().SamePos(to) {
				return m.Piece, d, true
			}
		}
	}
	return game.Cell{}, game.Destination{}, false
}
