package rules

import "github.com/brensch/checkers/game"

// captureChains resolves every maximal jump sequence available to piece.
//
// The moving piece is lifted off its square for the duration of the search.
// Captured pieces stay on the board until the chain is complete: they block
// movement but can not be jumped a second time. A man reaching the far row
// mid-chain is crowned and carries on capturing as a king.
func captureChains(b *game.Board, piece game.Cell, s Settings) []game.CaptureChain {
	work := b.Clone()
	work.Clear(piece.X, piece.Y)

	var out []game.CaptureChain
	taken := make(map[[2]int]bool)

	var walk func(mover game.Cell, captured, steps []game.Cell)
	walk = func(mover game.Cell, captured, steps []game.Cell) {
		extended := false
		for _, d := range directions {
			if !mover.King && !s.MenCaptureBackward && d[1] != forward(mover.Player) {
				continue
			}
			victim, landings := jumpsAlong(work, mover, s, mover.X, mover.Y, d, taken)
			if len(landings) == 0 {
				continue
			}
			for _, l := range landings {
				extended = true
				taken[[2]int{victim.X, victim.Y}] = true
				next := game.Cell{X: l.X, Y: l.Y, Player: mover.Player, King: mover.King || promotes(work, mover.Player, l.Y)}
				walk(next,
					append(append([]game.Cell(nil), captured...), victim),
					append(append([]game.Cell(nil), steps...), l))
				delete(taken, [2]int{victim.X, victim.Y})
			}
		}
		if !extended && len(captured) > 0 {
			last := steps[len(steps)-1]
			var intermediate []game.Cell
			if len(steps) > 1 {
				intermediate = steps[:len(steps)-1]
			}
			out = append(out, game.CaptureChain{
				Destination: last,
				Captured:    captured,
				Steps:       intermediate,
			})
		}
	}
	walk(piece, nil, nil)
	return out
}

// jumpsAlong finds the opponent piece capturable from (x, y) in direction d
// and every square the capturing piece may land on behind it.
func jumpsAlong(b *game.Board, piece game.Cell, s Settings, x, y int, d [2]int, taken map[[2]int]bool) (game.Cell, []game.Cell) {
	flying := piece.King && s.FlyingKings

	cx, cy := x+d[0], y+d[1]
	if flying {
		for b.InBounds(cx, cy) && b.At(cx, cy).Empty() {
			cx, cy = cx+d[0], cy+d[1]
		}
	}
	if !b.InBounds(cx, cy) {
		return game.Cell{}, nil
	}
	victim := b.At(cx, cy)
	if victim.Player != piece.Player.Opponent() || taken[[2]int{cx, cy}] {
		return game.Cell{}, nil
	}

	var landings []game.Cell
	lx, ly := cx+d[0], cy+d[1]
	for b.InBounds(lx, ly) && b.At(lx, ly).Empty() {
		landings = append(landings, game.Cell{X: lx, Y: ly})
		if !flying {
			break
		}
		lx, ly = lx+d[0], ly+d[1]
	}
	return victim, landings
}
