// Package game defines the core board types for checkers.
//
// These types represent the minimal state needed for rules evaluation and
// search. The board is designed to be efficiently clonable so every ply in
// the search tree can own its own copy.
package game

import (
	"fmt"
	"strings"
)

// Player identifies a side. NoPlayer marks an empty cell.
type Player uint8

const (
	NoPlayer Player = iota
	PlayerFirst
	PlayerSecond
)

// Opponent returns the other side. NoPlayer has no opponent.
func (p Player) Opponent() Player {
	switch p {
	case PlayerFirst:
		return PlayerSecond
	case PlayerSecond:
		return PlayerFirst
	}
	return NoPlayer
}

func (p Player) String() string {
	switch p {
	case PlayerFirst:
		return "first"
	case PlayerSecond:
		return "second"
	}
	return "none"
}

func (p Player) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Player) UnmarshalText(b []byte) error {
	v, err := ParsePlayer(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePlayer accepts the names produced by Player.String.
func ParsePlayer(s string) (Player, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first", "1":
		return PlayerFirst, nil
	case "second", "2":
		return PlayerSecond, nil
	case "none", "", "0":
		return NoPlayer, nil
	}
	return NoPlayer, fmt.Errorf("unknown player %q", s)
}

// Cell is a board coordinate plus whatever occupies it.
// Coordinates: (0,0) is the top-left corner; PlayerFirst starts on low rows.
type Cell struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Player Player `json:"player"`
	King   bool   `json:"king,omitempty"`
}

// Empty reports whether no piece stands on the cell.
func (c Cell) Empty() bool { return c.Player == NoPlayer }

// SamePos reports whether both cells address the same square.
func (c Cell) SamePos(o Cell) bool { return c.X == o.X && c.Y == o.Y }

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Board is the complete state needed for rules + search.
type Board struct {
	Size  int    `json:"size"`
	Cells []Cell `json:"cells"`
	Turn  int    `json:"turn"`
}

// NewBoard lays out a starting position: PlayerFirst fills the first
// playerRows rows, PlayerSecond the last playerRows rows, dark squares only.
func NewBoard(size, playerRows int) *Board {
	b := &Board{
		Size:  size,
		Cells: make([]Cell, size*size),
	}
	for i := range b.Cells {
		x, y := i%size, i/size
		c := Cell{X: x, Y: y}
		if Playable(x, y) {
			if y < playerRows {
				c.Player = PlayerFirst
			} else if y >= size-playerRows {
				c.Player = PlayerSecond
			}
		}
		b.Cells[i] = c
	}
	return b
}

// Playable reports whether pieces may ever stand on (x, y).
func Playable(x, y int) bool {
	return (x+y)%2 == 1
}

// InBounds reports whether (x, y) lies on the board.
func (b *Board) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Size && y < b.Size
}

// At returns the cell at (x, y). The caller must check InBounds.
func (b *Board) At(x, y int) Cell {
	return b.Cells[y*b.Size+x]
}

func (b *Board) set(c Cell) {
	b.Cells[c.Y*b.Size+c.X] = c
}

// Put places c on the board, overwriting whatever occupied its square.
func (b *Board) Put(c Cell) {
	b.set(c)
}

// Clear empties the square at (x, y).
func (b *Board) Clear(x, y int) {
	b.set(Cell{X: x, Y: y})
}

// Pieces returns every cell occupied by player, row-major.
func (b *Board) Pieces(player Player) []Cell {
	var out []Cell
	for _, c := range b.Cells {
		if c.Player == player {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks that the board is square and every cell sits at its index.
func (b *Board) Validate() error {
	if b == nil {
		return fmt.Errorf("nil board")
	}
	if b.Size <= 0 || len(b.Cells) != b.Size*b.Size {
		return fmt.Errorf("invalid board: size %d with %d cells", b.Size, len(b.Cells))
	}
	for i, c := range b.Cells {
		if c.X != i%b.Size || c.Y != i/b.Size {
			return fmt.Errorf("invalid board: cell %d has coordinates %s", i, c)
		}
		if !c.Empty() && !Playable(c.X, c.Y) {
			return fmt.Errorf("invalid board: piece on light square %s", c)
		}
	}
	return nil
}

// Clone performs a deep copy of the board.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}

	out := &Board{
		Size: b.Size,
		Turn: b.Turn,
	}
	if len(b.Cells) > 0 {
		out.Cells = make([]Cell, len(b.Cells))
		copy(out.Cells, b.Cells)
	}
	return out
}

// String draws the board top-to-bottom. Men are x/o, kings X/O.
func (b *Board) String() string {
	if b == nil {
		return "<nil board>"
	}
	var sb strings.Builder
	for y := 0; y < b.Size; y++ {
		for x := 0; x < b.Size; x++ {
			c := b.At(x, y)
			switch {
			case c.Player == PlayerFirst && c.King:
				sb.WriteByte('X')
			case c.Player == PlayerFirst:
				sb.WriteByte('x')
			case c.Player == PlayerSecond && c.King:
				sb.WriteByte('O')
			case c.Player == PlayerSecond:
				sb.WriteByte('o')
			case Playable(x, y):
				sb.WriteByte('.')
			default:
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ParseBoard is the inverse of Board.String. Rows are separated by newlines;
// any character other than x/X/o/O is an empty square.
func ParseBoard(s string) (*Board, error) {
	lines := strings.Split(strings.Trim(s, "\n"), "\n")
	size := len(lines)
	b := &Board{Size: size, Cells: make([]Cell, size*size)}
	for y, line := range lines {
		if len(line) > size {
			return nil, fmt.Errorf("row %d has %d columns, want at most %d", y, len(line), size)
		}
		for x := 0; x < size; x++ {
			c := Cell{X: x, Y: y}
			if x < len(line) {
				switch line[x] {
				case 'x':
					c.Player = PlayerFirst
				case 'X':
					c.Player, c.King = PlayerFirst, true
				case 'o':
					c.Player = PlayerSecond
				case 'O':
					c.Player, c.King = PlayerSecond, true
				}
			}
			b.Cells[y*size+x] = c
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
