package game

import "encoding/json"

// CaptureChain is a fully resolved sequence of jumps made by one piece.
// Steps holds the landing squares before the final one, in order.
type CaptureChain struct {
	Destination Cell
	Captured    []Cell
	Steps       []Cell
}

// Destination describes where a move ends and, for captures, what was taken
// on the way. It is immutable: build it with NewDestination or
// NewCaptureDestination, never both.
type Destination struct {
	cell     Cell
	captured []Cell
	steps    []Cell
}

// NewDestination builds a plain, non-capturing move ending on cell.
func NewDestination(cell Cell) Destination {
	return Destination{cell: cell}
}

// NewCaptureDestination takes the destination, captured pieces and
// intermediate steps from a resolved chain.
func NewCaptureDestination(chain CaptureChain) Destination {
	d := Destination{cell: chain.Destination}
	if chain.Captured != nil {
		d.captured = append([]Cell(nil), chain.Captured...)
	}
	if chain.Steps != nil {
		d.steps = append([]Cell(nil), chain.Steps...)
	}
	return d
}

// Cell is the square the moving piece ends on.
func (d Destination) Cell() Cell { return d.cell }

// IsCapture reports whether the move removes at least one piece.
func (d Destination) IsCapture() bool { return len(d.captured) > 0 }

// Captured returns the removed pieces in capture order, or nil for a plain move.
func (d Destination) Captured() []Cell {
	if d.captured == nil {
		return nil
	}
	return append([]Cell(nil), d.captured...)
}

// Steps returns the squares passed through during a capture chain, or nil.
func (d Destination) Steps() []Cell {
	if d.steps == nil {
		return nil
	}
	return append([]Cell(nil), d.steps...)
}

// Equal reports whether two destinations describe the same move outcome.
func (d Destination) Equal(o Destination) bool {
	if !d.cell.SamePos(o.cell) || len(d.captured) != len(o.captured) || len(d.steps) != len(o.steps) {
		return false
	}
	for i := range d.captured {
		if !d.captured[i].SamePos(o.captured[i]) {
			return false
		}
	}
	for i := range d.steps {
		if !d.steps[i].SamePos(o.steps[i]) {
			return false
		}
	}
	return true
}

type destinationJSON struct {
	Cell     Cell   `json:"cell"`
	Captured []Cell `json:"captured,omitempty"`
	Steps    []Cell `json:"steps,omitempty"`
}

func (d Destination) MarshalJSON() ([]byte, error) {
	return json.Marshal(destinationJSON{Cell: d.cell, Captured: d.captured, Steps: d.steps})
}

// Movable is one piece together with every destination it can legally reach.
type Movable struct {
	Piece        Cell
	Destinations []Destination
}
