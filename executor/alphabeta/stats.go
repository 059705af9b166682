package alphabeta

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// Stats counts the work done by one search.
type Stats struct {
	Visited   int // nodes the evaluator descended into
	Generated int // nodes created, root included
	Leaves    int // static evaluations
	Cutoffs   int
	MaxPly    int
	Elapsed   time.Duration
}

// Pruned is the number of generated nodes the search never descended into.
func (s Stats) Pruned() int { return s.Generated - s.Visited }

func (s Stats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("visited", s.Visited)
	enc.AddInt("generated", s.Generated)
	enc.AddInt("leaves", s.Leaves)
	enc.AddInt("cutoffs", s.Cutoffs)
	enc.AddInt("pruned", s.Pruned())
	enc.AddInt("max_ply", s.MaxPly)
	enc.AddDuration("elapsed", s.Elapsed)
	return nil
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Visited += o.Visited
	s.Generated += o.Generated
	s.Leaves += o.Leaves
	s.Cutoffs += o.Cutoffs
	s.MaxPly = max(s.MaxPly, o.MaxPly)
	s.Elapsed += o.Elapsed
}
