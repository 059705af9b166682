// Package alphabeta chooses moves with a depth-limited minimax search and
// alpha-beta pruning.
//
// The search runs against a Rules implementation, so it knows nothing about
// the board beyond three operations: enumerate movable pieces, simulate a
// move, and score a position. Every call builds a fresh Tree and drops it
// when the call returns.
package alphabeta

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/brensch/checkers/game"
)

const (
	// MinScore and MaxScore keep one unit of headroom inside the int range.
	// Search windows and node values never leave [MinScore, MaxScore].
	MinScore = math.MinInt + 1
	MaxScore = math.MaxInt - 1

	// noChild is below every score a node can hold.
	noChild = math.MinInt
)

var (
	// ErrNoMove is returned by ExecuteMove when the AI has nothing to play.
	ErrNoMove = errors.New("no legal move available")
	// ErrInvalidConfig is returned by NewAiPlayer for unusable settings.
	ErrInvalidConfig = errors.New("invalid search config")
)

// Rules is the board service the search consumes. Implementations must be
// pure: the same inputs always give the same outputs and no input is mutated.
type Rules[S any] interface {
	// MovablePieces lists player's pieces with their legal destinations.
	// The order of the result is the tie-break order of the search.
	MovablePieces(state S, player game.Player) ([]game.Movable, error)
	SimulateMove(state S, piece game.Cell, dst game.Destination) (S, error)
	// Evaluate scores state; positive favours ai.
	Evaluate(state S, ai, adversary game.Player) (int, error)
}

// Expansion selects when children are generated.
type Expansion string

const (
	// ExpandEager simulates every child of a node before descending into
	// any of them. A cutoff skips the descent but not the simulation.
	ExpandEager Expansion = "eager"
	// ExpandLazy simulates one child at a time and stops generating at a
	// cutoff. Scores and chosen moves match ExpandEager; node counts do not.
	ExpandLazy Expansion = "lazy"
)

// Config holds search configuration
type Config struct {
	Depth          int       `mapstructure:"depth"`
	DisablePruning bool      `mapstructure:"disable_pruning"`
	Expansion      Expansion `mapstructure:"expansion"`
}

// DefaultConfig searches four plies with eager expansion.
var DefaultConfig = Config{Depth: 4, Expansion: ExpandEager}

func (c Config) validate() error {
	if c.Depth < 0 {
		return fmt.Errorf("%w: depth %d is negative", ErrInvalidConfig, c.Depth)
	}
	switch c.Expansion {
	case "", ExpandEager, ExpandLazy:
	default:
		return fmt.Errorf("%w: unknown expansion %q", ErrInvalidConfig, c.Expansion)
	}
	return nil
}

// Move is a piece and the destination chosen for it.
type Move struct {
	Piece       game.Cell
	Destination game.Destination
}

// Result is everything one search produced.
type Result[S any] struct {
	// Score is the minimax value of the root.
	Score int
	// Move is nil when the root has no children: no legal move, or depth 0.
	Move  *Move
	Tree  *Tree[S]
	Stats Stats
}

// Option configures an AiPlayer.
type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger sets the logger used for per-search debug output.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// AiPlayer picks moves for one side. It is not safe for concurrent use;
// give every game its own player.
type AiPlayer[S any] struct {
	rules     Rules[S]
	ai        game.Player
	adversary game.Player
	config    Config
	log       *zap.Logger

	source      game.Cell
	destination game.Destination
	hasMove     bool
	score       int
	stats       Stats
}

// NewAiPlayer creates a player that searches on behalf of ai.
func NewAiPlayer[S any](rules Rules[S], ai, adversary game.Player, config Config, opts ...Option) (*AiPlayer[S], error) {
	if rules == nil {
		return nil, fmt.Errorf("%w: rules are required", ErrInvalidConfig)
	}
	if ai == adversary {
		return nil, fmt.Errorf("%w: ai and adversary are both %s", ErrInvalidConfig, ai)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Expansion == "" {
		config.Expansion = ExpandEager
	}

	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &AiPlayer[S]{
		rules:     rules,
		ai:        ai,
		adversary: adversary,
		config:    config,
		log:       o.log.With(zap.Stringer("ai", ai)),
	}, nil
}

func (p *AiPlayer[S]) AI() game.Player        { return p.ai }
func (p *AiPlayer[S]) Adversary() game.Player { return p.adversary }
func (p *AiPlayer[S]) Config() Config         { return p.config }

// LastStats returns the statistics of the most recent ExecuteMove.
func (p *AiPlayer[S]) LastStats() Stats { return p.stats }

// LastScore is the root score of the most recent ExecuteMove.
func (p *AiPlayer[S]) LastScore() int { return p.score }

// MoveSource is the piece chosen by the last successful ExecuteMove.
func (p *AiPlayer[S]) MoveSource() (game.Cell, bool) {
	return p.source, p.hasMove
}

// MoveDestination is the destination chosen by the last successful ExecuteMove.
func (p *AiPlayer[S]) MoveDestination() (game.Destination, bool) {
	return p.destination, p.hasMove
}

// ExecuteMove searches state and records the chosen move. It returns
// ErrNoMove when the AI has no legal move (or the depth is 0); collaborator
// errors are returned as they came. In both cases no move is recorded.
func (p *AiPlayer[S]) ExecuteMove(state S) error {
	p.source, p.destination, p.hasMove = game.Cell{}, game.Destination{}, false

	res, err := p.Search(state)
	if err != nil {
		return err
	}
	p.stats, p.score = res.Stats, res.Score
	if res.Move == nil {
		return ErrNoMove
	}

	p.source = res.Move.Piece
	p.destination = res.Move.Destination
	p.hasMove = true
	return nil
}

// Search builds a tree rooted at state with the AI to move and runs
// alpha-beta over it.
func (p *AiPlayer[S]) Search(state S) (*Result[S], error) {
	start := time.Now()
	s := &search[S]{
		rules:     p.rules,
		ai:        p.ai,
		adversary: p.adversary,
		config:    p.config,
		tree:      NewTree(state, true, p.config.Depth),
	}

	score, err := s.alphaBeta(Root, MinScore, MaxScore)
	s.stats.Generated = s.tree.Len()
	s.stats.Elapsed = time.Since(start)
	if err != nil {
		p.log.Debug("search failed", zap.Error(err), zap.Object("stats", s.stats))
		return nil, err
	}

	res := &Result[S]{Score: score, Tree: s.tree, Stats: s.stats}
	if best, ok := bestChild(s.tree, Root); ok {
		n := s.tree.Node(best)
		res.Move = &Move{Piece: n.Piece, Destination: n.Destination}
	}

	p.log.Debug("search complete",
		zap.Int("depth", p.config.Depth),
		zap.Int("score", score),
		zap.Bool("has_move", res.Move != nil),
		zap.Object("stats", s.stats),
	)
	return res, nil
}

// bestChild returns the scored child with the strictly greatest score; the
// earliest generated child wins ties.
func bestChild[S any](t *Tree[S], parent NodeID) (NodeID, bool) {
	best, bestScore := NodeID(-1), noChild
	for _, id := range t.Node(parent).Children {
		n := t.Node(id)
		if !n.Scored {
			continue
		}
		if n.Score > bestScore {
			best, bestScore = id, n.Score
		}
	}
	return best, best >= 0
}

// search is the state of one Search call.
type search[S any] struct {
	rules     Rules[S]
	ai        game.Player
	adversary game.Player
	config    Config
	tree      *Tree[S]
	stats     Stats
}

// alphaBeta scores node id within the (alpha, beta) window. Whether the
// node maximises is read from its AiTurn flag, which AddChild flips on
// every ply.
func (s *search[S]) alphaBeta(id NodeID, alpha, beta int) (int, error) {
	s.stats.Visited++
	n := s.tree.Node(id)
	if ply := s.config.Depth - n.Depth; ply > s.stats.MaxPly {
		s.stats.MaxPly = ply
	}

	if n.Depth == 0 {
		v, err := s.rules.Evaluate(n.State, s.ai, s.adversary)
		if err != nil {
			return 0, fmt.Errorf("evaluate: %w", err)
		}
		s.stats.Leaves++
		v = min(max(v, MinScore), MaxScore)
		s.tree.setScore(id, v)
		return v, nil
	}

	maximizing := n.AiTurn
	value := MaxScore
	if maximizing {
		value = MinScore
	}

	// visit descends into one child, folds its value into the running value
	// and window, and reports whether the remaining children can be skipped.
	visit := func(child NodeID) (bool, error) {
		v, err := s.alphaBeta(child, alpha, beta)
		if err != nil {
			return false, err
		}
		if maximizing {
			value = max(value, v)
			alpha = max(alpha, value)
		} else {
			value = min(value, v)
			beta = min(beta, value)
		}
		if !s.config.DisablePruning && alpha >= beta {
			s.stats.Cutoffs++
			return true, nil
		}
		return false, nil
	}

	var err error
	if s.config.Expansion == ExpandLazy {
		err = s.expand(id, visit)
	} else if err = s.expand(id, nil); err == nil {
		for _, c := range s.tree.Node(id).Children {
			var stop bool
			if stop, err = visit(c); err != nil || stop {
				break
			}
		}
	}
	if err != nil {
		return 0, err
	}

	s.tree.setScore(id, value)
	return value, nil
}

// expand generates the children of id in enumeration order. Given a visit
// callback, each child is handed over as soon as it exists and generation
// stops when visit asks to. Without one, every child is generated up front.
func (s *search[S]) expand(id NodeID, visit func(NodeID) (bool, error)) error {
	n := s.tree.Node(id)
	state := n.State
	player := s.adversary
	if n.AiTurn {
		player = s.ai
	}

	moves, err := s.rules.MovablePieces(state, player)
	if err != nil {
		return fmt.Errorf("movable pieces: %w", err)
	}
	for _, m := range moves {
		for _, dst := range m.Destinations {
			next, err := s.rules.SimulateMove(state, m.Piece, dst)
			if err != nil {
				return fmt.Errorf("simulate %s -> %s: %w", m.Piece, dst.Cell(), err)
			}
			child := s.tree.AddChild(id, m.Piece, dst, next)
			if visit == nil {
				continue
			}
			stop, err := visit(child)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}
