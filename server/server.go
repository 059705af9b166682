// Package server exposes the search engine over HTTP.
//
// POST /move answers a single position. GET /ws hosts an interactive game
// against the engine: the server keeps the board for the connection,
// validates the human's moves and answers with its own.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/brensch/checkers/config"
	"github.com/brensch/checkers/executor/alphabeta"
	"github.com/brensch/checkers/game"
	"github.com/brensch/checkers/rules"
)

const version = "1.0.0"

type Server struct {
	rules    rules.Checkers
	search   alphabeta.Config
	maxDepth int
	board    config.Board
	aiPlayer game.Player
	log      *zap.Logger

	upgrader websocket.Upgrader
	sessions atomic.Int64
}

func New(cfg *config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		rules:    cfg.RuleSet(),
		search:   cfg.Search,
		maxDepth: cfg.Server.MaxDepth,
		board:    cfg.Board,
		aiPlayer: cfg.Server.Player(),
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router wires every endpoint onto a chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Post("/move", s.handleMove)
	r.Get("/ws", s.handleSession)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type InfoResponse struct {
	Name      string              `json:"name"`
	Version   string              `json:"version"`
	Depth     int                 `json:"depth"`
	MaxDepth  int                 `json:"max_depth"`
	Expansion alphabeta.Expansion `json:"expansion"`
	Pruning   bool                `json:"pruning"`
	Rules     rules.Settings      `json:"rules"`
	BoardSize int                 `json:"board_size"`
	Sessions  int64               `json:"sessions"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, InfoResponse{
		Name:      "checkers",
		Version:   version,
		Depth:     s.search.Depth,
		MaxDepth:  s.maxDepth,
		Expansion: s.search.Expansion,
		Pruning:   !s.search.DisablePruning,
		Rules:     s.rules.Settings,
		BoardSize: s.board.Size,
		Sessions:  s.sessions.Load(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MoveRequest asks for the engine's move in a position. The position is
// either a full Board or a Diagram in the format of game.Board.String.
type MoveRequest struct {
	Board   *game.Board `json:"board,omitempty"`
	Diagram string      `json:"diagram,omitempty"`
	Player  game.Player `json:"player"`
	Depth   int         `json:"depth,omitempty"`
}

type StatsResponse struct {
	Visited   int   `json:"visited"`
	Generated int   `json:"generated"`
	Cutoffs   int   `json:"cutoffs"`
	ElapsedMs int64 `json:"elapsed_ms"`
}

func statsResponse(st alphabeta.Stats) StatsResponse {
	return StatsResponse{
		Visited:   st.Visited,
		Generated: st.Generated,
		Cutoffs:   st.Cutoffs,
		ElapsedMs: st.Elapsed.Milliseconds(),
	}
}

type MoveResponse struct {
	Source      game.Cell        `json:"source"`
	Destination game.Destination `json:"destination"`
	Score       int              `json:"score"`
	Stats       StatsResponse    `json:"stats"`
	// Board is the position after the move.
	Board   *game.Board `json:"board"`
	Diagram string      `json:"diagram"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}

	board, err := req.position()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid board: %v", err)
		return
	}
	if req.Player == game.NoPlayer {
		writeError(w, http.StatusBadRequest, "player is required")
		return
	}
	depth := s.search.Depth
	if req.Depth != 0 {
		depth = req.Depth
	}
	if depth < 1 || depth > s.maxDepth {
		writeError(w, http.StatusBadRequest, "depth %d outside 1..%d", depth, s.maxDepth)
		return
	}

	p, err := s.newPlayer(req.Player, depth)
	if err != nil {
		s.log.Error("create player", zap.Error(err))
		writeInternalError(w)
		return
	}
	if err := p.ExecuteMove(board); err != nil {
		if errors.Is(err, alphabeta.ErrNoMove) {
			writeError(w, http.StatusUnprocessableEntity, "no legal move for %s", req.Player)
			return
		}
		s.log.Error("search failed", zap.Error(err))
		writeInternalError(w)
		return
	}

	src, _ := p.MoveSource()
	dst, _ := p.MoveDestination()
	next, err := rules.SimulateMove(board, src, dst)
	if err != nil {
		s.log.Error("apply move", zap.Error(err))
		writeInternalError(w)
		return
	}

	st := p.LastStats()
	s.log.Info("move",
		zap.Stringer("player", req.Player),
		zap.Stringer("from", src),
		zap.Stringer("to", dst.Cell()),
		zap.Int("depth", depth),
		zap.Object("stats", st),
	)
	writeResponse(w, http.StatusOK, MoveResponse{
		Source:      src,
		Destination: dst,
		Score:       p.LastScore(),
		Stats:       statsResponse(st),
		Board:       next,
		Diagram:     next.String(),
	})
}

func (req MoveRequest) position() (*game.Board, error) {
	switch {
	case req.Board != nil && req.Diagram != "":
		return nil, errors.New("send either board or diagram, not both")
	case req.Board != nil:
		if err := req.Board.Validate(); err != nil {
			return nil, err
		}
		return req.Board, nil
	case req.Diagram != "":
		return game.ParseBoard(req.Diagram)
	}
	return nil, errors.New("board or diagram is required")
}

func (s *Server) newPlayer(ai game.Player, depth int) (*alphabeta.AiPlayer[*game.Board], error) {
	cfg := s.search
	cfg.Depth = depth
	return alphabeta.NewAiPlayer[*game.Board](s.rules, ai, ai.Opponent(), cfg,
		alphabeta.WithLogger(s.log))
}
