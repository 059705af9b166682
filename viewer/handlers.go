package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server holds shared state for HTTP handlers.
type Server struct {
	roots   []string
	dbCache *DBCache
	log     *zap.Logger
}

// NewServer creates a new Server over the given data roots.
func NewServer(roots []string, refresh time.Duration, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		roots:   roots,
		dbCache: NewDBCache(roots, refresh, log),
		log:     log,
	}
}

// Routes sets up all API routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withCORS)

	r.Get("/api/games", s.handleGames)
	r.Get("/api/games/{id}/turns", s.handleGameTurns)
	r.Get("/api/games/{id}/trees/{turn}", s.handleTree)
	r.Get("/api/stats", s.handleStats)
	return r
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	// Force DB refresh to ensure we see the latest games from disk.
	if err := s.dbCache.Refresh(); err != nil {
		s.fail(w, "refresh db", err)
		return
	}
	gamesIndex, err := s.dbCache.GetGamesIndex(r.Context())
	if err != nil {
		s.fail(w, "games index", err)
		return
	}

	limit := parseIntQuery(r, "limit", 200)
	offset := parseIntQuery(r, "offset", 0)
	sortKey := strings.TrimSpace(r.URL.Query().Get("sort"))
	sortDir := strings.TrimSpace(r.URL.Query().Get("dir"))

	games := paginateGames(gamesIndex, limit, offset, sortKey, sortDir)
	writeJSON(w, GamesResponse{Total: int64(len(gamesIndex)), Games: games})
}

func (s *Server) handleGameTurns(w http.ResponseWriter, r *http.Request) {
	db, err := s.dbCache.Get()
	if err != nil {
		s.fail(w, "open db", err)
		return
	}
	turns, err := queryTurns(r.Context(), db, chi.URLParam(r, "id"))
	if errors.Is(err, errNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.fail(w, "query turns", err)
		return
	}
	writeJSON(w, turns)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	turn, err := strconv.Atoi(chi.URLParam(r, "turn"))
	if err != nil || turn < 0 {
		http.Error(w, "bad turn", http.StatusBadRequest)
		return
	}
	db, err := s.dbCache.Get()
	if err != nil {
		s.fail(w, "open db", err)
		return
	}
	nodes, err := queryTree(r.Context(), db, chi.URLParam(r, "id"), turn)
	if errors.Is(err, errNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.fail(w, "query tree", err)
		return
	}
	writeJSON(w, nodes)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	db, err := s.dbCache.Get()
	if err != nil {
		s.fail(w, "open db", err)
		return
	}
	stats, err := queryStats(r.Context(), db)
	if err != nil {
		s.fail(w, "query stats", err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) fail(w http.ResponseWriter, what string, err error) {
	s.log.Error(what, zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
