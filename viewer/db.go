package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"
)

var errNotFound = errors.New("not found")

// DBCache maintains a cached DuckDB connection that refreshes periodically.
type DBCache struct {
	roots       []string
	refreshRate time.Duration
	log         *zap.Logger

	mu          sync.RWMutex
	db          *sql.DB
	lastRefresh time.Time

	// Cached games index for fast pagination
	gamesIndex []GameSummary
}

// NewDBCache creates a new DBCache with the given roots and refresh rate.
func NewDBCache(roots []string, refreshRate time.Duration, log *zap.Logger) *DBCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &DBCache{
		roots:       roots,
		refreshRate: refreshRate,
		log:         log,
	}
}

// Get returns the cached DB connection, refreshing if needed.
func (c *DBCache) Get() (*sql.DB, error) {
	c.mu.RLock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		db := c.db
		c.mu.RUnlock()
		return db, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		return c.db, nil
	}
	return c.refreshLocked()
}

// Refresh forces a refresh of the cached DB connection.
func (c *DBCache) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.refreshLocked()
	return err
}

func (c *DBCache) refreshLocked() (*sql.DB, error) {
	start := time.Now()

	newDB, files, err := openDuckDB(c.roots)
	if err != nil {
		return nil, err
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	c.db = newDB
	c.lastRefresh = time.Now()
	c.gamesIndex = nil

	c.log.Debug("duckdb refreshed",
		zap.Int("turn_files", len(files.turns)),
		zap.Int("tree_files", len(files.trees)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return c.db, nil
}

// GetGamesIndex returns the cached games index, rebuilding it after a refresh.
func (c *DBCache) GetGamesIndex(ctx context.Context) ([]GameSummary, error) {
	c.mu.RLock()
	if c.gamesIndex != nil && c.db != nil {
		idx := c.gamesIndex
		c.mu.RUnlock()
		return idx, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gamesIndex != nil && c.db != nil {
		return c.gamesIndex, nil
	}
	if c.db == nil {
		if _, err := c.refreshLocked(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	games, err := queryAllGames(ctx, c.db, c.roots)
	if err != nil {
		return nil, err
	}
	c.gamesIndex = games
	c.log.Debug("games index rebuilt", zap.Int("games", len(games)), zap.Duration("elapsed", time.Since(start)))
	return c.gamesIndex, nil
}

// Close closes the cached DB connection.
func (c *DBCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

type parquetFiles struct {
	turns []string
	trees []string
}

// findParquet lists the finished parquet files under roots. Files under a
// tmp directory are still being written; files under a trees directory hold
// search trees rather than turns.
func findParquet(roots []string) (parquetFiles, error) {
	var out parquetFiles
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				if d.Name() == "tmp" {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".parquet" {
				return nil
			}
			if filepath.Base(filepath.Dir(path)) == "trees" {
				out.trees = append(out.trees, path)
			} else {
				out.turns = append(out.turns, path)
			}
			return nil
		})
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return parquetFiles{}, err
		}
	}
	sort.Strings(out.turns)
	sort.Strings(out.trees)
	return out, nil
}

const emptyTurnsView = `CREATE OR REPLACE VIEW turns AS
	SELECT * FROM (
		SELECT
			NULL::VARCHAR AS game_id,
			NULL::INTEGER AS turn,
			NULL::VARCHAR AS player,
			NULL::INTEGER AS source_x,
			NULL::INTEGER AS source_y,
			NULL::INTEGER AS dest_x,
			NULL::INTEGER AS dest_y,
			NULL::BOOLEAN AS king,
			NULL::INTEGER[] AS captured_x,
			NULL::INTEGER[] AS captured_y,
			NULL::INTEGER[] AS steps_x,
			NULL::INTEGER[] AS steps_y,
			NULL::BIGINT AS score,
			NULL::INTEGER AS depth,
			NULL::INTEGER AS visited,
			NULL::INTEGER AS generated,
			NULL::INTEGER AS cutoffs,
			NULL::VARCHAR AS board,
			NULL::VARCHAR AS winner,
			NULL::VARCHAR AS source,
			NULL::VARCHAR AS filename
	) WHERE 1=0`

const emptyTreesView = `CREATE OR REPLACE VIEW trees AS
	SELECT * FROM (
		SELECT
			NULL::VARCHAR AS game_id,
			NULL::INTEGER AS turn,
			NULL::INTEGER AS node,
			NULL::INTEGER AS parent,
			NULL::INTEGER AS depth,
			NULL::BOOLEAN AS ai_turn,
			NULL::BIGINT AS score,
			NULL::BOOLEAN AS scored,
			NULL::INTEGER AS source_x,
			NULL::INTEGER AS source_y,
			NULL::INTEGER AS dest_x,
			NULL::INTEGER AS dest_y,
			NULL::INTEGER[] AS captured_x,
			NULL::INTEGER[] AS captured_y
	) WHERE 1=0`

// openDuckDB creates an in-memory DuckDB with a turns view and a trees view
// over the parquet files found under roots.
func openDuckDB(roots []string) (*sql.DB, parquetFiles, error) {
	files, err := findParquet(roots)
	if err != nil {
		return nil, parquetFiles{}, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, parquetFiles{}, err
	}
	// Basic pragmas; ignore errors for compatibility across versions.
	_, _ = db.Exec("PRAGMA threads=4")

	views := []struct {
		files []string
		empty string
		name  string
	}{
		{files.turns, emptyTurnsView, "turns"},
		{files.trees, emptyTreesView, "trees"},
	}
	for _, v := range views {
		sqlText := v.empty
		if len(v.files) > 0 {
			sqlText = `CREATE OR REPLACE VIEW ` + v.name + ` AS
				SELECT * FROM read_parquet([` + quoteList(v.files) + `], filename=true, union_by_name=true)`
		}
		if _, err := db.Exec(sqlText); err != nil {
			_ = db.Close()
			return nil, parquetFiles{}, err
		}
	}
	return db, files, nil
}

func quoteList(paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = "'" + escapeSQLString(filepath.ToSlash(p)) + "'"
	}
	return strings.Join(quoted, ",")
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func normalizeSort(sortKey string, sortDir string) (string, string) {
	sk := strings.ToLower(strings.TrimSpace(sortKey))
	sd := strings.ToLower(strings.TrimSpace(sortDir))
	if sd != "asc" && sd != "desc" {
		sd = "desc"
	}
	switch sk {
	case "id", "game", "game_id":
		sk = "game_id"
	case "turns", "turn_count":
		sk = "turn_count"
	case "winner":
		sk = "winner"
	case "visited", "nodes":
		sk = "visited"
	case "file", "filename":
		sk = "file"
	default:
		sk = "file"
		sd = "desc"
	}
	return sk, sd
}

func makeRelativeToRoots(filename string, roots []string) string {
	fn := strings.TrimSpace(filename)
	if fn == "" {
		return ""
	}
	best := fn
	bestLen := len(best)
	for _, r := range roots {
		root := strings.TrimSpace(r)
		if root == "" {
			continue
		}
		rel, err := filepath.Rel(root, fn)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		cand := filepath.ToSlash(filepath.Join(filepath.Base(root), rel))
		if len(cand) < bestLen {
			best = cand
			bestLen = len(cand)
		}
	}
	return best
}

// queryAllGames loads all game summaries from DuckDB (used to build the cache).
func queryAllGames(ctx context.Context, db *sql.DB, roots []string) ([]GameSummary, error) {
	rows, err := db.QueryContext(ctx, `SELECT
			game_id,
			COUNT(*)::INTEGER AS turn_count,
			(COUNT(*) FILTER (WHERE source = 'random'))::INTEGER AS random_plies,
			MIN(winner)::VARCHAR AS winner,
			COALESCE(MAX(depth), 0)::INTEGER AS max_depth,
			COALESCE(SUM(visited), 0)::BIGINT AS visited,
			MIN(filename)::VARCHAR AS file
		FROM turns
		GROUP BY game_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]GameSummary, 0, 1024)
	for rows.Next() {
		var g GameSummary
		var file string
		if err := rows.Scan(&g.GameID, &g.TurnCount, &g.RandomPlies, &g.Winner, &g.MaxDepth, &g.Visited, &file); err != nil {
			return nil, err
		}
		g.SourceFile = makeRelativeToRoots(file, roots)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Batch files are named by creation time, so the default order is newest first.
	return paginateGames(out, len(out), 0, "", ""), nil
}

// paginateGames sorts and paginates a games index in memory.
func paginateGames(games []GameSummary, limit, offset int, sortKey, sortDir string) []GameSummary {
	sk, sd := normalizeSort(sortKey, sortDir)

	sorted := make([]GameSummary, len(games))
	copy(sorted, games)

	key := func(g GameSummary) string {
		switch sk {
		case "winner":
			return g.Winner
		case "file":
			return g.SourceFile
		}
		return g.GameID
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if sd == "desc" {
			a, b = b, a
		}
		switch sk {
		case "turn_count":
			if a.TurnCount != b.TurnCount {
				return a.TurnCount < b.TurnCount
			}
		case "visited":
			if a.Visited != b.Visited {
				return a.Visited < b.Visited
			}
		default:
			if ka, kb := key(a), key(b); ka != kb {
				return ka < kb
			}
		}
		return a.GameID < b.GameID
	})

	offset, limit = max(offset, 0), max(limit, 0)
	if offset >= len(sorted) {
		return []GameSummary{}
	}
	end := offset + min(limit, len(sorted)-offset)
	return sorted[offset:end]
}

func queryTurns(ctx context.Context, db *sql.DB, gameID string) ([]Turn, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT turn::INTEGER, player, source_x::INTEGER, source_y::INTEGER, dest_x::INTEGER, dest_y::INTEGER, king,
		        captured_x, captured_y, steps_x, steps_y,
		        score::BIGINT, depth::INTEGER, visited::INTEGER, generated::INTEGER, cutoffs::INTEGER,
		        board, winner, source
		 FROM turns
		 WHERE game_id = ?
		 ORDER BY turn ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := make([]Turn, 0, 128)
	for rows.Next() {
		var t Turn
		var capX, capY, stepX, stepY any
		if err := rows.Scan(&t.Turn, &t.Player, &t.From.X, &t.From.Y, &t.To.X, &t.To.Y, &t.King,
			&capX, &capY, &stepX, &stepY,
			&t.Score, &t.Depth, &t.Visited, &t.Generated, &t.Cutoffs,
			&t.Board, &t.Winner, &t.Source); err != nil {
			return nil, err
		}
		t.Captured = zipPoints(asInt32Slice(capX), asInt32Slice(capY))
		t.Steps = zipPoints(asInt32Slice(stepX), asInt32Slice(stepY))
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, errNotFound
	}
	return turns, nil
}

func queryTree(ctx context.Context, db *sql.DB, gameID string, turn int) ([]TreeNode, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT node::INTEGER, parent::INTEGER, depth::INTEGER, ai_turn, score::BIGINT, scored,
		        source_x::INTEGER, source_y::INTEGER, dest_x::INTEGER, dest_y::INTEGER, captured_x, captured_y
		 FROM trees
		 WHERE game_id = ? AND turn = ?
		 ORDER BY node ASC`, gameID, turn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := make([]TreeNode, 0, 256)
	for rows.Next() {
		var n TreeNode
		var capX, capY any
		if err := rows.Scan(&n.Node, &n.Parent, &n.Depth, &n.AiTurn, &n.Score, &n.Scored,
			&n.From.X, &n.From.Y, &n.To.X, &n.To.Y, &capX, &capY); err != nil {
			return nil, err
		}
		n.Captured = zipPoints(asInt32Slice(capX), asInt32Slice(capY))
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, errNotFound
	}
	return nodes, nil
}

func queryStats(ctx context.Context, db *sql.DB) (StatsResponse, error) {
	out := StatsResponse{Wins: make(map[string]int64), Depths: []DepthStats{}}

	rows, err := db.QueryContext(ctx, `SELECT winner, COUNT(DISTINCT game_id)::BIGINT
		FROM turns GROUP BY winner ORDER BY winner`)
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var winner string
		var n int64
		if err := rows.Scan(&winner, &n); err != nil {
			rows.Close()
			return out, err
		}
		out.Wins[winner] = n
		out.Games += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return out, err
	}

	rows, err = db.QueryContext(ctx, `SELECT depth::INTEGER, COUNT(*)::BIGINT,
			AVG(visited)::DOUBLE, AVG(generated)::DOUBLE, AVG(cutoffs)::DOUBLE
		FROM turns
		WHERE source = 'selfplay'
		GROUP BY depth
		ORDER BY depth`)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var d DepthStats
		if err := rows.Scan(&d.Depth, &d.Moves, &d.AvgVisited, &d.AvgGenerated, &d.AvgCutoffs); err != nil {
			return out, err
		}
		out.Depths = append(out.Depths, d)
	}
	return out, rows.Err()
}
