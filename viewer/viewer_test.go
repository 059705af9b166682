package main

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brensch/checkers/store"
)

func TestNormalizeSort(t *testing.T) {
	tests := []struct {
		key, dir       string
		wantKey, wantD string
	}{
		{"turns", "asc", "turn_count", "asc"},
		{"nodes", "", "visited", "desc"},
		{"id", "ASC", "game_id", "asc"},
		{"bogus", "asc", "file", "desc"},
	}
	for _, tt := range tests {
		k, d := normalizeSort(tt.key, tt.dir)
		if k != tt.wantKey || d != tt.wantD {
			t.Errorf("normalizeSort(%q,%q) = %q,%q want %q,%q", tt.key, tt.dir, k, d, tt.wantKey, tt.wantD)
		}
	}
}

func TestPaginateGames(t *testing.T) {
	games := []GameSummary{
		{GameID: "a", TurnCount: 30},
		{GameID: "b", TurnCount: 10},
		{GameID: "c", TurnCount: 20},
	}

	got := paginateGames(games, 2, 0, "turns", "asc")
	if len(got) != 2 || got[0].GameID != "b" || got[1].GameID != "c" {
		t.Fatalf("asc page: %+v", got)
	}
	got = paginateGames(games, 2, 1, "turns", "desc")
	if len(got) != 2 || got[0].GameID != "c" || got[1].GameID != "b" {
		t.Fatalf("desc page: %+v", got)
	}
	if got := paginateGames(games, 5, 3, "", ""); len(got) != 0 {
		t.Fatalf("offset past end: %+v", got)
	}
	got = paginateGames(games, math.MaxInt, 1, "turns", "asc")
	if len(got) != 2 || got[0].GameID != "c" || got[1].GameID != "a" {
		t.Fatalf("unbounded limit: %+v", got)
	}
	if games[0].GameID != "a" {
		t.Fatal("input reordered")
	}
}

func TestMakeRelativeToRoots(t *testing.T) {
	got := makeRelativeToRoots("/data/generated/batch_1.parquet", []string{"/other", "/data/generated"})
	if got != "generated/batch_1.parquet" {
		t.Fatalf("got %q", got)
	}
	if got := makeRelativeToRoots("/elsewhere/x.parquet", []string{"/data"}); got != "/elsewhere/x.parquet" {
		t.Fatalf("got %q", got)
	}
}

func TestFindParquet(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"a.parquet", "tmp/b.parquet", "turns/c.parquet", "trees/d.parquet", "notes.txt"} {
		path := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := findParquet([]string{root, filepath.Join(root, "missing")})
	if err != nil {
		t.Fatal(err)
	}
	if len(files.turns) != 2 || len(files.trees) != 1 {
		t.Fatalf("files: %+v", files)
	}
}

func sampleGame(id, winner string, n int) []store.TurnRow {
	rows := make([]store.TurnRow, n)
	for i := range rows {
		player := "first"
		if i%2 == 1 {
			player = "second"
		}
		source := "selfplay"
		if i == 0 {
			source = "random"
		}
		rows[i] = store.TurnRow{
			GameID:  id,
			Turn:    int32(i),
			Player:  player,
			SourceX: 1,
			SourceY: 2,
			DestX:   2,
			DestY:   3,
			Depth:   4,
			Visited: 100,
			Board:   "diagram",
			Winner:  winner,
			Source:  source,
		}
	}
	rows[n-1].CapturedX, rows[n-1].CapturedY = []int32{3, 5}, []int32{4, 6}
	return rows
}

func TestServer_QueriesParquet(t *testing.T) {
	root := t.TempDir()
	if _, err := store.WriteBatchParquetAtomic(root, append(sampleGame("g1", "first", 5), sampleGame("g2", "none", 3)...)); err != nil {
		t.Fatal(err)
	}
	tree := []store.TreeNodeRow{
		{GameID: "g1", Turn: 1, Node: 0, Parent: -1, AiTurn: true, Scored: true, Score: 7},
		{GameID: "g1", Turn: 1, Node: 1, Parent: 0, Depth: 1, Scored: true, Score: 7, SourceX: 1, SourceY: 2, DestX: 2, DestY: 3},
	}
	if _, err := store.WriteTreeParquet(filepath.Join(root, "trees"), "g1", tree); err != nil {
		t.Fatal(err)
	}

	s := NewServer([]string{root}, time.Minute, nil)
	defer s.dbCache.Close()
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	get := func(path string, v any) int {
		t.Helper()
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK && v != nil {
			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				t.Fatalf("decode %s: %v", path, err)
			}
		}
		return resp.StatusCode
	}

	var games GamesResponse
	if code := get("/api/games?sort=turns&dir=desc", &games); code != http.StatusOK {
		t.Fatalf("games status %d", code)
	}
	if games.Total != 2 || games.Games[0].GameID != "g1" || games.Games[0].TurnCount != 5 ||
		games.Games[0].RandomPlies != 1 || games.Games[0].Winner != "first" || games.Games[0].Visited != 500 {
		t.Fatalf("games: %+v", games)
	}

	var turns []Turn
	if code := get("/api/games/g1/turns", &turns); code != http.StatusOK {
		t.Fatalf("turns status %d", code)
	}
	if len(turns) != 5 || turns[4].Turn != 4 || len(turns[4].Captured) != 2 || turns[4].Captured[1] != (Point{X: 5, Y: 6}) {
		t.Fatalf("turns: %+v", turns)
	}
	if code := get("/api/games/nope/turns", nil); code != http.StatusNotFound {
		t.Fatalf("missing game status %d", code)
	}

	var nodes []TreeNode
	if code := get("/api/games/g1/trees/1", &nodes); code != http.StatusOK {
		t.Fatalf("tree status %d", code)
	}
	if len(nodes) != 2 || nodes[0].Parent != -1 || nodes[1].To != (Point{X: 2, Y: 3}) {
		t.Fatalf("tree: %+v", nodes)
	}
	if code := get("/api/games/g1/trees/x", nil); code != http.StatusBadRequest {
		t.Fatalf("bad turn status %d", code)
	}

	var stats StatsResponse
	if code := get("/api/stats", &stats); code != http.StatusOK {
		t.Fatalf("stats status %d", code)
	}
	if stats.Games != 2 || stats.Wins["first"] != 1 || stats.Wins["none"] != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if len(stats.Depths) != 1 || stats.Depths[0].Moves != 6 || stats.Depths[0].AvgVisited != 100 {
		t.Fatalf("depth stats: %+v", stats.Depths)
	}
}
