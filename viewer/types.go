package main

// GameSummary represents a summarized game entry for the games list.
type GameSummary struct {
	GameID      string `json:"game_id"`
	TurnCount   int32  `json:"turn_count"`
	RandomPlies int32  `json:"random_plies"`
	// Winner is "none" for draws.
	Winner     string `json:"winner"`
	MaxDepth   int32  `json:"max_depth"`
	Visited    int64  `json:"visited"`
	SourceFile string `json:"file"`
}

// GamesResponse is the paginated response for the /api/games endpoint.
type GamesResponse struct {
	Total int64         `json:"total"`
	Games []GameSummary `json:"games"`
}

// Point is a square on the board.
type Point struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// Turn is one recorded ply.
type Turn struct {
	Turn     int32   `json:"turn"`
	Player   string  `json:"player"`
	From     Point   `json:"from"`
	To       Point   `json:"to"`
	King     bool    `json:"king"`
	Captured []Point `json:"captured,omitempty"`
	Steps    []Point `json:"steps,omitempty"`

	Score     int64 `json:"score"`
	Depth     int32 `json:"depth"`
	Visited   int32 `json:"visited"`
	Generated int32 `json:"generated"`
	Cutoffs   int32 `json:"cutoffs"`

	// Board is the diagram of the position before the move.
	Board  string `json:"board"`
	Winner string `json:"winner"`
	Source string `json:"source"`
}

// TreeNode is one node of a recorded search tree.
type TreeNode struct {
	Node     int32   `json:"node"`
	Parent   int32   `json:"parent"`
	Depth    int32   `json:"depth"`
	AiTurn   bool    `json:"ai_turn"`
	Score    int64   `json:"score"`
	Scored   bool    `json:"scored"`
	From     Point   `json:"from"`
	To       Point   `json:"to"`
	Captured []Point `json:"captured,omitempty"`
}

// DepthStats aggregates the searches made at one depth.
type DepthStats struct {
	Depth        int32   `json:"depth"`
	Moves        int64   `json:"moves"`
	AvgVisited   float64 `json:"avg_visited"`
	AvgGenerated float64 `json:"avg_generated"`
	AvgCutoffs   float64 `json:"avg_cutoffs"`
}

// StatsResponse is the response for the /api/stats endpoint.
type StatsResponse struct {
	Games  int64            `json:"games"`
	Wins   map[string]int64 `json:"wins"`
	Depths []DepthStats     `json:"depths"`
}
