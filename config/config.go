// Package config loads the settings shared by the binaries.
//
// Values are resolved in increasing priority: built-in defaults, an optional
// config file, CHECKERS_* environment variables, then command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/brensch/checkers/executor/alphabeta"
	"github.com/brensch/checkers/game"
	"github.com/brensch/checkers/rules"
)

const envPrefix = "CHECKERS"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Search   alphabeta.Config `mapstructure:"search"`
	Rules    rules.Settings   `mapstructure:"rules"`
	Eval     rules.Weights    `mapstructure:"eval"`
	Board    Board            `mapstructure:"board"`
	Server   Server           `mapstructure:"server"`
	SelfPlay SelfPlay         `mapstructure:"selfplay"`
	Log      Log              `mapstructure:"log"`
}

type Board struct {
	Size       int `mapstructure:"size"`
	PlayerRows int `mapstructure:"player_rows"`
}

// New returns the starting position of the configured shape.
func (b Board) New() *game.Board {
	return game.NewBoard(b.Size, b.PlayerRows)
}

type Server struct {
	Addr            string        `mapstructure:"addr"`
	MaxDepth        int           `mapstructure:"max_depth"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AIPlayer is the side the engine plays in websocket sessions.
	AIPlayer        string        `mapstructure:"ai_player"`
}

type SelfPlay struct {
	Workers       int    `mapstructure:"workers"`
	OutDir        string `mapstructure:"out_dir"`
	GamesPerFlush int    `mapstructure:"games_per_flush"`
	MaxGames      int64  `mapstructure:"max_games"`
	MaxTurns      int    `mapstructure:"max_turns"`
	// OpponentDepth is the search depth of PlayerSecond; 0 uses search.depth.
	OpponentDepth int    `mapstructure:"opponent_depth"`
	// RandomPlies opens every game with uniformly random moves.
	RandomPlies   int    `mapstructure:"random_plies"`
	TUI           bool   `mapstructure:"tui"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Default is the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Search: alphabeta.DefaultConfig,
		Rules:  rules.DefaultSettings,
		Eval:   rules.DefaultWeights,
		Board:  Board{Size: 8, PlayerRows: 3},
		Server: Server{
			Addr:            ":8080",
			MaxDepth:        8,
			ShutdownTimeout: 5 * time.Second,
			AIPlayer:        game.PlayerSecond.String(),
		},
		SelfPlay: SelfPlay{
			Workers:       4,
			OutDir:        "data/generated",
			GamesPerFlush: 50,
			MaxTurns:      200,
			RandomPlies:   4,
		},
		Log: Log{Level: "info"},
	}
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"depth":           "search.depth",
	"no-prune":        "search.disable_pruning",
	"expansion":       "search.expansion",
	"mandatory":       "rules.capture_mandatory",
	"flying-kings":    "rules.flying_kings",
	"board-size":      "board.size",
	"addr":            "server.addr",
	"max-depth":       "server.max_depth",
	"ai-player":       "server.ai_player",
	"workers":         "selfplay.workers",
	"out-dir":         "selfplay.out_dir",
	"games-per-flush": "selfplay.games_per_flush",
	"max-games":       "selfplay.max_games",
	"max-turns":       "selfplay.max_turns",
	"opponent-depth":  "selfplay.opponent_depth",
	"random-plies":    "selfplay.random_plies",
	"tui":             "selfplay.tui",
	"log-level":       "log.level",
	"dev":             "log.development",
}

// RegisterFlags adds the flags Load knows how to bind. Binaries may register
// a subset by hand instead.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to a config file (yaml, json, toml)")
	fs.Int("depth", d.Search.Depth, "Search depth in plies")
	fs.Bool("no-prune", d.Search.DisablePruning, "Disable alpha-beta pruning (full minimax)")
	fs.String("expansion", string(d.Search.Expansion), "Child generation: eager or lazy")
	fs.Bool("mandatory", d.Rules.CaptureMandatory, "Captures are mandatory when available")
	fs.Bool("flying-kings", d.Rules.FlyingKings, "Kings move any distance along a diagonal")
	fs.Int("board-size", d.Board.Size, "Board size")
	fs.String("log-level", d.Log.Level, "Log level: debug, info, warn, error")
	fs.Bool("dev", d.Log.Development, "Human-readable development logging")
}

// Load resolves the configuration. path may be empty, flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("search.depth", d.Search.Depth)
	v.SetDefault("search.disable_pruning", d.Search.DisablePruning)
	v.SetDefault("search.expansion", string(d.Search.Expansion))

	v.SetDefault("rules.capture_mandatory", d.Rules.CaptureMandatory)
	v.SetDefault("rules.men_capture_backward", d.Rules.MenCaptureBackward)
	v.SetDefault("rules.flying_kings", d.Rules.FlyingKings)

	v.SetDefault("eval.man", d.Eval.Man)
	v.SetDefault("eval.king", d.Eval.King)
	v.SetDefault("eval.advance", d.Eval.Advance)

	v.SetDefault("board.size", d.Board.Size)
	v.SetDefault("board.player_rows", d.Board.PlayerRows)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.max_depth", d.Server.MaxDepth)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.ai_player", d.Server.AIPlayer)

	v.SetDefault("selfplay.workers", d.SelfPlay.Workers)
	v.SetDefault("selfplay.out_dir", d.SelfPlay.OutDir)
	v.SetDefault("selfplay.games_per_flush", d.SelfPlay.GamesPerFlush)
	v.SetDefault("selfplay.max_games", d.SelfPlay.MaxGames)
	v.SetDefault("selfplay.max_turns", d.SelfPlay.MaxTurns)
	v.SetDefault("selfplay.opponent_depth", d.SelfPlay.OpponentDepth)
	v.SetDefault("selfplay.random_plies", d.SelfPlay.RandomPlies)
	v.SetDefault("selfplay.tui", d.SelfPlay.TUI)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// Validate reports the first setting that can't be used.
func (c Config) Validate() error {
	switch {
	case c.Search.Depth < 0:
		return fmt.Errorf("%w: search.depth %d is negative", ErrInvalid, c.Search.Depth)
	case c.Search.Expansion != alphabeta.ExpandEager && c.Search.Expansion != alphabeta.ExpandLazy:
		return fmt.Errorf("%w: search.expansion %q", ErrInvalid, c.Search.Expansion)
	case c.Board.Size < 4 || c.Board.Size%2 != 0:
		return fmt.Errorf("%w: board.size %d must be even and at least 4", ErrInvalid, c.Board.Size)
	case c.Board.PlayerRows < 1 || 2*c.Board.PlayerRows >= c.Board.Size:
		return fmt.Errorf("%w: board.player_rows %d does not fit a %d board", ErrInvalid, c.Board.PlayerRows, c.Board.Size)
	case c.Server.MaxDepth < 0:
		return fmt.Errorf("%w: server.max_depth %d is negative", ErrInvalid, c.Server.MaxDepth)
	case c.SelfPlay.Workers < 1:
		return fmt.Errorf("%w: selfplay.workers must be positive", ErrInvalid)
	case c.SelfPlay.MaxTurns < 1:
		return fmt.Errorf("%w: selfplay.max_turns must be positive", ErrInvalid)
	case c.SelfPlay.RandomPlies < 0:
		return fmt.Errorf("%w: selfplay.random_plies %d is negative", ErrInvalid, c.SelfPlay.RandomPlies)
	case c.SelfPlay.OpponentDepth < 0:
		return fmt.Errorf("%w: selfplay.opponent_depth %d is negative", ErrInvalid, c.SelfPlay.OpponentDepth)
	}
	if p, err := game.ParsePlayer(c.Server.AIPlayer); err != nil || p == game.NoPlayer {
		return fmt.Errorf("%w: server.ai_player %q", ErrInvalid, c.Server.AIPlayer)
	}
	return nil
}

// Player is the parsed server.ai_player. Only valid after Validate.
func (s Server) Player() game.Player {
	p, _ := game.ParsePlayer(s.AIPlayer)
	return p
}

// RuleSet returns the board service described by the config.
func (c Config) RuleSet() rules.Checkers {
	return rules.Checkers{Settings: c.Rules, Weights: c.Eval}
}
