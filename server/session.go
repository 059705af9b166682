package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/brensch/checkers/executor/alphabeta"
	"github.com/brensch/checkers/game"
	"github.com/brensch/checkers/rules"
)

// Websocket message types.
const (
	MsgNew      = "new"
	MsgMove     = "move"
	MsgState    = "state"
	MsgGameOver = "game_over"
	MsgError    = "error"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// NewGameRequest starts a fresh game; Human defaults to the side the engine
// does not play.
type NewGameRequest struct {
	Human game.Player `json:"human,omitempty"`
}

// MoveMessage is a human move, addressed by its start and end squares.
type MoveMessage struct {
	From game.Cell `json:"from"`
	To   game.Cell `json:"to"`
}

type PlayedMove struct {
	Player      game.Player      `json:"player"`
	Source      game.Cell        `json:"source"`
	Destination game.Destination `json:"destination"`
	Score       *int             `json:"score,omitempty"`
}

type StateMessage struct {
	GameID    string       `json:"game_id"`
	Board     *game.Board  `json:"board"`
	Diagram   string       `json:"diagram"`
	ToMove    game.Player  `json:"to_move"`
	Human     game.Player  `json:"human"`
	LastMoves []PlayedMove `json:"last_moves,omitempty"`
}

type GameOverMessage struct {
	GameID string      `json:"game_id"`
	Winner game.Player `json:"winner"`
	Board  *game.Board `json:"board"`
}

// jsonWriter is the half of a websocket connection a session writes to.
type jsonWriter interface {
	WriteJSON(v any) error
}

type session struct {
	srv *Server
	out jsonWriter
	log *zap.Logger

	gameID string
	board  *game.Board
	toMove game.Player
	human  game.Player
	ai     *alphabeta.AiPlayer[*game.Board]
	over   bool
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(64 << 10)

	s.sessions.Add(1)
	defer s.sessions.Add(-1)

	sess := &session{srv: s, out: conn, log: s.log}
	if err := sess.start(s.aiPlayer.Opponent()); err != nil {
		sess.log.Error("start game", zap.Error(err))
		return
	}

	for {
		var in Envelope
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sess.log.Warn("websocket read", zap.Error(err))
			}
			return
		}
		if err := sess.handle(in); err != nil {
			sess.log.Info("websocket write", zap.Error(err))
			return
		}
	}
}

// handle processes one client message. Only write failures are returned;
// client mistakes are reported back over the socket.
func (ss *session) handle(in Envelope) error {
	switch in.Type {
	case MsgNew:
		var req NewGameRequest
		if len(in.Data) > 0 {
			if err := json.Unmarshal(in.Data, &req); err != nil {
				return ss.sendError("invalid new game request: %v", err)
			}
		}
		human := req.Human
		if human == game.NoPlayer {
			human = ss.srv.aiPlayer.Opponent()
		}
		return ss.start(human)

	case MsgMove:
		var m MoveMessage
		if err := json.Unmarshal(in.Data, &m); err != nil {
			return ss.sendError("invalid move: %v", err)
		}
		return ss.playHuman(m)
	}
	return ss.sendError("unknown message type %q", in.Type)
}

func (ss *session) start(human game.Player) error {
	ai, err := ss.srv.newPlayer(human.Opponent(), ss.srv.search.Depth)
	if err != nil {
		ss.log.Warn("start game", zap.Error(err))
		return ss.sendError("can't start game: %v", err)
	}
	ss.gameID = uuid.NewString()
	ss.log = ss.srv.log.With(zap.String("game_id", ss.gameID))
	ss.board = ss.srv.board.New()
	ss.toMove = game.PlayerFirst
	ss.human = human
	ss.ai = ai
	ss.over = false
	ss.log.Info("game started", zap.Stringer("human", human))

	if ss.toMove == ss.human {
		return ss.sendState(nil)
	}
	return ss.playAI(nil)
}

func (ss *session) playHuman(m MoveMessage) error {
	switch {
	case ss.board == nil:
		return ss.sendError("no game in progress; send %q to start one", MsgNew)
	case ss.over:
		return ss.sendError("game is over; send %q to play again", MsgNew)
	case ss.toMove != ss.human:
		return ss.sendError("not your turn")
	}

	settings := ss.srv.rules.Settings
	piece, dst, ok := rules.FindMove(ss.board, ss.human, settings, m.From, m.To)
	if !ok {
		return ss.sendError("illegal move %s -> %s", m.From, m.To)
	}
	next, err := rules.SimulateMove(ss.board, piece, dst)
	if err != nil {
		return ss.sendError("illegal move: %v", err)
	}
	ss.board = next
	ss.toMove = ss.human.Opponent()

	played := []PlayedMove{{Player: ss.human, Source: piece, Destination: dst}}
	return ss.playAI(played)
}

// playAI answers with the engine's move and reports the new position. If the
// engine has no move the human has won.
func (ss *session) playAI(played []PlayedMove) error {
	aiSide := ss.ai.AI()
	err := ss.ai.ExecuteMove(ss.board)
	if errors.Is(err, alphabeta.ErrNoMove) {
		return ss.finish(ss.human)
	}
	if err != nil {
		ss.log.Error("search failed", zap.Error(err))
		return ss.sendError("engine failure")
	}

	src, _ := ss.ai.MoveSource()
	dst, _ := ss.ai.MoveDestination()
	next, err := rules.SimulateMove(ss.board, src, dst)
	if err != nil {
		ss.log.Error("apply engine move", zap.Error(err))
		return ss.sendError("engine failure")
	}
	ss.board = next
	ss.toMove = ss.human

	score := ss.ai.LastScore()
	played = append(played, PlayedMove{Player: aiSide, Source: src, Destination: dst, Score: &score})
	ss.log.Debug("engine moved",
		zap.Stringer("from", src),
		zap.Stringer("to", dst.Cell()),
		zap.Int("score", score),
		zap.Object("stats", ss.ai.LastStats()),
	)

	if rules.IsTerminal(ss.board, ss.human, ss.srv.rules.Settings) {
		if err := ss.sendState(played); err != nil {
			return err
		}
		return ss.finish(aiSide)
	}
	return ss.sendState(played)
}

func (ss *session) finish(winner game.Player) error {
	ss.over = true
	ss.log.Info("game over", zap.Stringer("winner", winner), zap.Int("turn", ss.board.Turn))
	return ss.send(MsgGameOver, GameOverMessage{GameID: ss.gameID, Winner: winner, Board: ss.board})
}

func (ss *session) sendState(played []PlayedMove) error {
	return ss.send(MsgState, StateMessage{
		GameID:    ss.gameID,
		Board:     ss.board,
		Diagram:   ss.board.String(),
		ToMove:    ss.toMove,
		Human:     ss.human,
		LastMoves: played,
	})
}

func (ss *session) sendError(format string, args ...any) error {
	return ss.send(MsgError, ErrorResponse{Error: fmt.Sprintf(format, args...)})
}

func (ss *session) send(typ string, data any) error {
	return ss.out.WriteJSON(outbound{Type: typ, Data: data})
}
