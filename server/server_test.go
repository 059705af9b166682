package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/checkers/config"
	"github.com/brensch/checkers/game"
	"github.com/brensch/checkers/rules"
)

type envelope struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type moveBody struct {
	Source      game.Cell `json:"source"`
	Destination struct {
		Cell     game.Cell   `json:"cell"`
		Captured []game.Cell `json:"captured"`
	} `json:"destination"`
	Score int           `json:"score"`
	Stats StatsResponse `json:"stats"`
	Board *game.Board   `json:"board"`
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Search.Depth = 3
	cfg.Server.MaxDepth = 5
	return &cfg
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(testConfig(t), nil).Router())
	t.Cleanup(ts.Close)
	return ts
}

func postMove(t *testing.T, ts *httptest.Server, body string) (int, envelope) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/move", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Status != resp.StatusCode {
		t.Fatalf("envelope status %d, http status %d", env.Status, resp.StatusCode)
	}
	return resp.StatusCode, env
}

func TestIndexAndHealth(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/", "/healthz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		var env envelope
		err = json.NewDecoder(resp.Body).Decode(&env)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			t.Fatalf("get %s: status=%d err=%v", path, resp.StatusCode, err)
		}
		if path == "/" {
			var info InfoResponse
			if err := json.Unmarshal(env.Body, &info); err != nil {
				t.Fatal(err)
			}
			if info.Name != "checkers" || info.Depth != 3 || !info.Pruning || info.BoardSize != 8 {
				t.Fatalf("info: %+v", info)
			}
		}
	}
}

func TestMove_Diagram(t *testing.T) {
	ts := newTestServer(t)
	start := game.NewBoard(8, 3)
	req, _ := json.Marshal(MoveRequest{Diagram: start.String(), Player: game.PlayerFirst, Depth: 2})

	status, env := postMove(t, ts, string(req))
	if status != http.StatusOK {
		t.Fatalf("status=%d body=%s", status, env.Body)
	}
	var got moveBody
	if err := json.Unmarshal(env.Body, &got); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := rules.FindMove(start, game.PlayerFirst, rules.DefaultSettings, got.Source, got.Destination.Cell); !ok {
		t.Fatalf("engine played illegal move %s -> %s", got.Source, got.Destination.Cell)
	}
	if got.Board == nil || got.Board.Turn != 1 || got.Stats.Visited == 0 {
		t.Fatalf("response: %+v", got)
	}
	if got.Board.At(got.Destination.Cell.X, got.Destination.Cell.Y).Player != game.PlayerFirst {
		t.Fatalf("destination %s not occupied after move", got.Destination.Cell)
	}
}

func TestMove_BoardJSON(t *testing.T) {
	ts := newTestServer(t)
	b := game.NewBoard(8, 0)
	b.Put(game.Cell{X: 2, Y: 1, Player: game.PlayerFirst})
	b.Put(game.Cell{X: 3, Y: 2, Player: game.PlayerSecond})
	b.Put(game.Cell{X: 7, Y: 6, Player: game.PlayerSecond})
	req, _ := json.Marshal(MoveRequest{Board: b, Player: game.PlayerFirst})

	status, env := postMove(t, ts, string(req))
	if status != http.StatusOK {
		t.Fatalf("status=%d body=%s", status, env.Body)
	}
	var got moveBody
	if err := json.Unmarshal(env.Body, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Destination.Captured) != 1 || got.Destination.Captured[0].X != 3 {
		t.Fatalf("expected the forced capture, got %+v", got.Destination)
	}
}

func TestMove_NoLegalMove(t *testing.T) {
	ts := newTestServer(t)
	b := game.NewBoard(8, 0)
	b.Put(game.Cell{X: 0, Y: 7, Player: game.PlayerSecond})
	req, _ := json.Marshal(MoveRequest{Board: b, Player: game.PlayerFirst})

	status, env := postMove(t, ts, string(req))
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%s", status, env.Body)
	}
	var e ErrorResponse
	if err := json.Unmarshal(env.Body, &e); err != nil || !strings.Contains(e.Error, "no legal move") {
		t.Fatalf("error body %s (%v)", env.Body, err)
	}
}

func TestMove_BadRequests(t *testing.T) {
	ts := newTestServer(t)
	diagram, _ := json.Marshal(game.NewBoard(8, 3).String())
	board, _ := json.Marshal(game.NewBoard(8, 3))

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"diagram":`},
		{"unknown field", `{"diagram":` + string(diagram) + `,"player":"first","colour":"red"}`},
		{"no position", `{"player":"first"}`},
		{"both positions", `{"board":` + string(board) + `,"diagram":` + string(diagram) + `,"player":"first"}`},
		{"no player", `{"diagram":` + string(diagram) + `}`},
		{"unknown player", `{"diagram":` + string(diagram) + `,"player":"third"}`},
		{"too deep", `{"diagram":` + string(diagram) + `,"player":"first","depth":9}`},
		{"negative depth", `{"diagram":` + string(diagram) + `,"player":"first","depth":-1}`},
		{"broken board", `{"board":{"size":8,"cells":[]},"player":"first"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := postMove(t, ts, tt.body)
			if status != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", status, env.Body)
			}
		})
	}
}

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn, want string) json.RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var m wsMessage
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	if m.Type != want {
		t.Fatalf("message type %q want %q: %s", m.Type, want, m.Data)
	}
	return m.Data
}

func TestSession_PlaysAgainstHuman(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The engine plays second by default, so the human opens.
	var state StateMessage
	if err := json.Unmarshal(readMessage(t, conn, MsgState), &state); err != nil {
		t.Fatal(err)
	}
	if state.ToMove != game.PlayerFirst || state.Human != game.PlayerFirst || state.Board.Turn != 0 {
		t.Fatalf("opening state: %+v", state)
	}

	move := func(from, to game.Cell) {
		data, _ := json.Marshal(MoveMessage{From: from, To: to})
		if err := conn.WriteJSON(Envelope{Type: MsgMove, Data: data}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	move(game.Cell{X: 1, Y: 2}, game.Cell{X: 2, Y: 3})
	var reply struct {
		Board     *game.Board `json:"board"`
		ToMove    game.Player `json:"to_move"`
		LastMoves []struct {
			Player game.Player `json:"player"`
			Source game.Cell   `json:"source"`
		} `json:"last_moves"`
	}
	if err := json.Unmarshal(readMessage(t, conn, MsgState), &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Board.Turn != 2 || reply.ToMove != game.PlayerFirst || len(reply.LastMoves) != 2 {
		t.Fatalf("reply: %+v", reply)
	}
	if reply.LastMoves[0].Player != game.PlayerFirst || reply.LastMoves[1].Player != game.PlayerSecond {
		t.Fatalf("last moves out of order: %+v", reply.LastMoves)
	}

	// Moving an empty square is rejected without changing the game.
	move(game.Cell{X: 0, Y: 3}, game.Cell{X: 1, Y: 4})
	readMessage(t, conn, MsgError)

	if err := conn.WriteJSON(Envelope{Type: "resign"}); err != nil {
		t.Fatal(err)
	}
	readMessage(t, conn, MsgError)

	// A new game as second: the engine opens straight away.
	data, _ := json.Marshal(NewGameRequest{Human: game.PlayerSecond})
	if err := conn.WriteJSON(Envelope{Type: MsgNew, Data: data}); err != nil {
		t.Fatal(err)
	}
	state = StateMessage{}
	if err := json.Unmarshal(readMessage(t, conn, MsgState), &state); err != nil {
		t.Fatal(err)
	}
	if state.Human != game.PlayerSecond || state.ToMove != game.PlayerSecond || state.Board.Turn != 1 {
		t.Fatalf("second game: %+v", state)
	}
}

// recorder collects what a session writes.
type recorder struct {
	msgs []outbound
}

func (r *recorder) WriteJSON(v any) error {
	r.msgs = append(r.msgs, v.(outbound))
	return nil
}

func (r *recorder) last() outbound { return r.msgs[len(r.msgs)-1] }

func newTestSession(t *testing.T, b *game.Board, human game.Player) (*session, *recorder) {
	t.Helper()
	srv := New(testConfig(t), nil)
	ai, err := srv.newPlayer(human.Opponent(), 3)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	return &session{
		srv:    srv,
		out:    rec,
		log:    srv.log,
		gameID: "test",
		board:  b,
		toMove: human,
		human:  human,
		ai:     ai,
	}, rec
}

func TestSession_MoveBeforeGameStarts(t *testing.T) {
	srv := New(testConfig(t), nil)
	srv.search.Depth = -1
	rec := &recorder{}
	ss := &session{srv: srv, out: rec, log: srv.log}

	if err := ss.start(game.PlayerFirst); err != nil {
		t.Fatal(err)
	}
	if rec.last().Type != MsgError || ss.board != nil {
		t.Fatalf("start with bad depth: %+v", rec.msgs)
	}
	if err := ss.playHuman(MoveMessage{From: game.Cell{X: 1, Y: 2}, To: game.Cell{X: 0, Y: 3}}); err != nil {
		t.Fatal(err)
	}
	if len(rec.msgs) != 2 || rec.last().Type != MsgError {
		t.Fatalf("move without a game: %+v", rec.msgs)
	}
}

func TestSession_HumanWins(t *testing.T) {
	b := game.NewBoard(8, 0)
	b.Put(game.Cell{X: 2, Y: 1, Player: game.PlayerFirst})
	b.Put(game.Cell{X: 3, Y: 2, Player: game.PlayerSecond})
	ss, rec := newTestSession(t, b, game.PlayerFirst)

	if err := ss.playHuman(MoveMessage{From: game.Cell{X: 2, Y: 1}, To: game.Cell{X: 4, Y: 3}}); err != nil {
		t.Fatal(err)
	}
	over, ok := rec.last().Data.(GameOverMessage)
	if rec.last().Type != MsgGameOver || !ok || over.Winner != game.PlayerFirst {
		t.Fatalf("messages: %+v", rec.msgs)
	}

	// Further moves are refused.
	if err := ss.playHuman(MoveMessage{From: game.Cell{X: 4, Y: 3}, To: game.Cell{X: 5, Y: 4}}); err != nil {
		t.Fatal(err)
	}
	if rec.last().Type != MsgError {
		t.Fatalf("move after game over: %+v", rec.last())
	}
}

func TestSession_EngineWins(t *testing.T) {
	b := game.NewBoard(8, 0)
	b.Put(game.Cell{X: 0, Y: 1, Player: game.PlayerFirst})
	b.Put(game.Cell{X: 2, Y: 3, Player: game.PlayerSecond})
	ss, rec := newTestSession(t, b, game.PlayerFirst)

	if err := ss.playHuman(MoveMessage{From: game.Cell{X: 0, Y: 1}, To: game.Cell{X: 1, Y: 2}}); err != nil {
		t.Fatal(err)
	}
	if len(rec.msgs) != 2 || rec.msgs[0].Type != MsgState || rec.msgs[1].Type != MsgGameOver {
		t.Fatalf("messages: %+v", rec.msgs)
	}
	state := rec.msgs[0].Data.(StateMessage)
	if len(state.LastMoves) != 2 || len(state.LastMoves[1].Destination.Captured()) != 1 {
		t.Fatalf("engine did not capture: %+v", state.LastMoves)
	}
	if over := rec.msgs[1].Data.(GameOverMessage); over.Winner != game.PlayerSecond {
		t.Fatalf("winner=%s", over.Winner)
	}
}

func TestSession_RejectsOutOfTurnMove(t *testing.T) {
	ss, rec := newTestSession(t, game.NewBoard(8, 3), game.PlayerSecond)
	ss.toMove = game.PlayerFirst
	if err := ss.playHuman(MoveMessage{From: game.Cell{X: 0, Y: 5}, To: game.Cell{X: 1, Y: 4}}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(rec.last())
	if rec.last().Type != MsgError || !strings.Contains(buf.String(), "not your turn") {
		t.Fatalf("got %s", buf.String())
	}
}
