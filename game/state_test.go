package game

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewBoard_Layout(t *testing.T) {
	b := NewBoard(8, 3)
	t.Logf("\n%s", b)

	if got := len(b.Pieces(PlayerFirst)); got != 12 {
		t.Fatalf("first pieces=%d want=12", got)
	}
	if got := len(b.Pieces(PlayerSecond)); got != 12 {
		t.Fatalf("second pieces=%d want=12", got)
	}
	for _, c := range b.Pieces(PlayerFirst) {
		if c.Y >= 3 || !Playable(c.X, c.Y) {
			t.Fatalf("first piece misplaced at %s", c)
		}
	}
	for _, c := range b.Pieces(PlayerSecond) {
		if c.Y < 5 || !Playable(c.X, c.Y) {
			t.Fatalf("second piece misplaced at %s", c)
		}
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestBoard_CloneIsDeep(t *testing.T) {
	b := NewBoard(8, 3)
	c := b.Clone()
	c.Clear(1, 0)
	c.Turn = 7

	if b.At(1, 0).Player != PlayerFirst {
		t.Fatalf("clone mutation leaked into original")
	}
	if b.Turn != 0 {
		t.Fatalf("turn leaked: %d", b.Turn)
	}
	if (*Board)(nil).Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}
}

func TestParseBoard_RoundTrip(t *testing.T) {
	src := strings.Join([]string{
		" . . . .",
		". X . . ",
		" . o . .",
		". . . . ",
		" . . . .",
		". . . . ",
		" . . O .",
		". . . . ",
	}, "\n")
	b, err := ParseBoard(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c := b.At(2, 1); c.Player != PlayerFirst || !c.King {
		t.Fatalf("(2,1)=%+v want first king", c)
	}
	if c := b.At(3, 2); c.Player != PlayerSecond || c.King {
		t.Fatalf("(3,2)=%+v want second man", c)
	}
	again, err := ParseBoard(b.String())
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if again.String() != b.String() {
		t.Fatalf("round trip mismatch:\n%s\nvs\n%s", again, b)
	}
}

func TestParseBoard_RejectsLightSquare(t *testing.T) {
	if _, err := ParseBoard("x...\n....\n....\n...."); err == nil {
		t.Fatalf("expected error for piece on light square")
	}
}

func TestPlayer_Opponent(t *testing.T) {
	for _, tc := range []struct {
		in, want Player
	}{
		{PlayerFirst, PlayerSecond},
		{PlayerSecond, PlayerFirst},
		{NoPlayer, NoPlayer},
	} {
		if got := tc.in.Opponent(); got != tc.want {
			t.Errorf("%s.Opponent()=%s want=%s", tc.in, got, tc.want)
		}
	}
}

func TestPlayer_JSON(t *testing.T) {
	var got struct {
		P Player `json:"p"`
	}
	if err := json.Unmarshal([]byte(`{"p":"second"}`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.P != PlayerSecond {
		t.Fatalf("player=%s want=second", got.P)
	}
	if err := json.Unmarshal([]byte(`{"p":"third"}`), &got); err == nil {
		t.Fatalf("expected error for unknown player")
	}
}

func TestDestination_CaptureInvariant(t *testing.T) {
	plain := NewDestination(Cell{X: 3, Y: 2})
	if plain.IsCapture() {
		t.Fatalf("plain move reported as capture")
	}
	if plain.Captured() != nil || plain.Steps() != nil {
		t.Fatalf("plain move should have no captured pieces or steps")
	}

	empty := NewCaptureDestination(CaptureChain{Destination: Cell{X: 3, Y: 2}, Captured: []Cell{}})
	if empty.IsCapture() {
		t.Fatalf("chain with no captured pieces reported as capture")
	}

	chain := CaptureChain{
		Destination: Cell{X: 5, Y: 4},
		Captured:    []Cell{{X: 2, Y: 1, Player: PlayerSecond}, {X: 4, Y: 3, Player: PlayerSecond}},
		Steps:       []Cell{{X: 3, Y: 2}},
	}
	jump := NewCaptureDestination(chain)
	if !jump.IsCapture() {
		t.Fatalf("chain with captures not reported as capture")
	}
	if got := len(jump.Captured()); got != 2 {
		t.Fatalf("captured=%d want=2", got)
	}

	// Neither the source chain nor returned slices may alter the value.
	chain.Captured[0] = Cell{X: 7, Y: 7}
	jump.Captured()[1] = Cell{X: 6, Y: 6}
	jump.Steps()[0] = Cell{X: 0, Y: 1}
	if c := jump.Captured(); c[0].X != 2 || c[1].X != 4 {
		t.Fatalf("destination mutated through aliasing: %v", c)
	}
	if s := jump.Steps(); s[0].X != 3 {
		t.Fatalf("steps mutated through aliasing: %v", s)
	}
}

func TestDestination_MarshalJSON(t *testing.T) {
	d := NewCaptureDestination(CaptureChain{
		Destination: Cell{X: 4, Y: 3},
		Captured:    []Cell{{X: 3, Y: 2, Player: PlayerSecond}},
	})
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, `"captured"`) || strings.Contains(s, `"steps"`) {
		t.Fatalf("unexpected json: %s", s)
	}
}
