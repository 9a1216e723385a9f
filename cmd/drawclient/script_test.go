package main

import (
	"strings"
	"testing"
	"time"

	"drawing-board/input"
	"drawing-board/shape"
)

func TestParseScript(t *testing.T) {
	src := `
# a rectangle, then a label
tool rect
down 10 10
move 40 30
up 60 50
sleep 250ms

tool text
down 100 100
text hello   world
key Enter
wheel 5 5 -120
down 0 0 1
reset
blur
clear
`
	steps, err := parseScript(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []step{
		{event: input.SelectTool{Tool: input.ToolRectangle}},
		{event: input.PointerDown{Pos: shape.Point{X: 10, Y: 10}, Button: input.ButtonPrimary}},
		{event: input.PointerMove{Pos: shape.Point{X: 40, Y: 30}}},
		{event: input.PointerUp{Pos: shape.Point{X: 60, Y: 50}}},
		{pause: 250 * time.Millisecond},
		{event: input.SelectTool{Tool: input.ToolLabel}},
		{event: input.PointerDown{Pos: shape.Point{X: 100, Y: 100}, Button: input.ButtonPrimary}},
		{event: input.TextInput{Text: "hello   world"}},
		{event: input.KeyDown{Key: input.KeyEnter}},
		{event: input.Wheel{Pos: shape.Point{X: 5, Y: 5}, DeltaY: -120}},
		{event: input.PointerDown{Pos: shape.Point{}, Button: input.ButtonAuxiliary}},
		{event: input.ResetView{}},
		{event: input.Blur{}},
		{clear: true},
	}
	if len(steps) != len(want) {
		t.Fatalf("got %d steps, want %d: %+v", len(steps), len(want), steps)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("step %d: got %+v, want %+v", i, steps[i], want[i])
		}
	}
}

func TestParseScriptErrorsCarryLineNumber(t *testing.T) {
	cases := []struct{ src, frag string }{
		{"tool\n", "line 1"},
		{"\n\ndown 1\n", "line 3"},
		{"move a 2\n", "bad x"},
		{"up 1 b\n", "bad y"},
		{"wheel 1 2 x\n", "bad delta"},
		{"down 1 2 left\n", "bad button"},
		{"tool spray\n", "unknown tool"},
		{"sleep soon\n", "line 1"},
		{"# ok\nteleport 1 2\n", "line 2: unknown command"},
	}
	for _, tc := range cases {
		src, frag := tc.src, tc.frag
		_, err := parseScript(strings.NewReader(src))
		if err == nil {
			t.Errorf("%q: expected error", src)
			continue
		}
		if !strings.Contains(err.Error(), frag) {
			t.Errorf("%q: error %q does not mention %q", src, err, frag)
		}
	}
}

func TestParseScriptEmpty(t *testing.T) {
	steps, err := parseScript(strings.NewReader("\n# nothing here\n\n"))
	if err != nil || len(steps) != 0 {
		t.Fatalf("steps %v err %v", steps, err)
	}
}
