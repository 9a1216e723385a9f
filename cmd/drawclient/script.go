package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"drawing-board/input"
	"drawing-board/shape"
)

// step is one line of a drawing script: either an input event, a pause, or
// a room-wide clear.
type step struct {
	event input.Event
	pause time.Duration
	clear bool
}

// parseScript reads one command per line. Blank lines and lines starting
// with # are ignored.
//
//	tool rect|circle|pencil|text|eraser
//	down X Y [button]   move X Y   up X Y
//	wheel X Y DELTA     text WORDS...   key Enter|Escape
//	blur   reset   clear   sleep DURATION
func parseScript(r io.Reader) ([]step, error) {
	var steps []step
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		s, err := parseLine(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		steps = append(steps, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return steps, nil
}

func parseLine(raw string) (step, error) {
	fields := strings.Fields(raw)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "tool":
		if len(args) != 1 {
			return step{}, fmt.Errorf("tool takes one argument")
		}
		t, err := input.ParseTool(args[0])
		if err != nil {
			return step{}, err
		}
		return step{event: input.SelectTool{Tool: t}}, nil
	case "down":
		if len(args) != 2 && len(args) != 3 {
			return step{}, fmt.Errorf("down takes X Y [button]")
		}
		p, err := point(args[:2])
		if err != nil {
			return step{}, err
		}
		button := input.ButtonPrimary
		if len(args) == 3 {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return step{}, fmt.Errorf("bad button %q", args[2])
			}
			button = input.Button(n)
		}
		return step{event: input.PointerDown{Pos: p, Button: button}}, nil
	case "move", "up":
		if len(args) != 2 {
			return step{}, fmt.Errorf("%s takes X Y", cmd)
		}
		p, err := point(args)
		if err != nil {
			return step{}, err
		}
		if cmd == "move" {
			return step{event: input.PointerMove{Pos: p}}, nil
		}
		return step{event: input.PointerUp{Pos: p}}, nil
	case "wheel":
		if len(args) != 3 {
			return step{}, fmt.Errorf("wheel takes X Y DELTA")
		}
		p, err := point(args[:2])
		if err != nil {
			return step{}, err
		}
		d, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return step{}, fmt.Errorf("bad delta %q", args[2])
		}
		return step{event: input.Wheel{Pos: p, DeltaY: d}}, nil
	case "text":
		return step{event: input.TextInput{Text: strings.TrimSpace(strings.TrimPrefix(raw, "text"))}}, nil
	case "key":
		if len(args) != 1 {
			return step{}, fmt.Errorf("key takes one argument")
		}
		return step{event: input.KeyDown{Key: args[0]}}, nil
	case "blur":
		return step{event: input.Blur{}}, nil
	case "reset":
		return step{event: input.ResetView{}}, nil
	case "clear":
		return step{clear: true}, nil
	case "sleep":
		if len(args) != 1 {
			return step{}, fmt.Errorf("sleep takes a duration")
		}
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return step{}, err
		}
		return step{pause: d}, nil
	}
	return step{}, fmt.Errorf("unknown command %q", cmd)
}

func point(args []string) (shape.Point, error) {
	x, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return shape.Point{}, fmt.Errorf("bad x %q", args[0])
	}
	y, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return shape.Point{}, fmt.Errorf("bad y %q", args[1])
	}
	return shape.Point{X: x, Y: y}, nil
}
