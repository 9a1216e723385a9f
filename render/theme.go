package render

import (
	"fmt"
	"strings"
)

// Theme selects one of the two palettes.
type Theme int

// Themes
const (
	Light Theme = iota
	Dark
)

// Palette holds the colors one theme paints with, as #rrggbb strings.
type Palette struct {
	Background string
	Ink        string
	Preview    string
}

var palettes = map[Theme]Palette{
	Light: {Background: "#ffffff", Ink: "#1e293b", Preview: "#1d4ed8"},
	Dark:  {Background: "#0f172a", Ink: "#e2e8f0", Preview: "#3b82f6"},
}

// Palette returns the colors for t, falling back to light.
func (t Theme) Palette() Palette {
	if p, ok := palettes[t]; ok {
		return p
	}
	return palettes[Light]
}

// String returns the name ParseTheme accepts.
func (t Theme) String() string {
	if t == Dark {
		return "dark"
	}
	return "light"
}

// ParseTheme accepts "light" or "dark" in any case.
func ParseTheme(s string) (Theme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "light":
		return Light, nil
	case "dark":
		return Dark, nil
	}
	return Light, fmt.Errorf("unknown theme %q", s)
}
