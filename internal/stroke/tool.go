package stroke

import (
	"fmt"
	"regexp"
)

// ToolConfig is the immutable tool selection copied into every new stroke.
type ToolConfig struct {
	Tool  Tool    `json:"tool"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

// DefaultToolConfig matches the toolbar state a fresh board opens with.
func DefaultToolConfig() ToolConfig {
	return ToolConfig{Tool: ToolPen, Color: "#000000", Size: 3}
}

// Palette lists the colors offered by the toolbar.
var Palette = []string{
	"#000000", "#FF0000", "#00FF00", "#0000FF",
	"#FFFF00", "#FF00FF", "#00FFFF", "#FFFFFF",
	"#808080", "#A52A2A", "#FFA500", "#800080",
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ValidColor reports whether c is a #RGB or #RRGGBB hex color.
func ValidColor(c string) bool {
	return hexColor.MatchString(c)
}

// WithTool returns a copy of cfg using tool t.
func (cfg ToolConfig) WithTool(t Tool) (ToolConfig, error) {
	if !t.Valid() {
		return cfg, fmt.Errorf("%w: unknown tool %q", ErrInvalidStroke, t)
	}
	cfg.Tool = t
	return cfg, nil
}

// WithColor returns a copy of cfg using color c.
func (cfg ToolConfig) WithColor(c string) (ToolConfig, error) {
	if !ValidColor(c) {
		return cfg, fmt.Errorf("%w: bad color %q", ErrInvalidStroke, c)
	}
	cfg.Color = c
	return cfg, nil
}

// WithSize returns a copy of cfg using size n.
func (cfg ToolConfig) WithSize(n float64) (ToolConfig, error) {
	if !(n > 0) {
		return cfg, fmt.Errorf("%w: size must be positive", ErrInvalidStroke)
	}
	cfg.Size = n
	return cfg, nil
}
