package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

const maxElements = 200

// Validate checks a design before it is stored or rendered. A nil design is
// valid and renders the default layout.
func Validate(d *Design) error {
	if d == nil {
		return nil
	}
	if d.Width < 0 || d.Height < 0 || d.Width > maxDimension || d.Height > maxDimension {
		return newError(KindInvalidTemplate, fmt.Sprintf("canvas must be between 1 and %d pixels", maxDimension), nil)
	}
	if err := validateBackground(d.Background); err != nil {
		return err
	}
	if len(d.Elements) > maxElements {
		return newError(KindInvalidTemplate, fmt.Sprintf("at most %d elements are allowed", maxElements), nil)
	}
	for i, el := range d.Elements {
		if err := validateElement(el); err != nil {
			return newError(KindInvalidTemplate, fmt.Sprintf("element %d: %s", i, err.Error()), nil)
		}
	}
	return nil
}

func validateBackground(bg Background) error {
	switch bg.Type {
	case "", BackgroundSolid:
	case BackgroundGradient:
		if bg.Color == "" || bg.SecondaryColor == "" {
			return newError(KindInvalidTemplate, "gradient background needs color and secondaryColor", nil)
		}
		switch bg.Direction {
		case "", "horizontal", "vertical", "diagonal":
		default:
			return newError(KindInvalidTemplate, "unknown gradient direction "+strconv.Quote(bg.Direction), nil)
		}
	case BackgroundImage:
		if bg.ImageURL == "" {
			return newError(KindInvalidTemplate, "image background needs imageUrl", nil)
		}
	default:
		return newError(KindInvalidTemplate, "unknown background type "+strconv.Quote(string(bg.Type)), nil)
	}
	for _, c := range []string{bg.Color, bg.SecondaryColor} {
		if c == "" {
			continue
		}
		if _, err := parseColor(c); err != nil {
			return newError(KindInvalidTemplate, err.Error(), nil)
		}
	}
	return nil
}

func validateElement(el Element) error {
	if el.Width < 0 || el.Height < 0 {
		return fmt.Errorf("negative size")
	}
	switch el.Type {
	case ElementText:
		if el.Text == nil {
			return fmt.Errorf("text element needs text properties")
		}
		if el.Text.FontSize < 0 || el.Text.FontSize > 400 {
			return fmt.Errorf("fontSize out of range")
		}
		switch el.Text.Align {
		case "", "left", "center", "right":
		default:
			return fmt.Errorf("unknown align %q", el.Text.Align)
		}
		return checkColors(el.Text.Color)
	case ElementImage:
		if el.Image == nil || el.Image.URL == "" {
			return fmt.Errorf("image element needs a url")
		}
	case ElementShape:
		if el.Shape == nil {
			return fmt.Errorf("shape element needs shape properties")
		}
		if el.Shape.Kind != ShapeRectangle && el.Shape.Kind != ShapeCircle {
			return fmt.Errorf("unknown shape kind %q", el.Shape.Kind)
		}
		return checkColors(el.Shape.Fill, el.Shape.Stroke)
	case ElementQR:
	default:
		return fmt.Errorf("unknown element type %q", el.Type)
	}
	return nil
}

func checkColors(values ...string) error {
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, err := parseColor(v); err != nil {
			return err
		}
	}
	return nil
}

// parseColor accepts #RGB, #RRGGBB and #RRGGBBAA.
func parseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// colorOr parses s, falling back to def on empty or invalid input.
func colorOr(s string, def color.RGBA) color.RGBA {
	if s == "" {
		return def
	}
	c, err := parseColor(s)
	if err != nil {
		return def
	}
	return c
}
