package render

import (
	"image/color"
)

const (
	DefaultWidth  = 1200
	DefaultHeight = 800
	maxDimension  = 8000
)

// Format is an artifact output format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts png, jpeg (or jpg) and pdf. Empty selects png.
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "", "png":
		return FormatPNG, true
	case "jpeg", "jpg":
		return FormatJPEG, true
	case "pdf":
		return FormatPDF, true
	}
	return "", false
}

func (f Format) MimeType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}

func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// Design is a render description: canvas, background and positioned elements.
// It is stored verbatim as the design snapshot of a credential.
type Design struct {
	Width      int        `json:"width,omitempty"`
	Height     int        `json:"height,omitempty"`
	Background Background `json:"background"`
	Elements   []Element  `json:"elements,omitempty"`
	Content    Content    `json:"content"`
}

// BackgroundType selects how the canvas is painted.
type BackgroundType string

const (
	BackgroundSolid    BackgroundType = "solid"
	BackgroundGradient BackgroundType = "gradient"
	BackgroundImage    BackgroundType = "image"
)

// Background describes the canvas fill. Color is the primary color; image
// backgrounds degrade to it when the image cannot be fetched.
type Background struct {
	Type           BackgroundType `json:"type,omitempty"`
	Color          string         `json:"color,omitempty"`
	SecondaryColor string         `json:"secondaryColor,omitempty"`
	Direction      string         `json:"direction,omitempty"` // horizontal | vertical | diagonal
	ImageURL       string         `json:"imageUrl,omitempty"`
}

// ElementType discriminates the element variants.
type ElementType string

const (
	ElementText  ElementType = "text"
	ElementImage ElementType = "image"
	ElementShape ElementType = "shape"
	ElementQR    ElementType = "qr"
)

// Element is one positioned item on the canvas. Exactly one of the
// type-specific property blocks is used, selected by Type.
type Element struct {
	ID     string      `json:"id,omitempty"`
	Type   ElementType `json:"type"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Width  float64     `json:"width"`
	Height float64     `json:"height"`
	ZIndex int         `json:"zIndex"`

	Text  *TextProps  `json:"text,omitempty"`
	Image *ImageProps `json:"image,omitempty"`
	Shape *ShapeProps `json:"shape,omitempty"`
	QR    *QRProps    `json:"qr,omitempty"`
}

type TextProps struct {
	Content    string  `json:"content"`
	FontSize   float64 `json:"fontSize,omitempty"`
	FontWeight string  `json:"fontWeight,omitempty"` // normal | bold
	FontStyle  string  `json:"fontStyle,omitempty"`  // normal | italic
	Color      string  `json:"color,omitempty"`
	Align      string  `json:"align,omitempty"` // left | center | right
	LineHeight float64 `json:"lineHeight,omitempty"`
}

type ImageProps struct {
	URL string `json:"url"`
}

type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
)

type ShapeProps struct {
	Kind         ShapeKind `json:"kind"`
	Fill         string    `json:"fill,omitempty"`
	Stroke       string    `json:"stroke,omitempty"`
	StrokeWidth  float64   `json:"strokeWidth,omitempty"`
	CornerRadius float64   `json:"cornerRadius,omitempty"`
}

type QRProps struct {
	Size   int `json:"size,omitempty"`
	Margin int `json:"margin,omitempty"`
}

// Content lists the placeholder keys the template expects in the bundle.
type Content struct {
	Placeholders []string `json:"placeholders,omitempty"`
}

// IsEmpty reports whether the design places nothing on the canvas.
func (d *Design) IsEmpty() bool {
	return d == nil || len(d.Elements) == 0
}

// HasQR reports whether the design places its own QR code.
func (d *Design) HasQR() bool {
	if d == nil {
		return false
	}
	for _, el := range d.Elements {
		if el.Type == ElementQR {
			return true
		}
	}
	return false
}

// Bundle is the participant data substituted into text placeholders.
type Bundle map[string]string

// Request is one render invocation.
type Request struct {
	Design          *Design
	Data            Bundle
	Format          Format
	VerificationURL string
	// Scale is the output resolution hint; 1 renders at design size.
	Scale float64
}

// Output is the rendered artifact.
type Output struct {
	Bytes    []byte
	Width    int
	Height   int
	MimeType string
	Format   Format
	Warnings []string
}

var (
	defaultTextColor = color.RGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff}
	placeholderFill  = color.RGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}
	placeholderLine  = color.RGBA{R: 0x9c, G: 0xa3, B: 0xaf, A: 0xff}
)
