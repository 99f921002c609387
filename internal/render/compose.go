package render

import (
	"math"
	"slices"
)

const (
	minScale       = 0.25
	maxScale       = 4
	qrCornerMargin = 24.0
)

// scene is a fully resolved render plan: geometry in output pixels, text
// already substituted, elements in paint order.
type scene struct {
	width      int
	height     int
	scale      float64
	background Background
	elements   []Element
}

// compose turns a request into a scene. It performs no I/O.
func compose(req Request) (*scene, error) {
	if err := Validate(req.Design); err != nil {
		return nil, err
	}

	design := req.Design
	if design == nil {
		design = &Design{}
	}

	width, height := design.Width, design.Height
	if width == 0 || height == 0 {
		width, height = DefaultWidth, DefaultHeight
	}

	scale := req.Scale
	if scale == 0 {
		scale = 1
	}
	scale = math.Min(math.Max(scale, minScale), maxScale)

	var elements []Element
	if design.IsEmpty() {
		elements = defaultLayout(float64(width), float64(height))
	} else {
		elements = slices.Clone(design.Elements)
	}
	slices.SortStableFunc(elements, func(a, b Element) int { return a.ZIndex - b.ZIndex })

	for i := range elements {
		if elements[i].Type == ElementText && elements[i].Text != nil {
			props := *elements[i].Text
			props.Content = Substitute(props.Content, req.Data)
			elements[i].Text = &props
		}
	}

	if req.VerificationURL != "" && !design.HasQR() {
		elements = append(elements, cornerQR(float64(width), float64(height), elements))
	}

	for i := range elements {
		elements[i] = scaleElement(elements[i], scale)
	}

	return &scene{
		width:      int(math.Round(float64(width) * scale)),
		height:     int(math.Round(float64(height) * scale)),
		scale:      scale,
		background: design.Background,
		elements:   elements,
	}, nil
}

// defaultLayout is used when a design places no elements.
func defaultLayout(w, h float64) []Element {
	text := func(y, size float64, content, weight, style string, z int) Element {
		return Element{
			Type:   ElementText,
			X:      w * 0.1,
			Y:      h * y,
			Width:  w * 0.8,
			Height: size * 1.4,
			ZIndex: z,
			Text: &TextProps{
				Content:    content,
				FontSize:   size,
				FontWeight: weight,
				FontStyle:  style,
				Align:      "center",
			},
		}
	}
	return []Element{
		{
			Type: ElementShape, X: 24, Y: 24, Width: w - 48, Height: h - 48, ZIndex: 0,
			Shape: &ShapeProps{Kind: ShapeRectangle, Stroke: "#1f2937", StrokeWidth: 4},
		},
		text(0.14, 56, "Certificate of Achievement", "bold", "", 1),
		text(0.32, 24, "This is to certify that", "", "italic", 1),
		text(0.42, 64, "{{participantName}}", "bold", "", 1),
		text(0.58, 28, "has successfully participated in {{eventTitle}}", "", "", 1),
		text(0.72, 22, "Issued on {{issueDate}}", "", "", 1),
	}
}

// cornerQR places a verification QR in the bottom-right corner above every
// other element.
func cornerQR(w, h float64, elements []Element) Element {
	size := math.Max(96, math.Min(w, h)*0.15)
	top := 0
	for _, el := range elements {
		top = max(top, el.ZIndex)
	}
	return Element{
		ID:     "verification-qr",
		Type:   ElementQR,
		X:      w - size - qrCornerMargin,
		Y:      h - size - qrCornerMargin,
		Width:  size,
		Height: size,
		ZIndex: top + 1,
		QR:     &QRProps{Size: int(size), Margin: 1},
	}
}

func scaleElement(el Element, s float64) Element {
	if s == 1 {
		return el
	}
	el.X *= s
	el.Y *= s
	el.Width *= s
	el.Height *= s
	switch {
	case el.Text != nil:
		t := *el.Text
		t.FontSize *= s
		el.Text = &t
	case el.Shape != nil:
		sh := *el.Shape
		sh.StrokeWidth *= s
		sh.CornerRadius *= s
		el.Shape = &sh
	case el.QR != nil:
		q := *el.QR
		q.Size = int(math.Round(float64(q.Size) * s))
		el.QR = &q
	}
	return el
}
