// Package render turns a design document and a participant-data bundle into a
// raster image or PDF.
package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"time"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"
)

// QRImager produces a QR image for the verification URL.
type QRImager interface {
	Image(content string, size int) (image.Image, error)
}

// Renderer is stateless apart from its font cache and safe for concurrent use.
type Renderer struct {
	fonts   *FontCache
	assets  AssetFetcher
	qr      QRImager
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Renderer.
type Option func(*Renderer)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Renderer) {
		r.metrics = m
	}
}

func WithFontCache(c *FontCache) Option {
	return func(r *Renderer) {
		r.fonts = c
	}
}

func New(assets AssetFetcher, qr QRImager, opts ...Option) *Renderer {
	r := &Renderer{
		fonts:  NewFontCache(),
		assets: assets,
		qr:     qr,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render paints the request and encodes it in the requested format.
func (r *Renderer) Render(ctx context.Context, req Request) (*Output, error) {
	start := time.Now()
	out, err := r.render(ctx, req)
	if r.metrics != nil {
		r.metrics.ObserveRender(req.Format, KindOf(err), time.Since(start))
	}
	return out, err
}

func (r *Renderer) render(ctx context.Context, req Request) (*Output, error) {
	if req.Format == "" {
		req.Format = FormatPNG
	}
	sc, err := compose(req)
	if err != nil {
		return nil, err
	}

	faces, err := r.fonts.newFaceSet()
	if err != nil {
		return nil, err
	}
	defer faces.close()

	p := &painter{
		ctx:    ctx,
		dc:     gg.NewContext(sc.width, sc.height),
		faces:  faces,
		assets: r.assets,
		qr:     r.qr,
		url:    req.VerificationURL,
	}

	if err := p.background(sc); err != nil {
		return nil, err
	}
	for _, el := range sc.elements {
		if err := ctx.Err(); err != nil {
			return nil, newError(KindInternal, "render cancelled", err)
		}
		if err := p.element(el); err != nil {
			return nil, err
		}
	}

	for _, w := range p.warnings {
		r.logger.WarnContext(ctx, "render degraded", "warning", w)
	}

	data, err := encode(p.dc.Image(), req.Format)
	if err != nil {
		return nil, err
	}
	return &Output{
		Bytes:    data,
		Width:    sc.width,
		Height:   sc.height,
		MimeType: req.Format.MimeType(),
		Format:   req.Format,
		Warnings: p.warnings,
	}, nil
}

type painter struct {
	ctx      context.Context
	dc       *gg.Context
	faces    *faceSet
	assets   AssetFetcher
	qr       QRImager
	url      string
	warnings []string
}

func (p *painter) warn(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

func (p *painter) background(sc *scene) error {
	bg := sc.background
	w, h := float64(sc.width), float64(sc.height)

	switch bg.Type {
	case BackgroundGradient:
		x1, y1 := w, 0.0
		switch bg.Direction {
		case "vertical":
			x1, y1 = 0, h
		case "diagonal":
			x1, y1 = w, h
		}
		grad := gg.NewLinearGradient(0, 0, x1, y1)
		grad.AddColorStop(0, colorOr(bg.Color, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}))
		grad.AddColorStop(1, colorOr(bg.SecondaryColor, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}))
		p.dc.SetFillStyle(grad)
		p.dc.DrawRectangle(0, 0, w, h)
		p.dc.Fill()
		return nil

	case BackgroundImage:
		img, err := p.fetch(bg.ImageURL)
		if err != nil {
			if bg.Color == "" {
				return newError(KindAssetUnavailable, "background image unavailable", err)
			}
			p.warn("background image %s unavailable, using primary color: %v", bg.ImageURL, err)
			p.fill(colorOr(bg.Color, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}))
			return nil
		}
		p.dc.DrawImage(fit(img, sc.width, sc.height), 0, 0)
		return nil

	default:
		p.fill(colorOr(bg.Color, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}))
		return nil
	}
}

func (p *painter) fill(c color.Color) {
	p.dc.SetColor(c)
	p.dc.Clear()
}

func (p *painter) fetch(url string) (image.Image, error) {
	if p.assets == nil {
		return nil, fmt.Errorf("no asset fetcher configured")
	}
	return p.assets.Fetch(p.ctx, url)
}

func (p *painter) element(el Element) error {
	switch el.Type {
	case ElementText:
		p.text(el)
	case ElementImage:
		p.image(el)
	case ElementShape:
		p.shape(el)
	case ElementQR:
		return p.qrCode(el)
	}
	return nil
}

func (p *painter) text(el Element) {
	t := el.Text
	size := t.FontSize
	if size <= 0 {
		size = 24
	}
	p.dc.SetFontFace(p.faces.face(t.FontWeight == "bold", t.FontStyle == "italic", size))
	p.dc.SetColor(colorOr(t.Color, defaultTextColor))

	lineHeight := size * 1.2
	if t.LineHeight > 0 {
		lineHeight = size * t.LineHeight
	}

	x, ax := el.X, 0.0
	switch t.Align {
	case "center":
		x, ax = el.X+el.Width/2, 0.5
	case "right":
		x, ax = el.X+el.Width, 1
	}

	lines := wrapText(t.Content, el.Width, func(s string) float64 {
		w, _ := p.dc.MeasureString(s)
		return w
	})
	for i, line := range lines {
		p.dc.DrawStringAnchored(line, x, el.Y+float64(i)*lineHeight, ax, 1)
	}
}

func (p *painter) image(el Element) {
	img, err := p.fetch(el.Image.URL)
	if err != nil {
		p.warn("image %s unavailable, drawing placeholder: %v", el.Image.URL, err)
		p.placeholder(el)
		return
	}
	p.dc.DrawImage(fit(img, int(el.Width), int(el.Height)), int(el.X), int(el.Y))
}

func (p *painter) placeholder(el Element) {
	p.dc.DrawRectangle(el.X, el.Y, el.Width, el.Height)
	p.dc.SetColor(placeholderFill)
	p.dc.FillPreserve()
	p.dc.SetColor(placeholderLine)
	p.dc.SetLineWidth(2)
	p.dc.Stroke()
	p.dc.DrawLine(el.X, el.Y, el.X+el.Width, el.Y+el.Height)
	p.dc.DrawLine(el.X+el.Width, el.Y, el.X, el.Y+el.Height)
	p.dc.Stroke()
}

func (p *painter) shape(el Element) {
	sh := el.Shape
	switch sh.Kind {
	case ShapeCircle:
		p.dc.DrawEllipse(el.X+el.Width/2, el.Y+el.Height/2, el.Width/2, el.Height/2)
	default:
		if sh.CornerRadius > 0 {
			p.dc.DrawRoundedRectangle(el.X, el.Y, el.Width, el.Height, sh.CornerRadius)
		} else {
			p.dc.DrawRectangle(el.X, el.Y, el.Width, el.Height)
		}
	}

	hasStroke := sh.Stroke != "" && sh.StrokeWidth > 0
	hasFill := sh.Fill != "" || !hasStroke
	if hasFill {
		p.dc.SetColor(colorOr(sh.Fill, defaultTextColor))
		if hasStroke {
			p.dc.FillPreserve()
		} else {
			p.dc.Fill()
		}
	}
	if hasStroke {
		p.dc.SetLineWidth(sh.StrokeWidth)
		p.dc.SetColor(colorOr(sh.Stroke, defaultTextColor))
		p.dc.Stroke()
	}
}

func (p *painter) qrCode(el Element) error {
	if p.url == "" {
		p.warn("qr element without verification url, drawing placeholder")
		p.placeholder(el)
		return nil
	}
	size := int(min(el.Width, el.Height))
	if el.QR != nil && el.QR.Size > 0 && size == 0 {
		size = el.QR.Size
	}
	img, err := p.qr.Image(p.url, size)
	if err != nil {
		return newError(KindInternal, "qr encoding failed", err)
	}
	p.dc.DrawImage(fit(img, size, size), int(el.X), int(el.Y))
	return nil
}

// fit scales img to exactly w x h pixels.
func fit(img image.Image, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}
