// Package qrcode encodes verification URLs as QR images and PNG data URIs.
package qrcode

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"

	dErrors "certifier/pkg/domain-errors"
)

const (
	DefaultSize   = 200
	DefaultMargin = 2
	minSize       = 64
	maxSize       = 2048
)

// Options controls the rendered image. Margin is the quiet zone in modules.
type Options struct {
	Size   int
	Margin int
}

func (o Options) normalized() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	o.Size = min(max(o.Size, minSize), maxSize)
	if o.Margin < 0 {
		o.Margin = DefaultMargin
	}
	return o
}

// Encode returns a square QR image of opts.Size pixels with a white quiet zone.
func Encode(content string, opts Options) (image.Image, error) {
	if content == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "qr content is empty")
	}
	opts = opts.normalized()

	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to encode qr code")
	}

	modules := code.Bounds().Dx()
	total := modules + 2*opts.Margin
	modulePx := max(opts.Size/total, 1)
	inner := modulePx * modules

	scaled, err := barcode.Scale(code, inner, inner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to scale qr code")
	}

	size := max(opts.Size, inner)
	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	offset := (size - inner) / 2
	draw.Draw(canvas, image.Rect(offset, offset, offset+inner, offset+inner), scaled, image.Point{}, draw.Src)
	return canvas, nil
}

// DataURI encodes content and returns it as an inline PNG data URI.
func DataURI(content string, opts Options) (string, error) {
	img, err := Encode(content, opts)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnknown, "failed to encode qr png")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Encoder binds default options so callers only pass the content.
type Encoder struct {
	opts Options
}

func NewEncoder(size, margin int) *Encoder {
	return &Encoder{opts: Options{Size: size, Margin: margin}}
}

func (e *Encoder) DataURI(content string) (string, error) {
	return DataURI(content, e.opts)
}

func (e *Encoder) Image(content string, size int) (image.Image, error) {
	opts := e.opts
	if size > 0 {
		opts.Size = size
	}
	return Encode(content, opts)
}
