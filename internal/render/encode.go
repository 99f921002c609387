package render

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/go-pdf/fpdf"
)

func encode(img image.Image, format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, newError(KindInternal, "jpeg encoding failed", err)
		}
	case FormatPDF:
		return encodePDF(img)
	default:
		if err := png.Encode(&buf, img); err != nil {
			return nil, newError(KindInternal, "png encoding failed", err)
		}
	}
	return buf.Bytes(), nil
}

// encodePDF embeds the raster as a single full-bleed page sized in points to
// the canvas dimensions.
func encodePDF(img image.Image) ([]byte, error) {
	var raster bytes.Buffer
	if err := png.Encode(&raster, img); err != nil {
		return nil, newError(KindInternal, "png encoding failed", err)
	}

	w := float64(img.Bounds().Dx())
	h := float64(img.Bounds().Dy())
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("artifact", opts, &raster)
	pdf.ImageOptions("artifact", 0, 0, w, h, false, opts, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, newError(KindInternal, "pdf encoding failed", err)
	}
	return out.Bytes(), nil
}
