package render

import (
	"fmt"
	"math"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
)

type fontStyle struct {
	bold   bool
	italic bool
}

// FontCache holds parsed font programs. Parsed fonts are safe to share between
// goroutines; faces are not, so every render builds its own faces from here.
type FontCache struct {
	once  sync.Once
	err   error
	fonts map[fontStyle]*truetype.Font
}

func NewFontCache() *FontCache {
	return &FontCache{}
}

func (c *FontCache) load() error {
	c.once.Do(func() {
		sources := map[fontStyle][]byte{
			{}:                         goregular.TTF,
			{bold: true}:               gobold.TTF,
			{italic: true}:             goitalic.TTF,
			{bold: true, italic: true}: gobolditalic.TTF,
		}
		c.fonts = make(map[fontStyle]*truetype.Font, len(sources))
		for style, ttf := range sources {
			f, err := truetype.Parse(ttf)
			if err != nil {
				c.err = fmt.Errorf("parse embedded font: %w", err)
				return
			}
			c.fonts[style] = f
		}
	})
	return c.err
}

// faceSet builds and memoizes faces for a single render.
type faceSet struct {
	cache *FontCache
	faces map[faceKey]font.Face
}

type faceKey struct {
	style fontStyle
	size  float64
}

func (c *FontCache) newFaceSet() (*faceSet, error) {
	if err := c.load(); err != nil {
		return nil, newError(KindInternal, "fonts unavailable", err)
	}
	return &faceSet{cache: c, faces: make(map[faceKey]font.Face)}, nil
}

func (fs *faceSet) face(bold, italic bool, size float64) font.Face {
	key := faceKey{style: fontStyle{bold: bold, italic: italic}, size: math.Round(size*4) / 4}
	if f, ok := fs.faces[key]; ok {
		return f
	}
	f := truetype.NewFace(fs.cache.fonts[key.style], &truetype.Options{
		Size:    key.size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	fs.faces[key] = f
	return f
}

func (fs *faceSet) close() {
	for _, f := range fs.faces {
		_ = f.Close()
	}
}
