package qrcode

import (
	"bytes"
	"encoding/base64"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verifyURL = "https://example.test/verify/3f4e5d6c7b8a99887766554433221100ffeeddccbbaa00998877665544332211"

func TestEncode_SizeAndQuietZone(t *testing.T) {
	img, err := Encode(verifyURL, Options{Size: 300, Margin: 4})
	require.NoError(t, err)

	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())

	r, g, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, color.White, color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), 0xff})
}

func TestEncode_ClampsSize(t *testing.T) {
	img, err := Encode(verifyURL, Options{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, minSize, img.Bounds().Dx())
}

func TestEncode_RejectsEmptyContent(t *testing.T) {
	_, err := Encode("", Options{})
	assert.Error(t, err)
}

func TestDataURI_IsDecodablePNG(t *testing.T) {
	uri, err := NewEncoder(160, 2).DataURI(verifyURL)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 160, img.Bounds().Dx())
}
