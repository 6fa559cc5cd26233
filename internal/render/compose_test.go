package render

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStampProducesJPEGOfSameSize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			src.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	data, err := Stamp(src, "Мария,\nпоздравляю!", BasicSource{}, color.RGBA{R: 200, G: 30, B: 30, A: 255})
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), decoded.Bounds())
}

func TestStampDrawsPixels(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			src.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	data, err := Stamp(src, "Привет", BasicSource{}, color.RGBA{R: 200, G: 30, B: 30, A: 255})
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	// At least one pixel must differ from the plain white background.
	changed := false
	bounds := decoded.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y && !changed; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := decoded.At(x, y).RGBA()
			if r>>8 < 250 || g>>8 < 250 || b>>8 < 250 {
				changed = true
				break
			}
		}
	}
	assert.True(t, changed, "stamp left the background untouched")
}

func TestRegistryFallback(t *testing.T) {
	r := NewRegistry()

	// With nothing registered the basic face serves every lookup.
	_, err := r.Source("Lobster").Face(40)
	require.NoError(t, err)

	r.Register("Caveat", BasicSource{})
	assert.NotNil(t, r.Source("Caveat"))
	assert.NotNil(t, r.Source("никогда-не-регистрировали"))
}
