package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

var shadowColor = color.RGBA{R: 50, G: 50, B: 50, A: 255}

const (
	// The stamp text may occupy at most this fraction of each image dimension.
	fitFraction = 0.8

	shadowOffsetPx = 2
	jpegQuality    = 90
)

// Stamp fits text onto the image, draws it centered with a drop shadow and
// returns the composited JPEG.
func Stamp(src image.Image, text string, faces FaceSource, textColor color.RGBA) ([]byte, error) {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	opts := DefaultFitOptions(int(float64(width)*fitFraction), int(float64(height)*fitFraction))
	layout, err := Fit(text, faces, opts)
	if err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	drawBlock(canvas, layout, shadowOffsetPx, shadowOffsetPx, shadowColor)
	drawBlock(canvas, layout, 0, 0, textColor)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// drawBlock renders the wrapped lines centered on the canvas, each line
// centered within the block.
func drawBlock(canvas *image.RGBA, layout Layout, offsetX, offsetY int, col color.RGBA) {
	bounds := canvas.Bounds()
	ascent := layout.Face.Metrics().Ascent.Ceil()
	top := bounds.Min.Y + (bounds.Dy()-layout.Height)/2

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(col),
		Face: layout.Face,
	}

	for i, line := range layout.Lines {
		lineWidth := font.MeasureString(layout.Face, line).Ceil()
		x := bounds.Min.X + (bounds.Dx()-lineWidth)/2 + offsetX
		y := top + i*layout.LineHeight + ascent + offsetY
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(line)
	}
}
