// Package render fits text into a bounding box and composites it onto a
// postcard background. Everything here is deterministic and does no I/O.
package render

import (
	"fmt"
	"strings"

	"golang.org/x/image/font"
)

// FaceSource produces a measurable font face for a given point size.
type FaceSource interface {
	Face(points float64) (font.Face, error)
}

type FitOptions struct {
	MaxWidth    int
	MaxHeight   int
	InitialSize float64
	MinSize     float64
	Step        float64
}

// DefaultFitOptions matches the production shrink loop: start big, never go
// below the floor.
func DefaultFitOptions(maxWidth, maxHeight int) FitOptions {
	return FitOptions{
		MaxWidth:    maxWidth,
		MaxHeight:   maxHeight,
		InitialSize: 100,
		MinSize:     40,
		Step:        5,
	}
}

// Layout is a wrapped text block at a concrete font size.
type Layout struct {
	Size       float64
	Lines      []string
	Width      int
	Height     int
	LineHeight int
	Face       font.Face
}

// Fit finds the largest font size at or below InitialSize whose greedy
// word-wrap of text fits within MaxWidth x MaxHeight. Once the size floor is
// reached the layout is returned as-is, overflow and all; the loop runs at
// most (InitialSize-MinSize)/Step + 1 times. Feeding the joined lines back
// through at the returned size reproduces the same layout.
func Fit(text string, src FaceSource, opts FitOptions) (Layout, error) {
	if opts.Step <= 0 {
		return Layout{}, fmt.Errorf("fit: step must be positive")
	}
	if opts.MinSize > opts.InitialSize {
		opts.MinSize = opts.InitialSize
	}

	size := opts.InitialSize
	for {
		face, err := src.Face(size)
		if err != nil {
			return Layout{}, fmt.Errorf("fit: load face at %g: %w", size, err)
		}

		lines := wrap(text, face, opts.MaxWidth)
		lineHeight := face.Metrics().Height.Ceil()
		layout := Layout{
			Size:       size,
			Lines:      lines,
			Width:      blockWidth(lines, face),
			Height:     lineHeight * len(lines),
			LineHeight: lineHeight,
			Face:       face,
		}

		if (layout.Width <= opts.MaxWidth && layout.Height <= opts.MaxHeight) || size <= opts.MinSize {
			return layout, nil
		}

		size -= opts.Step
		if size < opts.MinSize {
			size = opts.MinSize
		}
	}
}

// wrap breaks text at whitespace so no line measures wider than maxWidth.
// Explicit newlines are preserved as hard breaks. A single word wider than
// maxWidth stays on its own line; wrapping never splits inside a word.
func wrap(text string, face font.Face, maxWidth int) []string {
	var lines []string
	for _, hard := range strings.Split(text, "\n") {
		words := strings.Fields(hard)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			candidate := current + " " + word
			if font.MeasureString(face, candidate).Ceil() <= maxWidth {
				current = candidate
				continue
			}
			lines = append(lines, current)
			current = word
		}
		lines = append(lines, current)
	}
	return lines
}

func blockWidth(lines []string, face font.Face) int {
	width := 0
	for _, line := range lines {
		if w := font.MeasureString(face, line).Ceil(); w > width {
			width = w
		}
	}
	return width
}
