package render

import (
	"fmt"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// OpenTypeSource builds faces from a parsed TTF/OTF font.
type OpenTypeSource struct {
	font *sfnt.Font
}

func NewOpenTypeSource(data []byte) (*OpenTypeSource, error) {
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &OpenTypeSource{font: parsed}, nil
}

func (s *OpenTypeSource) Face(points float64) (font.Face, error) {
	face, err := opentype.NewFace(s.font, &opentype.FaceOptions{
		Size:    points,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("new face: %w", err)
	}
	return face, nil
}

// BasicSource serves the built-in bitmap face at every requested size. It is
// the last-resort fallback when no TTF asset loaded.
type BasicSource struct{}

func (BasicSource) Face(float64) (font.Face, error) {
	return basicfont.Face7x13, nil
}

// Registry maps font display names to their sources. Lookups for unknown
// names fall back so rendering always has something to draw with.
type Registry struct {
	sources  map[string]FaceSource
	fallback FaceSource
}

func NewRegistry() *Registry {
	return &Registry{
		sources:  make(map[string]FaceSource),
		fallback: BasicSource{},
	}
}

func (r *Registry) Register(name string, src FaceSource) {
	r.sources[name] = src
	// The first real font registered becomes the fallback.
	if _, ok := r.fallback.(BasicSource); ok {
		r.fallback = src
	}
}

func (r *Registry) Source(name string) FaceSource {
	if src, ok := r.sources[name]; ok {
		return src
	}
	return r.fallback
}
