package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
)

// BasicSource ignores the requested size, so measurements are stable across
// the whole shrink loop. Good enough to pin the wrapping and loop behavior.
var basic = BasicSource{}

func TestFitShortTextKeepsInitialSize(t *testing.T) {
	layout, err := Fit("Привет", basic, DefaultFitOptions(824, 400))
	require.NoError(t, err)

	assert.Equal(t, float64(100), layout.Size)
	assert.Equal(t, []string{"Привет"}, layout.Lines)
	assert.LessOrEqual(t, layout.Width, 824)
}

func TestFitStopsAtFloorEvenWhenOverflowing(t *testing.T) {
	// A box no face can satisfy: the loop must still terminate, at MinSize.
	long := strings.Repeat("поздравляю ", 50)
	layout, err := Fit(long, basic, FitOptions{
		MaxWidth:    30,
		MaxHeight:   10,
		InitialSize: 100,
		MinSize:     40,
		Step:        5,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(40), layout.Size)
	assert.Greater(t, layout.Height, 10)
}

func TestFitRejectsNonPositiveStep(t *testing.T) {
	_, err := Fit("x", basic, FitOptions{MaxWidth: 100, MaxHeight: 100, InitialSize: 100, MinSize: 40})
	assert.Error(t, err)
}

func TestFitPreservesHardBreaks(t *testing.T) {
	layout, err := Fit("Мария,\nс днём рождения!", basic, DefaultFitOptions(824, 400))
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(layout.Lines), 2)
	assert.Equal(t, "Мария,", layout.Lines[0])
}

func TestFitIsIdempotentOnItsOwnOutput(t *testing.T) {
	text := "С днём рождения, дорогая Мария! Желаю счастья и здоровья."
	opts := FitOptions{MaxWidth: 200, MaxHeight: 400, InitialSize: 100, MinSize: 40, Step: 5}

	first, err := Fit(text, basic, opts)
	require.NoError(t, err)

	opts.InitialSize = first.Size
	second, err := Fit(strings.Join(first.Lines, "\n"), basic, opts)
	require.NoError(t, err)

	assert.Equal(t, first.Size, second.Size)
	assert.Equal(t, first.Lines, second.Lines)
}

func TestWrapNeverSplitsInsideWord(t *testing.T) {
	face, err := basic.Face(40)
	require.NoError(t, err)

	// Wider than the box, but still one unbroken line.
	word := strings.Repeat("а", 60)
	lines := wrap(word, face, 30)
	require.Len(t, lines, 1)
	assert.Equal(t, word, lines[0])
	assert.Greater(t, font.MeasureString(face, lines[0]).Ceil(), 30)
}

func TestWrapGreedyAccumulation(t *testing.T) {
	face, err := basic.Face(40)
	require.NoError(t, err)

	// Face7x13 advances 7px per glyph: "ab cd" measures 35px, so a 40px box
	// fits two words per line at most.
	lines := wrap("ab cd ef gh", face, 40)
	assert.Equal(t, []string{"ab cd", "ef gh"}, lines)
}
