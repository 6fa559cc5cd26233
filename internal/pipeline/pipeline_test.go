package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicbots/postcardbot/internal/ledger"
	"github.com/mosaicbots/postcardbot/internal/models"
	"github.com/mosaicbots/postcardbot/internal/render"
	"github.com/mosaicbots/postcardbot/internal/store"
)

type fakeGen struct {
	image       []byte
	imageErr    error
	greeting    string
	greetingErr error
}

func (f *fakeGen) GenerateImage(context.Context, string) ([]byte, error) {
	return f.image, f.imageErr
}

func (f *fakeGen) GenerateGreeting(context.Context, string, string) (string, error) {
	return f.greeting, f.greetingErr
}

type captureArchive struct {
	url string
	err error
}

func (c *captureArchive) Upload(context.Context, []byte, string) (string, error) {
	return c.url, c.err
}

type captureReports struct {
	entries []*models.GenerationLog
}

func (c *captureReports) Log(_ context.Context, entry *models.GenerationLog) error {
	c.entries = append(c.entries, entry)
	return nil
}

func testBackground(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: 240, G: 240, B: 240, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testLedger() *ledger.Ledger {
	return ledger.New(store.NewMemoryStore(), slog.Default(), 3, 1, 1)
}

func aiRequest() models.PostcardRequest {
	return models.PostcardRequest{
		Occasion:  models.OccasionBirthday,
		Style:     "Неон",
		Font:      "Lobster",
		TextMode:  models.TextModeAI,
		Addressee: "Мария",
	}
}

func TestRunDebitsOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	credits := testLedger()
	gen := &fakeGen{image: testBackground(t), greeting: "С днём рождения, Мария!"}
	reports := &captureReports{}

	p := New(slog.Default(), credits, gen, render.NewRegistry(), nil, reports, Options{})

	result, err := p.Run(ctx, 42, aiRequest())
	require.NoError(t, err)

	assert.Equal(t, "С днём рождения, Мария!", result.Caption)
	assert.Equal(t, 2, result.CreditsLeft)
	assert.NotEmpty(t, result.ImageJPEG)

	// The delivered bytes are a decodable JPEG.
	_, format, err := image.Decode(bytes.NewReader(result.ImageJPEG))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	require.Len(t, reports.entries, 1)
	assert.Equal(t, int64(42), reports.entries[0].UserID)
	assert.Equal(t, models.TextModeAI, reports.entries[0].TextMode)
	assert.Empty(t, reports.entries[0].ImageURL)
}

func TestRunImageFailureLeavesBalanceUntouched(t *testing.T) {
	ctx := context.Background()
	credits := testLedger()
	gen := &fakeGen{imageErr: errors.New("upstream down")}

	p := New(slog.Default(), credits, gen, render.NewRegistry(), nil, nil, Options{})

	_, err := p.Run(ctx, 42, aiRequest())
	require.Error(t, err)

	balance, err := credits.Balance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 3, balance)
}

func TestRunGreetingFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGen{image: testBackground(t), greetingErr: errors.New("llm down")}

	p := New(slog.Default(), testLedger(), gen, render.NewRegistry(), nil, nil, Options{})

	result, err := p.Run(ctx, 42, aiRequest())
	require.NoError(t, err)
	assert.Equal(t, "С праздником, Мария! 🎉", result.Caption)
}

func TestRunCustomTextSkipsGreetingAndTruncates(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGen{image: testBackground(t), greetingErr: errors.New("must not be called")}

	p := New(slog.Default(), testLedger(), gen, render.NewRegistry(), nil, nil, Options{CaptionLimit: 10})

	req := aiRequest()
	req.TextMode = models.TextModeCustom
	req.FreeText = strings.Repeat("поздравляю ", 5)

	result, err := p.Run(ctx, 42, req)
	require.NoError(t, err)
	assert.Equal(t, 10, len([]rune(result.Caption)))
}

func TestRunArchivesAndReportsURL(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGen{image: testBackground(t), greeting: "привет"}
	archive := &captureArchive{url: "https://cdn.example.com/p/1.jpg"}
	reports := &captureReports{}

	p := New(slog.Default(), testLedger(), gen, render.NewRegistry(), archive, reports, Options{})

	_, err := p.Run(ctx, 42, aiRequest())
	require.NoError(t, err)

	require.Len(t, reports.entries, 1)
	assert.Equal(t, "https://cdn.example.com/p/1.jpg", reports.entries[0].ImageURL)
}

func TestRunArchiveFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGen{image: testBackground(t), greeting: "привет"}
	archive := &captureArchive{err: errors.New("bucket gone")}
	reports := &captureReports{}

	p := New(slog.Default(), testLedger(), gen, render.NewRegistry(), archive, reports, Options{})

	result, err := p.Run(ctx, 42, aiRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, result.CreditsLeft)

	require.Len(t, reports.entries, 1)
	assert.Empty(t, reports.entries[0].ImageURL)
}

func TestOccasionPhrase(t *testing.T) {
	assert.Equal(t, "день рождения", occasionPhrase(models.OccasionBirthday))
	assert.Equal(t, "Новоселье", occasionPhrase(models.CustomOccasionPrefix+"Новоселье"))
	assert.Equal(t, models.FallbackOccasionPhrase, occasionPhrase("что-то неизвестное"))
}

func TestImagePromptSubstitutesOccasion(t *testing.T) {
	prompt := imagePrompt("Неон", "свадьбу")
	assert.Contains(t, prompt, "свадьбу")
	assert.NotContains(t, prompt, "{occasion}")

	// Unknown style falls back to the default template.
	prompt = imagePrompt("Гравюра", "свадьбу")
	assert.Contains(t, prompt, "свадьбу")
}

func TestStampTextPerOccasion(t *testing.T) {
	req := aiRequest()
	assert.Equal(t, "С Днём Рождения,\nМария!", stampText(req, "день рождения"))
	assert.Equal(t, "Мария,\nс 8 Марта!", stampText(req, "8 марта"))
	assert.Equal(t, "Мария,\nпоздравляю!", stampText(req, "юбилей фирмы"))

	req.TextMode = models.TextModeCustom
	assert.Equal(t, "Мария,\nпоздравляю!", stampText(req, "день рождения"))
}

func TestStampColorPerOccasion(t *testing.T) {
	assert.Equal(t, colorTender, stampColor(models.OccasionMarch8, "8 марта"))
	assert.Equal(t, colorGold, stampColor(models.OccasionWedding, "свадьбу"))
	assert.Equal(t, colorDefault, stampColor(models.OccasionBirthday, "день рождения"))
	assert.Equal(t, colorCustom, stampColor(models.CustomOccasionPrefix+"Новоселье", "Новоселье"))
}
