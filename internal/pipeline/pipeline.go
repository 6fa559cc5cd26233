// Package pipeline turns a completed funnel payload into a finished
// postcard: it fans out the image and greeting calls, composites the stamp
// text locally and settles the credit only on success.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/mosaicbots/postcardbot/internal/ledger"
	"github.com/mosaicbots/postcardbot/internal/models"
	"github.com/mosaicbots/postcardbot/internal/render"
)

// Generator is the external content-generation service.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
	GenerateGreeting(ctx context.Context, name, occasion string) (string, error)
}

// Archiver stores the rendered postcard and returns its public URL.
type Archiver interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// Reporter persists a reporting row for a finished postcard.
type Reporter interface {
	Log(ctx context.Context, entry *models.GenerationLog) error
}

type Pipeline struct {
	log             *slog.Logger
	ledger          *ledger.Ledger
	gen             Generator
	fonts           *render.Registry
	archive         Archiver // optional
	reports         Reporter // optional
	imageTimeout    time.Duration
	greetingTimeout time.Duration
	captionLimit    int
}

type Options struct {
	ImageTimeout    time.Duration
	GreetingTimeout time.Duration
	CaptionLimit    int
}

// Result is a finished postcard ready for delivery.
type Result struct {
	ImageJPEG   []byte
	Caption     string
	CreditsLeft int
}

func New(log *slog.Logger, credits *ledger.Ledger, gen Generator, fonts *render.Registry, archive Archiver, reports Reporter, opts Options) *Pipeline {
	if opts.ImageTimeout <= 0 {
		opts.ImageTimeout = 90 * time.Second
	}
	if opts.GreetingTimeout <= 0 {
		opts.GreetingTimeout = 20 * time.Second
	}
	if opts.CaptionLimit <= 0 {
		opts.CaptionLimit = 1024
	}
	return &Pipeline{
		log:             log,
		ledger:          credits,
		gen:             gen,
		fonts:           fonts,
		archive:         archive,
		reports:         reports,
		imageTimeout:    opts.ImageTimeout,
		greetingTimeout: opts.GreetingTimeout,
		captionLimit:    opts.CaptionLimit,
	}
}

const readyCaption = "Ваша открытка готова! ✨"

// Run produces the postcard for one completed request. The credit is debited
// only after the postcard has been fully rendered; any failure before that
// leaves the balance untouched.
func (p *Pipeline) Run(ctx context.Context, userID int64, req models.PostcardRequest) (*Result, error) {
	phrase := occasionPhrase(req.Occasion)
	prompt := imagePrompt(req.Style, phrase)

	// The greeting call runs alongside the image fetch. It never fails the
	// run: on any error the canned fallback is used instead.
	greetingCh := make(chan string, 1)
	if req.TextMode == models.TextModeAI {
		go func() {
			gctx, cancel := context.WithTimeout(ctx, p.greetingTimeout)
			defer cancel()
			text, err := p.gen.GenerateGreeting(gctx, req.Addressee, phrase)
			if err != nil || strings.TrimSpace(text) == "" {
				if err != nil {
					p.log.Warn("greeting generation failed, using fallback", "user", userID, "err", err)
				}
				text = fmt.Sprintf("С праздником, %s! 🎉", req.Addressee)
			}
			greetingCh <- text
		}()
	}

	ictx, cancel := context.WithTimeout(ctx, p.imageTimeout)
	defer cancel()
	raw, err := p.gen.GenerateImage(ictx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}

	var caption string
	if req.TextMode == models.TextModeAI {
		caption = <-greetingCh
	} else {
		caption = truncateRunes(req.FreeText, p.captionLimit)
		if caption == "" {
			caption = readyCaption
		}
	}

	background, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode generated image: %w", err)
	}

	stamp := stampText(req, phrase)
	composited, err := render.Stamp(background, stamp, p.fonts.Source(req.Font), stampColor(req.Occasion, phrase))
	if err != nil {
		return nil, fmt.Errorf("composite postcard: %w", err)
	}

	left, err := p.ledger.ConsumeOne(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("consume credit: %w", err)
	}
	if err := p.ledger.RecordGeneration(ctx); err != nil {
		p.log.Error("record generation counter", "user", userID, "err", err)
	}

	imageURL := ""
	if p.archive != nil {
		url, err := p.archive.Upload(ctx, composited, "image/jpeg")
		if err != nil {
			p.log.Error("archive postcard", "user", userID, "err", err)
		} else {
			imageURL = url
		}
	}
	if p.reports != nil {
		entry := &models.GenerationLog{
			UserID:   userID,
			Occasion: req.Occasion,
			Style:    req.Style,
			Font:     req.Font,
			TextMode: req.TextMode,
			ImageURL: imageURL,
		}
		if err := p.reports.Log(ctx, entry); err != nil {
			p.log.Error("write generation log", "user", userID, "err", err)
		}
	}

	return &Result{
		ImageJPEG:   composited,
		Caption:     caption,
		CreditsLeft: left,
	}, nil
}

// occasionPhrase normalizes an occasion to the phrase used in prompts and
// greetings. Free-form occasions are used verbatim; unknown catalog values
// fall back to a generic phrase rather than failing.
func occasionPhrase(occasion string) string {
	if models.IsCustomOccasion(occasion) {
		return strings.TrimSpace(strings.TrimPrefix(occasion, models.CustomOccasionPrefix))
	}
	if phrase, ok := models.OccasionPhrases[occasion]; ok {
		return phrase
	}
	return models.FallbackOccasionPhrase
}

func imagePrompt(style, phrase string) string {
	template, ok := models.StylePrompts[style]
	if !ok {
		template = models.StylePrompts[models.DefaultStyle]
	}
	return strings.ReplaceAll(template, "{occasion}", phrase)
}

// stampText is the short text drawn onto the image, distinct from the
// caption sent alongside it.
func stampText(req models.PostcardRequest, phrase string) string {
	if req.TextMode == models.TextModeCustom {
		return fmt.Sprintf("%s,\nпоздравляю!", req.Addressee)
	}
	switch phrase {
	case "день рождения":
		return fmt.Sprintf("С Днём Рождения,\n%s!", req.Addressee)
	case "свадьбу":
		return fmt.Sprintf("%s,\nс днём свадьбы!", req.Addressee)
	case "рождение ребёнка":
		return fmt.Sprintf("%s,\nс новорожденным!", req.Addressee)
	case "8 марта":
		return fmt.Sprintf("%s,\nс 8 Марта!", req.Addressee)
	case "завершение учёбы":
		return fmt.Sprintf("%s,\nс завершением учёбы!", req.Addressee)
	default:
		return fmt.Sprintf("%s,\nпоздравляю!", req.Addressee)
	}
}

var (
	colorDefault = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	colorTender  = color.RGBA{R: 219, G: 112, B: 147, A: 255}
	colorGold    = color.RGBA{R: 218, G: 165, B: 32, A: 255}
	colorCustom  = color.RGBA{R: 138, G: 86, B: 208, A: 255}
)

func stampColor(occasion, phrase string) color.RGBA {
	if models.IsCustomOccasion(occasion) {
		return colorCustom
	}
	switch phrase {
	case "рождение ребёнка", "8 марта":
		return colorTender
	case "свадьбу":
		return colorGold
	default:
		return colorDefault
	}
}

func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
