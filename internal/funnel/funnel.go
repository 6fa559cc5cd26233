// Package funnel drives a user through the ordered postcard choices:
// occasion, style, font, text mode, addressee and (in custom mode) the
// greeting text. Progress lives in the durable store so a restart never
// loses it.
package funnel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mosaicbots/postcardbot/internal/models"
	"github.com/mosaicbots/postcardbot/internal/store"
)

type ResultKind int

const (
	// NeedMoreInput means the input was accepted and the next slot should be
	// prompted for.
	NeedMoreInput ResultKind = iota
	// ReadyToGenerate means every slot is filled; Payload carries the
	// completed request and the session has been cleared.
	ReadyToGenerate
	// Rejected means the input did not belong to the expected slot; the
	// session is unchanged and Prompt names the slot to re-ask for.
	Rejected
)

// Prompt identifies which slot the transport should ask for next.
type Prompt int

const (
	PromptOccasion Prompt = iota
	PromptCustomOccasion
	PromptStyle
	PromptFont
	PromptTextMode
	PromptAddressee
	PromptFreeText
)

type Result struct {
	Kind    ResultKind
	Prompt  Prompt
	Payload *models.PostcardRequest
	Reason  string
}

type Controller struct {
	kv store.KV
}

func NewController(kv store.KV) *Controller {
	return &Controller{kv: kv}
}

// Session loads the user's funnel progress, empty if none exists.
func (c *Controller) Session(ctx context.Context, userID int64) (models.Session, error) {
	raw, ok, err := c.kv.Get(ctx, store.StateKey(userID))
	if err != nil {
		return models.Session{}, err
	}
	if !ok {
		return models.Session{}, nil
	}
	var session models.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		// A corrupt record restarts the funnel rather than wedging the user.
		return models.Session{}, nil
	}
	return session, nil
}

// Reset clears the session so the funnel starts from the occasion slot.
func (c *Controller) Reset(ctx context.Context, userID int64) error {
	return c.kv.Del(ctx, store.StateKey(userID))
}

func (c *Controller) save(ctx context.Context, userID int64, session models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return c.kv.Set(ctx, store.StateKey(userID), string(data))
}

// Advance consumes one user input, commits it to the slot it satisfies and
// reports what to do next. Input recognized as a value for a slot later than
// the next expected one is rejected without touching the session.
func (c *Controller) Advance(ctx context.Context, userID int64, input string) (Result, error) {
	session, err := c.Session(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	trimmed := strings.TrimSpace(input)

	// A free-form occasion captures the next text verbatim, whatever it is.
	if session.AwaitingCustomOccasion {
		if trimmed == "" {
			return Result{Kind: Rejected, Prompt: PromptCustomOccasion, Reason: "empty occasion"}, nil
		}
		session = models.Session{Occasion: models.CustomOccasionPrefix + trimmed}
		if err := c.save(ctx, userID, session); err != nil {
			return Result{}, err
		}
		return Result{Kind: NeedMoreInput, Prompt: PromptStyle}, nil
	}

	switch {
	case input == models.OccasionCustom:
		if err := c.save(ctx, userID, models.Session{AwaitingCustomOccasion: true}); err != nil {
			return Result{}, err
		}
		return Result{Kind: NeedMoreInput, Prompt: PromptCustomOccasion}, nil

	case contains(models.Occasions, input):
		// Occasion is the first slot; picking one always restarts downstream.
		if err := c.save(ctx, userID, models.Session{Occasion: input}); err != nil {
			return Result{}, err
		}
		return Result{Kind: NeedMoreInput, Prompt: PromptStyle}, nil

	case contains(models.Styles, input):
		if session.Occasion == "" {
			return Result{Kind: Rejected, Prompt: PromptOccasion, Reason: "style before occasion"}, nil
		}
		session.Style = input
		session.Font = ""
		session.TextMode = ""
		session.Addressee = ""
		session.FreeText = ""
		if err := c.save(ctx, userID, session); err != nil {
			return Result{}, err
		}
		return Result{Kind: NeedMoreInput, Prompt: PromptFont}, nil

	case contains(models.Fonts, input):
		if session.Style == "" {
			return Result{Kind: Rejected, Prompt: c.expected(session), Reason: "font before style"}, nil
		}
		session.Font = input
		session.TextMode = ""
		session.Addressee = ""
		session.FreeText = ""
		if err := c.save(ctx, userID, session); err != nil {
			return Result{}, err
		}
		return Result{Kind: NeedMoreInput, Prompt: PromptTextMode}, nil

	case input == models.TextModeButtonAI || input == models.TextModeButtonCustom:
		if session.Font == "" {
			return Result{Kind: Rejected, Prompt: c.expected(session), Reason: "text mode before font"}, nil
		}
		if input == models.TextModeButtonAI {
			session.TextMode = models.TextModeAI
		} else {
			session.TextMode = models.TextModeCustom
		}
		session.Addressee = ""
		session.FreeText = ""
		if err := c.save(ctx, userID, session); err != nil {
			return Result{}, err
		}
		return Result{Kind: NeedMoreInput, Prompt: PromptAddressee}, nil
	}

	return c.advanceText(ctx, userID, session, trimmed)
}

// advanceText handles the free-text slots: addressee and, in custom mode,
// the greeting text.
func (c *Controller) advanceText(ctx context.Context, userID int64, session models.Session, trimmed string) (Result, error) {
	if session.Occasion == "" || session.Style == "" || session.Font == "" || session.TextMode == "" {
		return Result{Kind: Rejected, Prompt: c.expected(session), Reason: "choices incomplete"}, nil
	}
	if trimmed == "" {
		return Result{Kind: Rejected, Prompt: c.expected(session), Reason: "empty text"}, nil
	}

	if session.Addressee == "" {
		session.Addressee = trimmed
		session.FreeText = ""
		if session.TextMode == models.TextModeCustom {
			if err := c.save(ctx, userID, session); err != nil {
				return Result{}, err
			}
			return Result{Kind: NeedMoreInput, Prompt: PromptFreeText}, nil
		}
		return c.complete(ctx, userID, session)
	}

	if session.TextMode == models.TextModeCustom && session.FreeText == "" {
		session.FreeText = trimmed
		return c.complete(ctx, userID, session)
	}

	return Result{Kind: Rejected, Prompt: c.expected(session), Reason: "funnel already complete"}, nil
}

// complete clears the session before handing out the payload, so a retry
// cannot double-submit the same session.
func (c *Controller) complete(ctx context.Context, userID int64, session models.Session) (Result, error) {
	payload := &models.PostcardRequest{
		Occasion:  session.Occasion,
		Style:     session.Style,
		Font:      session.Font,
		TextMode:  session.TextMode,
		Addressee: session.Addressee,
		FreeText:  session.FreeText,
	}
	if err := c.Reset(ctx, userID); err != nil {
		return Result{}, err
	}
	return Result{Kind: ReadyToGenerate, Payload: payload}, nil
}

// expected names the next unfilled slot.
func (c *Controller) expected(session models.Session) Prompt {
	switch {
	case session.AwaitingCustomOccasion:
		return PromptCustomOccasion
	case session.Occasion == "":
		return PromptOccasion
	case session.Style == "":
		return PromptStyle
	case session.Font == "":
		return PromptFont
	case session.TextMode == "":
		return PromptTextMode
	case session.Addressee == "":
		return PromptAddressee
	default:
		return PromptFreeText
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
