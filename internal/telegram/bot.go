// Package telegram is the transport layer: it maps Telegram updates onto the
// funnel, the payment coordinator and the generation pipeline, and renders
// their outcomes back as messages and keyboards.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mosaicbots/postcardbot/internal/config"
	"github.com/mosaicbots/postcardbot/internal/funnel"
	"github.com/mosaicbots/postcardbot/internal/ledger"
	"github.com/mosaicbots/postcardbot/internal/payment"
	"github.com/mosaicbots/postcardbot/internal/pipeline"
)

const referralPrefix = "ref_"

type Bot struct {
	cfg         config.Config
	api         *tgbotapi.BotAPI
	log         *slog.Logger
	flow        *funnel.Controller
	credits     *ledger.Ledger
	cards       *pipeline.Pipeline
	payments    *payment.Coordinator
	fontPreview []byte // optional preview image shown with the font keyboard
}

func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, flow *funnel.Controller, credits *ledger.Ledger, cards *pipeline.Pipeline, payments *payment.Coordinator, fontPreview []byte) *Bot {
	return &Bot{
		cfg:         cfg,
		api:         api,
		log:         log,
		flow:        flow,
		credits:     credits,
		cards:       cards,
		payments:    payments,
		fontPreview: fontPreview,
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			} else if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
			} else if update.PreCheckoutQuery != nil {
				if err := b.payments.HandlePreCheckout(b.api, update.PreCheckoutQuery); err != nil {
					b.log.Error("pre-checkout failed", "err", err)
				}
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if msg.SuccessfulPayment != nil {
		b.handleSuccessfulPayment(ctx, msg)
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if msg.Text == "" {
		b.sendText(msg.Chat.ID, "Я понимаю только текст и кнопки. Выберите повод:", occasionKeyboard())
		return
	}
	b.handleFunnelInput(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "balance":
		b.handleBalance(ctx, msg)
	case "reset":
		b.handleReset(ctx, msg)
	default:
		b.sendText(msg.Chat.ID, "Неизвестная команда. Нажмите /start, чтобы начать.", nil)
	}
}

// handleStart registers the user, applies a referral deep link if present and
// restarts the funnel.
func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	var referrerID int64
	if arg := strings.TrimSpace(msg.CommandArguments()); strings.HasPrefix(arg, referralPrefix) {
		if id, err := strconv.ParseInt(strings.TrimPrefix(arg, referralPrefix), 10, 64); err == nil {
			referrerID = id
		}
	}

	isNew, err := b.credits.RegisterContact(ctx, userID, referrerID)
	if err != nil {
		b.log.Error("register contact", "user", userID, "err", err)
		b.sendText(msg.Chat.ID, "Что-то пошло не так. Попробуйте ещё раз чуть позже.", nil)
		return
	}
	if err := b.flow.Reset(ctx, userID); err != nil {
		b.log.Error("reset session", "user", userID, "err", err)
	}

	balance, err := b.credits.Balance(ctx, userID)
	if err != nil {
		b.log.Error("read balance", "user", userID, "err", err)
		b.sendText(msg.Chat.ID, "Что-то пошло не так. Попробуйте ещё раз чуть позже.", nil)
		return
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}
	greeting := fmt.Sprintf(
		"Привет, %s! 👋\n\nЯ создаю поздравительные открытки с помощью ИИ.\nУ вас %d кредитов (1 кредит = 1 открытка).\n\nПригласите друга по ссылке и получите бонусный кредит:\nhttps://t.me/%s?start=%s%d\n\nВыберите повод:",
		name, balance, b.api.Self.UserName, referralPrefix, userID,
	)
	if isNew && referrerID != 0 {
		greeting = "Вы пришли по приглашению — бонусный кредит уже на счету! 🎁\n\n" + greeting
	}
	b.sendText(msg.Chat.ID, greeting, occasionKeyboard())
}

func (b *Bot) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	balance, err := b.credits.Balance(ctx, msg.From.ID)
	if err != nil {
		b.log.Error("read balance", "user", msg.From.ID, "err", err)
		b.sendText(msg.Chat.ID, "Что-то пошло не так. Попробуйте ещё раз чуть позже.", nil)
		return
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf("Ваш баланс: %d кредитов.", balance), nil)
}

// handleReset zeroes another user's credits. Admin only.
func (b *Bot) handleReset(ctx context.Context, msg *tgbotapi.Message) {
	if b.cfg.AdminChatID == 0 || msg.From.ID != b.cfg.AdminChatID {
		b.sendText(msg.Chat.ID, "Неизвестная команда. Нажмите /start, чтобы начать.", nil)
		return
	}
	target, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil {
		b.sendText(msg.Chat.ID, "Формат: /reset <user_id>", nil)
		return
	}
	if err := b.credits.ResetCredits(ctx, target); err != nil {
		b.log.Error("reset credits", "target", target, "err", err)
		b.sendText(msg.Chat.ID, "Не удалось сбросить кредиты.", nil)
		return
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf("Кредиты пользователя %d сброшены.", target), nil)
}

func (b *Bot) handleFunnelInput(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	result, err := b.flow.Advance(ctx, userID, msg.Text)
	if err != nil {
		b.log.Error("advance funnel", "user", userID, "err", err)
		b.sendText(msg.Chat.ID, "Что-то пошло не так. Попробуйте ещё раз чуть позже.", nil)
		return
	}

	switch result.Kind {
	case funnel.NeedMoreInput:
		b.askFor(msg.Chat.ID, result.Prompt, "")
	case funnel.Rejected:
		b.askFor(msg.Chat.ID, result.Prompt, "Давайте по порядку. ")
	case funnel.ReadyToGenerate:
		b.generate(ctx, msg.Chat.ID, userID, result)
	}
}

// askFor sends the question for a funnel slot, with the matching keyboard.
func (b *Bot) askFor(chatID int64, prompt funnel.Prompt, prefix string) {
	switch prompt {
	case funnel.PromptOccasion:
		b.sendText(chatID, prefix+"Выберите повод для открытки:", occasionKeyboard())
	case funnel.PromptCustomOccasion:
		b.sendText(chatID, prefix+"Напишите свой повод одним сообщением:", tgbotapi.NewRemoveKeyboard(false))
	case funnel.PromptStyle:
		b.sendText(chatID, prefix+"Выберите стиль открытки:", styleKeyboard())
	case funnel.PromptFont:
		b.sendFontPrompt(chatID, prefix)
	case funnel.PromptTextMode:
		b.sendText(chatID, prefix+"Как составить поздравление?", textModeKeyboard())
	case funnel.PromptAddressee:
		b.sendText(chatID, prefix+"Кому адресована открытка? Напишите имя:", tgbotapi.NewRemoveKeyboard(false))
	case funnel.PromptFreeText:
		b.sendText(chatID, prefix+"Напишите текст поздравления:", nil)
	}
}

// sendFontPrompt shows the font choices, with the preview image when it is
// available. A failed photo send degrades to the plain message.
func (b *Bot) sendFontPrompt(chatID int64, prefix string) {
	text := prefix + "Выберите шрифт надписи:"
	prompt := fontPrompt(chatID, text, b.fontPreview)
	if _, err := b.api.Send(prompt); err != nil {
		b.log.Error("send font prompt", "err", err)
		if _, isPhoto := prompt.(tgbotapi.PhotoConfig); isPhoto {
			b.sendText(chatID, text, fontKeyboard())
		}
	}
}

// generate fulfils a completed funnel, or defers it behind a purchase when
// the balance is empty.
func (b *Bot) generate(ctx context.Context, chatID, userID int64, result funnel.Result) {
	balance, err := b.credits.Balance(ctx, userID)
	if err != nil {
		b.log.Error("read balance", "user", userID, "err", err)
		b.sendText(chatID, "Что-то пошло не так. Попробуйте ещё раз чуть позже.", nil)
		return
	}

	if balance <= 0 {
		if err := b.credits.SavePending(ctx, userID, *result.Payload); err != nil {
			b.log.Error("save pending request", "user", userID, "err", err)
			b.sendText(chatID, "Что-то пошло не так. Попробуйте ещё раз чуть позже.", nil)
			return
		}
		msg := tgbotapi.NewMessage(chatID, "Кредиты закончились 😔\nВыберите пакет — после оплаты открытка будет создана автоматически:")
		msg.ReplyMarkup = packagesKeyboard()
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send packages", "err", err)
		}
		return
	}

	b.sendText(chatID, "Создаю вашу открытку... 🎨 Это займёт около минуты.", tgbotapi.NewRemoveKeyboard(false))

	run, err := b.cards.Run(ctx, userID, *result.Payload)
	if err != nil {
		b.log.Error("generate postcard", "user", userID, "err", err)
		b.sendText(chatID, "Не удалось создать открытку. Кредит не списан — попробуйте ещё раз.", occasionKeyboard())
		return
	}
	b.deliver(chatID, run)
}

// deliver sends the finished postcard and the post-delivery balance line.
func (b *Bot) deliver(chatID int64, run *pipeline.Result) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "postcard.jpg",
		Bytes: run.ImageJPEG,
	})
	photo.Caption = run.Caption
	if _, err := b.api.Send(photo); err != nil {
		b.log.Error("send postcard", "err", err)
		return
	}
	text := fmt.Sprintf("✅ Списан 1 кредит. Осталось: %d.\n\nСоздадим ещё одну? Выберите повод:", run.CreditsLeft)
	b.sendText(chatID, text, occasionKeyboard())
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	if size, ok := strings.CutPrefix(cb.Data, "buy:"); ok {
		n, err := strconv.Atoi(size)
		if err != nil {
			b.ack(cb.ID, "Неизвестный выбор")
			return
		}
		b.handleBuy(ctx, cb, chatID, n)
		return
	}
	b.ack(cb.ID, "Неизвестный выбор")
}

func (b *Bot) handleBuy(ctx context.Context, cb *tgbotapi.CallbackQuery, chatID int64, size int) {
	invoice, err := b.payments.PrepareInvoice(ctx, cb.From.ID, chatID, size)
	switch {
	case errors.Is(err, payment.ErrNoPending):
		b.ack(cb.ID, "")
		b.sendText(chatID, "Этот выбор устарел. Сначала соберите открытку заново:", occasionKeyboard())
		return
	case errors.Is(err, payment.ErrUnknownPackage):
		b.ack(cb.ID, "Неизвестный пакет")
		return
	case err != nil:
		b.log.Error("prepare invoice", "user", cb.From.ID, "err", err)
		b.ack(cb.ID, "Попробуйте позже")
		return
	}

	b.ack(cb.ID, "")
	if _, err := b.api.Send(invoice); err != nil {
		b.log.Error("send invoice", "user", cb.From.ID, "err", err)
		b.sendText(chatID, "Не удалось отправить счёт. Попробуйте позже.", nil)
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	outcome, err := b.payments.HandleSuccessfulPayment(ctx, userID, msg.SuccessfulPayment)
	if err != nil {
		if errors.Is(err, payment.ErrPayloadMismatch) {
			b.sendText(msg.Chat.ID, "Платёж получен, но мы не смогли сопоставить его с пакетом. Напишите в поддержку — разберёмся и начислим кредиты вручную.", nil)
			return
		}
		b.log.Error("process payment", "user", userID, "err", err)
		b.sendText(msg.Chat.ID, "Платёж получен, но при зачислении возникла ошибка. Напишите в поддержку.", nil)
		return
	}

	b.sendText(msg.Chat.ID, fmt.Sprintf("Оплата получена! Начислено %d кредитов. Баланс: %d. 🎉", outcome.Package.Size, outcome.NewBalance), nil)

	switch {
	case outcome.Result != nil:
		b.deliver(msg.Chat.ID, outcome.Result)
	case outcome.RunErr != nil:
		b.log.Error("resume pending request", "user", userID, "err", outcome.RunErr)
		b.sendText(msg.Chat.ID, "Не удалось создать отложенную открытку. Кредит не списан — соберите её заново:", occasionKeyboard())
	}
}

func (b *Bot) ack(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}

// sendText sends a plain message, optionally replacing the reply keyboard.
func (b *Bot) sendText(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "err", err)
	}
}
