package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mosaicbots/postcardbot/internal/models"
)

func occasionKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyRows(models.Occasions, 2)
}

func styleKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyRows(models.Styles, 2)
}

func fontKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyRows(models.Fonts, 2)
}

func textModeKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyRows([]string{models.TextModeButtonAI, models.TextModeButtonCustom}, 1)
}

// replyRows lays out button labels into rows of the given width.
func replyRows(labels []string, perRow int) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for i := 0; i < len(labels); i += perRow {
		end := i + perRow
		if end > len(labels) {
			end = len(labels)
		}
		var row []tgbotapi.KeyboardButton
		for _, label := range labels[i:end] {
			row = append(row, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, row)
	}
	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.ResizeKeyboard = true
	return keyboard
}

// fontPrompt builds the font-slot question: a preview photo carrying the
// keyboard when the asset is available, a plain message otherwise.
func fontPrompt(chatID int64, text string, preview []byte) tgbotapi.Chattable {
	if len(preview) == 0 {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyMarkup = fontKeyboard()
		return msg
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "fonts_preview.jpg",
		Bytes: preview,
	})
	photo.Caption = text
	photo.ReplyMarkup = fontKeyboard()
	return photo
}

// packagesKeyboard offers the credit bundles as inline buttons; the callback
// data carries the package size.
func packagesKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, size := range models.PackageSizes {
		pkg := models.Packages[size]
		label := fmt.Sprintf("%s — %d ₽", pkg.Label, pkg.PriceMinorUnits/100)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("buy:%d", size)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
