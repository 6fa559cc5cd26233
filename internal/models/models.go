package models

import (
	"strings"
	"time"
)

type TextMode string

const (
	TextModeAI     TextMode = "ai"
	TextModeCustom TextMode = "custom"
)

// CustomOccasionPrefix marks a free-form occasion captured from the user,
// so it is never confused with a catalog occasion.
const CustomOccasionPrefix = "✏️ "

const (
	OccasionBirthday   = "🎂 День рождения"
	OccasionWedding    = "💍 Свадьба"
	OccasionNewborn    = "👶 Рождение ребёнка"
	OccasionMarch8     = "🌸 8 марта"
	OccasionGraduation = "🎓 Завершение учёбы"
	OccasionCustom     = "✏️ Свой повод"
)

var Occasions = []string{
	OccasionBirthday,
	OccasionWedding,
	OccasionNewborn,
	OccasionMarch8,
	OccasionGraduation,
	OccasionCustom,
}

var Styles = []string{
	"Акварель",
	"Масло",
	"Неон",
	"Пастель",
	"Винтаж",
	"Минимализм",
}

var Fonts = []string{
	"Lobster",
	"Caveat",
	"Pacifico",
	"Comfortaa",
}

// FontFiles maps the button label to the TTF asset name.
var FontFiles = map[string]string{
	"Lobster":   "Lobster-Regular.ttf",
	"Caveat":    "Caveat-Regular.ttf",
	"Pacifico":  "Pacifico-Regular.ttf",
	"Comfortaa": "Comfortaa-Regular.ttf",
}

const (
	TextModeButtonAI     = "✨ Сгенерировать ИИ"
	TextModeButtonCustom = "✏️ Написать свой текст"
)

// OccasionPhrases maps a catalog occasion to the declined phrase substituted
// into prompts and greetings.
var OccasionPhrases = map[string]string{
	OccasionBirthday:   "день рождения",
	OccasionWedding:    "свадьбу",
	OccasionNewborn:    "рождение ребёнка",
	OccasionMarch8:     "8 марта",
	OccasionGraduation: "завершение учёбы",
}

// FallbackOccasionPhrase is used when an occasion has no catalog entry.
const FallbackOccasionPhrase = "праздник"

// StylePrompts holds per-style background prompt templates. The {occasion}
// placeholder is replaced with the occasion phrase. Each template insists on
// an empty center and forbids any text, since all lettering is composited
// locally.
var StylePrompts = map[string]string{
	"Акварель": "Акварельный фон для дизайна. Тематика: подарки на {occasion}. " +
		"По краям холста акварельные рисунки детализированные фигурки различных уместных подарков на {occasion}. " +
		"В самом центре большое абсолютно пустое пространство. " +
		"Без букв, без слов, без текста. Empty center, watercolor background, pure empty space, no text.",
	"Масло": "Классическая живопись маслом на холсте, фон для дизайна. Тематика: подарки на {occasion}. " +
		"По краям холста детализированные фигурки различных уместных подарков на {occasion}. Богатая текстура мазков, выразительные цвета. " +
		"В центре - большой однотонный пустой участок. " +
		"Строго без надписей и букв, без физических рамок для картин. " +
		"Oil painting background, blank empty center, no words, zero text, no picture frames, borderless.",
	"Неон": "Киберпанк неоновый фон. Тематика: подарки на {occasion}. " +
		"По краям холста детализированные фигурки различных уместных подарков на {occasion}. Светящиеся элементы по контуру фигурок на тёмном фоне. " +
		"В центре - абсолютно темная пустая зона без элементов. " +
		"Никаких неоновых вывесок, никаких букв и символов. Neon background, blank dark center, no text.",
	"Пастель": "Фон нарисованный сухой пастелью, мягкие мелки. Тематика: подарки на {occasion}. " +
		"По краям холста детализированные фигурки различных уместных подарков на {occasion}. Мягкие переходы цвета по краям изображения. " +
		"В центре полностью пустая светлая бумага для надписи. " +
		"Никакого текста. Pastel drawing background, blank paper center, no text, no words.",
	"Винтаж": "Старинный винтажный фон в стиле советских почтовых открыток. Тематика: подарки на {occasion}. " +
		"По краям холста детализированные фигурки различных уместных подарков на {occasion}. " +
		"В центре - пустое место с нейтральным однотонным фоном. " +
		"Без каллиграфии, без букв. Vintage retro background, empty blank center, no text, no letters.",
	"Минимализм": "Ультра-минималистичный фон. Тематика: подарки на {occasion}. " +
		"По краям холста детализированные фигурки различных уместных подарков на {occasion}. Очень мало деталей, много пустого пространства. " +
		"Только пара аккуратных тематических элементов по краям и лаконичные геометрические линии. " +
		"Строго без текста, чистый фон. Minimalist background, lots of negative space, no text.",
}

const DefaultStyle = "Минимализм"

// Package is one purchasable credit bundle.
type Package struct {
	Size            int
	PriceMinorUnits int
	Label           string
}

// Packages is the static process-wide catalog. Read-only.
var Packages = map[int]Package{
	3:  {Size: 3, PriceMinorUnits: 9000, Label: "Пакет: 3 открытки"},
	5:  {Size: 5, PriceMinorUnits: 15000, Label: "Пакет: 5 открыток"},
	10: {Size: 10, PriceMinorUnits: 30000, Label: "Пакет: 10 открыток"},
}

// PackageSizes lists catalog keys in display order.
var PackageSizes = []int{3, 5, 10}

// Session is the per-user funnel progress record. A field is meaningful only
// if every field before it is set; setting a field clears everything after it.
type Session struct {
	Occasion               string   `json:"occasion,omitempty"`
	Style                  string   `json:"style,omitempty"`
	Font                   string   `json:"font,omitempty"`
	TextMode               TextMode `json:"text_mode,omitempty"`
	Addressee              string   `json:"addressee,omitempty"`
	FreeText               string   `json:"free_text,omitempty"`
	AwaitingCustomOccasion bool     `json:"awaiting_custom_occasion,omitempty"`
}

// IsCustomOccasion reports whether the occasion was typed by the user rather
// than picked from the catalog.
func IsCustomOccasion(occasion string) bool {
	return strings.HasPrefix(occasion, CustomOccasionPrefix)
}

// PostcardRequest is a completed funnel payload, ready for generation.
type PostcardRequest struct {
	Occasion  string   `json:"occasion"`
	Style     string   `json:"style"`
	Font      string   `json:"font"`
	TextMode  TextMode `json:"text_mode"`
	Addressee string   `json:"addressee"`
	FreeText  string   `json:"free_text,omitempty"`
}

// Payment is a reporting record of one confirmed purchase.
type Payment struct {
	ID             int64
	UserID         int64
	PackageSize    int
	Provider       string
	ProviderCharge string
	Currency       string
	Amount         int
	Status         string
	RawPayload     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// GenerationLog is a reporting record of one successful postcard.
type GenerationLog struct {
	ID        int64
	UserID    int64
	Occasion  string
	Style     string
	Font      string
	TextMode  TextMode
	ImageURL  string
	CreatedAt time.Time
}
