package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mosaicbots/postcardbot/internal/admin"
	"github.com/mosaicbots/postcardbot/internal/config"
	"github.com/mosaicbots/postcardbot/internal/database"
	"github.com/mosaicbots/postcardbot/internal/funnel"
	"github.com/mosaicbots/postcardbot/internal/ledger"
	"github.com/mosaicbots/postcardbot/internal/models"
	"github.com/mosaicbots/postcardbot/internal/payment"
	"github.com/mosaicbots/postcardbot/internal/pipeline"
	"github.com/mosaicbots/postcardbot/internal/protalk"
	"github.com/mosaicbots/postcardbot/internal/render"
	"github.com/mosaicbots/postcardbot/internal/repository"
	"github.com/mosaicbots/postcardbot/internal/storage"
	"github.com/mosaicbots/postcardbot/internal/store"
	"github.com/mosaicbots/postcardbot/internal/telegram"
	"github.com/mosaicbots/postcardbot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := store.NewRedisStore(ctx, store.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("redis connect: %v", err)
	}

	db, err := database.Connect(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	gen := protalk.NewClient(protalk.Config{
		BaseURL:    cfg.ProTalkBaseURL,
		BotID:      cfg.ProTalkBotID,
		BotToken:   cfg.ProTalkToken,
		FunctionID: cfg.ProTalkFunctionID,
	}, logr)

	fonts := loadFonts(cfg.FontDir, logr)

	credits := ledger.New(kv, logr, cfg.FreeCredits, cfg.ReferralBonusNewUser, cfg.ReferralBonusInviter)
	flow := funnel.NewController(kv)

	paymentRepo := repository.NewPaymentRepository(db)
	generationRepo := repository.NewGenerationRepository(db)

	var archive pipeline.Archiver
	if cfg.S3Enabled {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		archive = uploader
	}

	cards := pipeline.New(logr, credits, gen, fonts, archive, generationRepo, pipeline.Options{
		ImageTimeout:    cfg.ImageTimeout,
		GreetingTimeout: cfg.GreetingTimeout,
		CaptionLimit:    cfg.CaptionLimit,
	})

	payments := payment.NewCoordinator(logr, credits, cards, paymentRepo, cfg.TelegramPaymentProviderToken, cfg.PaymentCurrency)

	fontPreview, err := os.ReadFile(filepath.Join(cfg.FontDir, "fonts_preview.jpg"))
	if err != nil {
		logr.Warn("font preview missing, font prompt will be text-only", "err", err)
		fontPreview = nil
	}

	bot := telegram.NewBot(cfg, botAPI, logr, flow, credits, cards, payments, fontPreview)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, credits, botAPI)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}

// loadFonts reads the TTF assets into the registry. A missing file skips that
// font; lettering then falls back to the first font that did load.
func loadFonts(dir string, logr *slog.Logger) *render.Registry {
	registry := render.NewRegistry()
	for name, file := range models.FontFiles {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			logr.Warn("font asset missing", "font", name, "file", file, "err", err)
			continue
		}
		source, err := render.NewOpenTypeSource(data)
		if err != nil {
			logr.Warn("font asset unreadable", "font", name, "file", file, "err", err)
			continue
		}
		registry.Register(name, source)
	}
	return registry
}
