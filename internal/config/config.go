package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken                     string
	RedisAddr                    string
	RedisPassword                string
	RedisDB                      int
	MySQLDSN                     string
	ProTalkBaseURL               string
	ProTalkBotID                 string
	ProTalkToken                 string
	ProTalkFunctionID            string
	ImageTimeout                 time.Duration
	GreetingTimeout              time.Duration
	FreeCredits                  int
	ReferralBonusNewUser         int
	ReferralBonusInviter         int
	TelegramPaymentProviderToken string
	PaymentCurrency              string
	AdminChatID                  int64
	FontDir                      string
	CaptionLimit                 int
	AdminListenAddr              string
	AdminUsername                string
	AdminPassword                string
	S3Enabled                    bool
	S3Endpoint                   string
	S3Region                     string
	S3AccessKey                  string
	S3SecretKey                  string
	S3Bucket                     string
	S3PublicBaseURL              string
	S3UsePathStyle               bool
	S3Prefix                     string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		ProTalkBaseURL:       getEnv("PROTALK_BASE_URL", "https://api.pro-talk.ru"),
		ProTalkBotID:         getEnv("PROTALK_BOT_ID", "23141"),
		ProTalkFunctionID:    getEnv("PROTALK_FUNCTION_ID", "609"),
		ImageTimeout:         time.Second * time.Duration(getInt("IMAGE_TIMEOUT_SECONDS", 90)),
		GreetingTimeout:      time.Second * time.Duration(getInt("GREETING_TIMEOUT_SECONDS", 20)),
		FreeCredits:          getInt("FREE_CREDITS", 3),
		ReferralBonusNewUser: getInt("REFERRAL_BONUS_NEW_USER", 1),
		ReferralBonusInviter: getInt("REFERRAL_BONUS_INVITER", 1),
		PaymentCurrency:      getEnv("PAYMENT_CURRENCY", "RUB"),
		AdminChatID:          getInt64("ADMIN_CHAT_ID", 0),
		FontDir:              getEnv("FONT_DIR", "fonts"),
		CaptionLimit:         getInt("CAPTION_LIMIT", 1024),
		AdminListenAddr:      getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:        getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:        getEnv("ADMIN_PASSWORD", "change-me"),
		S3Enabled:            getBool("S3_ENABLED", false),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3Region:             os.Getenv("S3_REGION"),
		S3AccessKey:          os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:          os.Getenv("S3_SECRET_KEY"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:      os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:       getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:             getEnv("S3_PREFIX", "postcards"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.ProTalkToken = os.Getenv("PROTALK_TOKEN")
	cfg.TelegramPaymentProviderToken = os.Getenv("TELEGRAM_PAYMENT_PROVIDER_TOKEN")

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.ProTalkToken == "" {
		missing = append(missing, "PROTALK_TOKEN")
	}
	if cfg.TelegramPaymentProviderToken == "" {
		missing = append(missing, "TELEGRAM_PAYMENT_PROVIDER_TOKEN")
	}
	if cfg.S3Enabled {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3Bucket == "" {
			missing = append(missing, "S3_BUCKET")
		}
		if cfg.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely on process env is fine.
	return nil
}
