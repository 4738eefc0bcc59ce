package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"hlsgrab/models"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"go.uber.org/zap"
)

var Env = GetDefaultConfig()

func LoadEnv() error {
	if value := os.Getenv("DB_HOST"); value != "" {
		Env.DBHost = value
	}
	if value := os.Getenv("DB_PORT"); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("DB_PORT env is not a valid integer: %w", err)
		}
		Env.DBPort = port
	}
	if value := os.Getenv("DB_NAME"); value != "" {
		Env.DBName = value
	}
	if value := os.Getenv("DB_USER"); value != "" {
		Env.DBUser = value
	}
	if value := os.Getenv("DB_PASSWORD"); value != "" {
		Env.DBPassword = value
	}
	if value := os.Getenv("BOT_TOKEN"); value != "" {
		Env.BotToken = value
	}
	if value := os.Getenv("BOT_API_URL"); value != "" {
		Env.BotAPIURL = value
	}
	if value := os.Getenv("NOTIFY_CHAT_ID"); value != "" {
		chatID, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("NOTIFY_CHAT_ID env is not a valid integer: %w", err)
		}
		Env.NotifyChatID = chatID
	}
	if value := os.Getenv("DOWNLOADS_DIR"); value != "" {
		Env.DownloadsDirectory = value
	} else {
		zap.S().Debugf("DOWNLOADS_DIR is not set, using default %s", Env.DownloadsDirectory)
	}
	if value := os.Getenv("HTTP_PROXY"); value != "" {
		Env.HTTPProxy = value
	}
	if value := os.Getenv("HTTPS_PROXY"); value != "" {
		Env.HTTPSProxy = value
	}
	if value := os.Getenv("NO_PROXY"); value != "" {
		Env.NoProxy = value
	}
	if value := os.Getenv("HTTP3"); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("HTTP3 env is not a valid boolean: %w", err)
		}
		Env.HTTP3 = enabled
	}

	if err := loadInt("CONCURRENCY", &Env.Concurrency); err != nil {
		return err
	}
	if err := loadInt("RETRY_ATTEMPTS", &Env.RetryAttempts); err != nil {
		return err
	}
	if err := loadInt("BUFFER_SIZE", &Env.BufferSize); err != nil {
		return err
	}
	if err := loadDuration("RETRY_DELAY", &Env.RetryDelay); err != nil {
		return err
	}
	if err := loadDuration("RETRY_MAX_DELAY", &Env.MaxRetryDelay); err != nil {
		return err
	}
	if err := loadDuration("HTTP_TIMEOUT", &Env.HTTPTimeout); err != nil {
		return err
	}
	if err := loadDuration("RUN_TIMEOUT", &Env.RunTimeout); err != nil {
		return err
	}
	if err := loadRate("WARN_FAILURE_RATE", &Env.WarnFailureRate); err != nil {
		return err
	}
	if err := loadRate("SEVERE_FAILURE_RATE", &Env.SevereFailureRate); err != nil {
		return err
	}
	if Env.SevereFailureRate < Env.WarnFailureRate {
		zap.S().Warnf(
			"SEVERE_FAILURE_RATE (%.2f) is below WARN_FAILURE_RATE (%.2f)",
			Env.SevereFailureRate, Env.WarnFailureRate,
		)
	}

	if value := os.Getenv("USER_AGENT"); value != "" {
		Env.UserAgent = value
	}
	if value := os.Getenv("REFERER"); value != "" {
		Env.Referer = value
	}
	if value := os.Getenv("COOKIES_FILE"); value != "" {
		Env.CookiesFile = value
	}
	if value := os.Getenv("HEADERS_FILE"); value != "" {
		Env.HeadersFile = value
	}
	if err := loadInt("METRICS_PORT", &Env.MetricsPort); err != nil {
		return err
	}
	if value := os.Getenv("LOG_LEVEL"); value != "" {
		Env.LogLevel = value
	}
	return nil
}

func loadInt(name string, target *int) error {
	value := os.Getenv(name)
	if value == "" {
		return nil
	}
	number, err := strconv.Atoi(value)
	if err != nil || number < 0 {
		return fmt.Errorf("%s env is not a valid non-negative integer: %q", name, value)
	}
	*target = number
	return nil
}

func loadDuration(name string, target *time.Duration) error {
	value := os.Getenv(name)
	if value == "" {
		return nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s env is not a valid duration: %w", name, err)
	}
	*target = duration
	return nil
}

func loadRate(name string, target *float64) error {
	value := os.Getenv(name)
	if value == "" {
		return nil
	}
	rate, err := strconv.ParseFloat(value, 64)
	if err != nil || rate < 0 || rate > 1 {
		return fmt.Errorf("%s env must be a number between 0 and 1: %q", name, value)
	}
	*target = rate
	return nil
}

func GetDefaultConfig() *models.EnvConfig {
	defaults := models.DefaultDownloadConfig()
	return &models.EnvConfig{
		DBPort: 3306,
		DBName: "hlsgrab",
		DBUser: "hlsgrab",

		BotAPIURL: gotgbot.DefaultAPIURL,

		DownloadsDirectory: defaults.DownloadDir,

		Concurrency:       defaults.Concurrency,
		RetryAttempts:     defaults.RetryAttempts,
		RetryDelay:        defaults.RetryDelay,
		MaxRetryDelay:     defaults.MaxRetryDelay,
		HTTPTimeout:       defaults.Timeout,
		BufferSize:        defaults.FlushSize,
		WarnFailureRate:   defaults.WarnThreshold,
		SevereFailureRate: defaults.SevereThreshold,

		HeadersFile: "headers.yaml",
		LogLevel:    "info",
	}
}

// GetDownloadConfig maps the environment onto a pipeline configuration.
func GetDownloadConfig(env *models.EnvConfig) *models.DownloadConfig {
	if env == nil {
		env = Env
	}
	config := &models.DownloadConfig{
		Concurrency:     env.Concurrency,
		Timeout:         env.HTTPTimeout,
		RetryAttempts:   env.RetryAttempts,
		RetryDelay:      env.RetryDelay,
		MaxRetryDelay:   env.MaxRetryDelay,
		RunTimeout:      env.RunTimeout,
		FlushSize:       env.BufferSize,
		WarnThreshold:   env.WarnFailureRate,
		SevereThreshold: env.SevereFailureRate,
		DownloadDir:     env.DownloadsDirectory,
	}
	config.Ensure()
	return config
}
