package models

import "time"

type EnvConfig struct {
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	BotAPIURL    string
	BotToken     string
	NotifyChatID int64

	DownloadsDirectory string

	HTTPSProxy string
	HTTPProxy  string
	NoProxy    string
	HTTP3      bool

	Concurrency       int
	RetryAttempts     int
	RetryDelay        time.Duration
	MaxRetryDelay     time.Duration
	HTTPTimeout       time.Duration
	RunTimeout        time.Duration
	BufferSize        int
	WarnFailureRate   float64
	SevereFailureRate float64

	UserAgent   string
	Referer     string
	CookiesFile string
	HeadersFile string

	MetricsPort int
	LogLevel    string
}

// HeaderProfile holds extra request headers for a host, loaded from the headers file.
type HeaderProfile struct {
	Referer     string            `yaml:"referer"`
	Origin      string            `yaml:"origin"`
	UserAgent   string            `yaml:"user_agent"`
	CookiesFile string            `yaml:"cookies_file"`
	Headers     map[string]string `yaml:"headers"`
}
