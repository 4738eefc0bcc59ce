package models

import (
	"net/http"
	"time"
)

type DownloadConfig struct {
	Concurrency     int               // maximum number of concurrent segment downloads
	ReorderWindow   int               // maximum number of segments in flight or buffered ahead of the writer
	Timeout         time.Duration     // timeout for individual HTTP requests
	RetryAttempts   int               // number of attempts per request, first one included
	RetryDelay      time.Duration     // backoff before the second attempt
	MaxRetryDelay   time.Duration     // upper bound for the exponential backoff
	RunTimeout      time.Duration     // optional bound for the whole downloading phase
	GracePeriod     time.Duration     // how long in-flight fetches may run after cancellation
	FlushSize       int               // bytes buffered by the writer before flushing and checkpointing
	MaxSegmentSize  int64             // maximum accepted size of a single segment body
	WarnThreshold   float64           // failure rate above which the outcome carries a warning, 0 warns on any failure
	SevereThreshold float64           // failure rate above which the outcome is flagged as severe, 0 on any failure
	DownloadDir     string            // base directory the CLI puts relative output paths under
	Extension       string            // extension of the final file when the output path has none
	Headers         map[string]string // custom HTTP headers for every request
	Cookies         []*http.Cookie    // cookies to send with every request
	Client          HTTPClient        // optional client, defaults to the shared networking client
	ProgressUpdater func(float64)     // optional function to report download progress
}

func DefaultDownloadConfig() *DownloadConfig {
	return &DownloadConfig{
		Concurrency:     8,
		Timeout:         30 * time.Second,
		RetryAttempts:   3,
		RetryDelay:      500 * time.Millisecond,
		MaxRetryDelay:   8 * time.Second,
		GracePeriod:     5 * time.Second,
		FlushSize:       1024 * 1024, // 1MB
		MaxSegmentSize:  64 * 1024 * 1024,
		WarnThreshold:   0.10,
		SevereThreshold: 0.50,
		DownloadDir:     "downloads",
		Extension:       ".mp4",
		Headers:         make(map[string]string),
		Cookies:         make([]*http.Cookie, 0),
	}
}

// GetDownloadConfig returns a new DownloadConfig with default values merged with the provided config.
// if the provided config is nil, it returns a new config with default values.
func GetDownloadConfig(config *DownloadConfig) *DownloadConfig {
	defaultConfig := DefaultDownloadConfig()
	if config == nil {
		return defaultConfig
	}
	config.Ensure()
	return config
}

func (cfg *DownloadConfig) Ensure() {
	defaultConfig := DefaultDownloadConfig()

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConfig.Concurrency
	}
	if cfg.ReorderWindow < cfg.Concurrency {
		cfg.ReorderWindow = cfg.Concurrency * 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultConfig.Timeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultConfig.RetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultConfig.RetryDelay
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = max(defaultConfig.MaxRetryDelay, cfg.RetryDelay)
	}
	if cfg.RunTimeout < 0 {
		cfg.RunTimeout = 0
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultConfig.GracePeriod
	}
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = defaultConfig.FlushSize
	}
	if cfg.MaxSegmentSize <= 0 {
		cfg.MaxSegmentSize = defaultConfig.MaxSegmentSize
	}
	// a zero threshold is a valid policy, only negative ones are unset
	if cfg.WarnThreshold < 0 {
		cfg.WarnThreshold = defaultConfig.WarnThreshold
	}
	if cfg.SevereThreshold < 0 {
		cfg.SevereThreshold = defaultConfig.SevereThreshold
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = defaultConfig.DownloadDir
	}
	if cfg.Extension == "" {
		cfg.Extension = defaultConfig.Extension
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	if cfg.Cookies == nil {
		cfg.Cookies = make([]*http.Cookie, 0)
	}
}
