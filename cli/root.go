package cli

import (
	"fmt"

	"hlsgrab/config"
	"hlsgrab/database"
	"hlsgrab/logger"
	"hlsgrab/metrics"
	"hlsgrab/notify"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logLevel string
	logJSON  bool
	logFile  string

	// set while the root command starts, nil when notifications are off
	notifier notify.Notifier
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hlsgrab",
		Short: "Download and decrypt HLS streams into a single file",
		Long: `hlsgrab downloads a VOD HLS stream, decrypts AES-128 segments and writes
them in playlist order into one file. Interrupted downloads resume from the
last durable checkpoint when run again with the same output path.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default: LOG_LEVEL or info)")
	cmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")

	cmd.AddCommand(
		NewDownloadCmd(),
		NewBatchCmd(),
		NewCleanCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return cmd
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := config.Load(); err != nil {
		return err
	}
	level := config.Env.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if err := logger.Init(logger.Options{
		Level: level,
		JSON:  logJSON,
		File:  logFile,
	}); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	if cmd.Name() == "version" {
		return nil
	}

	if config.Env.MetricsPort > 0 {
		metrics.Serve(config.Env.MetricsPort)
	}
	if config.Env.DBHost != "" {
		if err := database.Start(config.Env); err != nil {
			// history is a nice to have, downloads work without it
			zap.S().Warnf("download history disabled: %v", err)
		}
	}
	if config.Env.BotToken != "" && config.Env.NotifyChatID != 0 {
		telegram, err := notify.NewTelegramNotifier(
			config.Env.BotToken,
			config.Env.BotAPIURL,
			config.Env.NotifyChatID,
		)
		if err != nil {
			zap.S().Warnf("notifications disabled: %v", err)
		} else {
			notifier = telegram
		}
	}
	return nil
}
