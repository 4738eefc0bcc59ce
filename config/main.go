package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Load reads .env (when present), the environment and the headers file.
func Load() error {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed loading .env file: %w", err)
		}
		zap.S().Debug("no .env file found, using the environment only")
	}
	if err := LoadEnv(); err != nil {
		return err
	}
	if err := LoadHeaderProfiles(Env.HeadersFile); err != nil {
		return err
	}
	zap.S().Debugf("loaded %d header profile(s)", len(headerProfiles))
	return nil
}
