package internal

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tubelens/tubelens/internal/api"
	"github.com/tubelens/tubelens/internal/artifact"
	"github.com/tubelens/tubelens/internal/database"
	"github.com/tubelens/tubelens/internal/storage"
	"github.com/tubelens/tubelens/internal/youtube"
)

// TubelensConfig is the struct used to contain the various user config
// supplied by file or environment.
type TubelensConfig struct {
	Database   database.DatabaseConfig `yaml:"database" env-required:"true"`
	RestConfig api.RestConfig          `yaml:"api"`
	YouTube    youtube.Config          `yaml:"youtube" env-required:"true"`
	Storage    storage.Config          `yaml:"storage"`
	Whisper    artifact.WhisperConfig  `yaml:"whisper"`
}

// LoadFromFile loads a YAML configuration file in to a TubelensConfig,
// overlaying any matching environment variables.
func (config *TubelensConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	return nil
}

// LoadFromEnv populates the config purely from environment variables.
func (config *TubelensConfig) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return nil
}
