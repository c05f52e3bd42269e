package config

import (
	"compress/gzip"
	"fmt"
	"os"
	"path"

	"sigs.k8s.io/yaml"

	"github.com/go-playground/validator/v10"
)

const (
	defaultConfigDir  = "config"
	defaultConfigName = "settings.yaml"
)

type (
	// Settings holds everything dirtar can be configured with besides its
	// two positional arguments.
	Settings struct {
		Log     LogSettings     `json:"log"`
		Archive ArchiveSettings `json:"archive"`
		Publish PublishSettings `json:"publish"`
	}

	LogSettings struct {
		Pretty bool   `json:"pretty"`
		Level  string `json:"level" validate:"omitempty,oneof=trace debug info warn error"`
	}

	ArchiveSettings struct {
		CompressionLevel int  `json:"compressionLevel" validate:"gte=-1,lte=9"`
		SingleThreaded   bool `json:"singleThreaded"`
	}

	// PublishSettings selects where the finished archive is uploaded. An
	// empty Connection disables publishing.
	PublishSettings struct {
		Connection string `json:"connection" validate:"omitempty,contains=://"`
		Key        string `json:"key" validate:"excluded_without=Connection"`
	}
)

// Default returns the settings used when no configuration file is given.
func Default() Settings {
	return Settings{
		Log: LogSettings{
			Level: "warn",
		},
		Archive: ArchiveSettings{
			CompressionLevel: gzip.DefaultCompression,
		},
	}
}

// Load reads configDir/name into config and validates it. Fields absent from
// the file keep the value config already holds.
func Load(configDir string, name string, config interface{}) error {
	if configDir == "" {
		configDir = defaultConfigDir
	}

	if name == "" {
		name = defaultConfigName
	}

	f, err := getConfigFile(configDir, name)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(f)
	if err != nil {
		return err
	}
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return fmt.Errorf("error parsing config file %s: %w", f, err)
	}

	return Validate(config)
}

// Validate checks config against its struct tags.
func Validate(config interface{}) error {
	validate := validator.New()
	return validate.Struct(config)
}

func getConfigFile(configDir string, name string) (string, error) {
	path := path.Join(configDir, name)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("config file %s does not exist", path)
	}

	return path, nil
}
