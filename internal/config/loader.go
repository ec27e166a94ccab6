package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "LEDGER_CONFIG"

// DefaultPath is tried when neither an explicit path nor EnvPath is set.
const DefaultPath = "./ledger.yaml"

// Load reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults (via env-default tags).
//
// The file is path if non-empty, else $LEDGER_CONFIG, else ./ledger.yaml.
// An explicitly named file must exist; a missing default file means ENV +
// defaults only.
func Load(path string) (*Config, error) {
	var cfg Config

	explicit := true
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		path = DefaultPath
		explicit = false
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}
