package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ledger/internal/fsutil"
)

// ValidFormats are the accepted log formats.
var ValidFormats = []string{"text", "json"}

// ValidLevels are the accepted log levels.
var ValidLevels = []string{"debug", "info", "warn", "error"}

// Validate performs rule checks on the loaded configuration. Load calls it
// automatically.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if len(c.Allow.Sources) == 0 {
		return fmt.Errorf("allow.sources must list at least one source")
	}
	if len(c.Allow.Types) == 0 {
		return fmt.Errorf("allow.types must list at least one type")
	}
	if err := c.Assets.validate(); err != nil {
		return fmt.Errorf("assets: %w", err)
	}
	if !c.Journal.Disabled && strings.TrimSpace(c.Journal.Path) == "" {
		return fmt.Errorf("journal.path must not be empty when the journal is enabled")
	}
	if !slices.Contains(ValidLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("log.level must be one of %v (got %q)", ValidLevels, c.Log.Level)
	}
	if !slices.Contains(ValidFormats, strings.ToLower(c.Log.Format)) {
		return fmt.Errorf("log.format must be one of %v (got %q)", ValidFormats, c.Log.Format)
	}
	if !slices.Contains(c.Allow.Sources, c.Camera.Source) {
		return fmt.Errorf("camera.source %q is not in allow.sources", c.Camera.Source)
	}
	if !slices.Contains(c.Allow.Types, c.Camera.Type) {
		return fmt.Errorf("camera.type %q is not in allow.types", c.Camera.Type)
	}
	return nil
}

func (a *AssetsConfig) validate() error {
	if strings.TrimSpace(a.TmpRoot) == "" {
		return fmt.Errorf("tmp_root must not be empty")
	}
	if strings.TrimSpace(a.DataRoot) == "" {
		return fmt.Errorf("data_root must not be empty")
	}
	if a.ModuleSubdir != "" {
		if _, ok := fsutil.SanitizeToken(a.ModuleSubdir, 0); !ok {
			return fmt.Errorf("module_subdir %q must be a single [A-Za-z0-9_-] path element", a.ModuleSubdir)
		}
	}
	if a.MaxTokenLen <= 0 {
		return fmt.Errorf("max_token_len must be > 0 (got %d)", a.MaxTokenLen)
	}
	if a.SessionLockTimeout < 0 {
		return fmt.Errorf("session_lock_timeout must be >= 0 (got %s)", a.SessionLockTimeout)
	}
	return nil
}
