// Package config loads the ledger configuration from YAML and environment.
package config

import (
	"time"

	"github.com/roach88/ledger/internal/asset"
	"github.com/roach88/ledger/internal/commit"
	"github.com/roach88/ledger/internal/store"
)

// Config is the root configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Allow   AllowConfig   `yaml:"allow"`
	Assets  AssetsConfig  `yaml:"assets"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
	Camera  CameraConfig  `yaml:"camera"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig locates the event collection. A negative MaxItems disables
// the retention cap.
type StoreConfig struct {
	Path     string `yaml:"path"      env:"LEDGER_STORE_PATH"      env-default:"./data/events.json"`
	MaxItems int    `yaml:"max_items" env:"LEDGER_STORE_MAX_ITEMS" env-default:"5000"`
}

// AllowConfig holds the source and type allow-lists.
type AllowConfig struct {
	Sources []string `yaml:"sources" env:"LEDGER_ALLOW_SOURCES" env-default:"pbx,remote,camera,manual"`
	Types   []string `yaml:"types"   env:"LEDGER_ALLOW_TYPES"   env-default:"call,session,doc,note"`
}

// AssetsConfig locates the camera capture roots.
type AssetsConfig struct {
	TmpRoot            string        `yaml:"tmp_root"             env:"LEDGER_ASSETS_TMP_ROOT"             env-default:"./data/tmp"`
	DataRoot           string        `yaml:"data_root"            env:"LEDGER_ASSETS_DATA_ROOT"            env-default:"./data/assets"`
	ModuleSubdir       string        `yaml:"module_subdir"        env:"LEDGER_ASSETS_MODULE_SUBDIR"        env-default:"camera"`
	Prefix             string        `yaml:"prefix"               env:"LEDGER_ASSETS_PREFIX"               env-default:"cam"`
	MaxTokenLen        int           `yaml:"max_token_len"        env:"LEDGER_ASSETS_MAX_TOKEN_LEN"        env-default:"64"`
	SessionLockTimeout time.Duration `yaml:"session_lock_timeout" env:"LEDGER_ASSETS_SESSION_LOCK_TIMEOUT" env-default:"5s"`
}

// JournalConfig controls the SQLite change journal. The journal is on
// unless Disabled is set.
type JournalConfig struct {
	Path     string `yaml:"path"     env:"LEDGER_JOURNAL_PATH"     env-default:"./data/journal.db"`
	Disabled bool   `yaml:"disabled" env:"LEDGER_JOURNAL_DISABLED"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LEDGER_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LEDGER_LOG_FORMAT" env-default:"text"`
}

// CameraConfig names the source/type pair whose commits finalize assets.
type CameraConfig struct {
	Source string `yaml:"source" env:"LEDGER_CAMERA_SOURCE" env-default:"camera"`
	Type   string `yaml:"type"   env:"LEDGER_CAMERA_TYPE"   env-default:"doc"`
}

// MetricsConfig controls metric export. With a Textfile set, the CLI
// writes the registry there in Prometheus text format before exiting, for
// pickup by a node_exporter textfile collector.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" env:"LEDGER_METRICS_TEXTFILE"`
}

// StoreOptions returns the store.Config for this configuration.
func (c *Config) StoreOptions() store.Config {
	return store.Config{
		Path:     c.Store.Path,
		MaxItems: c.Store.MaxItems,
		Sources:  c.Allow.Sources,
		Types:    c.Allow.Types,
	}
}

// AssetOptions returns the asset.Config for this configuration.
func (c *Config) AssetOptions() asset.Config {
	return asset.Config{
		TmpRoot:      c.Assets.TmpRoot,
		DataRoot:     c.Assets.DataRoot,
		ModuleSubdir: c.Assets.ModuleSubdir,
		Prefix:       c.Assets.Prefix,
		MaxTokenLen:  c.Assets.MaxTokenLen,
		LockTimeout:  c.Assets.SessionLockTimeout,
	}
}

// CommitOptions returns the commit.Config for this configuration.
func (c *Config) CommitOptions() commit.Config {
	return commit.Config{
		CameraSource: c.Camera.Source,
		CameraType:   c.Camera.Type,
		MaxTokenLen:  c.Assets.MaxTokenLen,
	}
}
