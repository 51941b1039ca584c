package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

// EnvPrefix marks environment variables that override the config file,
// e.g. HUMAN4D_WORKER_PYTHON=python3.11 sets worker.python.
const EnvPrefix = "HUMAN4D_"

// CacheConfig locates downloaded weights and checkpoints.
type CacheConfig struct {
	Dir string `koanf:"dir"`
}

// AssetsConfig describes where missing detector weights are fetched from.
type AssetsConfig struct {
	BaseURL string `koanf:"baseurl"`
}

// HMRConfig points at the mesh-regression checkpoint.
type HMRConfig struct {
	Checkpoint string `koanf:"checkpoint"`
}

// WorkerConfig describes how the Python inference worker is launched.
type WorkerConfig struct {
	Python string `koanf:"python"`
	Script string `koanf:"script"`
}

// SMPLConfig locates the body-model files.
type SMPLConfig struct {
	Dir string `koanf:"dir"`
}

// DatabaseConfig is only used when runs are persisted.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// AppConfig defines
type AppConfig struct {
	Debug    bool           `koanf:"debug"`
	Device   string         `koanf:"device"`
	Cache    CacheConfig    `koanf:"cache"`
	Assets   AssetsConfig   `koanf:"assets"`
	HMR      HMRConfig      `koanf:"hmr"`
	Worker   WorkerConfig   `koanf:"worker"`
	SMPL     SMPLConfig     `koanf:"smpl"`
	Database DatabaseConfig `koanf:"database"`
}

// Config - Global variable to export
var Config AppConfig

// DefaultCacheDir mirrors the 4DHumans cache location.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "4DHumans")
	}
	return filepath.Join(os.TempDir(), "4DHumans")
}

// DefaultCheckpoint is the HMR 2.0 checkpoint path inside a cache dir.
func DefaultCheckpoint(cacheDir string) string {
	return filepath.Join(cacheDir, "logs", "train", "multiruns", "hmr2", "0", "checkpoints", "epoch=35-step=1000000.ckpt")
}

func defaults() map[string]any {
	cacheDir := DefaultCacheDir()
	return map[string]any{
		"debug":          false,
		"device":         "auto",
		"cache.dir":      cacheDir,
		"assets.baseurl": "https://github.com/ultralytics/assets/releases/latest/download/",
		"hmr.checkpoint": "",
		"worker.python":  "python3",
		"worker.script":  "python/worker.py",
		"smpl.dir":       "smpl_models",
		"database.url":   "",
	}
}

// Init - Assign global config to decoded config struct.
// An empty filePath skips the file layer.
func Init(filePath string) error {
	cfg, err := Load(filePath)
	if err != nil {
		return err
	}
	Config = *cfg
	return nil
}

// Load builds a config from defaults, an optional YAML file and the environment, in that order.
func Load(filePath string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, err
	}

	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", filePath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if cfg.HMR.Checkpoint == "" {
		cfg.HMR.Checkpoint = DefaultCheckpoint(cfg.Cache.Dir)
	}

	return &cfg, ValidateConfig(&cfg)
}

// ValidateConfig rejects settings the worker cannot start with.
func ValidateConfig(cfg *AppConfig) error {
	if cfg.Cache.Dir == "" {
		return fmt.Errorf("cache.dir must not be empty")
	}
	if cfg.Worker.Python == "" || cfg.Worker.Script == "" {
		return fmt.Errorf("worker.python and worker.script must both be set")
	}
	if !strings.HasSuffix(cfg.Assets.BaseURL, "/") {
		cfg.Assets.BaseURL += "/"
	}
	return nil
}
