package config

import (
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "/etc/pop-upgrade/config.yaml"

type Config struct {
	// CatalogURL is the base URL of the release catalog API.
	CatalogURL string `yaml:"catalog_url"`
	// DownloadThreads is the number of concurrent range workers used
	// when fetching an ISO.
	DownloadThreads int `yaml:"download_threads"`
	// RecoveryMount is the canonical mount point of the recovery
	// partition when it is already mounted.
	RecoveryMount string `yaml:"recovery_mount"`
	// EFIDir is the EFI system partition's boot directory.
	EFIDir string `yaml:"efi_dir"`

	LogLevel zerolog.Level `yaml:"-"`
}

func Default() Config {
	return Config{
		CatalogURL:      "https://api.pop-os.org",
		DownloadThreads: 8,
		RecoveryMount:   "/recovery",
		EFIDir:          "/boot/efi/EFI",
		LogLevel:        zerolog.InfoLevel,
	}
}

// Load reads the YAML config at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultConfigPath
	}
	b, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("POP_UPGRADE_CATALOG_URL"); v != "" {
		c.CatalogURL = v
	}
	if v := os.Getenv("POP_UPGRADE_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.DownloadThreads = n
		}
	}
	if v := os.Getenv("POP_UPGRADE_LOG"); v != "" {
		if l, err := zerolog.ParseLevel(v); err == nil {
			c.LogLevel = l
		}
	}
}
