package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultFileName is looked up in the home directory when no file is given.
const DefaultFileName = ".harvest.yaml"

// envKeys are the settings that can be overridden with HARVEST_* variables.
var envKeys = []string{
	"page.url",
	"page.source",
	"page.html_path",
	"page.state_path",
	"page.control_url",
	"download.delay",
	"download.max_retries",
	"archive.output_dir",
	"archive.sheet_format",
	"server.addr",
	"metrics_addr",
	"timeout",
	"verbose",
}

// NewViper returns a viper instance wired for HARVEST_* environment overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the optional config file into v and decodes it over DefaultConfig.
// A missing default file is not an error; a missing explicit file is.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			candidate := filepath.Join(home, DefaultFileName)
			if _, statErr := os.Stat(candidate); statErr == nil {
				v.SetConfigFile(candidate)
				path = candidate
			}
		}
	}

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := DefaultConfig()
	// Lists from the file replace the defaults instead of being merged by index.
	replaceLists := func(dc *mapstructure.DecoderConfig) { dc.ZeroFields = true }
	if err := v.Unmarshal(cfg, replaceLists); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Archive.SheetFormat = strings.ToLower(cfg.Archive.SheetFormat)
	cfg.Page.Source = strings.ToLower(cfg.Page.Source)
	return cfg, nil
}
