package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/structs"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	CONFIGS_DIR_NAME     = ".config"
	BEAM_CONFIG_DIR_NAME = "beam"
	CONFIG_FILE_NAME     = "config"
	CONFIG_FILE_EXT      = "yml"
)

type Config struct {
	ListenAddr           string `mapstructure:"listen_addr"`
	DownloadDir          string `mapstructure:"download_dir"`
	Verbose              bool   `mapstructure:"verbose"`
	PromptOverwriteFiles bool   `mapstructure:"prompt_overwrite_files"`
}

func GetDefault() Config {
	return Config{
		ListenAddr:           "127.0.0.1:0",
		DownloadDir:          ".",
		Verbose:              false,
		PromptOverwriteFiles: true,
	}
}

func (config Config) Map() map[string]any {
	m := map[string]any{}
	for _, field := range structs.Fields(config) {
		key := field.Tag("mapstructure")
		value := field.Value()
		m[key] = value
	}
	return m
}

func (config Config) Yaml() []byte {
	var builder strings.Builder
	for k, v := range config.Map() {
		builder.WriteString(fmt.Sprintf("%s: %v", k, v))
		builder.WriteRune('\n')
	}
	return []byte(builder.String())
}

func IsDefault(key string) bool {
	defaults := GetDefault().Map()
	return viper.Get(key) == defaults[key]
}

// Path returns the directory holding the config file.
func Path() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolving home dir: %w", err)
	}
	return filepath.Join(home, CONFIGS_DIR_NAME, BEAM_CONFIG_DIR_NAME), nil
}

// Init initializes the viper config.
// `config.yml` is created in $HOME/.config/beam if not already existing.
// NOTE: The precedence levels of viper are the following: flags -> config file -> defaults.
func Init() error {
	configPath, err := Path()
	if err != nil {
		return err
	}
	viper.AddConfigPath(configPath)
	viper.SetConfigName(CONFIG_FILE_NAME)
	viper.SetConfigType(CONFIG_FILE_EXT)

	if err := viper.ReadInConfig(); err != nil {
		// Seed the default config file if none exists yet.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := writeDefault(configPath); err != nil {
				return err
			}
		} else {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	for k, v := range GetDefault().Map() {
		viper.SetDefault(k, v)
	}
	return nil
}

func writeDefault(configPath string) error {
	if err := os.MkdirAll(configPath, os.ModePerm); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	name := filepath.Join(configPath, fmt.Sprintf("%s.%s", CONFIG_FILE_NAME, CONFIG_FILE_EXT))
	if err := os.WriteFile(name, GetDefault().Yaml(), 0o644); err != nil {
		return fmt.Errorf("writing default config file: %w", err)
	}
	return nil
}
