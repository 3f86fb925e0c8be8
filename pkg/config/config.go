// Package config loads component configuration from the environment.
// A .env file, when present, is exported into the process environment first
// so that envconfig sees a single source of truth.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// envFileVar points at an alternative env file. When unset, ./.env is used
// if it exists.
const envFileVar = "ENV_FILE"

var (
	exportOnce sync.Once
	exportErr  error
)

// MustLoad is Load but panics on failure. Intended for process startup.
func MustLoad[T any](prefix string) *T {
	conf, err := Load[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// Load populates a config struct of type T from the environment, honoring
// the struct's envconfig tags under the given prefix.
func Load[T any](prefix string) (*T, error) {
	exportOnce.Do(func() {
		exportErr = exportEnvFile()
	})
	if exportErr != nil {
		return nil, fmt.Errorf("load env file: %w", exportErr)
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func exportEnvFile() error {
	path := strings.TrimSpace(os.Getenv(envFileVar))
	if path == "" {
		path = ".env"
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for key, val := range v.AllSettings() {
		name := strings.ToUpper(key)
		if _, exists := os.LookupEnv(name); exists {
			continue
		}
		if err := os.Setenv(name, fmt.Sprint(val)); err != nil {
			return err
		}
	}
	return nil
}
