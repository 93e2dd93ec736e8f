package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/raystack/salt/config"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	DefaultFilename      = "dataproc-jupyter-plugin"
	DefaultFileExtension = "yaml"
	DefaultEnvPrefix     = "DATAPROC_JUPYTER"
	EmptyPath            = ""
)

var FS = afero.NewReadOnlyFs(afero.NewOsFs())

// LoadPluginConfig loads configuration from the given file path if set,
// otherwise from dataproc-jupyter-plugin.yaml in the current directory.
// Environment variables prefixed DATAPROC_JUPYTER_ override file values.
func LoadPluginConfig(filePath string) (*Plugin, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetFs(FS)

	opts := []config.LoaderOption{
		config.WithViper(v),
		config.WithName(DefaultFilename),
		config.WithType(DefaultFileExtension),
		config.WithEnvPrefix(DefaultEnvPrefix),
		config.WithEnvKeyReplacer(".", "_"),
	}

	if filePath != EmptyPath {
		if err := validateFilepath(FS, filePath); err != nil {
			return nil, err
		}
		opts = append(opts, config.WithFile(filePath))
	} else {
		currPath, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("error getting current work directory path: %w", err)
		}
		opts = append(opts, config.WithPath(currPath))
	}

	l := config.NewLoader(opts...)
	if err := l.Load(&cfg); err != nil && !isConfigFileNotFound(err) {
		return nil, err
	}
	return &cfg, nil
}

func validateFilepath(fs afero.Fs, fpath string) error {
	f, err := fs.Stat(fpath)
	if err != nil {
		return err
	}
	if !f.Mode().IsRegular() {
		return fmt.Errorf("%s not a file", fpath)
	}
	return nil
}

// a missing config file is fine, defaults plus env vars still apply
func isConfigFileNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	return strings.Contains(err.Error(), "Not Found")
}
