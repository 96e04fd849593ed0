// Package common holds the path, config and logging helpers shared by the
// assistant's commands.
package common

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// LoadConfig layers <name>.toml from dirs over the defaults carried by
// config and unmarshals the result back into config, which must be a
// pointer to a struct with koanf tags. The merged koanf instance is returned
// so callers can apply further overrides; path is empty when no file exists.
func LoadConfig(name string, config any, dirs []string) (k *koanf.Koanf, path string, err error) {
	k = koanf.New(".")

	if err := k.Load(structs.Provider(config, "koanf"), nil); err != nil {
		return nil, "", fmt.Errorf("load defaults: %w", err)
	}

	path, err = FindConfig(name, dirs)
	if errors.Is(err, ErrConfigNotExists) {
		return k, "", nil
	}

	user := koanf.New(".")

	if err := user.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, path, fmt.Errorf("load %s: %w", path, err)
	}

	if err := k.Merge(user); err != nil {
		return nil, path, fmt.Errorf("merge %s: %w", path, err)
	}

	if err := k.Unmarshal("", config); err != nil {
		return nil, path, fmt.Errorf("unmarshal %s: %w", path, err)
	}

	return k, path, nil
}

// LoadEnvFiles loads the .env file of every dir into the process
// environment. Variables already set win unless overload is true. It
// returns the files that were loaded.
func LoadEnvFiles(dirs []string, overload bool) ([]string, error) {
	var loaded []string

	for _, v := range dirs {
		envFile := filepath.Join(v, ".env")

		if !FileExists(envFile) {
			continue
		}

		var err error
		if overload {
			err = godotenv.Overload(envFile)
		} else {
			err = godotenv.Load(envFile)
		}
		if err != nil {
			return loaded, fmt.Errorf("load %s: %w", envFile, err)
		}

		loaded = append(loaded, envFile)
	}

	return loaded, nil
}
