package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// AppName names the per-user config, cache and state directories.
const AppName = "simple-ai-assistant"

var explicitDir string

// SetExplicitDir makes dir the only config directory.
func SetExplicitDir(dir string) {
	explicitDir = dir
}

// ConfigDirs lists the existing config directories, user dir first.
func ConfigDirs() []string {
	if explicitDir != "" {
		return []string{explicitDir}
	}

	res := []string{}

	usrCfgDir := filepath.Join(xdg.ConfigHome, AppName)
	if FileExists(usrCfgDir) {
		res = append(res, usrCfgDir)
	}

	for _, v := range xdg.ConfigDirs {
		path := filepath.Join(v, AppName)
		if FileExists(path) {
			res = append(res, path)
		}
	}

	return res
}

// UserConfigDir is where a new config file would be created.
func UserConfigDir() string {
	if explicitDir != "" {
		return explicitDir
	}
	return filepath.Join(xdg.ConfigHome, AppName)
}

func CacheFile(file string) string {
	return filepath.Join(xdg.CacheHome, AppName, file)
}

func StateFile(file string) string {
	return filepath.Join(xdg.StateHome, AppName, file)
}

var ErrConfigNotExists = errors.New("config doesn't exist")

// FindConfig returns the first <name>.toml found in dirs.
func FindConfig(name string, dirs []string) (string, error) {
	name = fmt.Sprintf("%s.toml", name)

	for _, v := range dirs {
		file := filepath.Join(v, name)

		if FileExists(file) {
			return file, nil
		}
	}

	return "", ErrConfigNotExists
}

func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}
