// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud - configuration loading.
//
// Configuration is hierarchical: a base file (.env.toml) is decoded first and
// an environment file (.env.<runtime>.toml) is decoded on top of it, so the
// environment file only needs the keys it overrides.
package cloud

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	ConfigFileBaseName  = ".env"               // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"              // The file extension for configuration files.
	ConfigSeparator     = "."                  // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "POSE_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "POSE_RUNTIME"       // The environment variable for specifying the runtime (e.g., "local", "test", "prod").
	DefaultRuntime      = "test"
)

// FileExists reports whether a path can be stat'ed.
func FileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// ConfigFiles returns the base and environment file names for the current
// process environment.
func ConfigFiles() (base string, env string) {
	prefix := os.Getenv(EnvConfigFilePrefix)
	runtime := os.Getenv(EnvConfigRuntime)
	if runtime == "" {
		runtime = DefaultRuntime
	}
	base = filepath.Join(prefix, ConfigFileBaseName+ConfigFileExtension)
	env = filepath.Join(prefix, ConfigFileBaseName+ConfigSeparator+runtime+ConfigFileExtension)
	return base, env
}

// LoadConfig decodes the base file and then the environment file into
// baseConfig. Files that do not exist are skipped.
//
// Inputs:
//   - baseConfig: a pointer to the struct to populate, usually from NewConfig.
//
// Outputs:
//   - error: a decode failure of either file.
func LoadConfig(baseConfig any) error {
	base, env := ConfigFiles()
	for _, name := range []string{base, env} {
		if !FileExists(name) {
			slog.Debug("configuration file not found, skipping", "file", name)
			continue
		}
		if _, err := toml.DecodeFile(name, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", name, err)
		}
		slog.Debug("loaded configuration file", "file", name)
	}
	return nil
}
