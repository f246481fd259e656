package config

import (
	"os"
	"path/filepath"
	"strings"
)

// AppEnvVar selects the deployment environment.
const AppEnvVar = "APP_ENV"

const (
	EnvironmentDevelopment = "development"
	EnvironmentStaging     = "staging"
	EnvironmentProduction  = "production"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "config/config.yml"

// Common misspellings seen in deployment manifests.
var environmentAliases = map[string]string{
	"dev":         EnvironmentDevelopment,
	"prod":        EnvironmentProduction,
	"producation": EnvironmentProduction,
	"stag":        EnvironmentStaging,
	"stagging":    EnvironmentStaging,
}

// AppEnvironment is the normalised APP_ENV value, development when unset.
func AppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(AppEnvVar)))
	if alias, ok := environmentAliases[env]; ok {
		return alias
	}
	if env == "" {
		return EnvironmentDevelopment
	}
	return env
}

// IsProductionLike reports whether runs in env must publish their
// artifacts.
func IsProductionLike(env string) bool {
	return env == EnvironmentProduction || env == EnvironmentStaging
}

// environmentPath is config/config.<env>.yml next to DefaultPath.
func environmentPath(env string) string {
	dir, file := filepath.Split(DefaultPath)
	ext := filepath.Ext(file)
	return filepath.Join(dir, strings.TrimSuffix(file, ext)+"."+env+ext)
}

// ResolvePath picks the configuration file to load. An explicit path other
// than DefaultPath is returned untouched. Otherwise the file for the
// current environment is used when it exists, falling back to DefaultPath.
func ResolvePath(path string) string {
	if path != "" && path != DefaultPath {
		return path
	}
	if env := AppEnvironment(); env != EnvironmentDevelopment {
		candidate := environmentPath(env)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return DefaultPath
}
