package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the CLI config file holding the stored token.
const DefaultConfigPath = "~/.invocca/config.yaml"

// TokenSource identifies where a token was resolved from.
type TokenSource string

const (
	// TokenSourceFlag is an explicit --token value.
	TokenSourceFlag TokenSource = "flag"
	// TokenSourceEnv is INVOCCA_TOKEN.
	TokenSourceEnv TokenSource = "invocca_token"
	// TokenSourceConfig is auth.token in the CLI config file.
	TokenSourceConfig TokenSource = "cli_config"
)

// TokenResolution contains the resolved token and source.
type TokenResolution struct {
	Token  string
	Source TokenSource
}

// TokenSourceOptions controls token resolution.
type TokenSourceOptions struct {
	Explicit   string
	ConfigPath string
}

type cliConfigFile struct {
	Auth struct {
		Token string `yaml:"token"`
	} `yaml:"auth"`
}

// ResolveToken resolves a token using this precedence:
// 1) Explicit
// 2) INVOCCA_TOKEN
// 3) auth.token in the CLI config file
//
// An empty resolution is not an error.
func ResolveToken(opts TokenSourceOptions) (TokenResolution, error) {
	if token := strings.TrimSpace(opts.Explicit); token != "" {
		return TokenResolution{Token: token, Source: TokenSourceFlag}, nil
	}
	if token := strings.TrimSpace(os.Getenv("INVOCCA_TOKEN")); token != "" {
		return TokenResolution{Token: token, Source: TokenSourceEnv}, nil
	}

	data, err := os.ReadFile(ExpandPath(defaultIfEmpty(opts.ConfigPath, DefaultConfigPath)))
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return TokenResolution{}, nil
	default:
		return TokenResolution{}, fmt.Errorf("reading CLI config token source: %w", err)
	}

	var cfg cliConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TokenResolution{}, fmt.Errorf("decoding CLI config token source: %w", err)
	}
	token := strings.TrimSpace(cfg.Auth.Token)
	if token == "" {
		return TokenResolution{}, nil
	}
	return TokenResolution{Token: token, Source: TokenSourceConfig}, nil
}

// SaveToken writes token to auth.token in the config file, keeping every
// other key. An empty token removes the stored one.
func SaveToken(path, token string) error {
	path = ExpandPath(defaultIfEmpty(path, DefaultConfigPath))

	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("reading %s: %w", path, err)
	}

	section, _ := doc["auth"].(map[string]any)
	if section == nil {
		section = map[string]any{}
	}
	if token == "" {
		delete(section, "token")
	} else {
		section["token"] = token
	}
	doc["auth"] = section

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return filepath.Clean(path)
}
