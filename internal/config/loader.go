package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".dataroma"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads a configuration file from a YAML document.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}

	if cf.Managers == nil {
		cf.Managers = make(map[string]string)
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
//  1. If configPath is specified, use it directly
//  2. Look for .dataroma in the current directory
//  3. Look for config.yaml in the XDG config directory
//  4. Look for .dataroma in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Credentials holds API keys for the optional enrichment providers.
type Credentials struct {
	// AlpacaKeyID and AlpacaSecret authenticate against Alpaca market data.
	AlpacaKeyID  string
	AlpacaSecret string

	// AlphaVantageKey authenticates against the Alpha Vantage OVERVIEW endpoint.
	AlphaVantageKey string
}

// HasAlpaca reports whether both Alpaca credentials are present.
func (c Credentials) HasAlpaca() bool {
	return c.AlpacaKeyID != "" && c.AlpacaSecret != ""
}

// HasAlphaVantage reports whether an Alpha Vantage key is present.
func (c Credentials) HasAlphaVantage() bool {
	return c.AlphaVantageKey != ""
}

// LoadCredentials reads enrichment credentials from the environment after
// loading envFile (if it exists) with godotenv. Variables already set in the
// process environment take precedence over the file.
func LoadCredentials(envFile string) (Credentials, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Credentials{}, err
		}
	}
	return Credentials{
		AlpacaKeyID:     os.Getenv("APCA_API_KEY_ID"),
		AlpacaSecret:    os.Getenv("APCA_API_SECRET_KEY"),
		AlphaVantageKey: os.Getenv("ALPHAVANTAGE_API_KEY"),
	}, nil
}
