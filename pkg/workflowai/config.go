package workflowai

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/inercia/go-workflowai/pkg/version"
)

const (
	// DefaultURL is the run endpoint of the hosted service.
	DefaultURL = "https://run.workflowai.com"
	// DefaultAppURL is the web application used to build run URLs.
	DefaultAppURL = "https://workflowai.com"
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 120 * time.Second

	envPrefix = "WORKFLOWAI"
)

// Config holds the client configuration.
type Config struct {
	APIKey         string `mapstructure:"api_key"`
	URL            string `mapstructure:"api_url"`
	AppURL         string `mapstructure:"app_url"`
	DefaultModel   string `mapstructure:"default_model"`
	DefaultVersion string `mapstructure:"default_version"`

	Timeout time.Duration `mapstructure:"-"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		URL:          DefaultURL,
		DefaultModel: version.DefaultModel,
		Timeout:      DefaultTimeout,
	}
}

// LoadConfig reads the WORKFLOWAI_* environment variables and, when path is
// not empty, a configuration file in any format viper understands:
//
//	WORKFLOWAI_API_KEY          bearer token
//	WORKFLOWAI_API_URL          run endpoint (default https://run.workflowai.com)
//	WORKFLOWAI_APP_URL          web application URL (derived from the API URL)
//	WORKFLOWAI_DEFAULT_MODEL    model for versions that name none
//	WORKFLOWAI_DEFAULT_VERSION  process-wide default version
//	WORKFLOWAI_TIMEOUT          per-attempt timeout, "30s" or seconds
//
// Environment variables take precedence over the file.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("api_key", "")
	v.SetDefault("api_url", defaults.URL)
	v.SetDefault("app_url", "")
	v.SetDefault("default_model", defaults.DefaultModel)
	v.SetDefault("default_version", "")
	v.SetDefault("timeout", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	timeout, err := parseTimeout(v.GetString("timeout"), defaults.Timeout)
	if err != nil {
		return Config{}, err
	}
	cfg.Timeout = timeout

	return cfg.withDefaults(), nil
}

// parseTimeout accepts a Go duration or a number of seconds.
func parseTimeout(value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid timeout %q", value)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid timeout %q", value)
	}
	return d, nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.DefaultModel == "" {
		c.DefaultModel = d.DefaultModel
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	c.URL = strings.TrimRight(c.URL, "/")
	c.AppURL = strings.TrimRight(c.AppURL, "/")
	return c
}

// RunURL is the endpoint runs and replies are sent to.
func (c Config) RunURL() string {
	return c.URL
}

// APIURL is the endpoint for agent management calls.
func (c Config) APIURL() string {
	return strings.Replace(c.URL, "https://run.", "https://api.", 1)
}

// WebURL is the base of run URLs shown to users. Without an explicit app URL it
// is derived from the API URL.
func (c Config) WebURL() string {
	if c.AppURL != "" {
		return c.AppURL
	}
	for _, prefix := range []string{"https://run.", "https://api."} {
		if rest, ok := strings.CutPrefix(c.URL, prefix); ok {
			return "https://" + rest
		}
	}
	return DefaultAppURL
}
