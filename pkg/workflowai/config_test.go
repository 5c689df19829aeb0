package workflowai

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inercia/go-workflowai/pkg/version"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"API_KEY", "API_URL", "APP_URL", "DEFAULT_MODEL", "DEFAULT_VERSION", "TIMEOUT"} {
		t.Setenv("WORKFLOWAI_"+key, "")
	}

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, cfg.URL)
	assert.Equal(t, version.DefaultModel, cfg.DefaultModel)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Empty(t, cfg.APIKey)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("WORKFLOWAI_API_KEY", "secret")
	t.Setenv("WORKFLOWAI_API_URL", "https://run.example.com/")
	t.Setenv("WORKFLOWAI_APP_URL", "")
	t.Setenv("WORKFLOWAI_DEFAULT_MODEL", "gpt-4o")
	t.Setenv("WORKFLOWAI_DEFAULT_VERSION", "staging")
	t.Setenv("WORKFLOWAI_TIMEOUT", "30")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "https://run.example.com", cfg.URL)
	assert.Equal(t, "gpt-4o", cfg.DefaultModel)
	assert.Equal(t, "staging", cfg.DefaultVersion)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "https://example.com", cfg.WebURL())
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("WORKFLOWAI_API_KEY", "from-env")
	t.Setenv("WORKFLOWAI_API_URL", "")
	t.Setenv("WORKFLOWAI_TIMEOUT", "")

	path := filepath.Join(t.TempDir(), "workflowai.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"api_key: from-file\napi_url: https://api.example.org\ndefault_version: \"12\"\ntimeout: 5s\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "https://api.example.org", cfg.URL)
	assert.Equal(t, "12", cfg.DefaultVersion)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid timeout", func(t *testing.T) {
		t.Setenv("WORKFLOWAI_TIMEOUT", "soon")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
		wantErr  bool
	}{
		{value: "", expected: time.Minute},
		{value: "10", expected: 10 * time.Second},
		{value: "1m30s", expected: 90 * time.Second},
		{value: "0", wantErr: true},
		{value: "-5s", wantErr: true},
		{value: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			d, err := parseTimeout(tt.value, time.Minute)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestConfigURLs(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		api  string
		web  string
	}{
		{
			name: "hosted",
			cfg:  Config{URL: "https://run.workflowai.com"},
			api:  "https://api.workflowai.com",
			web:  "https://workflowai.com",
		},
		{
			name: "api host",
			cfg:  Config{URL: "https://api.workflowai.dev"},
			api:  "https://api.workflowai.dev",
			web:  "https://workflowai.dev",
		},
		{
			name: "explicit app url",
			cfg:  Config{URL: "https://run.workflowai.com", AppURL: "https://app.example.com"},
			api:  "https://api.workflowai.com",
			web:  "https://app.example.com",
		},
		{
			name: "local",
			cfg:  Config{URL: "http://localhost:8000"},
			api:  "http://localhost:8000",
			web:  DefaultAppURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.api, tt.cfg.APIURL())
			assert.Equal(t, tt.web, tt.cfg.WebURL())
		})
	}
}
