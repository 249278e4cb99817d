package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filingindex/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_Layers(t *testing.T) {
	yamlPath := writeFile(t, "filingindex.yaml", `
database: /var/lib/filingindex/index.db
pause: 1s
retries: 5
dialect: postgres
`)
	envPath := writeFile(t, ".env", "FILINGINDEX_RETRIES=7\nFILINGINDEX_CACHE_DIR=/tmp/cache\n")
	t.Setenv("FILINGINDEX_CACHE_DIR", "/srv/cache")
	t.Setenv("FILINGINDEX_LOAD_BUDGET", "45s")

	cfg, err := Load(yamlPath, envPath)
	require.NoError(t, err)

	want := Default()
	want.Database = "/var/lib/filingindex/index.db"
	want.Pause = time.Second
	want.Retries = 7
	want.Dialect = "postgres"
	want.CacheDir = "/srv/cache"
	want.LoadBudget = 45 * time.Second
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_WithoutFiles(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, Default().ListingURL, cfg.ListingURL)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "bad.yaml", "databse: typo.db\n")
	_, err := Load(path, "")
	assert.True(t, model.IsCode(err, model.ErrCodeBadType))
}

func TestLoad_MissingExplicitFiles(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	assert.Error(t, err)

	_, err = Load("", filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("FILINGINDEX_PAUSE", "soon")
	_, err := Load("", "")
	assert.True(t, model.IsCode(err, model.ErrCodeBadType))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database", func(c *Config) { c.Database = "" }},
		{"user agent without contact", func(c *Config) { c.UserAgent = "filingindex" }},
		{"unknown dialect", func(c *Config) { c.Dialect = "oracle" }},
		{"unknown policy", func(c *Config) { c.DuplicatePolicy = "newest" }},
		{"negative pause", func(c *Config) { c.Pause = -time.Second }},
		{"zero load budget", func(c *Config) { c.LoadBudget = 0 }},
		{"company url without cik slot", func(c *Config) { c.CompanyURL = "https://www.sec.gov/cgi-bin/browse-edgar" }},
		{"listing not a url", func(c *Config) { c.ListingURL = "edgar/monthly" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, model.IsCode(err, model.ErrCodeBadType))
		})
	}
}
