// Package config loads the engine configuration from a YAML file and the
// environment, and validates it against an embedded CUE schema.
//
// Precedence, lowest first: built-in defaults, the YAML file, variables
// from the .env file, process environment variables. Every field has a
// FILINGINDEX_<KEY> variable named after its upper-cased YAML key.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/filingindex/internal/catalog"
	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/reconcile"
)

// EnvPrefix prefixes every configuration variable.
const EnvPrefix = "FILINGINDEX_"

//go:embed schema.cue
var schemaSource string

// Config is the runtime configuration. Durations are written as Go
// duration strings ("200ms", "20s") in YAML and the environment.
type Config struct {
	Database        string        `yaml:"database" json:"database"`
	CacheDir        string        `yaml:"cache_dir" json:"cache_dir"`
	UserAgent       string        `yaml:"user_agent" json:"user_agent"`
	ListingURL      string        `yaml:"listing_url" json:"listing_url"`
	LatestURL       string        `yaml:"latest_url" json:"latest_url"`
	CatalogURL      string        `yaml:"catalog_url" json:"catalog_url"`
	CatalogBaseURL  string        `yaml:"catalog_base_url" json:"catalog_base_url"`
	GLEIFURL        string        `yaml:"gleif_url" json:"gleif_url"`
	CompanyURL      string        `yaml:"company_url" json:"company_url"`
	TickersURL      string        `yaml:"tickers_url" json:"tickers_url"`
	Pause           time.Duration `yaml:"pause" json:"pause"`
	LoadBudget      time.Duration `yaml:"load_budget" json:"load_budget"`
	Retries         int           `yaml:"retries" json:"retries"`
	Dialect         string        `yaml:"dialect" json:"dialect"`
	DuplicatePolicy string        `yaml:"duplicate_policy" json:"duplicate_policy"`
	ServeAddr       string        `yaml:"serve_addr" json:"serve_addr"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Database:        "filingindex.db",
		CacheDir:        "cache",
		UserAgent:       "filingindex/1.0 admin@example.com",
		ListingURL:      "https://www.sec.gov/Archives/edgar/monthly/",
		LatestURL:       "https://www.sec.gov/Archives/edgar/xbrlrss.all.xml",
		CatalogURL:      catalog.DefaultIndexURL,
		CatalogBaseURL:  catalog.DefaultBaseURL,
		GLEIFURL:        catalog.DefaultGLEIFURL,
		CompanyURL:      reconcile.DefaultCompanyURL,
		TickersURL:      reconcile.DefaultTickersURL,
		Pause:           reconcile.DefaultPause,
		LoadBudget:      20 * time.Second,
		Retries:         reconcile.DefaultRetries,
		Dialect:         "sqlite",
		DuplicatePolicy: "latest",
		ServeAddr:       "127.0.0.1:8080",
	}
}

// Load builds the configuration. path names an optional YAML file and
// envFile an optional .env file; a missing file is an error only when its
// name was given explicitly.
func Load(path, envFile string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, model.WrapError(model.ErrCodeBadType, "parse config "+path, err)
		}
	}

	env := map[string]string{}
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		if err != nil && !(errors.Is(err, fs.ErrNotExist) && envFile == DefaultEnvFile) {
			return Config{}, fmt.Errorf("read env file: %w", err)
		}
		for k, v := range vars {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	if err := cfg.apply(env); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultEnvFile is read when present.
const DefaultEnvFile = ".env"

func (c *Config) fields() map[string]any {
	return map[string]any{
		"DATABASE":         &c.Database,
		"CACHE_DIR":        &c.CacheDir,
		"USER_AGENT":       &c.UserAgent,
		"LISTING_URL":      &c.ListingURL,
		"LATEST_URL":       &c.LatestURL,
		"CATALOG_URL":      &c.CatalogURL,
		"CATALOG_BASE_URL": &c.CatalogBaseURL,
		"GLEIF_URL":        &c.GLEIFURL,
		"COMPANY_URL":      &c.CompanyURL,
		"TICKERS_URL":      &c.TickersURL,
		"PAUSE":            &c.Pause,
		"LOAD_BUDGET":      &c.LoadBudget,
		"RETRIES":          &c.Retries,
		"DIALECT":          &c.Dialect,
		"DUPLICATE_POLICY": &c.DuplicatePolicy,
		"SERVE_ADDR":       &c.ServeAddr,
	}
}

func (c *Config) apply(env map[string]string) error {
	for key, field := range c.fields() {
		v, ok := env[EnvPrefix+key]
		if !ok {
			continue
		}
		switch p := field.(type) {
		case *string:
			*p = v
		case *time.Duration:
			d, err := time.ParseDuration(v)
			if err != nil {
				return model.WrapError(model.ErrCodeBadType, EnvPrefix+key, err)
			}
			*p = d
		case *int:
			n, err := strconv.Atoi(v)
			if err != nil {
				return model.WrapError(model.ErrCodeBadType, EnvPrefix+key, err)
			}
			*p = n
		}
	}
	return nil
}

// Validate checks c against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := def.Unify(ctx.Encode(c))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return model.WrapError(model.ErrCodeBadType, "invalid configuration", err)
	}
	return nil
}
