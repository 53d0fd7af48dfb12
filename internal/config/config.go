// Package config loads the ledger proxy configuration from a YAML file,
// overlays command line flags and LEDGER_* environment variables, and
// validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/koperasi-ledger/pkg/ledger"
)

// Config is the complete proxy configuration.
type Config struct {
	// Listen is the proxy's HTTP listen address.
	Listen string `yaml:"listen" validate:"required"`

	API   APIConfig   `yaml:"api"`
	Cache CacheConfig `yaml:"cache"`
	Redis RedisConfig `yaml:"redis"`
	Log   LogConfig   `yaml:"log"`
}

// APIConfig describes the spreadsheet API.
type APIConfig struct {
	// URL is the API base; sheets are addressed as <url>?sheet=<name>.
	URL string `yaml:"url" validate:"required,url"`

	// Token is sent as a bearer token when set.
	Token string `yaml:"token"`

	UserAgent  string        `yaml:"user_agent" validate:"required"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries int           `yaml:"max_retries" validate:"min=0,max=10"`
}

// CacheConfig holds the per-resource TTLs.
type CacheConfig struct {
	DefaultTTL      time.Duration `yaml:"default_ttl" validate:"gt=0"`
	MembersTTL      time.Duration `yaml:"members_ttl" validate:"gt=0"`
	TransactionsTTL time.Duration `yaml:"transactions_ttl" validate:"gt=0"`
	LoansTTL        time.Duration `yaml:"loans_ttl" validate:"gt=0"`

	// Preload reads all resources at startup.
	Preload bool `yaml:"preload"`
}

// RedisConfig enables the shared quota tracker when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Listen: ":8080",
		API: APIConfig{
			UserAgent:  "koperasi-ledger/1.0",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Cache: CacheConfig{
			DefaultTTL:      time.Hour,
			MembersTTL:      ledger.MembersTTL,
			TransactionsTTL: ledger.TransactionsTTL,
			LoansTTL:        ledger.LoansTTL,
			Preload:         true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field and reports all violations at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "Config.api.url"; drop the struct name.
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		msg := field + ": failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Resources returns the sheet bindings with the configured TTLs.
func (c Config) Resources() ledger.Resources {
	res := ledger.DefaultResources(c.API.URL)
	res.Members.TTL = c.Cache.MembersTTL
	res.Transactions.TTL = c.Cache.TransactionsTTL
	res.Loans.TTL = c.Cache.LoansTTL
	return res
}
