// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config loads the watchcat configuration file and turns its source
// entries into pull sources with their adapters and filters.
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
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/watchcat/internal/checkpoint"
	"github.com/pdiddy/watchcat/internal/filter"
	"github.com/pdiddy/watchcat/internal/secrets"
	"github.com/pdiddy/watchcat/pkg/types"
)

// Source kinds accepted in the kind field of a source entry.
const (
	KindArxiv   = "arxiv"
	KindMailbox = "mailbox"
)

// Config is the top-level configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	HTTP       types.HTTPConfig `yaml:"http"`
	SecretsDir string           `yaml:"secrets_dir"`
	Sources    []SourceConfig   `yaml:"sources" validate:"dive"`
}

// LogConfig selects the root logger level and output format.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic off disabled"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// StoreConfig locates the checkpoint database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SourceConfig is one entry of the sources list.
type SourceConfig struct {
	ID   string `yaml:"id" validate:"required,excludesall=/"`
	Kind string `yaml:"kind" validate:"required,oneof=arxiv mailbox"`

	// Disabled sources are kept in the file but never pulled.
	Disabled bool `yaml:"disabled,omitempty"`

	// Lookback bounds the first pull when the filter has no lower date
	// bound (default 720h).
	Lookback time.Duration `yaml:"lookback,omitempty" validate:"gte=0"`

	// SeenWindow is the number of identifiers remembered for dedup
	// (default 5000).
	SeenWindow int `yaml:"seen_window,omitempty" validate:"gte=0"`

	Arxiv   *types.ArxivConfig   `yaml:"arxiv,omitempty"`
	Mailbox *types.MailboxConfig `yaml:"mailbox,omitempty"`

	Filter filter.Spec `yaml:"filter,omitempty"`
}

// applyDefaults fills unset top-level settings.
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Store.Path == "" {
		c.Store.Path = checkpoint.DefaultPath
	}
	if c.SecretsDir == "" {
		c.SecretsDir = secrets.DefaultDir
	}
}

// Load decodes the settings viper has read (file, defaults, and bound
// environment) and validates them.
func Load(v *viper.Viper) (*Config, error) {
	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	return parse(data, false)
}

// ParseFile reads and validates a configuration file without viper.
// Unknown keys are rejected.
func ParseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := parse(data, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func parse(data []byte, strict bool) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(strict)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and the cross-field rules: unique
// source ids, a settings block matching each source kind, and a supported
// mail protocol.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", trimNamespace(fe.Namespace()), fe.Tag()))
			}
			return types.ConfigError("", fmt.Errorf("invalid config: %s", strings.Join(msgs, "; ")))
		}
		return types.ConfigError("", err)
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if seen[s.ID] {
			return types.ConfigError(s.ID, fmt.Errorf("duplicate source id %q", s.ID))
		}
		seen[s.ID] = true

		switch s.Kind {
		case KindArxiv:
			if s.Mailbox != nil {
				return types.ConfigError(s.ID, errors.New("arxiv source has a mailbox block"))
			}
		case KindMailbox:
			if s.Mailbox == nil {
				return types.ConfigError(s.ID, errors.New("mailbox source needs a mailbox block"))
			}
			if s.Arxiv != nil {
				return types.ConfigError(s.ID, errors.New("mailbox source has an arxiv block"))
			}
			if _, err := types.ParseMailProtocol(s.Mailbox.Protocol); err != nil {
				return types.ConfigError(s.ID, err)
			}
		}
		if _, err := s.Filter.Build(); err != nil {
			return types.ConfigError(s.ID, err)
		}
	}
	return nil
}

// trimNamespace drops the root struct name from a validator namespace.
func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Source returns the entry with the given id.
func (c *Config) Source(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}
