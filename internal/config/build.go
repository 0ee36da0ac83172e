// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"fmt"
	"net/http"

	"github.com/pdiddy/watchcat/internal/pull"
	"github.com/pdiddy/watchcat/internal/secrets"
	"github.com/pdiddy/watchcat/internal/source"
	"github.com/pdiddy/watchcat/internal/source/arxiv"
	"github.com/pdiddy/watchcat/internal/source/mailbox"
	"github.com/pdiddy/watchcat/pkg/types"
)

// BuildOptions carries the runtime dependencies of Build.
type BuildOptions struct {
	// Secrets resolves password_secret names. Nil loads the configured
	// secrets directory on first use.
	Secrets map[string]string

	// HTTPClient is shared by HTTP adapters. Nil gives each adapter its own.
	HTTPClient *http.Client
}

// Build constructs a pull source for every enabled entry, or for the
// entries named in ids when ids is non-empty. Unknown ids are an error.
func (c *Config) Build(opts BuildOptions, ids ...string) ([]pull.Source, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.Source(id); !ok {
			return nil, types.ConfigError(id, fmt.Errorf("no source %q in config", id))
		}
		want[id] = true
	}

	var out []pull.Source
	for _, sc := range c.Sources {
		if len(want) > 0 && !want[sc.ID] {
			continue
		}
		if len(want) == 0 && sc.Disabled {
			continue
		}
		src, err := c.buildSource(sc, &opts)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func (c *Config) buildSource(sc SourceConfig, opts *BuildOptions) (pull.Source, error) {
	expr, err := sc.Filter.Build()
	if err != nil {
		return pull.Source{}, types.ConfigError(sc.ID, err)
	}

	var a source.Adapter
	switch sc.Kind {
	case KindArxiv:
		a, err = c.buildArxiv(sc, opts)
	case KindMailbox:
		a, err = c.buildMailbox(sc, opts)
	default:
		err = types.ConfigError(sc.ID, fmt.Errorf("unknown source kind %q", sc.Kind))
	}
	if err != nil {
		return pull.Source{}, err
	}
	return pull.Source{
		Adapter:    a,
		Filter:     expr,
		Lookback:   sc.Lookback,
		SeenWindow: sc.SeenWindow,
	}, nil
}

func (c *Config) buildArxiv(sc SourceConfig, opts *BuildOptions) (source.Adapter, error) {
	var ac types.ArxivConfig
	if sc.Arxiv != nil {
		ac = *sc.Arxiv
	}
	// Global HTTP settings fill what the source leaves unset.
	if ac.Timeout == 0 {
		ac.Timeout = c.HTTP.Timeout
	}
	if ac.UserAgent == "" {
		ac.UserAgent = c.HTTP.UserAgent
	}
	if ac.MaxRetries == 0 {
		ac.MaxRetries = c.HTTP.MaxRetries
	}
	return arxiv.New(sc.ID, ac, opts.HTTPClient)
}

func (c *Config) buildMailbox(sc SourceConfig, opts *BuildOptions) (source.Adapter, error) {
	mc := *sc.Mailbox
	if mc.PasswordSecret != "" {
		if opts.Secrets == nil {
			loaded, err := secrets.Load(c.SecretsDir)
			if err != nil {
				return nil, types.ConfigError(sc.ID, err)
			}
			opts.Secrets = loaded
		}
		pw, err := secrets.Lookup(opts.Secrets, mc.PasswordSecret)
		if err != nil {
			return nil, types.ConfigError(sc.ID, err)
		}
		mc.Password = pw
	}
	return mailbox.New(sc.ID, mc)
}
