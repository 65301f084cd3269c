package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override. A double underscore nests:
// LAKE_OUTPUT__BASE sets output.base.
const EnvPrefix = "LAKE_"

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// Path is the YAML file. Empty falls back to $LAKE_CONFIG, then no file.
	Path string
	// Flags, when set, contributes every flag the user changed whose name is
	// a key of FlagKeys.
	Flags    *pflag.FlagSet
	FlagKeys map[string]string
}

// Load builds a Config by layering, low -> high:
//  1. defaults (Default())
//  2. YAML file
//  3. env (prefix LAKE_)
//  4. changed command-line flags
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	path := opts.Path
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	if opts.Flags != nil {
		var setErr error
		opts.Flags.Visit(func(f *pflag.Flag) {
			key, ok := opts.FlagKeys[f.Name]
			if !ok || setErr != nil {
				return
			}
			setErr = k.Set(key, f.Value.String())
		})
		if setErr != nil {
			return nil, fmt.Errorf("config: apply flags: %w", setErr)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}
