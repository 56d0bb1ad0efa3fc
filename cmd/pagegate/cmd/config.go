package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmcleod/pagegate/bundle"
)

// siteConfig describes one gated site: which tiers exist, where each tier's
// content bundle lives, and how each tier is unlocked. Master passwords are
// referenced by environment variable name so the config file itself stays
// free of secrets.
type siteConfig struct {
	// Iterations is the PBKDF2 iteration count for new envelopes. Zero
	// means the encryptor default.
	Iterations int `json:"iterations,omitempty"`
	// CodeTTLHours is the one-time code validity window. Zero means 48h.
	CodeTTLHours int `json:"code_ttl_hours,omitempty"`
	// CodeLength is the generated one-time code length. Zero means 8.
	CodeLength int `json:"code_length,omitempty"`

	Tiers map[string]tierConfig `json:"tiers"`

	// dir is the config file's directory; bundle paths resolve against it.
	dir string
}

type tierConfig struct {
	// Bundle is the path to the tier's content JSON, relative to the
	// config file.
	Bundle string `json:"bundle"`
	// PasswordEnv names the environment variable holding the tier's
	// master password. Empty means the tier has no master method.
	PasswordEnv string `json:"password_env,omitempty"`
	// OneTimeCode enables the rotating one-time code method.
	OneTimeCode bool `json:"one_time_code,omitempty"`
}

func loadSiteConfig(path string) (*siteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading site config: %w", err)
	}
	var cfg siteConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing site config %s: %w", path, err)
	}
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("site config %s declares no tiers", path)
	}
	for name, tc := range cfg.Tiers {
		if tc.Bundle == "" {
			return nil, fmt.Errorf("tier %q: no bundle path", name)
		}
		if tc.PasswordEnv == "" && !tc.OneTimeCode {
			return nil, fmt.Errorf("tier %q: no unlock method configured", name)
		}
	}
	cfg.dir = filepath.Dir(path)
	return &cfg, nil
}

// loadBundle reads and validates one tier's content bundle.
func (c *siteConfig) loadBundle(tier string) (*bundle.Bundle, error) {
	tc, ok := c.Tiers[tier]
	if !ok {
		return nil, fmt.Errorf("tier %q not in site config", tier)
	}
	path := tc.Bundle
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bundle for tier %q: %w", tier, err)
	}
	b, err := bundle.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("bundle for tier %q: %w", tier, err)
	}
	return b, nil
}

// masterPassword resolves a tier's master password from the environment.
// The empty string with ok=false means the tier has no master method.
func (c *siteConfig) masterPassword(tier string) (string, bool, error) {
	tc := c.Tiers[tier]
	if tc.PasswordEnv == "" {
		return "", false, nil
	}
	pw := os.Getenv(tc.PasswordEnv)
	if pw == "" {
		return "", true, fmt.Errorf("tier %q: environment variable %s is empty or unset", tier, tc.PasswordEnv)
	}
	return pw, true, nil
}
