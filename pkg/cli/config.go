package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"searchads-tap/internal/config"
)

// UserConfig represents ~/.searchads/config.yaml.
type UserConfig struct {
	CurrentProfile string             `yaml:"current-profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Profile is one named set of defaults, typically one search ads
// organisation. Each key is used only when neither its flag nor its
// environment variable is set.
type Profile struct {
	AccessToken string `yaml:"access-token,omitempty" json:"access-token,omitempty"` // --access-token, SEARCHADS_ACCESS_TOKEN
	OrgID       string `yaml:"org-id,omitempty" json:"org-id,omitempty"`             // --org-id, SEARCHADS_ORG_ID
	Sink        string `yaml:"sink,omitempty" json:"sink,omitempty"`                 // --sink, SINK
	Ledger      string `yaml:"ledger,omitempty" json:"ledger,omitempty"`             // --ledger, LEDGER_DB_PATH
	SelectorDir string `yaml:"selector-dir,omitempty" json:"selector-dir,omitempty"` // SELECTOR_DIR
	LogLevel    string `yaml:"log-level,omitempty" json:"log-level,omitempty"`       // --log-level, LOG_LEVEL
	Output      string `yaml:"output,omitempty" json:"output,omitempty"`             // -o/--output, SEARCHADS_OUTPUT
}

// apply layers the profile under the flags and environment already in cfg.
// Output is resolved separately since it also depends on the terminal.
func (p Profile) apply(cmd *cobra.Command, f *rootFlags, cfg *config.Config) {
	resolve(cmd, "access-token", f.accessToken, "SEARCHADS_ACCESS_TOKEN", p.AccessToken, &cfg.AccessToken)
	resolve(cmd, "org-id", f.orgID, "SEARCHADS_ORG_ID", p.OrgID, &cfg.OrgID)
	resolve(cmd, "sink", f.sink, "SINK", p.Sink, &cfg.Sink)
	resolve(cmd, "ledger", f.ledger, "LEDGER_DB_PATH", p.Ledger, &cfg.LedgerDBPath)
	resolve(cmd, "log-level", f.logLevel, "LOG_LEVEL", p.LogLevel, &cfg.LogLevel)
	if p.SelectorDir != "" && os.Getenv("SELECTOR_DIR") == "" {
		cfg.SelectorDir = p.SelectorDir
	}
}

// resolve overwrites *dst with the flag value when the flag was set, or with
// the profile value when the environment variable is unset.
func resolve(cmd *cobra.Command, flag, flagValue, envKey, profileValue string, dst *string) {
	switch {
	case cmd.Flags().Changed(flag):
		*dst = flagValue
	case os.Getenv(envKey) != "":
	case profileValue != "":
		*dst = profileValue
	}
}

// ActiveProfile returns the profile to use based on the override or current-profile.
func (c *UserConfig) ActiveProfile(override string) Profile {
	name := c.CurrentProfile
	if override != "" {
		name = override
	}
	if p, ok := c.Profiles[name]; ok {
		return p
	}
	return Profile{}
}

// ConfigDir returns the path to ~/.searchads/.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".searchads")
}

// ConfigPath returns the path to ~/.searchads/config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LoadUserConfig reads ~/.searchads/config.yaml.
func LoadUserConfig() (*UserConfig, error) {
	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg UserConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return &cfg, nil
}

// SaveUserConfig writes ~/.searchads/config.yaml.
func SaveUserConfig(cfg *UserConfig) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0o600)
}
