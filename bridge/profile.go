package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// profileFileName is looked up at the workspace root. A workspace can pin
// its own model, tool allowlist, and timeout without touching the global
// configuration.
const profileFileName = ".claudelink.yaml"

type WorkspaceProfile struct {
	Model          string   `yaml:"model"`
	AllowedTools   []string `yaml:"allowed_tools"`
	CommandTimeout string   `yaml:"command_timeout"`
}

// LoadWorkspaceProfile reads dir's profile file if one exists. A missing
// file is not an error; a malformed one is.
func LoadWorkspaceProfile(dir string) (*WorkspaceProfile, error) {
	raw, err := os.ReadFile(filepath.Join(dir, profileFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workspace profile: %w", err)
	}
	var p WorkspaceProfile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse workspace profile: %w", err)
	}
	return &p, nil
}

// Timeout parses the profile's command_timeout. Zero with nil error means
// the profile does not set one.
func (p *WorkspaceProfile) Timeout() (time.Duration, error) {
	if p == nil || p.CommandTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.CommandTimeout)
	if err != nil {
		return 0, fmt.Errorf("parse command_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("command_timeout must be positive, got %q", p.CommandTimeout)
	}
	return d, nil
}

// Apply overlays the profile's settings onto opts. Unset profile fields
// leave the corresponding option untouched.
func (p *WorkspaceProfile) Apply(opts *Options) error {
	if p == nil {
		return nil
	}
	if p.Model != "" {
		opts.Model = p.Model
	}
	if len(p.AllowedTools) > 0 {
		opts.AllowedTools = append([]string(nil), p.AllowedTools...)
	}
	d, err := p.Timeout()
	if err != nil {
		return err
	}
	if d > 0 {
		opts.CommandTimeout = d
	}
	return nil
}
