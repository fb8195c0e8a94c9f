package bridge

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWorkspaceProfileMissing(t *testing.T) {
	p, err := LoadWorkspaceProfile(t.TempDir())
	if err != nil {
		t.Fatalf("LoadWorkspaceProfile: %v", err)
	}
	if p != nil {
		t.Fatalf("profile = %+v, want nil when the file is absent", p)
	}
}

func TestLoadWorkspaceProfileApply(t *testing.T) {
	dir := t.TempDir()
	content := "model: sonnet\nallowed_tools:\n  - Bash\n  - Read\ncommand_timeout: 15m\n"
	if err := os.WriteFile(filepath.Join(dir, profileFileName), []byte(content), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	p, err := LoadWorkspaceProfile(dir)
	if err != nil {
		t.Fatalf("LoadWorkspaceProfile: %v", err)
	}
	if p == nil {
		t.Fatal("profile = nil, want loaded")
	}

	opts := normalizeOptions(Options{BotToken: "tok", OwnerID: 1})
	if err := p.Apply(&opts); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if opts.Model != "sonnet" {
		t.Fatalf("model = %q, want %q", opts.Model, "sonnet")
	}
	if len(opts.AllowedTools) != 2 || opts.AllowedTools[0] != "Bash" || opts.AllowedTools[1] != "Read" {
		t.Fatalf("allowed tools = %v, want [Bash Read]", opts.AllowedTools)
	}
	if opts.CommandTimeout != 15*time.Minute {
		t.Fatalf("timeout = %s, want 15m", opts.CommandTimeout)
	}
}

func TestLoadWorkspaceProfileBadYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, profileFileName), []byte("model: [unclosed"), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	if _, err := LoadWorkspaceProfile(dir); err == nil {
		t.Fatal("expected parse error for malformed profile")
	}
}

func TestProfileBadTimeout(t *testing.T) {
	p := &WorkspaceProfile{CommandTimeout: "soon"}
	opts := normalizeOptions(Options{BotToken: "tok", OwnerID: 1})
	if err := p.Apply(&opts); err == nil {
		t.Fatal("expected error for unparseable command_timeout")
	}
}

func TestNilProfileApply(t *testing.T) {
	opts := normalizeOptions(Options{BotToken: "tok", OwnerID: 1})
	before := opts.Model
	var p *WorkspaceProfile
	if err := p.Apply(&opts); err != nil {
		t.Fatalf("Apply on nil profile: %v", err)
	}
	if opts.Model != before {
		t.Fatalf("nil profile changed model to %q", opts.Model)
	}
}
