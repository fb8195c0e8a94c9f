package claude

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const DefaultBin = "claude"

// DefaultAllowedTools mirrors the CLI tools the bridge expects to see in
// the event stream.
var DefaultAllowedTools = []string{
	"Bash", "Read", "Write", "Edit", "Glob", "Grep", "WebFetch", "WebSearch", "Task",
}

type Options struct {
	Bin          string
	Model        string
	AllowedTools []string
	WorkspaceDir string

	// MaxLineBytes caps a single stream line; MaxStderrBytes caps the
	// captured stderr used in error replies.
	MaxLineBytes   int
	MaxStderrBytes int
}

type Runner struct {
	opts Options
}

func NewRunner(opts Options) *Runner {
	if strings.TrimSpace(opts.Bin) == "" {
		opts.Bin = DefaultBin
	}
	if len(opts.AllowedTools) == 0 {
		opts.AllowedTools = DefaultAllowedTools
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = 1024 * 1024
	}
	if opts.MaxStderrBytes <= 0 {
		opts.MaxStderrBytes = 64 * 1024
	}
	return &Runner{opts: opts}
}

// LookPath reports whether the configured binary resolves on PATH.
func (r *Runner) LookPath() (string, error) {
	return exec.LookPath(r.opts.Bin)
}

type Request struct {
	Prompt    string
	SessionID string // resume this session when set
	Model     string // per-request override, optional
}

// Start spawns one CLI invocation for req. The child inherits the
// environment minus CLAUDECODE (the CLI refuses to nest otherwise), runs in
// the workspace dir, and reads stdin from the null device so it can never
// block on an interactive prompt. Cancel ctx to kill it.
func (r *Runner) Start(ctx context.Context, req Request) (*Stream, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("empty prompt")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = strings.TrimSpace(r.opts.Model)
	}

	args := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	args = append(args, "--allowedTools", strings.Join(r.opts.AllowedTools, ","))
	if sid := strings.TrimSpace(req.SessionID); sid != "" {
		args = append(args, "--resume", sid)
	}

	cmd := exec.CommandContext(ctx, r.opts.Bin, args...)
	if dir := strings.TrimSpace(r.opts.WorkspaceDir); dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = scrubEnv(os.Environ())
	cmd.Stdin = nil // reads from the null device
	cmd.WaitDelay = 5 * time.Second
	hideConsoleWindow(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &limitedBuffer{Limit: r.opts.MaxStderrBytes}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.opts.Bin, err)
	}
	return newStream(cmd, stdout, stderr, r.opts.MaxLineBytes), nil
}

// Args returns the argv Start would use, without spawning. Exposed for
// logging and inspection.
func (r *Runner) Args(req Request) []string {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = strings.TrimSpace(r.opts.Model)
	}
	args := []string{r.opts.Bin, "-p", strings.TrimSpace(req.Prompt), "--output-format", "stream-json", "--verbose"}
	if model != "" {
		args = append(args, "--model", model)
	}
	args = append(args, "--allowedTools", strings.Join(r.opts.AllowedTools, ","))
	if sid := strings.TrimSpace(req.SessionID); sid != "" {
		args = append(args, "--resume", sid)
	}
	return args
}

func scrubEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, "CLAUDECODE=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
