//go:build !windows

package claude

import "os/exec"

func hideConsoleWindow(_ *exec.Cmd) {}
