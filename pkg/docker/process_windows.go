//go:build windows

package docker

import "os/exec"

// configureProcessGroup is a no-op on Windows; CommandContext's default kill
// is the best available behavior there.
func configureProcessGroup(_ *exec.Cmd) {}
