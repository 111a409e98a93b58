//go:build linux

package cmd

import (
	"os"
	"path/filepath"
)

// resolveExecutable returns the real path of the running binary, following
// the /proc/self/exe symlink so a service unit keeps working even if the
// binary is later moved relative to the caller's working directory.
func resolveExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return exe, nil
	}
	return real, nil
}
