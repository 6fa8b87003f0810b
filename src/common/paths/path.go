// Package paths provides common path manipulation utilities for crater applications.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// Expand resolves environment variables and a leading ~ in path. The home
// directory lookup is best effort: when it fails the path is returned with
// the ~ intact.
func Expand(path string) string {
	path = os.ExpandEnv(path)

	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// EnsureDirPath creates the directory path if it does not exist
func EnsureDirPath(dirPath string) error {
	return os.MkdirAll(dirPath, 0755)
}
