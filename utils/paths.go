// Copyright (c) 2022 Whist Technologies, Inc.

package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading `~/` with the home directory of the user.
// Other paths, and paths that cannot be expanded, are returned unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
