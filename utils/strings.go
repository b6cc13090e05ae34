// Copyright (c) 2022 Whist Technologies, Inc.

package utils // import "github.com/whisthq/whist/backend/cloud-desktop/utils"

import (
	"fmt"
	"strings"
)

// The following two functions exist so that we don't have to import `fmt` into
// any other packages (so we don't accidentally print something using `fmt`
// functions instead of the logger that is passed around).

// Sprintf creates a string from format string and args.
func Sprintf(format string, v ...interface{}) string {
	return fmt.Sprintf(format, v...)
}

// MakeError creates an error from format string and args.
func MakeError(format string, v ...interface{}) error {
	return fmt.Errorf(format, v...)
}

// ContainsFold reports whether substr is within s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
