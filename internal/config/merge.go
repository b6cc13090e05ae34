// Copyright (c) 2022 Whist Technologies, Inc.

package config

import "github.com/knadh/koanf/maps"

// Merge returns override layered on top of base. Nested objects are merged
// key by key, anything else in override replaces the value in base. Neither
// argument is modified.
func Merge(base, override map[string]interface{}) map[string]interface{} {
	out := maps.Copy(base)
	maps.Merge(maps.Copy(override), out)
	return out
}
