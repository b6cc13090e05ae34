// Copyright (c) 2022 Whist Technologies, Inc.

package types

import (
	"strconv"
	"strings"
)

// VNCBasePort is the port of VNC display 0.
const VNCBasePort = 5900

// Target is a parsed `<name>[:display-number|::port]` argument.
type Target struct {
	Name string
	Port int
}

// ParseTarget parses `name:N` (display N, port 5900+N) and `name::P`
// (literal port P).
func ParseTarget(arg string) (Target, error) {
	var (
		name string
		raw  string
		base int
	)
	if i := strings.LastIndex(arg, "::"); i != -1 {
		name, raw = arg[:i], arg[i+2:]
	} else if i := strings.LastIndex(arg, ":"); i != -1 {
		name, raw, base = arg[:i], arg[i+1:], VNCBasePort
	} else {
		return Target{}, &InvalidArgumentError{Argument: arg, Reason: "a port or display-number is not specified"}
	}

	if name == "" {
		return Target{}, &InvalidArgumentError{Argument: arg, Reason: "a VM name is not specified"}
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return Target{}, &InvalidArgumentError{Argument: arg, Reason: "malformed port or display-number"}
	}

	port := base + n
	if port < 1 || port > 65535 {
		return Target{}, &InvalidArgumentError{Argument: arg, Reason: "port out of range"}
	}

	return Target{Name: name, Port: port}, nil
}
