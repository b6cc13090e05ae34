// Copyright (c) 2022 Whist Technologies, Inc.

package session

// Phase is a step of the session lifecycle. Phases are always entered in
// increasing order, and Cleanup is entered by every session that left Idle.
type Phase int

const (
	Idle Phase = iota
	Preparing
	Creating
	Resolving
	Tunneling
	Viewing
	Cleanup
	Done
)

var phaseNames = [...]string{
	Idle:      "idle",
	Preparing: "preparing",
	Creating:  "creating",
	Resolving: "resolving",
	Tunneling: "tunneling",
	Viewing:   "viewing",
	Cleanup:   "cleanup",
	Done:      "done",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}
