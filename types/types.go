// Copyright (c) 2022 Whist Technologies, Inc.

// Package types contains the data model shared by the session orchestrator
// and its drivers. Values in this package are built once from configuration
// and are not mutated afterwards.
package types // import "github.com/whisthq/whist/backend/cloud-desktop/types"

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/whisthq/whist/backend/cloud-desktop/utils"
)

// InstanceName is the name of an ephemeral cloud instance.
type InstanceName string

// DiskName is the name of the persistent boot disk of an instance.
type DiskName string

// Zone is the placement zone of an instance and its disk.
type Zone string

// ExitHandle undoes whatever the operation that returned it did. It must be
// invoked at most once.
type ExitHandle func(ctx context.Context) error

// MachineType is either a named provider machine type or an explicit
// vCPU/memory pair.
type MachineType struct {
	Name     string
	VCPU     int
	MemoryGB float64
}

// IsCustom reports whether the machine type is a vCPU/memory pair.
func (m MachineType) IsCustom() bool {
	return m.Name == "" && m.VCPU > 0 && m.MemoryGB > 0
}

// String returns the descriptor sent to the provider. Custom types use the
// `custum-<vcpu>-<memoryMB>` form that existing deployments depend on.
func (m MachineType) String() string {
	if m.Name != "" {
		return m.Name
	}
	return utils.Sprintf("custum-%d-%d", m.VCPU, int(math.Round(m.MemoryGB*1024)))
}

// Validate makes sure that exactly one form of machine type was given.
func (m MachineType) Validate() error {
	if m.Name == "" && !m.IsCustom() {
		return &InvalidArgumentError{Argument: "machine-type", Reason: "no machine type is specified"}
	}
	return nil
}

// Accelerator is a guest accelerator attached to an instance.
type Accelerator struct {
	DeviceType string
	Count      int
}

// ParseAccelerators parses `type=count` items. Items may themselves hold a
// comma-separated list, and empty items are ignored.
func ParseAccelerators(values []string) ([]Accelerator, error) {
	var accelerators []Accelerator
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}

			deviceType, rawCount, found := strings.Cut(item, "=")
			if !found || deviceType == "" {
				return nil, &InvalidArgumentError{Argument: "accelerator", Reason: utils.Sprintf("%q is not of the form type=count", item)}
			}
			count, err := strconv.Atoi(rawCount)
			if err != nil || count <= 0 {
				return nil, &InvalidArgumentError{Argument: "accelerator", Reason: utils.Sprintf("invalid count in %q", item)}
			}
			accelerators = append(accelerators, Accelerator{DeviceType: deviceType, Count: count})
		}
	}
	return accelerators, nil
}

// MachineSpec holds the create-time parameters of an instance.
type MachineSpec struct {
	Name         InstanceName
	Disk         DiskName
	Zone         Zone
	Type         MachineType
	Accelerators []Accelerator
	Preemptible  bool
	Tags         []string
}

// SnapshotLabels holds the label keys used to tag snapshots so that the
// newest snapshot of a disk can be found again.
type SnapshotLabels struct {
	DiskName string
	DiskType string
	Project  string
}

// Option is a single command-line option of a driver. A nil Value means the
// option is a bare flag.
type Option struct {
	Name  string
	Value *string
}

// ParseOptions parses `Key=Value` and bare `Key` items into options, keeping
// their order.
func ParseOptions(values []string) []Option {
	options := make([]Option, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		name, value, found := strings.Cut(v, "=")
		if !found {
			options = append(options, Option{Name: name})
			continue
		}
		options = append(options, Option{Name: name, Value: &value})
	}
	return options
}

// ValidateOptions checks the options against a schema that maps each known
// option name to whether it takes a value.
func ValidateOptions(options []Option, schema map[string]bool) error {
	for _, o := range options {
		takesValue, ok := schema[o.Name]
		if !ok {
			return &InvalidArgumentError{Argument: o.Name, Reason: "unknown option"}
		}
		if takesValue && o.Value == nil {
			return &InvalidArgumentError{Argument: o.Name, Reason: "option requires a value"}
		}
		if !takesValue && o.Value != nil {
			return &InvalidArgumentError{Argument: o.Name, Reason: "option does not take a value"}
		}
	}
	return nil
}

// TunnelSpec holds the parameters of a forwarded port.
type TunnelSpec struct {
	Host         string
	Port         int
	User         string
	IdentityFile string
	RemotePort   int
	LocalPort    int
	Options      []Option
}
