// Copyright (c) 2022 Whist Technologies, Inc.

package hosts

import (
	"testing"

	"github.com/whisthq/whist/backend/cloud-desktop/types"
)

func TestPlacements(t *testing.T) {
	var p Placements

	if zone := p.InstanceZone("vm", "default"); zone != "default" {
		t.Errorf("expected the fallback for an unknown instance, got %s", zone)
	}
	if zone := p.DiskZone("disk", "default"); zone != "default" {
		t.Errorf("expected the fallback for an unknown disk, got %s", zone)
	}

	p.PlaceInstance("vm", "europe-west1-b")
	p.PlaceDisk("disk", "europe-west1-c")
	p.PlaceInstance("other", "")

	var tests = []struct {
		name     string
		got      types.Zone
		expected types.Zone
	}{
		{"recorded instance", p.InstanceZone("vm", "default"), "europe-west1-b"},
		{"recorded disk", p.DiskZone("disk", "default"), "europe-west1-c"},
		{"empty zone is ignored", p.InstanceZone("other", "default"), "default"},
		{"instances and disks are separate", p.DiskZone("vm", "default"), "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, tt.got)
			}
		})
	}
}
