// Copyright (c) 2022 Whist Technologies, Inc.

package hosts

import (
	"testing"
	"time"

	"github.com/whisthq/whist/backend/cloud-desktop/types"
)

type snapshot struct {
	name    string
	created time.Time
}

func TestNewest(t *testing.T) {
	old := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)

	var tests = []struct {
		name     string
		items    []snapshot
		expected string
		found    bool
	}{
		{"newest wins", []snapshot{{"old", old}, {"new", recent}}, "new", true},
		{"order does not matter", []snapshot{{"new", recent}, {"old", old}}, "new", true},
		{"ties keep the first", []snapshot{{"first", recent}, {"second", recent}, {"old", old}}, "first", true},
		{"empty", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best, found := Newest(tt.items, func(s snapshot) time.Time { return s.created })
			if found != tt.found {
				t.Fatalf("expected found %v, got %v", tt.found, found)
			}
			if best.name != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, best.name)
			}
		})
	}
}

func TestRegionFromZone(t *testing.T) {
	var tests = []struct {
		zone, expected string
	}{
		{"us-central1-a", "us-central1"},
		{"asia-northeast1-b", "asia-northeast1"},
		{"zone", "zone"},
	}

	for _, tt := range tests {
		if got := RegionFromZone(types.Zone(tt.zone)); got != tt.expected {
			t.Errorf("expected region of %s to be %s, got %s", tt.zone, tt.expected, got)
		}
	}
}

func TestParseDiskTypeURL(t *testing.T) {
	project, diskType, err := ParseDiskTypeURL("http://test/projects/project/zones/zone/diskTypes/pd_standard")
	if err != nil {
		t.Fatalf("did not expect error, got: %s", err)
	}
	if project != "project" || diskType != "pd_standard" {
		t.Errorf("expected (project, pd_standard), got (%s, %s)", project, diskType)
	}

	if _, _, err := ParseDiskTypeURL("pd-standard"); err == nil {
		t.Errorf("expected a bare disk type to be rejected")
	}
}

func TestDiskNameLabelValue(t *testing.T) {
	if got := DiskNameLabelValue("zone", "test"); got != "zone_test" {
		t.Errorf("expected zone_test, got %s", got)
	}
}
