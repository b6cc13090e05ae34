// Copyright (c) 2022 Whist Technologies, Inc.

package hosts

import (
	"strings"
	"time"

	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"github.com/whisthq/whist/backend/cloud-desktop/utils"
)

// DefaultSnapshotLabels are the label keys used when none are configured.
var DefaultSnapshotLabels = types.SnapshotLabels{
	DiskName: "disk-name",
	DiskType: "disk-type",
	Project:  "project",
}

// DiskNameLabelValue returns the value of the disk-name label of the
// snapshots of disk in zone.
func DiskNameLabelValue(zone types.Zone, disk types.DiskName) string {
	return utils.Sprintf("%s_%s", zone, disk)
}

// Newest returns the item with the latest creation time. A candidate only
// replaces the current best if it is strictly newer, so ties keep the item
// that came first.
func Newest[T any](items []T, created func(T) time.Time) (T, bool) {
	var best T
	if len(items) == 0 {
		return best, false
	}

	best = items[0]
	bestTime := created(best)
	for _, item := range items[1:] {
		if t := created(item); t.After(bestTime) {
			best, bestTime = item, t
		}
	}
	return best, true
}

// RegionFromZone strips the trailing `-<suffix>` of a zone, so that
// `us-central1-a` becomes `us-central1`. A zone without a dash is returned as
// is.
func RegionFromZone(zone types.Zone) string {
	z := string(zone)
	if i := strings.LastIndex(z, "-"); i != -1 {
		return z[:i]
	}
	return z
}

// ParseDiskTypeURL extracts the project and disk type from a disk type URL
// such as `https://.../projects/<project>/zones/<zone>/diskTypes/<type>`.
func ParseDiskTypeURL(url string) (project string, diskType string, err error) {
	parts := strings.Split(strings.TrimSuffix(url, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		switch parts[i] {
		case "projects":
			project = parts[i+1]
		case "diskTypes":
			diskType = parts[i+1]
		}
	}

	if project == "" || diskType == "" {
		return "", "", utils.MakeError("couldn't parse disk type URL %q", url)
	}
	return project, diskType, nil
}
