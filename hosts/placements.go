// Copyright (c) 2022 Whist Technologies, Inc.

package hosts

import (
	"sync"

	"github.com/whisthq/whist/backend/cloud-desktop/types"
)

// Placements remembers the zone each instance and disk was created or
// restored in, so that later operations that only receive a name act in the
// same zone. The zero value is ready to use.
type Placements struct {
	mu        sync.Mutex
	instances map[types.InstanceName]types.Zone
	disks     map[types.DiskName]types.Zone
}

// PlaceInstance records the zone of an instance. An empty zone is ignored.
func (p *Placements) PlaceInstance(instance types.InstanceName, zone types.Zone) {
	if zone == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.instances == nil {
		p.instances = make(map[types.InstanceName]types.Zone)
	}
	p.instances[instance] = zone
}

// PlaceDisk records the zone of a disk. An empty zone is ignored.
func (p *Placements) PlaceDisk(disk types.DiskName, zone types.Zone) {
	if zone == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disks == nil {
		p.disks = make(map[types.DiskName]types.Zone)
	}
	p.disks[disk] = zone
}

// InstanceZone returns the recorded zone of the instance, or fallback.
func (p *Placements) InstanceZone(instance types.InstanceName, fallback types.Zone) types.Zone {
	p.mu.Lock()
	defer p.mu.Unlock()
	if zone, ok := p.instances[instance]; ok {
		return zone
	}
	return fallback
}

// DiskZone returns the recorded zone of the disk, or fallback.
func (p *Placements) DiskZone(disk types.DiskName, fallback types.Zone) types.Zone {
	p.mu.Lock()
	defer p.mu.Unlock()
	if zone, ok := p.disks[disk]; ok {
		return zone
	}
	return fallback
}
