package hub

import (
	"sort"
	"time"
)

// diffOutcome summarises one cache reconciliation pass.
type diffOutcome struct {
	added   []Device
	removed []string
	changes []DeviceStateChange
}

// dirty reports whether the pass produced any add, remove or change.
func (o *diffOutcome) dirty() bool {
	return len(o.added) > 0 || len(o.removed) > 0 || len(o.changes) > 0
}

// diffProperties computes the PropertyChange set between two snapshots of
// the same device id: the symmetric union of both property-name sets, with
// each name deep-compared. A property present on only one side counts as a
// change (old or new value nil). Results are sorted by property name so
// emission order is deterministic.
func diffProperties(oldDev, newDev *Device) []PropertyChange {
	oldProps := propertyMapOf(oldDev)
	newProps := propertyMapOf(newDev)

	names := make(map[string]struct{}, len(oldProps)+len(newProps))
	for k := range oldProps {
		names[k] = struct{}{}
	}
	for k := range newProps {
		names[k] = struct{}{}
	}

	var changes []PropertyChange
	for name := range names {
		oldVal, hadOld := oldProps[name]
		newVal, hasNew := newProps[name]
		if hadOld && hasNew && deepEqual(oldVal, newVal) {
			continue
		}
		changes = append(changes, PropertyChange{
			Property: name,
			OldValue: oldVal,
			NewValue: newVal,
		})
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Property < changes[j].Property
	})
	return changes
}

// propertyMapOf flattens a device into its diffable property map. The
// online flag and name participate in diffing alongside the category
// properties so availability flaps and renames surface as state changes.
func propertyMapOf(d *Device) map[string]any {
	var m map[string]any
	if d.Props != nil {
		m = d.Props.PropertyMap()
	} else {
		m = make(map[string]any, 2)
	}
	m["online"] = d.Online
	m["name"] = d.Name
	return m
}

// updateDeviceCache reconciles the cache against a fresh snapshot list:
// unseen ids are added, differing records produce one DeviceStateChange
// each, and cached ids absent from the snapshot are removed. The cache
// always ends up holding clones of the new snapshot. Caller must hold
// c.mu.
func (c *Connection) updateDeviceCache(snapshot []Device, now time.Time) diffOutcome {
	var out diffOutcome
	seen := make(map[string]struct{}, len(snapshot))

	for i := range snapshot {
		dev := snapshot[i]
		seen[dev.ID] = struct{}{}

		cached, ok := c.devices[dev.ID]
		if !ok {
			clone := dev.Clone()
			c.devices[dev.ID] = &clone
			out.added = append(out.added, dev.Clone())
			continue
		}

		if changes := diffProperties(cached, &dev); len(changes) > 0 {
			out.changes = append(out.changes, DeviceStateChange{
				HubID:     c.cfg.ID,
				Device:    dev.Clone(),
				Changes:   changes,
				Timestamp: now,
			})
		}

		clone := dev.Clone()
		c.devices[dev.ID] = &clone
	}

	for id := range c.devices {
		if _, ok := seen[id]; !ok {
			delete(c.devices, id)
			out.removed = append(out.removed, id)
		}
	}
	sort.Strings(out.removed)

	return out
}
