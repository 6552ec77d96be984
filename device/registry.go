package device

import (
	"sync"

	"github.com/go-trix/e2ee/identity"
)

// Registry is the in-memory device list: user_id -> device_id -> Device.
// It is safe for concurrent use, though the engine that owns it is
// itself single-threaded cooperative (see the package-level docs on
// Engine); the lock exists so a registry can be shared with a
// persistence goroutine that serializes snapshots in the background.
type Registry struct {
	mu      sync.RWMutex
	devices map[identity.UserID]map[identity.DeviceID]*Device
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[identity.UserID]map[identity.DeviceID]*Device)}
}

// Add inserts a device, returning true iff it was new.
//
// If a non-deleted device already occupies the (UserID, DeviceID) slot
// with a different Ed25519 fingerprint, Add refuses the insert and
// returns false: the caller must first route the change through
// MarkDeleted so the old fingerprint is never silently overwritten
// (invariant 1).
func (r *Registry) Add(d Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	byDevice, ok := r.devices[d.UserID]
	if !ok {
		byDevice = make(map[identity.DeviceID]*Device)
		r.devices[d.UserID] = byDevice
	}

	existing, ok := byDevice[d.DeviceID]
	if ok {
		if !existing.Deleted && existing.Ed25519 != d.Ed25519 {
			return false
		}
		if existing.Ed25519 == d.Ed25519 && existing.Curve25519 == d.Curve25519 && existing.Deleted == d.Deleted {
			return false
		}
	}

	cp := d
	byDevice[d.DeviceID] = &cp
	return true
}

// MarkDeleted flags a device deleted in place, preserving its
// fingerprint for history. It is a no-op if the device is unknown.
func (r *Registry) MarkDeleted(user identity.UserID, dev identity.DeviceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if byDevice, ok := r.devices[user]; ok {
		if d, ok := byDevice[dev]; ok {
			d.Deleted = true
		}
	}
}

// Remove is an alias of MarkDeleted, named for spec parity ("remove(user,
// device_id) flags deleted").
func (r *Registry) Remove(user identity.UserID, dev identity.DeviceID) {
	r.MarkDeleted(user, dev)
}

// Get returns the device at (user, deviceID), or false if unknown.
func (r *Registry) Get(user identity.UserID, dev identity.DeviceID) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byDevice, ok := r.devices[user]
	if !ok {
		return Device{}, false
	}
	d, ok := byDevice[dev]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// SetTrust updates the trust state of a known device.
func (r *Registry) SetTrust(user identity.UserID, dev identity.DeviceID, state TrustState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	byDevice, ok := r.devices[user]
	if !ok {
		return false
	}
	d, ok := byDevice[dev]
	if !ok {
		return false
	}
	d.TrustState = state
	return true
}

// DevicesOf returns every known device for a user, including deleted
// and blacklisted ones.
func (r *Registry) DevicesOf(user identity.UserID) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byDevice := r.devices[user]
	out := make([]Device, 0, len(byDevice))
	for _, d := range byDevice {
		out = append(out, *d)
	}
	return out
}

// ActiveUserDevices returns a user's devices usable as encryption
// targets: not deleted, not blacklisted. Ignored devices ARE included
// (spec §9(b): ignored devices are sharable but flagged).
func (r *Registry) ActiveUserDevices(user identity.UserID) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byDevice := r.devices[user]
	out := make([]Device, 0, len(byDevice))
	for _, d := range byDevice {
		if d.active() {
			out = append(out, *d)
		}
	}
	return out
}

// Snapshot returns every device across every user, for persistence.
func (r *Registry) Snapshot() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Device
	for _, byDevice := range r.devices {
		for _, d := range byDevice {
			out = append(out, *d)
		}
	}
	return out
}

// Load replaces the registry contents wholesale, used when restoring
// from persisted device keys at startup.
func (r *Registry) Load(devices []Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = make(map[identity.UserID]map[identity.DeviceID]*Device)
	for _, d := range devices {
		byDevice, ok := r.devices[d.UserID]
		if !ok {
			byDevice = make(map[identity.DeviceID]*Device)
			r.devices[d.UserID] = byDevice
		}
		cp := d
		byDevice[d.DeviceID] = &cp
	}
}
