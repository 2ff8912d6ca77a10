package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type listenerKey struct {
	deviceID   string
	capability Capability
}

type listenerEntry struct {
	seq uint64
	fn  CapabilityListener
}

type hookEntry struct {
	seq uint64
	fn  ValueChangeFunc
}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache, capability listeners
// and value-change hooks.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by every mutating operation.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // Cached devices by ID
	cacheMu sync.RWMutex       // Protects cache

	// writeMu serialises read-modify-write cycles against the repository.
	writeMu sync.Mutex

	listeners   map[listenerKey]listenerEntry
	hooks       []hookEntry
	seq         uint64
	listenersMu sync.Mutex // Protects listeners, hooks, seq

	logger Logger
	now    func() time.Time
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:      repo,
		cache:     make(map[string]*Device),
		listeners: make(map[listenerKey]listenerEntry),
		logger:    noopLogger{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// ─── Queries ────────────────────────────────────────────────────────

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	d, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.DeepCopy(), nil
}

// lookup returns the cached device, loading it from the repository on a
// miss. The returned pointer is shared and must not be mutated.
func (r *Registry) lookup(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	if existing, ok := r.cache[id]; ok {
		device = existing
	} else {
		r.cache[id] = device
	}
	r.cacheMu.Unlock()

	return device, nil
}

// ListDevices retrieves all devices ordered by name.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	populated := len(r.cache) > 0
	var devices []Device
	if populated {
		devices = make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			devices = append(devices, *d.DeepCopy())
		}
	}
	r.cacheMu.RUnlock()

	if !populated {
		return r.repo.List(ctx)
	}

	sortDevices(devices)
	return devices, nil
}

// ListByDriver retrieves all devices of one driver ordered by name.
func (r *Registry) ListByDriver(ctx context.Context, driver Driver) ([]Device, error) {
	all, err := r.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]Device, 0, len(all))
	for _, d := range all {
		if d.Driver == driver {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

// FindByPairing returns the device paired with the given vendor key
// (site ID or VIN). Returns ErrDeviceNotFound if none matches.
func (r *Registry) FindByPairing(ctx context.Context, driver Driver, key string) (*Device, error) {
	devices, err := r.ListByDriver(ctx, driver)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].PairingKey() == key {
			return &devices[i], nil
		}
	}
	return nil, ErrDeviceNotFound
}

func sortDevices(devices []Device) {
	slices.SortFunc(devices, func(a, b Device) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// ─── Lifecycle ──────────────────────────────────────────────────────

// CreateDevice creates a new device.
// It generates an ID if needed, defaults the class, validates and persists.
func (r *Registry) CreateDevice(ctx context.Context, device *Device) error {
	if device.ID == "" {
		device.ID = GenerateID()
	}
	if device.Class == "" {
		device.Class = ClassOther
	}
	if device.Values == nil {
		device.Values = map[Capability]any{}
	}

	if err := ValidateDevice(device); err != nil {
		return err
	}
	for c, v := range device.Values {
		normalised, _ := NormaliseValue(c, v)
		device.Values[c] = normalised
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device created", "id", device.ID, "driver", device.Driver, "name", device.Name)
	return nil
}

// EnsureDevice returns the device already paired with the same vendor key,
// or creates it. The boolean reports whether a device was created.
func (r *Registry) EnsureDevice(ctx context.Context, device *Device) (*Device, bool, error) {
	existing, err := r.FindByPairing(ctx, device.Driver, device.PairingKey())
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		return nil, false, err
	}

	if err := r.CreateDevice(ctx, device); err != nil {
		return nil, false, err
	}
	return device.DeepCopy(), true, nil
}

// RenameDevice changes the display name of a device.
func (r *Registry) RenameDevice(ctx context.Context, id, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	_, err := r.mutate(ctx, id, func(d *Device) (bool, error) {
		if d.Name == name {
			return false, nil
		}
		d.Name = name
		return true, nil
	})
	return err
}

// DeleteDevice removes a device and drops its capability listeners.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	r.writeMu.Lock()
	err := r.repo.Delete(ctx, id)
	if err == nil {
		r.cacheMu.Lock()
		delete(r.cache, id)
		r.cacheMu.Unlock()
	}
	r.writeMu.Unlock()
	if err != nil {
		return err
	}

	r.listenersMu.Lock()
	for key := range r.listeners {
		if key.deviceID == id {
			delete(r.listeners, key)
		}
	}
	r.listenersMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// mutate applies fn to a private copy of the device and, when fn reports a
// change, persists the metadata and swaps the cache entry.
func (r *Registry) mutate(ctx context.Context, id string, fn func(*Device) (bool, error)) (*Device, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := current.DeepCopy()
	changed, err := fn(updated)
	if err != nil || !changed {
		return updated, err
	}

	if err := r.repo.Update(ctx, updated); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = updated.DeepCopy()
	r.cacheMu.Unlock()

	return updated, nil
}

// ─── Capability set ─────────────────────────────────────────────────

// Capabilities returns the ordered capability set of a device.
func (r *Registry) Capabilities(ctx context.Context, id string) ([]Capability, error) {
	d, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(d.Capabilities), nil
}

// HasCapability reports whether the device declares c.
// Unknown devices report false.
func (r *Registry) HasCapability(ctx context.Context, id string, c Capability) bool {
	d, err := r.lookup(ctx, id)
	if err != nil {
		return false
	}
	return d.HasCapability(c)
}

// AddCapability appends c to the device's capability set.
// Adding a capability that is already present is a no-op.
func (r *Registry) AddCapability(ctx context.Context, id string, c Capability) error {
	if _, ok := LookupCapability(c); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidCapability, c)
	}
	_, err := r.mutate(ctx, id, func(d *Device) (bool, error) {
		if d.HasCapability(c) {
			return false, nil
		}
		if len(d.Capabilities) >= maxCapabilities {
			return false, fmt.Errorf("%w: too many capabilities (max %d)", ErrInvalidCapability, maxCapabilities)
		}
		d.Capabilities = append(d.Capabilities, c)
		return true, nil
	})
	if err == nil {
		r.logger.Debug("capability added", "device_id", id, "capability", c)
	}
	return err
}

// RemoveCapability removes c and its stored value from the device.
// Removing a capability that is absent is a no-op. Listeners registered
// for c stay installed so they apply again if c is re-added.
func (r *Registry) RemoveCapability(ctx context.Context, id string, c Capability) error {
	r.writeMu.Lock()
	current, err := r.lookup(ctx, id)
	if err != nil {
		r.writeMu.Unlock()
		return err
	}
	if !current.HasCapability(c) {
		r.writeMu.Unlock()
		return nil
	}

	updated := current.DeepCopy()
	updated.Capabilities = slices.DeleteFunc(updated.Capabilities, func(x Capability) bool { return x == c })
	_, hadValue := updated.Values[c]
	delete(updated.Values, c)

	err = r.repo.Update(ctx, updated)
	if err == nil && hadValue {
		err = r.repo.UpdateValues(ctx, id, updated.Values, r.now())
	}
	if err == nil {
		r.cacheMu.Lock()
		r.cache[id] = updated
		r.cacheMu.Unlock()
	}
	r.writeMu.Unlock()
	if err != nil {
		return err
	}

	r.logger.Debug("capability removed", "device_id", id, "capability", c)
	return nil
}

// SetClass changes the device class.
func (r *Registry) SetClass(ctx context.Context, id string, class Class) error {
	if err := ValidateClass(class); err != nil {
		return err
	}
	_, err := r.mutate(ctx, id, func(d *Device) (bool, error) {
		if d.Class == class {
			return false, nil
		}
		d.Class = class
		return true, nil
	})
	return err
}

// ─── Capability values ──────────────────────────────────────────────

// GetCapabilityValue returns the last written value of c, or nil when none
// has been written yet. Returns ErrCapabilityNotFound if the device does
// not declare c.
func (r *Registry) GetCapabilityValue(ctx context.Context, id string, c Capability) (any, error) {
	d, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.HasCapability(c) {
		return nil, fmt.Errorf("%w: %s on device %s", ErrCapabilityNotFound, c, id)
	}
	return d.Values[c], nil
}

// SetCapabilityValue records a new value for c.
//
// The value is checked against the capability type and stored in canonical
// form. Value-change hooks fire only when the stored value actually changes.
//
// Returns ErrCapabilityNotFound if the device does not declare c.
func (r *Registry) SetCapabilityValue(ctx context.Context, id string, c Capability, value any) error {
	normalised, err := NormaliseValue(c, value)
	if err != nil {
		return err
	}

	r.writeMu.Lock()
	current, err := r.lookup(ctx, id)
	if err != nil {
		r.writeMu.Unlock()
		return err
	}
	if !current.HasCapability(c) {
		r.writeMu.Unlock()
		return fmt.Errorf("%w: %s on device %s", ErrCapabilityNotFound, c, id)
	}

	previous, existed := current.Values[c]
	if existed && previous == normalised {
		r.writeMu.Unlock()
		return nil
	}

	now := r.now()
	updated := current.DeepCopy()
	if updated.Values == nil {
		updated.Values = map[Capability]any{}
	}
	updated.Values[c] = normalised
	updated.ValuesUpdatedAt = &now

	if err := r.repo.UpdateValues(ctx, id, updated.Values, now); err != nil {
		r.writeMu.Unlock()
		return fmt.Errorf("storing %s: %w", c, err)
	}

	r.cacheMu.Lock()
	r.cache[id] = updated
	r.cacheMu.Unlock()
	r.writeMu.Unlock()

	r.notify(ValueChange{
		DeviceID:   id,
		Driver:     updated.Driver,
		Capability: c,
		Value:      normalised,
		Previous:   previous,
		ChangedAt:  now,
	})
	return nil
}

// ─── Listeners and hooks ────────────────────────────────────────────

// RegisterCapabilityListener installs fn as the handler for user-initiated
// changes of c on the device, replacing any previous listener.
//
// Returns an unregister function. It is safe to call more than once and
// does not remove a listener registered later for the same capability.
func (r *Registry) RegisterCapabilityListener(id string, c Capability, fn CapabilityListener) func() {
	key := listenerKey{deviceID: id, capability: c}

	r.listenersMu.Lock()
	r.seq++
	seq := r.seq
	r.listeners[key] = listenerEntry{seq: seq, fn: fn}
	r.listenersMu.Unlock()

	return func() {
		r.listenersMu.Lock()
		defer r.listenersMu.Unlock()
		if entry, ok := r.listeners[key]; ok && entry.seq == seq {
			delete(r.listeners, key)
		}
	}
}

// HasCapabilityListener reports whether a listener is registered for c.
func (r *Registry) HasCapabilityListener(id string, c Capability) bool {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	_, ok := r.listeners[listenerKey{deviceID: id, capability: c}]
	return ok
}

// TriggerCapabilityListener applies a user-initiated change.
//
// The value is validated, handed to the registered listener and, only if
// the listener succeeds, stored via SetCapabilityValue. A listener error is
// returned unchanged and the stored value is left as it was.
//
// Returns:
//   - ErrCapabilityNotFound if the device does not declare c
//   - ErrNotSetable if c is read-only
//   - ErrInvalidValue if value does not match the capability type
//   - ErrNoListener if nothing handles c on this device
func (r *Registry) TriggerCapabilityListener(ctx context.Context, id string, c Capability, value any) error {
	d, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	if !d.HasCapability(c) {
		return fmt.Errorf("%w: %s on device %s", ErrCapabilityNotFound, c, id)
	}
	if info, _ := LookupCapability(c); !info.Setable {
		return fmt.Errorf("%w: %s", ErrNotSetable, c)
	}

	normalised, err := NormaliseValue(c, value)
	if err != nil {
		return err
	}
	if normalised == nil {
		return fmt.Errorf("%w: %s requires a value", ErrInvalidValue, c)
	}

	r.listenersMu.Lock()
	entry, ok := r.listeners[listenerKey{deviceID: id, capability: c}]
	r.listenersMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s on device %s", ErrNoListener, c, id)
	}

	if err := entry.fn(ctx, normalised); err != nil {
		return err
	}

	return r.SetCapabilityValue(ctx, id, c, normalised)
}

// OnValueChange registers fn to observe capability value changes.
// Returns an unregister function.
func (r *Registry) OnValueChange(fn ValueChangeFunc) func() {
	r.listenersMu.Lock()
	r.seq++
	seq := r.seq
	r.hooks = append(r.hooks, hookEntry{seq: seq, fn: fn})
	r.listenersMu.Unlock()

	return func() {
		r.listenersMu.Lock()
		defer r.listenersMu.Unlock()
		r.hooks = slices.DeleteFunc(r.hooks, func(h hookEntry) bool { return h.seq == seq })
	}
}

func (r *Registry) notify(change ValueChange) {
	r.listenersMu.Lock()
	hooks := slices.Clone(r.hooks)
	r.listenersMu.Unlock()

	for _, h := range hooks {
		h.fn(change)
	}
}

// ─── Stats ──────────────────────────────────────────────────────────

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices int
	ByDriver     map[Driver]int
	ByClass      map[Class]int
	Listeners    int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	stats := Stats{
		TotalDevices: len(r.cache),
		ByDriver:     make(map[Driver]int),
		ByClass:      make(map[Class]int),
	}
	for _, d := range r.cache {
		stats.ByDriver[d.Driver]++
		stats.ByClass[d.Class]++
	}
	r.cacheMu.RUnlock()

	r.listenersMu.Lock()
	stats.Listeners = len(r.listeners)
	r.listenersMu.Unlock()

	return stats
}
