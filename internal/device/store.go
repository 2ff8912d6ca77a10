package device

import "context"

// Store is a view of the registry scoped to one device. Bridge controllers
// hold a Store rather than the whole registry.
type Store struct {
	registry *Registry
	id       string
}

// Store returns a view of the registry scoped to the device with the given ID.
// The device is not checked for existence until an operation is performed.
func (r *Registry) Store(id string) *Store {
	return &Store{registry: r, id: id}
}

// DeviceID returns the ID of the device this store is scoped to.
func (s *Store) DeviceID() string { return s.id }

// Capabilities returns the device's current capability set.
func (s *Store) Capabilities(ctx context.Context) ([]Capability, error) {
	return s.registry.Capabilities(ctx, s.id)
}

// HasCapability reports whether the device declares c.
func (s *Store) HasCapability(ctx context.Context, c Capability) bool {
	return s.registry.HasCapability(ctx, s.id, c)
}

// AddCapability adds c to the device.
func (s *Store) AddCapability(ctx context.Context, c Capability) error {
	return s.registry.AddCapability(ctx, s.id, c)
}

// RemoveCapability removes c from the device.
func (s *Store) RemoveCapability(ctx context.Context, c Capability) error {
	return s.registry.RemoveCapability(ctx, s.id, c)
}

// SetClass changes the device class.
func (s *Store) SetClass(ctx context.Context, class Class) error {
	return s.registry.SetClass(ctx, s.id, class)
}

// GetCapabilityValue returns the stored value of c.
func (s *Store) GetCapabilityValue(ctx context.Context, c Capability) (any, error) {
	return s.registry.GetCapabilityValue(ctx, s.id, c)
}

// SetCapabilityValue records a new value for c.
func (s *Store) SetCapabilityValue(ctx context.Context, c Capability, value any) error {
	return s.registry.SetCapabilityValue(ctx, s.id, c, value)
}

// RegisterCapabilityListener installs a listener for c and returns its
// unregister function.
func (s *Store) RegisterCapabilityListener(c Capability, fn CapabilityListener) func() {
	return s.registry.RegisterCapabilityListener(s.id, c, fn)
}
