package teslemetry

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/mqtt"
	tslm "github.com/nerrad567/gray-logic-teslemetry/internal/teslemetry"
)

// ─── fakeStore ──────────────────────────────────────────────────────

// fakeStore is an in-memory CapabilityStore with injectable failures.
type fakeStore struct {
	mu        sync.Mutex
	id        string
	caps      []device.Capability
	class     device.Class
	values    map[device.Capability]any
	listeners map[device.Capability]device.CapabilityListener

	failSet    map[device.Capability]error
	failAdd    map[device.Capability]error
	unregister int
}

func newFakeStore(caps ...device.Capability) *fakeStore {
	return &fakeStore{
		id:        "dev-1",
		caps:      caps,
		class:     device.ClassOther,
		values:    make(map[device.Capability]any),
		listeners: make(map[device.Capability]device.CapabilityListener),
		failSet:   make(map[device.Capability]error),
		failAdd:   make(map[device.Capability]error),
	}
}

func (s *fakeStore) DeviceID() string { return s.id }

func (s *fakeStore) Capabilities(context.Context) ([]device.Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.caps), nil
}

func (s *fakeStore) HasCapability(_ context.Context, c device.Capability) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.caps, c)
}

func (s *fakeStore) AddCapability(_ context.Context, c device.Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failAdd[c]; err != nil {
		return err
	}
	if !slices.Contains(s.caps, c) {
		s.caps = append(s.caps, c)
	}
	return nil
}

func (s *fakeStore) RemoveCapability(_ context.Context, c device.Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps = slices.DeleteFunc(s.caps, func(x device.Capability) bool { return x == c })
	delete(s.values, c)
	return nil
}

func (s *fakeStore) SetClass(_ context.Context, class device.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.class = class
	return nil
}

func (s *fakeStore) GetCapabilityValue(_ context.Context, c device.Capability) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.caps, c) {
		return nil, device.ErrCapabilityNotFound
	}
	return s.values[c], nil
}

func (s *fakeStore) SetCapabilityValue(_ context.Context, c device.Capability, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failSet[c]; err != nil {
		return err
	}
	if !slices.Contains(s.caps, c) {
		return device.ErrCapabilityNotFound
	}
	s.values[c] = value
	return nil
}

func (s *fakeStore) RegisterCapabilityListener(c device.Capability, fn device.CapabilityListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[c] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, c)
		s.unregister++
	}
}

func (s *fakeStore) value(c device.Capability) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[c]
	return v, ok
}

func (s *fakeStore) listenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// trigger invokes the listener for c the way the registry would.
func (s *fakeStore) trigger(ctx context.Context, c device.Capability, value any) error {
	s.mu.Lock()
	fn, ok := s.listeners[c]
	s.mu.Unlock()
	if !ok {
		return device.ErrNoListener
	}
	return fn(ctx, value)
}

// ─── fakeSite ───────────────────────────────────────────────────────

// fakeSite records polling registrations and setter calls.
type fakeSite struct {
	mu       sync.Mutex
	handlers map[tslm.Topic]func(tslm.Event)
	polling  map[tslm.Topic]int
	calls    []string
	err      error
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		handlers: make(map[tslm.Topic]func(tslm.Event)),
		polling:  make(map[tslm.Topic]int),
	}
}

func (s *fakeSite) RequestPolling(topic tslm.Topic) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polling[topic]++
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.polling[topic]--
		})
	}
}

func (s *fakeSite) On(topic tslm.Topic, fn func(tslm.Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[topic] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, topic)
	}
}

// emit delivers an event as the poller would.
func (s *fakeSite) emit(topic tslm.Topic, response any) {
	s.mu.Lock()
	fn := s.handlers[topic]
	s.mu.Unlock()
	if fn != nil {
		fn(tslm.Event{Topic: topic, Response: response})
	}
}

func (s *fakeSite) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.err
}

func (s *fakeSite) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func (s *fakeSite) pollingCount(topic tslm.Topic) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polling[topic]
}

func (s *fakeSite) handlerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

func (s *fakeSite) SetBackupReserve(_ context.Context, percent int) error {
	return s.record(fmt.Sprintf("backup_reserve=%d", percent))
}

func (s *fakeSite) SetOffGridVehicleChargingReserve(_ context.Context, percent int) error {
	return s.record(fmt.Sprintf("off_grid_reserve=%d", percent))
}

func (s *fakeSite) SetOperationMode(_ context.Context, mode string) error {
	return s.record("operation_mode=" + mode)
}

func (s *fakeSite) SetStormMode(_ context.Context, enabled bool) error {
	return s.record(fmt.Sprintf("storm_mode=%t", enabled))
}

func (s *fakeSite) GridImportExport(_ context.Context, rule string, disallow bool) error {
	return s.record(fmt.Sprintf("grid_import_export=%s,%t", rule, disallow))
}

// sitesOf resolves the given sites by ID.
func sitesOf(sites map[string]*fakeSite) SiteResolver {
	return SiteResolverFunc(func(id string) (Site, bool) {
		s, ok := sites[id]
		if !ok {
			return nil, false
		}
		return s, true
	})
}

// ─── fakeMQTT ───────────────────────────────────────────────────────

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// fakeMQTT captures publishes and lets tests deliver messages to subscribers.
type fakeMQTT struct {
	mu        sync.Mutex
	connected bool
	handlers  map[string]mqtt.MessageHandler
	messages  []published
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *fakeMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (m *fakeMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *fakeMQTT) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *fakeMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// deliver routes a message to the handler subscribed with pattern.
func (m *fakeMQTT) deliver(pattern, topic string, payload []byte) error {
	m.mu.Lock()
	h := m.handlers[pattern]
	m.mu.Unlock()
	if h == nil {
		return fmt.Errorf("no subscriber for %s", pattern)
	}
	return h(topic, payload)
}

// last returns the most recent message published on topic.
func (m *fakeMQTT) last(topic string) (published, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].topic == topic {
			return m.messages[i], true
		}
	}
	return published{}, false
}

// ─── helpers ────────────────────────────────────────────────────────

func ptr[T any](v T) *T { return &v }
