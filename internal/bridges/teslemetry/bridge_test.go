package teslemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-teslemetry/internal/audit"
	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/database"
	tslm "github.com/nerrad567/gray-logic-teslemetry/internal/teslemetry"
	"github.com/nerrad567/gray-logic-teslemetry/migrations"
)

type fakeCatalog struct {
	mu        sync.Mutex
	products  *tslm.Products
	err       error
	refreshes int
}

func (c *fakeCatalog) Products(context.Context) (*tslm.Products, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.products, c.err
}

func (c *fakeCatalog) Refresh(context.Context) (*tslm.Products, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	if c.err != nil {
		return nil, c.err
	}
	return c.products, nil
}

// mockRecorder is a metrics Recorder whose calls are asserted with testify/mock.
type mockRecorder struct {
	mock.Mock
}

func newMockRecorder() *mockRecorder {
	r := &mockRecorder{}
	r.On("RecordCapabilityWrites", mock.Anything, mock.Anything).Maybe().Return()
	r.On("RecordPollError", mock.Anything).Maybe().Return()
	r.On("RecordCommand", mock.Anything).Maybe().Return()
	return r
}

func (r *mockRecorder) RecordCapabilityWrites(result string, n int) { r.Called(result, n) }
func (r *mockRecorder) RecordPollError(topic string)                { r.Called(topic) }
func (r *mockRecorder) RecordCommand(result string)                 { r.Called(result) }

type fakeHistory struct {
	mu        sync.Mutex
	values    map[string]float64
	snapshots []map[string]any
}

func (h *fakeHistory) WriteCapabilityValue(deviceID, _, capability string, value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.values == nil {
		h.values = map[string]float64{}
	}
	h.values[deviceID+"/"+capability] = value
}

func (h *fakeHistory) WriteEnergySiteSnapshot(_ string, fields map[string]any, _ time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots = append(h.snapshots, fields)
}

type bridgeFixture struct {
	bridge   *Bridge
	registry *device.Registry
	mqtt     *fakeMQTT
	catalog  *fakeCatalog
	site     *fakeSite
	recorder *mockRecorder
	history  *fakeHistory
	commands *audit.SQLiteRepository
}

func setupBridge(t *testing.T) *bridgeFixture {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "bridge.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(ctx, migrations.FS))

	f := &bridgeFixture{
		registry: device.NewRegistry(device.NewSQLiteRepository(db.DB)),
		mqtt:     newFakeMQTT(),
		site:     newFakeSite(),
		recorder: newMockRecorder(),
		history:  &fakeHistory{},
		commands: audit.NewSQLiteRepository(db.DB),
		catalog: &fakeCatalog{products: &tslm.Products{
			EnergySites: map[string]*tslm.EnergySite{
				testSiteID: {ID: testSiteID, Name: "Home"},
			},
			Vehicles: map[string]tslm.Vehicle{
				"5YJ3E1EA7KF000001": vehicle("5YJ3E1EA7KF000001", "Model 3", true),
			},
		}},
	}

	f.bridge, err = NewBridge(BridgeOptions{
		BridgeID:           "teslemetry-test",
		Version:            "test",
		HealthInterval:     time.Hour,
		AutoProvisionSites: true,
		MQTTClient:         f.mqtt,
		Registry:           f.registry,
		Catalog:            f.catalog,
		Sites:              sitesOf(map[string]*fakeSite{testSiteID: f.site}),
		History:            f.history,
		Recorder:           f.recorder,
		Commands:           f.commands,
	})
	require.NoError(t, err)
	t.Cleanup(f.bridge.Stop)
	return f
}

func (f *bridgeFixture) siteDevice(t *testing.T) device.Device {
	t.Helper()
	devices, err := f.registry.ListByDriver(context.Background(), device.DriverEnergySite)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	return devices[0]
}

func TestNewBridge_Validation(t *testing.T) {
	_, err := NewBridge(BridgeOptions{})
	assert.Error(t, err)

	_, err = NewBridge(BridgeOptions{MQTTClient: newFakeMQTT(), Registry: device.NewRegistry(nil)})
	assert.Error(t, err)

	// A catalog that is not a *teslemetry.Catalog needs an explicit resolver.
	_, err = NewBridge(BridgeOptions{
		MQTTClient: newFakeMQTT(),
		Registry:   device.NewRegistry(nil),
		Catalog:    &fakeCatalog{},
	})
	assert.Error(t, err)
}

func TestBridge_StartProvisionsSites(t *testing.T) {
	ctx := context.Background()
	f := setupBridge(t)

	require.NoError(t, f.bridge.Start(ctx))

	d := f.siteDevice(t)
	assert.Equal(t, "Home", d.Name)
	assert.Equal(t, testSiteID, d.PairingKey())
	assert.Equal(t, 1, f.bridge.ControllerCount())
	assert.Equal(t, 1, f.site.pollingCount(tslm.TopicLiveStatus))

	f.mqtt.mu.Lock()
	assert.Contains(t, f.mqtt.handlers, CommandSubscribeTopic())
	assert.Contains(t, f.mqtt.handlers, RequestSubscribeTopic())
	f.mqtt.mu.Unlock()

	// A second sync neither duplicates devices nor controllers.
	require.NoError(t, f.bridge.SyncSites(ctx))
	f.siteDevice(t)
	assert.Equal(t, 1, f.bridge.ControllerCount())
	assert.Equal(t, 1, f.site.pollingCount(tslm.TopicLiveStatus))
}

func TestBridge_StartToleratesCatalogFailure(t *testing.T) {
	f := setupBridge(t)
	f.catalog.err = errors.New("api down")

	require.NoError(t, f.bridge.Start(context.Background()))
	assert.Equal(t, 0, f.bridge.ControllerCount())

	f.catalog.mu.Lock()
	f.catalog.err = nil
	f.catalog.mu.Unlock()

	require.NoError(t, f.bridge.SyncSites(context.Background()))
	assert.Equal(t, 1, f.bridge.ControllerCount())
}

func TestBridge_UnresolvableSiteIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := setupBridge(t)
	f.catalog.products.EnergySites["999"] = &tslm.EnergySite{ID: "999", Name: "Cabin"}

	err := f.bridge.SyncSites(ctx)
	require.ErrorIs(t, err, ErrSiteNotFound)
	assert.Equal(t, 1, f.bridge.ControllerCount())
}

func TestBridge_PublishesStateAndHistory(t *testing.T) {
	ctx := context.Background()
	f := setupBridge(t)
	require.NoError(t, f.bridge.Start(ctx))
	d := f.siteDevice(t)

	f.site.emit(tslm.TopicSiteInfo, &tslm.SiteInfo{
		BackupReservePercent: ptr(20.0),
		Components:           tslm.Components{Battery: true, Grid: true},
	})
	f.site.emit(tslm.TopicLiveStatus, &tslm.LiveStatus{
		PercentageCharged: ptr(64.0),
		LoadPower:         ptr(800.0),
		GridPower:         ptr(-250.0),
		GridStatus:        ptr("Active"),
	})

	msg, ok := f.mqtt.last(StateTopic(d.ID))
	require.True(t, ok)
	assert.True(t, msg.retained)

	var state StateMessage
	require.NoError(t, json.Unmarshal(msg.payload, &state))
	assert.Equal(t, d.ID, state.DeviceID)
	assert.Equal(t, device.DriverEnergySite, state.Driver)
	assert.Equal(t, 20.0, state.Values[device.CapBackupReserve])
	assert.Equal(t, 64.0, state.Values[device.CapMeasureBattery])
	assert.Equal(t, 250.0, state.Values[device.CapMeasureGridExported])
	assert.Equal(t, true, state.Values[device.CapGridStatus])

	got, err := f.registry.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, device.ClassBattery, got.Class)

	f.history.mu.Lock()
	assert.Equal(t, 64.0, f.history.values[d.ID+"/measure_battery"])
	assert.Equal(t, 1.0, f.history.values[d.ID+"/grid_status"])
	require.Len(t, f.history.snapshots, 1)
	assert.Equal(t, 800.0, f.history.snapshots[0]["measure_load_power"])
	f.history.mu.Unlock()

	f.recorder.AssertCalled(t, "RecordCapabilityWrites", "written", mock.MatchedBy(func(n int) bool { return n > 0 }))
	assert.Equal(t, uint64(2), f.bridge.counters.Snapshot().PollsSucceeded)
}

func commandPayload(t *testing.T, id string, c device.Capability, value any) []byte {
	t.Helper()
	payload, err := json.Marshal(CommandMessage{
		ID:         id,
		Timestamp:  time.Now(),
		Command:    CommandSetCapability,
		Capability: c,
		Value:      value,
	})
	require.NoError(t, err)
	return payload
}

func lastAck(t *testing.T, f *bridgeFixture, deviceID string) AckMessage {
	t.Helper()
	msg, ok := f.mqtt.last(AckTopic(deviceID))
	require.True(t, ok, "no ack published")
	var ack AckMessage
	require.NoError(t, json.Unmarshal(msg.payload, &ack))
	return ack
}

func TestBridge_SetCapabilityCommand(t *testing.T) {
	ctx := context.Background()
	f := setupBridge(t)
	require.NoError(t, f.bridge.Start(ctx))
	d := f.siteDevice(t)
	f.site.emit(tslm.TopicSiteInfo, &tslm.SiteInfo{Components: tslm.Components{Battery: true}})

	topic := mqttCommandTopic(d.ID)
	require.NoError(t, f.mqtt.deliver(CommandSubscribeTopic(), topic,
		commandPayload(t, "cmd-1", device.CapBackupReserve, 30)))

	ack := lastAck(t, f, d.ID)
	assert.Equal(t, "cmd-1", ack.CommandID)
	assert.Equal(t, AckAccepted, ack.Status)
	assert.Nil(t, ack.Error)
	assert.Equal(t, []string{"backup_reserve=30"}, f.site.recorded())

	v, err := f.registry.GetCapabilityValue(ctx, d.ID, device.CapBackupReserve)
	require.NoError(t, err)
	assert.Equal(t, 30.0, v)

	f.recorder.AssertCalled(t, "RecordCommand", "ok")
	f.recorder.AssertNotCalled(t, "RecordCommand", "failed")
}

func TestBridge_CommandFailures(t *testing.T) {
	ctx := context.Background()
	f := setupBridge(t)
	require.NoError(t, f.bridge.Start(ctx))
	d := f.siteDevice(t)
	f.site.emit(tslm.TopicSiteInfo, &tslm.SiteInfo{
		BackupReservePercent: ptr(20.0),
		Components:           tslm.Components{Battery: true},
	})

	tests := []struct {
		name     string
		deviceID string
		payload  []byte
		code     string
	}{
		{"capability not on device", d.ID, commandPayload(t, "c1", device.CapStormWatch, true), ErrCodeInvalidCommand},
		{"read-only capability", d.ID, commandPayload(t, "c2", device.CapMeasureBattery, 50), ErrCodeInvalidCommand},
		{"out of range", d.ID, commandPayload(t, "c3", device.CapBackupReserve, 150), ErrCodeInvalidParameters},
		{"unknown device", "missing", commandPayload(t, "c4", device.CapBackupReserve, 10), ErrCodeNotConfigured},
		{"unsupported command", d.ID, []byte(`{"id":"c5","command":"reboot"}`), ErrCodeInvalidCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, f.mqtt.deliver(CommandSubscribeTopic(), mqttCommandTopic(tt.deviceID), tt.payload))
			ack := lastAck(t, f, tt.deviceID)
			assert.Equal(t, AckFailed, ack.Status)
			require.NotNil(t, ack.Error)
			assert.Equal(t, tt.code, ack.Error.Code)
		})
	}

	// The API rejecting a change leaves the stored value untouched.
	f.site.err = tslm.ErrRateLimited
	require.NoError(t, f.mqtt.deliver(CommandSubscribeTopic(), mqttCommandTopic(d.ID),
		commandPayload(t, "c6", device.CapBackupReserve, 40)))
	ack := lastAck(t, f, d.ID)
	require.NotNil(t, ack.Error)
	assert.Equal(t, ErrCodeRateLimited, ack.Error.Code)

	v, err := f.registry.GetCapabilityValue(ctx, d.ID, device.CapBackupReserve)
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)

	assert.Error(t, f.mqtt.deliver(CommandSubscribeTopic(), mqttCommandTopic(d.ID), []byte("not json")))
}

func TestBridge_CommandLog(t *testing.T) {
	ctx := context.Background()
	f := setupBridge(t)
	require.NoError(t, f.bridge.Start(ctx))
	d := f.siteDevice(t)
	f.site.emit(tslm.TopicSiteInfo, &tslm.SiteInfo{Components: tslm.Components{Battery: true}})

	require.NoError(t, f.bridge.SetCapability(ctx, d.ID, device.CapBackupReserve, 25))
	require.NoError(t, f.mqtt.deliver(CommandSubscribeTopic(), mqttCommandTopic(d.ID),
		commandPayload(t, "cmd-1", device.CapMeasureBattery, 10)))

	res, err := f.commands.List(ctx, audit.Filter{DeviceID: d.ID})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)

	bySource := map[string]audit.Entry{}
	for _, e := range res.Entries {
		bySource[e.Source] = e
	}

	apiEntry := bySource[SourceAPI]
	assert.Equal(t, audit.ResultOK, apiEntry.Result)
	assert.Equal(t, device.CapBackupReserve, apiEntry.Capability)
	assert.Equal(t, 25.0, apiEntry.Value)

	mqttEntry := bySource[SourceMQTT]
	assert.Equal(t, audit.ResultFailed, mqttEntry.Result)
	assert.NotEmpty(t, mqttEntry.Error)
}

func request(t *testing.T, f *bridgeFixture, id, action string, params map[string]any) ResponseMessage {
	t.Helper()
	payload, err := json.Marshal(RequestMessage{RequestID: id, Action: action, Parameters: params})
	require.NoError(t, err)
	require.NoError(t, f.mqtt.deliver(RequestSubscribeTopic(), "graylogic/request/teslemetry/"+id, payload))

	msg, ok := f.mqtt.last(ResponseTopic(id))
	require.True(t, ok, "no response published")
	var resp ResponseMessage
	require.NoError(t, json.Unmarshal(msg.payload, &resp))
	return resp
}

func TestBridge_Requests(t *testing.T) {
	ctx := context.Background()
	f := setupBridge(t)
	require.NoError(t, f.bridge.Start(ctx))

	resp := request(t, f, "r1", ActionListVehicles, nil)
	require.True(t, resp.Success)
	vehicles, ok := resp.Data["vehicles"].([]any)
	require.True(t, ok)
	require.Len(t, vehicles, 1)
	assert.Equal(t, "Model 3", vehicles[0].(map[string]any)["name"])

	resp = request(t, f, "r2", ActionPairVehicle, map[string]any{"vin": "5YJ3E1EA7KF000001"})
	require.True(t, resp.Success)
	assert.Equal(t, true, resp.Data["created"])

	resp = request(t, f, "r3", ActionPairVehicle, map[string]any{"vin": "5YJ3E1EA7KF000001"})
	require.True(t, resp.Success)
	assert.Equal(t, false, resp.Data["created"])

	cars, err := f.registry.ListByDriver(ctx, device.DriverVehicle)
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Equal(t, device.ClassCar, cars[0].Class)
	assert.Equal(t, "model3.svg", cars[0].Icon)

	resp = request(t, f, "r4", ActionPairVehicle, map[string]any{"vin": "NOPE"})
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeInvalidParameters, resp.Error.Code)

	resp = request(t, f, "r5", ActionRefreshProducts, nil)
	require.True(t, resp.Success)
	assert.Equal(t, 1.0, resp.Data["energy_sites"])

	resp = request(t, f, "r6", "reboot", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeInvalidCommand, resp.Error.Code)
}

func TestBridge_ListVehiclesFailure(t *testing.T) {
	f := setupBridge(t)
	f.catalog.err = errors.New("timeout")

	_, err := f.bridge.ListPairingDevices(context.Background())
	assert.Equal(t, ErrVehicleListFailed, err)
}

func TestBridge_PollErrors(t *testing.T) {
	f := setupBridge(t)

	f.bridge.HandlePollError(tslm.TopicLiveStatus, errors.New("502"))
	f.bridge.HandlePollError(tslm.TopicLiveStatus, errors.New("502"))

	assert.Equal(t, uint64(2), f.bridge.counters.Snapshot().PollsFailed)
	f.recorder.AssertNumberOfCalls(t, "RecordPollError", 2)
	f.recorder.AssertCalled(t, "RecordPollError", "liveStatus")
}

func TestBridge_Stop(t *testing.T) {
	f := setupBridge(t)
	require.NoError(t, f.bridge.Start(context.Background()))

	f.bridge.Stop()
	f.bridge.Stop()

	assert.Equal(t, 0, f.bridge.ControllerCount())
	assert.Equal(t, 0, f.site.pollingCount(tslm.TopicLiveStatus))
	assert.Equal(t, 0, f.site.handlerCount())

	f.mqtt.mu.Lock()
	assert.Empty(t, f.mqtt.handlers)
	f.mqtt.mu.Unlock()

	msg, ok := f.mqtt.last(HealthTopic())
	require.True(t, ok)
	var health HealthMessage
	require.NoError(t, json.Unmarshal(msg.payload, &health))
	assert.Equal(t, HealthStopping, health.Status)
}

func TestBridge_RemoveDevice(t *testing.T) {
	ctx := context.Background()
	f := setupBridge(t)
	f.bridge.opts.AutoProvisionSites = false
	_, _, err := f.registry.EnsureDevice(ctx, &device.Device{
		Driver: device.DriverEnergySite,
		Name:   "Home",
		Class:  device.ClassOther,
		Data:   map[string]string{device.DataKeySiteID: testSiteID},
	})
	require.NoError(t, err)
	require.NoError(t, f.bridge.Start(ctx))
	d := f.siteDevice(t)
	f.site.emit(tslm.TopicSiteInfo, &tslm.SiteInfo{Components: tslm.Components{Battery: true}})

	require.Equal(t, 1, f.site.pollingCount(tslm.TopicLiveStatus))
	require.Positive(t, f.site.handlerCount())

	require.NoError(t, f.bridge.RemoveDevice(ctx, d.ID))

	assert.Equal(t, 0, f.bridge.ControllerCount())
	assert.Equal(t, 0, f.site.pollingCount(tslm.TopicLiveStatus))
	assert.Equal(t, 0, f.site.pollingCount(tslm.TopicSiteInfo))
	assert.Equal(t, 0, f.site.handlerCount())

	_, err = f.registry.GetDevice(ctx, d.ID)
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)

	msg, ok := f.mqtt.last(StateTopic(d.ID))
	require.True(t, ok)
	assert.True(t, msg.retained)
	assert.Empty(t, msg.payload)

	// Handles are released once; a second removal does not touch them.
	assert.ErrorIs(t, f.bridge.RemoveDevice(ctx, d.ID), device.ErrDeviceNotFound)
	assert.Equal(t, 0, f.site.pollingCount(tslm.TopicLiveStatus))

	err = f.bridge.SetCapability(ctx, d.ID, device.CapBackupReserve, 10)
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
	assert.Empty(t, f.site.recorded())

	// The device stays gone across a sync when provisioning is off.
	require.NoError(t, f.bridge.SyncSites(ctx))
	assert.Equal(t, 0, f.bridge.ControllerCount())
}

func TestBridge_DeviceRequests(t *testing.T) {
	ctx := context.Background()
	f := setupBridge(t)
	require.NoError(t, f.bridge.Start(ctx))

	car, _, err := f.bridge.PairVehicle(ctx, "5YJ3E1EA7KF000001")
	require.NoError(t, err)

	send := func(id, action, deviceID string, params map[string]any) ResponseMessage {
		t.Helper()
		payload, err := json.Marshal(RequestMessage{RequestID: id, Action: action, DeviceID: deviceID, Parameters: params})
		require.NoError(t, err)
		require.NoError(t, f.mqtt.deliver(RequestSubscribeTopic(), "graylogic/request/teslemetry/"+id, payload))
		msg, ok := f.mqtt.last(ResponseTopic(id))
		require.True(t, ok, "no response published")
		var resp ResponseMessage
		require.NoError(t, json.Unmarshal(msg.payload, &resp))
		return resp
	}

	resp := send("r1", ActionRenameDevice, car.ID, map[string]any{"name": "Daily driver"})
	require.True(t, resp.Success)
	got, err := f.registry.GetDevice(ctx, car.ID)
	require.NoError(t, err)
	assert.Equal(t, "Daily driver", got.Name)

	resp = send("r2", ActionRenameDevice, car.ID, map[string]any{"name": "  "})
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeInvalidParameters, resp.Error.Code)

	resp = send("r3", ActionRemoveDevice, car.ID, nil)
	require.True(t, resp.Success)
	assert.Equal(t, true, resp.Data["removed"])
	_, err = f.registry.GetDevice(ctx, car.ID)
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)

	resp = send("r4", ActionRemoveDevice, car.ID, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeNotConfigured, resp.Error.Code)

	// Removing a site device stops its controller.
	site := f.siteDevice(t)
	resp = send("r5", ActionRemoveDevice, site.ID, nil)
	require.True(t, resp.Success)
	assert.Equal(t, 0, f.bridge.ControllerCount())
	assert.Equal(t, 0, f.site.pollingCount(tslm.TopicLiveStatus))
}

func TestBridge_SyncStopsVanishedSites(t *testing.T) {
	ctx := context.Background()
	f := setupBridge(t)
	require.NoError(t, f.bridge.Start(ctx))
	d := f.siteDevice(t)
	require.Equal(t, 1, f.site.pollingCount(tslm.TopicLiveStatus))

	f.catalog.mu.Lock()
	delete(f.catalog.products.EnergySites, testSiteID)
	f.catalog.mu.Unlock()

	require.NoError(t, f.bridge.SyncSites(ctx))
	assert.Equal(t, 0, f.bridge.ControllerCount())
	assert.Equal(t, 0, f.site.pollingCount(tslm.TopicLiveStatus))
	assert.Equal(t, 0, f.site.handlerCount())

	// The device is kept and resumes when the site returns.
	_, err := f.registry.GetDevice(ctx, d.ID)
	require.NoError(t, err)

	f.catalog.mu.Lock()
	f.catalog.products.EnergySites[testSiteID] = &tslm.EnergySite{ID: testSiteID, Name: "Home"}
	f.catalog.mu.Unlock()

	require.NoError(t, f.bridge.SyncSites(ctx))
	assert.Equal(t, 1, f.bridge.ControllerCount())
	assert.Equal(t, 1, f.site.pollingCount(tslm.TopicLiveStatus))
}

func TestBridge_MessagesAfterStop(t *testing.T) {
	ctx := context.Background()
	f := setupBridge(t)
	require.NoError(t, f.bridge.Start(ctx))
	d := f.siteDevice(t)

	f.bridge.Stop()

	err := f.bridge.handleMQTTMessage(mqttCommandTopic(d.ID), commandPayload(t, "late", device.CapBackupReserve, 30))
	assert.ErrorIs(t, err, ErrBridgeStopping)
	_, ok := f.mqtt.last(AckTopic(d.ID))
	assert.False(t, ok)

	payload, err := json.Marshal(RequestMessage{RequestID: "late", Action: ActionRefreshProducts})
	require.NoError(t, err)
	err = f.bridge.handleMQTTMessage("graylogic/request/teslemetry/late", payload)
	assert.ErrorIs(t, err, ErrBridgeStopping)
	assert.Empty(t, f.site.recorded())
}

func TestBridge_ConcurrentCommandsDuringStop(t *testing.T) {
	ctx := context.Background()
	f := setupBridge(t)
	require.NoError(t, f.bridge.Start(ctx))
	d := f.siteDevice(t)
	payload := commandPayload(t, "c", device.CapBackupReserve, 30)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 20 {
				err := f.bridge.handleMQTTMessage(mqttCommandTopic(d.ID), payload)
				if err != nil && !errors.Is(err, ErrBridgeStopping) {
					t.Errorf("handleMQTTMessage() error = %v", err)
				}
			}
		})
	}
	f.bridge.Stop()
	wg.Wait()
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{device.ErrDeviceNotFound, ErrCodeNotConfigured},
		{device.ErrNoListener, ErrCodeNotConfigured},
		{device.ErrCapabilityNotFound, ErrCodeInvalidCommand},
		{device.ErrNotSetable, ErrCodeInvalidCommand},
		{fmt.Errorf("wrapped: %w", device.ErrInvalidValue), ErrCodeInvalidParameters},
		{&tslm.APIError{StatusCode: 401}, ErrCodeUnauthorized},
		{&tslm.APIError{StatusCode: 429}, ErrCodeRateLimited},
		{&tslm.APIError{StatusCode: 500}, ErrCodeDeviceUnreachable},
		{context.DeadlineExceeded, ErrCodeTimeout},
		{errors.New("other"), ErrCodeBridgeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err), tt.err.Error())
	}
}

func mqttCommandTopic(deviceID string) string {
	return "graylogic/command/teslemetry/" + deviceID
}
