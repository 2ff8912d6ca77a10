package teslemetry

import (
	"time"

	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/mqtt"
)

// Protocol is the bridge's protocol segment in MQTT topics.
const Protocol = "teslemetry"

// MQTT message types exchanged between Gray Logic Core and this bridge.

// Command names.
const (
	// CommandSetCapability applies a user-initiated capability change.
	CommandSetCapability = "set_capability"
)

// CommandMessage is sent from Core to the bridge to change a capability.
// Topic: graylogic/command/teslemetry/{device_id}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acknowledgments.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the Gray Logic device identifier. When empty, the topic's
	// last segment is used.
	DeviceID string `json:"device_id"`

	// Command is the command name; only "set_capability" is supported.
	Command string `json:"command"`

	Capability device.Capability `json:"capability"`
	Value      any               `json:"value"`

	// Source indicates where the command originated ("api", "automation", ...).
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the change was applied by the Teslemetry API.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the change could not be applied.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the API did not answer in time.
	AckTimeout AckStatus = "timeout"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/teslemetry/{device_id}
type AckMessage struct {
	CommandID  string            `json:"command_id"`
	Timestamp  time.Time         `json:"timestamp"`
	DeviceID   string            `json:"device_id"`
	Capability device.Capability `json:"capability,omitempty"`
	Status     AckStatus         `json:"status"`
	Protocol   string            `json:"protocol"`
	Error      *AckError         `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command and request failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage is published whenever a capability value changes.
// Topic: graylogic/state/teslemetry/{device_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string        `json:"device_id"`
	Driver    device.Driver `json:"driver"`
	Timestamp time.Time     `json:"timestamp"`

	// Changed is the capability whose value triggered this message.
	Changed device.Capability `json:"changed"`

	// Values holds every current capability value of the device.
	Values map[device.Capability]any `json:"values"`

	Protocol string `json:"protocol"`
}

// Request actions.
const (
	ActionListVehicles    = "list_vehicles"
	ActionPairVehicle     = "pair_vehicle"
	ActionRefreshProducts = "refresh_products"
	ActionReadState       = "read_state"
	ActionRenameDevice    = "rename_device"
	ActionRemoveDevice    = "remove_device"
)

// RequestMessage is sent from Core to the bridge for request/response operations.
// Topic: graylogic/request/teslemetry/{request_id}
type RequestMessage struct {
	RequestID  string         `json:"request_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action"`
	DeviceID   string         `json:"device_id,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ResponseMessage answers a RequestMessage.
// Topic: graylogic/response/teslemetry/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/teslemetry
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	Statistics     *BridgeStatistics `json:"statistics,omitempty"`
	DevicesManaged int               `json:"devices_managed"`
	Reason         string            `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	PollsSucceeded uint64 `json:"polls_succeeded"`
	PollsFailed    uint64 `json:"polls_failed"`
	CommandsOK     uint64 `json:"commands_ok"`
	CommandsFailed uint64 `json:"commands_failed"`
	WritesFailed   uint64 `json:"writes_failed"`
}

// NewAckMessage creates an acknowledgment for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID:  cmd.ID,
		Timestamp:  time.Now().UTC(),
		DeviceID:   cmd.DeviceID,
		Capability: cmd.Capability,
		Status:     status,
		Protocol:   Protocol,
	}
}

// NewAckError creates a failed acknowledgment with error details.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	ack := NewAckMessage(cmd, status)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewResponse creates a successful response.
func NewResponse(requestID string, data map[string]any) ResponseMessage {
	return ResponseMessage{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data:      data,
	}
}

// NewErrorResponse creates a failed response.
func NewErrorResponse(requestID, code, message string) ResponseMessage {
	return ResponseMessage{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Error:     &ResponseError{Code: code, Message: message},
	}
}

// Topic helpers.

// StateTopic returns the state topic for a device.
func StateTopic(deviceID string) string { return mqtt.Topics{}.BridgeState(Protocol, deviceID) }

// AckTopic returns the ack topic for a device.
func AckTopic(deviceID string) string { return mqtt.Topics{}.BridgeAck(Protocol, deviceID) }

// ResponseTopic returns the response topic for a request.
func ResponseTopic(requestID string) string {
	return mqtt.Topics{}.BridgeResponse(Protocol, requestID)
}

// HealthTopic returns the bridge health topic.
func HealthTopic() string { return mqtt.Topics{}.BridgeHealth(Protocol) }

// CommandSubscribeTopic returns the wildcard topic for all commands.
func CommandSubscribeTopic() string { return mqtt.Topics{}.BridgeCommands(Protocol) }

// RequestSubscribeTopic returns the wildcard topic for all requests.
func RequestSubscribeTopic() string { return mqtt.Topics{}.BridgeRequests(Protocol) }
