package teslemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
)

func TestTopics(t *testing.T) {
	assert.Equal(t, "graylogic/state/teslemetry/dev-1", StateTopic("dev-1"))
	assert.Equal(t, "graylogic/ack/teslemetry/dev-1", AckTopic("dev-1"))
	assert.Equal(t, "graylogic/response/teslemetry/req-1", ResponseTopic("req-1"))
	assert.Equal(t, "graylogic/health/teslemetry", HealthTopic())
	assert.Equal(t, "graylogic/command/teslemetry/+", CommandSubscribeTopic())
	assert.Equal(t, "graylogic/request/teslemetry/+", RequestSubscribeTopic())
}

func TestNewAckError(t *testing.T) {
	cmd := CommandMessage{ID: "c1", DeviceID: "dev-1", Capability: device.CapBackupReserve}

	ack := NewAckError(cmd, ErrCodeInvalidParameters, "out of range")
	assert.Equal(t, AckFailed, ack.Status)
	assert.Equal(t, "c1", ack.CommandID)
	assert.Equal(t, device.CapBackupReserve, ack.Capability)
	assert.Equal(t, Protocol, ack.Protocol)
	assert.Equal(t, &AckError{Code: ErrCodeInvalidParameters, Message: "out of range"}, ack.Error)

	assert.Equal(t, AckTimeout, NewAckError(cmd, ErrCodeTimeout, "slow").Status)
}

func TestResponses(t *testing.T) {
	ok := NewResponse("r1", map[string]any{"n": 1})
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Error)

	failed := NewErrorResponse("r2", ErrCodeBridgeError, "boom")
	assert.False(t, failed.Success)
	assert.Equal(t, "r2", failed.RequestID)
	assert.Equal(t, ErrCodeBridgeError, failed.Error.Code)
}
