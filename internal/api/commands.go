package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-teslemetry/internal/audit"
	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
)

// handleListCommands returns recorded capability changes, newest first.
//
// Query parameters:
//   - device_id, capability: exact match filters
//   - result: ok or failed
//   - limit (default 50, max 200), offset
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		DeviceID:   q.Get("device_id"),
		Capability: device.Capability(q.Get("capability")),
		Result:     q.Get("result"),
	}

	switch filter.Result {
	case "", audit.ResultOK, audit.ResultFailed:
	default:
		writeBadRequest(w, "result must be ok or failed")
		return
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	result, err := s.commands.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list commands", "error", err, "request_id", requestID(r.Context()))
		writeInternalError(w, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional integer query parameter; empty yields 0.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
