package teslemetry

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
	tslm "github.com/nerrad567/gray-logic-teslemetry/internal/teslemetry"
)

// WriteStatus is the outcome of one capability write.
type WriteStatus string

// Write outcomes.
const (
	WriteOK      WriteStatus = "written"
	WriteSkipped WriteStatus = "skipped"
	WriteFailed  WriteStatus = "failed"
)

// FieldResult is the outcome of writing one capability value.
type FieldResult struct {
	Capability device.Capability
	Value      any
	Status     WriteStatus
	Err        error
}

// WriteReport collects the per-field outcomes of handling one event.
// A failed field never prevents the others from being written.
type WriteReport struct {
	SiteID string
	Topic  tslm.Topic

	// Empty is set when the event carried no payload and nothing was done.
	Empty bool

	Results []FieldResult

	// Added and Removed list capability set changes made while handling
	// site info.
	Added   []device.Capability
	Removed []device.Capability

	// Errors holds failures outside individual field writes, such as
	// reconciliation or class updates.
	Errors []error
}

func (r *WriteReport) add(res FieldResult) {
	r.Results = append(r.Results, res)
}

// Count returns how many fields ended with status.
func (r WriteReport) Count(status WriteStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Failed returns the fields that could not be written.
func (r WriteReport) Failed() []FieldResult {
	var failed []FieldResult
	for _, res := range r.Results {
		if res.Status == WriteFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Result returns the outcome for c, if c was part of the event.
func (r WriteReport) Result(c device.Capability) (FieldResult, bool) {
	for _, res := range r.Results {
		if res.Capability == c {
			return res, true
		}
	}
	return FieldResult{}, false
}

// Err joins every failure in the report, or returns nil if there were none.
func (r WriteReport) Err() error {
	errs := make([]error, 0, len(r.Errors))
	errs = append(errs, r.Errors...)
	for _, res := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", res.Capability, res.Err))
	}
	return errors.Join(errs...)
}
