package teslemetry

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
)

// ReconcileCapabilities makes the store's capability set equal to required:
// missing capabilities are added and surplus ones removed. Running it again
// with the same requirement changes nothing.
//
// Each add or remove is attempted independently; the returned slices list
// only the changes that succeeded and err joins the failures.
func ReconcileCapabilities(ctx context.Context, store CapabilityStore, required []device.Capability) (added, removed []device.Capability, err error) {
	current, err := store.Capabilities(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reading capabilities: %w", err)
	}

	var errs []error
	for _, c := range required {
		if slices.Contains(current, c) {
			continue
		}
		if err := store.AddCapability(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("adding %s: %w", c, err))
			continue
		}
		added = append(added, c)
	}

	for _, c := range current {
		if slices.Contains(required, c) {
			continue
		}
		if err := store.RemoveCapability(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", c, err))
			continue
		}
		removed = append(removed, c)
	}

	return added, removed, errors.Join(errs...)
}
