package reminder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"iptvpanel/internal/types"
)

// DefaultExpiredCatchupDays bounds how far back the expired stage looks.
const DefaultExpiredCatchupDays = 3

// Selector computes the devices due for a stage on a given day.
type Selector struct {
	devices     DeviceStore
	catchupDays int
}

// NewSelector creates a Selector. catchupDays is the number of days before
// today still considered for the expired stage; negative means the default.
func NewSelector(devices DeviceStore, catchupDays int) *Selector {
	if catchupDays < 0 {
		catchupDays = DefaultExpiredCatchupDays
	}
	return &Selector{devices: devices, catchupDays: catchupDays}
}

// SelectCandidates returns the devices to notify for stage on today.
//
// For a positive stage the target is today+stage and only active devices
// expiring exactly then qualify. The expired stage selects devices whose
// expiry is in [today-catchup, today] and which are already inactive; a
// device past expiry that has not been deactivated yet is not selected.
//
// Results are scoped to the tenant unless it can view all devices and are
// ordered by expiry date then hardware id.
func (s *Selector) SelectCandidates(ctx context.Context, tenant types.Tenant, stage types.Stage, today time.Time) ([]types.Device, error) {
	if stage < 0 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidStage, fmt.Sprintf("stage %d is negative", stage), nil)
	}
	today = types.DateOf(today)
	all := tenant.Capabilities.ViewAllDevices

	var (
		devices []types.Device
		err     error
	)
	if stage.IsExpired() {
		from := today.AddDate(0, 0, -s.catchupDays)
		devices, err = s.devices.ListExpiredBetween(ctx, tenant.ID, all, from, today)
	} else {
		devices, err = s.devices.ListDueOn(ctx, tenant.ID, all, TargetDate(stage, today))
	}
	if err != nil {
		return nil, fmt.Errorf("selecting %s candidates for tenant %s: %w", stage, tenant.ID, err)
	}

	out := devices[:0]
	for _, d := range devices {
		if d.Active == stage.IsExpired() {
			continue
		}
		if !all && d.TenantID != tenant.ID {
			continue
		}
		if stage.IsExpired() && types.DateOf(d.ExpiresOn).After(today) {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExpiresOn.Equal(out[j].ExpiresOn) {
			return out[i].ExpiresOn.Before(out[j].ExpiresOn)
		}
		return out[i].HardwareID < out[j].HardwareID
	})
	return out, nil
}

// TargetDate returns the expiry date a positive stage looks for on today.
func TargetDate(stage types.Stage, today time.Time) time.Time {
	return types.DateOf(today).AddDate(0, 0, int(stage))
}

// Today returns the calendar date of now in loc as a UTC midnight.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return types.DateOf(now.In(loc))
}
