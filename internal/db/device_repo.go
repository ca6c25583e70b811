package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"iptvpanel/internal/types"
)

// DeviceRepository reads the panel's devices table. It never writes: the
// table is owned by the admin CRUD and rebuilt by the nightly resync, which
// is why callers must not rely on row ids across sweeps.
type DeviceRepository struct {
	db DBTX
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db DBTX) *DeviceRepository {
	return &DeviceRepository{db: db}
}

const deviceColumns = `d.id, d.hardware_id, d.tenant_id, d.full_name,
	COALESCE(d.phone, ''), COALESCE(d.chat_handle, ''), COALESCE(d.email, ''),
	d.expires_on, d.active`

// ListDueOn returns active devices whose plan expires exactly on expiry.
// When allTenants is false the result is restricted to tenantID.
func (r *DeviceRepository) ListDueOn(ctx context.Context, tenantID string, allTenants bool, expiry time.Time) ([]types.Device, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+deviceColumns+`
		 FROM devices d
		 WHERE d.active = TRUE
		   AND d.expires_on = $1
		   AND ($2 OR d.tenant_id = $3)
		 ORDER BY d.expires_on, d.hardware_id`,
		types.DateOf(expiry), allTenants, tenantID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list devices due for reminder", err)
	}
	return scanDevices(rows)
}

// ListExpiredBetween returns inactive devices whose plan expired within
// [from, to], inclusive on both ends.
func (r *DeviceRepository) ListExpiredBetween(ctx context.Context, tenantID string, allTenants bool, from, to time.Time) ([]types.Device, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+deviceColumns+`
		 FROM devices d
		 WHERE d.active = FALSE
		   AND d.expires_on BETWEEN $1 AND $2
		   AND ($3 OR d.tenant_id = $4)
		 ORDER BY d.expires_on, d.hardware_id`,
		types.DateOf(from), types.DateOf(to), allTenants, tenantID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expired devices", err)
	}
	return scanDevices(rows)
}

func scanDevices(rows pgx.Rows) ([]types.Device, error) {
	defer rows.Close()

	var devices []types.Device
	for rows.Next() {
		var d types.Device
		if err := rows.Scan(
			&d.ID, &d.HardwareID, &d.TenantID, &d.FullName,
			&d.Phone, &d.ChatHandle, &d.Email,
			&d.ExpiresOn, &d.Active,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan device row", err)
		}
		d.HardwareID = types.NormalizeHardwareID(d.HardwareID)
		d.ExpiresOn = types.DateOf(d.ExpiresOn)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating device rows", err)
	}
	return devices, nil
}
