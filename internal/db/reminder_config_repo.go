package db

import (
	"context"
	"time"

	"iptvpanel/internal/types"
)

// ReminderConfigRepository reads tenant reminder configurations together
// with their tenant row and templates.
type ReminderConfigRepository struct {
	db DBTX
}

// NewReminderConfigRepository creates a new ReminderConfigRepository.
func NewReminderConfigRepository(db DBTX) *ReminderConfigRepository {
	return &ReminderConfigRepository{db: db}
}

// ListEnabled returns every tenant whose reminder configuration is enabled,
// ordered by tenant id. The stored permission string is parsed into
// types.Capabilities here and nowhere else.
func (r *ReminderConfigRepository) ListEnabled(ctx context.Context) ([]types.TenantReminder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT t.id, t.name, t.permissions,
		        c.enabled, c.mode, c.single_offset_days, c.channels,
		        c.default_template, COALESCE(c.email_subject, ''), c.last_sweep_at
		 FROM reminder_configs c
		 JOIN tenants t ON t.id = c.tenant_id
		 WHERE c.enabled = TRUE
		 ORDER BY t.id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list reminder configs", err)
	}
	defer rows.Close()

	var (
		out   []types.TenantReminder
		index = make(map[string]int)
		ids   []string
	)
	for rows.Next() {
		var (
			tr          types.TenantReminder
			permissions string
			mode        string
			channels    string
			lastSweepAt *time.Time
		)
		if err := rows.Scan(
			&tr.Tenant.ID, &tr.Tenant.Name, &permissions,
			&tr.Config.Enabled, &mode, &tr.Config.SingleOffsetDays, &channels,
			&tr.Config.DefaultTemplate, &tr.Config.EmailSubject, &lastSweepAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reminder config row", err)
		}
		tr.Tenant.Capabilities = types.ParseCapabilities(permissions)
		tr.Config.TenantID = tr.Tenant.ID
		tr.Config.Mode = types.StageMode(mode)
		tr.Config.Channels = types.ParseChannels(channels)
		tr.Config.LastSweepAt = lastSweepAt
		tr.Config.Templates = make(map[types.TemplateKey]string)

		index[tr.Tenant.ID] = len(out)
		ids = append(ids, tr.Tenant.ID)
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating reminder config rows", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	tplRows, err := r.db.Query(ctx,
		`SELECT tenant_id, stage_days, channel, body
		 FROM reminder_templates
		 WHERE tenant_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list reminder templates", err)
	}
	defer tplRows.Close()

	for tplRows.Next() {
		var (
			tenantID string
			stage    int
			channel  string
			body     string
		)
		if err := tplRows.Scan(&tenantID, &stage, &channel, &body); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reminder template row", err)
		}
		i, ok := index[tenantID]
		if !ok {
			continue
		}
		key := types.TemplateKey{Stage: types.Stage(stage), Channel: types.ChannelType(channel)}
		out[i].Config.Templates[key] = body
	}
	if err := tplRows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating reminder template rows", err)
	}

	return out, nil
}

// TouchLastSweep stamps the tenant's configuration with the sweep time. The
// value is informational only; no scheduling decision reads it.
func (r *ReminderConfigRepository) TouchLastSweep(ctx context.Context, tenantID string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE reminder_configs SET last_sweep_at = $2 WHERE tenant_id = $1`,
		tenantID, at.UTC(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update last sweep time", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "reminder config not found for tenant "+tenantID, nil)
	}
	return nil
}
