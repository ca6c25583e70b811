package reminder

import (
	"strconv"
	"strings"
	"time"

	"iptvpanel/internal/types"
)

// TemplateVars are the values available to a message template.
type TemplateVars struct {
	Name       string
	HardwareID string
	Expiry     time.Time
	Days       int
	Tenant     string
	// DateLayout formats {expiry}; empty means types.DateLayout.
	DateLayout string
}

// VarsFor builds the template variables for a device at a stage.
func VarsFor(d types.Device, stage types.Stage, tenant types.Tenant, layout string) TemplateVars {
	return TemplateVars{
		Name:       d.FullName,
		HardwareID: types.NormalizeHardwareID(d.HardwareID),
		Expiry:     d.ExpiresOn,
		Days:       int(stage),
		Tenant:     tenant.Name,
		DateLayout: layout,
	}
}

// Render substitutes the known placeholders in tmpl:
//
//	{name}                  subscriber display name
//	{mac}, {hardware_id}    hardware identifier
//	{expiry}, {expiry_date} expiry date in the configured layout
//	{days}                  stage day offset
//	{tenant}                reseller name
//
// Anything else in braces is user text and is left untouched. Substituted
// values are not re-scanned.
func Render(tmpl string, vars TemplateVars) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	layout := vars.DateLayout
	if layout == "" {
		layout = types.DateLayout
	}
	expiry := ""
	if !vars.Expiry.IsZero() {
		expiry = vars.Expiry.Format(layout)
	}
	days := strconv.Itoa(vars.Days)

	return strings.NewReplacer(
		"{name}", vars.Name,
		"{mac}", vars.HardwareID,
		"{hardware_id}", vars.HardwareID,
		"{expiry}", expiry,
		"{expiry_date}", expiry,
		"{days}", days,
		"{tenant}", vars.Tenant,
	).Replace(tmpl)
}
