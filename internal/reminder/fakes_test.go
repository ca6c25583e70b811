package reminder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"iptvpanel/internal/notifications/core"
	"iptvpanel/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDate(s string) time.Time {
	d, err := types.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// memStore is an in-memory DeviceStore, ReminderConfigStore and LedgerStore
// with the same unique-within-window semantics as the SQL stores.
type memStore struct {
	mu       sync.Mutex
	devices  []types.Device
	tenants  []types.TenantReminder
	ledger   map[string]types.LedgerEntry
	touched  map[string]time.Time
	inserts  int
	listErr  error
	devErr   map[string]error
	existErr error
	// beforeInsert runs inside Insert, simulating a concurrent writer.
	beforeInsert func(*memStore, *types.LedgerEntry)
}

func newMemStore() *memStore {
	return &memStore{
		ledger:  make(map[string]types.LedgerEntry),
		touched: make(map[string]time.Time),
		devErr:  make(map[string]error),
	}
}

func ledgerKey(hw string, expiry time.Time, stage types.Stage) string {
	return fmt.Sprintf("%s|%s|%d", hw, types.DateOf(expiry).Format(types.DateLayout), stage)
}

func (m *memStore) addDevice(d types.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.HardwareID = types.NormalizeHardwareID(d.HardwareID)
	d.ExpiresOn = types.DateOf(d.ExpiresOn)
	if d.ID == 0 {
		d.ID = int64(len(m.devices) + 1)
	}
	m.devices = append(m.devices, d)
}

// resync replaces every device row id, like the nightly rebuild.
func (m *memStore) resync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.devices {
		m.devices[i].ID += 1000
	}
}

func (m *memStore) setExpiry(hw string, expiry time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.devices {
		if m.devices[i].HardwareID == types.NormalizeHardwareID(hw) {
			m.devices[i].ExpiresOn = types.DateOf(expiry)
		}
	}
}

func (m *memStore) listDevices(tenantID string, all bool, match func(types.Device) bool) []types.Device {
	var out []types.Device
	for _, d := range m.devices {
		if !all && d.TenantID != tenantID {
			continue
		}
		if match(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresOn.Equal(out[j].ExpiresOn) {
			return out[i].ExpiresOn.Before(out[j].ExpiresOn)
		}
		return out[i].HardwareID < out[j].HardwareID
	})
	return out
}

func (m *memStore) ListDueOn(_ context.Context, tenantID string, all bool, expiry time.Time) ([]types.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.devErr[tenantID]; err != nil {
		return nil, err
	}
	expiry = types.DateOf(expiry)
	return m.listDevices(tenantID, all, func(d types.Device) bool {
		return d.Active && d.ExpiresOn.Equal(expiry)
	}), nil
}

func (m *memStore) ListExpiredBetween(_ context.Context, tenantID string, all bool, from, to time.Time) ([]types.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.devErr[tenantID]; err != nil {
		return nil, err
	}
	from, to = types.DateOf(from), types.DateOf(to)
	return m.listDevices(tenantID, all, func(d types.Device) bool {
		return !d.Active && !d.ExpiresOn.Before(from) && !d.ExpiresOn.After(to)
	}), nil
}

func (m *memStore) ListEnabled(context.Context) ([]types.TenantReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]types.TenantReminder, 0, len(m.tenants))
	for _, t := range m.tenants {
		if t.Config.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) TouchLastSweep(_ context.Context, tenantID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[tenantID] = at
	return nil
}

func (m *memStore) Exists(_ context.Context, hw string, expiry time.Time, stage types.Stage, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existErr != nil {
		return false, m.existErr
	}
	e, ok := m.ledger[ledgerKey(hw, expiry, stage)]
	return ok && e.Outcome == types.OutcomeSent && !e.AttemptedAt.Before(since), nil
}

func (m *memStore) Insert(_ context.Context, entry *types.LedgerEntry, cutoff time.Time) error {
	if m.beforeInsert != nil {
		m.beforeInsert(m, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ledgerKey(entry.HardwareID, entry.ExpiryDate, entry.Stage)
	if e, ok := m.ledger[key]; ok && e.Outcome == types.OutcomeSent && !e.AttemptedAt.Before(cutoff) {
		return types.ErrDuplicateLedgerEntry
	}
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("entry-%d", m.inserts+1)
	}
	m.inserts++
	m.ledger[key] = *entry
	return nil
}

func (m *memStore) ListBefore(_ context.Context, before time.Time) ([]types.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.LedgerEntry
	for _, e := range m.ledger {
		if e.AttemptedAt.Before(before) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.ledger {
		if e.AttemptedAt.Before(before) {
			delete(m.ledger, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListByHardwareID(_ context.Context, hw string, limit int) ([]types.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.LedgerEntry
	for _, e := range m.ledger {
		if e.HardwareID == hw {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptedAt.After(out[j].AttemptedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) entries() []types.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.LedgerEntry, 0, len(m.ledger))
	for _, e := range m.ledger {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return ledgerKey(out[i].HardwareID, out[i].ExpiryDate, out[i].Stage) < ledgerKey(out[j].HardwareID, out[j].ExpiryDate, out[j].Stage)
	})
	return out
}

// fakeDispatcher records sends and answers from a per-address script.
type fakeDispatcher struct {
	mu      sync.Mutex
	channel types.ChannelType
	sent    []sentMessage
	fail    map[string]string
}

type sentMessage struct {
	To      core.Recipient
	Message core.Message
}

func newFakeDispatcher(ch types.ChannelType) *fakeDispatcher {
	return &fakeDispatcher{channel: ch, fail: make(map[string]string)}
}

func (f *fakeDispatcher) Channel() types.ChannelType { return f.channel }

func (f *fakeDispatcher) Send(_ context.Context, to core.Recipient, msg core.Message) core.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if to.Address == "" {
		return core.Failure(core.ErrRecipientMissing)
	}
	f.sent = append(f.sent, sentMessage{To: to, Message: msg})
	if reason, ok := f.fail[to.Address]; ok {
		return core.Failure(reason)
	}
	return core.Success(fmt.Sprintf("%s-%d", f.channel, len(f.sent)))
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func allCapabilities() types.Capabilities {
	return types.Capabilities{STBMessage: true, SMS: true, ChatBot: true, Email: true, AutoReminders: true}
}

func singleStageTenant(id string, stage int, template string, channels ...types.ChannelType) types.TenantReminder {
	if len(channels) == 0 {
		channels = []types.ChannelType{types.ChannelSTB}
	}
	return types.TenantReminder{
		Tenant: types.Tenant{ID: id, Name: "Reseller " + id, Capabilities: allCapabilities()},
		Config: types.ReminderConfig{
			TenantID:         id,
			Enabled:          true,
			Mode:             types.StageModeSingle,
			SingleOffsetDays: stage,
			Channels:         channels,
			DefaultTemplate:  template,
		},
	}
}
