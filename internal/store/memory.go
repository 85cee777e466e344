// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "poultry-workflow/internal/common/errors"
	"poultry-workflow/internal/models"
)

// Memory is the in-memory Store. A single mutex serializes every operation,
// which also makes Transact trivially atomic: the body runs under the lock
// and a failed body restores the pre-transaction snapshot.
type Memory struct {
	mu   sync.Mutex
	data *memData
}

func NewMemory() *Memory {
	return &Memory{data: newMemData()}
}

func (m *Memory) CreateApplication(_ context.Context, app *models.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.createApplication(app)
}

func (m *Memory) GetApplication(_ context.Context, id string) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getApplication(id)
}

func (m *Memory) UpdateApplication(_ context.Context, app *models.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateApplication(app)
}

func (m *Memory) ListApplicationsByStatus(_ context.Context, status models.Status) ([]*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.listApplicationsByStatus(status)
}

func (m *Memory) InsertQueueEntry(_ context.Context, entry *models.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.insertQueueEntry(entry)
}

func (m *Memory) GetQueueEntry(_ context.Context, id string) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getQueueEntry(id)
}

func (m *Memory) LiveQueueEntry(_ context.Context, applicationID string, level int) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.liveQueueEntry(applicationID, level)
}

func (m *Memory) LiveQueueEntries(_ context.Context, applicationID string) ([]*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.liveQueueEntries(applicationID)
}

func (m *Memory) UpdateQueueEntry(_ context.Context, entry *models.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateQueueEntry(entry)
}

func (m *Memory) ClaimQueueEntry(_ context.Context, entryID, reviewerID string, now time.Time) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.claimQueueEntry(entryID, reviewerID, now)
}

func (m *Memory) ListQueueEntries(_ context.Context, level int, filter ListFilter) ([]*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.listQueueEntries(level, filter)
}

func (m *Memory) AppendAction(_ context.Context, action *models.ReviewAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.appendAction(action)
}

func (m *Memory) ListActions(_ context.Context, applicationID string) ([]*models.ReviewAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.listActions(applicationID)
}

func (m *Memory) Transact(_ context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&txMemory{data: m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

// txMemory is the view handed to a Transact body: same data, no locking,
// already serialized by the outer mutex.
type txMemory struct {
	data *memData
}

func (t *txMemory) CreateApplication(_ context.Context, app *models.Application) error {
	return t.data.createApplication(app)
}

func (t *txMemory) GetApplication(_ context.Context, id string) (*models.Application, error) {
	return t.data.getApplication(id)
}

func (t *txMemory) UpdateApplication(_ context.Context, app *models.Application) error {
	return t.data.updateApplication(app)
}

func (t *txMemory) ListApplicationsByStatus(_ context.Context, status models.Status) ([]*models.Application, error) {
	return t.data.listApplicationsByStatus(status)
}

func (t *txMemory) InsertQueueEntry(_ context.Context, entry *models.QueueEntry) error {
	return t.data.insertQueueEntry(entry)
}

func (t *txMemory) GetQueueEntry(_ context.Context, id string) (*models.QueueEntry, error) {
	return t.data.getQueueEntry(id)
}

func (t *txMemory) LiveQueueEntry(_ context.Context, applicationID string, level int) (*models.QueueEntry, error) {
	return t.data.liveQueueEntry(applicationID, level)
}

func (t *txMemory) LiveQueueEntries(_ context.Context, applicationID string) ([]*models.QueueEntry, error) {
	return t.data.liveQueueEntries(applicationID)
}

func (t *txMemory) UpdateQueueEntry(_ context.Context, entry *models.QueueEntry) error {
	return t.data.updateQueueEntry(entry)
}

func (t *txMemory) ClaimQueueEntry(_ context.Context, entryID, reviewerID string, now time.Time) (*models.QueueEntry, error) {
	return t.data.claimQueueEntry(entryID, reviewerID, now)
}

func (t *txMemory) ListQueueEntries(_ context.Context, level int, filter ListFilter) ([]*models.QueueEntry, error) {
	return t.data.listQueueEntries(level, filter)
}

func (t *txMemory) AppendAction(_ context.Context, action *models.ReviewAction) error {
	return t.data.appendAction(action)
}

func (t *txMemory) ListActions(_ context.Context, applicationID string) ([]*models.ReviewAction, error) {
	return t.data.listActions(applicationID)
}

func (t *txMemory) Transact(_ context.Context, fn func(Store) error) error {
	// Already inside the outer transaction; join it.
	return fn(t)
}

// memData holds the actual rows. All methods assume the caller holds the
// owning Memory's mutex.
type memData struct {
	apps    map[string]*models.Application
	entries map[string]*models.QueueEntry
	actions []*models.ReviewAction
}

func newMemData() *memData {
	return &memData{
		apps:    make(map[string]*models.Application),
		entries: make(map[string]*models.QueueEntry),
	}
}

func (d *memData) clone() *memData {
	cp := newMemData()
	for id, app := range d.apps {
		cp.apps[id] = app.Clone()
	}
	for id, entry := range d.entries {
		cp.entries[id] = entry.Clone()
	}
	cp.actions = append([]*models.ReviewAction(nil), d.actions...)
	return cp
}

func (d *memData) createApplication(app *models.Application) error {
	d.apps[app.ID] = app.Clone()
	return nil
}

func (d *memData) getApplication(id string) (*models.Application, error) {
	app, ok := d.apps[id]
	if !ok {
		return nil, apperrors.NewResourceNotFoundError("application", id)
	}
	return app.Clone(), nil
}

func (d *memData) updateApplication(app *models.Application) error {
	if _, ok := d.apps[app.ID]; !ok {
		return apperrors.NewResourceNotFoundError("application", app.ID)
	}
	d.apps[app.ID] = app.Clone()
	return nil
}

func (d *memData) listApplicationsByStatus(status models.Status) ([]*models.Application, error) {
	var out []*models.Application
	for _, app := range d.apps {
		if app.Status == status {
			out = append(out, app.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (d *memData) insertQueueEntry(entry *models.QueueEntry) error {
	for _, existing := range d.entries {
		if existing.ApplicationID == entry.ApplicationID &&
			existing.Level == entry.Level &&
			existing.Status.Live() {
			return apperrors.NewDuplicateQueueEntryError(entry.ApplicationID, entry.Level)
		}
	}
	d.entries[entry.ID] = entry.Clone()
	return nil
}

func (d *memData) getQueueEntry(id string) (*models.QueueEntry, error) {
	entry, ok := d.entries[id]
	if !ok {
		return nil, apperrors.NewResourceNotFoundError("queue entry", id)
	}
	return entry.Clone(), nil
}

func (d *memData) liveQueueEntry(applicationID string, level int) (*models.QueueEntry, error) {
	for _, entry := range d.entries {
		if entry.ApplicationID == applicationID && entry.Level == level && entry.Status.Live() {
			return entry.Clone(), nil
		}
	}
	return nil, apperrors.NewResourceNotFoundError("queue entry", applicationID)
}

func (d *memData) liveQueueEntries(applicationID string) ([]*models.QueueEntry, error) {
	var out []*models.QueueEntry
	for _, entry := range d.entries {
		if entry.ApplicationID == applicationID && entry.Status.Live() {
			out = append(out, entry.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (d *memData) updateQueueEntry(entry *models.QueueEntry) error {
	if _, ok := d.entries[entry.ID]; !ok {
		return apperrors.NewResourceNotFoundError("queue entry", entry.ID)
	}
	d.entries[entry.ID] = entry.Clone()
	return nil
}

func (d *memData) claimQueueEntry(entryID, reviewerID string, now time.Time) (*models.QueueEntry, error) {
	entry, ok := d.entries[entryID]
	if !ok {
		return nil, apperrors.NewResourceNotFoundError("queue entry", entryID)
	}
	if entry.Status != models.QueuePending {
		return nil, apperrors.NewAlreadyClaimedError(entryID)
	}
	entry.Status = models.QueueClaimed
	entry.AssignedTo = &reviewerID
	claimedAt := now
	entry.ClaimedAt = &claimedAt
	return entry.Clone(), nil
}

func (d *memData) listQueueEntries(level int, filter ListFilter) ([]*models.QueueEntry, error) {
	var out []*models.QueueEntry
	for _, entry := range d.entries {
		if entry.Level != level || !entry.Status.Live() {
			continue
		}
		if filter.AssignedTo != "" {
			if entry.AssignedTo == nil || *entry.AssignedTo != filter.AssignedTo {
				continue
			}
		}
		app, ok := d.apps[entry.ApplicationID]
		if !ok {
			continue
		}
		if filter.Region != "" && app.Jurisdiction.Region != filter.Region {
			continue
		}
		if filter.District != "" && app.Jurisdiction.District != filter.District {
			continue
		}
		if filter.Constituency != "" && app.Jurisdiction.Constituency != filter.Constituency {
			continue
		}
		out = append(out, entry.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (d *memData) appendAction(action *models.ReviewAction) error {
	cp := *action
	d.actions = append(d.actions, &cp)
	return nil
}

func (d *memData) listActions(applicationID string) ([]*models.ReviewAction, error) {
	var out []*models.ReviewAction
	for _, action := range d.actions {
		if action.ApplicationID == applicationID {
			cp := *action
			out = append(out, &cp)
		}
	}
	return out, nil
}
