// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "poultry-workflow/internal/common/errors"
	"poultry-workflow/internal/models"
)

// Postgres implements Store on PostgreSQL. Expected schema:
//
//	applications(id TEXT PK, kind TEXT, status TEXT, current_level INT,
//	    region TEXT, district TEXT, constituency TEXT, snapshot JSONB,
//	    eligibility_score INT, eligibility_flags JSONB, identifier TEXT,
//	    submitted_at TIMESTAMPTZ, changes_deadline TIMESTAMPTZ,
//	    final_decision_at TIMESTAMPTZ, created_at TIMESTAMPTZ, updated_at TIMESTAMPTZ)
//	review_queue(id TEXT PK, application_id TEXT, level INT, status TEXT,
//	    assigned_to TEXT, claimed_at TIMESTAMPTZ, priority_score INT,
//	    sla_deadline TIMESTAMPTZ, escalated BOOL, created_at TIMESTAMPTZ,
//	    completed_at TIMESTAMPTZ)
//	review_actions(id TEXT PK, application_id TEXT, reviewer_id TEXT,
//	    level INT, action TEXT, notes TEXT, created_at TIMESTAMPTZ)
//
// A partial unique index enforces the single-live-entry invariant at the
// storage layer as well:
//
//	CREATE UNIQUE INDEX review_queue_live_uniq
//	    ON review_queue (application_id, level) WHERE status != 'completed';
type Postgres struct {
	db *sql.DB
	q  queryer
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, q: db}
}

func (p *Postgres) Transact(ctx context.Context, fn func(Store) error) error {
	if _, nested := p.q.(*sql.Tx); nested {
		return fn(p)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("begin", err)
	}

	if err := fn(&Postgres{db: p.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("commit", err)
	}
	return nil
}

const applicationColumns = `id, kind, status, current_level, region, district, constituency,
	snapshot, eligibility_score, eligibility_flags, identifier, submitted_at,
	changes_deadline, final_decision_at, created_at, updated_at`

func (p *Postgres) CreateApplication(ctx context.Context, app *models.Application) error {
	snapshot, flags, err := marshalApplicationJSON(app)
	if err != nil {
		return err
	}

	_, err = p.q.ExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		app.ID, app.Kind, app.Status, app.CurrentLevel,
		app.Jurisdiction.Region, app.Jurisdiction.District, app.Jurisdiction.Constituency,
		snapshot, app.EligibilityScore, flags, nullString(app.Identifier),
		app.SubmittedAt, nullTime(app.ChangesDeadline), nullTime(app.FinalDecisionAt),
		app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return apperrors.NewStorageError("insert application", err)
	}
	return nil
}

func (p *Postgres) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	row := p.q.QueryRowContext(ctx, `
		SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	return scanApplication(row, id)
}

func (p *Postgres) UpdateApplication(ctx context.Context, app *models.Application) error {
	snapshot, flags, err := marshalApplicationJSON(app)
	if err != nil {
		return err
	}

	res, err := p.q.ExecContext(ctx, `
		UPDATE applications
		SET status = $2, current_level = $3, snapshot = $4, eligibility_score = $5,
			eligibility_flags = $6, identifier = $7, changes_deadline = $8,
			final_decision_at = $9, updated_at = $10
		WHERE id = $1`,
		app.ID, app.Status, app.CurrentLevel, snapshot, app.EligibilityScore,
		flags, nullString(app.Identifier), nullTime(app.ChangesDeadline),
		nullTime(app.FinalDecisionAt), app.UpdatedAt)
	if err != nil {
		return apperrors.NewStorageError("update application", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewResourceNotFoundError("application", app.ID)
	}
	return nil
}

func (p *Postgres) ListApplicationsByStatus(ctx context.Context, status models.Status) ([]*models.Application, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE status = $1 ORDER BY submitted_at`, status)
	if err != nil {
		return nil, apperrors.NewStorageError("list applications", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("list applications", err)
	}
	return out, nil
}

const queueColumns = `id, application_id, level, status, assigned_to, claimed_at,
	priority_score, sla_deadline, escalated, created_at, completed_at`

func (p *Postgres) InsertQueueEntry(ctx context.Context, entry *models.QueueEntry) error {
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO review_queue (`+queueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.ApplicationID, entry.Level, entry.Status,
		nullStringPtr(entry.AssignedTo), nullTime(entry.ClaimedAt),
		entry.PriorityScore, entry.SLADeadline, entry.Escalated,
		entry.CreatedAt, nullTime(entry.CompletedAt))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apperrors.NewDuplicateQueueEntryError(entry.ApplicationID, entry.Level)
		}
		return apperrors.NewStorageError("insert queue entry", err)
	}
	return nil
}

func (p *Postgres) GetQueueEntry(ctx context.Context, id string) (*models.QueueEntry, error) {
	row := p.q.QueryRowContext(ctx, `
		SELECT `+queueColumns+` FROM review_queue WHERE id = $1`, id)
	return scanQueueEntry(row, id)
}

func (p *Postgres) LiveQueueEntry(ctx context.Context, applicationID string, level int) (*models.QueueEntry, error) {
	row := p.q.QueryRowContext(ctx, `
		SELECT `+queueColumns+` FROM review_queue
		WHERE application_id = $1 AND level = $2 AND status != 'completed'`,
		applicationID, level)
	return scanQueueEntry(row, applicationID)
}

func (p *Postgres) LiveQueueEntries(ctx context.Context, applicationID string) ([]*models.QueueEntry, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT `+queueColumns+` FROM review_queue
		WHERE application_id = $1 AND status != 'completed' ORDER BY level`,
		applicationID)
	if err != nil {
		return nil, apperrors.NewStorageError("list live queue entries", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

func (p *Postgres) UpdateQueueEntry(ctx context.Context, entry *models.QueueEntry) error {
	res, err := p.q.ExecContext(ctx, `
		UPDATE review_queue
		SET status = $2, assigned_to = $3, claimed_at = $4, priority_score = $5,
			sla_deadline = $6, escalated = $7, completed_at = $8
		WHERE id = $1`,
		entry.ID, entry.Status, nullStringPtr(entry.AssignedTo), nullTime(entry.ClaimedAt),
		entry.PriorityScore, entry.SLADeadline, entry.Escalated, nullTime(entry.CompletedAt))
	if err != nil {
		return apperrors.NewStorageError("update queue entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewResourceNotFoundError("queue entry", entry.ID)
	}
	return nil
}

// ClaimQueueEntry is the single serialization point of the whole workflow: a
// conditional UPDATE so two racing reviewers produce exactly one winner, with
// no read-then-write window.
func (p *Postgres) ClaimQueueEntry(ctx context.Context, entryID, reviewerID string, now time.Time) (*models.QueueEntry, error) {
	res, err := p.q.ExecContext(ctx, `
		UPDATE review_queue
		SET status = 'claimed', assigned_to = $2, claimed_at = $3
		WHERE id = $1 AND status = 'pending'`,
		entryID, reviewerID, now)
	if err != nil {
		return nil, apperrors.NewStorageError("claim queue entry", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, apperrors.NewStorageError("claim queue entry", err)
	}
	if n == 0 {
		// Lost the race or the entry never existed; look once to tell apart.
		if _, getErr := p.GetQueueEntry(ctx, entryID); getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.NewAlreadyClaimedError(entryID)
	}

	return p.GetQueueEntry(ctx, entryID)
}

func (p *Postgres) ListQueueEntries(ctx context.Context, level int, filter ListFilter) ([]*models.QueueEntry, error) {
	query := `
		SELECT q.id, q.application_id, q.level, q.status, q.assigned_to, q.claimed_at,
			q.priority_score, q.sla_deadline, q.escalated, q.created_at, q.completed_at
		FROM review_queue q
		JOIN applications a ON a.id = q.application_id
		WHERE q.level = $1 AND q.status != 'completed'`
	args := []interface{}{level}

	if filter.Region != "" {
		args = append(args, filter.Region)
		query += fmt.Sprintf(" AND a.region = $%d", len(args))
	}
	if filter.District != "" {
		args = append(args, filter.District)
		query += fmt.Sprintf(" AND a.district = $%d", len(args))
	}
	if filter.Constituency != "" {
		args = append(args, filter.Constituency)
		query += fmt.Sprintf(" AND a.constituency = $%d", len(args))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		query += fmt.Sprintf(" AND q.assigned_to = $%d", len(args))
	}
	query += " ORDER BY q.created_at"

	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("list queue entries", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

func (p *Postgres) AppendAction(ctx context.Context, action *models.ReviewAction) error {
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO review_actions (id, application_id, reviewer_id, level, action, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		action.ID, action.ApplicationID, nullStringPtr(action.ReviewerID),
		action.Level, action.Action, action.Notes, action.CreatedAt)
	if err != nil {
		return apperrors.NewStorageError("append review action", err)
	}
	return nil
}

func (p *Postgres) ListActions(ctx context.Context, applicationID string) ([]*models.ReviewAction, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT id, application_id, reviewer_id, level, action, notes, created_at
		FROM review_actions WHERE application_id = $1 ORDER BY created_at, id`,
		applicationID)
	if err != nil {
		return nil, apperrors.NewStorageError("list review actions", err)
	}
	defer rows.Close()

	var out []*models.ReviewAction
	for rows.Next() {
		var (
			action   models.ReviewAction
			reviewer sql.NullString
		)
		if err := rows.Scan(&action.ID, &action.ApplicationID, &reviewer,
			&action.Level, &action.Action, &action.Notes, &action.CreatedAt); err != nil {
			return nil, apperrors.NewStorageError("scan review action", err)
		}
		if reviewer.Valid {
			action.ReviewerID = &reviewer.String
		}
		out = append(out, &action)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("list review actions", err)
	}
	return out, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner, id string) (*models.Application, error) {
	var (
		app             models.Application
		snapshot, flags []byte
		identifier      sql.NullString
		changesDeadline sql.NullTime
		finalDecisionAt sql.NullTime
	)
	err := row.Scan(&app.ID, &app.Kind, &app.Status, &app.CurrentLevel,
		&app.Jurisdiction.Region, &app.Jurisdiction.District, &app.Jurisdiction.Constituency,
		&snapshot, &app.EligibilityScore, &flags, &identifier, &app.SubmittedAt,
		&changesDeadline, &finalDecisionAt, &app.CreatedAt, &app.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewResourceNotFoundError("application", id)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("scan application", err)
	}

	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &app.Snapshot); err != nil {
			return nil, apperrors.NewStorageError("decode snapshot", err)
		}
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &app.EligibilityFlags); err != nil {
			return nil, apperrors.NewStorageError("decode eligibility flags", err)
		}
	}
	if identifier.Valid {
		app.Identifier = identifier.String
	}
	if changesDeadline.Valid {
		app.ChangesDeadline = &changesDeadline.Time
	}
	if finalDecisionAt.Valid {
		app.FinalDecisionAt = &finalDecisionAt.Time
	}
	return &app, nil
}

func scanQueueEntry(row rowScanner, id string) (*models.QueueEntry, error) {
	var (
		entry       models.QueueEntry
		assignedTo  sql.NullString
		claimedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(&entry.ID, &entry.ApplicationID, &entry.Level, &entry.Status,
		&assignedTo, &claimedAt, &entry.PriorityScore, &entry.SLADeadline,
		&entry.Escalated, &entry.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewResourceNotFoundError("queue entry", id)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("scan queue entry", err)
	}

	if assignedTo.Valid {
		entry.AssignedTo = &assignedTo.String
	}
	if claimedAt.Valid {
		entry.ClaimedAt = &claimedAt.Time
	}
	if completedAt.Valid {
		entry.CompletedAt = &completedAt.Time
	}
	return &entry, nil
}

func collectQueueEntries(rows *sql.Rows) ([]*models.QueueEntry, error) {
	var out []*models.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("collect queue entries", err)
	}
	return out, nil
}

func marshalApplicationJSON(app *models.Application) ([]byte, []byte, error) {
	snapshot, err := json.Marshal(app.Snapshot)
	if err != nil {
		return nil, nil, apperrors.NewStorageError("encode snapshot", err)
	}
	flags, err := json.Marshal(app.EligibilityFlags)
	if err != nil {
		return nil, nil, apperrors.NewStorageError("encode eligibility flags", err)
	}
	return snapshot, flags, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
