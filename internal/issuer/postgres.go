// internal/issuer/postgres.go
package issuer

import (
	"context"
	"database/sql"
	"time"

	apperrors "poultry-workflow/internal/common/errors"
)

// PostgresSequence mints identifiers from a database sequence, so numbers
// stay unique across engine instances. Expected schema:
//
//	CREATE SEQUENCE IF NOT EXISTS program_identifier_seq;
type PostgresSequence struct {
	db     *sql.DB
	prefix string
	now    func() time.Time
}

func NewPostgresSequence(db *sql.DB, prefix string) *PostgresSequence {
	return &PostgresSequence{
		db:     db,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the issuer's clock. Test hook.
func (p *PostgresSequence) SetClock(now func() time.Time) { p.now = now }

func (p *PostgresSequence) Issue(ctx context.Context, applicationID string) (string, error) {
	var sequence int64
	if err := p.db.QueryRowContext(ctx, `SELECT nextval('program_identifier_seq')`).Scan(&sequence); err != nil {
		return "", apperrors.NewIdentifierIssuanceError(applicationID, err)
	}
	return Format(p.prefix, p.now().Year(), sequence), nil
}
