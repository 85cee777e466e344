// internal/issuer/issuer.go
// Package issuer mints program identifiers for fully approved applications.
// Identifiers follow PPP-YYYY-NNNNNN: program prefix, approval year, and a
// zero-padded sequence number. Sequence gaps are acceptable; duplicates are
// not.
package issuer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Issuer mints one identifier per call. Callers are responsible for
// idempotency: an application that already carries an identifier must not be
// issued a second one.
type Issuer interface {
	Issue(ctx context.Context, applicationID string) (string, error)
}

// Format renders a sequence number into the identifier wire form.
func Format(prefix string, year int, sequence int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, sequence)
}

// Counter is an in-process Issuer backed by an atomic counter. Suitable for
// tests and single-node deployments only; multi-node deployments use the
// database sequence.
type Counter struct {
	prefix string
	seq    atomic.Int64
	now    func() time.Time
}

func NewCounter(prefix string) *Counter {
	return &Counter{
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the issuer's clock. Test hook.
func (c *Counter) SetClock(now func() time.Time) { c.now = now }

func (c *Counter) Issue(_ context.Context, _ string) (string, error) {
	return Format(c.prefix, c.now().Year(), c.seq.Add(1)), nil
}
