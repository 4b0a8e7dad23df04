// Package slometrics implements slo.MetricsSource against the same
// Postgres tables the send pipeline writes, so the SLO controller
// (internal/slo) observes exactly what the fleet actually did.
package slometrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Source computes the rolling error rate and send-queue age p95 the SLO
// controller probes every interval.
type Source struct {
	db     *sql.DB
	window time.Duration
}

// New builds a Source evaluating email_logs over the trailing window.
func New(db *sql.DB, window time.Duration) *Source {
	if window == 0 {
		window = 5 * time.Minute
	}
	return &Source{db: db, window: window}
}

// ErrorRate is failed/(sent+failed) over the trailing window. A window with
// no completed sends reports 0 (no evidence of a violation).
func (s *Source) ErrorRate(ctx context.Context) (float64, error) {
	var sent, failed int64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'sent'),
			count(*) FILTER (WHERE status = 'failed')
		FROM email_logs
		WHERE COALESCE(sent_at, failed_at) > $1
	`, time.Now().Add(-s.window)).Scan(&sent, &failed)
	if err != nil {
		return 0, fmt.Errorf("compute error rate: %w", err)
	}
	total := sent + failed
	if total == 0 {
		return 0, nil
	}
	return float64(failed) / float64(total), nil
}

// QueueAgeP95 is the 95th percentile age of currently queued send jobs. An
// empty queue reports 0.
func (s *Source) QueueAgeP95(ctx context.Context) (time.Duration, error) {
	var seconds sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT percentile_cont(0.95) WITHIN GROUP (
			ORDER BY EXTRACT(EPOCH FROM (now() - scheduled_at))
		)
		FROM send_queue
		WHERE status IN ('queued', 'sending')
	`).Scan(&seconds)
	if err != nil {
		return 0, fmt.Errorf("compute queue age p95: %w", err)
	}
	if !seconds.Valid {
		return 0, nil
	}
	return time.Duration(seconds.Float64 * float64(time.Second)), nil
}
