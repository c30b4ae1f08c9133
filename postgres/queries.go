package postgres

import "fmt"

const eventColumns = "id, tracking_id, aggregate_type, aggregate_id, event_type, payload, metadata, " +
	"status, retry_count, max_retries, created_at, processed_at, locked_until, lock_token, last_error, visible_at"

type queries struct {
	insert                  string
	claimBatch              string
	markCompleted           string
	markFailed              string
	markDeadLetter          string
	renewLease              string
	recoverStale            string
	redriveByEventType      string
	redriveById             string
	pendingCount            string
	processingCount         string
	completedCount          string
	deadLetterCount         string
	oldestPendingAgeSeconds string
	findByTrackingId        string
	findById                string
	findByStatus            string
	findRecentNewest        string
	findRecentAfter         string
	findRecentBefore        string
	deadLetterStats         string
}

func newQueries(table string) queries {
	return queries{
		insert: fmt.Sprintf(
			`INSERT INTO %s (tracking_id, aggregate_type, aggregate_id, event_type, payload, metadata, max_retries)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING %s`,
			table, eventColumns,
		),
		claimBatch: fmt.Sprintf(
			`UPDATE %[1]s SET status = 'PROCESSING', locked_until = now() + ($1 || ' seconds')::interval, lock_token = $2
			 WHERE id IN (
			 	SELECT id FROM %[1]s
			 	WHERE status IN ('PENDING', 'FAILED') AND (visible_at IS NULL OR visible_at <= now())
			 	ORDER BY created_at ASC
			 	LIMIT $3
			 	FOR UPDATE SKIP LOCKED
			 )
			 RETURNING %[2]s`,
			table, eventColumns,
		),
		markCompleted: fmt.Sprintf(
			`UPDATE %s SET status = 'COMPLETED', processed_at = now(), locked_until = NULL, lock_token = NULL, last_error = NULL
			 WHERE id = $1 AND lock_token = $2 AND status = 'PROCESSING'`,
			table,
		),
		markFailed: fmt.Sprintf(
			`UPDATE %s SET status = 'FAILED', retry_count = retry_count + 1, last_error = $3, visible_at = $4,
			 locked_until = NULL, lock_token = NULL
			 WHERE id = $1 AND lock_token = $2 AND status = 'PROCESSING'`,
			table,
		),
		markDeadLetter: fmt.Sprintf(
			`UPDATE %s SET status = 'DEAD_LETTER', retry_count = retry_count + 1, last_error = $3,
			 locked_until = NULL, lock_token = NULL
			 WHERE id = $1 AND lock_token = $2 AND status = 'PROCESSING'`,
			table,
		),
		renewLease: fmt.Sprintf(
			`UPDATE %s SET locked_until = now() + ($3 || ' seconds')::interval
			 WHERE id = $1 AND lock_token = $2 AND status = 'PROCESSING'`,
			table,
		),
		recoverStale: fmt.Sprintf(
			`UPDATE %s SET status = 'PENDING', locked_until = NULL, lock_token = NULL
			 WHERE status = 'PROCESSING' AND locked_until < now()`,
			table,
		),
		redriveByEventType: fmt.Sprintf(
			`UPDATE %s SET status = 'PENDING', retry_count = 0, last_error = NULL, visible_at = NULL
			 WHERE event_type = $1 AND status = 'DEAD_LETTER'`,
			table,
		),
		redriveById: fmt.Sprintf(
			`UPDATE %s SET status = 'PENDING', retry_count = 0, last_error = NULL, visible_at = NULL
			 WHERE id = $1 AND status = 'DEAD_LETTER'`,
			table,
		),
		pendingCount: fmt.Sprintf(
			`SELECT count(*) FROM %s WHERE status IN ('PENDING', 'FAILED')`, table,
		),
		processingCount: fmt.Sprintf(
			`SELECT count(*) FROM %s WHERE status = 'PROCESSING'`, table,
		),
		completedCount: fmt.Sprintf(
			`SELECT count(*) FROM %s WHERE status = 'COMPLETED'`, table,
		),
		deadLetterCount: fmt.Sprintf(
			`SELECT count(*) FROM %s WHERE status = 'DEAD_LETTER'`, table,
		),
		oldestPendingAgeSeconds: fmt.Sprintf(
			`SELECT COALESCE(EXTRACT(EPOCH FROM (now() - MIN(created_at))), 0) FROM %s WHERE status IN ('PENDING', 'FAILED')`,
			table,
		),
		findByTrackingId: fmt.Sprintf(`SELECT %s FROM %s WHERE tracking_id = $1`, eventColumns, table),
		findById:         fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, eventColumns, table),
		findByStatus: fmt.Sprintf(
			`SELECT %s FROM %s WHERE status = $1 ORDER BY created_at ASC LIMIT $2`, eventColumns, table,
		),
		findRecentNewest: fmt.Sprintf(
			`SELECT %s FROM %s ORDER BY id DESC LIMIT $1`, eventColumns, table,
		),
		findRecentAfter: fmt.Sprintf(
			`SELECT %s FROM %s WHERE id > $1 ORDER BY id ASC LIMIT $2`, eventColumns, table,
		),
		findRecentBefore: fmt.Sprintf(
			`SELECT %s FROM %s WHERE id < $1 ORDER BY id DESC LIMIT $2`, eventColumns, table,
		),
		deadLetterStats: fmt.Sprintf(
			`SELECT event_type, count(*),
			        COALESCE(EXTRACT(EPOCH FROM (now() - MIN(created_at))), 0),
			        COALESCE(EXTRACT(EPOCH FROM (now() - MAX(created_at))), 0)
			 FROM %s WHERE status = 'DEAD_LETTER' GROUP BY event_type ORDER BY event_type`,
			table,
		),
	}
}
