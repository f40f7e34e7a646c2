package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"

	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// AdvisoryLocker serializes scheduled jobs across instances with Postgres
// session advisory locks. Each held lock pins one pooled connection.
type AdvisoryLocker struct {
	db *sql.DB
}

func NewAdvisoryLocker(db *sql.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

var _ ports.Locker = (*AdvisoryLocker)(nil)

func lockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

func (l *AdvisoryLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("lock conn: %w", err)
	}
	key := lockKey(name)

	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("try advisory lock %s: %w", name, err)
	}
	if !ok {
		conn.Close()
		return nil, false, nil
	}

	unlock := func() {
		// the job ctx may already be cancelled; the unlock must still reach the server
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", key)
		conn.Close()
	}
	return unlock, true, nil
}
