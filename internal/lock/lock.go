// Package lock guards scheduled jobs with a database advisory lock so that
// only one service instance runs a given job per cycle. The lock is scoped to
// the holding connection's session: if the process crashes or the connection
// drops, the database releases it without any application-side heartbeat.
package lock

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Each job name maps to a fixed lock key. Adding a scheduled job means adding
// an entry here.
var jobKeys = map[string]int64{
	"ingest": 1,
	"alerts": 2,
}

// Locker acquires a named mutual-exclusion token without blocking.
// The returned release func must be called exactly once when ok is true.
type Locker interface {
	TryAcquire(ctx context.Context, key int64) (release func() error, ok bool, err error)
}

// MySQLLocker backs Locker with MySQL GET_LOCK. Acquire and release run on a
// dedicated connection held for the lock's lifetime, since GET_LOCK is
// session scoped.
type MySQLLocker struct {
	db *gorm.DB
}

func NewMySQLLocker(db *gorm.DB) *MySQLLocker {
	return &MySQLLocker{db: db}
}

func (l *MySQLLocker) TryAcquire(ctx context.Context, key int64) (func() error, bool, error) {
	sqlDB, err := l.db.DB()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check out connection: %w", err)
	}

	name := lockName(key)
	var got sql.NullInt64
	// Timeout 0: return immediately instead of queueing behind the holder.
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", name).Scan(&got); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("GET_LOCK failed: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		conn.Close()
		return nil, false, nil
	}

	release := func() error {
		defer conn.Close()
		var released sql.NullInt64
		// Background context: the lock must be released even if the job's
		// context was cancelled.
		if err := conn.QueryRowContext(context.Background(), "SELECT RELEASE_LOCK(?)", name).Scan(&released); err != nil {
			return fmt.Errorf("RELEASE_LOCK failed: %w", err)
		}
		return nil
	}
	return release, true, nil
}

func lockName(key int64) string {
	return fmt.Sprintf("mtg_tracker_job_%d", key)
}

// JobLock wraps a Locker with the job-name table and guaranteed release.
type JobLock struct {
	locker Locker
	log    *zap.SugaredLogger
}

func NewJobLock(locker Locker, log *zap.SugaredLogger) *JobLock {
	return &JobLock{locker: locker, log: log}
}

// WithLock runs fn if the named job's lock could be acquired. ran reports
// whether fn executed; contention is a normal (false, nil) return, not an
// error. The lock is released on every path out of fn, including panics, and
// fn's error propagates to the caller after release.
func (j *JobLock) WithLock(ctx context.Context, jobName string, fn func() error) (ran bool, err error) {
	key, known := jobKeys[jobName]
	if !known {
		return false, fmt.Errorf("unknown job name %q", jobName)
	}

	release, ok, err := j.locker.TryAcquire(ctx, key)
	if err != nil {
		return false, fmt.Errorf("acquiring lock for %s: %w", jobName, err)
	}
	if !ok {
		return false, nil
	}
	defer func() {
		if rerr := release(); rerr != nil {
			j.log.Warnw("failed to release job lock", "job", jobName, "error", rerr)
		}
	}()

	return true, fn()
}
