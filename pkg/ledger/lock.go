package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// DefaultLockWait bounds how long WithLock retries acquisition before
// giving up with *ContentionError.
const DefaultLockWait = 10 * time.Second

const lockRetryInterval = 250 * time.Millisecond

// ContentionError reports that the advisory lock could not be acquired
// within the bounded wait. No state has been modified when it is returned.
type ContentionError struct {
	Holder string
	Waited time.Duration
}

func (e *ContentionError) Error() string {
	if e.Holder == "" {
		return fmt.Sprintf("migration lock is held by another process (waited %v)", e.Waited)
	}
	return fmt.Sprintf("migration lock is held by %s (waited %v)", e.Holder, e.Waited)
}

// WithLock runs fn while holding the advisory execution lock.
//
// Acquisition inserts the single lock row; the primary key constraint makes
// the insert fail when another invocation already holds it, in which case
// acquisition is retried until wait elapses. Release is scoped: the lock row
// is deleted on every exit path, including a panic inside fn.
//
// A wait of zero or less uses DefaultLockWait.
func (l *Ledger) WithLock(ctx context.Context, owner string, wait time.Duration, fn func(context.Context) error) error {
	if wait <= 0 {
		wait = DefaultLockWait
	}

	if err := l.acquireLock(ctx, owner, wait); err != nil {
		return err
	}
	defer l.releaseLock()

	return fn(ctx)
}

func (l *Ledger) acquireLock(ctx context.Context, owner string, wait time.Duration) error {
	insert := fmt.Sprintf("INSERT INTO %s (id, locked_by, locked_at) VALUES (1, %s, %s)",
		l.lockTable, l.dialect.Placeholder(0), l.dialect.Placeholder(1))

	deadline := l.now().Add(wait)
	for {
		_, err := l.exec.Exec(ctx, insert, owner, l.now().UTC().Format(time.RFC3339Nano))
		if err == nil {
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrap(ctxErr, "lock acquisition cancelled")
		}

		// A failed insert only means contention when the lock row is
		// actually readable. A missing lock table or a dead connection
		// fails the probe too and surfaces as the acquisition error.
		holder, probeErr := l.lockHolder(ctx)
		if probeErr != nil {
			return errors.Wrap(err, "failed to acquire lock")
		}

		if !l.now().Before(deadline) {
			return &ContentionError{Holder: holder, Waited: wait}
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "lock acquisition cancelled")
		case <-time.After(lockRetryInterval):
		}
	}
}

// releaseLock deletes the lock row. It deliberately uses a fresh background
// context so release still happens when the caller's context is the reason
// the apply run is ending.
func (l *Ledger) releaseLock() {
	_, _ = l.exec.Exec(context.Background(), fmt.Sprintf("DELETE FROM %s WHERE id = 1", l.lockTable))
}

func (l *Ledger) lockHolder(ctx context.Context) (string, error) {
	rows, err := l.exec.Query(ctx, fmt.Sprintf("SELECT locked_by FROM %s WHERE id = 1", l.lockTable))
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()

	var holder string
	if rows.Next() {
		if err := rows.Scan(&holder); err != nil {
			return "", err
		}
	}
	return holder, rows.Err()
}
