// Package lockfile provides scoped OS advisory locks over a sibling lock
// file. The lock file is a handle only: it is created if absent and never
// read or written as data.
//
// Every acquisition is paired with a release on all exit paths, including
// panics inside the guarded function.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/roach88/ledger/internal/fsutil"
)

// RetryDelay is how often a blocked acquisition polls the lock.
const RetryDelay = 10 * time.Millisecond

// ErrBusy is returned by TryExclusive when another holder owns the lock.
var ErrBusy = errors.New("lock is held by another process")

// PathFor returns the lock file path guarding target.
func PathFor(target string) string {
	return target + ".lock"
}

// WithExclusive runs fn while holding an exclusive lock on path. It blocks
// until the lock is acquired or ctx is done.
func WithExclusive(ctx context.Context, path string, fn func() error) error {
	return with(ctx, path, false, fn)
}

// WithShared runs fn while holding a shared lock on path. Shared holders do
// not block each other but are mutually exclusive with exclusive holders.
func WithShared(ctx context.Context, path string, fn func() error) error {
	return with(ctx, path, true, fn)
}

func with(ctx context.Context, path string, shared bool, fn func() error) (err error) {
	if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}

	fl := flock.New(path)
	var locked bool
	if shared {
		locked, err = fl.TryRLockContext(ctx, RetryDelay)
	} else {
		locked, err = fl.TryLockContext(ctx, RetryDelay)
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("lock %s: %w", path, ErrBusy)
	}
	defer func() {
		if unlockErr := fl.Unlock(); unlockErr != nil && err == nil {
			err = fmt.Errorf("unlock %s: %w", path, unlockErr)
		}
	}()

	return fn()
}

// Lease is an exclusive lock held across calls. Release must be called
// exactly once; further calls are no-ops.
type Lease struct {
	fl *flock.Flock
}

// Acquire takes an exclusive lease on path, waiting until ctx is done.
func Acquire(ctx context.Context, path string) (*Lease, error) {
	if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("lease %s: %w", path, err)
	}
	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, RetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("lease %s: %w: %w", path, ErrBusy, err)
		}
		return nil, fmt.Errorf("lease %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lease %s: %w", path, ErrBusy)
	}
	return &Lease{fl: fl}, nil
}

// TryExclusive takes an exclusive lease without waiting.
func TryExclusive(path string) (*Lease, error) {
	if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("lease %s: %w", path, err)
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lease %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lease %s: %w", path, ErrBusy)
	}
	return &Lease{fl: fl}, nil
}

// Release unlocks the lease.
func (l *Lease) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	fl := l.fl
	l.fl = nil
	return fl.Unlock()
}

// ReleaseAndRemove deletes the lock file and then unlocks the lease. Use it
// once the guarded resource is gone: a waiter still holding the old file
// acquires an unlinked lock and must re-check the resource itself.
func (l *Lease) ReleaseAndRemove() error {
	if l == nil || l.fl == nil {
		return nil
	}
	var errs []error
	if err := os.Remove(l.fl.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove %s: %w", l.fl.Path(), err))
	}
	if err := l.Release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
