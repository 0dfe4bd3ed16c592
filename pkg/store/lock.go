package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/logging"
)

// LockTimeout is the age after which a lock left behind by a dead
// process is considered stale and may be broken.
const LockTimeout = 60 * time.Second

// Lock acquires the scope-wide advisory writer lock and returns its
// release function. A lock held by another writer fails fast with
// LOCK_HELD rather than blocking; a stale lock is broken and
// acquisition retried once.
//
// The lock is a symlink whose creation is atomic on every filesystem
// ipak targets; its target records the holder's pid.
func (s *Store) Lock() (func(), error) {
	unlock, err := s.tryLock()
	if err == nil {
		return unlock, nil
	}
	if !errors.IsErrorCode(err, errors.ErrLockHeld) {
		return nil, err
	}

	if s.breakStaleLock() {
		return s.tryLock()
	}
	return nil, err
}

func (s *Store) lockPath() string {
	return filepath.Join(s.root, lockFileName)
}

func (s *Store) tryLock() (func(), error) {
	if err := s.fs.MkdirAll(s.root, 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrDirCreate, "failed to create scope root %s", s.root)
	}

	payload := fmt.Sprintf("pid-%d", os.Getpid())
	if err := s.fs.Symlink(payload, s.lockPath()); err != nil {
		if os.IsExist(err) {
			return nil, errors.Newf(errors.ErrLockHeld, "scope %s is locked by another operation", s.root).
				WithDetail("lock", s.lockPath())
		}
		return nil, errors.Wrapf(err, errors.ErrFileCreate, "failed to create lock %s", s.lockPath())
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		if err := s.fs.Remove(s.lockPath()); err != nil && !os.IsNotExist(err) {
			logger := logging.GetLogger("store")
			logger.Warn().
				Str("lock", s.lockPath()).
				Err(err).
				Msg("Failed to release lock")
		}
	}, nil
}

// breakStaleLock removes the lock if its mtime is older than
// LockTimeout and reports whether it did.
func (s *Store) breakStaleLock() bool {
	info, err := s.fs.Lstat(s.lockPath())
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) < LockTimeout {
		return false
	}
	logger := logging.GetLogger("store")
	logger.Warn().
		Str("lock", s.lockPath()).
		Time("mtime", info.ModTime()).
		Msg("Breaking stale lock")
	return s.fs.Remove(s.lockPath()) == nil
}
