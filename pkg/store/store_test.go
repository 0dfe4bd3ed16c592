// Test Type: Unit Test
// Description: Tests for install state records, remove/purge semantics and the writer lock

package store_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/filesystem"
	"github.com/arthur-debert/ipak/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(filesystem.NewOS(), t.TempDir())
}

// installFixture commits a package with one binary and one config file.
func installFixture(t *testing.T, s *store.Store, name string) {
	t.Helper()
	rec := store.InstalledRecord{Name: name, Version: "1.0.0", Scope: "local"}
	err := s.Install(rec, func(filesRoot string) ([]store.OwnedFile, string, error) {
		binDir := filepath.Join(filesRoot, "bin")
		etcDir := filepath.Join(filesRoot, "etc", name)
		if err := os.MkdirAll(binDir, 0755); err != nil {
			return nil, "", err
		}
		if err := os.MkdirAll(etcDir, 0755); err != nil {
			return nil, "", err
		}
		if err := os.WriteFile(filepath.Join(binDir, name), []byte("bin"), 0755); err != nil {
			return nil, "", err
		}
		if err := os.WriteFile(filepath.Join(etcDir, "config.toml"), []byte("a = 1"), 0644); err != nil {
			return nil, "", err
		}
		return []store.OwnedFile{
			{Path: "bin/" + name},
			{Path: "etc/" + name + "/config.toml", Config: true},
		}, "hash-" + name, nil
	})
	require.NoError(t, err)
}

func TestInstallAndGet(t *testing.T) {
	s := newTestStore(t)
	installFixture(t, s, "demo")

	rec, err := s.Get("demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", rec.Name)
	assert.Equal(t, "1.0.0", rec.Version)
	assert.Equal(t, store.StatusInstalled, rec.Status)
	assert.Equal(t, "hash-demo", rec.ManifestHash)
	assert.Len(t, rec.Files, 2)
	assert.False(t, rec.InstalledAt.IsZero())

	assert.FileExists(t, filepath.Join(s.FilesRoot(), "bin", "demo"))
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("ghost")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
}

func TestInstallRefusesDuplicate(t *testing.T) {
	s := newTestStore(t)
	installFixture(t, s, "demo")

	err := s.Install(store.InstalledRecord{Name: "demo", Version: "2.0.0", Scope: "local"},
		func(string) ([]store.OwnedFile, string, error) {
			t.Fatal("materialize must not run for a duplicate install")
			return nil, "", nil
		})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrAlreadyExists))
}

func TestInstallRejectsBadName(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"", "a/b", "..", "."} {
		err := s.Install(store.InstalledRecord{Name: name},
			func(string) ([]store.OwnedFile, string, error) { return nil, "", nil })
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput), "name %q", name)
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)

	records, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, records)

	installFixture(t, s, "zeta")
	installFixture(t, s, "alpha")

	records, err = s.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "alpha", records[0].Name)
	assert.Equal(t, "zeta", records[1].Name)
}

func TestRemoveKeepsConfig(t *testing.T) {
	s := newTestStore(t)
	installFixture(t, s, "demo")

	require.NoError(t, s.Remove("demo"))

	assert.NoFileExists(t, filepath.Join(s.FilesRoot(), "bin", "demo"))
	assert.FileExists(t, filepath.Join(s.FilesRoot(), "etc", "demo", "config.toml"))

	rec, err := s.Get("demo")
	require.NoError(t, err)
	assert.Equal(t, store.StatusConfigRetained, rec.Status)
	require.Len(t, rec.Files, 1)
	assert.True(t, rec.Files[0].Config)
}

func TestRemoveIsIdempotentOnMissingFiles(t *testing.T) {
	s := newTestStore(t)
	installFixture(t, s, "demo")

	// Someone deleted an owned file out-of-band; remove must not trip.
	require.NoError(t, os.Remove(filepath.Join(s.FilesRoot(), "bin", "demo")))
	require.NoError(t, s.Remove("demo"))
}

func TestRemoveNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Remove("ghost")
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
}

func TestPurgeDeletesEverything(t *testing.T) {
	s := newTestStore(t)
	installFixture(t, s, "demo")

	require.NoError(t, s.Purge("demo"))

	assert.NoFileExists(t, filepath.Join(s.FilesRoot(), "bin", "demo"))
	assert.NoFileExists(t, filepath.Join(s.FilesRoot(), "etc", "demo", "config.toml"))

	_, err := s.Get("demo")
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
}

func TestPurgeAfterRemove(t *testing.T) {
	s := newTestStore(t)
	installFixture(t, s, "demo")

	require.NoError(t, s.Remove("demo"))
	require.NoError(t, s.Purge("demo"))

	assert.NoFileExists(t, filepath.Join(s.FilesRoot(), "etc", "demo", "config.toml"))
	_, err := s.Get("demo")
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
}

func TestReinstallOverConfigRetained(t *testing.T) {
	s := newTestStore(t)
	installFixture(t, s, "demo")
	require.NoError(t, s.Remove("demo"))

	// A fresh install over the retained record must succeed.
	installFixture(t, s, "demo")

	rec, err := s.Get("demo")
	require.NoError(t, err)
	assert.Equal(t, store.StatusInstalled, rec.Status)
	assert.Len(t, rec.Files, 2)
}

func TestWithLockSpansMultipleInstalls(t *testing.T) {
	s := newTestStore(t)
	contender := store.New(filesystem.NewOS(), s.Root())

	err := s.WithLock(func() error {
		// Another writer must be shut out for the whole sequence, not
		// just while a single install runs.
		_, lockErr := contender.Lock()
		require.Error(t, lockErr)
		assert.True(t, errors.IsErrorCode(lockErr, errors.ErrLockHeld))

		for _, name := range []string{"first", "second"} {
			rec := store.InstalledRecord{Name: name, Version: "1.0.0", Scope: "local"}
			err := s.InstallLocked(rec, func(filesRoot string) ([]store.OwnedFile, string, error) {
				path := filepath.Join(filesRoot, "bin", name)
				if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
					return nil, "", err
				}
				if err := os.WriteFile(path, []byte(name), 0755); err != nil {
					return nil, "", err
				}
				return []store.OwnedFile{{Path: "bin/" + name}}, "hash-" + name, nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	records, err := s.List()
	require.NoError(t, err)
	assert.Len(t, records, 2)

	unlock, err := contender.Lock()
	require.NoError(t, err)
	unlock()
}

func TestRecordWritesLeaveNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	installFixture(t, s, "demo")
	require.NoError(t, s.Remove("demo"))

	entries, err := os.ReadDir(filepath.Join(s.Root(), "state"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "stray temp file %s", e.Name())
	}
}

func TestListIgnoresTempRecordFiles(t *testing.T) {
	s := newTestStore(t)
	installFixture(t, s, "demo")
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "state", "ghost.yaml.tmp"),
		[]byte("name: ghost"), 0644))

	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "demo", records[0].Name)
}

func TestLockFailsFastWhenHeld(t *testing.T) {
	s := newTestStore(t)

	unlock, err := s.Lock()
	require.NoError(t, err)

	_, err = s.Lock()
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrLockHeld))

	unlock()

	unlock2, err := s.Lock()
	require.NoError(t, err)
	unlock2()
}

func TestLockBreaksStaleLock(t *testing.T) {
	root := t.TempDir()
	s := store.New(filesystem.NewOS(), root)

	// A lock left behind by a dead process, older than the timeout.
	// Written as a plain file so its mtime can be aged directly.
	lockPath := filepath.Join(root, "lock")
	require.NoError(t, os.WriteFile(lockPath, []byte("pid-99999"), 0644))
	old := time.Now().Add(-2 * store.LockTimeout)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	unlock, err := s.Lock()
	require.NoError(t, err)
	unlock()
}

func TestLockSingleWinnerUnderContention(t *testing.T) {
	s := newTestStore(t)

	var mu sync.Mutex
	acquired := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := s.Lock()
			if err != nil {
				assert.True(t, errors.IsErrorCode(err, errors.ErrLockHeld))
				return
			}
			mu.Lock()
			acquired++
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			unlock()
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, acquired, 1)
}
