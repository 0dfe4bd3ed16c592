// Package store persists the per-scope install state: one record per
// installed package plus the owned file tree. All mutating operations
// take the scope-wide writer lock and are safe to retry after partial
// failure.
package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/filesystem"
	"github.com/arthur-debert/ipak/pkg/logging"
)

// Record status values.
type Status string

const (
	// StatusInstalled marks a fully installed package.
	StatusInstalled Status = "installed"
	// StatusConfigRetained marks a removed package whose configuration
	// files were kept behind.
	StatusConfigRetained Status = "config-retained"
)

// OwnedFile is one file owned by an installed package, relative to the
// scope's files root. Config files survive Remove and die on Purge.
type OwnedFile struct {
	Path   string `yaml:"path"`
	Config bool   `yaml:"config,omitempty"`
}

// InstalledRecord is the persisted state of one package in one scope.
// At most one record exists per (name, scope).
type InstalledRecord struct {
	Name         string      `yaml:"name"`
	Version      string      `yaml:"version"`
	Scope        string      `yaml:"scope"`
	Status       Status      `yaml:"status"`
	Files        []OwnedFile `yaml:"files"`
	ManifestHash string      `yaml:"manifest"`
	InstalledAt  time.Time   `yaml:"installed_at"`
}

// Store gives access to one scope's install state rooted at a single
// directory.
type Store struct {
	fs   filesystem.FS
	root string
}

// Subdirectories and files under the scope root.
const (
	stateDirName = "state"
	filesDirName = "files"
	lockFileName = "lock"
)

// New creates a store over the given scope root. Nothing is created
// until the first write.
func New(fs filesystem.FS, root string) *Store {
	return &Store{fs: fs, root: root}
}

// Root returns the scope root directory.
func (s *Store) Root() string {
	return s.root
}

// FilesRoot returns the directory that owned files live under.
func (s *Store) FilesRoot() string {
	return filepath.Join(s.root, filesDirName)
}

func (s *Store) stateDir() string {
	return filepath.Join(s.root, stateDirName)
}

func (s *Store) recordPath(name string) string {
	return filepath.Join(s.stateDir(), name+".yaml")
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return errors.Newf(errors.ErrInvalidInput, "invalid package name %q", name)
	}
	return nil
}

// List returns every record in the scope, ordered by name
// (case-sensitive).
func (s *Store) List() ([]InstalledRecord, error) {
	entries, err := s.fs.ReadDir(s.stateDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read state directory %s", s.stateDir())
	}

	var records []InstalledRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		rec, err := s.readRecord(filepath.Join(s.stateDir(), entry.Name()))
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Get returns the record for name, or a NOT_FOUND error.
func (s *Store) Get(name string) (*InstalledRecord, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	path := s.recordPath(name)
	data, err := s.fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(name)
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read record %s", path)
	}
	var rec InstalledRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "corrupt record file %s", path)
	}
	return &rec, nil
}

func notFound(name string) error {
	return errors.Newf(errors.ErrNotFound, "package %q is not installed in this scope", name).
		WithDetail("package", name)
}

func (s *Store) readRecord(path string) (*InstalledRecord, error) {
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read record %s", path)
	}
	var rec InstalledRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "corrupt record file %s", path)
	}
	return &rec, nil
}

// writeRecord replaces the record atomically: lockless readers must
// only ever see a complete YAML document.
func (s *Store) writeRecord(rec *InstalledRecord) error {
	if err := s.fs.MkdirAll(s.stateDir(), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create state directory %s", s.stateDir())
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to encode record for %s", rec.Name)
	}
	tmp := s.recordPath(rec.Name) + ".tmp"
	if err := s.fs.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to write record for %s", rec.Name)
	}
	if err := s.fs.Rename(tmp, s.recordPath(rec.Name)); err != nil {
		_ = s.fs.Remove(tmp)
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to commit record for %s", rec.Name)
	}
	return nil
}

// MaterializeFunc puts the package's files on disk under the given
// files root and reports what it wrote plus the content manifest hash.
// The archive codec's Extract is the usual implementation.
type MaterializeFunc func(filesRoot string) ([]OwnedFile, string, error)

// WithLock runs fn while holding the scope writer lock. It is how a
// multi-step operation keeps the scope exclusively, with no other
// writer admitted between steps.
func (s *Store) WithLock(fn func() error) error {
	unlock, err := s.Lock()
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// Install commits a new record after materializing its files, holding
// the writer lock for the duration of the step. The caller must have
// removed or purged any previous record for the same name first; an
// existing record fails with ALREADY_EXISTS. If materialization fails
// no record is written; if the record write fails the materialized
// files are rolled back.
func (s *Store) Install(rec InstalledRecord, materialize MaterializeFunc) error {
	return s.WithLock(func() error {
		return s.InstallLocked(rec, materialize)
	})
}

// InstallLocked is Install for callers that already hold the writer
// lock through WithLock, such as a multi-package install that must
// keep the scope locked across its whole plan.
func (s *Store) InstallLocked(rec InstalledRecord, materialize MaterializeFunc) error {
	logger := logging.GetLogger("store")
	if err := validName(rec.Name); err != nil {
		return err
	}

	if existing, err := s.Get(rec.Name); err == nil {
		if existing.Status == StatusConfigRetained {
			logger.Info().
				Str("package", rec.Name).
				Msg("Reinstalling over retained configuration files")
		} else {
			return errors.Newf(errors.ErrAlreadyExists, "package %q is already installed in this scope", rec.Name).
				WithDetail("package", rec.Name).
				WithDetail("version", existing.Version)
		}
	} else if !errors.IsErrorCode(err, errors.ErrNotFound) {
		return err
	}

	files, manifest, err := materialize(s.FilesRoot())
	if err != nil {
		return err
	}
	rec.Files = files
	rec.ManifestHash = manifest

	rec.Status = StatusInstalled
	if rec.InstalledAt.IsZero() {
		rec.InstalledAt = time.Now().UTC()
	}
	if err := s.writeRecord(&rec); err != nil {
		// No record means the files must not stay behind.
		s.rollbackOwnedFiles(rec.Files)
		return err
	}

	logger.Info().
		Str("package", rec.Name).
		Str("version", rec.Version).
		Int("files", len(rec.Files)).
		Msg("Package installed")
	return nil
}

// Remove deletes the package's non-configuration files and reduces the
// record to a config-retained stub. Retrying after a partial failure is
// safe: already-deleted files are skipped.
func (s *Store) Remove(name string) error {
	logger := logging.GetLogger("store")
	if err := validName(name); err != nil {
		return err
	}

	unlock, err := s.Lock()
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := s.Get(name)
	if err != nil {
		return err
	}

	var kept []OwnedFile
	var doomed []OwnedFile
	for _, f := range rec.Files {
		if f.Config {
			kept = append(kept, f)
		} else {
			doomed = append(doomed, f)
		}
	}
	if err := s.deleteOwnedFilesChecked(doomed); err != nil {
		return err
	}

	rec.Files = kept
	rec.Status = StatusConfigRetained
	if err := s.writeRecord(rec); err != nil {
		return err
	}

	logger.Info().
		Str("package", name).
		Int("configRetained", len(kept)).
		Msg("Package removed")
	return nil
}

// Purge deletes every owned file including configuration and drops the
// record entirely. Like Remove it tolerates already-deleted files.
func (s *Store) Purge(name string) error {
	logger := logging.GetLogger("store")
	if err := validName(name); err != nil {
		return err
	}

	unlock, err := s.Lock()
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := s.Get(name)
	if err != nil {
		return err
	}

	if err := s.deleteOwnedFilesChecked(rec.Files); err != nil {
		return err
	}
	if err := s.fs.Remove(s.recordPath(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to delete record for %s", name)
	}

	logger.Info().Str("package", name).Msg("Package purged")
	return nil
}

func (s *Store) deleteOwnedFilesChecked(files []OwnedFile) error {
	root := s.FilesRoot()
	for _, f := range files {
		full := filepath.Join(root, filepath.FromSlash(f.Path))
		if err := s.fs.Remove(full); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.ErrFileWrite, "failed to delete %s", f.Path)
		}
	}
	s.pruneEmptyDirs(files)
	return nil
}

// rollbackOwnedFiles is the best-effort variant used during rollback.
func (s *Store) rollbackOwnedFiles(files []OwnedFile) {
	logger := logging.GetLogger("store")
	root := s.FilesRoot()
	for _, f := range files {
		full := filepath.Join(root, filepath.FromSlash(f.Path))
		if err := s.fs.Remove(full); err != nil && !os.IsNotExist(err) {
			logger.Warn().Str("path", f.Path).Err(err).Msg("Rollback could not remove file")
		}
	}
	s.pruneEmptyDirs(files)
}

// pruneEmptyDirs removes directories left empty after file deletion,
// walking each deleted file's parents up to the files root.
func (s *Store) pruneEmptyDirs(files []OwnedFile) {
	root := s.FilesRoot()
	for _, f := range files {
		dir := filepath.Dir(filepath.Join(root, filepath.FromSlash(f.Path)))
		for dir != root && strings.HasPrefix(dir, root) {
			entries, err := s.fs.ReadDir(dir)
			if err != nil || len(entries) > 0 {
				break
			}
			if err := s.fs.Remove(dir); err != nil {
				break
			}
			dir = filepath.Dir(dir)
		}
	}
}
