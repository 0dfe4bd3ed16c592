package ops

import (
	"path/filepath"
	"strings"

	"github.com/arthur-debert/ipak/pkg/archive"
	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/filesystem"
	"github.com/arthur-debert/ipak/pkg/logging"
	"github.com/arthur-debert/ipak/pkg/metadata"
	"github.com/arthur-debert/ipak/pkg/version"
)

// candidate is one archive on disk offering a package.
type candidate struct {
	path string
	meta *metadata.PackageMetadata
}

// DirectorySource resolves dependency metadata from archive files
// sitting next to the one being installed. It reads only each
// archive's embedded header, never the payload, and keeps the highest
// version when several archives offer the same package.
type DirectorySource struct {
	fs     filesystem.FS
	dir    string
	index  map[string]candidate
	pinned map[string]bool
	loaded bool
}

// NewDirectorySource creates a source over the given directory. The
// directory is scanned lazily on first lookup.
func NewDirectorySource(fsys filesystem.FS, dir string) *DirectorySource {
	return &DirectorySource{
		fs:     fsys,
		dir:    dir,
		index:  make(map[string]candidate),
		pinned: make(map[string]bool),
	}
}

// Register adds an archive explicitly, ahead of any directory scan.
// The install target is registered this way so resolution starts from
// the exact file the user named; the scan never replaces it, even
// with a higher version.
func (s *DirectorySource) Register(path string, meta *metadata.PackageMetadata) {
	s.index[meta.Name] = candidate{path: path, meta: meta}
	s.pinned[meta.Name] = true
}

// Metadata implements resolver.MetadataSource.
func (s *DirectorySource) Metadata(name string) (*metadata.PackageMetadata, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	c, ok := s.index[name]
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "no archive for package %q in %s", name, s.dir).
			WithDetail("package", name).
			WithDetail("dir", s.dir)
	}
	return c.meta, nil
}

// ArchivePath returns the archive file backing a package name.
func (s *DirectorySource) ArchivePath(name string) (string, bool) {
	if err := s.load(); err != nil {
		return "", false
	}
	c, ok := s.index[name]
	return c.path, ok
}

func (s *DirectorySource) load() error {
	if s.loaded {
		return nil
	}
	s.loaded = true
	logger := logging.GetLogger("ops")

	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to scan archive directory %s", s.dir)
	}

	for _, entry := range entries {
		if entry.IsDir() || !hasArchiveExt(entry.Name()) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if s.registered(path) {
			continue
		}
		data, err := s.fs.ReadFile(path)
		if err != nil {
			logger.Debug().Str("path", path).Err(err).Msg("Skipping unreadable archive")
			continue
		}
		meta, err := archive.ReadMetadata(data)
		if err != nil {
			logger.Debug().Str("path", path).Err(err).Msg("Skipping file without a valid package header")
			continue
		}
		s.offer(path, meta)
	}
	return nil
}

// offer records a candidate, preferring the highest version per name.
// Pinned names never change.
func (s *DirectorySource) offer(path string, meta *metadata.PackageMetadata) {
	if s.pinned[meta.Name] {
		return
	}
	existing, ok := s.index[meta.Name]
	if ok && version.Compare(existing.meta.Version, meta.Version) >= 0 {
		return
	}
	s.index[meta.Name] = candidate{path: path, meta: meta}
}

func (s *DirectorySource) registered(path string) bool {
	for _, c := range s.index {
		if c.path == path {
			return true
		}
	}
	return false
}

func hasArchiveExt(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range []string{".tar", ".tar.gz", ".tgz", ".tar.zst", ".zip", ".ipak"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
