package archive

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/filesystem"
	"github.com/arthur-debert/ipak/pkg/logging"
	"github.com/arthur-debert/ipak/pkg/metadata"
)

// Extract validates the container fully, then materializes its entries
// under destRoot. Entries are first written into a staging directory
// beneath destRoot and promoted into final place by rename, so a
// failure mid-extraction leaves either the prior state or nothing.
// Validation failures surface as ARCHIVE_INTEGRITY before any write.
func Extract(fsys filesystem.FS, data []byte, destRoot string) (*Draft, error) {
	logger := logging.GetLogger("archive")

	header, entries, trBytes, err := decodeContainer(data)
	if err != nil {
		return nil, err
	}

	meta, err := metadata.Parse(header)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrArchiveIntegrity, "archive carries an invalid metadata header")
	}

	var tr trailer
	if err := toml.Unmarshal(trBytes, &tr); err != nil {
		return nil, errors.Wrap(err, errors.ErrArchiveIntegrity, "archive carries an invalid trailer")
	}
	if tr.Entries != len(entries) {
		return nil, errors.Newf(errors.ErrArchiveIntegrity, "trailer declares %d entries, archive has %d", tr.Entries, len(entries)).
			WithDetail("declared", tr.Entries).
			WithDetail("actual", len(entries))
	}
	hash := manifestHash(entries)
	if tr.Manifest != hash {
		return nil, errors.New(errors.ErrArchiveIntegrity, "manifest hash mismatch")
	}
	if err := validateEntries(entries); err != nil {
		return nil, err
	}

	if err := materialize(fsys, entries, destRoot); err != nil {
		return nil, err
	}

	draft := &Draft{Metadata: meta, ManifestHash: hash}
	for _, e := range entries {
		if e.Type == TypeDir {
			continue
		}
		draft.Files = append(draft.Files, DraftFile{
			Path:   e.Path,
			Config: metadata.IsConfigPath(e.Path),
		})
	}

	logger.Debug().
		Str("package", meta.Name).
		Str("dest", destRoot).
		Int("files", len(draft.Files)).
		Msg("Archive extracted")
	return draft, nil
}

// validateEntries rejects unsafe paths before anything is written:
// absolute or escaping entry paths, and symlinks whose targets resolve
// outside the destination root.
func validateEntries(entries []Entry) error {
	for _, e := range entries {
		if !safeRelPath(e.Path) {
			return errors.Newf(errors.ErrArchiveIntegrity, "entry path %q escapes the destination root", e.Path).
				WithDetail("path", e.Path)
		}
		if e.Type != TypeSymlink {
			continue
		}
		if path.IsAbs(e.LinkTarget) || strings.HasPrefix(e.LinkTarget, "/") {
			return errors.Newf(errors.ErrArchiveIntegrity, "symlink %q has an absolute target %q", e.Path, e.LinkTarget).
				WithDetail("path", e.Path)
		}
		resolved := path.Clean(path.Join(path.Dir(e.Path), e.LinkTarget))
		if !safeRelPath(resolved) {
			return errors.Newf(errors.ErrArchiveIntegrity, "symlink %q targets %q outside the destination root", e.Path, e.LinkTarget).
				WithDetail("path", e.Path).
				WithDetail("target", e.LinkTarget)
		}
	}
	return nil
}

func safeRelPath(p string) bool {
	if p == "" || path.IsAbs(p) || strings.Contains(p, "\\") {
		return false
	}
	clean := path.Clean(p)
	return clean != ".." && clean != "." && !strings.HasPrefix(clean, "../")
}

// Staging artifacts live directly under the destination root so
// recovery can find them with one directory scan.
const (
	stagePrefix   = ".ipak-stage-"
	journalPrefix = ".ipak-journal-"
)

// journal records an in-flight promotion so that a run interrupted
// mid-promotion can be undone before the next writer proceeds.
type journal struct {
	Stage string   `toml:"stage"`
	Paths []string `toml:"paths"`
}

// materialize stages all entries under destRoot, journals the planned
// promotion, then moves entries into final place. Directories are
// merged (other packages may own them too); files and symlinks are
// moved by rename. Leftovers of a crashed run are recovered first;
// callers hold the scope writer lock, which makes that safe.
func materialize(fsys filesystem.FS, entries []Entry, destRoot string) error {
	if err := fsys.MkdirAll(destRoot, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create destination root %s", destRoot)
	}
	if err := Recover(fsys, destRoot); err != nil {
		return err
	}

	tag := fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixNano())
	stage := filepath.Join(destRoot, stagePrefix+tag)
	if err := fsys.MkdirAll(stage, 0700); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create staging directory %s", stage)
	}

	if err := writeStage(fsys, entries, stage); err != nil {
		_ = fsys.RemoveAll(stage)
		return err
	}

	jPath := filepath.Join(destRoot, journalPrefix+tag)
	if err := writeJournal(fsys, jPath, stagePrefix+tag, entries); err != nil {
		_ = fsys.RemoveAll(stage)
		return err
	}

	var promoted []string
	for _, e := range entries {
		final := filepath.Join(destRoot, filepath.FromSlash(e.Path))
		if e.Type == TypeDir {
			if err := fsys.MkdirAll(final, e.Mode.Perm()); err != nil {
				rollback(fsys, promoted, stage, jPath)
				return errors.Wrapf(err, errors.ErrDirCreate, "failed to create directory %s", final)
			}
			continue
		}
		if err := fsys.MkdirAll(filepath.Dir(final), 0755); err != nil {
			rollback(fsys, promoted, stage, jPath)
			return errors.Wrapf(err, errors.ErrDirCreate, "failed to create parent of %s", final)
		}
		staged := filepath.Join(stage, filepath.FromSlash(e.Path))
		if err := fsys.Rename(staged, final); err != nil {
			rollback(fsys, promoted, stage, jPath)
			return errors.Wrapf(err, errors.ErrFileWrite, "failed to promote %s", e.Path)
		}
		promoted = append(promoted, final)
	}

	_ = fsys.Remove(jPath)
	_ = fsys.RemoveAll(stage)
	return nil
}

// writeJournal persists the promotion plan: the stage directory name
// and every non-directory path about to land under the root.
func writeJournal(fsys filesystem.FS, path, stageName string, entries []Entry) error {
	j := journal{Stage: stageName}
	for _, e := range entries {
		if e.Type == TypeDir {
			continue
		}
		j.Paths = append(j.Paths, e.Path)
	}
	data, err := toml.Marshal(j)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to encode promotion journal")
	}
	if err := fsys.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to write promotion journal %s", path)
	}
	return nil
}

// Recover undoes whatever a crashed extraction left under destRoot:
// journaled promotions are rolled back, then stale staging directories
// are discarded. A journal is always removed before its extraction is
// considered complete, so a journal on disk implies no record was
// committed and undoing is the correct direction. Callers must hold
// the scope writer lock.
func Recover(fsys filesystem.FS, destRoot string) error {
	items, err := fsys.ReadDir(destRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to scan %s", destRoot)
	}
	logger := logging.GetLogger("archive")

	for _, item := range items {
		if item.IsDir() || !strings.HasPrefix(item.Name(), journalPrefix) {
			continue
		}
		jPath := filepath.Join(destRoot, item.Name())
		data, err := fsys.ReadFile(jPath)
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to read promotion journal %s", jPath)
		}
		var j journal
		if err := toml.Unmarshal(data, &j); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "corrupt promotion journal %s", jPath)
		}
		logger.Warn().
			Str("journal", item.Name()).
			Int("paths", len(j.Paths)).
			Msg("Undoing interrupted promotion")
		for _, p := range j.Paths {
			if !safeRelPath(p) {
				continue
			}
			full := filepath.Join(destRoot, filepath.FromSlash(p))
			if err := fsys.Remove(full); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, errors.ErrFileWrite, "failed to undo promotion of %s", p)
			}
		}
		if err := fsys.Remove(jPath); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.ErrFileWrite, "failed to remove promotion journal %s", jPath)
		}
	}

	for _, item := range items {
		if !item.IsDir() || !strings.HasPrefix(item.Name(), stagePrefix) {
			continue
		}
		stale := filepath.Join(destRoot, item.Name())
		if err := fsys.RemoveAll(stale); err != nil {
			return errors.Wrapf(err, errors.ErrFileWrite, "failed to remove stale staging directory %s", stale)
		}
	}
	return nil
}

func writeStage(fsys filesystem.FS, entries []Entry, stage string) error {
	for _, e := range entries {
		target := filepath.Join(stage, filepath.FromSlash(e.Path))
		switch e.Type {
		case TypeDir:
			if err := fsys.MkdirAll(target, e.Mode.Perm()); err != nil {
				return errors.Wrapf(err, errors.ErrDirCreate, "failed to stage directory %s", e.Path)
			}
		case TypeSymlink:
			if err := fsys.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return errors.Wrapf(err, errors.ErrDirCreate, "failed to stage parent of %s", e.Path)
			}
			if err := fsys.Symlink(e.LinkTarget, target); err != nil {
				return errors.Wrapf(err, errors.ErrFileCreate, "failed to stage symlink %s", e.Path)
			}
		default:
			if err := fsys.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return errors.Wrapf(err, errors.ErrDirCreate, "failed to stage parent of %s", e.Path)
			}
			if err := fsys.WriteFile(target, e.Data, e.Mode.Perm()); err != nil {
				return errors.Wrapf(err, errors.ErrFileWrite, "failed to stage file %s", e.Path)
			}
			if err := fsys.Chmod(target, e.Mode.Perm()); err != nil {
				return errors.Wrapf(err, errors.ErrFileWrite, "failed to set mode on %s", e.Path)
			}
		}
	}
	return nil
}

// rollback undoes a partially completed promotion: already promoted
// files are removed, then the journal and the stage are discarded.
func rollback(fsys filesystem.FS, promoted []string, stage, journalFile string) {
	logger := logging.GetLogger("archive")
	for _, p := range promoted {
		if err := fsys.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Warn().Str("path", p).Err(err).Msg("Rollback could not remove promoted file")
		}
	}
	_ = fsys.Remove(journalFile)
	_ = fsys.RemoveAll(stage)
}
