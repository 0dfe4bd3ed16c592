// Package ops is the operation surface the CLI calls into. Each
// operation wires scope, store, resolver and archive codec together;
// no business rules of its own live here.
package ops

import (
	"context"
	"path/filepath"

	"github.com/arthur-debert/ipak/pkg/archive"
	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/filesystem"
	"github.com/arthur-debert/ipak/pkg/logging"
	"github.com/arthur-debert/ipak/pkg/metadata"
	"github.com/arthur-debert/ipak/pkg/resolver"
	"github.com/arthur-debert/ipak/pkg/scope"
	"github.com/arthur-debert/ipak/pkg/store"
	"github.com/arthur-debert/ipak/pkg/version"
)

// Env carries the collaborators every operation needs.
type Env struct {
	FS    filesystem.FS
	Scope scope.Scope
}

// NewEnv builds an Env over the real filesystem for a resolved scope.
func NewEnv(sc scope.Scope) Env {
	return Env{FS: filesystem.NewOS(), Scope: sc}
}

func (e Env) store() *store.Store {
	return store.New(e.FS, e.Scope.Root)
}

// installedAdapter exposes the store as the resolver's installed view.
// Config-retained records do not count as installed.
type installedAdapter struct {
	st *store.Store
}

func (a installedAdapter) InstalledVersion(name string) (version.Version, bool, error) {
	rec, err := a.st.Get(name)
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrNotFound) {
			return version.Version{}, false, nil
		}
		return version.Version{}, false, err
	}
	if rec.Status != store.StatusInstalled {
		return version.Version{}, false, nil
	}
	v, err := version.Parse(rec.Version)
	if err != nil {
		return version.Version{}, false, errors.Wrapf(err, errors.ErrInternal, "record for %q carries an invalid version", name)
	}
	return v, true, nil
}

// ResolveInstallPlan computes the install plan for the archive at
// archivePath without touching the store. Dependency archives are
// looked up next to the target archive.
func ResolveInstallPlan(env Env, archivePath string) (*resolver.Plan, *DirectorySource, error) {
	data, err := env.FS.ReadFile(archivePath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read archive %s", archivePath)
	}
	meta, err := archive.ReadMetadata(data)
	if err != nil {
		return nil, nil, err
	}

	src := NewDirectorySource(env.FS, filepath.Dir(archivePath))
	src.Register(archivePath, meta)

	res := resolver.New(src, installedAdapter{st: env.store()})
	plan, err := res.Resolve(meta.Name)
	if err != nil {
		return nil, nil, err
	}
	return plan, src, nil
}

// InstallPackage resolves and installs the archive at archivePath into
// the environment's scope, dependencies first. The scope writer lock
// is held once across the whole plan, so a concurrent writer fails
// with LOCK_HELD rather than interleaving between steps.
// Already-satisfied dependencies are skipped by resolution; a mid-plan
// failure leaves earlier steps installed and the failing step rolled
// back.
func InstallPackage(ctx context.Context, env Env, archivePath string) (*resolver.Plan, error) {
	logger := logging.GetLogger("ops")
	defer logging.LogOperationStart(logger, "install")()

	plan, src, err := ResolveInstallPlan(env, archivePath)
	if err != nil {
		return nil, err
	}
	if err := resolver.CheckCommands(ctx, plan, nil); err != nil {
		return nil, err
	}

	st := env.store()
	err = st.WithLock(func() error {
		for _, step := range plan.Steps {
			path, ok := src.ArchivePath(step.Name)
			if !ok {
				return errors.Newf(errors.ErrNotFound, "no archive for planned package %q", step.Name)
			}
			data, err := env.FS.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, errors.ErrFileAccess, "failed to read archive %s", path)
			}

			rec := store.InstalledRecord{
				Name:    step.Name,
				Version: step.Metadata.Version.String(),
				Scope:   string(env.Scope.Kind),
			}
			err = st.InstallLocked(rec, func(filesRoot string) ([]store.OwnedFile, string, error) {
				draft, err := archive.Extract(env.FS, data, filesRoot)
				if err != nil {
					return nil, "", err
				}
				files := make([]store.OwnedFile, len(draft.Files))
				for i, f := range draft.Files {
					files[i] = store.OwnedFile{Path: f.Path, Config: f.Config}
				}
				return files, draft.ManifestHash, nil
			})
			if err != nil {
				return err
			}
			logger.Info().
				Str("package", step.Name).
				Str("version", step.Metadata.Version.String()).
				Str("scope", string(env.Scope.Kind)).
				Msg("Installed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// RemovePackage deletes a package's non-configuration files and keeps a
// config-retained record behind.
func RemovePackage(env Env, name string) error {
	return env.store().Remove(name)
}

// PurgePackage deletes everything a package owns, configuration
// included, and drops its record.
func PurgePackage(env Env, name string) error {
	return env.store().Purge(name)
}

// ListInstalled returns the scope's records ordered by name.
func ListInstalled(env Env) ([]store.InstalledRecord, error) {
	return env.store().List()
}

// ReadPackageMetadata parses the embedded descriptor of an archive
// without extracting it.
func ReadPackageMetadata(env Env, archivePath string) (*metadata.PackageMetadata, error) {
	data, err := env.FS.ReadFile(archivePath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read archive %s", archivePath)
	}
	return archive.ReadMetadata(data)
}

// CreateArchive packs sourceRoot into an archive of the given format.
// The descriptor is read from ipak.toml inside sourceRoot; the output
// lands at outPath, or a name derived from the metadata when outPath
// is empty. Returns the written path.
func CreateArchive(env Env, sourceRoot, outPath string, format archive.Format) (string, error) {
	descriptor, err := env.FS.ReadFile(filepath.Join(sourceRoot, metadata.DescriptorName))
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrFileAccess, "failed to read descriptor in %s", sourceRoot)
	}
	meta, err := metadata.Parse(descriptor)
	if err != nil {
		return "", err
	}

	data, err := archive.Create(env.FS, sourceRoot, meta, format)
	if err != nil {
		return "", err
	}

	if outPath == "" {
		outPath = meta.Name + "-" + meta.Version.String() + format.Extension()
	}
	if err := env.FS.WriteFile(outPath, data, 0644); err != nil {
		return "", errors.Wrapf(err, errors.ErrFileWrite, "failed to write archive %s", outPath)
	}
	return outPath, nil
}

// ExtractArchive unpacks an archive into destRoot without recording any
// install state.
func ExtractArchive(env Env, archivePath, destRoot string) (*archive.Draft, error) {
	data, err := env.FS.ReadFile(archivePath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read archive %s", archivePath)
	}
	return archive.Extract(env.FS, data, destRoot)
}
