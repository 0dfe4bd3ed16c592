// Test Type: Unit Test
// Description: Tests for DirectorySource archive discovery over an in-memory filesystem

package ops_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/ipak/pkg/archive"
	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/filesystem"
	"github.com/arthur-debert/ipak/pkg/metadata"
	"github.com/arthur-debert/ipak/pkg/ops"
)

// packIntoDir builds an archive for name/ver entirely in memory and
// drops it into dir under its conventional file name.
func packIntoDir(t *testing.T, fsys filesystem.FS, dir, name, ver string) string {
	t.Helper()

	descriptor := fmt.Sprintf("[package]\nname = %q\nversion = %q\narchitectures = [\"any\"]\n", name, ver)
	meta, err := metadata.Parse([]byte(descriptor))
	require.NoError(t, err)

	source := filepath.Join("/src", name+"-"+ver)
	require.NoError(t, fsys.MkdirAll(filepath.Join(source, "bin"), 0755))
	require.NoError(t, fsys.WriteFile(filepath.Join(source, "bin", name), []byte(ver), 0755))

	data, err := archive.Create(fsys, source, meta, archive.FormatTarGz)
	require.NoError(t, err)

	require.NoError(t, fsys.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name+"-"+ver+".tar.gz")
	require.NoError(t, fsys.WriteFile(path, data, 0644))
	return path
}

func TestDirectorySourceScansArchives(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	dir := "/archives"
	toolPath := packIntoDir(t, fsys, dir, "tool", "1.0.0")
	libPath := packIntoDir(t, fsys, dir, "lib", "2.3.0")
	require.NoError(t, fsys.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an archive"), 0644))

	src := ops.NewDirectorySource(fsys, dir)

	meta, err := src.Metadata("tool")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", meta.Version.String())
	path, ok := src.ArchivePath("tool")
	require.True(t, ok)
	assert.Equal(t, toolPath, path)

	meta, err = src.Metadata("lib")
	require.NoError(t, err)
	assert.Equal(t, "2.3.0", meta.Version.String())
	path, ok = src.ArchivePath("lib")
	require.True(t, ok)
	assert.Equal(t, libPath, path)
}

func TestDirectorySourcePrefersHighestVersion(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	dir := "/archives"
	packIntoDir(t, fsys, dir, "tool", "0.9.0")
	newest := packIntoDir(t, fsys, dir, "tool", "1.2.0")
	packIntoDir(t, fsys, dir, "tool", "1.0.0")

	src := ops.NewDirectorySource(fsys, dir)

	meta, err := src.Metadata("tool")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", meta.Version.String())
	path, ok := src.ArchivePath("tool")
	require.True(t, ok)
	assert.Equal(t, newest, path)
}

func TestDirectorySourceUnknownPackage(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	dir := "/archives"
	packIntoDir(t, fsys, dir, "tool", "1.0.0")

	src := ops.NewDirectorySource(fsys, dir)

	_, err := src.Metadata("ghost")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))

	_, ok := src.ArchivePath("ghost")
	assert.False(t, ok)
}

func TestDirectorySourceRegisteredTargetWins(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	dir := "/archives"
	packIntoDir(t, fsys, dir, "tool", "9.9.9")
	pinned := packIntoDir(t, fsys, dir, "tool", "1.0.0")

	data, err := fsys.ReadFile(pinned)
	require.NoError(t, err)
	meta, err := archive.ReadMetadata(data)
	require.NoError(t, err)

	src := ops.NewDirectorySource(fsys, dir)
	src.Register(pinned, meta)

	got, err := src.Metadata("tool")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Version.String(), "an explicitly named archive is not outvoted by the scan")
	path, ok := src.ArchivePath("tool")
	require.True(t, ok)
	assert.Equal(t, pinned, path)
}
