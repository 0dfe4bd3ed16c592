// Test Type: Integration Test
// Description: End-to-end pack/resolve/install/remove flows through the ops facade

package ops_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/ipak/pkg/archive"
	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/filesystem"
	"github.com/arthur-debert/ipak/pkg/ops"
	"github.com/arthur-debert/ipak/pkg/scope"
	"github.com/arthur-debert/ipak/pkg/store"
)

// testEnv returns an Env over a throwaway local scope.
func testEnv(t *testing.T) ops.Env {
	t.Helper()
	return ops.Env{
		FS:    filesystem.NewOS(),
		Scope: scope.Scope{Kind: scope.KindLocal, Root: t.TempDir()},
	}
}

// writePackage lays out a source tree with a descriptor and packs it
// into dir, returning the archive path.
func writePackage(t *testing.T, env ops.Env, dir, name, ver string, deps ...[2]string) string {
	t.Helper()

	source := t.TempDir()
	descriptor := fmt.Sprintf("[package]\nname = %q\nversion = %q\narchitectures = [\"any\"]\n", name, ver)
	for _, d := range deps {
		descriptor += fmt.Sprintf("\n[[dependencies]]\nname = %q\nconstraint = %q\n", d[0], d[1])
	}
	require.NoError(t, os.WriteFile(filepath.Join(source, "ipak.toml"), []byte(descriptor), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(source, "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(source, "bin", name), []byte(name), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(source, "etc", name), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(source, "etc", name, "conf"), []byte("k = 1"), 0644))

	out := filepath.Join(dir, name+"-"+ver+".tar.gz")
	path, err := ops.CreateArchive(env, source, out, archive.FormatTarGz)
	require.NoError(t, err)
	return path
}

func TestInstallSinglePackage(t *testing.T) {
	env := testEnv(t)
	dir := t.TempDir()
	archivePath := writePackage(t, env, dir, "solo", "1.0.0")

	plan, err := ops.InstallPackage(context.Background(), env, archivePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, plan.Names())

	records, err := ops.ListInstalled(env)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "solo", records[0].Name)
	assert.Equal(t, "1.0.0", records[0].Version)
	assert.Equal(t, store.StatusInstalled, records[0].Status)

	assert.FileExists(t, filepath.Join(env.Scope.Root, "files", "bin", "solo"))
	assert.NoFileExists(t, filepath.Join(env.Scope.Root, "files", "ipak.toml"),
		"the descriptor travels as the archive header, not as an owned file")
}

func TestInstallFailsFastWhenScopeLocked(t *testing.T) {
	env := testEnv(t)
	dir := t.TempDir()
	archivePath := writePackage(t, env, dir, "solo", "1.0.0")

	unlock, err := store.New(env.FS, env.Scope.Root).Lock()
	require.NoError(t, err)
	defer unlock()

	_, err = ops.InstallPackage(context.Background(), env, archivePath)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrLockHeld))

	records, err := ops.ListInstalled(env)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInstallWithDependencies(t *testing.T) {
	env := testEnv(t)
	dir := t.TempDir()
	writePackage(t, env, dir, "base", "0.9.0")
	writePackage(t, env, dir, "lib", "1.1.0", [2]string{"base", "*"})
	appPath := writePackage(t, env, dir, "app", "1.0.0", [2]string{"lib", ">= 1.0.0"})

	plan, err := ops.InstallPackage(context.Background(), env, appPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "lib", "app"}, plan.Names())

	records, err := ops.ListInstalled(env)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestInstallSkipsSatisfiedDependency(t *testing.T) {
	env := testEnv(t)
	dir := t.TempDir()
	libPath := writePackage(t, env, dir, "lib", "1.1.0")
	appPath := writePackage(t, env, dir, "app", "1.0.0", [2]string{"lib", ">= 1.0.0"})

	_, err := ops.InstallPackage(context.Background(), env, libPath)
	require.NoError(t, err)

	plan, err := ops.InstallPackage(context.Background(), env, appPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, plan.Names())
}

func TestInstallFailsOnMissingDependencyArchive(t *testing.T) {
	env := testEnv(t)
	dir := t.TempDir()
	appPath := writePackage(t, env, dir, "app", "1.0.0", [2]string{"ghost", "*"})

	_, err := ops.InstallPackage(context.Background(), env, appPath)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))

	records, err := ops.ListInstalled(env)
	require.NoError(t, err)
	assert.Empty(t, records, "a failed resolution must not install anything")
}

func TestResolveInstallPlanDoesNotInstall(t *testing.T) {
	env := testEnv(t)
	dir := t.TempDir()
	writePackage(t, env, dir, "lib", "1.0.0")
	appPath := writePackage(t, env, dir, "app", "1.0.0", [2]string{"lib", "*"})

	plan, _, err := ops.ResolveInstallPlan(env, appPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib", "app"}, plan.Names())

	records, err := ops.ListInstalled(env)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRemoveAndPurgeLifecycle(t *testing.T) {
	env := testEnv(t)
	dir := t.TempDir()
	archivePath := writePackage(t, env, dir, "solo", "1.0.0")

	_, err := ops.InstallPackage(context.Background(), env, archivePath)
	require.NoError(t, err)

	require.NoError(t, ops.RemovePackage(env, "solo"))
	assert.NoFileExists(t, filepath.Join(env.Scope.Root, "files", "bin", "solo"))
	assert.FileExists(t, filepath.Join(env.Scope.Root, "files", "etc", "solo", "conf"))

	records, err := ops.ListInstalled(env)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, store.StatusConfigRetained, records[0].Status)

	require.NoError(t, ops.PurgePackage(env, "solo"))
	assert.NoFileExists(t, filepath.Join(env.Scope.Root, "files", "etc", "solo", "conf"))

	records, err = ops.ListInstalled(env)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadPackageMetadata(t *testing.T) {
	env := testEnv(t)
	dir := t.TempDir()
	archivePath := writePackage(t, env, dir, "solo", "2.3.4")

	meta, err := ops.ReadPackageMetadata(env, archivePath)
	require.NoError(t, err)
	assert.Equal(t, "solo", meta.Name)
	assert.Equal(t, "2.3.4", meta.Version.String())
}

func TestCreateArchiveDerivesOutputName(t *testing.T) {
	env := testEnv(t)

	source := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(source, "ipak.toml"),
		[]byte("[package]\nname = \"named\"\nversion = \"0.1.0\"\narchitectures = [\"any\"]\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(source, "payload"), []byte("x"), 0644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	require.NoError(t, os.Chdir(t.TempDir()))

	path, err := ops.CreateArchive(env, source, "", archive.FormatZip)
	require.NoError(t, err)
	assert.Equal(t, "named-0.1.0.zip", path)
	assert.FileExists(t, path)
}

func TestExtractArchive(t *testing.T) {
	env := testEnv(t)
	dir := t.TempDir()
	archivePath := writePackage(t, env, dir, "solo", "1.0.0")

	dest := t.TempDir()
	draft, err := ops.ExtractArchive(env, archivePath, dest)
	require.NoError(t, err)
	assert.Equal(t, "solo", draft.Metadata.Name)
	assert.FileExists(t, filepath.Join(dest, "bin", "solo"))
}
