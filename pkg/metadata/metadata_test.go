// Test Type: Unit Test
// Description: Tests for descriptor parsing and validation

package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/metadata"
	"github.com/arthur-debert/ipak/pkg/version"
)

const fullDescriptor = `
depend_cmds = ["make", "cc"]

[author]
name = "Jo Dev"
email = "jo@example.com"

[package]
name = "mytool"
version = "1.2.3"
description = "A tool"
architectures = ["amd64", "arm64"]
mode = "local"

[[dependencies]]
name = "libfoo"
constraint = ">= 1.0.0, < 2.0.0"

[[dependencies]]
name = "libbar"
constraint = "*"
`

func TestParse(t *testing.T) {
	meta, err := metadata.Parse([]byte(fullDescriptor))
	require.NoError(t, err)

	assert.Equal(t, "mytool", meta.Name)
	assert.Equal(t, version.MustParse("1.2.3"), meta.Version)
	assert.Equal(t, "A tool", meta.Description)
	assert.Equal(t, "Jo Dev", meta.Author.Name)
	assert.Equal(t, []string{"amd64", "arm64"}, meta.Architectures)
	assert.Equal(t, metadata.ModeLocal, meta.Mode)
	assert.Equal(t, []string{"make", "cc"}, meta.DependCmds)

	require.Len(t, meta.Dependencies, 2)
	assert.Equal(t, "libfoo", meta.Dependencies[0].Name)
	assert.True(t, meta.Dependencies[0].Constraint.Satisfies(version.MustParse("1.5.0")))
	assert.False(t, meta.Dependencies[0].Constraint.Satisfies(version.MustParse("2.0.0")))
	assert.True(t, meta.Dependencies[1].Constraint.IsWildcard())
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name     string
		toml     string
		wantCode errors.ErrorCode
		field    string
	}{
		{
			name:     "not_toml",
			toml:     "= this is not toml",
			wantCode: errors.ErrSchema,
		},
		{
			name:     "missing_name",
			toml:     "[package]\nversion = \"1.0.0\"\narchitectures = [\"any\"]",
			wantCode: errors.ErrSchema,
			field:    "package.name",
		},
		{
			name:     "missing_version",
			toml:     "[package]\nname = \"x\"\narchitectures = [\"any\"]",
			wantCode: errors.ErrSchema,
			field:    "package.version",
		},
		{
			name:     "missing_architectures",
			toml:     "[package]\nname = \"x\"\nversion = \"1.0.0\"",
			wantCode: errors.ErrSchema,
			field:    "package.architectures",
		},
		{
			name:     "invalid_mode",
			toml:     "[package]\nname = \"x\"\nversion = \"1.0.0\"\narchitectures = [\"any\"]\nmode = \"everywhere\"",
			wantCode: errors.ErrSchema,
			field:    "package.mode",
		},
		{
			name:     "bad_version",
			toml:     "[package]\nname = \"x\"\nversion = \"one\"\narchitectures = [\"any\"]",
			wantCode: errors.ErrVersionFormat,
		},
		{
			name: "bad_dependency_constraint",
			toml: "[package]\nname = \"x\"\nversion = \"1.0.0\"\narchitectures = [\"any\"]\n" +
				"[[dependencies]]\nname = \"y\"\nconstraint = \"~> 1.0\"",
			wantCode: errors.ErrConstraintSyntax,
		},
		{
			name: "dependency_without_name",
			toml: "[package]\nname = \"x\"\nversion = \"1.0.0\"\narchitectures = [\"any\"]\n" +
				"[[dependencies]]\nconstraint = \"*\"",
			wantCode: errors.ErrSchema,
			field:    "dependencies.name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := metadata.Parse([]byte(tt.toml))
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, tt.wantCode), "got %v", err)
			if tt.field != "" {
				details := errors.GetErrorDetails(err)
				assert.Equal(t, tt.field, details["field"])
			}
		})
	}
}

func TestParseDefaultsModeToLocal(t *testing.T) {
	meta, err := metadata.Parse([]byte("[package]\nname = \"x\"\nversion = \"1.0.0\"\narchitectures = [\"any\"]"))
	require.NoError(t, err)
	assert.Equal(t, metadata.ModeLocal, meta.Mode)
}

func TestEncodeRoundTrip(t *testing.T) {
	meta, err := metadata.Parse([]byte(fullDescriptor))
	require.NoError(t, err)

	encoded, err := metadata.Encode(meta)
	require.NoError(t, err)

	again, err := metadata.Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, meta.Name, again.Name)
	assert.Equal(t, meta.Version, again.Version)
	assert.Len(t, again.Dependencies, len(meta.Dependencies))
}

func TestIsConfigPath(t *testing.T) {
	assert.True(t, metadata.IsConfigPath("etc/mytool/config.toml"))
	assert.True(t, metadata.IsConfigPath("etc"))
	assert.False(t, metadata.IsConfigPath("bin/mytool"))
	assert.False(t, metadata.IsConfigPath("etcetera/file"))
	assert.False(t, metadata.IsConfigPath("share/etc-notes.txt"))
}
