// Test Type: Unit Test
// Description: Tests for version parsing and semver precedence

package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/version"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    version.Version
		wantErr bool
	}{
		{
			name:  "plain_release",
			input: "1.2.3",
			want:  version.Version{Major: 1, Minor: 2, Patch: 3},
		},
		{
			name:  "zero_version",
			input: "0.0.0",
			want:  version.Version{},
		},
		{
			name:  "prerelease_single_identifier",
			input: "1.0.0-alpha",
			want:  version.Version{Major: 1, Prerelease: []string{"alpha"}},
		},
		{
			name:  "prerelease_dotted_identifiers",
			input: "2.1.0-rc.1",
			want:  version.Version{Major: 2, Minor: 1, Prerelease: []string{"rc", "1"}},
		},
		{
			name:  "large_components",
			input: "10.20.30",
			want:  version.Version{Major: 10, Minor: 20, Patch: 30},
		},
		{name: "empty", input: "", wantErr: true},
		{name: "missing_patch", input: "1.2", wantErr: true},
		{name: "extra_component", input: "1.2.3.4", wantErr: true},
		{name: "non_numeric_core", input: "1.x.3", wantErr: true},
		{name: "negative_component", input: "1.-2.3", wantErr: true},
		{name: "empty_prerelease", input: "1.2.3-", wantErr: true},
		{name: "empty_prerelease_identifier", input: "1.2.3-rc..1", wantErr: true},
		{name: "leading_v", input: "v1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := version.Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsErrorCode(err, errors.ErrVersionFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestCompare(t *testing.T) {
	// Listed in strictly ascending order; every adjacent and
	// non-adjacent pair must agree with the list position.
	ascending := []string{
		"0.0.1",
		"0.1.0",
		"1.0.0-alpha",
		"1.0.0-alpha.1",
		"1.0.0-alpha.beta",
		"1.0.0-beta",
		"1.0.0-beta.2",
		"1.0.0-beta.11",
		"1.0.0-rc.1",
		"1.0.0",
		"1.0.1",
		"1.9.0",
		"1.10.0",
		"2.0.0",
	}

	for i, low := range ascending {
		for j, high := range ascending {
			a := version.MustParse(low)
			b := version.MustParse(high)
			switch {
			case i < j:
				assert.Negative(t, version.Compare(a, b), "%s < %s", low, high)
			case i > j:
				assert.Positive(t, version.Compare(a, b), "%s > %s", low, high)
			default:
				assert.Zero(t, version.Compare(a, b), "%s == %s", low, high)
			}
		}
	}
}

func TestIsPrerelease(t *testing.T) {
	assert.True(t, version.MustParse("1.0.0-rc.1").IsPrerelease())
	assert.False(t, version.MustParse("1.0.0").IsPrerelease())
}
