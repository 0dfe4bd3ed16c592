// Package metadata defines the package descriptor model and parses the
// TOML descriptor (ipak.toml) into it. Reading descriptor bytes from
// disk or an archive header is the caller's job; this package never
// touches the filesystem.
package metadata

import (
	"bytes"
	"path"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/version"
)

// DescriptorName is the descriptor file name inside a package source
// tree. The archive codec embeds its content as the container header
// and excludes the file itself from the payload.
const DescriptorName = "ipak.toml"

// InstallMode declares where a package wants to be installed by default.
type InstallMode string

const (
	ModeLocal  InstallMode = "local"
	ModeGlobal InstallMode = "global"
)

// Author identifies the package author.
type Author struct {
	Name  string
	Email string
}

// Dependency is one declared requirement on another package.
type Dependency struct {
	Name       string
	Expr       string
	Constraint version.Constraint
}

// PackageMetadata is the validated, immutable model of a package
// descriptor. It is derived from descriptor bytes or an archive header
// and never mutated afterwards.
type PackageMetadata struct {
	Author        Author
	Name          string
	Version       version.Version
	Description   string
	Architectures []string
	Mode          InstallMode
	Dependencies  []Dependency
	DependCmds    []string
}

// descriptor mirrors the on-disk TOML layout. depend_cmds is a
// top-level key and must marshal ahead of the tables.
type descriptor struct {
	DependCmds []string `toml:"depend_cmds,omitempty"`
	Author     struct {
		Name  string `toml:"name"`
		Email string `toml:"email"`
	} `toml:"author"`
	Package struct {
		Name          string   `toml:"name"`
		Version       string   `toml:"version"`
		Description   string   `toml:"description"`
		Architectures []string `toml:"architectures"`
		Mode          string   `toml:"mode"`
	} `toml:"package"`
	Dependencies []struct {
		Name       string `toml:"name"`
		Constraint string `toml:"constraint"`
	} `toml:"dependencies"`
}

// Parse validates descriptor bytes and builds the metadata model.
// Missing or malformed required fields fail with a SCHEMA error naming
// the field; an unparsable version fails with VERSION_FORMAT; malformed
// dependency constraints propagate CONSTRAINT_SYNTAX.
func Parse(data []byte) (*PackageMetadata, error) {
	var d descriptor
	if err := toml.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(err, errors.ErrSchema, "descriptor is not valid TOML")
	}

	if strings.TrimSpace(d.Package.Name) == "" {
		return nil, schemaErr("package.name")
	}
	if strings.TrimSpace(d.Package.Version) == "" {
		return nil, schemaErr("package.version")
	}
	if len(d.Package.Architectures) == 0 {
		return nil, schemaErr("package.architectures")
	}

	mode := InstallMode(d.Package.Mode)
	switch mode {
	case "":
		mode = ModeLocal
	case ModeLocal, ModeGlobal:
	default:
		return nil, errors.Newf(errors.ErrSchema, "invalid mode %q, want %q or %q", d.Package.Mode, ModeLocal, ModeGlobal).
			WithDetail("field", "package.mode")
	}

	v, err := version.Parse(d.Package.Version)
	if err != nil {
		return nil, err
	}

	meta := &PackageMetadata{
		Author:        Author{Name: d.Author.Name, Email: d.Author.Email},
		Name:          d.Package.Name,
		Version:       v,
		Description:   d.Package.Description,
		Architectures: d.Package.Architectures,
		Mode:          mode,
		DependCmds:    d.DependCmds,
	}

	for _, dep := range d.Dependencies {
		if strings.TrimSpace(dep.Name) == "" {
			return nil, schemaErr("dependencies.name")
		}
		c, err := version.ParseConstraint(dep.Constraint)
		if err != nil {
			return nil, err
		}
		meta.Dependencies = append(meta.Dependencies, Dependency{
			Name:       dep.Name,
			Expr:       dep.Constraint,
			Constraint: c,
		})
	}

	return meta, nil
}

func schemaErr(field string) error {
	return errors.Newf(errors.ErrSchema, "missing required field %s", field).
		WithDetail("field", field)
}

// Encode serializes the metadata model back to descriptor TOML. The
// archive codec uses this to embed the header.
func Encode(meta *PackageMetadata) ([]byte, error) {
	var d descriptor
	d.Author.Name = meta.Author.Name
	d.Author.Email = meta.Author.Email
	d.Package.Name = meta.Name
	d.Package.Version = meta.Version.String()
	d.Package.Description = meta.Description
	d.Package.Architectures = meta.Architectures
	d.Package.Mode = string(meta.Mode)
	for _, dep := range meta.Dependencies {
		d.Dependencies = append(d.Dependencies, struct {
			Name       string `toml:"name"`
			Constraint string `toml:"constraint"`
		}{Name: dep.Name, Constraint: dep.Constraint.String()})
	}
	d.DependCmds = meta.DependCmds

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(&d); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to encode descriptor")
	}
	return buf.Bytes(), nil
}

// IsConfigPath reports whether a package-relative path is owned
// configuration. Files under etc/ survive a remove and are only
// deleted by purge, mirroring conffile handling in system package
// managers.
func IsConfigPath(rel string) bool {
	clean := path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	return clean == "etc" || strings.HasPrefix(clean, "etc/")
}
