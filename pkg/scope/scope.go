// Package scope decides where install state lives: per-user under the
// XDG data directory, or system-wide under /var/lib. The choice follows
// an explicit flag when given and the caller's privileges otherwise.
package scope

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/arthur-debert/ipak/pkg/errors"
)

// Kind names the two scopes.
type Kind string

const (
	// KindLocal is the per-user scope.
	KindLocal Kind = "local"
	// KindGlobal is the system-wide scope.
	KindGlobal Kind = "global"
)

// Flag is the tri-state scope selection from the command line.
type Flag int

const (
	// FlagUnset lets privileges pick the scope.
	FlagUnset Flag = iota
	// FlagLocal forces the per-user scope.
	FlagLocal
	// FlagGlobal forces the system-wide scope.
	FlagGlobal
)

// Environment overrides for the scope roots.
const (
	localRootEnv  = "IPAK_DATA_DIR"
	globalRootEnv = "IPAK_GLOBAL_DIR"

	globalRootDefault = "/var/lib/ipak"
)

// Scope is a resolved install destination.
type Scope struct {
	Kind Kind
	Root string
}

// Resolve picks the scope for an operation. An explicit flag always
// wins; without one, elevated callers get the global scope and everyone
// else the local one. Forcing the global scope without elevation fails
// with PERMISSION.
func Resolve(flag Flag, elevated bool) (Scope, error) {
	switch flag {
	case FlagLocal:
		return Scope{Kind: KindLocal, Root: LocalRoot()}, nil
	case FlagGlobal:
		if !elevated {
			return Scope{}, errors.New(errors.ErrPermission, "the global scope requires elevated privileges").
				WithDetail("root", GlobalRoot())
		}
		return Scope{Kind: KindGlobal, Root: GlobalRoot()}, nil
	default:
		if elevated {
			return Scope{Kind: KindGlobal, Root: GlobalRoot()}, nil
		}
		return Scope{Kind: KindLocal, Root: LocalRoot()}, nil
	}
}

// LocalRoot returns the per-user scope root, honoring IPAK_DATA_DIR.
func LocalRoot() string {
	if dir := os.Getenv(localRootEnv); dir != "" {
		return dir
	}
	return filepath.Join(xdg.DataHome, "ipak")
}

// GlobalRoot returns the system scope root, honoring IPAK_GLOBAL_DIR.
func GlobalRoot() string {
	if dir := os.Getenv(globalRootEnv); dir != "" {
		return dir
	}
	return globalRootDefault
}

// ParseFlag maps the --local/--global pair to a Flag. Both set at once
// is invalid.
func ParseFlag(local, global bool) (Flag, error) {
	switch {
	case local && global:
		return FlagUnset, errors.New(errors.ErrInvalidInput, "--local and --global are mutually exclusive")
	case local:
		return FlagLocal, nil
	case global:
		return FlagGlobal, nil
	default:
		return FlagUnset, nil
	}
}
