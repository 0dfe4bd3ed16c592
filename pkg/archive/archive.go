// Package archive implements the ipak package container: an embedded
// metadata header, a file tree, and a trailing integrity marker,
// serialized through one of several interchangeable formats.
//
// Container layout, identical across formats:
//
//	.ipak/metadata.toml   serialized package descriptor (always first)
//	<payload entries>     files, directories and symlinks, sorted by path
//	.ipak/trailer         payload entry count + manifest hash (always last)
//
// Creation is deterministic: the same source tree, metadata and format
// produce the same bytes.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"

	"github.com/arthur-debert/ipak/pkg/metadata"
)

const (
	headerPath  = ".ipak/metadata.toml"
	trailerPath = ".ipak/trailer"
)

// EntryType distinguishes payload entry kinds.
type EntryType string

const (
	TypeFile    EntryType = "file"
	TypeDir     EntryType = "dir"
	TypeSymlink EntryType = "symlink"
)

// Entry is one payload member of the container: a slash-separated
// relative path, permission bits, and content or link target.
type Entry struct {
	Path       string
	Type       EntryType
	Mode       fs.FileMode
	Data       []byte
	LinkTarget string
}

// trailer mirrors the TOML integrity marker at the end of the container.
type trailer struct {
	Entries  int    `toml:"entries"`
	Manifest string `toml:"manifest"`
}

// Draft is the result of a successful extraction: everything the
// install state store needs to commit a record.
type Draft struct {
	Metadata     *metadata.PackageMetadata
	Files        []DraftFile
	ManifestHash string
}

// DraftFile is one materialized file with its configuration tag.
type DraftFile struct {
	Path   string
	Config bool
}

// manifestHash computes the content manifest hash over the payload
// entries in container order. It covers paths, types, permission bits,
// file content and link targets.
func manifestHash(entries []Entry) string {
	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s\x00%s\x00%o\x00", e.Path, e.Type, e.Mode)
		switch e.Type {
		case TypeFile:
			sum := sha256.Sum256(e.Data)
			h.Write(sum[:])
		case TypeSymlink:
			h.Write([]byte(e.LinkTarget))
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
