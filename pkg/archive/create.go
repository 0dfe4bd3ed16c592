package archive

import (
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/filesystem"
	"github.com/arthur-debert/ipak/pkg/logging"
	"github.com/arthur-debert/ipak/pkg/metadata"
)

// Create walks sourceRoot in stable lexicographic order and serializes
// it, together with the metadata header and the integrity trailer, into
// archive bytes of the given format. Output is deterministic for a
// given tree, metadata and format.
func Create(fsys filesystem.FS, sourceRoot string, meta *metadata.PackageMetadata, format Format) ([]byte, error) {
	logger := logging.GetLogger("archive")

	entries, err := collectEntries(fsys, sourceRoot)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.Newf(errors.ErrInvalidInput, "source tree %s is empty", sourceRoot)
	}

	header, err := metadata.Encode(meta)
	if err != nil {
		return nil, err
	}

	tr := trailer{Entries: len(entries), Manifest: manifestHash(entries)}
	trBytes, err := toml.Marshal(tr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to encode trailer")
	}

	data, err := encodeContainer(format, header, entries, trBytes)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("package", meta.Name).
		Str("format", string(format)).
		Int("entries", len(entries)).
		Msg("Archive created")
	return data, nil
}

// ReadMetadata parses only the embedded header, without touching the
// payload entries.
func ReadMetadata(data []byte) (*metadata.PackageMetadata, error) {
	header, err := readHeader(data)
	if err != nil {
		return nil, err
	}
	return metadata.Parse(header)
}

func collectEntries(fsys filesystem.FS, root string) ([]Entry, error) {
	var entries []Entry

	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		items, err := fsys.ReadDir(dir)
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to read directory %s", dir)
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })

		for _, item := range items {
			// The descriptor travels as the container header, not as
			// payload.
			if rel == "" && item.Name() == metadata.DescriptorName {
				continue
			}
			full := filepath.Join(dir, item.Name())
			relPath := path.Join(rel, item.Name())

			info, err := fsys.Lstat(full)
			if err != nil {
				return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", full)
			}
			mode := info.Mode()

			switch {
			case mode&fs.ModeSymlink != 0:
				target, err := fsys.Readlink(full)
				if err != nil {
					return errors.Wrapf(err, errors.ErrFileAccess, "failed to read symlink %s", full)
				}
				entries = append(entries, Entry{Path: relPath, Type: TypeSymlink, Mode: 0777, LinkTarget: target})
			case info.IsDir():
				entries = append(entries, Entry{Path: relPath, Type: TypeDir, Mode: mode.Perm()})
				if err := walk(full, relPath); err != nil {
					return err
				}
			case mode.IsRegular():
				data, err := fsys.ReadFile(full)
				if err != nil {
					return errors.Wrapf(err, errors.ErrFileAccess, "failed to read file %s", full)
				}
				entries = append(entries, Entry{Path: relPath, Type: TypeFile, Mode: mode.Perm(), Data: data})
			default:
				return errors.Newf(errors.ErrInvalidInput, "unsupported file type at %s", full)
			}
		}
		return nil
	}

	if err := walk(root, ""); err != nil {
		return nil, err
	}
	return entries, nil
}

// readHeader returns the raw metadata header without decoding the rest
// of the container.
func readHeader(data []byte) ([]byte, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return nil, err
	}
	if format == FormatZip {
		header, _, _, err := decodeZip(data)
		return header, err
	}

	tr, closer, err := newTarReader(format, data)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer()
	}
	hdr, err := tr.Next()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrArchiveIntegrity, "archive is empty")
	}
	if hdr.Name != headerPath {
		return nil, errors.New(errors.ErrArchiveIntegrity, "archive does not start with a metadata header")
	}
	header, err := io.ReadAll(tr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrArchiveIntegrity, "corrupt metadata header")
	}
	return header, nil
}
