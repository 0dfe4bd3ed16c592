package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/arthur-debert/ipak/pkg/errors"
)

// epoch is the fixed timestamp stamped on every container member so
// that creation is byte-deterministic.
var epoch = time.Unix(0, 0)

func encodeContainer(format Format, header []byte, entries []Entry, tr []byte) ([]byte, error) {
	if format == FormatZip {
		return encodeZip(header, entries, tr)
	}
	return encodeTar(format, header, entries, tr)
}

func encodeTar(format Format, header []byte, entries []Entry, tr []byte) ([]byte, error) {
	var buf bytes.Buffer

	var compressor io.WriteCloser
	var tw *tar.Writer
	switch format {
	case FormatTar:
		tw = tar.NewWriter(&buf)
	case FormatTarGz:
		compressor = gzip.NewWriter(&buf)
		tw = tar.NewWriter(compressor)
	case FormatTarZst:
		zw, err := zstd.NewWriter(&buf, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "failed to initialize zstd encoder")
		}
		compressor = zw
		tw = tar.NewWriter(compressor)
	default:
		return nil, errors.Newf(errors.ErrInvalidInput, "format %q is not tar-based", format)
	}

	if err := writeTarBlob(tw, headerPath, header); err != nil {
		return nil, err
	}
	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.Path,
			Mode:    int64(e.Mode.Perm()),
			ModTime: epoch,
			Format:  tar.FormatUSTAR,
		}
		switch e.Type {
		case TypeDir:
			hdr.Name = e.Path + "/"
			hdr.Typeflag = tar.TypeDir
		case TypeSymlink:
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.LinkTarget
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Data))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, errors.Wrapf(err, errors.ErrInternal, "failed to write tar header for %s", e.Path)
		}
		if e.Type == TypeFile {
			if _, err := tw.Write(e.Data); err != nil {
				return nil, errors.Wrapf(err, errors.ErrInternal, "failed to write tar data for %s", e.Path)
			}
		}
	}
	if err := writeTarBlob(tw, trailerPath, tr); err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to finalize tar stream")
	}
	if compressor != nil {
		if err := compressor.Close(); err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "failed to finalize compressed stream")
		}
	}
	return buf.Bytes(), nil
}

func writeTarBlob(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0644,
		Size:     int64(len(data)),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to write tar header for %s", name)
	}
	if _, err := tw.Write(data); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to write tar data for %s", name)
	}
	return nil
}

func encodeZip(header []byte, entries []Entry, tr []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeZipBlob(zw, headerPath, header); err != nil {
		return nil, err
	}
	for _, e := range entries {
		fh := &zip.FileHeader{Name: e.Path, Method: zip.Store, Modified: epoch}
		var content []byte
		switch e.Type {
		case TypeDir:
			fh.Name = e.Path + "/"
			fh.SetMode(fs.ModeDir | e.Mode.Perm())
		case TypeSymlink:
			fh.SetMode(fs.ModeSymlink | e.Mode.Perm())
			content = []byte(e.LinkTarget)
		default:
			fh.SetMode(e.Mode.Perm())
			content = e.Data
		}
		w, err := zw.CreateHeader(fh)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrInternal, "failed to write zip header for %s", e.Path)
		}
		if _, err := w.Write(content); err != nil {
			return nil, errors.Wrapf(err, errors.ErrInternal, "failed to write zip data for %s", e.Path)
		}
	}
	if err := writeZipBlob(zw, trailerPath, tr); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to finalize zip stream")
	}
	return buf.Bytes(), nil
}

func writeZipBlob(zw *zip.Writer, name string, data []byte) error {
	fh := &zip.FileHeader{Name: name, Method: zip.Store, Modified: epoch}
	fh.SetMode(0644)
	w, err := zw.CreateHeader(fh)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to write zip header for %s", name)
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to write zip data for %s", name)
	}
	return nil
}

// decodeContainer reads the whole container into memory: header bytes,
// payload entries in order, and trailer bytes. Structural problems
// (missing header, members after the trailer) fail with
// ARCHIVE_INTEGRITY.
func decodeContainer(data []byte) ([]byte, []Entry, []byte, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return nil, nil, nil, err
	}
	if format == FormatZip {
		return decodeZip(data)
	}
	return decodeTar(format, data)
}

func decodeTar(format Format, data []byte) ([]byte, []Entry, []byte, error) {
	tr, closer, err := newTarReader(format, data)
	if err != nil {
		return nil, nil, nil, err
	}
	if closer != nil {
		defer closer()
	}

	var header, trailerData []byte
	var entries []Entry
	first := true
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, errors.ErrArchiveIntegrity, "corrupt tar stream")
		}
		name := strings.TrimSuffix(hdr.Name, "/")
		if first {
			if name != headerPath {
				return nil, nil, nil, errors.New(errors.ErrArchiveIntegrity, "archive does not start with a metadata header")
			}
			header, err = io.ReadAll(tr)
			if err != nil {
				return nil, nil, nil, errors.Wrap(err, errors.ErrArchiveIntegrity, "corrupt metadata header")
			}
			first = false
			continue
		}
		if trailerData != nil {
			return nil, nil, nil, errors.New(errors.ErrArchiveIntegrity, "archive has entries after the trailer")
		}
		if name == trailerPath {
			trailerData, err = io.ReadAll(tr)
			if err != nil {
				return nil, nil, nil, errors.Wrap(err, errors.ErrArchiveIntegrity, "corrupt trailer")
			}
			continue
		}

		e := Entry{Path: name, Mode: fs.FileMode(hdr.Mode).Perm()}
		switch hdr.Typeflag {
		case tar.TypeDir:
			e.Type = TypeDir
		case tar.TypeSymlink:
			e.Type = TypeSymlink
			e.LinkTarget = hdr.Linkname
		case tar.TypeReg:
			e.Type = TypeFile
			e.Data, err = io.ReadAll(tr)
			if err != nil {
				return nil, nil, nil, errors.Wrapf(err, errors.ErrArchiveIntegrity, "corrupt entry %s", name)
			}
		default:
			return nil, nil, nil, errors.Newf(errors.ErrArchiveIntegrity, "unsupported entry type for %s", name)
		}
		entries = append(entries, e)
	}

	if first {
		return nil, nil, nil, errors.New(errors.ErrArchiveIntegrity, "archive is empty")
	}
	if trailerData == nil {
		return nil, nil, nil, errors.New(errors.ErrArchiveIntegrity, "archive is missing its trailer")
	}
	return header, entries, trailerData, nil
}

func newTarReader(format Format, data []byte) (*tar.Reader, func(), error) {
	raw := bytes.NewReader(data)
	switch format {
	case FormatTar:
		return tar.NewReader(raw), nil, nil
	case FormatTarGz:
		gz, err := gzip.NewReader(raw)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrArchiveIntegrity, "corrupt gzip stream")
		}
		return tar.NewReader(gz), func() { _ = gz.Close() }, nil
	case FormatTarZst:
		zr, err := zstd.NewReader(raw)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrArchiveIntegrity, "corrupt zstd stream")
		}
		return tar.NewReader(zr), zr.Close, nil
	default:
		return nil, nil, errors.Newf(errors.ErrInvalidInput, "format %q is not tar-based", format)
	}
}

func decodeZip(data []byte) ([]byte, []Entry, []byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, errors.ErrArchiveIntegrity, "corrupt zip container")
	}
	if len(zr.File) == 0 {
		return nil, nil, nil, errors.New(errors.ErrArchiveIntegrity, "archive is empty")
	}

	var header, trailerData []byte
	var entries []Entry
	for i, f := range zr.File {
		name := strings.TrimSuffix(f.Name, "/")
		content, err := readZipMember(f)
		if err != nil {
			return nil, nil, nil, err
		}
		if i == 0 {
			if name != headerPath {
				return nil, nil, nil, errors.New(errors.ErrArchiveIntegrity, "archive does not start with a metadata header")
			}
			header = content
			continue
		}
		if trailerData != nil {
			return nil, nil, nil, errors.New(errors.ErrArchiveIntegrity, "archive has entries after the trailer")
		}
		if name == trailerPath {
			trailerData = content
			continue
		}

		mode := f.Mode()
		e := Entry{Path: name, Mode: mode.Perm()}
		switch {
		case mode.IsDir():
			e.Type = TypeDir
		case mode&fs.ModeSymlink != 0:
			e.Type = TypeSymlink
			e.LinkTarget = string(content)
		default:
			e.Type = TypeFile
			e.Data = content
		}
		entries = append(entries, e)
	}

	if trailerData == nil {
		return nil, nil, nil, errors.New(errors.ErrArchiveIntegrity, "archive is missing its trailer")
	}
	return header, entries, trailerData, nil
}

func readZipMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrArchiveIntegrity, "corrupt entry %s", f.Name)
	}
	defer func() { _ = rc.Close() }()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrArchiveIntegrity, "corrupt entry %s", f.Name)
	}
	return content, nil
}
