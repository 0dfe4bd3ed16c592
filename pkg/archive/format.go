package archive

import (
	"bytes"
	"strings"

	"github.com/arthur-debert/ipak/pkg/errors"
)

// Format selects the container/compression variant of an archive. All
// formats carry the same logical content and are interchangeable.
type Format string

const (
	FormatTar    Format = "tar"
	FormatTarGz  Format = "tar.gz"
	FormatTarZst Format = "tar.zst"
	FormatZip    Format = "zip"
)

// DefaultFormat is used when no format tag is given.
const DefaultFormat = FormatTarGz

// ParseFormat maps a format tag (including common aliases) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return DefaultFormat, nil
	case "tar":
		return FormatTar, nil
	case "tar.gz", "tgz":
		return FormatTarGz, nil
	case "tar.zst", "tar.zstd", "tzst":
		return FormatTarZst, nil
	case "zip":
		return FormatZip, nil
	default:
		return "", errors.Newf(errors.ErrInvalidInput, "unknown archive format %q", s)
	}
}

// Extension returns the conventional file extension for the format,
// leading dot included.
func (f Format) Extension() string {
	return "." + string(f)
}

// Magic numbers for format sniffing.
var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicZip  = []byte{0x50, 0x4b, 0x03, 0x04}
	magicTar  = []byte("ustar")
)

// DetectFormat sniffs the container format from the archive bytes.
func DetectFormat(data []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(data, magicZstd):
		return FormatTarZst, nil
	case bytes.HasPrefix(data, magicGzip):
		return FormatTarGz, nil
	case bytes.HasPrefix(data, magicZip):
		return FormatZip, nil
	case len(data) > 262 && bytes.Equal(data[257:262], magicTar):
		return FormatTar, nil
	default:
		return "", errors.New(errors.ErrArchiveIntegrity, "unrecognized archive format")
	}
}
