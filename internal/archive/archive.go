package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"
)

type Format int

const (
	FormatZip Format = iota + 1
	FormatTar
	FormatTarGz
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatTarGz:
		return "tar.gz"
	default:
		return "unknown"
	}
}

var (
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	ErrCorrupt           = errors.New("archive error")
)

// DetectFormat picks the container format from the archive file name.
func DetectFormat(filename string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(filename))
	switch {
	case strings.HasSuffix(name, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(name, ".tar"):
		return FormatTar, nil
	default:
		return 0, ErrUnsupportedFormat
	}
}

// Entry is one regular file inside an archive.
type Entry struct {
	Name string
	Size int64
	open func() (io.ReadCloser, error)
}

// Open returns the entry content. Tar entries must be read before the walk moves on.
func (e Entry) Open() (io.ReadCloser, error) {
	return e.open()
}

// Source is an uploaded archive that can be read randomly (zip) or sequentially (tar).
type Source interface {
	io.Reader
	io.ReaderAt
}

// Walk calls fn for every non-empty regular file in the archive.
// Directories, symlinks, hard links and other special entries are skipped.
// Errors reading the container itself are wrapped in ErrCorrupt; an error from fn stops the walk.
// Unsafe entry names are still yielded; callers sanitize them.
func Walk(src Source, size int64, format Format, fn func(Entry) error) error {
	switch format {
	case FormatZip:
		return walkZip(src, size, fn)
	case FormatTar:
		return walkTar(src, fn)
	case FormatTarGz:
		gz, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		defer gz.Close()
		return walkTar(gz, fn)
	default:
		return ErrUnsupportedFormat
	}
}

func walkZip(src io.ReaderAt, size int64, fn func(Entry) error) error {
	zr, err := zip.NewReader(src, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	for _, f := range zr.File {
		mode := f.Mode()
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") || !mode.IsRegular() {
			continue
		}
		if f.UncompressedSize64 == 0 {
			continue
		}
		zf := f
		entry := Entry{
			Name: zf.Name,
			Size: int64(zf.UncompressedSize64),
			open: zf.Open,
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

func walkTar(r io.Reader, fn func(Entry) error) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size <= 0 {
			continue
		}
		entry := Entry{
			Name: hdr.Name,
			Size: hdr.Size,
			open: func() (io.ReadCloser, error) {
				return io.NopCloser(tr), nil
			},
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
}
