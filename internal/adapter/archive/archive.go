// Package archive turns an uploaded tar archive (optionally gzip, zstd or
// bzip2 compressed) into a directory tree. It knows nothing about deployments.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format is the mode hint for the decoder.
type Format int

const (
	FormatAuto Format = iota
	FormatTar
	FormatGzip
	FormatZstd
	FormatBzip2
)

func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatGzip:
		return "tar+gzip"
	case FormatZstd:
		return "tar+zstd"
	case FormatBzip2:
		return "tar+bzip2"
	}
	return "auto"
}

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	bzip2Magic = []byte("BZh")
)

// FormatFromFilename derives a hint from the uploaded file name. Unknown
// extensions fall back to FormatAuto.
func FormatFromFilename(name string) Format {
	n := strings.ToLower(name)
	switch {
	case strings.HasSuffix(n, ".tar.gz"), strings.HasSuffix(n, ".tgz"):
		return FormatGzip
	case strings.HasSuffix(n, ".tar.zst"), strings.HasSuffix(n, ".tzst"):
		return FormatZstd
	case strings.HasSuffix(n, ".tar.bz2"), strings.HasSuffix(n, ".tbz2"):
		return FormatBzip2
	case strings.HasSuffix(n, ".tar"):
		return FormatTar
	}
	return FormatAuto
}

func detect(br *bufio.Reader) Format {
	head, _ := br.Peek(4)
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return FormatGzip
	case bytes.HasPrefix(head, zstdMagic):
		return FormatZstd
	case bytes.HasPrefix(head, bzip2Magic):
		return FormatBzip2
	}
	return FormatTar
}

func decoder(r io.Reader, f Format) (io.Reader, func(), error) {
	switch f {
	case FormatGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { zr.Close() }, nil
	case FormatZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case FormatBzip2:
		return bzip2.NewReader(r), func() {}, nil
	}
	return r, func() {}, nil
}

// Extract decodes r and writes its entries below dst, which is created if
// missing. Every failure is wrapped in domain.ErrArchive; the caller owns
// cleanup of dst.
func Extract(r io.Reader, dst string, hint Format) error {
	if r == nil {
		return fmt.Errorf("%w: no archive supplied", domain.ErrArchive)
	}
	br := bufio.NewReader(r)
	if _, err := br.Peek(1); err != nil {
		return fmt.Errorf("%w: archive is empty", domain.ErrArchive)
	}
	format := hint
	if format == FormatAuto {
		format = detect(br)
	}
	dec, closeDec, err := decoder(br, format)
	if err != nil {
		return fmt.Errorf("%w: open %s stream: %v", domain.ErrArchive, format, err)
	}
	defer closeDec()

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("create extraction dir: %w", err)
	}

	tr := tar.NewReader(dec)
	entries := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: read %s entry: %v", domain.ErrArchive, format, err)
		}
		if err := writeEntry(tr, hdr, dst); err != nil {
			return err
		}
		entries++
	}
	if entries == 0 {
		return fmt.Errorf("%w: archive contains no entries", domain.ErrArchive)
	}
	return nil
}

func writeEntry(tr *tar.Reader, hdr *tar.Header, dst string) error {
	target, err := safeJoin(dst, hdr.Name)
	if err != nil {
		return err
	}
	if target == dst {
		return nil
	}
	if err := ensureNoSymlinkParent(dst, target); err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("%w: mkdir %s: %v", domain.ErrArchive, hdr.Name, err)
		}
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("%w: mkdir for %s: %v", domain.ErrArchive, hdr.Name, err)
		}
		if fi, err := os.Lstat(target); err == nil && fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: entry %q overwrites a symlink", domain.ErrArchive, hdr.Name)
		}
		perm := hdr.FileInfo().Mode().Perm() | 0o600
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
		if err != nil {
			return fmt.Errorf("%w: create %s: %v", domain.ErrArchive, hdr.Name, err)
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return fmt.Errorf("%w: write %s: %v", domain.ErrArchive, hdr.Name, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("%w: close %s: %v", domain.ErrArchive, hdr.Name, err)
		}
	case tar.TypeSymlink:
		if filepath.IsAbs(hdr.Linkname) {
			return fmt.Errorf("%w: symlink %q has absolute target", domain.ErrArchive, hdr.Name)
		}
		resolved := filepath.Join(filepath.Dir(target), hdr.Linkname)
		if !within(dst, resolved) {
			return fmt.Errorf("%w: symlink %q points outside the archive root", domain.ErrArchive, hdr.Name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("%w: mkdir for %s: %v", domain.ErrArchive, hdr.Name, err)
		}
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return fmt.Errorf("%w: symlink %s: %v", domain.ErrArchive, hdr.Name, err)
		}
	default:
		// hardlinks, devices, fifos: not meaningful for static sites
	}
	return nil
}

// safeJoin joins an entry name onto dst, refusing names that escape it.
func safeJoin(dst, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: entry %q has an absolute path", domain.ErrArchive, name)
	}
	target := filepath.Join(dst, name)
	if !within(dst, target) {
		return "", fmt.Errorf("%w: entry %q escapes the extraction root", domain.ErrArchive, name)
	}
	return target, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ensureNoSymlinkParent refuses to write through a symlink created by an
// earlier entry, which would otherwise let lexical checks be bypassed.
func ensureNoSymlinkParent(root, target string) error {
	rel, err := filepath.Rel(root, filepath.Dir(target))
	if err != nil || rel == "." {
		return nil
	}
	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		if err != nil {
			return nil
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: entry %q is nested under a symlink", domain.ErrArchive, target)
		}
	}
	return nil
}
