// Package compression unpacks dependency bundle archives.
package compression

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"

	"github.com/darwinia-network/darwinia-builder/internal/utils/file"
	"github.com/darwinia-network/darwinia-builder/internal/utils/logger"
	"github.com/darwinia-network/darwinia-builder/internal/utils/shell"
)

// Format is an archive layout recognised by its file suffix.
type Format string

const (
	TarGz  Format = "tar.gz"
	TarXz  Format = "tar.xz"
	TarZst Format = "tar.zst"
	Tar    Format = "tar"
)

// DetectFormat maps an archive file name to its Format.
func DetectFormat(name string) (Format, error) {
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return TarGz, nil
	case strings.HasSuffix(name, ".tar.xz"):
		return TarXz, nil
	case strings.HasSuffix(name, ".tar.zst"):
		return TarZst, nil
	case strings.HasSuffix(name, ".tar"):
		return Tar, nil
	}
	return "", fmt.Errorf("unsupported archive format: %s", name)
}

func (f Format) tarArgs() []string {
	switch f {
	case TarGz:
		return []string{"-xzf"}
	case TarXz:
		return []string{"-xJf"}
	case TarZst:
		return []string{"--zstd", "-xf"}
	}
	return []string{"-xf"}
}

// Extract unpacks archive into dest, creating dest if needed. The system tar
// is tried first; when it is missing or fails the archive is unpacked in
// process.
func Extract(ctx context.Context, archive, dest string) error {
	log := logger.Logger()

	format, err := DetectFormat(archive)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create extraction dir %s: %w", dest, err)
	}

	args := append(format.tarArgs(), archive, "-C", dest)
	_, err = shell.Default.Run(ctx, "tar", args, shell.RunOptions{})
	if err == nil {
		log.Debugf("Extracted %s with system tar", archive)
		return nil
	}
	log.Debugf("System tar unavailable for %s (%v), extracting in process", archive, err)

	return extractNative(archive, dest, format)
}

func extractNative(archive, dest string, format Format) error {
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archive, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch format {
	case TarGz:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader for %s: %w", archive, err)
		}
		defer gz.Close()
		r = gz
	case TarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create xz reader for %s: %w", archive, err)
		}
		r = xr
	case TarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader for %s: %w", archive, err)
		}
		defer zr.Close()
		r = zr
	}

	return untar(tar.NewReader(r), dest, archive)
}

func untar(tr *tar.Reader, dest, archive string) error {
	log := logger.Logger()
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading tar header in %s: %w", archive, err)
		}

		targetPath := filepath.Join(dest, hdr.Name)
		inside, err := file.IsSubPath(dest, targetPath)
		if err != nil {
			return err
		}
		if !inside {
			return fmt.Errorf("archive entry %q escapes %s", hdr.Name, dest)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", targetPath, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return fmt.Errorf("failed to create parent dir for %s: %w", targetPath, err)
			}
			out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", targetPath, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("failed to write file %s: %w", targetPath, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("failed to close file %s: %w", targetPath, err)
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) {
				return fmt.Errorf("archive symlink %q has absolute target %q", hdr.Name, hdr.Linkname)
			}
			resolved := filepath.Join(filepath.Dir(targetPath), hdr.Linkname)
			if ok, err := file.IsSubPath(dest, resolved); err != nil || !ok {
				return fmt.Errorf("archive symlink %q points outside %s", hdr.Name, dest)
			}
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return fmt.Errorf("failed to create parent dir for %s: %w", targetPath, err)
			}
			if err := os.Symlink(hdr.Linkname, targetPath); err != nil && !os.IsExist(err) {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", targetPath, hdr.Linkname, err)
			}
		default:
			log.Debugf("Skipping unsupported tar entry type %c: %s", hdr.Typeflag, hdr.Name)
		}
	}
}
