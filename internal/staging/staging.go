// Package staging copies files and archives directories into the site's
// staging directory and hands back a stable, site-relative reference.
package staging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/starford/sitekeeper/internal/apperr"
)

// Manager stages sources into <root>/<dir>.
type Manager struct {
	dir string // staging dir, relative to the site root
	abs string // absolute staging dir
}

// New creates a Manager. dir is relative to root and must stay inside it.
// The staging directory itself is created lazily on first use.
func New(root, dir string) (*Manager, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("staging: resolve root: %w", err)
	}
	cleaned := filepath.Clean(dir)
	if dir == "" || filepath.IsAbs(cleaned) || cleaned == "." || cleaned == ".." ||
		strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return nil, fmt.Errorf("staging: dir must be a relative path inside the site root: %q", dir)
	}
	return &Manager{
		dir: filepath.ToSlash(cleaned),
		abs: filepath.Join(absRoot, cleaned),
	}, nil
}

// Dir returns the absolute staging directory.
func (m *Manager) Dir() string { return m.abs }

// Stage copies a regular file, or zips a directory, into the staging
// directory and returns its reference ("<dir>/<name>"). Existing entries of
// the same name are overwritten.
func (m *Manager) Stage(source string) (string, error) {
	src, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("staging: resolve %s: %w", source, err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", classify("stat", source, err)
	}
	if err := m.ensureDir(); err != nil {
		return "", err
	}

	base := filepath.Base(src)
	switch {
	case info.IsDir():
		name := base + ".zip"
		if err := m.archive(src, filepath.Join(m.abs, name)); err != nil {
			return "", err
		}
		return m.reference(name), nil
	case info.Mode().IsRegular():
		if err := m.copyFile(src, info, filepath.Join(m.abs, base)); err != nil {
			return "", err
		}
		return m.reference(base), nil
	default:
		return "", fmt.Errorf("staging: %s is neither a regular file nor a directory", source)
	}
}

// StageReader stores r under the base name of name and returns the
// reference and the number of bytes written.
func (m *Manager) StageReader(name string, r io.Reader) (string, int64, error) {
	base, err := plainName(name)
	if err != nil {
		return "", 0, err
	}
	if err := m.ensureDir(); err != nil {
		return "", 0, err
	}
	var written int64
	err = m.writeAtomic(filepath.Join(m.abs, base), func(w io.Writer) error {
		n, copyErr := io.Copy(w, r)
		written = n
		return copyErr
	})
	if err != nil {
		return "", 0, err
	}
	return m.reference(base), written, nil
}

// Path returns the absolute path of a staged entry. name must be a plain
// file name.
func (m *Manager) Path(name string) (string, error) {
	base, err := plainName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.abs, base), nil
}

func (m *Manager) reference(name string) string {
	return path.Join(m.dir, name)
}

func (m *Manager) ensureDir() error {
	if err := os.MkdirAll(m.abs, 0o755); err != nil {
		return classify("create staging dir", m.dir, err)
	}
	return nil
}

func (m *Manager) copyFile(src string, info fs.FileInfo, dest string) error {
	if destInfo, err := os.Stat(dest); err == nil && os.SameFile(info, destInfo) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return classify("open", src, err)
	}
	defer in.Close()

	err = m.writeAtomic(dest, func(w io.Writer) error {
		_, copyErr := io.Copy(w, in)
		return copyErr
	})
	if err != nil {
		return err
	}
	if err := os.Chmod(dest, info.Mode().Perm()); err != nil {
		return classify("chmod", dest, err)
	}
	if err := os.Chtimes(dest, info.ModTime(), info.ModTime()); err != nil {
		return classify("chtimes", dest, err)
	}
	return nil
}

// archive writes every file below src into a deflate-compressed zip at
// dest. Entry names are relative to src and slash-separated.
func (m *Manager) archive(src, dest string) error {
	return m.writeAtomic(dest, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		walkErr := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return classify("walk", p, err)
			}
			if d.IsDir() {
				if p == m.abs {
					return filepath.SkipDir
				}
				return nil
			}
			info, err := os.Stat(p) // follows symlinks
			if err != nil {
				return classify("stat", p, err)
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(src, p)
			if err != nil {
				return err
			}
			return addZipEntry(zw, p, filepath.ToSlash(rel), info)
		})
		if walkErr != nil {
			_ = zw.Close()
			return walkErr
		}
		return zw.Close()
	})
}

func addZipEntry(zw *zip.Writer, p, name string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("staging: zip header %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("staging: zip entry %s: %w", name, err)
	}
	f, err := os.Open(p)
	if err != nil {
		return classify("open", p, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("staging: zip copy %s: %w", name, err)
	}
	return nil
}

// writeAtomic fills a temp file next to dest and renames it over dest.
func (m *Manager) writeAtomic(dest string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".staging-tmp-*")
	if err != nil {
		return classify("create temp", dest, err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := fill(tmp); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return classify("chmod", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("staging: close temp: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return classify("rename", dest, err)
	}
	success = true
	return nil
}

func plainName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("staging: %w: filename is required", apperr.ErrValidation)
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || cleaned == "." || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("staging: %w: invalid filename: %s", apperr.ErrValidation, name)
	}
	return cleaned, nil
}

// classify tags file-system errors with the matching apperr kind.
func classify(op, p string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("staging: %s %s: %w: %w", op, p, apperr.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("staging: %s %s: %w: %w", op, p, apperr.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("staging: %s %s: %w", op, p, err)
	}
}
