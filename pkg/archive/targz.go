// Package archive unpacks source tarballs produced by hosted git providers.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned for entries that would land outside of the destination.
var ErrPathTraversal = errors.New("path traversal detected")

// ExtractTarGz unpacks a gzip-compressed tar stream into dst. Every entry path loses its first
// component, the wrapper directory the provider puts around the repository contents.
func ExtractTarGz(r io.Reader, dst string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("extractTarGz -> open gzip: %w", err)
	}
	defer gz.Close()

	dst = filepath.Clean(dst)
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("extractTarGz -> read entry: %w", err)
		}
		rel := stripWrapper(header.Name)
		if rel == "" {
			continue
		}
		target, err := safePath(dst, rel)
		if err != nil {
			return fmt.Errorf("extractTarGz -> %w; entry=%s", err, header.Name)
		}

		switch header.Typeflag {
		case tar.TypeReg, tar.TypeRegA:
			err = writeFile(tr, target, header.FileInfo().Mode().Perm())
		case tar.TypeSymlink:
			err = writeSymlink(header.Linkname, target)
		case tar.TypeLink:
			var source string
			source, err = safePath(dst, stripWrapper(header.Linkname))
			if err != nil {
				return fmt.Errorf("extractTarGz -> %w; entry=%s; link=%s", err, header.Name, header.Linkname)
			}
			err = writeHardLink(source, target)
		default:
			// directories are created on demand; global headers and the rest carry no content
		}
		if err != nil {
			return err
		}
	}
}

// safePath joins rel to dst and makes sure the result stays inside dst. None of the existing
// parents may be a symlink, or writing through it could land anywhere.
func safePath(dst, rel string) (string, error) {
	if rel == "" {
		return "", ErrPathTraversal
	}
	target := filepath.Join(dst, rel)
	if !strings.HasPrefix(target, dst+string(os.PathSeparator)) {
		return "", ErrPathTraversal
	}
	parent := dst
	for _, part := range strings.Split(filepath.Dir(strings.TrimPrefix(target, dst+string(os.PathSeparator))), string(os.PathSeparator)) {
		if part == "." {
			break
		}
		parent = filepath.Join(parent, part)
		fi, err := os.Lstat(parent)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return "", err
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return "", ErrPathTraversal
		}
	}
	return target, nil
}

func stripWrapper(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	i := strings.Index(name, "/")
	if i < 0 {
		return ""
	}
	return strings.Trim(name[i+1:], "/")
}

func writeFile(r io.Reader, path string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("extractTarGz -> create parent: %w; file=%s", err, path)
	}
	if mode == 0 {
		mode = 0644
	}
	if err := removeLink(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("extractTarGz -> create file: %w; file=%s", err, path)
	}
	if _, err = io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("extractTarGz -> write file: %w; file=%s", err, path)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("extractTarGz -> close file: %w; file=%s", err, path)
	}
	return nil
}

func writeSymlink(target, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("extractTarGz -> create parent: %w; link=%s", err, path)
	}
	if err := removeLink(path); err != nil {
		return err
	}
	if err := os.Symlink(target, path); err != nil {
		return fmt.Errorf("extractTarGz -> create symlink: %w; link=%s", err, path)
	}
	return nil
}

func writeHardLink(source, path string) error {
	fi, err := os.Lstat(source)
	if err != nil {
		return fmt.Errorf("extractTarGz -> hard link source: %w; link=%s", err, path)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("extractTarGz -> hard link to a non-regular file; source=%s; link=%s", source, path)
	}
	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("extractTarGz -> create parent: %w; link=%s", err, path)
	}
	if err = removeLink(path); err != nil {
		return err
	}
	if err = os.Link(source, path); err != nil {
		return fmt.Errorf("extractTarGz -> create hard link: %w; link=%s", err, path)
	}
	return nil
}

// removeLink drops an earlier symlink at path so the entry replaces it instead of writing through it.
func removeLink(path string) error {
	fi, err := os.Lstat(path)
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	if err = os.Remove(path); err != nil {
		return fmt.Errorf("extractTarGz -> replace symlink: %w; path=%s", err, path)
	}
	return nil
}
