package os

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Exists function checks if the file/directory exists.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IsSymlink checks if the path itself is a symbolic link. Missing paths are not symlinks.
func IsSymlink(path string) (bool, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fi.Mode()&os.ModeSymlink != 0, nil
}

// RemoveDir removes the directory.
func RemoveDir(path string) error {
	path, err := filterPath(path)
	if err != nil {
		return err
	}
	err = os.RemoveAll(path)
	if err != nil {
		return fmt.Errorf("removeDir -> cannot remove: %w; dir=%s", err, path)
	}
	return nil
}

// MakeDirs creates every directory in the list along with the missing parents.
func MakeDirs(paths ...string) error {
	for _, p := range paths {
		if err := os.MkdirAll(p, 0755); err != nil {
			return fmt.Errorf("makeDirs -> cannot create directory: %w; dir=%s", err, p)
		}
	}
	return nil
}

// Symlink creates the link pointing at target.
func Symlink(target, link string) error {
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("symlink -> cannot create: %w; target=%s; link=%s", err, target, link)
	}
	return nil
}

// ReplaceSymlink points the link at target. The new link is created next to the old one and renamed
// over it, so the path always resolves to either the previous or the new target.
func ReplaceSymlink(target, link string) error {
	tmp := filepath.Join(
		filepath.Dir(link),
		"."+filepath.Base(link)+".tmp-"+strconv.FormatInt(time.Now().UnixNano(), 36),
	)
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("replaceSymlink -> cannot create: %w; target=%s; link=%s", err, target, tmp)
	}
	if err := os.Rename(tmp, link); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replaceSymlink -> cannot rename: %w; link=%s", err, link)
	}
	return nil
}

func filterPath(path string) (string, error) {
	path, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return "", fmt.Errorf("filterDir -> invalid path: %w; dir=%s", err, path)
	}
	if path == "/" {
		return "", fmt.Errorf("filterDir -> are you kidding me")
	}
	return path, nil
}
