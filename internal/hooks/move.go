package hooks

import (
	"errors"
	"io"
	"os"
	"syscall"
)

// move renames src to dst, falling back to copy and delete when they are on
// different filesystems (scratch directories usually live in /tmp). dst
// must not exist.
func move(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return Error.New("cannot move %s: %s already exists", src, dst)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return Error.Wrap(err)
	}
	return copyAndRemove(src, dst)
}

func copyAndRemove(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return Error.Wrap(err)
	}
	if info.IsDir() {
		return Error.New("cannot move directory %s across filesystems", src)
	}
	in, err := os.Open(src)
	if err != nil {
		return Error.Wrap(err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return Error.Wrap(err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return Error.Wrap(err)
	}
	if err := out.Close(); err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(os.Remove(src))
}
