package logging

import (
	"fmt"
	"os"
)

// rotatingFile is an append-only frame log. A write that would take the file
// past maxBytes first rolls it over to numbered backups, so a frame line is
// never split across two files. maxBytes <= 0 disables rotation.
type rotatingFile struct {
	path     string
	maxBytes int64
	backups  int

	f    *os.File
	size int64
}

// openRotating opens path for appending. A file already at or over maxBytes
// is rotated first.
func openRotating(path string, maxBytes int64, backups int) (*rotatingFile, error) {
	r := &rotatingFile{path: path, maxBytes: maxBytes, backups: backups}
	if fi, err := os.Stat(path); err == nil && maxBytes > 0 && fi.Size() >= maxBytes {
		if err := rotateFiles(path, backups); err != nil {
			return nil, fmt.Errorf("cannot rotate log file: %s: %w", path, err)
		}
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("cannot open log file: %s: %w", r.path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("cannot stat log file: %s: %w", r.path, err)
	}
	r.f, r.size = f, fi.Size()
	return nil
}

// Write appends p, rotating beforehand when p would overflow the file. A
// rotation failure is returned after the data has been written to the
// current file.
func (r *rotatingFile) Write(p []byte) (int, error) {
	if r.f == nil {
		return 0, os.ErrClosed
	}

	var rotErr error
	if r.maxBytes > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		rotErr = r.rotate()
		if r.f == nil {
			return 0, rotErr
		}
	}

	n, err := r.f.Write(p)
	r.size += int64(n)
	if err != nil {
		return n, err
	}
	return n, rotErr
}

// rotate closes the file, shifts the backups and opens a fresh file. If the
// shift fails the old file is reopened and the error returned.
func (r *rotatingFile) rotate() error {
	r.f.Close()
	r.f = nil
	shiftErr := rotateFiles(r.path, r.backups)
	if err := r.open(); err != nil {
		return err
	}
	if shiftErr != nil {
		return fmt.Errorf("log rotation failed: %w", shiftErr)
	}
	return nil
}

// Reopen closes and reopens the path, picking up a file moved away by an
// external rotation tool.
func (r *rotatingFile) Reopen() error {
	if r.f != nil {
		r.f.Close()
		r.f = nil
	}
	return r.open()
}

func (r *rotatingFile) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// rotateFiles shifts path.N-1 to path.N down to path to path.1. With no
// backups the file is truncated instead.
func rotateFiles(path string, backups int) error {
	if backups <= 0 {
		return os.Truncate(path, 0)
	}

	os.Remove(fmt.Sprintf("%s.%d", path, backups))
	// Missing intermediates are expected.
	for i := backups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
	}
	return os.Rename(path, path+".1")
}
