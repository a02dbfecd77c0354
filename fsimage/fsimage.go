// Package fsimage produces the filesystem volume placed after the kernel.
// Formatting is delegated to an external tool (mke2fs by default) which
// runs against a pre-sized, zero-filled backing file.
package fsimage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// DefaultMkfs creates an ext2 filesystem spanning the whole backing file.
// The backing file path is appended as the last argument.
var DefaultMkfs = []string{"mke2fs", "-q", "-F", "-t", "ext2"}

// A Formatter turns a zero-filled file of size bytes at path into a
// filesystem image and returns its contents, which must be exactly size
// bytes long.
type Formatter interface {
	Format(ctx context.Context, path string, size int64) ([]byte, error)
}

// FormatError is returned when the formatting tool exits with a non-zero
// status.
type FormatError struct {
	Argv     []string
	ExitCode int
	Err      error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%v: exit status %d", e.Argv, e.ExitCode)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Mkfs runs an external formatting tool. Its output is discarded, only the
// exit status is observed.
type Mkfs struct {
	// Argv defaults to DefaultMkfs.
	Argv []string
}

func (m Mkfs) argv() []string {
	if len(m.Argv) == 0 {
		return DefaultMkfs
	}
	return m.Argv
}

func (m Mkfs) Format(ctx context.Context, path string, size int64) ([]byte, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	// Extending the empty file leaves it sparse and zero-filled.
	if err := unix.Ftruncate(int(f.Fd()), size); err != nil {
		f.Close()
		return nil, fmt.Errorf("extending %s to %d bytes: %v", path, size, err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	argv := m.argv()
	args := append(append([]string(nil), argv[1:]...), path)
	cmd := exec.CommandContext(ctx, argv[0], args...)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &FormatError{
				Argv:     cmd.Args,
				ExitCode: exitErr.ExitCode(),
				Err:      err,
			}
		}
		return nil, fmt.Errorf("%v: %v", cmd.Args, err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if got := int64(len(b)); got != size {
		return nil, fmt.Errorf("%v: formatted image is %d bytes, want %d", cmd.Args, got, size)
	}
	return b, nil
}

// Provisioner hands each request its own backing file, so concurrent
// invocations never share a path.
type Provisioner struct {
	// Formatter defaults to Mkfs{}.
	Formatter Formatter
	// Dir holds the backing files. Defaults to os.TempDir().
	Dir string
	Log logrus.FieldLogger
}

func (p *Provisioner) backingPath() string {
	dir := p.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "mkbootimg-"+uuid.NewString()+".img")
}

// Provision returns a formatted filesystem image of size bytes. The
// backing file is removed before returning.
func (p *Provisioner) Provision(ctx context.Context, size int64) ([]byte, error) {
	formatter := p.Formatter
	if formatter == nil {
		formatter = Mkfs{}
	}
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	path := p.backingPath()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warnf("removing backing file %s", path)
		}
	}()

	log.WithFields(logrus.Fields{
		"path": path,
		"size": size,
	}).Debug("formatting filesystem")
	b, err := formatter.Format(ctx, path, size)
	if err != nil {
		return nil, err
	}
	if got := int64(len(b)); got != size {
		return nil, fmt.Errorf("formatter returned %d bytes, want %d", got, size)
	}
	return b, nil
}
