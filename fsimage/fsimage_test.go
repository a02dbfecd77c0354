package fsimage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not found: %v", err)
	}
}

func TestMkfs(t *testing.T) {
	requireShell(t)
	path := filepath.Join(t.TempDir(), "fs.img")
	// The script receives the backing file as $0 and writes a marker
	// without truncating it.
	m := Mkfs{Argv: []string{"sh", "-c", `printf EXT2 1<>"$0"`}}
	const size = 1 << 20
	got, err := m.Format(context.Background(), path, size)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != size {
		t.Fatalf("Format returned %d bytes, want %d", len(got), size)
	}
	want := append([]byte("EXT2"), make([]byte, size-4)...)
	if !bytes.Equal(got, want) {
		t.Errorf("Format returned unexpected content: first bytes %q", got[:16])
	}
}

func TestMkfsExitStatus(t *testing.T) {
	requireShell(t)
	path := filepath.Join(t.TempDir(), "fs.img")
	m := Mkfs{Argv: []string{"sh", "-c", "exit 3"}}
	_, err := m.Format(context.Background(), path, 4096)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("Format = %v, want *FormatError", err)
	}
	if got, want := fe.ExitCode, 3; got != want {
		t.Errorf("ExitCode = %d, want %d", got, want)
	}
	if diff := cmp.Diff([]string{"sh", "-c", "exit 3", path}, fe.Argv); diff != "" {
		t.Errorf("unexpected Argv: diff (-want +got):\n%s", diff)
	}
	if !strings.Contains(err.Error(), "exit status 3") {
		t.Errorf("error %q does not mention the exit status", err)
	}
}

func TestMkfsResized(t *testing.T) {
	requireShell(t)
	path := filepath.Join(t.TempDir(), "fs.img")
	m := Mkfs{Argv: []string{"sh", "-c", `printf x >> "$0"`}}
	if _, err := m.Format(context.Background(), path, 512); err == nil {
		t.Fatal("Format succeeded although the tool grew the image")
	}
}

func TestMkfsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fs.img")
	m := Mkfs{Argv: []string{"mkbootimg-no-such-mkfs"}}
	_, err := m.Format(context.Background(), path, 512)
	if err == nil {
		t.Fatal("Format succeeded with a missing tool")
	}
	var fe *FormatError
	if errors.As(err, &fe) {
		t.Errorf("Format = %v, want a non-FormatError error", err)
	}
}

type recordingFormatter struct {
	paths []string
}

func (r *recordingFormatter) Format(ctx context.Context, path string, size int64) ([]byte, error) {
	r.paths = append(r.paths, path)
	b := make([]byte, size)
	if err := os.WriteFile(path, b, 0644); err != nil {
		return nil, err
	}
	return b, nil
}

func TestProvisioner(t *testing.T) {
	dir := t.TempDir()
	rf := &recordingFormatter{}
	p := &Provisioner{Formatter: rf, Dir: dir}
	for i := 0; i < 2; i++ {
		b, err := p.Provision(context.Background(), 2048*512)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := len(b), 2048*512; got != want {
			t.Fatalf("Provision returned %d bytes, want %d", got, want)
		}
	}

	if len(rf.paths) != 2 {
		t.Fatalf("formatter called %d times, want 2", len(rf.paths))
	}
	if rf.paths[0] == rf.paths[1] {
		t.Errorf("backing path %s reused across calls", rf.paths[0])
	}
	for _, path := range rf.paths {
		if got := filepath.Dir(path); got != dir {
			t.Errorf("backing file %s not in %s", path, dir)
		}
		if !strings.HasPrefix(filepath.Base(path), "mkbootimg-") {
			t.Errorf("unexpected backing file name %s", path)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("backing file %s not removed (stat: %v)", path, err)
		}
	}
}

type shortFormatter struct{}

func (shortFormatter) Format(ctx context.Context, path string, size int64) ([]byte, error) {
	return make([]byte, size-1), nil
}

func TestProvisionerSizeMismatch(t *testing.T) {
	p := &Provisioner{Formatter: shortFormatter{}, Dir: t.TempDir()}
	if _, err := p.Provision(context.Background(), 512); err == nil {
		t.Fatal("Provision accepted a short filesystem image")
	}
}
