package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/moose-os/mkbootimg/imageflag"
)

type zeroFormatter struct{}

func (zeroFormatter) Format(ctx context.Context, path string, size int64) ([]byte, error) {
	b := make([]byte, size)
	return b, os.WriteFile(path, b, 0644)
}

func newRunner(t *testing.T, out io.Writer, args ...string) (*runner, []string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var flags imageflag.Value
	fs := pflag.NewFlagSet("mkbootimg", pflag.ContinueOnError)
	flags.RegisterPflags(fs)
	require.NoError(t, fs.Parse(args))
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &runner{
		flags:     &flags,
		log:       log,
		out:       out,
		formatter: zeroFormatter{},
	}, fs.Args()
}

func writeInputs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	boot := make([]byte, 512)
	boot[510], boot[511] = 0x55, 0xAA
	files := []struct {
		name string
		b    []byte
	}{
		{"boot.bin", boot},
		{"stage2.bin", bytes.Repeat([]byte{2}, 600)},
		{"kernel.bin", bytes.Repeat([]byte{3}, 1024)},
	}
	var paths []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		require.NoError(t, os.WriteFile(path, f.b, 0644))
		paths = append(paths, path)
	}
	return append(paths, filepath.Join(dir, "disk.img"))
}

func TestRunDefault(t *testing.T) {
	var out bytes.Buffer
	paths := writeInputs(t)
	r, args := newRunner(t, &out, append([]string{"--print-table"}, paths...)...)
	require.NoError(t, r.run(context.Background(), args))

	st, err := os.Stat(paths[3])
	require.NoError(t, err)
	require.Equal(t, int64((5+2048)*512), st.Size())
	require.Equal(t, `stage2: 2 sectors
partition 1: status=0x80 type=0x00 start=3 sectors=2
partition 2: status=0x80 type=0x00 start=5 sectors=2048
`, out.String())
}

func TestRunKernelOnly(t *testing.T) {
	var out bytes.Buffer
	paths := writeInputs(t)
	r, args := newRunner(t, &out, append([]string{"--fs-size=0", "--print-table"}, paths...)...)
	require.NoError(t, r.run(context.Background(), args))

	st, err := os.Stat(paths[3])
	require.NoError(t, err)
	require.Equal(t, int64(5*512), st.Size())
	require.Equal(t, `stage2: 2 sectors
partition 1: status=0x80 type=0x00 start=3 sectors=2
`, out.String())
}

func TestRunArgs(t *testing.T) {
	r, args := newRunner(t, io.Discard, "a", "b", "c")
	require.ErrorContains(t, r.run(context.Background(), args), "expected 4 arguments")
}

func TestRunMissingInput(t *testing.T) {
	paths := writeInputs(t)
	paths[1] = filepath.Join(t.TempDir(), "missing.bin")
	r, args := newRunner(t, io.Discard, paths...)
	err := r.run(context.Background(), args)
	require.ErrorContains(t, err, paths[1])
}
