// Package imageflag holds the mkbootimg command-line flags and merges them
// with the config file.
package imageflag

import (
	"fmt"
	"strings"

	"github.com/osbuild/images/pkg/datasizes"
	"github.com/spf13/pflag"

	"github.com/moose-os/mkbootimg/config"
)

type Value struct {
	Config         string
	FilesystemSize string
	Mkfs           string
	TempDir        string
	Verbose        bool
	JSON           bool
	PrintTable     bool

	fs *pflag.FlagSet
}

func (v *Value) RegisterPflags(fs *pflag.FlagSet) {
	v.fs = fs
	fs.StringVarP(&v.Config,
		"config",
		"c",
		"",
		`path to a TOML config file (default: `+config.DefaultPath()+`, if present)`)

	fs.StringVar(&v.FilesystemSize,
		"fs-size",
		"",
		`size of the filesystem partition, e.g. "1 MiB" or 1048576; 0 omits it`)

	fs.StringVar(&v.Mkfs,
		"mkfs",
		"",
		`command formatting the filesystem; the backing file is appended (default "`+strings.Join(config.Default().Mkfs, " ")+`")`)

	fs.StringVar(&v.TempDir,
		"tmpdir",
		"",
		`directory for the filesystem backing file (default: system temp dir)`)

	fs.BoolVarP(&v.Verbose, "verbose", "v", false, "enable debug logging")
	fs.BoolVar(&v.JSON, "json", false, "log in JSON format")
	fs.BoolVar(&v.PrintTable, "print-table", false, "print the partition table of the written image")
}

func (v *Value) changed(name string) bool {
	return v.fs != nil && v.fs.Changed(name)
}

// Resolve loads the config file and overrides it with any flag that was
// set explicitly.
func (v *Value) Resolve() (config.Config, error) {
	cfg, err := config.Load(v.Config)
	if err != nil {
		return config.Config{}, err
	}
	if v.changed("fs-size") {
		size, err := datasizes.Parse(v.FilesystemSize)
		if err != nil {
			return config.Config{}, fmt.Errorf("--fs-size: %v", err)
		}
		cfg.FilesystemSize = datasizes.Size(size)
	}
	if v.changed("mkfs") {
		argv := strings.Fields(v.Mkfs)
		if len(argv) == 0 {
			return config.Config{}, fmt.Errorf("--mkfs must not be empty")
		}
		cfg.Mkfs = argv
	}
	if v.changed("tmpdir") {
		cfg.TempDir = v.TempDir
	}
	if _, err := cfg.FilesystemSectors(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
