// Package config reads mkbootimg settings from a TOML file, typically
// ~/.config/mkbootimg/config.toml on Linux.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/osbuild/images/pkg/datasizes"

	"github.com/moose-os/mkbootimg/fsimage"
	"github.com/moose-os/mkbootimg/layout"
	"github.com/moose-os/mkbootimg/mbr"
)

type Config struct {
	// FilesystemSize is the size of the filesystem region, e.g. 2097152 or
	// "2 MiB". Zero omits the region.
	FilesystemSize datasizes.Size `toml:"filesystem_size"`

	// Mkfs is the formatting command; the backing file is appended.
	Mkfs []string `toml:"mkfs"`

	// TempDir holds filesystem backing files. Empty means os.TempDir().
	TempDir string `toml:"temp_dir"`
}

func Default() Config {
	return Config{
		FilesystemSize: datasizes.Size(layout.DefaultFilesystemSectors * mbr.SectorSize),
		Mkfs:           append([]string(nil), fsimage.DefaultMkfs...),
	}
}

// DefaultPath returns the per-user config file location, or "" if the user
// config directory cannot be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mkbootimg", "config.toml")
}

// Load reads path on top of Default(). If path is empty, DefaultPath() is
// used and a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if path == "" {
			return cfg, nil
		}
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("reading config %s: unknown keys %v", path, keys)
	}
	if len(cfg.Mkfs) == 0 {
		return Config{}, fmt.Errorf("reading config %s: mkfs must not be empty", path)
	}
	return cfg, nil
}

// FilesystemSectors converts FilesystemSize to sectors.
func (c Config) FilesystemSectors() (uint64, error) {
	size := c.FilesystemSize.Uint64()
	if size%mbr.SectorSize != 0 {
		return 0, fmt.Errorf("filesystem size %d is not a multiple of %d bytes", size, mbr.SectorSize)
	}
	return size / mbr.SectorSize, nil
}

func (c Config) Provisioner() *fsimage.Provisioner {
	return &fsimage.Provisioner{
		Formatter: fsimage.Mkfs{Argv: c.Mkfs},
		Dir:       c.TempDir,
	}
}
