// Package image assembles a BIOS-bootable disk image from a boot sector,
// a stage2 loader, a kernel and an optional filesystem volume.
package image

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/moose-os/mkbootimg/fsimage"
	"github.com/moose-os/mkbootimg/humanize"
	"github.com/moose-os/mkbootimg/layout"
	"github.com/moose-os/mkbootimg/mbr"
)

// Inputs are the caller-supplied blobs, written verbatim.
type Inputs struct {
	Boot   []byte
	Stage2 []byte
	Kernel []byte
}

// ReadInputs reads the boot sector, stage2 and kernel files.
func ReadInputs(bootPath, stage2Path, kernelPath string) (Inputs, error) {
	var in Inputs
	for _, f := range []struct {
		path string
		dst  *[]byte
	}{
		{bootPath, &in.Boot},
		{stage2Path, &in.Stage2},
		{kernelPath, &in.Kernel},
	} {
		b, err := os.ReadFile(f.path)
		if err != nil {
			return Inputs{}, fmt.Errorf("reading %s: %w", f.path, err)
		}
		*f.dst = b
	}
	return in, nil
}

type chunk struct {
	name   string
	offset int64
	b      []byte
}

// Write places every component at its layout offset. fs is ignored unless
// l has a filesystem region. Each write covers a distinct byte range, so
// the order does not matter.
func Write(w io.WriterAt, in Inputs, fs []byte, l layout.Layout) error {
	var entries [][mbr.PartitionEntrySize]byte
	for _, r := range l.Partitions() {
		entries = append(entries, mbr.EncodeEntry(uint32(r.Offset), uint32(r.Size)))
	}
	sector, err := mbr.Configure(in.Boot, uint16(l.Stage2.Size), entries...)
	if err != nil {
		return err
	}

	parts := []chunk{
		{"boot sector", 0, sector[:]},
		{layout.Stage2, l.Stage2.ByteOffset(), in.Stage2},
		{layout.Kernel, l.Kernel.ByteOffset(), in.Kernel},
	}
	if fsr := l.Filesystem; fsr != nil {
		if int64(len(fs)) > fsr.ByteSize() {
			return fmt.Errorf("filesystem image is %d bytes, region holds %d", len(fs), fsr.ByteSize())
		}
		parts = append(parts, chunk{layout.Filesystem, fsr.ByteOffset(), fs})
	}
	for _, p := range parts {
		if len(p.b) == 0 {
			continue
		}
		if _, err := w.WriteAt(p.b, p.offset); err != nil {
			return fmt.Errorf("writing %s at offset %d: %w", p.name, p.offset, err)
		}
	}
	return nil
}

type Assembler struct {
	// Provisioner formats the filesystem region. Defaults to a
	// Provisioner running fsimage.DefaultMkfs.
	Provisioner *fsimage.Provisioner
	// FilesystemSectors is the size of the filesystem region. Zero omits
	// the region and its partition entry.
	FilesystemSectors uint64
	Log               logrus.FieldLogger
}

func (a *Assembler) log() logrus.FieldLogger {
	if a.Log == nil {
		return logrus.StandardLogger()
	}
	return a.Log
}

// Assemble writes the image for in to outPath, replacing any existing
// file. On failure outPath may be left truncated or partially written.
func (a *Assembler) Assemble(ctx context.Context, outPath string, in Inputs) (layout.Layout, error) {
	log := a.log()
	l := layout.Compute(int64(len(in.Stage2)), int64(len(in.Kernel)), a.FilesystemSectors)
	if err := l.Check(); err != nil {
		return l, err
	}
	for _, r := range l.Regions() {
		log.WithFields(logrus.Fields{
			"offset": r.Offset,
			"size":   r.Size,
		}).Infof("%s: %s at sector %d", r.Name, humanize.Sectors(r.Size), r.Offset)
	}

	var fs []byte
	if fsr := l.Filesystem; fsr != nil {
		p := a.Provisioner
		if p == nil {
			p = &fsimage.Provisioner{Log: log}
		}
		var err error
		fs, err = p.Provision(ctx, fsr.ByteSize())
		if err != nil {
			return l, fmt.Errorf("provisioning filesystem: %w", err)
		}
	}

	f, err := os.OpenFile(outPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return l, err
	}
	defer f.Close()
	if err := Write(f, in, fs, l); err != nil {
		return l, err
	}
	// Cover the padding of the last region, which no write reaches.
	if err := f.Truncate(int64(l.TotalSectors()) * mbr.SectorSize); err != nil {
		return l, err
	}
	return l, f.Close()
}

// Digest returns the hex-encoded BLAKE2b-256 sum of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
