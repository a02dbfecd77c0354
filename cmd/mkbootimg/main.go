// mkbootimg assembles a BIOS-bootable disk image:
//
//	sector 0        boot sector, stage2 sector count at 0x1B0,
//	                partition table at 0x1BE
//	sector 1        stage2 loader
//	kernel offset   kernel (partition 1)
//	fs offset       ext2 filesystem (partition 2, optional)
//
// Usage:
//
//	mkbootimg [flags] <boot> <stage2> <kernel> <out>
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/moose-os/mkbootimg/fsimage"
	"github.com/moose-os/mkbootimg/image"
	"github.com/moose-os/mkbootimg/imageflag"
	"github.com/moose-os/mkbootimg/mbr"
)

type runner struct {
	flags *imageflag.Value
	log   *logrus.Logger
	out   io.Writer

	// formatter replaces the configured mkfs command when non-nil.
	formatter fsimage.Formatter
}

func (r *runner) setupLogging() {
	r.log.SetLevel(logrus.InfoLevel)
	if r.flags.Verbose {
		r.log.SetLevel(logrus.DebugLevel)
	}
	if r.flags.JSON {
		r.log.SetFormatter(&logrus.JSONFormatter{})
	}
}

func (r *runner) run(ctx context.Context, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("expected 4 arguments (boot, stage2, kernel, out), got %d", len(args))
	}
	bootPath, stage2Path, kernelPath, outPath := args[0], args[1], args[2], args[3]

	r.setupLogging()
	cfg, err := r.flags.Resolve()
	if err != nil {
		return err
	}
	fsSectors, err := cfg.FilesystemSectors()
	if err != nil {
		return err
	}

	in, err := image.ReadInputs(bootPath, stage2Path, kernelPath)
	if err != nil {
		return err
	}

	prov := cfg.Provisioner()
	prov.Log = r.log
	if r.formatter != nil {
		prov.Formatter = r.formatter
	}
	a := &image.Assembler{
		Provisioner:       prov,
		FilesystemSectors: fsSectors,
		Log:               r.log,
	}
	if _, err := a.Assemble(ctx, outPath, in); err != nil {
		return err
	}

	digest, err := image.Digest(outPath)
	if err != nil {
		return err
	}
	r.log.WithField("blake2b", digest).Infof("wrote %s", outPath)

	if r.flags.PrintTable {
		return printTable(r.out, outPath)
	}
	return nil
}

func printTable(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sector, err := mbr.ReadBootSector(f)
	if err != nil {
		return fmt.Errorf("reading boot sector of %s: %v", path, err)
	}
	fmt.Fprintf(w, "stage2: %d sectors\n", mbr.Stage2Sectors(sector))
	for idx, e := range mbr.PartitionEntries(sector) {
		if e.IsZero() {
			continue
		}
		fmt.Fprintf(w, "partition %d: status=%#02x type=%#02x start=%d sectors=%d\n",
			idx+1, e.Status, e.Type, e.StartLBA, e.Sectors)
	}
	return nil
}

func main() {
	var flags imageflag.Value
	flags.RegisterPflags(pflag.CommandLine)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <boot> <stage2> <kernel> <out>\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	r := &runner{
		flags: &flags,
		log:   logrus.StandardLogger(),
		out:   os.Stdout,
	}
	if err := r.run(context.Background(), pflag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "mkbootimg: %v\n", err)
		os.Exit(1)
	}
}
