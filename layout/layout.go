// Package layout computes where each component of a boot image lives, in
// 512-byte sectors. Components are packed back to back starting at sector 1.
package layout

import (
	"fmt"
	"math"

	"github.com/moose-os/mkbootimg/mbr"
)

const (
	// DefaultFilesystemSectors is the size of the filesystem region (1 MiB)
	// when none is configured.
	DefaultFilesystemSectors = 2048

	Stage2     = "stage2"
	Kernel     = "kernel"
	Filesystem = "filesystem"
)

// Region is a contiguous range of sectors on the image.
type Region struct {
	Name string
	// First sector of the region.
	Offset uint64
	// Length in sectors.
	Size uint64
}

// End returns the first sector after r.
func (r Region) End() uint64 { return r.Offset + r.Size }

func (r Region) ByteOffset() int64 { return int64(r.Offset) * mbr.SectorSize }

func (r Region) ByteSize() int64 { return int64(r.Size) * mbr.SectorSize }

type Layout struct {
	Stage2 Region
	Kernel Region
	// Filesystem is nil unless a filesystem region was requested.
	Filesystem *Region
}

// CeilSectors returns the number of sectors needed to hold n bytes.
func CeilSectors(n int64) uint64 {
	sectors := n / mbr.SectorSize
	if n%mbr.SectorSize > 0 {
		sectors++
	}
	return uint64(sectors)
}

// Compute packs stage2, kernel and (if fsSectors > 0) a filesystem region
// of fsSectors sectors after the boot sector.
func Compute(stage2Len, kernelLen int64, fsSectors uint64) Layout {
	stage2 := Region{
		Name:   Stage2,
		Offset: 1,
		Size:   CeilSectors(stage2Len),
	}
	kernel := Region{
		Name:   Kernel,
		Offset: stage2.End(),
		Size:   CeilSectors(kernelLen),
	}
	l := Layout{
		Stage2: stage2,
		Kernel: kernel,
	}
	if fsSectors > 0 {
		l.Filesystem = &Region{
			Name:   Filesystem,
			Offset: kernel.End(),
			Size:   fsSectors,
		}
	}
	return l
}

// Regions returns all regions in disk order.
func (l Layout) Regions() []Region {
	return append([]Region{l.Stage2}, l.Partitions()...)
}

// Partitions returns the regions that get a partition table entry: the
// kernel first, then the filesystem.
func (l Layout) Partitions() []Region {
	parts := []Region{l.Kernel}
	if l.Filesystem != nil {
		parts = append(parts, *l.Filesystem)
	}
	return parts
}

// TotalSectors returns the length of the image, boot sector included.
func (l Layout) TotalSectors() uint64 {
	regions := l.Regions()
	return regions[len(regions)-1].End()
}

type RangeError struct {
	Region string
	Field  string
	Value  uint64
	Max    uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %s %d does not fit its on-disk field (max %d)", e.Region, e.Field, e.Value, e.Max)
}

// Check verifies that every value fits the field it is written to: the
// stage2 sector count is a uint16, partition offsets and sizes are uint32.
func (l Layout) Check() error {
	if l.Stage2.Size > math.MaxUint16 {
		return &RangeError{Region: Stage2, Field: "size", Value: l.Stage2.Size, Max: math.MaxUint16}
	}
	for _, r := range l.Partitions() {
		if r.Offset > math.MaxUint32 {
			return &RangeError{Region: r.Name, Field: "offset", Value: r.Offset, Max: math.MaxUint32}
		}
		if r.Size > math.MaxUint32 {
			return &RangeError{Region: r.Name, Field: "size", Value: r.Size, Max: math.MaxUint32}
		}
	}
	return nil
}
