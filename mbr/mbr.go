// Package mbr encodes the legacy master boot record written to sector 0 of
// a BIOS-bootable image: up to two LBA partition entries and the stage2
// sector count read by the second-stage loader.
package mbr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	SectorSize = 512

	// Stage2SectorsOffset is where the little-endian uint16 stage2 length
	// (in sectors) is stored. It lies in the boot code area, just before
	// the partition table.
	Stage2SectorsOffset = 0x1B0

	PartitionTableOffset = 0x1BE
	PartitionEntrySize   = 16

	// MaxPartitions is the number of table slots this package writes. The
	// remaining two slots keep whatever the boot sector blob contains.
	MaxPartitions = 2

	// StatusActive marks a partition as bootable. It is set on every
	// entry, the loader does not look at it.
	StatusActive = 0x80
)

var (
	ErrBootSectorTooLarge = errors.New("boot sector larger than one sector")
	ErrTooManyPartitions  = errors.New("too many partition entries")
)

// PartitionEntry is the 16-byte legacy partition table entry. CHS fields
// and the type byte are never populated by EncodeEntry.
type PartitionEntry struct {
	Status   uint8
	FirstCHS [3]byte
	Type     uint8
	LastCHS  [3]byte
	StartLBA uint32
	Sectors  uint32
}

// Bytes returns the on-disk representation of e.
func (e PartitionEntry) Bytes() [PartitionEntrySize]byte {
	buf := bytes.NewBuffer(make([]byte, 0, PartitionEntrySize))
	// buf.Write never fails
	binary.Write(buf, binary.LittleEndian, &e)
	var b [PartitionEntrySize]byte
	copy(b[:], buf.Bytes())
	return b
}

// IsZero reports whether the slot is unused.
func (e PartitionEntry) IsZero() bool {
	return e == PartitionEntry{}
}

// EncodeEntry returns an active entry covering sectors [start,
// start+sectors). The type byte stays 0.
func EncodeEntry(start, sectors uint32) [PartitionEntrySize]byte {
	return PartitionEntry{
		Status:   StatusActive,
		StartLBA: start,
		Sectors:  sectors,
	}.Bytes()
}

func DecodeEntry(b [PartitionEntrySize]byte) PartitionEntry {
	var e PartitionEntry
	// reading a fixed-size struct from a buffer of the same size never fails
	binary.Read(bytes.NewReader(b[:]), binary.LittleEndian, &e)
	return e
}

// Configure returns the final boot sector: boot verbatim (zero padded to a
// full sector), stage2Sectors at Stage2SectorsOffset and entries in the
// first len(entries) partition table slots.
func Configure(boot []byte, stage2Sectors uint16, entries ...[PartitionEntrySize]byte) ([SectorSize]byte, error) {
	var b [SectorSize]byte
	if len(boot) > SectorSize {
		return b, fmt.Errorf("%w: %d bytes", ErrBootSectorTooLarge, len(boot))
	}
	if len(entries) > MaxPartitions {
		return b, fmt.Errorf("%w: %d (max %d)", ErrTooManyPartitions, len(entries), MaxPartitions)
	}
	copy(b[:], boot)
	binary.LittleEndian.PutUint16(b[Stage2SectorsOffset:], stage2Sectors)
	for idx, e := range entries {
		copy(b[PartitionTableOffset+idx*PartitionEntrySize:], e[:])
	}
	return b, nil
}
