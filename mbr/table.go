package mbr

import (
	"encoding/binary"
	"io"
)

// ReadBootSector reads the first sector of an image.
func ReadBootSector(r io.Reader) ([SectorSize]byte, error) {
	var b [SectorSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return b, err
	}
	return b, nil
}

// PartitionEntries returns all four entries of the partition table in
// sector, including unused ones.
func PartitionEntries(sector [SectorSize]byte) []PartitionEntry {
	parts := make([]PartitionEntry, 4)
	for idx := range parts {
		var b [PartitionEntrySize]byte
		copy(b[:], sector[PartitionTableOffset+idx*PartitionEntrySize:])
		parts[idx] = DecodeEntry(b)
	}
	return parts
}

// Stage2Sectors returns the stage2 length stored in sector.
func Stage2Sectors(sector [SectorSize]byte) uint16 {
	return binary.LittleEndian.Uint16(sector[Stage2SectorsOffset:])
}

// ReadPartitionEntries reads the boot sector from r and returns its four
// partition entries.
func ReadPartitionEntries(r io.Reader) ([]PartitionEntry, error) {
	sector, err := ReadBootSector(r)
	if err != nil {
		return nil, err
	}
	return PartitionEntries(sector), nil
}
