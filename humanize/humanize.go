package humanize

import "fmt"

func Bytes(bytes uint64) string {
	switch {
	case bytes >= (1024 * 1024):
		return fmt.Sprintf("%.f MiB", float64(bytes)/1024/1024)
	case bytes >= 1024:
		return fmt.Sprintf("%.f KiB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// Sectors formats a count of 512-byte sectors, e.g. "2048 sectors (1 MiB)".
func Sectors(sectors uint64) string {
	unit := "sectors"
	if sectors == 1 {
		unit = "sector"
	}
	return fmt.Sprintf("%d %s (%s)", sectors, unit, Bytes(sectors*512))
}
