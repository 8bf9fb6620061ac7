package xgrid

// Region selects a flash image area.
type Region int

// Flash regions.
const (
	// RegionRunning is the image currently executing.
	RegionRunning Region = iota
	// RegionStaging receives an image being pulled.
	RegionStaging
)

// FlashImage is the bootloader capability used by firmware updates.
type FlashImage interface {
	// Size is the image size in bytes, same for both regions.
	Size() int
	// ImageByte reads the running image, used when pushing.
	ImageByte(addr int) byte
	// WritePage writes one page into the staging region.
	WritePage(addr int, data []byte) error
	// CRC16 computes the checksum of a region.
	CRC16(region Region) uint16
	// InstallAndReset swaps the staged image in and schedules a reset.
	InstallAndReset() error
	// Reset restarts the node.
	Reset()
}
