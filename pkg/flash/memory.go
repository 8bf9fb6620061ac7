// Package flash provides firmware image storage for the update protocol.
package flash

import (
	"sync"

	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

// Erased is the value of unwritten flash bytes.
const Erased byte = 0xff

// Memory keeps both regions in memory, for simulation and tests.
type Memory struct {
	// OnReset is called by Reset and InstallAndReset.
	OnReset func()

	lock     sync.Mutex
	running  []byte
	staging  []byte
	installs int
	resets   int
}

// NewMemory creates a Memory running image. The staging region has the
// same size and starts erased.
func NewMemory(image []byte) *Memory {
	m := &Memory{
		running: append([]byte(nil), image...),
		staging: make([]byte, len(image)),
	}
	erase(m.staging)
	return m
}

func erase(b []byte) {
	for i := range b {
		b[i] = Erased
	}
}

// Size implements xgrid.FlashImage.
func (m *Memory) Size() int {
	return len(m.running)
}

// ImageByte implements xgrid.FlashImage.
func (m *Memory) ImageByte(addr int) byte {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.running[addr]
}

// WritePage implements xgrid.FlashImage. The part of a page beyond the
// image is discarded.
func (m *Memory) WritePage(addr int, data []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if addr < 0 || addr >= len(m.staging) {
		return xgrid.ErrOutOfImage
	}
	copy(m.staging[addr:], data)
	return nil
}

// CRC16 implements xgrid.FlashImage.
func (m *Memory) CRC16(region xgrid.Region) uint16 {
	m.lock.Lock()
	defer m.lock.Unlock()
	if region == xgrid.RegionStaging {
		return xgrid.CRC16(m.staging)
	}
	return xgrid.CRC16(m.running)
}

// InstallAndReset implements xgrid.FlashImage.
func (m *Memory) InstallAndReset() error {
	m.lock.Lock()
	copy(m.running, m.staging)
	erase(m.staging)
	m.installs++
	m.lock.Unlock()
	m.Reset()
	return nil
}

// Reset implements xgrid.FlashImage.
func (m *Memory) Reset() {
	m.lock.Lock()
	m.resets++
	fn := m.OnReset
	m.lock.Unlock()
	if fn != nil {
		fn()
	}
}

// Image returns a copy of a region.
func (m *Memory) Image(region xgrid.Region) []byte {
	m.lock.Lock()
	defer m.lock.Unlock()
	if region == xgrid.RegionStaging {
		return append([]byte(nil), m.staging...)
	}
	return append([]byte(nil), m.running...)
}

// Installs returns the number of installs.
func (m *Memory) Installs() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.installs
}

// Resets returns the number of resets, installs included.
func (m *Memory) Resets() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.resets
}
