package xgrid

import (
	"github.com/sigurn/crc16"
)

// CRC-16/ARC, the same checksum avr-libc computes with _crc16_update.
var crcTable = crc16.MakeTable(crc16.CRC16_ARC)

// CRC16 computes the checksum used for node ids and firmware images.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// CRC16Digest computes CRC16 incrementally.
type CRC16Digest struct {
	crc uint16
}

// NewCRC16Digest creates a digest.
func NewCRC16Digest() *CRC16Digest {
	return &CRC16Digest{crc: crc16.Init(crcTable)}
}

// Write implements io.Writer.
func (d *CRC16Digest) Write(p []byte) (int, error) {
	d.crc = crc16.Update(d.crc, p, crcTable)
	return len(p), nil
}

// Sum16 returns the checksum of everything written so far.
func (d *CRC16Digest) Sum16() uint16 {
	return crc16.Complete(d.crc, crcTable)
}
