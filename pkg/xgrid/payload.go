package xgrid

import (
	"encoding/binary"
)

// PingReplySize is the payload size of a ping reply.
const PingReplySize = 6

// PingReply carries the firmware identity of the replying node.
type PingReply struct {
	Build uint32
	CRC   uint16
}

// EncodeTo writes the payload into b and returns the encoded slice.
func (r PingReply) EncodeTo(b []byte) []byte {
	b = b[:PingReplySize]
	binary.LittleEndian.PutUint32(b, r.Build)
	binary.LittleEndian.PutUint16(b[4:], r.CRC)
	return b
}

// DecodePingReply parses a ping reply payload.
func DecodePingReply(b []byte) (r PingReply, err error) {
	if len(b) < PingReplySize {
		return r, ErrShortPayload
	}
	r.Build = binary.LittleEndian.Uint32(b)
	r.CRC = binary.LittleEndian.Uint16(b[4:])
	return
}

// MaintCmd is the sub-command of a maintenance packet.
type MaintCmd byte

// Maintenance sub-commands.
const (
	CmdReset        MaintCmd = 0x00
	CmdStartUpdate  MaintCmd = 0x01
	CmdFinishUpdate MaintCmd = 0x02
	CmdAbortUpdate  MaintCmd = 0x03
)

// Magic numbers gating maintenance commands.
const (
	UpdateMagic uint32 = 0x0badf00d
	ResetMagic  uint32 = 0xfee1dead
)

// Maintenance payload sizes.
const (
	MaintenanceSize      = 5
	StartUpdateSize      = MaintenanceSize + 6
	maxMaintenancePacket = StartUpdateSize
)

// Maintenance is a maintenance command. CRC and Build are only
// meaningful for CmdStartUpdate.
type Maintenance struct {
	Cmd   MaintCmd
	Magic uint32
	CRC   uint16
	Build uint32
}

// StartUpdate creates a start-update command.
func StartUpdate(crc uint16, build uint32) Maintenance {
	return Maintenance{Cmd: CmdStartUpdate, Magic: UpdateMagic, CRC: crc, Build: build}
}

// ExpectedMagic returns the magic number the command must carry.
func (m Maintenance) ExpectedMagic() uint32 {
	if m.Cmd == CmdReset {
		return ResetMagic
	}
	return UpdateMagic
}

// Authentic indicates the command carries the right magic number.
func (m Maintenance) Authentic() bool {
	return m.Magic == m.ExpectedMagic()
}

// Size is the encoded payload size.
func (m Maintenance) Size() int {
	if m.Cmd == CmdStartUpdate {
		return StartUpdateSize
	}
	return MaintenanceSize
}

// EncodeTo writes the payload into b and returns the encoded slice.
func (m Maintenance) EncodeTo(b []byte) []byte {
	b = b[:m.Size()]
	b[0] = byte(m.Cmd)
	binary.LittleEndian.PutUint32(b[1:], m.Magic)
	if m.Cmd == CmdStartUpdate {
		binary.LittleEndian.PutUint16(b[5:], m.CRC)
		binary.LittleEndian.PutUint32(b[7:], m.Build)
	}
	return b
}

// Bytes returns the encoded payload.
func (m Maintenance) Bytes() []byte {
	return m.EncodeTo(make([]byte, maxMaintenancePacket))
}

// DecodeMaintenance parses a maintenance payload.
func DecodeMaintenance(b []byte) (m Maintenance, err error) {
	if len(b) < MaintenanceSize {
		return m, ErrShortPayload
	}
	m.Cmd = MaintCmd(b[0])
	m.Magic = binary.LittleEndian.Uint32(b[1:])
	if m.Cmd == CmdStartUpdate {
		if len(b) < StartUpdateSize {
			return m, ErrShortPayload
		}
		m.CRC = binary.LittleEndian.Uint16(b[5:])
		m.Build = binary.LittleEndian.Uint32(b[7:])
	}
	return
}

// FirmwareBlock is one flash page of an image. Offset is in pages.
type FirmwareBlock struct {
	Offset uint16
	Data   []byte
}

// BlockSize is the payload size of a firmware block for the page size.
func BlockSize(pageSize int) int {
	return 2 + pageSize
}

// EncodeTo writes the payload into b and returns the encoded slice.
func (fb FirmwareBlock) EncodeTo(b []byte) []byte {
	b = b[:2+len(fb.Data)]
	binary.LittleEndian.PutUint16(b, fb.Offset)
	copy(b[2:], fb.Data)
	return b
}

// DecodeFirmwareBlock parses a firmware block of exactly one page.
// Data references b.
func DecodeFirmwareBlock(b []byte, pageSize int) (fb FirmwareBlock, err error) {
	if len(b) != BlockSize(pageSize) {
		return fb, ErrShortPayload
	}
	fb.Offset = binary.LittleEndian.Uint16(b)
	fb.Data = b[2:]
	return
}
