package xgrid

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Identifier starts every frame on the wire.
const Identifier byte = 0x5A

// Frame layout.
const (
	// PrefixSize is identifier(1) + size(2).
	PrefixSize = 3
	// ShortHeaderSize is source_id(2) + type + seq + flags + radius.
	ShortHeaderSize = 6
	// HeaderSize is the full header on the wire.
	HeaderSize = PrefixSize + ShortHeaderSize
	// MaxPayloadSize is the largest payload the size field can declare.
	MaxPayloadSize = 0xffff - ShortHeaderSize
)

const (
	offSize   = 1
	offSource = 3
	offType   = 5
	offSeq    = 6
	offFlags  = 7
	offRadius = 8
)

// PacketType is the type code of a packet.
type PacketType byte

// Packet types handled by the engine itself.
const (
	TypeDebug         PacketType = 0xff
	TypePingReply     PacketType = 0xfe
	TypePingRequest   PacketType = 0xfd
	TypeMaintenance   PacketType = 0xfc
	TypeFirmwareBlock PacketType = 0xfb
	TypeFlushDedup    PacketType = 0xfa
)

// IsNetwork indicates the type belongs to the reserved network range
// (high nibble 0xf). Only these are exchanged during a firmware pull.
func (t PacketType) IsNetwork() bool {
	return t&0xf0 == 0xf0
}

// FlagTrace asks relays to append the receiving link to the payload.
const FlagTrace byte = 0x01

// LinkID indexes a link of an Engine.
type LinkID int8

// NoLink marks a locally originated packet.
const NoLink LinkID = -1

// MaxLinks is the number of links a LinkMask can address.
const MaxLinks = 16

// LinkMask is a set of links.
type LinkMask uint16

// AllLinks addresses every link.
const AllLinks LinkMask = 0xffff

// MaskOf builds a mask from link ids. NoLink is ignored.
func MaskOf(ids ...LinkID) (m LinkMask) {
	for _, id := range ids {
		if id >= 0 && id < MaxLinks {
			m |= 1 << uint(id)
		}
	}
	return
}

// Has checks if the link is in the mask.
func (m LinkMask) Has(id LinkID) bool {
	return id >= 0 && id < MaxLinks && m&(1<<uint(id)) != 0
}

// Without removes a link from the mask.
func (m LinkMask) Without(id LinkID) LinkMask {
	return m &^ MaskOf(id)
}

// PacketID identifies a packet for duplicate detection.
type PacketID struct {
	Source uint16
	Type   PacketType
	Seq    uint8
}

// Packet is the logical view of a frame.
type Packet struct {
	SourceID uint16
	Type     PacketType
	Seq      uint8
	Flags    byte
	Radius   uint8
	Payload  []byte

	// RxLink is the link the packet arrived on, NoLink if locally originated.
	RxLink LinkID
}

// ID returns the identity used for duplicate detection.
func (p *Packet) ID() PacketID {
	return PacketID{Source: p.SourceID, Type: p.Type, Seq: p.Seq}
}

// IsLocal indicates the packet was originated by this node.
func (p *Packet) IsLocal() bool {
	return p.RxLink < 0
}

// FrameSize is the number of bytes of the encoded frame.
func (p *Packet) FrameSize() int {
	return HeaderSize + len(p.Payload)
}

// EncodeTo writes the frame into b without allocation.
func (p *Packet) EncodeTo(b []byte) (int, error) {
	if len(p.Payload) > MaxPayloadSize {
		return 0, ErrFrameSize
	}
	n := p.FrameSize()
	if len(b) < n {
		return 0, io.ErrShortBuffer
	}
	b[0] = Identifier
	binary.LittleEndian.PutUint16(b[offSize:], uint16(ShortHeaderSize+len(p.Payload)))
	binary.LittleEndian.PutUint16(b[offSource:], p.SourceID)
	b[offType], b[offSeq], b[offFlags], b[offRadius] = byte(p.Type), p.Seq, p.Flags, p.Radius
	copy(b[HeaderSize:], p.Payload)
	return n, nil
}

// Bytes returns encoded bytes for sending.
func (p *Packet) Bytes() []byte {
	b := make([]byte, p.FrameSize())
	if _, err := p.EncodeTo(b); err != nil {
		return nil
	}
	return b
}

// WriteTo writes encoded bytes.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	b := p.Bytes()
	if b == nil {
		return 0, ErrFrameSize
	}
	n, err := w.Write(b)
	return int64(n), err
}

// String implements fmt.Stringer.
func (p *Packet) String() string {
	return fmt.Sprintf("src=%04x type=%02x seq=%d flags=%02x radius=%d len=%d rx=%d",
		p.SourceID, byte(p.Type), p.Seq, p.Flags, p.Radius, len(p.Payload), p.RxLink)
}

// DecodeFrame parses a complete frame into pkt. The payload references
// frame, nothing is copied. RxLink is left untouched.
func DecodeFrame(frame []byte, pkt *Packet) error {
	if len(frame) < HeaderSize {
		return &FrameError{Offset: len(frame), Err: ErrShortFrame}
	}
	if frame[0] != Identifier {
		return &FrameError{Offset: 0, Err: ErrFrameIdentifier}
	}
	size := int(binary.LittleEndian.Uint16(frame[offSize:]))
	if size < ShortHeaderSize || PrefixSize+size != len(frame) {
		return &FrameError{Offset: offSize, Err: ErrFrameSize}
	}
	decodeHeader(frame, pkt)
	pkt.Payload = frame[HeaderSize:len(frame):len(frame)]
	return nil
}

// Decode parses a complete frame.
func Decode(frame []byte) (pkt Packet, err error) {
	pkt.RxLink = NoLink
	err = DecodeFrame(frame, &pkt)
	return
}

// FindFrame locates the first complete frame in buf. skip is the number of
// leading bytes which can never be part of a frame and should be discarded.
// If no complete frame is available yet, frame is nil.
func FindFrame(buf []byte) (frame []byte, skip int) {
	for skip < len(buf) {
		if buf[skip] != Identifier {
			skip++
			continue
		}
		rest := buf[skip:]
		if len(rest) < PrefixSize {
			return nil, skip
		}
		size := int(binary.LittleEndian.Uint16(rest[offSize:]))
		if size < ShortHeaderSize {
			skip++
			continue
		}
		if len(rest) < PrefixSize+size {
			return nil, skip
		}
		return rest[:PrefixSize+size], skip
	}
	return nil, skip
}

func decodeHeader(b []byte, pkt *Packet) {
	pkt.SourceID = binary.LittleEndian.Uint16(b[offSource:])
	pkt.Type = PacketType(b[offType])
	pkt.Seq, pkt.Flags, pkt.Radius = b[offSeq], b[offFlags], b[offRadius]
}

func frameSizeField(b []byte) int {
	return int(binary.LittleEndian.Uint16(b[offSize:]))
}

func putFrameSizeField(b []byte, size int) {
	binary.LittleEndian.PutUint16(b[offSize:], uint16(size))
}
