package xgrid

import (
	"github.com/golang/glog"
)

// ByteLink is a non-blocking byte stream to one neighbor.
type ByteLink interface {
	// Available is the number of bytes ready to read.
	Available() int
	// Peek returns a byte at offset without consuming it,
	// offset must be less than Available.
	Peek(offset int) byte
	// Read consumes up to len(p) bytes.
	Read(p []byte) int
	// WriteFree is the number of bytes Write accepts right now.
	WriteFree() int
	// Write queues up to len(p) bytes.
	Write(p []byte) int
}

// Neighbor is what's been learned about the node behind a link.
type Neighbor struct {
	Link  LinkID
	Build uint32
	CRC   uint16
}

type link struct {
	id     LinkID
	stream ByteLink

	rxSlot SlotID
	txSlot SlotID
	// dropCount is the number of bytes to discard for flushing the
	// rest of a rejected frame.
	dropCount int

	build uint32
	crc   uint16
}

type rxStep int

const (
	rxWait rxStep = iota
	rxNext
)

type verdict int

const (
	verdictAccept verdict = iota
	verdictDuplicate
	verdictFiltered
)

// serviceRx consumes whatever the link has, possibly several frames.
func (e *Engine) serviceRx(l *link) {
	for e.rxStep(l) == rxNext {
	}
}

func (e *Engine) rxStep(l *link) rxStep {
	if l.dropCount > 0 {
		l.dropCount -= e.drain(l.stream, l.dropCount)
		if l.dropCount > 0 {
			return rxWait
		}
	}
	if l.stream.Available() == 0 {
		return rxWait
	}
	if l.rxSlot == NoSlot {
		return e.rxStart(l)
	}
	return e.rxFill(l)
}

func (e *Engine) rxStart(l *link) rxStep {
	s := l.stream
	for s.Available() > 0 && s.Peek(0) != Identifier {
		if e.drain(s, 1) == 0 {
			return rxWait
		}
		e.stats.Resynced++
	}
	if s.Available() < PrefixSize {
		return rxWait
	}
	size := int(s.Peek(1)) | int(s.Peek(2))<<8
	n := PrefixSize + size
	if size < ShortHeaderSize {
		// not a frame, treat the identifier as garbage
		e.stats.Malformed++
		if e.drain(s, 1) == 0 {
			return rxWait
		}
		return rxNext
	}
	if n > e.pool.MaxCapacity() {
		// can never be buffered, the whole frame is discarded so its
		// payload isn't parsed as frames
		e.stats.Malformed++
		glog.V(2).Infof("link %d: drop frame of size %d", l.id, size)
		l.dropCount = n
		return rxNext
	}
	id, ok := e.pool.Allocate(n, e.pool.ClassFor(n), SlotRx)
	if !ok {
		e.stats.AllocStalls++
		return rxWait
	}
	e.pool.slot(id).size = n
	l.rxSlot = id
	return rxNext
}

func (e *Engine) rxFill(l *link) rxStep {
	sl := e.pool.slot(l.rxSlot)
	if sl.ptr < HeaderSize {
		sl.ptr += l.stream.Read(sl.buf[sl.ptr:HeaderSize])
		if sl.ptr < HeaderSize {
			return rxWait
		}
	}
	if !sl.accepted {
		var hdr Packet
		decodeHeader(sl.buf, &hdr)
		hdr.RxLink = l.id
		switch e.accept(&hdr) {
		case verdictAccept:
			sl.accepted = true
		case verdictDuplicate:
			e.stats.Duplicates++
			e.reject(l, sl)
			return rxNext
		default:
			e.stats.Filtered++
			e.reject(l, sl)
			return rxNext
		}
	}
	if sl.ptr < sl.size {
		sl.ptr += l.stream.Read(sl.buf[sl.ptr:sl.size])
		if sl.ptr < sl.size {
			return rxWait
		}
	}
	id := l.rxSlot
	l.rxSlot = NoSlot
	e.complete(l, id)
	return rxNext
}

func (e *Engine) reject(l *link, sl *slot) {
	l.dropCount = sl.size - sl.ptr
	e.pool.Release(l.rxSlot)
	l.rxSlot = NoSlot
}

// accept decides whether a received header is processed.
func (e *Engine) accept(hdr *Packet) verdict {
	u := &e.update
	switch {
	case hdr.Type == TypeFlushDedup:
		return verdictAccept
	case hdr.Type == TypeFirmwareBlock:
		// blocks of a large image reuse seq numbers, never deduplicate
		if u.state == StateFwRx && hdr.RxLink == u.source {
			return verdictAccept
		}
		return verdictFiltered
	case u.state == StateFwRx && !hdr.Type.IsNetwork():
		return verdictFiltered
	case !e.dedup.CheckAndRecord(hdr.ID()):
		return verdictDuplicate
	}
	return verdictAccept
}

// complete handles a fully received frame.
func (e *Engine) complete(l *link, id SlotID) {
	sl := e.pool.slot(id)
	pkt := &e.rxPacket
	if err := DecodeFrame(sl.buf[:sl.size], pkt); err != nil {
		e.stats.Malformed++
		e.pool.Release(id)
		return
	}
	pkt.RxLink = l.id
	e.stats.RxFrames++
	if e.tap != nil {
		e.tap(pkt)
	}
	relayed := e.relay(pkt, id)
	e.dispatch(pkt)
	// the payload references the slot until dispatched
	if !relayed {
		e.pool.Release(id)
	}
	*pkt = Packet{}
}

// drain discards up to n bytes and returns the count discarded.
func (e *Engine) drain(s ByteLink, n int) (count int) {
	for count < n {
		buf := e.discard
		if rest := n - count; rest < len(buf) {
			buf = buf[:rest]
		}
		r := s.Read(buf)
		if r <= 0 {
			break
		}
		count += r
	}
	return
}
