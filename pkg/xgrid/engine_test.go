package xgrid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const typeApp = PacketType(0x10)

type testLink struct {
	rx []byte
	tx []byte
	// free is the write space, negative for unlimited
	free int
}

func (l *testLink) Available() int     { return len(l.rx) }
func (l *testLink) Peek(off int) byte  { return l.rx[off] }
func (l *testLink) feed(frames ...[]byte) {
	for _, f := range frames {
		l.rx = append(l.rx, f...)
	}
}

func (l *testLink) Read(p []byte) int {
	n := copy(p, l.rx)
	l.rx = l.rx[n:]
	return n
}

func (l *testLink) WriteFree() int {
	if l.free < 0 {
		return 1 << 16
	}
	return l.free
}

func (l *testLink) Write(p []byte) int {
	n := len(p)
	if l.free >= 0 {
		if n > l.free {
			n = l.free
		}
		l.free -= n
	}
	l.tx = append(l.tx, p[:n]...)
	return n
}

// packets decodes everything written to the link.
func (l *testLink) packets(t *testing.T) (pkts []Packet) {
	buf := l.tx
	for {
		frame, skip := FindFrame(buf)
		require.Zero(t, skip)
		if frame == nil {
			require.Empty(t, buf)
			return
		}
		pkt, err := Decode(append([]byte(nil), frame...))
		require.NoError(t, err)
		pkts = append(pkts, pkt)
		buf = buf[len(frame):]
	}
}

func (l *testLink) packetsOf(t *testing.T, typ PacketType) (pkts []Packet) {
	for _, pkt := range l.packets(t) {
		if pkt.Type == typ {
			pkts = append(pkts, pkt)
		}
	}
	return
}

type testFlash struct {
	image    []byte
	staging  []byte
	installs int
	resets   int
}

func newTestFlash(size int) *testFlash {
	f := &testFlash{image: make([]byte, size), staging: make([]byte, size)}
	for i := range f.image {
		f.image[i] = byte(i)
	}
	return f
}

func (f *testFlash) Size() int               { return len(f.image) }
func (f *testFlash) ImageByte(addr int) byte { return f.image[addr] }
func (f *testFlash) InstallAndReset() error  { f.installs++; return nil }
func (f *testFlash) Reset()                  { f.resets++ }

func (f *testFlash) WritePage(addr int, data []byte) error {
	copy(f.staging[addr:], data)
	return nil
}

func (f *testFlash) CRC16(region Region) uint16 {
	if region == RegionStaging {
		return CRC16(f.staging)
	}
	return CRC16(f.image)
}

const testPageSize = 16

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ID = 0x0101
	cfg.Build = 3
	cfg.PageSize = testPageSize
	cfg.Timing = Timing{
		Initial:       1 << 20,
		PostFlush:     1,
		PingWait:      1,
		CheckInterval: 1 << 20,
		BlockInterval: 1,
		PostFinish:    1,
		PostInstall:   1,
		PullTimeout:   10,
	}
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, numLinks int) (*Engine, []*testLink, *testFlash) {
	fl := newTestFlash(4 * cfg.PageSize)
	e := New(cfg, fl)
	links := make([]*testLink, numLinks)
	for n := range links {
		links[n] = &testLink{free: -1}
		id, err := e.AddLink(links[n])
		require.NoError(t, err)
		require.Equal(t, LinkID(n), id)
	}
	return e, links, fl
}

// peer builds frames of a remote node with increasing seq.
type peer struct {
	id  uint16
	seq uint8
}

func (p *peer) frame(typ PacketType, radius uint8, payload ...byte) []byte {
	pkt := Packet{SourceID: p.id, Type: typ, Seq: p.seq, Radius: radius, Payload: payload}
	p.seq++
	return pkt.Bytes()
}

type recorder struct {
	pkts []Packet
}

func (r *recorder) HandlePacket(_ Sender, pkt *Packet) {
	p := *pkt
	p.Payload = append([]byte(nil), pkt.Payload...)
	r.pkts = append(r.pkts, p)
}

func TestEngineRelay(t *testing.T) {
	e, links, _ := newTestEngine(t, testConfig(), 3)
	rec := &recorder{}
	e.SetHandler(rec)
	src := &peer{id: 0x200}
	links[0].feed(src.frame(typeApp, 2, 0xaa))
	e.Tick()

	require.Len(t, rec.pkts, 1)
	require.Equal(t, LinkID(0), rec.pkts[0].RxLink)
	require.Equal(t, uint8(2), rec.pkts[0].Radius)
	require.Empty(t, links[0].tx)
	for _, l := range links[1:] {
		pkts := l.packets(t)
		require.Len(t, pkts, 1)
		require.Equal(t, uint16(0x200), pkts[0].SourceID)
		require.Equal(t, uint8(1), pkts[0].Radius)
		require.Equal(t, []byte{0xaa}, pkts[0].Payload)
	}
	stats := e.Stats()
	require.Equal(t, uint64(1), stats.RxFrames)
	require.Equal(t, uint64(1), stats.Relayed)
	require.Equal(t, uint64(1), stats.TxFrames)
	require.Zero(t, stats.SlotsInUse)
}

func TestEngineRadiusOneNotRelayed(t *testing.T) {
	e, links, _ := newTestEngine(t, testConfig(), 2)
	links[0].feed((&peer{id: 0x200}).frame(typeApp, 1))
	e.Tick()
	require.Empty(t, links[1].tx)
	require.Equal(t, uint64(1), e.Stats().Unhandled)
}

func TestEngineHandlerSends(t *testing.T) {
	e, links, _ := newTestEngine(t, testConfig(), 2)
	var got []LinkID
	e.SetHandler(HandlePacketFunc(func(s Sender, pkt *Packet) {
		got = append(got, pkt.RxLink)
		require.NoError(t, s.SendTo(&Packet{Type: typeApp + 1, Radius: 1, Payload: pkt.Payload}, MaskOf(pkt.RxLink)))
	}))
	links[1].feed((&peer{id: 0x200}).frame(typeApp, 1, 5, 6))
	e.Tick()
	require.Equal(t, []LinkID{1}, got)
	require.Empty(t, links[0].tx)
	pkts := links[1].packets(t)
	require.Len(t, pkts, 1)
	require.Equal(t, e.ID(), pkts[0].SourceID)
	require.Equal(t, typeApp+1, pkts[0].Type)
	require.Equal(t, []byte{5, 6}, pkts[0].Payload)
}

func TestEngineDuplicates(t *testing.T) {
	e, links, _ := newTestEngine(t, testConfig(), 2)
	rec := &recorder{}
	e.SetHandler(rec)
	src := &peer{id: 0x200}
	f := src.frame(typeApp, 1, 1, 2, 3)
	links[0].feed(f, f, src.frame(typeApp, 1))
	links[1].feed(f)
	e.Tick()
	require.Len(t, rec.pkts, 2)
	require.Equal(t, uint8(0), rec.pkts[0].Seq)
	require.Equal(t, uint8(1), rec.pkts[1].Seq)
	require.Equal(t, uint64(2), e.Stats().Duplicates)
	require.Zero(t, e.Stats().SlotsInUse)
}

func TestEngineOwnEchoIgnored(t *testing.T) {
	e, links, _ := newTestEngine(t, testConfig(), 2)
	rec := &recorder{}
	e.SetHandler(rec)
	require.NoError(t, e.Send(&Packet{Type: typeApp, Radius: 3}))
	e.Tick()
	echo := links[0].tx
	require.NotEmpty(t, echo)
	require.Equal(t, echo, links[1].tx)
	links[1].feed(echo)
	e.Tick()
	require.Empty(t, rec.pkts)
	require.Equal(t, uint64(1), e.Stats().Duplicates)
}

func TestEnginePartialReceive(t *testing.T) {
	e, links, _ := newTestEngine(t, testConfig(), 1)
	rec := &recorder{}
	e.SetHandler(rec)
	f := (&peer{id: 0x200}).frame(typeApp, 1, 1, 2, 3, 4)
	for i, b := range f {
		links[0].feed([]byte{b})
		e.Tick()
		if i < len(f)-1 {
			require.Empty(t, rec.pkts)
		}
	}
	require.Len(t, rec.pkts, 1)
	require.Equal(t, []byte{1, 2, 3, 4}, rec.pkts[0].Payload)
}

func TestEngineResync(t *testing.T) {
	e, links, _ := newTestEngine(t, testConfig(), 1)
	rec := &recorder{}
	e.SetHandler(rec)
	src := &peer{id: 0x200}
	links[0].feed([]byte{1, 2},
		[]byte{Identifier, 2, 0},
		src.frame(typeApp, 1, 7))
	e.Tick()
	require.Len(t, rec.pkts, 1)
	require.Equal(t, []byte{7}, rec.pkts[0].Payload)
	stats := e.Stats()
	require.Equal(t, uint64(1), stats.Malformed)
	// 1, 2 and the size field
	require.Equal(t, uint64(4), stats.Resynced)
}

func TestEngineOversizeDropped(t *testing.T) {
	e, links, _ := newTestEngine(t, testConfig(), 2)
	rec := &recorder{}
	e.SetHandler(rec)
	inner := (&peer{id: 0x999}).frame(typeApp, 2, 0xee)
	size := 60
	require.True(t, PrefixSize+size > e.pool.MaxCapacity())
	outer := make([]byte, PrefixSize+size)
	outer[0] = Identifier
	outer[1], outer[2] = byte(size), byte(size>>8)
	copy(outer[PrefixSize+10:], inner)

	src := &peer{id: 0x200}
	links[0].feed(outer, src.frame(typeApp, 2, 7))
	// the oversize frame may arrive in pieces
	rest := links[0].rx[20:]
	links[0].rx = links[0].rx[:20]
	e.Tick()
	links[0].rx = append(links[0].rx, rest...)
	e.Tick()
	e.Tick()

	require.Len(t, rec.pkts, 1)
	require.Equal(t, uint16(0x200), rec.pkts[0].SourceID)
	require.Equal(t, []byte{7}, rec.pkts[0].Payload)
	stats := e.Stats()
	require.Equal(t, uint64(1), stats.Malformed)
	require.Zero(t, stats.Resynced)
	relayed := links[1].packets(t)
	require.Len(t, relayed, 1)
	require.Equal(t, uint16(0x200), relayed[0].SourceID)
}

func TestEngineTransmitOrder(t *testing.T) {
	cfg := testConfig()
	cfg.SmallSlotSize = 24
	e, links, _ := newTestEngine(t, cfg, 1)
	links[0].free = 0
	sizes := []int{1, 20, 1}
	for _, n := range sizes {
		require.NoError(t, e.Send(&Packet{Type: typeApp, Radius: 1, Payload: make([]byte, n)}))
		e.Tick()
	}
	require.Empty(t, links[0].tx)
	links[0].free = -1
	e.Tick()
	pkts := links[0].packetsOf(t, typeApp)
	require.Len(t, pkts, len(sizes))
	for n, pkt := range pkts {
		require.Equal(t, uint8(n), pkt.Seq)
		require.Len(t, pkt.Payload, sizes[n])
	}
}

func TestEngineTransmitThrottled(t *testing.T) {
	e, links, _ := newTestEngine(t, testConfig(), 2)
	links[0].free = 4
	require.NoError(t, e.Send(&Packet{Type: typeApp, Radius: 1, Payload: make([]byte, 7)}))
	e.Tick()
	require.Len(t, links[0].tx, 4)
	require.Len(t, links[1].tx, 4)
	for i := 0; i < 3; i++ {
		links[0].free = 4
		e.Tick()
	}
	require.Len(t, links[0].tx, 16)
	require.Equal(t, links[0].tx, links[1].tx)
	require.Equal(t, uint64(1), e.Stats().TxFrames)
	require.Zero(t, e.Stats().SlotsInUse)
}

func TestEngineTransmitSerialized(t *testing.T) {
	e, links, _ := newTestEngine(t, testConfig(), 1)
	links[0].free = 0
	require.NoError(t, e.Send(&Packet{Type: typeApp, Radius: 1, Payload: []byte{1, 1, 1}}))
	require.NoError(t, e.Send(&Packet{Type: typeApp, Radius: 1, Payload: []byte{2, 2}}))
	for i := 0; i < 10; i++ {
		links[0].free = 3
		e.Tick()
	}
	pkts := links[0].packets(t)
	require.Len(t, pkts, 2)
	require.Equal(t, []byte{1, 1, 1}, pkts[0].Payload)
	require.Equal(t, []byte{2, 2}, pkts[1].Payload)
	require.Equal(t, uint8(0), pkts[0].Seq)
	require.Equal(t, uint8(1), pkts[1].Seq)
}

func TestEnginePoolExhausted(t *testing.T) {
	cfg := testConfig()
	e, links, _ := newTestEngine(t, cfg, 1)
	rec := &recorder{}
	e.SetHandler(rec)
	links[0].free = 0
	for i := 0; i < cfg.SmallSlots+cfg.LargeSlots; i++ {
		require.NoError(t, e.Send(&Packet{Type: typeApp, Radius: 1}))
	}
	require.Equal(t, ErrPoolExhausted, e.Send(&Packet{Type: typeApp, Radius: 1}))
	require.Equal(t, uint64(1), e.Stats().SendFailures)

	// receiving stalls without losing bytes
	f := (&peer{id: 0x200}).frame(typeApp, 1, 9)
	links[0].feed(f)
	e.Tick()
	e.Tick()
	require.Empty(t, rec.pkts)
	require.Len(t, links[0].rx, len(f))
	require.NotZero(t, e.Stats().AllocStalls)

	links[0].free = -1
	e.Tick()
	e.Tick()
	require.Len(t, rec.pkts, 1)
	require.Len(t, links[0].packets(t), cfg.SmallSlots+cfg.LargeSlots)
}

func TestEngineFrameTooLarge(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(), 1)
	err := e.Send(&Packet{Type: typeApp, Payload: make([]byte, 200)})
	require.Equal(t, ErrFrameSize, err)
}

func TestEngineTrace(t *testing.T) {
	cfg := testConfig()
	e, links, _ := newTestEngine(t, cfg, 2)
	src := &peer{id: 0x200, seq: 2}
	f := Packet{SourceID: 0x200, Type: typeApp, Flags: FlagTrace, Radius: 2, Payload: []byte{1}}
	links[1].feed(f.Bytes())
	// exactly fills a small slot, no room to annotate
	f.Seq, f.Payload = 1, make([]byte, cfg.SmallSlotSize-HeaderSize)
	links[1].feed(f.Bytes())
	links[1].feed(src.frame(typeApp, 2, 3))
	e.Tick()
	pkts := links[0].packets(t)
	require.Len(t, pkts, 3)
	require.Equal(t, []byte{1, 1}, pkts[0].Payload)
	require.Len(t, pkts[1].Payload, cfg.SmallSlotSize-HeaderSize)
	require.Equal(t, []byte{3}, pkts[2].Payload)
}

func TestEnginePing(t *testing.T) {
	e, links, fl := newTestEngine(t, testConfig(), 2)
	src := &peer{id: 0x200}
	links[1].feed(src.frame(TypePingRequest, 1))
	links[0].feed(src.frame(TypePingReply, 1, PingReply{Build: 9, CRC: 0x4242}.EncodeTo(make([]byte, PingReplySize))...))
	e.Tick()

	require.Empty(t, links[0].tx)
	replies := links[1].packets(t)
	require.Len(t, replies, 1)
	require.Equal(t, TypePingReply, replies[0].Type)
	require.Equal(t, uint8(1), replies[0].Radius)
	reply, err := DecodePingReply(replies[0].Payload)
	require.NoError(t, err)
	require.Equal(t, PingReply{Build: 3, CRC: CRC16(fl.image)}, reply)

	require.Equal(t, []Neighbor{{Link: 0, Build: 9, CRC: 0x4242}, {Link: 1}}, e.Neighbors())
}

func TestEngineFlushDedup(t *testing.T) {
	e, links, _ := newTestEngine(t, testConfig(), 1)
	rec := &recorder{}
	e.SetHandler(rec)
	src := &peer{id: 0x200}
	f := src.frame(typeApp, 1)
	flush := src.frame(TypeFlushDedup, 1)
	links[0].feed(f, f, flush, flush, f)
	e.Tick()
	require.Len(t, rec.pkts, 2)
	require.Equal(t, uint64(1), e.Stats().Duplicates)
}

func TestEngineTooManyLinks(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(), MaxLinks)
	_, err := e.AddLink(&testLink{})
	require.Equal(t, ErrTooManyLinks, err)
	require.Equal(t, AllLinks, e.Links())
}
