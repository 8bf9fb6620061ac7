package link

// Buffered is a ByteLink over a receive and a transmit Ring. The engine
// reads Rx and writes Tx, a transport fills Rx and drains Tx.
type Buffered struct {
	Rx *Ring
	Tx *Ring
}

// NewBuffered creates a Buffered with ring capacities.
func NewBuffered(rxSize, txSize int) *Buffered {
	return &Buffered{Rx: NewRing(rxSize), Tx: NewRing(txSize)}
}

// Available implements xgrid.ByteLink.
func (b *Buffered) Available() int {
	return b.Rx.Available()
}

// Peek implements xgrid.ByteLink.
func (b *Buffered) Peek(offset int) byte {
	return b.Rx.Peek(offset)
}

// Read implements xgrid.ByteLink.
func (b *Buffered) Read(p []byte) int {
	return b.Rx.Read(p)
}

// WriteFree implements xgrid.ByteLink.
func (b *Buffered) WriteFree() int {
	return b.Tx.Free()
}

// Write implements xgrid.ByteLink.
func (b *Buffered) Write(p []byte) int {
	return b.Tx.Write(p)
}
