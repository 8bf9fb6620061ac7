package xgrid

// SlotID indexes a slot of a Pool.
type SlotID int

// NoSlot means no slot.
const NoSlot SlotID = -1

// SlotClass selects small or large slots.
type SlotClass int

// Slot classes.
const (
	ClassSmall SlotClass = iota
	ClassLarge
)

// SlotUsage is the usage state of a slot.
type SlotUsage int

// Slot usages. A slot is in exactly one of them.
const (
	SlotFree SlotUsage = iota
	SlotRx
	SlotTx
)

func (u SlotUsage) String() string {
	switch u {
	case SlotFree:
		return "free"
	case SlotRx:
		return "rx"
	case SlotTx:
		return "tx"
	}
	return "invalid"
}

type slot struct {
	buf   []byte
	class SlotClass
	usage SlotUsage

	// ptr is the fill cursor while receiving and the drain cursor
	// while transmitting, size is the frame length.
	ptr  int
	size int

	// accepted is set once the header passed duplicate checks.
	accepted bool
	// mask holds links still owed the bytes of a Tx slot.
	mask LinkMask
}

// Pool is a fixed set of packet buffers. Capacities are decided at
// construction and never change.
type Pool struct {
	slots    []slot
	smallCap int
	maxCap   int
	// txQueue lists Tx slots, oldest first.
	txQueue []SlotID
}

// NewPool creates a Pool with small and large slots. Capacities are in
// frame bytes (header included).
func NewPool(smallCount, smallCap, largeCount, largeCap int) *Pool {
	p := &Pool{
		slots:    make([]slot, smallCount+largeCount),
		smallCap: smallCap,
		txQueue:  make([]SlotID, 0, smallCount+largeCount),
	}
	mem := make([]byte, smallCount*smallCap+largeCount*largeCap)
	for i := range p.slots {
		s := &p.slots[i]
		if i < smallCount {
			s.class, s.buf = ClassSmall, mem[:smallCap:smallCap]
			mem = mem[smallCap:]
		} else {
			s.class, s.buf = ClassLarge, mem[:largeCap:largeCap]
			mem = mem[largeCap:]
		}
		if len(s.buf) > p.maxCap {
			p.maxCap = len(s.buf)
		}
	}
	return p
}

// Len is the number of slots.
func (p *Pool) Len() int {
	return len(p.slots)
}

// MaxCapacity is the capacity of the largest slot.
func (p *Pool) MaxCapacity() int {
	return p.maxCap
}

// ClassFor picks the preferred class for a frame of n bytes.
func (p *Pool) ClassFor(n int) SlotClass {
	if n <= p.smallCap {
		return ClassSmall
	}
	return ClassLarge
}

// Allocate finds a free slot of at least minCap bytes, preferring class,
// and marks it with usage. It returns false when nothing fits; callers
// treat it as back-pressure.
func (p *Pool) Allocate(minCap int, class SlotClass, usage SlotUsage) (SlotID, bool) {
	fallback := NoSlot
	for i := range p.slots {
		s := &p.slots[i]
		if s.usage != SlotFree || len(s.buf) < minCap {
			continue
		}
		if s.class == class {
			fallback = SlotID(i)
			break
		}
		if fallback == NoSlot {
			fallback = SlotID(i)
		}
	}
	if fallback == NoSlot {
		return NoSlot, false
	}
	s := &p.slots[fallback]
	s.usage, s.ptr, s.size, s.accepted, s.mask = usage, 0, 0, false, 0
	if usage == SlotTx {
		p.txQueue = append(p.txQueue, fallback)
	}
	return fallback, true
}

// Release frees a slot. Releasing a free slot is a no-op.
func (p *Pool) Release(id SlotID) {
	if id < 0 || int(id) >= len(p.slots) {
		return
	}
	s := &p.slots[id]
	if s.usage == SlotTx {
		p.dequeue(id)
	}
	s.usage, s.ptr, s.size, s.accepted, s.mask = SlotFree, 0, 0, false, 0
}

func (p *Pool) dequeue(id SlotID) {
	for i, q := range p.txQueue {
		if q == id {
			p.txQueue = append(p.txQueue[:i], p.txQueue[i+1:]...)
			return
		}
	}
}

// TxOrder appends the Tx slots to dst in the order they became Tx.
func (p *Pool) TxOrder(dst []SlotID) []SlotID {
	return append(dst, p.txQueue...)
}

// Usage returns the usage of a slot.
func (p *Pool) Usage(id SlotID) SlotUsage {
	if id < 0 || int(id) >= len(p.slots) {
		return SlotFree
	}
	return p.slots[id].usage
}

// Capacity returns the capacity of a slot.
func (p *Pool) Capacity(id SlotID) int {
	return len(p.slots[id].buf)
}

// InUse counts non-free slots.
func (p *Pool) InUse() (n int) {
	for i := range p.slots {
		if p.slots[i].usage != SlotFree {
			n++
		}
	}
	return
}

// promote turns a completely received slot into a transmit slot in place.
func (p *Pool) promote(id SlotID, mask LinkMask) {
	s := &p.slots[id]
	if s.usage != SlotTx {
		p.txQueue = append(p.txQueue, id)
	}
	s.usage, s.ptr, s.mask = SlotTx, 0, mask
}

func (p *Pool) slot(id SlotID) *slot {
	return &p.slots[id]
}
