package xgrid

// Timing holds the update state machine delays, counted in ticks.
type Timing struct {
	// Initial is the delay before the first flush broadcast. The low bits
	// of the node id (masked by InitialJitter) are added so neighbors
	// powered up together don't act in lockstep.
	Initial       int
	InitialJitter uint16
	// PostFlush is the wait after the startup flush broadcast.
	PostFlush int
	// PingWait is the time given to neighbors to answer a ping.
	PingWait int
	// CheckInterval is the period of neighbor version checks.
	CheckInterval int
	// BlockInterval separates firmware blocks, long enough for the
	// receiver to drain its serial buffer and write the page.
	BlockInterval int
	// PostFinish is the wait after a push before checking again.
	PostFinish int
	// PostInstall is the wait after a pull completes.
	PostInstall int
	// PullTimeout abandons a pull when no block arrives in time.
	PullTimeout int
}

// DefaultTiming is tuned for a 1 kHz tick.
var DefaultTiming = Timing{
	Initial:       3000,
	InitialJitter: 0x03ff,
	PostFlush:     1000,
	PingWait:      100,
	CheckInterval: 30 * 1000,
	BlockInterval: 100,
	PostFinish:    1000,
	PostInstall:   100,
	PullTimeout:   1000,
}

// Config defines the tunables of an Engine.
type Config struct {
	// ID is the node id, see env.NodeID.
	ID uint16
	// Build is the build number of the running firmware.
	Build uint32
	// PageSize is the flash page size, one firmware block carries a page.
	PageSize int

	SmallSlots    int
	SmallSlotSize int
	LargeSlots    int
	// TraceSpare is the extra capacity of large slots for trace annotation.
	TraceSpare int

	DedupSize int

	Timing Timing
}

// Defaults
const (
	DefaultPageSize      = 256
	DefaultSmallSlots    = 4
	DefaultSmallSlotSize = 64
	DefaultLargeSlots    = 2
	DefaultTraceSpare    = 8
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:      DefaultPageSize,
		SmallSlots:    DefaultSmallSlots,
		SmallSlotSize: DefaultSmallSlotSize,
		LargeSlots:    DefaultLargeSlots,
		TraceSpare:    DefaultTraceSpare,
		DedupSize:     DefaultDedupSize,
		Timing:        DefaultTiming,
	}
}

// LargeSlotSize is the capacity of a large slot: one firmware block plus
// the trace spare.
func (c *Config) LargeSlotSize() int {
	return HeaderSize + BlockSize(c.PageSize) + c.TraceSpare
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.SmallSlots < 0 {
		c.SmallSlots = 0
	}
	if c.SmallSlotSize < HeaderSize+maxMaintenancePacket {
		c.SmallSlotSize = def.SmallSlotSize
	}
	if c.LargeSlots <= 0 {
		c.LargeSlots = def.LargeSlots
	}
	if c.TraceSpare < 0 {
		c.TraceSpare = 0
	}
	if c.DedupSize <= 0 {
		c.DedupSize = def.DedupSize
	}
	if c.Timing == (Timing{}) {
		c.Timing = def.Timing
	}
}
