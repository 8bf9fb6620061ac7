package xgrid

// Stats are the engine counters.
type Stats struct {
	// RxFrames counts frames received and accepted.
	RxFrames uint64
	// TxFrames counts frames fully drained to their links.
	TxFrames uint64
	// Sent counts locally originated packets queued.
	Sent uint64
	// Relayed counts received frames re-queued for other links.
	Relayed uint64
	// Duplicates counts frames dropped by the dedup cache.
	Duplicates uint64
	// Filtered counts frames dropped by update-state rules.
	Filtered uint64
	// Malformed counts frames with an impossible size.
	Malformed uint64
	// Resynced counts garbage bytes skipped looking for a frame.
	Resynced uint64
	// AllocStalls counts ticks a link waited for a free slot.
	AllocStalls uint64
	// SendFailures counts local sends refused by an exhausted pool.
	SendFailures uint64
	// Unhandled counts packets without a handler.
	Unhandled uint64
	// BlocksWritten counts firmware pages staged.
	BlocksWritten uint64
	// BlocksSent counts firmware pages pushed.
	BlocksSent uint64
	// Installs counts verified images installed.
	Installs uint64
	// CRCFailures counts pulled images failing verification.
	CRCFailures uint64

	SlotsInUse int
	State      UpdateState
}
