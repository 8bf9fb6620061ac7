// Package mem provides in-memory links connecting engines of one process.
package mem

import (
	"github.com/robotalks/xgrid.go/pkg/link"
)

// Pipe creates two connected ends. Bytes written to one end are read from
// the other, each direction buffers at most size bytes.
func Pipe(size int) (a, b *link.Buffered) {
	ab, ba := link.NewRing(size), link.NewRing(size)
	return &link.Buffered{Rx: ba, Tx: ab}, &link.Buffered{Rx: ab, Tx: ba}
}

