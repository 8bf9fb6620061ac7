package mqtt

import (
	"context"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/xgrid.go/pkg/link"
)

// Link is a link tunnelled over two topics: <name>/<side> carries what
// this end sends, <name>/<peer side> what it receives.
type Link struct {
	*link.Buffered

	Queue    *Queue
	SubTopic string
	PubTopic string

	dropped uint64
}

// Link sides.
const (
	SideA = "a"
	SideB = "b"
)

// New creates a Link. side is SideA or SideB, the other end uses the
// opposite.
func New(q *Queue, name, side string) *Link {
	peer := SideB
	if side == SideB {
		peer = SideA
	}
	return &Link{
		Buffered: link.NewBuffered(link.DefaultRingSize, link.DefaultRingSize),
		Queue:    q,
		SubTopic: name + "/" + peer,
		PubTopic: name + "/" + side,
	}
}

// Run implements framework.Runnable.
func (l *Link) Run(ctx context.Context) error {
	l.Queue.Sub(l.SubTopic, l.handleMsg)
	if err := l.Queue.Connect(); err != nil {
		return err
	}
	defer l.Queue.Close()
	buf := make([]byte, 256)
	for {
		n := l.Tx.Read(buf)
		if n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.Tx.Notify():
			}
			continue
		}
		token := l.Queue.Pub(l.PubTopic, buf[:n])
		token.Wait()
		if err := token.Error(); err != nil {
			glog.Warningf("PUB %s: %v", l.PubTopic, err)
		}
	}
}

func (l *Link) handleMsg(_ string, payload []byte) {
	// the engine resyncs on the next identifier after a loss
	if n := l.Rx.Write(payload); n < len(payload) {
		atomic.AddUint64(&l.dropped, uint64(len(payload)-n))
		glog.V(2).Infof("%s: drop %d bytes", l.SubTopic, len(payload)-n)
	}
}

// Dropped returns the count of received bytes lost to a full ring.
func (l *Link) Dropped() uint64 {
	return atomic.LoadUint64(&l.dropped)
}
