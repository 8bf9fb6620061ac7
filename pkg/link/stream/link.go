// Package stream implements links over byte streams: serial devices,
// pipes and TCP connections.
package stream

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/xgrid.go/pkg/framework"
	"github.com/robotalks/xgrid.go/pkg/link"
)

// Opener establishes the underlying stream.
type Opener func(ctx context.Context) (io.ReadWriteCloser, error)

// Link pumps bytes between a stream and the rings read by the engine.
type Link struct {
	*link.Buffered

	Name string
	// Open is called to (re)establish the stream.
	Open Opener
	// RetryInterval is the wait before reopening a failed stream,
	// 0 means Run returns on the first failure.
	RetryInterval time.Duration
	// PollInterval is the wait when the receive ring is full.
	PollInterval time.Duration
}

// Defaults
const (
	DefaultRingSize      = 1024
	DefaultRetryInterval = time.Second
	DefaultPollInterval  = time.Millisecond
)

// NewLink creates a Link with an Opener.
func NewLink(name string, open Opener) *Link {
	return &Link{
		Buffered:      link.NewBuffered(DefaultRingSize, DefaultRingSize),
		Name:          name,
		Open:          open,
		RetryInterval: DefaultRetryInterval,
		PollInterval:  DefaultPollInterval,
	}
}

// New creates a Link over an established stream, Run returns when it
// fails.
func New(name string, rw io.ReadWriteCloser) *Link {
	opened := false
	l := NewLink(name, func(context.Context) (io.ReadWriteCloser, error) {
		if opened {
			return nil, io.EOF
		}
		opened = true
		return rw, nil
	})
	l.RetryInterval = 0
	return l
}

// Dial creates a Link connecting to a network address.
func Dial(network, addr string) *Link {
	return NewLink(network+":"+addr, func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		return d.DialContext(ctx, network, addr)
	})
}

// Listen creates a Link accepting connections one at a time.
func Listen(network, addr string) *Link {
	var ln net.Listener
	return NewLink(network+"-listen:"+addr, func(ctx context.Context) (io.ReadWriteCloser, error) {
		if ln == nil {
			var err error
			var lc net.ListenConfig
			if ln, err = lc.Listen(ctx, network, addr); err != nil {
				return nil, err
			}
		}
		var conn net.Conn
		err := fx.RunWithContextCancel(ctx, func() {
			ln.Close()
			ln = nil
		}, func() (err error) {
			conn, err = ln.Accept()
			return
		})
		return conn, err
	})
}

// OpenFile creates a Link over a device file, like a serial port already
// configured for raw mode.
func OpenFile(path string) *Link {
	return NewLink(path, func(context.Context) (io.ReadWriteCloser, error) {
		return os.OpenFile(path, os.O_RDWR, 0)
	})
}

// Run implements framework.Runnable.
func (l *Link) Run(ctx context.Context) error {
	for {
		rw, err := l.Open(ctx)
		if err == nil {
			glog.V(1).Infof("link %s: connected", l.Name)
			err = l.pump(ctx, rw)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if l.RetryInterval <= 0 {
			return err
		}
		glog.Warningf("link %s: %v, retry in %v", l.Name, err, l.RetryInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.RetryInterval):
		}
	}
}

// pump runs until either direction fails or ctx is done, the stream is
// closed on return.
func (l *Link) pump(ctx context.Context, rw io.ReadWriteCloser) error {
	subCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 2)
	go func() {
		errCh <- l.readLoop(subCtx, rw)
	}()
	go func() {
		errCh <- l.writeLoop(subCtx, rw)
	}()
	err := <-errCh
	cancel()
	rw.Close()
	<-errCh
	return err
}

func (l *Link) readLoop(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 256)
	for {
		free := l.Rx.Free()
		if free == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.PollInterval):
			}
			continue
		}
		if free > len(buf) {
			free = len(buf)
		}
		n, err := r.Read(buf[:free])
		if n > 0 {
			l.Rx.Write(buf[:n])
		}
		if err != nil {
			return err
		}
	}
}

func (l *Link) writeLoop(ctx context.Context, w io.Writer) error {
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
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
	}
}
