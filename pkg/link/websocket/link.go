// Package websocket tunnels links over websocket connections.
package websocket

import (
	"context"
	"io"
	"net/http"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/xgrid.go/pkg/framework"
	"github.com/robotalks/xgrid.go/pkg/link/stream"
)

// Dial creates a link connecting to a websocket server at url.
func Dial(url, origin string) *stream.Link {
	return stream.NewLink(url, func(context.Context) (io.ReadWriteCloser, error) {
		conn, err := websocket.Dial(url, "", origin)
		if err != nil {
			return nil, err
		}
		conn.PayloadType = websocket.BinaryFrame
		return conn, nil
	})
}

// Server is a link accepting one websocket peer at a time.
type Server struct {
	*stream.Link

	// Addr is the listening address used by Run, leave empty when the
	// Server is mounted on another http.Server.
	Addr string
	Path string

	conns chan *serverConn
}

type serverConn struct {
	*websocket.Conn
	done chan struct{}
}

func (c *serverConn) Close() error {
	err := c.Conn.Close()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return err
}

// NewServer creates a Server.
func NewServer(addr, path string) *Server {
	if path == "" {
		path = "/"
	}
	s := &Server{Addr: addr, Path: path, conns: make(chan *serverConn)}
	s.Link = stream.NewLink("ws-listen:"+addr+path, s.accept)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(s.serve).ServeHTTP(w, r)
}

func (s *Server) serve(conn *websocket.Conn) {
	conn.PayloadType = websocket.BinaryFrame
	c := &serverConn{Conn: conn, done: make(chan struct{})}
	select {
	case s.conns <- c:
		<-c.done
	case <-conn.Request().Context().Done():
	}
}

func (s *Server) accept(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case c := <-s.conns:
		glog.V(1).Infof("ws peer %s", c.Request().RemoteAddr)
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run implements framework.Runnable. It serves Addr if set.
func (s *Server) Run(ctx context.Context) error {
	if s.Addr == "" {
		return s.Link.Run(ctx)
	}
	mux := http.NewServeMux()
	mux.Handle(s.Path, s)
	srv := &http.Server{Addr: s.Addr, Handler: mux}
	return fx.NewRunnerWith(ctx).Go(
		fx.NamedRun("ws-http", fx.RunnableFunc(func(ctx context.Context) error {
			return fx.RunWithContextCancel(ctx, func() { srv.Close() }, srv.ListenAndServe)
		})),
		fx.NamedRun("ws-link", s.Link),
	).Wait()
}
