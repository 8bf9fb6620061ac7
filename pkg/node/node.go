// Package node assembles a mesh node: the engine, its links, the image
// file and telemetry, driven by a framework.Loop.
package node

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/robotalks/xgrid.go/pkg/flash"
	fx "github.com/robotalks/xgrid.go/pkg/framework"
	"github.com/robotalks/xgrid.go/pkg/telemetry"
	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

// ErrReset is returned by the loop when the image requested a reset,
// the daemon should restart into the installed image.
var ErrReset = errors.New("reset requested")

// Node is a running mesh node.
type Node struct {
	Config   Config
	Engine   *xgrid.Engine
	Flash    *flash.File
	Links    []Link
	Registry *prometheus.Registry

	resetOnce sync.Once
	resetCh   chan struct{}
}

// NewNode creates the node.
func (c *Config) NewNode() (*Node, error) {
	n := &Node{Config: *c, resetCh: make(chan struct{})}
	var image xgrid.FlashImage
	if c.Image != "" {
		f, err := flash.OpenFile(c.Image)
		if err != nil {
			return nil, err
		}
		f.OnReset = n.Reset
		n.Flash, image = f, f
	}
	n.Engine = xgrid.New(c.EngineConfig(), image)
	for _, u := range c.LinkURLs() {
		l, err := OpenLink(u)
		if err != nil {
			n.Close()
			return nil, err
		}
		id, err := n.Engine.AddLink(l)
		if err != nil {
			n.Close()
			return nil, err
		}
		glog.Infof("link %d: %s", id, u)
		n.Links = append(n.Links, l)
	}
	n.Registry = telemetry.NewRegistry(telemetry.NewCollector(n.Engine))
	build, crc := n.Engine.Firmware()
	glog.Infof("node %04x build %d crc %04x", n.Engine.ID(), build, crc)
	return n, nil
}

// Reset stops the loop with ErrReset.
func (n *Node) Reset() {
	n.resetOnce.Do(func() { close(n.resetCh) })
}

// Close releases the image file.
func (n *Node) Close() error {
	if n.Flash != nil {
		return n.Flash.Close()
	}
	return nil
}

// AddToLoop implements framework.LoopAdder.
func (n *Node) AddToLoop(l *fx.Loop) {
	l.AddTicker(fx.PrLvEngine, n.Engine)
	for _, link := range n.Links {
		l.AddRunnable(link)
	}
	l.AddRunnable(fx.NamedRun("reset", fx.RunnableFunc(n.waitReset)))
	if n.Config.Metrics != "" {
		l.AddRunnable(fx.NamedRun("metrics", fx.RunnableFunc(n.serveMetrics)))
	}
}

// Loop creates a loop running the node.
func (n *Node) Loop() *fx.Loop {
	l := fx.NewLoop()
	if n.Config.Interval > 0 {
		l.Interval = n.Config.Interval
	}
	return l.Add(n)
}

func (n *Node) waitReset(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-n.resetCh:
		return ErrReset
	}
}

func (n *Node) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler(n.Registry))
	srv := &http.Server{Addr: n.Config.Metrics, Handler: mux}
	glog.Infof("metrics on %s", n.Config.Metrics)
	return fx.RunWithContextCancel(ctx, func() { srv.Close() }, srv.ListenAndServe)
}
