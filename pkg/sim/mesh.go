// Package sim runs a mesh of engines in one process, linked by in-memory
// pipes and stepped deterministically.
package sim

import (
	"fmt"
	"sort"

	fx "github.com/robotalks/xgrid.go/pkg/framework"
	"github.com/robotalks/xgrid.go/pkg/flash"
	"github.com/robotalks/xgrid.go/pkg/link"
	"github.com/robotalks/xgrid.go/pkg/link/mem"
	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

// DefaultPipeSize is the buffer size of each direction of a pipe, in the
// order of a UART FIFO plus driver buffer.
const DefaultPipeSize = 128

// Node is an engine in the mesh.
type Node struct {
	Name   string
	Engine *xgrid.Engine
	Flash  xgrid.FlashImage

	mesh  *Mesh
	state xgrid.UpdateState
	ends  map[string]*link.Buffered
	links map[string]xgrid.LinkID
}

// Tick implements framework.Ticker.
func (n *Node) Tick() {
	n.Engine.Tick()
	if st := n.Engine.State(); st != n.state {
		from := n.state
		n.state = st
		n.mesh.Events.StateChanged(n, from, st)
	}
}

// LinkTo returns the link connecting to a neighbor.
func (n *Node) LinkTo(neighbor string) (xgrid.LinkID, bool) {
	id, ok := n.links[neighbor]
	return id, ok
}

// Neighbors returns the names of neighbors, sorted.
func (n *Node) Neighbors() []string {
	names := make([]string, 0, len(n.links))
	for name := range n.links {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Inject feeds raw bytes to the node as if they came from a neighbor.
func (n *Node) Inject(neighbor string, data []byte) (int, error) {
	end := n.ends[neighbor]
	if end == nil {
		return 0, fmt.Errorf("%s not linked to %s", n.Name, neighbor)
	}
	return end.Rx.Write(data), nil
}

// Mesh is a set of nodes and links.
type Mesh struct {
	// Config is the template for node engines.
	Config   xgrid.Config
	PipeSize int
	Events   Caster

	loop  *fx.Loop
	nodes []*Node
	names map[string]*Node
}

// NewMesh creates an empty Mesh.
func NewMesh(cfg xgrid.Config) *Mesh {
	return &Mesh{
		Config:   cfg,
		PipeSize: DefaultPipeSize,
		loop:     fx.NewLoop(),
		names:    make(map[string]*Node),
	}
}

// Loop returns the loop stepping the nodes.
func (m *Mesh) Loop() *fx.Loop {
	return m.loop
}

// AddNode creates a node running a generated image of size bytes for
// build.
func (m *Mesh) AddNode(name string, id uint16, build uint32, size int) (*Node, error) {
	return m.AddNodeWithFlash(name, id, build, flash.NewMemory(Image(build, size)))
}

// AddNodeWithFlash creates a node with its flash image.
func (m *Mesh) AddNodeWithFlash(name string, id uint16, build uint32, fl xgrid.FlashImage) (*Node, error) {
	if _, exists := m.names[name]; exists {
		return nil, fmt.Errorf("node %s already exists", name)
	}
	cfg := m.Config
	cfg.ID, cfg.Build = id, build
	n := &Node{
		Name:   name,
		Engine: xgrid.New(cfg, fl),
		Flash:  fl,
		mesh:   m,
		ends:   make(map[string]*link.Buffered),
		links:  make(map[string]xgrid.LinkID),
	}
	n.state = n.Engine.State()
	n.Engine.SetTap(func(pkt *xgrid.Packet) {
		m.Events.PacketReceived(n, pkt)
	})
	m.nodes = append(m.nodes, n)
	m.names[name] = n
	m.loop.AddTicker(fx.PrLvEngine, n)
	return n, nil
}

// Node finds a node by name.
func (m *Mesh) Node(name string) *Node {
	return m.names[name]
}

// Nodes returns all nodes in creation order.
func (m *Mesh) Nodes() []*Node {
	return m.nodes
}

// Connect links two nodes.
func (m *Mesh) Connect(a, b string) error {
	na, nb := m.names[a], m.names[b]
	if na == nil || nb == nil {
		return fmt.Errorf("unknown node %s or %s", a, b)
	}
	if a == b {
		return fmt.Errorf("can't link %s to itself", a)
	}
	if _, exists := na.links[b]; exists {
		return fmt.Errorf("%s already linked to %s", a, b)
	}
	if len(na.links) >= xgrid.MaxLinks || len(nb.links) >= xgrid.MaxLinks {
		return xgrid.ErrTooManyLinks
	}
	ea, eb := mem.Pipe(m.PipeSize)
	la, err := na.Engine.AddLink(ea)
	if err != nil {
		return fmt.Errorf("%s: %v", a, err)
	}
	lb, err := nb.Engine.AddLink(eb)
	if err != nil {
		return fmt.Errorf("%s: %v", b, err)
	}
	na.ends[b], na.links[b] = ea, la
	nb.ends[a], nb.links[a] = eb, lb
	return nil
}

// Step ticks every node once.
func (m *Mesh) Step() {
	m.loop.Step()
}

// Run ticks every node n times.
func (m *Mesh) Run(n int) {
	m.loop.StepN(n)
}

// RunUntil steps until cond is true, at most max steps. It returns
// whether cond became true.
func (m *Mesh) RunUntil(cond func() bool, max int) bool {
	for i := 0; i < max; i++ {
		if cond() {
			return true
		}
		m.Step()
	}
	return cond()
}

// Image generates a recognizable firmware image of a build.
func Image(build uint32, size int) []byte {
	img := make([]byte, size)
	for i := range img {
		img[i] = byte(uint32(i)*31 + build*7)
	}
	return img
}
