// Package sh is an interactive shell driving a simulated mesh.
package sh

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/pterm/pterm"

	"github.com/robotalks/xgrid.go/pkg/sim"
	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell *ishell.Shell
	Mesh  *sim.Mesh

	// ImageSize is the image size of new nodes.
	ImageSize int

	trace *tracer
}

const shellKey = "$shell"

var (
	// flags

	evalOnly   bool
	outputJSON bool
	fastTiming bool
	pageSize   = xgrid.DefaultPageSize
	imagePages = 16

	// commands
	commands = []*ishell.Cmd{
		&NodeCmd,
		&LinkCmd,
		&NodesCmd,
		&NeighborsCmd,
		&StatsCmd,
		&SendCmd,
		&InjectCmd,
		&StepCmd,
		&TraceCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.BoolVar(&fastTiming, "fast", fastTiming, "Use short update timings.")
	flag.IntVar(&pageSize, "page-size", pageSize, "Flash page size of nodes.")
	flag.IntVar(&imagePages, "image-pages", imagePages, "Image size of nodes in pages.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// FastTiming shortens the update timings so a simulated update completes
// in hundreds of steps.
var FastTiming = xgrid.Timing{
	Initial:       10,
	InitialJitter: 0x0f,
	PostFlush:     5,
	PingWait:      5,
	CheckInterval: 50,
	BlockInterval: 2,
	PostFinish:    10,
	PostInstall:   5,
	PullTimeout:   100,
}

// NewMesh creates the mesh configured by flags.
func NewMesh() *sim.Mesh {
	cfg := xgrid.DefaultConfig()
	cfg.PageSize = pageSize
	if fastTiming {
		cfg.Timing = FastTiming
	}
	return sim.NewMesh(cfg)
}

// New creates a new shell.
func New(mesh *sim.Mesh) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:     ishell.New(),
		Mesh:      mesh,
		ImageSize: imagePages * mesh.Config.PageSize,
	}
	s.trace = &tracer{shell: s}
	mesh.Events.Subscribe(s.trace)
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt("xgrid > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// AddNode adds a node. id is parsed as a number, 0x prefix for hex.
func (s *Shell) AddNode(name, id, build string) error {
	nodeID, err := strconv.ParseUint(id, 0, 16)
	if err != nil {
		return fmt.Errorf("invalid id %q: %v", id, err)
	}
	buildNum, err := strconv.ParseUint(build, 0, 32)
	if err != nil {
		return fmt.Errorf("invalid build %q: %v", build, err)
	}
	_, err = s.Mesh.AddNode(name, uint16(nodeID), uint32(buildNum), s.ImageSize)
	return err
}

func (s *Shell) node(name string) (*sim.Node, error) {
	n := s.Mesh.Node(name)
	if n == nil {
		return nil, fmt.Errorf("unknown node %s", name)
	}
	return n, nil
}

var typeNames = map[string]xgrid.PacketType{
	"debug": xgrid.TypeDebug,
	"ping":  xgrid.TypePingRequest,
	"flush": xgrid.TypeFlushDedup,
}

// ParseType parses a packet type name or number.
func ParseType(str string) (xgrid.PacketType, error) {
	if typ, ok := typeNames[str]; ok {
		return typ, nil
	}
	typ, err := strconv.ParseUint(str, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid type %q", str)
	}
	return xgrid.PacketType(typ), nil
}

// Send sends a packet from a node to all its links. args are
// TYPE RADIUS [trace] [HEX-PAYLOAD].
func (s *Shell) Send(name string, args ...string) error {
	n, err := s.node(name)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("TYPE and RADIUS expected")
	}
	pkt := &xgrid.Packet{}
	if pkt.Type, err = ParseType(args[0]); err != nil {
		return err
	}
	radius, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return fmt.Errorf("invalid radius %q", args[1])
	}
	pkt.Radius = uint8(radius)
	args = args[2:]
	if len(args) > 0 && args[0] == "trace" {
		pkt.Flags |= xgrid.FlagTrace
		args = args[1:]
	}
	if len(args) > 0 {
		if pkt.Payload, err = hex.DecodeString(strings.Join(args, "")); err != nil {
			return err
		}
	}
	return n.Engine.Send(pkt)
}

// NodeInfo summarizes a node.
type NodeInfo struct {
	Name      string   `json:"name"`
	ID        uint16   `json:"id"`
	Build     uint32   `json:"build"`
	CRC       uint16   `json:"crc"`
	State     string   `json:"state"`
	Neighbors []string `json:"neighbors"`
}

// NodeInfos summarizes all nodes.
func (s *Shell) NodeInfos() []NodeInfo {
	infos := make([]NodeInfo, 0, len(s.Mesh.Nodes()))
	for _, n := range s.Mesh.Nodes() {
		build, crc := n.Engine.Firmware()
		infos = append(infos, NodeInfo{
			Name:      n.Name,
			ID:        n.Engine.ID(),
			Build:     build,
			CRC:       crc,
			State:     n.Engine.State().String(),
			Neighbors: n.Neighbors(),
		})
	}
	return infos
}

// NodesTable renders NodeInfos.
func (s *Shell) NodesTable() pterm.TableData {
	data := pterm.TableData{{"NAME", "ID", "BUILD", "CRC", "STATE", "NEIGHBORS"}}
	for _, info := range s.NodeInfos() {
		data = append(data, []string{
			info.Name,
			fmt.Sprintf("%04x", info.ID),
			strconv.FormatUint(uint64(info.Build), 10),
			fmt.Sprintf("%04x", info.CRC),
			info.State,
			strings.Join(info.Neighbors, ","),
		})
	}
	return data
}

// NeighborsTable renders what a node learned about its neighbors.
func (s *Shell) NeighborsTable(name string) (pterm.TableData, error) {
	n, err := s.node(name)
	if err != nil {
		return nil, err
	}
	names := make(map[xgrid.LinkID]string)
	for _, neighbor := range n.Neighbors() {
		id, _ := n.LinkTo(neighbor)
		names[id] = neighbor
	}
	data := pterm.TableData{{"LINK", "NEIGHBOR", "BUILD", "CRC"}}
	for _, nb := range n.Engine.Neighbors() {
		data = append(data, []string{
			strconv.Itoa(int(nb.Link)),
			names[nb.Link],
			strconv.FormatUint(uint64(nb.Build), 10),
			fmt.Sprintf("%04x", nb.CRC),
		})
	}
	return data, nil
}

// StatsTable renders the counters of a node.
func (s *Shell) StatsTable(name string) (pterm.TableData, error) {
	n, err := s.node(name)
	if err != nil {
		return nil, err
	}
	st := n.Engine.Stats()
	rows := []struct {
		name  string
		value uint64
	}{
		{"rx_frames", st.RxFrames},
		{"tx_frames", st.TxFrames},
		{"sent", st.Sent},
		{"relayed", st.Relayed},
		{"duplicates", st.Duplicates},
		{"filtered", st.Filtered},
		{"malformed", st.Malformed},
		{"resynced", st.Resynced},
		{"alloc_stalls", st.AllocStalls},
		{"send_failures", st.SendFailures},
		{"unhandled", st.Unhandled},
		{"blocks_written", st.BlocksWritten},
		{"blocks_sent", st.BlocksSent},
		{"installs", st.Installs},
		{"crc_failures", st.CRCFailures},
		{"slots_in_use", uint64(st.SlotsInUse)},
	}
	data := pterm.TableData{{"COUNTER", "VALUE"}}
	for _, row := range rows {
		data = append(data, []string{row.name, strconv.FormatUint(row.value, 10)})
	}
	return data, nil
}

func printTable(c *ishell.Context, data pterm.TableData) {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(out)
}

func printJSON(c *ishell.Context, v interface{}) {
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// tracer prints packets and state changes when enabled.
type tracer struct {
	shell   *Shell
	packets bool
	states  bool
}

func (t *tracer) PacketReceived(n *sim.Node, pkt *xgrid.Packet) {
	if t.packets {
		t.shell.Shell.Printf("%s: %s\n", pterm.Cyan(n.Name), pkt)
	}
}

func (t *tracer) StateChanged(n *sim.Node, from, to xgrid.UpdateState) {
	if t.states {
		t.shell.Shell.Printf("%s: %s -> %s\n", pterm.Yellow(n.Name), from, to)
	}
}

func withArgs(n int, usage string, fn func(c *ishell.Context) error) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if len(c.Args) < n {
			c.Err(fmt.Errorf("usage: %s", usage))
			return
		}
		if err := fn(c); err != nil {
			c.Err(err)
		}
	}
}

var (
	// NodeCmd adds a node.
	NodeCmd = ishell.Cmd{
		Name:    "node",
		Aliases: []string{"n"},
		Help:    "NAME ID BUILD",
		Func: withArgs(3, "node NAME ID BUILD", func(c *ishell.Context) error {
			return ShellFrom(c).AddNode(c.Args[0], c.Args[1], c.Args[2])
		}),
	}

	// LinkCmd links nodes in a chain.
	LinkCmd = ishell.Cmd{
		Name:    "link",
		Aliases: []string{"l"},
		Help:    "NODE NODE...",
		Func: withArgs(2, "link NODE NODE...", func(c *ishell.Context) error {
			s := ShellFrom(c)
			for i := 1; i < len(c.Args); i++ {
				if err := s.Mesh.Connect(c.Args[i-1], c.Args[i]); err != nil {
					return err
				}
			}
			return nil
		}),
	}

	// NodesCmd lists nodes.
	NodesCmd = ishell.Cmd{
		Name:    "nodes",
		Aliases: []string{"ls"},
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.OutputJSON {
				printJSON(c, s.NodeInfos())
				return
			}
			printTable(c, s.NodesTable())
		},
	}

	// NeighborsCmd shows what a node knows about its neighbors.
	NeighborsCmd = ishell.Cmd{
		Name: "neighbors",
		Help: "NODE",
		Func: withArgs(1, "neighbors NODE", func(c *ishell.Context) error {
			data, err := ShellFrom(c).NeighborsTable(c.Args[0])
			if err == nil {
				printTable(c, data)
			}
			return err
		}),
	}

	// StatsCmd shows the counters of a node.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "NODE",
		Func: withArgs(1, "stats NODE", func(c *ishell.Context) error {
			s := ShellFrom(c)
			if s.OutputJSON {
				n, err := s.node(c.Args[0])
				if err == nil {
					printJSON(c, n.Engine.Stats())
				}
				return err
			}
			data, err := s.StatsTable(c.Args[0])
			if err == nil {
				printTable(c, data)
			}
			return err
		}),
	}

	// SendCmd sends a packet from a node.
	SendCmd = ishell.Cmd{
		Name: "send",
		Help: "NODE TYPE RADIUS [trace] [HEX]",
		Func: withArgs(3, "send NODE TYPE RADIUS [trace] [HEX]", func(c *ishell.Context) error {
			return ShellFrom(c).Send(c.Args[0], c.Args[1:]...)
		}),
	}

	// InjectCmd writes raw bytes into a node as if sent by a neighbor.
	InjectCmd = ishell.Cmd{
		Name: "inject",
		Help: "NODE NEIGHBOR HEX",
		Func: withArgs(3, "inject NODE NEIGHBOR HEX", func(c *ishell.Context) error {
			s := ShellFrom(c)
			n, err := s.node(c.Args[0])
			if err != nil {
				return err
			}
			data, err := hex.DecodeString(strings.Join(c.Args[2:], ""))
			if err != nil {
				return err
			}
			written, err := n.Inject(c.Args[1], data)
			if err == nil && written < len(data) {
				c.Printf("%d of %d bytes injected\n", written, len(data))
			}
			return err
		}),
	}

	// StepCmd steps the mesh.
	StepCmd = ishell.Cmd{
		Name:    "step",
		Aliases: []string{"s"},
		Help:    "[N]",
		Func: withArgs(0, "step [N]", func(c *ishell.Context) error {
			steps := 1
			if len(c.Args) > 0 {
				var err error
				if steps, err = strconv.Atoi(c.Args[0]); err != nil {
					return err
				}
			}
			s := ShellFrom(c)
			s.Mesh.Run(steps)
			if s.Interactive {
				c.Printf("step %d\n", s.Mesh.Loop().Steps())
			}
			return nil
		}),
	}

	// TraceCmd toggles tracing.
	TraceCmd = ishell.Cmd{
		Name: "trace",
		Help: "packets|states|off",
		Func: withArgs(1, "trace packets|states|off", func(c *ishell.Context) error {
			t := ShellFrom(c).trace
			switch c.Args[0] {
			case "packets":
				t.packets = true
			case "states":
				t.states = true
			case "off":
				t.packets, t.states = false, false
			default:
				return fmt.Errorf("unknown trace %q", c.Args[0])
			}
			return nil
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewMesh()).Run(flag.Args()...)
}
