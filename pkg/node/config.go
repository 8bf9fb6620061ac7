package node

import (
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/xgrid.go/pkg/env"
	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

// Config defines the configurations of a node.
type Config struct {
	// ID is the node id, 0 derives it from the machine id.
	ID uint
	// Build is the build number of the running image.
	Build uint
	// Links is a comma separated list of link URLs.
	Links string
	// Image is the path of the running image, empty disables updates.
	Image string
	// Metrics is the listen address of /metrics, empty disables it.
	Metrics  string
	PageSize int
	Interval time.Duration
}

var defaultConfig = Config{
	PageSize: xgrid.DefaultPageSize,
	Interval: time.Millisecond,
}

func init() {
	if val := os.Getenv("XGRID_ID"); val != "" {
		if id, err := strconv.ParseUint(val, 0, 16); err == nil {
			defaultConfig.ID = uint(id)
		} else {
			glog.Warningf("XGRID_ID: %v", err)
		}
	}
	if val := os.Getenv("XGRID_BUILD"); val != "" {
		if build, err := strconv.ParseUint(val, 0, 32); err == nil {
			defaultConfig.Build = uint(build)
		} else {
			glog.Warningf("XGRID_BUILD: %v", err)
		}
	}
	if val := os.Getenv("XGRID_LINKS"); val != "" {
		defaultConfig.Links = val
	}
	if val := os.Getenv("XGRID_IMAGE"); val != "" {
		defaultConfig.Image = val
	}
	if val := os.Getenv("XGRID_METRICS"); val != "" {
		defaultConfig.Metrics = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.UintVar(&defaultConfig.ID, "id", defaultConfig.ID, "Node id, 0 derives it from the machine id.")
	flag.UintVar(&defaultConfig.Build, "build", defaultConfig.Build, "Build number of the running image.")
	flag.StringVar(&defaultConfig.Links, "links", defaultConfig.Links,
		"Comma separated link URLs: tcp://, tcp-listen://, unix://, serial://, ws://, ws-listen://, mqtt://host/prefix?link=name&side=a.")
	flag.StringVar(&defaultConfig.Image, "image", defaultConfig.Image, "Running image file, enables firmware distribution.")
	flag.StringVar(&defaultConfig.Metrics, "metrics", defaultConfig.Metrics, "Listen address for Prometheus metrics.")
	flag.IntVar(&defaultConfig.PageSize, "page-size", defaultConfig.PageSize, "Flash page size.")
	flag.DurationVar(&defaultConfig.Interval, "tick", defaultConfig.Interval, "Engine tick interval.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LinkURLs splits Links.
func (c *Config) LinkURLs() (urls []string) {
	for _, u := range strings.Split(c.Links, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return
}

// NodeID returns the configured id or the one derived from the machine.
func (c *Config) NodeID() uint16 {
	if c.ID != 0 {
		return uint16(c.ID)
	}
	return env.LocalNodeID()
}

// EngineConfig builds the engine configuration.
func (c *Config) EngineConfig() xgrid.Config {
	cfg := xgrid.DefaultConfig()
	cfg.ID = c.NodeID()
	cfg.Build = uint32(c.Build)
	if c.PageSize > 0 {
		cfg.PageSize = c.PageSize
	}
	return cfg
}

// MustNewNode creates the node or exits.
func (c *Config) MustNewNode() *Node {
	n, err := c.NewNode()
	if err != nil {
		log.Fatalln(err)
	}
	return n
}
