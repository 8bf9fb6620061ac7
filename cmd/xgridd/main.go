package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/golang/glog"

	fx "github.com/robotalks/xgrid.go/pkg/framework"
	"github.com/robotalks/xgrid.go/pkg/node"
)

func init() {
	node.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	n := node.NewConfig().MustNewNode()
	runner := fx.NewRunner().HandleSignals()
	err := n.Loop().Run(runner.Context)
	n.Close()
	if errors.Is(err, node.ErrReset) {
		glog.Info("restarting")
		glog.Flush()
		exe, err := os.Executable()
		if err != nil {
			log.Fatalln(err)
		}
		// the installed build overrides the one we started with
		build, _ := n.Engine.Firmware()
		log.Fatalln(syscall.Exec(exe, withBuild(os.Args, build), os.Environ()))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalln(err)
	}
}

// withBuild returns a copy of args with any -build flag replaced by build.
func withBuild(args []string, build uint32) []string {
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0], fmt.Sprintf("-build=%d", build))
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		if arg == "--" {
			out = append(out, rest[i:]...)
			break
		}
		switch name := strings.TrimLeft(arg, "-"); {
		case !strings.HasPrefix(arg, "-"):
		case name == "build":
			// value is the next argument
			i++
			continue
		case strings.HasPrefix(name, "build="):
			continue
		}
		out = append(out, arg)
	}
	return out
}
