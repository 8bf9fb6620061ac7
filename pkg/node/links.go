package node

import (
	"errors"
	"fmt"
	"net/url"

	fx "github.com/robotalks/xgrid.go/pkg/framework"
	"github.com/robotalks/xgrid.go/pkg/link/mqtt"
	"github.com/robotalks/xgrid.go/pkg/link/stream"
	"github.com/robotalks/xgrid.go/pkg/link/websocket"
	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

// Link is a ByteLink fed by a background transport.
type Link interface {
	xgrid.ByteLink
	fx.Runnable
}

// ErrUnsupportedLink indicates a link URL with an unknown scheme.
var ErrUnsupportedLink = errors.New("unsupported link")

// OpenLink creates a link from a URL. Nothing is connected until the
// link runs.
func OpenLink(rawURL string) (Link, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "tcp":
		return stream.Dial("tcp", u.Host), nil
	case "tcp-listen":
		return stream.Listen("tcp", u.Host), nil
	case "unix":
		return stream.Dial("unix", u.Path), nil
	case "serial", "file":
		return stream.OpenFile(u.Path), nil
	case "":
		return stream.OpenFile(rawURL), nil
	case "ws", "wss":
		origin := "http://" + u.Host + "/"
		if u.Scheme == "wss" {
			origin = "https://" + u.Host + "/"
		}
		return websocket.Dial(rawURL, origin), nil
	case "ws-listen":
		return websocket.NewServer(u.Host, u.Path), nil
	case "mqtt", "ssl":
		return openMQTT(u)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedLink, rawURL)
}

func openMQTT(u *url.URL) (Link, error) {
	query := u.Query()
	name, side := query.Get("link"), query.Get("side")
	if name == "" {
		return nil, fmt.Errorf("%w: missing link name in %s", ErrUnsupportedLink, u.Redacted())
	}
	switch side {
	case "":
		side = mqtt.SideA
	case mqtt.SideA, mqtt.SideB:
	default:
		return nil, fmt.Errorf("%w: side must be %s or %s", ErrUnsupportedLink, mqtt.SideA, mqtt.SideB)
	}
	query.Del("link")
	query.Del("side")
	broker := *u
	broker.RawQuery = query.Encode()
	q, err := mqtt.NewQueueFromURL(broker.String())
	if err != nil {
		return nil, err
	}
	return mqtt.New(q, name, side), nil
}
