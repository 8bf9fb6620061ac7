package main

import (
	"flag"
	"log"
	"os"

	"github.com/robotalks/xgrid.go/pkg/link/mqtt"
	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

var (
	mqttURL = "mqtt://localhost:1883/xgrid/"
	topic   = "#"
)

func init() {
	if val := os.Getenv("XGRID_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL, the path is the topic prefix.")
	flag.StringVar(&topic, "topic", topic, "Topic pattern of links, like mesh/+/a.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	mon := NewMonitor()
	mon.Frame = func(topic string, pkt *xgrid.Packet) {
		log.Printf("%s: %04x/%d r%d %s", topic, pkt.SourceID, pkt.Seq, pkt.Radius, Describe(pkt))
	}
	mon.Junk = func(topic string, n int) {
		log.Printf("%s: %d bytes skipped", topic, n)
	}
	q.Sub(topic, mon.HandleMessage)
	if err := q.Connect(); err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
