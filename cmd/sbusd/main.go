package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang/glog"

	fx "github.com/robotalks/sbus.go/pkg/framework"
	"github.com/robotalks/sbus.go/pkg/receiver"
	"github.com/robotalks/sbus.go/pkg/sbus/source"
	"github.com/robotalks/sbus.go/pkg/telemetry/metrics"
	"github.com/robotalks/sbus.go/pkg/telemetry/mqtt"
	"github.com/robotalks/sbus.go/pkg/telemetry/websocket"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", configFile, "YAML config file, flags override its settings.")
}

// configArg finds the -config flag before flag.Parse so the file can be
// loaded as defaults of the other flags.
func configArg(args []string) string {
	for n, arg := range args {
		if arg == "--" {
			break
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if name == "config" && n+1 < len(args) {
			return args[n+1]
		}
		if strings.HasPrefix(name, "config=") {
			return name[len("config="):]
		}
	}
	return ""
}

func main() {
	if path := configArg(os.Args[1:]); path != "" {
		if err := receiver.LoadFile(path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	receiver.SetupFlags()
	flag.Parse()

	conf := receiver.Default()
	if err := conf.Validate(); err != nil {
		glog.Exit(err)
	}

	src, _, err := source.OpenSerial(conf.Device, conf.Baud)
	if err != nil {
		glog.Exitf("open %s: %v", conf.Device, err)
	}

	ctl := conf.NewController(src)
	loop := fx.NewLoop()
	loop.Interval = conf.PollInterval
	loop.Add(ctl, conf.NewStatsLogger(ctl))

	if conf.MQTTBrokerURL != "" {
		pub, err := mqtt.NewPublisher(conf.MQTTBrokerURL, conf.Ref, conf.Meta, ctl)
		if err != nil {
			glog.Exitf("mqtt: %v", err)
		}
		ctl.AddSink(pub)
		loop.Add(pub)
	}

	if conf.HTTPAddr != "" {
		hub := websocket.NewHub()
		ctl.AddSink(hub)
		reg := metrics.NewRegistry()
		reg.MustRegister(metrics.NewCollector(conf.Ref, ctl))
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		mux.Handle("/ws", hub.Handler())
		loop.AddRunnable(fx.NamedRun("http", &httpServer{
			Server: &http.Server{Addr: conf.HTTPAddr, Handler: mux},
			Closer: hub,
		}))
	}

	glog.Infof("receiver %s reading %s at %d baud", conf.Ref.Name(), conf.Device, conf.Baud)
	loop.RunOrFail()
}
