// Package sh provides the interactive shell of sbuscli.
package sh

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/sbus.go/pkg/receiver"
	"github.com/robotalks/sbus.go/pkg/sbus"
	"github.com/robotalks/sbus.go/pkg/telemetry/mqtt"
	"github.com/robotalks/sbus.go/pkg/telemetry/msgs"
)

// Config is the connection settings of the shell.
type Config struct {
	MQTTBrokerURL string
	Ref           receiver.Ref
	Timeout       time.Duration
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell  *ishell.Shell
	Config *Config
	Client *mqtt.Client

	// Ref is the receiver the commands talk to.
	Ref receiver.Ref
}

const (
	shellKey     = "$shell"
	noneSelected = "[none] > "
)

var (
	defaultConfig = Config{
		MQTTBrokerURL: "mqtt://localhost:1883/robo/",
		Timeout:       time.Second,
	}

	evalOnly   bool
	outputJSON bool

	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&UseCmd,
		&StatusCmd,
		&WatchCmd,
	}
)

func init() {
	if val := os.Getenv("SBUS_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL.")
	flag.StringVar(&defaultConfig.Ref.Type, "type", defaultConfig.Ref.Type, "Receiver type.")
	flag.StringVar(&defaultConfig.Ref.ID, "id", defaultConfig.Ref.ID, "Receiver ID.")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Command timeout.")
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// New creates a new shell.
func New(conf *Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(noneSelected)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Connect connects to the broker.
func (s *Shell) Connect() error {
	client, err := mqtt.NewClient(s.Config.MQTTBrokerURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*s.timeout())
	defer cancel()
	if err = client.Connect(ctx); err != nil {
		client.Close()
		return fmt.Errorf("connect %s: %w", s.Config.MQTTBrokerURL, err)
	}
	s.Client = client
	return nil
}

// Use selects the receiver for following commands.
func (s *Shell) Use(ref receiver.Ref) {
	s.Ref = ref
	s.Shell.SetPrompt(ref.Name() + " > ")
}

// SelectReceiver discovers receivers and asks for a choice.
func (s *Shell) SelectReceiver(filter func(mqtt.Info) bool) (*mqtt.Info, error) {
	infos, err := s.Discover(filter)
	if err != nil || len(infos) == 0 {
		return nil, err
	}
	var index int
	if len(infos) > 1 {
		if !s.Interactive {
			return nil, fmt.Errorf("more than 1 receivers discovered in non-interactive mode")
		}
		items := make([]string, len(infos))
		for n, info := range infos {
			items[n] = FormatInfo(info)
		}
		index = s.Shell.MultiChoice(items, "Which one to use?")
		if index < 0 {
			return nil, nil
		}
	}
	return &infos[index], nil
}

// Discover lists receivers online.
func (s *Shell) Discover(filter func(mqtt.Info) bool) ([]mqtt.Info, error) {
	infos, err := s.Client.Discover(context.Background())
	if err != nil || filter == nil {
		return infos, err
	}
	items := make([]mqtt.Info, 0, len(infos))
	for _, info := range infos {
		if filter(info) {
			items = append(items, info)
		}
	}
	return items, nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) error {
	if err := s.Connect(); err != nil {
		return err
	}
	defer s.Client.Close()

	if s.Config.Ref.IsValid() {
		s.Use(s.Config.Ref)
	}
	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if s.Interactive {
		s.Shell.Run()
		return nil
	}
	return fmt.Errorf("command expected")
}

func (s *Shell) timeout() time.Duration {
	if s.Config.Timeout > 0 {
		return s.Config.Timeout
	}
	return time.Second
}

// printJSON prints v in JSON, returns false if JSON output is disabled.
func (s *Shell) printJSON(c *ishell.Context, v interface{}) bool {
	if !s.OutputJSON {
		return false
	}
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return true
	}
	c.Println(string(out))
	return true
}

// FormatInfo prints Info into friendly string for display.
func FormatInfo(info mqtt.Info) string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "%s", info.Ref.Name())
	if info.Meta.Description != "" {
		fmt.Fprintf(&w, ": %s", info.Meta.Description)
	}
	return w.String()
}

// FormatChannels prints channel values in one line.
func FormatChannels(ev *msgs.ChannelsEvent) string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "%-11s %-11s", ev.SyncState(), ev.FailsafeStatus())
	ch := ev.ChannelSet()
	for _, v := range ch.Analog() {
		fmt.Fprintf(&w, " %4d", v)
	}
	for n := sbus.NumAnalogChannels + 1; n <= sbus.NumChannels; n++ {
		if ch.Digital(n) {
			w.WriteString(" 1")
		} else {
			w.WriteString(" 0")
		}
	}
	return w.String()
}

// FormatStats prints statistics in one line.
func FormatStats(ev *msgs.StatsEvent) string {
	return fmt.Sprintf("valid=%d lost=%d resync=%d overruns=%d",
		ev.Valid, ev.Lost, ev.Resync, ev.Overruns)
}

// mustSelect wraps command func which requires a selected receiver. A
// receiver can also be given as TYPE ID arguments.
func mustSelect(fn func(c *ishell.Context, ref receiver.Ref)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := ShellFrom(c)
		ref := s.Ref
		if len(c.Args) >= 2 {
			ref = receiver.Ref{Type: c.Args[0], ID: c.Args[1]}
		}
		if !ref.IsValid() {
			info, err := s.SelectReceiver(nil)
			if err != nil {
				c.Err(err)
				return
			}
			if info == nil {
				c.Err(fmt.Errorf("no receiver selected"))
				return
			}
			ref = info.Ref
		}
		fn(c, ref)
	}
}

type statusOutput struct {
	Ref      receiver.Ref        `json:"ref"`
	Channels *msgs.ChannelsEvent `json:"channels"`
	Stats    *msgs.StatsEvent    `json:"stats"`
}

var (
	// DiscoverCmd discovers receivers.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "[TYPE]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var filter func(mqtt.Info) bool
			if len(c.Args) > 0 {
				filter = func(info mqtt.Info) bool { return info.Ref.Type == c.Args[0] }
			}
			infos, err := s.Discover(filter)
			if err != nil {
				c.Err(err)
				return
			}
			if infos == nil {
				infos = []mqtt.Info{}
			}
			if s.printJSON(c, infos) {
				return
			}
			if len(infos) == 0 {
				c.Println("No receivers found")
				return
			}
			for _, info := range infos {
				c.Println(FormatInfo(info))
			}
		},
	}

	// UseCmd selects a receiver.
	UseCmd = ishell.Cmd{
		Name:    "use",
		Aliases: []string{"u"},
		Help:    "[TYPE [ID]]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) >= 2 {
				s.Use(receiver.Ref{Type: c.Args[0], ID: c.Args[1]})
				return
			}
			var filter func(mqtt.Info) bool
			if len(c.Args) == 1 {
				filter = func(info mqtt.Info) bool { return info.Ref.Type == c.Args[0] }
			}
			info, err := s.SelectReceiver(filter)
			if err != nil {
				c.Err(err)
				return
			}
			if info == nil {
				c.Err(fmt.Errorf("no receiver discovered"))
				return
			}
			s.Use(info.Ref)
		},
	}

	// StatusCmd queries the latest status of a receiver.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"s"},
		Help:    "[TYPE ID]",
		Func: mustSelect(func(c *ishell.Context, ref receiver.Ref) {
			s := ShellFrom(c)
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
			defer cancel()
			reply, err := s.Client.Query(ctx, ref)
			if err != nil {
				c.Err(err)
				return
			}
			if s.printJSON(c, &statusOutput{Ref: ref, Channels: reply.Channels, Stats: reply.Stats}) {
				return
			}
			c.Println(ref.Name())
			if reply.Channels != nil {
				c.Println(FormatChannels(reply.Channels))
			}
			if reply.Stats != nil {
				c.Println(FormatStats(reply.Stats))
			}
		}),
	}

	// WatchCmd streams events until interrupted.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "[TYPE ID] (Ctrl-C to stop)",
		Func: mustSelect(func(c *ishell.Context, ref receiver.Ref) {
			s := ShellFrom(c)
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			if s.Interactive {
				c.Println("Press Ctrl-C to stop")
			}
			err := s.Client.Watch(ctx, ref, func(msg msgs.Message) {
				if s.printJSON(c, msg) {
					return
				}
				switch m := msg.(type) {
				case *msgs.ChannelsEvent:
					c.Println(FormatChannels(m))
				case *msgs.StatsEvent:
					glog.V(1).Info(FormatStats(m))
				}
			})
			if err != nil && ctx.Err() == nil {
				c.Err(err)
			}
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	SetupFlags()
	flag.Parse()
	if err := New(NewConfig()).Run(flag.Args()...); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
