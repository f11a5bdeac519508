package receiver

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"gopkg.in/yaml.v3"

	"github.com/robotalks/sbus.go/pkg/sbus"
	"github.com/robotalks/sbus.go/pkg/sbus/source"
)

// Config defines the configurations for a receiver daemon.
type Config struct {
	Ref  Ref  `yaml:"ref"`
	Meta Meta `yaml:"meta"`

	// Device is the serial device the receiver is wired to.
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`

	PollInterval    time.Duration `yaml:"pollInterval"`
	MaxPollsPerTick int           `yaml:"maxPollsPerTick"`
	PublishInterval time.Duration `yaml:"publishInterval"`
	StatsInterval   time.Duration `yaml:"statsInterval"`

	// MQTTBrokerURL specifies the MQTT broker to publish to, empty to disable.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `yaml:"mqtt"`
	// HTTPAddr serves /metrics and /ws, empty to disable.
	HTTPAddr string `yaml:"http"`
}

var defaultConfig = Config{
	Ref:             Ref{Type: "sbus"},
	Meta:            Meta{Description: "SBUS receiver"},
	Device:          "/dev/ttyS1",
	Baud:            source.DefaultBaudRate,
	PollInterval:    3 * time.Millisecond,
	MaxPollsPerTick: DefaultMaxPollsPerTick,
	PublishInterval: DefaultPublishInterval,
	StatsInterval:   time.Minute,
	MQTTBrokerURL:   "mqtt://localhost:1883/robo/",
	HTTPAddr:        ":9108",
}

func init() {
	if val := os.Getenv("SBUS_DEVICE"); val != "" {
		defaultConfig.Device = val
	}
	if val, ok := os.LookupEnv("SBUS_MQTT_URL"); ok {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("SBUS_ID"); val != "" {
		defaultConfig.Ref.ID = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Ref.Type, "type", defaultConfig.Ref.Type, "Receiver type.")
	flag.StringVar(&defaultConfig.Ref.ID, "id", defaultConfig.Ref.ID, "Receiver ID, defaults to the machine ID.")
	flag.StringVar(&defaultConfig.Device, "device", defaultConfig.Device, "Serial device.")
	flag.IntVar(&defaultConfig.Baud, "baud", defaultConfig.Baud, "Serial baud rate.")
	flag.DurationVar(&defaultConfig.PollInterval, "poll-interval", defaultConfig.PollInterval, "Decoder poll interval.")
	flag.IntVar(&defaultConfig.MaxPollsPerTick, "max-polls", defaultConfig.MaxPollsPerTick, "Max decoder polls per interval.")
	flag.DurationVar(&defaultConfig.PublishInterval, "publish-interval", defaultConfig.PublishInterval, "Min interval between channel updates.")
	flag.DurationVar(&defaultConfig.StatsInterval, "stats-interval", defaultConfig.StatsInterval, "Interval of statistics logs, 0 to disable.")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL, empty to disable.")
	flag.StringVar(&defaultConfig.HTTPAddr, "http", defaultConfig.HTTPAddr, "Listen address for /metrics and /ws, empty to disable.")
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

// LoadFile overlays settings from a YAML file on the default config.
// Must be called before flag.Parse so flags take precedence.
func LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	conf := defaultConfig
	if err = yaml.NewDecoder(f).Decode(&conf); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	defaultConfig = conf
	return nil
}

// Validate fills derived defaults and checks the config.
func (c *Config) Validate() error {
	if c.Ref.ID == "" {
		c.Ref.ID = MachineID()
	}
	if !c.Ref.IsValid() {
		return fmt.Errorf("invalid receiver ref %q", c.Ref.Name())
	}
	if c.Device == "" {
		return fmt.Errorf("serial device must be specified")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

// NewController creates a controller using the config.
func (c *Config) NewController(src sbus.ByteSource) *Controller {
	ctl := NewController(src)
	ctl.MaxPollsPerTick = c.MaxPollsPerTick
	ctl.PublishInterval = c.PublishInterval
	return ctl
}

// NewStatsLogger creates a StatsLogger using the config.
func (c *Config) NewStatsLogger(src SnapshotSource) *StatsLogger {
	return &StatsLogger{Source: src, Interval: c.StatsInterval}
}

// MachineID retrieves an ID identifying the machine, derived from the
// machine ID so it is not exposed directly.
func MachineID() string {
	id, err := machineid.ProtectedID("sbus")
	if err != nil {
		glog.Warningf("machine id unavailable: %v", err)
		if id, err = os.Hostname(); err != nil {
			return "unknown"
		}
	}
	if len(id) > 16 {
		id = id[:16]
	}
	return id
}
