// Package env provides the common configuration of the commands.
package env

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/framelink/pkg/l0/comm"
	"github.com/robotalks/framelink/pkg/l0/frame"
	"github.com/robotalks/framelink/pkg/l0/uart"
	"github.com/robotalks/framelink/pkg/l1/comm/mqtt"
)

// Config provides common options to open a link and reach it remotely.
type Config struct {
	// ID identifies the link, it's the MQTT topic prefix of the link.
	ID string
	// Device is the address of the serial stream, see uart.Open.
	Device string
	// MQTTBrokerURL specifies the MQTT broker to use.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
	// BufSize and Slots size the link rings, see frame.Config.
	BufSize int
	Slots   int
	// MetricsAddr is where Prometheus metrics are served, empty to disable.
	MetricsAddr string
	// StatsInterval is the period of stats reports.
	StatsInterval time.Duration
}

var defaultConfig = Config{
	Device:        "loop://",
	MQTTBrokerURL: "mqtt://localhost:1883/framelink/",
	BufSize:       frame.DefaultConfig.BufSize,
	Slots:         frame.DefaultConfig.Slots,
	StatsInterval: 5 * time.Second,
}

func init() {
	defaultConfig.ID = MachineID()
	defaultConfig.loadEnv()
}

func envInt(name string, val *int) {
	str := os.Getenv(name)
	if str == "" {
		return
	}
	n, err := strconv.Atoi(str)
	if err != nil {
		glog.Warningf("ignore %s=%q: %v", name, str, err)
		return
	}
	*val = n
}

func (c *Config) loadEnv() {
	if val := os.Getenv("FRAMELINK_ID"); val != "" {
		c.ID = val
	}
	if val := os.Getenv("FRAMELINK_DEVICE"); val != "" {
		c.Device = val
	}
	if val := os.Getenv("FRAMELINK_MQTT_URL"); val != "" {
		c.MQTTBrokerURL = val
	}
	if val := os.Getenv("FRAMELINK_METRICS_ADDR"); val != "" {
		c.MetricsAddr = val
	}
	if val := os.Getenv("FRAMELINK_STATS_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.StatsInterval = d
		} else {
			glog.Warningf("ignore FRAMELINK_STATS_INTERVAL=%q: %v", val, err)
		}
	}
	envInt("FRAMELINK_BUF_SIZE", &c.BufSize)
	envInt("FRAMELINK_SLOTS", &c.Slots)
}

// BindFlags binds the options to command line flags.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ID, "id", c.ID, "Link ID")
	fs.StringVar(&c.Device, "device", c.Device, "Serial device: /dev/ttyX, tcp://host:port or loop://")
	fs.StringVar(&c.MQTTBrokerURL, "mqtt", c.MQTTBrokerURL, "MQTT broker URL")
	fs.IntVar(&c.BufSize, "buf-size", c.BufSize, "Link buffer size in bytes, a power of two")
	fs.IntVar(&c.Slots, "slots", c.Slots, "Link packet slots, a power of two")
	fs.StringVar(&c.MetricsAddr, "metrics", c.MetricsAddr, "Address serving Prometheus metrics")
	fs.DurationVar(&c.StatsInterval, "stats-interval", c.StatsInterval, "Stats report interval")
}

// SetupFlags sets command line flags.
func SetupFlags() {
	defaultConfig.BindFlags(flag.CommandLine)
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LinkConfig returns the validated link config.
func (c *Config) LinkConfig() (frame.Config, error) {
	cfg := frame.DefaultConfig
	cfg.BufSize, cfg.Slots = c.BufSize, c.Slots
	return cfg, cfg.Validate()
}

// LinkInfo describes the link for remote peers.
func (c *Config) LinkInfo() mqtt.LinkInfo {
	return mqtt.LinkInfo{ID: c.ID, Device: c.Device, BufSize: c.BufSize, Slots: c.Slots}
}

// Open creates a Conn and opens the device stream for it.
func (c *Config) Open() (*comm.Conn, io.ReadWriteCloser, error) {
	cfg, err := c.LinkConfig()
	if err != nil {
		return nil, nil, err
	}
	conn, err := comm.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	stream, err := uart.Open(c.Device)
	if err != nil {
		return nil, nil, fmt.Errorf("open device %s: %w", c.Device, err)
	}
	return conn, stream, nil
}

// NewQueue creates an MQTT Queue. The bridge queue gets a will clearing
// the link description.
func (c *Config) NewQueue(bridge bool) (*mqtt.Queue, error) {
	opts, topicPrefix, err := mqtt.ClientOptionsFromURL(c.MQTTBrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}
	if bridge {
		mqtt.SetMetaWill(opts, topicPrefix, c.ID)
		if opts.ClientID == "" {
			opts.SetClientID("framelink:" + c.ID)
		}
	}
	return mqtt.NewQueue(opts, topicPrefix), nil
}
