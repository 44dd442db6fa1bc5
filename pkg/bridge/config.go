package bridge

import (
	"flag"
	"fmt"
	"os"
)

// Modes of remote peers.
const (
	// ModeMQTT bridges the link to <id>/rx and <id>/tx on the broker.
	ModeMQTT = "mqtt"
	// ModeWebsocket serves one websocket peer at a time on /link.
	ModeWebsocket = "ws"
	// ModeTCP serves one length-prefixed stream peer at a time.
	ModeTCP = "tcp"
)

// LinkPath is the websocket endpoint.
const LinkPath = "/link"

// Config defines the bridge.
type Config struct {
	Mode   string
	Listen string
}

var defaultConfig = Config{
	Mode:   ModeMQTT,
	Listen: ":9181",
}

func init() {
	if val := os.Getenv("FRAMELINK_BRIDGE_MODE"); val != "" {
		defaultConfig.Mode = val
	}
	if val := os.Getenv("FRAMELINK_BRIDGE_LISTEN"); val != "" {
		defaultConfig.Listen = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Mode, "mode", defaultConfig.Mode, "Remote peers: mqtt, ws or tcp")
	flag.StringVar(&defaultConfig.Listen, "listen", defaultConfig.Listen, "Listen address of ws and tcp modes")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Validate checks the config.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeMQTT, ModeWebsocket, ModeTCP:
		return nil
	}
	return fmt.Errorf("unknown mode %q", c.Mode)
}
