// Package config loads the agent's TOML configuration file and layers
// explicit CLI flags on top of it, mirroring the teacher's
// tomlConfig/coreConf/logConf convention.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

// Config describes the full TOML configuration, plus whatever a CLI
// flag has overridden.
type Config struct {
	Agent     AgentConf
	Transport TransportConf
	Logging   LogConf
}

// AgentConf describes the [agent] block.
type AgentConf struct {
	MaxSessions  int    `toml:"max-sessions"`
	MaxOutbound  int    `toml:"max-outbound-queue"`
	HeartbeatSec int    `toml:"heartbeat-interval-seconds"`
	NodeName     string `toml:"node-name"`
}

// TransportConf describes the [transport] block: exactly one selector
// is active at a time.
type TransportConf struct {
	Kind     string `toml:"kind"`
	Port     int    `toml:"port"`
	Device   string `toml:"device"`
	PoolSize int    `toml:"pool-size"`
}

// LogConf describes the [logging] block.
type LogConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// Default returns a Config with the same baseline values xrce-agentd
// falls back to when no file and no flags are given.
func Default() Config {
	return Config{
		Agent: AgentConf{
			MaxSessions:  256,
			MaxOutbound:  1024,
			HeartbeatSec: 5,
		},
		Transport: TransportConf{
			Kind:     "udp",
			Port:     2019,
			PoolSize: 64,
		},
		Logging: LogConf{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a TOML file at path into a fresh Default() configuration,
// so unset fields keep their defaults rather than zero values.
func Load(path string) (Config, error) {
	conf := Default()
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return conf, nil
}

// Flags describes the CLI flags that can override a loaded (or default)
// Config. AddFlags registers them on a FlagSet; Apply layers whichever
// flags were explicitly set on top of conf.
type Flags struct {
	Transport string
	Port      int
	Device    string
	PoolSize  int
	LogLevel  string
}

// AddFlags registers the agent's flags on flagSet, following the
// pack's pflag CLI convention.
func (f *Flags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.Transport, "transport", "", "transport kind: udp, tcp, serial, quic, ws")
	flagSet.IntVar(&f.Port, "port", 0, "listen port (udp, tcp, quic, ws)")
	flagSet.StringVar(&f.Device, "device", "", "serial device path")
	flagSet.IntVar(&f.PoolSize, "pool-size", 0, "max concurrent connections (tcp)")
	flagSet.StringVar(&f.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
}

// Apply overrides conf's fields with whichever flags flagSet recorded
// as explicitly set, leaving the rest of conf untouched.
func (f *Flags) Apply(conf Config, flagSet *pflag.FlagSet) Config {
	if flagSet.Changed("transport") {
		conf.Transport.Kind = f.Transport
	}
	if flagSet.Changed("port") {
		conf.Transport.Port = f.Port
	}
	if flagSet.Changed("device") {
		conf.Transport.Device = f.Device
	}
	if flagSet.Changed("pool-size") {
		conf.Transport.PoolSize = f.PoolSize
	}
	if flagSet.Changed("log-level") {
		conf.Logging.Level = f.LogLevel
	}
	return conf
}

// Validate checks that conf names a known transport kind and carries
// whatever fields that kind requires.
func (c Config) Validate() error {
	switch c.Transport.Kind {
	case "udp", "tcp", "quic", "ws":
		if c.Transport.Port <= 0 {
			return fmt.Errorf("config: transport %q requires a positive port", c.Transport.Kind)
		}
	case "serial":
		if c.Transport.Device == "" {
			return fmt.Errorf("config: transport %q requires a device path", c.Transport.Kind)
		}
	default:
		return fmt.Errorf("config: unknown transport kind %q", c.Transport.Kind)
	}
	return nil
}
