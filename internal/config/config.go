// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration, loaded from config.yaml.
type Config struct {
	Server      string            `yaml:"server"`
	Username    string            `yaml:"username"`
	History     HistoryConfig     `yaml:"history"`
	Transport   TransportConfig   `yaml:"transport"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Status      StatusConfig      `yaml:"status"`
}

// HistoryConfig controls the message history fetch.
type HistoryConfig struct {
	Path       string `yaml:"path"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// Timeout returns the fetch timeout. A negative timeout_sec disables it and
// Timeout returns zero.
func (h HistoryConfig) Timeout() time.Duration {
	if h.TimeoutSec < 0 {
		return 0
	}
	return time.Duration(h.TimeoutSec) * time.Second
}

// TransportConfig holds STOMP-over-WebSocket connection settings. A
// negative heart-beat disables that direction.
type TransportConfig struct {
	Endpoint         string `yaml:"endpoint"`
	SockJS           *bool  `yaml:"sockjs"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	HeartbeatSendMs  int    `yaml:"heartbeat_send_ms"`
	HeartbeatRecvMs  int    `yaml:"heartbeat_recv_ms"`
}

// UseSockJS reports whether the endpoint is served by SockJS.
func (t TransportConfig) UseSockJS() bool {
	return t.SockJS == nil || *t.SockJS
}

// ReconnectDelay returns the fixed wait between reconnect attempts.
func (t TransportConfig) ReconnectDelay() time.Duration {
	return time.Duration(t.ReconnectDelayMs) * time.Millisecond
}

// HeartbeatSend returns the outgoing heart-beat interval.
func (t TransportConfig) HeartbeatSend() time.Duration {
	return time.Duration(t.HeartbeatSendMs) * time.Millisecond
}

// HeartbeatRecv returns the expected incoming heart-beat interval.
func (t TransportConfig) HeartbeatRecv() time.Duration {
	return time.Duration(t.HeartbeatRecvMs) * time.Millisecond
}

// ChannelsConfig names the broker destinations.
type ChannelsConfig struct {
	Topic string `yaml:"topic"`
	Join  string `yaml:"join"`
	Chat  string `yaml:"chat"`
}

// DiagnosticsConfig selects where diagnostic records are persisted. An
// empty driver keeps them in the log only.
type DiagnosticsConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	User     string `yaml:"user"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// StatusConfig enables the local status server and periodic report.
type StatusConfig struct {
	Port           int    `yaml:"port"`
	ReportSchedule string `yaml:"report_schedule"`
}

// Default returns a validated Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server == "" {
		c.Server = "http://localhost:8080"
	}
	c.Username = strings.TrimSpace(c.Username)
	if c.History.Path == "" {
		c.History.Path = "/messages"
	}
	if c.History.TimeoutSec == 0 {
		c.History.TimeoutSec = 10
	}
	if c.Transport.Endpoint == "" {
		c.Transport.Endpoint = "/ws"
	}
	if c.Transport.ReconnectDelayMs == 0 {
		c.Transport.ReconnectDelayMs = 5000
	}
	if c.Transport.HeartbeatSendMs == 0 {
		c.Transport.HeartbeatSendMs = 10000
	}
	if c.Transport.HeartbeatRecvMs == 0 {
		c.Transport.HeartbeatRecvMs = 10000
	}
	if c.Channels.Topic == "" {
		c.Channels.Topic = "/topic/public"
	}
	if c.Channels.Join == "" {
		c.Channels.Join = "/app/chat.addUser"
	}
	if c.Channels.Chat == "" {
		c.Channels.Chat = "/app/chat.sendMessage"
	}
	switch c.Diagnostics.Driver {
	case "sqlite":
		if c.Diagnostics.Path == "" {
			c.Diagnostics.Path = "switchboard.db"
		}
	case "mysql":
		if c.Diagnostics.Host == "" {
			c.Diagnostics.Host = "127.0.0.1"
		}
		if c.Diagnostics.Port == 0 {
			c.Diagnostics.Port = 3306
		}
		if c.Diagnostics.Database == "" {
			c.Diagnostics.Database = "switchboard"
		}
	}
}

// Validate checks that all fields are present and consistent. Call it again
// after overriding fields from flags.
func (c *Config) Validate() error {
	var errs []string
	if u, err := url.Parse(c.Server); err != nil || u.Host == "" {
		errs = append(errs, fmt.Sprintf("server %q is not a valid url", c.Server))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Sprintf("server scheme must be http or https, got %q", u.Scheme))
	}
	if !strings.HasPrefix(c.History.Path, "/") {
		errs = append(errs, "history.path must start with /")
	}
	if c.Transport.ReconnectDelayMs < 0 {
		errs = append(errs, "transport.reconnect_delay_ms must not be negative")
	}
	for _, ch := range []struct{ name, dest string }{
		{"channels.topic", c.Channels.Topic},
		{"channels.join", c.Channels.Join},
		{"channels.chat", c.Channels.Chat},
	} {
		if !strings.HasPrefix(ch.dest, "/") {
			errs = append(errs, ch.name+" must start with /")
		}
	}
	switch c.Diagnostics.Driver {
	case "", "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("diagnostics.driver must be sqlite or mysql, got %q", c.Diagnostics.Driver))
	}
	if c.Status.Port < 0 || c.Status.Port > 65535 {
		errs = append(errs, fmt.Sprintf("status.port %d out of range", c.Status.Port))
	}
	if c.Status.ReportSchedule != "" {
		if _, err := cron.ParseStandard(c.Status.ReportSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("status.report_schedule: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
