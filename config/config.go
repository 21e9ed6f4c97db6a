// Package config holds the client configuration, loaded from a JSON file.
package config

import (
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"time"
)

// Default values applied by New and by validation of unset fields.
const (
	DefaultKeepAlive      = 60
	DefaultConnectTimeout = 150
	DefaultAckTimeout     = 30

	DefaultReconnectBaseDelayMS = 1000
	DefaultReconnectMaxDelayMS  = 30000
	DefaultReconnectMaxAttempts = 10

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type Config struct {
	// Broker is the WebSocket endpoint and the browser-like headers sent with
	// the upgrade request.
	Broker struct {
		URL       string `json:"url"`
		Origin    string `json:"origin"`
		Referer   string `json:"referer"`
		UserAgent string `json:"user_agent"`
	} `json:"broker"`

	// ClientID is sent in CONNECT and in the connection URL.
	// If empty, a random one is generated per Client.
	ClientID string `json:"client_id"`

	// Keep Alive in s. PINGREQ is sent at this interval while connected.
	KeepAlive uint16 `json:"keep_alive"`

	// Time in s to wait for CONNACK before an attempt fails. Default 150s.
	ConnectTimeout int64 `json:"connect_timeout"`

	// Time in s to wait for PUBACK or SUBACK. Default 30s.
	AckTimeout int64 `json:"ack_timeout"`

	// If set, an unanswered PINGREQ does not drop the connection.
	PingTimeoutDisabled bool `json:"ping_timeout_disabled"`

	// Reconnect configures the linear, capped backoff used after connection loss.
	Reconnect struct {
		BaseDelayMS int64 `json:"base_delay_ms"`
		MaxDelayMS  int64 `json:"max_delay_ms"`
		MaxAttempts int   `json:"max_attempts"`
	} `json:"reconnect"`

	// Queue configures the outbound queue used while disconnected.
	// If Dir is set, queued messages are kept on disk across restarts.
	// Limit of 0 means unbounded.
	Queue struct {
		Dir   string `json:"dir"`
		Limit int    `json:"limit"`
	} `json:"queue"`

	// Log configures optional log output file as well as the log level setting.
	Log struct {
		File  string `json:"file"`
		Level string `json:"level"`
	} `json:"log"`

	// Metrics Address optionally specifies where to serve Prometheus metrics,
	// in the form "host:port". If empty, metrics are not served.
	Metrics struct {
		Address string `json:"address"`
	} `json:"metrics"`

	// SessionFile is the path of the JSON session written by the login flow.
	SessionFile string `json:"session_file"`
}

// New returns a Config with every default applied.
func New() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

func (c *Config) LoadFromFile(fPath string) error {
	f, err := os.Open(fPath)
	if err != nil {
		return errors.New("error opening config file: " + err.Error())
	}

	defer f.Close()

	if err = json.NewDecoder(f).Decode(c); err != nil {
		return errors.New("error reading config file: " + err.Error())
	}

	return c.Validate()
}

// Validate checks c and fills in defaults for unset values.
func (c *Config) Validate() error {
	if c.Broker.URL != "" {
		u, err := url.Parse(c.Broker.URL)
		if err != nil {
			return errors.New("invalid broker url: " + err.Error())
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return errors.New("invalid broker url: scheme must be ws or wss")
		}
		if u.Host == "" {
			return errors.New("invalid broker url: missing host")
		}
	}

	if c.Reconnect.MaxAttempts < 0 {
		return errors.New("reconnect max_attempts can not be negative")
	}
	if c.Queue.Limit < 0 {
		return errors.New("queue limit can not be negative")
	}

	c.setDefaults()

	if c.Reconnect.MaxDelayMS < c.Reconnect.BaseDelayMS {
		c.Reconnect.MaxDelayMS = c.Reconnect.BaseDelayMS
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.Broker.UserAgent == "" {
		c.Broker.UserAgent = DefaultUserAgent
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.Reconnect.BaseDelayMS <= 0 {
		c.Reconnect.BaseDelayMS = DefaultReconnectBaseDelayMS
	}
	if c.Reconnect.MaxDelayMS <= 0 {
		c.Reconnect.MaxDelayMS = DefaultReconnectMaxDelayMS
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultReconnectMaxAttempts
	}
}

func (c *Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}

func (c *Config) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

func (c *Config) AckTimeoutDuration() time.Duration {
	return time.Duration(c.AckTimeout) * time.Second
}

// ReconnectDelay returns the wait before reconnect attempt number attempt
// (starting at 1): base × attempt, capped at the max delay.
func (c *Config) ReconnectDelay(attempt int) time.Duration {
	base := time.Duration(c.Reconnect.BaseDelayMS) * time.Millisecond
	limit := time.Duration(c.Reconnect.MaxDelayMS) * time.Millisecond
	if attempt < 1 {
		attempt = 1
	}
	d := base * time.Duration(attempt)
	if d > limit || d < 0 {
		return limit
	}
	return d
}
