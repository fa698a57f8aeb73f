package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type RunConfig struct {
	SleepTime float64 `mapstructure:"sleep_time"` // seconds between cycles
	Pause     float64 `mapstructure:"pause"`      // seconds between phases of a cycle
}

type MQTTConfig struct {
	Hostname              string `mapstructure:"hostname"`
	Port                  int    `mapstructure:"port"`
	Username              string `mapstructure:"username"`
	Password              string `mapstructure:"password"`
	ClientID              string `mapstructure:"client_id"`
	DiscoveryPrefix       string `mapstructure:"discovery_prefix"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
}

type ONUConfig struct {
	IP             string `mapstructure:"ip"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Ping           bool   `mapstructure:"ping"`
	PingPrivileged bool   `mapstructure:"ping_privileged"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type HealthConfig struct {
	Port string `mapstructure:"port"` // empty disables the endpoint
}

type Config struct {
	Run     RunConfig     `mapstructure:"run"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	ONU     ONUConfig     `mapstructure:"onu"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Health  HealthConfig  `mapstructure:"health"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Interval is the configured pause between full poll cycles.
func (c *Config) Interval() time.Duration {
	return seconds(c.Run.SleepTime)
}

// PhasePause is the short pause held between the status and alarms
// phases and after publishing.
func (c *Config) PhasePause() time.Duration {
	return seconds(c.Run.Pause)
}

// BrokerAuth reports whether both broker credentials are set. Either one
// missing disables broker authentication.
func (c *Config) BrokerAuth() bool {
	return c.MQTT.Username != "" && c.MQTT.Password != ""
}

// BrokerURL renders mqtt.hostname as a broker URL. A hostname that already
// carries a scheme is used verbatim.
func (c *Config) BrokerURL() string {
	if strings.Contains(c.MQTT.Hostname, "://") {
		return c.MQTT.Hostname
	}
	return fmt.Sprintf("mqtt://%s:%d", c.MQTT.Hostname, c.MQTT.Port)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// env overrides: G55_ONU_PASSWORD etc.
	v.SetEnvPrefix("G55")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("run.sleep_time", 60)
	v.SetDefault("run.pause", 0.1)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("mqtt.connect_timeout_seconds", 30)
	v.SetDefault("onu.timeout_seconds", 10)
	v.SetDefault("onu.ping", false)
	v.SetDefault("onu.ping_privileged", false)
	v.SetDefault("kafka.topic", "g55.telemetry")
	v.SetDefault("health.port", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	// quick sanity checks
	if cfg.ONU.TimeoutSeconds <= 0 {
		cfg.ONU.TimeoutSeconds = 10
	}
	if cfg.MQTT.ConnectTimeoutSeconds <= 0 {
		cfg.MQTT.ConnectTimeoutSeconds = 30
	}
	if cfg.Run.Pause < 0 {
		cfg.Run.Pause = 0
	}

	return &cfg, nil
}

// Validate reports the first missing or out-of-range required setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Run.SleepTime <= 0 {
		errs = append(errs, errors.New("run.sleep_time must be positive"))
	}
	if c.MQTT.Hostname == "" {
		errs = append(errs, errors.New("mqtt.hostname is required"))
	}
	if c.ONU.IP == "" {
		errs = append(errs, errors.New("onu.ip is required"))
	}
	if c.ONU.Username == "" {
		errs = append(errs, errors.New("onu.username is required"))
	}
	if c.ONU.Password == "" {
		errs = append(errs, errors.New("onu.password is required"))
	}
	return errors.Join(errs...)
}
