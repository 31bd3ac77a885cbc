package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/illmade-knight/rtview-feed/pkg/consumers"
	"github.com/illmade-knight/rtview-feed/pkg/feeds"
	"github.com/illmade-knight/rtview-feed/pkg/feedservice"
	"github.com/illmade-knight/rtview-feed/pkg/rtview"
	"github.com/illmade-knight/rtview-feed/pkg/supervisor"
)

// EnvPrefix prefixes every environment override, e.g. RTVIEW_RTVIEW_TARGET_URL.
const EnvPrefix = "RTVIEW"

// Source kinds.
const (
	SourcePubNub = "pubnub"
	SourceMQTT   = "mqtt"
	SourcePubSub = "pubsub"
)

// MQTTConfig holds the MQTT source settings.
type MQTTConfig struct {
	BrokerURL          string        `mapstructure:"broker_url"`
	ClientIDPrefix     string        `mapstructure:"client_id_prefix"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	KeepAlive          time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	ReconnectWaitMax   time.Duration `mapstructure:"reconnect_wait_max"`
	TopicPrefix        string        `mapstructure:"topic_prefix"`
	QoS                int           `mapstructure:"qos"`
	CACertFile         string        `mapstructure:"ca_cert_file"`
	ClientCertFile     string        `mapstructure:"client_cert_file"`
	ClientKeyFile      string        `mapstructure:"client_key_file"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// PubSubConfig holds the Google Cloud Pub/Sub source settings.
type PubSubConfig struct {
	ProjectID          string `mapstructure:"project_id"`
	CredentialsFile    string `mapstructure:"credentials_file"`
	SubscriptionPrefix string `mapstructure:"subscription_prefix"`
}

// SourceConfig selects and configures where feed messages come from.
type SourceConfig struct {
	Kind   string `mapstructure:"kind"`
	PubNub struct {
		UserID string `mapstructure:"user_id"`
	} `mapstructure:"pubnub"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	PubSub PubSubConfig `mapstructure:"pubsub"`
}

// Config holds all configuration for the application.
type Config struct {
	LogLevel   string `mapstructure:"log_level"`
	LogConsole bool   `mapstructure:"log_console"`

	// HTTPAddr is the status server address. Empty disables it.
	HTTPAddr            string        `mapstructure:"http_addr"`
	ResubscribeInterval time.Duration `mapstructure:"resubscribe_interval"`
	InputChanCapacity   int           `mapstructure:"input_chan_capacity"`
	ShutdownGrace       time.Duration `mapstructure:"shutdown_grace"`

	RTView struct {
		TargetURL string        `mapstructure:"target_url"`
		Timeout   time.Duration `mapstructure:"timeout"`
	} `mapstructure:"rtview"`

	Source SourceConfig `mapstructure:"source"`

	// Feeds overrides catalog identifiers, keyed by feed name.
	Feeds map[string]feeds.Settings `mapstructure:"feeds"`
}

// RegisterFlags adds the command-line overrides to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Bool("log-console", false, "Human-readable console logging")
	fs.String("http-addr", ":8080", "Status server address, empty to disable")
	fs.String("source", SourcePubNub, "Message source (pubnub, mqtt, pubsub)")
	fs.String("target-url", rtview.DefaultTargetURL, "RTView DataServer base URL")
	fs.Duration("resubscribe-interval", supervisor.DefaultInterval, "Time between resubscription cycles")
}

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	"log-level":            "log_level",
	"log-console":          "log_console",
	"http-addr":            "http_addr",
	"source":               "source.kind",
	"target-url":           "rtview.target_url",
	"resubscribe-interval": "resubscribe_interval",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_console", false)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("resubscribe_interval", supervisor.DefaultInterval)
	v.SetDefault("input_chan_capacity", consumers.DefaultInputChanCapacity)
	v.SetDefault("shutdown_grace", feedservice.DefaultShutdownGrace)

	v.SetDefault("rtview.target_url", rtview.DefaultTargetURL)
	v.SetDefault("rtview.timeout", time.Duration(0))

	v.SetDefault("source.kind", SourcePubNub)
	v.SetDefault("source.pubnub.user_id", "")

	v.SetDefault("source.mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("source.mqtt.client_id_prefix", "rtview-feed-")
	v.SetDefault("source.mqtt.username", "")
	v.SetDefault("source.mqtt.password", "")
	v.SetDefault("source.mqtt.keep_alive", 30*time.Second)
	v.SetDefault("source.mqtt.connect_timeout", 10*time.Second)
	v.SetDefault("source.mqtt.reconnect_wait_max", time.Minute)
	v.SetDefault("source.mqtt.topic_prefix", "")
	v.SetDefault("source.mqtt.qos", 1)
	v.SetDefault("source.mqtt.ca_cert_file", "")
	v.SetDefault("source.mqtt.client_cert_file", "")
	v.SetDefault("source.mqtt.client_key_file", "")
	v.SetDefault("source.mqtt.insecure_skip_verify", false)

	v.SetDefault("source.pubsub.project_id", "")
	v.SetDefault("source.pubsub.credentials_file", "")
	v.SetDefault("source.pubsub.subscription_prefix", "")

	// Catalog defaults are registered so that env overrides of feed keys are seen.
	for _, f := range feeds.NewCatalog(nil) {
		v.SetDefault("feeds."+f.Name+".channel", f.Channel)
		v.SetDefault("feeds."+f.Name+".cache", f.CacheName)
		v.SetDefault("feeds."+f.Name+".subscribe_key", f.SubscribeKey)
	}
}

// Load layers defaults, the config file, environment and flags, in that
// order of increasing precedence. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// --- 1. Defaults ---
	setDefaults(v)

	// --- 2. Flags ---
	configFile := ""
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
	}

	// --- 3. Config file ---
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", configFile, err)
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	// --- 4. Environment ---
	// e.g. RTVIEW_SOURCE_MQTT_BROKER_URL overrides source.mqtt.broker_url.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// --- 5. Unmarshal ---
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourcePubNub, SourceMQTT:
	case SourcePubSub:
		if c.Source.PubSub.ProjectID == "" {
			return errors.New("source.pubsub.project_id is required for the pubsub source")
		}
	default:
		return fmt.Errorf("unknown source kind %q (want pubnub, mqtt or pubsub)", c.Source.Kind)
	}
	if c.Source.MQTT.QoS < 0 || c.Source.MQTT.QoS > 2 {
		return fmt.Errorf("source.mqtt.qos must be 0, 1 or 2, got %d", c.Source.MQTT.QoS)
	}
	for name := range c.Feeds {
		if !isCatalogFeed(name) {
			return fmt.Errorf("unknown feed %q in feeds section", name)
		}
	}
	return nil
}

func isCatalogFeed(name string) bool {
	for _, n := range feeds.Names {
		if n == name {
			return true
		}
	}
	return false
}

// Catalog returns the feed catalog with this config's overrides applied.
func (c *Config) Catalog() []feeds.Feed {
	return feeds.NewCatalog(c.Feeds)
}

// ClientConfig returns the DataServer client settings.
func (c *Config) ClientConfig() rtview.ClientConfig {
	return rtview.ClientConfig{TargetURL: c.RTView.TargetURL, Timeout: c.RTView.Timeout}
}

// ServiceConfig returns the feed service settings.
func (c *Config) ServiceConfig() feedservice.Config {
	return feedservice.Config{
		HTTPAddr:            c.HTTPAddr,
		ResubscribeInterval: c.ResubscribeInterval,
		ShutdownGrace:       c.ShutdownGrace,
	}
}
