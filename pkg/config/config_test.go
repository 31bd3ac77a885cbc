package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/rtview-feed/pkg/consumers"
	"github.com/illmade-knight/rtview-feed/pkg/feeds"
	"github.com/illmade-knight/rtview-feed/pkg/rtview"
	"github.com/illmade-knight/rtview-feed/pkg/supervisor"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, supervisor.DefaultInterval, cfg.ResubscribeInterval)
	assert.Equal(t, consumers.DefaultInputChanCapacity, cfg.InputChanCapacity)
	assert.Equal(t, rtview.DefaultTargetURL, cfg.RTView.TargetURL)
	assert.Zero(t, cfg.RTView.Timeout)
	assert.Equal(t, SourcePubNub, cfg.Source.Kind)
	assert.Equal(t, 1, cfg.Source.MQTT.QoS)

	catalog := cfg.Catalog()
	require.Len(t, catalog, 3)
	assert.Equal(t, "pubnub-market-orders", catalog[0].Channel)
	assert.Equal(t, "PubNubSensorData", catalog[2].CacheName)
}

func TestLoad_Layering(t *testing.T) {
	path := writeConfigFile(t, `
log_level: debug
http_addr: ""
resubscribe_interval: 30s
rtview:
  target_url: http://dataserver:3278/rtvdata
  timeout: 5s
source:
  kind: mqtt
  mqtt:
    broker_url: tls://broker:8883
    topic_prefix: rtview/
    qos: 0
feeds:
  weather:
    channel: my-weather
`)
	t.Setenv("RTVIEW_RTVIEW_TIMEOUT", "7s")
	t.Setenv("RTVIEW_FEEDS_SENSOR_CACHE", "Sensors")

	cfg, err := Load(newFlagSet(t, "--config", path, "--log-level", "warn"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel, "flags beat the file")
	assert.Equal(t, "", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.ResubscribeInterval)
	assert.Equal(t, "http://dataserver:3278/rtvdata", cfg.RTView.TargetURL)
	assert.Equal(t, 7*time.Second, cfg.RTView.Timeout, "env beats the file")
	assert.Equal(t, SourceMQTT, cfg.Source.Kind)

	mqttCfg := cfg.MQTTClientConfig()
	assert.Equal(t, "tls://broker:8883", mqttCfg.BrokerURL)
	assert.Equal(t, "rtview/", mqttCfg.TopicPrefix)
	assert.Equal(t, byte(0), mqttCfg.QoS)
	assert.Equal(t, 10*time.Second, mqttCfg.ConnectTimeout)

	catalog := cfg.Catalog()
	assert.Equal(t, "my-weather", catalog[1].Channel)
	assert.Equal(t, "PubNubWeatherData", catalog[1].CacheName)
	assert.Equal(t, "Sensors", catalog[2].CacheName)

	svcCfg := cfg.ServiceConfig()
	assert.Equal(t, 30*time.Second, svcCfg.ResubscribeInterval)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(newFlagSet(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("UnknownSource", func(t *testing.T) {
		_, err := Load(newFlagSet(t, "--source", "carrier-pigeon"))
		assert.ErrorContains(t, err, "unknown source kind")
	})

	t.Run("PubSubNeedsProject", func(t *testing.T) {
		_, err := Load(newFlagSet(t, "--source", SourcePubSub))
		assert.ErrorContains(t, err, "project_id is required")
	})

	t.Run("UnknownFeed", func(t *testing.T) {
		path := writeConfigFile(t, "feeds:\n  traffic:\n    channel: x\n")
		_, err := Load(newFlagSet(t, "--config", path))
		assert.ErrorContains(t, err, `unknown feed "traffic"`)
	})

	t.Run("BadQoS", func(t *testing.T) {
		t.Setenv("RTVIEW_SOURCE_MQTT_QOS", "5")
		_, err := Load(nil)
		assert.ErrorContains(t, err, "qos")
	})
}

func TestConfig_PubNubConfig(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	pn := cfg.PubNubConfig(cfg.Catalog())
	assert.Equal(t, map[string]string{
		"pubnub-market-orders":  "sub-c-4377ab04-f100-11e3-bffd-02ee2ddab7fe",
		"pubnub-weather":        "sub-c-b1cadece-f0fa-11e3-928e-02ee2ddab7fe",
		"pubnub-sensor-network": "sub-c-5f1b7c8e-fbee-11e3-aa40-02ee2ddab7fe",
	}, pn.Keys)
	assert.Equal(t, consumers.DefaultInputChanCapacity, pn.InputChanCapacity)
}

func TestConfig_NewConsumer(t *testing.T) {
	ctx := context.Background()
	cfg, err := Load(nil)
	require.NoError(t, err)

	t.Run("PubNub", func(t *testing.T) {
		c, err := cfg.NewConsumer(ctx, cfg.Catalog(), zerolog.Nop())
		require.NoError(t, err)
		assert.IsType(t, &consumers.PubNubConsumer{}, c)
	})

	t.Run("MQTT", func(t *testing.T) {
		mqttCfg := *cfg
		mqttCfg.Source.Kind = SourceMQTT
		c, err := mqttCfg.NewConsumer(ctx, mqttCfg.Catalog(), zerolog.Nop())
		require.NoError(t, err)
		assert.IsType(t, &consumers.MQTTConsumer{}, c)
	})

	t.Run("Unknown", func(t *testing.T) {
		bad := *cfg
		bad.Source.Kind = "smoke-signals"
		_, err := bad.NewConsumer(ctx, []feeds.Feed{}, zerolog.Nop())
		assert.Error(t, err)
	})
}
