package consumers

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// usesTLS reports whether the broker URL asks for TLS, either by scheme or by
// the conventional MQTT-over-TLS port.
func usesTLS(u *url.URL) bool {
	switch strings.ToLower(u.Scheme) {
	case "tls", "ssl", "mqtts", "wss":
		return true
	}
	return u.Port() == "8883"
}

// brokerTLS returns the TLS settings for the configured broker, or nil for a
// plain tcp/ws broker. Certificate files are only meaningful for a TLS broker.
func brokerTLS(cfg *MQTTClientConfig, logger zerolog.Logger) (*tls.Config, error) {
	u, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT broker URL %q: %w", cfg.BrokerURL, err)
	}
	hasCerts := cfg.CACertFile != "" || cfg.ClientCertFile != "" || cfg.ClientKeyFile != ""
	if !usesTLS(u) {
		if hasCerts {
			return nil, fmt.Errorf("certificate files are set but broker %s does not use TLS", cfg.BrokerURL)
		}
		return nil, nil
	}
	if (cfg.ClientCertFile == "") != (cfg.ClientKeyFile == "") {
		return nil, fmt.Errorf("client certificate and key files must be set together")
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         u.Hostname(),
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.InsecureSkipVerify {
		logger.Warn().Str("broker", cfg.BrokerURL).Msg("Broker certificate verification is disabled")
	}

	if cfg.CACertFile != "" {
		pem, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file %s: %w", cfg.CACertFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no CA certificates found in %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.ClientCertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	logger.Info().
		Str("server_name", tlsConfig.ServerName).
		Bool("custom_ca", tlsConfig.RootCAs != nil).
		Bool("mtls", len(tlsConfig.Certificates) > 0).
		Msg("MQTT TLS configured")
	return tlsConfig, nil
}
