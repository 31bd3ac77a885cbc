package consumers

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePemFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func generateSelfSignedCert(t *testing.T) (certPEM string, keyPEM string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{Organization: []string{"RTView Feed Test"}},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)
	keyBytes, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes}))
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}))
	return certPEM, keyPEM
}

func TestUsesTLS(t *testing.T) {
	testCases := []struct {
		url  string
		want bool
	}{
		{"tcp://localhost:1883", false},
		{"tls://broker:8883", true},
		{"ssl://broker:1884", true},
		{"mqtts://broker", true},
		{"tcp://broker:8883", true},
		{"ws://broker:8080", false},
		{"wss://broker/mqtt", true},
	}
	for _, tc := range testCases {
		u, err := url.Parse(tc.url)
		require.NoError(t, err)
		assert.Equal(t, tc.want, usesTLS(u), tc.url)
	}
}

func TestBrokerTLS(t *testing.T) {
	logger := newTestLogger()
	validCertPEM, validKeyPEM := generateSelfSignedCert(t)

	t.Run("PlainBroker", func(t *testing.T) {
		tlsCfg, err := brokerTLS(&MQTTClientConfig{BrokerURL: "tcp://broker:1883"}, logger)
		require.NoError(t, err)
		assert.Nil(t, tlsCfg)
	})

	t.Run("CertsOnPlainBroker", func(t *testing.T) {
		cfg := &MQTTClientConfig{BrokerURL: "tcp://broker:1883", CACertFile: writePemFile(t, "ca.pem", validCertPEM)}
		_, err := brokerTLS(cfg, logger)
		assert.ErrorContains(t, err, "does not use TLS")
	})

	t.Run("NoCertsProvided", func(t *testing.T) {
		tlsCfg, err := brokerTLS(&MQTTClientConfig{BrokerURL: "tls://broker.example:8883", InsecureSkipVerify: true}, logger)
		require.NoError(t, err)
		require.NotNil(t, tlsCfg)
		assert.True(t, tlsCfg.InsecureSkipVerify)
		assert.Equal(t, "broker.example", tlsCfg.ServerName)
		assert.Equal(t, uint16(tls.VersionTLS12), tlsCfg.MinVersion)
		assert.Nil(t, tlsCfg.RootCAs)
		assert.Empty(t, tlsCfg.Certificates)
	})

	t.Run("CACertFileNotExists", func(t *testing.T) {
		cfg := &MQTTClientConfig{BrokerURL: "mqtts://broker", CACertFile: filepath.Join(t.TempDir(), "missing-ca.pem")}
		_, err := brokerTLS(cfg, logger)
		assert.ErrorContains(t, err, "failed to read CA certificate file")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("CACertFileInvalidPEM", func(t *testing.T) {
		cfg := &MQTTClientConfig{BrokerURL: "mqtts://broker", CACertFile: writePemFile(t, "ca.pem", "this is not a pem")}
		_, err := brokerTLS(cfg, logger)
		assert.ErrorContains(t, err, "no CA certificates found")
	})

	t.Run("ValidCACert", func(t *testing.T) {
		cfg := &MQTTClientConfig{BrokerURL: "mqtts://broker", CACertFile: writePemFile(t, "ca.pem", validCertPEM)}
		tlsCfg, err := brokerTLS(cfg, logger)
		require.NoError(t, err)
		assert.NotNil(t, tlsCfg.RootCAs)
	})

	t.Run("ClientCertKeyPairInvalid", func(t *testing.T) {
		cfg := &MQTTClientConfig{
			BrokerURL:      "mqtts://broker",
			ClientCertFile: writePemFile(t, "client.crt", "invalid cert data"),
			ClientKeyFile:  writePemFile(t, "client.key", "invalid key data"),
		}
		_, err := brokerTLS(cfg, logger)
		assert.ErrorContains(t, err, "failed to load client certificate/key pair")
	})

	t.Run("ValidClientCertKeyPair", func(t *testing.T) {
		cfg := &MQTTClientConfig{
			BrokerURL:      "mqtts://broker",
			ClientCertFile: writePemFile(t, "client.crt", validCertPEM),
			ClientKeyFile:  writePemFile(t, "client.key", validKeyPEM),
		}
		tlsCfg, err := brokerTLS(cfg, logger)
		require.NoError(t, err)
		assert.Len(t, tlsCfg.Certificates, 1)
	})

	t.Run("ClientCertWithoutKey", func(t *testing.T) {
		cfg := &MQTTClientConfig{BrokerURL: "mqtts://broker", ClientCertFile: writePemFile(t, "client.crt", validCertPEM)}
		_, err := brokerTLS(cfg, logger)
		assert.ErrorContains(t, err, "must be set together")
	})
}
