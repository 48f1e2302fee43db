package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemporalClientOptions_Plaintext(t *testing.T) {
	cfg := &Config{TemporalAddress: "temporal:7233", TemporalNamespace: "zargar"}
	opts, err := cfg.TemporalClientOptions()
	require.NoError(t, err)
	assert.Equal(t, "temporal:7233", opts.HostPort)
	assert.Equal(t, "zargar", opts.Namespace)
	assert.Nil(t, opts.ConnectionOptions.TLS)
}

func TestTemporalClientOptions_MTLS(t *testing.T) {
	certPath, keyPath := writeSelfSignedCert(t)

	cfg := &Config{
		TemporalAddress:       "temporal:7233",
		TemporalTLSCert:       certPath,
		TemporalTLSKey:        keyPath,
		TemporalTLSCACert:     certPath,
		TemporalTLSServerName: "temporal.internal",
	}
	opts, err := cfg.TemporalClientOptions()
	require.NoError(t, err)
	require.NotNil(t, opts.ConnectionOptions.TLS)
	assert.Len(t, opts.ConnectionOptions.TLS.Certificates, 1)
	assert.NotNil(t, opts.ConnectionOptions.TLS.RootCAs)
	assert.Equal(t, "temporal.internal", opts.ConnectionOptions.TLS.ServerName)
}

func TestTemporalClientOptions_MissingCert(t *testing.T) {
	cfg := &Config{
		TemporalTLSCert: "/nonexistent/cert.pem",
		TemporalTLSKey:  "/nonexistent/key.pem",
	}
	_, err := cfg.TemporalClientOptions()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load temporal client cert")
}

func TestTemporalClientOptions_BadCA(t *testing.T) {
	certPath, keyPath := writeSelfSignedCert(t)
	caPath := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caPath, []byte("not a cert"), 0o600))

	cfg := &Config{
		TemporalTLSCert:   certPath,
		TemporalTLSKey:    keyPath,
		TemporalTLSCACert: caPath,
	}
	_, err := cfg.TemporalClientOptions()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse temporal CA cert")
}

func writeSelfSignedCert(t *testing.T) (certPath, keyPath string) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(42),
		Subject:               pkix.Name{CommonName: "zargar-worker"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	require.NoError(t, err)
	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	dir := t.TempDir()
	certPath = filepath.Join(dir, "client.pem")
	keyPath = filepath.Join(dir, "client-key.pem")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certPath, keyPath
}
