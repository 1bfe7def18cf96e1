package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360/refreshkit/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCertFiles stores one identity's cert/key pair under dir.
func writeCertFiles(t *testing.T, dir, name string, certPEM, keyPEM []byte) (certFile, keyFile string) {
	t.Helper()

	certFile = filepath.Join(dir, name+"-cert.pem")
	keyFile = filepath.Join(dir, name+"-key.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))
	return certFile, keyFile
}

// gatewayTLS generates the gateway's serving certificate and returns the
// base server TLS config pointing at it.
func gatewayTLS(t *testing.T, dir string) security.ServerTLSConfig {
	t.Helper()

	certPEM, keyPEM := generateTestCert(t, "refreshkit-gateway")
	certFile, keyFile := writeCertFiles(t, dir, "gateway", certPEM, keyPEM)
	return security.ServerTLSConfig{
		Enabled:  true,
		CertFile: certFile,
		KeyFile:  keyFile,
	}
}

// clientIdentity generates a client certificate for cn and returns its mTLS
// config plus the CA file a server needs to trust it. The test certs are
// self-signed, so each identity's cert doubles as its own CA.
func clientIdentity(t *testing.T, dir, cn string) (security.ClientMTLSConfig, string) {
	t.Helper()

	certPEM, keyPEM := generateTestCert(t, cn)
	certFile, keyFile := writeCertFiles(t, dir, cn, certPEM, keyPEM)

	caFile := filepath.Join(dir, cn+"-ca.pem")
	require.NoError(t, os.WriteFile(caFile, certPEM, 0644))

	return security.ClientMTLSConfig{
		Enabled:  true,
		CertFile: certFile,
		KeyFile:  keyFile,
	}, caFile
}

// peerCNHandler reports the verified caller identity: X-Client-CN carries
// the peer certificate's common name and stays unset for anonymous callers.
func peerCNHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			w.Header().Set("X-Client-CN", r.TLS.PeerCertificates[0].Subject.CommonName)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// mtlsGateway stands up a gateway serving peerCNHandler under the given
// client-cert policy.
func mtlsGateway(t *testing.T, serverCfg security.ServerTLSConfig, mtls security.ServerMTLSConfig) *httptest.Server {
	t.Helper()

	tlsCfg, err := LoadServerTLSConfigWithMTLS(serverCfg, mtls)
	require.NoError(t, err)

	server := httptest.NewUnstartedServer(peerCNHandler())
	server.TLS = tlsCfg
	server.StartTLS()
	t.Cleanup(server.Close)
	return server
}

// mtlsHTTPClient builds an HTTPS client carrying the given mTLS identity.
// Server cert validation is skipped because the test certs have no SANs.
func mtlsHTTPClient(t *testing.T, mtlsCfg security.ClientMTLSConfig) *http.Client {
	t.Helper()

	clientCfg := security.ClientTLSConfig{InsecureSkipVerify: true}
	tlsCfg, err := LoadClientTLSConfigWithMTLS(clientCfg, mtlsCfg)
	require.NoError(t, err)

	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: tlsCfg,
		},
	}
}

// getPeerCN performs a GET against the gateway and returns the identity the
// gateway reported seeing.
func getPeerCN(t *testing.T, client *http.Client, url string) string {
	t.Helper()

	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return resp.Header.Get("X-Client-CN")
}

// A client presenting a trusted certificate completes the handshake and the
// gateway sees its identity.
func TestMTLSHandshake_ServerRequiresClientCert(t *testing.T) {
	tmpDir := t.TempDir()
	serverCfg := gatewayTLS(t, tmpDir)
	clientMTLS, caFile := clientIdentity(t, tmpDir, "kpi-dashboard")

	server := mtlsGateway(t, serverCfg, security.ServerMTLSConfig{
		Enabled:           true,
		ClientCAFiles:     []string{caFile},
		RequireClientCert: true,
	})

	cn := getPeerCN(t, mtlsHTTPClient(t, clientMTLS), server.URL)
	assert.Equal(t, "kpi-dashboard", cn)
}

// A certless client is rejected during the handshake when the gateway
// requires client certs.
func TestMTLSHandshake_ServerRequiresClientCert_NoClientCert(t *testing.T) {
	tmpDir := t.TempDir()
	serverCfg := gatewayTLS(t, tmpDir)
	_, caFile := clientIdentity(t, tmpDir, "kpi-dashboard")

	server := mtlsGateway(t, serverCfg, security.ServerMTLSConfig{
		Enabled:           true,
		ClientCAFiles:     []string{caFile},
		RequireClientCert: true,
	})

	_, err := mtlsHTTPClient(t, security.ClientMTLSConfig{}).Get(server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls")
}

func TestMTLSHandshake_CNWhitelist_Allowed(t *testing.T) {
	tmpDir := t.TempDir()
	serverCfg := gatewayTLS(t, tmpDir)
	clientMTLS, caFile := clientIdentity(t, tmpDir, "kpi-dashboard")

	server := mtlsGateway(t, serverCfg, security.ServerMTLSConfig{
		Enabled:           true,
		ClientCAFiles:     []string{caFile},
		RequireClientCert: true,
		AllowedClientCNs:  []string{"kpi-dashboard", "ops-console"},
	})

	cn := getPeerCN(t, mtlsHTTPClient(t, clientMTLS), server.URL)
	assert.Equal(t, "kpi-dashboard", cn)
}

// A trusted certificate whose CN is missing from the whitelist fails peer
// verification even though the chain itself is valid.
func TestMTLSHandshake_CNWhitelist_Rejected(t *testing.T) {
	tmpDir := t.TempDir()
	serverCfg := gatewayTLS(t, tmpDir)
	clientMTLS, caFile := clientIdentity(t, tmpDir, "rogue-scraper")

	server := mtlsGateway(t, serverCfg, security.ServerMTLSConfig{
		Enabled:           true,
		ClientCAFiles:     []string{caFile},
		RequireClientCert: true,
		AllowedClientCNs:  []string{"kpi-dashboard", "ops-console"},
	})

	_, err := mtlsHTTPClient(t, clientMTLS).Get(server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls")
}

func TestMTLSHandshake_OptionalClientCert_WithCert(t *testing.T) {
	tmpDir := t.TempDir()
	serverCfg := gatewayTLS(t, tmpDir)
	clientMTLS, caFile := clientIdentity(t, tmpDir, "ops-console")

	server := mtlsGateway(t, serverCfg, security.ServerMTLSConfig{
		Enabled:       true,
		ClientCAFiles: []string{caFile},
	})

	cn := getPeerCN(t, mtlsHTTPClient(t, clientMTLS), server.URL)
	assert.Equal(t, "ops-console", cn)
}

// Anonymous callers still get through when the client cert is optional; the
// gateway just sees no identity.
func TestMTLSHandshake_OptionalClientCert_WithoutCert(t *testing.T) {
	tmpDir := t.TempDir()
	serverCfg := gatewayTLS(t, tmpDir)
	_, caFile := clientIdentity(t, tmpDir, "ops-console")

	server := mtlsGateway(t, serverCfg, security.ServerMTLSConfig{
		Enabled:       true,
		ClientCAFiles: []string{caFile},
	})

	cn := getPeerCN(t, mtlsHTTPClient(t, security.ClientMTLSConfig{}), server.URL)
	assert.Empty(t, cn)
}

// A zero mTLS config must leave the gateway serving plain one-way TLS.
func TestMTLSHandshake_MTLSDisabled(t *testing.T) {
	tmpDir := t.TempDir()
	serverCfg := gatewayTLS(t, tmpDir)

	server := mtlsGateway(t, serverCfg, security.ServerMTLSConfig{})

	httpClient := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	resp, err := httpClient.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

// The identity attached to the TLS config must be the certificate written to
// disk, not merely some keypair that happened to parse.
func TestClientCertLoading(t *testing.T) {
	tmpDir := t.TempDir()
	clientMTLS, _ := clientIdentity(t, tmpDir, "kpi-dashboard")

	tlsCfg, err := LoadClientTLSConfigWithMTLS(security.ClientTLSConfig{}, clientMTLS)
	require.NoError(t, err)
	require.Len(t, tlsCfg.Certificates, 1)

	leaf, err := x509.ParseCertificate(tlsCfg.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "kpi-dashboard", leaf.Subject.CommonName)
}
