// Package security defines the TLS settings shared by every listener and
// client in the platform.
package security

// Config is the security section of the platform configuration.
type Config struct {
	TLS TLSConfig `json:"tls,omitempty"`
}

// TLSConfig splits settings by role so one process can terminate TLS and
// originate TLS with different material.
type TLSConfig struct {
	Server ServerTLSConfig `json:"server,omitempty"`
	Client ClientTLSConfig `json:"client,omitempty"`
}

// ServerTLSConfig configures a TLS-terminating HTTP or WebSocket listener.
type ServerTLSConfig struct {
	Enabled    bool   `json:"enabled"`
	CertFile   string `json:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty"`
	MinVersion string `json:"min_version,omitempty"` // "1.2" or "1.3"

	MTLS ServerMTLSConfig `json:"mtls,omitempty"`
}

// ServerMTLSConfig makes a listener validate client certificates.
type ServerMTLSConfig struct {
	Enabled           bool     `json:"enabled"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty"`     // CAs trusted to sign client certs
	RequireClientCert bool     `json:"require_client_cert,omitempty"` // false leaves the client cert optional
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty"`  // empty allows any validated CN
}

// ClientTLSConfig configures outbound TLS. The system CA bundle is always
// consulted; CAFiles add trust anchors on top of it.
type ClientTLSConfig struct {
	CAFiles            []string `json:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"` // DEV/TEST ONLY
	MinVersion         string   `json:"min_version,omitempty"`

	MTLS ClientMTLSConfig `json:"mtls,omitempty"`
}

// ClientMTLSConfig supplies the certificate a client presents when the
// server asks for one.
type ClientMTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}
