package replication

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/nexusdb/nexus/pkg/config"
	"github.com/nexusdb/nexus/pkg/nexuserr"
)

// buildTLSConfig loads cfg's certificate/key pair and trusts peers
// presenting the same certificate, which is the operator-provisioned
// shared identity a small cluster uses for mutual TLS — there is no
// separate CA file in spec.md §6's replication.* config keys, so the
// node's own certificate doubles as its trust anchor, mirroring the
// single-CA-per-cluster model pkg/security's CertAuthority establishes
// for the rest of Nexus, simplified to skip per-node certificate
// issuance since replication.* only configures one cert/key pair.
func buildTLSConfig(cfg config.ReplicationConfig) (*tls.Config, error) {
	if !cfg.TLSEnabled {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.buildTLSConfig", err)
	}

	pem, err := os.ReadFile(cfg.TLSCertFile)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.buildTLSConfig", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, nexuserr.New(nexuserr.KindReplication, nexuserr.CodeStorageIO,
			"replication.buildTLSConfig", "failed to parse tls_cert_file as PEM")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
